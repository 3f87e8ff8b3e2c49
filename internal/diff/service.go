package diff

import (
	"context"

	"github.com/agent-replay/tracecore/internal/resolver"
)

// Service resolves both trace ids and runs Compare, the shape the root
// facade's diff_traces call needs.
type Service struct {
	resolver *resolver.Resolver
	mode     Canonical
}

// New builds a Service. mode selects byte-equal (default, spec.md §4.4)
// or canonical-JSON (SPEC_FULL.md's stricter variant) comparison for
// input/output.
func New(r *resolver.Resolver, mode Canonical) *Service {
	return &Service{resolver: r, mode: mode}
}

// DiffTraces loads leftID and rightID via the resolver and returns their
// step-wise comparison.
func (s *Service) DiffTraces(ctx context.Context, leftID, rightID string) (Diff, error) {
	left, right, err := s.resolver.ResolveTwo(ctx, leftID, rightID)
	if err != nil {
		return Diff{}, err
	}
	return Compare(left, right, s.mode), nil
}
