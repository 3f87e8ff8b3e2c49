// Package resolver is the public read path (spec.md §4.9): it assembles
// the composite trace/steps/verdicts view every other component (diff,
// fork, evaluator, guardrail) builds on, accepting either a full id or
// any prefix long enough to be unique.
package resolver

import (
	"context"

	"github.com/agent-replay/tracecore/internal/apperr"
	"github.com/agent-replay/tracecore/internal/repo"
	"github.com/agent-replay/tracecore/internal/types"
)

// Resolver wraps a Repository to expose the single read path everything
// downstream of ingestion depends on.
type Resolver struct {
	repo *repo.Repository
}

// New builds a Resolver over an existing Repository.
func New(r *repo.Repository) *Resolver { return &Resolver{repo: r} }

// Resolve returns the full trace (steps ASC by step_number, verdicts DESC
// by evaluated_at) for idOrPrefix, or a not_found error if no trace
// matches (exactly, or via a unique id-prefix match).
func (rs *Resolver) Resolve(ctx context.Context, idOrPrefix string) (*types.ResolvedTrace, error) {
	if idOrPrefix == "" {
		return nil, apperr.Field("id", "must not be empty")
	}
	rt, err := rs.repo.GetTrace(ctx, idOrPrefix)
	if err != nil {
		return nil, err
	}
	if rt == nil {
		return nil, apperr.NotFoundf("no trace matches %q", idOrPrefix)
	}
	return rt, nil
}

// ResolveTwo resolves two ids at once, the left/right pair diff needs,
// failing on the first miss.
func (rs *Resolver) ResolveTwo(ctx context.Context, left, right string) (*types.ResolvedTrace, *types.ResolvedTrace, error) {
	l, err := rs.Resolve(ctx, left)
	if err != nil {
		return nil, nil, err
	}
	r, err := rs.Resolve(ctx, right)
	if err != nil {
		return nil, nil, err
	}
	return l, r, nil
}
