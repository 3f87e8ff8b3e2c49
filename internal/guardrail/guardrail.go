// Package guardrail implements policy matching against trace steps
// (spec.md §4.8): each enabled policy's match_pattern is tested,
// conjunctively, against every step of a trace.
package guardrail

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/agent-replay/tracecore/internal/apperr"
	"github.com/agent-replay/tracecore/internal/repo"
	"github.com/agent-replay/tracecore/internal/resolver"
	"github.com/agent-replay/tracecore/internal/types"
)

// Pattern is the decoded shape of a policy's match_pattern JSON. A zero
// value (no keys set) matches nothing, not everything (spec.md §4.8).
type Pattern struct {
	StepType       string `json:"step_type"`
	NameContains   string `json:"name_contains"`
	NameRegex      string `json:"name_regex"`
	InputContains  string `json:"input_contains"`
	OutputContains string `json:"output_contains"`
}

// Match is one policy matching one step.
type Match struct {
	Policy string
	Action types.GuardAction
	Reason string
}

// StepMatches bundles a step with the policies that matched it.
type StepMatches struct {
	Step    types.Step
	Matches []Match
}

// Service evaluates policies against a resolved trace's steps.
type Service struct {
	resolver *resolver.Resolver
	repo     *repo.Repository
}

// New builds a Service.
func New(r *resolver.Resolver, rp *repo.Repository) *Service {
	return &Service{resolver: r, repo: rp}
}

// TestPolicies evaluates every enabled policy (priority DESC) against
// every step of traceID (step order), returning one StepMatches per step.
func (s *Service) TestPolicies(ctx context.Context, traceID string) ([]StepMatches, error) {
	trace, err := s.resolver.Resolve(ctx, traceID)
	if err != nil {
		return nil, err
	}
	if len(trace.Steps) == 0 {
		return nil, apperr.NotFoundf("trace %s has no steps to match against", trace.Trace.ID)
	}

	policies, err := s.repo.ListEnabledPolicies(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]StepMatches, 0, len(trace.Steps))
	matched := 0
	for _, step := range trace.Steps {
		sm := StepMatches{Step: step}
		for _, p := range policies {
			if reason, ok := evaluate(p.MatchPattern, step); ok {
				sm.Matches = append(sm.Matches, Match{Policy: p.Name, Action: p.Action, Reason: reason})
			}
		}
		if len(sm.Matches) > 0 {
			matched++
		}
		out = append(out, sm)
	}
	s.repo.Logger().Info("test_policies", "trace_id", trace.Trace.ID, "outcome", "ok",
		"policies_evaluated", len(policies), "steps_matched", matched)
	return out, nil
}

// evaluate tests a single policy's match_pattern against step. Returns
// the comma-joined description of matched keys and true only if the
// pattern has at least one key AND every present key matches.
func evaluate(raw types.JSON, step types.Step) (string, bool) {
	var pattern Pattern
	if raw == "" {
		return "", false
	}
	if err := json.Unmarshal([]byte(raw), &pattern); err != nil {
		return "", false
	}

	var reasons []string

	if pattern.StepType != "" {
		if string(step.StepType) != pattern.StepType {
			return "", false
		}
		reasons = append(reasons, "step_type")
	}
	if pattern.NameContains != "" {
		if !strings.Contains(strings.ToLower(step.Name), strings.ToLower(pattern.NameContains)) {
			return "", false
		}
		reasons = append(reasons, "name_contains")
	}
	if pattern.NameRegex != "" {
		re, err := regexp.Compile("(?i)" + pattern.NameRegex)
		if err != nil {
			return "", false
		}
		if !re.MatchString(step.Name) {
			return "", false
		}
		reasons = append(reasons, "name_regex")
	}
	if pattern.InputContains != "" {
		if !strings.Contains(strings.ToLower(step.Input.String()), strings.ToLower(pattern.InputContains)) {
			return "", false
		}
		reasons = append(reasons, "input_contains")
	}
	if pattern.OutputContains != "" {
		if !strings.Contains(strings.ToLower(step.Output.String()), strings.ToLower(pattern.OutputContains)) {
			return "", false
		}
		reasons = append(reasons, "output_contains")
	}

	if len(reasons) == 0 {
		return "", false
	}
	return strings.Join(reasons, ", "), true
}
