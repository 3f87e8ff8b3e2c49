package repo

import (
	"math"

	"github.com/agent-replay/tracecore/internal/apperr"
	"github.com/agent-replay/tracecore/internal/types"
)

// traceValidator is one check over a TraceInput, composed via
// validateTrace. The shape (a chain of small named predicates returning a
// field-prefixed error) is grounded on the teacher's
// internal/validation.IssueValidator / Chain pattern, generalized from
// issue fields to trace fields.
type traceValidator func(in *TraceInput) error

func validateTrace(in *TraceInput, validators ...traceValidator) error {
	for _, v := range validators {
		if err := v(in); err != nil {
			return err
		}
	}
	return nil
}

func requireAgentName() traceValidator {
	return func(in *TraceInput) error {
		if in.AgentName == "" {
			return apperr.Field("agent_name", "must not be empty")
		}
		return nil
	}
}

func requireValidTrigger() traceValidator {
	return func(in *TraceInput) error {
		if in.Trigger == "" {
			return nil // caller applies the default before validating
		}
		if !in.Trigger.Valid() {
			return apperr.Field("trigger", "invalid value %q", in.Trigger)
		}
		return nil
	}
}

func requireValidStatus() traceValidator {
	return func(in *TraceInput) error {
		if !in.HasStatus {
			return nil
		}
		if !in.Status.Valid() {
			return apperr.Field("status", "invalid value %q", in.Status)
		}
		return nil
	}
}

func requireNonNegativeTotals() traceValidator {
	return func(in *TraceInput) error {
		if d := in.Totals.DurationMS; d != nil && *d < 0 {
			return apperr.Field("total_duration_ms", "must be >= 0")
		}
		if t := in.Totals.Tokens; t != nil && *t < 0 {
			return apperr.Field("total_tokens", "must be >= 0")
		}
		if c := in.Totals.CostUSD; c != nil && (*c < 0 || !finite(*c)) {
			return apperr.Field("total_cost_usd", "must be finite and >= 0")
		}
		return nil
	}
}

func requireForkLinkageConsistent() traceValidator {
	return func(in *TraceInput) error {
		hasParent := in.ParentTraceID != ""
		hasStep := in.ForkedFromStep != nil
		if hasParent != hasStep {
			return apperr.Field("parent_trace_id", "parent_trace_id and forked_from_step must both be present or both absent")
		}
		return nil
	}
}

func requireValidSteps() traceValidator {
	return func(in *TraceInput) error {
		seen := make(map[int]bool, len(in.Steps))
		for i, s := range in.Steps {
			if err := validateStepShape(s); err != nil {
				return err
			}
			if seen[s.StepNumber] {
				return apperr.Field("steps", "duplicate step_number %d at index %d", s.StepNumber, i)
			}
			seen[s.StepNumber] = true
		}
		return nil
	}
}

func validateStepShape(s StepInput) error {
	if s.StepNumber < 1 {
		return apperr.Field("step_number", "must be >= 1, got %d", s.StepNumber)
	}
	if !s.StepType.Valid() {
		return apperr.Field("step_type", "invalid value %q", s.StepType)
	}
	if s.Name == "" {
		return apperr.Field("name", "must not be empty")
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func requireValidPolicy() func(p *types.Policy) error {
	return func(p *types.Policy) error {
		if p.Name == "" {
			return apperr.Field("name", "must not be empty")
		}
		if !p.Action.Valid() {
			return apperr.Field("action", "invalid value %q", p.Action)
		}
		return nil
	}
}
