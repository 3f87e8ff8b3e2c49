package rubric

import (
	"context"

	"github.com/agent-replay/tracecore/internal/apperr"
	"github.com/agent-replay/tracecore/internal/repo"
	"github.com/agent-replay/tracecore/internal/resolver"
	"github.com/agent-replay/tracecore/internal/types"
)

// Registry lists the built-in presets by name.
func Registry() map[string]Preset {
	return map[string]Preset{
		"hallucination-check": HallucinationCheck(),
		"safety-check":        SafetyCheck(),
		"completeness-check":  CompletenessCheck(),
	}
}

// Service runs presets (or custom rubrics) against a resolved trace and
// persists the resulting verdict.
type Service struct {
	resolver *resolver.Resolver
	repo     *repo.Repository
}

// New builds a Service.
func New(r *resolver.Resolver, rp *repo.Repository) *Service {
	return &Service{resolver: r, repo: rp}
}

// RunPreset loads traceID, scores it against the named built-in preset,
// and persists the verdict as a rubric evaluation.
func (s *Service) RunPreset(ctx context.Context, traceID, presetName string) (*types.Verdict, error) {
	preset, ok := Registry()[presetName]
	if !ok {
		return nil, apperr.Field("preset_name", "unknown rubric preset %q", presetName)
	}
	trace, err := s.resolver.Resolve(ctx, traceID)
	if err != nil {
		return nil, err
	}
	result := Run(preset, trace)
	return s.repo.CreateEval(ctx, trace.Trace.ID, repo.EvalInput{
		EvaluatorType: types.EvaluatorRubric,
		EvaluatorName: preset.Name,
		Score:         result.Score,
		Passed:        result.Passed,
		Details:       result.Details,
	})
}

// RunCustom loads traceID, scores it against a caller-supplied rubric,
// and persists the verdict.
func (s *Service) RunCustom(ctx context.Context, traceID string, rub CustomRubric) (*types.Verdict, error) {
	if rub.Name == "" {
		return nil, apperr.Field("name", "must not be empty")
	}
	trace, err := s.resolver.Resolve(ctx, traceID)
	if err != nil {
		return nil, err
	}
	result := RunCustom(rub, trace)
	return s.repo.CreateEval(ctx, trace.Trace.ID, repo.EvalInput{
		EvaluatorType: types.EvaluatorRubric,
		EvaluatorName: rub.Name,
		Score:         result.Score,
		Passed:        result.Passed,
		Details:       result.Details,
	})
}
