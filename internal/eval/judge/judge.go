// Package judge implements the judge evaluator (spec.md §4.6.2): it
// delegates scoring to an external LanguageJudge capability, tracks cost,
// and parses the judge's (possibly noisy) JSON response.
package judge

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/agent-replay/tracecore/internal/apperr"
	"github.com/agent-replay/tracecore/internal/repo"
	"github.com/agent-replay/tracecore/internal/resolver"
	"github.com/agent-replay/tracecore/internal/summarize"
	"github.com/agent-replay/tracecore/internal/types"
)

// Reply is LanguageJudge.call's response shape (spec.md §6).
type Reply struct {
	Text            string
	InputTokens     int64
	OutputTokens    int64
	Model           string
	Provider        string
	CostEstimateUSD float64
	LatencyMS       int64
}

// Request is LanguageJudge.call's argument shape.
type Request struct {
	System    string
	Prompt    string
	MaxTokens int
}

// LanguageJudge is the one capability the judge evaluator depends on; the
// core never sees a concrete transport (spec.md §1).
type LanguageJudge interface {
	Call(ctx context.Context, req Request) (Reply, error)
}

// Ctx is the read-only view a preset's applicable/parse functions see.
type Ctx struct {
	Trace *types.ResolvedTrace
}

func (c Ctx) hasError() bool {
	if c.Trace.Trace.Error != "" {
		return true
	}
	for _, s := range c.Trace.Steps {
		if s.StepType == types.StepError {
			return true
		}
	}
	return false
}

// ParseResult is what a preset's parse_response function produces.
type ParseResult struct {
	Score   float64
	Passed  bool
	Details map[string]any
}

// Preset declares one judge-backed evaluator (spec.md §4.6.2).
type Preset struct {
	Name             string
	Threshold        float64
	SystemPrompt     string
	UserPromptFor    func(summary string) string
	ParseResponse    func(text string) (ParseResult, error)
	Applicable       func(ctx Ctx) bool
}

// Options tunes one runAiEval call.
type Options struct {
	MaxTokenBudget int // summarizer budget; 0 uses the default
}

// Service runs judge presets against resolved traces, persisting verdicts.
type Service struct {
	resolver *resolver.Resolver
	repo     *repo.Repository
	judge    LanguageJudge
}

// New builds a Service over a LanguageJudge adapter.
func New(r *resolver.Resolver, rp *repo.Repository, lj LanguageJudge) *Service {
	return &Service{resolver: r, repo: rp, judge: lj}
}

// RunAiEval implements runAiEval(trace_id, preset_name, judge_opts)
// (spec.md §4.6.2).
func (s *Service) RunAiEval(ctx context.Context, traceID string, preset Preset, opts Options) (*types.Verdict, error) {
	trace, err := s.resolver.Resolve(ctx, traceID)
	if err != nil {
		return nil, err
	}

	if preset.Applicable != nil && !preset.Applicable(Ctx{Trace: trace}) {
		details, _ := json.Marshal(map[string]any{"skipped": true, "reason": "Not applicable to this trace"})
		return s.repo.CreateEval(ctx, trace.Trace.ID, repo.EvalInput{
			EvaluatorType: types.EvaluatorLLMJudge,
			EvaluatorName: preset.Name,
			Score:         1.0,
			Passed:        true,
			Details:       types.JSON(details),
		})
	}

	summary := summarize.Trace(trace, opts.MaxTokenBudget)

	reply, err := s.judge.Call(ctx, Request{
		System:    preset.SystemPrompt,
		Prompt:    preset.UserPromptFor(summary.Text),
		MaxTokens: 1024,
	})
	if err != nil {
		return nil, err
	}

	parsed, err := preset.ParseResponse(reply.Text)
	if err != nil {
		raw := reply.Text
		if len(raw) > 2000 {
			raw = raw[:2000]
		}
		details, _ := json.Marshal(map[string]any{"parse_error": true, "raw_response": raw})
		return s.repo.CreateEval(ctx, trace.Trace.ID, repo.EvalInput{
			EvaluatorType: types.EvaluatorLLMJudge,
			EvaluatorName: preset.Name,
			Score:         0,
			Passed:        false,
			Details:       types.JSON(details),
		})
	}

	detailsMap := parsed.Details
	if detailsMap == nil {
		detailsMap = map[string]any{}
	}
	detailsMap["llm_model"] = reply.Model
	detailsMap["llm_provider"] = reply.Provider
	detailsMap["input_tokens"] = reply.InputTokens
	detailsMap["output_tokens"] = reply.OutputTokens
	detailsMap["cost_usd"] = reply.CostEstimateUSD
	detailsMap["latency_ms"] = reply.LatencyMS

	detailsJSON, err := json.Marshal(detailsMap)
	if err != nil {
		return nil, apperr.Wrap(apperr.Server, err, "marshal verdict details")
	}

	return s.repo.CreateEval(ctx, trace.Trace.ID, repo.EvalInput{
		EvaluatorType: types.EvaluatorLLMJudge,
		EvaluatorName: preset.Name,
		Score:         parsed.Score,
		Passed:        parsed.Passed,
		Details:       types.JSON(detailsJSON),
	})
}

// ExtractJSON implements extractJson(text) (spec.md §4.7): direct parse,
// then a fenced code block, then the first {...} slice, else fail parse.
func ExtractJSON(text string) (map[string]any, error) {
	trimmed := strings.TrimSpace(text)

	var v map[string]any
	if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
		return v, nil
	}

	if fenced, ok := extractFenced(trimmed); ok {
		if err := json.Unmarshal([]byte(fenced), &v); err == nil {
			return v, nil
		}
	}

	if start := strings.Index(trimmed, "{"); start >= 0 {
		if end := strings.LastIndex(trimmed, "}"); end > start {
			if err := json.Unmarshal([]byte(trimmed[start:end+1]), &v); err == nil {
				return v, nil
			}
		}
	}

	return nil, apperr.New(apperr.Parse, "could not extract JSON from judge response")
}

func extractFenced(text string) (string, bool) {
	const fence = "```"
	start := strings.Index(text, fence)
	if start < 0 {
		return "", false
	}
	rest := text[start+len(fence):]
	if idx := strings.Index(rest, "\n"); idx >= 0 && idx < 10 {
		// Skip an optional language tag (e.g. "json") on the fence's own line.
		rest = rest[idx+1:]
	}
	end := strings.Index(rest, fence)
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func round3(f float64) float64 {
	return float64(int(f*1000+0.5)) / 1000
}

func floatField(m map[string]any, key string) float64 {
	if v, ok := m[key].(float64); ok {
		return v
	}
	return 0
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func boolField(m map[string]any, key string) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return false
}
