// Package tracecore is the local flight data recorder for agent
// executions: ingest and append traces, diff and fork them, score them
// with a deterministic rubric or an external judge, and match their
// steps against guardrail policies. All state lives in one embedded
// SQLite file; there is no server process and no network boundary except
// the judge evaluator's outbound call.
package tracecore

import (
	"context"
	"log/slog"

	"github.com/agent-replay/tracecore/internal/diff"
	evaljudge "github.com/agent-replay/tracecore/internal/eval/judge"
	"github.com/agent-replay/tracecore/internal/eval/rubric"
	"github.com/agent-replay/tracecore/internal/fork"
	"github.com/agent-replay/tracecore/internal/guardrail"
	"github.com/agent-replay/tracecore/internal/repo"
	"github.com/agent-replay/tracecore/internal/resolver"
	"github.com/agent-replay/tracecore/internal/store"
	"github.com/agent-replay/tracecore/internal/summarize"
	"github.com/agent-replay/tracecore/internal/types"
)

// Re-exported domain types (spec.md §3), so callers never need to import
// internal/types directly.
type (
	JSON          = types.JSON
	Trigger       = types.Trigger
	Status        = types.Status
	StepType      = types.StepType
	EvaluatorType = types.EvaluatorType
	GuardAction   = types.GuardAction
	Totals        = types.Totals
	Trace         = types.Trace
	Step          = types.Step
	Snapshot      = types.Snapshot
	Verdict       = types.Verdict
	Policy        = types.Policy
	ResolvedTrace = types.ResolvedTrace
)

// Re-exported trigger/status/step-type/evaluator-type/action constants.
const (
	TriggerManual      = types.TriggerManual
	TriggerUserMessage = types.TriggerUserMessage
	TriggerCron        = types.TriggerCron
	TriggerWebhook     = types.TriggerWebhook
	TriggerAPI         = types.TriggerAPI
	TriggerEvent       = types.TriggerEvent

	StatusRunning   = types.StatusRunning
	StatusCompleted = types.StatusCompleted
	StatusFailed    = types.StatusFailed
	StatusTimeout   = types.StatusTimeout

	StepThought    = types.StepThought
	StepToolCall   = types.StepToolCall
	StepLLMCall    = types.StepLLMCall
	StepRetrieval  = types.StepRetrieval
	StepOutput     = types.StepOutput
	StepDecision   = types.StepDecision
	StepError      = types.StepError
	StepGuardCheck = types.StepGuardCheck

	EvaluatorRubric      = types.EvaluatorRubric
	EvaluatorLLMJudge    = types.EvaluatorLLMJudge
	EvaluatorPolicyCheck = types.EvaluatorPolicyCheck

	ActionAllow         = types.ActionAllow
	ActionDeny          = types.ActionDeny
	ActionWarn          = types.ActionWarn
	ActionRequireReview = types.ActionRequireReview
)

// Input/patch/filter shapes (spec.md §4.3), re-exported from internal/repo.
type (
	TraceInput    = repo.TraceInput
	StepInput     = repo.StepInput
	SnapshotInput = repo.SnapshotInput
	Patch         = repo.Patch
	Filter        = repo.Filter
	EvalInput     = repo.EvalInput
)

// Diff/fork result shapes.
type (
	StepDiff = diff.StepDiff
	Diff     = diff.Diff
	Canonical = diff.Canonical
)

// ForkResult is fork_trace's return value (spec.md §6).
type ForkResult = fork.Result

// Rubric evaluator shapes.
type (
	RubricCriterion = rubric.Criterion
	RubricPreset    = rubric.Preset
	CustomCriterion = rubric.CustomCriterion
	CustomRubric    = rubric.CustomRubric
)

// Judge evaluator shapes.
type (
	LanguageJudge = evaljudge.LanguageJudge
	JudgeRequest  = evaljudge.Request
	JudgeReply    = evaljudge.Reply
	JudgePreset   = evaljudge.Preset
	JudgeOpts     = evaljudge.Options
	CostEstimate  = evaljudge.EstimateResult
)

// Guardrail shapes.
type StepMatches = guardrail.StepMatches

const (
	ByteEqual      = diff.ByteEqual
	CanonicalEqual = diff.CanonicalEqual
)

// Recorder is the single entry point wiring every component over one
// open Store. Callers hold one Recorder per open database.
type Recorder struct {
	store      *store.Store
	repo       *repo.Repository
	resolver   *resolver.Resolver
	diffSvc    *diff.Service
	forkSvc    *fork.Service
	rubricSvc  *rubric.Service
	guardSvc   *guardrail.Service
}

// Open implements open_database(path) (spec.md §6): it ensures the
// working directory exists, applies the schema, and wires every
// component over the resulting Store.
func Open(path string, log *slog.Logger) (*Recorder, error) {
	st, err := store.Open(path, log)
	if err != nil {
		return nil, err
	}
	return newRecorder(st), nil
}

func newRecorder(st *store.Store) *Recorder {
	rp := repo.New(st)
	rs := resolver.New(rp)
	return &Recorder{
		store:     st,
		repo:      rp,
		resolver:  rs,
		diffSvc:   diff.New(rs, diff.ByteEqual),
		forkSvc:   fork.New(st, rs),
		rubricSvc: rubric.New(rs, rp),
		guardSvc:  guardrail.New(rs, rp),
	}
}

// Close releases the underlying database connection.
func (r *Recorder) Close() error { return r.store.Close() }

// IngestTrace implements ingest_trace(store, TraceInput) -> Trace.
func (r *Recorder) IngestTrace(ctx context.Context, in TraceInput) (*Trace, error) {
	return r.repo.IngestTrace(ctx, in)
}

// AppendStep implements append_step(store, trace_id, StepInput) -> Step.
func (r *Recorder) AppendStep(ctx context.Context, traceID string, in StepInput) (*Step, error) {
	return r.repo.AppendStep(ctx, traceID, in)
}

// GetTrace implements get_trace(store, id_or_prefix) -> ?ResolvedTrace.
// It returns (nil, nil) rather than an error when no trace matches, the
// way the spec's nullable return is expressed in Go.
func (r *Recorder) GetTrace(ctx context.Context, idOrPrefix string) (*ResolvedTrace, error) {
	return r.repo.GetTrace(ctx, idOrPrefix)
}

// ListTraces implements list_traces(store, Filter) -> {items, total}.
func (r *Recorder) ListTraces(ctx context.Context, f Filter) ([]Trace, int, error) {
	return r.repo.ListTraces(ctx, f)
}

// UpdateTrace implements update_trace(store, id, Patch) -> Trace.
func (r *Recorder) UpdateTrace(ctx context.Context, id string, patch Patch) (*Trace, error) {
	return r.repo.UpdateTrace(ctx, id, patch)
}

// DeleteTrace implements delete_trace(store, id).
func (r *Recorder) DeleteTrace(ctx context.Context, id string) error {
	return r.repo.DeleteTrace(ctx, id)
}

// GetStepSnapshot implements get_step_snapshot(store, trace_id,
// step_number) -> ?Snapshot.
func (r *Recorder) GetStepSnapshot(ctx context.Context, traceID string, stepNumber int) (*Snapshot, error) {
	return r.repo.GetStepSnapshot(ctx, traceID, stepNumber)
}

// CreateEval implements create_eval(store, trace_id, EvalInput) -> Verdict.
func (r *Recorder) CreateEval(ctx context.Context, traceID string, in EvalInput) (*Verdict, error) {
	return r.repo.CreateEval(ctx, traceID, in)
}

// DiffTraces implements diff_traces(store, left_id, right_id) -> Diff.
func (r *Recorder) DiffTraces(ctx context.Context, leftID, rightID string) (Diff, error) {
	return r.diffSvc.DiffTraces(ctx, leftID, rightID)
}

// DiffTracesCanonical is SPEC_FULL.md's stricter variant: input/output
// equality is judged after re-serialising both sides through canonical
// JSON, rather than requiring byte-identical stored text.
func (r *Recorder) DiffTracesCanonical(ctx context.Context, leftID, rightID string) (Diff, error) {
	svc := diff.New(r.resolver, diff.CanonicalEqual)
	return svc.DiffTraces(ctx, leftID, rightID)
}

// ForkTrace implements fork_trace(store, parent_id, from_step,
// ?modified_input, ?modified_env) -> ForkResult.
func (r *Recorder) ForkTrace(ctx context.Context, parentID string, fromStep int, modifiedInput, modifiedEnv *JSON) (*ForkResult, error) {
	return r.forkSvc.Fork(ctx, parentID, fromStep, modifiedInput, modifiedEnv)
}

// RunRubric implements run_rubric(store, trace_id, preset_name) -> Verdict.
func (r *Recorder) RunRubric(ctx context.Context, traceID, presetName string) (*Verdict, error) {
	return r.rubricSvc.RunPreset(ctx, traceID, presetName)
}

// RunCustomRubric implements run_custom_rubric(store, trace_id, Rubric) -> Verdict.
func (r *Recorder) RunCustomRubric(ctx context.Context, traceID string, rub CustomRubric) (*Verdict, error) {
	return r.rubricSvc.RunCustom(ctx, traceID, rub)
}

// RunJudge implements run_judge(store, trace_id, preset_name, JudgeOpts)
// -> Verdict (async: the judge call is the only suspending operation in
// the core, spec.md §5).
func (r *Recorder) RunJudge(ctx context.Context, traceID string, preset JudgePreset, lj LanguageJudge, opts JudgeOpts) (*Verdict, error) {
	svc := evaljudge.New(r.resolver, r.repo, lj)
	return svc.RunAiEval(ctx, traceID, preset, opts)
}

// EstimateJudgeCost implements estimate_judge_cost(trace, preset_names,
// model) -> {total_estimated_usd, breakdown}.
func (r *Recorder) EstimateJudgeCost(ctx context.Context, traceID string, presetNames []string, model string) (CostEstimate, error) {
	trace, err := r.resolver.Resolve(ctx, traceID)
	if err != nil {
		return CostEstimate{}, err
	}
	return evaljudge.EstimateCost(trace, presetNames, model), nil
}

// SummarizeTrace implements summarize_trace(trace, ?max_token_budget) ->
// {text, estimated_tokens}.
func (r *Recorder) SummarizeTrace(ctx context.Context, traceID string, maxTokenBudget int) (summarize.Summary, error) {
	trace, err := r.resolver.Resolve(ctx, traceID)
	if err != nil {
		return summarize.Summary{}, err
	}
	return summarize.Trace(trace, maxTokenBudget), nil
}

// AddPolicy implements add_policy(store, PolicyInput) -> Policy.
func (r *Recorder) AddPolicy(ctx context.Context, p Policy) (*Policy, error) {
	return r.repo.AddPolicy(ctx, p)
}

// ListPolicies implements list_policies(store) -> [Policy].
func (r *Recorder) ListPolicies(ctx context.Context) ([]Policy, error) {
	return r.repo.ListPolicies(ctx)
}

// RemovePolicy implements remove_policy(id_or_name).
func (r *Recorder) RemovePolicy(ctx context.Context, idOrName string) error {
	return r.repo.RemovePolicy(ctx, idOrName)
}

// TestPolicies implements test_policies(store, trace_id) -> [StepMatches].
func (r *Recorder) TestPolicies(ctx context.Context, traceID string) ([]StepMatches, error) {
	return r.guardSvc.TestPolicies(ctx, traceID)
}

// RubricRegistry exposes the built-in rubric presets by name.
func RubricRegistry() map[string]RubricPreset { return rubric.Registry() }

// JudgePresetRegistry exposes the built-in judge presets by name.
func JudgePresetRegistry() map[string]JudgePreset { return evaljudge.Registry() }

// ExtractJSON implements extractJson(text) (spec.md §4.7).
func ExtractJSON(text string) (map[string]any, error) { return evaljudge.ExtractJSON(text) }
