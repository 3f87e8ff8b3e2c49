// Package types defines the trace-recorder domain model: tagged sum types
// for the enumerations spec.md names, and the structs persisted by the
// store. Structured fields (Input, Output, Metadata, ...) are a generic
// JSON value so callers can round-trip arbitrary payloads; the store
// keeps them as JSON text for schema stability (spec.md §9).
package types

import "time"

// JSON is an opaque, already-valid JSON value stored as its serialized
// text. Using the raw text (rather than a decoded map) is what makes the
// diff engine's byte-equal comparison (spec.md §4.4) well defined.
type JSON string

// Empty reports whether the value is the zero value (no JSON stored).
func (j JSON) Empty() bool { return j == "" }

func (j JSON) String() string { return string(j) }

// Trigger enumerates how a trace's execution was initiated.
type Trigger string

const (
	TriggerManual      Trigger = "manual"
	TriggerUserMessage Trigger = "user_message"
	TriggerCron        Trigger = "cron"
	TriggerWebhook     Trigger = "webhook"
	TriggerAPI         Trigger = "api"
	TriggerEvent       Trigger = "event"
)

func (t Trigger) Valid() bool {
	switch t {
	case TriggerManual, TriggerUserMessage, TriggerCron, TriggerWebhook, TriggerAPI, TriggerEvent:
		return true
	}
	return false
}

// Status enumerates a trace's lifecycle state (spec.md §3, §4.9).
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusTimeout   Status = "timeout"
)

func (s Status) Valid() bool {
	switch s {
	case StatusRunning, StatusCompleted, StatusFailed, StatusTimeout:
		return true
	}
	return false
}

// Terminal reports whether the status accepts no further appendStep calls.
func (s Status) Terminal() bool { return s != StatusRunning }

// StepType enumerates the kind of action a step records.
type StepType string

const (
	StepThought    StepType = "thought"
	StepToolCall   StepType = "tool_call"
	StepLLMCall    StepType = "llm_call"
	StepRetrieval  StepType = "retrieval"
	StepOutput     StepType = "output"
	StepDecision   StepType = "decision"
	StepError      StepType = "error"
	StepGuardCheck StepType = "guard_check"
)

func (s StepType) Valid() bool {
	switch s {
	case StepThought, StepToolCall, StepLLMCall, StepRetrieval, StepOutput, StepDecision, StepError, StepGuardCheck:
		return true
	}
	return false
}

// EvaluatorType enumerates the family of evaluator that produced a verdict.
type EvaluatorType string

const (
	EvaluatorRubric      EvaluatorType = "rubric"
	EvaluatorLLMJudge    EvaluatorType = "llm_judge"
	EvaluatorPolicyCheck EvaluatorType = "policy_check"
)

func (e EvaluatorType) Valid() bool {
	switch e {
	case EvaluatorRubric, EvaluatorLLMJudge, EvaluatorPolicyCheck:
		return true
	}
	return false
}

// GuardAction enumerates what a matched guardrail policy instructs.
type GuardAction string

const (
	ActionAllow          GuardAction = "allow"
	ActionDeny           GuardAction = "deny"
	ActionWarn           GuardAction = "warn"
	ActionRequireReview  GuardAction = "require_review"
)

func (a GuardAction) Valid() bool {
	switch a {
	case ActionAllow, ActionDeny, ActionWarn, ActionRequireReview:
		return true
	}
	return false
}

// Totals holds the optional aggregate metrics a terminal trace carries.
type Totals struct {
	DurationMS *int64
	Tokens     *int64
	CostUSD    *float64
}

// Trace is one recorded agent execution (spec.md §3).
type Trace struct {
	ID             string
	AgentName      string
	AgentVersion   string
	Trigger        Trigger
	Status         Status
	Input          JSON
	Output         JSON
	StartedAt      time.Time
	EndedAt        *time.Time
	Totals         Totals
	Error          string
	Tags           []string
	Metadata       JSON
	ParentTraceID  string
	ForkedFromStep *int
	CreatedAt      time.Time
}

// Step is one atomic action within a trace.
type Step struct {
	ID          string
	TraceID     string
	StepNumber  int
	StepType    StepType
	Name        string
	Input       JSON
	Output      JSON
	StartedAt   time.Time
	EndedAt     *time.Time
	DurationMS  *int64
	TokensUsed  *int64
	Model       string
	Error       string
	Metadata    JSON
}

// Snapshot is frozen auxiliary state attached to a step.
type Snapshot struct {
	ID             string
	StepID         string
	ContextWindow  JSON
	Environment    JSON
	ToolState      JSON
	TokenCount     int64
}

// Verdict is one evaluation result attached to a trace.
type Verdict struct {
	ID            string
	TraceID       string
	EvaluatorType EvaluatorType
	EvaluatorName string
	Score         float64
	Passed        bool
	Details       JSON
	EvaluatedAt   time.Time
}

// Policy is a named guardrail rule.
type Policy struct {
	ID              string
	Name            string
	Description     string
	Action          GuardAction
	Priority        int
	Enabled         bool
	MatchPattern    JSON
	ActionParams    JSON
	Tags            []string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ResolvedTrace is a trace together with its steps and verdicts, the
// composite view the resolver (spec.md §4.9) and every downstream
// consumer (diff, fork, evaluator, guardrail) operates over.
type ResolvedTrace struct {
	Trace    Trace
	Steps    []Step
	Verdicts []Verdict
}

// StepByNumber returns the step with the given step_number, or nil.
func (r *ResolvedTrace) StepByNumber(n int) *Step {
	for i := range r.Steps {
		if r.Steps[i].StepNumber == n {
			return &r.Steps[i]
		}
	}
	return nil
}

// MaxStepNumber returns the highest step_number present, or 0 if there are
// no steps.
func (r *ResolvedTrace) MaxStepNumber() int {
	max := 0
	for _, s := range r.Steps {
		if s.StepNumber > max {
			max = s.StepNumber
		}
	}
	return max
}
