package repo

import (
	"time"

	"github.com/agent-replay/tracecore/internal/types"
)

// SnapshotInput is the caller-supplied shape of a step's optional snapshot.
type SnapshotInput struct {
	ContextWindow types.JSON
	Environment   types.JSON
	ToolState     types.JSON
	TokenCount    int64
}

// StepInput is the caller-supplied shape of one step, whether arriving as
// part of ingestTrace's ordered sequence or via appendStep.
type StepInput struct {
	StepNumber int
	StepType   types.StepType
	Name       string
	Input      types.JSON
	Output     types.JSON
	StartedAt  time.Time
	EndedAt    *time.Time
	DurationMS *int64
	TokensUsed *int64
	Model      string
	Error      string
	Metadata   types.JSON
	Snapshot   *SnapshotInput
}

// TraceInput is the caller-supplied shape of ingestTrace's argument.
type TraceInput struct {
	AgentName      string
	AgentVersion   string
	Trigger        types.Trigger
	Status         types.Status
	HasStatus      bool // whether Status was explicitly supplied
	Input          types.JSON
	Output         types.JSON
	StartedAt      time.Time
	HasStartedAt   bool
	EndedAt        *time.Time
	Totals         types.Totals
	Error          string
	Tags           []string
	Metadata       types.JSON
	ParentTraceID  string
	ForkedFromStep *int
	Steps          []StepInput
}

// Patch is a sparse set of trace fields to overwrite; only non-nil/true
// fields are written (spec.md §4.3, updateTrace).
type Patch struct {
	Status       *types.Status
	Output       *types.JSON
	EndedAt      *time.Time
	Totals       *types.Totals
	Error        *string
	Tags         *[]string
	Metadata     *types.JSON
}

// Filter is listTraces' optional query. The zero value matches everything.
// Since is a raw caller-supplied string (RFC3339 or a relative expression
// like "yesterday"), parsed by ListTraces through queryfilter.ParseSince so
// callers never need to do their own date parsing before filtering.
type Filter struct {
	Status    *types.Status
	AgentName string // substring match
	Tag       string // array-contains
	Since     string
	SortBy    string // "started_at" | "duration" | "tokens" | "cost" | "agent_name"
	SortDesc  bool
	SortSet   bool
	Limit     int
	Offset    int
}

// EvalInput is createEval's argument.
type EvalInput struct {
	EvaluatorType types.EvaluatorType
	EvaluatorName string
	Score         float64
	Passed        bool
	Details       types.JSON
}
