package store

// schemaV1 is the version-1 schema (spec.md §4.1). Structured columns
// (input, output, metadata, tags, context_window, environment, tool_state,
// details, match_pattern, action_params) hold JSON text; tags and other
// ordered-sequence columns hold JSON arrays.
const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL,
	applied_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS agent_traces (
	id TEXT PRIMARY KEY,
	agent_name TEXT NOT NULL,
	agent_version TEXT NOT NULL DEFAULT '',
	trigger TEXT NOT NULL CHECK (trigger IN ('manual','user_message','cron','webhook','api','event')),
	status TEXT NOT NULL CHECK (status IN ('running','completed','failed','timeout')),
	input TEXT NOT NULL DEFAULT '{}',
	output TEXT,
	started_at TEXT NOT NULL,
	ended_at TEXT,
	total_duration_ms INTEGER,
	total_tokens INTEGER,
	total_cost_usd REAL,
	error TEXT NOT NULL DEFAULT '',
	tags TEXT NOT NULL DEFAULT '[]',
	metadata TEXT NOT NULL DEFAULT '{}',
	parent_trace_id TEXT REFERENCES agent_traces(id) ON DELETE SET NULL,
	forked_from_step INTEGER,
	created_at TEXT NOT NULL,
	CHECK ((parent_trace_id IS NULL) = (forked_from_step IS NULL)),
	CHECK (total_duration_ms IS NULL OR total_duration_ms >= 0),
	CHECK (total_tokens IS NULL OR total_tokens >= 0),
	CHECK (total_cost_usd IS NULL OR total_cost_usd >= 0)
);

CREATE INDEX IF NOT EXISTS idx_agent_traces_status ON agent_traces(status);
CREATE INDEX IF NOT EXISTS idx_agent_traces_agent_name ON agent_traces(agent_name);
CREATE INDEX IF NOT EXISTS idx_agent_traces_started_at ON agent_traces(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_agent_traces_parent ON agent_traces(parent_trace_id);

CREATE TABLE IF NOT EXISTS agent_trace_steps (
	id TEXT PRIMARY KEY,
	trace_id TEXT NOT NULL REFERENCES agent_traces(id) ON DELETE CASCADE,
	step_number INTEGER NOT NULL CHECK (step_number >= 1),
	step_type TEXT NOT NULL CHECK (step_type IN ('thought','tool_call','llm_call','retrieval','output','decision','error','guard_check')),
	name TEXT NOT NULL,
	input TEXT NOT NULL DEFAULT '{}',
	output TEXT,
	started_at TEXT NOT NULL,
	ended_at TEXT,
	duration_ms INTEGER,
	tokens_used INTEGER,
	model TEXT NOT NULL DEFAULT '',
	error TEXT NOT NULL DEFAULT '',
	metadata TEXT NOT NULL DEFAULT '{}',
	UNIQUE (trace_id, step_number)
);

CREATE INDEX IF NOT EXISTS idx_trace_steps_trace_number ON agent_trace_steps(trace_id, step_number);
CREATE INDEX IF NOT EXISTS idx_trace_steps_trace_type ON agent_trace_steps(trace_id, step_type);

CREATE TABLE IF NOT EXISTS agent_trace_snapshots (
	id TEXT PRIMARY KEY,
	step_id TEXT NOT NULL UNIQUE REFERENCES agent_trace_steps(id) ON DELETE CASCADE,
	context_window TEXT NOT NULL DEFAULT '{}',
	environment TEXT NOT NULL DEFAULT '{}',
	tool_state TEXT NOT NULL DEFAULT '{}',
	token_count INTEGER NOT NULL DEFAULT 0 CHECK (token_count >= 0)
);

CREATE INDEX IF NOT EXISTS idx_trace_snapshots_step ON agent_trace_snapshots(step_id);

CREATE TABLE IF NOT EXISTS agent_trace_evals (
	id TEXT PRIMARY KEY,
	trace_id TEXT NOT NULL REFERENCES agent_traces(id) ON DELETE CASCADE,
	evaluator_type TEXT NOT NULL CHECK (evaluator_type IN ('rubric','llm_judge','policy_check')),
	evaluator_name TEXT NOT NULL,
	score REAL NOT NULL CHECK (score >= 0 AND score <= 1),
	passed INTEGER NOT NULL CHECK (passed IN (0,1)),
	details TEXT NOT NULL DEFAULT '{}',
	evaluated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trace_evals_trace ON agent_trace_evals(trace_id);
CREATE INDEX IF NOT EXISTS idx_trace_evals_evaluated_at ON agent_trace_evals(evaluated_at DESC);

CREATE TABLE IF NOT EXISTS guardrail_policies (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	description TEXT NOT NULL DEFAULT '',
	action TEXT NOT NULL CHECK (action IN ('allow','deny','warn','require_review')),
	priority INTEGER NOT NULL DEFAULT 0,
	enabled INTEGER NOT NULL DEFAULT 1 CHECK (enabled IN (0,1)),
	match_pattern TEXT NOT NULL DEFAULT '{}',
	action_params TEXT NOT NULL DEFAULT '{}',
	tags TEXT NOT NULL DEFAULT '[]',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_guardrail_policies_action ON guardrail_policies(action);
CREATE INDEX IF NOT EXISTS idx_guardrail_policies_enabled ON guardrail_policies(enabled);
`
