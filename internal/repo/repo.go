// Package repo implements the trace repository (spec.md §4.3): the sole
// writer of traces, steps, snapshots, and evaluation verdicts, and the
// read paths (getTrace, listTraces, getStepSnapshot) everything else is
// built on. Every multi-row write runs inside one store.DoTx.
package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/agent-replay/tracecore/internal/apperr"
	"github.com/agent-replay/tracecore/internal/idmint"
	"github.com/agent-replay/tracecore/internal/queryfilter"
	"github.com/agent-replay/tracecore/internal/store"
	"github.com/agent-replay/tracecore/internal/types"
)

// Repository is the single writer over the embedded store.
type Repository struct {
	st *store.Store
}

// New wraps an open Store.
func New(st *store.Store) *Repository { return &Repository{st: st} }

// Logger exposes the underlying store's logger, so components built on
// top of the repository (guardrail, evaluators) log through the same
// sink without each needing their own Store handle.
func (r *Repository) Logger() *slog.Logger { return r.st.Logger() }

// ---- ingest ----

// IngestTrace resolves defaults, validates, and inserts a trace and its
// steps/snapshots inside one transaction (spec.md §4.3).
func (r *Repository) IngestTrace(ctx context.Context, in TraceInput) (*types.Trace, error) {
	if in.Trigger == "" {
		in.Trigger = types.TriggerManual
	}
	if !in.HasStatus {
		if in.EndedAt != nil {
			in.Status = types.StatusCompleted
		} else {
			in.Status = types.StatusRunning
		}
		in.HasStatus = true
	}
	if in.Tags == nil {
		in.Tags = []string{}
	}
	if in.Input == "" {
		in.Input = "{}"
	}
	if in.Metadata == "" {
		in.Metadata = "{}"
	}

	if err := validateTrace(&in,
		requireAgentName(),
		requireValidTrigger(),
		requireValidStatus(),
		requireNonNegativeTotals(),
		requireForkLinkageConsistent(),
		requireValidSteps(),
	); err != nil {
		return nil, err
	}

	id := idmint.New(idmint.Trace)
	now := store.NowISO()
	startedAt := now
	if in.HasStartedAt {
		startedAt = store.FormatISO(in.StartedAt)
	}

	var endedAt sql.NullString
	if in.EndedAt != nil {
		endedAt = sql.NullString{String: store.FormatISO(*in.EndedAt), Valid: true}
	}

	err := r.st.DoTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO agent_traces (
				id, agent_name, agent_version, trigger, status, input, output,
				started_at, ended_at, total_duration_ms, total_tokens, total_cost_usd,
				error, tags, metadata, parent_trace_id, forked_from_step, created_at
			) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			id, in.AgentName, in.AgentVersion, string(in.Trigger), string(in.Status),
			string(in.Input), nullableJSON(in.Output), startedAt, endedAt,
			in.Totals.DurationMS, in.Totals.Tokens, in.Totals.CostUSD,
			in.Error, marshalTags(in.Tags), string(in.Metadata),
			nullString(in.ParentTraceID), in.ForkedFromStep, now,
		)
		if err != nil {
			return store.TranslateWriteError(err)
		}

		for _, s := range in.Steps {
			if err := insertStep(ctx, tx, id, s); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		r.st.Logger().Error("ingest_trace", "trace_id", id, "outcome", "error", "err", err)
		return nil, err
	}
	r.st.Logger().Info("ingest_trace", "trace_id", id, "outcome", "ok", "steps", len(in.Steps))
	return r.getTraceRow(ctx, id)
}

func insertStep(ctx context.Context, tx *sql.Tx, traceID string, s StepInput) error {
	stepID := idmint.New(idmint.Step)
	startedAt := store.NowISO()
	if !s.StartedAt.IsZero() {
		startedAt = store.FormatISO(s.StartedAt)
	}
	var endedAt sql.NullString
	if s.EndedAt != nil {
		endedAt = sql.NullString{String: store.FormatISO(*s.EndedAt), Valid: true}
	}
	input := s.Input
	if input == "" {
		input = "{}"
	}
	metadata := s.Metadata
	if metadata == "" {
		metadata = "{}"
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO agent_trace_steps (
			id, trace_id, step_number, step_type, name, input, output,
			started_at, ended_at, duration_ms, tokens_used, model, error, metadata
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		stepID, traceID, s.StepNumber, string(s.StepType), s.Name,
		string(input), nullableJSON(s.Output), startedAt, endedAt,
		s.DurationMS, s.TokensUsed, s.Model, s.Error, string(metadata),
	)
	if err != nil {
		return store.TranslateWriteError(err)
	}

	if s.Snapshot != nil {
		snapID := idmint.New(idmint.Snapshot)
		ctxWindow := s.Snapshot.ContextWindow
		if ctxWindow == "" {
			ctxWindow = "{}"
		}
		env := s.Snapshot.Environment
		if env == "" {
			env = "{}"
		}
		toolState := s.Snapshot.ToolState
		if toolState == "" {
			toolState = "{}"
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO agent_trace_snapshots (id, step_id, context_window, environment, tool_state, token_count)
			VALUES (?,?,?,?,?,?)`,
			snapID, stepID, string(ctxWindow), string(env), string(toolState), s.Snapshot.TokenCount,
		)
		if err != nil {
			return store.TranslateWriteError(err)
		}
	}
	return nil
}

// ---- append ----

// AppendStep inserts a single step (and optional snapshot) onto an
// existing running trace (spec.md §4.3).
func (r *Repository) AppendStep(ctx context.Context, traceID string, s StepInput) (*types.Step, error) {
	if err := validateStepShape(s); err != nil {
		return nil, err
	}

	err := r.st.DoTx(ctx, func(tx *sql.Tx) error {
		var status string
		err := tx.QueryRowContext(ctx, `SELECT status FROM agent_traces WHERE id = ?`, traceID).Scan(&status)
		if err != nil {
			if store.IsNoRows(err) {
				return apperr.NotFoundf("trace %s not found", traceID)
			}
			return apperr.Wrap(apperr.Server, err, "look up trace")
		}
		if types.Status(status) != types.StatusRunning {
			return apperr.New(apperr.InvalidState, "trace %s is %s, not running", traceID, status)
		}
		return insertStep(ctx, tx, traceID, s)
	})
	if err != nil {
		r.st.Logger().Error("append_step", "trace_id", traceID, "outcome", "error", "err", err)
		return nil, err
	}
	r.st.Logger().Info("append_step", "trace_id", traceID, "outcome", "ok", "step_number", s.StepNumber)
	return r.getStepRow(ctx, traceID, s.StepNumber)
}

// ---- reads ----

// GetTrace resolves id_or_prefix (exact match, falling back to a unique
// `id LIKE prefix%` match) and loads steps (ordered by step_number) and
// verdicts (ordered by evaluated_at DESC). Returns nil, nil if not found.
func (r *Repository) GetTrace(ctx context.Context, idOrPrefix string) (*types.ResolvedTrace, error) {
	id, err := r.resolveID(ctx, idOrPrefix)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, nil
	}
	trace, err := r.getTraceRow(ctx, id)
	if err != nil {
		return nil, err
	}
	steps, err := r.listSteps(ctx, id)
	if err != nil {
		return nil, err
	}
	verdicts, err := r.listVerdicts(ctx, id)
	if err != nil {
		return nil, err
	}
	return &types.ResolvedTrace{Trace: *trace, Steps: steps, Verdicts: verdicts}, nil
}

func (r *Repository) resolveID(ctx context.Context, idOrPrefix string) (string, error) {
	var id string
	err := r.st.QueryDB().QueryRowContext(ctx, `SELECT id FROM agent_traces WHERE id = ?`, idOrPrefix).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !store.IsNoRows(err) {
		return "", apperr.Wrap(apperr.Server, err, "look up trace by id")
	}

	rows, err := r.st.QueryDB().QueryContext(ctx, `SELECT id FROM agent_traces WHERE id LIKE ? LIMIT 2`, idOrPrefix+"%")
	if err != nil {
		return "", apperr.Wrap(apperr.Server, err, "look up trace by prefix")
	}
	defer rows.Close()

	var matches []string
	for rows.Next() {
		var candidate string
		if err := rows.Scan(&candidate); err != nil {
			return "", apperr.Wrap(apperr.Server, err, "scan prefix match")
		}
		matches = append(matches, candidate)
	}
	if len(matches) == 0 {
		return "", nil
	}
	// Ambiguous prefixes resolve to nothing rather than guessing; callers
	// needing a unique match should supply enough of the id.
	if len(matches) > 1 {
		return "", nil
	}
	return matches[0], nil
}

func (r *Repository) getTraceRow(ctx context.Context, id string) (*types.Trace, error) {
	row := r.st.QueryDB().QueryRowContext(ctx, `
		SELECT id, agent_name, agent_version, trigger, status, input, output,
			started_at, ended_at, total_duration_ms, total_tokens, total_cost_usd,
			error, tags, metadata, parent_trace_id, forked_from_step, created_at
		FROM agent_traces WHERE id = ?`, id)
	return scanTrace(row)
}

func scanTrace(row *sql.Row) (*types.Trace, error) {
	var t types.Trace
	var agentVersion, trigger, status, output, errStr, tagsJSON, parentID sql.NullString
	var endedAt, createdAt, startedAt sql.NullString
	var durationMS, tokens, forkedFromStep sql.NullInt64
	var costUSD sql.NullFloat64
	var input, metadata string

	err := row.Scan(&t.ID, &t.AgentName, &agentVersion, &trigger, &status, &input, &output,
		&startedAt, &endedAt, &durationMS, &tokens, &costUSD,
		&errStr, &tagsJSON, &metadata, &parentID, &forkedFromStep, &createdAt)
	if err != nil {
		if store.IsNoRows(err) {
			return nil, apperr.NotFoundf("trace not found")
		}
		return nil, apperr.Wrap(apperr.Server, err, "scan trace row")
	}

	t.AgentVersion = agentVersion.String
	t.Trigger = types.Trigger(trigger.String)
	t.Status = types.Status(status.String)
	t.Input = types.JSON(input)
	if output.Valid {
		t.Output = types.JSON(output.String)
	}
	if st, perr := store.ParseISO(startedAt.String); perr == nil {
		t.StartedAt = st
	}
	if endedAt.Valid {
		if et, perr := store.ParseISO(endedAt.String); perr == nil {
			t.EndedAt = &et
		}
	}
	if durationMS.Valid {
		v := durationMS.Int64
		t.Totals.DurationMS = &v
	}
	if tokens.Valid {
		v := tokens.Int64
		t.Totals.Tokens = &v
	}
	if costUSD.Valid {
		v := costUSD.Float64
		t.Totals.CostUSD = &v
	}
	t.Error = errStr.String
	t.Tags = unmarshalTags(tagsJSON.String)
	t.Metadata = types.JSON(metadata)
	t.ParentTraceID = parentID.String
	if forkedFromStep.Valid {
		v := int(forkedFromStep.Int64)
		t.ForkedFromStep = &v
	}
	if ct, perr := store.ParseISO(createdAt.String); perr == nil {
		t.CreatedAt = ct
	}
	return &t, nil
}

func (r *Repository) listSteps(ctx context.Context, traceID string) ([]types.Step, error) {
	rows, err := r.st.QueryDB().QueryContext(ctx, `
		SELECT id, trace_id, step_number, step_type, name, input, output,
			started_at, ended_at, duration_ms, tokens_used, model, error, metadata
		FROM agent_trace_steps WHERE trace_id = ? ORDER BY step_number ASC`, traceID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Server, err, "list steps")
	}
	defer rows.Close()

	var steps []types.Step
	for rows.Next() {
		s, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		steps = append(steps, s)
	}
	return steps, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStep(rs rowScanner) (types.Step, error) {
	var s types.Step
	var output, model, errStr sql.NullString
	var endedAt sql.NullString
	var durationMS, tokensUsed sql.NullInt64
	var startedAt, input, metadata string

	err := rs.Scan(&s.ID, &s.TraceID, &s.StepNumber, &s.StepType, &s.Name, &input, &output,
		&startedAt, &endedAt, &durationMS, &tokensUsed, &model, &errStr, &metadata)
	if err != nil {
		return s, apperr.Wrap(apperr.Server, err, "scan step row")
	}
	s.Input = types.JSON(input)
	if output.Valid {
		s.Output = types.JSON(output.String)
	}
	if st, perr := store.ParseISO(startedAt); perr == nil {
		s.StartedAt = st
	}
	if endedAt.Valid {
		if et, perr := store.ParseISO(endedAt.String); perr == nil {
			s.EndedAt = &et
		}
	}
	if durationMS.Valid {
		v := durationMS.Int64
		s.DurationMS = &v
	}
	if tokensUsed.Valid {
		v := tokensUsed.Int64
		s.TokensUsed = &v
	}
	s.Model = model.String
	s.Error = errStr.String
	s.Metadata = types.JSON(metadata)
	return s, nil
}

func (r *Repository) getStepRow(ctx context.Context, traceID string, stepNumber int) (*types.Step, error) {
	row := r.st.QueryDB().QueryRowContext(ctx, `
		SELECT id, trace_id, step_number, step_type, name, input, output,
			started_at, ended_at, duration_ms, tokens_used, model, error, metadata
		FROM agent_trace_steps WHERE trace_id = ? AND step_number = ?`, traceID, stepNumber)
	s, err := scanStep(row)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Repository) listVerdicts(ctx context.Context, traceID string) ([]types.Verdict, error) {
	rows, err := r.st.QueryDB().QueryContext(ctx, `
		SELECT id, trace_id, evaluator_type, evaluator_name, score, passed, details, evaluated_at
		FROM agent_trace_evals WHERE trace_id = ? ORDER BY evaluated_at DESC`, traceID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Server, err, "list verdicts")
	}
	defer rows.Close()

	var out []types.Verdict
	for rows.Next() {
		var v types.Verdict
		var passed int
		var details, evaluatedAt string
		if err := rows.Scan(&v.ID, &v.TraceID, &v.EvaluatorType, &v.EvaluatorName, &v.Score, &passed, &details, &evaluatedAt); err != nil {
			return nil, apperr.Wrap(apperr.Server, err, "scan verdict row")
		}
		v.Passed = passed != 0
		v.Details = types.JSON(details)
		if ts, perr := store.ParseISO(evaluatedAt); perr == nil {
			v.EvaluatedAt = ts
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// GetStepSnapshot returns the snapshot for trace_id/step_number, or nil if
// the step has none.
func (r *Repository) GetStepSnapshot(ctx context.Context, traceID string, stepNumber int) (*types.Snapshot, error) {
	row := r.st.QueryDB().QueryRowContext(ctx, `
		SELECT s.id, s.step_id, s.context_window, s.environment, s.tool_state, s.token_count
		FROM agent_trace_snapshots s
		JOIN agent_trace_steps st ON st.id = s.step_id
		WHERE st.trace_id = ? AND st.step_number = ?`, traceID, stepNumber)

	var snap types.Snapshot
	var ctxWindow, env, toolState string
	err := row.Scan(&snap.ID, &snap.StepID, &ctxWindow, &env, &toolState, &snap.TokenCount)
	if err != nil {
		if store.IsNoRows(err) {
			return nil, nil
		}
		return nil, apperr.Wrap(apperr.Server, err, "scan snapshot row")
	}
	snap.ContextWindow = types.JSON(ctxWindow)
	snap.Environment = types.JSON(env)
	snap.ToolState = types.JSON(toolState)
	return &snap, nil
}

// ---- list ----

var sortColumns = map[string]string{
	"started_at": "started_at",
	"duration":   "total_duration_ms",
	"tokens":     "total_tokens",
	"cost":       "total_cost_usd",
	"agent_name": "agent_name",
}

// ListTraces applies Filter and returns the paginated page plus the
// unpaginated total count (spec.md §4.3).
func (r *Repository) ListTraces(ctx context.Context, f Filter) ([]types.Trace, int, error) {
	where := ""
	var args []any
	add := func(clause string, arg any) {
		if where == "" {
			where = "WHERE " + clause
		} else {
			where += " AND " + clause
		}
		args = append(args, arg)
	}
	if f.Status != nil {
		add("status = ?", string(*f.Status))
	}
	if f.AgentName != "" {
		add("agent_name LIKE ?", "%"+f.AgentName+"%")
	}
	if f.Tag != "" {
		add("tags LIKE ?", "%\""+f.Tag+"\"%")
	}
	if f.Since != "" {
		since, err := queryfilter.ParseSince(f.Since)
		if err != nil {
			return nil, 0, apperr.Field("since", "%s", err)
		}
		add("started_at >= ?", store.FormatISO(since))
	}

	var total int
	countQuery := "SELECT count(*) FROM agent_traces " + where
	if err := r.st.QueryDB().QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, apperr.Wrap(apperr.Server, err, "count traces")
	}

	sortCol := "started_at"
	if f.SortSet {
		col, ok := sortColumns[f.SortBy]
		if !ok {
			return nil, 0, apperr.Field("sort", "unknown sort key %q", f.SortBy)
		}
		sortCol = col
	}
	dir := "DESC"
	if f.SortSet && !f.SortDesc {
		dir = "ASC"
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 25
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`
		SELECT id, agent_name, agent_version, trigger, status, input, output,
			started_at, ended_at, total_duration_ms, total_tokens, total_cost_usd,
			error, tags, metadata, parent_trace_id, forked_from_step, created_at
		FROM agent_traces %s ORDER BY %s %s LIMIT ? OFFSET ?`, where, sortCol, dir)
	queryArgs := append(append([]any{}, args...), limit, offset)

	rows, err := r.st.QueryDB().QueryContext(ctx, query, queryArgs...)
	if err != nil {
		return nil, 0, apperr.Wrap(apperr.Server, err, "list traces")
	}
	defer rows.Close()

	var items []types.Trace
	for rows.Next() {
		t, err := scanTraceRows(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, t)
	}
	return items, total, rows.Err()
}

func scanTraceRows(rows *sql.Rows) (types.Trace, error) {
	var t types.Trace
	var agentVersion, trigger, status, output, errStr, tagsJSON, parentID sql.NullString
	var endedAt, createdAt, startedAt sql.NullString
	var durationMS, tokens, forkedFromStep sql.NullInt64
	var costUSD sql.NullFloat64
	var input, metadata string

	err := rows.Scan(&t.ID, &t.AgentName, &agentVersion, &trigger, &status, &input, &output,
		&startedAt, &endedAt, &durationMS, &tokens, &costUSD,
		&errStr, &tagsJSON, &metadata, &parentID, &forkedFromStep, &createdAt)
	if err != nil {
		return t, apperr.Wrap(apperr.Server, err, "scan trace row")
	}
	t.AgentVersion = agentVersion.String
	t.Trigger = types.Trigger(trigger.String)
	t.Status = types.Status(status.String)
	t.Input = types.JSON(input)
	if output.Valid {
		t.Output = types.JSON(output.String)
	}
	if st, perr := store.ParseISO(startedAt.String); perr == nil {
		t.StartedAt = st
	}
	if endedAt.Valid {
		if et, perr := store.ParseISO(endedAt.String); perr == nil {
			t.EndedAt = &et
		}
	}
	if durationMS.Valid {
		v := durationMS.Int64
		t.Totals.DurationMS = &v
	}
	if tokens.Valid {
		v := tokens.Int64
		t.Totals.Tokens = &v
	}
	if costUSD.Valid {
		v := costUSD.Float64
		t.Totals.CostUSD = &v
	}
	t.Error = errStr.String
	t.Tags = unmarshalTags(tagsJSON.String)
	t.Metadata = types.JSON(metadata)
	t.ParentTraceID = parentID.String
	if forkedFromStep.Valid {
		v := int(forkedFromStep.Int64)
		t.ForkedFromStep = &v
	}
	if ct, perr := store.ParseISO(createdAt.String); perr == nil {
		t.CreatedAt = ct
	}
	return t, nil
}

// ---- update / delete ----

// UpdateTrace writes only the fields set in patch. An empty patch is a
// no-op returning the current row.
func (r *Repository) UpdateTrace(ctx context.Context, id string, patch Patch) (*types.Trace, error) {
	sets := ""
	var args []any
	add := func(col string, val any) {
		if sets != "" {
			sets += ", "
		}
		sets += col + " = ?"
		args = append(args, val)
	}

	if patch.Status != nil {
		if !patch.Status.Valid() {
			return nil, apperr.Field("status", "invalid value %q", *patch.Status)
		}
		add("status", string(*patch.Status))
	}
	if patch.Output != nil {
		add("output", string(*patch.Output))
	}
	if patch.EndedAt != nil {
		add("ended_at", store.FormatISO(*patch.EndedAt))
	}
	if patch.Totals != nil {
		add("total_duration_ms", patch.Totals.DurationMS)
		add("total_tokens", patch.Totals.Tokens)
		add("total_cost_usd", patch.Totals.CostUSD)
	}
	if patch.Error != nil {
		add("error", *patch.Error)
	}
	if patch.Tags != nil {
		add("tags", marshalTags(*patch.Tags))
	}
	if patch.Metadata != nil {
		add("metadata", string(*patch.Metadata))
	}

	if sets == "" {
		return r.getTraceRow(ctx, id)
	}

	err := r.st.DoTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "UPDATE agent_traces SET "+sets+" WHERE id = ?", append(args, id)...)
		if err != nil {
			return store.TranslateWriteError(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return apperr.Wrap(apperr.Server, err, "read rows affected")
		}
		if n == 0 {
			return apperr.NotFoundf("trace %s not found", id)
		}
		return nil
	})
	if err != nil {
		r.st.Logger().Error("update_trace", "trace_id", id, "outcome", "error", "err", err)
		return nil, err
	}
	r.st.Logger().Info("update_trace", "trace_id", id, "outcome", "ok")
	return r.getTraceRow(ctx, id)
}

// DeleteTrace removes the trace; cascades remove its steps (and their
// snapshots) and verdicts.
func (r *Repository) DeleteTrace(ctx context.Context, id string) error {
	err := r.st.DoTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM agent_traces WHERE id = ?`, id)
		if err != nil {
			return store.TranslateWriteError(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return apperr.Wrap(apperr.Server, err, "read rows affected")
		}
		if n == 0 {
			return apperr.NotFoundf("trace %s not found", id)
		}
		return nil
	})
	if err != nil {
		r.st.Logger().Error("delete_trace", "trace_id", id, "outcome", "error", "err", err)
		return err
	}
	r.st.Logger().Info("delete_trace", "trace_id", id, "outcome", "ok")
	return nil
}

// ---- evaluations ----

// CreateEval stores one evaluation verdict for a trace.
func (r *Repository) CreateEval(ctx context.Context, traceID string, in EvalInput) (*types.Verdict, error) {
	if !in.EvaluatorType.Valid() {
		return nil, apperr.Field("evaluator_type", "invalid value %q", in.EvaluatorType)
	}
	if in.EvaluatorName == "" {
		return nil, apperr.Field("evaluator_name", "must not be empty")
	}
	score := in.Score
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	details := in.Details
	if details == "" {
		details = "{}"
	}

	id := idmint.New(idmint.Evaluation)
	now := store.NowISO()
	passed := 0
	if in.Passed {
		passed = 1
	}

	err := r.st.DoTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM agent_traces WHERE id = ?`, traceID).Scan(&exists); err != nil {
			return apperr.Wrap(apperr.Server, err, "look up trace")
		}
		if exists == 0 {
			return apperr.NotFoundf("trace %s not found", traceID)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO agent_trace_evals (id, trace_id, evaluator_type, evaluator_name, score, passed, details, evaluated_at)
			VALUES (?,?,?,?,?,?,?,?)`,
			id, traceID, string(in.EvaluatorType), in.EvaluatorName, score, passed, string(details), now,
		)
		return store.TranslateWriteError(err)
	})
	if err != nil {
		r.st.Logger().Error("create_eval", "trace_id", traceID, "outcome", "error", "err", err)
		return nil, err
	}
	r.st.Logger().Info("create_eval", "trace_id", traceID, "outcome", "ok",
		"evaluator_type", string(in.EvaluatorType), "evaluator_name", in.EvaluatorName, "score", score)
	evaluatedAt, _ := store.ParseISO(now)
	return &types.Verdict{
		ID: id, TraceID: traceID, EvaluatorType: in.EvaluatorType, EvaluatorName: in.EvaluatorName,
		Score: score, Passed: in.Passed, Details: types.JSON(details), EvaluatedAt: evaluatedAt,
	}, nil
}

// ---- policies ----

// AddPolicy inserts a new guardrail policy. Name must be globally unique;
// the match pattern must carry at least one matchable key, rejected here
// rather than silently matching nothing at read time (SPEC_FULL.md §C).
func (r *Repository) AddPolicy(ctx context.Context, p types.Policy) (*types.Policy, error) {
	if err := requireValidPolicy()(&p); err != nil {
		return nil, err
	}
	if isEmptyPattern(p.MatchPattern) {
		return nil, apperr.Field("match_pattern", "must specify at least one matchable key")
	}

	p.ID = idmint.New(idmint.Policy)
	now := store.NowISO()
	if p.MatchPattern == "" {
		p.MatchPattern = "{}"
	}
	if p.ActionParams == "" {
		p.ActionParams = "{}"
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}

	err := r.st.DoTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO guardrail_policies (id, name, description, action, priority, enabled, match_pattern, action_params, tags, created_at, updated_at)
			VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
			p.ID, p.Name, p.Description, string(p.Action), p.Priority, boolToInt(p.Enabled),
			string(p.MatchPattern), string(p.ActionParams), marshalTags(p.Tags), now, now,
		)
		return store.TranslateWriteError(err)
	})
	if err != nil {
		return nil, err
	}
	p.CreatedAt, _ = store.ParseISO(now)
	p.UpdatedAt = p.CreatedAt
	return &p, nil
}

func isEmptyPattern(j types.JSON) bool {
	if j == "" {
		return true
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(j), &m); err != nil {
		return true
	}
	return len(m) == 0
}

// ListPolicies returns every policy ordered by priority DESC.
func (r *Repository) ListPolicies(ctx context.Context) ([]types.Policy, error) {
	rows, err := r.st.QueryDB().QueryContext(ctx, `
		SELECT id, name, description, action, priority, enabled, match_pattern, action_params, tags, created_at, updated_at
		FROM guardrail_policies ORDER BY priority DESC`)
	if err != nil {
		return nil, apperr.Wrap(apperr.Server, err, "list policies")
	}
	defer rows.Close()

	var out []types.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListEnabledPolicies returns only enabled policies, ordered by priority
// DESC, for the guardrail matcher.
func (r *Repository) ListEnabledPolicies(ctx context.Context) ([]types.Policy, error) {
	rows, err := r.st.QueryDB().QueryContext(ctx, `
		SELECT id, name, description, action, priority, enabled, match_pattern, action_params, tags, created_at, updated_at
		FROM guardrail_policies WHERE enabled = 1 ORDER BY priority DESC`)
	if err != nil {
		return nil, apperr.Wrap(apperr.Server, err, "list enabled policies")
	}
	defer rows.Close()

	var out []types.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPolicy(rows *sql.Rows) (types.Policy, error) {
	var p types.Policy
	var enabled int
	var matchPattern, actionParams, tagsJSON, createdAt, updatedAt string
	err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Action, &p.Priority, &enabled,
		&matchPattern, &actionParams, &tagsJSON, &createdAt, &updatedAt)
	if err != nil {
		return p, apperr.Wrap(apperr.Server, err, "scan policy row")
	}
	p.Enabled = enabled != 0
	p.MatchPattern = types.JSON(matchPattern)
	p.ActionParams = types.JSON(actionParams)
	p.Tags = unmarshalTags(tagsJSON)
	p.CreatedAt, _ = store.ParseISO(createdAt)
	p.UpdatedAt, _ = store.ParseISO(updatedAt)
	return p, nil
}

// RemovePolicy deletes by id or, if idOrName doesn't match an id, by name.
func (r *Repository) RemovePolicy(ctx context.Context, idOrName string) error {
	return r.st.DoTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM guardrail_policies WHERE id = ? OR name = ?`, idOrName, idOrName)
		if err != nil {
			return store.TranslateWriteError(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return apperr.Wrap(apperr.Server, err, "read rows affected")
		}
		if n == 0 {
			return apperr.NotFoundf("policy %s not found", idOrName)
		}
		return nil
	})
}

// ---- helpers ----

func marshalTags(tags []string) string {
	if tags == nil {
		tags = []string{}
	}
	b, _ := json.Marshal(tags)
	return string(b)
}

func unmarshalTags(raw string) []string {
	if raw == "" {
		return []string{}
	}
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return []string{}
	}
	return tags
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullableJSON(j types.JSON) sql.NullString {
	if j == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: string(j), Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
