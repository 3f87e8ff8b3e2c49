// Package fork implements the transactional trace fork (spec.md §4.5):
// copy a parent trace's steps up to a chosen point into a fresh running
// trace, optionally overriding input or the fork-point snapshot's
// environment.
package fork

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/agent-replay/tracecore/internal/apperr"
	"github.com/agent-replay/tracecore/internal/idmint"
	"github.com/agent-replay/tracecore/internal/resolver"
	"github.com/agent-replay/tracecore/internal/store"
	"github.com/agent-replay/tracecore/internal/types"
)

// Service performs forks against the store, reading the parent through
// the resolver for its precondition checks.
type Service struct {
	st       *store.Store
	resolver *resolver.Resolver
}

// New builds a Service.
func New(st *store.Store, r *resolver.Resolver) *Service {
	return &Service{st: st, resolver: r}
}

// Result is forkTrace's return value.
type Result struct {
	OriginalTraceID string
	ForkedTraceID   string
	ForkedFromStep  int
	StepsCopied     int
}

// Fork copies parentID's steps (and snapshots) with step_number <=
// fromStep into a new trace, born running regardless of the parent's
// status. modifiedInput overrides the new trace's input if non-nil;
// modifiedEnv overrides only the environment field of the fork point's
// snapshot (spec.md §4.5, §9's asymmetry note).
func (s *Service) Fork(ctx context.Context, parentID string, fromStep int, modifiedInput *types.JSON, modifiedEnv *types.JSON) (*Result, error) {
	if fromStep < 1 {
		return nil, apperr.Field("from_step", "must be a positive integer, got %d", fromStep)
	}

	parent, err := s.resolver.Resolve(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if len(parent.Steps) == 0 {
		return nil, apperr.New(apperr.InvalidState, "trace %s has no steps to fork from", parent.Trace.ID)
	}
	maxStep := parent.MaxStepNumber()
	if fromStep > maxStep {
		return nil, apperr.New(apperr.InvalidState, "from_step %d exceeds parent's max step_number %d", fromStep, maxStep)
	}

	forkID := idmint.New(idmint.Trace)
	now := store.NowISO()

	input := parent.Trace.Input
	if modifiedInput != nil {
		input = *modifiedInput
	}

	metadata, err := forkMetadata(parent.Trace.ID, fromStep)
	if err != nil {
		return nil, apperr.Wrap(apperr.Server, err, "build fork metadata")
	}

	copied := 0

	err = s.st.DoTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO agent_traces (
				id, agent_name, agent_version, trigger, status, input, output,
				started_at, ended_at, total_duration_ms, total_tokens, total_cost_usd,
				error, tags, metadata, parent_trace_id, forked_from_step, created_at
			) VALUES (?,?,?,'manual','running',?,NULL,?,NULL,NULL,NULL,NULL,'',?,?,?,?,?)`,
			forkID, parent.Trace.AgentName, parent.Trace.AgentVersion, string(input),
			now, marshalTags(parent.Trace.Tags), metadata, parent.Trace.ID, fromStep, now,
		)
		if err != nil {
			return store.TranslateWriteError(err)
		}

		for _, step := range parent.Steps {
			if step.StepNumber > fromStep {
				continue
			}
			newStepID := idmint.New(idmint.Step)
			var endedAt sql.NullString
			if step.EndedAt != nil {
				endedAt = sql.NullString{String: store.FormatISO(*step.EndedAt), Valid: true}
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO agent_trace_steps (
					id, trace_id, step_number, step_type, name, input, output,
					started_at, ended_at, duration_ms, tokens_used, model, error, metadata
				) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
				newStepID, forkID, step.StepNumber, string(step.StepType), step.Name,
				string(step.Input), nullableJSON(step.Output), store.FormatISO(step.StartedAt), endedAt,
				step.DurationMS, step.TokensUsed, step.Model, step.Error, string(step.Metadata),
			)
			if err != nil {
				return store.TranslateWriteError(err)
			}
			copied++

			snap, err := parentSnapshot(ctx, tx, step.ID)
			if err != nil {
				return err
			}
			if snap == nil {
				continue
			}
			env := snap.Environment
			if step.StepNumber == fromStep && modifiedEnv != nil {
				env = *modifiedEnv
			}
			newSnapID := idmint.New(idmint.Snapshot)
			_, err = tx.ExecContext(ctx, `
				INSERT INTO agent_trace_snapshots (id, step_id, context_window, environment, tool_state, token_count)
				VALUES (?,?,?,?,?,?)`,
				newSnapID, newStepID, string(snap.ContextWindow), string(env), string(snap.ToolState), snap.TokenCount,
			)
			if err != nil {
				return store.TranslateWriteError(err)
			}
		}
		return nil
	})
	if err != nil {
		s.st.Logger().Error("fork_trace", "trace_id", parent.Trace.ID, "outcome", "error", "err", err)
		return nil, err
	}
	s.st.Logger().Info("fork_trace", "trace_id", parent.Trace.ID, "outcome", "ok",
		"forked_trace_id", forkID, "from_step", fromStep, "steps_copied", copied)

	return &Result{
		OriginalTraceID: parent.Trace.ID,
		ForkedTraceID:   forkID,
		ForkedFromStep:  fromStep,
		StepsCopied:     copied,
	}, nil
}

func parentSnapshot(ctx context.Context, tx *sql.Tx, stepID string) (*types.Snapshot, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT id, step_id, context_window, environment, tool_state, token_count
		FROM agent_trace_snapshots WHERE step_id = ?`, stepID)
	var snap types.Snapshot
	var ctxWindow, env, toolState string
	err := row.Scan(&snap.ID, &snap.StepID, &ctxWindow, &env, &toolState, &snap.TokenCount)
	if err != nil {
		if store.IsNoRows(err) {
			return nil, nil
		}
		return nil, apperr.Wrap(apperr.Server, err, "read parent snapshot")
	}
	snap.ContextWindow = types.JSON(ctxWindow)
	snap.Environment = types.JSON(env)
	snap.ToolState = types.JSON(toolState)
	return &snap, nil
}

func forkMetadata(parentID string, fromStep int) (string, error) {
	b, err := json.Marshal(map[string]any{
		"forked_from":    parentID,
		"forked_at_step": fromStep,
	})
	return string(b), err
}

func marshalTags(tags []string) string {
	if tags == nil {
		tags = []string{}
	}
	b, _ := json.Marshal(tags)
	return string(b)
}

func nullableJSON(j types.JSON) sql.NullString {
	if j == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: string(j), Valid: true}
}
