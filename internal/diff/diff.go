// Package diff implements the step-wise trace comparison (spec.md §4.4):
// align two traces' steps by position, report every field where they
// differ, and mark the first step at which they diverge.
package diff

import (
	"encoding/json"

	"github.com/agent-replay/tracecore/internal/types"
)

// StepDiff is one emitted mismatch.
type StepDiff struct {
	StepNumber int
	Field      string // "step_type" | "name" | "input" | "output" | "missing_left" | "missing_right"
	LeftValue  *string
	RightValue *string
}

// Diff is diffTraces' result.
type Diff struct {
	LeftStepCount  int
	RightStepCount int
	DivergenceStep *int
	Diffs          []StepDiff
}

// Canonical selects byte-equal (spec default) or re-serialised canonical
// JSON equality (SPEC_FULL.md's stricter variant) for input/output
// comparison.
type Canonical bool

const (
	ByteEqual      Canonical = false
	CanonicalEqual Canonical = true
)

// Compare aligns left and right by step_number across positions
// 0..max(len(left),len(right))-1 and emits a StepDiff for every mismatch,
// in iteration order (spec.md §4.4).
func Compare(left, right *types.ResolvedTrace, mode Canonical) Diff {
	leftSteps := sortedByNumber(left.Steps)
	rightSteps := sortedByNumber(right.Steps)

	result := Diff{LeftStepCount: len(leftSteps), RightStepCount: len(rightSteps)}

	max := len(leftSteps)
	if len(rightSteps) > max {
		max = len(rightSteps)
	}

	for i := 0; i < max; i++ {
		var l, r *types.Step
		if i < len(leftSteps) {
			l = &leftSteps[i]
		}
		if i < len(rightSteps) {
			r = &rightSteps[i]
		}

		switch {
		case l != nil && r != nil:
			result.Diffs = append(result.Diffs, compareStep(*l, *r, mode)...)
		case l != nil && r == nil:
			result.Diffs = append(result.Diffs, StepDiff{
				StepNumber: l.StepNumber, Field: "missing_right",
				LeftValue: ptr(l.Name), RightValue: nil,
			})
		case l == nil && r != nil:
			result.Diffs = append(result.Diffs, StepDiff{
				StepNumber: r.StepNumber, Field: "missing_left",
				LeftValue: nil, RightValue: ptr(r.Name),
			})
		}
	}

	if len(result.Diffs) > 0 {
		n := result.Diffs[0].StepNumber
		result.DivergenceStep = &n
	}
	return result
}

// compareStep checks the four fields in spec order so that same-step
// diffs preserve that order.
func compareStep(l, r types.Step, mode Canonical) []StepDiff {
	var out []StepDiff
	add := func(field, lv, rv string) {
		out = append(out, StepDiff{StepNumber: l.StepNumber, Field: field, LeftValue: ptr(lv), RightValue: ptr(rv)})
	}

	if l.StepType != r.StepType {
		add("step_type", string(l.StepType), string(r.StepType))
	}
	if l.Name != r.Name {
		add("name", l.Name, r.Name)
	}
	if !jsonEqual(l.Input.String(), r.Input.String(), mode) {
		add("input", l.Input.String(), r.Input.String())
	}
	if !jsonEqual(l.Output.String(), r.Output.String(), mode) {
		add("output", l.Output.String(), r.Output.String())
	}
	return out
}

func jsonEqual(l, r string, mode Canonical) bool {
	if l == r {
		return true
	}
	if mode == ByteEqual {
		return false
	}
	cl, lok := canonicalize(l)
	cr, rok := canonicalize(r)
	if !lok || !rok {
		return false
	}
	return cl == cr
}

// canonicalize re-marshals JSON text through decode/encode so object key
// order and whitespace stop mattering (SPEC_FULL.md's stricter diff
// variant, spec.md §9's open question). Invalid JSON fails closed (not
// canonicalizable, so byte comparison stands).
func canonicalize(s string) (string, bool) {
	if s == "" {
		return "", true
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return "", false
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", false
	}
	return string(b), true
}

func sortedByNumber(steps []types.Step) []types.Step {
	out := make([]types.Step, len(steps))
	copy(out, steps)
	// Steps are already loaded ordered by step_number ASC (repo.listSteps);
	// re-sort defensively since callers may hand diff a trace assembled
	// some other way.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].StepNumber < out[j-1].StepNumber; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func ptr(s string) *string { return &s }
