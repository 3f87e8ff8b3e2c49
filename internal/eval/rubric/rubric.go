// Package rubric implements the deterministic evaluator (spec.md §4.6.1):
// weighted-mean scoring over a fixed set of criteria, either one of the
// built-in presets or a caller-supplied custom rubric.
package rubric

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/agent-replay/tracecore/internal/types"
)

// Context is the read-only view a criterion's check function inspects.
type Context struct {
	Input  types.JSON
	Output types.JSON
	Steps  []types.Step
	Error  string
}

// CriterionResult is one criterion's scored outcome.
type CriterionResult struct {
	Score   float64
	Details string
}

// Criterion is one weighted check within a preset.
type Criterion struct {
	Name        string
	Description string
	Weight      float64
	Check       func(ctx Context) CriterionResult
}

// Preset is a named, fixed set of criteria with a pass/fail threshold.
type Preset struct {
	Name      string
	Threshold float64
	Criteria  []Criterion
}

// Result is one scored run of a preset or custom rubric.
type Result struct {
	Score   float64
	Passed  bool
	Details types.JSON
}

func newContext(trace *types.ResolvedTrace) Context {
	return Context{
		Input:  trace.Trace.Input,
		Output: trace.Trace.Output,
		Steps:  trace.Steps,
		Error:  trace.Trace.Error,
	}
}

// Run scores trace against preset and returns the weighted-mean result
// (spec.md §4.6.1's scoring algorithm).
func Run(preset Preset, trace *types.ResolvedTrace) Result {
	ctx := newContext(trace)

	type breakdownEntry struct {
		Score   float64 `json:"score"`
		Weight  float64 `json:"weight"`
		Details string  `json:"details"`
	}
	breakdown := make(map[string]breakdownEntry, len(preset.Criteria))

	var weightedSum, weightSum float64
	for _, c := range preset.Criteria {
		r := c.Check(ctx)
		breakdown[c.Name] = breakdownEntry{Score: round3(r.Score), Weight: c.Weight, Details: r.Details}
		weightedSum += r.Score * c.Weight
		weightSum += c.Weight
	}

	overall := 0.0
	if weightSum > 0 {
		overall = round3(weightedSum / weightSum)
	}

	detailsJSON, _ := json.Marshal(map[string]any{
		"preset":    preset.Name,
		"threshold": preset.Threshold,
		"criteria":  breakdown,
	})

	return Result{
		Score:   overall,
		Passed:  overall >= preset.Threshold,
		Details: types.JSON(detailsJSON),
	}
}

// CustomCriterion is one caller-supplied regex check (spec.md §4.6.1).
type CustomCriterion struct {
	Name     string
	Pattern  string
	Expected bool
	Weight   float64 // defaults to 1 if <= 0
}

// CustomRubric is a caller-supplied preset-shaped evaluator.
type CustomRubric struct {
	Name      string
	Threshold float64 // defaults to 0.7 if <= 0
	Criteria  []CustomCriterion
}

// RunCustom evaluates a CustomRubric against trace: each criterion's
// pattern is matched case-insensitively against
// JSON(input)+JSON(output)+sum(JSON(step.output)); malformed regex
// produces a 0-score criterion rather than an error (spec.md §9).
func RunCustom(rub CustomRubric, trace *types.ResolvedTrace) Result {
	threshold := rub.Threshold
	if threshold <= 0 {
		threshold = 0.7
	}

	haystack := haystackFor(trace)

	type breakdownEntry struct {
		Score   float64 `json:"score"`
		Weight  float64 `json:"weight"`
		Details string  `json:"details"`
	}
	breakdown := make(map[string]breakdownEntry, len(rub.Criteria))

	var weightedSum, weightSum float64
	for _, c := range rub.Criteria {
		weight := c.Weight
		if weight <= 0 {
			weight = 1
		}
		score, details := matchCustomCriterion(c, haystack)
		breakdown[c.Name] = breakdownEntry{Score: score, Weight: weight, Details: details}
		weightedSum += score * weight
		weightSum += weight
	}

	overall := 0.0
	if weightSum > 0 {
		overall = round3(weightedSum / weightSum)
	}

	detailsJSON, _ := json.Marshal(map[string]any{
		"rubric":    rub.Name,
		"threshold": threshold,
		"criteria":  breakdown,
	})

	return Result{
		Score:   overall,
		Passed:  overall >= threshold,
		Details: types.JSON(detailsJSON),
	}
}

func matchCustomCriterion(c CustomCriterion, haystack string) (float64, string) {
	re, err := regexp.Compile("(?i)" + c.Pattern)
	if err != nil {
		return 0, fmt.Sprintf("invalid pattern %q: %v", c.Pattern, err)
	}
	matches := re.MatchString(haystack)
	if matches == c.Expected {
		return 1.0, fmt.Sprintf("matches=%v, expected=%v", matches, c.Expected)
	}
	return 0.0, fmt.Sprintf("matches=%v, expected=%v", matches, c.Expected)
}

func haystackFor(trace *types.ResolvedTrace) string {
	var b strings.Builder
	b.WriteString(trace.Trace.Input.String())
	b.WriteString(trace.Trace.Output.String())
	for _, s := range trace.Steps {
		b.WriteString(s.Output.String())
	}
	return b.String()
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
