// Package summarize renders a trace (or a diff) into a bounded plain-text
// digest (spec.md §4.7), the input both the judge evaluator and any
// interactive caller feeds to a language model or terminal.
package summarize

import (
	"fmt"
	"math"
	"strings"

	"github.com/agent-replay/tracecore/internal/diff"
	"github.com/agent-replay/tracecore/internal/types"
)

const defaultMaxTokenBudget = 3000

// Summary is summarizeTrace's result.
type Summary struct {
	Text            string
	EstimatedTokens int
}

// Trace renders trace into a bounded digest. maxTokenBudget <= 0 uses the
// 3000-token default.
func Trace(trace *types.ResolvedTrace, maxTokenBudget int) Summary {
	if maxTokenBudget <= 0 {
		maxTokenBudget = defaultMaxTokenBudget
	}

	var header strings.Builder
	writeHeader(&header, trace)

	headerChars := header.Len()
	charBudget := 4*maxTokenBudget - headerChars - 200

	var body strings.Builder
	body.WriteString(header.String())
	writeSteps(&body, trace.Steps, charBudget)

	if trace.Trace.Error != "" {
		body.WriteString("ERROR: ")
		body.WriteString(truncate(trace.Trace.Error, 300))
		body.WriteString("\n")
	}
	if len(trace.Trace.Tags) > 0 {
		body.WriteString("TAGS: ")
		body.WriteString(strings.Join(trace.Trace.Tags, ", "))
		body.WriteString("\n")
	}

	text := body.String()
	return Summary{Text: text, EstimatedTokens: int(math.Ceil(float64(len(text)) / 4))}
}

func writeHeader(b *strings.Builder, trace *types.ResolvedTrace) {
	t := trace.Trace
	fmt.Fprintf(b, "TRACE: %s", t.AgentName)
	if t.AgentVersion != "" {
		fmt.Fprintf(b, " v%s", t.AgentVersion)
	}
	fmt.Fprintf(b, " [%s]\n", strings.ToUpper(string(t.Status)))

	fmt.Fprintf(b, "INPUT: %s\n", truncate(t.Input.String(), 300))
	if !t.Output.Empty() {
		fmt.Fprintf(b, "OUTPUT: %s\n", truncate(t.Output.String(), 300))
	}

	var extras []string
	if d := t.Totals.DurationMS; d != nil {
		extras = append(extras, fmt.Sprintf("%dms", *d))
	}
	if tok := t.Totals.Tokens; tok != nil {
		extras = append(extras, fmt.Sprintf("%d tokens", *tok))
	}
	if len(extras) > 0 {
		fmt.Fprintf(b, "STEPS (%d, %s):\n", len(trace.Steps), strings.Join(extras, ", "))
	} else {
		fmt.Fprintf(b, "STEPS (%d):\n", len(trace.Steps))
	}
}

func writeSteps(b *strings.Builder, steps []types.Step, charBudget int) {
	showAll := charBudget > len(steps)*80

	outputLimit := 100
	if charBudget > 2000 {
		outputLimit = 200
	}

	current := 0
	for i, s := range steps {
		if !showAll && !isPriorityStep(s) {
			continue
		}

		line := renderStep(i+1, s, outputLimit)
		lineLen := len(line)
		if current+lineLen > charBudget {
			remaining := countRemaining(steps, i, showAll)
			if remaining > 0 {
				fmt.Fprintf(b, "... (%d more steps omitted for brevity)\n", remaining)
			}
			return
		}
		b.WriteString(line)
		current += lineLen
	}
}

func countRemaining(steps []types.Step, from int, showAll bool) int {
	n := 0
	for _, s := range steps[from:] {
		if showAll || isPriorityStep(s) {
			n++
		}
	}
	return n
}

func isPriorityStep(s types.Step) bool {
	switch s.StepType {
	case types.StepError, types.StepOutput, types.StepDecision:
		return true
	}
	return s.Error != ""
}

func renderStep(n int, s types.Step, outputLimit int) string {
	var parts []string
	if s.DurationMS != nil {
		parts = append(parts, fmt.Sprintf("%dms", *s.DurationMS))
	}
	if s.TokensUsed != nil {
		parts = append(parts, fmt.Sprintf("%d tokens", *s.TokensUsed))
	}
	if s.Model != "" {
		parts = append(parts, s.Model)
	}

	var line strings.Builder
	fmt.Fprintf(&line, "%d. [%s] %s", n, s.StepType, s.Name)
	if len(parts) > 0 {
		fmt.Fprintf(&line, " (%s)", strings.Join(parts, ", "))
	}
	line.WriteString("\n")

	if s.StepType == types.StepToolCall && !s.Input.Empty() {
		fmt.Fprintf(&line, "   input: %s\n", truncate(s.Input.String(), outputLimit))
	}
	if !s.Output.Empty() {
		fmt.Fprintf(&line, "   output: %s\n", truncate(s.Output.String(), outputLimit))
	}
	if s.Error != "" {
		fmt.Fprintf(&line, "   error: %s\n", truncate(s.Error, outputLimit))
	}
	return line.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// DiffForLLM renders diff (between left and right) into a bounded digest
// for judge-facing consumption (spec.md §4.7).
func DiffForLLM(d diff.Diff, left, right *types.ResolvedTrace) string {
	var b strings.Builder

	fmt.Fprintf(&b, "LEFT: %s [%s] steps=%d", left.Trace.AgentName, strings.ToUpper(string(left.Trace.Status)), d.LeftStepCount)
	if dur := left.Trace.Totals.DurationMS; dur != nil {
		fmt.Fprintf(&b, " duration=%dms", *dur)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "RIGHT: %s [%s] steps=%d", right.Trace.AgentName, strings.ToUpper(string(right.Trace.Status)), d.RightStepCount)
	if dur := right.Trace.Totals.DurationMS; dur != nil {
		fmt.Fprintf(&b, " duration=%dms", *dur)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "LEFT INPUT: %s\n", truncate(left.Trace.Input.String(), 200))
	fmt.Fprintf(&b, "RIGHT INPUT: %s\n", truncate(right.Trace.Input.String(), 200))
	if !left.Trace.Output.Empty() || !right.Trace.Output.Empty() {
		fmt.Fprintf(&b, "LEFT OUTPUT: %s\n", truncate(left.Trace.Output.String(), 200))
		fmt.Fprintf(&b, "RIGHT OUTPUT: %s\n", truncate(right.Trace.Output.String(), 200))
	}

	if d.DivergenceStep != nil {
		fmt.Fprintf(&b, "DIVERGENCE STEP: %d\n", *d.DivergenceStep)
	} else {
		b.WriteString("DIVERGENCE STEP: none\n")
	}

	max := len(d.Diffs)
	shown := max
	if shown > 15 {
		shown = 15
	}
	for i := 0; i < shown; i++ {
		diffLine := d.Diffs[i]
		lv, rv := "null", "null"
		if diffLine.LeftValue != nil {
			lv = *diffLine.LeftValue
		}
		if diffLine.RightValue != nil {
			rv = *diffLine.RightValue
		}
		line := fmt.Sprintf("- Step %d, %s: LEFT=%s | RIGHT=%s", diffLine.StepNumber, diffLine.Field, lv, rv)
		b.WriteString(truncate(line, 80))
		b.WriteString("\n")
	}
	if max > 15 {
		fmt.Fprintf(&b, "... and %d more\n", max-15)
	}

	if left.Trace.Error != "" {
		fmt.Fprintf(&b, "LEFT ERROR: %s\n", truncate(left.Trace.Error, 200))
	}
	if right.Trace.Error != "" {
		fmt.Fprintf(&b, "RIGHT ERROR: %s\n", truncate(right.Trace.Error, 200))
	}

	return b.String()
}
