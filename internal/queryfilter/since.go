// Package queryfilter parses caller-supplied filter values that aren't
// plain struct fields, such as listTraces' "since" bound, which accepts
// either a strict timestamp or a relative natural-language expression.
package queryfilter

import (
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/agent-replay/tracecore/internal/apperr"
)

var parser = buildParser()

func buildParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// ParseSince parses a listTraces "since" filter value. It tries strict
// RFC3339 first (the canonical stored timestamp format, spec.md §6) and
// falls back to a relative expression like "yesterday" or "3 days ago"
// for interactive callers.
func ParseSince(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, apperr.Field("since", "must not be empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}

	res, err := parser.Parse(raw, time.Now())
	if err != nil {
		return time.Time{}, apperr.Wrap(apperr.Parse, err, "parse since value %q", raw)
	}
	if res == nil {
		return time.Time{}, apperr.New(apperr.Parse, "could not interpret since value %q as a time", raw)
	}
	return res.Time, nil
}
