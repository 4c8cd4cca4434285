// Package progress implements the pure parser half of the structured
// stdout pipeline: classifying one line of subprocess output into a typed
// Event, with no I/O and no shared state, so it is unit-testable in
// isolation from the state mutator that applies Events to a job record.
package progress

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind classifies a parsed line of subprocess output.
type Kind int

const (
	// KindPlain is any line that doesn't match PROGRESS: or STEP:.
	KindPlain Kind = iota
	KindProgress
	KindStep
)

// Event is the result of parsing one line of subprocess output.
type Event struct {
	Kind Kind

	// Populated for KindProgress.
	Step       string
	Message    string
	Percentage int

	// Populated for KindStep.
	StepName string
	Status   string

	// Raw is the original line, used verbatim for KindPlain and for
	// malformed PROGRESS:/STEP: lines.
	Raw string
}

// Parse classifies a single line of subprocess output. Malformed
// PROGRESS:/STEP: lines (wrong field count, non-integer percentage) are
// returned as KindPlain so the caller logs them verbatim instead of
// silently dropping them.
func Parse(line string) Event {
	switch {
	case strings.HasPrefix(line, "PROGRESS:"):
		if ev, ok := parseProgress(line); ok {
			return ev
		}
	case strings.HasPrefix(line, "STEP:"):
		if ev, ok := parseStep(line); ok {
			return ev
		}
	}
	return Event{Kind: KindPlain, Raw: line}
}

// parseProgress parses "PROGRESS:<step>:<message>:<percentage>%" on up to
// 4 colon-separated fields.
func parseProgress(line string) (Event, bool) {
	fields := strings.SplitN(line, ":", 4)
	if len(fields) != 4 {
		return Event{}, false
	}
	pctField := strings.TrimSuffix(strings.TrimSpace(fields[3]), "%")
	pct, err := strconv.Atoi(pctField)
	if err != nil {
		return Event{}, false
	}
	return Event{
		Kind:       KindProgress,
		Step:       fields[1],
		Message:    fields[2],
		Percentage: pct,
		Raw:        line,
	}, true
}

// parseStep parses "STEP:<step>:<status>:<message>" on up to 4 fields.
func parseStep(line string) (Event, bool) {
	fields := strings.SplitN(line, ":", 4)
	if len(fields) != 4 {
		return Event{}, false
	}
	return Event{
		Kind:     KindStep,
		StepName: fields[1],
		Status:   fields[2],
		Message:  fields[3],
		Raw:      line,
	}, true
}

// Render formats an Event the way it should appear in the job log.
func Render(platform string, ev Event) string {
	switch ev.Kind {
	case KindProgress:
		return fmt.Sprintf("📊 %s (%d%%)", ev.Message, ev.Percentage)
	case KindStep:
		icon := "✅"
		if ev.Status != "SUCCESS" {
			icon = "❌"
		}
		return fmt.Sprintf("%s %s: %s", icon, ev.StepName, ev.Message)
	default:
		return fmt.Sprintf("[%s] %s", strings.ToUpper(platform), ev.Raw)
	}
}
