// Package trigger validates and parses the recurring-time expressions that
// drive recordings.
//
// Grammar: standard five-field crontab (minute, hour, day-of-month, month,
// day-of-week) with an optional leading seconds field, plus descriptors such
// as "@hourly". Expressions carry no timezone of their own; the scheduler
// binds them to the configured zone at install time.
package trigger

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// parser is shared; cron.Parser is stateless after construction.
// SecondOptional allows both 5-field and 6-field (with seconds) specs.
var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Parse returns the compiled schedule for a trigger expression.
func Parse(expr string) (cron.Schedule, error) {
	s := strings.TrimSpace(expr)
	if s == "" {
		return nil, fmt.Errorf("trigger expression required")
	}
	sched, err := parser.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("invalid trigger expression %q: %w", s, err)
	}
	return sched, nil
}

// Validate reports whether expr is a well-formed trigger expression.
// It never panics on malformed input.
func Validate(expr string) bool {
	_, err := Parse(expr)
	return err == nil
}

// Parser exposes the shared parser for components that register expressions
// with a cron runtime directly.
func Parser() cron.Parser { return parser }
