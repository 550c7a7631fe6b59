// Package schedule parses and renders the recurrence of a digest request.
package schedule

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// DefaultHour is the hour of day the default weekday digest fires at.
const DefaultHour = 9

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// SyntaxError reports a schedule expression that could not be parsed.
type SyntaxError struct {
	Text string
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("invalid schedule %q: %s", e.Text, e.Msg)
}

// Spec is a validated recurrence. The zero value is not usable; build one
// with Parse, Default or Weekdays.
type Spec struct {
	text      string
	sched     cron.Schedule
	isDefault bool
}

// Parse validates a standard five-field cron expression or a descriptor
// such as "@daily".
func Parse(text string) (Spec, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return Spec{}, &SyntaxError{Text: text, Msg: "schedule is empty"}
	}
	sched, err := parser.Parse(s)
	if err != nil {
		return Spec{}, &SyntaxError{Text: text, Msg: err.Error()}
	}
	return Spec{text: s, sched: sched}, nil
}

// Default returns the Monday to Friday schedule at DefaultHour.
func Default() Spec {
	return Weekdays(DefaultHour)
}

// Weekdays returns a Monday to Friday schedule at hour:00.
func Weekdays(hour int) Spec {
	if hour < 0 || hour > 23 {
		hour = DefaultHour
	}
	text := fmt.Sprintf("0 %d * * 1-5", hour)
	sched, err := parser.Parse(text)
	if err != nil {
		panic(fmt.Sprintf("schedule: weekday expression %q: %v", text, err))
	}
	return Spec{text: text, sched: sched, isDefault: true}
}

// String returns the expression the spec was built from.
func (s Spec) String() string {
	return s.text
}

// IsDefault reports whether s is the weekday sentinel rather than a
// user-supplied expression.
func (s Spec) IsDefault() bool {
	return s.isDefault
}

// IsZero reports whether s was never initialised.
func (s Spec) IsZero() bool {
	return s.sched == nil
}

// Schedule exposes the parsed cron schedule.
func (s Spec) Schedule() cron.Schedule {
	return s.sched
}
