// Package schedule turns schedule expressions into canonical schedule values
// and computes the next run time for them.
package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule is one of Absolute, Interval or Cron.
type Schedule interface {
	// String returns the canonical expression the schedule was parsed from.
	String() string
	isSchedule()
}

// Absolute fires once at a fixed instant.
type Absolute struct {
	At time.Time
}

func (Absolute) isSchedule() {}

func (a Absolute) String() string {
	return a.At.UTC().Format(time.RFC3339Nano)
}

type Unit time.Duration

const (
	Second = Unit(time.Second)
	Minute = Unit(time.Minute)
	Hour   = Unit(time.Hour)
)

var unitNames = map[Unit]string{
	Second: "second",
	Minute: "minute",
	Hour:   "hour",
}

// Interval fires every Count units, anchored to the previous run.
type Interval struct {
	Unit  Unit
	Count int64
}

func (Interval) isSchedule() {}

func (i Interval) Duration() time.Duration {
	return time.Duration(i.Count) * time.Duration(i.Unit)
}

func (i Interval) String() string {
	if i.Count == 1 {
		return "1 " + unitNames[i.Unit]
	}
	return strconv.FormatInt(i.Count, 10) + " " + unitNames[i.Unit] + "s"
}

// Cron fires on every instant matching its fields. Seconds default to 0 for
// five field expressions, and Years is empty when any year matches.
type Cron struct {
	Fields []string
	Years  []int
	spec   *cron.SpecSchedule
}

func (Cron) isSchedule() {}

func (c Cron) String() string {
	return strings.Join(c.Fields, " ")
}

// InvalidScheduleError is returned for expressions that match neither grammar
// or carry an out of range field.
type InvalidScheduleError struct {
	Expression string
	Field      string
	Reason     string
}

func (e *InvalidScheduleError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid schedule %q: %s", e.Expression, e.Reason)
	}
	return fmt.Sprintf("invalid schedule %q: %s: %s", e.Expression, e.Field, e.Reason)
}
