package schedule

import (
	"sort"
	"time"
)

// NextRun returns the first run time of s strictly after reference. ok is
// false when the schedule is exhausted.
func NextRun(s Schedule, reference time.Time) (next time.Time, ok bool) {
	reference = reference.UTC()
	switch s := s.(type) {
	case Absolute:
		if s.At.After(reference) {
			return s.At, true
		}
		return time.Time{}, false
	case Interval:
		return reference.Add(s.Duration()), true
	case Cron:
		return s.next(reference)
	}
	return time.Time{}, false
}

// FirstRun returns the run time assigned to a freshly created job. An
// absolute time that already elapsed stays due, so the job fires on the next
// tick instead of being rejected.
func FirstRun(s Schedule, createdAt time.Time) (time.Time, bool) {
	if a, isAbsolute := s.(Absolute); isAbsolute {
		return a.At, true
	}
	return NextRun(s, createdAt)
}

func (c Cron) next(reference time.Time) (time.Time, bool) {
	t := reference
	for {
		next := c.spec.Next(t)
		// robfig/cron gives up with a zero time on unsatisfiable day fields.
		if next.IsZero() {
			return time.Time{}, false
		}
		next = next.UTC()
		if c.matchesYear(next.Year()) {
			return next, true
		}
		year, ok := c.yearAfter(next.Year())
		if !ok {
			return time.Time{}, false
		}
		t = time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC).Add(-time.Second)
	}
}

func (c Cron) matchesYear(year int) bool {
	if len(c.Years) == 0 {
		return true
	}
	i := sort.SearchInts(c.Years, year)
	return i < len(c.Years) && c.Years[i] == year
}

func (c Cron) yearAfter(year int) (int, bool) {
	i := sort.SearchInts(c.Years, year+1)
	if i == len(c.Years) {
		return 0, false
	}
	return c.Years[i], true
}
