package schedule

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	minYear = 1970
	maxYear = 2099
)

var intervalPattern = regexp.MustCompile(`^(?:(1) (second|minute|hour)|([2-9]|[1-9][0-9]+) (seconds|minutes|hours))$`)

var intervalUnits = map[string]Unit{
	"second":  Second,
	"minute":  Minute,
	"hour":    Hour,
	"seconds": Second,
	"minutes": Minute,
	"hours":   Hour,
}

type cronField struct {
	name   string
	parser cron.Parser
}

var (
	secondField = cronField{"second", cron.NewParser(cron.Second)}
	minuteField = cronField{"minute", cron.NewParser(cron.Minute)}
	hourField   = cronField{"hour", cron.NewParser(cron.Hour)}
	domField    = cronField{"day-of-month", cron.NewParser(cron.Dom)}
	monthField  = cronField{"month", cron.NewParser(cron.Month)}
	dowField    = cronField{"day-of-week", cron.NewParser(cron.Dow)}

	specParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
)

// ParseOnce parses the ISO-8601 timestamp of a one-off job.
func ParseOnce(expression string) (Schedule, error) {
	at, err := time.Parse(time.RFC3339, strings.TrimSpace(expression))
	if err != nil {
		return nil, &InvalidScheduleError{Expression: expression, Field: "when", Reason: "expected an ISO-8601 date-time"}
	}
	return Absolute{At: at.UTC()}, nil
}

// ParseRecurring parses a human friendly interval ("5 minutes") or a cron
// expression of 5 to 7 fields. Six fields lead with seconds, seven fields
// additionally end with a year.
func ParseRecurring(expression string) (Schedule, error) {
	trimmed := strings.TrimSpace(expression)
	if trimmed == "" {
		return nil, &InvalidScheduleError{Expression: expression, Reason: "empty expression"}
	}
	if interval, ok, err := parseInterval(trimmed); ok || err != nil {
		if err != nil {
			err.Expression = expression
			return nil, err
		}
		return interval, nil
	}
	c, err := parseCron(trimmed)
	if err != nil {
		err.Expression = expression
		return nil, err
	}
	return c, nil
}

func parseInterval(expression string) (Interval, bool, *InvalidScheduleError) {
	match := intervalPattern.FindStringSubmatch(expression)
	if match == nil {
		return Interval{}, false, nil
	}
	count, unit := match[1], match[2]
	if count == "" {
		count, unit = match[3], match[4]
	}
	n, err := strconv.ParseInt(count, 10, 64)
	u := intervalUnits[unit]
	if err != nil || n > math.MaxInt64/int64(u) {
		return Interval{}, true, &InvalidScheduleError{Field: "interval", Reason: "interval is too large"}
	}
	return Interval{Unit: u, Count: n}, true, nil
}

func parseCron(expression string) (Cron, *InvalidScheduleError) {
	fields := strings.Fields(expression)
	var layout []cronField
	switch len(fields) {
	case 5:
		layout = []cronField{minuteField, hourField, domField, monthField, dowField}
	case 6, 7:
		layout = []cronField{secondField, minuteField, hourField, domField, monthField, dowField}
	default:
		return Cron{}, &InvalidScheduleError{
			Reason: fmt.Sprintf("expected a human friendly interval or 5 to 7 cron fields, found %d fields", len(fields)),
		}
	}

	normalized := append([]string(nil), fields...)
	normalized[len(layout)-1] = normalizeDayOfWeek(normalized[len(layout)-1])
	for i, f := range layout {
		if _, err := f.parser.Parse(normalized[i]); err != nil {
			return Cron{}, &InvalidScheduleError{Field: f.name, Reason: err.Error()}
		}
	}

	var years []int
	if len(fields) == 7 {
		var err error
		if years, err = parseYears(fields[6]); err != nil {
			return Cron{}, &InvalidScheduleError{Field: "year", Reason: err.Error()}
		}
	}

	specFields := normalized[:len(layout)]
	if len(fields) == 5 {
		specFields = append([]string{"0"}, normalized...)
	}
	parsed, err := specParser.Parse(strings.Join(specFields, " "))
	if err != nil {
		return Cron{}, &InvalidScheduleError{Reason: err.Error()}
	}
	spec := parsed.(*cron.SpecSchedule)
	spec.Location = time.UTC

	return Cron{Fields: fields, Years: years, spec: spec}, nil
}

// normalizeDayOfWeek rewrites 7, which also means Sunday, to 0 so robfig
// accepts it: "7" becomes "0" and "a-7[/s]" becomes "a-6[/s],0" when 7 is hit.
func normalizeDayOfWeek(field string) string {
	parts := strings.Split(field, ",")
	out := make([]string, 0, len(parts)+1)
	for _, part := range parts {
		rangePart, step, hasStep := strings.Cut(part, "/")
		switch {
		case rangePart == "7" && !hasStep:
			out = append(out, "0")
		case strings.HasSuffix(rangePart, "-7"):
			low, err := strconv.Atoi(strings.TrimSuffix(rangePart, "-7"))
			if err != nil || low > 6 {
				out = append(out, part)
				continue
			}
			every := 1
			if hasStep {
				if every, err = strconv.Atoi(step); err != nil || every <= 0 {
					out = append(out, part)
					continue
				}
			}
			rewritten := fmt.Sprintf("%d-6", low)
			if hasStep {
				rewritten += "/" + step
			}
			out = append(out, rewritten)
			if (7-low)%every == 0 {
				out = append(out, "0")
			}
		default:
			out = append(out, part)
		}
	}
	return strings.Join(out, ",")
}

// parseYears returns the sorted set of matching years, or nil for "*".
func parseYears(field string) ([]int, error) {
	set := make(map[int]struct{})
	for _, part := range strings.Split(field, ",") {
		rangePart, step := part, 1
		if i := strings.Index(part, "/"); i >= 0 {
			var err error
			rangePart = part[:i]
			if step, err = strconv.Atoi(part[i+1:]); err != nil || step <= 0 {
				return nil, fmt.Errorf("invalid step %q", part[i+1:])
			}
		}

		var from, to int
		switch {
		case rangePart == "*":
			if step == 1 && len(field) == 1 {
				return nil, nil
			}
			from, to = minYear, maxYear
		case strings.Contains(rangePart, "-"):
			bounds := strings.SplitN(rangePart, "-", 2)
			var err error
			if from, err = parseYear(bounds[0]); err != nil {
				return nil, err
			}
			if to, err = parseYear(bounds[1]); err != nil {
				return nil, err
			}
			if from > to {
				return nil, fmt.Errorf("beginning of range (%d) beyond end of range (%d): %s", from, to, rangePart)
			}
		default:
			var err error
			if from, err = parseYear(rangePart); err != nil {
				return nil, err
			}
			to = from
			if step != 1 {
				to = maxYear
			}
		}
		for y := from; y <= to; y += step {
			set[y] = struct{}{}
		}
	}

	years := make([]int, 0, len(set))
	for y := range set {
		years = append(years, y)
	}
	sort.Ints(years)
	return years, nil
}

func parseYear(s string) (int, error) {
	y, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("failed to parse int from %s", s)
	}
	if y < minYear || y > maxYear {
		return 0, fmt.Errorf("year (%d) outside of range %d-%d", y, minYear, maxYear)
	}
	return y, nil
}
