package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CronExpr is a parsed five-field cron expression: minute, hour,
// day-of-month, month, day-of-week.
type CronExpr struct {
	Minutes     []int
	Hours       []int
	DaysOfMonth []int
	Months      []int
	DaysOfWeek  []int

	// A "*" day field does not restrict the day. When both day fields are
	// restricted a time matches if either of them does.
	anyDOM bool
	anyDOW bool
}

var macros = map[string]string{
	"@hourly":   "0 * * * *",
	"@daily":    "0 0 * * *",
	"@midnight": "0 0 * * *",
	"@weekly":   "0 0 * * 0",
	"@monthly":  "0 0 1 * *",
}

var (
	monthNames = map[string]int{
		"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
		"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
	}
	dayNames = map[string]int{
		"sun": 0, "mon": 1, "tue": 2, "wed": 3, "thu": 4, "fri": 5, "sat": 6,
	}
)

type field struct {
	name     string
	min, max int
	names    map[string]int
}

var fields = [5]field{
	{name: "minute", min: 0, max: 59},
	{name: "hour", min: 0, max: 23},
	{name: "day-of-month", min: 1, max: 31},
	{name: "month", min: 1, max: 12, names: monthNames},
	{name: "day-of-week", min: 0, max: 7, names: dayNames},
}

// ParseCron parses a standard cron expression or one of the @hourly,
// @daily, @midnight, @weekly and @monthly shorthands.
func ParseCron(expr string) (*CronExpr, error) {
	expr = strings.TrimSpace(expr)
	if m, ok := macros[strings.ToLower(expr)]; ok {
		expr = m
	}
	parts := strings.Fields(expr)
	if len(parts) != 5 {
		return nil, fmt.Errorf("cron expression must have 5 fields, got %d", len(parts))
	}

	var sets [5][]int
	for i, f := range fields {
		vals, err := f.parse(parts[i])
		if err != nil {
			return nil, fmt.Errorf("%s field: %w", f.name, err)
		}
		sets[i] = vals
	}

	// 7 is another name for Sunday.
	dows := sets[4][:0:0]
	for _, d := range sets[4] {
		if d == 7 {
			d = 0
		}
		if !contains(dows, d) {
			dows = append(dows, d)
		}
	}

	return &CronExpr{
		Minutes:     sets[0],
		Hours:       sets[1],
		DaysOfMonth: sets[2],
		Months:      sets[3],
		DaysOfWeek:  dows,
		anyDOM:      parts[2] == "*",
		anyDOW:      parts[4] == "*",
	}, nil
}

// Matches reports whether t, truncated to the minute, is a firing time.
func (c *CronExpr) Matches(t time.Time) bool {
	return contains(c.Minutes, t.Minute()) &&
		contains(c.Hours, t.Hour()) &&
		contains(c.Months, int(t.Month())) &&
		c.dayMatches(t)
}

// Next returns the first firing time strictly after t, searching up to
// five years ahead. It returns the zero time when there is none.
func (c *CronExpr) Next(t time.Time) time.Time {
	next := t.Truncate(time.Minute).Add(time.Minute)
	limit := next.AddDate(5, 0, 0)
	for next.Before(limit) {
		switch {
		case !contains(c.Months, int(next.Month())):
			next = time.Date(next.Year(), next.Month()+1, 1, 0, 0, 0, 0, next.Location())
		case !c.dayMatches(next):
			next = time.Date(next.Year(), next.Month(), next.Day()+1, 0, 0, 0, 0, next.Location())
		case !contains(c.Hours, next.Hour()):
			next = next.Truncate(time.Hour).Add(time.Hour)
		case !contains(c.Minutes, next.Minute()):
			next = next.Add(time.Minute)
		default:
			return next
		}
	}
	return time.Time{}
}

func (c *CronExpr) dayMatches(t time.Time) bool {
	dom := contains(c.DaysOfMonth, t.Day())
	dow := contains(c.DaysOfWeek, int(t.Weekday()))
	switch {
	case c.anyDOM && c.anyDOW:
		return true
	case c.anyDOM:
		return dow
	case c.anyDOW:
		return dom
	}
	return dom || dow
}

func contains(vals []int, v int) bool {
	for _, val := range vals {
		if val == v {
			return true
		}
	}
	return false
}

// parse handles *, */n, n, n-m, n-m/s and comma-separated lists of those.
func (f field) parse(s string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(s, ",") {
		vals, err := f.parsePart(part)
		if err != nil {
			return nil, err
		}
		for _, v := range vals {
			if !contains(out, v) {
				out = append(out, v)
			}
		}
	}
	return out, nil
}

func (f field) parsePart(part string) ([]int, error) {
	rng, stepStr, hasStep := strings.Cut(part, "/")
	step := 1
	if hasStep {
		n, err := strconv.Atoi(stepStr)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid step: %s", part)
		}
		step = n
	}

	lo, hi := f.min, f.max
	switch {
	case rng == "*":
	case strings.Contains(rng, "-"):
		a, b, _ := strings.Cut(rng, "-")
		var err error
		if lo, err = f.value(a); err != nil {
			return nil, err
		}
		if hi, err = f.value(b); err != nil {
			return nil, err
		}
		if lo > hi {
			return nil, fmt.Errorf("invalid range: %s", part)
		}
	default:
		v, err := f.value(rng)
		if err != nil {
			return nil, err
		}
		lo = v
		if !hasStep {
			hi = v
		}
	}

	var vals []int
	for i := lo; i <= hi; i += step {
		vals = append(vals, i)
	}
	return vals, nil
}

func (f field) value(s string) (int, error) {
	if v, ok := f.names[strings.ToLower(s)]; ok {
		return v, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid value: %s", s)
	}
	if v < f.min || v > f.max {
		return 0, fmt.Errorf("value %d out of range %d-%d", v, f.min, f.max)
	}
	return v, nil
}
