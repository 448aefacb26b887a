package model

import (
	"fmt"
	"time"
)

const clockLayout = "15:04"

// ClockAt renders an absolute instant as the "HH:MM" wall clock of loc.
// All scheduled-time comparisons happen in this string space.
func ClockAt(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(clockLayout)
}

// ValidateClock checks that s is a zero-padded "HH:MM" time of day. The
// padding matters: lexical ordering of unpadded values is wrong.
func ValidateClock(s string) error {
	t, err := time.Parse(clockLayout, s)
	if err != nil || t.Format(clockLayout) != s {
		return fmt.Errorf("invalid time of day %q: want HH:MM", s)
	}
	return nil
}

// AddClock advances an "HH:MM" clock by d, wrapping past midnight.
func AddClock(clock string, d time.Duration) (string, error) {
	t, err := time.Parse(clockLayout, clock)
	if err != nil {
		return "", fmt.Errorf("invalid time of day %q: want HH:MM", clock)
	}
	return t.Add(d).Format(clockLayout), nil
}

// ClockWindowWraps reports whether the forward window [from, to] crosses
// midnight. A wrapped window cannot be expressed as a single range in
// clock-string space; callers switch to a disjunctive predicate.
func ClockWindowWraps(from, to string) bool {
	return to < from
}
