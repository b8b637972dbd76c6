// Package timeutil normalizes all time handling: wire values are absolute
// RFC 3339 instants, club-local wall clocks convert through full IANA zone
// rules, and interval overlap is half-open.
package timeutil

import (
	"fmt"
	"time"

	"korty/internal/apperr"
)

const localLayout = "2006-01-02 15:04"

// ParseInstant accepts only an absolute instant: RFC 3339 with an explicit
// zone marker (Z or a numeric offset). Local wall-clock strings are rejected,
// never coerced. The result is normalized to UTC.
func ParseInstant(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, apperr.Validation("not a UTC instant: %q", s).WithCause(err)
	}
	return t.UTC(), nil
}

func IsValidInstant(s string) bool {
	_, err := time.Parse(time.RFC3339, s)
	return err == nil
}

// ToUTCInstant converts a club-local wall clock ("2026-01-06", "10:00") to a
// UTC instant using the zone's full tz-database rules, so daylight-saving
// transitions resolve the way the club's wall clock actually moves.
func ToUTCInstant(localDate, localTime, ianaZone string) (time.Time, error) {
	loc, err := time.LoadLocation(ianaZone)
	if err != nil {
		return time.Time{}, apperr.Validation("unknown IANA zone: %q", ianaZone).WithCause(err)
	}
	t, err := time.ParseInLocation(localLayout, fmt.Sprintf("%s %s", localDate, localTime), loc)
	if err != nil {
		return time.Time{}, apperr.Validation("bad local date/time %q %q", localDate, localTime).WithCause(err)
	}
	return t.UTC(), nil
}

// FromUTC renders a UTC instant on the zone's wall clock.
func FromUTC(t time.Time, ianaZone string) (time.Time, error) {
	loc, err := time.LoadLocation(ianaZone)
	if err != nil {
		return time.Time{}, apperr.Validation("unknown IANA zone: %q", ianaZone).WithCause(err)
	}
	return t.In(loc), nil
}

// Overlaps reports whether [startA, endA) and [startB, endB) intersect.
// Half-open: adjacent intervals do not overlap, zero-length intervals never
// overlap anything.
func Overlaps(startA, endA, startB, endB time.Time) bool {
	return startA.Before(endB) && startB.Before(endA)
}
