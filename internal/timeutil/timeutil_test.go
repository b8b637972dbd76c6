package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"korty/internal/apperr"
)

func TestParseInstant(t *testing.T) {
	t.Run("AcceptsUTCMarker", func(t *testing.T) {
		got, err := ParseInstant("2026-01-06T08:00:00Z")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 1, 6, 8, 0, 0, 0, time.UTC), got)
	})

	t.Run("NormalizesOffsetToUTC", func(t *testing.T) {
		got, err := ParseInstant("2026-01-06T10:00:00+02:00")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 1, 6, 8, 0, 0, 0, time.UTC), got)
		assert.Equal(t, time.UTC, got.Location())
	})

	t.Run("RejectsLocalWallClock", func(t *testing.T) {
		_, err := ParseInstant("2026-01-06 10:00")
		require.Error(t, err)
		assert.True(t, apperr.Is(err, apperr.CodeValidation))
	})

	t.Run("RejectsMissingZoneMarker", func(t *testing.T) {
		_, err := ParseInstant("2026-01-06T10:00:00")
		require.Error(t, err)
		assert.True(t, apperr.Is(err, apperr.CodeValidation))
	})

	t.Run("RejectsGarbage", func(t *testing.T) {
		_, err := ParseInstant("not-a-time")
		require.Error(t, err)
	})
}

func TestIsValidInstant(t *testing.T) {
	assert.True(t, IsValidInstant("2026-01-06T08:00:00Z"))
	assert.True(t, IsValidInstant("2026-07-06T08:00:00+03:00"))
	assert.False(t, IsValidInstant("2026-01-06"))
	assert.False(t, IsValidInstant(""))
}

func TestToUTCInstant(t *testing.T) {
	t.Run("KyivWinter", func(t *testing.T) {
		// UTC+2 without daylight saving in January.
		got, err := ToUTCInstant("2026-01-06", "10:00", "Europe/Kyiv")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 1, 6, 8, 0, 0, 0, time.UTC), got)
	})

	t.Run("KyivSummer", func(t *testing.T) {
		// UTC+3 under daylight saving in July.
		got, err := ToUTCInstant("2026-07-06", "10:00", "Europe/Kyiv")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 7, 6, 7, 0, 0, 0, time.UTC), got)
	})

	t.Run("UnknownZone", func(t *testing.T) {
		_, err := ToUTCInstant("2026-01-06", "10:00", "Europe/Atlantis")
		require.Error(t, err)
		assert.True(t, apperr.Is(err, apperr.CodeValidation))
	})

	t.Run("BadWallClock", func(t *testing.T) {
		_, err := ToUTCInstant("2026-13-40", "25:99", "Europe/Kyiv")
		require.Error(t, err)
	})
}

func TestZoneRoundTrip(t *testing.T) {
	zones := []string{"Europe/Kyiv", "America/New_York", "Asia/Singapore"}
	// Dates on both sides of the European DST switch.
	dates := []struct{ date, clock string }{
		{"2026-01-06", "10:00"},
		{"2026-03-29", "12:00"},
		{"2026-07-06", "10:00"},
		{"2026-10-25", "12:00"},
	}

	for _, zone := range zones {
		for _, d := range dates {
			utc, err := ToUTCInstant(d.date, d.clock, zone)
			require.NoError(t, err)

			local, err := FromUTC(utc, zone)
			require.NoError(t, err)
			assert.Equal(t, d.date, local.Format("2006-01-02"), "zone %s", zone)
			assert.Equal(t, d.clock, local.Format("15:04"), "zone %s", zone)
		}
	}
}

func TestOverlaps(t *testing.T) {
	at := func(h int) time.Time { return time.Date(2026, 1, 6, h, 0, 0, 0, time.UTC) }

	t.Run("Intersecting", func(t *testing.T) {
		assert.True(t, Overlaps(at(10), at(12), at(11), at(13)))
		assert.True(t, Overlaps(at(11), at(13), at(10), at(12)))
	})

	t.Run("Contained", func(t *testing.T) {
		assert.True(t, Overlaps(at(10), at(14), at(11), at(12)))
	})

	t.Run("Identical", func(t *testing.T) {
		assert.True(t, Overlaps(at(10), at(11), at(10), at(11)))
	})

	t.Run("AdjacentDoNotOverlap", func(t *testing.T) {
		assert.False(t, Overlaps(at(10), at(11), at(11), at(12)))
		assert.False(t, Overlaps(at(11), at(12), at(10), at(11)))
	})

	t.Run("Disjoint", func(t *testing.T) {
		assert.False(t, Overlaps(at(8), at(9), at(10), at(11)))
	})

	t.Run("ZeroLengthNeverOverlaps", func(t *testing.T) {
		assert.False(t, Overlaps(at(10), at(10), at(9), at(12)))
		assert.False(t, Overlaps(at(9), at(12), at(10), at(10)))
	})
}
