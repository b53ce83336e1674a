package suncalc

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func FuzzPeriod(f *testing.F) {
	f.Add(testLatitude, testLongitude, int16(79), uint8(12)) // equinox noon
	f.Add(testLatitude, testLongitude, int16(172), uint8(0)) // white night
	f.Add(78.2, 15.6, int16(172), uint8(12))                 // midnight sun
	f.Add(-77.8, 166.7, int16(172), uint8(3))                // polar night
	f.Add(0.0, 0.0, int16(0), uint8(6))
	f.Add(-33.9, 18.4, int16(-400), uint8(23))
	f.Add(45.0, -30.0, int16(300), uint8(18))

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	f.Fuzz(func(t *testing.T, lat, lon float64, day int16, hour uint8) {
		if math.IsNaN(lat) || math.IsNaN(lon) || math.Abs(lat) > 90 || math.Abs(lon) > 180 {
			return
		}
		sc := NewSunCalcIn(lat, lon, time.UTC)
		at := start.AddDate(0, 0, int(day)).Add(time.Duration(hour%24) * time.Hour)

		period, err := sc.Period(at)
		if err != nil {
			assert.Equal(t, PeriodUnknown, period)
		} else {
			assert.NotEqual(t, PeriodUnknown, period)
		}

		again, againErr := sc.Period(at)
		assert.Equal(t, period, again, "cached events give the same period")
		assert.Equal(t, err == nil, againErr == nil)

		// away from the poles and the date line every UTC day has all four
		// events in order
		if math.Abs(lat) > 50 || math.Abs(lon) > 30 {
			return
		}
		times, err := sc.GetSunEventTimes(at)
		require.NoError(t, err)
		assert.True(t, times.CivilDawn.Before(times.Sunrise))
		assert.True(t, times.Sunrise.Before(times.Sunset))
		assert.True(t, times.Sunset.Before(times.CivilDusk))

		noon := times.Sunrise.Add(times.Sunset.Sub(times.Sunrise) / 2)
		p, err := sc.Period(noon)
		require.NoError(t, err)
		assert.Equal(t, PeriodDay, p)
	})
}
