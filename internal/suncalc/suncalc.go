// Package suncalc tags live detections with the solar period they fall in.
package suncalc

import (
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/sj14/astral/pkg/astral"

	"github.com/tphakala/birdnet-pipeline/internal/errors"
)

// Period is a part of the solar day.
type Period int

const (
	PeriodUnknown Period = iota
	PeriodNight
	PeriodDawn // civil dawn to sunrise
	PeriodDay
	PeriodDusk // sunset to civil dusk
)

func (p Period) String() string {
	switch p {
	case PeriodNight:
		return "night"
	case PeriodDawn:
		return "dawn"
	case PeriodDay:
		return "day"
	case PeriodDusk:
		return "dusk"
	default:
		return "unknown"
	}
}

// SunEventTimes holds the sun event times of one date in the SunCalc location.
type SunEventTimes struct {
	CivilDawn time.Time
	Sunrise   time.Time
	Sunset    time.Time
	CivilDusk time.Time
}

// eventCacheExpiration outlives any session crossing midnight.
const eventCacheExpiration = 48 * time.Hour

// SunCalc calculates and caches sun event times for one observer. It is safe
// for concurrent use.
type SunCalc struct {
	cache    *cache.Cache
	observer astral.Observer
	location *time.Location
}

// NewSunCalc returns a SunCalc reporting times in the local time zone.
func NewSunCalc(latitude, longitude float64) *SunCalc {
	return NewSunCalcIn(latitude, longitude, time.Local)
}

// NewSunCalcIn returns a SunCalc reporting times in loc.
func NewSunCalcIn(latitude, longitude float64, loc *time.Location) *SunCalc {
	if loc == nil {
		loc = time.Local
	}
	return &SunCalc{
		// no janitor; entries are keyed by date and few per session
		cache:    cache.New(eventCacheExpiration, 0),
		observer: astral.Observer{Latitude: latitude, Longitude: longitude},
		location: loc,
	}
}

// GetSunEventTimes returns the sun event times for the calendar date of date
// in the SunCalc location.
func (sc *SunCalc) GetSunEventTimes(date time.Time) (SunEventTimes, error) {
	local := date.In(sc.location)
	dateKey := local.Format(time.DateOnly)

	if v, ok := sc.cache.Get(dateKey); ok {
		return v.(SunEventTimes), nil
	}

	times, err := sc.calculateSunEventTimes(local)
	if err != nil {
		return SunEventTimes{}, errors.New(err).
			Category(errors.CategoryValidation).
			Context("operation", "sun_event_times").
			Context("date", dateKey).
			Build()
	}

	sc.cache.SetDefault(dateKey, times)
	return times, nil
}

func (sc *SunCalc) calculateSunEventTimes(date time.Time) (SunEventTimes, error) {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)

	civilDawn, err := astral.Dawn(sc.observer, day, astral.DepressionCivil)
	if err != nil {
		return SunEventTimes{}, fmt.Errorf("failed to calculate civil dawn: %w", err)
	}
	sunrise, err := astral.Sunrise(sc.observer, day)
	if err != nil {
		return SunEventTimes{}, fmt.Errorf("failed to calculate sunrise: %w", err)
	}
	sunset, err := astral.Sunset(sc.observer, day)
	if err != nil {
		return SunEventTimes{}, fmt.Errorf("failed to calculate sunset: %w", err)
	}
	civilDusk, err := astral.Dusk(sc.observer, day, astral.DepressionCivil)
	if err != nil {
		return SunEventTimes{}, fmt.Errorf("failed to calculate civil dusk: %w", err)
	}

	return SunEventTimes{
		CivilDawn: civilDawn.In(sc.location),
		Sunrise:   sunrise.In(sc.location),
		Sunset:    sunset.In(sc.location),
		CivilDusk: civilDusk.In(sc.location),
	}, nil
}

// Period returns the solar period of t. Dates without a complete set of
// events, such as polar day or night, yield PeriodUnknown and the error.
func (sc *SunCalc) Period(t time.Time) (Period, error) {
	times, err := sc.GetSunEventTimes(t)
	if err != nil {
		return PeriodUnknown, err
	}
	switch {
	case t.Before(times.CivilDawn):
		return PeriodNight, nil
	case t.Before(times.Sunrise):
		return PeriodDawn, nil
	case t.Before(times.Sunset):
		return PeriodDay, nil
	case t.Before(times.CivilDusk):
		return PeriodDusk, nil
	default:
		return PeriodNight, nil
	}
}
