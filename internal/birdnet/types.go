package birdnet

import (
	"fmt"
	"math"
)

// WeeksPerYear is the number of model weeks; every month has four.
const WeeksPerYear = 48

// Detection is one classified species in one chunk.
type Detection struct {
	ScientificName string  `json:"scientific_name"`
	CommonName     string  `json:"common_name"`
	Confidence     float32 `json:"confidence"`
	Index          int     `json:"index"` // class index in the label table
}

// LocationContext narrows meta scoring to a place and a span of the year.
// WeekFrom == WeekTo is a single week. WeekFrom > WeekTo wraps through the
// end of the year.
type LocationContext struct {
	Latitude  float64
	Longitude float64
	WeekFrom  int
	WeekTo    int
}

// Validate checks coordinate and week bounds.
func (l *LocationContext) Validate() error {
	switch {
	case math.IsNaN(l.Latitude) || l.Latitude < -90 || l.Latitude > 90:
		return fmt.Errorf("latitude %g out of range [-90, 90]", l.Latitude)
	case math.IsNaN(l.Longitude) || l.Longitude < -180 || l.Longitude > 180:
		return fmt.Errorf("longitude %g out of range [-180, 180]", l.Longitude)
	case l.WeekFrom < 1 || l.WeekFrom > WeeksPerYear:
		return fmt.Errorf("week_from %d out of range [1, %d]", l.WeekFrom, WeeksPerYear)
	case l.WeekTo < 1 || l.WeekTo > WeeksPerYear:
		return fmt.Errorf("week_to %d out of range [1, %d]", l.WeekTo, WeeksPerYear)
	}
	return nil
}

// Weeks lists the weeks covered by the context in order.
func (l *LocationContext) Weeks() []int {
	if l.WeekFrom <= l.WeekTo {
		weeks := make([]int, 0, l.WeekTo-l.WeekFrom+1)
		for w := l.WeekFrom; w <= l.WeekTo; w++ {
			weeks = append(weeks, w)
		}
		return weeks
	}
	weeks := make([]int, 0, WeeksPerYear-l.WeekFrom+1+l.WeekTo)
	for w := l.WeekFrom; w <= WeeksPerYear; w++ {
		weeks = append(weeks, w)
	}
	for w := 1; w <= l.WeekTo; w++ {
		weeks = append(weeks, w)
	}
	return weeks
}

// cacheKey identifies the context to roughly one kilometre.
func (l *LocationContext) cacheKey() string {
	return fmt.Sprintf("%.2f:%.2f:%d-%d", l.Latitude, l.Longitude, l.WeekFrom, l.WeekTo)
}

// SpeciesScore pairs a label with a score, used for ranked listings.
type SpeciesScore struct {
	Index int
	Label Label
	Score float32
}
