package suncalc

import "time"

// Helsinki coordinates for testing
const (
	testLatitude  = 60.1699
	testLongitude = 24.9384
)

var helsinki = time.FixedZone("EET", 2*3600)

// newTestSunCalc creates a SunCalc instance with Helsinki coordinates.
func newTestSunCalc() *SunCalc {
	return NewSunCalcIn(testLatitude, testLongitude, helsinki)
}

// equinoxDate returns March 20, 2024 in Helsinki, a date with all four events.
func equinoxDate() time.Time {
	return time.Date(2024, 3, 20, 12, 0, 0, 0, helsinki)
}
