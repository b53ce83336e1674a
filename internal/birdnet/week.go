package birdnet

import "time"

// WeekForDate maps a date to the 1-48 week the meta model expects. Each month
// has four weeks; days after the 28th belong to the fourth.
func WeekForDate(date time.Time) int {
	if date.IsZero() {
		date = time.Now()
	}
	weekInMonth := min((date.Day()-1)/7, 3)
	return (int(date.Month())-1)*4 + weekInMonth + 1
}

// WeekRange returns the week span covering from and to inclusive.
func WeekRange(from, to time.Time) (weekFrom, weekTo int) {
	return WeekForDate(from), WeekForDate(to)
}
