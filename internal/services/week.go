package services

import (
	"time"
)

// WeekWindow returns the half-open leaderboard window [start, end) containing
// now: Sunday 00:00:00 in loc up to (excluding) the following Sunday 00:00:00.
// Every component derives week boundaries through this function; nothing else
// is allowed to do its own calendar math.
func WeekWindow(now time.Time, loc *time.Location) (start, end time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	daysSinceSunday := int(local.Weekday())
	start = time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc).
		AddDate(0, 0, -daysSinceSunday)
	end = start.AddDate(0, 0, 7)
	return start, end
}
