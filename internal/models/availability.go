package models

import (
	"strings"
	"time"
)

// AvailabilitySlot is a weekly window a tutor takes classes in. Start and
// End are "15:04" wall-clock times in the center's zone.
type AvailabilitySlot struct {
	ID      int64  `db:"id" json:"id"`
	TutorID int64  `db:"tutor_id" json:"tutor_id"`
	Day     string `db:"day_of_week" json:"day"`
	Start   string `db:"start_time" json:"start"`
	End     string `db:"end_time" json:"end"`
}

func (a AvailabilitySlot) Weekday() (time.Weekday, bool) {
	d, ok := weekdayNames[strings.ToLower(strings.TrimSpace(a.Day))]
	return d, ok
}

// Minutes returns Start and End as minutes after midnight.
func (a AvailabilitySlot) Minutes() (from, to int, err error) {
	s, err := time.Parse("15:04", strings.TrimSpace(a.Start))
	if err != nil {
		return 0, 0, err
	}
	e, err := time.Parse("15:04", strings.TrimSpace(a.End))
	if err != nil {
		return 0, 0, err
	}
	return s.Hour()*60 + s.Minute(), e.Hour()*60 + e.Minute(), nil
}

// AvailableAt reports whether [start, end) lies inside one of the slots.
// start and end must already be in the center's zone. A tutor with no
// slots has not restricted their hours and is always available.
func AvailableAt(slots []AvailabilitySlot, start, end time.Time) bool {
	from := start.Hour()*60 + start.Minute()
	return AvailableOn(slots, start.Weekday(), from, from+int(end.Sub(start).Minutes()))
}

// AvailableOn is AvailableAt for a weekday and minutes after midnight.
func AvailableOn(slots []AvailabilitySlot, wd time.Weekday, from, to int) bool {
	if len(slots) == 0 {
		return true
	}
	for _, a := range slots {
		d, ok := a.Weekday()
		if !ok || d != wd {
			continue
		}
		lo, hi, err := a.Minutes()
		if err != nil {
			continue
		}
		if lo <= from && to <= hi {
			return true
		}
	}
	return false
}
