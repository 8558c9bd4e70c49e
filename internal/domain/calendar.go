package domain

import "time"

// BusySlot is a booked interval on the connected calendar
type BusySlot struct {
	Title string
	Start time.Time
	End   time.Time
}

// CalendarEvent is a meeting to be created on the connected calendar
type CalendarEvent struct {
	Title       string
	Description string
	Start       time.Time
	End         time.Time
	Attendees   []string
}
