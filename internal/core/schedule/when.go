// Package schedule understands the spoken dates and times callers use when
// asking for a meeting.
package schedule

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// WhenLayout is how a booked time is read back to the caller
const WhenLayout = "Monday, January 02 at 03:04 PM"

// DefaultHour is used when a date is given without a time of day
const DefaultHour = 9

var (
	meridiemTime = regexp.MustCompile(`\b(\d{1,2})(?::(\d{2}))?\s*(a\.?m\.?|p\.?m\.?)(?:\W|$)`)
	clockTime    = regexp.MustCompile(`\b(\d{1,2}):(\d{2})\b`)
	bareAtTime   = regexp.MustCompile(`\bat\s+(\d{1,2})\b(?:\s*o'?clock)?`)
	noonTime     = regexp.MustCompile(`\b(noon|midday|midnight)\b`)

	isoDate      = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	usDateYear   = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`)
	usDate       = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})\b`)
	relativeDate = regexp.MustCompile(`\b(day after tomorrow|today|tonight|tomorrow|next week)\b`)
	weekdayDate  = regexp.MustCompile(`\b(?:(next|this)\s+)?(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`)
)

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// Parse turns a spoken time such as "tomorrow at 2pm", "Monday 10:30am" or
// "2026-01-15 at 3pm" into an absolute time in now's location. It reports
// false when the text carries neither a date nor a time of day, or names an
// impossible date.
//
// Rules: a weekday always means its next occurrence after today; a date
// without a time gets defaultHour; a time without a date means today, or
// tomorrow when that time has already passed; an hour from 1 to 7 without
// am or pm is taken as afternoon.
func Parse(when string, now time.Time, defaultHour int) (time.Time, bool) {
	text := strings.ToLower(strings.TrimSpace(when))
	if text == "" {
		return time.Time{}, false
	}

	hour, minute, hasTime := parseTimeOfDay(text)
	date, hasDate, valid := parseDate(text, now)
	if !valid || (!hasTime && !hasDate) {
		return time.Time{}, false
	}
	if !hasTime {
		hour, minute = defaultHour, 0
	}

	loc := now.Location()
	t := time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, loc)
	if !hasDate && t.Before(now) {
		t = t.AddDate(0, 0, 1)
	}
	return t, true
}

// Format renders t the way it is spoken back to the caller
func Format(t time.Time) string {
	return t.Format(WhenLayout)
}

// HasTimeExpression reports whether text mentions a date or a time of day
func HasTimeExpression(text string) bool {
	return FindWhen(text) != ""
}

// FindWhen returns the date and time phrases in text joined as one
// expression, e.g. "tomorrow at 2pm". It returns "" when there is none.
func FindWhen(text string) string {
	lower := strings.ToLower(text)
	var parts []string
	for _, re := range []*regexp.Regexp{isoDate, usDateYear, relativeDate, weekdayDate} {
		if m := re.FindString(lower); m != "" {
			parts = append(parts, strings.TrimSpace(m))
			break
		}
	}
	if len(parts) == 0 {
		if m := usDate.FindString(lower); m != "" {
			parts = append(parts, m)
		}
	}
	for _, re := range []*regexp.Regexp{meridiemTime, clockTime, noonTime, bareAtTime} {
		if m := re.FindString(lower); m != "" {
			m = strings.TrimRight(strings.TrimSpace(m), ",.;!?")
			if !strings.HasPrefix(m, "at ") {
				m = "at " + m
			}
			parts = append(parts, m)
			break
		}
	}
	return strings.Join(parts, " ")
}

func parseTimeOfDay(text string) (hour, minute int, ok bool) {
	if m := meridiemTime.FindStringSubmatch(text); m != nil {
		hour, _ = strconv.Atoi(m[1])
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		if hour < 1 || hour > 12 || minute > 59 {
			return 0, 0, false
		}
		pm := strings.HasPrefix(m[3], "p")
		switch {
		case pm && hour != 12:
			hour += 12
		case !pm && hour == 12:
			hour = 0
		}
		return hour, minute, true
	}
	if m := clockTime.FindStringSubmatch(text); m != nil {
		hour, _ = strconv.Atoi(m[1])
		minute, _ = strconv.Atoi(m[2])
		if hour > 23 || minute > 59 {
			return 0, 0, false
		}
		if hour >= 1 && hour <= 7 {
			hour += 12
		}
		return hour, minute, true
	}
	if m := noonTime.FindStringSubmatch(text); m != nil {
		if m[1] == "midnight" {
			return 0, 0, true
		}
		return 12, 0, true
	}
	if m := bareAtTime.FindStringSubmatch(text); m != nil {
		hour, _ = strconv.Atoi(m[1])
		if hour < 1 || hour > 23 {
			return 0, 0, false
		}
		if hour <= 7 {
			hour += 12
		}
		return hour, 0, true
	}
	return 0, 0, false
}

// parseDate reports the date named in text. found is false when text names no
// date; valid is false when it names one that does not exist.
func parseDate(text string, now time.Time) (date time.Time, found, valid bool) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	if m := relativeDate.FindStringSubmatch(text); m != nil {
		switch m[1] {
		case "today", "tonight":
			return today, true, true
		case "tomorrow":
			return today.AddDate(0, 0, 1), true, true
		case "day after tomorrow":
			return today.AddDate(0, 0, 2), true, true
		case "next week":
			return today.AddDate(0, 0, 7), true, true
		}
	}

	if m := weekdayDate.FindStringSubmatch(text); m != nil {
		target := weekdays[m[2]]
		ahead := int(target - today.Weekday())
		if ahead <= 0 {
			ahead += 7
		}
		return today.AddDate(0, 0, ahead), true, true
	}

	if m := isoDate.FindStringSubmatch(text); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		d, ok := makeDate(year, month, day, now.Location())
		return d, true, ok
	}
	if m := usDateYear.FindStringSubmatch(text); m != nil {
		month, _ := strconv.Atoi(m[1])
		day, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		d, ok := makeDate(year, month, day, now.Location())
		return d, true, ok
	}
	if m := usDate.FindStringSubmatch(text); m != nil {
		month, _ := strconv.Atoi(m[1])
		day, _ := strconv.Atoi(m[2])
		d, ok := makeDate(now.Year(), month, day, now.Location())
		return d, true, ok
	}

	return today, false, true
}

// makeDate rejects dates that time.Date would normalize, such as February 30
func makeDate(year, month, day int, loc *time.Location) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 {
		return time.Time{}, false
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)
	if d.Month() != time.Month(month) || d.Day() != day {
		return time.Time{}, false
	}
	return d, true
}
