package unavailabilities

import (
	"sort"
	"time"

	"github.com/extrabeam/backend/internal/models"
	"github.com/extrabeam/backend/internal/slots"
)

const (
	// maxSteps bounds the days or months visited per rule.
	maxSteps = 4000
	// maxOccurrences bounds a single expansion.
	maxOccurrences = 2000
)

// ExpandRecurrences returns the occurrences of all rules that overlap the window, sorted by start.
// Occurrences keep the base duration. Monthly rules skip months lacking the start day. An occurrence
// whose start date (UTC) is listed in the exceptions is dropped.
func ExpandRecurrences(items []models.Unavailability, w slots.Window) []models.Occurrence {
	out := []models.Occurrence{}
	for _, u := range items {
		out = append(out, Expand(u, w)...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	if len(out) > maxOccurrences {
		out = out[:maxOccurrences]
	}
	return out
}

// Expand returns the occurrences of one rule overlapping the window.
func Expand(u models.Unavailability, w slots.Window) []models.Occurrence {
	dur := u.EndsAt.Sub(u.StartsAt)
	if dur <= 0 {
		return nil
	}
	start := u.StartsAt.UTC()
	skip := exceptionSet(u.Exceptions)

	// Starts at or after last cannot produce an occurrence.
	last := w.To
	if u.RecurrenceUntil != nil {
		if end := endOfDay(*u.RecurrenceUntil); end.Before(last) {
			last = end
		}
	}

	var out []models.Occurrence
	emit := func(s time.Time) {
		if skip[dateKey(s)] {
			return
		}
		e := s.Add(dur)
		if s.Before(w.To) && e.After(w.From) {
			out = append(out, models.Occurrence{UnavailabilityID: u.ID, StartsAt: s, EndsAt: e, Reason: u.Reason})
		}
	}

	switch u.Recurrence {
	case models.RecurrenceDaily, models.RecurrenceWeekly:
		days := weekdaySet(u.Weekdays, start.Weekday())
		d := firstDay(start, w.From.Add(-dur))
		for i := 0; i < maxSteps && d.Before(last) && len(out) < maxOccurrences; i++ {
			if u.Recurrence == models.RecurrenceDaily || days[d.Weekday()] {
				emit(d)
			}
			d = d.AddDate(0, 0, 1)
		}
	case models.RecurrenceMonthly:
		k := monthsBetween(start, w.From.Add(-dur)) - 1
		if k < 0 {
			k = 0
		}
		for i := 0; i < maxSteps && len(out) < maxOccurrences; i, k = i+1, k+1 {
			d := time.Date(start.Year(), start.Month()+time.Month(k), start.Day(),
				start.Hour(), start.Minute(), start.Second(), start.Nanosecond(), time.UTC)
			if !d.Before(last) {
				break
			}
			if d.Day() != start.Day() {
				continue
			}
			emit(d)
		}
	default:
		emit(start)
	}
	return out
}

// firstDay returns the latest day-step from start that is not after t, or start itself.
func firstDay(start, t time.Time) time.Time {
	if !t.After(start) {
		return start
	}
	days := int(t.Sub(start) / (24 * time.Hour))
	return start.AddDate(0, 0, days)
}

func monthsBetween(a, b time.Time) int {
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
}

func weekdaySet(weekdays []int, fallback time.Weekday) map[time.Weekday]bool {
	set := make(map[time.Weekday]bool, 7)
	for _, wd := range weekdays {
		if wd >= 0 && wd <= 6 {
			set[time.Weekday(wd)] = true
		}
	}
	if len(set) == 0 {
		set[fallback] = true
	}
	return set
}

func exceptionSet(dates []time.Time) map[string]bool {
	set := make(map[string]bool, len(dates))
	for _, d := range dates {
		set[dateKey(d)] = true
	}
	return set
}

func dateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC)
}
