package slots

import (
	"strings"
	"time"

	"github.com/extrabeam/backend/pkg/apperr"
)

const (
	// DefaultWindow is used when a range query omits "to".
	DefaultWindow = 31 * 24 * time.Hour
	// MaxWindow bounds calendar queries.
	MaxWindow = 366 * 24 * time.Hour
)

// Window is a half-open time range [From, To).
type Window struct {
	From time.Time
	To   time.Time
}

// Overlaps reports whether [start, end) intersects the window.
func (w Window) Overlaps(start, end time.Time) bool {
	return start.Before(w.To) && end.After(w.From)
}

// ParseWindow reads "from" and "to" as RFC 3339 timestamps or YYYY-MM-DD dates (UTC).
// Missing from defaults to the start of today; missing to defaults to from + DefaultWindow.
func ParseWindow(from, to string, now time.Time) (Window, error) {
	var w Window
	var err error
	if strings.TrimSpace(from) == "" {
		y, m, d := now.UTC().Date()
		w.From = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	} else if w.From, err = parseInstant(from); err != nil {
		return Window{}, apperr.Invalid("invalid from")
	}
	if strings.TrimSpace(to) == "" {
		w.To = w.From.Add(DefaultWindow)
	} else if w.To, err = parseInstant(to); err != nil {
		return Window{}, apperr.Invalid("invalid to")
	}
	if !w.To.After(w.From) {
		return Window{}, apperr.Invalid("to must be after from")
	}
	if w.To.Sub(w.From) > MaxWindow {
		return Window{}, apperr.Invalid("window cannot exceed 366 days")
	}
	return w, nil
}

func parseInstant(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Parse("2006-01-02", s)
}
