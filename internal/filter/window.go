package filter

import (
	"fmt"
	"time"

	"storefront/internal/models"
)

// Window is a half-open time interval [From, To). Nil bounds are open.
type Window struct {
	From *time.Time
	To   *time.Time
}

func (w Window) Contains(t time.Time) bool {
	if w.From != nil && t.Before(*w.From) {
		return false
	}
	if w.To != nil && !t.Before(*w.To) {
		return false
	}
	return true
}

func (w Window) IsUnbounded() bool {
	return w.From == nil && w.To == nil
}

// ResolveWindow maps a time range key to a window. 3months and 6months count back
// from now; year is the calendar year of anchor (the earliest matching record),
// not the current year.
func ResolveWindow(rangeKey string, now time.Time, anchor *time.Time) (Window, error) {
	switch rangeKey {
	case "", models.TimeRangeAll:
		return Window{}, nil
	case models.TimeRange3Months:
		from := now.AddDate(0, -3, 0)
		return Window{From: &from}, nil
	case models.TimeRange6Months:
		from := now.AddDate(0, -6, 0)
		return Window{From: &from}, nil
	case models.TimeRangeYear:
		if anchor == nil {
			return Window{}, nil
		}
		from := time.Date(anchor.Year(), time.January, 1, 0, 0, 0, 0, anchor.Location())
		to := from.AddDate(1, 0, 0)
		return Window{From: &from, To: &to}, nil
	}
	return Window{}, fmt.Errorf("unknown time range %q", rangeKey)
}

func windowSQL(column string, w Window, a *Args) string {
	switch {
	case w.From != nil && w.To != nil:
		return fmt.Sprintf("%s >= %s AND %s < %s", column, a.Add(*w.From), column, a.Add(*w.To))
	case w.From != nil:
		return fmt.Sprintf("%s >= %s", column, a.Add(*w.From))
	case w.To != nil:
		return fmt.Sprintf("%s < %s", column, a.Add(*w.To))
	}
	return "TRUE"
}
