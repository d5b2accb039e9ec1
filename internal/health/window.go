package health

import (
	"time"
)

const (
	DefaultHistoryWeeks = 16
	week                = 7 * 24 * time.Hour
)

// Window is a closed time range in datapool time: wall clock of the site location,
// labelled UTC, the way the datapool stores timestamps.
type Window struct {
	From time.Time
	To   time.Time
}

func today(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

// PSRWindow spans the given number of weeks up to yesterday 23:59:59, so the current week
// only includes complete days.
func PSRWindow(now time.Time, loc *time.Location, weeks int) Window {
	t := today(now, loc)
	return Window{
		From: t.Add(-time.Duration(weeks) * week),
		To:   t.Add(-time.Second),
	}
}

// DriftWindows returns the last week and the weeks before it back to the history start.
func DriftWindows(now time.Time, loc *time.Location, weeks int) (current, historic Window) {
	t := today(now, loc)
	current = Window{From: t.Add(-week), To: t}
	historic = Window{From: t.Add(-time.Duration(weeks) * week), To: t.Add(-week)}
	return current, historic
}
