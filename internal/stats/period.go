package stats

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidResolution = errors.New("invalid resolution")

// Resolution is the calendar period PSR values are aggregated over.
type Resolution string

const (
	ResolutionYear    Resolution = "Y"
	ResolutionQuarter Resolution = "Q"
	ResolutionMonth   Resolution = "M"
	ResolutionWeek    Resolution = "W"
	ResolutionDay     Resolution = "D"
)

// Resolutions lists every resolution from coarsest to finest.
var Resolutions = []Resolution{ResolutionYear, ResolutionQuarter, ResolutionMonth, ResolutionWeek, ResolutionDay}

func ParseResolution(s string) (Resolution, error) {
	r := Resolution(s)
	switch r {
	case ResolutionYear, ResolutionQuarter, ResolutionMonth, ResolutionWeek, ResolutionDay:
		return r, nil
	}
	return "", fmt.Errorf("%w %q (must be one of Y, Q, M, W, D)", ErrInvalidResolution, s)
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// PeriodStart returns midnight of the first day of the period containing t.
// Weeks run Monday through Sunday.
func (r Resolution) PeriodStart(t time.Time) time.Time {
	d := day(t)
	switch r {
	case ResolutionYear:
		return time.Date(d.Year(), time.January, 1, 0, 0, 0, 0, d.Location())
	case ResolutionQuarter:
		m := (int(d.Month())-1)/3*3 + 1
		return time.Date(d.Year(), time.Month(m), 1, 0, 0, 0, 0, d.Location())
	case ResolutionMonth:
		return time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, d.Location())
	case ResolutionWeek:
		offset := (int(d.Weekday()) + 6) % 7
		return d.AddDate(0, 0, -offset)
	default:
		return d
	}
}

// Next returns the start of the period following the one that starts at start.
func (r Resolution) Next(start time.Time) time.Time {
	switch r {
	case ResolutionYear:
		return start.AddDate(1, 0, 0)
	case ResolutionQuarter:
		return start.AddDate(0, 3, 0)
	case ResolutionMonth:
		return start.AddDate(0, 1, 0)
	case ResolutionWeek:
		return start.AddDate(0, 0, 7)
	default:
		return start.AddDate(0, 0, 1)
	}
}

// PeriodLabel returns the last calendar day of the period that starts at start.
func (r Resolution) PeriodLabel(start time.Time) time.Time {
	return r.Next(start).AddDate(0, 0, -1)
}
