package timewindow

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidRange is returned for malformed, incomplete or inverted ranges.
var ErrInvalidRange = errors.New("invalid time range")

const (
	RangeYear    = "year"
	RangeQuarter = "quarter"
	RangeMonth   = "month"
	RangeCustom  = "custom"
)

const dateLayout = "2006-01-02"

// RangeError describes which part of the requested range was rejected.
type RangeError struct {
	Field  string
	Value  string
	Reason string
}

func (e *RangeError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s: %s %s", ErrInvalidRange, e.Field, e.Reason)
	}
	return fmt.Sprintf("%s: %s %q %s", ErrInvalidRange, e.Field, e.Value, e.Reason)
}

func (e *RangeError) Unwrap() error { return ErrInvalidRange }

// Range is the filter tuple sent by the dashboard.
type Range struct {
	TimeRange string
	StartDate string
	EndDate   string
}

// Window is a resolved, inclusive [start, end] interval anchored to a location.
type Window struct {
	label string
	start time.Time
	end   time.Time
	loc   *time.Location
}

// EnsureLocation returns UTC when loc is nil.
func EnsureLocation(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}

// Resolve turns the filter tuple into a concrete window. Explicit dates win over
// the named period; named periods run from the start of the current
// year/quarter/month up to now.
func Resolve(r Range, now time.Time, loc *time.Location) (Window, error) {
	loc = EnsureLocation(loc)
	now = now.In(loc)

	startRaw := strings.TrimSpace(r.StartDate)
	endRaw := strings.TrimSpace(r.EndDate)
	period := strings.ToLower(strings.TrimSpace(r.TimeRange))

	if startRaw != "" && endRaw != "" {
		return customWindow(startRaw, endRaw, loc)
	}

	switch period {
	case "", RangeYear:
		return Window{label: RangeYear, start: time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, loc), end: now, loc: loc}, nil
	case RangeQuarter:
		first := time.Month((int(now.Month())-1)/3*3 + 1)
		return Window{label: RangeQuarter, start: time.Date(now.Year(), first, 1, 0, 0, 0, 0, loc), end: now, loc: loc}, nil
	case RangeMonth:
		return Window{label: RangeMonth, start: time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc), end: now, loc: loc}, nil
	case RangeCustom:
		field := "startDate"
		if startRaw != "" {
			field = "endDate"
		}
		return Window{}, &RangeError{Field: field, Reason: "is required for a custom range"}
	default:
		return Window{}, &RangeError{Field: "timeRange", Value: r.TimeRange, Reason: "is not one of year, quarter, month, custom"}
	}
}

func customWindow(startRaw, endRaw string, loc *time.Location) (Window, error) {
	start, err := parseDate(startRaw, loc)
	if err != nil {
		return Window{}, &RangeError{Field: "startDate", Value: startRaw, Reason: "is not a valid date"}
	}
	end, err := parseDate(endRaw, loc)
	if err != nil {
		return Window{}, &RangeError{Field: "endDate", Value: endRaw, Reason: "is not a valid date"}
	}
	// the end date covers its whole calendar day
	end = end.AddDate(0, 0, 1).Add(-time.Second)
	if end.Before(start) {
		return Window{}, &RangeError{Field: "endDate", Value: endRaw, Reason: "is before startDate"}
	}
	return Window{label: RangeCustom, start: start, end: end, loc: loc}, nil
}

func parseDate(raw string, loc *time.Location) (time.Time, error) {
	if t, err := time.ParseInLocation(dateLayout, raw, loc); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc), nil
}

// Label returns year, quarter, month or custom.
func (w Window) Label() string { return w.label }

// Start returns the inclusive start.
func (w Window) Start() time.Time { return w.start }

// End returns the inclusive end.
func (w Window) End() time.Time { return w.end }

func (w Window) StartUnix() int64 { return w.start.Unix() }

func (w Window) EndUnix() int64 { return w.end.Unix() }

// Location returns the reporting timezone for the window.
func (w Window) Location() *time.Location { return EnsureLocation(w.loc) }

// Contains reports whether the unix second falls within [start, end].
func (w Window) Contains(unix int64) bool {
	return unix >= w.StartUnix() && unix <= w.EndUnix()
}

// Key is stable for the lifetime of a named period so cached views survive
// between requests even though "now" keeps moving.
func (w Window) Key() string {
	switch w.label {
	case RangeCustom:
		return fmt.Sprintf("custom:%s_%s@%s", w.start.Format(dateLayout), w.end.Format(dateLayout), w.Location().String())
	case "":
		return "none"
	default:
		return fmt.Sprintf("%s:%s@%s", w.label, w.start.Format(dateLayout), w.Location().String())
	}
}

// Format renders a unix second as a calendar date in the window's zone.
func (w Window) Format(unix int64) string {
	return time.Unix(unix, 0).In(w.Location()).Format(dateLayout)
}
