package ics

import (
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"awical/internal/model"
)

// ErrInvalidTemporalField is returned when a DTSTART/DTEND (or EXDATE,
// RECURRENCE-ID) value is neither a DATE nor a DATE-TIME.
var ErrInvalidTemporalField = errors.New("invalid temporal field")

const (
	layoutUTC      = "20060102T150405Z"
	layoutFloating = "20060102T150405"
	layoutDate     = "20060102"
)

// EventError wraps a per-event failure with enough context to diagnose the
// source data. It never aborts a document.
type EventError struct {
	UID string
	Raw string
	Err error
}

func (e *EventError) Error() string {
	if e.UID == "" {
		return "event: " + e.Err.Error()
	}
	return fmt.Sprintf("event %s: %v", e.UID, e.Err)
}

func (e *EventError) Unwrap() error { return e.Err }

// Event is the canonical in-memory form of one VEVENT.
type Event struct {
	UID       string
	Title     string
	Attendees []string
	Start     time.Time
	End       time.Time
	// Duration is End - Start. It is not validated to be non-negative.
	Duration time.Duration

	// Rule is the raw RRULE value; empty for single events.
	Rule    string
	ExDates []time.Time
	// ExDays holds VALUE=DATE exclusions; they drop every occurrence that
	// starts on that calendar day.
	ExDays []time.Time
	// RecurrenceID is set when this VEVENT overrides one instance of a
	// recurring event with the same UID.
	RecurrenceID *time.Time
}

// Recurring reports whether the event needs recurrence expansion.
func (e Event) Recurring() bool {
	return e.Rule != "" && e.RecurrenceID == nil
}

// Identity is the deduplication key of a non-expanded event: the UID for a
// single event, the instance identity for an override.
func (e Event) Identity() string {
	if e.RecurrenceID != nil {
		return InstanceUID(e.UID, *e.RecurrenceID)
	}
	return e.UID
}

// Record builds the activity record of a single (or overriding) event.
func (e Event) Record(calendarName string) model.ActivityRecord {
	return model.ActivityRecord{
		Timestamp: e.Start,
		Duration:  e.Duration,
		Data:      e.data(e.Identity(), calendarName),
	}
}

// Label fills in the fields the expander does not know about.
func (e Event) Label(r model.ActivityRecord, calendarName string) model.ActivityRecord {
	r.Data = e.data(r.Data.UID, calendarName)
	return r
}

func (e Event) data(uid, calendarName string) model.RecordData {
	attendees := make([]string, len(e.Attendees))
	copy(attendees, e.Attendees)
	return model.RecordData{
		Title:        model.StringPtr(e.Title),
		Attendees:    attendees,
		UID:          uid,
		CalendarName: calendarName,
	}
}

// Normalizer converts event blocks into Events.
type Normalizer struct {
	// Location is used for floating date-times and for DATE values.
	// If nil, time.Local is used.
	Location *time.Location
}

// Normalize extracts one event block. Any failure is returned as an
// *EventError carrying the raw block.
func (n Normalizer) Normalize(b EventBlock) (Event, error) {
	ev, err := n.normalize(b)
	if err != nil {
		return Event{}, &EventError{UID: ev.UID, Raw: b.Raw(), Err: err}
	}
	return ev, nil
}

func (n Normalizer) normalize(b EventBlock) (Event, error) {
	var ev Event
	var err error

	// UID first so that later failures can be reported against it.
	if ev.UID, err = b.Text(ical.ComponentPropertyUniqueId); err != nil {
		return ev, err
	}
	if ev.Title, err = b.Text(ical.ComponentPropertySummary); err != nil {
		return ev, err
	}

	start, err := b.Temporal(ical.ComponentPropertyDtStart)
	if err != nil {
		return ev, err
	}
	if ev.Start, err = n.DateTime(start); err != nil {
		return ev, fmt.Errorf("DTSTART: %w", err)
	}
	end, err := b.Temporal(ical.ComponentPropertyDtEnd)
	if err != nil {
		return ev, err
	}
	if ev.End, err = n.DateTime(end); err != nil {
		return ev, fmt.Errorf("DTEND: %w", err)
	}
	ev.Duration = ev.End.Sub(ev.Start)
	ev.Attendees = b.Attendees()

	if rule, ok := b.Rule(); ok {
		ev.Rule = rule
		for _, t := range b.Temporals(ical.ComponentPropertyExdate) {
			ex, err := n.DateTime(t)
			if err != nil {
				return ev, fmt.Errorf("EXDATE: %w", err)
			}
			if isDate(t) {
				ev.ExDays = append(ev.ExDays, ex)
				continue
			}
			ev.ExDates = append(ev.ExDates, ex)
		}
	}

	if rid, ok := b.RecurrenceID(); ok {
		t, err := n.DateTime(rid)
		if err != nil {
			return ev, fmt.Errorf("RECURRENCE-ID: %w", err)
		}
		ev.RecurrenceID = &t
	}

	return ev, nil
}

// DateTime coerces a DATE or DATE-TIME value to a time.Time. DATE values
// map to midnight. UTC values keep UTC, TZID values use that zone and
// floating values use the normalizer's location.
func (n Normalizer) DateTime(t Temporal) (time.Time, error) {
	v := strings.TrimSpace(t.Value)
	loc := n.location(t.TZID)

	switch {
	case isDate(t):
		return parseIn(layoutDate, v, loc)
	case t.DateOnly:
		return time.Time{}, fmt.Errorf("%w: VALUE=DATE with %q", ErrInvalidTemporalField, v)
	case strings.HasSuffix(v, "Z"):
		ts, err := time.Parse(layoutUTC, v)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTemporalField, v)
		}
		return ts, nil
	default:
		return parseIn(layoutFloating, v, loc)
	}
}

func isDate(t Temporal) bool {
	v := strings.TrimSpace(t.Value)
	return len(v) == len(layoutDate) && !strings.Contains(v, "T")
}

func (n Normalizer) location(tzid string) *time.Location {
	if tzid != "" {
		if loc, err := time.LoadLocation(tzid); err == nil {
			return loc
		}
	}
	if n.Location != nil {
		return n.Location
	}
	return time.Local
}

func parseIn(layout, v string, loc *time.Location) (time.Time, error) {
	ts, err := time.ParseInLocation(layout, v, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTemporalField, v)
	}
	return ts, nil
}
