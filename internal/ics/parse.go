package ics

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	ical "github.com/arran4/golang-ical"
)

var (
	// ErrMalformedDocument is returned when the input cannot be parsed as an
	// iCalendar document at all.
	ErrMalformedDocument = errors.New("malformed calendar document")

	// ErrMissingField is returned by the typed accessors when a required
	// property is absent or empty.
	ErrMissingField = errors.New("missing required property")

	// ErrUndecodableText is returned when a text property is not valid UTF-8.
	ErrUndecodableText = errors.New("property value is not valid UTF-8")
)

const (
	propCalName  = "X-WR-CALNAME"
	propName     = "NAME"
	propRecurID  = ical.ComponentProperty("RECURRENCE-ID")
	paramTZID    = "TZID"
	paramValue   = "VALUE"
	valueTypeDay = "DATE"
)

// Document is a parsed calendar export.
type Document struct {
	// CalendarName is the calendar display name; it is attached to every
	// record derived from this document.
	CalendarName string
	Events       []EventBlock
}

// EventBlock is a read-only view of one VEVENT. It exposes typed accessors
// instead of the raw property list so that a missing or undecodable field
// surfaces as an error on that one event.
type EventBlock struct {
	ve *ical.VEvent
}

// Temporal is the raw form of a DATE or DATE-TIME property value.
type Temporal struct {
	Value string
	TZID  string
	// DateOnly is set when the property carried VALUE=DATE.
	DateOnly bool
}

// ParseDocument parses a raw iCalendar document. It does not validate
// individual events; that happens when each EventBlock is normalized.
func ParseDocument(body []byte) (Document, error) {
	var doc Document

	if len(bytes.TrimSpace(body)) == 0 {
		return doc, fmt.Errorf("%w: empty document", ErrMalformedDocument)
	}
	if !utf8.Valid(body) {
		return doc, fmt.Errorf("%w: document is not valid UTF-8", ErrMalformedDocument)
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return doc, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	if cal == nil {
		return doc, fmt.Errorf("%w: no VCALENDAR component", ErrMalformedDocument)
	}

	doc.CalendarName = calendarName(cal)
	for _, ve := range cal.Events() {
		doc.Events = append(doc.Events, EventBlock{ve: ve})
	}
	return doc, nil
}

// calendarName returns X-WR-CALNAME, falling back to the RFC 7986 NAME
// property and then to the empty string.
func calendarName(cal *ical.Calendar) string {
	var fallback string
	for _, p := range cal.CalendarProperties {
		switch strings.ToUpper(p.IANAToken) {
		case propCalName:
			if p.Value != "" {
				return p.Value
			}
		case propName:
			if fallback == "" {
				fallback = p.Value
			}
		}
	}
	return fallback
}

// Text returns the value of a text property, or ErrMissingField when it is
// absent or empty.
func (b EventBlock) Text(prop ical.ComponentProperty) (string, error) {
	p := b.ve.GetProperty(prop)
	if p == nil || p.Value == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingField, prop)
	}
	if !utf8.ValidString(p.Value) {
		return "", fmt.Errorf("%w: %s", ErrUndecodableText, prop)
	}
	return p.Value, nil
}

// Temporal returns the raw DATE/DATE-TIME value of prop together with its
// TZID and VALUE parameters.
func (b EventBlock) Temporal(prop ical.ComponentProperty) (Temporal, error) {
	p := b.ve.GetProperty(prop)
	if p == nil || strings.TrimSpace(p.Value) == "" {
		return Temporal{}, fmt.Errorf("%w: %s", ErrMissingField, prop)
	}
	return temporalOf(p.BaseProperty), nil
}

// Temporals returns every value of a possibly repeated, possibly
// comma-separated DATE/DATE-TIME property such as EXDATE.
func (b EventBlock) Temporals(prop ical.ComponentProperty) []Temporal {
	var out []Temporal
	for _, p := range b.properties(prop) {
		base := temporalOf(p.BaseProperty)
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			t := base
			t.Value = part
			out = append(out, t)
		}
	}
	return out
}

// RecurrenceID returns the RECURRENCE-ID of an overriding instance.
func (b EventBlock) RecurrenceID() (Temporal, bool) {
	t, err := b.Temporal(propRecurID)
	if err != nil {
		return Temporal{}, false
	}
	return t, true
}

// Attendees returns the ATTENDEE values in document order. Absent means
// empty, never nil.
func (b EventBlock) Attendees() []string {
	props := b.properties(ical.ComponentPropertyAttendee)
	out := make([]string, 0, len(props))
	for _, p := range props {
		if p.Value == "" {
			continue
		}
		out = append(out, p.Value)
	}
	return out
}

// Rule returns the raw RRULE value if the event recurs.
func (b EventBlock) Rule() (string, bool) {
	p := b.ve.GetProperty(ical.ComponentPropertyRrule)
	if p == nil || strings.TrimSpace(p.Value) == "" {
		return "", false
	}
	return p.Value, true
}

// properties returns every occurrence of a repeatable property.
func (b EventBlock) properties(prop ical.ComponentProperty) []ical.IANAProperty {
	var out []ical.IANAProperty
	for _, p := range b.ve.Properties {
		if strings.EqualFold(p.IANAToken, string(prop)) {
			out = append(out, p)
		}
	}
	return out
}

// Raw dumps the event's properties, one per line, for diagnostics.
func (b EventBlock) Raw() string {
	var sb strings.Builder
	sb.WriteString("BEGIN:VEVENT\n")
	for _, p := range b.ve.Properties {
		sb.WriteString(p.IANAToken)
		keys := make([]string, 0, len(p.ICalParameters))
		for k := range p.ICalParameters {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			sb.WriteString(";" + k + "=" + strings.Join(p.ICalParameters[k], ","))
		}
		sb.WriteString(":" + p.Value + "\n")
	}
	sb.WriteString("END:VEVENT")
	return sb.String()
}

func temporalOf(p ical.BaseProperty) Temporal {
	t := Temporal{Value: strings.TrimSpace(p.Value)}
	if tz, ok := p.ICalParameters[paramTZID]; ok && len(tz) > 0 {
		t.TZID = strings.Trim(tz[0], `"`)
	}
	if vs, ok := p.ICalParameters[paramValue]; ok && len(vs) > 0 && strings.EqualFold(vs[0], valueTypeDay) {
		t.DateOnly = true
	}
	return t
}
