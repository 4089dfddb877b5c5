package ics

import (
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeSingleEvent(t *testing.T) {
	doc := mustParse(t, calendar(vevent(
		"UID:abc123",
		"SUMMARY:Standup",
		"DTSTART:20240101T090000",
		"DTEND:20240101T091500",
	)...))

	n := Normalizer{Location: time.UTC}
	ev, err := n.Normalize(doc.Events[0])
	require.NoError(t, err)

	assert.Equal(t, "abc123", ev.UID)
	assert.Equal(t, "Standup", ev.Title)
	assert.Equal(t, 15*time.Minute, ev.Duration)
	assert.False(t, ev.Recurring())
	assert.NotNil(t, ev.Attendees)

	rec := ev.Record("Work")
	assert.Equal(t, time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), rec.Timestamp)
	assert.Equal(t, 15*time.Minute, rec.Duration)
	assert.Equal(t, "abc123", rec.Data.UID)
	require.NotNil(t, rec.Data.Title)
	assert.Equal(t, "Standup", *rec.Data.Title)
	assert.Equal(t, "Work", rec.Data.CalendarName)
	assert.Equal(t, []string{}, rec.Data.Attendees)
}

func TestNormalizeAllDayEvent(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	doc := mustParse(t, calendar(vevent(
		"UID:holiday",
		"SUMMARY:Holiday",
		"DTSTART;VALUE=DATE:20240704",
		"DTEND;VALUE=DATE:20240705",
	)...))

	ev, err := Normalizer{Location: loc}.Normalize(doc.Events[0])
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 7, 4, 0, 0, 0, 0, loc), ev.Start)
	assert.Equal(t, 24*time.Hour, ev.Duration)
}

func TestNormalizeNegativeDurationIsAccepted(t *testing.T) {
	doc := mustParse(t, calendar(vevent(
		"UID:backwards",
		"SUMMARY:Backwards",
		"DTSTART:20240101T100000Z",
		"DTEND:20240101T090000Z",
	)...))

	ev, err := Normalizer{}.Normalize(doc.Events[0])
	require.NoError(t, err)
	assert.Equal(t, -time.Hour, ev.Duration)
}

func TestNormalizeErrors(t *testing.T) {
	tests := []struct {
		name  string
		props []string
		want  error
	}{
		{
			name:  "missing summary",
			props: []string{"UID:u1", "DTSTART:20240101T090000Z", "DTEND:20240101T100000Z"},
			want:  ErrMissingField,
		},
		{
			name:  "missing uid",
			props: []string{"SUMMARY:x", "DTSTART:20240101T090000Z", "DTEND:20240101T100000Z"},
			want:  ErrMissingField,
		},
		{
			name:  "missing dtend",
			props: []string{"UID:u3", "SUMMARY:x", "DTSTART:20240101T090000Z"},
			want:  ErrMissingField,
		},
		{
			name:  "garbage start",
			props: []string{"UID:u4", "SUMMARY:x", "DTSTART:tomorrow", "DTEND:20240101T100000Z"},
			want:  ErrInvalidTemporalField,
		},
		{
			name:  "date flagged value with time",
			props: []string{"UID:u5", "SUMMARY:x", "DTSTART;VALUE=DATE:20240101T090000", "DTEND:20240101T100000Z"},
			want:  ErrInvalidTemporalField,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := mustParse(t, calendar(vevent(tt.props...)...))
			_, err := Normalizer{}.Normalize(doc.Events[0])
			require.ErrorIs(t, err, tt.want)

			var evErr *EventError
			require.True(t, errors.As(err, &evErr))
			assert.Contains(t, evErr.Raw, "BEGIN:VEVENT")
		})
	}
}

func TestNormalizeRecurringWithExdateAndOverride(t *testing.T) {
	doc := mustParse(t, calendar(append(
		vevent(
			"UID:weekly",
			"SUMMARY:Sync",
			"DTSTART:20240101T090000Z",
			"DTEND:20240101T093000Z",
			"RRULE:FREQ=WEEKLY",
			"EXDATE:20240108T090000Z",
		),
		vevent(
			"UID:weekly",
			"SUMMARY:Sync (moved)",
			"RECURRENCE-ID:20240115T090000Z",
			"DTSTART:20240116T090000Z",
			"DTEND:20240116T093000Z",
		)...)...))
	require.Len(t, doc.Events, 2)

	base, err := Normalizer{}.Normalize(doc.Events[0])
	require.NoError(t, err)
	assert.True(t, base.Recurring())
	assert.Equal(t, "FREQ=WEEKLY", base.Rule)
	assert.Equal(t, []time.Time{time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC)}, base.ExDates)

	override, err := Normalizer{}.Normalize(doc.Events[1])
	require.NoError(t, err)
	assert.False(t, override.Recurring())
	assert.Equal(t, "weekly+20240115T090000", override.Identity())
	assert.Equal(t, "weekly+20240115T090000", override.Record("").Data.UID)
}

func TestNormalizeDateExdate(t *testing.T) {
	doc := mustParse(t, calendar(vevent(
		"UID:daily",
		"SUMMARY:Sync",
		"DTSTART:20240101T090000Z",
		"DTEND:20240101T093000Z",
		"RRULE:FREQ=DAILY",
		"EXDATE;VALUE=DATE:20240103",
		"EXDATE:20240105T090000Z",
	)...))
	require.Len(t, doc.Events, 1)

	ev, err := Normalizer{Location: time.UTC}.Normalize(doc.Events[0])
	require.NoError(t, err)
	assert.Equal(t, []time.Time{time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)}, ev.ExDays)
	assert.Equal(t, []time.Time{time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC)}, ev.ExDates)
}

func TestDateTimeForms(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	n := Normalizer{Location: berlin}

	got, err := n.DateTime(Temporal{Value: "20240301T101500Z"})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 15, 0, 0, time.UTC), got)

	got, err = n.DateTime(Temporal{Value: "20240301T101500"})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 15, 0, 0, berlin), got)

	got, err = n.DateTime(Temporal{Value: "20240301T101500", TZID: "America/New_York"})
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", got.Location().String())
	assert.Equal(t, 10, got.Hour())

	got, err = n.DateTime(Temporal{Value: "20240301"})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, berlin), got)

	// Unknown zones fall back to the normalizer's location.
	got, err = n.DateTime(Temporal{Value: "20240301T101500", TZID: "Not/AZone"})
	require.NoError(t, err)
	assert.Equal(t, berlin, got.Location())

	_, err = n.DateTime(Temporal{Value: "2024-03-01"})
	require.ErrorIs(t, err, ErrInvalidTemporalField)
}
