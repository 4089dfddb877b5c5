package ics

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	appLog "awical/internal/log"
	"awical/internal/model"
)

const (
	defaultMaxOccurrencesPerEvent = 100000

	instanceLayout = "20060102T150405"
)

// ErrInvalidRule is returned when an RRULE value cannot be parsed.
var ErrInvalidRule = errors.New("invalid recurrence rule")

// InstanceUID derives the stable identity of one occurrence of a recurring
// event: the base UID, a "+", and the occurrence start formatted in its
// own location.
func InstanceUID(baseUID string, start time.Time) string {
	return baseUID + "+" + start.Format(instanceLayout)
}

// Recurrence describes one recurring event to expand.
type Recurrence struct {
	Rule     string
	Anchor   time.Time
	Duration time.Duration
	UID      string
	// ExDates are starts that are not generated (EXDATE and instances
	// replaced by a RECURRENCE-ID override).
	ExDates []time.Time
	// ExDays are calendar days on which no occurrence is generated,
	// compared against the occurrence start in the anchor's zone.
	ExDays []time.Time
}

// Expander unrolls recurrence rules up to the present.
type Expander struct {
	// Now returns the current time. If nil, time.Now is used.
	Now func() time.Time

	// MaxOccurrencesPerEvent caps the number of occurrences scanned for
	// one event. If zero, defaultMaxOccurrencesPerEvent is used.
	MaxOccurrencesPerEvent int
}

// Expand returns one untitled record per occurrence of rec that is not in
// logged, in chronological order. Scanning stops right after the first
// occurrence whose end is after now, whether that occurrence was emitted or
// already logged.
func (x Expander) Expand(rec Recurrence, logged LoggedSet) ([]model.ActivityRecord, error) {
	next, err := iterator(rec)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if x.Now != nil {
		now = x.Now()
	}
	limit := x.MaxOccurrencesPerEvent
	if limit <= 0 {
		limit = defaultMaxOccurrencesPerEvent
	}

	out := make([]model.ActivityRecord, 0)
	for scanned := 0; ; scanned++ {
		start, ok := next()
		if !ok {
			break
		}
		if scanned >= limit {
			appLog.Error("expand: truncated occurrences for UID due to cap",
				errors.New("max occurrences reached"),
				"uid", rec.UID,
				"cap", limit,
			)
			break
		}

		if excludedDay(start, rec.ExDays) {
			continue
		}

		uid := InstanceUID(rec.UID, start)
		r := model.ActivityRecord{
			Timestamp: start,
			Duration:  rec.Duration,
			Data:      model.RecordData{Attendees: []string{}, UID: uid},
		}
		if logged.Keep(uid) {
			out = append(out, r)
		}

		if r.End().After(now) {
			break
		}
	}
	return out, nil
}

func excludedDay(start time.Time, days []time.Time) bool {
	y, m, d := start.Date()
	for _, day := range days {
		dy, dm, dd := day.Date()
		if y == dy && m == dm && d == dd {
			return true
		}
	}
	return false
}

func iterator(rec Recurrence) (func() (time.Time, bool), error) {
	raw := strings.TrimSpace(rec.Rule)
	raw = strings.TrimPrefix(raw, "RRULE:")

	r, err := rrule.StrToRRule(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidRule, rec.Rule, err)
	}
	r.DTStart(rec.Anchor)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range rec.ExDates {
		set.ExDate(ex.In(rec.Anchor.Location()))
	}
	return set.Iterator(), nil
}
