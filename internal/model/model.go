package model

import "time"

// RecordData is the payload attached to every imported activity record.
//
// UID is the deduplication key: it is unique within a destination bucket.
// For instances of a recurring event it is derived from the base UID and
// the instance start (see ics.InstanceUID).
type RecordData struct {
	// Title is nil only for records that have not been labelled yet by the
	// caller (the recurrence expander produces untitled records).
	Title        *string  `json:"title"`
	Attendees    []string `json:"attendees"`
	UID          string   `json:"uid"`
	CalendarName string   `json:"calendar_name"`
}

// ActivityRecord is a single timestamped activity handed to the storage
// collaborator. Records are not mutated once handed to a batch.
type ActivityRecord struct {
	Timestamp time.Time
	Duration  time.Duration
	Data      RecordData
}

// End returns the time at which the activity ends.
func (r ActivityRecord) End() time.Time {
	return r.Timestamp.Add(r.Duration)
}

// StringPtr is a small helper to build RecordData.Title.
func StringPtr(s string) *string {
	return &s
}
