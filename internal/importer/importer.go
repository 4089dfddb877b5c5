package importer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"awical/internal/ics"
	appLog "awical/internal/log"
	"awical/internal/model"
)

// Reporter receives one human-readable status line per processed document.
type Reporter interface {
	Update(msg string)
}

type nopReporter struct{}

func (nopReporter) Update(string) {}

// Result summarizes one processed document.
type Result struct {
	CalendarName string
	// Events is the number of VEVENTs in the document.
	Events int
	// Skipped counts VEVENTs dropped because of per-event errors.
	Skipped int
	// Added is the number of records inserted.
	Added int
}

// Importer turns calendar documents into activity records in one bucket.
// Documents are processed one at a time; callers must not run ImportFile
// or ImportDocument concurrently on the same Importer.
type Importer struct {
	bucket     string
	normalizer ics.Normalizer
	expander   ics.Expander
	emitter    Emitter
	reporter   Reporter
}

type Option func(*Importer)

// WithLocation sets the zone used for floating times and DATE values.
func WithLocation(loc *time.Location) Option {
	return func(im *Importer) { im.normalizer.Location = loc }
}

// WithClock overrides the time source of the recurrence expander.
func WithClock(now func() time.Time) Option {
	return func(im *Importer) { im.expander.Now = now }
}

// WithMaxOccurrences caps recurrence expansion per event.
func WithMaxOccurrences(n int) Option {
	return func(im *Importer) { im.expander.MaxOccurrencesPerEvent = n }
}

// WithReporter sets the status reporter.
func WithReporter(r Reporter) Option {
	return func(im *Importer) {
		if r != nil {
			im.reporter = r
		}
	}
}

func New(store Store, bucket string, opts ...Option) *Importer {
	im := &Importer{
		bucket:   bucket,
		emitter:  Emitter{store: store},
		reporter: nopReporter{},
	}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// ImportFile reads one export file and imports it.
func (im *Importer) ImportFile(ctx context.Context, path string) (Result, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("read %s: %w", path, err)
	}
	res, err := im.ImportDocument(ctx, body)
	if err != nil {
		return res, fmt.Errorf("import %s: %w", path, err)
	}
	return res, nil
}

// ImportDocument parses body, drops every record whose UID is already in
// the bucket and inserts the rest as one batch.
//
// ics.ErrMalformedDocument means nothing was inserted and the document
// should not be retried as is. A *TransportError may be retried later;
// records are deduplicated again on the next attempt.
func (im *Importer) ImportDocument(ctx context.Context, body []byte) (Result, error) {
	var res Result

	doc, err := ics.ParseDocument(body)
	if err != nil {
		recordDocument(outcomeMalformed)
		return res, err
	}
	res.CalendarName = doc.CalendarName
	res.Events = len(doc.Events)

	logged, err := im.snapshot(ctx)
	if err != nil {
		recordDocument(outcomeTransport)
		return res, err
	}

	batch, skipped := im.Build(doc, logged)
	res.Skipped = skipped
	recordSkipped(skipped)

	added, err := im.emitter.Emit(ctx, im.bucket, batch)
	if err != nil {
		recordDocument(outcomeTransport)
		return res, err
	}
	res.Added = added
	recordDocument(outcomeImported)
	recordAdded(added)

	appLog.Info("calendar imported",
		"calendar", doc.CalendarName,
		"bucket", im.bucket,
		"events", res.Events,
		"skipped", res.Skipped,
		"added", res.Added,
	)
	im.reporter.Update(fmt.Sprintf("Added %d item(s)", added))
	return res, nil
}

// snapshot reads the UIDs already present in the bucket.
func (im *Importer) snapshot(ctx context.Context) (ics.LoggedSet, error) {
	existing, err := im.emitter.store.GetEvents(ctx, im.bucket)
	if err != nil {
		return ics.LoggedSet{}, err
	}
	uids := make([]string, 0, len(existing))
	for _, r := range existing {
		if r.Data.UID != "" {
			uids = append(uids, r.Data.UID)
		}
	}
	return ics.NewLoggedSet(uids...), nil
}

// Build normalizes, expands and deduplicates every event of doc against
// logged. Events that fail are logged with their raw content and counted
// in skipped; they never affect the other events.
func (im *Importer) Build(doc ics.Document, logged ics.LoggedSet) (batch []model.ActivityRecord, skipped int) {
	events := make([]ics.Event, 0, len(doc.Events))
	for _, block := range doc.Events {
		ev, err := im.normalizer.Normalize(block)
		if err != nil {
			skipped++
			logEventError(err)
			continue
		}
		events = append(events, ev)
	}

	// An override's RECURRENCE-ID is read in its master's zone so that it
	// yields the same instance identity as the generated occurrence.
	masters := make(map[string]*time.Location)
	for _, ev := range events {
		if ev.Recurring() {
			masters[ev.UID] = ev.Start.Location()
		}
	}

	// Overridden instances are emitted from their own VEVENT, so the
	// generated instance at that start is suppressed.
	overridden := make(map[string][]time.Time)
	for i, ev := range events {
		if ev.RecurrenceID == nil {
			continue
		}
		rid := *ev.RecurrenceID
		if loc, ok := masters[ev.UID]; ok {
			rid = rid.In(loc)
			events[i].RecurrenceID = &rid
		}
		overridden[ev.UID] = append(overridden[ev.UID], rid)
	}

	batch = make([]model.ActivityRecord, 0)
	for _, ev := range events {
		if !ev.Recurring() {
			if logged.Keep(ev.Identity()) {
				batch = append(batch, ev.Record(doc.CalendarName))
			}
			continue
		}

		exdates := append(append([]time.Time{}, ev.ExDates...), overridden[ev.UID]...)
		instances, err := im.expander.Expand(ics.Recurrence{
			Rule:     ev.Rule,
			Anchor:   ev.Start,
			Duration: ev.Duration,
			UID:      ev.UID,
			ExDates:  exdates,
			ExDays:   ev.ExDays,
		}, logged)
		if err != nil {
			skipped++
			logEventError(&ics.EventError{UID: ev.UID, Err: err})
			continue
		}
		for _, inst := range instances {
			batch = append(batch, ev.Label(inst, doc.CalendarName))
		}
	}
	return batch, skipped
}

func logEventError(err error) {
	var evErr *ics.EventError
	if errors.As(err, &evErr) {
		appLog.Error("error processing event", evErr.Err, "uid", evErr.UID, "raw", evErr.Raw)
		return
	}
	appLog.Error("error processing event", err)
}

// Emitter submits one document's records as a single batch.
type Emitter struct {
	store Store
}

// NewEmitter returns an Emitter writing to store.
func NewEmitter(store Store) Emitter {
	return Emitter{store: store}
}

// Emit inserts records in one call and returns how many were inserted.
// An empty batch is not sent. Failures are returned unchanged.
func (e Emitter) Emit(ctx context.Context, bucket string, records []model.ActivityRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	if err := e.store.InsertEvents(ctx, bucket, records); err != nil {
		return 0, err
	}
	return len(records), nil
}
