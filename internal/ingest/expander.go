// Package ingest turns raw reservation and event records into concrete
// occupancy facts.
package ingest

import (
	"github.com/rs/zerolog"

	"osteria/internal/availability"
	"osteria/internal/metrics"
	"osteria/internal/models"
	"osteria/internal/slot"
)

// Expander materializes record batches into an availability store.
// One-off records occupy their own interval; daily repeating events are
// expanded across every day of the active window. Repeat kinds other
// than daily are skipped so future kinds cannot break ingestion.
type Expander struct {
	logger zerolog.Logger
}

// NewExpander creates an expander logging diagnostics to logger.
func NewExpander(logger zerolog.Logger) *Expander {
	return &Expander{logger: logger}
}

// Expand builds a fresh store from the batches. A malformed record is
// skipped with a diagnostic; it never aborts the rest of the batch.
// The returned store is private to the caller until it swaps it in.
func (e *Expander) Expand(batches models.Batches, window slot.Window) *availability.Store {
	store := availability.NewStore()

	for _, rec := range batches.Bookings {
		e.apply(store, rec, "booking")
	}
	for _, rec := range batches.EventsCurrent {
		e.apply(store, rec, "event")
	}

	days := window.Days()
	for _, rec := range batches.EventsRepeat {
		if rec.Repeat != models.RepeatDaily {
			e.logger.Debug().
				Str("repeat", rec.Repeat).
				Int64("record_id", rec.ID).
				Msg("skipping unsupported repeat kind")
			continue
		}
		iv, err := rec.ResolveInterval()
		if err != nil {
			e.skip(rec, "repeating event", err)
			continue
		}
		for _, day := range days {
			store.Occupy(day, iv.Start, iv.Ticks, rec.Table)
		}
	}

	metrics.IncIngestion("ok")
	return store
}

func (e *Expander) apply(store *availability.Store, rec models.Record, kind string) {
	iv, err := rec.ResolveInterval()
	if err != nil {
		e.skip(rec, kind, err)
		return
	}
	store.Occupy(iv.Date, iv.Start, iv.Ticks, rec.Table)
}

func (e *Expander) skip(rec models.Record, kind string, err error) {
	metrics.IncRecordSkipped(kind)
	e.logger.Warn().
		Err(err).
		Str("kind", kind).
		Int64("record_id", rec.ID).
		Str("date", rec.Date).
		Str("hour", rec.Hour).
		Msg("skipping malformed record")
}
