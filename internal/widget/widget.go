// Package widget wires the booking widget core together: ingestion of
// server records, the occupancy grid, table selection and reservation
// submission.
package widget

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"osteria/internal/availability"
	"osteria/internal/booking"
	"osteria/internal/events"
	"osteria/internal/ingest"
	"osteria/internal/metrics"
	"osteria/internal/models"
	"osteria/internal/selection"
	"osteria/internal/slot"
)

// ErrClosed is returned by operations on a torn-down widget.
var ErrClosed = errors.New("booking widget is closed")

// IngestionError wraps a failed data fetch. The previous occupancy
// state is left intact; retrying is the caller's responsibility.
type IngestionError struct {
	Source string
	Err    error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Source, e.Err)
}

func (e *IngestionError) Unwrap() error { return e.Err }

// DateRange is the external date-selection widget: the active window
// bounds plus the currently displayed date.
type DateRange interface {
	MinDate() slot.DateKey
	MaxDate() slot.DateKey
	CurrentDate() slot.DateKey
}

// HourProvider is the external hour-selection widget.
type HourProvider interface {
	CurrentHour() string // "HH:MM"
}

// TableRegistry enumerates the tables whose occupancy must be
// reflected and accepts their booked/selected flags.
type TableRegistry interface {
	Tables() []models.TableID
	Apply(states []selection.TableState)
}

// Fetcher performs the three independent record queries of the data
// fetch contract. Repeating events are date-independent and fetched
// unfiltered.
type Fetcher interface {
	FetchBookings(ctx context.Context, w slot.Window) ([]models.Record, error)
	FetchCurrentEvents(ctx context.Context, w slot.Window) ([]models.Record, error)
	FetchRepeatingEvents(ctx context.Context) ([]models.Record, error)
}

// Widget is one booking-widget instance. It replaces the source's
// global app object: every collaborator is injected at construction.
type Widget struct {
	dates     DateRange
	hours     HourProvider
	registry  TableRegistry
	fetcher   Fetcher
	submitter booking.Submitter
	expander  *ingest.Expander
	bus       *events.Bus
	logger    zerolog.Logger

	mu     sync.Mutex
	store  *availability.Store
	ctrl   *selection.Controller
	closed bool
}

// New constructs a widget with an empty occupancy grid, positioned on
// the providers' current slot. Call Load to populate it.
func New(dates DateRange, hours HourProvider, registry TableRegistry,
	fetcher Fetcher, submitter booking.Submitter, bus *events.Bus, logger zerolog.Logger) *Widget {

	store := availability.NewStore()
	w := &Widget{
		dates:     dates,
		hours:     hours,
		registry:  registry,
		fetcher:   fetcher,
		submitter: submitter,
		expander:  ingest.NewExpander(logger),
		bus:       bus,
		logger:    logger,
		store:     store,
		ctrl:      selection.NewController(store),
	}
	w.ctrl.SetSlot(dates.CurrentDate(), w.currentTick())
	return w
}

// Bus returns the widget's event bus for listener registration.
func (w *Widget) Bus() *events.Bus { return w.bus }

// Window returns the active date window.
func (w *Widget) Window() slot.Window {
	return slot.Window{Min: w.dates.MinDate(), Max: w.dates.MaxDate()}
}

// Load fetches the three record batches in parallel, joins them,
// expands them into a fresh occupancy grid and swaps it in atomically.
// A failure in any fetch leaves the previous grid intact. Concurrent
// loads do not queue: whichever completes last wins, and a load
// completing after Close is discarded.
func (w *Widget) Load(ctx context.Context) error {
	window := w.Window()

	var (
		wg      sync.WaitGroup
		batches models.Batches
		errs    [3]error
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		batches.Bookings, errs[0] = w.fetcher.FetchBookings(ctx, window)
	}()
	go func() {
		defer wg.Done()
		batches.EventsCurrent, errs[1] = w.fetcher.FetchCurrentEvents(ctx, window)
	}()
	go func() {
		defer wg.Done()
		batches.EventsRepeat, errs[2] = w.fetcher.FetchRepeatingEvents(ctx)
	}()
	wg.Wait()

	for i, source := range []string{"bookings", "events_current", "events_repeat"} {
		if errs[i] != nil {
			metrics.IncIngestion("error")
			w.logger.Error().Err(errs[i]).Str("source", source).Msg("ingestion fetch failed")
			return &IngestionError{Source: source, Err: errs[i]}
		}
	}

	fresh := w.expander.Expand(batches, window)
	return w.commit(fresh)
}

// commit installs a freshly built occupancy grid and re-publishes
// table states for the displayed slot.
func (w *Widget) commit(fresh *availability.Store) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		w.logger.Debug().Msg("discarding ingestion result after close")
		return ErrClosed
	}
	w.store = fresh
	kept := w.ctrl.SetOccupancy(fresh)
	w.mu.Unlock()

	if !kept {
		w.bus.Publish(events.Event{Type: events.TypeSelectionChanged})
	}
	w.bus.Publish(events.Event{Type: events.TypeAvailabilityUpdated})
	w.publishStates()
	return nil
}

// Refresh re-derives the free/booked classification for the slot the
// providers currently display. Any selection is cleared: it was scoped
// to the previous slot.
func (w *Widget) Refresh() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.ctrl.SetSlot(w.dates.CurrentDate(), w.currentTick())
	w.mu.Unlock()
	w.publishStates()
}

// OnTableClick handles a user click on a table. It returns
// selection.ErrTableUnavailable for a booked table so the UI can
// surface the notice; the selection state is untouched in that case.
func (w *Widget) OnTableClick(table models.TableID) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	_, err := w.ctrl.Click(table)
	w.mu.Unlock()
	if err != nil {
		return err
	}
	w.bus.Publish(events.Event{Type: events.TypeSelectionChanged})
	w.publishStates()
	return nil
}

// Selected returns the currently selected table, if any.
func (w *Widget) Selected() (models.TableID, bool) {
	return w.ctrl.Selected()
}

// IsFree answers an occupancy query against the current grid.
func (w *Widget) IsFree(date slot.DateKey, tick slot.Tick, table models.TableID) bool {
	w.mu.Lock()
	store := w.store
	w.mu.Unlock()
	return store.IsFree(date, tick, table)
}

// Submit assembles a reservation from the current selection and widget
// values and sends it. On acceptance the server's record snapshot is
// re-ingested as ground truth (authoritative reconciliation), so a
// concurrent booking by another client is reflected rather than
// papered over. On any failure the local grid is unchanged.
func (w *Widget) Submit(ctx context.Context, in booking.Inputs) (*booking.Result, error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil, ErrClosed
	}
	date, tick := w.ctrl.Slot()
	table, ok := w.ctrl.Selected()
	w.mu.Unlock()
	if !ok {
		metrics.IncReservation("invalid")
		return nil, booking.ErrNoSelection
	}

	window := w.Window()
	result, err := booking.Submit(ctx, w.submitter, w.logger, window, date, tick, table, in)
	if err != nil {
		return nil, err
	}

	fresh := w.expander.Expand(result.Snapshot, window)
	if err := w.commit(fresh); err != nil {
		return nil, err
	}
	w.bus.Publish(events.Event{Type: events.TypeReservationAccepted, Payload: result.Reservation})
	return result, nil
}

// Close tears the widget down. In-flight loads resolve but their
// results are discarded; no stale writes reach the grid.
func (w *Widget) Close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
}

func (w *Widget) currentTick() slot.Tick {
	tick, err := slot.ParseHour(w.hours.CurrentHour())
	if err != nil {
		w.logger.Warn().Err(err).Msg("hour provider returned unparsable value")
		return 0
	}
	return tick
}

func (w *Widget) publishStates() {
	w.registry.Apply(w.ctrl.Classify(w.registry.Tables()))
}
