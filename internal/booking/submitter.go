// Package booking assembles reservation drafts and sends them to the
// backend.
package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"osteria/internal/metrics"
	"osteria/internal/models"
	"osteria/internal/slot"
)

var (
	// ErrNoSelection means no table was selected when submit was called.
	ErrNoSelection = errors.New("no table selected")

	// ErrConflict means the server rejected the reservation because the
	// slot was booked meanwhile. Distinct from generic submission
	// failure so the caller can refresh and re-prompt selection.
	ErrConflict = errors.New("slot was booked by someone else")
)

// ValidationError marks a draft rejected before any network call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Inputs carries the widget values read at submission time.
type Inputs struct {
	People   int
	Hours    int
	Starters []string
	Phone    string
	Address  string
}

// Result is the server's answer to an accepted reservation: the
// persisted record plus the authoritative record snapshot for the
// active window, which the widget re-ingests as ground truth.
type Result struct {
	Reservation models.Reservation `json:"reservation"`
	Snapshot    models.Batches     `json:"snapshot"`
}

// Submitter sends an assembled reservation to the backend. The window
// scopes the snapshot the server answers with; it must span the active
// date range, not just the reservation's day. An implementation must
// return ErrConflict (possibly wrapped) when the server reports the
// slot already taken.
type Submitter interface {
	SubmitReservation(ctx context.Context, r models.Reservation, w slot.Window) (*Result, error)
}

// BuildDraft assembles a reservation from the current selection and
// widget values. It fails with a ValidationError, without touching the
// network, when the inputs cannot form a valid reservation.
func BuildDraft(date slot.DateKey, tick slot.Tick, table models.TableID, in Inputs) (models.Reservation, error) {
	var zero models.Reservation
	if table == "" {
		return zero, ErrNoSelection
	}
	if in.People <= 0 {
		return zero, &ValidationError{Field: "ppl", Reason: "must be a positive integer"}
	}
	if in.Hours <= 0 {
		return zero, &ValidationError{Field: "hours", Reason: "must be a positive integer"}
	}
	if in.Phone == "" {
		return zero, &ValidationError{Field: "phone", Reason: "must not be empty"}
	}
	if in.Address == "" {
		return zero, &ValidationError{Field: "address", Reason: "must not be empty"}
	}

	return models.Reservation{
		Record: models.Record{
			Date:     string(date),
			Hour:     tick.String(),
			Duration: float64(in.Hours),
			Table:    table,
		},
		People:     in.People,
		Starters:   in.Starters,
		Phone:      in.Phone,
		Address:    in.Address,
		ExternalID: uuid.NewString(),
	}, nil
}

// Submit validates, assembles and sends a reservation. The local store
// is never written before the server confirms; reconciliation is the
// caller's job, from the returned snapshot.
func Submit(ctx context.Context, s Submitter, logger zerolog.Logger, window slot.Window,
	date slot.DateKey, tick slot.Tick, table models.TableID, in Inputs) (*Result, error) {

	draft, err := BuildDraft(date, tick, table, in)
	if err != nil {
		metrics.IncReservation("invalid")
		return nil, err
	}

	result, err := s.SubmitReservation(ctx, draft, window)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			metrics.IncReservation("conflict")
			logger.Warn().
				Str("date", draft.Date).
				Str("hour", draft.Hour).
				Str("table", string(draft.Table)).
				Msg("reservation lost to a concurrent booking")
		} else {
			metrics.IncReservation("error")
		}
		return nil, err
	}

	metrics.IncReservation("accepted")
	logger.Info().
		Str("external_id", draft.ExternalID).
		Str("date", draft.Date).
		Str("hour", draft.Hour).
		Msg("reservation accepted")
	return result, nil
}
