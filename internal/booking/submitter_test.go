package booking

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"osteria/internal/models"
	"osteria/internal/slot"
)

type mockSubmitter struct {
	mock.Mock
}

func (m *mockSubmitter) SubmitReservation(ctx context.Context, r models.Reservation, w slot.Window) (*Result, error) {
	args := m.Called(ctx, r, w)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Result), args.Error(1)
}

func testWindow() slot.Window {
	return slot.Window{Min: "2024-02-01", Max: "2024-02-07"}
}

func validInputs() Inputs {
	return Inputs{People: 4, Hours: 2, Phone: "123456789", Address: "Via Roma 1"}
}

func TestBuildDraft(t *testing.T) {
	draft, err := BuildDraft("2024-02-03", 24, "2", validInputs())
	require.NoError(t, err)

	assert.Equal(t, "2024-02-03", draft.Date)
	assert.Equal(t, "12:00", draft.Hour)
	assert.Equal(t, 2.0, draft.Duration)
	assert.Equal(t, models.TableID("2"), draft.Table)
	assert.Equal(t, 4, draft.People)
	assert.NotEmpty(t, draft.ExternalID)
}

func TestBuildDraftValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Inputs)
	}{
		{"zero people", func(in *Inputs) { in.People = 0 }},
		{"negative people", func(in *Inputs) { in.People = -2 }},
		{"zero hours", func(in *Inputs) { in.Hours = 0 }},
		{"empty phone", func(in *Inputs) { in.Phone = "" }},
		{"empty address", func(in *Inputs) { in.Address = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInputs()
			tt.mutate(&in)
			_, err := BuildDraft("2024-02-03", 24, "2", in)
			var vErr *ValidationError
			assert.ErrorAs(t, err, &vErr)
		})
	}
}

func TestBuildDraftNoSelection(t *testing.T) {
	_, err := BuildDraft("2024-02-03", 24, "", validInputs())
	assert.ErrorIs(t, err, ErrNoSelection)
}

func TestSubmitSkipsNetworkOnInvalidDraft(t *testing.T) {
	s := new(mockSubmitter)

	in := validInputs()
	in.People = 0
	_, err := Submit(context.Background(), s, zerolog.Nop(), testWindow(), "2024-02-03", 24, "2", in)

	require.Error(t, err)
	s.AssertNotCalled(t, "SubmitReservation", mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmitReturnsServerSnapshot(t *testing.T) {
	s := new(mockSubmitter)
	snapshot := models.Batches{Bookings: []models.Record{{Date: "2024-02-03", Hour: "12:00", Duration: 2, Table: "2"}}}
	s.On("SubmitReservation", mock.Anything, mock.Anything, testWindow()).
		Return(&Result{Snapshot: snapshot}, nil).Once()

	result, err := Submit(context.Background(), s, zerolog.Nop(), testWindow(), "2024-02-03", 24, "2", validInputs())
	require.NoError(t, err)
	assert.Len(t, result.Snapshot.Bookings, 1)
	s.AssertExpectations(t)
}

func TestSubmitDistinguishesConflict(t *testing.T) {
	s := new(mockSubmitter)
	s.On("SubmitReservation", mock.Anything, mock.Anything, testWindow()).
		Return(nil, ErrConflict).Once()

	_, err := Submit(context.Background(), s, zerolog.Nop(), testWindow(), "2024-02-03", 24, "2", validInputs())
	assert.ErrorIs(t, err, ErrConflict)

	s2 := new(mockSubmitter)
	s2.On("SubmitReservation", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("connection refused")).Once()

	_, err = Submit(context.Background(), s2, zerolog.Nop(), testWindow(), "2024-02-03", 24, "2", validInputs())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrConflict))
}
