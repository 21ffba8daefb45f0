package selection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"osteria/internal/availability"
	"osteria/internal/models"
	"osteria/internal/slot"
)

const (
	day  = slot.DateKey("2024-02-03")
	noon = slot.Tick(24)
)

func newControllerWithBooked(booked ...models.TableID) *Controller {
	store := availability.NewStore()
	for _, table := range booked {
		store.Occupy(day, noon, 1, table)
	}
	ctrl := NewController(store)
	ctrl.SetSlot(day, noon)
	return ctrl
}

func TestClickSelectsFreeTable(t *testing.T) {
	ctrl := newControllerWithBooked()

	state, err := ctrl.Click("2")
	require.NoError(t, err)
	assert.Equal(t, StateSelected, state)

	table, ok := ctrl.Selected()
	require.True(t, ok)
	assert.Equal(t, models.TableID("2"), table)
}

func TestClickSameTableTogglesOff(t *testing.T) {
	ctrl := newControllerWithBooked()

	_, err := ctrl.Click("2")
	require.NoError(t, err)
	state, err := ctrl.Click("2")
	require.NoError(t, err)
	assert.Equal(t, StateNoSelection, state)

	_, ok := ctrl.Selected()
	assert.False(t, ok)
}

func TestClickOtherTableSwitches(t *testing.T) {
	ctrl := newControllerWithBooked()

	_, err := ctrl.Click("2")
	require.NoError(t, err)
	state, err := ctrl.Click("3")
	require.NoError(t, err)
	assert.Equal(t, StateSelected, state)

	table, ok := ctrl.Selected()
	require.True(t, ok)
	assert.Equal(t, models.TableID("3"), table, "switching replaces the previous selection")
}

func TestClickBookedTableRejected(t *testing.T) {
	ctrl := newControllerWithBooked("4")

	_, err := ctrl.Click("4")
	assert.ErrorIs(t, err, ErrTableUnavailable)

	// A booked click after a selection leaves the selection alone.
	_, err = ctrl.Click("2")
	require.NoError(t, err)
	state, err := ctrl.Click("4")
	assert.ErrorIs(t, err, ErrTableUnavailable)
	assert.Equal(t, StateSelected, state)
	table, _ := ctrl.Selected()
	assert.Equal(t, models.TableID("2"), table)
}

func TestAtMostOneSelection(t *testing.T) {
	ctrl := newControllerWithBooked("9")

	clicks := []models.TableID{"1", "2", "9", "3", "3", "5", "9", "5"}
	for _, c := range clicks {
		_, _ = ctrl.Click(c)
	}

	states := ctrl.Classify([]models.TableID{"1", "2", "3", "5", "9"})
	selected := 0
	for _, st := range states {
		if st.Selected {
			selected++
		}
		assert.False(t, st.Booked && st.Selected, "booked and selected are mutually exclusive")
	}
	assert.LessOrEqual(t, selected, 1)
}

func TestSlotChangeClearsSelection(t *testing.T) {
	ctrl := newControllerWithBooked()

	_, err := ctrl.Click("2")
	require.NoError(t, err)

	ctrl.SetSlot(day, noon+1)
	_, ok := ctrl.Selected()
	assert.False(t, ok, "selection is scoped to the displayed slot")

	ctrl.SetSlot(day.Next(), noon+1)
	_, ok = ctrl.Selected()
	assert.False(t, ok)
}

func TestRefreshDropsNewlyBookedSelection(t *testing.T) {
	ctrl := newControllerWithBooked()
	_, err := ctrl.Click("2")
	require.NoError(t, err)

	// A concurrent ingestion marks table 2 booked.
	fresh := availability.NewStore()
	fresh.Occupy(day, noon, 1, "2")

	kept := ctrl.SetOccupancy(fresh)
	assert.False(t, kept)
	_, ok := ctrl.Selected()
	assert.False(t, ok, "selection of a newly booked table is forced off")
}

func TestRefreshKeepsStillFreeSelection(t *testing.T) {
	ctrl := newControllerWithBooked()
	_, err := ctrl.Click("2")
	require.NoError(t, err)

	fresh := availability.NewStore()
	fresh.Occupy(day, noon, 1, "7")

	kept := ctrl.SetOccupancy(fresh)
	assert.True(t, kept)
	table, ok := ctrl.Selected()
	require.True(t, ok)
	assert.Equal(t, models.TableID("2"), table)
}

func TestClassify(t *testing.T) {
	ctrl := newControllerWithBooked("1")
	_, err := ctrl.Click("2")
	require.NoError(t, err)

	states := ctrl.Classify([]models.TableID{"1", "2", "3"})
	require.Len(t, states, 3)
	assert.True(t, states[0].Booked)
	assert.False(t, states[0].Selected)
	assert.False(t, states[1].Booked)
	assert.True(t, states[1].Selected)
	assert.False(t, states[2].Booked)
	assert.False(t, states[2].Selected)
}
