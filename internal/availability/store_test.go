package availability

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"osteria/internal/models"
	"osteria/internal/slot"
)

const day = slot.DateKey("2024-02-03")

func TestOccupyMarksEveryTick(t *testing.T) {
	store := NewStore()
	// 12:00 for one hour occupies ticks 24 and 25.
	store.Occupy(day, 24, 2, "2")

	assert.False(t, store.IsFree(day, 24, "2"))
	assert.False(t, store.IsFree(day, 25, "2"))
	assert.True(t, store.IsFree(day, 23, "2"), "tick before the interval is free")
	assert.True(t, store.IsFree(day, 26, "2"), "end tick is exclusive")

	// Other tables at the same ticks stay free.
	assert.True(t, store.IsFree(day, 24, "3"))
	assert.True(t, store.IsFree(day, 25, "1"))

	// Same table on another day stays free.
	assert.True(t, store.IsFree("2024-02-04", 24, "2"))
}

func TestOccupyIdempotent(t *testing.T) {
	store := NewStore()
	store.Occupy(day, 24, 2, "2")
	store.Occupy(day, 24, 2, "2")

	occupants := store.OccupantsOf(day, 24)
	assert.Len(t, occupants, 1, "re-adding a table is a set union, not a duplicate")
}

func TestAbsenceMeansFree(t *testing.T) {
	store := NewStore()
	assert.True(t, store.IsFree("2030-01-01", 0, "1"))
	assert.Empty(t, store.OccupantsOf("2030-01-01", 0))
}

func TestResetClearsEverything(t *testing.T) {
	store := NewStore()
	store.Occupy(day, 10, 4, "1")
	store.Occupy("2024-02-04", 20, 1, "2")

	store.Reset()

	assert.True(t, store.IsFree(day, 10, "1"))
	assert.True(t, store.IsFree("2024-02-04", 20, "2"))
	assert.Zero(t, store.Slots())
}

func TestOccupantsOfReturnsCopy(t *testing.T) {
	store := NewStore()
	store.Occupy(day, 24, 1, "2")

	occupants := store.OccupantsOf(day, 24)
	delete(occupants, models.TableID("2"))

	assert.False(t, store.IsFree(day, 24, "2"), "mutating the returned set must not affect the store")
}

func TestOverlappingRecordsUnion(t *testing.T) {
	store := NewStore()
	// A reservation and an event coinciding on the same table.
	store.Occupy(day, 24, 2, "2")
	store.Occupy(day, 25, 2, "2")

	assert.False(t, store.IsFree(day, 24, "2"))
	assert.False(t, store.IsFree(day, 25, "2"))
	assert.False(t, store.IsFree(day, 26, "2"))
	assert.Len(t, store.OccupantsOf(day, 25), 1)
}
