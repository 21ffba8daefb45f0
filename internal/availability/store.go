// Package availability owns the occupancy grid: which tables are taken
// at which (date, half-hour) slot.
package availability

import (
	"sync"

	"osteria/internal/models"
	"osteria/internal/slot"
)

type tableSet map[models.TableID]struct{}

// Store maps each occupancy slot to the set of occupied tables. It only
// records positive occupancy facts: a missing date or tick entry means
// nothing is booked there. Rebuilds run on a fresh Store which the
// owner swaps in whole, so readers never observe a half-built grid.
type Store struct {
	mu     sync.RWMutex
	booked map[slot.DateKey]map[slot.Tick]tableSet
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{booked: make(map[slot.DateKey]map[slot.Tick]tableSet)}
}

// Reset clears all recorded occupancy.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.booked = make(map[slot.DateKey]map[slot.Tick]tableSet)
}

// Occupy marks the table occupied for every tick in
// [start, start+durTicks). Re-adding a table to a slot is a set union,
// so overlapping source records never double-count.
func (s *Store) Occupy(date slot.DateKey, start slot.Tick, durTicks int, table models.TableID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	day, ok := s.booked[date]
	if !ok {
		day = make(map[slot.Tick]tableSet)
		s.booked[date] = day
	}
	for t := start; t < start+slot.Tick(durTicks); t++ {
		set, ok := day[t]
		if !ok {
			set = make(tableSet)
			day[t] = set
		}
		set[table] = struct{}{}
	}
}

// IsFree reports whether the table is unoccupied at the slot. Absence
// of any entry means free.
func (s *Store) IsFree(date slot.DateKey, tick slot.Tick, table models.TableID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	day, ok := s.booked[date]
	if !ok {
		return true
	}
	set, ok := day[tick]
	if !ok {
		return true
	}
	_, taken := set[table]
	return !taken
}

// OccupantsOf returns the tables occupied at the slot. The result is a
// copy and is empty, never nil-dereferencing, when nothing is recorded.
func (s *Store) OccupantsOf(date slot.DateKey, tick slot.Tick) map[models.TableID]struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[models.TableID]struct{})
	if day, ok := s.booked[date]; ok {
		for table := range day[tick] {
			out[table] = struct{}{}
		}
	}
	return out
}

// Slots returns the number of (date, tick) slots holding at least one
// occupancy fact.
func (s *Store) Slots() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, day := range s.booked {
		n += len(day)
	}
	return n
}
