// Package selection provides the state machine over "which table is
// currently selected" for the displayed slot.
package selection

import (
	"errors"
	"sync"

	"osteria/internal/models"
	"osteria/internal/slot"
)

// State represents the controller state.
type State string

const (
	StateNoSelection State = "no_selection"
	StateSelected    State = "selected"
)

// ErrTableUnavailable is returned when the user clicks a table that is
// booked at the displayed slot. The click never silently succeeds.
var ErrTableUnavailable = errors.New("table is already booked for this slot")

// Occupancy is the read side of the availability store the controller
// consults before allowing a selection.
type Occupancy interface {
	IsFree(date slot.DateKey, tick slot.Tick, table models.TableID) bool
}

// TableState is the booked/selected classification published for one
// table. The two flags are mutually exclusive.
type TableState struct {
	Table    models.TableID
	Booked   bool
	Selected bool
}

// Controller mediates an exactly-one-table selection scoped to the
// displayed (date, hour) slot.
type Controller struct {
	mu        sync.Mutex
	occupancy Occupancy
	state     State
	selected  models.TableID
	date      slot.DateKey
	tick      slot.Tick
}

// NewController creates a controller with no selection.
func NewController(occupancy Occupancy) *Controller {
	return &Controller{occupancy: occupancy, state: StateNoSelection}
}

// SetOccupancy swaps the occupancy source after an ingestion rebuild,
// then drops the selection if its table is no longer free. Returns
// true if the selection survived.
func (c *Controller) SetOccupancy(occupancy Occupancy) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.occupancy = occupancy
	if c.state == StateSelected && !occupancy.IsFree(c.date, c.tick, c.selected) {
		c.clearLocked()
		return false
	}
	return c.state == StateSelected
}

// SetSlot switches the displayed slot. Any selection is forced off: a
// selection is only meaningful for the slot it was made on.
func (c *Controller) SetSlot(date slot.DateKey, tick slot.Tick) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.date = date
	c.tick = tick
	c.clearLocked()
}

// Slot returns the displayed slot.
func (c *Controller) Slot() (slot.DateKey, slot.Tick) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.date, c.tick
}

// Click processes a user click on a table and returns the resulting
// state. Clicking a free table selects it, clicking the selected table
// toggles it off, clicking another free table switches the selection.
// Clicking a booked table returns ErrTableUnavailable and leaves the
// state untouched.
func (c *Controller) Click(table models.TableID) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.occupancy.IsFree(c.date, c.tick, table) {
		return c.state, ErrTableUnavailable
	}

	switch {
	case c.state == StateSelected && c.selected == table:
		c.clearLocked()
	default:
		// Fresh selection or switch; the previous mark is dropped
		// first so at most one table is ever selected.
		c.state = StateSelected
		c.selected = table
	}
	return c.state, nil
}

// Selected returns the selected table, if any.
func (c *Controller) Selected() (models.TableID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected, c.state == StateSelected
}

// Classify derives the booked/selected flags for each known table at
// the displayed slot.
func (c *Controller) Classify(tables []models.TableID) []TableState {
	c.mu.Lock()
	defer c.mu.Unlock()

	states := make([]TableState, 0, len(tables))
	for _, table := range tables {
		booked := !c.occupancy.IsFree(c.date, c.tick, table)
		states = append(states, TableState{
			Table:    table,
			Booked:   booked,
			Selected: !booked && c.state == StateSelected && c.selected == table,
		})
	}
	return states
}

func (c *Controller) clearLocked() {
	c.state = StateNoSelection
	c.selected = ""
}
