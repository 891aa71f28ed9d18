// Package selection tracks a ship's trade-action mode and the per-good
// quantities picked for the pending action.
package selection

import (
	"errors"
	"fmt"
	"sort"
)

// ErrInvalidSelection is returned for selections outside [0, held] or made
// while no action is in progress.
var ErrInvalidSelection = errors.New("invalid selection")

// ErrIllegalTransition is returned for action state changes the state machine forbids.
var ErrIllegalTransition = errors.New("illegal action state transition")

// ActionState is a ship's multi-select trade mode.
type ActionState int

const (
	Normal ActionState = iota
	Selling
	Dropping
)

// String returns the lowercase name of the state.
func (s ActionState) String() string {
	switch s {
	case Normal:
		return "normal"
	case Selling:
		return "selling"
	case Dropping:
		return "dropping"
	default:
		return fmt.Sprintf("ActionState(%d)", int(s))
	}
}

// Holdings reports how much of each good the owner currently holds.
type Holdings interface {
	Quantity(good string) int
}

// Slot is the selection state of one good.
//
// Invariant: 0 <= Quantity <= held, and !Selected implies Quantity == 0.
type Slot struct {
	Good     string
	Selected bool
	Quantity int
}

// Session holds a ship's action state and slot selections.
//
// Session is not safe for concurrent use.
type Session struct {
	state    ActionState
	holdings Holdings
	slots    map[string]Slot
}

// NewSession returns a Session in the Normal state bound to holdings.
//
// Precondition: holdings must be non-nil.
func NewSession(holdings Holdings) *Session {
	if holdings == nil {
		panic("selection.NewSession: holdings must be non-nil")
	}
	return &Session{holdings: holdings, slots: make(map[string]Slot)}
}

// State returns the current action state.
func (s *Session) State() ActionState { return s.state }

// SetState moves the session to next. Entering or leaving an action clears
// every selection. Setting the current state is a no-op.
//
// Legal transitions: Normal -> Selling, Normal -> Dropping, Selling -> Normal,
// Dropping -> Normal.
//
// Postcondition: returns true iff the state changed.
func (s *Session) SetState(next ActionState) (bool, error) {
	if next == s.state {
		return false, nil
	}
	if next < Normal || next > Dropping || (s.state != Normal && next != Normal) {
		return false, fmt.Errorf("%s -> %s: %w", s.state, next, ErrIllegalTransition)
	}
	s.state = next
	s.Clear()
	return true, nil
}

// Toggle flips the selection of good. Selecting sets the quantity to 1 when it
// was 0; deselecting sets it to 0.
//
// Precondition: an action is in progress and the owner holds at least one unit.
func (s *Session) Toggle(good string) (Slot, error) {
	if err := s.checkActive(good); err != nil {
		return Slot{}, err
	}
	held := s.holdings.Quantity(good)
	slot := s.slots[good]
	slot.Good = good
	if slot.Selected {
		slot.Selected = false
		slot.Quantity = 0
	} else {
		if held <= 0 {
			return Slot{}, fmt.Errorf("toggle %q with nothing held: %w", good, ErrInvalidSelection)
		}
		slot.Selected = true
		if slot.Quantity == 0 {
			slot.Quantity = 1
		}
	}
	s.store(slot)
	return slot, nil
}

// Adjust changes the selected quantity of good by delta, clamped to [0, held].
// A resulting positive quantity selects the slot; zero deselects it.
//
// Precondition: an action is in progress.
func (s *Session) Adjust(good string, delta int) (Slot, error) {
	if err := s.checkActive(good); err != nil {
		return Slot{}, err
	}
	held := s.holdings.Quantity(good)
	slot := s.slots[good]
	slot.Good = good
	slot.Quantity = max(0, min(held, slot.Quantity+delta))
	slot.Selected = slot.Quantity > 0
	s.store(slot)
	return slot, nil
}

// Set selects exactly n units of good. n == 0 deselects.
//
// Precondition: an action is in progress; 0 <= n <= held.
// Postcondition: on error the slot is unchanged.
func (s *Session) Set(good string, n int) (Slot, error) {
	if err := s.checkActive(good); err != nil {
		return Slot{}, err
	}
	held := s.holdings.Quantity(good)
	if n < 0 || n > held {
		return s.Slot(good), fmt.Errorf("set %q to %d with %d held: %w", good, n, held, ErrInvalidSelection)
	}
	slot := Slot{Good: good, Selected: n > 0, Quantity: n}
	s.store(slot)
	return slot, nil
}

// Slot returns the selection state of good.
func (s *Session) Slot(good string) Slot {
	slot, ok := s.slots[good]
	if !ok {
		return Slot{Good: good}
	}
	return slot
}

// Selected returns every selected slot with a positive quantity, sorted by good.
func (s *Session) Selected() []Slot {
	out := make([]Slot, 0, len(s.slots))
	for _, slot := range s.slots {
		if slot.Selected && slot.Quantity > 0 {
			out = append(out, slot)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Good < out[j].Good })
	return out
}

// Clear drops every selection.
//
// Postcondition: returns true iff anything was selected.
func (s *Session) Clear() bool {
	had := len(s.slots) > 0
	s.slots = make(map[string]Slot)
	return had
}

// Reconcile clamps every selection to the current holdings and drops slots
// whose good is no longer held. Call it after any cargo mutation.
func (s *Session) Reconcile() {
	for good, slot := range s.slots {
		held := s.holdings.Quantity(good)
		if held <= 0 {
			delete(s.slots, good)
			continue
		}
		if slot.Quantity > held {
			slot.Quantity = held
			s.slots[good] = slot
		}
	}
}

func (s *Session) checkActive(good string) error {
	if s.state == Normal {
		return fmt.Errorf("select %q outside an action: %w", good, ErrInvalidSelection)
	}
	return nil
}

func (s *Session) store(slot Slot) {
	if !slot.Selected && slot.Quantity == 0 {
		delete(s.slots, slot.Good)
		return
	}
	s.slots[slot.Good] = slot
}
