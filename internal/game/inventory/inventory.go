// Package inventory provides the per-agent stock of goods mutated by towns and ships.
package inventory

import (
	"errors"
	"fmt"
	"sort"

	"github.com/cory-johannsen/porttown/internal/game/cargo"
)

var (
	// ErrInvalidQuantity is returned for zero or negative quantities and empty good IDs.
	ErrInvalidQuantity = errors.New("invalid quantity")
	// ErrInsufficientStock is returned when a removal exceeds the held quantity.
	ErrInsufficientStock = errors.New("insufficient stock")
)

// Inventory maps good IDs to on-hand quantities.
//
// Invariant: no entry is negative. Entries reaching zero through Remove are pruned;
// Seed may create an explicit zero entry.
// Inventory is not safe for concurrent use; it is owned by exactly one agent.
type Inventory struct {
	stock map[string]int
}

// New returns an empty Inventory.
func New() *Inventory {
	return &Inventory{stock: make(map[string]int)}
}

// Seed ensures an entry exists for good, creating it at zero if absent.
func (inv *Inventory) Seed(good string) {
	if _, ok := inv.stock[good]; !ok {
		inv.stock[good] = 0
	}
}

// Add places qty units of good into the inventory.
//
// Precondition: good is non-empty and qty > 0.
// Postcondition: on success Quantity(good) increases by qty; on error nothing changes.
func (inv *Inventory) Add(good string, qty int) error {
	if good == "" || qty <= 0 {
		return fmt.Errorf("inventory: add %d of %q: %w", qty, good, ErrInvalidQuantity)
	}
	inv.stock[good] += qty
	return nil
}

// Remove takes qty units of good out of the inventory.
//
// Precondition: qty > 0 and qty <= Quantity(good).
// Postcondition: on success Quantity(good) decreases by qty and the entry is
// deleted when it reaches zero; on error nothing changes.
func (inv *Inventory) Remove(good string, qty int) error {
	if good == "" || qty <= 0 {
		return fmt.Errorf("inventory: remove %d of %q: %w", qty, good, ErrInvalidQuantity)
	}
	held, ok := inv.stock[good]
	if !ok || held < qty {
		return fmt.Errorf("inventory: remove %d of %q with %d held: %w", qty, good, held, ErrInsufficientStock)
	}
	if held == qty {
		delete(inv.stock, good)
		return nil
	}
	inv.stock[good] = held - qty
	return nil
}

// Quantity returns the held quantity of good, or 0 if absent.
func (inv *Inventory) Quantity(good string) int {
	return inv.stock[good]
}

// Has reports whether an entry for good exists, including seeded zero entries.
func (inv *Inventory) Has(good string) bool {
	_, ok := inv.stock[good]
	return ok
}

// Goods returns the IDs of all entries sorted ascending.
func (inv *Inventory) Goods() []string {
	out := make([]string, 0, len(inv.stock))
	for g := range inv.stock {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}

// Snapshot returns a copy of all entries.
//
// Postcondition: mutations of the result do not affect the inventory.
func (inv *Inventory) Snapshot() map[string]int {
	out := make(map[string]int, len(inv.stock))
	for g, q := range inv.stock {
		out[g] = q
	}
	return out
}

// Total returns the number of units held across all goods.
func (inv *Inventory) Total() int {
	total := 0
	for _, q := range inv.stock {
		total += q
	}
	return total
}

// Load returns the hold space used, summing quantity*BaseCapacity.
// Goods unknown to cat contribute nothing.
func (inv *Inventory) Load(cat *cargo.Catalog) int {
	load := 0
	for g, q := range inv.stock {
		if def, ok := cat.Good(g); ok {
			load += q * def.BaseCapacity
		}
	}
	return load
}
