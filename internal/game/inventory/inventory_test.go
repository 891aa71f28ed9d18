package inventory_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/porttown/internal/game/cargo"
	"github.com/cory-johannsen/porttown/internal/game/inventory"
)

func TestInventory_AddCreatesAndIncreases(t *testing.T) {
	inv := inventory.New()
	require.NoError(t, inv.Add("fish", 3))
	require.NoError(t, inv.Add("fish", 2))
	assert.Equal(t, 5, inv.Quantity("fish"))
	assert.True(t, inv.Has("fish"))
}

func TestInventory_AddRejectsNonPositive(t *testing.T) {
	inv := inventory.New()
	for _, qty := range []int{0, -1} {
		err := inv.Add("fish", qty)
		assert.ErrorIs(t, err, inventory.ErrInvalidQuantity)
	}
	assert.ErrorIs(t, inv.Add("", 1), inventory.ErrInvalidQuantity)
	assert.False(t, inv.Has("fish"))
}

func TestInventory_RemovePrunesAtZero(t *testing.T) {
	inv := inventory.New()
	require.NoError(t, inv.Add("grain", 4))
	require.NoError(t, inv.Remove("grain", 1))
	assert.Equal(t, 3, inv.Quantity("grain"))
	require.NoError(t, inv.Remove("grain", 3))
	assert.False(t, inv.Has("grain"))
	assert.Equal(t, 0, inv.Quantity("grain"))
}

func TestInventory_RemoveFailures(t *testing.T) {
	inv := inventory.New()
	require.NoError(t, inv.Add("grain", 2))

	assert.ErrorIs(t, inv.Remove("grain", 0), inventory.ErrInvalidQuantity)
	assert.ErrorIs(t, inv.Remove("grain", -2), inventory.ErrInvalidQuantity)
	assert.ErrorIs(t, inv.Remove("grain", 3), inventory.ErrInsufficientStock)
	assert.ErrorIs(t, inv.Remove("timber", 1), inventory.ErrInsufficientStock)
	assert.Equal(t, 2, inv.Quantity("grain"))
}

func TestInventory_QuantityOfAbsentIsZero(t *testing.T) {
	assert.Equal(t, 0, inventory.New().Quantity("anything"))
}

func TestInventory_SeedKeepsZeroEntry(t *testing.T) {
	inv := inventory.New()
	inv.Seed("spice")
	assert.True(t, inv.Has("spice"))
	assert.Equal(t, 0, inv.Quantity("spice"))

	require.NoError(t, inv.Add("spice", 2))
	inv.Seed("spice")
	assert.Equal(t, 2, inv.Quantity("spice"))
}

func TestInventory_SnapshotIsCopy(t *testing.T) {
	inv := inventory.New()
	require.NoError(t, inv.Add("fish", 1))
	snap := inv.Snapshot()
	snap["fish"] = 100
	assert.Equal(t, 1, inv.Quantity("fish"))
}

func TestInventory_GoodsSortedAndTotal(t *testing.T) {
	inv := inventory.New()
	require.NoError(t, inv.Add("timber", 1))
	require.NoError(t, inv.Add("fish", 2))
	assert.Equal(t, []string{"fish", "timber"}, inv.Goods())
	assert.Equal(t, 3, inv.Total())
}

func TestInventory_Load(t *testing.T) {
	cat, err := cargo.NewCatalog(
		cargo.Good{ID: "fish", Name: "Fish", BaseValue: 10, BaseCapacity: 1},
		cargo.Good{ID: "timber", Name: "Timber", BaseValue: 4, BaseCapacity: 3},
	)
	require.NoError(t, err)

	inv := inventory.New()
	require.NoError(t, inv.Add("fish", 2))
	require.NoError(t, inv.Add("timber", 4))
	require.NoError(t, inv.Add("mystery", 9))
	assert.Equal(t, 14, inv.Load(cat))
}

// TestProperty_NeverNegative applies random add/remove operations and checks
// every entry stays non-negative and failed removals leave state unchanged.
func TestProperty_NeverNegative(t *testing.T) {
	goods := []string{"fish", "grain", "timber"}
	rapid.Check(t, func(rt *rapid.T) {
		inv := inventory.New()
		steps := rapid.IntRange(1, 60).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			good := rapid.SampledFrom(goods).Draw(rt, "good")
			qty := rapid.IntRange(-3, 10).Draw(rt, "qty")
			before := inv.Quantity(good)
			if rapid.Bool().Draw(rt, "add") {
				err := inv.Add(good, qty)
				if err == nil && inv.Quantity(good) != before+qty {
					rt.Fatalf("add %d: %d -> %d", qty, before, inv.Quantity(good))
				}
			} else {
				err := inv.Remove(good, qty)
				switch {
				case err == nil && inv.Quantity(good) != before-qty:
					rt.Fatalf("remove %d: %d -> %d", qty, before, inv.Quantity(good))
				case err != nil && inv.Quantity(good) != before:
					rt.Fatalf("failed remove mutated: %d -> %d", before, inv.Quantity(good))
				case err != nil && !errors.Is(err, inventory.ErrInvalidQuantity) && !errors.Is(err, inventory.ErrInsufficientStock):
					rt.Fatalf("unexpected error: %v", err)
				}
			}
			for _, g := range goods {
				if inv.Quantity(g) < 0 {
					rt.Fatalf("negative quantity for %s", g)
				}
			}
		}
	})
}
