package trade_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/porttown/internal/game/cargo"
	"github.com/cory-johannsen/porttown/internal/game/chance"
	"github.com/cory-johannsen/porttown/internal/game/event"
	"github.com/cory-johannsen/porttown/internal/game/inventory"
	"github.com/cory-johannsen/porttown/internal/game/ledger"
	"github.com/cory-johannsen/porttown/internal/game/selection"
	"github.com/cory-johannsen/porttown/internal/game/town"
	"github.com/cory-johannsen/porttown/internal/game/trade"
)

// tb is satisfied by both *testing.T and *rapid.T.
type tb interface {
	require.TestingT
	Helper()
}

type harbor struct {
	cat      *cargo.Catalog
	town     *town.Town
	treasury *ledger.Ledger
	port     *trade.Port
	portBank *ledger.Ledger
}

func testCatalog(t tb) *cargo.Catalog {
	t.Helper()
	cat, err := cargo.NewCatalog(
		cargo.Good{ID: "grain", Name: "Grain", BaseValue: 10, BaseCapacity: 1},
		cargo.Good{ID: "timber", Name: "Timber", BaseValue: 4, BaseCapacity: 3},
	)
	require.NoError(t, err)
	return cat
}

func newHarbor(t tb, def town.Definition, townBalance float64) harbor {
	t.Helper()
	cat := testCatalog(t)
	require.NoError(t, def.Validate(cat))
	treasury := ledger.New(def.Name, townBalance, nil)
	tw := town.New(def, cat, treasury, chance.Fixed(0.5), nil)
	portBank := ledger.New(def.Name+" Port", 0, nil)
	port, err := trade.NewPort(def.Name+" Port", 0.1, portBank, tw, nil)
	require.NoError(t, err)
	return harbor{cat: cat, town: tw, treasury: treasury, port: port, portBank: portBank}
}

func newShip(t tb, h harbor, name string, balance float64) (*trade.Ship, *ledger.Ledger) {
	t.Helper()
	acct := ledger.New(name, balance, nil)
	return trade.NewShip(name, acct, h.cat, nil), acct
}

func TestNewPort_RejectsBadTax(t *testing.T) {
	h := newHarbor(t, town.NewDefinition("Saltmere"), 0)
	_, err := trade.NewPort("bad", 1.5, h.portBank, h.town, nil)
	assert.Error(t, err)
	_, err = trade.NewPort("bad", -0.1, h.portBank, h.town, nil)
	assert.Error(t, err)
}

// Scenario 3: selling 3 of 5 units at 10.8 each with 10% tax.
func TestSellSelected_ToPortSplitsTax(t *testing.T) {
	def := town.NewDefinition("Saltmere")
	def.Demands = []town.Demand{{Good: "grain", IdealQuantity: 100}}
	def.Tuning.BuyPriceMultiplier = 0.9
	h := newHarbor(t, def, 1000)
	require.NoError(t, h.town.AddCargo("grain", 50))

	acct := ledger.New("Gull", 0, zaptest.NewLogger(t))
	ship := trade.NewShip("Gull", acct, h.cat, zaptest.NewLogger(t))
	require.NoError(t, ship.AddCargo("grain", 5))
	ship.SetCurrentPort(h.port)
	require.NoError(t, ship.SetActionState(selection.Selling))
	_, err := ship.SetSelection("grain", 3)
	require.NoError(t, err)

	report, err := ship.ExecuteSelectedAction()
	require.NoError(t, err)

	assert.InDelta(t, 1000-32.4, h.treasury.Balance(), 1e-9)
	assert.InDelta(t, 29.16, acct.Balance(), 1e-9)
	assert.InDelta(t, 3.24, h.portBank.Balance(), 1e-9)
	assert.Equal(t, 2, ship.Quantity("grain"))
	assert.Equal(t, 53, h.town.AvailableQuantity("grain"))

	require.Len(t, report.Results, 1)
	assert.Equal(t, trade.OutcomeSold, report.Results[0].Outcome)
	assert.InDelta(t, 32.4, report.Results[0].Paid, 1e-9)
	assert.Equal(t, "Saltmere Port", report.Destination)
	assert.Equal(t, 3, report.Moved())
	assert.InDelta(t, 29.16, report.Earned(), 1e-9)
	assert.Equal(t, selection.Normal, ship.ActionState())
	assert.Empty(t, ship.Selected())
}

func TestSellSelected_ToPortPartialSuccess(t *testing.T) {
	h := newHarbor(t, town.NewDefinition("Saltmere"), 25)
	ship, acct := newShip(t, h, "Gull", 0)
	require.NoError(t, ship.AddCargo("grain", 5))
	require.NoError(t, ship.AddCargo("timber", 2))
	ship.SetCurrentPort(h.port)
	require.NoError(t, ship.SetActionState(selection.Selling))
	_, _ = ship.SetSelection("grain", 5)  // 55, unaffordable
	_, _ = ship.SetSelection("timber", 2) // 8.8

	report, err := ship.ExecuteSelectedAction()
	require.NoError(t, err)

	require.Len(t, report.Results, 2)
	assert.Equal(t, trade.OutcomeFailed, report.Results[0].Outcome)
	assert.ErrorIs(t, report.Results[0].Err, ledger.ErrInsufficientFunds)
	assert.Equal(t, trade.OutcomeSold, report.Results[1].Outcome)
	assert.Equal(t, 5, ship.Quantity("grain"))
	assert.Equal(t, 0, ship.Quantity("timber"))
	assert.InDelta(t, 8.8*0.9, acct.Balance(), 1e-9)
}

func TestSellSelected_ToShipUsesBaseValue(t *testing.T) {
	h := newHarbor(t, town.NewDefinition("Saltmere"), 0)
	seller, sellerAcct := newShip(t, h, "Gull", 0)
	buyer, buyerAcct := newShip(t, h, "Tern", 100)
	require.NoError(t, seller.AddCargo("grain", 4))
	require.NoError(t, seller.AddCargo("timber", 30))
	seller.SetCurrentOtherShip(buyer)
	require.NoError(t, seller.SetActionState(selection.Selling))
	_, _ = seller.SetSelection("grain", 4)   // 40
	_, _ = seller.SetSelection("timber", 20) // 80, exceeds the 60 left

	report, err := seller.ExecuteSelectedAction()
	require.NoError(t, err)

	assert.Equal(t, "Tern", report.Destination)
	assert.InDelta(t, 40, sellerAcct.Balance(), 1e-9)
	assert.InDelta(t, 60, buyerAcct.Balance(), 1e-9)
	assert.Equal(t, 0, seller.Quantity("grain"))
	assert.Equal(t, 4, buyer.Quantity("grain"))
	assert.Equal(t, 30, seller.Quantity("timber"))
	assert.Equal(t, 0, buyer.Quantity("timber"))
	assert.Equal(t, trade.OutcomeFailed, report.Results[1].Outcome)
}

func TestSellSelected_PortTakesPrecedence(t *testing.T) {
	h := newHarbor(t, town.NewDefinition("Saltmere"), 1000)
	seller, _ := newShip(t, h, "Gull", 0)
	buyer, buyerAcct := newShip(t, h, "Tern", 100)
	require.NoError(t, seller.AddCargo("grain", 1))
	seller.SetCurrentPort(h.port)
	seller.SetCurrentOtherShip(buyer)
	require.NoError(t, seller.SetActionState(selection.Selling))
	_, _ = seller.ToggleSelection("grain")

	_, err := seller.ExecuteSelectedAction()
	require.NoError(t, err)
	assert.Equal(t, 1, h.town.AvailableQuantity("grain"))
	assert.Equal(t, 0, buyer.Quantity("grain"))
	assert.InDelta(t, 100, buyerAcct.Balance(), 1e-9)
}

func TestSellSelected_NoDestination(t *testing.T) {
	h := newHarbor(t, town.NewDefinition("Saltmere"), 1000)
	ship, acct := newShip(t, h, "Gull", 0)
	require.NoError(t, ship.AddCargo("grain", 3))
	require.NoError(t, ship.SetActionState(selection.Selling))
	_, _ = ship.SetSelection("grain", 3)

	report, err := ship.ExecuteSelectedAction()
	assert.ErrorIs(t, err, trade.ErrNoDestination)
	assert.Empty(t, report.Results)
	assert.Equal(t, 3, ship.Quantity("grain"))
	assert.Zero(t, acct.Balance())
	assert.Equal(t, selection.Normal, ship.ActionState())
}

func TestDropSelected_GivesToTown(t *testing.T) {
	h := newHarbor(t, town.NewDefinition("Saltmere"), 0)
	ship, acct := newShip(t, h, "Gull", 0)
	require.NoError(t, ship.AddCargo("timber", 6))
	ship.SetCurrentPort(h.port)
	require.NoError(t, ship.SetActionState(selection.Dropping))
	_, _ = ship.SetSelection("timber", 4)

	report, err := ship.ExecuteSelectedAction()
	require.NoError(t, err)
	assert.Equal(t, "Saltmere", report.Destination)
	assert.Equal(t, trade.OutcomeTransferred, report.Results[0].Outcome)
	assert.Equal(t, 2, ship.Quantity("timber"))
	assert.Equal(t, 4, h.town.AvailableQuantity("timber"))
	assert.Zero(t, acct.Balance())
}

func TestDropSelected_GivesToOtherShip(t *testing.T) {
	h := newHarbor(t, town.NewDefinition("Saltmere"), 0)
	giver, _ := newShip(t, h, "Gull", 0)
	taker, _ := newShip(t, h, "Tern", 0)
	require.NoError(t, giver.AddCargo("grain", 2))
	giver.SetCurrentOtherShip(taker)
	require.NoError(t, giver.SetActionState(selection.Dropping))
	_, _ = giver.SetSelection("grain", 2)

	_, err := giver.ExecuteSelectedAction()
	require.NoError(t, err)
	assert.Equal(t, 0, giver.Quantity("grain"))
	assert.Equal(t, 2, taker.Quantity("grain"))
}

func TestDropSelected_DestroysWithoutTarget(t *testing.T) {
	h := newHarbor(t, town.NewDefinition("Saltmere"), 0)
	ship, _ := newShip(t, h, "Gull", 0)
	require.NoError(t, ship.AddCargo("grain", 2))
	require.NoError(t, ship.SetActionState(selection.Dropping))
	_, _ = ship.SetSelection("grain", 1)

	report, err := ship.ExecuteSelectedAction()
	require.NoError(t, err)
	assert.Equal(t, trade.OutcomeDestroyed, report.Results[0].Outcome)
	assert.Equal(t, 1, ship.Quantity("grain"))
	assert.Equal(t, 0, h.town.AvailableQuantity("grain"))
}

func TestExecuteSelectedAction_NormalIsNoop(t *testing.T) {
	h := newHarbor(t, town.NewDefinition("Saltmere"), 0)
	ship, _ := newShip(t, h, "Gull", 0)
	require.NoError(t, ship.AddCargo("grain", 2))

	report, err := ship.ExecuteSelectedAction()
	require.NoError(t, err)
	assert.Equal(t, selection.Normal, report.Action)
	assert.Empty(t, report.Results)
	assert.Equal(t, 2, ship.Quantity("grain"))
}

func TestBuyFromTown_Success(t *testing.T) {
	def := town.NewDefinition("Saltmere")
	def.Tuning.SellPriceMultiplier = 1.0
	h := newHarbor(t, def, 0)
	require.NoError(t, h.town.AddCargo("grain", 10))
	ship, acct := newShip(t, h, "Gull", 100)
	ship.SetCurrentPort(h.port)

	paid, err := ship.BuyFromTown("grain", 5)
	require.NoError(t, err)
	assert.InDelta(t, 50, paid, 1e-9)
	assert.InDelta(t, 50, acct.Balance(), 1e-9)
	assert.Equal(t, 5, ship.Quantity("grain"))
	assert.Equal(t, 5, h.town.AvailableQuantity("grain"))
	assert.InDelta(t, 50, h.treasury.Balance(), 1e-9)
}

// Scenario 4: the town sells for 50 but the ship holds 30; stock is restored.
func TestBuyFromTown_CompensatesWhenShipCannotPay(t *testing.T) {
	def := town.NewDefinition("Saltmere")
	def.Tuning.SellPriceMultiplier = 1.0
	h := newHarbor(t, def, 0)
	require.NoError(t, h.town.AddCargo("grain", 10))
	ship, acct := newShip(t, h, "Gull", 30)
	ship.SetCurrentPort(h.port)

	paid, err := ship.BuyFromTown("grain", 5)
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	assert.Zero(t, paid)
	assert.InDelta(t, 30, acct.Balance(), 1e-9)
	assert.Equal(t, 10, h.town.AvailableQuantity("grain"))
	assert.Equal(t, 0, ship.Quantity("grain"))
}

// A town whose price floor is zero and whose stock is far above ideal prices
// grain at 0; the ship must not receive it for free.
func TestBuyFromTown_RejectsZeroRevenue(t *testing.T) {
	cat := testCatalog(t)
	def := town.NewDefinition("Saltmere")
	def.Demands = []town.Demand{{Good: "grain", IdealQuantity: 10}}
	def.Tuning.MinMultiplier = 0
	treasury := ledger.New("Saltmere", 0, nil)
	tw := town.New(def, cat, treasury, chance.Fixed(0.5), zaptest.NewLogger(t))
	require.NoError(t, tw.AddCargo("grain", 100))
	price, err := tw.SellPrice("grain")
	require.NoError(t, err)
	require.Zero(t, price)

	port, err := trade.NewPort("Saltmere Port", 0.1, ledger.New("Saltmere Port", 0, nil), tw, nil)
	require.NoError(t, err)
	acct := ledger.New("Gull", 0, nil)
	ship := trade.NewShip("Gull", acct, cat, nil)
	ship.SetCurrentPort(port)

	paid, err := ship.BuyFromTown("grain", 5)
	assert.ErrorIs(t, err, trade.ErrNoRevenue)
	assert.Zero(t, paid)
	assert.Equal(t, 0, ship.Quantity("grain"))
	assert.Equal(t, 100, tw.AvailableQuantity("grain"))
	assert.Zero(t, acct.Balance())
	assert.Zero(t, treasury.Balance())
}

func TestBuyFromTown_Failures(t *testing.T) {
	h := newHarbor(t, town.NewDefinition("Saltmere"), 0)
	ship, acct := newShip(t, h, "Gull", 100)

	_, err := ship.BuyFromTown("grain", 1)
	assert.ErrorIs(t, err, trade.ErrNoDestination)

	ship.SetCurrentPort(h.port)
	_, err = ship.BuyFromTown("grain", 1)
	assert.ErrorIs(t, err, inventory.ErrInsufficientStock)
	_, err = ship.BuyFromTown("grain", 0)
	assert.ErrorIs(t, err, inventory.ErrInvalidQuantity)
	assert.InDelta(t, 100, acct.Balance(), 1e-9)
}

func TestInvestInTown(t *testing.T) {
	h := newHarbor(t, town.NewDefinition("Saltmere"), 0)
	ship, acct := newShip(t, h, "Gull", 500)

	assert.ErrorIs(t, ship.InvestInTown(100), trade.ErrNoDestination)

	ship.SetCurrentPort(h.port)
	require.NoError(t, ship.InvestInTown(100))
	assert.InDelta(t, 400, acct.Balance(), 1e-9)
	assert.InDelta(t, 100, h.town.Investment(), 1e-9)
	assert.ErrorIs(t, ship.InvestInTown(1000), ledger.ErrInsufficientFunds)
}

func TestActionState_EventsAndClearing(t *testing.T) {
	h := newHarbor(t, town.NewDefinition("Saltmere"), 0)
	ship, _ := newShip(t, h, "Gull", 0)
	require.NoError(t, ship.AddCargo("grain", 3))
	rec := &event.Recorder{}
	defer ship.Subscribe(rec)()

	require.NoError(t, ship.SetActionState(selection.Selling))
	require.NoError(t, ship.SetActionState(selection.Selling))
	_, _ = ship.AdjustSelection("grain", 10)
	assert.Equal(t, 3, ship.Selection("grain").Quantity)

	assert.ErrorIs(t, ship.SetActionState(selection.Dropping), selection.ErrIllegalTransition)

	ship.ClearAllSelections()
	assert.Empty(t, ship.Selected())
	assert.Equal(t, selection.Selling, ship.ActionState())

	ship.ExitActionState()
	assert.Equal(t, selection.Normal, ship.ActionState())

	var states []string
	for _, e := range rec.Events() {
		if e.Kind == event.KindActionStateChanged {
			states = append(states, e.State)
		}
	}
	assert.Equal(t, []string{"selling", "normal"}, states)
}

func TestRemoveCargo_ClampsSelection(t *testing.T) {
	h := newHarbor(t, town.NewDefinition("Saltmere"), 0)
	ship, _ := newShip(t, h, "Gull", 0)
	require.NoError(t, ship.AddCargo("grain", 5))
	require.NoError(t, ship.SetActionState(selection.Dropping))
	_, _ = ship.SetSelection("grain", 5)

	require.NoError(t, ship.RemoveCargo("grain", 2))
	assert.Equal(t, 3, ship.Selection("grain").Quantity)
	assert.Equal(t, 3, ship.Load())
}

func TestSetCurrentOtherShip_IgnoresSelf(t *testing.T) {
	h := newHarbor(t, town.NewDefinition("Saltmere"), 0)
	ship, _ := newShip(t, h, "Gull", 0)
	ship.SetCurrentOtherShip(ship)
	assert.Nil(t, ship.CurrentOtherShip())
}

// TestProperty_UnitsConservedAcrossTransfers runs random buys, sells, and
// gifts between a town and two ships that are always in range of each other
// and the port, and checks no units appear or vanish and no balance goes negative.
func TestProperty_UnitsConservedAcrossTransfers(t *testing.T) {
	goods := []string{"grain", "timber"}
	rapid.Check(t, func(rt *rapid.T) {
		h := newHarbor(rt, town.NewDefinition("Saltmere"), rapid.Float64Range(0, 500).Draw(rt, "town_funds"))
		a, aAcct := newShip(rt, h, "Gull", rapid.Float64Range(0, 500).Draw(rt, "a_funds"))
		b, bAcct := newShip(rt, h, "Tern", rapid.Float64Range(0, 500).Draw(rt, "b_funds"))
		for _, g := range goods {
			_ = h.town.AddCargo(g, rapid.IntRange(1, 30).Draw(rt, "town_"+g))
			_ = a.AddCargo(g, rapid.IntRange(1, 30).Draw(rt, "a_"+g))
		}
		a.SetCurrentOtherShip(b)
		b.SetCurrentOtherShip(a)
		b.SetCurrentPort(h.port)

		total := func(g string) int {
			return h.town.AvailableQuantity(g) + a.Quantity(g) + b.Quantity(g)
		}
		before := map[string]int{}
		for _, g := range goods {
			before[g] = total(g)
		}

		steps := rapid.IntRange(1, 30).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			good := rapid.SampledFrom(goods).Draw(rt, "good")
			switch rapid.IntRange(0, 3).Draw(rt, "op") {
			case 0:
				_, _ = b.BuyFromTown(good, rapid.IntRange(1, 10).Draw(rt, "qty"))
			case 1, 2:
				actor := a
				if rapid.Bool().Draw(rt, "actor_b") {
					actor = b
				}
				state := selection.Selling
				if rapid.Bool().Draw(rt, "drop") {
					state = selection.Dropping
				}
				_ = actor.SetActionState(state)
				_, _ = actor.AdjustSelection(good, rapid.IntRange(1, 12).Draw(rt, "sel"))
				_, _ = actor.ExecuteSelectedAction()
			case 3:
				if rapid.Bool().Draw(rt, "port") {
					a.SetCurrentPort(h.port)
				} else {
					a.ClearCurrentPort()
				}
			}
			for _, g := range goods {
				if got := total(g); got != before[g] {
					rt.Fatalf("%s: total units %d, want %d", g, got, before[g])
				}
			}
			for _, acct := range []*ledger.Ledger{h.treasury, h.portBank, aAcct, bAcct} {
				if acct.Balance() < 0 {
					rt.Fatalf("%s balance negative: %g", acct.Owner(), acct.Balance())
				}
			}
		}
	})
}
