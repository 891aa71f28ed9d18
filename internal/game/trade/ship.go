// Package trade moves cargo and currency between ships, ports, and towns.
//
// Every operation runs to completion synchronously. Sales to a town are
// processed slot by slot; a failed slot is reported and skipped while the
// rest of the action proceeds.
package trade

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/porttown/internal/game/cargo"
	"github.com/cory-johannsen/porttown/internal/game/event"
	"github.com/cory-johannsen/porttown/internal/game/inventory"
	"github.com/cory-johannsen/porttown/internal/game/ledger"
	"github.com/cory-johannsen/porttown/internal/game/selection"
)

var (
	// ErrNoDestination is returned when an action needs a port or ship in range and none is.
	ErrNoDestination = errors.New("no trade destination in range")
	// ErrNoRevenue is returned when a town sale produced no positive price.
	ErrNoRevenue = errors.New("sale produced no revenue")
)

// Outcome describes what happened to one selected slot.
type Outcome string

const (
	OutcomeSold        Outcome = "sold"
	OutcomeTransferred Outcome = "transferred"
	OutcomeDestroyed   Outcome = "destroyed"
	OutcomeFailed      Outcome = "failed"
)

// SlotResult is the result of executing an action on one selected slot.
type SlotResult struct {
	Good     string
	Quantity int
	Outcome  Outcome
	// Paid is the gross amount the buyer paid.
	Paid float64
	// Net is what the ship received after tax.
	Net float64
	// Tax is what the port kept.
	Tax float64
	Err error
}

// Report summarizes an executed action.
type Report struct {
	Action      selection.ActionState
	Destination string
	Results     []SlotResult
}

// Moved returns the number of units that left the ship.
func (r Report) Moved() int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome != OutcomeFailed {
			n += res.Quantity
		}
	}
	return n
}

// Earned returns the ship's total net proceeds.
func (r Report) Earned() float64 {
	total := 0.0
	for _, res := range r.Results {
		total += res.Net
	}
	return total
}

// Ship is a mobile trading agent with its own account, cargo hold, and
// selection session.
//
// Ship is not safe for concurrent use.
type Ship struct {
	id      uuid.UUID
	name    string
	account ledger.Account
	cargo   *inventory.Inventory
	session *selection.Session
	catalog *cargo.Catalog

	port  *Port
	other *Ship

	logger *zap.Logger
	bus    event.Bus
}

// NewShip creates a ship owned by account.
//
// Precondition: account and catalog are non-nil.
func NewShip(name string, account ledger.Account, catalog *cargo.Catalog, logger *zap.Logger) *Ship {
	if account == nil || catalog == nil {
		panic("trade.NewShip: account and catalog must be non-nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.New()
	inv := inventory.New()
	return &Ship{
		id:      id,
		name:    name,
		account: account,
		cargo:   inv,
		session: selection.NewSession(inv),
		catalog: catalog,
		logger:  logger.With(zap.String("ship", name), zap.String("ship_id", id.String())),
	}
}

// ID returns the ship's unique identity.
func (s *Ship) ID() uuid.UUID { return s.id }

// Name returns the ship name.
func (s *Ship) Name() string { return s.name }

// Account returns the owner's account.
func (s *Ship) Account() ledger.Account { return s.account }

// Quantity returns the held quantity of good.
func (s *Ship) Quantity(good string) int { return s.cargo.Quantity(good) }

// Cargo returns a copy of the hold.
func (s *Ship) Cargo() map[string]int { return s.cargo.Snapshot() }

// Load returns the hold space in use.
func (s *Ship) Load() int { return s.cargo.Load(s.catalog) }

// Subscribe registers o for ship_cargo_changed and action_state_changed notifications.
func (s *Ship) Subscribe(o event.Observer) (unsubscribe func()) {
	return s.bus.Subscribe(o)
}

// AddCargo puts qty units of good in the hold.
//
// Precondition: qty > 0.
func (s *Ship) AddCargo(good string, qty int) error {
	if err := s.cargo.Add(good, qty); err != nil {
		return fmt.Errorf("ship %s: %w", s.name, err)
	}
	s.cargoChanged(good)
	return nil
}

// RemoveCargo takes qty units of good out of the hold. Selections are clamped
// to what remains.
//
// Precondition: 0 < qty <= Quantity(good).
// Postcondition: on error nothing changed.
func (s *Ship) RemoveCargo(good string, qty int) error {
	if err := s.cargo.Remove(good, qty); err != nil {
		return fmt.Errorf("ship %s: %w", s.name, err)
	}
	s.cargoChanged(good)
	return nil
}

func (s *Ship) cargoChanged(good string) {
	s.session.Reconcile()
	s.bus.Publish(event.Event{Kind: event.KindShipCargoChanged, Source: s.name, Good: good, Quantity: s.cargo.Quantity(good)})
}

// SetCurrentPort records that the ship is inside p's trade zone.
func (s *Ship) SetCurrentPort(p *Port) {
	s.port = p
	if p != nil {
		s.logger.Debug("entered port", zap.String("port", p.Name()))
	}
}

// ClearCurrentPort records that the ship left its port's trade zone.
func (s *Ship) ClearCurrentPort() {
	if s.port != nil {
		s.logger.Debug("left port", zap.String("port", s.port.Name()))
	}
	s.port = nil
}

// CurrentPort returns the port in range, or nil.
func (s *Ship) CurrentPort() *Port { return s.port }

// SetCurrentOtherShip records that o is within trading range.
//
// Precondition: o != s.
func (s *Ship) SetCurrentOtherShip(o *Ship) {
	if o == s {
		return
	}
	s.other = o
	if o != nil {
		s.logger.Debug("ship in range", zap.String("other", o.Name()))
	}
}

// ClearCurrentOtherShip records that no other ship is in range.
func (s *Ship) ClearCurrentOtherShip() {
	s.other = nil
}

// CurrentOtherShip returns the ship in range, or nil.
func (s *Ship) CurrentOtherShip() *Ship { return s.other }

// ActionState returns the current trade-action mode.
func (s *Ship) ActionState() selection.ActionState { return s.session.State() }

// SetActionState changes the trade-action mode, clearing every selection.
// Setting the current state is a no-op.
func (s *Ship) SetActionState(next selection.ActionState) error {
	changed, err := s.session.SetState(next)
	if err != nil {
		return fmt.Errorf("ship %s: %w", s.name, err)
	}
	if changed {
		s.logger.Debug("action state changed", zap.Stringer("state", next))
		s.bus.Publish(event.Event{Kind: event.KindActionStateChanged, Source: s.name, State: next.String()})
	}
	return nil
}

// ExitActionState cancels the current action and returns to Normal.
func (s *Ship) ExitActionState() {
	_ = s.SetActionState(selection.Normal)
}

// ToggleSelection flips the selection of good for the current action.
func (s *Ship) ToggleSelection(good string) (selection.Slot, error) {
	return s.session.Toggle(good)
}

// AdjustSelection changes the selected quantity of good by delta, clamped to what is held.
func (s *Ship) AdjustSelection(good string, delta int) (selection.Slot, error) {
	return s.session.Adjust(good, delta)
}

// SetSelection selects exactly n units of good.
func (s *Ship) SetSelection(good string, n int) (selection.Slot, error) {
	return s.session.Set(good, n)
}

// ClearAllSelections deselects every slot without leaving the current action.
func (s *Ship) ClearAllSelections() {
	s.session.Clear()
}

// Selection returns the selection state of good.
func (s *Ship) Selection(good string) selection.Slot {
	return s.session.Slot(good)
}

// Selected returns every slot selected for the current action.
func (s *Ship) Selected() []selection.Slot {
	return s.session.Selected()
}

// BuyFromTown buys qty units of good from the current port's town.
//
// The town sells first; if the sale produced no positive revenue, or the
// ship's account cannot cover it, the units are returned to town stock and the
// purchase fails. The town keeps
// the deposit and economy gain it recorded for the sale.
//
// Precondition: a port is in range; qty > 0.
// Postcondition: on success returns the price paid and the hold gained qty
// units. On error the ship's account and hold are unchanged.
func (s *Ship) BuyFromTown(good string, qty int) (float64, error) {
	if s.port == nil {
		return 0, fmt.Errorf("ship %s: buy %q: %w", s.name, good, ErrNoDestination)
	}
	t := s.port.Town()
	revenue, err := t.SellToPlayer(good, qty)
	if err != nil {
		return 0, fmt.Errorf("ship %s: %w", s.name, err)
	}
	if !(revenue > 0) {
		s.restoreTownStock(good, qty)
		s.logger.Warn("town sale had no price; stock returned to town",
			zap.String("good", good),
			zap.Int("qty", qty),
			zap.Float64("price", revenue),
		)
		return 0, fmt.Errorf("ship %s: buy %d %q from %s: %w", s.name, qty, good, t.Name(), ErrNoRevenue)
	}
	if !s.account.TryWithdraw(revenue, fmt.Sprintf("Purchasing %d %s from %s", qty, good, t.Name())) {
		s.restoreTownStock(good, qty)
		s.logger.Warn("cannot afford purchase; stock returned to town",
			zap.String("good", good),
			zap.Int("qty", qty),
			zap.Float64("price", revenue),
			zap.Float64("balance", s.account.Balance()),
		)
		return 0, fmt.Errorf("ship %s: buy %d %q for %.2f: %w", s.name, qty, good, revenue, ledger.ErrInsufficientFunds)
	}
	_ = s.AddCargo(good, qty)
	s.logger.Info("bought from town",
		zap.String("town", t.Name()),
		zap.String("good", good),
		zap.Int("qty", qty),
		zap.Float64("price", revenue),
	)
	return revenue, nil
}

// restoreTownStock hands qty units of good back to the current port's town
// after a purchase that cannot complete.
func (s *Ship) restoreTownStock(good string, qty int) {
	if err := s.port.Town().AddCargo(good, qty); err != nil {
		s.logger.Error("restoring town stock failed", zap.String("good", good), zap.Int("qty", qty), zap.Error(err))
	}
}

// InvestInTown invests amount from the ship's account in the current port's town.
//
// Precondition: a port is in range; amount > 0.
func (s *Ship) InvestInTown(amount float64) error {
	if s.port == nil {
		return fmt.Errorf("ship %s: invest: %w", s.name, ErrNoDestination)
	}
	if err := s.port.Town().PlayerInvest(amount, s.account); err != nil {
		return fmt.Errorf("ship %s: %w", s.name, err)
	}
	return nil
}

// ExecuteSelectedAction performs the current action on every selected slot and
// returns to Normal.
//
// Selling goes to the port's town when a port is in range, otherwise to the
// other ship in range. Dropping gives cargo to the port's town, otherwise to
// the other ship, otherwise destroys it. Selling with no destination sells
// nothing and returns ErrNoDestination. In Normal state this is a no-op.
func (s *Ship) ExecuteSelectedAction() (Report, error) {
	action := s.session.State()
	report := Report{Action: action}
	if action == selection.Normal {
		return report, nil
	}
	selected := s.session.Selected()

	var err error
	switch action {
	case selection.Selling:
		switch {
		case s.port != nil:
			report.Destination = s.port.Name()
			report.Results = s.sellToPort(selected)
		case s.other != nil:
			report.Destination = s.other.Name()
			report.Results = s.sellToShip(selected)
		default:
			s.logger.Warn("cannot sell: no port or ship in range")
			err = fmt.Errorf("ship %s: sell: %w", s.name, ErrNoDestination)
		}
	case selection.Dropping:
		switch {
		case s.port != nil:
			report.Destination = s.port.Town().Name()
		case s.other != nil:
			report.Destination = s.other.Name()
		}
		report.Results = s.drop(selected)
	}

	s.ExitActionState()
	return report, err
}

func (s *Ship) sellToPort(selected []selection.Slot) []SlotResult {
	p := s.port
	t := p.Town()
	results := make([]SlotResult, 0, len(selected))
	for _, slot := range selected {
		res := SlotResult{Good: slot.Good, Quantity: slot.Quantity, Outcome: OutcomeFailed}
		if held := s.cargo.Quantity(slot.Good); held < slot.Quantity {
			res.Err = fmt.Errorf("sell %d %q with %d held: %w", slot.Quantity, slot.Good, held, inventory.ErrInsufficientStock)
			results = append(results, res)
			continue
		}
		paid, err := t.BuyFromPlayer(slot.Good, slot.Quantity)
		if err != nil {
			s.logger.Warn("town could not buy", zap.String("town", t.Name()), zap.String("good", slot.Good), zap.Error(err))
			res.Err = err
			results = append(results, res)
			continue
		}
		net, tax := p.split(paid)
		s.account.Deposit(net, fmt.Sprintf("Sold %d %s at %s (net of tax)", slot.Quantity, slot.Good, t.Name()))
		p.treasury.Deposit(tax, fmt.Sprintf("Tax on %d %s from %s", slot.Quantity, slot.Good, s.account.Owner()))
		_ = s.RemoveCargo(slot.Good, slot.Quantity)

		res.Outcome, res.Paid, res.Net, res.Tax = OutcomeSold, paid, net, tax
		results = append(results, res)
		s.logger.Info("sold to town",
			zap.String("town", t.Name()),
			zap.String("good", slot.Good),
			zap.Int("qty", slot.Quantity),
			zap.Float64("paid", paid),
			zap.Float64("tax", tax),
		)
	}
	return results
}

func (s *Ship) sellToShip(selected []selection.Slot) []SlotResult {
	buyer := s.other
	results := make([]SlotResult, 0, len(selected))
	for _, slot := range selected {
		res := SlotResult{Good: slot.Good, Quantity: slot.Quantity, Outcome: OutcomeFailed}
		good, ok := s.catalog.Good(slot.Good)
		if !ok {
			res.Err = fmt.Errorf("sell %q: unknown good", slot.Good)
			results = append(results, res)
			continue
		}
		if held := s.cargo.Quantity(slot.Good); held < slot.Quantity {
			res.Err = fmt.Errorf("sell %d %q with %d held: %w", slot.Quantity, slot.Good, held, inventory.ErrInsufficientStock)
			results = append(results, res)
			continue
		}
		value := good.BaseValue * float64(slot.Quantity)
		if !buyer.account.TryWithdraw(value, fmt.Sprintf("Buying %d %s from %s", slot.Quantity, slot.Good, s.account.Owner())) {
			s.logger.Warn("other ship could not pay", zap.String("buyer", buyer.Name()), zap.String("good", slot.Good), zap.Float64("value", value))
			res.Err = fmt.Errorf("sell %d %q to %s: %w", slot.Quantity, slot.Good, buyer.Name(), ledger.ErrInsufficientFunds)
			results = append(results, res)
			continue
		}
		_ = buyer.AddCargo(slot.Good, slot.Quantity)
		s.account.Deposit(value, fmt.Sprintf("Sold %d %s to %s", slot.Quantity, slot.Good, buyer.account.Owner()))
		_ = s.RemoveCargo(slot.Good, slot.Quantity)

		res.Outcome, res.Paid, res.Net = OutcomeSold, value, value
		results = append(results, res)
		s.logger.Info("sold to ship", zap.String("buyer", buyer.Name()), zap.String("good", slot.Good), zap.Int("qty", slot.Quantity), zap.Float64("value", value))
	}
	return results
}

func (s *Ship) drop(selected []selection.Slot) []SlotResult {
	results := make([]SlotResult, 0, len(selected))
	for _, slot := range selected {
		res := SlotResult{Good: slot.Good, Quantity: slot.Quantity, Outcome: OutcomeFailed}
		if err := s.RemoveCargo(slot.Good, slot.Quantity); err != nil {
			res.Err = err
			results = append(results, res)
			continue
		}
		switch {
		case s.port != nil:
			_ = s.port.Town().AddCargo(slot.Good, slot.Quantity)
			res.Outcome = OutcomeTransferred
		case s.other != nil:
			_ = s.other.AddCargo(slot.Good, slot.Quantity)
			res.Outcome = OutcomeTransferred
		default:
			res.Outcome = OutcomeDestroyed
		}
		s.logger.Info("cargo dropped", zap.String("good", slot.Good), zap.Int("qty", slot.Quantity), zap.String("outcome", string(res.Outcome)))
		results = append(results, res)
	}
	return results
}
