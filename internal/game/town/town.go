// Package town simulates a trading settlement's economy: supply generation,
// consumption, population drift, player investment, and the town side of trade.
package town

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/porttown/internal/game/cargo"
	"github.com/cory-johannsen/porttown/internal/game/chance"
	"github.com/cory-johannsen/porttown/internal/game/event"
	"github.com/cory-johannsen/porttown/internal/game/inventory"
	"github.com/cory-johannsen/porttown/internal/game/ledger"
	"github.com/cory-johannsen/porttown/internal/game/pricing"
)

// ErrUnknownGood is returned when a good is not in the catalog.
var ErrUnknownGood = errors.New("unknown good")

const (
	// acquisitionBoost is the share of a purchase's cost added to economy points.
	acquisitionBoost = 0.005
	// investmentBoost scales the immediate economy gain from a player investment.
	investmentBoost = 0.05
	// minPayout is the smallest investment return worth paying.
	minPayout = 0.01
	// surplusFactor marks stock above surplusFactor*ideal as oversupplied.
	surplusFactor = 1.5
	// spoilageRate is the share of oversupplied stock lost each consumption tick.
	spoilageRate = 0.05
	jitterLow    = 0.8
	jitterHigh   = 1.2
)

// timers holds the four countdowns. Each is decremented by Advance and reset
// to its full interval after firing.
type timers struct {
	supply      time.Duration
	consumption time.Duration
	population  time.Duration
	investment  time.Duration
}

// Town is one settlement's economy.
//
// Invariant: MinEconomy <= Economy() <= MaxEconomy and
// MinPopulation <= Population() <= MaxPopulation after every call.
// Town is not safe for concurrent use; a host advancing towns in parallel must
// serialize access to each Town.
type Town struct {
	name       string
	tuning     Tuning
	catalog    *cargo.Catalog
	producible map[string]bool
	demands    map[string]Demand
	modifiers  map[string]float64
	goods      []string // producible and demanded, sorted

	economy      float64
	population   int
	investment   float64
	lastSnapshot float64
	stock        *inventory.Inventory
	timers       timers

	treasury ledger.Account
	investor ledger.Account
	src      chance.Source
	logger   *zap.Logger

	bus  event.Bus
	step *[]event.Event
}

// New builds a Town from def.
//
// Precondition: def.Validate(catalog) == nil; catalog, treasury, and src are non-nil.
// Postcondition: every producible or demanded good has a zero stock entry, all
// timers hold their full interval, and the investment snapshot equals the
// starting economy.
func New(def Definition, catalog *cargo.Catalog, treasury ledger.Account, src chance.Source, logger *zap.Logger) *Town {
	if catalog == nil || treasury == nil || src == nil {
		panic("town.New: catalog, treasury, and src must be non-nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	tu := def.Tuning
	t := &Town{
		name:       def.Name,
		tuning:     tu,
		catalog:    catalog,
		producible: make(map[string]bool, len(def.Producible)),
		demands:    make(map[string]Demand, len(def.Demands)),
		modifiers:  make(map[string]float64, len(def.Modifiers)),
		economy:    clampFloat(tu.EconomyPoints, tu.MinEconomy, tu.MaxEconomy),
		population: clampInt(tu.Population, tu.MinPopulation, tu.MaxPopulation),
		stock:      inventory.New(),
		timers: timers{
			supply:      tu.SupplyInterval,
			consumption: tu.ConsumptionInterval,
			population:  tu.PopulationInterval,
			investment:  tu.InvestmentInterval,
		},
		treasury: treasury,
		src:      src,
		logger:   logger.With(zap.String("town", def.Name)),
	}
	t.lastSnapshot = t.economy

	for _, g := range def.Producible {
		t.producible[g] = true
		t.stock.Seed(g)
	}
	for _, d := range def.Demands {
		t.demands[d.Good] = d
		t.stock.Seed(d.Good)
	}
	for g, m := range def.Modifiers {
		t.modifiers[g] = m
	}
	seen := make(map[string]bool)
	for g := range t.producible {
		seen[g] = true
	}
	for g := range t.demands {
		seen[g] = true
	}
	for g := range seen {
		t.goods = append(t.goods, g)
	}
	sort.Strings(t.goods)

	t.logger.Info("town initialized",
		zap.Float64("economy", t.economy),
		zap.Int("population", t.population),
		zap.Int("goods", len(t.goods)),
	)
	return t
}

// Name returns the town name.
func (t *Town) Name() string { return t.name }

// Economy returns the current economy points.
func (t *Town) Economy() float64 { return t.economy }

// Population returns the current population.
func (t *Town) Population() int { return t.population }

// Investment returns the accumulated player investment.
func (t *Town) Investment() float64 { return t.investment }

// Treasury returns the town's own account.
func (t *Town) Treasury() ledger.Account { return t.treasury }

// Tuning returns the town's economy settings.
func (t *Town) Tuning() Tuning { return t.tuning }

// Demand returns the town's demand for good, if any.
func (t *Town) Demand(good string) (Demand, bool) {
	d, ok := t.demands[good]
	return d, ok
}

// Subscribe registers o for the town's change notifications.
func (t *Town) Subscribe(o event.Observer) (unsubscribe func()) {
	return t.bus.Subscribe(o)
}

// SetInvestorAccount sets the account that receives investment returns.
func (t *Town) SetInvestorAccount(a ledger.Account) {
	t.investor = a
}

// Advance moves the town's clocks forward by dt and runs every handler whose
// timer has expired, in the order supply, consumption, population, investment.
// Each handler fires at most once per call regardless of how many intervals dt
// spans; its timer then restarts from the full interval.
//
// Precondition: dt > 0. Non-positive dt is ignored.
// Postcondition: returns the events emitted during this call, in emission order.
func (t *Town) Advance(dt time.Duration) []event.Event {
	if dt <= 0 {
		return nil
	}
	emitted := make([]event.Event, 0)
	t.step = &emitted
	defer func() { t.step = nil }()

	tu := t.tuning
	if t.timers.supply -= dt; t.timers.supply <= 0 {
		t.generateSupplies()
		t.timers.supply = tu.SupplyInterval
	}
	if t.timers.consumption -= dt; t.timers.consumption <= 0 {
		t.consumeGoods()
		t.timers.consumption = tu.ConsumptionInterval
	}
	if t.timers.population -= dt; t.timers.population <= 0 {
		t.evaluatePopulation()
		t.timers.population = tu.PopulationInterval
	}
	if t.timers.investment -= dt; t.timers.investment <= 0 {
		t.evaluateInvestments()
		t.timers.investment = tu.InvestmentInterval
	}
	return emitted
}

func (t *Town) generateSupplies() {
	tu := t.tuning
	for _, g := range t.goods {
		rate := t.economy*tu.ProductionPerEconomyPoint + float64(t.population)*tu.ProductionPerPopulation
		if !t.producible[g] {
			rate *= tu.UnproducibleMultiplier
		}
		rate = math.Max(0, rate)
		if m, ok := t.modifiers[g]; ok {
			rate *= m
		}
		amount := roundInt(rate * chance.Between(t.src, jitterLow, jitterHigh))
		if amount > 0 {
			t.addStock(g, amount)
		}
	}
	t.logger.Debug("supplies generated")
	t.emitTownData()
}

func (t *Town) consumeGoods() {
	tu := t.tuning
	unmetEssential := false

	demanded := make([]string, 0, len(t.demands))
	for g := range t.demands {
		demanded = append(demanded, g)
	}
	sort.Strings(demanded)

	for _, g := range demanded {
		d := t.demands[g]
		required := roundInt(d.ConsumptionRatePerPopulation * float64(t.population))
		present := t.stock.Has(g)
		if consumed := min(max(required, 0), t.stock.Quantity(g)); consumed > 0 {
			_ = t.stock.Remove(g, consumed)
		}
		remaining := t.stock.Quantity(g)
		if d.Essential && (!present || float64(remaining) < float64(d.IdealQuantity)*tu.EssentialThreshold) {
			unmetEssential = true
			t.logger.Warn("essential good short",
				zap.String("good", g),
				zap.Int("remaining", remaining),
				zap.Float64("threshold", float64(d.IdealQuantity)*tu.EssentialThreshold),
			)
		}
		t.emit(event.Event{Kind: event.KindGoodsChanged, Source: t.name, Good: g, Quantity: remaining})
	}

	for _, g := range t.stock.Goods() {
		qty := t.stock.Quantity(g)
		d, ok := t.demands[g]
		if ok && float64(qty) <= float64(d.IdealQuantity)*surplusFactor {
			continue
		}
		if spoiled := roundInt(float64(qty) * spoilageRate); spoiled > 0 {
			t.removeStock(g, spoiled)
		}
	}

	if unmetEssential {
		t.AdjustEconomy(-t.economy * tu.EconomyDecayRate * tu.EconomyPenaltyMultiplier)
		t.AdjustPopulation(-roundInt(float64(t.population) * tu.PopulationDecayRate * tu.PopulationPenaltyMultiplier))
		t.logger.Warn("economy and population penalized for unmet essential needs",
			zap.Float64("economy", t.economy),
			zap.Int("population", t.population),
		)
	}
	t.emitTownData()
}

func (t *Town) evaluatePopulation() {
	tu := t.tuning
	switch {
	case t.economy > tu.MaxEconomy*0.75 && t.population < tu.MaxPopulation:
		t.AdjustPopulation(roundInt(float64(t.population) * tu.PopulationGrowthRate))
	case t.economy < tu.MinEconomy*1.5 && t.population > tu.MinPopulation:
		t.AdjustPopulation(-roundInt(float64(t.population) * tu.PopulationDecayRate))
	}
}

func (t *Town) evaluateInvestments() {
	if t.investment <= 0 {
		return
	}
	tu := t.tuning
	changePct := 0.0
	if t.lastSnapshot > 0 {
		changePct = (t.economy - t.lastSnapshot) / t.lastSnapshot
	}
	payout := t.investment * changePct * tu.BaseReturnRate * tu.ReturnMultiplier
	switch {
	case payout > minPayout && t.investor != nil:
		t.investor.Deposit(payout, "Investment return from "+t.name)
		t.logger.Info("investment return paid",
			zap.Float64("payout", payout),
			zap.Float64("economy_change", changePct),
		)
	case payout > minPayout:
		t.logger.Warn("no investor account; investment return not paid", zap.Float64("payout", payout))
	case payout < -minPayout:
		t.logger.Debug("negative investment return not charged", zap.Float64("payout", payout))
	}
	t.lastSnapshot = t.economy
	t.emitTownData()
}

// AdjustEconomy adds change to economy points and clamps the result.
//
// Postcondition: MinEconomy <= Economy() <= MaxEconomy.
func (t *Town) AdjustEconomy(change float64) {
	t.economy = clampFloat(t.economy+change, t.tuning.MinEconomy, t.tuning.MaxEconomy)
	t.emit(event.Event{Kind: event.KindEconomyChanged, Source: t.name, Economy: t.economy})
	t.emitTownData()
}

// AdjustPopulation adds change to population and clamps the result.
//
// Postcondition: MinPopulation <= Population() <= MaxPopulation.
func (t *Town) AdjustPopulation(change int) {
	t.population = clampInt(t.population+change, t.tuning.MinPopulation, t.tuning.MaxPopulation)
	t.logger.Debug("population adjusted", zap.Int("change", change), zap.Int("population", t.population))
	t.emit(event.Event{Kind: event.KindPopulationChanged, Source: t.name, Population: t.population})
	t.emitTownData()
}

// InvestProfitIntoEconomy converts netProfit into economy points at
// CurrencyPerEconomyPoint. Non-positive profit is ignored.
func (t *Town) InvestProfitIntoEconomy(netProfit float64) {
	if netProfit <= 0 {
		return
	}
	t.AdjustEconomy(netProfit / t.tuning.CurrencyPerEconomyPoint)
}

// AvailableQuantity returns the town's stock of good.
func (t *Town) AvailableQuantity(good string) int {
	return t.stock.Quantity(good)
}

// Stock returns a copy of the town's stock.
func (t *Town) Stock() map[string]int {
	return t.stock.Snapshot()
}

// AddCargo places qty units of good into town stock.
//
// Precondition: qty > 0.
// Postcondition: on success AvailableQuantity(good) increased by qty.
func (t *Town) AddCargo(good string, qty int) error {
	if err := t.stock.Add(good, qty); err != nil {
		return fmt.Errorf("town %s: %w", t.name, err)
	}
	t.logger.Debug("cargo received", zap.String("good", good), zap.Int("qty", qty), zap.Int("total", t.stock.Quantity(good)))
	t.emit(event.Event{Kind: event.KindGoodsChanged, Source: t.name, Good: good, Quantity: t.stock.Quantity(good)})
	t.emitTownData()
	return nil
}

// RemoveCargo takes qty units of good out of town stock.
//
// Precondition: 0 < qty <= AvailableQuantity(good).
// Postcondition: on error nothing changed.
func (t *Town) RemoveCargo(good string, qty int) error {
	if err := t.stock.Remove(good, qty); err != nil {
		t.logger.Warn("cargo removal rejected", zap.String("good", good), zap.Int("qty", qty), zap.Error(err))
		return fmt.Errorf("town %s: %w", t.name, err)
	}
	t.emit(event.Event{Kind: event.KindGoodsChanged, Source: t.name, Good: good, Quantity: t.stock.Quantity(good)})
	t.emitTownData()
	return nil
}

// BuyPrice returns what the town pays per unit of good.
func (t *Town) BuyPrice(good string) (float64, error) {
	return t.price(good, t.tuning.BuyPriceMultiplier)
}

// SellPrice returns what the town charges per unit of good.
func (t *Town) SellPrice(good string) (float64, error) {
	return t.price(good, t.tuning.SellPriceMultiplier)
}

func (t *Town) price(good string, side float64) (float64, error) {
	g, ok := t.catalog.Good(good)
	if !ok {
		return 0, fmt.Errorf("town %s: pricing %q: %w", t.name, good, ErrUnknownGood)
	}
	ideal := 0
	if d, ok := t.demands[good]; ok {
		ideal = d.IdealQuantity
	}
	return pricing.UnitPrice(g.BaseValue, side, t.stock.Quantity(good), ideal, t.tuning.Curve), nil
}

// BuyFromPlayer purchases qty units of good for the town treasury.
//
// Precondition: qty > 0; good is in the catalog.
// Postcondition: on success returns the total cost, stock increased by qty, and
// economy boosted by 0.5% of cost. On error nothing changed.
func (t *Town) BuyFromPlayer(good string, qty int) (float64, error) {
	if qty <= 0 {
		return 0, fmt.Errorf("town %s: buy %d of %q: %w", t.name, qty, good, inventory.ErrInvalidQuantity)
	}
	unit, err := t.BuyPrice(good)
	if err != nil {
		return 0, err
	}
	cost := unit * float64(qty)
	if !t.treasury.TryWithdraw(cost, fmt.Sprintf("Purchasing %d %s from player", qty, good)) {
		return 0, fmt.Errorf("town %s: buy %d of %q for %.2f: %w", t.name, qty, good, cost, ledger.ErrInsufficientFunds)
	}
	_ = t.AddCargo(good, qty)
	t.AdjustEconomy(cost * acquisitionBoost)
	t.logger.Info("bought from player", zap.String("good", good), zap.Int("qty", qty), zap.Float64("cost", cost))
	return cost, nil
}

// SellToPlayer sells qty units of good from town stock. The full revenue is
// deposited into the treasury and invested into the economy.
//
// Precondition: qty > 0; good is in the catalog.
// Postcondition: on success returns revenue and stock decreased by qty. On
// error nothing changed.
func (t *Town) SellToPlayer(good string, qty int) (float64, error) {
	if qty <= 0 {
		return 0, fmt.Errorf("town %s: sell %d of %q: %w", t.name, qty, good, inventory.ErrInvalidQuantity)
	}
	if held := t.stock.Quantity(good); held < qty {
		return 0, fmt.Errorf("town %s: sell %d of %q with %d available: %w", t.name, qty, good, held, inventory.ErrInsufficientStock)
	}
	unit, err := t.SellPrice(good)
	if err != nil {
		return 0, err
	}
	revenue := unit * float64(qty)
	t.treasury.Deposit(revenue, fmt.Sprintf("Selling %d %s to player", qty, good))
	_ = t.RemoveCargo(good, qty)
	t.InvestProfitIntoEconomy(revenue)
	t.logger.Info("sold to player", zap.String("good", good), zap.Int("qty", qty), zap.Float64("revenue", revenue))
	return revenue, nil
}

// PlayerInvest moves amount from the player's account into the town's
// investment pool and gives the economy an immediate boost. When no investor
// account is set, from becomes the investor.
//
// Precondition: amount > 0; from is non-nil.
// Postcondition: on error nothing changed.
func (t *Town) PlayerInvest(amount float64, from ledger.Account) error {
	if amount <= 0 || math.IsNaN(amount) {
		return fmt.Errorf("town %s: invest %g: %w", t.name, amount, inventory.ErrInvalidQuantity)
	}
	if !from.TryWithdraw(amount, "Investment in "+t.name) {
		return fmt.Errorf("town %s: invest %.2f: %w", t.name, amount, ledger.ErrInsufficientFunds)
	}
	if t.investor == nil {
		t.investor = from
	}
	t.investment += amount
	t.AdjustEconomy(amount * t.tuning.EconomyGrowthRate * investmentBoost)
	t.logger.Info("player invested", zap.Float64("amount", amount), zap.Float64("total", t.investment))
	return nil
}

// Snapshot is a read-only view of a town for display.
type Snapshot struct {
	Name                 string         `json:"name"`
	Economy              float64        `json:"economy"`
	Population           int            `json:"population"`
	Investment           float64        `json:"investment"`
	Balance              float64        `json:"balance"`
	Stock                map[string]int `json:"stock"`
	SupplyRemaining      time.Duration  `json:"supply_remaining"`
	ConsumptionRemaining time.Duration  `json:"consumption_remaining"`
	PopulationRemaining  time.Duration  `json:"population_remaining"`
	InvestmentRemaining  time.Duration  `json:"investment_remaining"`
}

// Snapshot returns the town's current state.
func (t *Town) Snapshot() Snapshot {
	return Snapshot{
		Name:                 t.name,
		Economy:              t.economy,
		Population:           t.population,
		Investment:           t.investment,
		Balance:              t.treasury.Balance(),
		Stock:                t.stock.Snapshot(),
		SupplyRemaining:      t.timers.supply,
		ConsumptionRemaining: t.timers.consumption,
		PopulationRemaining:  t.timers.population,
		InvestmentRemaining:  t.timers.investment,
	}
}

func (t *Town) addStock(good string, qty int) {
	_ = t.stock.Add(good, qty)
	t.emit(event.Event{Kind: event.KindGoodsChanged, Source: t.name, Good: good, Quantity: t.stock.Quantity(good)})
}

func (t *Town) removeStock(good string, qty int) {
	_ = t.stock.Remove(good, qty)
	t.emit(event.Event{Kind: event.KindGoodsChanged, Source: t.name, Good: good, Quantity: t.stock.Quantity(good)})
}

func (t *Town) emitTownData() {
	t.emit(event.Event{Kind: event.KindTownDataChanged, Source: t.name})
}

// emit publishes e and records it for the Advance call in progress, if any.
func (t *Town) emit(e event.Event) {
	if t.step != nil {
		*t.step = append(*t.step, e)
	}
	t.bus.Publish(e)
}

// roundInt rounds half to even.
func roundInt(v float64) int {
	return int(math.RoundToEven(v))
}

func clampFloat(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(hi, v))
}
