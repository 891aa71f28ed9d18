// Package sim hosts the towns, ports, and ships of one simulation and drives
// their clocks.
package sim

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/porttown/internal/game/cargo"
	"github.com/cory-johannsen/porttown/internal/game/chance"
	"github.com/cory-johannsen/porttown/internal/game/event"
	"github.com/cory-johannsen/porttown/internal/game/ledger"
	"github.com/cory-johannsen/porttown/internal/game/town"
	"github.com/cory-johannsen/porttown/internal/game/trade"
)

// subscriber is implemented by every entity that emits events.
type subscriber interface {
	Subscribe(o event.Observer) (unsubscribe func())
}

// World owns every simulated entity and serializes access to them.
//
// Step and Do hold the world lock for their whole duration, so observers
// receiving events must not call back into the World.
type World struct {
	mu      sync.Mutex
	catalog *cargo.Catalog
	towns   map[string]*town.Town
	ports   map[string]*trade.Port
	ships   map[string]*trade.Ship
	logger  *zap.Logger
	bus     event.Bus
}

// NewWorld returns an empty World.
//
// Precondition: catalog must be non-nil.
func NewWorld(catalog *cargo.Catalog, logger *zap.Logger) *World {
	if catalog == nil {
		panic("sim.NewWorld: catalog must be non-nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &World{
		catalog: catalog,
		towns:   make(map[string]*town.Town),
		ports:   make(map[string]*trade.Port),
		ships:   make(map[string]*trade.Ship),
		logger:  logger,
	}
}

// Catalog returns the goods catalog shared by every entity.
func (w *World) Catalog() *cargo.Catalog { return w.catalog }

// Subscribe registers o for every event emitted by any entity in the world.
func (w *World) Subscribe(o event.Observer) (unsubscribe func()) {
	return w.bus.Subscribe(o)
}

// forward relays src's events, and those of its account when it emits any, to the world bus.
func (w *World) forward(src subscriber, account ledger.Account) {
	src.Subscribe(event.ObserverFunc(w.bus.Publish))
	if s, ok := account.(subscriber); ok {
		s.Subscribe(event.ObserverFunc(w.bus.Publish))
	}
}

// AddTown registers t.
//
// Precondition: no town with the same name is registered.
func (w *World) AddTown(t *town.Town) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, dup := w.towns[t.Name()]; dup {
		return fmt.Errorf("sim: town %q already registered", t.Name())
	}
	w.towns[t.Name()] = t
	w.forward(t, t.Treasury())
	w.logger.Info("town registered", zap.String("town", t.Name()))
	return nil
}

// AddPort registers p. Port tax accounts emit balance events but ports
// themselves do not.
//
// Precondition: no port with the same name is registered.
func (w *World) AddPort(p *trade.Port) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, dup := w.ports[p.Name()]; dup {
		return fmt.Errorf("sim: port %q already registered", p.Name())
	}
	w.ports[p.Name()] = p
	if s, ok := p.Treasury().(subscriber); ok {
		s.Subscribe(event.ObserverFunc(w.bus.Publish))
	}
	w.logger.Info("port registered", zap.String("port", p.Name()), zap.String("town", p.Town().Name()))
	return nil
}

// AddShip registers s.
//
// Precondition: no ship with the same name is registered.
func (w *World) AddShip(s *trade.Ship) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, dup := w.ships[s.Name()]; dup {
		return fmt.Errorf("sim: ship %q already registered", s.Name())
	}
	w.ships[s.Name()] = s
	w.forward(s, s.Account())
	w.logger.Info("ship registered", zap.String("ship", s.Name()), zap.String("ship_id", s.ID().String()))
	return nil
}

// Town returns the town named name.
func (w *World) Town(name string) (*town.Town, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	t, ok := w.towns[name]
	return t, ok
}

// Port returns the port named name.
func (w *World) Port(name string) (*trade.Port, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	p, ok := w.ports[name]
	return p, ok
}

// Ship returns the ship named name.
func (w *World) Ship(name string) (*trade.Ship, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.ships[name]
	return s, ok
}

// TownNames returns every registered town name, sorted.
func (w *World) TownNames() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return sortedKeys(w.towns)
}

// PortNames returns every registered port name, sorted.
func (w *World) PortNames() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return sortedKeys(w.ports)
}

// Step advances every town by dt in name order.
//
// Postcondition: returns all events emitted by the towns' timers during this
// step, grouped by town in name order.
func (w *World) Step(dt time.Duration) []event.Event {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []event.Event
	for _, name := range sortedKeys(w.towns) {
		out = append(out, w.towns[name].Advance(dt)...)
	}
	return out
}

// Do runs fn with exclusive access to the world. Trade requests go through Do
// so they never interleave with Step.
func (w *World) Do(fn func(tx Tx) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return fn(Tx{w: w})
}

// Tx is the world as seen from inside Do. Its lookups do not take the world lock.
type Tx struct {
	w *World
}

// Town returns the town named name.
func (tx Tx) Town(name string) (*town.Town, bool) {
	t, ok := tx.w.towns[name]
	return t, ok
}

// Port returns the port named name.
func (tx Tx) Port(name string) (*trade.Port, bool) {
	p, ok := tx.w.ports[name]
	return p, ok
}

// Ship returns the ship named name.
func (tx Tx) Ship(name string) (*trade.Ship, bool) {
	s, ok := tx.w.ships[name]
	return s, ok
}

// Snapshots returns a snapshot of every town, in name order.
func (w *World) Snapshots() []town.Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]town.Snapshot, 0, len(w.towns))
	for _, name := range sortedKeys(w.towns) {
		out = append(out, w.towns[name].Snapshot())
	}
	return out
}

// Build creates a World from town definitions: one treasury, town, port, and
// port treasury per definition.
//
// Precondition: every def is valid against catalog; src is non-nil.
func Build(defs []town.Definition, catalog *cargo.Catalog, src chance.Source, logger *zap.Logger) (*World, error) {
	w := NewWorld(catalog, logger)
	for _, def := range defs {
		if err := def.Validate(catalog); err != nil {
			return nil, fmt.Errorf("sim: %w", err)
		}
		treasury := ledger.New(def.Name, def.OpeningBalance, w.logger)
		t := town.New(def, catalog, treasury, src, w.logger)
		if err := w.AddTown(t); err != nil {
			return nil, err
		}
		portName := def.Port.Name
		if portName == "" {
			portName = def.Name + " Port"
		}
		portBank := ledger.New(portName, def.Port.OpeningBalance, w.logger)
		p, err := trade.NewPort(portName, def.Port.TaxPercentage, portBank, t, w.logger)
		if err != nil {
			return nil, fmt.Errorf("sim: %w", err)
		}
		if err := w.AddPort(p); err != nil {
			return nil, err
		}
	}
	return w, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
