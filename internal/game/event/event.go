// Package event defines the change notifications emitted by towns, ships, and
// ledgers, and the observer plumbing used to deliver them.
package event

import (
	"sort"
	"sync"
)

// Kind identifies the type of change an Event describes.
type Kind string

const (
	KindEconomyChanged     Kind = "economy_changed"
	KindPopulationChanged  Kind = "population_changed"
	KindGoodsChanged       Kind = "goods_changed"
	KindTownDataChanged    Kind = "town_data_changed"
	KindShipCargoChanged   Kind = "ship_cargo_changed"
	KindActionStateChanged Kind = "action_state_changed"
	KindBalanceChanged     Kind = "balance_changed"
)

// Event is a read-only notification. Only the fields relevant to Kind are set.
type Event struct {
	Kind       Kind    `json:"kind"`
	Source     string  `json:"source"`
	Economy    float64 `json:"economy,omitempty"`
	Population int     `json:"population,omitempty"`
	Good       string  `json:"good,omitempty"`
	Quantity   int     `json:"quantity"`
	State      string  `json:"state,omitempty"`
	Balance    float64 `json:"balance,omitempty"`
}

// Observer receives events synchronously on the emitting goroutine.
type Observer interface {
	OnEvent(e Event)
}

// ObserverFunc adapts a plain function into an Observer.
type ObserverFunc func(e Event)

// OnEvent calls f(e).
func (f ObserverFunc) OnEvent(e Event) { f(e) }

// Bus fans events out to subscribed observers in subscription order.
// The zero value is ready to use. All methods are safe for concurrent use.
type Bus struct {
	mu        sync.Mutex
	nextID    int
	observers map[int]Observer
}

// Subscribe registers o and returns a function that removes it.
// Calling the returned function more than once is harmless.
//
// Precondition: o must not be nil.
func (b *Bus) Subscribe(o Observer) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.observers == nil {
		b.observers = make(map[int]Observer)
	}
	id := b.nextID
	b.nextID++
	b.observers[id] = o
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.observers, id)
	}
}

// Publish delivers e to every observer. Observers are invoked outside the lock
// so they may subscribe or unsubscribe while handling the event.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	if len(b.observers) == 0 {
		b.mu.Unlock()
		return
	}
	ids := make([]int, 0, len(b.observers))
	for id := range b.observers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	targets := make([]Observer, 0, len(ids))
	for _, id := range ids {
		targets = append(targets, b.observers[id])
	}
	b.mu.Unlock()

	for _, o := range targets {
		o.OnEvent(e)
	}
}

// Recorder is an Observer that keeps every event it sees, in order.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// OnEvent appends e.
func (r *Recorder) OnEvent(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Kinds returns the Kind of every recorded event, in order.
func (r *Recorder) Kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Kind, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind
	}
	return out
}

// Reset discards all recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
