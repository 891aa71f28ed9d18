package sim_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/porttown/internal/game/event"
	"github.com/cory-johannsen/porttown/internal/sim"
)

type recordingStepper struct {
	mu  sync.Mutex
	dts []time.Duration
}

func (r *recordingStepper) Step(dt time.Duration) []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dts = append(r.dts, dt)
	return nil
}

func (r *recordingStepper) steps() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.dts...)
}

func TestDriver_TickScalesElapsed(t *testing.T) {
	rs := &recordingStepper{}
	d := sim.NewDriver(rs, 100*time.Millisecond, 10, zaptest.NewLogger(t))
	t0 := time.Unix(1_700_000_000, 0)

	assert.Zero(t, d.Tick(t0))
	assert.Equal(t, time.Second, d.Tick(t0.Add(100*time.Millisecond)))
	assert.Zero(t, d.Tick(t0.Add(100*time.Millisecond)))
	assert.Equal(t, 5*time.Second, d.Tick(t0.Add(600*time.Millisecond)))

	assert.Equal(t, []time.Duration{time.Second, 5 * time.Second}, rs.steps())
}

func TestDriver_PanicsOnBadArguments(t *testing.T) {
	assert.Panics(t, func() { sim.NewDriver(&recordingStepper{}, 0, 1, nil) })
	assert.Panics(t, func() { sim.NewDriver(&recordingStepper{}, time.Second, 0, nil) })
}

func TestDriver_RunStepsUntilCancelled(t *testing.T) {
	rs := &recordingStepper{}
	d := sim.NewDriver(rs, 10*time.Millisecond, 1, zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.Eventually(t, func() bool { return len(rs.steps()) >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("driver did not stop after cancel")
	}
	for _, dt := range rs.steps() {
		assert.Positive(t, dt)
	}
}

func TestDriver_StepsWorld(t *testing.T) {
	w := buildWorld(t)
	d := sim.NewDriver(w, time.Millisecond, 60_000, nil)
	t0 := time.Unix(1_700_000_000, 0)
	d.Tick(t0)
	d.Tick(t0.Add(time.Millisecond))

	alpha, _ := w.Town("Alpha")
	assert.Equal(t, 1, alpha.AvailableQuantity("grain"))
}
