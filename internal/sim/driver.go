package sim

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/porttown/internal/game/event"
)

// Stepper advances simulated time.
type Stepper interface {
	Step(dt time.Duration) []event.Event
}

// Driver calls Step on a fixed wall-clock interval with the elapsed time,
// scaled by a constant factor.
type Driver struct {
	stepper  Stepper
	interval time.Duration
	scale    float64
	now      func() time.Time
	last     time.Time
	logger   *zap.Logger
}

// NewDriver returns a stopped Driver.
//
// Precondition: interval > 0 and scale > 0.
func NewDriver(s Stepper, interval time.Duration, scale float64, logger *zap.Logger) *Driver {
	if interval <= 0 {
		panic("sim.NewDriver: interval must be > 0")
	}
	if scale <= 0 {
		panic("sim.NewDriver: scale must be > 0")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{
		stepper:  s,
		interval: interval,
		scale:    scale,
		now:      time.Now,
		logger:   logger,
	}
}

// Tick steps the simulation by the scaled time elapsed since the previous
// Tick. The first Tick only records the start time.
//
// Postcondition: returns the simulated duration stepped, 0 if nothing was stepped.
func (d *Driver) Tick(now time.Time) time.Duration {
	if d.last.IsZero() {
		d.last = now
		return 0
	}
	elapsed := now.Sub(d.last)
	d.last = now
	if elapsed <= 0 {
		return 0
	}
	dt := time.Duration(float64(elapsed) * d.scale)
	if dt <= 0 {
		return 0
	}
	events := d.stepper.Step(dt)
	if len(events) > 0 {
		d.logger.Debug("simulation stepped", zap.Duration("dt", dt), zap.Int("events", len(events)))
	}
	return dt
}

// Run ticks every interval until ctx is cancelled.
//
// Postcondition: returns nil once ctx is done.
func (d *Driver) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	d.Tick(d.now())
	d.logger.Info("simulation driver started", zap.Duration("interval", d.interval), zap.Float64("time_scale", d.scale))
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("simulation driver stopped")
			return nil
		case t := <-ticker.C:
			d.Tick(t)
		}
	}
}
