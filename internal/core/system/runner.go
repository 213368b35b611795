package system

import (
	"context"
	"time"
)

// Runner drives a Ticker at a fixed rate and runs hooks between ticks.
type Runner struct {
	target Ticker
	rate   time.Duration
	hooks  []Hook
	ticks  uint64
}

func NewRunner(target Ticker, rate time.Duration) *Runner {
	return &Runner{
		target: target,
		rate:   rate,
		hooks:  make([]Hook, 0, 4),
	}
}

// OnTick registers a hook run after every tick.
func (r *Runner) OnTick(h Hook) {
	r.hooks = append(r.hooks, h)
}

// Every registers a hook run after every n-th tick.
func (r *Runner) Every(n uint64, h Hook) {
	if n == 0 {
		return
	}
	r.OnTick(func(tick uint64) {
		if tick%n == 0 {
			h(tick)
		}
	})
}

func (r *Runner) Ticks() uint64 { return r.ticks }

// Step runs exactly one tick with the configured rate as delta time.
func (r *Runner) Step() {
	r.target.UpdateSystems(r.rate)
	r.ticks++
	for _, h := range r.hooks {
		h(r.ticks)
	}
}

// Run ticks until ctx is done or maxTicks ticks have run (0 = unbounded).
// A zero rate runs ticks back to back.
func (r *Runner) Run(ctx context.Context, maxTicks uint64) error {
	if r.rate <= 0 {
		for maxTicks == 0 || r.ticks < maxTicks {
			if err := ctx.Err(); err != nil {
				return err
			}
			r.Step()
		}
		return nil
	}

	ticker := time.NewTicker(r.rate)
	defer ticker.Stop()
	for maxTicks == 0 || r.ticks < maxTicks {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.Step()
		}
	}
	return nil
}
