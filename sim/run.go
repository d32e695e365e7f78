package sim

import (
	"context"
	"log/slog"
)

// Run steps the engine until ctx ends, Stop is called, the max tick is
// reached or a step fails. Pause and Resume take effect between ticks.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	e.running = true
	e.cancel = cancel
	clock := NewClock(e.interval)
	e.mu.Unlock()

	defer func() {
		cancel()
		e.mu.Lock()
		e.running = false
		e.cancel = nil
		e.mu.Unlock()
	}()

	slog.Info("run_started", "tick", e.Tick(), "max_ticks", e.maxTicks, "interval", clock.Interval())
	for {
		if e.maxTicks > 0 && e.Tick() >= e.maxTicks {
			return nil
		}
		if err := e.waitIfPaused(ctx); err != nil {
			return nil
		}
		if err := clock.Wait(ctx); err != nil {
			return nil
		}
		sum, err := e.Step()
		if err != nil {
			return err
		}
		if e.maxTicks > 0 && sum.Tick >= e.maxTicks {
			slog.Info("run_finished", "tick", sum.Tick, "alive", sum.Alive)
			return nil
		}
	}
}

func (e *Engine) waitIfPaused(ctx context.Context) error {
	for {
		e.mu.Lock()
		paused := e.paused
		e.mu.Unlock()
		if !paused {
			return ctx.Err()
		}
		select {
		case <-e.wake:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Pause holds Run before its next tick. Step still works while paused.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paused = true
}

// Resume releases a paused Run.
func (e *Engine) Resume() {
	e.mu.Lock()
	e.paused = false
	e.mu.Unlock()
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Paused reports whether Run is paused.
func (e *Engine) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

// Running reports whether Run is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Stop ends a running Run after its current tick.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
	}
}
