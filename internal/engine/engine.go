// Package engine provides the tick loop that drives the synchronization
// controller. One goroutine owns all controller mutation: control-loop
// steps, resyncs, and telemetry all run from callbacks on this loop, which
// is what lets the rest of the process read controller state behind a
// single RWMutex. The engine's own counters (tick, speed, running) are
// atomic so the HTTP handlers can read and adjust them without holding
// that lock against the loop.
package engine

import (
	"log/slog"
	"math"
	"sync/atomic"
	"time"
)

// TickSchedule defines when each callback layer runs relative to the tick
// counter, at the default 10ms tick interval.
const (
	TicksPerSecond = 100  // control-loop dt = 10ms
	TicksPerMinute = 6000 // 60 × 100
)

// DefaultInterval is the base wall-clock tick interval.
const DefaultInterval = 10 * time.Millisecond

// Engine drives the simulation forward.
type Engine struct {
	Interval time.Duration // Base tick interval

	tick    atomic.Uint64 // Current tick counter (monotonic, never resets)
	speed   atomic.Uint64 // Speed multiplier as float64 bits
	running atomic.Bool

	// Callbacks for each tick layer — populated during setup, before Run.
	OnTick   func(tick uint64) // Every tick: one control-loop step
	OnSecond func(tick uint64) // Every second: telemetry sampling
	OnMinute func(tick uint64) // Every minute: persistence, housekeeping
}

// NewEngine creates an engine with default settings.
func NewEngine() *Engine {
	e := &Engine{Interval: DefaultInterval}
	e.SetSpeed(1.0)
	return e
}

// TickCount returns the current tick counter.
func (e *Engine) TickCount() uint64 {
	return e.tick.Load()
}

// Speed returns the current speed multiplier: 1.0 = real-time, 0 = paused.
func (e *Engine) Speed() float64 {
	return math.Float64frombits(e.speed.Load())
}

// SetSpeed adjusts the speed multiplier. Safe to call while Run is ticking.
func (e *Engine) SetSpeed(speed float64) {
	e.speed.Store(math.Float64bits(speed))
}

// Running reports whether the tick loop is active.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Dt returns the simulated seconds one tick advances the controller.
func (e *Engine) Dt() float64 {
	return e.Interval.Seconds()
}

// Run starts the tick loop. Blocks until Stop() is called.
func (e *Engine) Run() {
	e.running.Store(true)
	slog.Info("sync engine started", "tick", e.TickCount(), "interval", e.Interval, "speed", e.Speed())

	for e.running.Load() {
		speed := e.Speed()
		if speed <= 0 {
			// Paused — sleep briefly and check again.
			time.Sleep(100 * time.Millisecond)
			continue
		}

		start := time.Now()

		e.step()

		// Sleep for the remainder of the tick interval, adjusted for speed.
		elapsed := time.Since(start)
		target := time.Duration(float64(e.Interval) / speed)
		if elapsed < target {
			time.Sleep(target - elapsed)
		}
	}

	slog.Info("sync engine stopped", "tick", e.TickCount())
}

// Stop halts the tick loop.
func (e *Engine) Stop() {
	e.running.Store(false)
}

// step advances the engine by one tick.
func (e *Engine) step() {
	tick := e.tick.Add(1)

	if e.OnTick != nil {
		e.OnTick(tick)
	}

	if tick%TicksPerSecond == 0 && e.OnSecond != nil {
		e.OnSecond(tick)
	}

	if tick%TicksPerMinute == 0 && e.OnMinute != nil {
		e.OnMinute(tick)
	}
}

// Elapsed converts a tick count to simulated elapsed time at the engine's
// interval.
func (e *Engine) Elapsed(tick uint64) time.Duration {
	return time.Duration(tick) * e.Interval
}
