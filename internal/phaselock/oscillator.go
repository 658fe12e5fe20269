// Package phaselock owns the synchronization controller: a family of
// per-prime oscillators phase-locked to a reference oscillator and tracked
// against an external time source. Everything here is a single-threaded
// time-domain simulation — no transport, no goroutines, no internal locks.
// Callers that mix HTTP readers with a running tick loop must add their own
// read/write lock around the controller (the engine wiring does).
package phaselock

import "math"

// Oscillator is a simulated periodic signal source keyed by a small prime.
//
// Two notions of "phase" coexist and must not be conflated:
//
//   - The stored Phase field below. The control loop never touches it — it
//     is zeroed by an external sync event and otherwise constant. Coherence
//     reporting reads this field.
//   - The computed PhaseAt(t), which advances with simulated time. The
//     control loop's phase detector reads this.
//
// The split looks unintentional (reporting sees static offsets while
// control sees the live oscillation) but unifying the two would change
// observable behavior, so both paths are kept as-is. Open design question —
// see also Controller.PhaseCoherence.
type Oscillator struct {
	Prime     int     `json:"prime"`
	Frequency float64 `json:"frequency"` // Hz; drifts via the loop integrator
	Phase     float64 `json:"phase"`     // radians; reset only by external sync
	Amplitude float64 `json:"amplitude"`
}

// NewOscillator returns an oscillator at the given base frequency with unit
// amplitude and zero phase offset.
func NewOscillator(prime int, frequency float64) *Oscillator {
	return &Oscillator{
		Prime:     prime,
		Frequency: frequency,
		Amplitude: 1.0,
	}
}

// Value is the instantaneous signal value at simulated time t:
// amplitude · sin(2π·f·t + phase).
func (o *Oscillator) Value(t float64) float64 {
	return o.Amplitude * math.Sin(2*math.Pi*o.Frequency*t+o.Phase)
}

// PhaseAt is the instantaneous phase at simulated time t, wrapped to
// [0, 2π): (2π·f·t + phase) mod 2π.
func (o *Oscillator) PhaseAt(t float64) float64 {
	return math.Mod(2*math.Pi*o.Frequency*t+o.Phase, 2*math.Pi)
}

// wrapPhase folds a phase difference into [-π, π].
func wrapPhase(delta float64) float64 {
	for delta > math.Pi {
		delta -= 2 * math.Pi
	}
	for delta < -math.Pi {
		delta += 2 * math.Pi
	}
	return delta
}
