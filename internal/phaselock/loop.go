package phaselock

import (
	"fmt"
	"math"
	"sort"
)

// Loop parameter defaults.
const (
	// DefaultDetectorGain scales the raw phase error.
	DefaultDetectorGain = 1.0

	// DefaultBandwidth is the loop-filter bandwidth in Hz.
	DefaultBandwidth = 0.1
)

// DefaultOscillatorGain converts filtered phase error (radians) into a
// frequency correction (Hz). 2π maps one radian of filtered error to one
// cycle per second.
var DefaultOscillatorGain = 2 * math.Pi

// Loop is one phase-locked loop: a reference oscillator plus the set of
// controlled oscillators slaved to it, keyed by prime. The reference prime
// never appears among the controlled set.
type Loop struct {
	Name       string
	Reference  *Oscillator
	Controlled map[int]*Oscillator

	// Tunables. Zero values are replaced with the defaults above at
	// construction; tests may override them directly afterward.
	DetectorGain   float64
	Bandwidth      float64 // Hz
	OscillatorGain float64

	// ClampFrequency bounds integrator output per step when non-zero
	// (maximum absolute frequency change in Hz per tick). The integrator
	// runs unbounded by default — anti-windup is strictly opt-in, and
	// compatibility tests rely on the unbounded default.
	ClampFrequency float64
}

// NewLoop builds a loop around the given reference oscillator with default
// tunables and an empty controlled set.
func NewLoop(name string, ref *Oscillator) *Loop {
	return &Loop{
		Name:           name,
		Reference:      ref,
		Controlled:     make(map[int]*Oscillator),
		DetectorGain:   DefaultDetectorGain,
		Bandwidth:      DefaultBandwidth,
		OscillatorGain: DefaultOscillatorGain,
	}
}

// AddControlled admits an oscillator to the controlled set. Admitting the
// reference prime to its own loop is refused.
func (l *Loop) AddControlled(o *Oscillator) error {
	if o.Prime == l.Reference.Prime {
		return fmt.Errorf("loop %q: prime %d is the reference and cannot be controlled", l.Name, o.Prime)
	}
	l.Controlled[o.Prime] = o
	return nil
}

// Step advances the control algorithm by dt simulated seconds at
// synchronized time t. For each controlled oscillator:
//
//  1. phase detector:  error = wrap(ref.PhaseAt(t) − ctrl.PhaseAt(t)) · detectorGain
//  2. one-pole low-pass: filtered = error · α/(1+α), α = 2π·bandwidth·dt
//  3. integrator:      ctrl.Frequency += filtered · oscillatorGain
//
// Only Frequency moves; the stored Phase field is untouched. The integrator
// has no anti-windup unless ClampFrequency is set.
func (l *Loop) Step(t, dt float64) {
	alpha := 2 * math.Pi * l.Bandwidth * dt
	gain := alpha / (1 + alpha)

	refPhase := l.Reference.PhaseAt(t)

	for _, osc := range l.Controlled {
		err := wrapPhase(refPhase-osc.PhaseAt(t)) * l.DetectorGain
		filtered := err * gain
		step := filtered * l.OscillatorGain

		if l.ClampFrequency > 0 {
			if step > l.ClampFrequency {
				step = l.ClampFrequency
			} else if step < -l.ClampFrequency {
				step = -l.ClampFrequency
			}
		}

		osc.Frequency += step
	}
}

// Oscillators returns the reference followed by the controlled oscillators
// in ascending prime order.
func (l *Loop) Oscillators() []*Oscillator {
	out := []*Oscillator{l.Reference}
	primes := make([]int, 0, len(l.Controlled))
	for p := range l.Controlled {
		primes = append(primes, p)
	}
	sort.Ints(primes)
	for _, p := range primes {
		out = append(out, l.Controlled[p])
	}
	return out
}

// Oscillator looks up an oscillator (reference included) by prime.
func (l *Loop) Oscillator(prime int) (*Oscillator, bool) {
	if prime == l.Reference.Prime {
		return l.Reference, true
	}
	o, ok := l.Controlled[prime]
	return o, ok
}
