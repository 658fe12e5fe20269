// Package clock provides the external reference time source the
// synchronization engine tracks. It stands in for whatever clock-sync
// transport (an NTP client, a PTP card) the surrounding system uses: the
// engine only ever receives a timestamp from it and never blocks on it.
//
// The reference is wall-clock driven, optionally skewed by a configured
// drift rate and perturbed by smooth simplex jitter so the control loop and
// the sentinel have something realistic to chase.
package clock

import (
	"time"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// Reference is a simulated external reference clock.
type Reference struct {
	start    time.Time
	driftPPM float64

	noise        opensimplex.Noise
	jitterMicros float64
}

// NewReference creates a reference clock starting at zero. driftPPM skews
// the clock rate (positive runs fast); jitterMicros is the peak smooth
// jitter amplitude in microseconds. Zero for both gives a clean clock.
func NewReference(seed int64, driftPPM, jitterMicros float64) *Reference {
	return &Reference{
		start:        time.Now(),
		driftPPM:     driftPPM,
		noise:        opensimplex.NewNormalized(seed),
		jitterMicros: jitterMicros,
	}
}

// Now returns the reference time in seconds since the clock started.
// Wall-clock milliseconds are read and converted to microseconds before the
// drift skew and jitter are applied, matching how the surrounding system
// reports timestamps.
func (r *Reference) Now() float64 {
	millis := time.Since(r.start).Milliseconds()
	micros := float64(millis) * 1000

	// Linear skew: driftPPM microseconds gained per second of true time.
	micros *= 1 + r.driftPPM*1e-6

	if r.jitterMicros > 0 {
		// Smooth coherent jitter, centered on zero.
		t := float64(millis) / 1000.0
		micros += (r.noise.Eval2(t*0.1, 0)*2 - 1) * r.jitterMicros
	}

	return micros / 1e6
}

// DriftPPM returns the configured skew rate.
func (r *Reference) DriftPPM() float64 {
	return r.driftPPM
}
