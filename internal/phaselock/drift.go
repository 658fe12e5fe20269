package phaselock

import "time"

// Drift utilities. Stateless helpers for deciding how often the external
// resync needs to run; the DriftRegression estimator carries a sample
// window but no controller state.

// SyncAccuracyTarget is the absolute time accuracy the resync schedule
// aims to hold.
const SyncAccuracyTarget = time.Millisecond

// OptimalSyncInterval returns how often to resync against the external
// reference to hold SyncAccuracyTarget under linear drift extrapolation,
// with a 50% safety margin. Higher drift means a shorter interval.
//
// Non-positive drift would extrapolate to "never"; an hour is returned as
// the schedule ceiling instead.
func OptimalSyncInterval(driftPPM float64) time.Duration {
	if driftPPM <= 0 {
		return time.Hour
	}

	// Time to accumulate 1000 µs of error at driftPPM µs/s, halved.
	seconds := 0.5 * (1000.0 / (driftPPM / 1e6 * 1e6))
	return time.Duration(seconds * float64(time.Second))
}

// EstimateDrift estimates clock drift in ppm as the mean of consecutive
// first differences of the offset samples (seconds), scaled by 1e6. Fewer
// than two samples yields 0.
func EstimateDrift(samples []float64) float64 {
	if len(samples) < 2 {
		return 0
	}

	sum := 0.0
	for i := 1; i < len(samples); i++ {
		sum += samples[i] - samples[i-1]
	}
	return sum / float64(len(samples)-1) * 1e6
}

// DriftRegressionWindow is the sample window of the regression estimator.
const DriftRegressionWindow = 64

// DriftRegressionAlpha smooths the regression slope with an EMA so a single
// noisy observation cannot swing the schedule.
const DriftRegressionAlpha = 0.02

// DriftRegression estimates drift from (timestamp, offset) observations via
// least-squares over a sliding window, with EMA smoothing on the slope. It
// tolerates jitter far better than first differences and is what the
// sentinel feeds its schedule from once enough samples accumulate.
type DriftRegression struct {
	times   []float64
	offsets []float64
	index   int
	count   int
	slope   float64
	primed  bool
}

// NewDriftRegression returns an estimator with an empty window.
func NewDriftRegression() *DriftRegression {
	return &DriftRegression{
		times:   make([]float64, DriftRegressionWindow),
		offsets: make([]float64, DriftRegressionWindow),
	}
}

// Observe records one (timestamp seconds, offset seconds) sample.
func (d *DriftRegression) Observe(t, offset float64) {
	d.times[d.index] = t
	d.offsets[d.index] = offset
	d.index = (d.index + 1) % len(d.times)
	if d.count < len(d.times) {
		d.count++
	}

	if d.count < 2 {
		return
	}

	raw, ok := d.regress()
	if !ok {
		return
	}
	if !d.primed {
		d.slope = raw
		d.primed = true
		return
	}
	d.slope += DriftRegressionAlpha * (raw - d.slope)
}

// DriftPPM returns the smoothed slope scaled to ppm. Zero until at least
// two samples have been observed.
func (d *DriftRegression) DriftPPM() float64 {
	return d.slope * 1e6
}

// SampleCount returns how many samples currently fill the window.
func (d *DriftRegression) SampleCount() int {
	return d.count
}

// regress computes the least-squares slope of offset against timestamp over
// the filled window. Returns false when the timestamps are degenerate.
func (d *DriftRegression) regress() (float64, bool) {
	n := float64(d.count)

	var sumX, sumY, sumXY, sumXX float64
	for i := 0; i < d.count; i++ {
		x := d.times[i]
		y := d.offsets[i]
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	denom := sumXX - sumX*sumX/n
	if denom == 0 {
		return 0, false
	}
	return (sumXY - sumX*sumY/n) / denom, true
}
