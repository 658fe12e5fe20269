package sentinel

import (
	"math"
	"time"

	"github.com/talgya/prime-lattice/internal/phaselock"
)

// Scheduler defaults.
const (
	// DefaultQualityFloor forces a resync when observed sync quality drops
	// below it, regardless of schedule.
	DefaultQualityFloor = 0.95

	// MinResyncInterval keeps a badly drifting clock from being resynced
	// on every poll.
	MinResyncInterval = 5 * time.Second

	// regressionWarmup is how many offset samples the regression estimator
	// needs before its slope is trusted over plain first differences.
	regressionWarmup = 8

	// offsetWindow bounds the first-difference sample history.
	offsetWindow = 32
)

// Decision is the outcome of one scheduling cycle.
type Decision struct {
	Resync       bool
	Reason       string
	DriftPPM     float64
	NextInterval time.Duration
}

// Scheduler accumulates offset observations and decides when the next
// external sync is due. It is pure bookkeeping — no I/O — so the decision
// logic is testable without a running lattice.
type Scheduler struct {
	QualityFloor float64
	PollInterval time.Duration

	regression *phaselock.DriftRegression
	offsets    []float64
	lastResync time.Time
}

// NewScheduler creates a scheduler for the given poll cadence.
func NewScheduler(pollInterval time.Duration) *Scheduler {
	return &Scheduler{
		QualityFloor: DefaultQualityFloor,
		PollInterval: pollInterval,
		regression:   phaselock.NewDriftRegression(),
		lastResync:   time.Now(),
	}
}

// Decide ingests one snapshot and returns whether to resync now.
func (s *Scheduler) Decide(snap *Snapshot) Decision {
	offsetSec := snap.Quality.OffsetUS / 1e6

	s.regression.Observe(snap.Quality.SyncTime, offsetSec)
	s.offsets = append(s.offsets, offsetSec)
	if len(s.offsets) > offsetWindow {
		s.offsets = s.offsets[1:]
	}

	drift := s.estimateDrift()
	interval := phaselock.OptimalSyncInterval(math.Abs(drift))
	if interval < MinResyncInterval {
		interval = MinResyncInterval
	}

	d := Decision{
		DriftPPM:     drift,
		NextInterval: interval,
	}

	switch {
	case snap.Quality.Quality < s.QualityFloor:
		d.Resync = true
		d.Reason = "quality below floor"
	case time.Since(s.lastResync) >= interval:
		d.Resync = true
		d.Reason = "sync interval elapsed"
	}

	return d
}

// MarkResync records that a resync was performed.
func (s *Scheduler) MarkResync() {
	s.lastResync = time.Now()
}

// estimateDrift prefers the regression slope once warmed up, falling back
// to mean first differences normalized by the poll cadence.
func (s *Scheduler) estimateDrift() float64 {
	if s.regression.SampleCount() >= regressionWarmup {
		return s.regression.DriftPPM()
	}

	raw := phaselock.EstimateDrift(s.offsets)
	if sec := s.PollInterval.Seconds(); sec > 0 {
		// EstimateDrift assumes unit-spaced samples; ours arrive once per
		// poll interval.
		return raw / sec
	}
	return raw
}
