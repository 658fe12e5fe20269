package phaselock

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
)

// MasterLoop is the name of the loop every controller starts with. The
// registry is a map so additional synchronization domains can be added
// without structural change, but current callers only ever drive "master".
const MasterLoop = "master"

// ReferencePrime keys the reference oscillator of the master loop.
const ReferencePrime = 2

// CanonicalFrequencies returns the canonical prime→frequency table for the
// eight smallest primes: each oscillates at its own prime value in Hz. The
// table is built fresh per call so a controller can be handed a modified
// copy without touching anyone else's.
func CanonicalFrequencies() map[int]float64 {
	return map[int]float64{
		2: 2, 3: 3, 5: 5, 7: 7, 11: 11, 13: 13, 17: 17, 19: 19,
	}
}

// Config carries the loop tunables applied to every loop the controller
// creates. Zero values fall back to the package defaults.
type Config struct {
	DetectorGain   float64
	Bandwidth      float64 // Hz
	OscillatorGain float64

	// ClampFrequency, when non-zero, bounds the per-tick frequency step.
	// The zero value leaves the integrator unbounded.
	ClampFrequency float64
}

// Controller owns the loop registry, the simulated clock, and the offset
// from the external reference time. It is single-threaded: Tick
// and SyncWithExternal must be driven from one logical loop, and concurrent
// readers need an external lock.
type Controller struct {
	Loops map[string]*Loop

	// localTime is simulated seconds advanced by Tick.
	localTime float64

	// offset is external reference time minus local simulated time,
	// captured at the most recent external sync event. Between events the
	// local clock is assumed to advance linearly.
	offset float64

	// lastSyncLocal is the local simulated time of the last sync event.
	lastSyncLocal float64
}

// NewController builds the master loop from a prime inventory: prime 2 at
// its canonical frequency is the reference, and every other distinct
// inventory prime with a table entry becomes a controlled oscillator at its
// canonical frequency.
//
// Known limitation: inventory primes outside the frequency table are
// silently skipped — no controlled oscillator is created for them. A Warn
// log records each skip so operators can see the gap.
func NewController(primes []int, frequencies map[int]float64, cfg Config) *Controller {
	ref := NewOscillator(ReferencePrime, frequencies[ReferencePrime])
	master := NewLoop(MasterLoop, ref)
	applyConfig(master, cfg)

	for _, p := range primes {
		if p == ReferencePrime {
			continue
		}
		freq, ok := frequencies[p]
		if !ok {
			slog.Warn("prime outside canonical frequency table, skipping",
				"prime", p,
			)
			continue
		}
		if err := master.AddControlled(NewOscillator(p, freq)); err != nil {
			slog.Warn("oscillator rejected", "prime", p, "error", err)
		}
	}

	return &Controller{
		Loops: map[string]*Loop{MasterLoop: master},
	}
}

func applyConfig(l *Loop, cfg Config) {
	if cfg.DetectorGain != 0 {
		l.DetectorGain = cfg.DetectorGain
	}
	if cfg.Bandwidth != 0 {
		l.Bandwidth = cfg.Bandwidth
	}
	if cfg.OscillatorGain != 0 {
		l.OscillatorGain = cfg.OscillatorGain
	}
	l.ClampFrequency = cfg.ClampFrequency
}

// Master returns the master loop.
func (c *Controller) Master() *Loop {
	return c.Loops[MasterLoop]
}

// LocalTime returns the simulated clock in seconds.
func (c *Controller) LocalTime() float64 {
	return c.localTime
}

// Offset returns the external-minus-local offset captured at the last sync.
func (c *Controller) Offset() float64 {
	return c.offset
}

// SynchronizedTime is local simulated time corrected by the last captured
// offset.
func (c *Controller) SynchronizedTime() float64 {
	return c.localTime + c.offset
}

// TimeSinceSync is simulated seconds elapsed since the last external sync.
func (c *Controller) TimeSinceSync() float64 {
	return c.localTime - c.lastSyncLocal
}

// SyncWithExternal captures a fresh offset against the external reference
// time (seconds) and zeroes every oscillator's stored Phase field across
// all loops, reference included. Frequencies are NOT reset: integrator
// drift accumulated before the resync persists through it.
func (c *Controller) SyncWithExternal(referenceTime float64) {
	c.offset = referenceTime - c.localTime
	c.lastSyncLocal = c.localTime

	for _, loop := range c.Loops {
		for _, osc := range loop.Oscillators() {
			osc.Phase = 0
		}
	}

	slog.Info("external time sync",
		"offset", fmt.Sprintf("%+.6fs", c.offset),
		"local_time", fmt.Sprintf("%.3fs", c.localTime),
	)
}

// Tick advances the simulated clock by dt seconds and steps every loop's
// control algorithm at the resulting synchronized time.
func (c *Controller) Tick(dt float64) {
	c.localTime += dt
	t := c.SynchronizedTime()

	for _, loop := range c.Loops {
		loop.Step(t, dt)
	}
}

// PhaseCoherence is cos(|phaseA − phaseB|) over the STORED phase fields of
// the master loop's oscillators — not PhaseAt(t). Because Tick only moves
// frequency and Phase is only zeroed on resync, this value is static
// between sync events: it measures phase offsets, not the live oscillation.
// (See the Oscillator doc for why the two phase notions are kept split.)
func (c *Controller) PhaseCoherence(primeA, primeB int) (float64, bool) {
	master := c.Master()
	a, okA := master.Oscillator(primeA)
	b, okB := master.Oscillator(primeB)
	if !okA || !okB {
		return 0, false
	}
	return math.Cos(math.Abs(a.Phase - b.Phase)), true
}

// SyncQuality is the mean of PhaseCoherence over all distinct unordered
// pairs of the master loop's primes.
//
// The stated contract is [0,1], but cosine of a phase difference spans
// [-1,1] and no clamping is applied — callers get the raw mathematical
// range. In practice phases are zeroed on every resync and never moved by
// the loop, so the value sits at 1.0 between resyncs.
func (c *Controller) SyncQuality() float64 {
	oscs := c.Master().Oscillators()
	if len(oscs) < 2 {
		return 1.0
	}

	sum := 0.0
	pairs := 0
	for i := 0; i < len(oscs); i++ {
		for j := i + 1; j < len(oscs); j++ {
			sum += math.Cos(math.Abs(oscs[i].Phase - oscs[j].Phase))
			pairs++
		}
	}
	return sum / float64(pairs)
}

// CoherenceMatrix returns the master loop's primes in ascending order and
// the full pairwise coherence matrix in that order. The diagonal is 1.0 by
// convention, not computed.
func (c *Controller) CoherenceMatrix() ([]int, [][]float64) {
	oscs := c.Master().Oscillators()
	primes := make([]int, len(oscs))
	for i, o := range oscs {
		primes[i] = o.Prime
	}

	matrix := make([][]float64, len(oscs))
	for i := range oscs {
		matrix[i] = make([]float64, len(oscs))
		for j := range oscs {
			if i == j {
				matrix[i][j] = 1.0
				continue
			}
			matrix[i][j] = math.Cos(math.Abs(oscs[i].Phase - oscs[j].Phase))
		}
	}
	return primes, matrix
}

// Report renders the controller state as a human-readable text block:
// synchronized time, quality, time since the last resync, per-oscillator
// frequencies, and the pairwise coherence matrix.
func (c *Controller) Report() string {
	var b strings.Builder

	fmt.Fprintf(&b, "═══ Prime Lattice Synchronization ═══\n")
	fmt.Fprintf(&b, "Synchronized time: %.6f s\n", c.SynchronizedTime())
	fmt.Fprintf(&b, "Sync quality:      %.1f%%\n", c.SyncQuality()*100)
	fmt.Fprintf(&b, "Since last sync:   %.3f s\n", c.TimeSinceSync())

	b.WriteString("\nOscillators:\n")
	for _, o := range c.Master().Oscillators() {
		role := "ctrl"
		if o.Prime == c.Master().Reference.Prime {
			role = "ref "
		}
		fmt.Fprintf(&b, "  [%s] prime %2d  %.6f Hz\n", role, o.Prime, o.Frequency)
	}

	primes, matrix := c.CoherenceMatrix()
	b.WriteString("\nCoherence matrix:\n      ")
	for _, p := range primes {
		fmt.Fprintf(&b, "%6d", p)
	}
	b.WriteByte('\n')
	for i, p := range primes {
		fmt.Fprintf(&b, "  %2d  ", p)
		for j := range primes {
			fmt.Fprintf(&b, "%6.3f", matrix[i][j])
		}
		b.WriteByte('\n')
	}

	return b.String()
}
