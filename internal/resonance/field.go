package resonance

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
)

// Field is the anchor registry plus a growable pattern registry. Anchors are
// set exactly once via Initialize; patterns may be added any time after
// that. The field itself holds no simulated-time state.
type Field struct {
	anchors  map[string]*Anchor
	order    []string // anchor names in initialization order
	patterns map[string]*Pattern
}

// NewField returns an empty, uninitialized field.
func NewField() *Field {
	return &Field{
		anchors:  make(map[string]*Anchor),
		patterns: make(map[string]*Pattern),
	}
}

// Initialized reports whether the anchor batch has been admitted.
func (f *Field) Initialized() bool {
	return len(f.order) > 0
}

// Initialize admits the anchor batch. Every value in every triple must
// actually be prime; the whole batch is validated before any anchor is
// stored, so a failed call leaves the field empty. A second call fails with
// ErrAlreadyInitialized regardless of its argument.
//
// As a startup sanity signal the initial aggregate coherence of the batch
// is computed and logged, then discarded — it is not retained anywhere.
func (f *Field) Initialize(anchors []Anchor) error {
	if f.Initialized() {
		return ErrAlreadyInitialized
	}
	if len(anchors) == 0 {
		return fmt.Errorf("initialize: empty anchor batch")
	}

	// Validate the full batch before mutating anything.
	for _, a := range anchors {
		for _, p := range a.Primes {
			if !IsPrime(p) {
				return fmt.Errorf("anchor %q has non-prime value %d: %w", a.Name, p, ErrInvalidPrime)
			}
		}
	}

	for i := range anchors {
		a := anchors[i]
		f.anchors[a.Name] = &a
		f.order = append(f.order, a.Name)
	}

	slog.Info("resonance field initialized",
		"anchors", len(f.order),
		"coherence", fmt.Sprintf("%.4f", f.aggregateCoherence()),
	)
	return nil
}

// Anchor returns the named anchor, or ErrUnknownAnchor.
func (f *Field) Anchor(name string) (*Anchor, error) {
	a, ok := f.anchors[name]
	if !ok {
		return nil, fmt.Errorf("anchor %q: %w", name, ErrUnknownAnchor)
	}
	return a, nil
}

// Anchors returns all anchors in initialization order.
func (f *Field) Anchors() []*Anchor {
	out := make([]*Anchor, 0, len(f.order))
	for _, name := range f.order {
		out = append(out, f.anchors[name])
	}
	return out
}

// Patterns returns all stored patterns, sorted by name.
func (f *Field) Patterns() []*Pattern {
	out := make([]*Pattern, 0, len(f.patterns))
	for _, p := range f.patterns {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// PrimeInventory returns the distinct primes appearing across all anchors,
// ascending. This is the inventory the synchronization controller consumes
// at construction; the coupling ends there.
func (f *Field) PrimeInventory() []int {
	seen := make(map[int]bool)
	for _, a := range f.anchors {
		for _, p := range a.Primes {
			seen[p] = true
		}
	}
	primes := make([]int, 0, len(seen))
	for p := range seen {
		primes = append(primes, p)
	}
	sort.Ints(primes)
	return primes
}

// Resonance scores the similarity of two anchors in [0,1]:
//
//	WeightShared   · sharedPrimeCount/3
//	WeightEntropy  · exp(-|entropyA − entropyB| / EntropyDecay)
//	WeightDistance · exp(-centerDistance / DistanceDecay)
//
// The score is symmetric but is NOT a metric — no triangle inequality is
// guaranteed, and callers must not assume metric-space properties.
func Resonance(a, b *Anchor) float64 {
	shared := float64(sharedPrimeCount(a, b)) / 3.0
	entropyTerm := math.Exp(-math.Abs(a.Entropy-b.Entropy) / EntropyDecay)
	distanceTerm := math.Exp(-centerDistance(a, b) / DistanceDecay)

	return WeightShared*shared + WeightEntropy*entropyTerm + WeightDistance*distanceTerm
}

// Entanglement is Resonance looked up by name. It fails with
// ErrUnknownAnchor if either name is absent.
func (f *Field) Entanglement(nameA, nameB string) (float64, error) {
	a, err := f.Anchor(nameA)
	if err != nil {
		return 0, err
	}
	b, err := f.Anchor(nameB)
	if err != nil {
		return 0, err
	}
	return Resonance(a, b), nil
}

// CreatePattern stores a named pattern over the given anchors and computes
// its strength (mean pairwise resonance) once. A pattern that fails the
// connectivity predicate is still created and stored — the failure is a
// warning, not an error.
func (f *Field) CreatePattern(name string, anchorNames []string) (*Pattern, error) {
	if !f.Initialized() {
		return nil, fmt.Errorf("create pattern %q: %w", name, ErrNotInitialized)
	}

	members := make([]*Anchor, 0, len(anchorNames))
	for _, an := range anchorNames {
		a, err := f.Anchor(an)
		if err != nil {
			return nil, fmt.Errorf("create pattern %q: %w", name, err)
		}
		members = append(members, a)
	}

	p := &Pattern{
		Name:     name,
		Anchors:  members,
		Strength: meanPairwiseResonance(members),
	}
	f.patterns[name] = p

	if !f.IsConnected(p) {
		slog.Warn("pattern fails connectivity predicate",
			"pattern", name,
			"anchors", len(members),
			"strength", fmt.Sprintf("%.4f", p.Strength),
		)
	}

	return p, nil
}

// Pattern returns a stored pattern by name.
func (f *Field) Pattern(name string) (*Pattern, bool) {
	p, ok := f.patterns[name]
	return p, ok
}

// IsConnected reports whether every anchor in the pattern resonates above
// ConnectivityThreshold with at least one OTHER anchor of the same pattern.
//
// This is a weak per-node threshold check, not graph reachability: two
// disjoint pairs each clearing the threshold satisfy it even though the
// pattern is disconnected as a graph. That exact semantics is load-bearing
// for existing callers; upgrading it to true connectivity is a behavior
// change, not a bug fix.
func (f *Field) IsConnected(p *Pattern) bool {
	for i, a := range p.Anchors {
		linked := false
		for j, b := range p.Anchors {
			if i == j {
				continue
			}
			if Resonance(a, b) > ConnectivityThreshold {
				linked = true
				break
			}
		}
		if !linked {
			return false
		}
	}
	return true
}

// Measurement is an anchor's normalized coefficient vector over its three
// primes. Despite the quantum vocabulary this is a pure read — nothing
// collapses and no state changes.
type Measurement struct {
	Anchor       string     `json:"anchor"`
	Primes       [3]int     `json:"primes"`
	Coefficients [3]float64 `json:"coefficients"`
}

// Measure returns the named anchor's measurement.
func (f *Field) Measure(name string) (Measurement, error) {
	a, err := f.Anchor(name)
	if err != nil {
		return Measurement{}, err
	}
	return Measurement{
		Anchor:       a.Name,
		Primes:       a.Primes,
		Coefficients: a.Coefficients,
	}, nil
}

// aggregateCoherence is the mean pairwise resonance across the whole anchor
// batch. Computed once at initialization as a sanity signal and discarded.
func (f *Field) aggregateCoherence() float64 {
	return meanPairwiseResonance(f.Anchors())
}
