package resonance

import "math"

// Anchor is a named lattice entity identified by exactly three small primes.
// All derived quantities (coefficients, center, entropy) are computed at
// construction and never change — anchors are created once, in a fixed
// batch, and are read-only afterward.
type Anchor struct {
	Name   string `json:"name"`
	Role   string `json:"role"`
	Primes [3]int `json:"primes"`

	// Coefficients is the normalized coefficient vector over the three
	// primes: equal weight 1/√3 each.
	Coefficients [3]float64 `json:"coefficients"`

	// Center is the anchor's 2-D lattice position:
	// (mean of primes, product of primes mod CenterModulus).
	Center [2]float64 `json:"center"`

	// Entropy is Σ ln(pᵢ) over the triple.
	Entropy float64 `json:"entropy"`
}

// NewAnchor builds an anchor and its derived quantities. Primality of the
// triple is not checked here — Field.Initialize validates the whole batch
// before any anchor is admitted.
func NewAnchor(name, role string, p1, p2, p3 int) Anchor {
	primes := [3]int{p1, p2, p3}

	coeff := 1.0 / math.Sqrt(3)

	sum := 0
	product := 1
	entropy := 0.0
	for _, p := range primes {
		sum += p
		product *= p
		entropy += math.Log(float64(p))
	}

	return Anchor{
		Name:         name,
		Role:         role,
		Primes:       primes,
		Coefficients: [3]float64{coeff, coeff, coeff},
		Center: [2]float64{
			float64(sum) / 3.0,
			float64(product % CenterModulus),
		},
		Entropy: entropy,
	}
}

// IsPrime reports whether n is prime, by trial division up to √n.
// The lattice only ever deals in small primes, so this is plenty.
func IsPrime(n int) bool {
	if n < 2 {
		return false
	}
	for d := 2; d*d <= n; d++ {
		if n%d == 0 {
			return false
		}
	}
	return true
}

// sharedPrimeCount counts primes present in both triples, with multiplicity,
// via nested comparison. A prime appearing twice on one side and once on the
// other contributes twice — the metric inherits this quirk deliberately.
func sharedPrimeCount(a, b *Anchor) int {
	shared := 0
	for _, p := range a.Primes {
		for _, q := range b.Primes {
			if p == q {
				shared++
			}
		}
	}
	return shared
}

// centerDistance is the euclidean distance between two anchor centers.
func centerDistance(a, b *Anchor) float64 {
	dx := a.Center[0] - b.Center[0]
	dy := a.Center[1] - b.Center[1]
	return math.Sqrt(dx*dx + dy*dy)
}
