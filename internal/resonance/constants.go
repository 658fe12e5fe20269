// Package resonance models the anchor lattice: named entities identified by
// small-prime triples, with pairwise similarity ("resonance") and named
// anchor subsets ("patterns") derived from them. Pure data plus derived
// metrics — nothing in this package depends on simulated time.
package resonance

// Resonance metric weights. The three terms measure agreement along
// independent axes and are blended into a single [0,1] score.
const (
	// WeightShared weights the fraction of primes the two triples share.
	WeightShared = 0.5

	// WeightEntropy weights closeness of the anchors' entropy values.
	WeightEntropy = 0.3

	// WeightDistance weights closeness of the anchors' lattice centers.
	WeightDistance = 0.2
)

// Decay scales for the exponential closeness terms. Larger values make the
// corresponding term more forgiving of disagreement.
const (
	// EntropyDecay is the e-folding scale for entropy difference.
	EntropyDecay = 10.0

	// DistanceDecay is the e-folding scale for euclidean center distance.
	DistanceDecay = 50.0
)

// ConnectivityThreshold is the minimum resonance an anchor must reach with
// at least one other anchor of the same pattern for the pattern to count as
// connected. This is a per-node check, not graph reachability — see
// Field.IsConnected.
const ConnectivityThreshold = 0.1

// CenterModulus folds the prime product into the second center coordinate.
const CenterModulus = 100
