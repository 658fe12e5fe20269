package resonance

// Pattern is a named, ordered subset of anchors with an aggregate strength
// computed once at creation. A pattern is a snapshot, not a live view:
// strength is never recomputed, even if more patterns are added to the
// field afterward.
type Pattern struct {
	Name     string    `json:"name"`
	Anchors  []*Anchor `json:"anchors"`
	Strength float64   `json:"strength"`
}

// AnchorNames returns the pattern's member names in order.
func (p *Pattern) AnchorNames() []string {
	names := make([]string, len(p.Anchors))
	for i, a := range p.Anchors {
		names[i] = a.Name
	}
	return names
}

// meanPairwiseResonance averages resonance over all distinct unordered
// anchor pairs. Fewer than two anchors leaves strength undefined — treated
// as 0.
func meanPairwiseResonance(anchors []*Anchor) float64 {
	if len(anchors) < 2 {
		return 0
	}

	sum := 0.0
	pairs := 0
	for i := 0; i < len(anchors); i++ {
		for j := i + 1; j < len(anchors); j++ {
			sum += Resonance(anchors[i], anchors[j])
			pairs++
		}
	}
	return sum / float64(pairs)
}
