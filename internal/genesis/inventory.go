// Package genesis assembles the network's initial anchor configuration.
// This is the bootstrap collaborator the resonance field and the
// synchronization controller are fed from — a fixed batch of named anchors
// with role labels and prime triples, stamped with a network ID and a
// content digest.
package genesis

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/talgya/prime-lattice/internal/resonance"
)

// Inventory is the bootstrap configuration: the anchor batch plus identity
// metadata for the lattice instance it seeds.
type Inventory struct {
	NetworkID string             `json:"network_id"`
	Digest    string             `json:"digest"`
	Anchors   []resonance.Anchor `json:"anchors"`
}

// BuildInventory returns the canonical anchor batch with a fresh network
// ID. The batch is fixed: anchors are created once at bootstrap and never
// mutated (the field enforces single initialization on its side).
func BuildInventory() Inventory {
	anchors := []resonance.Anchor{
		resonance.NewAnchor("Alpha", "origin", 2, 3, 5),
		resonance.NewAnchor("Beta", "carrier", 7, 11, 13),
		resonance.NewAnchor("Gamma", "bridge", 2, 7, 17),
		resonance.NewAnchor("Delta", "relay", 3, 11, 19),
		resonance.NewAnchor("Epsilon", "witness", 5, 13, 17),
		resonance.NewAnchor("Zeta", "deep-relay", 11, 17, 19),
	}

	return Inventory{
		NetworkID: uuid.NewString(),
		Digest:    DigestAnchors(anchors),
		Anchors:   anchors,
	}
}

// DigestAnchors computes a sha256 digest over the canonical rendering of an
// anchor batch. The digest tracks content only; it carries no signature
// semantics and is not meant to interoperate with any other format.
func DigestAnchors(anchors []resonance.Anchor) string {
	var b strings.Builder
	for _, a := range anchors {
		fmt.Fprintf(&b, "%s|%s|%d,%d,%d\n", a.Name, a.Role, a.Primes[0], a.Primes[1], a.Primes[2])
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
