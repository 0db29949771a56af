package testutil

import (
	"context"
	"strings"

	"github.com/aidanlsb/moltrack/internal/chem"
)

// FakeChem is a deterministic stand-in for the chemistry engine. Structures
// are treated as plain strings: fingerprints are character bitsets,
// substructure search is substring containment, and stereo-insensitive
// hashing drops '@', '/' and '\' characters.
type FakeChem struct {
	Metric chem.Metric
}

var (
	_ chem.Engine              = FakeChem{}
	_ chem.SubstructureMatcher = FakeChem{}
)

// CanonicalHash implements chem.Engine.
func (FakeChem) CanonicalHash(_ context.Context, structure string, sensitivity chem.Sensitivity) (string, error) {
	s := strings.TrimSpace(structure)
	if sensitivity != chem.AllLayers {
		s = strings.NewReplacer("@", "", "/", "", `\`, "").Replace(s)
	}
	return s, nil
}

// Fingerprint implements chem.Engine.
func (FakeChem) Fingerprint(_ context.Context, structure string) (chem.Fingerprint, error) {
	fp := make(chem.Fingerprint, 32)
	for i := 0; i < len(structure); i++ {
		c := structure[i]
		fp[c/8] |= 1 << (c % 8)
	}
	return fp, nil
}

// Similarity implements chem.Engine.
func (f FakeChem) Similarity(a, b chem.Fingerprint) (float64, error) {
	return chem.Score(f.Metric, a, b)
}

// HasSubstructure implements chem.SubstructureMatcher.
func (FakeChem) HasSubstructure(_ context.Context, molecule, query string) (bool, error) {
	return strings.Contains(molecule, query), nil
}
