// Package chem is the boundary to the external chemistry engine that
// computes canonical structure hashes, fingerprints and similarity scores.
package chem

import (
	"context"
	"fmt"
	"math/bits"
	"strings"
)

// Sensitivity selects which structural layers take part in identity
// comparisons.
type Sensitivity string

const (
	AllLayers                 Sensitivity = "ALL_LAYERS"
	StereoInsensitiveLayers   Sensitivity = "STEREO_INSENSITIVE_LAYERS"
	TautomerInsensitiveLayers Sensitivity = "TAUTOMER_INSENSITIVE_LAYERS"
)

// ParseSensitivity is case-insensitive; empty means AllLayers.
func ParseSensitivity(s string) (Sensitivity, error) {
	switch v := Sensitivity(strings.ToUpper(strings.TrimSpace(s))); v {
	case "":
		return AllLayers, nil
	case AllLayers, StereoInsensitiveLayers, TautomerInsensitiveLayers:
		return v, nil
	}
	return "", fmt.Errorf("unknown sensitivity %q", s)
}

// Metric is a fingerprint similarity coefficient.
type Metric string

const (
	Tanimoto Metric = "tanimoto"
	Dice     Metric = "dice"
)

// ParseMetric is case-insensitive; empty means Tanimoto.
func ParseMetric(s string) (Metric, error) {
	switch m := Metric(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return Tanimoto, nil
	case Tanimoto, Dice:
		return m, nil
	}
	return "", fmt.Errorf("unknown similarity metric %q", s)
}

// Fingerprint is an opaque bit vector produced by the engine.
type Fingerprint []byte

// Engine is the consumed chemistry capability.
type Engine interface {
	CanonicalHash(ctx context.Context, structure string, sensitivity Sensitivity) (string, error)
	Fingerprint(ctx context.Context, structure string) (Fingerprint, error)
	Similarity(a, b Fingerprint) (float64, error)
}

// SubstructureMatcher is implemented by engines that support substructure
// search.
type SubstructureMatcher interface {
	HasSubstructure(ctx context.Context, molecule, query string) (bool, error)
}

// Score computes the metric over two fingerprints of equal length.
func Score(metric Metric, a, b Fingerprint) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("fingerprint length mismatch: %d vs %d", len(a), len(b))
	}
	var both, onlyA, onlyB int
	for i := range a {
		both += bits.OnesCount8(a[i] & b[i])
		onlyA += bits.OnesCount8(a[i] &^ b[i])
		onlyB += bits.OnesCount8(b[i] &^ a[i])
	}
	switch metric {
	case Dice:
		denom := 2*both + onlyA + onlyB
		if denom == 0 {
			return 1, nil
		}
		return float64(2*both) / float64(denom), nil
	default:
		denom := both + onlyA + onlyB
		if denom == 0 {
			return 1, nil
		}
		return float64(both) / float64(denom), nil
	}
}
