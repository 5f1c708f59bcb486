// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

// Package stance owns the affective state vector carried across a
// conversation session. The vector is session-scoped with a defined
// lifecycle: created at session start, decayed and updated once per turn,
// discarded at session end. It is never a process-wide singleton; stages
// that need it receive an explicit snapshot.
package stance

// Well-known stance dimensions. The set is open: agents may report deltas
// on dimensions not listed here, which take the default bounds.
const (
	Valence      = "valence"
	Arousal      = "arousal"
	Strain       = "strain"
	Closeness    = "closeness"
	SocialRisk   = "social_risk"
	TimePressure = "time_pressure"
	Control      = "control"
	Attention    = "attention"
	Safety       = "safety"
)

// Vector maps stance dimension names to bounded values.
type Vector map[string]float64

// Clone returns an independent copy of the vector.
func (v Vector) Clone() Vector {
	out := make(Vector, len(v))
	for dim, val := range v {
		out[dim] = val
	}
	return out
}

// Get returns the value for dim, or zero if absent.
func (v Vector) Get(dim string) float64 {
	return v[dim]
}

// Bounds is the closed interval a dimension is clamped to.
type Bounds struct {
	Lo float64
	Hi float64
}

// Config holds per-dimension decay rates and bounds.
type Config struct {
	// DefaultDecay is the per-turn decay applied to dimensions without an
	// override, in (0, 1].
	DefaultDecay float64

	// Decay overrides DefaultDecay for specific dimensions; slow-decaying
	// dimensions (safety) hold their value across more turns than
	// fast-fading ones (arousal).
	Decay map[string]float64

	// Bounds declares the clamp interval per dimension. Dimensions not
	// listed use DefaultBounds.
	Bounds map[string]Bounds

	// DefaultBounds applies to dimensions without declared bounds.
	DefaultBounds Bounds
}

// DefaultConfig returns the standard dimension layout.
func DefaultConfig() Config {
	return Config{
		DefaultDecay: 0.9,
		Decay: map[string]float64{
			Arousal: 0.8,
			Safety:  0.98,
		},
		Bounds: map[string]Bounds{
			Valence:      {-1, 1},
			Arousal:      {0, 1},
			Strain:       {0, 1},
			Closeness:    {-1, 1},
			SocialRisk:   {0, 1},
			TimePressure: {0, 1},
			Control:      {-1, 1},
			Attention:    {0, 1},
			Safety:       {0, 1},
		},
		DefaultBounds: Bounds{-1, 1},
	}
}

func (c Config) decayFor(dim string) float64 {
	if d, ok := c.Decay[dim]; ok {
		return d
	}
	if c.DefaultDecay > 0 {
		return c.DefaultDecay
	}
	return 1
}

func (c Config) boundsFor(dim string) Bounds {
	if b, ok := c.Bounds[dim]; ok {
		return b
	}
	if c.DefaultBounds.Lo == 0 && c.DefaultBounds.Hi == 0 {
		return Bounds{-1, 1}
	}
	return c.DefaultBounds
}
