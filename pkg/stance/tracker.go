// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

package stance

import "sync"

// Tracker owns the stance vector for one conversation session. Only the turn
// controller mutates it, exactly once per turn between council aggregation
// and goal selection; everything else reads snapshots taken at turn start.
type Tracker struct {
	mu  sync.RWMutex
	cfg Config
	vec Vector
}

// NewTracker creates a tracker with all declared dimensions at zero.
func NewTracker(cfg Config) *Tracker {
	vec := make(Vector, len(cfg.Bounds))
	for dim := range cfg.Bounds {
		vec[dim] = 0
	}
	return &Tracker{cfg: cfg, vec: vec}
}

// Snapshot returns a copy of the current vector.
func (t *Tracker) Snapshot() Vector {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.vec.Clone()
}

// Apply decays every dimension once, folds in the delta, and clamps each
// dimension to its declared bounds. Returns the resulting snapshot.
// Dimensions that appear only in the delta are adopted with default bounds.
func (t *Tracker) Apply(delta map[string]float64) Vector {
	t.mu.Lock()
	defer t.mu.Unlock()

	next := make(Vector, len(t.vec))
	for dim, old := range t.vec {
		next[dim] = old * t.cfg.decayFor(dim)
	}
	for dim, d := range delta {
		next[dim] += d
	}
	for dim, val := range next {
		b := t.cfg.boundsFor(dim)
		if val < b.Lo {
			val = b.Lo
		}
		if val > b.Hi {
			val = b.Hi
		}
		next[dim] = val
	}

	t.vec = next
	return next.Clone()
}
