// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"log/slog"

	"github.com/mindsoc/chorus/pkg/errors"
)

// Indexer mirrors accepted candidates into a vector collection so later
// turns can recall them semantically. Indexing is best-effort: a vector
// backend outage never fails the turn that produced the candidate.
type Indexer struct {
	store      VectorStore
	embedder   Embedder
	collection string
	logger     *slog.Logger
}

// NewIndexer creates an indexer over the given backend and collection.
func NewIndexer(store VectorStore, embedder Embedder, collection string) *Indexer {
	return &Indexer{
		store:      store,
		embedder:   embedder,
		collection: collection,
		logger:     slog.Default(),
	}
}

// EnsureCollection creates the collection sized to the embedder's output.
// Called once at startup with a probe embedding.
func (ix *Indexer) EnsureCollection(ctx context.Context) error {
	probe, err := ix.embedder.Embed(ctx, "chorus collection probe")
	if err != nil {
		return errors.New(errors.CodeMemoryError, "probe embedder", err)
	}
	if err := ix.store.CreateCollection(ctx, ix.collection, uint64(len(probe))); err != nil {
		return errors.New(errors.CodeMemoryError, "create vector collection", err)
	}
	return nil
}

// Index embeds and upserts one candidate.
func (ix *Indexer) Index(ctx context.Context, c Candidate) error {
	vec, err := ix.embedder.Embed(ctx, c.Text)
	if err != nil {
		return errors.New(errors.CodeMemoryError, "embed candidate", err).
			WithContext("candidate_id", c.ID)
	}
	point := Point{
		ID:     c.ID,
		Vector: vec,
		Payload: map[string]interface{}{
			"session_id": c.SessionID,
			"turn_id":    c.TurnID,
			"agent":      c.Agent,
			"text":       c.Text,
			"importance": c.Importance,
		},
	}
	if err := ix.store.Upsert(ctx, ix.collection, []Point{point}); err != nil {
		return errors.New(errors.CodeMemoryError, "upsert candidate vector", err).
			WithContext("candidate_id", c.ID)
	}
	return nil
}

// Recall returns stored candidate texts semantically close to the query.
func (ix *Indexer) Recall(ctx context.Context, query string, limit int) ([]Candidate, error) {
	vec, err := ix.embedder.Embed(ctx, query)
	if err != nil {
		return nil, errors.New(errors.CodeMemoryError, "embed recall query", err)
	}
	hits, err := ix.store.Search(ctx, ix.collection, vec, limit, 0)
	if err != nil {
		return nil, errors.New(errors.CodeMemoryError, "vector search", err)
	}
	out := make([]Candidate, 0, len(hits))
	for _, hit := range hits {
		c := Candidate{ID: hit.ID}
		if s, ok := hit.Point.Payload["session_id"].(string); ok {
			c.SessionID = s
		}
		if s, ok := hit.Point.Payload["turn_id"].(string); ok {
			c.TurnID = s
		}
		if s, ok := hit.Point.Payload["agent"].(string); ok {
			c.Agent = s
		}
		if s, ok := hit.Point.Payload["text"].(string); ok {
			c.Text = s
		}
		if f, ok := hit.Point.Payload["importance"].(float64); ok {
			c.Importance = f
		}
		out = append(out, c)
	}
	return out, nil
}
