// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import "context"

// VectorStore is the interface a vector database backend implements.
type VectorStore interface {
	// Upsert adds or updates points in the store.
	Upsert(ctx context.Context, collection string, points []Point) error
	// Search returns the nearest points to the given vector.
	Search(ctx context.Context, collection string, vector []float32, limit int, scoreThreshold float32) ([]SearchResult, error)
	// CreateCollection creates a collection if it does not exist.
	CreateCollection(ctx context.Context, name string, vectorSize uint64) error
}

// Point is one stored vector with its payload.
type Point struct {
	ID      string                 `json:"id"`
	Vector  []float32              `json:"vector"`
	Payload map[string]interface{} `json:"payload"`
}

// SearchResult is one vector search hit.
type SearchResult struct {
	ID    string  `json:"id"`
	Score float32 `json:"score"`
	Point Point   `json:"point"`
}

// Embedder converts text to a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
