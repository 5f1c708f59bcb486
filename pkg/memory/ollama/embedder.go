// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

// Package ollama backs memory.Embedder with Ollama's embeddings API.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/mindsoc/chorus/pkg/errors"
)

// Embedder implements memory.Embedder.
type Embedder struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewEmbedder creates an embedder. An empty baseURL falls back to the local
// Ollama default.
func NewEmbedder(baseURL, model string) *Embedder {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &Embedder{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

type embeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingResponse struct {
	Embedding []float64 `json:"embedding"`
	Error     string    `json:"error"`
}

// Embed converts text into a vector. Failures carry CodeMemoryError and are
// recoverable: the indexer treats them as a skipped index write, never a
// failed turn.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embeddingRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, embedErr("marshal embedding request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, embedErr("build embedding request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, embedErr("ollama embeddings call", err)
	}
	defer resp.Body.Close()

	var decoded embeddingResponse
	if derr := json.NewDecoder(io.LimitReader(resp.Body, 16<<20)).Decode(&decoded); derr != nil && resp.StatusCode == http.StatusOK {
		return nil, embedErr("decode embedding response", derr)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, embedErr("ollama embeddings rejected the request", nil).
			WithContext("status", resp.StatusCode).
			WithContext("detail", decoded.Error)
	}
	if len(decoded.Embedding) == 0 {
		return nil, embedErr("empty embedding", nil).WithContext("model", e.model)
	}

	vec := make([]float32, len(decoded.Embedding))
	for i, v := range decoded.Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

func embedErr(msg string, cause error) *errors.ChorusError {
	return errors.New(errors.CodeMemoryError, msg, cause).
		WithContext("component", "embedder").
		WithRecoverable(true)
}
