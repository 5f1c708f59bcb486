// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mindsoc/chorus/pkg/errors"
)

func TestEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "test-embed" || req.Prompt != "hello" {
			t.Errorf("request = %+v", req)
		}
		json.NewEncoder(w).Encode(embeddingResponse{Embedding: []float64{0.25, -1.5}})
	}))
	defer srv.Close()

	e := NewEmbedder(srv.URL, "test-embed")
	vec, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 2 || vec[0] != 0.25 || vec[1] != -1.5 {
		t.Errorf("vec = %v", vec)
	}
}

func TestEmbedFailuresCarryMemoryErrorCode(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "rejected request",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
				json.NewEncoder(w).Encode(map[string]string{"error": "model not found"})
			},
		},
		{
			name: "empty embedding",
			handler: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(embeddingResponse{})
			},
		},
		{
			name: "bad body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("not json"))
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			e := NewEmbedder(srv.URL, "test-embed")
			_, err := e.Embed(context.Background(), "hello")
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.IsCode(err, errors.CodeMemoryError) {
				t.Errorf("err = %v, want code %s", err, errors.CodeMemoryError)
			}
			ce := errors.AsChorusError(err)
			if !ce.Recoverable {
				t.Error("embedding failures must be recoverable")
			}
		})
	}
}
