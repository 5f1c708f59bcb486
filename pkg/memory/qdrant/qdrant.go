// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

// Package qdrant backs memory.VectorStore with a Qdrant instance over gRPC.
package qdrant

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/mindsoc/chorus/pkg/errors"
	"github.com/mindsoc/chorus/pkg/memory"
)

// Store implements memory.VectorStore.
type Store struct {
	points      pb.PointsClient
	collections pb.CollectionsClient
}

// New connects to the Qdrant gRPC endpoint at addr.
func New(addr string) (*Store, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, storeErr("connect to qdrant", err)
	}
	return &Store{
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
	}, nil
}

func (s *Store) CreateCollection(ctx context.Context, name string, vectorSize uint64) error {
	_, err := s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     vectorSize,
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return storeErr("create collection", err).WithContext("collection", name)
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, collection string, points []memory.Point) error {
	qPoints := make([]*pb.PointStruct, len(points))
	for i, p := range points {
		payload := make(map[string]*pb.Value, len(p.Payload))
		for k, v := range p.Payload {
			switch val := v.(type) {
			case string:
				payload[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: val}}
			case int:
				payload[k] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(val)}}
			case int64:
				payload[k] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: val}}
			case float64:
				payload[k] = &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: val}}
			case bool:
				payload[k] = &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: val}}
			}
		}
		qPoints[i] = &pb.PointStruct{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: p.ID}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: p.Vector}}},
			Payload: payload,
		}
	}

	if _, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: collection,
		Points:         qPoints,
	}); err != nil {
		return storeErr("upsert points", err).WithContext("collection", collection)
	}
	return nil
}

func (s *Store) Search(ctx context.Context, collection string, vector []float32, limit int, scoreThreshold float32) ([]memory.SearchResult, error) {
	req := &pb.SearchPoints{
		CollectionName: collection,
		Vector:         vector,
		Limit:          uint64(limit),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}
	if scoreThreshold > 0 {
		req.ScoreThreshold = &scoreThreshold
	}
	resp, err := s.points.Search(ctx, req)
	if err != nil {
		return nil, storeErr("search points", err).WithContext("collection", collection)
	}

	results := make([]memory.SearchResult, len(resp.Result))
	for i, r := range resp.Result {
		payload := make(map[string]interface{}, len(r.Payload))
		for k, v := range r.Payload {
			switch kind := v.GetKind().(type) {
			case *pb.Value_StringValue:
				payload[k] = kind.StringValue
			case *pb.Value_IntegerValue:
				payload[k] = kind.IntegerValue
			case *pb.Value_DoubleValue:
				payload[k] = kind.DoubleValue
			case *pb.Value_BoolValue:
				payload[k] = kind.BoolValue
			}
		}

		id := r.Id.GetUuid()
		if id == "" {
			id = fmt.Sprintf("%d", r.Id.GetNum())
		}
		results[i] = memory.SearchResult{
			ID:    id,
			Score: r.Score,
			Point: memory.Point{ID: id, Payload: payload},
		}
	}
	return results, nil
}

func storeErr(msg string, cause error) *errors.ChorusError {
	return errors.New(errors.CodeMemoryError, msg, cause).
		WithContext("component", "qdrant").
		WithRecoverable(true)
}
