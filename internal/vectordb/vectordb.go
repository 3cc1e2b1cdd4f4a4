// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package vectordb implements the Retrieval Engine's index layer (C4.4.1):
// Qdrant-backed dense + sparse hybrid collections with mandatory tenant
// payload filtering. Grounded on internal/vectordb/vectordb.go (teacher's
// Qdrant gRPC wrapper), generalized from a single dense collection to the
// legacy-dense + hybrid dual-collection layout of §4.4.1, and on
// qdrant_service.py for the mandatory guild_id filter, any-of channel
// filter, and scroll-based delete-by-message-ids semantics.
package vectordb

import (
	"context"
	"errors"
	"fmt"

	qdrant "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"

	"github.com/northbound/cil/internal/apperror"
	"github.com/northbound/cil/internal/embeddings"
)

const (
	CollectionLegacy = "sessions"
	CollectionHybrid = "sessions_hybrid"

	VectorNameDense  = "dense"
	VectorNameSparse = "sparse"
)

// Point is a vector-index write. Payload MUST carry TenantID (P1); callers
// never omit it.
type Point struct {
	ID       string
	Dense    []float32
	Sparse   embeddings.SparseVector
	Payload  map[string]any
}

// Filter constrains search/scroll to a tenant and, optionally, a set of
// channels (any-of, per Open Question #2) and source types.
type Filter struct {
	TenantID    int64
	ChannelIDs  []int64
	SourceTypes []string
}

// ScoredPoint is one ranked hit.
type ScoredPoint struct {
	ID      string
	Score   float32
	Payload map[string]any
}

// VectorDB is the capability surface the retrieval engine depends on.
type VectorDB interface {
	EnsureCollections(ctx context.Context, dim int) error
	Upsert(ctx context.Context, collection string, point Point) error
	SearchDense(ctx context.Context, collection string, vector []float32, filter Filter, limit int) ([]ScoredPoint, error)
	SearchSparse(ctx context.Context, collection string, sparse embeddings.SparseVector, filter Filter, limit int) ([]ScoredPoint, error)
	Delete(ctx context.Context, collection string, ids []string) error
	ScrollByFilter(ctx context.Context, collection string, filter Filter, matchField string, matchValues []int64, batchSize int) ([]string, error)
	GetByID(ctx context.Context, collection string, id string) (ScoredPoint, bool, error)
}

// QdrantVectorDB wraps the Qdrant gRPC clients.
type QdrantVectorDB struct {
	collectionsSvc qdrant.CollectionsClient
	pointsSvc      qdrant.PointsClient
}

func NewQdrantVectorDB(conn *grpc.ClientConn) (*QdrantVectorDB, error) {
	if conn == nil {
		return nil, errors.New("gRPC connection is required")
	}
	return &QdrantVectorDB{
		collectionsSvc: qdrant.NewCollectionsClient(conn),
		pointsSvc:      qdrant.NewPointsClient(conn),
	}, nil
}

// EnsureCollections creates both the legacy dense collection and the
// hybrid named-vector collection, with payload indexes on
// {tenant_id, channel_id, source_type} for filter pushdown (§4.4.1).
func (q *QdrantVectorDB) EnsureCollections(ctx context.Context, dim int) error {
	existing, err := q.collectionsSvc.List(ctx, &qdrant.ListCollectionsRequest{})
	if err != nil {
		return apperror.Upstream("vectordb.EnsureCollections", err)
	}
	have := map[string]bool{}
	for _, c := range existing.Collections {
		have[c.Name] = true
	}

	if !have[CollectionLegacy] {
		_, err := q.collectionsSvc.Create(ctx, &qdrant.CreateCollection{
			CollectionName: CollectionLegacy,
			VectorsConfig: &qdrant.VectorsConfig{
				Config: &qdrant.VectorsConfig_Params{
					Params: &qdrant.VectorParams{Size: uint64(dim), Distance: qdrant.Distance_Cosine},
				},
			},
		})
		if err != nil {
			return apperror.Upstream("vectordb.EnsureCollections", fmt.Errorf("create legacy: %w", err))
		}
	}

	if !have[CollectionHybrid] {
		_, err := q.collectionsSvc.Create(ctx, &qdrant.CreateCollection{
			CollectionName: CollectionHybrid,
			VectorsConfig: &qdrant.VectorsConfig{
				Config: &qdrant.VectorsConfig_ParamsMap{
					ParamsMap: &qdrant.VectorParamsMap{
						Map: map[string]*qdrant.VectorParams{
							VectorNameDense: {Size: uint64(dim), Distance: qdrant.Distance_Cosine},
						},
					},
				},
			},
			SparseVectorsConfig: &qdrant.SparseVectorConfig{
				Map: map[string]*qdrant.SparseVectorParams{
					VectorNameSparse: {},
				},
			},
		})
		if err != nil {
			return apperror.Upstream("vectordb.EnsureCollections", fmt.Errorf("create hybrid: %w", err))
		}
	}

	for _, coll := range []string{CollectionLegacy, CollectionHybrid} {
		for field, fieldType := range map[string]qdrant.FieldType{
			"tenant_id":   qdrant.FieldType_FieldTypeInteger,
			"channel_id":  qdrant.FieldType_FieldTypeInteger,
			"source_type": qdrant.FieldType_FieldTypeKeyword,
		} {
			_, _ = q.collectionsSvc.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
				CollectionName: coll,
				FieldName:      field,
				FieldType:      &fieldType,
			})
		}
	}

	return nil
}

func payloadToQdrant(payload map[string]any) map[string]*qdrant.Value {
	out := make(map[string]*qdrant.Value, len(payload))
	for k, v := range payload {
		switch val := v.(type) {
		case string:
			out[k] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: val}}
		case int64:
			out[k] = &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: val}}
		case int:
			out[k] = &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(val)}}
		case bool:
			out[k] = &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: val}}
		case []string:
			list := make([]*qdrant.Value, len(val))
			for i, s := range val {
				list[i] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: s}}
			}
			out[k] = &qdrant.Value{Kind: &qdrant.Value_ListValue{ListValue: &qdrant.ListValue{Values: list}}}
		case []int64:
			list := make([]*qdrant.Value, len(val))
			for i, n := range val {
				list[i] = &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: n}}
			}
			out[k] = &qdrant.Value{Kind: &qdrant.Value_ListValue{ListValue: &qdrant.ListValue{Values: list}}}
		}
	}
	return out
}

func qdrantToPayload(payload map[string]*qdrant.Value) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = qdrantValueToAny(v)
	}
	return out
}

// qdrantValueToAny converts a single Value by its populated oneof field,
// not by a zero-value sentinel check — a legitimate zero integer or empty
// string must not be misread as "unset" and fall through to bool (§4.4.1).
func qdrantValueToAny(v *qdrant.Value) any {
	switch val := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	case *qdrant.Value_ListValue:
		items := make([]any, 0, len(val.ListValue.Values))
		for _, item := range val.ListValue.Values {
			items = append(items, qdrantValueToAny(item))
		}
		return items
	default:
		return nil
	}
}

// buildFilter constructs the mandatory tenant_id match plus optional
// any-of channel_ids and source_type filters (P1/P2, Open Question #2).
// Channel and source-type constraints are OR'd internally via MatchAny,
// then AND'd against the mandatory tenant match.
func buildFilter(f Filter) (*qdrant.Filter, error) {
	if f.TenantID == 0 {
		return nil, apperror.Security("vectordb.buildFilter", errors.New("tenant_id is required on every search"))
	}

	must := []*qdrant.Condition{
		qdrant.NewMatchInt("tenant_id", f.TenantID),
	}

	if len(f.ChannelIDs) > 0 {
		must = append(must, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key: "channel_id",
					Match: &qdrant.Match{
						MatchValue: &qdrant.Match_Integers{Integers: &qdrant.RepeatedIntegers{Integers: f.ChannelIDs}},
					},
				},
			},
		})
	}
	if len(f.SourceTypes) > 0 {
		must = append(must, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key: "source_type",
					Match: &qdrant.Match{
						MatchValue: &qdrant.Match_Keywords{Keywords: &qdrant.RepeatedStrings{Strings: f.SourceTypes}},
					},
				},
			},
		})
	}

	return &qdrant.Filter{Must: must}, nil
}

func (q *QdrantVectorDB) Upsert(ctx context.Context, collection string, point Point) error {
	if point.Payload["tenant_id"] == nil {
		return apperror.Security("vectordb.Upsert", errors.New("payload.tenant_id is required"))
	}

	vectors := &qdrant.Vectors{}
	if collection == CollectionHybrid {
		namedVectors := map[string]*qdrant.Vector{
			VectorNameDense: {Data: point.Dense},
		}
		if len(point.Sparse.Indices) > 0 {
			namedVectors[VectorNameSparse] = &qdrant.Vector{
				Data:    point.Sparse.Values,
				Indices: &qdrant.SparseIndices{Data: point.Sparse.Indices},
			}
		}
		vectors.VectorsOptions = &qdrant.Vectors_Vectors{Vectors: &qdrant.NamedVectors{Vectors: namedVectors}}
	} else {
		vectors.VectorsOptions = &qdrant.Vectors_Vector{Vector: &qdrant.Vector{Data: point.Dense}}
	}

	p := &qdrant.PointStruct{
		Id:      &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: point.ID}},
		Vectors: vectors,
		Payload: payloadToQdrant(point.Payload),
	}

	_, err := q.pointsSvc.Upsert(ctx, &qdrant.UpsertPoints{CollectionName: collection, Points: []*qdrant.PointStruct{p}})
	if err != nil {
		return apperror.Upstream("vectordb.Upsert", err)
	}
	return nil
}

func (q *QdrantVectorDB) SearchDense(ctx context.Context, collection string, vector []float32, filter Filter, limit int) ([]ScoredPoint, error) {
	qf, err := buildFilter(filter)
	if err != nil {
		return nil, err
	}

	req := &qdrant.SearchPoints{
		CollectionName: collection,
		Vector:         vector,
		Filter:         qf,
		Limit:          uint64(limit),
		WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}},
	}
	if collection == CollectionHybrid {
		name := VectorNameDense
		req.VectorName = &name
	}

	result, err := q.pointsSvc.Search(ctx, req)
	if err != nil {
		return nil, apperror.Upstream("vectordb.SearchDense", err)
	}
	return toScoredPoints(result.Result), nil
}

func (q *QdrantVectorDB) SearchSparse(ctx context.Context, collection string, sparse embeddings.SparseVector, filter Filter, limit int) ([]ScoredPoint, error) {
	if len(sparse.Indices) == 0 {
		return nil, nil
	}
	qf, err := buildFilter(filter)
	if err != nil {
		return nil, err
	}

	name := VectorNameSparse
	req := &qdrant.SearchPoints{
		CollectionName: collection,
		SparseIndices:  &qdrant.SparseIndices{Data: sparse.Indices},
		Vector:         sparse.Values,
		VectorName:     &name,
		Filter:         qf,
		Limit:          uint64(limit),
		WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}},
	}

	result, err := q.pointsSvc.Search(ctx, req)
	if err != nil {
		return nil, apperror.Upstream("vectordb.SearchSparse", err)
	}
	return toScoredPoints(result.Result), nil
}

func toScoredPoints(results []*qdrant.ScoredPoint) []ScoredPoint {
	out := make([]ScoredPoint, 0, len(results))
	for _, r := range results {
		var id string
		if r.Id != nil {
			if u := r.Id.GetUuid(); u != "" {
				id = u
			} else {
				id = fmt.Sprintf("%d", r.Id.GetNum())
			}
		}
		out = append(out, ScoredPoint{ID: id, Score: r.Score, Payload: qdrantToPayload(r.Payload)})
	}
	return out
}

func (q *QdrantVectorDB) Delete(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: id}}
	}
	_, err := q.pointsSvc.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points:         &qdrant.PointsSelector{PointsSelectorOneOf: &qdrant.PointsSelector_Points{Points: &qdrant.PointsIdsList{Ids: pointIDs}}},
	})
	if err != nil {
		return apperror.Upstream("vectordb.Delete", err)
	}
	return nil
}

// ScrollByFilter pages through points matching filter plus an any-of match
// on matchField/matchValues (e.g. message_ids), batchSize at a time,
// grounded on qdrant_service.py's delete_sessions_containing_messages.
// ScrollByFilter pages through every point matching filter and returns the
// ids of those whose matchField payload value intersects matchValues — a
// scalar field matching any value, or a list field containing any value.
// Qdrant has no native "array contains any" filter, so this mirrors
// qdrant_service.py's delete_sessions_containing_messages: scroll with
// payload enabled, check containment client-side. When matchField is
// empty every scrolled id is returned (the plain listing case).
func (q *QdrantVectorDB) ScrollByFilter(ctx context.Context, collection string, filter Filter, matchField string, matchValues []int64, batchSize int) ([]string, error) {
	qf, err := buildFilter(filter)
	if err != nil {
		return nil, err
	}

	wanted := make(map[int64]bool, len(matchValues))
	for _, v := range matchValues {
		wanted[v] = true
	}

	var ids []string
	var offset *qdrant.PointId
	for {
		req := &qdrant.ScrollPoints{
			CollectionName: collection,
			Filter:         qf,
			Limit:          ptrUint32(uint32(batchSize)),
			Offset:         offset,
			WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: matchField != ""}},
		}
		resp, err := q.pointsSvc.Scroll(ctx, req)
		if err != nil {
			return nil, apperror.Upstream("vectordb.ScrollByFilter", err)
		}
		for _, p := range resp.Result {
			if p.Id == nil {
				continue
			}
			if matchField == "" || payloadContainsAny(qdrantToPayload(p.Payload), matchField, wanted) {
				ids = append(ids, p.Id.GetUuid())
			}
		}
		if resp.NextPageOffset == nil || len(resp.Result) < batchSize {
			break
		}
		offset = resp.NextPageOffset
	}
	return ids, nil
}

func payloadContainsAny(payload map[string]any, field string, wanted map[int64]bool) bool {
	switch v := payload[field].(type) {
	case int64:
		return wanted[v]
	case []any:
		for _, item := range v {
			if n, ok := item.(int64); ok && wanted[n] {
				return true
			}
		}
	}
	return false
}

func (q *QdrantVectorDB) GetByID(ctx context.Context, collection string, id string) (ScoredPoint, bool, error) {
	resp, err := q.pointsSvc.Get(ctx, &qdrant.GetPoints{
		CollectionName: collection,
		Ids:            []*qdrant.PointId{{PointIdOptions: &qdrant.PointId_Uuid{Uuid: id}}},
		WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return ScoredPoint{}, false, apperror.Upstream("vectordb.GetByID", err)
	}
	if len(resp.Result) == 0 {
		return ScoredPoint{}, false, nil
	}
	return ScoredPoint{ID: id, Payload: qdrantToPayload(resp.Result[0].Payload)}, true, nil
}

func ptrUint32(v uint32) *uint32 { return &v }

func errSecurityNoTenant() error {
	return apperror.Security("vectordb.Search", errors.New("tenant_id is required on every search"))
}
