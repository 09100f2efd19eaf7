// Package semantic is the sole owner of all Qdrant operations: collection
// lifecycle, point upserts, and similarity search across the per-view
// collections.
package semantic

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// VectorStore talks to one Qdrant instance and serves every collection the
// engine maintains.
type VectorStore struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
}

// New creates a VectorStore connected to Qdrant at the given gRPC address.
func New(addr string) (*VectorStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	return &VectorStore{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
	}, nil
}

// Close closes the underlying gRPC connection.
func (v *VectorStore) Close() error {
	return v.conn.Close()
}

// EnsureCollection creates the collection if it doesn't exist.
func (v *VectorStore) EnsureCollection(ctx context.Context, collection string, dims int) error {
	exists, err := v.collectionExists(ctx, collection)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return v.createCollection(ctx, collection, dims)
}

// Reset drops and recreates the collection. Rebuild mode starts here so a
// rebuild never serves points from a previous generation.
func (v *VectorStore) Reset(ctx context.Context, collection string, dims int) error {
	exists, err := v.collectionExists(ctx, collection)
	if err != nil {
		return err
	}
	if exists {
		if _, err := v.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: collection}); err != nil {
			return fmt.Errorf("semantic: delete collection %s: %w", collection, err)
		}
	}
	return v.createCollection(ctx, collection, dims)
}

func (v *VectorStore) collectionExists(ctx context.Context, collection string) (bool, error) {
	list, err := v.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return false, fmt.Errorf("semantic: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == collection {
			return true, nil
		}
	}
	return false, nil
}

func (v *VectorStore) createCollection(ctx context.Context, collection string, dims int) error {
	_, err := v.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: create collection %s: %w", collection, err)
	}
	return nil
}

// Upsert stores records into the collection. The logical id rides along in
// the payload under "id"; the display text under "document".
func (v *VectorStore) Upsert(ctx context.Context, collection string, records []VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, len(records))
	for i, r := range records {
		payload := make(map[string]*pb.Value, len(r.Payload)+2)
		payload["id"] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: r.ID}}
		payload["document"] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: r.Document}}
		for k, val := range r.Payload {
			payload[k] = toValue(val)
		}

		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(collection, r.ID)},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: r.Embedding},
				},
			},
			Payload: payload,
		}
	}

	wait := true
	_, err := v.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("semantic: upsert %d points into %s: %w", len(records), collection, err)
	}
	return nil
}

// Query performs k-NN similarity search against the collection. Hits come
// back in ascending distance order.
func (v *VectorStore) Query(ctx context.Context, collection string, embedding []float32, limit int) ([]Hit, error) {
	resp, err := v.points.Search(ctx, &pb.SearchPoints{
		CollectionName: collection,
		Vector:         embedding,
		Limit:          uint64(limit),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("semantic: query %s: %w", collection, err)
	}

	hits := make([]Hit, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		hit := Hit{
			Score:    r.GetScore(),
			Distance: 1 - r.GetScore(),
			Meta:     make(map[string]string),
		}
		for k, val := range r.GetPayload() {
			switch k {
			case "id":
				hit.ID = val.GetStringValue()
			case "document":
				hit.Document = val.GetStringValue()
			case "doc_id":
				hit.DocID = val.GetStringValue()
			case "chunk_index":
				hit.ChunkIndex = int(val.GetIntegerValue())
			default:
				if s := val.GetStringValue(); s != "" {
					hit.Meta[k] = s
				}
			}
		}
		hits[i] = hit
	}
	return hits, nil
}

func toValue(val any) *pb.Value {
	switch tv := val.(type) {
	case string:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: tv}}
	case int:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(tv)}}
	case int64:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: tv}}
	case float64:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: tv}}
	case bool:
		return &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: tv}}
	default:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: fmt.Sprint(tv)}}
	}
}
