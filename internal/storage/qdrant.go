package storage

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/qdrant/go-client/qdrant"
)

// upsertBatchSize is the number of points sent per Upsert call.
const upsertBatchSize = 100

// QdrantDialer opens QdrantStorage sessions.
type QdrantDialer struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool
}

// Open implements Opener.
func (d QdrantDialer) Open(ctx context.Context) (VectorStore, error) {
	return NewQdrantStorage(ctx, d)
}

// QdrantStorage wraps the Qdrant client with connection management and health checks.
type QdrantStorage struct {
	client *qdrant.Client
	host   string
	port   int
}

// NewQdrantStorage creates a new Qdrant client with health validation.
// It performs health check with retry and fails fast if Qdrant is unreachable.
func NewQdrantStorage(ctx context.Context, d QdrantDialer) (*QdrantStorage, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   d.Host,
		Port:   d.Port,
		APIKey: d.APIKey,
		UseTLS: d.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	storage := &QdrantStorage{
		client: client,
		host:   d.Host,
		port:   d.Port,
	}

	if err := storage.healthCheckWithRetry(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrQdrantUnreachable, err)
	}

	return storage, nil
}

func newBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return b
}

// healthCheckWithRetry performs health check with exponential backoff.
// Initial interval 500ms, max interval 10s, max elapsed 30s.
func (s *QdrantStorage) healthCheckWithRetry(ctx context.Context) error {
	return backoff.Retry(func() error {
		return s.Health(ctx)
	}, backoff.WithContext(newBackoff(), ctx))
}

// Health performs a single health check against Qdrant.
func (s *QdrantStorage) Health(ctx context.Context) error {
	result, err := s.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}

	return nil
}

// CollectionExists reports whether the index collection exists.
func (s *QdrantStorage) CollectionExists(ctx context.Context, name string) (bool, error) {
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return false, fmt.Errorf("failed to check collection %s: %w", name, err)
	}
	return exists, nil
}

// CreateCollection creates a cosine-distance collection for vectors of the
// given dimension, with payload indexes on the filterable fields.
func (s *QdrantStorage) CreateCollection(ctx context.Context, name string, dimension int) error {
	if err := ValidateIndexName(name); err != nil {
		return err
	}
	if dimension <= 0 {
		return fmt.Errorf("%w: dimension %d", ErrDimensionMismatch, dimension)
	}

	err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", name, err)
	}

	if err := s.createPayloadIndexes(ctx, name); err != nil {
		return fmt.Errorf("failed to create payload indexes: %w", err)
	}
	return nil
}

// createPayloadIndexes creates keyword indexes for the filterable fields.
func (s *QdrantStorage) createPayloadIndexes(ctx context.Context, name string) error {
	fields := []string{
		"doc_path",  // Filter nodes by source document
		"parent_id", // Lookup siblings under a hierarchical parent
	}

	for _, field := range fields {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: name,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("failed to create index for field %s: %w", field, err)
		}
	}

	return nil
}

// DropCollection deletes the collection if it exists.
func (s *QdrantStorage) DropCollection(ctx context.Context, name string) error {
	exists, err := s.CollectionExists(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	if err := s.client.DeleteCollection(ctx, name); err != nil {
		return fmt.Errorf("failed to delete collection %s: %w", name, err)
	}
	return nil
}

// ListCollections returns all collection names, sorted.
func (s *QdrantStorage) ListCollections(ctx context.Context) ([]string, error) {
	names, err := s.client.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// Close closes the Qdrant client connection.
func (s *QdrantStorage) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// upsertWithRetry performs upsert operation with exponential backoff retry.
func (s *QdrantStorage) upsertWithRetry(ctx context.Context, name string, points []*qdrant.PointStruct) error {
	operation := func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: name,
			Wait:           qdrant.PtrOf(true),
			Points:         points,
		})
		return err
	}

	return backoff.Retry(operation, backoff.WithContext(newBackoff(), ctx))
}

// UpsertPoints stores points in batches of 100. All vectors must share one
// dimension.
func (s *QdrantStorage) UpsertPoints(ctx context.Context, name string, points []*Point) error {
	if len(points) == 0 {
		return nil
	}

	dim := len(points[0].Vector)
	for i, p := range points {
		if len(p.Vector) != dim || dim == 0 {
			return fmt.Errorf("%w: point %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(p.Vector), dim)
		}
	}

	for i := 0; i < len(points); i += upsertBatchSize {
		end := min(i+upsertBatchSize, len(points))

		batch := points[i:end]
		structs := make([]*qdrant.PointStruct, len(batch))
		for j, p := range batch {
			structs[j] = &qdrant.PointStruct{
				Id:      qdrant.NewIDUUID(p.ID),
				Vectors: qdrant.NewVectors(p.Vector...),
				Payload: qdrant.NewValueMap(pointPayload(p)),
			}
		}

		if err := s.upsertWithRetry(ctx, name, structs); err != nil {
			return fmt.Errorf("failed to upsert batch %d-%d: %w", i, end, err)
		}
	}

	return nil
}

func pointPayload(p *Point) map[string]any {
	meta := make(map[string]any, len(p.Metadata))
	for k, v := range p.Metadata {
		meta[k] = v
	}
	return map[string]any{
		"text":      p.Text,
		"doc_path":  p.DocPath,
		"parent_id": p.ParentID,
		"position":  p.Position,
		"metadata":  meta,
	}
}

// Search performs vector similarity search in the index collection.
// Returns up to limit points ordered by score descending.
func (s *QdrantStorage) Search(ctx context.Context, name string, vector []float32, limit int) ([]*ScoredPoint, error) {
	exists, err := s.CollectionExists(ctx, name)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, name)
	}

	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: name,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(false), // Don't need vectors in response
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", name, err)
	}

	hits := make([]*ScoredPoint, 0, len(results))
	for _, result := range results {
		payload := result.Payload

		meta := make(map[string]string)
		if st := payload["metadata"].GetStructValue(); st != nil {
			for k, v := range st.GetFields() {
				meta[k] = v.GetStringValue()
			}
		}

		hits = append(hits, &ScoredPoint{
			Point: Point{
				ID:       result.Id.GetUuid(),
				Text:     payload["text"].GetStringValue(),
				DocPath:  payload["doc_path"].GetStringValue(),
				ParentID: payload["parent_id"].GetStringValue(),
				Position: int(payload["position"].GetIntegerValue()),
				Metadata: meta,
			},
			Score: float64(result.Score), // Qdrant returns float32, convert to float64
		})
	}

	return hits, nil
}

// Count returns the exact number of points in the collection.
func (s *QdrantStorage) Count(ctx context.Context, name string) (uint64, error) {
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: name,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", name, err)
	}
	return n, nil
}
