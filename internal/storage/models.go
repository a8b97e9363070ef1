package storage

import (
	"context"
	"fmt"
	"regexp"
	"time"
)

// Point is one embedded node as stored in a vector collection.
type Point struct {
	ID       string            // UUID
	Vector   []float32         // embedding of Text
	Text     string            // node text
	DocPath  string            // source document
	ParentID string            // hierarchical parent, if any
	Position int               // order within the document
	Metadata map[string]string // header_path, window, original_text
}

// ScoredPoint is a search hit. Higher Score means more similar.
type ScoredPoint struct {
	Point
	Score float64
}

// VectorStore is a session against the vector database. Each index is one
// collection. Sessions are opened per build or per query and must be closed.
type VectorStore interface {
	Health(ctx context.Context) error
	CollectionExists(ctx context.Context, name string) (bool, error)
	CreateCollection(ctx context.Context, name string, dimension int) error
	DropCollection(ctx context.Context, name string) error
	ListCollections(ctx context.Context) ([]string, error)
	UpsertPoints(ctx context.Context, name string, points []*Point) error
	Search(ctx context.Context, name string, vector []float32, limit int) ([]*ScoredPoint, error)
	Count(ctx context.Context, name string) (uint64, error)
	Close() error
}

// Opener opens vector store sessions.
type Opener interface {
	Open(ctx context.Context) (VectorStore, error)
}

// IndexManifest describes how an index was built. It is kept in the
// document store next to the auto-merging hierarchy.
type IndexManifest struct {
	Name         string    `json:"name"`
	Strategy     string    `json:"strategy"`
	ChunkSize    int       `json:"chunk_size,omitempty"`
	ChunkOverlap int       `json:"chunk_overlap,omitempty"`
	ChunkSizes   []int     `json:"chunk_sizes,omitempty"`
	WindowSize   int       `json:"window_size,omitempty"`
	Dimension    int       `json:"dimension"`
	NumFiles     int       `json:"num_files"`
	NumNodes     int       `json:"num_nodes"`
	NumEmbedded  int       `json:"num_embedded"`
	BuiltAt      time.Time `json:"built_at"`
}

var indexNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,254}$`)

// ValidateIndexName checks that name can be used as a collection name.
func ValidateIndexName(name string) error {
	if !indexNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q (use letters, digits, '_' or '-')", ErrInvalidIndexName, name)
	}
	return nil
}
