package storage

import "errors"

var (
	ErrQdrantUnreachable = errors.New("qdrant server unreachable")
	ErrIndexNotFound     = errors.New("index not found")
	ErrInvalidIndexName  = errors.New("invalid index name")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrManifestNotFound  = errors.New("index manifest not found")
)
