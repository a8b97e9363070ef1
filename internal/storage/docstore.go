package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/bull/docrag/internal/chunking"
)

// Key layout:
//
//	idx/<name>/manifest
//	idx/<name>/node/<id>
const (
	indexPrefix = "idx/"
	manifestKey = "/manifest"
	nodeInfix   = "/node/"
)

// DocStore persists index manifests and the full node hierarchy of
// auto-merging indexes so parents can be rebuilt at query time.
type DocStore struct {
	db     *badger.DB
	logger *slog.Logger
}

// badgerLoggerAdapter adapts slog.Logger to badger.Logger interface.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(strings.TrimSpace(fmt.Sprintf(msg, items...)))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(strings.TrimSpace(fmt.Sprintf(msg, items...)))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Debug(strings.TrimSpace(fmt.Sprintf(msg, items...)))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(strings.TrimSpace(fmt.Sprintf(msg, items...)))
}

// OpenDocStore opens the badger database at dir, creating it if needed.
// With inMemory set, dir is ignored.
func OpenDocStore(dir string, inMemory bool, logger *slog.Logger) (*DocStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "docstore")

	var opts badger.Options
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create docstore dir: %w", err)
		}
		opts = badger.DefaultOptions(dir)
	}
	opts.Logger = &badgerLoggerAdapter{logger: logger}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open docstore: %w", err)
	}
	return &DocStore{db: db, logger: logger}, nil
}

// Close closes the database.
func (d *DocStore) Close() error {
	return d.db.Close()
}

func indexKeyPrefix(name string) []byte {
	return []byte(indexPrefix + name + "/")
}

func nodeKey(index, id string) []byte {
	return []byte(indexPrefix + index + nodeInfix + id)
}

// ReplaceIndex removes everything stored for manifest.Name and writes the
// manifest plus nodes.
func (d *DocStore) ReplaceIndex(ctx context.Context, manifest *IndexManifest, nodes []chunking.Node) error {
	if err := d.DeleteIndex(ctx, manifest.Name); err != nil {
		return err
	}

	wb := d.db.NewWriteBatch()
	defer wb.Cancel()

	for i := range nodes {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := json.Marshal(&nodes[i])
		if err != nil {
			return fmt.Errorf("encode node %s: %w", nodes[i].ID, err)
		}
		if err := wb.Set(nodeKey(manifest.Name, nodes[i].ID), data); err != nil {
			return fmt.Errorf("write node %s: %w", nodes[i].ID, err)
		}
	}

	data, err := json.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := wb.Set([]byte(indexPrefix+manifest.Name+manifestKey), data); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flush index %s: %w", manifest.Name, err)
	}
	d.logger.Debug("stored index", "index", manifest.Name, "nodes", len(nodes))
	return nil
}

// DeleteIndex removes the manifest and nodes of an index. Missing indexes
// are not an error.
func (d *DocStore) DeleteIndex(ctx context.Context, name string) error {
	var keys [][]byte
	err := d.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = indexKeyPrefix(name)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan index %s: %w", name, err)
	}
	if len(keys) == 0 {
		return nil
	}

	wb := d.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return fmt.Errorf("delete index %s: %w", name, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("delete index %s: %w", name, err)
	}
	return nil
}

// Manifest returns the manifest of an index or ErrManifestNotFound.
func (d *DocStore) Manifest(ctx context.Context, name string) (*IndexManifest, error) {
	var m IndexManifest
	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(indexPrefix + name + manifestKey))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &m)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrManifestNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", name, err)
	}
	return &m, nil
}

// Manifests lists all stored manifests sorted by name.
func (d *DocStore) Manifests(ctx context.Context) ([]*IndexManifest, error) {
	var out []*IndexManifest
	err := d.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(indexPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.Key())
			if !strings.HasSuffix(key, manifestKey) || strings.Contains(key, nodeInfix) {
				continue
			}
			var m IndexManifest
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &m)
			}); err != nil {
				return err
			}
			out = append(out, &m)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list manifests: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Nodes fetches nodes of an index by ID. Unknown IDs are skipped.
func (d *DocStore) Nodes(ctx context.Context, index string, ids []string) (map[string]chunking.Node, error) {
	out := make(map[string]chunking.Node, len(ids))
	err := d.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			item, err := txn.Get(nodeKey(index, id))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			var n chunking.Node
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &n)
			}); err != nil {
				return err
			}
			out[id] = n
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read nodes of %s: %w", index, err)
	}
	return out, nil
}
