package indexer

import (
	"context"
	"errors"
	"fmt"

	"github.com/bull/docrag/internal/storage"
)

// IndexInfo describes one stored index. Manifest is nil for collections
// created outside this service.
type IndexInfo struct {
	Name     string
	Points   uint64
	Manifest *storage.IndexManifest
}

// Delete drops the collection and document-store entries of an index.
func (b *Builder) Delete(ctx context.Context, name string) error {
	if err := storage.ValidateIndexName(name); err != nil {
		return err
	}

	store, err := b.opener.Open(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	exists, err := store.CollectionExists(ctx, name)
	if err != nil {
		return err
	}
	_, manifestErr := b.docs.Manifest(ctx, name)
	if !exists && errors.Is(manifestErr, storage.ErrManifestNotFound) {
		return fmt.Errorf("%w: %s", storage.ErrIndexNotFound, name)
	}

	if exists {
		if err := store.DropCollection(ctx, name); err != nil {
			return err
		}
	}
	if err := b.docs.DeleteIndex(ctx, name); err != nil {
		return err
	}
	b.logger.Info("Deleted index", "index", name)
	return nil
}

// Names lists the collections in the vector store, sorted.
func (b *Builder) Names(ctx context.Context) ([]string, error) {
	store, err := b.opener.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	names, err := store.ListCollections(ctx)
	if err != nil {
		return nil, err
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

// List returns every collection with its point count and manifest.
func (b *Builder) List(ctx context.Context) ([]IndexInfo, error) {
	store, err := b.opener.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	names, err := store.ListCollections(ctx)
	if err != nil {
		return nil, err
	}

	infos := make([]IndexInfo, 0, len(names))
	for _, name := range names {
		info := IndexInfo{Name: name}
		if info.Points, err = store.Count(ctx, name); err != nil {
			return nil, err
		}
		m, err := b.docs.Manifest(ctx, name)
		switch {
		case err == nil:
			info.Manifest = m
		case !errors.Is(err, storage.ErrManifestNotFound):
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}
