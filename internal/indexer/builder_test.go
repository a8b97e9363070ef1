package indexer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/docrag/internal/chunking"
	"github.com/bull/docrag/internal/embedding"
	"github.com/bull/docrag/internal/loader"
	"github.com/bull/docrag/internal/storage"
	"github.com/bull/docrag/internal/testutil"
)

type testEnv struct {
	builder *Builder
	store   *storage.MemoryStore
	docs    *storage.DocStore
	fake    *testutil.FakeOpenAI
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	fake := testutil.NewFakeOpenAI(t)
	client, err := embedding.NewClient(fake.BaseURL(), "test-key")
	require.NoError(t, err)
	embedder, err := embedding.NewEmbedder(client, embedding.Options{BatchSize: 16})
	require.NoError(t, err)
	t.Cleanup(embedder.Release)

	docs, err := storage.OpenDocStore("", true, nil)
	require.NoError(t, err)
	t.Cleanup(func() { docs.Close() })

	store := storage.NewMemoryStore()
	return &testEnv{
		builder: NewBuilder(loader.New(nil, nil), embedder, store, docs, nil),
		store:   store,
		docs:    docs,
		fake:    fake,
	}
}

func writeDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func allTexts(t *testing.T, store *storage.MemoryStore, name string) []string {
	t.Helper()
	hits, err := store.Search(context.Background(), name, queryVector("anything"), 1000)
	require.NoError(t, err)
	var out []string
	for _, h := range hits {
		out = append(out, h.Text)
	}
	return out
}

func queryVector(text string) []float32 {
	v := testutil.Embed(text)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

func TestBuild_OverwriteReplacesIndex(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first := writeDir(t, map[string]string{"old.txt": "The old content about llamas."})
	_, err := env.builder.Build(ctx, Request{
		Input: loader.Input{Dir: first}, IndexName: "notes", IndexType: "basic", ChunkOverlap: 20,
	})
	require.NoError(t, err)

	second := writeDir(t, map[string]string{"new.txt": "Fresh content about alpacas."})
	res, err := env.builder.Build(ctx, Request{
		Input: loader.Input{Dir: second}, IndexName: "notes", IndexType: "basic", ChunkOverlap: 20, Overwrite: true,
	})
	require.NoError(t, err)
	assert.True(t, res.Replaced)
	assert.Equal(t, 1, res.NumFiles)

	names, err := env.store.ListCollections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"notes"}, names)

	texts := allTexts(t, env.store, "notes")
	assert.Equal(t, []string{"Fresh content about alpacas."}, texts)
}

func TestBuild_RefusesOverwriteWithoutFlag(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	dir := writeDir(t, map[string]string{"a.txt": "Original text."})
	req := Request{Input: loader.Input{Dir: dir}, IndexName: "keep", IndexType: "basic"}
	_, err := env.builder.Build(ctx, req)
	require.NoError(t, err)

	req.Input = loader.Input{Dir: writeDir(t, map[string]string{"b.txt": "Replacement text."})}
	_, err = env.builder.Build(ctx, req)
	require.ErrorIs(t, err, ErrIndexExists)

	assert.Equal(t, []string{"Original text."}, allTexts(t, env.store, "keep"))
}

func TestBuild_EmptyInputFailsBeforeMutation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.builder.Build(ctx, Request{
		Input: loader.Input{Dir: t.TempDir()}, IndexName: "empty", IndexType: "basic", Overwrite: true,
	})
	require.ErrorIs(t, err, loader.ErrNoInputFiles)

	exists, err := env.store.CollectionExists(ctx, "empty")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Zero(t, env.fake.EmbeddingCalls())
}

func TestBuild_InvalidIndexType(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.builder.Build(context.Background(), Request{
		Input: loader.Input{Files: []string{"x.txt"}}, IndexName: "bad", IndexType: "invalid",
	})
	require.ErrorIs(t, err, chunking.ErrInvalidStrategy)
	assert.Contains(t, err.Error(), "invalid")
}

func TestBuild_InvalidIndexName(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.builder.Build(context.Background(), Request{
		Input: loader.Input{Files: []string{"x.txt"}}, IndexName: "../etc", IndexType: "basic",
	})
	assert.ErrorIs(t, err, storage.ErrInvalidIndexName)
}

func TestBuild_AutoMergingStoresHierarchy(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	body := strings.Repeat("Sentence about hierarchical merging of chunks. ", 40)
	dir := writeDir(t, map[string]string{"long.txt": body})

	res, err := env.builder.Build(ctx, Request{
		Input:      loader.Input{Dir: dir},
		IndexName:  "tree",
		IndexType:  "automerging",
		ChunkSizes: []int{1024, 256, 64},
	})
	require.NoError(t, err)
	assert.Greater(t, res.NumNodes, res.NumEmbedded, "only leaves are embedded")

	count, err := env.store.Count(ctx, "tree")
	require.NoError(t, err)
	assert.Equal(t, uint64(res.NumEmbedded), count)

	m, err := env.docs.Manifest(ctx, "tree")
	require.NoError(t, err)
	assert.Equal(t, string(chunking.StrategyAutoMerging), m.Strategy)
	assert.Equal(t, []int{1024, 256, 64}, m.ChunkSizes)
	assert.Equal(t, testutil.EmbeddingDimension, m.Dimension)

	hits, err := env.store.Search(ctx, "tree", queryVector("hierarchical merging"), 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.NotEmpty(t, hits[0].ParentID)

	parents, err := env.docs.Nodes(ctx, "tree", []string{hits[0].ParentID})
	require.NoError(t, err)
	assert.Contains(t, parents[hits[0].ParentID].ChildIDs, hits[0].ID)
}

func TestBuild_SentenceWindowManifest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	dir := writeDir(t, map[string]string{"s.txt": "One. Two. Three. Four."})
	res, err := env.builder.Build(ctx, Request{
		Input: loader.Input{Dir: dir}, IndexName: "win", IndexType: "sentence_window", WindowSize: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, 4, res.NumEmbedded)

	m, err := env.docs.Manifest(ctx, "win")
	require.NoError(t, err)
	assert.Equal(t, 1, m.WindowSize)
}

func TestDeleteAndList(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	dir := writeDir(t, map[string]string{"a.txt": "Some text."})
	for _, name := range []string{"beta", "alpha"} {
		_, err := env.builder.Build(ctx, Request{Input: loader.Input{Dir: dir}, IndexName: name, IndexType: "basic"})
		require.NoError(t, err)
	}

	names, err := env.builder.Names(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, names)

	infos, err := env.builder.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, uint64(1), infos[0].Points)
	require.NotNil(t, infos[0].Manifest)
	assert.Equal(t, 1, infos[0].Manifest.NumFiles)

	require.NoError(t, env.builder.Delete(ctx, "alpha"))
	names, err = env.builder.Names(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"beta"}, names)

	assert.ErrorIs(t, env.builder.Delete(ctx, "alpha"), storage.ErrIndexNotFound)
}
