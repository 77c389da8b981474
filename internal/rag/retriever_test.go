package rag

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medassist/internal/logger"
)

func writeCorpus(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"cardiac.txt":  "Chest pain radiating to the left arm with sweating may indicate acute coronary syndrome.",
		"migraine.txt": "Migraine headache is often unilateral and throbbing with light sensitivity.",
		"gerd.txt":     "Heartburn after meals that worsens when lying down suggests reflux disease.",
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func newTestIndex(t *testing.T, emb *wordEmbedder, docs, base string) *Index {
	t.Helper()
	return NewIndex(emb, Options{DocsDir: docs, Path: base, BatchSize: 2}, logger.Nop())
}

func TestInitializeBuildsThenLoads(t *testing.T) {
	ctx := context.Background()
	docs := writeCorpus(t)
	base := filepath.Join(t.TempDir(), "medical_index")

	first := &wordEmbedder{dim: 64}
	idx := newTestIndex(t, first, docs, base)
	require.NoError(t, idx.Initialize(ctx))
	assert.True(t, idx.Ready())
	assert.Equal(t, 3, idx.Len())
	assert.Equal(t, int64(3), first.texts.Load())
	assert.FileExists(t, vectorsPath(base))
	assert.FileExists(t, chunksPath(base))

	second := &wordEmbedder{dim: 64}
	reloaded := newTestIndex(t, second, docs, base)
	require.NoError(t, reloaded.Initialize(ctx))
	require.NoError(t, reloaded.Initialize(ctx))
	assert.Zero(t, second.calls.Load(), "valid persisted index must not be rebuilt")
	assert.Equal(t, 3, reloaded.Len())
}

func TestInitializeRebuildsOnDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	docs := writeCorpus(t)
	base := filepath.Join(t.TempDir(), "medical_index")

	require.NoError(t, newTestIndex(t, &wordEmbedder{dim: 32}, docs, base).Initialize(ctx))

	wider := &wordEmbedder{dim: 48}
	idx := newTestIndex(t, wider, docs, base)
	require.NoError(t, idx.Initialize(ctx))
	assert.Equal(t, int64(3), wider.texts.Load())

	_, _, err := LoadIndex(base, 48)
	assert.NoError(t, err, "rebuilt index is persisted with the new dimension")
}

func TestInitializeFailsWithoutDocuments(t *testing.T) {
	idx := newTestIndex(t, &wordEmbedder{dim: 8}, t.TempDir(), filepath.Join(t.TempDir(), "i"))
	err := idx.Initialize(context.Background())
	assert.ErrorIs(t, err, ErrNoDocuments)
	assert.False(t, idx.Ready())
}

func TestQueryReturnsMostSimilarFirst(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t, &wordEmbedder{dim: 256}, writeCorpus(t), filepath.Join(t.TempDir(), "i"))
	require.NoError(t, idx.Initialize(ctx))

	got, err := idx.Query(ctx, "I have chest pain in my left arm", 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Contains(t, got[0], "coronary")

	got, err = idx.Query(ctx, "throbbing migraine headache", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Contains(t, got[0], "Migraine")
}

func TestQueryUsesCache(t *testing.T) {
	ctx := context.Background()
	emb := &wordEmbedder{dim: 64}
	cache := newMemCache()
	idx := NewIndex(emb, Options{DocsDir: writeCorpus(t), Path: filepath.Join(t.TempDir(), "i"), Cache: cache}, logger.Nop())
	require.NoError(t, idx.Initialize(ctx))
	before := emb.calls.Load()

	_, err := idx.Query(ctx, "heartburn", 1)
	require.NoError(t, err)
	_, err = idx.Query(ctx, "heartburn", 1)
	require.NoError(t, err)

	assert.Equal(t, before+1, emb.calls.Load())
	assert.Equal(t, 1, cache.hits)
}

func TestQueryBeforeInitializePanics(t *testing.T) {
	idx := newTestIndex(t, &wordEmbedder{dim: 8}, t.TempDir(), filepath.Join(t.TempDir(), "i"))
	assert.Panics(t, func() { _, _ = idx.Query(context.Background(), "hi", 3) })
}

func TestVectorCodec(t *testing.T) {
	v := []float32{0.25, -1, 3.5}
	got, err := decodeVector(encodeVector(v))
	require.NoError(t, err)
	assert.Equal(t, v, got)
	_, err = decodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}
