package rag

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlatIndexSearchOrder(t *testing.T) {
	idx := NewFlatIndex(2)
	require.NoError(t, idx.Add(
		Normalize([]float32{1, 0}),
		Normalize([]float32{0, 1}),
		Normalize([]float32{1, 1}),
		Normalize([]float32{1, 0}),
	))

	hits := idx.Search(Normalize([]float32{1, 0.1}), 3)
	require.Len(t, hits, 3)
	assert.Equal(t, 0, hits[0].Pos)
	assert.Equal(t, 3, hits[1].Pos, "ties keep index order")
	assert.Equal(t, 2, hits[2].Pos)
	assert.GreaterOrEqual(t, hits[0].Score, hits[2].Score)

	assert.Len(t, idx.Search([]float32{1, 0}, 10), 4)
	assert.Nil(t, idx.Search([]float32{1, 0, 0}, 1))
	assert.Error(t, idx.Add([]float32{1}))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	base := filepath.Join(t.TempDir(), "idx", "medical")
	idx := NewFlatIndex(3)
	require.NoError(t, idx.Add([]float32{1, 0, 0}, []float32{0, 0.6, 0.8}))
	require.NoError(t, SaveIndex(base, idx, []string{"first", "second"}))

	loaded, chunks, err := LoadIndex(base, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, chunks)
	assert.Equal(t, 2, loaded.Len())
	assert.Equal(t, []float32{0, 0.6, 0.8}, loaded.vectors[1])
}

func TestLoadIndexErrors(t *testing.T) {
	base := filepath.Join(t.TempDir(), "medical")

	_, _, err := LoadIndex(base, 3)
	assert.ErrorIs(t, err, os.ErrNotExist)

	idx := NewFlatIndex(3)
	require.NoError(t, idx.Add([]float32{1, 0, 0}))
	require.NoError(t, SaveIndex(base, idx, []string{"only"}))

	_, _, err = LoadIndex(base, 384)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	require.NoError(t, os.Remove(chunksPath(base)))
	_, _, err = LoadIndex(base, 3)
	assert.ErrorIs(t, err, ErrIncompleteIndex)

	require.NoError(t, os.WriteFile(vectorsPath(base), []byte("junk"), 0o644))
	_, _, err = LoadIndex(base, 3)
	assert.ErrorIs(t, err, ErrIncompleteIndex)
}

func TestSaveIndexRejectsMismatchedPair(t *testing.T) {
	idx := NewFlatIndex(1)
	require.NoError(t, idx.Add([]float32{1}))
	err := SaveIndex(filepath.Join(t.TempDir(), "x"), idx, nil)
	assert.ErrorIs(t, err, ErrIncompleteIndex)
}
