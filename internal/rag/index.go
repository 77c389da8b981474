package rag

import (
	"bufio"
	"container/heap"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
)

var (
	// ErrDimensionMismatch means a persisted index was built with a different
	// embedding model than the one configured now.
	ErrDimensionMismatch = errors.New("index dimension does not match embedder")
	// ErrIncompleteIndex means the vector file and the chunk list are not a
	// matching pair.
	ErrIncompleteIndex = errors.New("index and chunk list are incomplete or inconsistent")
)

const (
	indexMagic   = "MIDX"
	indexVersion = uint32(1)
	// maxIndexEntries guards against allocating from a corrupt header.
	maxIndexEntries = 10_000_000
)

// FlatIndex is an exact inner-product index.  Vectors are expected to be
// L2-normalised so the score is cosine similarity.
type FlatIndex struct {
	dim     int
	vectors [][]float32
}

// NewFlatIndex returns an empty index for vectors of length dim.
func NewFlatIndex(dim int) *FlatIndex { return &FlatIndex{dim: dim} }

func (f *FlatIndex) Dim() int { return f.dim }
func (f *FlatIndex) Len() int { return len(f.vectors) }

// Add appends vectors; position i of the index is the i-th vector ever added.
func (f *FlatIndex) Add(vectors ...[]float32) error {
	for _, v := range vectors {
		if len(v) != f.dim {
			return fmt.Errorf("add vector of length %d to index of dimension %d", len(v), f.dim)
		}
		f.vectors = append(f.vectors, v)
	}
	return nil
}

// Hit is one search result: the position of the vector and its score.
type Hit struct {
	Pos   int
	Score float32
}

type hitHeap []Hit

func (h hitHeap) Len() int           { return len(h) }
func (h hitHeap) Less(i, j int) bool { return h[i].Score < h[j].Score } // min-heap
func (h hitHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *hitHeap) Push(x any)        { *h = append(*h, x.(Hit)) }
func (h *hitHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// Search returns up to k hits ordered by descending score.  Equal scores
// keep index order.
func (f *FlatIndex) Search(query []float32, k int) []Hit {
	if k <= 0 || len(f.vectors) == 0 || len(query) != f.dim {
		return nil
	}
	h := make(hitHeap, 0, k+1)
	for i, v := range f.vectors {
		s := dot(query, v)
		if h.Len() < k {
			heap.Push(&h, Hit{Pos: i, Score: s})
			continue
		}
		if s > h[0].Score {
			h[0] = Hit{Pos: i, Score: s}
			heap.Fix(&h, 0)
		}
	}
	out := make([]Hit, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&h).(Hit)
	}
	// heap order is unstable for ties; restore index order among equals
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Score == out[j-1].Score && out[j].Pos < out[j-1].Pos; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func dot(a, b []float32) float32 {
	var s float32
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

// Normalize scales v to unit length in place.  Zero vectors are left alone.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
	return v
}

func vectorsPath(base string) string { return base + ".index" }
func chunksPath(base string) string  { return base + "_docs.json" }

// SaveIndex persists the index and the parallel chunk list under base.  Both
// files are written to temporaries first and then renamed.
func SaveIndex(base string, idx *FlatIndex, chunks []string) error {
	if idx.Len() != len(chunks) {
		return fmt.Errorf("%w: %d vectors, %d chunks", ErrIncompleteIndex, idx.Len(), len(chunks))
	}
	if err := os.MkdirAll(filepath.Dir(base), 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	if err := writeAtomic(vectorsPath(base), func(w io.Writer) error { return writeVectors(w, idx) }); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	if err := writeAtomic(chunksPath(base), func(w io.Writer) error { return json.NewEncoder(w).Encode(chunks) }); err != nil {
		return fmt.Errorf("write chunks: %w", err)
	}
	return nil
}

// LoadIndex reads a persisted index.  It returns an error wrapping
// os.ErrNotExist when nothing was persisted, ErrDimensionMismatch when the
// stored dimension differs from wantDim and ErrIncompleteIndex when the two
// halves do not match.
func LoadIndex(base string, wantDim int) (*FlatIndex, []string, error) {
	f, err := os.Open(vectorsPath(base))
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	r := bufio.NewReader(f)

	dim, count, err := readHeader(r)
	if err != nil {
		return nil, nil, err
	}
	if dim != wantDim {
		return nil, nil, fmt.Errorf("%w: stored %d, embedder %d", ErrDimensionMismatch, dim, wantDim)
	}

	idx := NewFlatIndex(dim)
	idx.vectors = make([][]float32, count)
	for i := range idx.vectors {
		v := make([]float32, dim)
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return nil, nil, fmt.Errorf("%w: read vector %d: %v", ErrIncompleteIndex, i, err)
		}
		idx.vectors[i] = v
	}

	b, err := os.ReadFile(chunksPath(base))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrIncompleteIndex, err)
	}
	var chunks []string
	if err := json.Unmarshal(b, &chunks); err != nil {
		return nil, nil, fmt.Errorf("%w: decode chunks: %v", ErrIncompleteIndex, err)
	}
	if len(chunks) != count {
		return nil, nil, fmt.Errorf("%w: %d vectors, %d chunks", ErrIncompleteIndex, count, len(chunks))
	}
	return idx, chunks, nil
}

func readHeader(r io.Reader) (dim, count int, err error) {
	magic := make([]byte, len(indexMagic))
	if _, err := io.ReadFull(r, magic); err != nil || string(magic) != indexMagic {
		return 0, 0, fmt.Errorf("%w: bad magic", ErrIncompleteIndex)
	}
	var hdr [3]uint32
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return 0, 0, fmt.Errorf("%w: read header: %v", ErrIncompleteIndex, err)
	}
	if hdr[0] != indexVersion {
		return 0, 0, fmt.Errorf("%w: unsupported version %d", ErrIncompleteIndex, hdr[0])
	}
	if hdr[2] > maxIndexEntries {
		return 0, 0, fmt.Errorf("%w: implausible entry count %d", ErrIncompleteIndex, hdr[2])
	}
	return int(hdr[1]), int(hdr[2]), nil
}

func writeVectors(w io.Writer, idx *FlatIndex) error {
	if _, err := io.WriteString(w, indexMagic); err != nil {
		return err
	}
	hdr := [3]uint32{indexVersion, uint32(idx.dim), uint32(len(idx.vectors))}
	if err := binary.Write(w, binary.LittleEndian, hdr); err != nil {
		return err
	}
	for _, v := range idx.vectors {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	return nil
}

func writeAtomic(path string, fill func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	bw := bufio.NewWriter(tmp)
	if err := fill(bw); err != nil {
		tmp.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
