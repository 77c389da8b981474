// Package rag serves reference passages for the reasoning prompt.  The index
// is built once from the documents directory, persisted next to it and
// loaded on later starts.
package rag

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"medassist/internal/llm"
	"medassist/internal/logger"
	"medassist/internal/metrics"
)

// ErrNoDocuments is returned when a build finds nothing to index.
var ErrNoDocuments = errors.New("no documents to index")

const (
	DefaultChunkSize    = 250
	DefaultChunkOverlap = 50
)

// Options configures an Index.
type Options struct {
	DocsDir     string
	Path        string // base path; ".index" and "_docs.json" are appended
	ChunkSize   int
	Overlap     int
	BatchSize   int
	Concurrency int
	Cache       EmbeddingCache // optional
}

// Index answers nearest-chunk queries.  It is safe for concurrent Query once
// Initialize has returned.
type Index struct {
	embedder llm.Embedder
	opts     Options
	log      *logger.Logger

	mu     sync.RWMutex
	flat   *FlatIndex
	chunks []string
}

// NewIndex returns an uninitialised index.
func NewIndex(embedder llm.Embedder, opts Options, log *logger.Logger) *Index {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.Overlap <= 0 {
		opts.Overlap = DefaultChunkOverlap
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 64
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &Index{embedder: embedder, opts: opts, log: log.With("component", "rag")}
}

// Ready reports whether Initialize has succeeded.
func (x *Index) Ready() bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.flat != nil
}

// Len returns the number of indexed chunks.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.chunks)
}

// Initialize loads the persisted index, or builds a new one when none is
// usable.  It does nothing when the index is already in memory.
func (x *Index) Initialize(ctx context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.flat != nil {
		return nil
	}

	err := x.loadLocked()
	switch {
	case err == nil:
		x.log.Info("loaded retrieval index", "chunks", len(x.chunks), "dim", x.flat.Dim())
		return nil
	case errors.Is(err, fs.ErrNotExist):
		x.log.Info("no persisted retrieval index, building", "path", x.opts.Path)
	case errors.Is(err, ErrDimensionMismatch):
		x.log.Warn("discarding retrieval index built for another embedding model", "error", err)
	default:
		x.log.Warn("persisted retrieval index unusable, rebuilding", "error", err)
	}
	return x.buildLocked(ctx)
}

// Build rebuilds the index from the documents directory and persists it,
// replacing whatever is in memory.
func (x *Index) Build(ctx context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.buildLocked(ctx)
}

func (x *Index) loadLocked() error {
	flat, chunks, err := LoadIndex(x.opts.Path, x.embedder.Dimension())
	if err != nil {
		return err
	}
	x.flat, x.chunks = flat, chunks
	return nil
}

func (x *Index) buildLocked(ctx context.Context) error {
	docs, err := LoadDocuments(x.opts.DocsDir)
	if err != nil {
		return err
	}
	splitter := NewSplitter(x.opts.ChunkSize, x.opts.Overlap)
	var chunks []string
	for _, d := range docs {
		parts, err := splitter.Split(d.Text)
		if err != nil {
			return fmt.Errorf("split %s: %w", d.Source, err)
		}
		chunks = append(chunks, parts...)
	}
	if len(chunks) == 0 {
		return fmt.Errorf("%w in %s", ErrNoDocuments, x.opts.DocsDir)
	}

	vectors := make([][]float32, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(x.opts.Concurrency)
	for start := 0; start < len(chunks); start += x.opts.BatchSize {
		start := start
		end := min(start+x.opts.BatchSize, len(chunks))
		g.Go(func() error {
			vecs, err := x.embedder.Embed(gctx, chunks[start:end])
			if err != nil {
				return fmt.Errorf("embed chunks %d-%d: %w", start, end, err)
			}
			if len(vecs) != end-start {
				return fmt.Errorf("embed chunks %d-%d: got %d vectors", start, end, len(vecs))
			}
			for i, v := range vecs {
				vectors[start+i] = Normalize(v)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	flat := NewFlatIndex(x.embedder.Dimension())
	if err := flat.Add(vectors...); err != nil {
		return err
	}
	if err := SaveIndex(x.opts.Path, flat, chunks); err != nil {
		return err
	}
	x.flat, x.chunks = flat, chunks
	x.log.Info("built retrieval index", "documents", len(docs), "chunks", len(chunks), "model", x.embedder.ModelName())
	return nil
}

// Query returns the k chunks most similar to query, most similar first.
// Calling it before Initialize is a programming error and panics.
func (x *Index) Query(ctx context.Context, query string, k int) ([]string, error) {
	start := time.Now()
	defer func() { metrics.RetrievalLatency.Observe(time.Since(start).Seconds()) }()

	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.flat == nil {
		panic("rag: Query called before Initialize")
	}

	vec, err := x.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	hits := x.flat.Search(vec, k)
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = x.chunks[h.Pos]
	}
	return out, nil
}

func (x *Index) embedQuery(ctx context.Context, query string) ([]float32, error) {
	model := x.embedder.ModelName()
	if c := x.opts.Cache; c != nil {
		vec, ok, err := c.Get(ctx, model, query)
		if err != nil {
			x.log.Warn("embedding cache read failed", "error", err)
		}
		if ok && len(vec) == x.flat.Dim() {
			return vec, nil
		}
	}
	vecs, err := x.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors", len(vecs))
	}
	vec := Normalize(vecs[0])
	if c := x.opts.Cache; c != nil {
		if err := c.Put(ctx, model, query, vec); err != nil {
			x.log.Warn("embedding cache write failed", "error", err)
		}
	}
	return vec, nil
}
