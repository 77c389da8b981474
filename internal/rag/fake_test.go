package rag

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"sync/atomic"
)

// wordEmbedder hashes lower-cased words into a bag-of-words vector.
type wordEmbedder struct {
	dim   int
	calls atomic.Int64
	texts atomic.Int64
}

func (e *wordEmbedder) Dimension() int    { return e.dim }
func (e *wordEmbedder) ModelName() string { return "bag-of-words" }

func (e *wordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls.Add(1)
	e.texts.Add(int64(len(texts)))
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, e.dim)
		for _, w := range strings.Fields(strings.ToLower(t)) {
			w = strings.Trim(w, ".,;:!?")
			h := fnv.New32a()
			_, _ = h.Write([]byte(w))
			v[h.Sum32()%uint32(e.dim)]++
		}
		out[i] = v
	}
	return out, nil
}

type memCache struct {
	mu   sync.Mutex
	m    map[string][]float32
	hits int
}

func newMemCache() *memCache { return &memCache{m: map[string][]float32{}} }

func (c *memCache) Get(_ context.Context, model, text string) ([]float32, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[model+"|"+text]
	if ok {
		c.hits++
	}
	return v, ok, nil
}

func (c *memCache) Put(_ context.Context, model, text string, vec []float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[model+"|"+text] = vec
	return nil
}
