package core

import (
	"context"
	"errors"
	"sync"

	"medassist/internal/llm"
	"medassist/pkg"
)

// fakeLLM replies with a fixed chat answer and records what it was sent.
type fakeLLM struct {
	mu       sync.Mutex
	reply    string
	err      error
	block    bool
	calls    [][]llm.Message
	summary  string
	sumCalls int
}

func (f *fakeLLM) Chat(ctx context.Context, msgs []llm.Message) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, msgs)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.reply, f.err
}

func (f *fakeLLM) Summarize(_ context.Context, _, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sumCalls++
	return f.summary, nil
}

func (f *fakeLLM) lastCall() []llm.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return nil
	}
	return f.calls[len(f.calls)-1]
}

type fakeRetriever struct {
	chunks []string
	err    error
	panics bool
}

func (r *fakeRetriever) Query(_ context.Context, _ string, k int) ([]string, error) {
	if r.panics {
		panic("index not initialised")
	}
	if r.err != nil {
		return nil, r.err
	}
	if k < len(r.chunks) {
		return r.chunks[:k], nil
	}
	return r.chunks, nil
}

type fakeFinder struct {
	result pkg.FacilityResult
	calls  int
	cities []string
}

func (f *fakeFinder) RecommendFacility(_ context.Context, city string, _ *pkg.Assessment) pkg.FacilityResult {
	f.calls++
	f.cities = append(f.cities, city)
	return f.result
}

// failingAppender rejects every write.
type failingAppender struct{}

func (failingAppender) AppendTurn(context.Context, string, pkg.Role, string) error {
	return errors.New("disk full")
}
