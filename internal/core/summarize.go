package core

import (
	"context"

	"medassist/internal/llm"
)

// Summarizer folds older user turns into the rolling history summary using
// the summary model.
type Summarizer struct {
	LLM llm.Client
}

// NewSummarizer constructs a summariser.
func NewSummarizer(client llm.Client) *Summarizer {
	return &Summarizer{LLM: client}
}

// Summarize condenses newline-joined user messages.  An empty reply is
// returned as-is; the memory manager treats it as a failed regeneration.
func (s *Summarizer) Summarize(ctx context.Context, text string) (string, error) {
	return s.LLM.Summarize(ctx, SummarizationInstruction, text)
}
