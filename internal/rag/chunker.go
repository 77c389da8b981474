package rag

import (
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"
)

// Splitter cuts text into overlapping chunks of at most Size runes, keeping
// paragraph and line boundaries where it can.
type Splitter struct {
	Size    int
	Overlap int
	inner   textsplitter.RecursiveCharacter
}

// NewSplitter returns a recursive splitter over the paragraph, line, word,
// rune separator cascade.
func NewSplitter(size, overlap int) *Splitter {
	if overlap >= size {
		overlap = size / 5
	}
	return &Splitter{
		Size:    size,
		Overlap: overlap,
		inner: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(size),
			textsplitter.WithChunkOverlap(overlap),
			textsplitter.WithSeparators([]string{"\n\n", "\n", " ", ""}),
			textsplitter.WithLenFunc(utf8.RuneCountInString),
		),
	}
}

// Split returns the non-blank chunks of text in document order.
func (s *Splitter) Split(text string) ([]string, error) {
	chunks, err := s.inner.SplitText(text)
	if err != nil {
		return nil, err
	}
	out := chunks[:0]
	for _, c := range chunks {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out, nil
}
