// Package memory bounds the conversation history sent to the reasoning
// model: recent turns verbatim plus a rolling summary of everything older.
package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"medassist/internal/logger"
	"medassist/internal/metrics"
	"medassist/pkg"
)

const (
	// SummarizeAbove is the history length above which older turns are
	// folded into the summary.
	SummarizeAbove = 12
	// RecentWindow is how many trailing turns are kept verbatim once the
	// history is summarised.
	RecentWindow = 6
	// MaxSummaryInputs caps the user turns fed to the summariser.
	MaxSummaryInputs = 20
	// MaxSummaryChars is the longest summary handed to the prompt.
	MaxSummaryChars = 1000
)

// ErrListTurns wraps a failure to read the history, which fails the turn.
var ErrListTurns = errors.New("list turns")

// Store is the slice of the storage collaborator the manager needs.
type Store interface {
	ListTurns(ctx context.Context, sessionID string) ([]pkg.Turn, error)
	GetSummary(ctx context.Context, sessionID string) (string, error)
	SetSummary(ctx context.Context, sessionID, text string) error
}

// Summarizer condenses newline-joined user messages into a short history.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// SummaryResult records what happened to the rolling summary this turn.
// Text is the freshly generated summary, empty when none was produced.
type SummaryResult struct {
	Attempted bool
	Text      string
	Stored    bool
	Err       error
}

// OK reports whether no regeneration failed.
func (r SummaryResult) OK() bool { return r.Err == nil }

// View is the bounded history handed to the reasoning engine.
type View struct {
	Summary string
	Recent  []pkg.Turn
	Result  SummaryResult
}

// Manager prepares the memory view for a session.
type Manager struct {
	store      Store
	summarizer Summarizer
	timeout    time.Duration
	log        *logger.Logger
}

// NewManager constructs a Manager.  A zero timeout leaves the summarisation
// call bounded only by the caller's context.
func NewManager(store Store, summarizer Summarizer, timeout time.Duration, log *logger.Logger) *Manager {
	return &Manager{store: store, summarizer: summarizer, timeout: timeout, log: log.With("component", "memory")}
}

// Prepare reads the session history and returns the view for this turn,
// regenerating the summary when the history has grown past SummarizeAbove.
func (m *Manager) Prepare(ctx context.Context, sessionID string) (View, error) {
	turns, err := m.store.ListTurns(ctx, sessionID)
	if err != nil {
		return View{}, fmt.Errorf("%w for session %s: %v", ErrListTurns, sessionID, err)
	}

	var view View
	if len(turns) > SummarizeAbove {
		split := len(turns) - RecentWindow
		view.Result = m.resummarize(ctx, sessionID, turns[:split])
		view.Recent = turns[split:]
	} else {
		view.Recent = turns
	}

	summary, err := m.store.GetSummary(ctx, sessionID)
	if err != nil {
		m.log.Warn("read summary failed", "session_id", sessionID, "error", err)
		summary = ""
	}
	view.Summary = Truncate(summary, MaxSummaryChars)
	return view, nil
}

func (m *Manager) resummarize(ctx context.Context, sessionID string, older []pkg.Turn) SummaryResult {
	res := SummaryResult{Attempted: true}
	input := SummaryInput(older)
	if input == "" {
		metrics.SummariesTotal.WithLabelValues("skipped").Inc()
		return res
	}

	sctx := ctx
	if m.timeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}
	text, err := m.summarizer.Summarize(sctx, input)
	text = strings.TrimSpace(text)
	switch {
	case err != nil:
		res.Err = fmt.Errorf("summarize: %w", err)
	case text == "":
		res.Err = errors.New("summarize: empty summary")
	}
	if res.Err != nil {
		metrics.SummariesTotal.WithLabelValues("failed").Inc()
		m.log.Warn("summarization failed, keeping previous summary", "session_id", sessionID, "error", res.Err)
		return res
	}

	res.Text = text
	if err := m.store.SetSummary(ctx, sessionID, text); err != nil {
		res.Err = fmt.Errorf("store summary: %w", err)
		metrics.SummariesTotal.WithLabelValues("failed").Inc()
		m.log.Warn("storing summary failed", "session_id", sessionID, "error", err)
		return res
	}
	res.Stored = true
	metrics.SummariesTotal.WithLabelValues("stored").Inc()
	return res
}

// SummaryInput selects the user turns among older, keeps the most recent
// MaxSummaryInputs of them and joins them oldest first.
func SummaryInput(older []pkg.Turn) string {
	var msgs []string
	for _, t := range older {
		if t.Role == pkg.RoleUser {
			msgs = append(msgs, t.Content)
		}
	}
	if len(msgs) > MaxSummaryInputs {
		msgs = msgs[len(msgs)-MaxSummaryInputs:]
	}
	return strings.Join(msgs, "\n")
}

// Truncate shortens s to at most n runes.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
