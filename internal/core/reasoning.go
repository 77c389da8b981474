package core

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"medassist/internal/llm"
	"medassist/internal/logger"
	"medassist/internal/memory"
	"medassist/internal/metrics"
	"medassist/pkg"
)

const (
	ErrModelRequest = "Model request failed"
	ErrModelJSON    = "Model returned invalid JSON"
)

// TurnAppender records turns in the session history.
type TurnAppender interface {
	AppendTurn(ctx context.Context, sessionID string, role pkg.Role, content string) error
}

// Reasoner asks the chat model for a structured assessment of one message.
type Reasoner struct {
	llm     llm.Client
	turns   TurnAppender
	timeout time.Duration
	log     *logger.Logger
}

// NewReasoner constructs a Reasoner.  timeout bounds each model call; zero
// leaves it to the caller's context.
func NewReasoner(client llm.Client, turns TurnAppender, timeout time.Duration, log *logger.Logger) *Reasoner {
	return &Reasoner{llm: client, turns: turns, timeout: timeout, log: log.With("component", "reasoning")}
}

// Messages composes the model input: the system prompt, the verbatim recent
// turns and the current message.
func Messages(message string, view memory.View, evidence []string) []llm.Message {
	msgs := make([]llm.Message, 0, len(view.Recent)+2)
	msgs = append(msgs, llm.Message{Role: "system", Content: ReasoningSystemPrompt(view.Summary, evidence)})
	for _, t := range view.Recent {
		msgs = append(msgs, llm.Message{Role: string(t.Role), Content: t.Content})
	}
	return append(msgs, llm.Message{Role: string(pkg.RoleUser), Content: message})
}

// Assess returns the assessment for message.  A failed model call yields an
// error-tagged assessment and records nothing.  Otherwise the user message and
// the serialised assessment are appended to the history, even when the reply
// could not be decoded.
func (r *Reasoner) Assess(ctx context.Context, sessionID, message string, view memory.View, evidence []string) pkg.Assessment {
	callCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	content, err := r.llm.Chat(callCtx, Messages(message, view, evidence))
	if err != nil {
		metrics.ModelFailures.WithLabelValues("request").Inc()
		r.log.Error("model request failed", "session_id", sessionID, "duration", time.Since(start), "error", err)
		return pkg.Assessment{Error: ErrModelRequest}
	}

	a, err := decodeAssessment(content)
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &typeErr):
		r.log.Warn("assessment field has unexpected type", "session_id", sessionID, "field", typeErr.Field, "error", err)
	case err != nil:
		metrics.ModelFailures.WithLabelValues("decode").Inc()
		r.log.Warn("model returned invalid JSON", "session_id", sessionID, "error", err)
		a = pkg.Assessment{Error: ErrModelJSON, RawResponse: content}
	}
	r.log.Debug("assessment ready", "session_id", sessionID, "severity", a.Severity(), "conditions", len(a.PossibleConditions), "duration", time.Since(start))

	r.record(ctx, sessionID, message, a)
	return a
}

func (r *Reasoner) record(ctx context.Context, sessionID, message string, a pkg.Assessment) {
	if err := r.turns.AppendTurn(ctx, sessionID, pkg.RoleUser, message); err != nil {
		r.log.Error("failed to store user turn", "session_id", sessionID, "error", err)
		return
	}
	if err := r.turns.AppendTurn(ctx, sessionID, pkg.RoleAssistant, a.JSON()); err != nil {
		r.log.Error("failed to store assistant turn", "session_id", sessionID, "error", err)
	}
}

var errNotObject = errors.New("top-level value is not an object")

// decodeAssessment parses a model reply.  Only malformed JSON or a top-level
// value other than an object is fatal; a field of the wrong type is reported
// as a *json.UnmarshalTypeError alongside the rest of the decoded assessment.
func decodeAssessment(content string) (pkg.Assessment, error) {
	raw := []byte(strings.TrimSpace(content))
	var top any
	if err := json.Unmarshal(raw, &top); err != nil {
		return pkg.Assessment{}, err
	}
	if _, ok := top.(map[string]any); !ok {
		return pkg.Assessment{}, errNotObject
	}
	var a pkg.Assessment
	err := json.Unmarshal(raw, &a)
	return a, err
}
