package core

import (
	"context"
	"strings"

	"medassist/internal/logger"
	"medassist/internal/memory"
)

// KnownCities are recognised when mentioned inside a message.
var KnownCities = []string{"Hyderabad", "Bangalore", "Mumbai", "Delhi"}

// Store is the storage collaborator for a chat session.
type Store interface {
	memory.Store
	TurnAppender
	GetCity(ctx context.Context, sessionID string) (string, error)
	SetCity(ctx context.Context, sessionID, city string) error
}

// Assistant answers patient messages.  It resolves the session's city and
// hands the turn to the orchestrator.
type Assistant struct {
	store    Store
	pipeline *Orchestrator
	log      *logger.Logger
}

// NewAssistant constructs an Assistant.
func NewAssistant(store Store, pipeline *Orchestrator, log *logger.Logger) *Assistant {
	return &Assistant{store: store, pipeline: pipeline, log: log.With("component", "assistant")}
}

// Reply produces the answer for message.  An explicit city wins over one
// mentioned in the message, which wins over the city remembered for the
// session.  A supplied or detected city is remembered.
func (s *Assistant) Reply(ctx context.Context, sessionID, message string, city *string) string {
	resolved := ""
	if city != nil {
		resolved = strings.TrimSpace(*city)
	}
	if resolved == "" {
		resolved = DetectCity(message)
	}

	if resolved != "" {
		if err := s.store.SetCity(ctx, sessionID, resolved); err != nil {
			s.log.Warn("failed to remember city", "session_id", sessionID, "error", err)
		}
	} else {
		stored, err := s.store.GetCity(ctx, sessionID)
		if err != nil {
			s.log.Warn("failed to read city", "session_id", sessionID, "error", err)
		}
		resolved = stored
	}

	if resolved == "" {
		return s.pipeline.Run(ctx, sessionID, message, nil)
	}
	return s.pipeline.Run(ctx, sessionID, message, &resolved)
}

// DetectCity returns the first known city mentioned in message, or "".
func DetectCity(message string) string {
	m := strings.ToLower(message)
	for _, c := range KnownCities {
		if strings.Contains(m, strings.ToLower(c)) {
			return c
		}
	}
	return ""
}
