package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"medassist/internal/logger"
	"medassist/pkg"
)

const maxBodyBytes = 1 << 20

// Replier answers one chat message.
type Replier interface {
	Reply(ctx context.Context, sessionID, message string, city *string) string
}

// SessionReader exposes a session's history for inspection.
type SessionReader interface {
	ListTurns(ctx context.Context, sessionID string) ([]pkg.Turn, error)
	GetSummary(ctx context.Context, sessionID string) (string, error)
}

// DrugLookup fetches reference information about a drug.
type DrugLookup interface {
	DrugInformation(ctx context.Context, name string) (pkg.DrugRecord, error)
}

// Server bundles together the dependencies required by HTTP handlers.  It
// implements http.Handler so it can be passed to http.Server.
type Server struct {
	Chat     Replier
	Sessions SessionReader
	Drugs    DrugLookup
	log      *logger.Logger
	router   chi.Router
}

// NewServer constructs a Server and its routes.
func NewServer(chat Replier, sessions SessionReader, drugs DrugLookup, log *logger.Logger) *Server {
	s := &Server{Chat: chat, Sessions: sessions, Drugs: drugs, log: log.With("component", "http")}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/healthz"))

	r.Post("/chat", s.handleChat)
	r.Get("/sessions/{id}", s.handleSession)
	r.Get("/sessions/{id}/stream", s.handleSessionSSE)
	r.Get("/drugs/{name}", s.handleDrug)
	r.Handle("/metrics", promhttp.Handler())

	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", chiMiddleware.GetReqID(r.Context()),
		)
	})
}

// handleChat runs one turn and returns the answer as plain text.  A missing
// session id starts a new session whose id is returned in X-Session-ID.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req pkg.ChatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		http.Error(w, "empty message", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		req.SessionID = uuid.NewString()
	}

	reply := s.Chat.Reply(r.Context(), req.SessionID, req.Message, req.City)

	w.Header().Set("X-Session-ID", req.SessionID)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, reply)
}

// handleSession returns the rolling summary and stored turns of a session.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := chi.URLParam(r, "id")
	summary, err := s.Sessions.GetSummary(ctx, sessionID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	turns, err := s.Sessions.ListTurns(ctx, sessionID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if turns == nil {
		turns = []pkg.Turn{}
	}
	resp := map[string]interface{}{
		"session_id": sessionID,
		"summary":    summary,
		"turns":      turns,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// handleSessionSSE sends the current summary as a single server-sent event
// and closes the stream.
func (s *Server) handleSessionSSE(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	if err := s.sendSummaryEvent(r.Context(), w, sessionID); err != nil {
		s.log.Warn("failed to send summary event", "session_id", sessionID, "error", err)
		return
	}
	flusher.Flush()
}

func (s *Server) sendSummaryEvent(ctx context.Context, w io.Writer, sessionID string) error {
	summary, err := s.Sessions.GetSummary(ctx, sessionID)
	if err != nil {
		return err
	}
	if summary == "" {
		return nil
	}
	data, err := json.Marshal(map[string]interface{}{
		"type":       "summary_update",
		"session_id": sessionID,
		"summary":    summary,
	})
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, "data: "+string(data)+"\n\n")
	return err
}

// handleDrug returns the tool server's record for a drug.  Unknown drugs come
// back as a record carrying an "error" key and a 404.
func (s *Server) handleDrug(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(chi.URLParam(r, "name"))
	if name == "" {
		http.Error(w, "missing drug name", http.StatusBadRequest)
		return
	}
	rec, err := s.Drugs.DrugInformation(r.Context(), name)
	if err != nil {
		s.log.Warn("drug lookup failed", "drug", name, "error", err)
		http.Error(w, "drug lookup failed", http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, missing := rec["error"]; missing {
		w.WriteHeader(http.StatusNotFound)
	}
	json.NewEncoder(w).Encode(rec)
}
