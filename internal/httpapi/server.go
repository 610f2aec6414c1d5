// Package httpapi adapts the Council Processing Subsystem's five external
// operations (spec.md §6) onto Go 1.22 pattern-based http.ServeMux routing,
// in the teacher's request/response idiom (apiResponse envelope, stdlib
// log, uuid path params).
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/councilml/council/internal/council"
	"github.com/councilml/council/internal/registry"
	"github.com/councilml/council/internal/transport"
)

// SessionCreator allocates new sessions, returning a distinguishable error
// when the owning user is already at their configured limit.
type SessionCreator interface {
	Create(ctx context.Context, userID string) (*council.Session, error)
}

// Config holds the adapter-level knobs not already owned by the registry or
// orchestrator.
type Config struct {
	DefaultMode   council.Mode
	ValidModes    map[council.Mode]bool
	MaxContentLen int
	UpstreamReady func() bool
}

// Server wires the SessionCreator, SessionStore, Registry, Orchestrator and
// Stream Transport collaborators into HTTP handlers.
type Server struct {
	creator      SessionCreator
	store        council.SessionStore
	reg          *registry.Registry
	orchestrator *council.Orchestrator
	stream       *transport.Handler
	cfg          Config
}

// New constructs a Server.
func New(creator SessionCreator, store council.SessionStore, reg *registry.Registry, orchestrator *council.Orchestrator, stream *transport.Handler, cfg Config) *Server {
	if cfg.DefaultMode == "" {
		cfg.DefaultMode = council.ModeLite
	}
	return &Server{creator: creator, store: store, reg: reg, orchestrator: orchestrator, stream: stream, cfg: cfg}
}

// Handler returns the routed, CORS-wrapped http.Handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/sessions", s.handleCreateSession)
	mux.HandleFunc("POST /v1/sessions/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		s.handleSendMessage(w, r, r.PathValue("id"))
	})
	mux.HandleFunc("GET /v1/sessions/{id}/status", func(w http.ResponseWriter, r *http.Request) {
		s.handleStatus(w, r, r.PathValue("id"))
	})
	mux.HandleFunc("GET /v1/sessions/{id}/stream", func(w http.ResponseWriter, r *http.Request) {
		s.handleReconnect(w, r, r.PathValue("id"))
	})
	mux.HandleFunc("POST /v1/sessions/{id}/abort", func(w http.ResponseWriter, r *http.Request) {
		s.handleAbort(w, r, r.PathValue("id"))
	})
	return withCORS(mux)
}

// apiResponse is the unified envelope returned by every non-streaming
// endpoint.
type apiResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func encode(w http.ResponseWriter, statusCode int, data any, err error) {
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		w.WriteHeader(statusCode)
		_ = json.NewEncoder(w).Encode(apiResponse{Status: "ERROR", Message: err.Error()})
		return
	}
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(apiResponse{Status: "OK", Data: data})
}

// userID resolves the authenticated caller. Authentication itself is an
// out-of-scope collaborator per spec.md §1; this demo adapter reads the
// identity the upstream auth layer would have injected.
func userID(r *http.Request) string {
	return r.Header.Get("X-User-Id")
}

func validSessionID(raw string) bool {
	id, err := uuid.Parse(raw)
	if err != nil {
		return false
	}
	return id.Version() == 4
}

var errValidation = errors.New("validation error")

// --- 1. Create session ---------------------------------------------------

type createSessionResponse struct {
	SessionID string `json:"sessionId"`
	Title     string `json:"title"`
	CreatedAt string `json:"createdAt"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	u := userID(r)
	if u == "" {
		encode(w, http.StatusUnauthorized, nil, errValidation)
		return
	}
	sess, err := s.creator.Create(r.Context(), u)
	if err != nil {
		var limitErr *council.ErrSessionLimitReached
		if errors.As(err, &limitErr) {
			encode(w, http.StatusConflict, nil, err)
			return
		}
		encode(w, http.StatusInternalServerError, nil, err)
		return
	}
	encode(w, http.StatusOK, createSessionResponse{
		SessionID: sess.SessionID,
		Title:     sess.Title,
		CreatedAt: sess.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}, nil)
}

// --- 2. Send message ------------------------------------------------------

type sendMessageRequest struct {
	Content string `json:"content"`
	Mode    string `json:"mode"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request, sessionID string) {
	u := userID(r)
	if u == "" || !validSessionID(sessionID) {
		encode(w, http.StatusBadRequest, nil, errValidation)
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		encode(w, http.StatusBadRequest, nil, fmt.Errorf("%w: malformed body", errValidation))
		return
	}
	if n := utf8.RuneCountInString(req.Content); n == 0 || n > s.cfg.MaxContentLen {
		encode(w, http.StatusBadRequest, nil, fmt.Errorf("%w: content must be 1..%d characters", errValidation, s.cfg.MaxContentLen))
		return
	}
	mode := council.Mode(req.Mode)
	if mode == "" {
		mode = s.cfg.DefaultMode
	}
	if s.cfg.ValidModes != nil && !s.cfg.ValidModes[mode] {
		encode(w, http.StatusBadRequest, nil, fmt.Errorf("%w: unknown mode %q", errValidation, req.Mode))
		return
	}
	if s.cfg.UpstreamReady != nil && !s.cfg.UpstreamReady() {
		encode(w, http.StatusServiceUnavailable, nil, errors.New("unconfigured-upstream"))
		return
	}
	if s.reg.IsProcessing(u, sessionID) {
		encode(w, http.StatusConflict, nil, errors.New("already-processing"))
		return
	}
	if _, ok, err := s.store.Get(r.Context(), u, sessionID); err != nil {
		encode(w, http.StatusInternalServerError, nil, err)
		return
	} else if !ok {
		encode(w, http.StatusNotFound, nil, errors.New("session not found"))
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	abort := registry.NewJobHandle(cancel)
	// Register is the sole, atomic check-and-admit: it tests capacity and
	// installs the record under one lock acquisition, closing the TOCTOU
	// window a separate IsAtCapacity pre-check would leave between two
	// concurrent requests for distinct sessions, per spec.md §8.
	if _, ok := s.reg.Register(u, sessionID, req.Content, abort); !ok {
		cancel()
		encode(w, http.StatusTooManyRequests, nil, errors.New("at-capacity"))
		return
	}

	flusher := transport.NewHTTPFlusher(w)
	events := s.orchestrator.Process(ctx, u, sessionID, req.Content, mode)
	s.stream.ServeNewJob(ctx, flusher, u, sessionID, events, abort)
}

// --- 3. Status -------------------------------------------------------------

type statusResponse struct {
	IsProcessing   bool           `json:"isProcessing"`
	CanReconnect   bool           `json:"canReconnect"`
	CurrentStage   string         `json:"currentStage,omitempty"`
	PartialResults partialResults `json:"partialResults"`
}

type partialResults struct {
	Stage1Count int  `json:"stage1Count"`
	Stage2Count int  `json:"stage2Count"`
	HasStage3   bool `json:"hasStage3"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request, sessionID string) {
	u := userID(r)
	if u == "" || !validSessionID(sessionID) {
		encode(w, http.StatusBadRequest, nil, errValidation)
		return
	}
	snap, ok := s.reg.Snapshot(u, sessionID)
	if !ok {
		encode(w, http.StatusOK, statusResponse{IsProcessing: false, CanReconnect: false}, nil)
		return
	}
	encode(w, http.StatusOK, statusResponse{
		IsProcessing: true,
		CanReconnect: true,
		CurrentStage: snap.CurrentStage,
		PartialResults: partialResults{
			Stage1Count: len(snap.Stage1Results),
			Stage2Count: len(snap.Stage2Results),
			HasStage3:   snap.Stage3Content != "",
		},
	}, nil)
}

// --- 4. Reconnect -----------------------------------------------------------

func (s *Server) handleReconnect(w http.ResponseWriter, r *http.Request, sessionID string) {
	u := userID(r)
	if u == "" || !validSessionID(sessionID) {
		encode(w, http.StatusBadRequest, nil, errValidation)
		return
	}
	if !s.reg.IsProcessing(u, sessionID) {
		encode(w, http.StatusNotFound, nil, errors.New("no active processing"))
		return
	}
	flusher := transport.NewHTTPFlusher(w)
	if !s.stream.ServeReconnect(r.Context(), flusher, u, sessionID) {
		log.Printf("council: reconnect raced completion for %s/%s", u, sessionID)
		encode(w, http.StatusNotFound, nil, errors.New("no active processing"))
	}
}

// --- 5. Abort ----------------------------------------------------------------

func (s *Server) handleAbort(w http.ResponseWriter, r *http.Request, sessionID string) {
	u := userID(r)
	if u == "" || !validSessionID(sessionID) {
		encode(w, http.StatusBadRequest, nil, errValidation)
		return
	}
	if !s.reg.IsProcessing(u, sessionID) {
		encode(w, http.StatusNotFound, nil, errors.New("no active processing"))
		return
	}
	s.reg.Abort(u, sessionID)
	encode(w, http.StatusOK, map[string]bool{"aborted": true}, nil)
}
