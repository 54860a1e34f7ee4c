// Package web provides the HTTP API for veritest: session creation, listing
// and inspection, plus a websocket stream of pipeline progress events.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/veritest/veritest/internal/checkpoint"
	"github.com/veritest/veritest/internal/events"
	"github.com/veritest/veritest/internal/model"
	"github.com/veritest/veritest/internal/pipeline"
)

// Server provides the API handlers and state.
type Server struct {
	store  *checkpoint.Store
	orch   *pipeline.Orchestrator
	broker *events.Broker
}

// NewServer creates a new API server.
func NewServer(store *checkpoint.Store, orch *pipeline.Orchestrator, broker *events.Broker) *Server {
	return &Server{store: store, orch: orch, broker: broker}
}

// Routes returns the router for the API.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /api/generate", s.handleGenerate)
	mux.HandleFunc("POST /api/test", s.handleTest)
	mux.HandleFunc("POST /api/sessions/{id}/resume", s.handleResume)
	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("GET /api/sessions/{id}/events", s.handleStream)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type startRequest struct {
	Requirement   string `json:"requirement"`
	Function      string `json:"function,omitempty"`
	MaxIterations int    `json:"max_iterations,omitempty"`
}

type startResponse struct {
	SessionID string `json:"session_id"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	s.startSession(w, r, model.ModeGenerate)
}

func (s *Server) handleTest(w http.ResponseWriter, r *http.Request) {
	s.startSession(w, r, model.ModeTest)
}

// startSession validates the request, then runs the pipeline in the
// background and returns the session ID immediately so the caller can attach
// to the event stream.
func (s *Server) startSession(w http.ResponseWriter, r *http.Request, mode model.Mode) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	input := model.Input{Requirement: req.Requirement, Function: req.Function}
	if err := pipeline.ValidateInput(input, mode); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sessionID := uuid.NewString()
	go func() {
		if _, err := s.orch.StartSession(context.Background(), sessionID, input, mode, req.MaxIterations); err != nil {
			log.Error().Err(err).Str("session_id", sessionID).Msg("background session failed")
		}
	}()
	writeJSON(w, http.StatusAccepted, startResponse{SessionID: sessionID})
}

type resumeRequest struct {
	Implementation string `json:"implementation,omitempty"`
	Tests          string `json:"tests,omitempty"`
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	cp, err := s.store.Load(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNoSuchSession) {
			writeError(w, http.StatusNotFound, "no such session")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !pipeline.Resumable(cp) {
		writeError(w, http.StatusConflict, "session is not resumable")
		return
	}

	var req resumeRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "malformed request body")
			return
		}
	}
	var updated *model.Artifact
	if req.Implementation != "" || req.Tests != "" {
		artifact := cp.Artifact
		if req.Implementation != "" {
			artifact.Implementation = req.Implementation
		}
		if req.Tests != "" {
			artifact.Tests = req.Tests
		}
		updated = &artifact
	}

	go func() {
		if _, err := s.orch.Resume(context.Background(), sessionID, updated); err != nil {
			log.Error().Err(err).Str("session_id", sessionID).Msg("background resume failed")
		}
	}()
	writeJSON(w, http.StatusAccepted, startResponse{SessionID: sessionID})
}

type sessionSummary struct {
	SessionID string       `json:"session_id"`
	Mode      model.Mode   `json:"mode"`
	Stage     model.Stage  `json:"stage"`
	Status    model.Status `json:"status,omitempty"`
	Iteration int          `json:"iteration"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.store.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]sessionSummary, 0, len(summaries))
	for _, sum := range summaries {
		out = append(out, sessionSummary{
			SessionID: sum.SessionID,
			Mode:      sum.Mode,
			Stage:     sum.Stage,
			Status:    sum.Status,
			Iteration: sum.Iteration,
			CreatedAt: sum.CreatedAt,
			UpdatedAt: sum.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type sessionDetail struct {
	SessionID      string                `json:"session_id"`
	Mode           model.Mode            `json:"mode"`
	Stage          model.Stage           `json:"stage"`
	Status         model.Status          `json:"status,omitempty"`
	Message        string                `json:"message,omitempty"`
	Iteration      int                   `json:"iteration"`
	MaxIterations  int                   `json:"max_iterations"`
	Input          model.Input           `json:"input"`
	Artifact       model.Artifact        `json:"artifact"`
	LastResult     *model.SandboxResult  `json:"last_result,omitempty"`
	Classification *model.Classification `json:"classification,omitempty"`
	Resumable      bool                  `json:"resumable"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	cp, err := s.store.Load(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, checkpoint.ErrNoSuchSession) {
			writeError(w, http.StatusNotFound, "no such session")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sessionDetail{
		SessionID:      cp.SessionID,
		Mode:           cp.Mode,
		Stage:          cp.Stage,
		Status:         cp.Status,
		Message:        cp.Message,
		Iteration:      cp.Iteration,
		MaxIterations:  cp.MaxIterations,
		Input:          cp.Input,
		Artifact:       cp.Artifact,
		LastResult:     cp.LastResult,
		Classification: cp.LastClassification,
		Resumable:      pipeline.Resumable(cp),
		CreatedAt:      cp.CreatedAt,
		UpdatedAt:      cp.UpdatedAt,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("failed to write response")
	}
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}
