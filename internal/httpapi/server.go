// Package httpapi exposes the tutoring engine and the expression store over
// HTTP. It translates JSON requests into engine calls and engine errors into
// status codes; no practice logic lives here.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/phraseloop/phraseloop/internal/dialogue"
	"github.com/phraseloop/phraseloop/internal/engine"
	"github.com/phraseloop/phraseloop/internal/expression"
	"github.com/phraseloop/phraseloop/internal/health"
	"github.com/phraseloop/phraseloop/internal/observe"
	"github.com/phraseloop/phraseloop/internal/session"
)

// Server holds the HTTP handler dependencies.
type Server struct {
	engine      *engine.Engine
	expressions expression.Store
	health      *health.Handler
	metrics     *observe.Metrics
}

// New creates a [Server]. A nil health handler serves checker-less probes; a
// nil metrics disables the observability middleware.
func New(eng *engine.Engine, exprs expression.Store, h *health.Handler, m *observe.Metrics) *Server {
	if h == nil {
		h = health.New()
	}
	return &Server{engine: eng, expressions: exprs, health: h, metrics: m}
}

// Handler builds the full route table, wrapped in the observability
// middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Practice sessions.
	mux.HandleFunc("POST /api/sessions", s.startSession)
	mux.HandleFunc("POST /api/sessions/{id}/answers", s.processAnswer)
	mux.HandleFunc("GET /api/sessions/{id}/progress", s.progress)
	mux.HandleFunc("GET /api/sessions/{id}/prompt", s.prompt)
	mux.HandleFunc("GET /api/sessions/{id}/summary", s.summary)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.endSession)

	// Expression CRUD.
	mux.HandleFunc("POST /api/expressions", s.createExpression)
	mux.HandleFunc("GET /api/expressions", s.listExpressions)
	mux.HandleFunc("GET /api/expressions/{id}", s.getExpression)
	mux.HandleFunc("DELETE /api/expressions/{id}", s.deleteExpression)

	// Operational endpoints.
	s.health.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	if s.metrics == nil {
		return mux
	}
	return observe.Middleware(s.metrics)(mux)
}

// ── Request / response shapes ─────────────────────────────────────────────────

type startSessionRequest struct {
	OwnerID       string   `json:"owner_id"`
	ExpressionIDs []string `json:"expression_ids"`
}

type scenarioBody struct {
	ScenarioText   string `json:"scenario_text"`
	InitialMessage string `json:"initial_message"`
}

type sessionBody struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	CurrentID   string    `json:"current_expression_id"`
	Expressions int       `json:"expression_count"`
	CreatedAt   time.Time `json:"created_at"`
}

type startSessionResponse struct {
	Session  sessionBody  `json:"session"`
	Scenario scenarioBody `json:"scenario"`
}

type answerRequest struct {
	Utterance string `json:"utterance"`
}

type answerResponse struct {
	Outcome         string       `json:"outcome"`
	Score           float64      `json:"score"`
	ExpressionID    string       `json:"expression_id,omitempty"`
	ExpressionText  string       `json:"expression_text,omitempty"`
	Feedback        string       `json:"feedback"`
	Hint            string       `json:"hint,omitempty"`
	SessionComplete bool         `json:"session_complete"`
	Progress        progressBody `json:"progress"`
}

type progressBody struct {
	CompletedCount        int    `json:"completed_count"`
	TotalCount            int    `json:"total_count"`
	CurrentExpressionID   string `json:"current_expression_id,omitempty"`
	CurrentExpressionText string `json:"current_expression_text,omitempty"`
	Complete              bool   `json:"complete"`
}

type promptResponse struct {
	ExpressionID   string       `json:"expression_id,omitempty"`
	ExpressionText string       `json:"expression_text,omitempty"`
	Scenario       scenarioBody `json:"scenario"`
	Complete       bool         `json:"complete"`
}

type summaryResponse struct {
	SessionID            string          `json:"session_id"`
	TotalExpressions     int             `json:"total_expressions"`
	CompletedExpressions int             `json:"completed_expressions"`
	TotalAttempts        int             `json:"total_attempts"`
	CorrectUsages        int             `json:"correct_usages"`
	DurationSeconds      float64         `json:"duration_seconds"`
	Complete             bool            `json:"complete"`
	Results              []summaryResult `json:"results"`
}

type summaryResult struct {
	ExpressionID string `json:"expression_id"`
	Text         string `json:"text"`
	Completed    bool   `json:"completed"`
	CorrectUsage bool   `json:"correct_usage"`
	Attempts     int    `json:"attempts"`
}

type createExpressionRequest struct {
	OwnerID     string `json:"owner_id"`
	Text        string `json:"text"`
	Translation string `json:"translation,omitempty"`
}

type expressionBody struct {
	ID           string     `json:"id"`
	OwnerID      string     `json:"owner_id"`
	Text         string     `json:"text"`
	Translation  string     `json:"translation,omitempty"`
	CorrectCount int        `json:"correct_count"`
	TotalCount   int        `json:"total_count"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// ── Session handlers ──────────────────────────────────────────────────────────

func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}

	started, err := s.engine.StartSession(r.Context(), req.OwnerID, req.ExpressionIDs)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, startSessionResponse{
		Session: sessionBody{
			ID:          started.Session.ID,
			OwnerID:     started.Session.OwnerID,
			CurrentID:   started.Session.CurrentID,
			Expressions: len(started.Session.Expressions),
			CreatedAt:   started.Session.CreatedAt,
		},
		Scenario: toScenarioBody(started.Scenario),
	})
}

func (s *Server) processAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}

	ev, err := s.engine.ProcessAnswer(r.Context(), r.PathValue("id"), req.Utterance)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, answerResponse{
		Outcome:         string(ev.Outcome),
		Score:           ev.Score,
		ExpressionID:    ev.ExpressionID,
		ExpressionText:  ev.ExpressionText,
		Feedback:        ev.Feedback,
		Hint:            ev.Hint,
		SessionComplete: ev.SessionComplete,
		Progress:        toProgressBody(ev.Progress),
	})
}

func (s *Server) progress(w http.ResponseWriter, r *http.Request) {
	p, err := s.engine.Progress(r.PathValue("id"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProgressBody(p))
}

func (s *Server) prompt(w http.ResponseWriter, r *http.Request) {
	p, err := s.engine.NextPrompt(r.Context(), r.PathValue("id"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, promptResponse{
		ExpressionID:   p.ExpressionID,
		ExpressionText: p.ExpressionText,
		Scenario:       toScenarioBody(p.Scenario),
		Complete:       p.Complete,
	})
}

func (s *Server) summary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.engine.Summarize(r.PathValue("id"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	resp := summaryResponse{
		SessionID:            sum.SessionID,
		TotalExpressions:     sum.TotalExpressions,
		CompletedExpressions: sum.CompletedExpressions,
		TotalAttempts:        sum.TotalAttempts,
		CorrectUsages:        sum.CorrectUsages,
		DurationSeconds:      sum.DurationSeconds,
		Complete:             sum.Complete,
		Results:              make([]summaryResult, len(sum.Results)),
	}
	for i, res := range sum.Results {
		resp.Results[i] = summaryResult{
			ExpressionID: res.ExpressionID,
			Text:         res.Text,
			Completed:    res.Completed,
			CorrectUsage: res.CorrectUsage,
			Attempts:     res.Attempts,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) endSession(w http.ResponseWriter, r *http.Request) {
	s.engine.EndSession(r.Context(), r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

// ── Expression handlers ───────────────────────────────────────────────────────

func (s *Server) createExpression(w http.ResponseWriter, r *http.Request) {
	var req createExpressionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	if req.OwnerID == "" {
		writeError(w, http.StatusBadRequest, "owner_id is required")
		return
	}

	created, err := s.expressions.Create(r.Context(), expression.Expression{
		OwnerID:     req.OwnerID,
		Text:        strings.TrimSpace(req.Text),
		Translation: req.Translation,
	})
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toExpressionBody(created))
}

func (s *Server) listExpressions(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner_id")
	if owner == "" {
		writeError(w, http.StatusBadRequest, "owner_id query parameter is required")
		return
	}

	list, err := s.expressions.List(r.Context(), owner)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	resp := make([]expressionBody, len(list))
	for i, e := range list {
		resp[i] = toExpressionBody(e)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getExpression(w http.ResponseWriter, r *http.Request) {
	e, err := s.expressions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toExpressionBody(e))
}

func (s *Server) deleteExpression(w http.ResponseWriter, r *http.Request) {
	if err := s.expressions.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func toScenarioBody(sc dialogue.Scenario) scenarioBody {
	return scenarioBody{ScenarioText: sc.ScenarioText, InitialMessage: sc.InitialMessage}
}

func toProgressBody(p session.Progress) progressBody {
	return progressBody{
		CompletedCount:        p.CompletedCount,
		TotalCount:            p.TotalCount,
		CurrentExpressionID:   p.CurrentExpressionID,
		CurrentExpressionText: p.CurrentExpressionText,
		Complete:              p.Complete,
	}
}

func toExpressionBody(e expression.Expression) expressionBody {
	b := expressionBody{
		ID:           e.ID,
		OwnerID:      e.OwnerID,
		Text:         e.Text,
		Translation:  e.Translation,
		CorrectCount: e.CorrectCount,
		TotalCount:   e.TotalCount,
		CreatedAt:    e.CreatedAt,
	}
	if !e.LastUsedAt.IsZero() {
		t := e.LastUsedAt
		b.LastUsedAt = &t
	}
	return b
}

// writeEngineError maps domain errors onto HTTP status codes.
func writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, engine.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrNotFound), errors.Is(err, expression.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, engine.ErrSessionComplete):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, expression.ErrDuplicateID):
		writeError(w, http.StatusConflict, err.Error())
	default:
		slog.LogAttrs(r.Context(), slog.LevelError, "request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("err", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failure"}`, http.StatusInternalServerError)
	}
}
