package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/statement-engine/internal/api/middleware"
	"github.com/dvloznov/statement-engine/internal/domain"
	"github.com/dvloznov/statement-engine/internal/jobs"
	"github.com/dvloznov/statement-engine/internal/patterns"
	"github.com/dvloznov/statement-engine/internal/reconcile"
	"github.com/dvloznov/statement-engine/internal/session"
	"github.com/dvloznov/statement-engine/internal/store"
	"github.com/rs/zerolog"
)

// SessionsHandler handles upload-session endpoints.
type SessionsHandler struct {
	orch       *session.Orchestrator
	sessions   store.Sessions
	candidates store.Candidates
	artifacts  store.Artifacts
	maxUpload  int64
	log        zerolog.Logger
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(orch *session.Orchestrator, sessions store.Sessions, candidates store.Candidates, artifacts store.Artifacts, maxUpload int64, log zerolog.Logger) *SessionsHandler {
	return &SessionsHandler{
		orch:       orch,
		sessions:   sessions,
		candidates: candidates,
		artifacts:  artifacts,
		maxUpload:  maxUpload,
		log:        log,
	}
}

// CreateSession handles POST /api/sessions (multipart upload).
func (h *SessionsHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		middleware.WriteError(w, http.StatusRequestEntityTooLarge, "Upload too large or malformed")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Failed to read upload")
		return
	}

	sess, err := h.orch.Create(ctx, session.CreateRequest{
		UserID:           r.FormValue("user_id"),
		AccountID:        r.FormValue("account_id"),
		Filename:         header.Filename,
		ContentType:      header.Header.Get("Content-Type"),
		Data:             data,
		Password:         r.FormValue("password"),
		AICategorization: r.FormValue("ai_categorization") == "true",
	})
	if err != nil {
		switch {
		case errors.Is(err, session.ErrUploadTooLarge):
			middleware.WriteError(w, http.StatusRequestEntityTooLarge, err.Error())
		case errors.Is(err, session.ErrUnsupportedUpload):
			middleware.WriteError(w, http.StatusUnsupportedMediaType, err.Error())
		default:
			h.log.Error().Err(err).Msg("Failed to create session")
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to create session")
		}
		return
	}

	middleware.WriteJSON(w, http.StatusAccepted, sess)
}

// GetSession handles GET /api/sessions/{id}.
func (h *SessionsHandler) GetSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	sess, err := h.sessions.Get(r.Context(), sessionID)
	if err != nil {
		middleware.WriteError(w, http.StatusNotFound, "Session not found")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, sess)
}

// ListSessions handles GET /api/sessions.
func (h *SessionsHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))
	offset, _ := strconv.Atoi(query.Get("offset"))

	sessions, err := h.sessions.List(r.Context(), limit, offset)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list sessions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// ListCandidates handles GET /api/sessions/{id}/candidates.
func (h *SessionsHandler) ListCandidates(w http.ResponseWriter, r *http.Request, sessionID string) {
	ctx := r.Context()

	if _, err := h.sessions.Get(ctx, sessionID); err != nil {
		middleware.WriteError(w, http.StatusNotFound, "Session not found")
		return
	}

	cands, err := h.candidates.ListBySession(ctx, sessionID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list candidates")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list candidates")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"candidates": cands,
		"count":      len(cands),
	})
}

// ListArtifacts handles GET /api/sessions/{id}/artifacts.
func (h *SessionsHandler) ListArtifacts(w http.ResponseWriter, r *http.Request, sessionID string) {
	ctx := r.Context()

	if _, err := h.sessions.Get(ctx, sessionID); err != nil {
		middleware.WriteError(w, http.StatusNotFound, "Session not found")
		return
	}

	arts, err := h.artifacts.ListBySession(ctx, sessionID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list parse artifacts")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list parse artifacts")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"artifacts": arts,
		"count":     len(arts),
	})
}

// CommitCandidates handles POST /api/sessions/{id}/commit.
func (h *SessionsHandler) CommitCandidates(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req struct {
		CandidateIDs    []string `json:"candidate_ids"`
		AccountOverride string   `json:"account_override"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.CandidateIDs) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "candidate_ids is required")
		return
	}

	res, err := h.orch.CommitCandidates(r.Context(), sessionID, req.CandidateIDs, req.AccountOverride)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotReviewable) {
			middleware.WriteError(w, http.StatusConflict, err.Error())
			return
		}
		if errors.Is(err, store.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Session not found")
			return
		}
		h.log.Error().Err(err).Str("session_id", sessionID).Msg("Commit failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Commit failed")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, res)
}

// CancelSession handles POST /api/sessions/{id}/cancel.
func (h *SessionsHandler) CancelSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	sess, err := h.orch.Cancel(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Session not found")
			return
		}
		if errors.Is(err, session.ErrSessionTerminal) {
			middleware.WriteError(w, http.StatusConflict, err.Error())
			return
		}
		h.log.Error().Err(err).Str("session_id", sessionID).Msg("Cancel failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Cancel failed")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, sess)
}

// SubmitPassword handles POST /api/sessions/{id}/password.
func (h *SessionsHandler) SubmitPassword(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Password == "" {
		middleware.WriteError(w, http.StatusBadRequest, "password is required")
		return
	}

	sess, err := h.orch.SubmitPassword(r.Context(), sessionID, req.Password)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Session not found")
			return
		}
		if errors.Is(err, session.ErrPasswordNotExpected) {
			middleware.WriteError(w, http.StatusConflict, err.Error())
			return
		}
		h.log.Error().Err(err).Str("session_id", sessionID).Msg("Password submission failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Password submission failed")
		return
	}
	middleware.WriteJSON(w, http.StatusAccepted, sess)
}

// ReconcileHandler handles balance reconciliation endpoints.
type ReconcileHandler struct {
	reconciler *reconcile.Reconciler
	balances   store.Balances
	log        zerolog.Logger
}

// NewReconcileHandler creates a new reconcile handler.
func NewReconcileHandler(reconciler *reconcile.Reconciler, balances store.Balances, log zerolog.Logger) *ReconcileHandler {
	return &ReconcileHandler{reconciler: reconciler, balances: balances, log: log}
}

// Reconcile handles POST /api/reconcile.
func (h *ReconcileHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountID        string        `json:"account_id"`
		PeriodStart      string        `json:"period_start"`
		PeriodEnd        string        `json:"period_end"`
		StatementBalance domain.Amount `json:"statement_balance"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.AccountID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "account_id is required")
		return
	}

	start, err := civil.ParseDate(req.PeriodStart)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid period_start (want YYYY-MM-DD)")
		return
	}
	end, err := civil.ParseDate(req.PeriodEnd)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid period_end (want YYYY-MM-DD)")
		return
	}

	record, err := h.reconciler.Reconcile(r.Context(), reconcile.Request{
		AccountID:        req.AccountID,
		Start:            start,
		End:              end,
		StatementBalance: req.StatementBalance,
	})
	if err != nil {
		h.log.Error().Err(err).Str("account_id", req.AccountID).Msg("Reconciliation failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Reconciliation failed")
		return
	}

	if err := h.balances.Insert(r.Context(), record); err != nil {
		h.log.Error().Err(err).Msg("Failed to store balance record")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to store balance record")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, record)
}

// ListBalances handles GET /api/balances.
func (h *ReconcileHandler) ListBalances(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("account_id")
	if accountID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "account_id is required")
		return
	}

	records, err := h.balances.ListByAccount(r.Context(), accountID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list balance records")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list balance records")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"records": records,
		"count":   len(records),
	})
}

// PatternsHandler handles merchant-pattern endpoints.
type PatternsHandler struct {
	store patterns.Store
	log   zerolog.Logger
}

// NewPatternsHandler creates a new patterns handler.
func NewPatternsHandler(store patterns.Store, log zerolog.Logger) *PatternsHandler {
	return &PatternsHandler{store: store, log: log}
}

// ListPatterns handles GET /api/patterns.
func (h *PatternsHandler) ListPatterns(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.List(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list patterns")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list patterns")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"patterns": list,
		"count":    len(list),
	})
}

// CreatePattern handles POST /api/patterns. It records a user-taught mapping
// from a description pattern to a merchant and category.
func (h *PatternsHandler) CreatePattern(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Pattern      string `json:"pattern"`
		MerchantName string `json:"merchant_name"`
		CategoryName string `json:"category_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Pattern == "" || req.CategoryName == "" {
		middleware.WriteError(w, http.StatusBadRequest, "pattern and category_name are required")
		return
	}

	p, err := h.store.Learn(r.Context(), req.Pattern, req.MerchantName, req.CategoryName)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to learn pattern")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to learn pattern")
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, p)
}

// ConfirmPattern handles POST /api/patterns/{id}/confirm.
func (h *PatternsHandler) ConfirmPattern(w http.ResponseWriter, r *http.Request, patternID string) {
	h.reinforce(w, r, patternID, true)
}

// RejectPattern handles POST /api/patterns/{id}/reject.
func (h *PatternsHandler) RejectPattern(w http.ResponseWriter, r *http.Request, patternID string) {
	h.reinforce(w, r, patternID, false)
}

func (h *PatternsHandler) reinforce(w http.ResponseWriter, r *http.Request, patternID string, confirmed bool) {
	ctx := r.Context()

	if err := h.store.Reinforce(ctx, patternID, confirmed); err != nil {
		middleware.WriteError(w, http.StatusNotFound, "Pattern not found")
		return
	}
	p, err := h.store.Get(ctx, patternID)
	if err != nil {
		middleware.WriteError(w, http.StatusNotFound, "Pattern not found")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, p)
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		store: store,
		log:   log,
	}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	ctx := r.Context()

	job, err := h.store.GetJob(ctx, jobID)
	if err != nil {
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Parse query parameters
	query := r.URL.Query()
	filter := jobs.JobFilter{
		SessionID: query.Get("session_id"),
		Status:    jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(ctx, filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}
