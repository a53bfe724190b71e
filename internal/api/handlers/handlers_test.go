package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/statement-engine/internal/config"
	"github.com/dvloznov/statement-engine/internal/detect"
	"github.com/dvloznov/statement-engine/internal/domain"
	"github.com/dvloznov/statement-engine/internal/jobs"
	"github.com/dvloznov/statement-engine/internal/jobs/inmemory"
	"github.com/dvloznov/statement-engine/internal/normalize"
	"github.com/dvloznov/statement-engine/internal/parser"
	"github.com/dvloznov/statement-engine/internal/patterns"
	"github.com/dvloznov/statement-engine/internal/reconcile"
	"github.com/dvloznov/statement-engine/internal/session"
	"github.com/dvloznov/statement-engine/internal/storage"
	"github.com/dvloznov/statement-engine/internal/store"
)

type dropPublisher struct{}

func (dropPublisher) PublishParseStatement(ctx context.Context, job *jobs.ParseStatementJob) error {
	return nil
}
func (dropPublisher) Close() error { return nil }

type fixture struct {
	handler      *SessionsHandler
	orch         *session.Orchestrator
	sessions     *store.MemorySessions
	candidates   *store.MemoryCandidates
	transactions *store.MemoryTransactions
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.Default()

	f := &fixture{
		sessions:     store.NewMemorySessions(),
		candidates:   store.NewMemoryCandidates(),
		transactions: store.NewMemoryTransactions(),
	}
	f.orch = session.New(session.Deps{
		Sessions:     f.sessions,
		Candidates:   f.candidates,
		Transactions: f.transactions,
		Links:        store.NewMemoryLinks(),
		Artifacts:    store.NewMemoryArtifacts(),
		Blobs:        storage.NewMemory(),
		Escalator:    parser.NewEscalator(cfg.EscalateUnparsedRatio, parser.NewColumnarParser()),
		Normalizer:   normalize.New(patterns.NewMemoryStore(), "GBP"),
		Detector:     detect.New(cfg.DuplicateWindowDays, cfg.AutoConfirmThreshold),
		Publisher:    dropPublisher{},
	}, cfg)
	f.handler = NewSessionsHandler(f.orch, f.sessions, f.candidates, store.NewMemoryArtifacts(), cfg.MaxUploadBytes, zerolog.Nop())
	return f
}

const sampleCSV = "Date,Description,Amount\n" +
	"2024-01-05,STARBUCKS #123,-4.50\n" +
	"2024-01-06,SALARY,+1500.00\n"

func multipartUpload(t *testing.T, filename, contents string, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(contents))
	require.NoError(t, err)

	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/sessions", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeSession(t *testing.T, rec *httptest.ResponseRecorder) *domain.UploadSession {
	t.Helper()
	var sess domain.UploadSession
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))
	return &sess
}

func TestCreateSession(t *testing.T) {
	f := newFixture(t)

	rec := httptest.NewRecorder()
	f.handler.CreateSession(rec, multipartUpload(t, "statement.csv", sampleCSV, map[string]string{
		"user_id":    "user-1",
		"account_id": "acc-1",
	}))

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	sess := decodeSession(t, rec)
	assert.NotEmpty(t, sess.SessionID)
	assert.Equal(t, domain.SessionPending, sess.Status)
	assert.Equal(t, domain.FileTypeCSV, sess.FileType)
}

func TestCreateSession_MissingFile(t *testing.T) {
	f := newFixture(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("user_id", "user-1"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/sessions", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rec := httptest.NewRecorder()
	f.handler.CreateSession(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateSession_UnsupportedType(t *testing.T) {
	f := newFixture(t)

	rec := httptest.NewRecorder()
	f.handler.CreateSession(rec, multipartUpload(t, "notes.docx", "not a statement", map[string]string{
		"user_id": "user-1",
	}))

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestGetSession_NotFound(t *testing.T) {
	f := newFixture(t)

	rec := httptest.NewRecorder()
	f.handler.GetSession(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/nope", nil), "nope")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListCandidates_AfterProcessing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec := httptest.NewRecorder()
	f.handler.CreateSession(rec, multipartUpload(t, "statement.csv", sampleCSV, map[string]string{
		"user_id":    "user-1",
		"account_id": "acc-1",
	}))
	require.Equal(t, http.StatusAccepted, rec.Code)
	sess := decodeSession(t, rec)

	require.NoError(t, f.orch.Process(ctx, sess.SessionID))

	rec = httptest.NewRecorder()
	f.handler.ListCandidates(rec, httptest.NewRequest(http.MethodGet, "/", nil), sess.SessionID)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Candidates []*domain.Candidate `json:"candidates"`
		Count      int                 `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
}

func TestCommitCandidates_Validation(t *testing.T) {
	f := newFixture(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{not json"))
	f.handler.CommitCandidates(rec, req, "s-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"candidate_ids":[]}`))
	f.handler.CommitCandidates(rec, req, "s-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelSession(t *testing.T) {
	f := newFixture(t)

	rec := httptest.NewRecorder()
	f.handler.CreateSession(rec, multipartUpload(t, "statement.csv", sampleCSV, map[string]string{
		"user_id": "user-1",
	}))
	require.Equal(t, http.StatusAccepted, rec.Code)
	sess := decodeSession(t, rec)

	rec = httptest.NewRecorder()
	f.handler.CancelSession(rec, httptest.NewRequest(http.MethodPost, "/", nil), sess.SessionID)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.SessionCancelled, decodeSession(t, rec).Status)

	// A second cancel hits a terminal session.
	rec = httptest.NewRecorder()
	f.handler.CancelSession(rec, httptest.NewRequest(http.MethodPost, "/", nil), sess.SessionID)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSubmitPassword_Validation(t *testing.T) {
	f := newFixture(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"password":""}`))
	f.handler.SubmitPassword(rec, req, "s-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"password":"hunter2"}`))
	f.handler.SubmitPassword(rec, req, "missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func seedTransaction(t *testing.T, txns store.Transactions, id string, date civil.Date, amount domain.Amount) {
	t.Helper()
	require.NoError(t, txns.Insert(context.Background(), &domain.Transaction{
		TransactionID: id,
		UserID:        "user-1",
		AccountID:     "acc-1",
		Date:          date,
		Amount:        amount,
		Currency:      "GBP",
		Description:   "SEEDED",
		CreatedTS:     time.Now(),
	}))
}

func TestReconcile(t *testing.T) {
	txns := store.NewMemoryTransactions()
	seedTransaction(t, txns, "tx-1", civil.Date{Year: 2024, Month: 1, Day: 5}, -450)
	seedTransaction(t, txns, "tx-2", civil.Date{Year: 2024, Month: 1, Day: 6}, 150000)

	balances := store.NewMemoryBalances()
	require.NoError(t, balances.Insert(context.Background(), &domain.BalanceRecord{
		RecordID:  "prior",
		AccountID: "acc-1",
		Balance:   10000,
		Date:      civil.Date{Year: 2023, Month: 12, Day: 31},
		EntryType: domain.EntryReconciliation,
		CreatedTS: time.Now(),
	}))
	h := NewReconcileHandler(reconcile.New(txns, balances, 1), balances, zerolog.Nop())

	body := `{"account_id":"acc-1","period_start":"2024-01-01","period_end":"2024-01-31",` +
		`"statement_balance":159550}`
	rec := httptest.NewRecorder()
	h.Reconcile(rec, httptest.NewRequest(http.MethodPost, "/api/reconcile", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var record domain.BalanceRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.Equal(t, domain.Amount(150000), record.TotalIncome)
	assert.Equal(t, domain.Amount(450), record.TotalExpenses)

	// The reconciliation result is also stored.
	rec = httptest.NewRecorder()
	h.ListBalances(rec, httptest.NewRequest(http.MethodGet, "/api/balances?account_id=acc-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var listBody struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listBody))
	assert.Equal(t, 2, listBody.Count)
}

func TestReconcile_InvalidDates(t *testing.T) {
	h := NewReconcileHandler(reconcile.New(store.NewMemoryTransactions(), store.NewMemoryBalances(), 1), store.NewMemoryBalances(), zerolog.Nop())

	body := `{"account_id":"acc-1","period_start":"05/01/2024","period_end":"2024-01-31"}`
	rec := httptest.NewRecorder()
	h.Reconcile(rec, httptest.NewRequest(http.MethodPost, "/api/reconcile", strings.NewReader(body)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListBalances_RequiresAccountID(t *testing.T) {
	h := NewReconcileHandler(reconcile.New(store.NewMemoryTransactions(), store.NewMemoryBalances(), 1), store.NewMemoryBalances(), zerolog.Nop())

	rec := httptest.NewRecorder()
	h.ListBalances(rec, httptest.NewRequest(http.MethodGet, "/api/balances", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPatterns_LearnConfirmReject(t *testing.T) {
	h := NewPatternsHandler(patterns.NewMemoryStore(), zerolog.Nop())

	body := `{"pattern":"STARBUCKS","merchant_name":"Starbucks","category_name":"Coffee"}`
	rec := httptest.NewRecorder()
	h.CreatePattern(rec, httptest.NewRequest(http.MethodPost, "/api/patterns", strings.NewReader(body)))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created domain.MerchantPattern
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.PatternID)

	rec = httptest.NewRecorder()
	h.ConfirmPattern(rec, httptest.NewRequest(http.MethodPost, "/", nil), created.PatternID)
	require.Equal(t, http.StatusOK, rec.Code)
	var confirmed domain.MerchantPattern
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &confirmed))
	assert.True(t, confirmed.IsUserConfirmed)

	rec = httptest.NewRecorder()
	h.RejectPattern(rec, httptest.NewRequest(http.MethodPost, "/", nil), "no-such-pattern")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.ListPatterns(rec, httptest.NewRequest(http.MethodGet, "/api/patterns", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var listBody struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listBody))
	assert.Equal(t, 1, listBody.Count)
}

func TestPatterns_CreateValidation(t *testing.T) {
	h := NewPatternsHandler(patterns.NewMemoryStore(), zerolog.Nop())

	rec := httptest.NewRecorder()
	h.CreatePattern(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"pattern":""}`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestJobs(t *testing.T) {
	ctx := context.Background()
	jobStore := inmemory.NewStore()
	require.NoError(t, jobStore.SaveJob(ctx, &jobs.ParseStatementJob{
		JobID:     "job-1",
		SessionID: "sess-1",
		Status:    jobs.JobStatusPending,
		CreatedAt: time.Now(),
	}))

	h := NewJobsHandler(jobStore, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.GetJob(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/job-1", nil), "job-1")
	require.Equal(t, http.StatusOK, rec.Code)
	var job jobs.ParseStatementJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, "sess-1", job.SessionID)

	rec = httptest.NewRecorder()
	h.GetJob(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/missing", nil), "missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.ListJobs(rec, httptest.NewRequest(http.MethodGet, "/api/jobs?session_id=sess-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var listBody struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listBody))
	assert.Equal(t, 1, listBody.Count)
}
