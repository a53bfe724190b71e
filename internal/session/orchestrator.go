// Package session owns the upload session lifecycle: accepting a document,
// driving it through parse, normalize and duplicate detection, and committing
// the reviewed candidates into transactions.
package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/statement-engine/internal/config"
	"github.com/dvloznov/statement-engine/internal/detect"
	"github.com/dvloznov/statement-engine/internal/domain"
	"github.com/dvloznov/statement-engine/internal/jobs"
	"github.com/dvloznov/statement-engine/internal/logger"
	"github.com/dvloznov/statement-engine/internal/normalize"
	"github.com/dvloznov/statement-engine/internal/parser"
	"github.com/dvloznov/statement-engine/internal/storage"
	"github.com/dvloznov/statement-engine/internal/store"
	"github.com/google/uuid"
)

var (
	// ErrUnsupportedUpload means the file is not a statement type the engine
	// can parse.
	ErrUnsupportedUpload = errors.New("unsupported upload file type")

	// ErrUploadTooLarge means the document exceeds the configured size cap.
	ErrUploadTooLarge = errors.New("upload exceeds size limit")

	// ErrSessionTerminal means the requested operation needs a live session.
	ErrSessionTerminal = errors.New("session already in a terminal state")

	// ErrPasswordNotExpected means a password was submitted for a session
	// that is not waiting for one.
	ErrPasswordNotExpected = errors.New("session is not waiting for a password")

	// ErrSessionNotReviewable means candidates were requested or committed on
	// a session that has not completed processing.
	ErrSessionNotReviewable = errors.New("session has no reviewable candidates yet")
)

// Orchestrator drives upload sessions through the state machine. It is safe
// for concurrent use; per-session mutation happens on one worker at a time.
type Orchestrator struct {
	sessions     store.Sessions
	candidates   store.Candidates
	transactions store.Transactions
	links        store.Links
	artifacts    store.Artifacts

	blobs      storage.BlobStore
	escalator  *parser.Escalator
	normalizer *normalize.Normalizer
	detector   *detect.Detector
	publisher  jobs.Publisher

	cfg config.Engine
	now func() time.Time

	// passwords holds per-session document passwords for the duration of
	// processing. Passwords are never persisted.
	pwMu      sync.Mutex
	passwords map[string]string
}

// Deps bundles the orchestrator's collaborators.
type Deps struct {
	Sessions     store.Sessions
	Candidates   store.Candidates
	Transactions store.Transactions
	Links        store.Links
	Artifacts    store.Artifacts
	Blobs        storage.BlobStore
	Escalator    *parser.Escalator
	Normalizer   *normalize.Normalizer
	Detector     *detect.Detector
	Publisher    jobs.Publisher
}

// New creates a session orchestrator.
func New(deps Deps, cfg config.Engine) *Orchestrator {
	return &Orchestrator{
		sessions:     deps.Sessions,
		candidates:   deps.Candidates,
		transactions: deps.Transactions,
		links:        deps.Links,
		artifacts:    deps.Artifacts,
		blobs:        deps.Blobs,
		escalator:    deps.Escalator,
		normalizer:   deps.Normalizer,
		detector:     deps.Detector,
		publisher:    deps.Publisher,
		cfg:          cfg,
		now:          time.Now,
		passwords:    make(map[string]string),
	}
}

// CreateRequest is one statement upload.
type CreateRequest struct {
	UserID      string
	AccountID   string
	Filename    string
	ContentType string
	Data        []byte

	// Password unlocks an encrypted document, when known upfront.
	Password string

	// AICategorization opts the session into model-suggested categories for
	// rows no learned pattern covers.
	AICategorization bool
}

// Create accepts an upload: validates it, stores the raw bytes, records the
// session and enqueues processing.
func (o *Orchestrator) Create(ctx context.Context, req CreateRequest) (*domain.UploadSession, error) {
	if int64(len(req.Data)) > o.cfg.MaxUploadBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrUploadTooLarge, len(req.Data))
	}
	if len(req.Data) == 0 {
		return nil, fmt.Errorf("empty upload")
	}
	fileType, ok := domain.DetectFileType(req.Filename, req.ContentType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedUpload, req.Filename)
	}

	sessionID := uuid.NewString()
	sum := sha256.Sum256(req.Data)

	uri, err := o.blobs.Put(ctx, fmt.Sprintf("sessions/%s/%s", sessionID, req.Filename), req.Data)
	if err != nil {
		return nil, fmt.Errorf("storing upload: %w", err)
	}

	sess := &domain.UploadSession{
		SessionID:            sessionID,
		UserID:               req.UserID,
		AccountID:            req.AccountID,
		OriginalFilename:     req.Filename,
		FileType:             fileType,
		ByteSize:             int64(len(req.Data)),
		Status:               domain.SessionPending,
		StartedTS:            o.now().UTC(),
		PasswordAttemptsLeft: o.cfg.PasswordAttempts,
		AICategorization:     req.AICategorization,
		StorageURI:           uri,
		ChecksumSHA256:       hex.EncodeToString(sum[:]),
	}
	if err := o.sessions.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("recording session: %w", err)
	}

	if req.Password != "" {
		o.setPassword(sessionID, req.Password)
	}

	if o.publisher != nil {
		job := &jobs.ParseStatementJob{
			SessionID:  sessionID,
			StorageURI: uri,
		}
		if err := o.publisher.PublishParseStatement(ctx, job); err != nil {
			return nil, fmt.Errorf("enqueueing session %s: %w", sessionID, err)
		}
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("session_id", sessionID).
		Str("file_type", string(fileType)).
		Int64("bytes", sess.ByteSize).
		Msg("upload session created")
	return sess, nil
}

// Process runs one session through parse, normalize and duplicate detection.
// It is the job handler's entry point and may be re-entered after a password
// retry; candidate rows from an aborted earlier run are superseded because
// processing only begins from pending or requires_password.
func (o *Orchestrator) Process(ctx context.Context, sessionID string) error {
	log := logger.WithSession(logger.FromContext(ctx), sessionID)
	ctx = logger.WithContext(ctx, log)

	sess, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.Status.Terminal() {
		log.Warn().Str("status", string(sess.Status)).Msg("skipping terminal session")
		return nil
	}
	if sess.Status != domain.SessionProcessing {
		if err := sess.Transition(domain.SessionProcessing); err != nil {
			return err
		}
		if err := o.sessions.Update(ctx, sess); err != nil {
			return err
		}
	}

	result, err := o.parse(ctx, sess)
	if err != nil {
		if errors.Is(err, parser.ErrPasswordRequired) {
			return o.holdForPassword(ctx, sess)
		}
		return o.fail(ctx, sess, err)
	}

	// Checkpoint: an external cancellation between stages wins.
	if cancelled, err := o.cancelled(ctx, sess); err != nil || cancelled {
		return err
	}

	cands := o.normalizer.Normalize(ctx, sess.SessionID, result)
	o.markDuplicates(ctx, sess, cands)

	if err := o.candidates.PutBatch(ctx, cands); err != nil {
		return o.fail(ctx, sess, fmt.Errorf("storing candidates: %w", err))
	}

	if cancelled, err := o.cancelled(ctx, sess); err != nil || cancelled {
		return err
	}

	sess.TotalCount = len(cands)
	sess.SuccessfulCount = 0
	sess.FailedCount = 0
	sess.DuplicateCount = 0
	for _, c := range cands {
		switch c.ImportStatus {
		case domain.ImportFailed:
			sess.FailedCount++
		case domain.ImportDuplicate:
			sess.DuplicateCount++
		default:
			sess.SuccessfulCount++
		}
	}

	if err := sess.Transition(domain.SessionCompleted); err != nil {
		return err
	}
	o.clearPassword(sess.SessionID)
	if err := o.sessions.Update(ctx, sess); err != nil {
		return err
	}

	log.Info().
		Int("total", sess.TotalCount).
		Int("successful", sess.SuccessfulCount).
		Int("failed", sess.FailedCount).
		Int("duplicates", sess.DuplicateCount).
		Msg("session processing complete")
	return nil
}

// parse fetches the document and walks the parser levels, recording one
// artifact per level run.
func (o *Orchestrator) parse(ctx context.Context, sess *domain.UploadSession) (*parser.Result, error) {
	data, err := o.blobs.Fetch(ctx, sess.StorageURI)
	if err != nil {
		return nil, fmt.Errorf("fetching document: %w", err)
	}

	doc := parser.Document{
		Bytes:    data,
		FileType: sess.FileType,
		Filename: sess.OriginalFilename,
		Password: o.password(sess.SessionID),
	}

	result, runs, err := o.escalator.Run(ctx, doc)
	o.recordRuns(ctx, sess.SessionID, runs)
	return result, err
}

func (o *Orchestrator) recordRuns(ctx context.Context, sessionID string, runs []parser.LevelRun) {
	log := logger.FromContext(ctx)
	for _, run := range runs {
		artifact := &domain.ParseArtifact{
			ID:            uuid.NewString(),
			SessionID:     sessionID,
			Level:         string(run.Level),
			RowsExtracted: run.RowsExtracted,
			UnparsedLines: run.UnparsedLines,
			UnparsedRatio: run.UnparsedRatio,
			Escalated:     run.Escalated,
			Error:         run.Err,
			StartedTS:     run.StartedTS,
			FinishedTS:    run.FinishedTS,
		}
		if err := o.artifacts.Insert(ctx, artifact); err != nil {
			log.Warn().Err(err).Msg("failed to record parse artifact")
		}
	}
}

// markDuplicates checks non-failed candidates against the session user's
// committed transactions in the configured window. Any reported match marks
// the candidate duplicate; only matches above the auto-confirm threshold are
// linked to the existing transaction.
func (o *Orchestrator) markDuplicates(ctx context.Context, sess *domain.UploadSession, cands []domain.Candidate) {
	log := logger.FromContext(ctx)
	for i := range cands {
		c := &cands[i]
		if c.ImportStatus != domain.ImportPending {
			continue
		}

		start := c.Date.AddDays(-o.cfg.DuplicateWindowDays)
		end := c.Date.AddDays(o.cfg.DuplicateWindowDays)
		existing, err := o.transactions.ListWindow(ctx, sess.AccountID, start, end)
		if err != nil {
			log.Warn().Err(err).Msg("duplicate window lookup failed")
			continue
		}
		existing = filterByUser(existing, sess.UserID)

		if match, score, ok := o.detector.FindDuplicate(c, existing); ok {
			c.ImportStatus = domain.ImportDuplicate
			if o.detector.IsDuplicateConfirmed(score) {
				c.TransactionID = match.TransactionID
			}
		}
	}
}

// filterByUser narrows a transaction window to one user's records. An empty
// userID keeps the window as-is for callers without user scoping.
func filterByUser(txns []*domain.Transaction, userID string) []*domain.Transaction {
	if userID == "" {
		return txns
	}
	out := txns[:0]
	for _, t := range txns {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out
}

// holdForPassword moves the session into requires_password, or fails it when
// the attempt budget is spent.
func (o *Orchestrator) holdForPassword(ctx context.Context, sess *domain.UploadSession) error {
	sess.RequiresPassword = true

	// A held session that arrives here again consumed one attempt.
	if o.password(sess.SessionID) != "" {
		sess.PasswordAttemptsLeft--
		o.clearPassword(sess.SessionID)
	}

	if sess.PasswordAttemptsLeft <= 0 {
		return o.fail(ctx, sess, fmt.Errorf("password attempts exhausted"))
	}

	if err := sess.Transition(domain.SessionRequiresPassword); err != nil {
		return err
	}
	if err := o.sessions.Update(ctx, sess); err != nil {
		return err
	}
	log := logger.FromContext(ctx)
	log.Info().
		Int("attempts_left", sess.PasswordAttemptsLeft).
		Msg("session held for password")
	return nil
}

// SubmitPassword resumes a held session with a new password attempt.
func (o *Orchestrator) SubmitPassword(ctx context.Context, sessionID, password string) (*domain.UploadSession, error) {
	sess, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != domain.SessionRequiresPassword {
		return nil, fmt.Errorf("%w: status %s", ErrPasswordNotExpected, sess.Status)
	}
	if password == "" {
		return nil, fmt.Errorf("password is required")
	}

	o.setPassword(sessionID, password)
	if err := sess.Transition(domain.SessionProcessing); err != nil {
		return nil, err
	}
	if err := o.sessions.Update(ctx, sess); err != nil {
		return nil, err
	}

	if o.publisher != nil {
		job := &jobs.ParseStatementJob{SessionID: sessionID, StorageURI: sess.StorageURI}
		if err := o.publisher.PublishParseStatement(ctx, job); err != nil {
			return nil, fmt.Errorf("re-enqueueing session %s: %w", sessionID, err)
		}
	}
	return sess, nil
}

// Cancel requests cancellation. Legal from any non-terminal state; in-flight
// processing observes it at the next checkpoint.
func (o *Orchestrator) Cancel(ctx context.Context, sessionID string) (*domain.UploadSession, error) {
	sess, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := sess.Transition(domain.SessionCancelled); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionTerminal, err)
	}
	o.clearPassword(sessionID)
	if err := o.sessions.Update(ctx, sess); err != nil {
		return nil, err
	}
	log := logger.FromContext(ctx)
	log.Info().Str("session_id", sessionID).Msg("session cancelled")
	return sess, nil
}

// cancelled reloads the session and reports whether an external cancellation
// arrived. Cancellation keeps whatever partial state was already stored.
func (o *Orchestrator) cancelled(ctx context.Context, sess *domain.UploadSession) (bool, error) {
	current, err := o.sessions.Get(ctx, sess.SessionID)
	if err != nil {
		return false, err
	}
	if current.Status == domain.SessionCancelled {
		log := logger.FromContext(ctx)
		log.Info().Msg("cancellation observed at checkpoint")
		o.clearPassword(sess.SessionID)
		return true, nil
	}
	return false, nil
}

// fail moves the session into failed with a reason.
func (o *Orchestrator) fail(ctx context.Context, sess *domain.UploadSession, cause error) error {
	sess.ErrorMessage = cause.Error()
	o.clearPassword(sess.SessionID)
	if err := sess.Transition(domain.SessionFailed); err != nil {
		return errors.Join(cause, err)
	}
	if err := o.sessions.Update(ctx, sess); err != nil {
		return errors.Join(cause, err)
	}
	log := logger.FromContext(ctx)
	log.Error().Err(cause).Msg("session failed")
	return cause
}

func (o *Orchestrator) setPassword(sessionID, password string) {
	o.pwMu.Lock()
	defer o.pwMu.Unlock()
	o.passwords[sessionID] = password
}

func (o *Orchestrator) password(sessionID string) string {
	o.pwMu.Lock()
	defer o.pwMu.Unlock()
	return o.passwords[sessionID]
}

func (o *Orchestrator) clearPassword(sessionID string) {
	o.pwMu.Lock()
	defer o.pwMu.Unlock()
	delete(o.passwords, sessionID)
}
