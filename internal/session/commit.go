package session

import (
	"context"
	"fmt"

	"github.com/dvloznov/statement-engine/internal/domain"
	"github.com/dvloznov/statement-engine/internal/logger"
	"github.com/google/uuid"
)

// CommitResult reports the outcome of a commit call.
type CommitResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// CommitCandidates imports the selected candidates of a completed session
// into transactions. Candidates that are not importable (failed, duplicate,
// or already imported) are skipped, not errors: commit is partial-success by
// design and safe to retry with the same IDs.
func (o *Orchestrator) CommitCandidates(ctx context.Context, sessionID string, candidateIDs []string, accountOverride string) (CommitResult, error) {
	var res CommitResult

	sess, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		return res, err
	}
	if sess.Status != domain.SessionCompleted {
		return res, fmt.Errorf("%w: status %s", ErrSessionNotReviewable, sess.Status)
	}

	accountID := sess.AccountID
	if accountOverride != "" {
		accountID = accountOverride
	}

	var imported []*domain.Transaction
	for _, id := range candidateIDs {
		c, err := o.candidates.Get(ctx, id)
		if err != nil {
			res.Skipped++
			continue
		}
		if c.SessionID != sessionID || c.ImportStatus != domain.ImportPending {
			res.Skipped++
			continue
		}

		txn := &domain.Transaction{
			TransactionID:     uuid.NewString(),
			UserID:            sess.UserID,
			AccountID:         accountID,
			Date:              c.Date,
			Amount:            c.Amount,
			Currency:          c.Currency,
			Description:       c.Description,
			IsCredit:          c.IsCredit,
			CategoryName:      c.CategoryName,
			MerchantName:      c.MerchantName,
			SourceCandidateID: c.CandidateID,
			SessionID:         sessionID,
			CreatedTS:         o.now().UTC(),
		}
		if err := o.transactions.Insert(ctx, txn); err != nil {
			return res, fmt.Errorf("inserting transaction for candidate %s: %w", id, err)
		}

		c.ImportStatus = domain.ImportImported
		c.TransactionID = txn.TransactionID
		if err := o.candidates.Update(ctx, c); err != nil {
			return res, fmt.Errorf("updating candidate %s: %w", id, err)
		}

		imported = append(imported, txn)
		res.Imported++
	}

	if len(imported) > 0 {
		o.linkImported(ctx, sess.UserID, imported)
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("session_id", sessionID).
		Int("imported", res.Imported).
		Int("skipped", res.Skipped).
		Msg("candidates committed")
	return res, nil
}

// linkImported runs link detection over the freshly imported transactions
// plus their surrounding window, inserting links for pairs not yet linked.
// The window spans all of the user's accounts, because transfers cross
// account boundaries, but never another user's records.
func (o *Orchestrator) linkImported(ctx context.Context, userID string, imported []*domain.Transaction) {
	log := logger.FromContext(ctx)

	// Window covering all imported dates, padded by the detection window.
	minDate, maxDate := imported[0].Date, imported[0].Date
	for _, t := range imported[1:] {
		if t.Date.Before(minDate) {
			minDate = t.Date
		}
		if t.Date.After(maxDate) {
			maxDate = t.Date
		}
	}
	start := minDate.AddDays(-o.cfg.DuplicateWindowDays)
	end := maxDate.AddDays(o.cfg.DuplicateWindowDays)

	window, err := o.transactions.ListWindow(ctx, "", start, end)
	if err != nil {
		log.Warn().Err(err).Msg("link detection window lookup failed")
		return
	}
	window = filterByUser(window, userID)

	for _, link := range o.detector.DetectLinks(ctx, window) {
		l := link
		if _, err := o.links.GetByPair(ctx, l.PairKey()); err == nil {
			continue
		}
		if err := o.links.Insert(ctx, &l); err != nil {
			log.Warn().Err(err).Str("pair", l.PairKey()).Msg("failed to insert link")
		}
	}
}
