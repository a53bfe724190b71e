package store

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/statement-engine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySessions_CRUD(t *testing.T) {
	s := NewMemorySessions()
	ctx := context.Background()

	sess := &domain.UploadSession{
		SessionID: "sess-1",
		Status:    domain.SessionPending,
		StartedTS: time.Now(),
	}
	require.NoError(t, s.Create(ctx, sess))
	assert.Error(t, s.Create(ctx, sess), "duplicate create must fail")

	got, err := s.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionPending, got.Status)

	// Mutating the returned copy must not touch the stored session.
	got.Status = domain.SessionFailed
	again, err := s.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionPending, again.Status)

	sess.Status = domain.SessionProcessing
	require.NoError(t, s.Update(ctx, sess))
	got, err = s.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionProcessing, got.Status)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemorySessions_ListNewestFirst(t *testing.T) {
	s := NewMemorySessions()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"old", "mid", "new"} {
		require.NoError(t, s.Create(ctx, &domain.UploadSession{
			SessionID: id,
			StartedTS: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	got, err := s.List(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "new", got[0].SessionID)
	assert.Equal(t, "mid", got[1].SessionID)

	got, err = s.List(ctx, 0, 2)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "old", got[0].SessionID)
}

func TestMemoryCandidates_SessionScopeAndOrder(t *testing.T) {
	c := NewMemoryCandidates()
	ctx := context.Background()

	require.NoError(t, c.PutBatch(ctx, []domain.Candidate{
		{CandidateID: "c2", SessionID: "s1", RowIndex: 1},
		{CandidateID: "c1", SessionID: "s1", RowIndex: 0},
		{CandidateID: "c3", SessionID: "s2", RowIndex: 0},
	}))

	got, err := c.ListBySession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c1", got[0].CandidateID)
	assert.Equal(t, "c2", got[1].CandidateID)

	first, err := c.Get(ctx, "c1")
	require.NoError(t, err)
	first.ImportStatus = domain.ImportImported
	first.TransactionID = "t1"
	require.NoError(t, c.Update(ctx, first))

	updated, err := c.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.ImportImported, updated.ImportStatus)
}

func TestMemoryTransactions_Window(t *testing.T) {
	tr := NewMemoryTransactions()
	ctx := context.Background()

	insert := func(id string, d civil.Date, account string) {
		require.NoError(t, tr.Insert(ctx, &domain.Transaction{
			TransactionID: id,
			AccountID:     account,
			Date:          d,
			Amount:        -100,
		}))
	}
	insert("t1", civil.Date{Year: 2024, Month: 1, Day: 5}, "acc-1")
	insert("t2", civil.Date{Year: 2024, Month: 1, Day: 10}, "acc-1")
	insert("t3", civil.Date{Year: 2024, Month: 1, Day: 7}, "acc-2")

	got, err := tr.ListWindow(ctx, "acc-1",
		civil.Date{Year: 2024, Month: 1, Day: 1},
		civil.Date{Year: 2024, Month: 1, Day: 7})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "t1", got[0].TransactionID)

	all, err := tr.ListWindow(ctx, "",
		civil.Date{Year: 2024, Month: 1, Day: 1},
		civil.Date{Year: 2024, Month: 1, Day: 31})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	assert.Error(t, tr.Insert(ctx, &domain.Transaction{TransactionID: "t1"}),
		"duplicate insert must fail")
}

func TestMemoryLinks_OneLinkPerPair(t *testing.T) {
	l := NewMemoryLinks()
	ctx := context.Background()

	link := &domain.TransactionLink{
		LinkID:            "l1",
		FromTransactionID: "t1",
		ToTransactionID:   "t2",
		LinkType:          domain.LinkTransfer,
	}
	require.NoError(t, l.Insert(ctx, link))

	// Same pair in the opposite order is still the same pair.
	reversed := &domain.TransactionLink{
		LinkID:            "l2",
		FromTransactionID: "t2",
		ToTransactionID:   "t1",
		LinkType:          domain.LinkDuplicate,
	}
	assert.Error(t, l.Insert(ctx, reversed))

	got, err := l.GetByPair(ctx, link.PairKey())
	require.NoError(t, err)
	assert.Equal(t, "l1", got.LinkID)

	byTxn, err := l.ListByTransaction(ctx, "t2")
	require.NoError(t, err)
	assert.Len(t, byTxn, 1)
}

func TestMemoryBalances_ByAccount(t *testing.T) {
	b := NewMemoryBalances()
	ctx := context.Background()

	require.NoError(t, b.Insert(ctx, &domain.BalanceRecord{
		RecordID:  "r1",
		AccountID: "acc-1",
		Date:      civil.Date{Year: 2024, Month: 1, Day: 31},
	}))
	require.NoError(t, b.Insert(ctx, &domain.BalanceRecord{
		RecordID:  "r2",
		AccountID: "acc-1",
		Date:      civil.Date{Year: 2024, Month: 2, Day: 29},
	}))

	got, err := b.ListByAccount(ctx, "acc-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "r1", got[0].RecordID)
}

func TestMemoryArtifacts_BySession(t *testing.T) {
	a := NewMemoryArtifacts()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, a.Insert(ctx, &domain.ParseArtifact{
		ID: "a2", SessionID: "s1", Level: "ai", StartedTS: base.Add(time.Minute),
	}))
	require.NoError(t, a.Insert(ctx, &domain.ParseArtifact{
		ID: "a1", SessionID: "s1", Level: "pattern", StartedTS: base,
	}))

	got, err := a.ListBySession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "pattern", got[0].Level)
	assert.Equal(t, "ai", got[1].Level)
}
