package notionsync

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/statement-engine/internal/domain"
	"github.com/dvloznov/statement-engine/internal/store"
)

type fakeNotion struct {
	pages    []notionapi.Page
	created  []notionapi.Properties
	updated  map[string]notionapi.Properties
	archived []string
}

func newFakeNotion(pages ...notionapi.Page) *fakeNotion {
	return &fakeNotion{pages: pages, updated: make(map[string]notionapi.Properties)}
}

func (f *fakeNotion) CreatePage(ctx context.Context, databaseID string, props notionapi.Properties) (*notionapi.Page, error) {
	f.created = append(f.created, props)
	return &notionapi.Page{ID: notionapi.ObjectID("created")}, nil
}

func (f *fakeNotion) UpdatePage(ctx context.Context, pageID string, props notionapi.Properties) (*notionapi.Page, error) {
	f.updated[pageID] = props
	return &notionapi.Page{ID: notionapi.ObjectID(pageID)}, nil
}

func (f *fakeNotion) QueryDatabase(ctx context.Context, databaseID string, filter *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	return &notionapi.DatabaseQueryResponse{Results: f.pages, HasMore: false}, nil
}

func (f *fakeNotion) ArchivePage(ctx context.Context, pageID string) error {
	f.archived = append(f.archived, pageID)
	return nil
}

func notionPage(pageID, transactionID string) notionapi.Page {
	return notionapi.Page{
		ID: notionapi.ObjectID(pageID),
		Properties: notionapi.Properties{
			transactionIDProperty: notionapi.RichTextProperty{
				RichText: []notionapi.RichText{{PlainText: transactionID}},
			},
		},
	}
}

func seedTransaction(t *testing.T, txns store.Transactions, id string, date civil.Date, amount domain.Amount) {
	t.Helper()
	err := txns.Insert(context.Background(), &domain.Transaction{
		TransactionID: id,
		UserID:        "u1",
		AccountID:     "acc-1",
		Date:          date,
		Amount:        amount,
		Currency:      "GBP",
		Description:   "COFFEE SHOP",
		CreatedTS:     time.Now(),
	})
	require.NoError(t, err)
}

func TestSyncTransactions_CreatesMissingPages(t *testing.T) {
	ctx := context.Background()
	txns := store.NewMemoryTransactions()
	seedTransaction(t, txns, "tx-1", civil.Date{Year: 2025, Month: 3, Day: 10}, -450)
	seedTransaction(t, txns, "tx-2", civil.Date{Year: 2025, Month: 3, Day: 11}, -1200)

	notion := newFakeNotion()
	start := civil.Date{Year: 2025, Month: 3, Day: 1}
	end := civil.Date{Year: 2025, Month: 3, Day: 31}

	require.NoError(t, SyncTransactions(ctx, txns, notion, "db-1", start, end, false))

	assert.Len(t, notion.created, 2)
	assert.Empty(t, notion.updated)
	assert.Empty(t, notion.archived)
}

func TestSyncTransactions_UpdatesExistingPages(t *testing.T) {
	ctx := context.Background()
	txns := store.NewMemoryTransactions()
	seedTransaction(t, txns, "tx-1", civil.Date{Year: 2025, Month: 3, Day: 10}, -450)

	notion := newFakeNotion(notionPage("page-1", "tx-1"))
	start := civil.Date{Year: 2025, Month: 3, Day: 1}
	end := civil.Date{Year: 2025, Month: 3, Day: 31}

	require.NoError(t, SyncTransactions(ctx, txns, notion, "db-1", start, end, false))

	assert.Empty(t, notion.created)
	assert.Contains(t, notion.updated, "page-1")
	assert.Empty(t, notion.archived)
}

func TestSyncTransactions_ArchivesStalePages(t *testing.T) {
	ctx := context.Background()
	txns := store.NewMemoryTransactions()
	seedTransaction(t, txns, "tx-1", civil.Date{Year: 2025, Month: 3, Day: 10}, -450)

	// page-2 references a transaction that is no longer in the range, and
	// page-3 has no transaction ID at all.
	notion := newFakeNotion(
		notionPage("page-1", "tx-1"),
		notionPage("page-2", "tx-gone"),
		notionapi.Page{ID: notionapi.ObjectID("page-3"), Properties: notionapi.Properties{}},
	)
	start := civil.Date{Year: 2025, Month: 3, Day: 1}
	end := civil.Date{Year: 2025, Month: 3, Day: 31}

	require.NoError(t, SyncTransactions(ctx, txns, notion, "db-1", start, end, false))

	assert.ElementsMatch(t, []string{"page-2", "page-3"}, notion.archived)
	assert.Contains(t, notion.updated, "page-1")
}

func TestSyncTransactions_DryRunTouchesNothing(t *testing.T) {
	ctx := context.Background()
	txns := store.NewMemoryTransactions()
	seedTransaction(t, txns, "tx-1", civil.Date{Year: 2025, Month: 3, Day: 10}, -450)

	notion := newFakeNotion(notionPage("page-2", "tx-gone"))
	start := civil.Date{Year: 2025, Month: 3, Day: 1}
	end := civil.Date{Year: 2025, Month: 3, Day: 31}

	require.NoError(t, SyncTransactions(ctx, txns, notion, "db-1", start, end, true))

	assert.Empty(t, notion.created)
	assert.Empty(t, notion.updated)
	assert.Empty(t, notion.archived)
}

func TestTransactionToNotionProperties(t *testing.T) {
	txn := &domain.Transaction{
		TransactionID: "tx-1",
		AccountID:     "acc-1",
		Date:          civil.Date{Year: 2025, Month: 3, Day: 10},
		Amount:        -450,
		Currency:      "GBP",
		Description:   "COFFEE SHOP",
		CategoryName:  "Coffee",
		MerchantName:  "Coffee Shop",
	}

	props := TransactionToNotionProperties(txn)

	amount, ok := props["Amount"].(notionapi.NumberProperty)
	require.True(t, ok)
	assert.InDelta(t, -4.50, amount.Number, 0.001)

	assert.Contains(t, props, "Date")
	assert.Contains(t, props, "Category")
	assert.Contains(t, props, "Merchant")

	page := notionapi.Page{Properties: props}
	assert.Equal(t, "tx-1", extractTransactionID(page))
}
