package notionsync

import (
	"context"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/jomei/notionapi"

	"github.com/dvloznov/statement-engine/internal/logger"
	"github.com/dvloznov/statement-engine/internal/store"
)

// pageSize is the Notion query page size; the API caps it at 100.
const pageSize = 100

// SyncTransactions mirrors the committed transactions of a date range into a
// Notion database. Pages are matched to transactions by the Transaction ID
// property, so re-running the sync updates rather than duplicates. Pages
// whose transaction no longer exists in the range are archived.
func SyncTransactions(ctx context.Context, txns store.Transactions, notion NotionService, notionDBID string, start, end civil.Date, dryRun bool) error {
	log := logger.FromContext(ctx)

	log.Info().
		Str("start_date", start.String()).
		Str("end_date", end.String()).
		Bool("dry_run", dryRun).
		Msg("Starting transaction sync to Notion")

	transactions, err := txns.ListWindow(ctx, "", start, end)
	if err != nil {
		return fmt.Errorf("failed to query transactions: %w", err)
	}

	log.Info().Int("transaction_count", len(transactions)).Msg("Retrieved transactions")

	validIDs := make(map[string]bool, len(transactions))
	for _, t := range transactions {
		validIDs[t.TransactionID] = true
	}

	log.Info().Msg("Querying existing transactions from Notion")
	pages, err := queryAllNotionPages(ctx, notion, notionDBID)
	if err != nil {
		return fmt.Errorf("failed to query Notion pages: %w", err)
	}

	log.Info().Int("notion_page_count", len(pages)).Msg("Retrieved existing Notion pages")

	// Map transaction ID -> existing page, archiving strays as we go.
	existing := make(map[string]string)
	var archived int
	for _, page := range pages {
		txID := extractTransactionID(page)
		if txID != "" && validIDs[txID] {
			existing[txID] = string(page.ID)
			continue
		}

		// Page has no transaction ID or its transaction left the range.
		if dryRun {
			log.Info().Str("page_id", string(page.ID)).Msg("[dry run] Would archive stale page")
			archived++
			continue
		}
		if err := notion.ArchivePage(ctx, string(page.ID)); err != nil {
			return fmt.Errorf("failed to archive page %s: %w", page.ID, err)
		}
		archived++
	}

	var created, updated int
	for _, t := range transactions {
		props := TransactionToNotionProperties(t)

		if pageID, ok := existing[t.TransactionID]; ok {
			if dryRun {
				log.Info().Str("transaction_id", t.TransactionID).Msg("[dry run] Would update page")
				updated++
				continue
			}
			if _, err := notion.UpdatePage(ctx, pageID, props); err != nil {
				return fmt.Errorf("failed to update page for transaction %s: %w", t.TransactionID, err)
			}
			updated++
			continue
		}

		if dryRun {
			log.Info().Str("transaction_id", t.TransactionID).Msg("[dry run] Would create page")
			created++
			continue
		}
		if _, err := notion.CreatePage(ctx, notionDBID, props); err != nil {
			return fmt.Errorf("failed to create page for transaction %s: %w", t.TransactionID, err)
		}
		created++
	}

	log.Info().
		Int("created", created).
		Int("updated", updated).
		Int("archived", archived).
		Bool("dry_run", dryRun).
		Msg("Notion sync finished")

	return nil
}

// queryAllNotionPages pages through the whole database.
func queryAllNotionPages(ctx context.Context, notion NotionService, notionDBID string) ([]notionapi.Page, error) {
	var pages []notionapi.Page
	var cursor notionapi.Cursor

	for {
		req := &notionapi.DatabaseQueryRequest{
			PageSize:    pageSize,
			StartCursor: cursor,
		}

		resp, err := notion.QueryDatabase(ctx, notionDBID, req)
		if err != nil {
			return nil, err
		}

		pages = append(pages, resp.Results...)

		if !resp.HasMore {
			return pages, nil
		}
		cursor = resp.NextCursor
	}
}
