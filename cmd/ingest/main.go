package main

import (
	"context"
	"flag"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/dvloznov/statement-engine/internal/config"
	"github.com/dvloznov/statement-engine/internal/detect"
	"github.com/dvloznov/statement-engine/internal/domain"
	"github.com/dvloznov/statement-engine/internal/jobs/inmemory"
	"github.com/dvloznov/statement-engine/internal/logger"
	"github.com/dvloznov/statement-engine/internal/normalize"
	"github.com/dvloznov/statement-engine/internal/parser"
	"github.com/dvloznov/statement-engine/internal/patterns"
	"github.com/dvloznov/statement-engine/internal/session"
	"github.com/dvloznov/statement-engine/internal/storage"
	"github.com/dvloznov/statement-engine/internal/store"
)

// ingest runs one statement file through the whole pipeline synchronously,
// with in-memory stores, and prints the resulting candidates. Useful for
// checking how a statement parses before uploading it for real.
func main() {
	// Initialize structured logger
	log := logger.New()

	// Parse CLI flags
	filePath := flag.String("file", "", "Path to the statement file (csv, xlsx, pdf or image)")
	userID := flag.String("user", "local", "User ID to attribute the session to")
	accountID := flag.String("account", "", "Account ID for the statement")
	password := flag.String("password", "", "Password for encrypted documents")
	flag.Parse()

	if *filePath == "" {
		log.Fatal().Msg("Error: --file is required")
	}

	data, err := os.ReadFile(*filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read statement file")
	}

	// Create context with timeout so CLI doesn't hang
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	// Add logger to context
	ctx = logger.WithContext(ctx, log)

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	patternStore := patterns.NewMemoryStore()
	sessions := store.NewMemorySessions()
	candidates := store.NewMemoryCandidates()

	escalator := parser.NewEscalator(cfg.EscalateUnparsedRatio,
		parser.NewColumnarParser(),
		parser.NewPatternParser(),
		parser.NewAIParser(patterns.NewCategorySource(patternStore)),
	)

	orch := session.New(session.Deps{
		Sessions:     sessions,
		Candidates:   candidates,
		Transactions: store.NewMemoryTransactions(),
		Links:        store.NewMemoryLinks(),
		Artifacts:    store.NewMemoryArtifacts(),
		Blobs:        storage.NewMemory(),
		Escalator:    escalator,
		Normalizer:   normalize.New(patternStore, os.Getenv("DEFAULT_CURRENCY")),
		Detector:     detect.New(cfg.DuplicateWindowDays, cfg.AutoConfirmThreshold),
		Publisher:    inmemory.NewQueue(1, 1, inmemory.NewStore()),
	}, cfg)

	log.Info().Str("file", *filePath).Msg("Starting ingestion")

	sess, err := orch.Create(ctx, session.CreateRequest{
		UserID:      *userID,
		AccountID:   *accountID,
		Filename:    filepath.Base(*filePath),
		ContentType: mime.TypeByExtension(filepath.Ext(*filePath)),
		Data:        data,
		Password:    *password,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Ingestion failed")
	}

	// Process synchronously instead of waiting for the queued job.
	if err := orch.Process(ctx, sess.SessionID); err != nil {
		log.Fatal().Err(err).Msg("Ingestion failed")
	}

	final, err := sessions.Get(ctx, sess.SessionID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to reload session")
	}
	if final.Status != domain.SessionCompleted {
		log.Fatal().
			Str("status", string(final.Status)).
			Str("error", final.ErrorMessage).
			Msg("Session did not complete")
	}

	cands, err := candidates.ListBySession(ctx, sess.SessionID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list candidates")
	}

	fmt.Printf("Session %s completed: %d candidates (%d ok, %d failed, %d duplicate)\n\n",
		final.SessionID, final.TotalCount, final.SuccessfulCount, final.FailedCount, final.DuplicateCount)
	for _, c := range cands {
		fmt.Printf("%-10s %3d  %s  %12s %s  %s\n",
			c.ImportStatus, c.RowIndex, c.Date, c.Amount, c.Currency, c.Description)
	}
	fmt.Println("\nIngestion completed successfully.")
}
