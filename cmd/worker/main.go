package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/statement-engine/internal/config"
	"github.com/dvloznov/statement-engine/internal/detect"
	infraBQ "github.com/dvloznov/statement-engine/internal/infra/bigquery"
	"github.com/dvloznov/statement-engine/internal/jobs"
	"github.com/dvloznov/statement-engine/internal/jobs/inmemory"
	"github.com/dvloznov/statement-engine/internal/logger"
	"github.com/dvloznov/statement-engine/internal/normalize"
	"github.com/dvloznov/statement-engine/internal/parser"
	"github.com/dvloznov/statement-engine/internal/patterns"
	"github.com/dvloznov/statement-engine/internal/session"
	"github.com/dvloznov/statement-engine/internal/storage"
	"github.com/dvloznov/statement-engine/internal/store"
)

func main() {
	// Initialize logger
	log := logger.New()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx := context.Background()

	var blobs storage.BlobStore
	if bucket := os.Getenv("GCS_BUCKET"); bucket != "" {
		blobs = storage.NewGCS(bucket)
	} else {
		log.Warn().Msg("No GCS bucket configured - storing uploads in memory")
		blobs = storage.NewMemory()
	}

	var (
		sessions     store.Sessions
		candidates   store.Candidates
		transactions store.Transactions
		links        store.Links
		artifacts    store.Artifacts
		patternStore patterns.Store
	)
	if os.Getenv("BQ_PROJECT") != "" {
		repo, err := infraBQ.NewRepository(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create BigQuery repository")
		}
		defer repo.Close()
		sessions = repo.Sessions()
		candidates = repo.Candidates()
		transactions = repo.Transactions()
		links = repo.Links()
		artifacts = repo.Artifacts()

		mem := patterns.NewMemoryStore()
		if err := repo.SeedPatterns(ctx, mem); err != nil {
			log.Fatal().Err(err).Msg("Failed to load merchant patterns")
		}
		patternStore = repo.PersistingPatterns(mem)
	} else {
		log.Warn().Msg("No BQ_PROJECT configured - using in-memory stores")
		sessions = store.NewMemorySessions()
		candidates = store.NewMemoryCandidates()
		transactions = store.NewMemoryTransactions()
		links = store.NewMemoryLinks()
		artifacts = store.NewMemoryArtifacts()
		patternStore = patterns.NewMemoryStore()
	}

	// Initialize job store and queue
	// In production, this would be replaced with Cloud Tasks or Pub/Sub
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, cfg.SessionWorkers, jobStore)

	escalator := parser.NewEscalator(cfg.EscalateUnparsedRatio,
		parser.NewColumnarParser(),
		parser.NewPatternParser(),
		parser.NewAIParser(patterns.NewCategorySource(patternStore)),
	)

	orch := session.New(session.Deps{
		Sessions:     sessions,
		Candidates:   candidates,
		Transactions: transactions,
		Links:        links,
		Artifacts:    artifacts,
		Blobs:        blobs,
		Escalator:    escalator,
		Normalizer:   normalize.New(patternStore, os.Getenv("DEFAULT_CURRENCY")),
		Detector:     detect.New(cfg.DuplicateWindowDays, cfg.AutoConfirmThreshold),
		Publisher:    jobQueue,
	}, cfg)

	log.Info().Msg("Starting worker service")

	// Create context that cancels on interrupt
	workerCtx, cancel := context.WithCancel(logger.WithContext(ctx, log))
	defer cancel()

	// Create job handler that processes parse jobs
	handler := func(ctx context.Context, job jobs.Job) error {
		parseJob, ok := job.(*jobs.ParseStatementJob)
		if !ok {
			return fmt.Errorf("unexpected job type: %T", job)
		}

		log.Info().
			Str("job_id", parseJob.JobID).
			Str("session_id", parseJob.SessionID).
			Str("storage_uri", parseJob.StorageURI).
			Msg("Processing parse job")

		if err := orch.Process(ctx, parseJob.SessionID); err != nil {
			log.Error().
				Err(err).
				Str("job_id", parseJob.JobID).
				Str("session_id", parseJob.SessionID).
				Msg("Session processing failed")
			return err
		}

		log.Info().
			Str("job_id", parseJob.JobID).
			Str("session_id", parseJob.SessionID).
			Msg("Session processing completed successfully")

		return nil
	}

	// Start consuming jobs
	if err := jobQueue.Start(workerCtx, handler); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	log.Info().Msg("Worker service started, waiting for jobs...")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker service...")

	// Cancel context to stop workers
	cancel()

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop the queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	// Close the queue
	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Worker service exited")
}
