package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dvloznov/statement-engine/internal/api/handlers"
	"github.com/dvloznov/statement-engine/internal/api/middleware"
	"github.com/dvloznov/statement-engine/internal/config"
	"github.com/dvloznov/statement-engine/internal/detect"
	infraBQ "github.com/dvloznov/statement-engine/internal/infra/bigquery"
	"github.com/dvloznov/statement-engine/internal/jobs"
	"github.com/dvloznov/statement-engine/internal/jobs/inmemory"
	"github.com/dvloznov/statement-engine/internal/logger"
	"github.com/dvloznov/statement-engine/internal/normalize"
	"github.com/dvloznov/statement-engine/internal/parser"
	"github.com/dvloznov/statement-engine/internal/patterns"
	"github.com/dvloznov/statement-engine/internal/reconcile"
	"github.com/dvloznov/statement-engine/internal/session"
	"github.com/dvloznov/statement-engine/internal/storage"
	"github.com/dvloznov/statement-engine/internal/store"
)

func main() {
	// Parse command-line flags
	var (
		port   = flag.String("port", "8080", "HTTP server port")
		bucket = flag.String("bucket", os.Getenv("GCS_BUCKET"), "GCS bucket name for statement uploads (or set GCS_BUCKET env)")
	)
	flag.Parse()

	// Initialize logger
	log := logger.New()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx := context.Background()

	// Blob storage: GCS in production, in-memory when no bucket is set.
	var blobs storage.BlobStore
	if *bucket != "" {
		blobs = storage.NewGCS(*bucket)
	} else {
		log.Warn().Msg("No GCS bucket configured - storing uploads in memory")
		blobs = storage.NewMemory()
	}

	// Persistence: BigQuery-backed when a project is configured, otherwise
	// in-memory for local development.
	var (
		sessions     store.Sessions
		candidates   store.Candidates
		transactions store.Transactions
		links        store.Links
		balances     store.Balances
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
		balances = repo.Balances()
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
		balances = store.NewMemoryBalances()
		artifacts = store.NewMemoryArtifacts()
		patternStore = patterns.NewMemoryStore()
	}

	// Initialize job infrastructure
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

	reconciler := reconcile.New(transactions, balances, cfg.ReconcileEpsilon)

	// Start worker in background to process jobs
	workerCtx, cancelWorker := context.WithCancel(logger.WithContext(ctx, log))
	defer cancelWorker()

	jobHandler := func(ctx context.Context, job jobs.Job) error {
		parseJob, ok := job.(*jobs.ParseStatementJob)
		if !ok {
			return fmt.Errorf("unexpected job type: %T", job)
		}

		log.Info().
			Str("job_id", parseJob.JobID).
			Str("session_id", parseJob.SessionID).
			Msg("Processing parse job")

		if err := orch.Process(ctx, parseJob.SessionID); err != nil {
			log.Error().
				Err(err).
				Str("job_id", parseJob.JobID).
				Str("session_id", parseJob.SessionID).
				Msg("Session processing failed")
			return err
		}
		return nil
	}

	go func() {
		log.Info().Int("workers", cfg.SessionWorkers).Msg("Starting job worker")
		if err := jobQueue.Start(workerCtx, jobHandler); err != nil {
			log.Error().Err(err).Msg("Job worker stopped with error")
		}
	}()

	// Initialize handlers
	sessionsHandler := handlers.NewSessionsHandler(orch, sessions, candidates, artifacts, cfg.MaxUploadBytes, log)
	reconcileHandler := handlers.NewReconcileHandler(reconciler, balances, log)
	patternsHandler := handlers.NewPatternsHandler(patternStore, log)
	jobsHandler := handlers.NewJobsHandler(jobStore, log)

	// Create router
	mux := http.NewServeMux()

	// Sessions endpoints
	mux.HandleFunc("/api/sessions", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			sessionsHandler.CreateSession(w, r)
		case http.MethodGet:
			sessionsHandler.ListSessions(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/sessions/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
		sessionID, action, _ := strings.Cut(rest, "/")
		if sessionID == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Session ID is required")
			return
		}

		switch {
		case action == "" && r.Method == http.MethodGet:
			sessionsHandler.GetSession(w, r, sessionID)
		case action == "candidates" && r.Method == http.MethodGet:
			sessionsHandler.ListCandidates(w, r, sessionID)
		case action == "artifacts" && r.Method == http.MethodGet:
			sessionsHandler.ListArtifacts(w, r, sessionID)
		case action == "commit" && r.Method == http.MethodPost:
			sessionsHandler.CommitCandidates(w, r, sessionID)
		case action == "cancel" && r.Method == http.MethodPost:
			sessionsHandler.CancelSession(w, r, sessionID)
		case action == "password" && r.Method == http.MethodPost:
			sessionsHandler.SubmitPassword(w, r, sessionID)
		default:
			middleware.WriteError(w, http.StatusNotFound, "Not found")
		}
	})

	// Reconciliation endpoints
	mux.HandleFunc("/api/reconcile", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			reconcileHandler.Reconcile(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/balances", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			reconcileHandler.ListBalances(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Patterns endpoints
	mux.HandleFunc("/api/patterns", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			patternsHandler.ListPatterns(w, r)
		case http.MethodPost:
			patternsHandler.CreatePattern(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/patterns/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/patterns/")
		patternID, action, _ := strings.Cut(rest, "/")
		if patternID == "" || r.Method != http.MethodPost {
			middleware.WriteError(w, http.StatusNotFound, "Not found")
			return
		}

		switch action {
		case "confirm":
			patternsHandler.ConfirmPattern(w, r, patternID)
		case "reject":
			patternsHandler.RejectPattern(w, r, patternID)
		default:
			middleware.WriteError(w, http.StatusNotFound, "Not found")
		}
	})

	// Jobs endpoints
	mux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobsHandler.ListJobs(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
			if jobID == "" {
				middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
				return
			}
			jobsHandler.GetJob(w, r, jobID)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// Apply middleware
	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(
					middleware.Auth(mux),
				),
			),
		),
	)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", *port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Cancel worker context
	cancelWorker()

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}

	log.Info().Msg("Server exited")
}
