package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	infraBQ "github.com/dvloznov/statement-engine/internal/infra/bigquery"
	"github.com/dvloznov/statement-engine/internal/logger"
	"github.com/dvloznov/statement-engine/internal/storage"
	"github.com/rs/zerolog"
)

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "upload":
		runUpload(log)
	case "sessions":
		runSessions(log)
	case "inspect":
		runInspect(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Statement Engine CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  upload    Upload a statement file to GCS")
	fmt.Println("  sessions  List recent upload sessions")
	fmt.Println("  inspect   Inspect a session and its candidates")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

func runUpload(log zerolog.Logger) {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	bucketName := fs.String("bucket", os.Getenv("GCS_BUCKET"), "GCS bucket name")
	objectName := fs.String("object", "", "GCS object name (defaults to filename)")
	filePath := fs.String("file", "", "Path to local statement file")
	fs.Parse(os.Args[2:])

	if *bucketName == "" || *filePath == "" {
		log.Fatal().Msg("Usage: cli upload -bucket NAME -file PATH")
	}

	if *objectName == "" {
		*objectName = filepath.Base(*filePath)
	}

	data, err := os.ReadFile(*filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read file")
	}

	ctx := logger.WithContext(context.Background(), log)

	log.Info().
		Str("bucket", *bucketName).
		Str("object", *objectName).
		Str("file", *filePath).
		Msg("Uploading file to GCS")

	uri, err := storage.NewGCS(*bucketName).Put(ctx, *objectName, data)
	if err != nil {
		log.Fatal().Err(err).Msg("Upload failed")
	}

	fmt.Printf("Uploaded %s to %s\n", *filePath, uri)
}

func runSessions(log zerolog.Logger) {
	fs := flag.NewFlagSet("sessions", flag.ExitOnError)
	limit := fs.Int("limit", 20, "Maximum sessions to list")
	fs.Parse(os.Args[2:])

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	repo, err := infraBQ.NewRepository(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create repository")
	}
	defer repo.Close()

	sessions, err := repo.Sessions().List(ctx, *limit, 0)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list sessions")
	}

	fmt.Printf("\n=== Sessions (%d) ===\n", len(sessions))
	for _, s := range sessions {
		fmt.Printf("\n%s\n", s.SessionID)
		fmt.Printf("   File:    %s (%s, %d bytes)\n", s.OriginalFilename, s.FileType, s.ByteSize)
		fmt.Printf("   Status:  %s\n", s.Status)
		fmt.Printf("   Started: %s\n", s.StartedTS.Format(time.RFC3339))
		if s.Status == "completed" {
			fmt.Printf("   Rows:    %d total / %d ok / %d failed / %d duplicate\n",
				s.TotalCount, s.SuccessfulCount, s.FailedCount, s.DuplicateCount)
		}
		if s.ErrorMessage != "" {
			fmt.Printf("   Error:   %s\n", s.ErrorMessage)
		}
	}
	fmt.Println()
}

func runInspect(log zerolog.Logger) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	sessionID := fs.String("session-id", "", "Session ID to inspect")
	fs.Parse(os.Args[2:])

	if *sessionID == "" {
		log.Fatal().Msg("Error: --session-id is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	repo, err := infraBQ.NewRepository(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create repository")
	}
	defer repo.Close()

	sess, err := repo.Sessions().Get(ctx, *sessionID)
	if err != nil {
		log.Fatal().Err(err).Msg("Session not found")
	}

	fmt.Println("\n=== Session Details ===")
	fmt.Printf("ID:         %s\n", sess.SessionID)
	fmt.Printf("User:       %s\n", sess.UserID)
	fmt.Printf("Account:    %s\n", sess.AccountID)
	fmt.Printf("File:       %s (%s)\n", sess.OriginalFilename, sess.FileType)
	fmt.Printf("Storage:    %s\n", sess.StorageURI)
	fmt.Printf("Started:    %s\n", sess.StartedTS.Format(time.RFC3339))
	fmt.Printf("Status:     %s\n", sess.Status)

	artifacts, err := repo.Artifacts().ListBySession(ctx, *sessionID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list artifacts")
	}

	fmt.Printf("\n=== Parser Runs (%d) ===\n", len(artifacts))
	for _, a := range artifacts {
		outcome := "accepted"
		if a.Escalated {
			outcome = "escalated"
		}
		if a.Error != "" {
			outcome = "error: " + a.Error
		}
		fmt.Printf("  %-10s rows=%-4d unparsed=%.0f%%  %s\n",
			a.Level, a.RowsExtracted, a.UnparsedRatio*100, outcome)
	}

	candidates, err := repo.Candidates().ListBySession(ctx, *sessionID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list candidates")
	}

	fmt.Printf("\n=== Candidates (%d) ===\n", len(candidates))
	for i, c := range candidates {
		fmt.Printf("\n%d. %s\n", i+1, c.Description)
		fmt.Printf("   Date:     %s\n", c.Date)
		fmt.Printf("   Amount:   %s %s\n", c.Amount, c.Currency)
		fmt.Printf("   Status:   %s\n", c.ImportStatus)
		if c.CategoryName != "" {
			fmt.Printf("   Category: %s (%.2f)\n", c.CategoryName, c.CategoryConfidence)
		}
		if len(c.Errors) > 0 {
			fmt.Printf("   Errors:   %v\n", c.Errors)
		}
	}
	fmt.Println()
}
