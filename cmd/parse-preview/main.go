package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dvloznov/statement-engine/internal/config"
	"github.com/dvloznov/statement-engine/internal/domain"
	"github.com/dvloznov/statement-engine/internal/logger"
	"github.com/dvloznov/statement-engine/internal/parser"
	"github.com/dvloznov/statement-engine/internal/patterns"
)

// parse-preview runs the progressive parser chain on a local file and dumps
// what each level produced, without touching any store. Handy for checking
// how a new bank's statement parses before wiring it into a session.
func main() {
	log := logger.New()

	filePath := flag.String("file", "", "Path to the statement file (required)")
	password := flag.String("password", "", "Password for encrypted documents")
	flag.Parse()

	if *filePath == "" {
		log.Fatal().Msg("Error: --file is required")
	}

	data, err := os.ReadFile(*filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read file")
	}

	ft, ok := domain.DetectFileType(filepath.Base(*filePath), "")
	if !ok {
		log.Fatal().Str("file", *filePath).Msg("Unsupported file type")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	escalator := parser.NewEscalator(cfg.EscalateUnparsedRatio,
		parser.NewColumnarParser(),
		parser.NewPatternParser(),
		parser.NewAIParser(patterns.NewCategorySource(patterns.NewMemoryStore())),
	)

	doc := parser.Document{
		Bytes:    data,
		FileType: ft,
		Filename: filepath.Base(*filePath),
		Password: *password,
	}

	result, runs, err := escalator.Run(ctx, doc)

	fmt.Printf("\n=== Level Runs ===\n")
	for _, run := range runs {
		outcome := "accepted"
		switch {
		case run.Err != "":
			outcome = "error: " + run.Err
		case run.Escalated:
			outcome = "escalated"
		}
		fmt.Printf("  %-10s rows=%-4d unparsed=%d (%.0f%%)  %s\n",
			run.Level, run.RowsExtracted, run.UnparsedLines, run.UnparsedRatio*100, outcome)
	}

	if err != nil {
		log.Fatal().Err(err).Msg("All parser levels failed")
	}

	fmt.Printf("\n=== Extracted Rows (%s level, %d rows) ===\n", result.Level, len(result.Rows))
	for _, row := range result.Rows {
		fmt.Printf("%3d  %-12s %12s  %s\n",
			row.Index,
			row.Fields[parser.FieldDate],
			row.Fields[parser.FieldAmount],
			row.Fields[parser.FieldDescription])
	}

	if len(result.UnparsedLines) > 0 {
		fmt.Printf("\n=== Unparsed Lines (%d) ===\n", len(result.UnparsedLines))
		for _, line := range result.UnparsedLines {
			fmt.Printf("  %s\n", line)
		}
	}
	fmt.Println()
}
