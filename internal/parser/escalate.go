package parser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/statement-engine/internal/domain"
	"github.com/dvloznov/statement-engine/internal/logger"
)

// LevelRun records one attempt at one parser level, kept for audit and for
// explaining why (or why not) the engine escalated.
type LevelRun struct {
	Level         Level
	StartedTS     time.Time
	FinishedTS    time.Time
	RowsExtracted int
	UnparsedLines int
	UnparsedRatio float64
	Escalated     bool
	Err           string
}

// Escalator walks the ordered parser levels for a document, stopping at the
// first acceptable result. Escalation is monotonic: a level is never re-run
// within one walk, and the walk never moves back to a cheaper level.
type Escalator struct {
	parsers   []Parser
	threshold float64
}

// NewEscalator builds an escalator over the given levels. Parsers must be
// supplied cheapest first; threshold is the unparsed-line ratio above which a
// result is rejected in favor of the next level.
func NewEscalator(threshold float64, parsers ...Parser) *Escalator {
	return &Escalator{parsers: parsers, threshold: threshold}
}

// Run parses the document, escalating through applicable levels. It returns
// the accepted result plus the per-level run records, in order.
//
// A level's result is accepted when it produced at least one row and its
// unparsed ratio is at or below the threshold. ErrPasswordRequired aborts the
// walk immediately: no later level can do better without the password. Other
// errors count as a failed level and escalate.
func (e *Escalator) Run(ctx context.Context, doc Document) (*Result, []LevelRun, error) {
	log := logger.FromContext(ctx)

	var runs []LevelRun
	var lastErr error

	for _, p := range e.parsers {
		if !p.Applicable(doc.FileType) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, runs, err
		}

		run := LevelRun{Level: p.Level(), StartedTS: time.Now().UTC()}
		result, err := p.Parse(ctx, doc)
		run.FinishedTS = time.Now().UTC()

		if err != nil {
			if errors.Is(err, ErrPasswordRequired) {
				return nil, runs, err
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, runs, err
			}
			run.Err = err.Error()
			run.Escalated = true
			runs = append(runs, run)
			lastErr = err
			log.Warn().Err(err).Str("level", string(p.Level())).Msg("parser level failed, escalating")
			continue
		}

		run.RowsExtracted = len(result.Rows)
		run.UnparsedLines = len(result.UnparsedLines)
		run.UnparsedRatio = result.UnparsedRatio()

		if len(result.Rows) == 0 || run.UnparsedRatio > e.threshold {
			run.Escalated = true
			runs = append(runs, run)
			log.Info().
				Str("level", string(p.Level())).
				Int("rows", run.RowsExtracted).
				Float64("unparsed_ratio", run.UnparsedRatio).
				Msg("parser level below quality bar, escalating")
			continue
		}

		runs = append(runs, run)
		log.Info().
			Str("level", string(p.Level())).
			Int("rows", run.RowsExtracted).
			Int("unparsed", run.UnparsedLines).
			Msg("parser level accepted")
		return result, runs, nil
	}

	if len(runs) == 0 {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnsupportedFileType, doc.FileType)
	}
	if lastErr != nil {
		return nil, runs, fmt.Errorf("%w: last level error: %v", ErrNoRowsExtracted, lastErr)
	}
	return nil, runs, ErrNoRowsExtracted
}

// LevelsFor is the default level order per file type: columnar documents go
// straight to the column reader, PDFs start with pattern matching, and images
// have nothing cheaper than the model.
func LevelsFor(ft domain.FileType) []Level {
	switch ft {
	case domain.FileTypeCSV, domain.FileTypeXLSX:
		return []Level{LevelColumnar, LevelAI}
	case domain.FileTypePDF:
		return []Level{LevelPattern, LevelAI}
	case domain.FileTypeImage:
		return []Level{LevelAI}
	}
	return nil
}
