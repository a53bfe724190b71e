package domain

import "time"

// ParseArtifact is the audit record of one parser-level run within a session.
// Artifacts are append-only: re-processing a session adds new rows rather
// than rewriting old ones.
type ParseArtifact struct {
	ID        string
	SessionID string

	// Level is the parsing strategy that ran (columnar, pattern, ai).
	Level string

	RowsExtracted int
	UnparsedLines int
	UnparsedRatio float64

	// Escalated marks runs whose output was rejected in favor of the next
	// level. The accepted run of a session has Escalated false and no Error.
	Escalated bool
	Error     string

	StartedTS  time.Time
	FinishedTS time.Time
}
