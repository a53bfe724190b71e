package domain

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// SessionStatus represents the lifecycle state of an upload session.
type SessionStatus string

const (
	// SessionPending indicates the upload was accepted but processing has not started.
	SessionPending SessionStatus = "pending"
	// SessionProcessing indicates the parse->normalize->detect chain is running.
	SessionProcessing SessionStatus = "processing"
	// SessionRequiresPassword indicates the document is encrypted and the
	// session is held until a password is supplied or attempts run out.
	SessionRequiresPassword SessionStatus = "requires_password"
	// SessionCompleted indicates the candidate set is ready for review.
	SessionCompleted SessionStatus = "completed"
	// SessionFailed indicates a non-recoverable error; a new upload is required.
	SessionFailed SessionStatus = "failed"
	// SessionCancelled indicates an external cancellation request was observed.
	SessionCancelled SessionStatus = "cancelled"
)

// FileType is the detected shape of an uploaded document.
type FileType string

const (
	FileTypeCSV   FileType = "csv"
	FileTypeXLSX  FileType = "xlsx"
	FileTypePDF   FileType = "pdf"
	FileTypeImage FileType = "image"
)

// UploadSession tracks one uploaded document from submission to terminal state.
// It is owned by the session orchestrator and mutated only through transitions;
// sessions are retained indefinitely for audit.
type UploadSession struct {
	SessionID        string   `json:"session_id"`
	UserID           string   `json:"user_id"`
	OriginalFilename string   `json:"original_filename"`
	FileType         FileType `json:"file_type"`
	ByteSize         int64    `json:"byte_size"`

	Status    SessionStatus `json:"status"`
	AccountID string        `json:"account_id,omitempty"`

	TotalCount      int `json:"total_count"`
	SuccessfulCount int `json:"successful_count"`
	FailedCount     int `json:"failed_count"`
	DuplicateCount  int `json:"duplicate_count"`

	StartedTS   time.Time  `json:"started_ts"`
	CompletedTS *time.Time `json:"completed_ts,omitempty"`

	ErrorMessage string `json:"error_message,omitempty"`

	RequiresPassword     bool `json:"requires_password"`
	PasswordAttemptsLeft int  `json:"password_attempts_left"`

	AICategorization bool `json:"ai_categorization"`

	// StorageURI is where the raw document bytes live (gs://... in production).
	StorageURI     string `json:"storage_uri,omitempty"`
	ChecksumSHA256 string `json:"checksum_sha256,omitempty"`
}

// Terminal reports whether the session has reached a final state.
func (s SessionStatus) Terminal() bool {
	switch s {
	case SessionCompleted, SessionFailed, SessionCancelled:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is a legal transition.
// Cancellation is allowed from any non-terminal state.
func (s SessionStatus) CanTransition(next SessionStatus) bool {
	if next == SessionCancelled {
		return !s.Terminal()
	}
	switch s {
	case SessionPending:
		return next == SessionProcessing || next == SessionFailed
	case SessionProcessing:
		return next == SessionRequiresPassword || next == SessionCompleted || next == SessionFailed
	case SessionRequiresPassword:
		return next == SessionProcessing || next == SessionFailed
	}
	return false
}

// Transition moves the session to next, or returns an error if the move is
// not allowed by the state machine.
func (u *UploadSession) Transition(next SessionStatus) error {
	if !u.Status.CanTransition(next) {
		return fmt.Errorf("illegal session transition %s -> %s", u.Status, next)
	}
	u.Status = next
	if next.Terminal() {
		now := time.Now()
		u.CompletedTS = &now
	}
	return nil
}

// CountersConsistent reports whether total = successful + failed + duplicate.
// The invariant is checked after completion, when nothing is pending.
func (u *UploadSession) CountersConsistent() bool {
	return u.TotalCount == u.SuccessfulCount+u.FailedCount+u.DuplicateCount
}

// DetectFileType maps a filename extension (and content type as fallback)
// onto a FileType. Returns false for anything the engine cannot parse.
func DetectFileType(filename, contentType string) (FileType, bool) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return FileTypeCSV, true
	case ".xlsx", ".xls":
		return FileTypeXLSX, true
	case ".pdf":
		return FileTypePDF, true
	case ".png", ".jpg", ".jpeg", ".heic":
		return FileTypeImage, true
	}
	switch strings.ToLower(contentType) {
	case "text/csv":
		return FileTypeCSV, true
	case "application/pdf":
		return FileTypePDF, true
	case "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return FileTypeXLSX, true
	case "image/png", "image/jpeg":
		return FileTypeImage, true
	}
	return "", false
}
