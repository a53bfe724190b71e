// Package storage abstracts where raw statement documents live between
// upload and processing.
package storage

import (
	"context"
	"fmt"
	"path"
	"strings"
)

// BlobStore provides an interface for document storage operations.
// This interface enables mocking and testing of storage functionality.
type BlobStore interface {
	// Put stores document bytes under the object name and returns the URI the
	// document can later be fetched by.
	Put(ctx context.Context, objectName string, data []byte) (string, error)

	// Fetch downloads document bytes from the given storage URI.
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// SplitGCSURI splits "gs://bucket/path/to/file.pdf" into bucket and object
// path.
func SplitGCSURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	trimmed := strings.TrimPrefix(uri, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}

// FilenameFromURI extracts the filename from a storage URI.
// e.g., "gs://bucket/folder/file.pdf" → "file.pdf"
func FilenameFromURI(uri string) string {
	trimmed := strings.TrimPrefix(uri, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 {
		return trimmed
	}
	return path.Base(parts[1])
}
