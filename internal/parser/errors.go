package parser

import "errors"

var (
	// ErrUnsupportedFileType means no parser level can handle the document.
	ErrUnsupportedFileType = errors.New("unsupported file type")

	// ErrPasswordRequired means the document is encrypted and no (or a wrong)
	// password was supplied. The session pauses instead of failing.
	ErrPasswordRequired = errors.New("document requires a password")

	// ErrNoRowsExtracted is surfaced after the final fallback level still
	// produced nothing.
	ErrNoRowsExtracted = errors.New("no rows extracted from document")

	// ErrMalformedDocument means the bytes could not be decoded as the
	// claimed format at all.
	ErrMalformedDocument = errors.New("malformed document")

	// ErrMissingMapping means a columnar document lacks mappings for the
	// mandatory date, amount and description fields.
	ErrMissingMapping = errors.New("mandatory columns not mapped")
)
