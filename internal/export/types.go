// Package export renders documents to downloadable PDF files.
package export

import (
	"errors"
	"time"
)

// Request contains parameters for an export operation
type Request struct {
	DocumentID string
	Version    string // "latest" or commit hash
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

// DocumentInfo holds the metadata and content rendered into the export.
type DocumentInfo struct {
	ID        string
	Name      string
	HTML      string
	Author    string
	UpdatedAt time.Time
}

var (
	// ErrContentUnavailable indicates document content could not be loaded for export.
	ErrContentUnavailable = errors.New("export content unavailable")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
)
