package models

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// MediaType is the declared type of an uploaded document.
type MediaType string

const (
	MediaPDF  MediaType = "application/pdf"
	MediaJPEG MediaType = "image/jpeg"
	MediaPNG  MediaType = "image/png"
)

// IsImage reports whether the media type is one of the supported image types.
func (m MediaType) IsImage() bool {
	return m == MediaJPEG || m == MediaPNG
}

// ParseMediaType resolves a declared content type, falling back to the file
// extension when the declared type is empty or generic.
func ParseMediaType(declared, filename string) (MediaType, error) {
	switch strings.ToLower(strings.TrimSpace(strings.Split(declared, ";")[0])) {
	case "application/pdf":
		return MediaPDF, nil
	case "image/jpeg", "image/jpg":
		return MediaJPEG, nil
	case "image/png":
		return MediaPNG, nil
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return MediaPDF, nil
	case ".jpg", ".jpeg":
		return MediaJPEG, nil
	case ".png":
		return MediaPNG, nil
	}
	return "", fmt.Errorf("%w: %q (%s)", ErrUnsupportedMedia, declared, filename)
}

// Document is an uploaded file. It is immutable and discarded once OCR completes.
type Document struct {
	Filename  string
	MediaType MediaType
	Content   []byte
}

// DocumentRecord is the Firestore record for a document dropped into the
// ingest bucket. It tracks the overall status and metadata of the file.
type DocumentRecord struct {
	FileHash         string    `firestore:"fileHash,omitempty"`
	OriginalFilename string    `firestore:"originalFilename,omitempty"`
	MediaType        string    `firestore:"mediaType,omitempty"`
	Status           string    `firestore:"status,omitempty"`
	ErrorDetails     string    `firestore:"errorDetails,omitempty"`
	PageCount        int       `firestore:"pageCount,omitempty"`
	TextURI          string    `firestore:"textUri,omitempty"`
	CreatedAt        time.Time `firestore:"createdAt,omitempty"`
}

// Document record statuses.
const (
	DocumentExtracting = "EXTRACTING"
	DocumentExtracted  = "EXTRACTED"
	DocumentFailed     = "FAILED"
)

// ObjectHandle describes one object returned by a storage listing.
type ObjectHandle struct {
	Name string
	Size int64
}
