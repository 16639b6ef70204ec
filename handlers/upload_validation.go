package handlers

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"smartnotes/extractor"
)

// Upload validation errors
var (
	// ErrEmptyFilename is returned when the upload has no filename.
	ErrEmptyFilename = errors.New("empty filename")
	// ErrUnsupportedExtension is returned for file types the extractor cannot handle.
	ErrUnsupportedExtension = errors.New("unsupported file type")
	// ErrUploadTooLarge is returned when the upload exceeds the size limit.
	ErrUploadTooLarge = errors.New("upload exceeds size limit")
)

// DefaultMaxUploadBytes caps uploads at 200 MB; video lectures are the
// largest legitimate input.
const DefaultMaxUploadBytes int64 = 200 << 20

// ValidateUpload checks an upload's filename and size before any bytes
// are written to disk. The supported extension set comes from the
// extractor so the two never drift apart.
//
// Example:
//
//	if err := handlers.ValidateUpload(header.Filename, header.Size, 0); err != nil {
//	    http.Error(w, err.Error(), http.StatusBadRequest)
//	    return
//	}
func ValidateUpload(filename string, size int64, maxBytes int64) error {
	if strings.TrimSpace(filename) == "" {
		return ErrEmptyFilename
	}
	if !extractor.IsSupported(filename) {
		ext := strings.ToLower(filepath.Ext(filename))
		return fmt.Errorf("%w: %q (supported: %s)",
			ErrUnsupportedExtension, ext, strings.Join(extractor.SupportedExtensions(), ", "))
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	if size > maxBytes {
		return fmt.Errorf("%w: %d bytes (limit %d)", ErrUploadTooLarge, size, maxBytes)
	}
	return nil
}
