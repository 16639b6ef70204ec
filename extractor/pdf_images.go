package extractor

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"os"
	"path/filepath"
)

// JPEG stream markers. Embedded PDF images using the DCTDecode filter are
// stored as complete JPEG files inside content streams.
var (
	jpegStart = []byte{0xFF, 0xD8, 0xFF}
	jpegEnd   = []byte{0xFF, 0xD9}
)

// maxEmbeddedImages caps how many images are carved from one document.
const maxEmbeddedImages = 50

// minEmbeddedImageBytes filters out thumbnails and decorative fragments.
const minEmbeddedImageBytes = 4096

// ExtractPDFImages carves embedded JPEG images out of a PDF and writes
// them to outDir as img_NNN.jpg. Returns the written file paths.
//
// This is best effort: DCTDecode streams cover the common case of photos
// and figures; vector graphics and other filters are ignored. Candidate
// byte ranges are verified by decoding before anything is written.
func ExtractPDFImages(pdfPath, outDir string) ([]string, error) {
	data, err := os.ReadFile(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF: %w", err)
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create image directory: %w", err)
	}

	var written []string
	offset := 0
	for len(written) < maxEmbeddedImages {
		start := bytes.Index(data[offset:], jpegStart)
		if start < 0 {
			break
		}
		start += offset

		end := bytes.Index(data[start:], jpegEnd)
		if end < 0 {
			break
		}
		end += start + len(jpegEnd)

		candidate := data[start:end]
		offset = end

		if len(candidate) < minEmbeddedImageBytes {
			continue
		}
		// Reject byte ranges that merely look like JPEG markers.
		if _, err := jpeg.Decode(bytes.NewReader(candidate)); err != nil {
			continue
		}

		name := fmt.Sprintf("img_%03d.jpg", len(written)+1)
		path := filepath.Join(outDir, name)
		if err := os.WriteFile(path, candidate, 0o644); err != nil {
			return written, fmt.Errorf("failed to write %s: %w", name, err)
		}
		written = append(written, path)
	}

	return written, nil
}
