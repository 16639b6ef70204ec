// Package extractor turns uploaded documents into plain text.
//
// It dispatches on file extension: PDF via ledongthuc/pdf, DOCX via the
// OOXML zip container, plain text with charset detection, and audio or
// video through the transcription API. Extracted text feeds topic
// extraction and note generation downstream.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrEmptyPath is returned when an empty file path is provided.
var ErrEmptyPath = errors.New("empty document path provided")

// ErrUnsupportedType is returned for file extensions no extractor handles.
var ErrUnsupportedType = errors.New("unsupported document type")

// ErrNoContent is returned when a document yields no extractable text.
var ErrNoContent = errors.New("no text content found in document")

// Transcriber converts audio and video files to text. Satisfied by
// llm.Client.
type Transcriber interface {
	Transcribe(ctx context.Context, filePath string) (string, error)
}

// DocumentType classifies an upload by how its text is extracted.
type DocumentType int

const (
	TypeUnknown DocumentType = iota
	TypePDF
	TypeDOCX
	TypeText
	TypeAudio
	TypeVideo
)

// String returns the type name used in logs and the document library.
func (t DocumentType) String() string {
	switch t {
	case TypePDF:
		return "pdf"
	case TypeDOCX:
		return "docx"
	case TypeText:
		return "text"
	case TypeAudio:
		return "audio"
	case TypeVideo:
		return "video"
	default:
		return "unknown"
	}
}

// typeByExtension maps lowercase file extensions to document types.
var typeByExtension = map[string]DocumentType{
	".pdf":  TypePDF,
	".docx": TypeDOCX,
	".txt":  TypeText,
	".md":   TypeText,
	".mp3":  TypeAudio,
	".wav":  TypeAudio,
	".m4a":  TypeAudio,
	".ogg":  TypeAudio,
	".mp4":  TypeVideo,
	".avi":  TypeVideo,
	".mov":  TypeVideo,
	".webm": TypeVideo,
}

// DetectType classifies a file by its extension.
func DetectType(path string) DocumentType {
	ext := strings.ToLower(filepath.Ext(path))
	if t, ok := typeByExtension[ext]; ok {
		return t
	}
	return TypeUnknown
}

// IsSupported reports whether the file extension has an extractor.
func IsSupported(path string) bool {
	return DetectType(path) != TypeUnknown
}

// SupportedExtensions returns the accepted upload extensions, for the
// upload form and validation messages.
func SupportedExtensions() []string {
	return []string{
		".pdf", ".docx", ".txt", ".md",
		".mp3", ".wav", ".m4a", ".ogg",
		".mp4", ".avi", ".mov", ".webm",
	}
}

// Extractor extracts plain text from uploaded documents.
// The Transcriber is only needed for audio and video uploads; a nil
// transcriber makes those types fail with a clear error.
type Extractor struct {
	transcriber Transcriber
}

// New creates an Extractor. transcriber may be nil to disable audio/video.
func New(transcriber Transcriber) *Extractor {
	return &Extractor{transcriber: transcriber}
}

// ExtractText extracts the full plain text of the document at path,
// dispatching on file extension.
//
// Example:
//
//	ex := extractor.New(llmClient)
//	text, err := ex.ExtractText(ctx, "uploads/lecture.pdf")
func (e *Extractor) ExtractText(ctx context.Context, path string) (string, error) {
	if path == "" {
		return "", ErrEmptyPath
	}

	switch DetectType(path) {
	case TypePDF:
		return ExtractPDF(path)
	case TypeDOCX:
		return ExtractDOCX(path)
	case TypeText:
		return ExtractTXT(path)
	case TypeAudio, TypeVideo:
		return e.extractMedia(ctx, path)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, filepath.Ext(path))
	}
}

// extractMedia transcribes an audio or video file.
func (e *Extractor) extractMedia(ctx context.Context, path string) (string, error) {
	if e.transcriber == nil {
		return "", fmt.Errorf("transcription unavailable: %w", ErrUnsupportedType)
	}
	text, err := e.transcriber.Transcribe(ctx, path)
	if err != nil {
		return "", fmt.Errorf("failed to transcribe %s: %w", filepath.Base(path), err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrNoContent
	}
	return text, nil
}

// EstimateTokenCount gives a rough token estimate at 4 characters per
// token, a reasonable heuristic for English with GPT-style tokenizers.
func EstimateTokenCount(text string) int {
	if len(text) == 0 {
		return 0
	}
	return len(text) / 4
}
