package webui

import (
	"archive/zip"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"smartnotes/core"
	"smartnotes/db"
	"smartnotes/handlers"
	"smartnotes/orchestrator"
)

// handleDownload serves one note as a file attachment.
// Query: document_id, topic_id, format.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	documentID := q.Get("document_id")
	topicID := q.Get("topic_id")
	if documentID == "" || topicID == "" {
		writeError(w, http.StatusBadRequest, "document_id and topic_id are required")
		return
	}
	format := core.ParseFormat(q.Get("format"))

	note, err := s.repo.GetNote(r.Context(), documentID, topicID, format)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, http.StatusNotFound, "note not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load note")
		return
	}

	filename := noteFilename(note.Title, format)
	w.Header().Set("Content-Type", format.MIMEType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(note.Content))
}

// handleView serves one note inline for in-browser viewing. HTML notes
// render directly; markdown and LaTeX are shown as plain text.
// Query: document_id, topic_id, format.
func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	documentID := q.Get("document_id")
	topicID := q.Get("topic_id")
	if documentID == "" || topicID == "" {
		writeError(w, http.StatusBadRequest, "document_id and topic_id are required")
		return
	}
	format := core.ParseFormat(q.Get("format"))

	note, err := s.repo.GetNote(r.Context(), documentID, topicID, format)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, http.StatusNotFound, "note not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load note")
		return
	}

	contentType := "text/plain; charset=utf-8"
	if format == core.FormatHTML {
		contentType = "text/html; charset=utf-8"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(note.Content))
}

// handleDownloadAll streams every note for a document as a zip archive.
// Query: document_id, format.
func (s *Server) handleDownloadAll(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	documentID := q.Get("document_id")
	if documentID == "" {
		writeError(w, http.StatusBadRequest, "document_id is required")
		return
	}
	format := core.ParseFormat(q.Get("format"))

	doc, err := s.repo.GetDocument(r.Context(), documentID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load document")
		return
	}

	notes, err := s.repo.GetNotes(r.Context(), documentID, format)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load notes")
		return
	}
	if len(notes) == 0 {
		writeError(w, http.StatusNotFound, "no notes generated yet")
		return
	}

	archiveName := handlers.SafeFilename(trimExtension(doc.Filename)) + "_notes.zip"
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", archiveName))
	w.WriteHeader(http.StatusOK)

	zw := zip.NewWriter(w)
	seen := make(map[string]int)
	for _, note := range notes {
		name := noteFilename(note.Title, format)
		// The index note and a topic could collide after sanitizing.
		if n := seen[name]; n > 0 {
			name = fmt.Sprintf("%s_%d%s", strings.TrimSuffix(name, format.Extension()), n, format.Extension())
		}
		seen[noteFilename(note.Title, format)]++

		entry, err := zw.Create(name)
		if err != nil {
			s.log.Errorw("zip entry failed", "name", name, "error", err.Error())
			return
		}
		if _, err := entry.Write([]byte(note.Content)); err != nil {
			s.log.Errorw("zip write failed", "name", name, "error", err.Error())
			return
		}
	}
	if err := zw.Close(); err != nil {
		s.log.Errorw("zip close failed", "error", err.Error())
	}
}

// noteFilename builds the download filename for a note. The index note
// gets a fixed name; topic notes use the sanitized title.
func noteFilename(title string, format core.Format) string {
	if title == orchestrator.IndexTitle {
		return "000_Introduction" + format.Extension()
	}
	return handlers.SafeFilename(title) + format.Extension()
}

func trimExtension(filename string) string {
	if i := strings.LastIndexByte(filename, '.'); i > 0 {
		return filename[:i]
	}
	return filename
}
