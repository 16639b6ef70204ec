package webui

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"smartnotes/core"
	"smartnotes/db"
	"smartnotes/handlers"
	"smartnotes/orchestrator"
	"smartnotes/topics"
)

// writeJSON serializes v with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError sends a JSON error payload.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleUpload accepts a multipart upload, stores the file under a
// per-document directory, and runs ingestion (text extraction, PDF image
// carving, topic extraction).
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	if err := handlers.ValidateUpload(header.Filename, header.Size, s.config.MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	granularity := 50
	if v := r.FormValue("granularity"); v != "" {
		granularity = parseGranularity(v, granularity)
	}

	// One directory per upload keeps carved images next to the source.
	docDir := filepath.Join(s.config.UploadsDir, uuid.New().String())
	if err := os.MkdirAll(docDir, 0755); err != nil {
		s.log.Errorw("upload dir creation failed", "error", err.Error())
		writeError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}
	storedPath := filepath.Join(docDir, handlers.SafeFilename(header.Filename))
	dst, err := os.Create(storedPath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		writeError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}
	dst.Close()

	doc, set, err := s.orch.IngestDocument(r.Context(), orchestrator.IngestRequest{
		StoredPath:  storedPath,
		Filename:    header.Filename,
		Granularity: granularity,
	})
	if err != nil {
		s.log.Errorw("ingestion failed", "filename", header.Filename, "error", err.Error())
		writeError(w, http.StatusInternalServerError, "failed to process document")
		return
	}

	resp := map[string]interface{}{
		"document": documentSummary{
			ID:          doc.ID,
			Filename:    doc.Filename,
			Granularity: doc.Granularity,
			CreatedAt:   doc.CreatedAt,
		},
		"topics": set.Topics(),
	}
	if topics.IsErrorSet(set) {
		resp["warning"] = "topic extraction failed; adjust granularity to retry"
	}
	writeJSON(w, http.StatusOK, resp)
}

func parseGranularity(v string, fallback int) int {
	g, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	if g < 0 {
		g = 0
	}
	if g > 100 {
		g = 100
	}
	return g
}

// handleListDocuments returns all documents, newest first.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.repo.ListDocuments(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list documents")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"documents": documentSummaries(docs),
	})
}

// handleLoadDocument returns a document plus its topics, notes in the
// requested format, and chat history.
func (s *Server) handleLoadDocument(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/load_document/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "invalid document id")
		return
	}
	format := core.ParseFormat(r.URL.Query().Get("format"))

	doc, err := s.repo.GetDocument(r.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load document")
		return
	}

	set, err := s.repo.GetTopics(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load topics")
		return
	}
	notes, err := s.repo.GetNotes(r.Context(), id, format)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load notes")
		return
	}
	history, err := s.repo.GetChatHistory(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load chat history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"document": documentSummary{
			ID:          doc.ID,
			Filename:    doc.Filename,
			Granularity: doc.Granularity,
			CreatedAt:   doc.CreatedAt,
		},
		"topics":        set.Topics(),
		"relationships": topics.Relationships(set),
		"notes":         noteSummaries(notes),
		"chat_history":  history,
	})
}

type granularityRequest struct {
	DocumentID  string `json:"document_id"`
	Granularity int    `json:"granularity"`
}

// handleUpdateGranularity re-extracts topics at a new granularity.
func (s *Server) handleUpdateGranularity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req granularityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DocumentID == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	set, err := s.orch.UpdateGranularity(r.Context(), req.DocumentID, req.Granularity)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		s.log.Errorw("granularity update failed", "document_id", req.DocumentID, "error", err.Error())
		writeError(w, http.StatusInternalServerError, "failed to update granularity")
		return
	}

	resp := map[string]interface{}{"topics": set.Topics()}
	if topics.IsErrorSet(set) {
		resp["warning"] = "topic extraction failed; stored topics were kept"
	}
	writeJSON(w, http.StatusOK, resp)
}

type generateRequest struct {
	DocumentID string `json:"document_id"`
	Format     string `json:"format"`
}

// handleGenerateNotes runs the full generation pipeline for a document.
// Returns 429 when the worker pool has no headroom for another run.
func (s *Server) handleGenerateNotes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DocumentID == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.orch.GenerateNotes(r.Context(), req.DocumentID, core.ParseFormat(req.Format))
	if err != nil {
		switch {
		case errors.Is(err, db.ErrNotFound):
			writeError(w, http.StatusNotFound, "document not found")
		case errors.Is(err, orchestrator.ErrNoTopics):
			writeError(w, http.StatusConflict, "no topics extracted yet; adjust granularity first")
		case errors.Is(err, orchestrator.ErrPoolSaturated):
			writeError(w, http.StatusTooManyRequests, "server busy; try again shortly")
		default:
			s.log.Errorw("generation failed", "document_id", req.DocumentID, "error", err.Error())
			writeError(w, http.StatusInternalServerError, "note generation failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"notes":     noteSummaries(result.Notes),
		"errors":    result.Errors,
		"generated": result.Generated,
	})
}

type mergeRequest struct {
	DocumentID string   `json:"document_id"`
	TopicIDs   []string `json:"topic_ids"`
}

// handleMergeTopics collapses the selected topics into one combined
// topic with a model-generated title.
func (s *Server) handleMergeTopics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req mergeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DocumentID == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	set, err := s.orch.MergeTopics(r.Context(), req.DocumentID, req.TopicIDs)
	if err != nil {
		switch {
		case errors.Is(err, db.ErrNotFound):
			writeError(w, http.StatusNotFound, "document not found")
		case errors.Is(err, orchestrator.ErrMergeTooFew):
			writeError(w, http.StatusBadRequest, "select at least two topics to merge")
		default:
			s.log.Errorw("merge failed", "document_id", req.DocumentID, "error", err.Error())
			writeError(w, http.StatusInternalServerError, "topic merge failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"topics": set.Topics(),
	})
}

type instructionRequest struct {
	DocumentID  string `json:"document_id"`
	Instruction string `json:"instruction"`
	Format      string `json:"format"`
}

// handleInstruction classifies and applies a free-text instruction.
func (s *Server) handleInstruction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req instructionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DocumentID == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.orch.ApplyUserInstruction(r.Context(), req.DocumentID, req.Instruction, core.ParseFormat(req.Format))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		s.log.Errorw("instruction failed", "document_id", req.DocumentID, "error", err.Error())
		writeError(w, http.StatusInternalServerError, "instruction processing failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleStatus reports system health and recent processing activity.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.collector == nil {
		writeJSON(w, http.StatusOK, map[string]string{"health": "running"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":       s.collector.GetSystemStatus(),
		"task_metrics": s.collector.GetTaskMetrics(),
		"recent_tasks": s.collector.GetRecentTasks(20),
		"recent_runs":  s.collector.GetRecentRuns(10),
	})
}
