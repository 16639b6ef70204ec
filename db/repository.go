package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"smartnotes/core"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("db: not found")

const sqliteTimeLayout = "2006-01-02 15:04:05"

// DocumentRecord is a row in the documents table: one uploaded document
// with its extracted text and last-used granularity.
type DocumentRecord struct {
	ID          string    // UUID assigned at upload
	Filename    string    // Original upload filename
	StoredPath  string    // Where the upload was saved on disk
	Content     string    // Full extracted text
	Granularity int       // Last granularity used for topic extraction
	CreatedAt   time.Time // Upload time
}

// NoteRecord is a row in the notes table. One note per
// (document, topic, format).
type NoteRecord struct {
	ID         int64
	DocumentID string
	TopicID    string // Model-assigned topic key, e.g. "topic_1"
	Title      string
	Content    string
	Source     string // Pre-conversion markdown, kept for re-linking
	Format     core.Format
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ImageAnalysisRecord is a cached vision result for one image/topic pair.
// Keyed by filename so a re-run can skip images already analyzed.
type ImageAnalysisRecord struct {
	DocumentID  string
	Filename    string
	TopicID     string
	Description string
}

// ChatMessageRecord is one turn of the document's instruction/question
// conversation.
type ChatMessageRecord struct {
	ID         int64
	DocumentID string
	Sender     string // "user" or "ai"
	Message    string
	CreatedAt  time.Time
}

// Repository provides typed CRUD over the smartnotes tables.
type Repository struct {
	db *Database
}

// NewRepository creates a Repository over an open Database.
func NewRepository(database *Database) *Repository {
	return &Repository{db: database}
}

// --- documents ---

// InsertDocument stores an uploaded document.
func (r *Repository) InsertDocument(ctx context.Context, doc DocumentRecord) error {
	if err := r.check(); err != nil {
		return err
	}
	_, err := r.db.Conn().ExecContext(ctx, `
		INSERT INTO documents (id, filename, stored_path, content, granularity)
		VALUES (?, ?, ?, ?, ?)`,
		doc.ID, doc.Filename, doc.StoredPath, doc.Content, doc.Granularity)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

// GetDocument retrieves a document by ID. Returns ErrNotFound if absent.
func (r *Repository) GetDocument(ctx context.Context, id string) (DocumentRecord, error) {
	if err := r.check(); err != nil {
		return DocumentRecord{}, err
	}
	var doc DocumentRecord
	var createdAt string
	err := r.db.Conn().QueryRowContext(ctx, `
		SELECT id, filename, stored_path, content, granularity, created_at
		FROM documents WHERE id = ?`, id).
		Scan(&doc.ID, &doc.Filename, &doc.StoredPath, &doc.Content, &doc.Granularity, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return DocumentRecord{}, ErrNotFound
	}
	if err != nil {
		return DocumentRecord{}, fmt.Errorf("failed to get document: %w", err)
	}
	doc.CreatedAt, _ = time.Parse(sqliteTimeLayout, createdAt)
	return doc, nil
}

// ListDocuments returns documents newest first, content column omitted
// to keep the library listing cheap.
func (r *Repository) ListDocuments(ctx context.Context) ([]DocumentRecord, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT id, filename, stored_path, granularity, created_at
		FROM documents ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []DocumentRecord
	for rows.Next() {
		var doc DocumentRecord
		var createdAt string
		if err := rows.Scan(&doc.ID, &doc.Filename, &doc.StoredPath, &doc.Granularity, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan document row: %w", err)
		}
		doc.CreatedAt, _ = time.Parse(sqliteTimeLayout, createdAt)
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating document rows: %w", err)
	}
	return docs, nil
}

// UpdateDocumentGranularity records the granularity last used for a document.
func (r *Repository) UpdateDocumentGranularity(ctx context.Context, id string, granularity int) error {
	if err := r.check(); err != nil {
		return err
	}
	res, err := r.db.Conn().ExecContext(ctx,
		`UPDATE documents SET granularity = ? WHERE id = ?`, granularity, id)
	if err != nil {
		return fmt.Errorf("failed to update granularity: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteDocument removes a document; topics, notes, image analyses, and
// chat history go with it via foreign key cascade.
func (r *Repository) DeleteDocument(ctx context.Context, id string) error {
	if err := r.check(); err != nil {
		return err
	}
	res, err := r.db.Conn().ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- topics ---

// SyncTopics reconciles the stored topics for a document against a fresh
// extraction, keyed by the model-assigned topic ID:
//   - existing IDs are updated in place (name, description, position)
//   - new IDs are inserted
//   - stored IDs absent from the new set are deleted, cascading their
//     notes and image analyses
//
// The whole diff runs in one transaction so a granularity change is
// atomic from the UI's point of view.
func (r *Repository) SyncTopics(ctx context.Context, documentID string, topics []core.Topic) error {
	if err := r.check(); err != nil {
		return err
	}
	tx, err := r.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin topic sync: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT topic_id FROM topics WHERE document_id = ?`, documentID)
	if err != nil {
		return fmt.Errorf("failed to load existing topics: %w", err)
	}
	existing := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan topic row: %w", err)
		}
		existing[id] = true
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("error iterating topic rows: %w", err)
	}
	rows.Close()

	incoming := make(map[string]bool, len(topics))
	for pos, t := range topics {
		incoming[t.ID] = true
		if existing[t.ID] {
			_, err = tx.ExecContext(ctx, `
				UPDATE topics SET name = ?, description = ?, position = ?
				WHERE document_id = ? AND topic_id = ?`,
				t.Name, t.Description, pos, documentID, t.ID)
		} else {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO topics (document_id, topic_id, name, description, position)
				VALUES (?, ?, ?, ?, ?)`,
				documentID, t.ID, t.Name, t.Description, pos)
		}
		if err != nil {
			return fmt.Errorf("failed to upsert topic %s: %w", t.ID, err)
		}
	}

	for id := range existing {
		if incoming[id] {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM topics WHERE document_id = ? AND topic_id = ?`, documentID, id); err != nil {
			return fmt.Errorf("failed to delete topic %s: %w", id, err)
		}
		// Notes and image analyses key on topic_id, not the topics row,
		// so the cascade from documents does not reach them here.
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM notes WHERE document_id = ? AND topic_id = ?`, documentID, id); err != nil {
			return fmt.Errorf("failed to delete notes for topic %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM image_analyses WHERE document_id = ? AND topic_id = ?`, documentID, id); err != nil {
			return fmt.Errorf("failed to delete image analyses for topic %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit topic sync: %w", err)
	}
	return nil
}

// GetTopics returns a document's topics in extraction order.
func (r *Repository) GetTopics(ctx context.Context, documentID string) (*core.TopicSet, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT topic_id, name, description
		FROM topics WHERE document_id = ? ORDER BY position, id`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query topics: %w", err)
	}
	defer rows.Close()

	set := core.NewTopicSet()
	for rows.Next() {
		var t core.Topic
		if err := rows.Scan(&t.ID, &t.Name, &t.Description); err != nil {
			return nil, fmt.Errorf("failed to scan topic row: %w", err)
		}
		set.Add(t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating topic rows: %w", err)
	}
	return set, nil
}

// --- notes ---

// UpsertNote inserts or replaces the note for (document, topic, format).
// An existing note's created_at is preserved; updated_at is refreshed.
func (r *Repository) UpsertNote(ctx context.Context, note NoteRecord) error {
	if err := r.check(); err != nil {
		return err
	}
	_, err := r.db.Conn().ExecContext(ctx, `
		INSERT INTO notes (document_id, topic_id, title, content, source, format)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(document_id, topic_id, format) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			source = excluded.source,
			updated_at = CURRENT_TIMESTAMP`,
		note.DocumentID, note.TopicID, note.Title, note.Content, note.Source, string(note.Format))
	if err != nil {
		return fmt.Errorf("failed to upsert note: %w", err)
	}
	return nil
}

// UpsertNotes writes a batch of notes in one transaction. Used by the
// orchestrator's batched commits.
func (r *Repository) UpsertNotes(ctx context.Context, notes []NoteRecord) error {
	if err := r.check(); err != nil {
		return err
	}
	if len(notes) == 0 {
		return nil
	}
	tx, err := r.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin note batch: %w", err)
	}
	defer tx.Rollback()

	for _, note := range notes {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO notes (document_id, topic_id, title, content, source, format)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(document_id, topic_id, format) DO UPDATE SET
				title = excluded.title,
				content = excluded.content,
				source = excluded.source,
				updated_at = CURRENT_TIMESTAMP`,
			note.DocumentID, note.TopicID, note.Title, note.Content, note.Source, string(note.Format)); err != nil {
			return fmt.Errorf("failed to upsert note for topic %s: %w", note.TopicID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit note batch: %w", err)
	}
	return nil
}

// GetNote retrieves one note. Returns ErrNotFound if absent.
func (r *Repository) GetNote(ctx context.Context, documentID, topicID string, format core.Format) (NoteRecord, error) {
	if err := r.check(); err != nil {
		return NoteRecord{}, err
	}
	var note NoteRecord
	var formatStr, createdAt, updatedAt string
	err := r.db.Conn().QueryRowContext(ctx, `
		SELECT id, document_id, topic_id, title, content, source, format, created_at, updated_at
		FROM notes WHERE document_id = ? AND topic_id = ? AND format = ?`,
		documentID, topicID, string(format)).
		Scan(&note.ID, &note.DocumentID, &note.TopicID, &note.Title, &note.Content,
			&note.Source, &formatStr, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return NoteRecord{}, ErrNotFound
	}
	if err != nil {
		return NoteRecord{}, fmt.Errorf("failed to get note: %w", err)
	}
	note.Format = core.Format(formatStr)
	note.CreatedAt, _ = time.Parse(sqliteTimeLayout, createdAt)
	note.UpdatedAt, _ = time.Parse(sqliteTimeLayout, updatedAt)
	return note, nil
}

// GetNotes returns all notes for a document in a given format, ordered
// by topic extraction order (unknown topics last).
func (r *Repository) GetNotes(ctx context.Context, documentID string, format core.Format) ([]NoteRecord, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT n.id, n.document_id, n.topic_id, n.title, n.content, n.source, n.format,
			   n.created_at, n.updated_at
		FROM notes n
		LEFT JOIN topics t ON t.document_id = n.document_id AND t.topic_id = n.topic_id
		WHERE n.document_id = ? AND n.format = ?
		ORDER BY COALESCE(t.position, 1000000), n.id`,
		documentID, string(format))
	if err != nil {
		return nil, fmt.Errorf("failed to query notes: %w", err)
	}
	defer rows.Close()

	var notes []NoteRecord
	for rows.Next() {
		var note NoteRecord
		var formatStr, createdAt, updatedAt string
		if err := rows.Scan(&note.ID, &note.DocumentID, &note.TopicID, &note.Title,
			&note.Content, &note.Source, &formatStr, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan note row: %w", err)
		}
		note.Format = core.Format(formatStr)
		note.CreatedAt, _ = time.Parse(sqliteTimeLayout, createdAt)
		note.UpdatedAt, _ = time.Parse(sqliteTimeLayout, updatedAt)
		notes = append(notes, note)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating note rows: %w", err)
	}
	return notes, nil
}

// --- image analyses ---

// UpsertImageAnalyses writes a batch of vision results in one transaction.
func (r *Repository) UpsertImageAnalyses(ctx context.Context, analyses []ImageAnalysisRecord) error {
	if err := r.check(); err != nil {
		return err
	}
	if len(analyses) == 0 {
		return nil
	}
	tx, err := r.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin analysis batch: %w", err)
	}
	defer tx.Rollback()

	for _, a := range analyses {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO image_analyses (document_id, filename, topic_id, description)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(document_id, filename, topic_id) DO UPDATE SET
				description = excluded.description`,
			a.DocumentID, a.Filename, a.TopicID, a.Description); err != nil {
			return fmt.Errorf("failed to upsert analysis for %s: %w", a.Filename, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit analysis batch: %w", err)
	}
	return nil
}

// GetImageAnalyses returns a document's cached vision results as
// topicID -> image name -> description, the shape the note pipeline
// consumes. AnalyzedFilenames reports which files are already covered.
func (r *Repository) GetImageAnalyses(ctx context.Context, documentID string) (map[string]map[string]string, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT filename, topic_id, description
		FROM image_analyses WHERE document_id = ? ORDER BY filename`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query image analyses: %w", err)
	}
	defer rows.Close()

	result := make(map[string]map[string]string)
	for rows.Next() {
		var filename, topicID, description string
		if err := rows.Scan(&filename, &topicID, &description); err != nil {
			return nil, fmt.Errorf("failed to scan analysis row: %w", err)
		}
		if result[topicID] == nil {
			result[topicID] = make(map[string]string)
		}
		result[topicID][filename] = description
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating analysis rows: %w", err)
	}
	return result, nil
}

// AnalyzedFilenames returns the set of image filenames that already have
// at least one stored analysis for the document.
func (r *Repository) AnalyzedFilenames(ctx context.Context, documentID string) (map[string]bool, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT DISTINCT filename FROM image_analyses WHERE document_id = ?`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query analyzed filenames: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]bool)
	for rows.Next() {
		var filename string
		if err := rows.Scan(&filename); err != nil {
			return nil, fmt.Errorf("failed to scan filename row: %w", err)
		}
		seen[filename] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating filename rows: %w", err)
	}
	return seen, nil
}

// --- chat history ---

// InsertChatMessage appends one conversation turn.
func (r *Repository) InsertChatMessage(ctx context.Context, msg ChatMessageRecord) error {
	if err := r.check(); err != nil {
		return err
	}
	_, err := r.db.Conn().ExecContext(ctx, `
		INSERT INTO chat_messages (document_id, sender, message)
		VALUES (?, ?, ?)`,
		msg.DocumentID, msg.Sender, msg.Message)
	if err != nil {
		return fmt.Errorf("failed to insert chat message: %w", err)
	}
	return nil
}

// GetChatHistory returns a document's conversation oldest first.
func (r *Repository) GetChatHistory(ctx context.Context, documentID string) ([]core.ChatEntry, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT sender, message, created_at
		FROM chat_messages WHERE document_id = ? ORDER BY id`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat history: %w", err)
	}
	defer rows.Close()

	var history []core.ChatEntry
	for rows.Next() {
		var entry core.ChatEntry
		var createdAt string
		if err := rows.Scan(&entry.Sender, &entry.Message, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat row: %w", err)
		}
		entry.Timestamp, _ = time.Parse(sqliteTimeLayout, createdAt)
		history = append(history, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chat rows: %w", err)
	}
	return history, nil
}

func (r *Repository) check() error {
	if r.db == nil || r.db.Conn() == nil {
		return fmt.Errorf("database connection is nil")
	}
	return nil
}
