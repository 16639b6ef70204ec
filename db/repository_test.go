package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"smartnotes/core"
)

// setupTestRepo opens a migrated database in a temp directory. The
// migrations ship with the package, so "file://migrations" resolves
// relative to the test working directory.
func setupTestRepo(t *testing.T) *Repository {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	database, err := NewDatabaseWithConfig(DatabaseConfig{
		Path:           dbPath,
		MigrationsPath: "file://migrations",
	})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := database.Migrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return NewRepository(database)
}

func insertTestDocument(t *testing.T, repo *Repository, id string) {
	t.Helper()
	err := repo.InsertDocument(context.Background(), DocumentRecord{
		ID:          id,
		Filename:    "lecture.pdf",
		StoredPath:  "/uploads/" + id + "/lecture.pdf",
		Content:     "Cells divide through mitosis.",
		Granularity: 50,
	})
	if err != nil {
		t.Fatalf("failed to insert document: %v", err)
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	insertTestDocument(t, repo, "doc-1")

	doc, err := repo.GetDocument(ctx, "doc-1")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if doc.Filename != "lecture.pdf" {
		t.Errorf("Filename = %q, want %q", doc.Filename, "lecture.pdf")
	}
	if doc.Content != "Cells divide through mitosis." {
		t.Errorf("Content = %q", doc.Content)
	}
	if doc.Granularity != 50 {
		t.Errorf("Granularity = %d, want 50", doc.Granularity)
	}
}

func TestGetDocumentNotFound(t *testing.T) {
	repo := setupTestRepo(t)

	_, err := repo.GetDocument(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListDocuments(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	insertTestDocument(t, repo, "doc-a")
	insertTestDocument(t, repo, "doc-b")

	docs, err := repo.ListDocuments(ctx)
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d documents, want 2", len(docs))
	}
	// Same created_at second; the id tiebreaker puts doc-b first.
	if docs[0].ID != "doc-b" {
		t.Errorf("first document = %q, want doc-b", docs[0].ID)
	}
	// The listing omits content.
	if docs[0].Content != "" {
		t.Errorf("listing carried content: %q", docs[0].Content)
	}
}

func TestUpdateDocumentGranularity(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	insertTestDocument(t, repo, "doc-1")
	if err := repo.UpdateDocumentGranularity(ctx, "doc-1", 80); err != nil {
		t.Fatalf("UpdateDocumentGranularity: %v", err)
	}

	doc, err := repo.GetDocument(ctx, "doc-1")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if doc.Granularity != 80 {
		t.Errorf("Granularity = %d, want 80", doc.Granularity)
	}

	if err := repo.UpdateDocumentGranularity(ctx, "missing", 10); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing document, got %v", err)
	}
}

func TestSyncTopicsDiff(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	insertTestDocument(t, repo, "doc-1")

	initial := []core.Topic{
		{ID: "topic_1", Name: "Mitosis", Description: "cell division"},
		{ID: "topic_2", Name: "Meiosis", Description: "gamete formation"},
	}
	if err := repo.SyncTopics(ctx, "doc-1", initial); err != nil {
		t.Fatalf("initial sync: %v", err)
	}

	// A note hangs off topic_2; it must disappear when the topic does.
	err := repo.UpsertNote(ctx, NoteRecord{
		DocumentID: "doc-1", TopicID: "topic_2",
		Title: "Meiosis", Content: "# Meiosis\n", Format: core.FormatMarkdown,
	})
	if err != nil {
		t.Fatalf("UpsertNote: %v", err)
	}

	// topic_1 renamed, topic_2 dropped, topic_3 added.
	updated := []core.Topic{
		{ID: "topic_1", Name: "Cell Division", Description: "mitosis in detail"},
		{ID: "topic_3", Name: "Cytokinesis", Description: "cytoplasm split"},
	}
	if err := repo.SyncTopics(ctx, "doc-1", updated); err != nil {
		t.Fatalf("second sync: %v", err)
	}

	set, err := repo.GetTopics(ctx, "doc-1")
	if err != nil {
		t.Fatalf("GetTopics: %v", err)
	}
	if set.Len() != 2 {
		t.Fatalf("got %d topics, want 2", set.Len())
	}
	ids := set.IDs()
	if ids[0] != "topic_1" || ids[1] != "topic_3" {
		t.Errorf("topic order = %v", ids)
	}
	if topic, _ := set.Get("topic_1"); topic.Name != "Cell Division" {
		t.Errorf("topic_1 name = %q, want updated name", topic.Name)
	}

	if _, err := repo.GetNote(ctx, "doc-1", "topic_2", core.FormatMarkdown); !errors.Is(err, ErrNotFound) {
		t.Errorf("note for removed topic survived: %v", err)
	}
}

func TestUpsertNoteReplacesContent(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	insertTestDocument(t, repo, "doc-1")

	note := NoteRecord{
		DocumentID: "doc-1", TopicID: "topic_1",
		Title: "Mitosis", Content: "first draft", Source: "first source",
		Format: core.FormatMarkdown,
	}
	if err := repo.UpsertNote(ctx, note); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	note.Content = "second draft"
	note.Source = "second source"
	if err := repo.UpsertNote(ctx, note); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := repo.GetNote(ctx, "doc-1", "topic_1", core.FormatMarkdown)
	if err != nil {
		t.Fatalf("GetNote: %v", err)
	}
	if got.Content != "second draft" {
		t.Errorf("Content = %q, want second draft", got.Content)
	}
	if got.Source != "second source" {
		t.Errorf("Source = %q, want second source", got.Source)
	}

	notes, err := repo.GetNotes(ctx, "doc-1", core.FormatMarkdown)
	if err != nil {
		t.Fatalf("GetNotes: %v", err)
	}
	if len(notes) != 1 {
		t.Errorf("upsert duplicated the note: %d rows", len(notes))
	}
}

func TestGetNotesDistinctFormats(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	insertTestDocument(t, repo, "doc-1")

	for _, format := range []core.Format{core.FormatMarkdown, core.FormatHTML} {
		err := repo.UpsertNote(ctx, NoteRecord{
			DocumentID: "doc-1", TopicID: "topic_1",
			Title: "Mitosis", Content: "body", Format: format,
		})
		if err != nil {
			t.Fatalf("UpsertNote %s: %v", format, err)
		}
	}

	md, err := repo.GetNotes(ctx, "doc-1", core.FormatMarkdown)
	if err != nil {
		t.Fatalf("GetNotes: %v", err)
	}
	if len(md) != 1 || md[0].Format != core.FormatMarkdown {
		t.Errorf("markdown query returned %v", md)
	}
}

func TestUpsertNotesBatch(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	insertTestDocument(t, repo, "doc-1")
	if err := repo.SyncTopics(ctx, "doc-1", []core.Topic{
		{ID: "topic_1", Name: "Alpha"},
		{ID: "topic_2", Name: "Beta"},
	}); err != nil {
		t.Fatalf("SyncTopics: %v", err)
	}

	batch := []NoteRecord{
		{DocumentID: "doc-1", TopicID: "topic_2", Title: "Beta", Content: "b", Format: core.FormatMarkdown},
		{DocumentID: "doc-1", TopicID: "topic_1", Title: "Alpha", Content: "a", Format: core.FormatMarkdown},
	}
	if err := repo.UpsertNotes(ctx, batch); err != nil {
		t.Fatalf("UpsertNotes: %v", err)
	}

	notes, err := repo.GetNotes(ctx, "doc-1", core.FormatMarkdown)
	if err != nil {
		t.Fatalf("GetNotes: %v", err)
	}
	if len(notes) != 2 {
		t.Fatalf("got %d notes, want 2", len(notes))
	}
	// Ordered by topic position, not insert order.
	if notes[0].TopicID != "topic_1" {
		t.Errorf("first note topic = %q, want topic_1", notes[0].TopicID)
	}
}

func TestImageAnalysisCache(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	insertTestDocument(t, repo, "doc-1")

	batch := []ImageAnalysisRecord{
		{DocumentID: "doc-1", Filename: "img_001.jpg", TopicID: "topic_1", Description: "mitosis diagram"},
		{DocumentID: "doc-1", Filename: "img_001.jpg", TopicID: "topic_2", Description: "spindle detail"},
		{DocumentID: "doc-1", Filename: "img_002.jpg", TopicID: "topic_1", Description: "cell wall"},
	}
	if err := repo.UpsertImageAnalyses(ctx, batch); err != nil {
		t.Fatalf("UpsertImageAnalyses: %v", err)
	}

	byTopic, err := repo.GetImageAnalyses(ctx, "doc-1")
	if err != nil {
		t.Fatalf("GetImageAnalyses: %v", err)
	}
	if len(byTopic["topic_1"]) != 2 {
		t.Errorf("topic_1 analyses = %v", byTopic["topic_1"])
	}
	if byTopic["topic_2"]["img_001.jpg"] != "spindle detail" {
		t.Errorf("topic_2/img_001 = %q", byTopic["topic_2"]["img_001.jpg"])
	}

	seen, err := repo.AnalyzedFilenames(ctx, "doc-1")
	if err != nil {
		t.Fatalf("AnalyzedFilenames: %v", err)
	}
	if !seen["img_001.jpg"] || !seen["img_002.jpg"] || len(seen) != 2 {
		t.Errorf("AnalyzedFilenames = %v", seen)
	}

	// Re-analysis overwrites the description, no duplicate row.
	batch[0].Description = "updated"
	if err := repo.UpsertImageAnalyses(ctx, batch[:1]); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}
	byTopic, _ = repo.GetImageAnalyses(ctx, "doc-1")
	if byTopic["topic_1"]["img_001.jpg"] != "updated" {
		t.Errorf("description not replaced: %q", byTopic["topic_1"]["img_001.jpg"])
	}
}

func TestChatHistoryOrder(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	insertTestDocument(t, repo, "doc-1")

	turns := []ChatMessageRecord{
		{DocumentID: "doc-1", Sender: "user", Message: "make the notes shorter"},
		{DocumentID: "doc-1", Sender: "ai", Message: "done"},
		{DocumentID: "doc-1", Sender: "user", Message: "what is mitosis?"},
	}
	for _, turn := range turns {
		if err := repo.InsertChatMessage(ctx, turn); err != nil {
			t.Fatalf("InsertChatMessage: %v", err)
		}
	}

	history, err := repo.GetChatHistory(ctx, "doc-1")
	if err != nil {
		t.Fatalf("GetChatHistory: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("got %d entries, want 3", len(history))
	}
	if history[0].Message != "make the notes shorter" || history[2].Sender != "user" {
		t.Errorf("history out of order: %+v", history)
	}
}

func TestDeleteDocumentCascades(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	insertTestDocument(t, repo, "doc-1")
	if err := repo.SyncTopics(ctx, "doc-1", []core.Topic{{ID: "topic_1", Name: "Alpha"}}); err != nil {
		t.Fatalf("SyncTopics: %v", err)
	}
	if err := repo.InsertChatMessage(ctx, ChatMessageRecord{
		DocumentID: "doc-1", Sender: "user", Message: "hi",
	}); err != nil {
		t.Fatalf("InsertChatMessage: %v", err)
	}

	if err := repo.DeleteDocument(ctx, "doc-1"); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}

	set, err := repo.GetTopics(ctx, "doc-1")
	if err != nil {
		t.Fatalf("GetTopics: %v", err)
	}
	if set.Len() != 0 {
		t.Errorf("topics survived delete: %d", set.Len())
	}
	history, err := repo.GetChatHistory(ctx, "doc-1")
	if err != nil {
		t.Fatalf("GetChatHistory: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("chat history survived delete: %d", len(history))
	}
}
