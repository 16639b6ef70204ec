package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"smartnotes/core"
	"smartnotes/db"
	"smartnotes/extractor"
	"smartnotes/imageanalyzer"
	"smartnotes/logging"
	"smartnotes/metrics"
	"smartnotes/notegen"
	"smartnotes/topics"
)

// routedGen answers LLM prompts by recognizing which pipeline stage
// built them. Responses are overridable per stage.
type routedGen struct {
	mu    sync.Mutex
	calls []string

	topicsJSON string
	topicInfo  string
	enhanced   string
	classify   string
	rewrite    string
	answer     string
	merged     string

	// failEnhanceFor / failRewriteFor make that stage fail for prompts
	// mentioning the given topic name.
	failEnhanceFor string
	failRewriteFor string

	rewritePrompts []string
}

func newRoutedGen() *routedGen {
	return &routedGen{
		topicsJSON: `{"topics": [
			{"id": "topic_1", "name": "Cell Structure", "description": "Parts of the cell"},
			{"id": "topic_2", "name": "Osmosis", "description": "Water transport"}
		]}`,
		topicInfo: "Raw facts about the topic.",
		enhanced:  "## Key Points\n\nOsmosis moves water across membranes near Cell Structure boundaries.",
		classify:  "unknown",
		rewrite:   "## Revised\n\nShorter now.",
		answer:    "Water moves toward higher solute concentration.",
		merged:    "Cell Transport",
	}
}

func (g *routedGen) Generate(_ context.Context, prompt string, _ int64) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch {
	case strings.Contains(prompt, "extract the main topics at a granularity"):
		g.calls = append(g.calls, "topics")
		return g.topicsJSON, nil
	case strings.Contains(prompt, "Extract all information related to the topic"):
		g.calls = append(g.calls, "info")
		return g.topicInfo, nil
	case strings.Contains(prompt, "educational content expert"):
		g.calls = append(g.calls, "enhance")
		if g.failEnhanceFor != "" && strings.Contains(prompt, g.failEnhanceFor) {
			return "", errors.New("quota limit reached")
		}
		return g.enhanced, nil
	case strings.Contains(prompt, "Classify the following user instruction"):
		g.calls = append(g.calls, "classify")
		return g.classify, nil
	case strings.Contains(prompt, "revising a study note"):
		g.calls = append(g.calls, "rewrite")
		g.rewritePrompts = append(g.rewritePrompts, prompt)
		if g.failRewriteFor != "" && strings.Contains(prompt, g.failRewriteFor) {
			return "", errors.New("quota limit reached")
		}
		return g.rewrite, nil
	case strings.Contains(prompt, "Combine the following study topic titles"):
		g.calls = append(g.calls, "merge")
		return g.merged, nil
	case strings.Contains(prompt, "study assistant answering a question"):
		g.calls = append(g.calls, "answer")
		return g.answer, nil
	}
	return "", fmt.Errorf("unrecognized prompt: %s", prompt[:min(len(prompt), 60)])
}

func (g *routedGen) callCount(stage string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		if c == stage {
			n++
		}
	}
	return n
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// noVision fails any vision call; the tests never stage images.
type noVision struct{}

func (noVision) GenerateWithImage(context.Context, string, string, int64) (string, error) {
	return "", errors.New("no vision calls expected")
}

func testConfig() *core.Config {
	return &core.Config{
		NoteModel:             "test-model",
		VisionModel:           "test-model",
		TopicExtractionTokens: 2048,
		NoteResponseTokens:    4096,
		ImageAnalysisTokens:   1024,
		AnswerTokens:          2048,
		TopicExtractionChars:  10000,
		TopicInfoChars:        50000,
		QuestionContextChars:  20000,
		MaxConcurrent:         4,
	}
}

type harness struct {
	orch  *Orchestrator
	repo  *db.Repository
	gen   *routedGen
	store *metrics.Store
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	database, err := db.NewDatabaseWithConfig(db.DatabaseConfig{
		Path:           filepath.Join(t.TempDir(), "test.db"),
		MigrationsPath: "file://../db/migrations",
	})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := database.Migrate(); err != nil {
		t.Fatalf("migration failed: %v", err)
	}

	cfg := testConfig()
	gen := newRoutedGen()
	logger := logging.NewNopLogger()
	repo := db.NewRepository(database)
	store := metrics.NewStore(metrics.DefaultStoreConfig(), time.Now())

	orch := New(Deps{
		Config:    cfg,
		Repo:      repo,
		Extractor: extractor.New(nil),
		Topics:    topics.NewExtractor(gen, cfg, logger),
		Notes:     notegen.NewGenerator(gen, cfg, logger),
		Images:    imageanalyzer.NewAnalyzer(noVision{}, cfg, logger),
		Pool:      NewPool(cfg.MaxConcurrent),
		Collector: store,
		Logger:    logger,
	})
	return &harness{orch: orch, repo: repo, gen: gen, store: store}
}

func (h *harness) ingest(t *testing.T, content string) db.DocumentRecord {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lecture.txt")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	doc, _, err := h.orch.IngestDocument(context.Background(), IngestRequest{
		StoredPath:  path,
		Filename:    "lecture.txt",
		Granularity: 50,
	})
	if err != nil {
		t.Fatalf("IngestDocument: %v", err)
	}
	return doc
}

func TestIngestDocumentStoresTopics(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	doc := h.ingest(t, "Cells contain organelles. Osmosis moves water.")

	stored, err := h.repo.GetDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if stored.Content != "Cells contain organelles. Osmosis moves water." {
		t.Errorf("stored content = %q", stored.Content)
	}
	if stored.Granularity != 50 {
		t.Errorf("granularity = %d, want 50", stored.Granularity)
	}

	set, err := h.repo.GetTopics(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetTopics: %v", err)
	}
	if set.Len() != 2 {
		t.Fatalf("topic count = %d, want 2", set.Len())
	}
	if topic, ok := set.Get("topic_2"); !ok || topic.Name != "Osmosis" {
		t.Errorf("topic_2 = %+v, ok = %v", topic, ok)
	}
}

func TestIngestDocumentExtractionFailureKeepsDocument(t *testing.T) {
	h := newHarness(t)
	h.gen.topicsJSON = "sorry, I cannot do that"
	ctx := context.Background()

	doc := h.ingest(t, "Some text.")

	// The failure sentinel is returned to the caller but never synced.
	set, err := h.repo.GetTopics(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetTopics: %v", err)
	}
	if set.Len() != 0 {
		t.Errorf("topics synced after failed extraction: %d", set.Len())
	}
	if _, err := h.repo.GetDocument(ctx, doc.ID); err != nil {
		t.Errorf("document should survive extraction failure: %v", err)
	}
}

func TestUpdateGranularityResyncsTopics(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.ingest(t, "Cells and water.")

	h.gen.topicsJSON = `{"topics": [
		{"id": "topic_1", "name": "Cell Structure", "description": "kept"},
		{"id": "topic_3", "name": "Diffusion", "description": "new"}
	]}`
	set, err := h.orch.UpdateGranularity(ctx, doc.ID, 80)
	if err != nil {
		t.Fatalf("UpdateGranularity: %v", err)
	}
	if set.Len() != 2 {
		t.Fatalf("returned set size = %d", set.Len())
	}

	stored, err := h.repo.GetTopics(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetTopics: %v", err)
	}
	if _, ok := stored.Get("topic_2"); ok {
		t.Error("removed topic_2 still stored")
	}
	if _, ok := stored.Get("topic_3"); !ok {
		t.Error("new topic_3 missing")
	}

	updated, _ := h.repo.GetDocument(ctx, doc.ID)
	if updated.Granularity != 80 {
		t.Errorf("granularity = %d, want 80", updated.Granularity)
	}
}

func TestUpdateGranularityFailureKeepsStoredTopics(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.ingest(t, "Cells and water.")

	h.gen.topicsJSON = "not json"
	set, err := h.orch.UpdateGranularity(ctx, doc.ID, 10)
	if err != nil {
		t.Fatalf("UpdateGranularity: %v", err)
	}
	if !topics.IsErrorSet(set) {
		t.Fatal("expected the failure sentinel")
	}

	stored, _ := h.repo.GetTopics(ctx, doc.ID)
	if stored.Len() != 2 {
		t.Errorf("stored topics changed after failed re-extraction: %d", stored.Len())
	}
	updated, _ := h.repo.GetDocument(ctx, doc.ID)
	if updated.Granularity != 50 {
		t.Errorf("granularity changed after failed re-extraction: %d", updated.Granularity)
	}
}

func TestMergeTopicsCombinesSelection(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.ingest(t, "Cells and water.")

	if _, err := h.orch.GenerateNotes(ctx, doc.ID, core.FormatMarkdown); err != nil {
		t.Fatalf("GenerateNotes: %v", err)
	}

	set, err := h.orch.MergeTopics(ctx, doc.ID, []string{"topic_1", "topic_2"})
	if err != nil {
		t.Fatalf("MergeTopics: %v", err)
	}
	if set.Len() != 1 {
		t.Fatalf("merged set size = %d, want 1", set.Len())
	}
	merged := set.Topics()[0]
	if merged.Name != "Cell Transport" {
		t.Errorf("merged name = %q, want Cell Transport", merged.Name)
	}
	if !strings.HasPrefix(merged.ID, "merged_") {
		t.Errorf("merged id = %q", merged.ID)
	}
	if !strings.Contains(merged.Description, "Parts of the cell") ||
		!strings.Contains(merged.Description, "Water transport") {
		t.Errorf("merged description lost source text: %q", merged.Description)
	}

	stored, err := h.repo.GetTopics(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetTopics: %v", err)
	}
	if stored.Len() != 1 {
		t.Fatalf("stored topic count = %d, want 1", stored.Len())
	}
	if _, ok := stored.Get("topic_1"); ok {
		t.Error("merged-away topic_1 still stored")
	}

	// The old topics' notes go with them; the next generation run
	// rebuilds against the merged topic.
	notes, err := h.repo.GetNotes(ctx, doc.ID, core.FormatMarkdown)
	if err != nil {
		t.Fatalf("GetNotes: %v", err)
	}
	for _, note := range notes {
		if note.TopicID == "topic_1" || note.TopicID == "topic_2" {
			t.Errorf("note for merged-away topic %s still stored", note.TopicID)
		}
	}
}

func TestMergeTopicsRequiresTwo(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.ingest(t, "Cells and water.")

	cases := []struct {
		name string
		ids  []string
	}{
		{"single", []string{"topic_1"}},
		{"duplicate", []string{"topic_1", "topic_1"}},
		{"unknown", []string{"topic_1", "topic_9"}},
	}
	for _, tc := range cases {
		if _, err := h.orch.MergeTopics(ctx, doc.ID, tc.ids); !errors.Is(err, ErrMergeTooFew) {
			t.Errorf("%s: err = %v, want ErrMergeTooFew", tc.name, err)
		}
	}

	stored, _ := h.repo.GetTopics(ctx, doc.ID)
	if stored.Len() != 2 {
		t.Errorf("stored topics changed after rejected merges: %d", stored.Len())
	}
}

func TestGenerateNotesMarkdown(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.ingest(t, "Cells contain organelles. Osmosis moves water.")

	result, err := h.orch.GenerateNotes(ctx, doc.ID, core.FormatMarkdown)
	if err != nil {
		t.Fatalf("GenerateNotes: %v", err)
	}
	if len(result.Errors) != 0 {
		t.Fatalf("unexpected topic errors: %v", result.Errors)
	}
	notes := result.Notes

	// Index note first, then one note per topic.
	if len(notes) != 3 {
		t.Fatalf("note count = %d, want 3", len(notes))
	}
	if notes[0].TopicID != IndexTopicID || notes[0].Title != IndexTitle {
		t.Errorf("first note = %s/%s, want index", notes[0].TopicID, notes[0].Title)
	}
	if !strings.Contains(notes[0].Content, "[Osmosis](Osmosis.md)") {
		t.Errorf("index missing topic link:\n%s", notes[0].Content)
	}

	var osmosis db.NoteRecord
	for _, note := range notes {
		if note.Title == "Osmosis" {
			osmosis = note
		}
	}
	if !strings.HasPrefix(osmosis.Content, "# Osmosis\n\n") {
		t.Errorf("note missing title heading:\n%s", osmosis.Content)
	}
	// The enhanced text mentions "Cell Structure"; the linking pass
	// should turn it into a cross-link.
	if !strings.Contains(osmosis.Content, "[Cell Structure](Cell_Structure.md)") {
		t.Errorf("note missing cross-link:\n%s", osmosis.Content)
	}

	// Everything was persisted, links included.
	stored, err := h.repo.GetNote(ctx, doc.ID, osmosis.TopicID, core.FormatMarkdown)
	if err != nil {
		t.Fatalf("GetNote: %v", err)
	}
	if stored.Content != osmosis.Content {
		t.Error("stored note differs from returned note")
	}

	runs := h.store.GetRecentRuns(1)
	if len(runs) != 1 || runs[0].Status != metrics.TaskStatusSuccess {
		t.Fatalf("runs = %+v", runs)
	}
	if runs[0].NotesGenerated != 2 {
		t.Errorf("NotesGenerated = %d, want 2", runs[0].NotesGenerated)
	}
}

func TestGenerateNotesReusesExisting(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.ingest(t, "Cells contain organelles. Osmosis moves water.")

	if _, err := h.orch.GenerateNotes(ctx, doc.ID, core.FormatMarkdown); err != nil {
		t.Fatalf("first run: %v", err)
	}
	before := h.gen.callCount("enhance")

	result, err := h.orch.GenerateNotes(ctx, doc.ID, core.FormatMarkdown)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(result.Notes) != 3 {
		t.Errorf("note count = %d, want 3", len(result.Notes))
	}
	if after := h.gen.callCount("enhance"); after != before {
		t.Errorf("second run called the model: %d -> %d", before, after)
	}

	runs := h.store.GetRecentRuns(1)
	if runs[0].NotesGenerated != 0 {
		t.Errorf("NotesGenerated = %d, want 0 on cached run", runs[0].NotesGenerated)
	}
}

func TestGenerateNotesRelinksCachedNotes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// First run knows only one topic, so "Osmosis" in the note body
	// stays plain text.
	h.gen.topicsJSON = `{"topics": [
		{"id": "topic_1", "name": "Cell Structure", "description": "Parts of the cell"}
	]}`
	doc := h.ingest(t, "Cells contain organelles. Osmosis moves water.")
	if _, err := h.orch.GenerateNotes(ctx, doc.ID, core.FormatMarkdown); err != nil {
		t.Fatalf("first run: %v", err)
	}
	first, err := h.repo.GetNote(ctx, doc.ID, "topic_1", core.FormatMarkdown)
	if err != nil {
		t.Fatalf("GetNote: %v", err)
	}
	if strings.Contains(first.Content, "[Osmosis](Osmosis.md)") {
		t.Fatalf("first run linked an unknown topic:\n%s", first.Content)
	}

	// A granularity change surfaces Osmosis as its own topic. The
	// second run reuses the cached Cell Structure note but must still
	// link it against the grown topic set.
	h.gen.topicsJSON = newRoutedGen().topicsJSON
	if _, err := h.orch.UpdateGranularity(ctx, doc.ID, 80); err != nil {
		t.Fatalf("UpdateGranularity: %v", err)
	}
	before := h.gen.callCount("enhance")
	if _, err := h.orch.GenerateNotes(ctx, doc.ID, core.FormatMarkdown); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if after := h.gen.callCount("enhance"); after != before+1 {
		t.Errorf("enhance calls = %d, want %d (only the new topic)", after, before+1)
	}

	stored, err := h.repo.GetNote(ctx, doc.ID, "topic_1", core.FormatMarkdown)
	if err != nil {
		t.Fatalf("GetNote after second run: %v", err)
	}
	if !strings.Contains(stored.Content, "[Osmosis](Osmosis.md)") {
		t.Errorf("cached note missing link to new topic:\n%s", stored.Content)
	}
	if stored.Source == "" {
		t.Error("cached note lost its markdown source")
	}
}

func TestGenerateNotesDistinctFormats(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.ingest(t, "Cells contain organelles. Osmosis moves water.")

	if _, err := h.orch.GenerateNotes(ctx, doc.ID, core.FormatMarkdown); err != nil {
		t.Fatalf("markdown run: %v", err)
	}
	result, err := h.orch.GenerateNotes(ctx, doc.ID, core.FormatLaTeX)
	if err != nil {
		t.Fatalf("latex run: %v", err)
	}

	// No index note outside markdown.
	if len(result.Notes) != 2 {
		t.Fatalf("latex note count = %d, want 2", len(result.Notes))
	}
	for _, note := range result.Notes {
		if !strings.Contains(note.Content, `\documentclass{article}`) {
			t.Errorf("latex note missing preamble:\n%s", note.Content[:min(len(note.Content), 120)])
		}
	}
}

func TestGenerateNotesPartialFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.ingest(t, "Cells contain organelles. Osmosis moves water.")
	h.gen.failEnhanceFor = "Osmosis"

	result, err := h.orch.GenerateNotes(ctx, doc.ID, core.FormatMarkdown)
	if err != nil {
		t.Fatalf("GenerateNotes: %v", err)
	}

	// Index + the surviving topic; the failed topic becomes an error entry.
	if len(result.Notes) != 2 {
		t.Fatalf("note count = %d, want 2", len(result.Notes))
	}
	if result.Generated != 1 {
		t.Errorf("Generated = %d, want 1", result.Generated)
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], "Osmosis") {
		t.Fatalf("errors = %v, want one naming Osmosis", result.Errors)
	}
	for _, note := range result.Notes {
		if note.Title == "Osmosis" {
			t.Error("failed topic produced a note")
		}
	}

	// The failed topic isn't cached; a retry regenerates it.
	h.gen.failEnhanceFor = ""
	retry, err := h.orch.GenerateNotes(ctx, doc.ID, core.FormatMarkdown)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if len(retry.Notes) != 3 || len(retry.Errors) != 0 {
		t.Fatalf("retry notes = %d errors = %v", len(retry.Notes), retry.Errors)
	}
}

func TestGenerateNotesNoTopics(t *testing.T) {
	h := newHarness(t)
	h.gen.topicsJSON = "broken"
	doc := h.ingest(t, "Some text.")

	_, err := h.orch.GenerateNotes(context.Background(), doc.ID, core.FormatMarkdown)
	if !errors.Is(err, ErrNoTopics) {
		t.Errorf("err = %v, want ErrNoTopics", err)
	}
}

func TestApplyUserInstructionEmpty(t *testing.T) {
	h := newHarness(t)
	doc := h.ingest(t, "Some text.")

	res, err := h.orch.ApplyUserInstruction(context.Background(), doc.ID, "   \n", core.FormatMarkdown)
	if err != nil {
		t.Fatalf("ApplyUserInstruction: %v", err)
	}
	if res.Status != StatusEmptyInstruction {
		t.Errorf("status = %q", res.Status)
	}
	if h.gen.callCount("classify") != 0 {
		t.Error("empty instruction reached the model")
	}
}

func TestApplyUserInstructionUnknown(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.ingest(t, "Some text.")
	h.gen.classify = "no idea"

	res, err := h.orch.ApplyUserInstruction(ctx, doc.ID, "do the thing", core.FormatMarkdown)
	if err != nil {
		t.Fatalf("ApplyUserInstruction: %v", err)
	}
	if res.Status != StatusUnknownInstruction {
		t.Errorf("status = %q", res.Status)
	}

	history, _ := h.repo.GetChatHistory(ctx, doc.ID)
	if len(history) != 0 {
		t.Errorf("unknown instruction persisted chat turns: %d", len(history))
	}
}

func TestApplyUserInstructionModification(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.ingest(t, "Cells contain organelles. Osmosis moves water.")
	if _, err := h.orch.GenerateNotes(ctx, doc.ID, core.FormatMarkdown); err != nil {
		t.Fatalf("GenerateNotes: %v", err)
	}

	h.gen.classify = "modification_request"
	res, err := h.orch.ApplyUserInstruction(ctx, doc.ID, "make the notes shorter", core.FormatMarkdown)
	if err != nil {
		t.Fatalf("ApplyUserInstruction: %v", err)
	}
	if res.Status != StatusModificationApplied {
		t.Fatalf("status = %q", res.Status)
	}
	if len(res.UpdatedTopics) != 2 {
		t.Errorf("updated topics = %v", res.UpdatedTopics)
	}

	note, err := h.repo.GetNote(ctx, doc.ID, "topic_1", core.FormatMarkdown)
	if err != nil {
		t.Fatalf("GetNote: %v", err)
	}
	if !strings.Contains(note.Content, "Shorter now.") {
		t.Errorf("note not rewritten:\n%s", note.Content)
	}
	// The rewrite prompt carries the topic's extracted description.
	h.gen.mu.Lock()
	var sawSnippet bool
	for _, prompt := range h.gen.rewritePrompts {
		if strings.Contains(prompt, "Parts of the cell") {
			sawSnippet = true
		}
	}
	h.gen.mu.Unlock()
	if !sawSnippet {
		t.Error("no rewrite prompt carried the topic description")
	}
	// The index note is never rewritten.
	index, _ := h.repo.GetNote(ctx, doc.ID, IndexTopicID, core.FormatMarkdown)
	if strings.Contains(index.Content, "Shorter now.") {
		t.Error("index note was rewritten")
	}

	history, _ := h.repo.GetChatHistory(ctx, doc.ID)
	if len(history) != 2 || history[0].Sender != "user" || history[1].Sender != "ai" {
		t.Errorf("chat history = %+v", history)
	}
}

func TestApplyUserInstructionPartialRewrite(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.ingest(t, "Cells contain organelles. Osmosis moves water.")
	if _, err := h.orch.GenerateNotes(ctx, doc.ID, core.FormatMarkdown); err != nil {
		t.Fatalf("GenerateNotes: %v", err)
	}

	h.gen.classify = "modification_request"
	h.gen.failRewriteFor = "Osmosis"
	res, err := h.orch.ApplyUserInstruction(ctx, doc.ID, "make the notes shorter", core.FormatMarkdown)
	if err != nil {
		t.Fatalf("ApplyUserInstruction: %v", err)
	}
	if res.Status != StatusModificationApplied {
		t.Fatalf("status = %q", res.Status)
	}
	if len(res.UpdatedTopics) != 1 || res.UpdatedTopics[0] != "topic_1" {
		t.Errorf("updated topics = %v", res.UpdatedTopics)
	}
	if len(res.Errors) != 1 || !strings.Contains(res.Errors[0], "Osmosis") {
		t.Fatalf("errors = %v, want one naming Osmosis", res.Errors)
	}

	// The failed topic's note is untouched.
	osmosis, err := h.repo.GetNote(ctx, doc.ID, "topic_2", core.FormatMarkdown)
	if err != nil {
		t.Fatalf("GetNote: %v", err)
	}
	if strings.Contains(osmosis.Content, "Shorter now.") {
		t.Error("failed rewrite still changed the note")
	}
}

func TestApplyUserInstructionQuestion(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.ingest(t, "Osmosis moves water.")

	h.gen.classify = "question"
	res, err := h.orch.ApplyUserInstruction(ctx, doc.ID, "why does water move?", core.FormatMarkdown)
	if err != nil {
		t.Fatalf("ApplyUserInstruction: %v", err)
	}
	if res.Status != StatusQuestionAnswered {
		t.Fatalf("status = %q", res.Status)
	}
	if res.Reply != "Water moves toward higher solute concentration." {
		t.Errorf("reply = %q", res.Reply)
	}

	history, _ := h.repo.GetChatHistory(ctx, doc.ID)
	if len(history) != 2 {
		t.Fatalf("chat history length = %d", len(history))
	}
	if history[1].Sender != "ai" || history[1].Message != res.Reply {
		t.Errorf("ai turn = %+v", history[1])
	}
}
