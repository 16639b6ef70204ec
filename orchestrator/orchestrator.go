package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"smartnotes/core"
	"smartnotes/db"
	"smartnotes/extractor"
	"smartnotes/format"
	"smartnotes/handlers"
	"smartnotes/imageanalyzer"
	"smartnotes/logging"
	"smartnotes/metrics"
	"smartnotes/notegen"
	"smartnotes/topics"
)

// IndexTopicID keys the table-of-contents note generated for markdown
// runs. The leading zeros sort it before every real topic.
const IndexTopicID = "000_index_introduction_page"

// IndexTitle is the table-of-contents note title.
const IndexTitle = "Introduction"

// Orchestrator errors
var (
	// ErrNoTopics is returned when a generation run is requested before
	// any topics exist for the document.
	ErrNoTopics = errors.New("no topics extracted for document")
	// ErrTopicExtraction is returned when topic extraction produced only
	// the failure sentinel.
	ErrTopicExtraction = errors.New("topic extraction failed")
	// ErrMergeTooFew is returned when fewer than two known topics are
	// selected for a merge.
	ErrMergeTooFew = errors.New("merging needs at least two topics")
)

// Deps carries everything the Orchestrator composes. All fields are
// required except Progress and Collector.
type Deps struct {
	Config    *core.Config
	Repo      *db.Repository
	Extractor *extractor.Extractor
	Topics    *topics.Extractor
	Notes     *notegen.Generator
	Images    *imageanalyzer.Analyzer
	Pool      *Pool
	Collector metrics.Collector
	Progress  *handlers.ProgressReporter
	Logger    *logging.Logger
}

// Orchestrator drives the document-to-study-notes pipeline.
type Orchestrator struct {
	cfg       *core.Config
	repo      *db.Repository
	extractor *extractor.Extractor
	topics    *topics.Extractor
	notes     *notegen.Generator
	images    *imageanalyzer.Analyzer
	pool      *Pool
	collector metrics.Collector
	progress  *handlers.ProgressReporter
	log       *logging.Logger
}

// New creates an Orchestrator from its dependencies.
func New(deps Deps) *Orchestrator {
	progress := deps.Progress
	if progress == nil {
		progress = handlers.NewProgressReporter(nil, deps.Logger)
	}
	return &Orchestrator{
		cfg:       deps.Config,
		repo:      deps.Repo,
		extractor: deps.Extractor,
		topics:    deps.Topics,
		notes:     deps.Notes,
		images:    deps.Images,
		pool:      deps.Pool,
		collector: deps.Collector,
		progress:  progress,
		log:       deps.Logger.Named("orchestrator"),
	}
}

// IngestRequest describes an uploaded document ready for processing.
type IngestRequest struct {
	// StoredPath is where the upload was saved on disk
	StoredPath string
	// Filename is the original upload filename
	Filename string
	// Granularity controls topic extraction detail (0-100)
	Granularity int
}

// IngestDocument extracts text (transcribing audio/video), carves any
// embedded PDF images into an images/ folder next to the upload, extracts
// topics at the requested granularity, and persists the lot. The returned
// topic set is the failure sentinel when the LLM was unreachable; the
// document itself is still stored so extraction can be retried.
func (o *Orchestrator) IngestDocument(ctx context.Context, req IngestRequest) (db.DocumentRecord, *core.TopicSet, error) {
	documentID := uuid.New().String()
	o.progress.Report(documentID, handlers.StageExtracting, "", 0, 0)

	start := time.Now()
	text, err := o.extractor.ExtractText(ctx, req.StoredPath)
	if err != nil {
		o.progress.ReportError(documentID, err)
		return db.DocumentRecord{}, nil, fmt.Errorf("extract text: %w", err)
	}

	if extractor.DetectType(req.StoredPath) == extractor.TypePDF {
		imagesDir := filepath.Join(filepath.Dir(req.StoredPath), "images")
		if carved, err := extractor.ExtractPDFImages(req.StoredPath, imagesDir); err != nil {
			o.log.Warnw("embedded image extraction failed", "document_id", documentID, "error", err.Error())
		} else if len(carved) > 0 {
			o.log.Infow("extracted embedded images", "document_id", documentID, "count", len(carved))
		}
	}

	doc := db.DocumentRecord{
		ID:          documentID,
		Filename:    req.Filename,
		StoredPath:  req.StoredPath,
		Content:     text,
		Granularity: req.Granularity,
	}
	if err := o.repo.InsertDocument(ctx, doc); err != nil {
		return db.DocumentRecord{}, nil, err
	}

	o.progress.Report(documentID, handlers.StageTopics, "", 0, 0)
	set, err := o.extractTopicsTask(ctx, documentID, text, req.Granularity)
	if err != nil {
		o.progress.ReportError(documentID, err)
		return doc, nil, err
	}
	if !topics.IsErrorSet(set) {
		if err := o.repo.SyncTopics(ctx, documentID, set.Topics()); err != nil {
			return doc, nil, err
		}
	}

	o.log.Infow("document ingested",
		"document_id", documentID,
		"filename", req.Filename,
		"chars", len(text),
		"topics", set.Len(),
		"duration", time.Since(start))
	o.progress.ReportDone(documentID, set.Len())
	return doc, set, nil
}

// UpdateGranularity re-extracts topics at a new granularity and diff-syncs
// them against the stored set. Notes for topics that survive the change
// are kept; notes for removed topics are dropped by the sync.
func (o *Orchestrator) UpdateGranularity(ctx context.Context, documentID string, granularity int) (*core.TopicSet, error) {
	doc, err := o.repo.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	set, err := o.extractTopicsTask(ctx, documentID, doc.Content, granularity)
	if err != nil {
		return nil, err
	}
	if topics.IsErrorSet(set) {
		// Keep the stored topics; the caller shows the sentinel.
		return set, nil
	}

	if err := o.repo.SyncTopics(ctx, documentID, set.Topics()); err != nil {
		return nil, err
	}
	if err := o.repo.UpdateDocumentGranularity(ctx, documentID, granularity); err != nil {
		return nil, err
	}
	return set, nil
}

// RunResult is the outcome of a generation run: the notes that succeeded
// (index note first for markdown runs) plus one human-readable entry per
// failed topic. A run with per-topic failures still returns normally;
// only cancellation, pool saturation, and persistence failures abort.
type RunResult struct {
	Notes     []db.NoteRecord `json:"notes"`
	Errors    []string        `json:"errors,omitempty"`
	Generated int             `json:"generated"`
}

// MergeTopics collapses the selected topics into one combined topic whose
// title comes from the model. The merged topic gets a fresh ID, so the
// old topics and their notes are dropped by the diff-sync and the next
// generation run produces a single combined note.
func (o *Orchestrator) MergeTopics(ctx context.Context, documentID string, topicIDs []string) (*core.TopicSet, error) {
	set, err := o.repo.GetTopics(ctx, documentID)
	if err != nil {
		return nil, err
	}

	selected := make(map[string]bool, len(topicIDs))
	var titles, descriptions []string
	for _, id := range topicIDs {
		topic, ok := set.Get(id)
		if !ok || selected[id] {
			continue
		}
		selected[id] = true
		titles = append(titles, topic.Name)
		descriptions = append(descriptions, topic.Description)
	}
	if len(titles) < 2 {
		return nil, ErrMergeTooFew
	}

	merged, err := o.topics.MergeTopics(ctx, titles)
	if err != nil {
		return nil, fmt.Errorf("merge topics: %w", err)
	}

	next := core.NewTopicSet()
	for _, topic := range set.Topics() {
		if !selected[topic.ID] {
			next.Add(topic)
		}
	}
	next.Add(core.Topic{
		ID:          "merged_" + uuid.New().String()[:8],
		Name:        merged,
		Description: strings.Join(descriptions, " "),
	})

	if err := o.repo.SyncTopics(ctx, documentID, next.Topics()); err != nil {
		return nil, err
	}
	o.log.Infow("topics merged",
		"document_id", documentID,
		"merged", len(titles),
		"title", merged)
	return next, nil
}

// GenerateNotes runs the full per-topic pipeline for a document: image
// analysis (cached by filename), extract -> enhance -> visual section ->
// format conversion per topic, a table-of-contents index note for
// markdown, then a cross-linking pass over the fresh notes. Notes that
// already exist for (topic, format) are returned as-is without any LLM
// calls. Writes land in two batched commits: content first, link diffs
// second. Each topic is a failure boundary: one topic's error lands in
// RunResult.Errors and the rest of the batch completes.
func (o *Orchestrator) GenerateNotes(ctx context.Context, documentID string, target core.Format) (RunResult, error) {
	if o.pool.Saturated() {
		return RunResult{}, ErrPoolSaturated
	}
	if o.cfg.ProcessingTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.ProcessingTimeout)
		defer cancel()
	}

	runStart := time.Now()
	runID := handlers.GenerateCorrelationID()

	doc, err := o.repo.GetDocument(ctx, documentID)
	if err != nil {
		return RunResult{}, err
	}
	set, err := o.repo.GetTopics(ctx, documentID)
	if err != nil {
		return RunResult{}, err
	}
	if set.Len() == 0 {
		return RunResult{}, ErrNoTopics
	}

	run := metrics.RunRecord{
		ID:          runID,
		DocumentID:  documentID,
		Format:      string(target),
		Granularity: doc.Granularity,
		TopicCount:  set.Len(),
		Status:      metrics.TaskStatusProcessing,
		StartTime:   runStart,
	}

	analyses, err := o.analyzeImages(ctx, doc, set)
	if err != nil {
		o.finishRun(run, 0, err)
		o.progress.ReportError(documentID, err)
		return RunResult{}, err
	}

	notes, generated, sources, topicErrs, err := o.generateTopicNotes(ctx, doc, set, target, analyses)
	if err != nil {
		o.finishRun(run, generated, err)
		o.progress.ReportError(documentID, err)
		return RunResult{}, err
	}

	// First commit: note content (and the index note for markdown runs).
	o.progress.Report(documentID, handlers.StagePersisting, "", set.Len(), set.Len())
	if target == core.FormatMarkdown {
		index := o.buildIndexNote(documentID, set)
		notes = append([]db.NoteRecord{index}, notes...)
	}
	var fresh []db.NoteRecord
	for _, note := range notes {
		if _, ok := sources[note.TopicID]; ok || note.TopicID == IndexTopicID {
			fresh = append(fresh, note)
		}
	}
	if err := o.repo.UpsertNotes(ctx, fresh); err != nil {
		o.finishRun(run, generated, err)
		return RunResult{}, err
	}

	// Second pass: cross-link titles, commit only the diffs.
	o.progress.Report(documentID, handlers.StageLinking, "", set.Len(), set.Len())
	linked, err := o.linkNotes(notes, set, target, sources)
	if err != nil {
		o.finishRun(run, generated, err)
		return RunResult{}, err
	}
	if err := o.repo.UpsertNotes(ctx, linked); err != nil {
		o.finishRun(run, generated, err)
		return RunResult{}, err
	}
	for _, change := range linked {
		for i := range notes {
			if notes[i].TopicID == change.TopicID {
				notes[i].Content = change.Content
			}
		}
	}

	var runErr error
	if len(topicErrs) > 0 {
		runErr = fmt.Errorf("%d of %d topics failed", len(topicErrs), set.Len())
	}
	o.finishRun(run, generated, runErr)
	o.progress.ReportDone(documentID, set.Len())
	o.log.Infow("generation run complete",
		"run_id", runID,
		"document_id", documentID,
		"format", string(target),
		"topics", set.Len(),
		"generated", generated,
		"failed", len(topicErrs),
		"duration", time.Since(runStart))
	return RunResult{Notes: notes, Errors: topicErrs, Generated: generated}, nil
}

// generateTopicNotes fans the per-topic pipeline out over the pool.
// Returns the successful notes in topic order, the count freshly
// generated, the pre-conversion markdown sources for the linking pass,
// and a message per failed topic. Only cancellation and pool saturation
// are returned as errors; anything else stays inside its topic.
func (o *Orchestrator) generateTopicNotes(
	ctx context.Context,
	doc db.DocumentRecord,
	set *core.TopicSet,
	target core.Format,
	analyses map[string]map[string]string,
) ([]db.NoteRecord, int, map[string]string, []string, error) {
	topicList := set.Topics()
	results := make([]db.NoteRecord, len(topicList))
	sources := make(map[string]string)
	errs := make([]error, len(topicList))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		completed int
		generated int
	)

	for i, topic := range topicList {
		wg.Add(1)
		go func(i int, topic core.Topic) {
			defer wg.Done()
			err := o.pool.Do(ctx, func() error {
				note, source, cached, err := o.generateOneNote(ctx, doc, topic, set, target, analyses[topic.ID])
				if err != nil {
					return err
				}
				mu.Lock()
				results[i] = note
				if !cached {
					sources[topic.ID] = source
					generated++
				}
				completed++
				done := completed
				mu.Unlock()
				o.progress.Report(doc.ID, handlers.StageGenerating, topic.Name, done, len(topicList))
				return nil
			})
			errs[i] = err
		}(i, topic)
	}
	wg.Wait()

	var (
		notes     []db.NoteRecord
		topicErrs []string
	)
	for i, err := range errs {
		if err == nil {
			notes = append(notes, results[i])
			continue
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrPoolSaturated) {
			return nil, generated, nil, nil, err
		}
		o.log.Warnw("topic note failed",
			"document_id", doc.ID,
			"topic", topicList[i].Name,
			"error", err.Error())
		topicErrs = append(topicErrs, fmt.Sprintf("%s: %v", topicList[i].Name, err))
	}
	return notes, generated, sources, topicErrs, nil
}

// generateOneNote builds (or fetches) the note for a single topic.
func (o *Orchestrator) generateOneNote(
	ctx context.Context,
	doc db.DocumentRecord,
	topic core.Topic,
	set *core.TopicSet,
	target core.Format,
	images map[string]string,
) (db.NoteRecord, string, bool, error) {
	// Short-circuit: a note for this (topic, format) already exists.
	if existing, err := o.repo.GetNote(ctx, doc.ID, topic.ID, target); err == nil {
		return existing, "", true, nil
	} else if !errors.Is(err, db.ErrNotFound) {
		return db.NoteRecord{}, "", false, err
	}

	taskStart := time.Now()

	info, err := o.notes.ExtractTopicInformation(ctx, doc.Content, topic.Name)
	if err != nil {
		o.recordTask(metrics.TaskTypeNoteGeneration, doc.ID, topic.Name, taskStart, err)
		return db.NoteRecord{}, "", false, fmt.Errorf("extract info for %q: %w", topic.Name, err)
	}
	enhanced, err := o.notes.EnhanceTopicInfo(ctx, topic.Name, info)
	if err != nil {
		o.recordTask(metrics.TaskTypeNoteGeneration, doc.ID, topic.Name, taskStart, err)
		return db.NoteRecord{}, "", false, fmt.Errorf("enhance %q: %w", topic.Name, err)
	}

	source := enhanced + imageanalyzer.VisualSection(images)

	converted, err := format.Convert(topic.Name, source, target)
	if err != nil {
		return db.NoteRecord{}, "", false, err
	}

	o.recordTask(metrics.TaskTypeNoteGeneration, doc.ID, topic.Name, taskStart, nil)
	return db.NoteRecord{
		DocumentID: doc.ID,
		TopicID:    topic.ID,
		Title:      topic.Name,
		Content:    converted,
		Source:     source,
		Format:     target,
	}, source, false, nil
}

// analyzeImages returns topic ID -> filename -> description for the
// document's images folder, reusing stored analyses and calling the
// vision model only for files not yet covered.
func (o *Orchestrator) analyzeImages(ctx context.Context, doc db.DocumentRecord, set *core.TopicSet) (map[string]map[string]string, error) {
	imagesDir := filepath.Join(filepath.Dir(doc.StoredPath), "images")
	names, err := imageanalyzer.ListImages(imagesDir)
	if err != nil {
		return nil, err
	}

	cached, err := o.repo.GetImageAnalyses(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return cached, nil
	}

	seen, err := o.repo.AnalyzedFilenames(ctx, doc.ID)
	if err != nil {
		return nil, err
	}

	var batch []db.ImageAnalysisRecord
	analyzed := 0
	for _, name := range names {
		if seen[name] {
			continue
		}
		taskStart := time.Now()
		byTopic, err := o.images.AnalyzeImage(ctx, filepath.Join(imagesDir, name), set)
		if err != nil {
			return nil, err
		}
		analyzed++
		o.recordTask(metrics.TaskTypeImageAnalysis, doc.ID, name, taskStart, nil)
		o.progress.Report(doc.ID, handlers.StageImages, name, analyzed, len(names))
		for topicID, description := range byTopic {
			if cached[topicID] == nil {
				cached[topicID] = make(map[string]string)
			}
			cached[topicID][name] = description
			batch = append(batch, db.ImageAnalysisRecord{
				DocumentID:  doc.ID,
				Filename:    name,
				TopicID:     topicID,
				Description: description,
			})
		}
	}

	if err := o.repo.UpsertImageAnalyses(ctx, batch); err != nil {
		return nil, err
	}
	return cached, nil
}

// buildIndexNote creates the markdown table-of-contents note listing
// every topic alphabetically.
func (o *Orchestrator) buildIndexNote(documentID string, set *core.TopicSet) db.NoteRecord {
	names := make([]string, 0, set.Len())
	for _, topic := range set.Topics() {
		names = append(names, topic.Name)
	}
	sort.Strings(names)

	content := "# " + IndexTitle + "\n\n"
	for _, name := range names {
		content += fmt.Sprintf("- [%s](%s)\n", name, format.LinkTarget(name, core.FormatMarkdown))
	}

	return db.NoteRecord{
		DocumentID: documentID,
		TopicID:    IndexTopicID,
		Title:      IndexTitle,
		Content:    content,
		Format:     core.FormatMarkdown,
	}
}

// linkNotes re-renders notes with cross-links to the current topic set
// and returns only the notes whose content changed. Fresh notes use the
// in-flight source; cached notes fall back to the source stored with
// them, so they pick up links to topics added since their run.
func (o *Orchestrator) linkNotes(notes []db.NoteRecord, set *core.TopicSet, target core.Format, sources map[string]string) ([]db.NoteRecord, error) {
	names := make([]string, 0, set.Len())
	for _, topic := range set.Topics() {
		names = append(names, topic.Name)
	}

	var changed []db.NoteRecord
	for _, note := range notes {
		// Cached notes carry their markdown source from the store, so a
		// topic added after they were generated still gets linked in.
		source, ok := sources[note.TopicID]
		if !ok {
			source = note.Source
		}
		if source == "" {
			continue
		}
		linked, err := format.ConvertLinked(note.Title, source, target, names)
		if err != nil {
			return nil, err
		}
		if linked != note.Content {
			note.Content = linked
			changed = append(changed, note)
		}
	}
	return changed, nil
}

func (o *Orchestrator) extractTopicsTask(ctx context.Context, documentID, text string, granularity int) (*core.TopicSet, error) {
	taskStart := time.Now()
	set, err := o.topics.ExtractTopics(ctx, text, granularity)
	if err != nil {
		o.recordTask(metrics.TaskTypeTopicExtraction, documentID, "", taskStart, err)
		return nil, err
	}
	if topics.IsErrorSet(set) {
		o.recordTask(metrics.TaskTypeTopicExtraction, documentID, "", taskStart, ErrTopicExtraction)
	} else {
		o.recordTask(metrics.TaskTypeTopicExtraction, documentID, "", taskStart, nil)
	}
	return set, nil
}

func (o *Orchestrator) recordTask(taskType, documentID, topicName string, start time.Time, err error) {
	if o.collector == nil {
		return
	}
	record := metrics.TaskRecord{
		ID:         handlers.GenerateCorrelationID(),
		Type:       taskType,
		DocumentID: documentID,
		TopicName:  topicName,
		Status:     metrics.TaskStatusSuccess,
		StartTime:  start,
		EndTime:    time.Now(),
		Duration:   time.Since(start),
	}
	if err != nil {
		record.Status = metrics.TaskStatusError
		record.ErrorMsg = err.Error()
	}
	o.collector.RecordTask(record)
}

func (o *Orchestrator) finishRun(run metrics.RunRecord, generated int, err error) {
	if o.collector == nil {
		return
	}
	run.NotesGenerated = generated
	run.EndTime = time.Now()
	run.Duration = run.EndTime.Sub(run.StartTime)
	if err != nil {
		run.Status = metrics.TaskStatusError
		run.ErrorMsg = err.Error()
	} else {
		run.Status = metrics.TaskStatusSuccess
	}
	o.collector.RecordRun(run)
}
