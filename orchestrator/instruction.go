package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"smartnotes/core"
	"smartnotes/db"
	"smartnotes/format"
	"smartnotes/handlers"
	"smartnotes/metrics"
	"smartnotes/notegen"
)

// Instruction statuses returned to the UI.
const (
	StatusModificationApplied = "modification_applied"
	StatusQuestionAnswered    = "question_answered"
	StatusUnknownInstruction  = "unknown_instruction"
	StatusEmptyInstruction    = "empty_instruction"
)

const (
	emptyInstructionReply   = "Please enter an instruction or question."
	unknownInstructionReply = "I couldn't tell whether that was a change to the notes or a question. " +
		"Try rephrasing it as either, for example \"make the summaries shorter\" or \"what is osmosis?\"."
)

// noteSummaryChars bounds each note's contribution to question context.
const noteSummaryChars = 300

// InstructionResult is the outcome of ApplyUserInstruction.
type InstructionResult struct {
	// Status is one of the Status* constants
	Status string `json:"status"`
	// Reply is the text shown to the user (answer, confirmation, or hint)
	Reply string `json:"reply"`
	// UpdatedTopics lists topic IDs whose notes were rewritten
	UpdatedTopics []string `json:"updated_topics,omitempty"`
	// Errors holds one entry per note that failed to rewrite
	Errors []string `json:"errors,omitempty"`
}

// ApplyUserInstruction classifies a free-text instruction and routes it.
// Modification requests rewrite every existing note for the document in
// the given format; questions are answered from chat history, note
// summaries, and the document text. Empty and unclassifiable input
// short-circuits without touching the LLM or the stored notes.
func (o *Orchestrator) ApplyUserInstruction(ctx context.Context, documentID string, instruction string, target core.Format) (InstructionResult, error) {
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return InstructionResult{Status: StatusEmptyInstruction, Reply: emptyInstructionReply}, nil
	}
	if o.cfg.ProcessingTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.ProcessingTimeout)
		defer cancel()
	}

	doc, err := o.repo.GetDocument(ctx, documentID)
	if err != nil {
		return InstructionResult{}, err
	}

	kind, err := o.notes.ClassifyInstruction(ctx, instruction)
	if err != nil {
		return InstructionResult{}, err
	}

	switch kind {
	case notegen.KindModification:
		return o.applyModification(ctx, doc, instruction, target)
	case notegen.KindQuestion:
		return o.answerQuestion(ctx, doc, instruction, target)
	default:
		o.log.Infow("instruction not classifiable",
			"document_id", documentID,
			"preview", handlers.TruncateText(instruction, 80))
		return InstructionResult{Status: StatusUnknownInstruction, Reply: unknownInstructionReply}, nil
	}
}

// applyModification rewrites every existing note for the document in
// parallel and upserts the results in one batch.
func (o *Orchestrator) applyModification(ctx context.Context, doc db.DocumentRecord, instruction string, target core.Format) (InstructionResult, error) {
	notes, err := o.repo.GetNotes(ctx, doc.ID, target)
	if err != nil {
		return InstructionResult{}, err
	}
	set, err := o.repo.GetTopics(ctx, doc.ID)
	if err != nil {
		return InstructionResult{}, err
	}
	var candidates []db.NoteRecord
	for _, note := range notes {
		if note.TopicID == IndexTopicID {
			continue
		}
		candidates = append(candidates, note)
	}
	if len(candidates) == 0 {
		return InstructionResult{
			Status: StatusModificationApplied,
			Reply:  "There are no notes to modify yet. Generate notes first.",
		}, nil
	}

	taskStart := time.Now()
	rewritten := make([]db.NoteRecord, len(candidates))
	errs := make([]error, len(candidates))
	var wg sync.WaitGroup
	for i, note := range candidates {
		wg.Add(1)
		go func(i int, note db.NoteRecord) {
			defer wg.Done()
			var snippet string
			if topic, ok := set.Get(note.TopicID); ok {
				snippet = topic.Description
			}
			errs[i] = o.pool.Do(ctx, func() error {
				updated, err := o.notes.RewriteNote(ctx, notegen.RewriteRequest{
					TopicName:    note.Title,
					Instruction:  instruction,
					DocumentText: doc.Content,
					Snippet:      snippet,
					ExistingNote: note.Content,
				})
				if err != nil {
					return err
				}
				converted, err := format.Convert(note.Title, updated, target)
				if err != nil {
					return err
				}
				note.Content = converted
				note.Source = updated
				rewritten[i] = note
				return nil
			})
		}(i, note)
	}
	wg.Wait()

	// Each note is its own failure boundary; one bad rewrite doesn't
	// roll back the rest.
	var (
		applied  []db.NoteRecord
		noteErrs []string
	)
	for i, err := range errs {
		if err == nil {
			applied = append(applied, rewritten[i])
			continue
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrPoolSaturated) {
			o.recordTask(metrics.TaskTypeInstruction, doc.ID, "", taskStart, err)
			return InstructionResult{}, err
		}
		o.log.Warnw("note rewrite failed",
			"document_id", doc.ID,
			"topic", candidates[i].Title,
			"error", err.Error())
		noteErrs = append(noteErrs, fmt.Sprintf("%s: %v", candidates[i].Title, err))
	}

	if err := o.repo.UpsertNotes(ctx, applied); err != nil {
		return InstructionResult{}, err
	}
	var taskErr error
	if len(noteErrs) > 0 {
		taskErr = fmt.Errorf("%d of %d rewrites failed", len(noteErrs), len(candidates))
	}
	o.recordTask(metrics.TaskTypeInstruction, doc.ID, "", taskStart, taskErr)

	updated := make([]string, 0, len(applied))
	for _, note := range applied {
		updated = append(updated, note.TopicID)
	}
	sort.Strings(updated)

	reply := fmt.Sprintf("Applied your change to %d notes.", len(applied))
	switch {
	case len(applied) == 1:
		reply = "Applied your change to 1 note."
	case len(applied) == 0:
		reply = "The change could not be applied to any note."
	}
	if len(noteErrs) > 0 {
		reply += fmt.Sprintf(" %d failed.", len(noteErrs))
	}
	if err := o.recordChatTurn(ctx, doc.ID, instruction, reply); err != nil {
		return InstructionResult{}, err
	}

	o.log.Infow("modification applied",
		"document_id", doc.ID,
		"notes", len(applied),
		"failed", len(noteErrs),
		"duration", time.Since(taskStart))
	return InstructionResult{
		Status:        StatusModificationApplied,
		Reply:         reply,
		UpdatedTopics: updated,
		Errors:        noteErrs,
	}, nil
}

// answerQuestion answers from chat history, note summaries, and the
// document text, then persists both chat turns.
func (o *Orchestrator) answerQuestion(ctx context.Context, doc db.DocumentRecord, question string, target core.Format) (InstructionResult, error) {
	taskStart := time.Now()

	history, err := o.repo.GetChatHistory(ctx, doc.ID)
	if err != nil {
		return InstructionResult{}, err
	}
	notes, err := o.repo.GetNotes(ctx, doc.ID, target)
	if err != nil {
		return InstructionResult{}, err
	}

	var summaries strings.Builder
	for _, note := range notes {
		if note.TopicID == IndexTopicID {
			continue
		}
		summaries.WriteString(note.Title)
		summaries.WriteString(": ")
		summaries.WriteString(handlers.ContentPreview(note.Content, noteSummaryChars))
		summaries.WriteString("\n")
	}

	answer, err := o.notes.AnswerQuestion(ctx, notegen.AnswerRequest{
		Question:      question,
		ChatHistory:   history,
		NoteSummaries: summaries.String(),
		DocumentText:  doc.Content,
	})
	if err != nil {
		o.recordTask(metrics.TaskTypeQuestion, doc.ID, "", taskStart, err)
		return InstructionResult{}, err
	}
	o.recordTask(metrics.TaskTypeQuestion, doc.ID, "", taskStart, nil)

	if err := o.recordChatTurn(ctx, doc.ID, question, answer); err != nil {
		return InstructionResult{}, err
	}
	return InstructionResult{Status: StatusQuestionAnswered, Reply: answer}, nil
}

func (o *Orchestrator) recordChatTurn(ctx context.Context, documentID, userMessage, aiMessage string) error {
	if err := o.repo.InsertChatMessage(ctx, db.ChatMessageRecord{
		DocumentID: documentID, Sender: "user", Message: userMessage,
	}); err != nil {
		return err
	}
	return o.repo.InsertChatMessage(ctx, db.ChatMessageRecord{
		DocumentID: documentID, Sender: "ai", Message: aiMessage,
	})
}
