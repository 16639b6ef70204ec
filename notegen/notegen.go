// Package notegen issues the note-content LLM calls: per-topic
// information extraction, enhancement into polished study notes,
// instruction classification, note rewriting, and question answering.
package notegen

import (
	"context"
	"fmt"
	"strings"

	"smartnotes/core"
	"smartnotes/llm"
	"smartnotes/logging"
)

// minMeaningfulInfo is the threshold below which an extraction reply is
// treated as "nothing found" rather than real content.
const minMeaningfulInfo = 50

// InstructionKind is the single-label classification of a free-text user
// instruction. Unknown is a legitimate third outcome, not an error.
type InstructionKind int

const (
	KindUnknown InstructionKind = iota
	KindModification
	KindQuestion
)

// String returns the classification label used in logs and responses.
func (k InstructionKind) String() string {
	switch k {
	case KindModification:
		return "modification_request"
	case KindQuestion:
		return "question"
	default:
		return "unknown"
	}
}

// Generator issues note-content LLM calls.
type Generator struct {
	gen    llm.TextGenerator
	cfg    *core.Config
	logger *logging.Logger
}

// NewGenerator creates a note Generator.
func NewGenerator(gen llm.TextGenerator, cfg *core.Config, logger *logging.Logger) *Generator {
	return &Generator{gen: gen, cfg: cfg, logger: logger.Named("notegen")}
}

// ExtractTopicInformation pulls every passage relevant to topicName out
// of the document. Sends at most TopicInfoChars characters of document
// text. Replies too short to be meaningful become a stock
// "no detailed information found" message instead of a thin note.
func (g *Generator) ExtractTopicInformation(ctx context.Context, documentText, topicName string) (string, error) {
	prompt := buildTopicInfoPrompt(documentText, topicName, g.cfg.TopicInfoChars)

	info, err := g.gen.Generate(ctx, prompt, g.cfg.NoteResponseTokens)
	if err != nil {
		return "", fmt.Errorf("extract information for topic %q: %w", topicName, err)
	}

	if len(strings.TrimSpace(info)) < minMeaningfulInfo {
		g.logger.Warnw("no meaningful information extracted", "topic", topicName)
		return fmt.Sprintf("No detailed information found for the topic '%s' in the document.", topicName), nil
	}
	return info, nil
}

// EnhanceTopicInfo turns raw extracted information into a structured,
// student-ready study note in Markdown.
func (g *Generator) EnhanceTopicInfo(ctx context.Context, topicName, topicInfo string) (string, error) {
	prompt := buildEnhancePrompt(topicName, topicInfo)

	enhanced, err := g.gen.Generate(ctx, prompt, g.cfg.NoteResponseTokens)
	if err != nil {
		return "", fmt.Errorf("enhance topic %q: %w", topicName, err)
	}
	return enhanced, nil
}

// ClassifyInstruction labels a free-text instruction as a modification
// request or a question via a constrained prompt. Replies that match
// neither label yield KindUnknown; callers answer those with a
// "please rephrase" message and no generation call.
func (g *Generator) ClassifyInstruction(ctx context.Context, instruction string) (InstructionKind, error) {
	prompt := buildClassifyPrompt(instruction)

	response, err := g.gen.Generate(ctx, prompt, 16)
	if err != nil {
		return KindUnknown, fmt.Errorf("classify instruction: %w", err)
	}

	label := strings.ToLower(strings.TrimSpace(response))
	switch {
	case strings.Contains(label, "modification"):
		return KindModification, nil
	case strings.Contains(label, "question"):
		return KindQuestion, nil
	default:
		g.logger.Debugw("instruction classification unclear", "label", label)
		return KindUnknown, nil
	}
}

// RewriteRequest holds the inputs for rewriting one existing note under
// a user instruction.
type RewriteRequest struct {
	TopicName    string
	Instruction  string
	DocumentText string // full source text
	Snippet      string // the topic's originally extracted information
	ExistingNote string // current note content being modified
}

// RewriteNote applies a user modification instruction to one existing
// note. The prompt carries the full document, the original snippet, and
// the current note so the model can change only what the instruction
// asks for.
func (g *Generator) RewriteNote(ctx context.Context, req RewriteRequest) (string, error) {
	prompt := buildRewritePrompt(req, g.cfg.TopicInfoChars)

	rewritten, err := g.gen.Generate(ctx, prompt, g.cfg.NoteResponseTokens)
	if err != nil {
		return "", fmt.Errorf("rewrite note for topic %q: %w", req.TopicName, err)
	}

	rewritten = strings.TrimSpace(rewritten)
	if rewritten == "" {
		return "", fmt.Errorf("empty rewrite returned for topic %q", req.TopicName)
	}
	return rewritten, nil
}

// AnswerRequest holds the context for answering a user question about
// the document and its notes.
type AnswerRequest struct {
	Question      string
	ChatHistory   []core.ChatEntry
	NoteSummaries string // concatenated note summaries for context
	DocumentText  string
}

// AnswerQuestion answers a question using the chat history, the note
// summaries, and a bounded document excerpt (QuestionContextChars). The
// answer is returned raw; no note is mutated.
func (g *Generator) AnswerQuestion(ctx context.Context, req AnswerRequest) (string, error) {
	prompt := buildAnswerPrompt(req, g.cfg.QuestionContextChars)

	answer, err := g.gen.Generate(ctx, prompt, g.cfg.AnswerTokens)
	if err != nil {
		return "", fmt.Errorf("answer question: %w", err)
	}
	return strings.TrimSpace(answer), nil
}
