package notegen

import (
	"context"
	"errors"
	"strings"
	"testing"

	"smartnotes/core"
	"smartnotes/logging"
)

// scriptedGen returns canned completions and records prompts.
type scriptedGen struct {
	response   string
	err        error
	lastPrompt string
	lastTokens int64
}

func (s *scriptedGen) Generate(ctx context.Context, prompt string, maxTokens int64) (string, error) {
	s.lastPrompt = prompt
	s.lastTokens = maxTokens
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func testConfig() *core.Config {
	return &core.Config{
		TopicInfoChars:       50000,
		QuestionContextChars: 20000,
		NoteResponseTokens:   4096,
		AnswerTokens:         2048,
	}
}

func TestExtractTopicInformation(t *testing.T) {
	longInfo := strings.Repeat("Binary trees keep their keys in sorted order. ", 5)
	gen := &scriptedGen{response: longInfo}
	g := NewGenerator(gen, testConfig(), logging.NewNopLogger())

	got, err := g.ExtractTopicInformation(context.Background(), "doc text", "Binary Trees")
	if err != nil {
		t.Fatalf("ExtractTopicInformation() error: %v", err)
	}
	if got != longInfo {
		t.Errorf("unexpected info: %q", got)
	}
	if !strings.Contains(gen.lastPrompt, `"Binary Trees"`) {
		t.Error("prompt missing topic name")
	}
}

func TestExtractTopicInformationThinReply(t *testing.T) {
	gen := &scriptedGen{response: "N/A"}
	g := NewGenerator(gen, testConfig(), logging.NewNopLogger())

	got, err := g.ExtractTopicInformation(context.Background(), "doc", "Obscure Topic")
	if err != nil {
		t.Fatalf("ExtractTopicInformation() error: %v", err)
	}
	want := "No detailed information found for the topic 'Obscure Topic' in the document."
	if got != want {
		t.Errorf("got %q, want stock message", got)
	}
}

func TestExtractTopicInformationCapsDocument(t *testing.T) {
	cfg := testConfig()
	cfg.TopicInfoChars = 100

	gen := &scriptedGen{response: strings.Repeat("x", 100)}
	g := NewGenerator(gen, cfg, logging.NewNopLogger())

	doc := strings.Repeat("a", 200) + "BEYOND_CAP"
	if _, err := g.ExtractTopicInformation(context.Background(), doc, "T"); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(gen.lastPrompt, "BEYOND_CAP") {
		t.Error("prompt contains text past the topic-info cap")
	}
}

func TestClassifyInstruction(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     InstructionKind
	}{
		{"modification label", "modification_request", KindModification},
		{"modification with padding", "  Modification_Request\n", KindModification},
		{"question label", "question", KindQuestion},
		{"unclear label", "I think this might be a command", KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &scriptedGen{response: tt.response}
			g := NewGenerator(gen, testConfig(), logging.NewNopLogger())

			got, err := g.ClassifyInstruction(context.Background(), "make the notes shorter")
			if err != nil {
				t.Fatalf("ClassifyInstruction() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ClassifyInstruction() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClassifyInstructionProviderError(t *testing.T) {
	gen := &scriptedGen{err: errors.New("boom")}
	g := NewGenerator(gen, testConfig(), logging.NewNopLogger())

	kind, err := g.ClassifyInstruction(context.Background(), "instruction")
	if err == nil {
		t.Fatal("ClassifyInstruction() swallowed provider error")
	}
	if kind != KindUnknown {
		t.Errorf("kind on error = %v, want KindUnknown", kind)
	}
}

func TestInstructionKindString(t *testing.T) {
	tests := []struct {
		kind InstructionKind
		want string
	}{
		{KindModification, "modification_request"},
		{KindQuestion, "question"},
		{KindUnknown, "unknown"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestRewriteNote(t *testing.T) {
	gen := &scriptedGen{response: "# Binary Trees\n\nShorter now."}
	g := NewGenerator(gen, testConfig(), logging.NewNopLogger())

	got, err := g.RewriteNote(context.Background(), RewriteRequest{
		TopicName:    "Binary Trees",
		Instruction:  "make it shorter",
		DocumentText: "full document",
		Snippet:      "original snippet",
		ExistingNote: "# Binary Trees\n\nA very long note.",
	})
	if err != nil {
		t.Fatalf("RewriteNote() error: %v", err)
	}
	if got != "# Binary Trees\n\nShorter now." {
		t.Errorf("RewriteNote() = %q", got)
	}

	for _, fragment := range []string{"make it shorter", "full document", "original snippet", "A very long note."} {
		if !strings.Contains(gen.lastPrompt, fragment) {
			t.Errorf("rewrite prompt missing %q", fragment)
		}
	}
}

func TestRewriteNoteEmptyReply(t *testing.T) {
	gen := &scriptedGen{response: "   "}
	g := NewGenerator(gen, testConfig(), logging.NewNopLogger())

	if _, err := g.RewriteNote(context.Background(), RewriteRequest{TopicName: "T"}); err == nil {
		t.Error("RewriteNote() accepted empty rewrite")
	}
}

func TestAnswerQuestion(t *testing.T) {
	gen := &scriptedGen{response: "  The document says X.  "}
	g := NewGenerator(gen, testConfig(), logging.NewNopLogger())

	got, err := g.AnswerQuestion(context.Background(), AnswerRequest{
		Question: "What does the document say?",
		ChatHistory: []core.ChatEntry{
			{Sender: "user", Message: "earlier question"},
			{Sender: "ai", Message: "earlier answer"},
		},
		NoteSummaries: "Topic A: summary",
		DocumentText:  "document body",
	})
	if err != nil {
		t.Fatalf("AnswerQuestion() error: %v", err)
	}
	if got != "The document says X." {
		t.Errorf("AnswerQuestion() = %q", got)
	}
	if gen.lastTokens != 2048 {
		t.Errorf("answer token limit = %d, want 2048", gen.lastTokens)
	}
	for _, fragment := range []string{"user: earlier question", "ai: earlier answer", "Topic A: summary", "document body"} {
		if !strings.Contains(gen.lastPrompt, fragment) {
			t.Errorf("answer prompt missing %q", fragment)
		}
	}
}

func TestAnswerQuestionCapsDocument(t *testing.T) {
	cfg := testConfig()
	cfg.QuestionContextChars = 50

	gen := &scriptedGen{response: "answer"}
	g := NewGenerator(gen, cfg, logging.NewNopLogger())

	doc := strings.Repeat("b", 100) + "PAST_CAP"
	if _, err := g.AnswerQuestion(context.Background(), AnswerRequest{Question: "q", DocumentText: doc}); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(gen.lastPrompt, "PAST_CAP") {
		t.Error("answer prompt contains text past the question-context cap")
	}
}
