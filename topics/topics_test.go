package topics

import (
	"context"
	"errors"
	"strings"
	"testing"

	"smartnotes/core"
	"smartnotes/logging"
)

// scriptedGen returns canned completions for extraction tests.
type scriptedGen struct {
	response   string
	err        error
	lastPrompt string
}

func (s *scriptedGen) Generate(ctx context.Context, prompt string, maxTokens int64) (string, error) {
	s.lastPrompt = prompt
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func testConfig() *core.Config {
	return &core.Config{
		TopicExtractionChars:  10000,
		TopicExtractionTokens: 2048,
	}
}

func TestExtractTopicsParsesResponse(t *testing.T) {
	gen := &scriptedGen{response: `Here are the topics:
{
  "topics": [
    {"id": "bst", "name": "Binary Search Trees", "description": "ordered tree structures"},
    {"id": "avl", "name": "AVL Rotations", "description": "rebalancing operations"}
  ]
}
Hope that helps!`}

	ex := NewExtractor(gen, testConfig(), logging.NewNopLogger())
	set, err := ex.ExtractTopics(context.Background(), "document about trees", 50)
	if err != nil {
		t.Fatalf("ExtractTopics() error: %v", err)
	}

	if set.Len() != 2 {
		t.Fatalf("topics = %d, want 2", set.Len())
	}
	ids := set.IDs()
	if ids[0] != "bst" || ids[1] != "avl" {
		t.Errorf("IDs() = %v, want model order preserved", ids)
	}
	if IsErrorSet(set) {
		t.Error("valid set classified as error set")
	}
}

func TestExtractTopicsFillsMissingFields(t *testing.T) {
	gen := &scriptedGen{response: `{"topics": [{"description": "no id or name"}]}`}
	ex := NewExtractor(gen, testConfig(), logging.NewNopLogger())

	set, err := ex.ExtractTopics(context.Background(), "text", 50)
	if err != nil {
		t.Fatalf("ExtractTopics() error: %v", err)
	}

	topic, ok := set.Get("topic_0")
	if !ok {
		t.Fatalf("fallback ID topic_0 missing, got %v", set.IDs())
	}
	if topic.Name != "Unnamed Topic" {
		t.Errorf("Name = %q, want Unnamed Topic", topic.Name)
	}
}

func TestExtractTopicsProviderFailureYieldsErrorTopic(t *testing.T) {
	gen := &scriptedGen{err: errors.New("status code: 429")}
	ex := NewExtractor(gen, testConfig(), logging.NewNopLogger())

	set, err := ex.ExtractTopics(context.Background(), "text", 50)
	if err != nil {
		t.Fatalf("ExtractTopics() error: %v", err)
	}
	if !IsErrorSet(set) {
		t.Fatalf("expected sentinel error set, got %v", set.IDs())
	}
	topic, _ := set.Get(ErrorTopicID)
	if topic.Name != "Error Extracting Topics" {
		t.Errorf("sentinel name = %q", topic.Name)
	}
}

func TestExtractTopicsUnparseableYieldsErrorTopic(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"no json at all", "I could not find any topics."},
		{"broken json", `{"topics": [ {"id": }`},
		{"empty topic list", `{"topics": []}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &scriptedGen{response: tt.response}
			ex := NewExtractor(gen, testConfig(), logging.NewNopLogger())

			set, err := ex.ExtractTopics(context.Background(), "text", 50)
			if err != nil {
				t.Fatalf("ExtractTopics() error: %v", err)
			}
			if !IsErrorSet(set) {
				t.Errorf("expected sentinel error set, got %v", set.IDs())
			}
		})
	}
}

func TestExtractTopicsCancellation(t *testing.T) {
	gen := &scriptedGen{err: context.Canceled}
	ex := NewExtractor(gen, testConfig(), logging.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := ex.ExtractTopics(ctx, "text", 50); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestExtractTopicsTruncatesDocument(t *testing.T) {
	cfg := testConfig()
	cfg.TopicExtractionChars = 100

	longDoc := strings.Repeat("a", 200) + "SHOULD_NOT_APPEAR"
	gen := &scriptedGen{response: `{"topics": [{"id": "t", "name": "T", "description": ""}]}`}
	ex := NewExtractor(gen, cfg, logging.NewNopLogger())

	if _, err := ex.ExtractTopics(context.Background(), longDoc, 50); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(gen.lastPrompt, "SHOULD_NOT_APPEAR") {
		t.Error("prompt contains text past the extraction cap")
	}
}

func TestGranularityDescriptionBands(t *testing.T) {
	tests := []struct {
		granularity int
		wantword    string
	}{
		{0, "broadest"},
		{19, "broadest"},
		{20, "general macro-topics"},
		{40, "balanced mix"},
		{60, "more specific sub-topics"},
		{80, "micro-topics"},
		{100, "micro-topics"},
	}
	for _, tt := range tests {
		got := granularityDescription(clampGranularity(tt.granularity))
		if !strings.Contains(got, tt.wantword) {
			t.Errorf("granularityDescription(%d) = %q, want substring %q", tt.granularity, got, tt.wantword)
		}
	}
}

func TestClampGranularity(t *testing.T) {
	tests := []struct{ in, want int }{
		{-5, 0}, {0, 0}, {50, 50}, {100, 100}, {150, 100},
	}
	for _, tt := range tests {
		if got := clampGranularity(tt.in); got != tt.want {
			t.Errorf("clampGranularity(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestRelationships(t *testing.T) {
	set := core.NewTopicSet()
	set.Add(core.Topic{ID: "a", Name: "binary search trees", Description: "ordered node structures"})
	set.Add(core.Topic{ID: "b", Name: "balanced binary trees", Description: "ordered rotations"})
	set.Add(core.Topic{ID: "c", Name: "dynamic programming", Description: "memoization tables"})

	rel := Relationships(set)

	if !containsID(rel["a"], "b") {
		t.Errorf("a not related to b: %v", rel["a"])
	}
	if containsID(rel["a"], "c") {
		t.Errorf("unrelated topics linked: %v", rel["a"])
	}
	if containsID(rel["a"], "a") {
		t.Error("topic related to itself")
	}
	if len(rel) != 3 {
		t.Errorf("relationships entries = %d, want 3", len(rel))
	}
}

func containsID(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

func TestMergeTopics(t *testing.T) {
	gen := &scriptedGen{response: "\"Tree Structures and Balancing\"\nextra line"}
	ex := NewExtractor(gen, testConfig(), logging.NewNopLogger())

	got, err := ex.MergeTopics(context.Background(), []string{"Binary Trees", "AVL Rotations"})
	if err != nil {
		t.Fatalf("MergeTopics() error: %v", err)
	}
	if got != "Tree Structures and Balancing" {
		t.Errorf("MergeTopics() = %q", got)
	}
}

func TestMergeTopicsSingleTitle(t *testing.T) {
	gen := &scriptedGen{err: errors.New("should not be called")}
	ex := NewExtractor(gen, testConfig(), logging.NewNopLogger())

	got, err := ex.MergeTopics(context.Background(), []string{"Only One"})
	if err != nil {
		t.Fatalf("MergeTopics() error: %v", err)
	}
	if got != "Only One" {
		t.Errorf("MergeTopics() = %q", got)
	}
}
