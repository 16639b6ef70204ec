package core

import (
	"strings"
	"time"
)

// Format identifies a note output representation.
type Format string

const (
	// FormatMarkdown renders notes as Markdown documents.
	FormatMarkdown Format = "markdown"
	// FormatHTML renders notes as standalone HTML documents.
	FormatHTML Format = "html"
	// FormatLaTeX renders notes as standalone LaTeX documents.
	FormatLaTeX Format = "latex"
)

// ParseFormat normalizes a format string, defaulting to Markdown for
// anything unrecognized. The original UI sends lowercase values but this
// is lenient about case.
func ParseFormat(s string) Format {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "html":
		return FormatHTML
	case "latex", "tex":
		return FormatLaTeX
	default:
		return FormatMarkdown
	}
}

// Extension returns the file extension (with dot) for the format.
func (f Format) Extension() string {
	switch f {
	case FormatHTML:
		return ".html"
	case FormatLaTeX:
		return ".tex"
	default:
		return ".md"
	}
}

// MIMEType returns the download content type for the format.
func (f Format) MIMEType() string {
	switch f {
	case FormatHTML:
		return "text/html"
	case FormatLaTeX:
		return "application/x-latex"
	default:
		return "text/markdown"
	}
}

// Topic is an LLM-identified thematic unit of a document. The ID is the
// string key assigned by the extraction call; it is unique within a
// document but not globally.
type Topic struct {
	// ID is the model-assigned topic key (e.g., "topic_1")
	ID string `json:"id"`
	// Name is the human-readable topic title
	Name string `json:"name"`
	// Description is a brief model-generated summary of the topic
	Description string `json:"description"`
}

// TopicSet is an insertion-ordered collection of Topics keyed by their
// model-assigned ID. Order matters: the hyperlinking pass and the UI both
// follow extraction order.
type TopicSet struct {
	order  []string
	topics map[string]Topic
}

// NewTopicSet returns an empty TopicSet.
func NewTopicSet() *TopicSet {
	return &TopicSet{topics: make(map[string]Topic)}
}

// Add inserts or replaces a topic. Insertion order is preserved for new
// IDs; replacing an existing ID keeps its original position.
func (s *TopicSet) Add(t Topic) {
	if _, exists := s.topics[t.ID]; !exists {
		s.order = append(s.order, t.ID)
	}
	s.topics[t.ID] = t
}

// Get returns the topic for the given ID.
func (s *TopicSet) Get(id string) (Topic, bool) {
	t, ok := s.topics[id]
	return t, ok
}

// IDs returns the topic IDs in insertion order. The returned slice is a copy.
func (s *TopicSet) IDs() []string {
	ids := make([]string, len(s.order))
	copy(ids, s.order)
	return ids
}

// Topics returns the topics in insertion order. The returned slice is a copy.
func (s *TopicSet) Topics() []Topic {
	out := make([]Topic, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.topics[id])
	}
	return out
}

// Len returns the number of topics in the set.
func (s *TopicSet) Len() int {
	return len(s.order)
}

// ChatEntry is one turn of the per-document instruction conversation.
type ChatEntry struct {
	// Sender is "user" or "ai"
	Sender string `json:"sender"`
	// Message is the turn's text
	Message string `json:"message"`
	// Timestamp is when the turn was recorded
	Timestamp time.Time `json:"timestamp"`
}
