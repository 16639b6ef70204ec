// Package topics extracts study topics from document text at an adjustable
// granularity, from a handful of macro-topics down to many fine-grained
// micro-topics. Extraction failures degrade to a sentinel error topic so
// the UI always has something to render.
package topics

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"smartnotes/core"
	"smartnotes/llm"
	"smartnotes/logging"
)

// ErrorTopicID is the ID of the sentinel topic returned when extraction
// fails. Callers can detect it to surface a warning instead of notes.
const ErrorTopicID = "error_topic"

// topicsEnvelope mirrors the JSON shape the model is asked to produce.
type topicsEnvelope struct {
	Topics []topicEntry `json:"topics"`
}

type topicEntry struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Extractor derives topics from document text via the LLM.
type Extractor struct {
	gen    llm.TextGenerator
	cfg    *core.Config
	logger *logging.Logger
}

// NewExtractor creates a topic Extractor.
func NewExtractor(gen llm.TextGenerator, cfg *core.Config, logger *logging.Logger) *Extractor {
	return &Extractor{gen: gen, cfg: cfg, logger: logger.Named("topics")}
}

// ExtractTopics asks the model for the document's topics at the given
// granularity (0 = few broad macro-topics, 100 = many specific
// micro-topics; out-of-range values are clamped).
//
// Provider failures and unparseable replies do not error out: they yield
// a set holding the single sentinel error topic, so a degraded extraction
// still renders. Only context cancellation returns a non-nil error.
func (e *Extractor) ExtractTopics(ctx context.Context, documentText string, granularity int) (*core.TopicSet, error) {
	granularity = clampGranularity(granularity)

	prompt := buildExtractionPrompt(documentText, granularity, e.cfg.TopicExtractionChars)

	response, err := e.gen.Generate(ctx, prompt, e.cfg.TopicExtractionTokens)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.logger.Errorw("topic extraction failed", "granularity", granularity, "error", err.Error())
		return errorTopicSet(fmt.Sprintf("Failed to extract topics from document: %v", err)), nil
	}

	set, err := parseTopicsResponse(response)
	if err != nil {
		e.logger.Errorw("topic response unparseable", "error", err.Error())
		e.logger.Debugw("raw topic response", "response", response)
		return errorTopicSet(fmt.Sprintf("Failed to extract topics from document: %v", err)), nil
	}

	e.logger.Infow("topics extracted", "count", set.Len(), "granularity", granularity)
	return set, nil
}

// clampGranularity bounds granularity to [0, 100].
func clampGranularity(g int) int {
	if g < 0 {
		return 0
	}
	if g > 100 {
		return 100
	}
	return g
}

// granularityDescription translates the numeric level into prompt guidance.
func granularityDescription(granularity int) string {
	switch {
	case granularity < 20:
		return "Extract only the broadest, most general macro-topics (very few top-level topics)."
	case granularity < 40:
		return "Extract general macro-topics (a small number of broad topics)."
	case granularity < 60:
		return "Extract a balanced mix of general topics and some specific sub-topics."
	case granularity < 80:
		return "Extract more specific sub-topics with moderate detail."
	default:
		return "Extract highly specific, detailed micro-topics (many fine-grained topics)."
	}
}

// buildExtractionPrompt assembles the topic extraction prompt over a
// bounded prefix of the document.
func buildExtractionPrompt(documentText string, granularity, maxChars int) string {
	excerpt := documentText
	if maxChars > 0 && len(excerpt) > maxChars {
		excerpt = excerpt[:maxChars]
	}

	return fmt.Sprintf(`Analyze the following document and extract the main topics at a granularity level of %d/100.
%s

DOCUMENT TEXT:
%s

Extract topics and return them in the following JSON format:
{
    "topics": [
        {
            "id": "unique_id_1",
            "name": "Topic Name 1",
            "description": "Brief description of the topic"
        }
    ]
}

Only respond with the JSON. Do not include any explanations or additional text before or after the JSON.`,
		granularity, granularityDescription(granularity), excerpt)
}

// parseTopicsResponse carves the JSON object out of the model reply and
// converts it into an ordered TopicSet. Models often wrap JSON in prose
// or code fences, so parsing is lenient about surrounding text.
func parseTopicsResponse(response string) (*core.TopicSet, error) {
	jsonStr, err := extractJSONObject(response)
	if err != nil {
		return nil, err
	}

	var envelope topicsEnvelope
	if err := json.Unmarshal([]byte(jsonStr), &envelope); err != nil {
		return nil, fmt.Errorf("malformed topics JSON: %w", err)
	}

	set := core.NewTopicSet()
	for _, entry := range envelope.Topics {
		id := entry.ID
		if id == "" {
			id = fmt.Sprintf("topic_%d", set.Len())
		}
		name := entry.Name
		if name == "" {
			name = "Unnamed Topic"
		}
		set.Add(core.Topic{ID: id, Name: name, Description: entry.Description})
	}

	if set.Len() == 0 {
		return nil, fmt.Errorf("no topics in response")
	}
	return set, nil
}

// extractJSONObject returns the substring between the first '{' and the
// last '}' of the text.
func extractJSONObject(text string) (string, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || start > end {
		return "", fmt.Errorf("no JSON object found in response")
	}
	return text[start : end+1], nil
}

// errorTopicSet builds the sentinel single-topic set used when
// extraction fails.
func errorTopicSet(description string) *core.TopicSet {
	set := core.NewTopicSet()
	set.Add(core.Topic{
		ID:          ErrorTopicID,
		Name:        "Error Extracting Topics",
		Description: description,
	})
	return set
}

// IsErrorSet reports whether the set is the sentinel produced by a
// failed extraction.
func IsErrorSet(set *core.TopicSet) bool {
	if set == nil || set.Len() != 1 {
		return false
	}
	_, ok := set.Get(ErrorTopicID)
	return ok
}
