package topics

import (
	"context"
	"fmt"
	"strings"
)

// MergeTopics asks the model to combine several topic titles into one
// concise title covering all of them. Used when the user selects multiple
// topics for a single combined note.
func (e *Extractor) MergeTopics(ctx context.Context, titles []string) (string, error) {
	if len(titles) == 0 {
		return "", fmt.Errorf("no topic titles to merge")
	}
	if len(titles) == 1 {
		return titles[0], nil
	}

	prompt := fmt.Sprintf(`Combine the following study topic titles into a single concise title that covers all of them.

TOPIC TITLES:
- %s

Respond with the combined title only. No explanations, no quotes.`,
		strings.Join(titles, "\n- "))

	response, err := e.gen.Generate(ctx, prompt, e.cfg.TopicExtractionTokens)
	if err != nil {
		return "", fmt.Errorf("failed to merge topics: %w", err)
	}

	merged := strings.TrimSpace(response)
	// Keep it one line even if the model rambles.
	if idx := strings.IndexByte(merged, '\n'); idx >= 0 {
		merged = strings.TrimSpace(merged[:idx])
	}
	merged = strings.Trim(merged, `"`)
	if merged == "" {
		return "", fmt.Errorf("empty merged title returned")
	}
	return merged, nil
}
