// Package imageanalyzer judges which extracted document images illustrate
// which topics, using the vision model. Per-image failures degrade to
// "no relevant topics" so one bad image never sinks a generation run.
package imageanalyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"smartnotes/core"
	"smartnotes/llm"
	"smartnotes/logging"
)

// imageExtensions are the file types considered during a folder scan.
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
}

// Analyzer runs topic-relevance analysis over document images.
type Analyzer struct {
	vision llm.VisionGenerator
	cfg    *core.Config
	logger *logging.Logger
}

// NewAnalyzer creates an image Analyzer.
func NewAnalyzer(vision llm.VisionGenerator, cfg *core.Config, logger *logging.Logger) *Analyzer {
	return &Analyzer{vision: vision, cfg: cfg, logger: logger.Named("imageanalyzer")}
}

// AnalyzeImage asks the vision model which of the given topics the image
// directly illustrates. Returns topic ID -> description of how the image
// illustrates that topic. An empty map means the image is relevant to
// nothing; analysis failures also return an empty map, logged but not
// fatal.
func (a *Analyzer) AnalyzeImage(ctx context.Context, imagePath string, set *core.TopicSet) (map[string]string, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	encoded, err := EncodeImageForVision(imagePath)
	if err != nil {
		a.logger.Warnw("image encoding failed", "image", imagePath, "error", err.Error())
		return map[string]string{}, nil
	}

	prompt := buildVisionPrompt(set)
	response, err := a.vision.GenerateWithImage(ctx, prompt, encoded, a.cfg.ImageAnalysisTokens)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		a.logger.Warnw("vision analysis failed", "image", filepath.Base(imagePath), "error", err.Error())
		return map[string]string{}, nil
	}

	return parseVisionResponse(response, set, a.logger), nil
}

// AnalyzeFolder analyzes every image file in a folder against the topic
// set. Returns topic ID -> image filename -> description. Topics with no
// relevant images map to an empty inner map.
func (a *Analyzer) AnalyzeFolder(ctx context.Context, folder string, set *core.TopicSet) (map[string]map[string]string, error) {
	result := make(map[string]map[string]string, set.Len())
	for _, id := range set.IDs() {
		result[id] = map[string]string{}
	}

	names, err := ListImages(folder)
	if err != nil {
		return nil, err
	}

	for _, name := range names {
		byTopic, err := a.AnalyzeImage(ctx, filepath.Join(folder, name), set)
		if err != nil {
			return nil, err
		}
		for topicID, description := range byTopic {
			result[topicID][name] = description
		}
	}

	a.logger.Infow("image analysis complete", "images", len(names), "topics", set.Len())
	return result, nil
}

// ListImages returns the image filenames in a folder, sorted. A missing
// folder yields an empty list, matching documents with no images.
func ListImages(folder string) ([]string, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read images folder: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if imageExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// buildVisionPrompt lists the topic names and demands strict JSON back.
func buildVisionPrompt(set *core.TopicSet) string {
	names := make([]string, 0, set.Len())
	for _, topic := range set.Topics() {
		names = append(names, fmt.Sprintf("%q", topic.Name))
	}

	return fmt.Sprintf(`Analyze this image carefully. Determine if it illustrates or provides significant visual information for any of the following topics:
%s, or any related subtopics treated in the document.

For EACH topic the image is STRONGLY and DIRECTLY relevant to, provide a concise description (1-3 sentences) explaining HOW the image illustrates that specific topic. Focus on the visual elements (diagrams, charts, scenes, objects) and their connection to the topic.

IGNORE topics where the image's relevance is weak, indirect, or purely based on text shown within the image itself unless that text is part of a diagram/chart relevant to the topic. Do not describe images that are just blocks of text.

Format your response STRICTLY as a JSON object like this:
{
    "topic_name_directly_illustrated_1": "Description of how the image illustrates this topic...",
    "topic_name_directly_illustrated_2": "Description of how the image illustrates this topic..."
}

If the image is not directly relevant to ANY of the listed topics, respond with an empty JSON object: {}`,
		strings.Join(names, ", "))
}

// parseVisionResponse maps the model's {topic name: description} object
// back onto topic IDs. Tolerates markdown code fences, a "json" prefix,
// prose around the object, and unknown topic names.
func parseVisionResponse(response string, set *core.TopicSet, logger *logging.Logger) map[string]string {
	result := map[string]string{}

	cleaned := strings.TrimSpace(response)
	cleaned = strings.Trim(cleaned, "`")
	cleaned = strings.TrimSpace(strings.TrimPrefix(cleaned, "json"))

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start == -1 || end == -1 || start > end {
		if strings.Contains(strings.ToLower(response), "no relevant information found") {
			return result
		}
		logger.Warnw("no JSON in vision response", "response", response)
		return result
	}

	jsonStr := cleaned[start : end+1]
	if jsonStr == "{}" {
		return result
	}

	var parsed map[string]string
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		logger.Warnw("vision response JSON unparseable", "error", err.Error())
		return result
	}

	nameToID := make(map[string]string, set.Len())
	for _, topic := range set.Topics() {
		nameToID[topic.Name] = topic.ID
	}

	for name, description := range parsed {
		description = strings.TrimSpace(description)
		id, ok := nameToID[name]
		if !ok || description == "" {
			logger.Debugw("vision topic name not matched", "name", name)
			continue
		}
		result[id] = description
	}
	return result
}

// VisualSection renders the "Related Visual Content" markdown fragment
// appended to a note when images illustrate its topic. Image filenames
// are listed in sorted order for stable output.
func VisualSection(images map[string]string) string {
	if len(images) == 0 {
		return ""
	}

	names := make([]string, 0, len(images))
	for name := range images {
		names = append(names, name)
	}
	sort.Strings(names)

	var builder strings.Builder
	builder.WriteString("\n\n## Related Visual Content\n")
	for _, name := range names {
		builder.WriteString(fmt.Sprintf("\n- **%s**: %s", name, images[name]))
	}
	builder.WriteString("\n")
	return builder.String()
}
