// Package handlers provides request handling utilities: JSON parsing atoms,
// text processing atoms, upload validation, and progress reporting.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// JSON parsing errors
var (
	// ErrNoJSONFound is returned when no JSON object is found in the text.
	ErrNoJSONFound = errors.New("no JSON object found in text")
	// ErrInvalidJSON is returned when JSON parsing fails.
	ErrInvalidJSON = errors.New("invalid JSON")
)

// ExtractJSONFromText extracts the first JSON object from a text string by
// carving between the first '{' and last '}'. LLM replies routinely wrap
// JSON in prose or code fences; this strips both.
//
// Example:
//
//	raw, err := handlers.ExtractJSONFromText("Here you go: {\"key\": \"value\"}")
//	// raw == `{"key": "value"}`
func ExtractJSONFromText(text string) (string, error) {
	startIdx := strings.Index(text, "{")
	endIdx := strings.LastIndex(text, "}")

	if startIdx == -1 || endIdx == -1 || startIdx > endIdx {
		return "", ErrNoJSONFound
	}
	return text[startIdx : endIdx+1], nil
}

// ParseJSONToMap parses a JSON string into a map[string]interface{}.
func ParseJSONToMap(jsonStr string) (map[string]interface{}, error) {
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return result, nil
}

// StripCodeFences removes a surrounding markdown code fence (``` or
// ```json) from an LLM reply, if present.
func StripCodeFences(text string) string {
	trimmed := strings.TrimSpace(text)
	trimmed = strings.Trim(trimmed, "`")
	trimmed = strings.TrimPrefix(trimmed, "json")
	return strings.TrimSpace(trimmed)
}
