package handlers

import (
	"strings"

	"github.com/google/uuid"
)

// GenerateCorrelationID creates a unique 8-character ID for request tracing.
// UUID v4 truncated to 8 characters keeps log lines short while staying
// unique enough for correlation.
//
// Example:
//
//	correlationID := handlers.GenerateCorrelationID()
func GenerateCorrelationID() string {
	return uuid.New().String()[:8]
}

// TruncateText truncates a string to a maximum byte length. Text under
// the limit is returned unchanged. Used to cap document text before it
// enters a prompt.
func TruncateText(text string, maxLength int) string {
	if maxLength >= 0 && len(text) > maxLength {
		return text[:maxLength]
	}
	return text
}

// SafeFilename converts a topic name into a filesystem- and URL-safe
// filename stem: spaces become underscores and path-hostile characters
// are dropped.
//
// Example:
//
//	handlers.SafeFilename("Cell Division: Mitosis") // "Cell_Division_Mitosis"
func SafeFilename(name string) string {
	var sb strings.Builder
	lastUnderscore := false
	for _, r := range name {
		switch {
		case r == ' ' || r == ':' || r == '/' || r == '\\':
			if !lastUnderscore && sb.Len() > 0 {
				sb.WriteRune('_')
				lastUnderscore = true
			}
		case r == '<' || r == '>' || r == '"' || r == '|' || r == '?' || r == '*' || r == 0:
			// dropped
		default:
			sb.WriteRune(r)
			lastUnderscore = false
		}
	}
	return strings.Trim(sb.String(), "_")
}

// ContentPreview returns the first maxLength characters of text with
// newlines collapsed, for log lines and task records.
func ContentPreview(text string, maxLength int) string {
	flat := strings.Join(strings.Fields(text), " ")
	return TruncateText(flat, maxLength)
}

// EstimateTokenCount gives a rough token estimate at 4 characters per
// token. Good enough for budget checks, not for billing.
func EstimateTokenCount(text string) int {
	return len(text) / 4
}
