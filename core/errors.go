package core

import (
	"fmt"
)

// ConfigError represents a configuration-related error with actionable instructions.
type ConfigError struct {
	Code    string // Error code for programmatic handling
	Message string // Human-readable error message
	Action  string // Actionable instruction for resolution
}

func (e *ConfigError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("%s. %s", e.Message, e.Action)
	}
	return e.Message
}

// Error codes for configuration errors
const (
	ErrCodeEnvFileMissing = "ENV_FILE_MISSING"
	ErrCodeMissingAPIKey  = "MISSING_API_KEY"
	ErrCodeInvalidLLMURL  = "INVALID_LLM_URL"
	ErrCodeBadUploadsDir  = "BAD_UPLOADS_DIR"
	ErrCodeBadDatabase    = "BAD_DATABASE"
)

// ErrEnvFileMissing returns an error for a missing .env file
func ErrEnvFileMissing(path string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeEnvFileMissing,
		Message: fmt.Sprintf("Configuration file not found: %s", path),
		Action:  "Copy example.env to .env and configure the required values",
	}
}

// ErrMissingAPIKey returns an error for a missing LLM provider key
func ErrMissingAPIKey(provider string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeMissingAPIKey,
		Message: fmt.Sprintf("No API key configured for %s", provider),
		Action:  "Set OPENAI_API_KEY in your .env file",
	}
}

// ErrInvalidLLMURL returns an error for an unparseable LLM endpoint override
func ErrInvalidLLMURL(url string, reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidLLMURL,
		Message: fmt.Sprintf("Invalid BASE_LLM_URL '%s': %s", url, reason),
		Action:  "Set BASE_LLM_URL to a valid OpenAI-compatible endpoint, or leave it unset",
	}
}

// ErrBadUploadsDir returns an error for an unusable uploads directory
func ErrBadUploadsDir(dir string, reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeBadUploadsDir,
		Message: fmt.Sprintf("Uploads directory '%s' is not usable: %s", dir, reason),
		Action:  "Set UPLOADS_DIR to a writable directory",
	}
}

// ErrBadDatabase returns an error for an unopenable database
func ErrBadDatabase(path string, reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeBadDatabase,
		Message: fmt.Sprintf("Database at '%s' could not be opened: %s", path, reason),
		Action:  "Set DATABASE_PATH to a writable location",
	}
}
