package core

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration values for the SmartNotes backend.
type Config struct {
	// LLM provider configuration
	OpenAIAPIKey string
	BaseLLMURL   string // OpenAI-compatible endpoint override (empty = api.openai.com)

	// Model selection
	NoteModel       string // Chat model for extraction/enhancement/classification
	VisionModel     string // Vision model for image relevance analysis
	TranscribeModel string // Audio transcription model (Whisper)

	// Token limits for different operations
	TopicExtractionTokens int64
	NoteResponseTokens    int64
	ImageAnalysisTokens   int64
	AnswerTokens          int64

	// Prompt input caps (characters sent to the model)
	TopicExtractionChars int // Prefix of the document sent for topic extraction
	TopicInfoChars       int // Prefix sent for per-topic information extraction
	QuestionContextChars int // Document excerpt cap for question answering

	// Processing configuration
	MaxRetries        int
	RetryDelay        time.Duration
	AITimeout         time.Duration // Per LLM call
	ProcessingTimeout time.Duration // Per generation run
	MaxConcurrent     int           // Global worker pool size
	QueueDepth        int           // Admission-control queue for the pool
	RequestsPerMinute int           // LLM provider rate limit

	// Upload handling
	UploadsDir  string
	MaxFileSize int64

	// Persistence
	DatabasePath   string
	MigrationsPath string

	// Web UI
	Port          int
	Host          string
	WebUIPassword string // Optional; empty disables auth
	SessionTTL    time.Duration
}

// fileConfig mirrors the YAML overlay file. Env vars take precedence over
// the file, the file over built-in defaults.
type fileConfig struct {
	BaseLLMURL    string `yaml:"base_llm_url"`
	NoteModel     string `yaml:"note_model"`
	VisionModel   string `yaml:"vision_model"`
	UploadsDir    string `yaml:"uploads_dir"`
	DatabasePath  string `yaml:"database_path"`
	Port          int    `yaml:"port"`
	Host          string `yaml:"host"`
	MaxConcurrent int    `yaml:"max_concurrent"`
}

// DefaultMaxConcurrent returns the default worker pool size:
// min(10, NumCPU+4). Workers block on network I/O, so the pool is
// allowed to exceed the CPU count.
func DefaultMaxConcurrent() int {
	n := runtime.NumCPU() + 4
	if n > 10 {
		n = 10
	}
	return n
}

// LoadConfig loads configuration from the optional YAML overlay file and
// environment variables, with environment taking precedence.
//
// Only OPENAI_API_KEY is required; everything else has a sensible default.
func LoadConfig() (*Config, error) {
	overlay, err := loadFileConfig(os.Getenv("SMARTNOTES_CONFIG"))
	if err != nil {
		return nil, err
	}

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, ErrMissingAPIKey("openai")
	}

	cfg := &Config{
		OpenAIAPIKey: apiKey,
		BaseLLMURL:   GetEnvOrDefault("BASE_LLM_URL", overlay.BaseLLMURL),

		NoteModel:       GetEnvOrDefault("NOTE_MODEL", defaultString(overlay.NoteModel, "gpt-4o-mini")),
		VisionModel:     GetEnvOrDefault("VISION_MODEL", defaultString(overlay.VisionModel, "gpt-4o-mini")),
		TranscribeModel: GetEnvOrDefault("TRANSCRIBE_MODEL", "whisper-1"),

		TopicExtractionTokens: ParseInt64Env("TOPIC_EXTRACTION_TOKENS", 2048),
		NoteResponseTokens:    ParseInt64Env("NOTE_RESPONSE_TOKENS", 4096),
		ImageAnalysisTokens:   ParseInt64Env("IMAGE_ANALYSIS_TOKENS", 1024),
		AnswerTokens:          ParseInt64Env("ANSWER_TOKENS", 2048),

		TopicExtractionChars: ParseIntEnv("TOPIC_EXTRACTION_CHARS", 10000),
		TopicInfoChars:       ParseIntEnv("TOPIC_INFO_CHARS", 50000),
		QuestionContextChars: ParseIntEnv("QUESTION_CONTEXT_CHARS", 20000),

		MaxRetries:        ParseIntEnv("MAX_RETRIES", 1),
		RetryDelay:        ParseDurationEnv("RETRY_DELAY", 1),
		AITimeout:         ParseDurationEnv("AI_TIMEOUT", 120),
		ProcessingTimeout: ParseDurationEnv("PROCESSING_TIMEOUT", 900),
		MaxConcurrent:     ParseIntEnv("MAX_CONCURRENT", defaultInt(overlay.MaxConcurrent, DefaultMaxConcurrent())),
		QueueDepth:        ParseIntEnv("QUEUE_DEPTH", 128),
		RequestsPerMinute: ParseIntEnv("REQUESTS_PER_MINUTE", 60),

		UploadsDir:  GetEnvOrDefault("UPLOADS_DIR", defaultString(overlay.UploadsDir, "./uploads")),
		MaxFileSize: ParseInt64Env("MAX_FILE_SIZE", 52428800),

		DatabasePath:   GetEnvOrDefault("DATABASE_PATH", defaultString(overlay.DatabasePath, "./data/smartnotes.db")),
		MigrationsPath: GetEnvOrDefault("MIGRATIONS_PATH", "file://db/migrations"),

		Port:          ParseIntEnv("PORT", defaultInt(overlay.Port, 5000)),
		Host:          GetEnvOrDefault("HOST", defaultString(overlay.Host, "0.0.0.0")),
		WebUIPassword: os.Getenv("WEBUI_PWD"),
		SessionTTL:    ParseDurationEnv("SESSION_TTL", 86400),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate performs range checks on values a misconfigured environment
// could push out of bounds.
func (c *Config) validate() error {
	if c.MaxConcurrent < 1 || c.MaxConcurrent > 64 {
		return fmt.Errorf("MAX_CONCURRENT must be between 1 and 64, got %d", c.MaxConcurrent)
	}
	if c.QueueDepth < 1 {
		return fmt.Errorf("QUEUE_DEPTH must be positive, got %d", c.QueueDepth)
	}
	if c.RequestsPerMinute < 1 {
		return fmt.Errorf("REQUESTS_PER_MINUTE must be positive, got %d", c.RequestsPerMinute)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.MaxFileSize < 1 {
		return fmt.Errorf("MAX_FILE_SIZE must be positive, got %d", c.MaxFileSize)
	}
	return nil
}

// loadFileConfig reads the optional YAML overlay. A missing path (or a
// path that doesn't exist) yields an empty overlay, not an error.
func loadFileConfig(path string) (fileConfig, error) {
	var fc fileConfig
	if path == "" {
		return fc, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fc, nil
		}
		return fc, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return fc, nil
}

func defaultString(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

func defaultInt(value, fallback int) int {
	if value != 0 {
		return value
	}
	return fallback
}
