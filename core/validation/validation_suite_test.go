package validation

import (
	"bytes"
	"strings"
	"testing"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestCheckAPIKey(t *testing.T) {
	tests := []struct {
		name  string
		env   map[string]string
		valid bool
	}{
		{"key present", map[string]string{"OPENAI_API_KEY": "sk-test-1234"}, true},
		{"key missing", map[string]string{}, false},
		{"key whitespace", map[string]string{"OPENAI_API_KEY": "   "}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := NewConfigChecker().WithLookup(envMap(tt.env))
			result := checker.CheckAPIKey()
			if result.Valid != tt.valid {
				t.Errorf("CheckAPIKey() valid = %v, want %v (%s)", result.Valid, tt.valid, result.Message)
			}
		})
	}
}

func TestCheckLLMURL(t *testing.T) {
	tests := []struct {
		name  string
		url   string
		set   bool
		valid bool
	}{
		{"unset uses default", "", false, true},
		{"https url", "https://api.openai.com/v1", true, true},
		{"http url", "http://localhost:11434/v1", true, true},
		{"bad scheme", "ftp://example.com", true, false},
		{"not a url", "://nope", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := map[string]string{}
			if tt.set {
				env["BASE_LLM_URL"] = tt.url
			}
			checker := NewConfigChecker().WithLookup(envMap(env))
			result := checker.CheckLLMURL()
			if result.Valid != tt.valid {
				t.Errorf("CheckLLMURL(%q) valid = %v, want %v", tt.url, result.Valid, tt.valid)
			}
		})
	}
}

func TestCheckUploadsDir(t *testing.T) {
	dir := t.TempDir()
	checker := NewConfigChecker().WithLookup(envMap(map[string]string{
		"UPLOADS_DIR": dir,
	}))
	result := checker.CheckUploadsDir()
	if !result.Valid {
		t.Fatalf("CheckUploadsDir() failed for temp dir: %v", result.Error)
	}
}

func TestCheckDatabaseDir(t *testing.T) {
	dir := t.TempDir()
	checker := NewConfigChecker().WithLookup(envMap(map[string]string{
		"DATABASE_PATH": dir + "/notes.db",
	}))
	result := checker.CheckDatabaseDir()
	if !result.Valid {
		t.Fatalf("CheckDatabaseDir() failed for temp dir: %v", result.Error)
	}
}

func TestValidateFailFast(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	var buf bytes.Buffer
	suite := NewValidationSuite().
		WithOutput(&buf).
		WithFailFast(true).
		WithSkipNetwork(true)

	result := suite.Validate()
	if result.Success {
		t.Error("Validate() succeeded with missing API key")
	}
	if result.TotalSteps != 1 {
		t.Errorf("fail-fast ran %d steps, want 1", result.TotalSteps)
	}
}

func TestValidateSkipNetwork(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("BASE_LLM_URL", "https://api.openai.com/v1")
	t.Setenv("UPLOADS_DIR", t.TempDir())
	t.Setenv("DATABASE_PATH", t.TempDir()+"/notes.db")

	var buf bytes.Buffer
	result := NewValidationSuite().
		WithOutput(&buf).
		WithSkipNetwork(true).
		Validate()

	if !result.Success {
		for _, step := range result.Steps {
			if step.Status == StepFailed {
				t.Errorf("step %q failed: %v", step.Name, step.Error)
			}
		}
	}

	last := result.Steps[len(result.Steps)-1]
	if last.Status != StepSkipped {
		t.Errorf("connectivity step status = %v, want skipped", last.Status)
	}
	if !strings.Contains(buf.String(), "All checks passed") {
		t.Error("summary missing from output")
	}
}

func TestStepStatusString(t *testing.T) {
	tests := []struct {
		status StepStatus
		want   string
	}{
		{StepPending, "pending"},
		{StepPassed, "passed"},
		{StepFailed, "failed"},
		{StepSkipped, "skipped"},
	}
	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("StepStatus(%d).String() = %q, want %q", tt.status, got, tt.want)
		}
	}
}
