package handlers

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"smartnotes/logging"
)

func TestExtractJSONFromText(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{
			name:  "bare object",
			input: `{"key": "value"}`,
			want:  `{"key": "value"}`,
		},
		{
			name:  "object wrapped in prose",
			input: `Here is the result: {"key": "value"} hope it helps`,
			want:  `{"key": "value"}`,
		},
		{
			name:  "nested objects span first to last brace",
			input: `{"outer": {"inner": 1}}`,
			want:  `{"outer": {"inner": 1}}`,
		},
		{
			name:    "no braces",
			input:   "plain text only",
			wantErr: ErrNoJSONFound,
		},
		{
			name:    "reversed braces",
			input:   "} nothing {",
			wantErr: ErrNoJSONFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSONFromText(tt.input)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseJSONToMap(t *testing.T) {
	data, err := ParseJSONToMap(`{"type": "text", "count": 3}`)
	if err != nil {
		t.Fatalf("ParseJSONToMap: %v", err)
	}
	if data["type"] != "text" {
		t.Errorf("type = %v", data["type"])
	}

	if _, err := ParseJSONToMap("not json"); !errors.Is(err, ErrInvalidJSON) {
		t.Errorf("expected ErrInvalidJSON, got %v", err)
	}
}

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{`{"a":1}`, `{"a":1}`},
	}
	for _, tt := range tests {
		if got := StripCodeFences(tt.in); got != tt.want {
			t.Errorf("StripCodeFences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSafeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Cell Division", "Cell_Division"},
		{"Cell Division: Mitosis", "Cell_Division_Mitosis"},
		{"a/b\\c", "a_b_c"},
		{"What? Why*", "What_Why"},
		{"  spaced  ", "spaced"},
	}
	for _, tt := range tests {
		if got := SafeFilename(tt.in); got != tt.want {
			t.Errorf("SafeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTruncateText(t *testing.T) {
	if got := TruncateText("hello world", 5); got != "hello" {
		t.Errorf("TruncateText = %q", got)
	}
	if got := TruncateText("short", 100); got != "short" {
		t.Errorf("under-limit text changed: %q", got)
	}
}

func TestGenerateCorrelationID(t *testing.T) {
	a := GenerateCorrelationID()
	b := GenerateCorrelationID()
	if len(a) != 8 || len(b) != 8 {
		t.Errorf("lengths = %d, %d, want 8", len(a), len(b))
	}
	if a == b {
		t.Error("two IDs collided")
	}
}

func TestValidateUpload(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		size     int64
		wantErr  error
	}{
		{"pdf ok", "lecture.pdf", 1024, nil},
		{"audio ok", "lecture.mp3", 1024, nil},
		{"empty name", "", 10, ErrEmptyFilename},
		{"exe rejected", "virus.exe", 10, ErrUnsupportedExtension},
		{"too large", "big.pdf", DefaultMaxUploadBytes + 1, ErrUploadTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUpload(tt.filename, tt.size, 0)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateUploadCustomLimit(t *testing.T) {
	if err := ValidateUpload("a.txt", 11, 10); !errors.Is(err, ErrUploadTooLarge) {
		t.Errorf("custom limit not applied: %v", err)
	}
	if err := ValidateUpload("a.txt", 10, 10); err != nil {
		t.Errorf("at-limit upload rejected: %v", err)
	}
}

type captureSink struct {
	mu     sync.Mutex
	events []ProgressEvent
}

func (c *captureSink) Publish(event ProgressEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func TestProgressReporter(t *testing.T) {
	sink := &captureSink{}
	reporter := NewProgressReporter(sink, logging.NewNopLogger())

	reporter.Report("doc-1", StageGenerating, "Mitosis", 2, 5)
	reporter.ReportError("doc-1", errors.New("llm unreachable"))
	reporter.ReportDone("doc-1", 5)

	if len(sink.events) != 3 {
		t.Fatalf("got %d events, want 3", len(sink.events))
	}
	if sink.events[0].Stage != StageGenerating || sink.events[0].Completed != 2 {
		t.Errorf("first event = %+v", sink.events[0])
	}
	if sink.events[1].Stage != StageError || !strings.Contains(sink.events[1].Message, "unreachable") {
		t.Errorf("error event = %+v", sink.events[1])
	}
	if sink.events[2].Stage != StageDone || sink.events[2].Completed != 5 {
		t.Errorf("done event = %+v", sink.events[2])
	}
}

func TestProgressReporterNilSink(t *testing.T) {
	reporter := NewProgressReporter(nil, nil)
	// Must not panic.
	reporter.Report("doc-1", StageExtracting, "", 0, 0)
	reporter.ReportDone("doc-1", 0)
}
