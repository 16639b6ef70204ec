// Package metrics provides in-memory metrics for the web UI status API.
// This file contains atom-level type definitions with no behavior.
package metrics

import "time"

// Task status values.
const (
	TaskStatusProcessing = "processing"
	TaskStatusSuccess    = "success"
	TaskStatusError      = "error"
)

// Task type values recorded by the orchestrator.
const (
	TaskTypeTopicExtraction = "topic_extraction"
	TaskTypeNoteGeneration  = "note_generation"
	TaskTypeImageAnalysis   = "image_analysis"
	TaskTypeInstruction     = "instruction"
	TaskTypeQuestion        = "question"
	TaskTypeTranscription   = "transcription"
)

// System health values.
const (
	SystemHealthRunning = "running"
	SystemHealthError   = "error"
)

// TaskRecord represents a single processing step: one LLM call or one
// per-topic pipeline stage within a generation run.
type TaskRecord struct {
	// ID is the unique identifier for this task
	ID string `json:"id"`

	// Type identifies the kind of task (see TaskType constants)
	Type string `json:"type"`

	// DocumentID identifies which document this task belongs to
	DocumentID string `json:"document_id"`

	// TopicName is the topic being processed, if the task is per-topic
	TopicName string `json:"topic_name,omitempty"`

	// Status indicates the current state: "success", "error", "processing"
	Status string `json:"status"`

	// StartTime is when the task began execution
	StartTime time.Time `json:"start_time"`

	// EndTime is when the task completed (zero value if still processing)
	EndTime time.Time `json:"end_time,omitempty"`

	// Duration is the total execution time
	Duration time.Duration `json:"duration"`

	// ErrorMsg contains error details if Status is "error"
	ErrorMsg string `json:"error_msg,omitempty"`
}

// RunRecord summarizes one note-generation run over a document.
type RunRecord struct {
	// ID is the unique identifier for this run
	ID string `json:"id"`

	// DocumentID identifies the document being processed
	DocumentID string `json:"document_id"`

	// Format is the requested output format
	Format string `json:"format"`

	// Granularity is the topic granularity the run used (0-100)
	Granularity int `json:"granularity"`

	// TopicCount is the number of topics in the run
	TopicCount int `json:"topic_count"`

	// NotesGenerated counts freshly generated notes (cached ones excluded)
	NotesGenerated int `json:"notes_generated"`

	// Status indicates the current state: "success", "error", "processing"
	Status string `json:"status"`

	// StartTime is when the run began
	StartTime time.Time `json:"start_time"`

	// EndTime is when the run completed (zero value if still running)
	EndTime time.Time `json:"end_time,omitempty"`

	// Duration is the total run time
	Duration time.Duration `json:"duration"`

	// ErrorMsg contains error details if Status is "error"
	ErrorMsg string `json:"error_msg,omitempty"`
}

// SystemStatus represents overall application health for /api/status.
type SystemStatus struct {
	// Health indicates the system state: "running", "error"
	Health string `json:"health"`

	// Version is the application version string
	Version string `json:"version"`

	// Uptime is the duration since the application started
	Uptime time.Duration `json:"uptime"`

	// LastCheck is the timestamp of the last health check
	LastCheck time.Time `json:"last_check"`
}

// TaskMetrics represents aggregated task processing statistics.
type TaskMetrics struct {
	// TotalProcessed is the total number of tasks processed
	TotalProcessed int64 `json:"total_processed"`

	// TotalSuccess is the count of successfully completed tasks
	TotalSuccess int64 `json:"total_success"`

	// TotalErrors is the count of failed tasks
	TotalErrors int64 `json:"total_errors"`

	// ByType contains per-type statistics
	ByType map[string]*TaskTypeMetrics `json:"by_type"`
}

// TaskTypeMetrics represents statistics for a specific task type.
type TaskTypeMetrics struct {
	// Count is the number of tasks of this type
	Count int64 `json:"count"`

	// SuccessRate is the percentage of successful tasks (0-100)
	SuccessRate float64 `json:"success_rate"`

	// AvgDuration is the mean execution time
	AvgDuration time.Duration `json:"avg_duration"`
}

// Collector is the interface the orchestrator records against and the
// status API reads from.
type Collector interface {
	RecordTask(task TaskRecord)
	RecordRun(run RunRecord)
	GetTaskMetrics() TaskMetrics
	GetRecentTasks(limit int) []TaskRecord
	GetRecentRuns(limit int) []RunRecord
	GetSystemStatus() SystemStatus
}
