package handlers

import (
	"sync"
	"time"

	"smartnotes/logging"
)

// Processing stages reported over the progress channel.
const (
	StageExtracting = "extracting"
	StageTopics     = "extracting_topics"
	StageGenerating = "generating"
	StageImages     = "analyzing_images"
	StageFormatting = "formatting"
	StagePersisting = "persisting"
	StageLinking    = "linking"
	StageDone       = "done"
	StageError      = "error"
)

// ProgressEvent is one progress update for a document's generation run.
type ProgressEvent struct {
	DocumentID string    `json:"document_id"`
	Stage      string    `json:"stage"`
	TopicName  string    `json:"topic_name,omitempty"`
	Completed  int       `json:"completed"`
	Total      int       `json:"total"`
	Message    string    `json:"message,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// ProgressSink receives progress events. The websocket hub implements
// this to push updates to connected browsers.
type ProgressSink interface {
	Publish(event ProgressEvent)
}

// ProgressReporter fans progress updates out to a sink (if any) and the
// log. A nil sink is fine; events are still logged.
//
// Example:
//
//	reporter := handlers.NewProgressReporter(hub, log)
//	reporter.Report(docID, handlers.StageGenerating, "Mitosis", 3, 10)
type ProgressReporter struct {
	mu   sync.Mutex
	sink ProgressSink
	log  *logging.Logger
}

// NewProgressReporter creates a ProgressReporter. sink may be nil.
func NewProgressReporter(sink ProgressSink, log *logging.Logger) *ProgressReporter {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &ProgressReporter{sink: sink, log: log}
}

// Report publishes a progress update.
func (p *ProgressReporter) Report(documentID, stage, topicName string, completed, total int) {
	p.publish(ProgressEvent{
		DocumentID: documentID,
		Stage:      stage,
		TopicName:  topicName,
		Completed:  completed,
		Total:      total,
		Timestamp:  time.Now(),
	})
}

// ReportError publishes a terminal error for the run.
func (p *ProgressReporter) ReportError(documentID string, err error) {
	event := ProgressEvent{
		DocumentID: documentID,
		Stage:      StageError,
		Timestamp:  time.Now(),
	}
	if err != nil {
		event.Message = err.Error()
	}
	p.publish(event)
}

// ReportDone publishes run completion.
func (p *ProgressReporter) ReportDone(documentID string, total int) {
	p.publish(ProgressEvent{
		DocumentID: documentID,
		Stage:      StageDone,
		Completed:  total,
		Total:      total,
		Timestamp:  time.Now(),
	})
}

func (p *ProgressReporter) publish(event ProgressEvent) {
	p.mu.Lock()
	sink := p.sink
	p.mu.Unlock()

	p.log.Debugw("progress",
		"document_id", event.DocumentID,
		"stage", event.Stage,
		"topic", event.TopicName,
		"completed", event.Completed,
		"total", event.Total,
	)
	if sink != nil {
		sink.Publish(event)
	}
}
