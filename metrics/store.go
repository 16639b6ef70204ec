// Package metrics provides the Store organism for in-memory metrics storage.
package metrics

import (
	"sync"
	"time"
)

// Store is a thread-safe in-memory metrics store backing /api/status.
// Task and run histories live in fixed-capacity ring buffers so memory
// stays bounded over long uptimes.
//
// Usage:
//
//	store := metrics.NewStore(metrics.DefaultStoreConfig(), time.Now())
//	store.RecordTask(task)
//	agg := store.GetTaskMetrics()
type Store struct {
	mu sync.RWMutex

	taskHistory []TaskRecord
	taskCap     int
	taskHead    int
	taskSize    int

	runHistory []RunRecord
	runCap     int
	runHead    int
	runSize    int

	totalTasks   int64
	totalSuccess int64
	totalErrors  int64
	taskByType   map[string]*taskTypeStats

	lastRunError string

	startTime time.Time
	version   string
}

type taskTypeStats struct {
	count         int64
	successCount  int64
	totalDuration time.Duration
}

// StoreConfig configures the Store behavior.
type StoreConfig struct {
	// TaskHistoryCapacity is the max number of tasks to retain
	TaskHistoryCapacity int
	// RunHistoryCapacity is the max number of generation runs to retain
	RunHistoryCapacity int
	// Version is the application version string
	Version string
}

// DefaultStoreConfig returns a default configuration.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		TaskHistoryCapacity: 200,
		RunHistoryCapacity:  50,
		Version:             "0.0.0",
	}
}

// NewStore creates a Store. startTime is used to calculate uptime.
func NewStore(config StoreConfig, startTime time.Time) *Store {
	taskCap := config.TaskHistoryCapacity
	if taskCap < 1 {
		taskCap = 200
	}
	runCap := config.RunHistoryCapacity
	if runCap < 1 {
		runCap = 50
	}

	return &Store{
		taskHistory: make([]TaskRecord, taskCap),
		taskCap:     taskCap,
		runHistory:  make([]RunRecord, runCap),
		runCap:      runCap,
		taskByType:  make(map[string]*taskTypeStats),
		startTime:   startTime,
		version:     config.Version,
	}
}

// RecordTask logs a completed task execution.
func (s *Store) RecordTask(task TaskRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.taskHistory[s.taskHead] = task
	s.taskHead = (s.taskHead + 1) % s.taskCap
	if s.taskSize < s.taskCap {
		s.taskSize++
	}

	s.totalTasks++
	switch task.Status {
	case TaskStatusSuccess:
		s.totalSuccess++
	case TaskStatusError:
		s.totalErrors++
	}

	stats, ok := s.taskByType[task.Type]
	if !ok {
		stats = &taskTypeStats{}
		s.taskByType[task.Type] = stats
	}
	stats.count++
	if task.Status == TaskStatusSuccess {
		stats.successCount++
	}
	stats.totalDuration += task.Duration
}

// RecordRun logs a completed (or failed) generation run.
func (s *Store) RecordRun(run RunRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runHistory[s.runHead] = run
	s.runHead = (s.runHead + 1) % s.runCap
	if s.runSize < s.runCap {
		s.runSize++
	}

	if run.Status == TaskStatusError {
		s.lastRunError = run.ErrorMsg
	} else if run.Status == TaskStatusSuccess {
		s.lastRunError = ""
	}
}

// GetTaskMetrics returns aggregated task processing statistics.
func (s *Store) GetTaskMetrics() TaskMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := TaskMetrics{
		TotalProcessed: s.totalTasks,
		TotalSuccess:   s.totalSuccess,
		TotalErrors:    s.totalErrors,
		ByType:         make(map[string]*TaskTypeMetrics),
	}

	for taskType, stats := range s.taskByType {
		var successRate float64
		var avgDuration time.Duration
		if stats.count > 0 {
			successRate = float64(stats.successCount) / float64(stats.count) * 100
			avgDuration = stats.totalDuration / time.Duration(stats.count)
		}
		result.ByType[taskType] = &TaskTypeMetrics{
			Count:       stats.count,
			SuccessRate: successRate,
			AvgDuration: avgDuration,
		}
	}

	return result
}

// GetRecentTasks returns up to limit task records, most recent first.
func (s *Store) GetRecentTasks(limit int) []TaskRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || s.taskSize == 0 {
		return []TaskRecord{}
	}
	if limit > s.taskSize {
		limit = s.taskSize
	}

	result := make([]TaskRecord, limit)
	for i := 0; i < limit; i++ {
		idx := (s.taskHead - 1 - i + s.taskCap) % s.taskCap
		result[i] = s.taskHistory[idx]
	}
	return result
}

// GetRecentRuns returns up to limit run records, most recent first.
func (s *Store) GetRecentRuns(limit int) []RunRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || s.runSize == 0 {
		return []RunRecord{}
	}
	if limit > s.runSize {
		limit = s.runSize
	}

	result := make([]RunRecord, limit)
	for i := 0; i < limit; i++ {
		idx := (s.runHead - 1 - i + s.runCap) % s.runCap
		result[i] = s.runHistory[idx]
	}
	return result
}

// GetSystemStatus returns overall application health. Health degrades to
// "error" while the most recent run failure has not been superseded by a
// successful run.
func (s *Store) GetSystemStatus() SystemStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	health := SystemHealthRunning
	if s.lastRunError != "" {
		health = SystemHealthError
	}

	return SystemStatus{
		Health:    health,
		Version:   s.version,
		Uptime:    time.Since(s.startTime),
		LastCheck: time.Now(),
	}
}

var _ Collector = (*Store)(nil)
