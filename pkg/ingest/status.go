package ingest

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Job states as written to the status resource.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Status is the polled job-state snapshot. It is the only view external
// callers get of an in-flight job.
type Status struct {
	JobID          string     `json:"jobId"`
	FileName       string     `json:"fileName,omitempty"`
	Status         string     `json:"status"`
	Progress       int        `json:"progress"`
	ProcessedLines int64      `json:"processedLines"`
	SkippedLines   int64      `json:"skippedLines,omitempty"`
	ResultPath     string     `json:"resultPath,omitempty"`
	Error          string     `json:"error,omitempty"`
	FailedAt       *time.Time `json:"failedAt,omitempty"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// StatusWriter persists status snapshots for one job. Writes go to a temp
// file first and are renamed into place so a poller never observes a torn
// snapshot.
type StatusWriter struct {
	path string
}

// NewStatusWriter creates a writer for the given status file path.
func NewStatusWriter(path string) *StatusWriter {
	return &StatusWriter{path: path}
}

// Write persists one snapshot atomically.
func (w *StatusWriter) Write(s *Status) error {
	s.UpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}

	tmp := w.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write status: %w", err)
	}
	if err := os.Rename(tmp, w.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename status: %w", err)
	}
	return nil
}

// ReadStatus loads a status snapshot from disk.
func ReadStatus(path string) (*Status, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Status
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode status: %w", err)
	}
	return &s, nil
}

// WriteJSON atomically persists any JSON-encodable value, used for result
// snapshots alongside status files.
func WriteJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
