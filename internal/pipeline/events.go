// Package pipeline orchestrates indexing runs and end-to-end query
// answering, reporting progress through event streams.
package pipeline

import (
	"github.com/querymind/querymind/internal/executor"
	"github.com/querymind/querymind/internal/guardrail"
)

// EventType identifies the kind of a pipeline event.
type EventType string

const (
	EventStatus   EventType = "status"
	EventProgress EventType = "progress"
	EventSQLChunk EventType = "sql_chunk"
	EventRejected EventType = "rejected"
	EventResults  EventType = "results"
	EventDone     EventType = "done"
	EventError    EventType = "error"
)

// Progress reports completed work against a known total.
type Progress struct {
	Done  int `json:"done"`
	Total int `json:"total"`
}

// Event is one entry in a pipeline event stream. Every event of a run
// carries the same request ID.
type Event struct {
	Type      EventType          `json:"type"`
	RequestID string             `json:"request_id"`
	Message   string             `json:"message,omitempty"`
	Progress  *Progress          `json:"progress,omitempty"`
	Chunk     string             `json:"chunk,omitempty"`
	Verdict   *guardrail.Verdict `json:"verdict,omitempty"`
	Result    *executor.Result   `json:"result,omitempty"`
	Err       string             `json:"error,omitempty"`
}
