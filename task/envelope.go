// Package task defines the normalized values that cross the boundary
// between the worker loop and a task handler: TaskEnvelope going in,
// TaskResult coming out. Handlers never see a raw store.Task or a raw Go
// error past this boundary.
package task

import (
	"time"

	"github.com/hrygo/contentpipe/store"
)

// Envelope is the normalized view of a claimed task handed to a handler.
type Envelope struct {
	ID         int64
	TaskType   string
	ContentID  *int64
	Payload    map[string]any
	RetryCount int
	Status     string
	QueueName  string
	CreatedAt  time.Time
	StartedAt  *time.Time
}

// FromTask builds an Envelope from a claimed store.Task.
func FromTask(t *store.Task) *Envelope {
	payload := t.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	return &Envelope{
		ID:         t.ID,
		TaskType:   t.TaskType,
		ContentID:  t.ContentID,
		Payload:    payload,
		RetryCount: t.RetryCount,
		Status:     t.Status,
		QueueName:  t.QueueName,
		CreatedAt:  t.CreatedAt,
		StartedAt:  t.StartedAt,
	}
}

// Result is the outcome of processing one Envelope.
type Result struct {
	Success           bool
	ErrorMessage      string
	RetryDelaySeconds int
	// Network marks the failure as network-class, so the worker applies
	// the wider retry backoff ceiling.
	Network bool
	// Retryable marks a failed Result as eligible for the worker's retry
	// loop. False is a terminal failure — InvalidInput, NotFound, and
	// TerminalUpstreamFailure conditions all set this so the loop does not
	// burn through MaxRetries on an error retrying can never fix.
	Retryable bool
}

// Ok returns a successful Result.
func Ok() *Result {
	return &Result{Success: true}
}

// Fail returns a failed Result carrying the given error message. retryable
// controls whether the worker loop reschedules the task at all; pass false
// for unrecoverable errors (missing input, content not found, permanent
// upstream rejection).
func Fail(errMsg string, retryable bool) *Result {
	return &Result{Success: false, ErrorMessage: errMsg, Retryable: retryable}
}

// FailNetwork returns a failed Result from a network-class error, which
// the worker backs off more generously before retrying. Network failures
// are always retryable.
func FailNetwork(errMsg string) *Result {
	return &Result{Success: false, ErrorMessage: errMsg, Network: true, Retryable: true}
}
