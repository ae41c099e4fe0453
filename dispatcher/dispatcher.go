package dispatcher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hrygo/contentpipe/task"
)

// Handler processes one claimed task.Envelope and returns its task.Result.
type Handler func(ctx context.Context, env *task.Envelope, tctx *Context) *task.Result

// Dispatcher routes an Envelope's task type to its registered Handler.
type Dispatcher struct {
	handlers map[string]Handler
}

// New builds an empty Dispatcher; call Register to add handlers.
func New() *Dispatcher {
	return &Dispatcher{handlers: map[string]Handler{}}
}

// Register adds h for taskType. It returns an error if taskType already has
// a registered handler.
func (d *Dispatcher) Register(taskType string, h Handler) error {
	if _, exists := d.handlers[taskType]; exists {
		return fmt.Errorf("duplicate handler for task type %q", taskType)
	}
	d.handlers[taskType] = h
	return nil
}

// MustRegister is Register, panicking on error. Intended for wiring the
// fixed handler set at process startup, where a duplicate is a programming
// error, not a runtime condition to recover from.
func (d *Dispatcher) MustRegister(taskType string, h Handler) {
	if err := d.Register(taskType, h); err != nil {
		panic(err)
	}
}

// Dispatch routes env to its handler and returns the handler's Result. An
// unknown task type fails the task rather than panicking, since a stale
// task row for a retired task type must not wedge the worker loop.
func (d *Dispatcher) Dispatch(ctx context.Context, env *task.Envelope, tctx *Context) *task.Result {
	h, ok := d.handlers[env.TaskType]
	if !ok {
		slog.Error("unknown task type", slog.String("taskType", env.TaskType), slog.Int64("taskID", env.ID))
		return task.Fail(fmt.Sprintf("unknown task type: %s", env.TaskType), false)
	}
	return h(ctx, env, tctx)
}
