package dispatcher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/contentpipe/task"
)

func TestRegisterRejectsDuplicateTaskType(t *testing.T) {
	d := New()
	noop := func(ctx context.Context, env *task.Envelope, tctx *Context) *task.Result { return task.Ok() }

	require.NoError(t, d.Register("summarize", noop))
	err := d.Register("summarize", noop)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "summarize")
}

func TestDispatchRoutesToRegisteredHandler(t *testing.T) {
	d := New()
	var got *task.Envelope
	d.MustRegister("summarize", func(ctx context.Context, env *task.Envelope, tctx *Context) *task.Result {
		got = env
		return task.Ok()
	})

	env := &task.Envelope{ID: 1, TaskType: "summarize"}
	result := d.Dispatch(context.Background(), env, &Context{})

	require.NotNil(t, got)
	assert.Equal(t, int64(1), got.ID)
	assert.True(t, result.Success)
}

func TestDispatchFailsUnknownTaskType(t *testing.T) {
	d := New()
	result := d.Dispatch(context.Background(), &task.Envelope{TaskType: "bogus"}, &Context{})
	require.False(t, result.Success)
	assert.Contains(t, result.ErrorMessage, "bogus")
	assert.False(t, result.Retryable, "an unregistered task type can never succeed on retry")
}
