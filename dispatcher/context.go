// Package dispatcher routes a claimed task.Envelope to the handler
// registered for its task type, and carries the shared dependencies every
// handler needs to do its work.
package dispatcher

import (
	"github.com/hrygo/contentpipe/checkout"
	"github.com/hrygo/contentpipe/gateway"
	"github.com/hrygo/contentpipe/internal/profile"
	"github.com/hrygo/contentpipe/queue"
	"github.com/hrygo/contentpipe/store"
)

// Context bundles the dependencies a handler needs: the queue service to
// enqueue follow-up tasks, the checkout manager for content-level batch
// work, the store for direct content/task reads, the worker's profile, and
// the outbound gateways.
type Context struct {
	Store    *store.Store
	Queue    *queue.Service
	Checkout *checkout.Manager
	Profile  *profile.Profile

	HTTP gateway.HTTPGateway
	LLM  gateway.LLMGateway
	Chat gateway.ChatGateway

	WorkerID string
}
