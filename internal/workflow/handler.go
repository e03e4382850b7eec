package workflow

import (
	"context"

	"curator/internal/queue"
)

// Handler executes one stage's work for a claimed job. A nil return completes
// the job and lets the manager enqueue the next stage; errors are classified
// through services.IsRecoverable to decide between queue-level retry and
// terminating the chain.
type Handler interface {
	Execute(ctx context.Context, job *queue.Job) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, job *queue.Job) error

// Execute implements Handler.
func (f HandlerFunc) Execute(ctx context.Context, job *queue.Job) error {
	return f(ctx, job)
}
