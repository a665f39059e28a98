package queue

import (
	"context"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-identity"
)

// InProcess runs every task on its own goroutine. Tasks do not survive a
// restart.
type InProcess struct {
	handler Handler
	logger  identity.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

var _ identity.Dispatcher = (*InProcess)(nil)

type InProcessOption func(*InProcess)

func WithInProcessLogger(logger identity.Logger) InProcessOption {
	return func(q *InProcess) {
		if logger != nil {
			q.logger = logger
		}
	}
}

func NewInProcess(handler Handler, opts ...InProcessOption) *InProcess {
	ctx, cancel := context.WithCancel(context.Background())
	q := &InProcess{
		handler: handler,
		logger:  identity.NopLogger{},
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(q)
		}
	}
	return q
}

// Dispatch implements identity.Dispatcher. It returns as soon as the task
// is scheduled.
func (q *InProcess) Dispatch(_ context.Context, msg identity.VerificationEmailMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return goerrors.New("queue is closed", goerrors.CategoryOperation)
	}

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		if err := q.handler.Execute(q.ctx, msg); err != nil {
			q.logger.Error("task %s failed: %v", msg.Type(), err)
		}
	}()

	return nil
}

// Close stops accepting tasks and waits for running ones until ctx is done,
// then cancels them.
func (q *InProcess) Close(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "queue close timed out")
	}
}
