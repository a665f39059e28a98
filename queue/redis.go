package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-identity"
	"github.com/redis/go-redis/v9"
)

const DefaultRedisKey = "identity:tasks"

const maxRedisBackoff = 10 * time.Second

type envelope struct {
	Type    string                            `json:"type"`
	Payload identity.VerificationEmailMessage `json:"payload"`
}

// Redis pushes tasks onto a redis list and consumes them with BRPOP, so
// tasks survive a restart and can be worked by another process.
type Redis struct {
	client  redis.UniversalClient
	handler Handler
	key     string
	wait    time.Duration
	backoff time.Duration
	logger  identity.Logger
}

var _ identity.Dispatcher = (*Redis)(nil)

type RedisOption func(*Redis)

func WithRedisKey(key string) RedisOption {
	return func(q *Redis) {
		if key != "" {
			q.key = key
		}
	}
}

// WithRedisWait sets how long a BRPOP blocks before checking the context.
func WithRedisWait(d time.Duration) RedisOption {
	return func(q *Redis) {
		if d > 0 {
			q.wait = d
		}
	}
}

// WithRedisBackoff sets the first pause after a failed pop. Consecutive
// failures double it up to ten seconds.
func WithRedisBackoff(d time.Duration) RedisOption {
	return func(q *Redis) {
		if d > 0 {
			q.backoff = d
		}
	}
}

func WithRedisLogger(logger identity.Logger) RedisOption {
	return func(q *Redis) {
		if logger != nil {
			q.logger = logger
		}
	}
}

func NewRedis(client redis.UniversalClient, handler Handler, opts ...RedisOption) *Redis {
	q := &Redis{
		client:  client,
		handler: handler,
		key:     DefaultRedisKey,
		wait:    time.Second,
		backoff: 500 * time.Millisecond,
		logger:  identity.NopLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(q)
		}
	}
	return q
}

// NewRedisClient parses a redis:// URL.
func NewRedisClient(rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid redis url")
	}
	return redis.NewClient(opts), nil
}

// Dispatch implements identity.Dispatcher.
func (q *Redis) Dispatch(ctx context.Context, msg identity.VerificationEmailMessage) error {
	data, err := json.Marshal(envelope{Type: msg.Type(), Payload: msg})
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode task")
	}

	if err := q.client.LPush(ctx, q.key, data).Err(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to enqueue task")
	}
	return nil
}

// Consume works tasks until ctx is done. Failed tasks are logged and
// dropped.
func (q *Redis) Consume(ctx context.Context) error {
	delay := q.backoff
	for {
		taken, err := q.ProcessOne(ctx)
		if err == nil || taken {
			delay = q.backoff
			if err != nil {
				q.logger.Error("redis consumer: %v", err)
			}
			continue
		}

		if ctx.Err() != nil {
			return stopped(ctx)
		}
		q.logger.Error("redis consumer: %v, retrying in %s", err, delay)

		// nothing was popped, so redis itself is failing
		select {
		case <-ctx.Done():
			return stopped(ctx)
		case <-time.After(delay):
		}
		delay = min(delay*2, maxRedisBackoff)
	}
}

func stopped(ctx context.Context) error {
	return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "redis consumer stopped")
}

// ProcessOne waits up to the configured wait for a task and executes it. It
// reports whether a task was taken off the list.
func (q *Redis) ProcessOne(ctx context.Context) (bool, error) {
	res, err := q.client.BRPop(ctx, q.wait, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to pop task")
	}

	// BRPOP replies with [key, value]
	if len(res) != 2 {
		return false, goerrors.New("unexpected BRPOP reply", goerrors.CategoryInternal)
	}

	var env envelope
	if err := json.Unmarshal([]byte(res[1]), &env); err != nil {
		return true, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to decode task")
	}

	if env.Type != identity.VerificationEmailMessageType {
		return true, goerrors.New("unknown task type", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"type": env.Type})
	}

	if err := q.handler.Execute(ctx, env.Payload); err != nil {
		return true, err
	}
	return true, nil
}

// Pending returns the number of queued tasks.
func (q *Redis) Pending(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}
