package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	DefaultSweepInterval = 48 * time.Hour
	DefaultGracePeriod   = 48 * time.Hour

	SweepStatusSuccess = "success"
)

// SweepResult reports a completed reconciliation run
type SweepResult struct {
	Status       string    `json:"status"`
	DeletedCount int64     `json:"deleted_count"`
	Cutoff       time.Time `json:"cutoff"`
}

// ReconciliationJob deletes accounts that stayed pending past the grace
// period. Verified accounts are never selected.
type ReconciliationJob struct {
	accounts     AccountRepository
	interval     time.Duration
	grace        time.Duration
	now          Clock
	logger       Logger
	activitySink ActivitySink
}

type ReconciliationOption func(*ReconciliationJob)

func WithSweepInterval(d time.Duration) ReconciliationOption {
	return func(j *ReconciliationJob) {
		if d > 0 {
			j.interval = d
		}
	}
}

func WithGracePeriod(d time.Duration) ReconciliationOption {
	return func(j *ReconciliationJob) {
		if d > 0 {
			j.grace = d
		}
	}
}

// WithJobClock injects a custom clock (useful for tests).
func WithJobClock(clock Clock) ReconciliationOption {
	return func(j *ReconciliationJob) {
		if clock != nil {
			j.now = clock
		}
	}
}

func WithJobLogger(logger Logger) ReconciliationOption {
	return func(j *ReconciliationJob) {
		if logger != nil {
			j.logger = logger
		}
	}
}

func WithJobActivitySink(sink ActivitySink) ReconciliationOption {
	return func(j *ReconciliationJob) {
		j.activitySink = normalizeActivitySink(sink)
	}
}

func NewReconciliationJob(accounts AccountRepository, opts ...ReconciliationOption) *ReconciliationJob {
	job := &ReconciliationJob{
		accounts:     accounts,
		interval:     DefaultSweepInterval,
		grace:        DefaultGracePeriod,
		now:          systemClock,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(job)
		}
	}
	return job
}

// Interval returns the period between two sweeps of Run.
func (j *ReconciliationJob) Interval() time.Duration {
	return j.interval
}

// Sweep deletes every pending account created at or before now minus the
// grace period. A store failure aborts the sweep and returns no result.
func (j *ReconciliationJob) Sweep(ctx context.Context) (*SweepResult, error) {
	if err := cancelled(ctx, "reconciliation sweep"); err != nil {
		return nil, err
	}

	cutoff := j.now().Add(-j.grace)

	deleted, err := j.accounts.DeleteWhere(ctx, DeleteFilter{
		Status:        AccountStatusPending,
		CreatedBefore: cutoff,
	})
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "reconciliation sweep failed").
			WithCode(goerrors.CodeInternal).
			WithMetadata(map[string]any{
				"cutoff": cutoff,
			})
	}

	recordActivity(ctx, j.activitySink, j.logger, j.now, ActivityEvent{
		EventType: ActivityEventSweep,
		Actor:     SystemActor,
		Metadata: map[string]any{
			"deleted_count": deleted,
			"cutoff":        cutoff,
		},
	})

	j.logger.Info("reconciliation sweep deleted %d pending accounts created before %s", deleted, cutoff.Format(time.RFC3339))

	return &SweepResult{
		Status:       SweepStatusSuccess,
		DeletedCount: deleted,
		Cutoff:       cutoff,
	}, nil
}

// Run sweeps immediately and then once per interval until ctx is done. A
// failed sweep is logged and the next tick starts a fresh run.
func (j *ReconciliationJob) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		if _, err := j.Sweep(ctx); err != nil && ctx.Err() == nil {
			j.logger.Error("reconciliation sweep: %v", err)
		}

		select {
		case <-ctx.Done():
			return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "reconciliation job stopped")
		case <-ticker.C:
		}
	}
}
