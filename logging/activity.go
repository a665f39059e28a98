package logging

import (
	"context"

	"github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/activitymap"
	"go.uber.org/zap"
)

// NewActivitySink writes every activity event as a structured zap entry.
func NewActivitySink(l *zap.Logger, opts ...activitymap.Option) identity.ActivitySink {
	if l == nil {
		l = zap.NewNop()
	}
	return identity.ActivitySinkFunc(func(_ context.Context, event identity.ActivityEvent) error {
		rec := activitymap.Normalize(event, opts...)
		l.Info("activity",
			zap.String("verb", rec.Verb),
			zap.String("actor_id", rec.ActorID),
			zap.String("object_type", rec.ObjectType),
			zap.String("object_id", rec.ObjectID),
			zap.String("channel", rec.Channel),
			zap.Any("metadata", rec.Metadata),
			zap.Time("occurred_at", rec.OccurredAt),
		)
		return nil
	})
}
