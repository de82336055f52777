package usecase

import (
	"github.com/user/gig-sync-service/pkg/backoff"
	"github.com/user/gig-sync-service/pkg/metrics"
	"go.uber.org/zap"
)

// observed returns policy with a failed-attempt hook that logs and counts under op.
func observed(policy backoff.Policy, op string, m *metrics.Metrics, logger *zap.Logger, fields ...zap.Field) backoff.Policy {
	retryable := policy.IsRetryable
	if retryable == nil {
		retryable = backoff.IsRetryable
	}
	return policy.WithObserver(func(attempt int, err error) {
		m.IncRetryAttempt(op)
		all := make([]zap.Field, 0, len(fields)+5)
		all = append(all, fields...)
		all = append(all,
			zap.String("operation", op),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", policy.MaxAttempts),
			zap.Bool("retryable", retryable(err)),
			zap.Error(err),
		)
		logger.Warn("attempt failed", all...)
	})
}
