package service

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/mailrunner/internal/domain"
	"github.com/kursadbilgin/mailrunner/internal/observability"
	"github.com/kursadbilgin/mailrunner/internal/provider"
	"go.uber.org/zap"
)

// RetryPolicy bounds the attempt sequence of one recipient. The wait
// between attempts is always Delay; it never grows.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("%w: max attempts must be at least 1, got %d", domain.ErrValidation, p.MaxAttempts)
	}
	if p.Delay < 0 {
		return fmt.Errorf("%w: retry delay must not be negative", domain.ErrValidation)
	}
	return nil
}

// DeliveryEngine sends one message over an open session, retrying failed
// attempts with a fixed delay.
type DeliveryEngine struct {
	logger  *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewDeliveryEngine(logger *zap.Logger) *DeliveryEngine {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DeliveryEngine{
		logger: logger,
		now:    time.Now,
		sleep:  sleepWithContext,
	}
}

func (e *DeliveryEngine) SetMetrics(metrics *observability.Metrics) {
	if e == nil {
		return
	}
	e.metrics = metrics
}

// SendWithRetry makes up to policy.MaxAttempts delivery attempts. The
// result is terminal: either the first success, or a failure carrying the
// last attempt's error. The returned error is non-nil only for an invalid
// policy or when ctx ends the sequence early; the result then covers the
// attempts made so far.
func (e *DeliveryEngine) SendWithRetry(
	ctx context.Context,
	session provider.Session,
	recipient domain.Recipient,
	message domain.Message,
	policy RetryPolicy,
) (domain.DeliveryResult, error) {
	result := domain.DeliveryResult{
		RecipientEmail: recipient.Email,
		RecipientName:  recipient.DisplayName(),
	}
	if err := policy.Validate(); err != nil {
		return result, err
	}

	logger := observability.WithContextLogger(e.logger, ctx).With(zap.String("recipient", recipient.Email))

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		result.Attempts = attempt

		start := e.now()
		err := session.Send(ctx, recipient, message)
		elapsed := e.now().Sub(start)

		if err == nil {
			e.metrics.ObserveAttempt("ok", elapsed)
			result.Success = true
			result.Timestamp = e.now().UTC()
			logger.Info("email sent",
				zap.Int("attempt", attempt),
				zap.String("subject", message.Subject),
			)
			return result, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			result.ErrorMessage = err.Error()
			result.Timestamp = e.now().UTC()
			return result, ctxErr
		}

		lastErr = err
		kind := provider.KindOf(provider.Classify(err))
		e.metrics.ObserveAttempt(kind.String(), elapsed)
		logger.Warn("delivery attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("maxAttempts", policy.MaxAttempts),
			zap.String("kind", kind.String()),
			zap.Error(err),
		)

		if attempt == policy.MaxAttempts {
			break
		}

		e.metrics.IncRetryScheduled()
		if err := e.sleep(ctx, policy.Delay); err != nil {
			result.ErrorMessage = lastErr.Error()
			result.Timestamp = e.now().UTC()
			return result, err
		}
	}

	result.ErrorMessage = lastErr.Error()
	result.Timestamp = e.now().UTC()
	logger.Error("delivery failed after all attempts",
		zap.Int("attempts", result.Attempts),
		zap.String("error", result.ErrorMessage),
	)

	return result, nil
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
