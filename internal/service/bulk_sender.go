package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/mailrunner/internal/domain"
	"github.com/kursadbilgin/mailrunner/internal/mailtemplate"
	"github.com/kursadbilgin/mailrunner/internal/observability"
	"github.com/kursadbilgin/mailrunner/internal/provider"
	"github.com/kursadbilgin/mailrunner/internal/queue"
	"github.com/kursadbilgin/mailrunner/internal/ratelimit"
	"github.com/kursadbilgin/mailrunner/internal/repository"
	"go.uber.org/zap"
)

const (
	outcomeSuccess   = "success"
	outcomeExhausted = "exhausted"
	outcomeInvalid   = "invalid"

	finishTimeout = 10 * time.Second
)

// RunReport collects the results of one bulk run in input order.
type RunReport struct {
	RunID      string
	Results    []domain.DeliveryResult
	Failures   []domain.FailureRecord
	Summary    domain.RunSummary
	StartedAt  time.Time
	FinishedAt time.Time
	Aborted    bool
}

// Record appends a terminal result. Failed results are mirrored into
// Failures so both lists always agree.
func (r *RunReport) Record(result domain.DeliveryResult) {
	r.Results = append(r.Results, result)
	if !result.Success {
		r.Failures = append(r.Failures, domain.FailureFromResult(result))
	}
}

func (r *RunReport) finish(now time.Time) {
	r.Summary = domain.SummarizeResults(r.Results)
	r.FinishedAt = now
}

// BulkSender drives one run: a single session, recipients in order.
type BulkSender struct {
	dialer     provider.Dialer
	engine     *DeliveryEngine
	policy     RetryPolicy
	limiter    ratelimit.RateLimiter
	limiterKey string
	runs       repository.RunRepository
	failures   queue.FailurePublisher
	logger     *zap.Logger
	metrics    *observability.Metrics
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
	newID      func() string
}

func NewBulkSender(
	dialer provider.Dialer,
	engine *DeliveryEngine,
	policy RetryPolicy,
	logger *zap.Logger,
) (*BulkSender, error) {
	if dialer == nil {
		return nil, fmt.Errorf("dialer is required")
	}
	if engine == nil {
		return nil, fmt.Errorf("delivery engine is required")
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &BulkSender{
		dialer: dialer,
		engine: engine,
		policy: policy,
		logger: logger,
		now:    time.Now,
		sleep:  sleepWithContext,
		newID:  uuid.NewString,
	}, nil
}

// SetRateLimiter throttles sends under key. Limiter errors are logged and
// never stop the run.
func (s *BulkSender) SetRateLimiter(limiter ratelimit.RateLimiter, key string) {
	s.limiter = limiter
	s.limiterKey = key
}

func (s *BulkSender) SetRunRepository(runs repository.RunRepository) {
	s.runs = runs
}

func (s *BulkSender) SetFailurePublisher(publisher queue.FailurePublisher) {
	s.failures = publisher
}

func (s *BulkSender) SetMetrics(metrics *observability.Metrics) {
	s.metrics = metrics
	s.engine.SetMetrics(metrics)
}

// SendBulk delivers tmpl to every recipient, waiting interMessageDelay
// between consecutive sends. A session that cannot be opened fails the run
// with an error wrapping domain.ErrSessionFailed and no results. When ctx
// is canceled the partial report is returned together with the error.
func (s *BulkSender) SendBulk(
	ctx context.Context,
	recipients []domain.Recipient,
	tmpl mailtemplate.Template,
	interMessageDelay time.Duration,
) (*RunReport, error) {
	if interMessageDelay < 0 {
		interMessageDelay = 0
	}

	report := &RunReport{
		RunID:     s.newID(),
		Results:   make([]domain.DeliveryResult, 0, len(recipients)),
		StartedAt: s.now().UTC(),
	}
	ctx = observability.WithRunID(ctx, report.RunID)
	logger := observability.WithContextLogger(s.logger, ctx)

	logger.Info("bulk run started", zap.Int("recipients", len(recipients)))
	s.startRun(ctx, report, len(recipients))
	s.metrics.RunStarted()

	session, err := s.dialer.Dial(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrSessionFailed) && ctx.Err() == nil {
			err = fmt.Errorf("%w: %w", domain.ErrSessionFailed, err)
		}
		logger.Error("failed to open transport session", zap.Error(err))
		return report, s.abort(ctx, report, err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn("failed to close transport session", zap.Error(err))
		}
	}()

	sent := false
	for position, recipient := range recipients {
		if err := recipient.Validate(); err != nil {
			logger.Warn("skipping invalid recipient",
				zap.Int("position", position),
				zap.String("recipient", recipient.Email),
				zap.Error(err),
			)
			s.record(ctx, report, position, domain.DeliveryResult{
				RecipientEmail: recipient.Email,
				RecipientName:  recipient.DisplayName(),
				ErrorMessage:   err.Error(),
				Timestamp:      s.now().UTC(),
			}, outcomeInvalid)
			continue
		}

		if sent && interMessageDelay > 0 {
			if err := s.sleep(ctx, interMessageDelay); err != nil {
				return report, s.abort(ctx, report, err)
			}
		}
		if err := s.throttle(ctx); err != nil {
			return report, s.abort(ctx, report, err)
		}

		result, err := s.engine.SendWithRetry(ctx, session, recipient, tmpl.MessageFor(recipient), s.policy)
		if err != nil {
			return report, s.abort(ctx, report, err)
		}
		sent = true

		outcome := outcomeSuccess
		if !result.Success {
			outcome = outcomeExhausted
		}
		s.record(ctx, report, position, result, outcome)
	}

	report.finish(s.now().UTC())
	s.finishRun(ctx, report, domain.RunStatusCompleted, nil)
	s.publishFailures(ctx, report)
	s.metrics.RunFinished(domain.RunStatusCompleted.String())
	s.logSummary(logger, report)

	return report, nil
}

// throttle only returns an error when ctx is done.
func (s *BulkSender) throttle(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	if err := s.limiter.Wait(ctx, s.limiterKey); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		observability.WithContextLogger(s.logger, ctx).Warn("rate limiter unavailable, sending without throttle",
			zap.String("key", s.limiterKey),
			zap.Error(err),
		)
	}
	return nil
}

func (s *BulkSender) record(ctx context.Context, report *RunReport, position int, result domain.DeliveryResult, outcome string) {
	report.Record(result)
	s.metrics.IncDelivery(outcome)

	if s.runs == nil {
		return
	}

	delivery := &domain.Delivery{
		ID:             uuid.NewString(),
		RunID:          report.RunID,
		Position:       position,
		RecipientEmail: result.RecipientEmail,
		RecipientName:  result.RecipientName,
		Success:        result.Success,
		Attempts:       result.Attempts,
		CreatedAt:      result.Timestamp,
	}
	if !result.Success {
		msg := result.ErrorMessage
		delivery.ErrorMessage = &msg
	}

	if err := s.runs.AppendDelivery(ctx, delivery); err != nil {
		observability.WithContextLogger(s.logger, ctx).Warn("failed to persist delivery result",
			zap.Int("position", position),
			zap.Error(err),
		)
	}
}

func (s *BulkSender) abort(ctx context.Context, report *RunReport, cause error) error {
	report.Aborted = true
	report.finish(s.now().UTC())

	msg := cause.Error()
	s.finishRun(ctx, report, domain.RunStatusAborted, &msg)
	s.publishFailures(ctx, report)
	s.metrics.RunFinished(domain.RunStatusAborted.String())

	logger := observability.WithContextLogger(s.logger, ctx)
	logger.Error("bulk run aborted", zap.Error(cause))
	s.logSummary(logger, report)

	return fmt.Errorf("bulk run %s aborted: %w", report.RunID, cause)
}

func (s *BulkSender) startRun(ctx context.Context, report *RunReport, total int) {
	if s.runs == nil {
		return
	}

	run := &domain.Run{
		ID:              report.RunID,
		Status:          domain.RunStatusRunning,
		TotalRecipients: total,
		StartedAt:       report.StartedAt,
	}
	if err := s.runs.Create(ctx, run); err != nil {
		observability.WithContextLogger(s.logger, ctx).Warn("failed to persist run", zap.Error(err))
	}
}

// finishRun and publishFailures detach from ctx so an interrupted run still
// leaves its history behind.
func (s *BulkSender) finishRun(ctx context.Context, report *RunReport, status domain.RunStatus, runErr *string) {
	if s.runs == nil {
		return
	}

	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()

	if err := s.runs.Finish(finishCtx, report.RunID, status, report.Summary, runErr, report.FinishedAt); err != nil {
		observability.WithContextLogger(s.logger, ctx).Warn("failed to persist run status",
			zap.String("status", status.String()),
			zap.Error(err),
		)
	}
}

func (s *BulkSender) publishFailures(ctx context.Context, report *RunReport) {
	if s.failures == nil || len(report.Failures) == 0 {
		return
	}

	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()

	logger := observability.WithContextLogger(s.logger, ctx)
	published := 0
	for _, failure := range report.Failures {
		msg := queue.NewFailureMessage(report.RunID, failure, report.FinishedAt)
		if err := s.failures.PublishFailure(publishCtx, msg); err != nil {
			logger.Warn("failed to publish failed recipient",
				zap.String("recipient", failure.Email),
				zap.Error(err),
			)
			continue
		}
		published++
	}

	logger.Info("failed recipients published",
		zap.String("queue", queue.FailedQueueName),
		zap.Int("published", published),
		zap.Int("failures", len(report.Failures)),
	)
}

func (s *BulkSender) logSummary(logger *zap.Logger, report *RunReport) {
	fields := []zap.Field{
		zap.Int("total", report.Summary.Total),
		zap.Int("successful", report.Summary.Successful),
		zap.Int("failed", report.Summary.Failed),
		zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	}
	if rate, ok := report.Summary.SuccessRate(); ok {
		fields = append(fields, zap.Float64("successRate", rate))
	}
	logger.Info("bulk run summary", fields...)
}
