package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"time"

	"github.com/kursadbilgin/mailrunner/internal/config"
	"github.com/kursadbilgin/mailrunner/internal/csvio"
	infraredis "github.com/kursadbilgin/mailrunner/internal/infra/redis"
	"github.com/kursadbilgin/mailrunner/internal/mailtemplate"
	"github.com/kursadbilgin/mailrunner/internal/observability"
	"github.com/kursadbilgin/mailrunner/internal/output"
	"github.com/kursadbilgin/mailrunner/internal/provider"
	"github.com/kursadbilgin/mailrunner/internal/service"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type sendOptions struct {
	recipientsPath string
	templatePath   string
	plain          bool
	resultsPath    string
	failedPath     string
	maxAttempts    int
	retryDelay     time.Duration
	delay          time.Duration
}

func newSendCommand(rt *runtimeState) *cobra.Command {
	opts := &sendOptions{}

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a personalized template to every recipient of a CSV file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadMailer()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("max-attempts") {
				opts.maxAttempts = cfg.MaxAttempts
			}
			if !cmd.Flags().Changed("retry-delay") {
				opts.retryDelay = cfg.RetryDelay()
			}
			if !cmd.Flags().Changed("delay") {
				opts.delay = cfg.SendDelay()
			}
			return runSend(cmd.Context(), rt, cfg, opts, cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVar(&opts.recipientsPath, "recipients", "recipients.csv", "Recipients CSV with an email column")
	cmd.Flags().StringVar(&opts.templatePath, "template", "email_template.html", "Template file with an optional SUBJECT: line")
	cmd.Flags().BoolVar(&opts.plain, "plain", false, "Send the template as text/plain instead of HTML")
	cmd.Flags().StringVar(&opts.resultsPath, "results", "logs/email_results.csv", "Where to write the per-recipient results")
	cmd.Flags().StringVar(&opts.failedPath, "failed", "logs/failed_emails.csv", "Where to write failed recipients, if any")
	cmd.Flags().IntVar(&opts.maxAttempts, "max-attempts", 3, "Attempts per recipient (default MAX_ATTEMPTS)")
	cmd.Flags().DurationVar(&opts.retryDelay, "retry-delay", 5*time.Second, "Wait between attempts (default RETRY_DELAY_MS)")
	cmd.Flags().DurationVar(&opts.delay, "delay", time.Second, "Wait between recipients (default SEND_DELAY_MS)")

	return cmd
}

func runSend(ctx context.Context, rt *runtimeState, cfg *config.Mailer, opts *sendOptions, stderr io.Writer) error {
	logger, err := rt.newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	tmpl, err := mailtemplate.LoadFile(opts.templatePath, !opts.plain)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("template file not found: %s", opts.templatePath)
		}
		return err
	}

	recipients, err := csvio.LoadRecipients(opts.recipientsPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("recipients file not found: %s", opts.recipientsPath)
		}
		return err
	}
	if len(recipients) == 0 {
		return fmt.Errorf("no recipients found in %s", opts.recipientsPath)
	}

	dialer, err := provider.NewSMTPDialer(provider.SMTPConfig{
		Host:     cfg.SMTPServer,
		Port:     cfg.SMTPPort,
		Username: cfg.SenderEmail,
		Password: cfg.SenderPassword,
		FromName: cfg.SenderName,
		UseTLS:   cfg.UseTLS,
	})
	if err != nil {
		return err
	}

	policy := service.RetryPolicy{MaxAttempts: opts.maxAttempts, Delay: opts.retryDelay}
	sender, err := service.NewBulkSender(dialer, service.NewDeliveryEngine(logger), policy, logger)
	if err != nil {
		return err
	}

	metrics := observability.NewMetrics()
	sender.SetMetrics(metrics)

	b := openBackends(ctx, backendOptions{
		databaseDSN: cfg.DatabaseDSN,
		redisURL:    cfg.RedisURL,
		rabbitMQURL: cfg.RabbitMQURL,
	}, logger)
	defer b.Close(logger)

	if b.runs != nil {
		sender.SetRunRepository(b.runs)
	}
	if b.publisher != nil {
		sender.SetFailurePublisher(b.publisher)
	}
	if b.redis != nil {
		limiter, err := infraredis.NewRedisRateLimiter(b.redis, cfg.RateLimitPerSec)
		if err != nil {
			logger.Warn("send throttle disabled", zap.Error(err))
		} else {
			sender.SetRateLimiter(limiter, cfg.SMTPServer)
		}
	}

	var (
		report *service.RunReport
		runErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	serverCtx, stopServer := context.WithCancel(gctx)
	defer stopServer()

	if cfg.MetricsPort > 0 {
		app, err := newStatusApp(logger, metrics, b.history(), b.checks...)
		if err != nil {
			return err
		}
		g.Go(func() error {
			if err := serveStatus(serverCtx, app, cfg.MetricsPort, logger); err != nil {
				logger.Warn("status server stopped", zap.Error(err))
			}
			return nil
		})
	}
	g.Go(func() error {
		defer stopServer()
		report, runErr = sender.SendBulk(gctx, recipients, tmpl, opts.delay)
		return nil
	})
	_ = g.Wait()

	if report != nil && len(report.Results) > 0 {
		if err := writeRunFiles(report, opts, logger); err != nil {
			return err
		}
		output.WriteRunSummary(rt.writer, report.RunID, report.Summary, report.Failures)
	}

	if runErr != nil {
		if provider.IsAuthFailure(runErr) {
			writeAuthHint(stderr)
		}
		return runErr
	}
	return nil
}

func writeRunFiles(report *service.RunReport, opts *sendOptions, logger *zap.Logger) error {
	if err := csvio.WriteResults(opts.resultsPath, report.Results); err != nil {
		return err
	}
	logger.Info("results exported", zap.String("path", opts.resultsPath))

	if len(report.Failures) == 0 {
		return nil
	}
	if err := csvio.WriteFailures(opts.failedPath, report.Failures); err != nil {
		return err
	}
	logger.Info("failed recipients exported", zap.String("path", opts.failedPath))
	return nil
}

func writeAuthHint(w io.Writer) {
	_, _ = fmt.Fprintln(w, "Authentication failed. If using Gmail, make sure to:")
	_, _ = fmt.Fprintln(w, "  1. Enable 2-Factor Authentication")
	_, _ = fmt.Fprintln(w, "  2. Generate an App Password: https://myaccount.google.com/apppasswords")
	_, _ = fmt.Fprintln(w, "  3. Use the App Password as SENDER_PASSWORD")
}
