package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/kursadbilgin/mailrunner/internal/handler"
	"github.com/kursadbilgin/mailrunner/internal/infra/postgresql"
	"github.com/kursadbilgin/mailrunner/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/mailrunner/internal/infra/redis"
	"github.com/kursadbilgin/mailrunner/internal/observability"
	"github.com/kursadbilgin/mailrunner/internal/queue"
	"github.com/kursadbilgin/mailrunner/internal/repository"
	"github.com/kursadbilgin/mailrunner/internal/transport"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	connectTimeout  = 10 * time.Second
	shutdownTimeout = 5 * time.Second
)

// backends holds the optional infrastructure of a process. Every field may
// be nil.
type backends struct {
	db        *gorm.DB
	runs      *repository.GormRunRepo
	redis     *redis.Client
	publisher *queue.RabbitMQPublisher
	checks    []handler.ReadinessCheck
}

type backendOptions struct {
	databaseDSN string
	redisURL    string
	rabbitMQURL string
}

// openBackends connects to every configured backend. A backend that cannot
// be reached is logged and left out.
func openBackends(ctx context.Context, opts backendOptions, logger *zap.Logger) *backends {
	b := &backends{}

	if dsn := strings.TrimSpace(opts.databaseDSN); dsn != "" {
		if err := b.openHistory(ctx, dsn); err != nil {
			logger.Warn("run history disabled", zap.Error(err))
		} else {
			logger.Info("run history enabled")
		}
	}

	if url := strings.TrimSpace(opts.redisURL); url != "" {
		rdb, err := infraredis.NewRedis(ctx, url)
		if err != nil {
			logger.Warn("send throttle disabled", zap.Error(err))
		} else {
			b.redis = rdb
			b.checks = append(b.checks, handler.RedisCheck(rdb))
		}
	}

	if url := strings.TrimSpace(opts.rabbitMQURL); url != "" {
		connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		rabbit, err := queue.NewRabbitMQ(connectCtx, url)
		cancel()
		if err != nil {
			logger.Warn("failure hand-off disabled", zap.Error(err))
		} else {
			b.publisher = queue.NewRabbitMQPublisher(rabbit)
		}
	}

	return b
}

func (b *backends) openHistory(ctx context.Context, dsn string) error {
	db, err := postgresql.NewPostgres(ctx, dsn)
	if err != nil {
		return err
	}
	if err := migrations.Migrate(db); err != nil {
		_ = postgresql.Close(db)
		return fmt.Errorf("database migrations failed: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		_ = postgresql.Close(db)
		return err
	}

	b.db = db
	b.runs = repository.NewGormRunRepo(db)
	b.checks = append(b.checks, handler.PostgresCheck(sqlDB))
	return nil
}

func (b *backends) history() handler.RunHistory {
	if b.runs == nil {
		return nil
	}
	return b.runs
}

func (b *backends) Close(logger *zap.Logger) {
	if b.publisher != nil {
		if err := b.publisher.Close(); err != nil {
			logger.Warn("failed to close rabbitmq", zap.Error(err))
		}
	}
	if b.redis != nil {
		if err := b.redis.Close(); err != nil {
			logger.Warn("failed to close redis", zap.Error(err))
		}
	}
	if err := postgresql.Close(b.db); err != nil {
		logger.Warn("failed to close postgres", zap.Error(err))
	}
}

// newStatusApp serves health, metrics and, when history is set, the run
// history API.
func newStatusApp(
	logger *zap.Logger,
	metrics *observability.Metrics,
	history handler.RunHistory,
	checks ...handler.ReadinessCheck,
) (*fiber.App, error) {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          transport.ErrorHandler(logger),
	})
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, checks...)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	if history != nil {
		if err := handler.RegisterRunRoutes(app, history); err != nil {
			return nil, err
		}
	}

	return app, nil
}

// serveStatus runs app on port until ctx is done.
func serveStatus(ctx context.Context, app *fiber.App, port int, logger *zap.Logger) error {
	addr := fmt.Sprintf(":%d", port)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("status server listening", zap.String("addr", addr))
		if err := app.Listen(addr); err != nil {
			return fmt.Errorf("status server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
