package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointments/internal/appointment"
	"github.com/hackgods/clinic-appointments/internal/auth"
	"github.com/hackgods/clinic-appointments/internal/config"
	"github.com/hackgods/clinic-appointments/internal/db"
	"github.com/hackgods/clinic-appointments/internal/lock"
	"github.com/hackgods/clinic-appointments/internal/metrics"
	"github.com/hackgods/clinic-appointments/internal/notify"
	redisclient "github.com/hackgods/clinic-appointments/internal/redis"
	"github.com/hackgods/clinic-appointments/internal/users"
)

// Bootstrap holds the connections and components shared by the binaries.
type Bootstrap struct {
	Config   config.Config
	Logger   *zap.Logger
	Pool     *pgxpool.Pool
	Redis    *redis.Client
	RabbitMQ *amqp.Connection
	Metrics  *metrics.Metrics
	Users    users.Directory
	Repo     appointment.Repository
	Notifier *notify.Async
	Service  *appointment.Service
	Tokens   *auth.TokenManager

	closers []func() error
}

// New connects the configured backends and assembles the service. reg may be
// nil when the caller exposes no metrics.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, reg prometheus.Registerer) (*Bootstrap, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	b := &Bootstrap{
		Config:  cfg,
		Logger:  logger,
		Tokens:  auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL),
		Metrics: metrics.New(reg),
	}

	if err := b.connectStore(ctx); err != nil {
		b.close()
		return nil, err
	}

	locker, err := b.connectLocker(ctx)
	if err != nil {
		b.close()
		return nil, err
	}

	sink, err := b.connectNotifier()
	if err != nil {
		b.close()
		return nil, err
	}
	b.Notifier = notify.NewAsync(sink, cfg.NotifyTimeout, logger, b.Metrics.ObserveNotification)

	b.Service = appointment.NewService(appointment.Deps{
		Repo:        b.Repo,
		Users:       b.Users,
		Locker:      locker,
		Notifier:    b.Notifier,
		Clock:       appointment.SystemClock{Location: cfg.Location},
		Logger:      logger,
		Metrics:     b.Metrics,
		Granularity: cfg.SlotGranularity,
	})

	return b, nil
}

func (b *Bootstrap) connectStore(ctx context.Context) error {
	if b.Config.StoreDriver == config.StoreMemory {
		b.Logger.Warn("using in-memory store, data is lost on exit")
		b.Repo = appointment.NewMemoryRepository()
		b.Users = users.NewMemoryDirectory()
		return nil
	}

	pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(pgCtx, b.Config.PostgresDSN)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	b.Pool = pool
	b.closers = append(b.closers, func() error { pool.Close(); return nil })

	applied, err := db.Migrate(pgCtx, pool)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	b.Logger.Info("connected to postgres", zap.Int("migrations_applied", applied))

	b.Repo = appointment.NewPgRepository(pool)
	b.Users = users.NewPgDirectory(pool)
	return nil
}

func (b *Bootstrap) connectLocker(ctx context.Context) (lock.Locker, error) {
	if b.Config.RedisAddr == "" {
		b.Logger.Info("no redis configured, doctor-day locks are process local")
		return lock.NewLocalLocker(b.Config.LockWait), nil
	}

	rdb, err := redisclient.Connect(ctx, redisclient.Options{
		Addr:     b.Config.RedisAddr,
		Username: b.Config.RedisUsername,
		Password: b.Config.RedisPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	b.Redis = rdb
	b.closers = append(b.closers, rdb.Close)
	b.Logger.Info("connected to redis", zap.String("addr", b.Config.RedisAddr))

	return lock.NewRedisLocker(rdb, b.Config.LockTTL, b.Config.LockWait, b.Logger), nil
}

func (b *Bootstrap) connectNotifier() (notify.Notifier, error) {
	if b.Config.RabbitMQURL == "" {
		b.Logger.Info("no rabbitmq configured, notifications are logged only")
		return notify.NewLogNotifier(b.Logger), nil
	}

	conn, err := amqp.Dial(b.Config.RabbitMQURL)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq: %w", err)
	}
	b.RabbitMQ = conn
	b.closers = append(b.closers, conn.Close)

	pub, err := notify.NewRabbitPublisher(conn, b.Config.NotifyQueue)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq publisher: %w", err)
	}
	// the channel must close before the connection
	b.closers = append(b.closers, pub.Close)
	b.Logger.Info("publishing notifications to rabbitmq", zap.String("queue", b.Config.NotifyQueue))

	return pub, nil
}

// Shutdown drains pending notifications and closes connections.
func (b *Bootstrap) Shutdown(ctx context.Context) error {
	var errs []error
	if b.Notifier != nil {
		if err := b.Notifier.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain notifications: %w", err))
		}
	}
	if err := b.close(); err != nil {
		errs = append(errs, err)
	}
	_ = b.Logger.Sync()
	return errors.Join(errs...)
}

func (b *Bootstrap) close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}
