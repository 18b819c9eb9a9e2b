package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"companion/app/config"

	"github.com/redis/go-redis/v9"
	"github.com/samber/do"
	"github.com/samber/oops"
)

const pingTimeout = 5 * time.Second

var _ do.Shutdownable = (*Service)(nil)

type Service struct {
	cfg     *config.Config
	driver  Driver
	limiter Limiter
	redis   *redis.Client
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)
	ctx := do.MustInvoke[context.Context](di)

	s := &Service{
		cfg:    cfg,
		driver: Driver(cfg.RateLimit.Driver),
	}

	opts := []Option{
		WithLimit(cfg.RateLimit.Limit),
		WithWindow(cfg.RateLimit.Window),
	}

	if s.driver == DriverRedis {
		s.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})

		if err := s.Ping(ctx); err != nil {
			_ = s.redis.Close()
			return nil, err
		}

		opts = append(opts, WithRedisClient(s.redis))
	}

	limiter, err := NewLimiter(s.driver, opts...)
	if err != nil {
		return nil, oops.In("ratelimit").With("driver", s.driver).Wrapf(err, "create limiter")
	}
	s.limiter = limiter

	slog.Info("Rate limiter ready",
		"driver", s.driver,
		"limit", cfg.RateLimit.Limit,
		"window", cfg.RateLimit.Window,
	)

	return s, nil
}

// NewWithLimiter wraps an existing limiter, bypassing config.
func NewWithLimiter(driver Driver, limiter Limiter) *Service {
	return &Service{
		driver:  driver,
		limiter: limiter,
	}
}

func (s *Service) Admit(ctx context.Context, key string) (Decision, error) {
	return s.limiter.Admit(ctx, key)
}

func (s *Service) Driver() Driver {
	return s.driver
}

// Ping checks the backing store; the memory driver is always reachable.
func (s *Service) Ping(ctx context.Context) error {
	if s.redis == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := s.redis.Ping(ctx).Err(); err != nil {
		return oops.In("ratelimit").Wrapf(err, "redis ping")
	}

	return nil
}

// RunCleanupLoop evicts idle in-memory windows until ctx is done.
func (s *Service) RunCleanupLoop(ctx context.Context, interval time.Duration) {
	mem, ok := s.limiter.(*memoryLimiter)
	if !ok {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := mem.Cleanup(); removed > 0 {
				slog.Debug("Evicted idle rate windows", "count", removed)
			}
		}
	}
}

func (s *Service) Shutdown() error {
	if err := s.limiter.Close(); err != nil {
		return err
	}

	if s.redis != nil {
		return s.redis.Close()
	}

	return nil
}
