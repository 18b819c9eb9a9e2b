package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

type Driver string

const (
	DriverMemory Driver = "memory"
	DriverRedis  Driver = "redis"
)

var (
	ErrInvalidDriver = errors.New("invalid rate limit driver")
	ErrInvalidConfig = errors.New("invalid rate limit configuration")
)

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed   bool
	Remaining int
	// RetryAfter is how long until the oldest admission leaves the window, zero when allowed.
	RetryAfter time.Duration
}

// Limiter admits at most Limit calls per key within any rolling Window.
// Check and record happen atomically, concurrent callers never double-admit.
type Limiter interface {
	Admit(ctx context.Context, key string) (Decision, error)
	Close() error
}

type Option func(*options)

type options struct {
	limit       int
	window      time.Duration
	now         func() time.Time
	redisClient redis.UniversalClient
	keyPrefix   string
}

func WithLimit(limit int) Option {
	return func(o *options) {
		o.limit = limit
	}
}

func WithWindow(window time.Duration) Option {
	return func(o *options) {
		o.window = window
	}
}

// WithClock overrides the time source, used by tests to roll the window.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func WithRedisClient(client redis.UniversalClient) Option {
	return func(o *options) {
		o.redisClient = client
	}
}

func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		o.keyPrefix = prefix
	}
}

// NewLimiter creates a limiter for the given driver, defaulting to 10 calls per minute.
func NewLimiter(driver Driver, opts ...Option) (Limiter, error) {
	o := &options{
		limit:     10,
		window:    time.Minute,
		now:       time.Now,
		keyPrefix: "ratelimit:",
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.limit <= 0 || o.window <= 0 {
		return nil, ErrInvalidConfig
	}

	switch driver {
	case DriverMemory:
		return newMemoryLimiter(o), nil

	case DriverRedis:
		if o.redisClient == nil {
			return nil, ErrInvalidConfig
		}
		return newRedisLimiter(o), nil

	default:
		return nil, ErrInvalidDriver
	}
}
