package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

// slidingWindowScript trims the sorted set to the window, then records the
// call only when the cap is not reached. Runs atomically inside redis.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

local count = redis.call('ZCARD', key)
if count >= limit then
	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	return {0, count, tonumber(oldest[2])}
end

redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)

return {1, count + 1, 0}
`)

type redisLimiter struct {
	client    redis.UniversalClient
	limit     int
	window    time.Duration
	now       func() time.Time
	keyPrefix string
}

func newRedisLimiter(o *options) *redisLimiter {
	return &redisLimiter{
		client:    o.redisClient,
		limit:     o.limit,
		window:    o.window,
		now:       o.now,
		keyPrefix: o.keyPrefix,
	}
}

func (l *redisLimiter) Admit(ctx context.Context, key string) (Decision, error) {
	now := l.now().UnixMilli()

	res, err := slidingWindowScript.Run(ctx, l.client,
		[]string{l.keyPrefix + key},
		strconv.FormatInt(now, 10),
		strconv.FormatInt(l.window.Milliseconds(), 10),
		strconv.Itoa(l.limit),
		uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return Decision{}, oops.In("ratelimit").With("key", key).Wrapf(err, "sliding window script")
	}

	if len(res) != 3 {
		return Decision{}, oops.In("ratelimit").Errorf("unexpected script reply: %v", res)
	}

	if res[0] == 1 {
		return Decision{
			Allowed:   true,
			Remaining: l.limit - int(res[1]),
		}, nil
	}

	retryAfter := time.Duration(res[2]+l.window.Milliseconds()-now) * time.Millisecond

	return Decision{
		Allowed:    false,
		RetryAfter: max(retryAfter, 0),
	}, nil
}

func (l *redisLimiter) Close() error {
	return nil
}
