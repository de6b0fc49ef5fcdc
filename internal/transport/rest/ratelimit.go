package rest

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/redis/go-redis/v9"
)

type RateLimitConfig struct {
	// Limit is the number of requests allowed per key and window. Zero
	// disables rate limiting.
	Limit    int
	Window   time.Duration
	Prefix   string
	FailOpen bool
}

func newRateLimiter(cfg RateLimitConfig, rdb *redis.Client, log *slog.Logger) fiber.Handler {
	if cfg.Limit <= 0 {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if rdb != nil {
		return NewRedisRateLimiter(rdb, cfg.Limit, cfg.Window, cfg.Prefix).Handler(log, cfg.FailOpen)
	}
	return limiter.New(limiter.Config{
		Max:          cfg.Limit,
		Expiration:   cfg.Window,
		KeyGenerator: rateLimitKey,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate limit exceeded"})
		},
	})
}

// rateLimitKey keys on the actor validated by actorRequired, otherwise on the
// peer address. Client-supplied forwarding headers are not trusted.
func rateLimitKey(c *fiber.Ctx) string {
	if a, ok := actorFrom(c); ok {
		return "actor:" + a.ID.String()
	}
	return "ip:" + c.IP()
}

// RedisRateLimiter is a fixed-window limiter shared by every instance of the
// API that points at the same Redis.
type RedisRateLimiter struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
	prefix string
}

var redisFixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

func NewRedisRateLimiter(rdb *redis.Client, limit int, window time.Duration, prefix string) *RedisRateLimiter {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "deskbook:rl"
	}
	return &RedisRateLimiter{rdb: rdb, limit: limit, window: window, prefix: prefix}
}

func (rl *RedisRateLimiter) Handler(log *slog.Logger, failOpen bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := rl.prefix + ":" + rateLimitKey(c)
		count, err := rl.incr(c.UserContext(), key)
		if err != nil {
			if log != nil {
				log.Warn("redis rate limiter error", "err", err)
			}
			if failOpen {
				return c.Next()
			}
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "rate limiter unavailable"})
		}
		if count > int64(rl.limit) {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate limit exceeded"})
		}
		return c.Next()
	}
}

func (rl *RedisRateLimiter) incr(ctx context.Context, key string) (int64, error) {
	res, err := redisFixedWindowScript.Run(ctx, rl.rdb, []string{key}, rl.window.Milliseconds()).Result()
	if err != nil {
		return 0, err
	}
	return scriptCount(res)
}

func scriptCount(res any) (int64, error) {
	switch v := res.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, err
		}
		return n, nil
	default:
		return 0, fmt.Errorf("unexpected redis script result type %T", res)
	}
}
