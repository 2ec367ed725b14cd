package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/tradexcel/backend/internal/apperr"
)

// LoginRateLimit limits login attempts per identifier or IP using Redis if
// available.
func LoginRateLimit(cache *redis.Client, maxPerMin int) fiber.Handler {
	return bodyRateLimit(cache, "rl:login:", []string{"emailOrUsername"}, maxPerMin)
}

// RegisterRateLimit throttles registration (and therefore OTP dispatch) per
// contact, so one address cannot be spammed with codes.
func RegisterRateLimit(cache *redis.Client, maxPerMin int) fiber.Handler {
	return bodyRateLimit(cache, "rl:register:", []string{"email", "phoneNumber"}, maxPerMin)
}

// bodyRateLimit keys a fixed-window counter on the first non-empty of the
// given JSON body fields, falling back to the client IP. Cache errors fail
// open.
func bodyRateLimit(cache *redis.Client, prefix string, fields []string, maxPerMin int) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 5
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next() // no-op without Redis
		}

		var body map[string]any
		_ = c.BodyParser(&body)

		key := c.IP()
		for _, field := range fields {
			if v, _ := body[field].(string); strings.TrimSpace(v) != "" {
				key = strings.TrimSpace(v)
				break
			}
		}

		cacheKey := prefix + key
		cnt, err := cache.Incr(c.UserContext(), cacheKey).Result()
		if err == nil && cnt == 1 {
			cache.Expire(c.UserContext(), cacheKey, time.Minute)
		}
		if err != nil {
			return c.Next() // fail-open on cache errors
		}
		if cnt > int64(maxPerMin) {
			return &apperr.Error{
				Code:    "RATE_LIMITED",
				Message: "too many attempts, try again later",
				Status:  http.StatusTooManyRequests,
			}
		}
		return c.Next()
	}
}
