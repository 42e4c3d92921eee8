package app

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/healthcheck"
	"github.com/gofiber/fiber/v2/middleware/keyauth"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	memoryStorage "github.com/gofiber/storage/memory/v2"
	redisStorage "github.com/gofiber/storage/redis/v2"
	"github.com/rs/xid"

	"ogimage/internal/metrics"
	"ogimage/internal/tokens"
	u "ogimage/internal/utils"
)

const apiKeyLocal = "api_key"

// tokenRater is the subset of tokens.Cache the limiters need.
type tokenRater interface {
	RateLimit(token string) int
}

// limiterCache holds one limiter per distinct token limit so tokens with
// the same limit share a handler.
type limiterCache struct {
	sync.RWMutex
	handlers map[int]fiber.Handler
}

func newLimiterCache() *limiterCache {
	return &limiterCache{handlers: make(map[int]fiber.Handler)}
}

func tooManyRequests(c *fiber.Ctx) error {
	return fiber.NewError(fiber.StatusTooManyRequests, "Too Many Requests")
}

func (lc *limiterCache) get(limit int, cfg u.Config, store fiber.Storage) fiber.Handler {
	lc.RLock()
	h, ok := lc.handlers[limit]
	lc.RUnlock()
	if ok {
		return h
	}

	lc.Lock()
	defer lc.Unlock()
	if h, ok := lc.handlers[limit]; ok {
		return h
	}
	h = limiter.New(limiter.Config{
		Max:               limit,
		Expiration:        cfg.RateLimiter.Interval,
		LimiterMiddleware: limiter.SlidingWindow{},
		Storage:           store,
		KeyGenerator: func(c *fiber.Ctx) string {
			token, _ := c.Locals(apiKeyLocal).(string)
			return "token:" + token
		},
		LimitReached: func(c *fiber.Ctx) error {
			u.Warn("Rate limit exceeded", "auth", "token", "path", c.Path())
			return tooManyRequests(c)
		},
	})
	lc.handlers[limit] = h
	return h
}

// tokenRateLimitMiddleware applies the per-token limit to authenticated requests.
func tokenRateLimitMiddleware(cfg u.Config, rater tokenRater, store fiber.Storage, cache *limiterCache) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, ok := c.Locals(apiKeyLocal).(string)
		if !ok || token == "" {
			return c.Next()
		}
		limit := rater.RateLimit(token)
		if limit <= 0 {
			return c.Next()
		}
		return cache.get(limit, cfg, store)(c)
	}
}

func clientKey(c *fiber.Ctx) string {
	sum := sha256.Sum256([]byte(c.IP() + c.Get(fiber.HeaderUserAgent)))
	return "user:" + hex.EncodeToString(sum[:])
}

// userRateLimitMiddleware limits anonymous clients by IP and User-Agent.
func userRateLimitMiddleware(cfg u.Config, store fiber.Storage) fiber.Handler {
	if cfg.RateLimiter.UserLimit <= 0 {
		return func(c *fiber.Ctx) error {
			return c.Next()
		}
	}
	userLimiter := limiter.New(limiter.Config{
		Max:               cfg.RateLimiter.UserLimit,
		Expiration:        cfg.RateLimiter.Interval,
		LimiterMiddleware: limiter.SlidingWindow{},
		Storage:           store,
		KeyGenerator:      clientKey,
		LimitReached: func(c *fiber.Ctx) error {
			u.Warn("Rate limit exceeded", "auth", "anonymous", "path", c.Path())
			return tooManyRequests(c)
		},
	})
	return func(c *fiber.Ctx) error {
		// Token holders are limited by tokenRateLimitMiddleware instead.
		if token, ok := c.Locals(apiKeyLocal).(string); ok && token != "" {
			return c.Next()
		}
		return userLimiter(c)
	}
}

// newRateLimitStore prefers Redis and falls back to process memory.
func newRateLimitStore(cfg u.Config) (store fiber.Storage) {
	store = memoryStorage.New()
	if cfg.Cache.RedisHost == "" {
		return store
	}
	defer func() {
		if r := recover(); r != nil {
			u.Error("Redis limiter store init panicked, falling back to memory", "panic", r)
		}
	}()
	store = redisStorage.New(redisStorage.Config{
		Addrs:    []string{cfg.Cache.RedisHost},
		Database: cfg.Cache.RateLimitDB,
	})
	u.Info("Using Redis for rate limiting", "addr", cfg.Cache.RedisHost, "db", cfg.Cache.RateLimitDB)
	return store
}

func apiKeyAuth(cache *tokens.Cache) fiber.Handler {
	return keyauth.New(keyauth.Config{
		KeyLookup:  "header:X-API-Key",
		ContextKey: apiKeyLocal,
		Validator: func(c *fiber.Ctx, key string) (bool, error) {
			if err := cache.Validate(key); err != nil {
				return false, err
			}
			return true, nil
		},
		// Requests without a key stay anonymous and hit the user limiter.
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions || c.Get("X-API-Key") == ""
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// keyauth may hand over a nil error.
			if err == nil {
				err = tokens.ErrInvalidAPIKey
			}
			if errors.Is(err, tokens.ErrTokenStoreNotReady) {
				return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
			}
			return fiber.NewError(fiber.StatusUnauthorized, err.Error())
		},
	})
}

// RegisterMiddleware attaches global middleware to the app. tokenCache may
// be nil, in which case every caller is anonymous.
func RegisterMiddleware(app *fiber.App, cfg u.Config, tokenCache *tokens.Cache, m *metrics.Metrics) {
	store := newRateLimitStore(cfg)

	app.Use(cors.New())

	app.Use(requestid.New(requestid.Config{
		Generator: func() string {
			return xid.New().String()
		},
	}))

	app.Use(healthcheck.New(healthcheck.Config{
		LivenessEndpoint:  "/health",
		ReadinessEndpoint: "/ready",
	}))

	if m != nil {
		app.Use(m.Handler())
	}

	if tokenCache != nil {
		app.Use(apiKeyAuth(tokenCache))
		app.Use(tokenRateLimitMiddleware(cfg, tokenCache, store, newLimiterCache()))
	}

	if cfg.RateLimiter.EnableUserLimiter || cfg.RateLimiter.UserLimit > 0 {
		app.Use(userRateLimitMiddleware(cfg, store))
	}

	app.Use(func(c *fiber.Ctx) error {
		u.Info("Incoming request", "method", c.Method(), "path", c.Path(), "request_id", c.GetRespHeader(fiber.HeaderXRequestID))
		return c.Next()
	})
}
