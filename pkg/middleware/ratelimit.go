package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"escrow-market/pkg/cache"
	"escrow-market/pkg/models"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Name       string                      // Prefix that separates limits sharing a key
	Requests   int                         // Number of requests
	Window     time.Duration               // Time window
	KeyFunc    func(c *gin.Context) string // Function to generate rate limit key
	Message    string                      // Error message to return
	StatusCode int                         // HTTP status code to return
}

// ClientIPKey limits by client address
func ClientIPKey(c *gin.Context) string { return c.ClientIP() }

// WalletKey limits by authenticated wallet, falling back to the client address
func WalletKey(c *gin.Context) string {
	if wallet, ok := GetWalletFromContext(c); ok {
		return "wallet:" + wallet.String()
	}
	return c.ClientIP()
}

// PublicRateLimit is the limit for unauthenticated endpoints
func PublicRateLimit(requests int, window time.Duration) RateLimitConfig {
	return RateLimitConfig{
		Name:       "public",
		Requests:   requests,
		Window:     window,
		KeyFunc:    ClientIPKey,
		Message:    "Too many requests, please try again later",
		StatusCode: http.StatusTooManyRequests,
	}
}

// TradingRateLimit is the limit for market operations
func TradingRateLimit(requests int, window time.Duration) RateLimitConfig {
	return RateLimitConfig{
		Name:       "trading",
		Requests:   requests,
		Window:     window,
		KeyFunc:    WalletKey,
		Message:    "Trading rate limit exceeded",
		StatusCode: http.StatusTooManyRequests,
	}
}

// Limiter counts requests per key
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, remaining int, reset time.Duration, err error)
}

// RateLimitMiddleware handles rate limiting
type RateLimitMiddleware struct {
	useRedis bool
	db       *gorm.DB
	now      func() time.Time
}

// NewRateLimitMiddleware creates a new rate limiting middleware. Redis is used
// when enabled, the rate_limits table otherwise or when redis fails.
func NewRateLimitMiddleware(useRedis bool, db *gorm.DB) *RateLimitMiddleware {
	return &RateLimitMiddleware{useRedis: useRedis, db: db, now: time.Now}
}

// RateLimit creates a rate limiting middleware with the given configuration
func (rl *RateLimitMiddleware) RateLimit(config RateLimitConfig) gin.HandlerFunc {
	fallback := &dbLimiter{db: rl.db, limit: config.Requests, window: config.Window, now: rl.now}
	var primary Limiter = fallback
	if rl.useRedis {
		primary = cache.RateLimiter{Limit: config.Requests, Window: config.Window}
	}

	return func(c *gin.Context) {
		key := config.Name + ":" + config.KeyFunc(c)

		allowed, remaining, reset, err := primary.Allow(c.Request.Context(), key)
		if err != nil && rl.useRedis {
			allowed, remaining, reset, err = fallback.Allow(c.Request.Context(), key)
		}
		if err != nil {
			// fail open; rate limiting must not take the service down
			logrus.WithField("key", key).Warnf("Rate limit check failed: %v", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(config.Requests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.Itoa(int(reset.Seconds())))
		if !allowed {
			c.JSON(config.StatusCode, gin.H{"error": config.Message})
			c.Abort()
			return
		}
		c.Next()
	}
}

// dbLimiter is a fixed-window counter in the rate_limits table
type dbLimiter struct {
	db     *gorm.DB
	limit  int
	window time.Duration
	now    func() time.Time
}

func (l *dbLimiter) Allow(ctx context.Context, key string) (bool, int, time.Duration, error) {
	now := l.now().UTC()
	var rateLimit models.RateLimit

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where(&models.RateLimit{Key: key}).First(&rateLimit).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			rateLimit = models.RateLimit{Key: key, Count: 1, WindowStart: now}
			return tx.Create(&rateLimit).Error
		case err != nil:
			return err
		}

		if now.Sub(rateLimit.WindowStart) >= l.window {
			rateLimit.Count = 0
			rateLimit.WindowStart = now
		}
		rateLimit.Count++
		return tx.Save(&rateLimit).Error
	})
	if err != nil {
		return false, 0, 0, fmt.Errorf("failed to update rate limit: %w", err)
	}

	remaining := l.limit - rateLimit.Count
	if remaining < 0 {
		remaining = 0
	}
	reset := rateLimit.WindowStart.Add(l.window).Sub(now)
	return rateLimit.Count <= l.limit, remaining, reset, nil
}
