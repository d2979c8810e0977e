// Package ratelimit implements sliding-window limits shared across replicas
// through Redis sorted sets.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Limit is a count allowed per window
type Limit struct {
	Limit  int64
	Window time.Duration
}

// Enabled reports whether the limit is configured
func (l Limit) Enabled() bool {
	return l.Limit > 0 && l.Window > 0
}

// Config defines the tiers checked by Check, in order
type Config struct {
	Global Limit
	IP     Limit
	Wallet Limit
	// Endpoints limits individual routes per caller
	Endpoints map[string]Limit
}

// CheckResult contains the result of a rate limit check
type CheckResult struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
	LimitedBy  string
}

// Limiter checks every configured tier for a request
type Limiter struct {
	redis  *redis.Client
	config Config
	logger *zap.Logger
}

func NewLimiter(client *redis.Client, config Config, logger *zap.Logger) *Limiter {
	return &Limiter{redis: client, config: config, logger: logger}
}

// Check counts the request against the global, IP, wallet and endpoint tiers.
// The first exhausted tier rejects the request.
func (l *Limiter) Check(ctx context.Context, ip, wallet, endpoint string) (*CheckResult, error) {
	type tier struct {
		name  string
		key   string
		limit Limit
	}

	tiers := []tier{{name: "global", key: "global", limit: l.config.Global}}
	if ip != "" {
		tiers = append(tiers, tier{name: "ip", key: ip, limit: l.config.IP})
	}
	if wallet != "" {
		tiers = append(tiers, tier{name: "wallet", key: wallet, limit: l.config.Wallet})
	}
	if limit, ok := l.config.Endpoints[endpoint]; ok {
		caller := ip
		if wallet != "" {
			caller = wallet
		}
		tiers = append(tiers, tier{name: "endpoint", key: endpoint + ":" + caller, limit: limit})
	}

	remaining := int64(-1)
	for _, t := range tiers {
		if !t.limit.Enabled() {
			continue
		}
		allowed, left, err := l.checkLimit(ctx, t.name, t.key, t.limit)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return &CheckResult{Allowed: false, Remaining: 0, RetryAfter: t.limit.Window, LimitedBy: t.name}, nil
		}
		if remaining < 0 || left < remaining {
			remaining = left
		}
	}

	return &CheckResult{Allowed: true, Remaining: remaining}, nil
}

func (l *Limiter) checkLimit(ctx context.Context, tier, key string, limit Limit) (bool, int64, error) {
	redisKey := fmt.Sprintf("ratelimit:%s:%s", tier, key)
	now := time.Now()
	windowStart := now.Add(-limit.Window)

	pipe := l.redis.Pipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", fmt.Sprintf("%d", windowStart.UnixNano()))
	countCmd := pipe.ZCount(ctx, redisKey, fmt.Sprintf("%d", windowStart.UnixNano()), "+inf")
	// members must be unique across replicas hitting the same nanosecond
	pipe.ZAdd(ctx, redisKey, &redis.Z{Score: float64(now.UnixNano()), Member: uuid.NewString()})
	pipe.Expire(ctx, redisKey, limit.Window*2)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("rate limit check failed: %w", err)
	}

	count := countCmd.Val()
	remaining := limit.Limit - count - 1
	if remaining < 0 {
		remaining = 0
	}

	return count < limit.Limit, remaining, nil
}
