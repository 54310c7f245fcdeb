// Package ratelimit throttles generation requests per user. Two checks
// apply: a per-user quota stored in the database and a cooldown between
// consecutive requests. The cooldown lives in redis; when redis is
// unavailable the limiter falls back to the last generation timestamp
// stored on the user row.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spi-u/gpt-bot/internal/logger"
	"github.com/spi-u/gpt-bot/internal/repos"
	"github.com/spi-u/gpt-bot/internal/types"
)

type Verdict struct {
	Allowed    bool
	QuotaLeft  int
	RetryAfter time.Duration
}

type Limiter struct {
	rdb      *redis.Client
	users    repos.UserRepo
	log      *logger.Logger
	cooldown time.Duration
}

func New(rdb *redis.Client, users repos.UserRepo, cooldown time.Duration, baseLog *logger.Logger) *Limiter {
	return &Limiter{
		rdb:      rdb,
		users:    users,
		log:      baseLog.With("component", "RateLimiter"),
		cooldown: cooldown,
	}
}

func cooldownKey(userID int64) string {
	return fmt.Sprintf("ratelimit:user:%d", userID)
}

// Check reports whether the user may start a generation now. Admins are
// never throttled.
func (l *Limiter) Check(ctx context.Context, user *types.User) (Verdict, error) {
	if user.Role == types.RoleAdmin {
		return Verdict{Allowed: true, QuotaLeft: user.LeftGenerations}, nil
	}
	if user.LeftGenerations <= 0 {
		return Verdict{Allowed: false, QuotaLeft: 0}, nil
	}

	retryAfter, err := l.cooldownLeft(ctx, user)
	if err != nil {
		return Verdict{}, err
	}
	if retryAfter > 0 {
		return Verdict{Allowed: false, QuotaLeft: user.LeftGenerations, RetryAfter: retryAfter}, nil
	}
	return Verdict{Allowed: true, QuotaLeft: user.LeftGenerations}, nil
}

func (l *Limiter) cooldownLeft(ctx context.Context, user *types.User) (time.Duration, error) {
	if l.cooldown <= 0 {
		return 0, nil
	}
	if l.rdb != nil {
		ttl, err := l.rdb.TTL(ctx, cooldownKey(user.ID)).Result()
		if err == nil {
			if ttl > 0 {
				return ttl, nil
			}
			return 0, nil
		}
		l.log.Warn("redis cooldown lookup failed, falling back to db timestamp",
			"user_id", user.ID, "error", err)
	}

	elapsed := time.Since(user.LastGenerationAt)
	if elapsed < l.cooldown {
		return l.cooldown - elapsed, nil
	}
	return 0, nil
}

// MarkGenerated records a started generation: arms the cooldown, stamps
// the user row and burns one unit of quota. Admin quota is not touched.
func (l *Limiter) MarkGenerated(ctx context.Context, user *types.User) error {
	if l.rdb != nil && l.cooldown > 0 {
		if err := l.rdb.Set(ctx, cooldownKey(user.ID), 1, l.cooldown).Err(); err != nil {
			l.log.Warn("failed to arm redis cooldown", "user_id", user.ID, "error", err)
		}
	}
	if err := l.users.SetLastGenerationNow(ctx, user.ID); err != nil {
		return err
	}
	if user.Role == types.RoleAdmin {
		return nil
	}
	return l.users.DecrementLeftGenerations(ctx, user.ID)
}
