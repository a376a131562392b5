package redis

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const refreshKeyPrefix = "supportbot:refresh:"

// RefreshGate throttles remote status refreshes to one per ticket per TTL.
// A nil gate, a zero TTL, or a Redis failure all allow the refresh.
type RefreshGate struct {
	redis  *Redis
	ttl    time.Duration
	logger *zap.Logger
}

func NewRefreshGate(r *Redis, ttl time.Duration, logger *zap.Logger) *RefreshGate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RefreshGate{redis: r, ttl: ttl, logger: logger}
}

// Allow reports whether the caller should hit the tracker for remoteID now.
func (g *RefreshGate) Allow(ctx context.Context, remoteID string) bool {
	if g == nil || g.redis == nil || g.redis.Client == nil || g.ttl <= 0 {
		return true
	}
	ok, err := g.redis.Client.SetNX(ctx, refreshKeyPrefix+remoteID, "1", g.ttl).Result()
	if err != nil {
		g.logger.Debug("refresh gate unavailable", zap.String("remote_id", remoteID), zap.Error(err))
		return true
	}
	return ok
}

// Forget clears the throttle for remoteID so the next Allow succeeds.
func (g *RefreshGate) Forget(ctx context.Context, remoteID string) {
	if g == nil || g.redis == nil || g.redis.Client == nil {
		return
	}
	if err := g.redis.Client.Del(ctx, refreshKeyPrefix+remoteID).Err(); err != nil {
		g.logger.Debug("refresh gate forget failed", zap.String("remote_id", remoteID), zap.Error(err))
	}
}
