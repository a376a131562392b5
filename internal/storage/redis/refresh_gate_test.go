package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"go.uber.org/zap"
)

func newTestGate(t *testing.T, ttl time.Duration) (*RefreshGate, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	r := NewRedis(mr.Addr(), "", 0, zap.NewNop())
	t.Cleanup(r.Close)
	return NewRefreshGate(r, ttl, zap.NewNop()), mr
}

func TestRefreshGateThrottlesWithinTTL(t *testing.T) {
	gate, mr := newTestGate(t, time.Minute)
	ctx := context.Background()

	if !gate.Allow(ctx, "123") {
		t.Fatal("first refresh should be allowed")
	}
	if gate.Allow(ctx, "123") {
		t.Fatal("second refresh within TTL should be throttled")
	}
	if !gate.Allow(ctx, "456") {
		t.Fatal("other tickets should not be throttled")
	}

	mr.FastForward(61 * time.Second)
	if !gate.Allow(ctx, "123") {
		t.Fatal("refresh should be allowed after TTL")
	}
}

func TestRefreshGateForget(t *testing.T) {
	gate, _ := newTestGate(t, time.Hour)
	ctx := context.Background()

	gate.Allow(ctx, "123")
	gate.Forget(ctx, "123")
	if !gate.Allow(ctx, "123") {
		t.Fatal("refresh should be allowed after Forget")
	}
}

func TestRefreshGateFailsOpen(t *testing.T) {
	gate, mr := newTestGate(t, time.Minute)
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if !gate.Allow(ctx, "123") {
		t.Fatal("gate should allow refreshes when redis is down")
	}
}

func TestNilGateAllows(t *testing.T) {
	var gate *RefreshGate
	if !gate.Allow(context.Background(), "1") {
		t.Fatal("nil gate should allow")
	}
	gate.Forget(context.Background(), "1")

	zeroTTL := NewRefreshGate(nil, 0, nil)
	if !zeroTTL.Allow(context.Background(), "1") {
		t.Fatal("gate without redis should allow")
	}
}

func TestRedisPing(t *testing.T) {
	mr := miniredis.RunT(t)
	r := NewRedis(mr.Addr(), "", 0, zap.NewNop())
	defer r.Close()
	if err := r.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	var missing *Redis
	if err := missing.Ping(context.Background()); err == nil {
		t.Fatal("nil client Ping should fail")
	}
}
