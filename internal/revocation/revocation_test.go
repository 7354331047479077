package revocation

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedis_RevokeAndExpire(t *testing.T) {
	mr, client := newTestRedis(t)
	list := NewRedis(client)
	ctx := context.Background()

	if err := list.Revoke(ctx, "jti-1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}

	revoked, err := list.IsRevoked(ctx, "jti-1")
	if err != nil {
		t.Fatalf("IsRevoked() error = %v", err)
	}
	if !revoked {
		t.Error("IsRevoked() = false right after Revoke")
	}

	other, _ := list.IsRevoked(ctx, "jti-2")
	if other {
		t.Error("IsRevoked() = true for a jti that was never revoked")
	}

	// Once the token's own lifetime is over the entry goes away.
	mr.FastForward(time.Hour + time.Second)
	revoked, _ = list.IsRevoked(ctx, "jti-1")
	if revoked {
		t.Error("entry outlived the token's expiry")
	}
}

func TestRedis_RevokeAlreadyExpired(t *testing.T) {
	mr, client := newTestRedis(t)
	list := NewRedis(client)

	if err := list.Revoke(context.Background(), "old", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	if mr.Exists(keyPrefix + "old") {
		t.Error("expired token should not be written")
	}
}

func TestRedis_Unavailable(t *testing.T) {
	mr, client := newTestRedis(t)
	list := NewRedis(client)
	mr.Close()

	if _, err := list.IsRevoked(context.Background(), "jti"); err == nil {
		t.Error("IsRevoked() should fail when redis is down")
	}
}

func TestOpen(t *testing.T) {
	mr, _ := newTestRedis(t)

	client, err := Open(context.Background(), "redis://"+mr.Addr()+"/0")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer client.Close()

	if _, err := Open(context.Background(), "not a url"); err == nil {
		t.Error("Open() should reject a malformed URL")
	}
}

func TestNoop(t *testing.T) {
	var list List = Noop{}
	_ = list.Revoke(context.Background(), "x", time.Now().Add(time.Hour))
	revoked, err := list.IsRevoked(context.Background(), "x")
	if err != nil || revoked {
		t.Errorf("Noop.IsRevoked() = %v, %v; want false, nil", revoked, err)
	}
}
