// Package revocation keeps a denylist of refresh-token ids (the jti claim).
//
// Refresh tokens are stateless JWTs: by default a token stays usable until it
// expires, even after the user logs out. When REDIS_URL is configured, logout
// records the token's jti here with a TTL equal to the token's remaining
// lifetime, and the refresh flow rejects any jti found in the list. Entries
// disappear on their own once the token would have expired anyway, so the
// list never grows beyond the set of live, revoked tokens.
package revocation

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// List is the denylist contract used by the auth service.
type List interface {
	// Revoke marks jti as revoked until expiresAt. A jti that has already
	// expired is ignored.
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error
	// IsRevoked reports whether jti is on the list.
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// Noop is the List used when no Redis is configured: nothing is ever revoked.
type Noop struct{}

func (Noop) Revoke(context.Context, string, time.Time) error { return nil }

func (Noop) IsRevoked(context.Context, string) (bool, error) { return false, nil }

const keyPrefix = "storefront:revoked:"

// Redis stores one key per revoked jti.
type Redis struct {
	client *redis.Client
	now    func() time.Time
}

var (
	_ List = Noop{}
	_ List = (*Redis)(nil)
)

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client, now: time.Now}
}

// Open parses a redis:// URL, connects and pings.
func Open(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("revocation: parsing REDIS_URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("revocation: pinging redis: %w", err)
	}
	return client, nil
}

func (r *Redis) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	if jti == "" {
		return nil
	}
	ttl := expiresAt.Sub(r.now())
	if ttl <= 0 {
		return nil
	}

	if err := r.client.Set(ctx, keyPrefix+jti, 1, ttl).Err(); err != nil {
		return fmt.Errorf("revocation: revoking %s: %w", jti, err)
	}
	return nil
}

func (r *Redis) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}
	n, err := r.client.Exists(ctx, keyPrefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("revocation: checking %s: %w", jti, err)
	}
	return n > 0, nil
}
