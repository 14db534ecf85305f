package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisGate implements core.ConcurrencyGate on a shared Redis counter store.
//
// Holder counts live under gate:{key} with a lease TTL so the count of a
// crashed holder decays on its own. Per-second rate windows live under
// rps:{key}:{unix_second} with a short expiry. All mutations are atomic Lua
// scripts; nothing here ever blocks waiting for capacity.
type RedisGate struct {
	client   redis.UniversalClient
	leaseTTL time.Duration
}

// acquireScript increments the holder count only while it is under the cap.
// The lease TTL is refreshed on every successful acquire so an active gate
// never expires mid-flight, while an abandoned one self-heals.
var acquireScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if current >= tonumber(ARGV[1]) then
  return 0
end
redis.call('INCR', KEYS[1])
redis.call('PEXPIRE', KEYS[1], ARGV[2])
return 1
`)

// releaseScript decrements the holder count, flooring at zero.
var releaseScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if current <= 0 then
  redis.call('SET', KEYS[1], 0, 'KEEPTTL')
  return 0
end
return redis.call('DECR', KEYS[1])
`)

// consumeRPSScript counts a request against the current-second window and
// reports whether the caller stayed under the cap.
var consumeRPSScript = redis.NewScript(`
local used = redis.call('INCR', KEYS[1])
if used == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
if used > tonumber(ARGV[1]) then
  return 0
end
return 1
`)

const (
	defaultGateLeaseTTL = 90 * time.Second
	rpsWindowExpiry     = 3 * time.Second
)

// NewRedisGate creates a RedisGate with the given lease TTL. A non-positive
// TTL falls back to 90s.
func NewRedisGate(client redis.UniversalClient, leaseTTL time.Duration) *RedisGate {
	if leaseTTL <= 0 {
		leaseTTL = defaultGateLeaseTTL
	}
	return &RedisGate{client: client, leaseTTL: leaseTTL}
}

func gateKey(key string) string { return "gate:" + key }

func rpsKey(key string, now time.Time) string {
	return fmt.Sprintf("rps:%s:%d", key, now.Unix())
}

// Acquire attempts to take one concurrency lease for key under the cap.
func (g *RedisGate) Acquire(ctx context.Context, key string, limit int) (bool, error) {
	if key == "" {
		return false, errors.New("gate key cannot be empty")
	}
	if limit <= 0 {
		return false, nil
	}

	ok, err := acquireScript.Run(ctx, g.client,
		[]string{gateKey(key)}, limit, g.leaseTTL.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("gate acquire %s: %w", key, err)
	}
	return ok == 1, nil
}

// Release returns one concurrency lease for key. Safe to call unconditionally.
func (g *RedisGate) Release(ctx context.Context, key string) error {
	if key == "" {
		return errors.New("gate key cannot be empty")
	}

	if err := releaseScript.Run(ctx, g.client, []string{gateKey(key)}).Err(); err != nil {
		return fmt.Errorf("gate release %s: %w", key, err)
	}
	return nil
}

// ConsumeRPS spends one unit of the per-second budget for key.
func (g *RedisGate) ConsumeRPS(ctx context.Context, key string, limit int) (bool, error) {
	if key == "" {
		return false, errors.New("gate key cannot be empty")
	}
	if limit <= 0 {
		return true, nil
	}

	ok, err := consumeRPSScript.Run(ctx, g.client,
		[]string{rpsKey(key, time.Now())}, limit, rpsWindowExpiry.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("consume rps %s: %w", key, err)
	}
	return ok == 1, nil
}

// RedisReachabilityCache remembers per-MX TCP reachability with a bounded TTL.
// It backs the probe preflight that short-circuits networks blocking outbound
// port 25.
type RedisReachabilityCache struct {
	client redis.UniversalClient
}

// NewRedisReachabilityCache creates a reachability cache on the given client.
func NewRedisReachabilityCache(client redis.UniversalClient) *RedisReachabilityCache {
	return &RedisReachabilityCache{client: client}
}

func reachabilityKey(mxHost string) string { return "mx-reach:" + mxHost }

// Get reports the cached reachability of an MX host; known is false on a miss.
func (c *RedisReachabilityCache) Get(ctx context.Context, mxHost string) (bool, bool, error) {
	val, err := c.client.Get(ctx, reachabilityKey(mxHost)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, false, nil
		}
		return false, false, fmt.Errorf("reachability get %s: %w", mxHost, err)
	}
	return val == "1", true, nil
}

// Set caches the reachability of an MX host for ttl.
func (c *RedisReachabilityCache) Set(ctx context.Context, mxHost string, reachable bool, ttl time.Duration) error {
	val := "0"
	if reachable {
		val = "1"
	}
	if err := c.client.Set(ctx, reachabilityKey(mxHost), val, ttl).Err(); err != nil {
		return fmt.Errorf("reachability set %s: %w", mxHost, err)
	}
	return nil
}
