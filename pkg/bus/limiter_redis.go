package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisTokenBucketScript runs the token bucket algorithm atomically in
// Redis so multiple swarmnode processes sharing a bus enforce one
// consistent rate limit per sender.
//
// KEYS[1] = bucket key ("bus:limit:<sender_pk>")
// ARGV[1] = refill rate (tokens per second)
// ARGV[2] = capacity (max tokens)
// ARGV[3] = cost (tokens to consume)
// ARGV[4] = current unix timestamp (float seconds)
var redisTokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local cost = tonumber(ARGV[3])
local now = tonumber(ARGV[4])

local state = redis.call("HMGET", key, "tokens", "last_refill")
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])

if not tokens or not last_refill then
    tokens = capacity
    last_refill = now
end

local elapsed = now - last_refill
if elapsed > 0 then
    local added = elapsed * rate
    tokens = tokens + added
    if tokens > capacity then
        tokens = capacity
    end
    last_refill = now
end

local allowed = 0
if tokens >= cost then
    tokens = tokens - cost
    allowed = 1
end

redis.call("HMSET", key, "tokens", tokens, "last_refill", last_refill)
redis.call("EXPIRE", key, 60)

return {allowed, tokens}
`)

// RedisLimiterStore implements LimiterStore against a shared Redis instance.
type RedisLimiterStore struct {
	client *redis.Client
}

func NewRedisLimiterStore(addr, password string, db int) *RedisLimiterStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisLimiterStore{client: rdb}
}

func (s *RedisLimiterStore) Allow(ctx context.Context, senderPK string, limit RateLimit, cost int) (bool, error) {
	key := fmt.Sprintf("bus:limit:%s", senderPK)

	rate := float64(limit.PerMinute) / 60.0
	if rate <= 0 {
		rate = 1.0
	}
	now := float64(time.Now().UnixMicro()) / 1e6

	res, err := redisTokenBucketScript.Run(ctx, s.client, []string{key}, rate, limit.Burst, cost, now).Result()
	if err != nil {
		return false, fmt.Errorf("bus: redis limiter error: %w", err)
	}

	results, ok := res.([]interface{})
	if !ok || len(results) != 2 {
		return false, fmt.Errorf("bus: invalid response from limiter script")
	}

	allowedVal, _ := results[0].(int64)
	return allowedVal == 1, nil
}
