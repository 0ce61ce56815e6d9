package httpx

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRateStore shares fixed windows between gateway instances.
type RedisRateStore struct {
	rdb    redis.Scripter
	prefix string
}

// Returns {count, remaining ttl in ms}.
var redisHitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

func NewRedisRateStore(rdb redis.Scripter, prefix string) *RedisRateStore {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "rl"
	}
	return &RedisRateStore{rdb: rdb, prefix: prefix}
}

func (s *RedisRateStore) Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	ms := window.Milliseconds()
	if ms <= 0 {
		ms = time.Minute.Milliseconds()
	}
	vals, err := redisHitScript.Run(ctx, s.rdb, []string{s.prefix + ":" + key}, ms).Int64Slice()
	if err != nil {
		return 0, 0, err
	}
	if len(vals) != 2 {
		return 0, 0, fmt.Errorf("unexpected rate limit script result %v", vals)
	}
	return vals[0], time.Duration(vals[1]) * time.Millisecond, nil
}
