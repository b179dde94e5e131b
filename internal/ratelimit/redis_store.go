package ratelimit

import (
	"context"
	"errors"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// fixedWindowScript increments the counter and arms the expiry on the first
// hit of a window. Returns {count, ttl_ms}.
const fixedWindowScript = `
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`

// RedisStore shares counters between replicas.
type RedisStore struct {
	client *redis.Client
	script *redis.Script
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if client == nil {
		return nil
	}
	if prefix == "" {
		prefix = "cardforge:ratelimit:"
	}
	return &RedisStore{
		client: client,
		script: redis.NewScript(fixedWindowScript),
		prefix: prefix,
	}
}

func (s *RedisStore) Increment(ctx context.Context, key string, window time.Duration, now time.Time) (int64, time.Time, error) {
	if s == nil || s.client == nil {
		return 0, time.Time{}, ErrStoreNotConfig
	}
	if err := validate(key, window); err != nil {
		return 0, time.Time{}, err
	}

	res, err := s.script.Run(ctx, s.client, []string{s.prefix + key}, window.Milliseconds()).Slice()
	if err != nil {
		return 0, time.Time{}, err
	}
	if len(res) < 2 {
		return 0, time.Time{}, errors.New("invalid rate limit script response")
	}

	count := castToInt(res[0])
	ttl := time.Duration(castToInt(res[1])) * time.Millisecond
	return count, now.Add(ttl), nil
}

func (s *RedisStore) Get(ctx context.Context, key string, now time.Time) (int64, time.Time, error) {
	if s == nil || s.client == nil {
		return 0, time.Time{}, ErrStoreNotConfig
	}
	if key == "" {
		return 0, time.Time{}, ErrEmptyKey
	}

	pipe := s.client.Pipeline()
	getCmd := pipe.Get(ctx, s.prefix+key)
	ttlCmd := pipe.PTTL(ctx, s.prefix+key)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return 0, time.Time{}, err
	}

	raw, err := getCmd.Result()
	if errors.Is(err, redis.Nil) {
		return 0, time.Time{}, nil
	}
	if err != nil {
		return 0, time.Time{}, err
	}
	count, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, time.Time{}, err
	}
	ttl := ttlCmd.Val()
	if ttl <= 0 {
		return 0, time.Time{}, nil
	}
	return count, now.Add(ttl), nil
}

func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if s == nil || s.client == nil {
		return ErrStoreNotConfig
	}
	if key == "" {
		return ErrEmptyKey
	}
	return s.client.Del(ctx, s.prefix+key).Err()
}

func castToInt(v interface{}) int64 {
	switch val := v.(type) {
	case int64:
		return val
	case int:
		return int64(val)
	case float64:
		return int64(val)
	case string:
		parsed, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}
