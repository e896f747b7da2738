package challenges

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/vaultkeeper/internal/common"
	"github.com/dmitrijs2005/vaultkeeper/internal/server/models"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "vaultkeeper:challenge:"

// incrAttempts counts an attempt only while the challenge exists and gives
// the counter the same remaining lifetime as the challenge.
var incrAttempts = redis.NewScript(`
local ttl = redis.call("PTTL", KEYS[1])
if ttl <= 0 then
  return -1
end
local n = redis.call("INCR", KEYS[2])
redis.call("PEXPIRE", KEYS[2], ttl)
return n
`)

// RedisStore keeps challenges in Redis so any server instance can complete a
// login another one started.
type RedisStore struct {
	client redis.UniversalClient
	now    func() time.Time
}

func NewRedisStore(client redis.UniversalClient, now func() time.Time) *RedisStore {
	if now == nil {
		now = time.Now
	}
	return &RedisStore{client: client, now: now}
}

// Connect initializes a Redis client from a URL or host:port.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		opt, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: addr})
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func dataKey(id string) string     { return keyPrefix + id }
func attemptsKey(id string) string { return keyPrefix + id + ":attempts" }

func (s *RedisStore) Put(ctx context.Context, c *models.Challenge) error {
	ttl := c.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return fmt.Errorf("challenge %s already expired", c.ID)
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, dataKey(c.ID), raw, ttl).Err()
}

func (s *RedisStore) Get(ctx context.Context, id string) (*models.Challenge, error) {
	raw, err := s.client.Get(ctx, dataKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, common.ErrorNotFound
		}
		return nil, err
	}
	var out models.Challenge
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}

	attempts, err := s.client.Get(ctx, attemptsKey(id)).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	out.Attempts += attempts
	return &out, nil
}

func (s *RedisStore) IncrementAttempts(ctx context.Context, id string) (int, error) {
	n, err := incrAttempts.Run(ctx, s.client, []string{dataKey(id), attemptsKey(id)}).Int()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, common.ErrorNotFound
	}
	return n, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, dataKey(id), attemptsKey(id)).Err()
}
