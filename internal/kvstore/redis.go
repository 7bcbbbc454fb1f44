package kvstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on top of Redis, modelling etcd-style TTL
// leases with SET...EX, the append-only sequential lock primitive with
// INCR, and the dirty-sentinel watch with Pub/Sub.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore wraps an already-connected *redis.Client.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// NewRedisClient creates a Redis client from the given URL and pings it.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	return client, nil
}

func (s *RedisStore) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("kvstore: put %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("kvstore: get %s: %w", key, err)
	}
	return val, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("kvstore: delete %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context, prefix string) ([]Item, error) {
	var items []Item
	iter := s.rdb.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		val, err := s.rdb.Get(ctx, key).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("kvstore: list %s: %w", prefix, err)
		}
		items = append(items, Item{Key: key, Value: val})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("kvstore: list %s: %w", prefix, err)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Key < items[j].Key })
	return items, nil
}

func (s *RedisStore) Refresh(ctx context.Context, key string, ttl time.Duration) error {
	ok, err := s.rdb.Expire(ctx, key, ttl).Result()
	if err != nil {
		return fmt.Errorf("kvstore: refresh %s: %w", key, err)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// seqCounterKey is the INCR counter backing AppendCreate for a given prefix.
func seqCounterKey(prefix string) string {
	return prefix + "_seq"
}

func (s *RedisStore) AppendCreate(ctx context.Context, prefix, value string, ttl time.Duration) (string, error) {
	n, err := s.rdb.Incr(ctx, seqCounterKey(prefix)).Result()
	if err != nil {
		return "", fmt.Errorf("kvstore: append create %s: %w", prefix, err)
	}
	key := fmt.Sprintf("%s%08d", prefix, n)
	if err := s.Put(ctx, key, value, ttl); err != nil {
		return "", err
	}
	return key, nil
}

func (s *RedisStore) Notify(ctx context.Context, key string) error {
	if err := s.rdb.Publish(ctx, key, "1").Err(); err != nil {
		return fmt.Errorf("kvstore: notify %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) WatchOnce(ctx context.Context, key string, timeout time.Duration) (bool, error) {
	sub := s.rdb.Subscribe(ctx, key)
	defer sub.Close()

	ch := sub.Channel()

	var timeoutC <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	select {
	case <-ch:
		return true, nil
	case <-timeoutC:
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
