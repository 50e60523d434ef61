// Package broker implements the small key-value+list abstraction (spec §4.1)
// that the rest of the dispatch layer depends on. The only implementation is
// Redis-backed, but every caller talks to the Broker interface so tests can
// substitute miniredis or a fake.
package broker

import (
	"context"
	"runtime"
	"time"

	"github.com/hungson175/hd-tts/internal/config"
	"github.com/redis/go-redis/v9"
)

// Broker is the contract from spec §4.1. Verbs are semantic, not tied to the
// backing store: a FIFO list with blocking pop, string keys with TTL, hash
// counters, and prefix scan.
type Broker interface {
	Push(ctx context.Context, listKey, value string) error
	BlockingPop(ctx context.Context, listKey string, timeout time.Duration) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, bool, error)
	Delete(ctx context.Context, key string) error
	Len(ctx context.Context, listKey string) (int64, error)
	Range(ctx context.Context, listKey string, lo, hi int64) ([]string, error)
	HashIncr(ctx context.Context, key, field string, delta int64) (int64, error)
	HashGetAll(ctx context.Context, key string) (map[string]string, error)
	ScanPrefix(ctx context.Context, prefix string) ([]string, error)
	Ping(ctx context.Context) bool
	// Publish/Subscribe back the result-rendezvous pub/sub fast path (§9
	// design notes: "a production implementation MAY replace polling with
	// pub/sub on a completion channel"). Subscribe returns a channel that is
	// closed when ctx is done; callers must not rely on it firing (the
	// poll-based fallback in internal/queue covers a missed message).
	Publish(ctx context.Context, channel, message string) error
	Subscribe(ctx context.Context, channel string) <-chan string
	Close() error
}

type redisBroker struct {
	client *redis.Client
}

// New builds a Redis-backed Broker from configuration, grounded on the
// teacher's internal/redisclient.New pooling defaults, ported to go-redis v9.
func New(cfg *config.Config) Broker {
	poolSize := 10 * runtime.NumCPU()
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr,
		Username:     cfg.Redis.Username,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     poolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
		MaxRetries:   cfg.Redis.MaxRetries,
	})
	return &redisBroker{client: client}
}

// NewFromClient wraps an existing go-redis client (used by tests against miniredis).
func NewFromClient(client *redis.Client) Broker {
	return &redisBroker{client: client}
}

func (b *redisBroker) Push(ctx context.Context, listKey, value string) error {
	return b.client.LPush(ctx, listKey, value).Err()
}

func (b *redisBroker) BlockingPop(ctx context.Context, listKey string, timeout time.Duration) (string, bool, error) {
	res, err := b.client.BRPop(ctx, timeout, listKey).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	// BRPop returns [key, value]
	if len(res) < 2 {
		return "", false, nil
	}
	return res[1], true, nil
}

func (b *redisBroker) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return b.client.Set(ctx, key, value, ttl).Err()
}

func (b *redisBroker) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := b.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (b *redisBroker) Delete(ctx context.Context, key string) error {
	return b.client.Del(ctx, key).Err()
}

func (b *redisBroker) Len(ctx context.Context, listKey string) (int64, error) {
	return b.client.LLen(ctx, listKey).Result()
}

func (b *redisBroker) Range(ctx context.Context, listKey string, lo, hi int64) ([]string, error) {
	return b.client.LRange(ctx, listKey, lo, hi).Result()
}

func (b *redisBroker) HashIncr(ctx context.Context, key, field string, delta int64) (int64, error) {
	return b.client.HIncrBy(ctx, key, field, delta).Result()
}

func (b *redisBroker) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	return b.client.HGetAll(ctx, key).Result()
}

func (b *redisBroker) ScanPrefix(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := b.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	return keys, iter.Err()
}

func (b *redisBroker) Ping(ctx context.Context) bool {
	return b.client.Ping(ctx).Err() == nil
}

func (b *redisBroker) Publish(ctx context.Context, channel, message string) error {
	return b.client.Publish(ctx, channel, message).Err()
}

func (b *redisBroker) Subscribe(ctx context.Context, channel string) <-chan string {
	sub := b.client.Subscribe(ctx, channel)
	out := make(chan string, 1)
	go func() {
		defer close(out)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- msg.Payload:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func (b *redisBroker) Close() error {
	return b.client.Close()
}
