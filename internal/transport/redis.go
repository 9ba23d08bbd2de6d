package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"vidintel/internal/config"
	"vidintel/internal/services"
)

const redisBlockTimeout = 5 * time.Second

// listClient is the subset of *redis.Client used by RedisTransport.
type listClient interface {
	LPush(ctx context.Context, key string, values ...any) *redis.IntCmd
	BRPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
	Close() error
}

// RedisTransport is a FIFO over a Redis list: LPUSH to enqueue, BRPOP to
// receive.
type RedisTransport struct {
	client listClient
	list   string
	block  time.Duration
}

// DialRedis connects to url and verifies the server with PING.
func DialRedis(ctx context.Context, url, list string) (*RedisTransport, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, services.Wrap(services.ErrConfiguration, "transport", "redis", "transport.redis_url is required for the redis backend", nil)
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "transport", "redis", "parse transport.redis_url", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = redisBlockTimeout + 2*time.Second
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, services.Wrap(services.ErrTransient, "transport", "redis", "ping redis", err)
	}
	return NewRedisTransport(client, list), nil
}

// NewRedisTransport wraps an existing client.
func NewRedisTransport(client listClient, list string) *RedisTransport {
	list = strings.TrimSpace(list)
	if list == "" {
		list = "vidintel:jobs"
	}
	return &RedisTransport{client: client, list: list, block: redisBlockTimeout}
}

// Name implements Transport.
func (t *RedisTransport) Name() string { return config.TransportRedis }

// Enqueue implements Transport.
func (t *RedisTransport) Enqueue(ctx context.Context, jobID string) error {
	if strings.TrimSpace(jobID) == "" {
		return services.Wrap(services.ErrValidation, "transport", "enqueue", "job id is required", nil)
	}
	if err := t.client.LPush(ctx, t.list, jobID).Err(); err != nil {
		return services.Wrap(services.ErrTransient, "transport", "enqueue", fmt.Sprintf("push job %s", jobID), err)
	}
	return nil
}

// Receive implements Transport. BRPOP timeouts are retried until ctx ends.
func (t *RedisTransport) Receive(ctx context.Context) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		res, err := t.client.BRPop(ctx, t.block, t.list).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", services.Wrap(services.ErrTransient, "transport", "receive", "pop job", err)
		}
		// BRPOP replies with [key, value].
		if len(res) == 2 && strings.TrimSpace(res[1]) != "" {
			return res[1], nil
		}
	}
}

// Close implements Transport.
func (t *RedisTransport) Close() error {
	return t.client.Close()
}
