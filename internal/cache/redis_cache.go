package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const expiryStateTTL = 7 * 24 * time.Hour

// RedisExpiryState keeps the announcement memory across restarts so a
// reboot does not repeat an alert the operator already saw.
type RedisExpiryState struct {
	client *redis.Client
	prefix string
}

func NewRedisExpiryState(addr string, password string, db int) *RedisExpiryState {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisExpiryState{client: client, prefix: "onedesk:expiry:notified:"}
}

func (c *RedisExpiryState) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisExpiryState) Close() error {
	return c.client.Close()
}

func (c *RedisExpiryState) LastNotified(ctx context.Context, ownerID string) ([]string, bool, error) {
	val, err := c.client.Get(ctx, c.prefix+ownerID).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var ids []string
	if err := json.Unmarshal([]byte(val), &ids); err != nil {
		return nil, false, err
	}
	return ids, true, nil
}

func (c *RedisExpiryState) SetLastNotified(ctx context.Context, ownerID string, ids []string) error {
	payload, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.prefix+ownerID, payload, expiryStateTTL).Err()
}

func (c *RedisExpiryState) Reset(ctx context.Context, ownerID string) error {
	return c.client.Del(ctx, c.prefix+ownerID).Err()
}
