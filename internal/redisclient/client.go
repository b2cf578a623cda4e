package redisclient

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// Client caches per-event availability for fast catalog reads and provides
// the distributed lock used by the expiry sweeper. The database remains the
// authority; everything here is best-effort.
type Client struct {
	rdb *redis.Client
}

const availabilityTTL = 30 * time.Second

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func availabilityKey(eventID int64) string {
	return fmt.Sprintf("availability:%d", eventID)
}

// SetAvailability caches an event's available count with a short TTL
func (c *Client) SetAvailability(ctx context.Context, eventID int64, available int) error {
	return c.rdb.Set(ctx, availabilityKey(eventID), available, availabilityTTL).Err()
}

// GetAvailability returns the cached available count; ok is false on a miss
func (c *Client) GetAvailability(ctx context.Context, eventID int64) (int, bool, error) {
	val, err := c.rdb.Get(ctx, availabilityKey(eventID)).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	available, err := strconv.Atoi(val)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt availability value: %w", err)
	}
	return available, true, nil
}

// InvalidateAvailability drops the cached count after a capacity mutation
func (c *Client) InvalidateAvailability(ctx context.Context, eventID int64) error {
	return c.rdb.Del(ctx, availabilityKey(eventID)).Err()
}

// AcquireLock acquires a distributed lock
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), "1", ttl).Result()
}

// ReleaseLock releases a distributed lock
func (c *Client) ReleaseLock(ctx context.Context, lockKey string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("lock:%s", lockKey)).Err()
}
