package redisclient

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"storefront/internal/storage"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/append_record.lua
var appendRecordScript string

// Client stores snapshots as plain Redis strings
type Client struct {
	rdb          *redis.Client
	appendScript *redis.Script
	ttl          time.Duration
}

// NewClient creates a new Redis client with Lua scripts loaded. Snapshots
// expire after ttl of inactivity; zero keeps them forever.
func NewClient(addr, password string, db int, ttl time.Duration) (*Client, error) {
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

	return &Client{
		rdb:          rdb,
		appendScript: redis.NewScript(appendRecordScript),
		ttl:          ttl,
	}, nil
}

// Ping checks the connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Get returns the raw snapshot at key
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.rdb.Get(ctx, snapshotKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return data, nil
}

// Set overwrites the snapshot at key
func (c *Client) Set(ctx context.Context, key string, data []byte) error {
	if err := c.rdb.Set(ctx, snapshotKey(key), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete removes the snapshot at key
func (c *Client) Delete(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, snapshotKey(key)).Err()
}

// AppendRecord atomically appends record to the array at key using Lua script
func (c *Client) AppendRecord(ctx context.Context, key string, version int, record []byte) error {
	k := snapshotKey(key)

	result, err := c.appendScript.Run(ctx, c.rdb, []string{k}, version, string(record)).Result()
	if err != nil {
		return fmt.Errorf("append record script failed: %w", err)
	}

	if _, ok := result.(int64); !ok {
		return fmt.Errorf("unexpected script result type")
	}

	if c.ttl > 0 {
		if err := c.rdb.Expire(ctx, k, c.ttl).Err(); err != nil {
			return fmt.Errorf("redis expire %s: %w", key, err)
		}
	}
	return nil
}

func snapshotKey(key string) string {
	return fmt.Sprintf("snapshot:%s", key)
}
