package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/consume_code.lua
var consumeCodeScript string

// ConsumeResult is the outcome of ConsumeCode
type ConsumeResult int

const (
	CodeMissing  ConsumeResult = -1
	CodeMismatch ConsumeResult = 0
	CodeConsumed ConsumeResult = 1
)

type Client struct {
	rdb           *redis.Client
	consumeScript *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
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

	return NewFromRedis(rdb), nil
}

// NewFromRedis wraps an existing connection
func NewFromRedis(rdb *redis.Client) *Client {
	return &Client{
		rdb:           rdb,
		consumeScript: redis.NewScript(consumeCodeScript),
	}
}

// Ping checks connectivity
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func codeKey(subject string) string {
	return fmt.Sprintf("verification:%s", subject)
}

// IssueCode stores code for subject unless a live one exists.
// It returns false when the subject is still inside its window.
func (c *Client) IssueCode(ctx context.Context, subject, code string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, codeKey(subject), code, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("store verification code: %w", err)
	}
	return ok, nil
}

// CodeTTL returns how long the subject's live code remains valid, zero if none
func (c *Client) CodeTTL(ctx context.Context, subject string) (time.Duration, error) {
	ttl, err := c.rdb.PTTL(ctx, codeKey(subject)).Result()
	if err != nil {
		return 0, err
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

// ConsumeCode atomically deletes the subject's code if it equals code
func (c *Client) ConsumeCode(ctx context.Context, subject, code string) (ConsumeResult, error) {
	result, err := c.consumeScript.Run(ctx, c.rdb, []string{codeKey(subject)}, code).Result()
	if err != nil {
		return CodeMissing, fmt.Errorf("consume code script failed: %w", err)
	}

	n, ok := result.(int64)
	if !ok {
		return CodeMissing, fmt.Errorf("unexpected script result type")
	}

	return ConsumeResult(n), nil
}
