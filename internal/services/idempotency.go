package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// idempotencyDayLayout fixes the calendar-day component of the key, so the
// same request on the next day is a new payment.
const idempotencyDayLayout = "Mon Jan 02 2006"

// IdempotencyKey derives the duplicate-suppression key for a payment request.
// The key is the hex SHA-256 of payer, amount, purpose and calendar day.
func IdempotencyKey(payerID string, amount int64, purpose string, day time.Time) string {
	data := fmt.Sprintf("%s:%d:%s:%s", payerID, amount, purpose, day.Format(idempotencyDayLayout))
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

// untilEndOfDay is how long a key computed at now stays meaningful.
func untilEndOfDay(now time.Time) time.Duration {
	y, m, d := now.Date()
	midnight := time.Date(y, m, d+1, 0, 0, 0, 0, now.Location())
	return midnight.Sub(now)
}

// CachedPayment is what the idempotency cache remembers per key.
type CachedPayment struct {
	PaymentID   string `json:"payment_id"`
	CheckoutURL string `json:"checkout_url"`
}

// IdempotencyCache short-circuits the duplicate guard before it reaches the
// database. Lookup returns nil, nil on a miss.
type IdempotencyCache interface {
	Lookup(ctx context.Context, key string) (*CachedPayment, error)
	Remember(ctx context.Context, key string, payment CachedPayment, ttl time.Duration) error
	Forget(ctx context.Context, key string) error
}

// NoopIdempotencyCache is used when Redis is not configured.
type NoopIdempotencyCache struct{}

func (NoopIdempotencyCache) Lookup(context.Context, string) (*CachedPayment, error) {
	return nil, nil
}

func (NoopIdempotencyCache) Remember(context.Context, string, CachedPayment, time.Duration) error {
	return nil
}

func (NoopIdempotencyCache) Forget(context.Context, string) error {
	return nil
}

// RedisIdempotencyCache keeps idempotency keys in Redis until the end of the day.
type RedisIdempotencyCache struct {
	client *redis.Client
	prefix string
}

// NewRedisIdempotencyCache wraps an existing Redis client.
func NewRedisIdempotencyCache(client *redis.Client) *RedisIdempotencyCache {
	return &RedisIdempotencyCache{client: client, prefix: "payments:idempotency:"}
}

func (c *RedisIdempotencyCache) Lookup(ctx context.Context, key string) (*CachedPayment, error) {
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get idempotency key: %w", err)
	}

	var cached CachedPayment
	if err := json.Unmarshal(raw, &cached); err != nil {
		return nil, fmt.Errorf("decode cached payment: %w", err)
	}
	return &cached, nil
}

func (c *RedisIdempotencyCache) Remember(ctx context.Context, key string, payment CachedPayment, ttl time.Duration) error {
	raw, err := json.Marshal(payment)
	if err != nil {
		return err
	}
	// SetNX keeps the first writer's payment when two creates race.
	if err := c.client.SetNX(ctx, c.prefix+key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set idempotency key: %w", err)
	}
	return nil
}

func (c *RedisIdempotencyCache) Forget(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del idempotency key: %w", err)
	}
	return nil
}
