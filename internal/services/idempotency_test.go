package services

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyKeyStableWithinDay(t *testing.T) {
	morning := time.Date(2026, 3, 14, 8, 0, 0, 0, time.Local)
	evening := time.Date(2026, 3, 14, 23, 59, 59, 0, time.Local)

	a := IdempotencyKey("user-1", 850000, "utility", morning)
	b := IdempotencyKey("user-1", 850000, "utility", evening)

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestIdempotencyKeyChangesWithInputs(t *testing.T) {
	day := time.Date(2026, 3, 14, 12, 0, 0, 0, time.Local)
	base := IdempotencyKey("user-1", 850000, "utility", day)

	assert.NotEqual(t, base, IdempotencyKey("user-1", 850000, "utility", day.AddDate(0, 0, 1)))
	assert.NotEqual(t, base, IdempotencyKey("user-2", 850000, "utility", day))
	assert.NotEqual(t, base, IdempotencyKey("user-1", 850001, "utility", day))
	assert.NotEqual(t, base, IdempotencyKey("user-1", 850000, "internet", day))
}

func TestIdempotencyKeyKnownValue(t *testing.T) {
	day := time.Date(2026, 3, 14, 12, 0, 0, 0, time.Local)

	// sha256("user-1:1000:utility:Sat Mar 14 2026")
	key := IdempotencyKey("user-1", 1000, "utility", day)

	assert.Equal(t, "35225b6ed871e987d01d0a4a62714106dc8a0f81c7b72c113874adba64200f39", key)
}

func TestUntilEndOfDay(t *testing.T) {
	now := time.Date(2026, 3, 14, 22, 30, 0, 0, time.UTC)
	assert.Equal(t, 90*time.Minute, untilEndOfDay(now))
}

func TestRedisIdempotencyCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cache := NewRedisIdempotencyCache(client)
	ctx := context.Background()

	miss, err := cache.Lookup(ctx, "k1")
	require.NoError(t, err)
	assert.Nil(t, miss)

	require.NoError(t, cache.Remember(ctx, "k1", CachedPayment{PaymentID: "PAY_1", CheckoutURL: "https://x/1"}, time.Hour))
	require.NoError(t, cache.Remember(ctx, "k1", CachedPayment{PaymentID: "PAY_2", CheckoutURL: "https://x/2"}, time.Hour))

	hit, err := cache.Lookup(ctx, "k1")
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, "PAY_1", hit.PaymentID)

	mr.FastForward(2 * time.Hour)
	expired, err := cache.Lookup(ctx, "k1")
	require.NoError(t, err)
	assert.Nil(t, expired)

	require.NoError(t, cache.Remember(ctx, "k2", CachedPayment{PaymentID: "PAY_3"}, time.Hour))
	require.NoError(t, cache.Forget(ctx, "k2"))
	gone, err := cache.Lookup(ctx, "k2")
	require.NoError(t, err)
	assert.Nil(t, gone)
}
