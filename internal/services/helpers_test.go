package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/example/newport/internal/models"
)

// recordingPublisher keeps every event it receives.
type recordingPublisher struct {
	mu     sync.Mutex
	events []PaymentEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event PaymentEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) ofType(kind PaymentEventType) []PaymentEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []PaymentEvent
	for _, e := range p.events {
		if e.Type == kind {
			out = append(out, e)
		}
	}
	return out
}

// memoryCache is an in-process IdempotencyCache.
type memoryCache struct {
	mu        sync.Mutex
	entries   map[string]CachedPayment
	forgetErr error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string]CachedPayment{}}
}

func (c *memoryCache) Lookup(_ context.Context, key string) (*CachedPayment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.entries[key]; ok {
		return &v, nil
	}
	return nil, nil
}

func (c *memoryCache) Remember(_ context.Context, key string, payment CachedPayment, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; !ok {
		c.entries[key] = payment
	}
	return nil
}

func (c *memoryCache) Forget(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.forgetErr != nil {
		return c.forgetErr
	}
	delete(c.entries, key)
	return nil
}

var seedCounter int

// seedPayment inserts a pending payment of amount sum.
func seedPayment(t *testing.T, db *gorm.DB, amount int64) *models.Payment {
	t.Helper()

	seedCounter++
	key := fmt.Sprintf("%064d", seedCounter)
	payment := &models.Payment{
		ID:                   fmt.Sprintf("PAY_%d_seed%04d", time.Now().UnixMilli(), seedCounter),
		UserID:               uuid.New(),
		ApartmentID:          "A-12",
		ApartmentNumber:      "12",
		BlockID:              "A",
		Amount:               amount,
		Description:          "utility",
		Status:               models.PaymentStatusPending,
		IdempotencyKey:       key,
		ActiveIdempotencyKey: &key,
		UserName:             "Aziz Karimov",
	}
	require.NoError(t, db.Create(payment).Error)
	return payment
}

func reloadPayment(t *testing.T, db *gorm.DB, id string) models.Payment {
	t.Helper()
	var p models.Payment
	require.NoError(t, db.Where("id = ?", id).First(&p).Error)
	return p
}

func reloadTransaction(t *testing.T, db *gorm.DB, externalID string) models.PaymeTransaction {
	t.Helper()
	var txn models.PaymeTransaction
	require.NoError(t, db.Where("external_id = ?", externalID).First(&txn).Error)
	return txn
}

func requirePaymeCode(t *testing.T, err error, code int) {
	t.Helper()
	var txErr *TransactionError
	require.ErrorAs(t, err, &txErr)
	assert.Equal(t, code, txErr.Info.Code)
}

func requireKind(t *testing.T, err error, kind ErrorKind) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, KindOf(err))
}
