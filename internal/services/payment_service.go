package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/newport/internal/directory"
	"github.com/example/newport/internal/metrics"
	"github.com/example/newport/internal/models"
)

const (
	MinPaymentAmount = 1000
	MaxPaymentAmount = 10000000

	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
	defaultPurpose      = "utility"
)

// PaymentService creates payments and lists a payer's history.
type PaymentService struct {
	db       *gorm.DB
	dir      *directory.Directory
	checkout *CheckoutBuilder
	cache    IdempotencyCache
	events   Publisher
	now      func() time.Time
}

func NewPaymentService(db *gorm.DB, dir *directory.Directory, checkout *CheckoutBuilder, cache IdempotencyCache, events Publisher) *PaymentService {
	if cache == nil {
		cache = NoopIdempotencyCache{}
	}
	if events == nil {
		events = Publishers{}
	}
	return &PaymentService{
		db:       db,
		dir:      dir,
		checkout: checkout,
		cache:    cache,
		events:   events,
		now:      time.Now,
	}
}

type CreatePaymentInput struct {
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
	ApartmentID string  `json:"apartmentId"`
}

type CreatePaymentResult struct {
	Success     bool   `json:"success"`
	PaymentID   string `json:"paymentId"`
	CheckoutURL string `json:"checkoutUrl"`
	Message     string `json:"message"`
}

type PaymentSummary struct {
	PaymentID       string               `json:"paymentId"`
	Amount          int64                `json:"amount"`
	Description     string               `json:"description"`
	Status          models.PaymentStatus `json:"status"`
	CreatedAt       string               `json:"createdAt"`
	CompletedAt     *string              `json:"completedAt"`
	ApartmentNumber string               `json:"apartmentNumber"`
	BlockID         string               `json:"blockId"`
}

func validatePaymentAmount(amount float64) (int64, error) {
	if amount == 0 || math.IsNaN(amount) || math.IsInf(amount, 0) || amount != math.Trunc(amount) {
		return 0, newError(KindInvalidArgument, "Неверная сумма платежа")
	}
	if amount < MinPaymentAmount {
		return 0, newError(KindInvalidArgument, fmt.Sprintf("Минимальная сумма платежа: %d сум", MinPaymentAmount))
	}
	if amount > MaxPaymentAmount {
		return 0, newError(KindInvalidArgument, fmt.Sprintf("Максимальная сумма платежа: %d сум", MaxPaymentAmount))
	}
	return int64(amount), nil
}

// CreatePayment creates a pending payment for an apartment the user can pay
// for. A repeated request for the same payer, amount and purpose on the same
// day returns the payment created first.
func (s *PaymentService) CreatePayment(ctx context.Context, userID uuid.UUID, in CreatePaymentInput) (*CreatePaymentResult, error) {
	amount, err := validatePaymentAmount(in.Amount)
	if err != nil {
		return nil, err
	}
	if in.ApartmentID == "" {
		return nil, newError(KindInvalidArgument, "apartmentId обязателен")
	}

	apartment, err := s.dir.Apartment(ctx, in.ApartmentID)
	if errors.Is(err, directory.ErrNotFound) {
		return nil, newError(KindNotFound, "Квартира не найдена")
	}
	if err != nil {
		return nil, internalError("Ошибка создания платежа", err)
	}
	if !apartment.HasAccess(userID.String()) {
		return nil, newError(KindPermissionDenied, "Нет доступа к этой квартире")
	}

	profile, err := s.dir.Profile(ctx, userID)
	if errors.Is(err, directory.ErrNotFound) {
		return nil, newError(KindNotFound, "Профиль пользователя не найден")
	}
	if err != nil {
		return nil, internalError("Ошибка создания платежа", err)
	}

	now := s.now()
	purpose := in.Description
	if purpose == "" {
		purpose = defaultPurpose
	}
	key := IdempotencyKey(userID.String(), amount, purpose, now)

	existing, err := s.findDuplicate(ctx, key)
	if err != nil {
		return nil, internalError("Ошибка создания платежа", err)
	}
	if existing != nil {
		metrics.PaymentsCreatedTotal.WithLabelValues("duplicate").Inc()
		log.WithFields(log.Fields{
			"payment_id":      existing.PaymentID,
			"idempotency_key": key,
		}).Info("Duplicate payment attempt")
		return &CreatePaymentResult{
			Success:     true,
			PaymentID:   existing.PaymentID,
			CheckoutURL: existing.CheckoutURL,
			Message:     "Платеж уже создан",
		}, nil
	}

	paymentID, err := newPaymentID(now)
	if err != nil {
		return nil, internalError("Ошибка создания платежа", err)
	}
	checkoutURL, params, err := s.checkout.Build(paymentID, apartment.ID, amount)
	if err != nil {
		return nil, internalError("Ошибка создания платежа", err)
	}

	description := in.Description
	if description == "" {
		description = fmt.Sprintf("Оплата коммунальных услуг за квартиру %s", apartment.Number)
	}

	activeKey := key
	payment := models.Payment{
		ID:                   paymentID,
		UserID:               userID,
		ApartmentID:          apartment.ID,
		ApartmentNumber:      apartment.Number,
		BlockID:              apartment.BlockID,
		Amount:               amount,
		Description:          description,
		Status:               models.PaymentStatusPending,
		IdempotencyKey:       key,
		ActiveIdempotencyKey: &activeKey,
		CheckoutURL:          checkoutURL,
		GatewayParams:        datatypes.JSON(params),
		UserName:             profile.FullName,
		UserPhone:            profile.Phone,
		MerchantID:           s.checkout.merchantID,
	}

	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "active_idempotency_key"}},
		DoNothing: true,
	}).Create(&payment)
	if res.Error != nil {
		return nil, internalError("Ошибка создания платежа", fmt.Errorf("insert payment: %w", res.Error))
	}
	if res.RowsAffected == 0 {
		// a concurrent request with the same key won the insert
		winner, err := s.activePayment(ctx, key)
		if err != nil {
			return nil, internalError("Ошибка создания платежа", err)
		}
		if winner == nil {
			return nil, internalError("Ошибка создания платежа", fmt.Errorf("payment for key %s vanished after conflict", key))
		}
		metrics.PaymentsCreatedTotal.WithLabelValues("duplicate").Inc()
		return &CreatePaymentResult{
			Success:     true,
			PaymentID:   winner.ID,
			CheckoutURL: winner.CheckoutURL,
			Message:     "Платеж уже создан",
		}, nil
	}

	if err := s.cache.Remember(ctx, key, CachedPayment{PaymentID: payment.ID, CheckoutURL: payment.CheckoutURL}, untilEndOfDay(now)); err != nil {
		log.WithError(err).WithField("payment_id", payment.ID).Warn("Failed to cache idempotency key")
	}

	metrics.PaymentsCreatedTotal.WithLabelValues("created").Inc()
	log.WithFields(log.Fields{
		"payment_id":   payment.ID,
		"user_id":      userID,
		"apartment_id": apartment.ID,
		"amount":       amount,
	}).Info("Payment created")

	if err := s.events.Publish(ctx, newPaymentEvent(EventPaymentCreated, &payment, now)); err != nil {
		log.WithError(err).WithField("payment_id", payment.ID).Warn("Failed to publish payment event")
	}

	return &CreatePaymentResult{
		Success:     true,
		PaymentID:   payment.ID,
		CheckoutURL: payment.CheckoutURL,
		Message:     "Платеж успешно создан",
	}, nil
}

// findDuplicate returns the payment still holding key. The cache is only a
// hint: a hit is confirmed against the database and dropped when the payment
// it names no longer holds the key.
func (s *PaymentService) findDuplicate(ctx context.Context, key string) (*CachedPayment, error) {
	cached, err := s.cache.Lookup(ctx, key)
	if err != nil {
		log.WithError(err).Warn("Idempotency cache lookup failed")
		cached = nil
	}

	payment, err := s.activePayment(ctx, key)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		if cached != nil {
			log.WithFields(log.Fields{
				"payment_id":      cached.PaymentID,
				"idempotency_key": key,
			}).Warn("Dropping stale idempotency cache entry")
			if err := s.cache.Forget(ctx, key); err != nil {
				log.WithError(err).Warn("Failed to evict stale idempotency key")
			}
		}
		return nil, nil
	}
	return &CachedPayment{PaymentID: payment.ID, CheckoutURL: payment.CheckoutURL}, nil
}

// activePayment returns the non-cancelled payment holding key, or nil.
func (s *PaymentService) activePayment(ctx context.Context, key string) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.WithContext(ctx).Where("active_idempotency_key = ?", key).First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup payment by key: %w", err)
	}
	return &payment, nil
}

// PaymentHistory lists the user's payments, newest first.
func (s *PaymentService) PaymentHistory(ctx context.Context, userID uuid.UUID, apartmentID string, limit, offset int) ([]PaymentSummary, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}

	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if apartmentID != "" {
		query = query.Where("apartment_id = ?", apartmentID)
	}

	var payments []models.Payment
	if err := query.Order("created_at desc").Limit(limit).Offset(offset).Find(&payments).Error; err != nil {
		return nil, internalError("Ошибка получения истории платежей", err)
	}

	history := make([]PaymentSummary, 0, len(payments))
	for _, p := range payments {
		summary := PaymentSummary{
			PaymentID:       p.ID,
			Amount:          p.Amount,
			Description:     p.Description,
			Status:          p.Status,
			CreatedAt:       p.CreatedAt.UTC().Format(time.RFC3339),
			ApartmentNumber: p.ApartmentNumber,
			BlockID:         p.BlockID,
		}
		if p.CompletedAt != nil {
			completed := p.CompletedAt.UTC().Format(time.RFC3339)
			summary.CompletedAt = &completed
		}
		history = append(history, summary)
	}
	return history, nil
}

func newPaymentID(now time.Time) (string, error) {
	suffix := make([]byte, 4)
	if _, err := rand.Read(suffix); err != nil {
		return "", fmt.Errorf("generate payment id: %w", err)
	}
	return fmt.Sprintf("PAY_%d_%s", now.UnixMilli(), hex.EncodeToString(suffix)), nil
}
