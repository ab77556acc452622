package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/newport/internal/models"
)

// PaymentEventType names a payment lifecycle event.
type PaymentEventType string

const (
	EventPaymentCreated   PaymentEventType = "payment.created"
	EventPaymentCompleted PaymentEventType = "payment.completed"
	EventPaymentCancelled PaymentEventType = "payment.cancelled"
)

// PaymentEvent is emitted after a payment change has been committed.
type PaymentEvent struct {
	Type          PaymentEventType `json:"type"`
	PaymentID     string           `json:"payment_id"`
	UserID        uuid.UUID        `json:"user_id"`
	ApartmentID   string           `json:"apartment_id"`
	Amount        int64            `json:"amount"`
	TransactionID string           `json:"transaction_id,omitempty"`
	Reason        string           `json:"reason,omitempty"`
	OccurredAt    time.Time        `json:"occurred_at"`
}

func newPaymentEvent(kind PaymentEventType, p *models.Payment, at time.Time) PaymentEvent {
	event := PaymentEvent{
		Type:        kind,
		PaymentID:   p.ID,
		UserID:      p.UserID,
		ApartmentID: p.ApartmentID,
		Amount:      p.Amount,
		OccurredAt:  at,
	}
	if p.GatewayTransactionID != nil {
		event.TransactionID = *p.GatewayTransactionID
	}
	if p.CancelReason != nil {
		event.Reason = string(*p.CancelReason)
	}
	return event
}

// Publisher delivers payment events to a downstream consumer.
type Publisher interface {
	Publish(ctx context.Context, event PaymentEvent) error
}

// Publishers fans an event out to every publisher and joins their errors.
type Publishers []Publisher

func (ps Publishers) Publish(ctx context.Context, event PaymentEvent) error {
	var errs []error
	for _, p := range ps {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NotificationStore writes payment events into the residents' notification
// inbox, which the push pipeline watches.
type NotificationStore struct {
	db *gorm.DB
}

func NewNotificationStore(db *gorm.DB) *NotificationStore {
	return &NotificationStore{db: db}
}

func (s *NotificationStore) Publish(ctx context.Context, event PaymentEvent) error {
	amount := FormatPrice(float64(event.Amount), "сум")

	n := models.Notification{
		UserID:           event.UserID,
		RelatedPaymentID: event.PaymentID,
	}
	switch event.Type {
	case EventPaymentCreated:
		n.Title = "Платеж создан"
		n.Message = fmt.Sprintf("Создан платеж на сумму %s", amount)
		n.Type = models.NotificationTypePayment
	case EventPaymentCompleted:
		n.Title = "Платеж успешно проведен"
		n.Message = fmt.Sprintf("Оплата на сумму %s успешно проведена", amount)
		n.Type = models.NotificationTypePaymentSuccess
	case EventPaymentCancelled:
		n.Title = "Платеж отменен"
		n.Message = fmt.Sprintf("Платеж на сумму %s отменен", amount)
		n.Type = models.NotificationTypePaymentCancelled
	default:
		return nil
	}

	if err := s.db.WithContext(ctx).Create(&n).Error; err != nil {
		return fmt.Errorf("store %s notification: %w", event.Type, err)
	}
	return nil
}
