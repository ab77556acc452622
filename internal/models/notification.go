package models

import "github.com/google/uuid"

const (
	NotificationTypePayment          = "payment"
	NotificationTypePaymentSuccess   = "payment_success"
	NotificationTypePaymentCancelled = "payment_cancelled"
)

// Notification is an inbox entry picked up by the push pipeline.
type Notification struct {
	BaseModel
	UserID           uuid.UUID `gorm:"type:uuid;index" json:"user_id"`
	Title            string    `json:"title"`
	Message          string    `json:"message"`
	Type             string    `gorm:"size:32" json:"type"`
	RelatedPaymentID string    `gorm:"index" json:"related_payment_id"`
	IsRead           bool      `json:"is_read"`
}
