package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// PaymentStatus is the lifecycle status of a user-initiated payment.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusCompleted  PaymentStatus = "completed"
	PaymentStatusCancelled  PaymentStatus = "cancelled"
)

// Terminal reports whether no further gateway operation may start on the payment.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusCancelled
}

// Payment is a bill a resident pays for an apartment through the Payme checkout.
// Amount is kept in sum; the gateway works in tiyin (Amount * 100).
type Payment struct {
	ID                   string         `gorm:"primaryKey;size:64" json:"id"`
	UserID               uuid.UUID      `gorm:"type:uuid;index" json:"user_id"`
	ApartmentID          string         `gorm:"index" json:"apartment_id"`
	ApartmentNumber      string         `json:"apartment_number"`
	BlockID              string         `json:"block_id"`
	Amount               int64          `json:"amount"`
	Description          string         `json:"description"`
	Status               PaymentStatus  `gorm:"index;size:16" json:"status"`
	IdempotencyKey       string         `gorm:"index;size:64" json:"idempotency_key"`
	ActiveIdempotencyKey *string        `gorm:"uniqueIndex;size:64" json:"-"`
	CheckoutURL          string         `json:"checkout_url"`
	GatewayParams        datatypes.JSON `json:"gateway_params"`
	GatewayTransactionID *string        `gorm:"index" json:"gateway_transaction_id"`
	UserName             string         `json:"user_name"`
	UserPhone            string         `json:"user_phone"`
	MerchantID           string         `json:"merchant_id"`
	CreatedAt            time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
	CompletedAt          *time.Time     `json:"completed_at"`
	CancelledAt          *time.Time     `json:"cancelled_at"`
	CancelReason         *CancelReason  `json:"cancel_reason"`
}

// MinorAmount returns the amount in the gateway's minor units.
func (p *Payment) MinorAmount() int64 {
	return p.Amount * 100
}

// ApartmentLabel renders the "<block>-<number>" label shown to payers.
func (p *Payment) ApartmentLabel() string {
	return p.BlockID + "-" + p.ApartmentNumber
}
