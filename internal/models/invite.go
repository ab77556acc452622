package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// InviteStatus only moves forward: pending -> consumed | revoked | expired.
type InviteStatus string

const (
	InviteStatusPending  InviteStatus = "pending"
	InviteStatusConsumed InviteStatus = "consumed"
	InviteStatusRevoked  InviteStatus = "revoked"
	InviteStatusExpired  InviteStatus = "expired"
)

// Invite is an expiring, signed, single-use capability granting family access
// to a set of apartments.
type Invite struct {
	BaseModel
	InviterID    uuid.UUID                   `gorm:"type:uuid;index" json:"inviter_id"`
	InviterRole  UserRole                    `gorm:"size:32" json:"inviter_role"`
	ApartmentIDs datatypes.JSONSlice[string] `json:"apartment_ids"`
	RoleToGrant  UserRole                    `gorm:"size:32" json:"role_to_grant"`
	ExpiresAt    int64                       `gorm:"index" json:"expires_at"`
	Signature    string                      `gorm:"size:16" json:"-"`
	Status       InviteStatus                `gorm:"index;size:16" json:"status"`
	UsedByID     *uuid.UUID                  `gorm:"type:uuid" json:"used_by_id"`
	UsedAt       *time.Time                  `json:"used_at"`
	RevokedAt    *time.Time                  `json:"revoked_at"`
}
