package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/example/newport/internal/directory"
	"github.com/example/newport/internal/models"
)

// InviteService manages family invite records. Granting the membership
// itself belongs to the directory owners and is not done here.
type InviteService struct {
	db      *gorm.DB
	dir     *directory.Directory
	signer  *InviteSigner
	baseURL string
	ttl     time.Duration
	now     func() time.Time
}

func NewInviteService(db *gorm.DB, dir *directory.Directory, signer *InviteSigner, baseURL string, ttl time.Duration) *InviteService {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &InviteService{
		db:      db,
		dir:     dir,
		signer:  signer,
		baseURL: baseURL,
		ttl:     ttl,
		now:     time.Now,
	}
}

type CreateInviteResult struct {
	Success        bool   `json:"success"`
	InviteID       string `json:"inviteId"`
	InviteURL      string `json:"inviteUrl"`
	ExpiresAt      int64  `json:"expiresAt"`
	ApartmentCount int    `json:"apartmentCount"`
}

type VerifyInviteResult struct {
	Valid     bool                `json:"valid"`
	Status    models.InviteStatus `json:"status"`
	ExpiresAt int64               `json:"expiresAt"`
}

type ConsumeInviteResult struct {
	Success      bool     `json:"success"`
	ApartmentIDs []string `json:"apartmentIds"`
	RoleToGrant  string   `json:"roleToGrant"`
}

// Create issues a signed invite for the subset of apartmentIDs the inviter owns.
func (s *InviteService) Create(ctx context.Context, inviterID uuid.UUID, apartmentIDs []string) (*CreateInviteResult, error) {
	if len(apartmentIDs) == 0 {
		return nil, newError(KindInvalidArgument, "No apartments selected")
	}

	owned, err := s.dir.OwnedApartments(ctx, inviterID.String(), apartmentIDs)
	if err != nil {
		return nil, internalError("Failed to create invitation", err)
	}
	if len(owned) == 0 {
		return nil, newError(KindPermissionDenied, "No valid apartments found")
	}

	role, err := s.inviterRole(ctx, inviterID)
	if err != nil {
		return nil, internalError("Failed to create invitation", err)
	}
	if !role.CanInvite() {
		return nil, newError(KindPermissionDenied, "User does not have permission to create invitations")
	}

	invite := models.Invite{
		InviterID:    inviterID,
		InviterRole:  role,
		ApartmentIDs: datatypes.JSONSlice[string](owned),
		RoleToGrant:  models.RoleFamilyFull,
		ExpiresAt:    s.now().Add(s.ttl).UnixMilli(),
		Status:       models.InviteStatusPending,
	}
	invite.ID = uuid.New()
	invite.Signature = s.signer.Sign(invite.ID.String(), invite.ExpiresAt)

	if err := s.db.WithContext(ctx).Create(&invite).Error; err != nil {
		return nil, internalError("Failed to create invitation", fmt.Errorf("insert invite: %w", err))
	}

	log.WithFields(log.Fields{
		"invite_id":  invite.ID,
		"inviter_id": inviterID,
		"apartments": len(owned),
	}).Info("Created invitation")

	return &CreateInviteResult{
		Success:        true,
		InviteID:       invite.ID.String(),
		InviteURL:      fmt.Sprintf("%s/invite/%s?sig=%s", s.baseURL, invite.ID, invite.Signature),
		ExpiresAt:      invite.ExpiresAt,
		ApartmentCount: len(owned),
	}, nil
}

// inviterRole falls back to owner when the profile is missing or has no
// role; callers have already proved ownership of at least one apartment.
func (s *InviteService) inviterRole(ctx context.Context, userID uuid.UUID) (models.UserRole, error) {
	profile, err := s.dir.Profile(ctx, userID)
	if errors.Is(err, directory.ErrNotFound) {
		return models.RoleOwner, nil
	}
	if err != nil {
		return "", err
	}
	if profile.Role == "" {
		return models.RoleOwner, nil
	}
	return profile.Role, nil
}

// Verify checks an invite link. A pending invite past its expiry is marked
// expired on the way.
func (s *InviteService) Verify(ctx context.Context, inviteID, signature string) (*VerifyInviteResult, error) {
	invite, err := s.find(ctx, inviteID)
	if err != nil {
		return nil, err
	}

	if invite.Status == models.InviteStatusPending && s.expired(invite) {
		if err := s.markExpired(ctx, invite.ID); err != nil {
			return nil, internalError("Failed to verify invitation", err)
		}
		invite.Status = models.InviteStatusExpired
	}

	valid := invite.Status == models.InviteStatusPending &&
		s.signer.Verify(invite.ID.String(), invite.ExpiresAt, signature)

	return &VerifyInviteResult{
		Valid:     valid,
		Status:    invite.Status,
		ExpiresAt: invite.ExpiresAt,
	}, nil
}

// Consume redeems a pending invite exactly once.
func (s *InviteService) Consume(ctx context.Context, inviteID, signature string, userID uuid.UUID) (*ConsumeInviteResult, error) {
	if signature == "" {
		return nil, newError(KindInvalidArgument, "Missing required fields")
	}

	invite, err := s.find(ctx, inviteID)
	if err != nil {
		return nil, err
	}
	if invite.Status != models.InviteStatusPending {
		return nil, newError(KindFailedPrecondition, "Invitation already used or revoked")
	}
	if s.expired(invite) {
		if err := s.markExpired(ctx, invite.ID); err != nil {
			return nil, internalError("Failed to accept invitation", err)
		}
		return nil, newError(KindFailedPrecondition, "Invitation has expired")
	}
	if !s.signer.Verify(invite.ID.String(), invite.ExpiresAt, signature) {
		return nil, newError(KindPermissionDenied, "Invalid invitation signature")
	}

	now := s.now()
	res := s.db.WithContext(ctx).Model(&models.Invite{}).
		Where("id = ? AND status = ?", invite.ID, models.InviteStatusPending).
		Updates(map[string]any{
			"status":     models.InviteStatusConsumed,
			"used_by_id": userID,
			"used_at":    now,
		})
	if res.Error != nil {
		return nil, internalError("Failed to accept invitation", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, newError(KindFailedPrecondition, "Invitation already used or revoked")
	}

	log.WithFields(log.Fields{
		"invite_id": invite.ID,
		"user_id":   userID,
	}).Info("Invitation consumed")

	return &ConsumeInviteResult{
		Success:      true,
		ApartmentIDs: invite.ApartmentIDs,
		RoleToGrant:  string(invite.RoleToGrant),
	}, nil
}

// Revoke cancels a pending invite. Only its inviter may do so.
func (s *InviteService) Revoke(ctx context.Context, inviteID string, userID uuid.UUID) error {
	invite, err := s.find(ctx, inviteID)
	if err != nil {
		return err
	}
	if invite.InviterID != userID {
		return newError(KindPermissionDenied, "Not authorized to revoke this invitation")
	}

	res := s.db.WithContext(ctx).Model(&models.Invite{}).
		Where("id = ? AND status = ?", invite.ID, models.InviteStatusPending).
		Updates(map[string]any{
			"status":     models.InviteStatusRevoked,
			"revoked_at": s.now(),
		})
	if res.Error != nil {
		return internalError("Failed to revoke invitation", res.Error)
	}
	if res.RowsAffected == 0 {
		return newError(KindFailedPrecondition, "Invitation cannot be revoked")
	}
	return nil
}

// ExpirePending marks up to limit pending invites past their expiry as
// expired and returns how many were changed.
func (s *InviteService) ExpirePending(ctx context.Context, limit int) (int64, error) {
	var ids []uuid.UUID
	if err := s.db.WithContext(ctx).Model(&models.Invite{}).
		Where("status = ? AND expires_at < ?", models.InviteStatusPending, s.now().UnixMilli()).
		Limit(limit).
		Pluck("id", &ids).Error; err != nil {
		return 0, fmt.Errorf("list expired invites: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	res := s.db.WithContext(ctx).Model(&models.Invite{}).
		Where("id IN ? AND status = ?", ids, models.InviteStatusPending).
		Update("status", models.InviteStatusExpired)
	if res.Error != nil {
		return 0, fmt.Errorf("expire invites: %w", res.Error)
	}

	log.WithField("count", res.RowsAffected).Info("Expired invitations cleaned up")
	return res.RowsAffected, nil
}

func (s *InviteService) find(ctx context.Context, inviteID string) (*models.Invite, error) {
	id, err := uuid.Parse(inviteID)
	if err != nil {
		return nil, newError(KindNotFound, "Invitation not found")
	}

	var invite models.Invite
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&invite).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newError(KindNotFound, "Invitation not found")
		}
		return nil, internalError("Failed to load invitation", err)
	}
	return &invite, nil
}

func (s *InviteService) expired(invite *models.Invite) bool {
	return s.now().UnixMilli() > invite.ExpiresAt
}

func (s *InviteService) markExpired(ctx context.Context, id uuid.UUID) error {
	return s.db.WithContext(ctx).Model(&models.Invite{}).
		Where("id = ? AND status = ?", id, models.InviteStatusPending).
		Update("status", models.InviteStatusExpired).Error
}
