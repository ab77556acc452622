package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/newport/internal/models"
	"github.com/example/newport/internal/services"
	"github.com/example/newport/internal/utils"
)

const (
	defaultNotificationLimit = 20
	maxNotificationLimit     = 100
)

// ProfileHandler manages the resident's own profile and notification inbox.
type ProfileHandler struct {
	db *gorm.DB
}

// NewProfileHandler constructs ProfileHandler.
func NewProfileHandler(db *gorm.DB) *ProfileHandler {
	return &ProfileHandler{db: db}
}

// GetProfile returns the authenticated resident.
func (h *ProfileHandler) GetProfile(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return writeServiceError(c, err)
	}

	var user models.UserProfile
	if err := h.db.WithContext(c.UserContext()).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return writeServiceError(c, &services.Error{Kind: services.KindNotFound, Message: "user not found"})
		}
		return writeServiceError(c, err)
	}

	return c.JSON(fiber.Map{"success": true, "user": user})
}

type updateProfileRequest struct {
	FullName string `json:"full_name"`
}

// UpdateProfile changes the resident's display name.
func (h *ProfileHandler) UpdateProfile(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return writeServiceError(c, err)
	}

	var req updateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	name := strings.TrimSpace(req.FullName)
	if name == "" {
		return badRequest(c, "no fields to update")
	}

	res := h.db.WithContext(c.UserContext()).Model(&models.UserProfile{}).
		Where("id = ?", userID).
		Update("full_name", name)
	if res.Error != nil {
		return writeServiceError(c, res.Error)
	}
	if res.RowsAffected == 0 {
		return writeServiceError(c, &services.Error{Kind: services.KindNotFound, Message: "user not found"})
	}

	return c.JSON(fiber.Map{"success": true, "message": "profile updated"})
}

// ListNotifications returns the resident's inbox, newest first.
func (h *ProfileHandler) ListNotifications(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return writeServiceError(c, err)
	}

	pg := utils.ParsePagination(c, defaultNotificationLimit, maxNotificationLimit)
	query := h.db.WithContext(c.UserContext()).Where("user_id = ?", userID)
	if c.QueryBool("unread") {
		query = query.Where("is_read = ?", false)
	}

	var notifications []models.Notification
	if err := query.Order("created_at desc").Limit(pg.Limit).Offset(pg.Offset).Find(&notifications).Error; err != nil {
		return writeServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"success":       true,
		"notifications": notifications,
		"page":          pg.Page,
		"limit":         pg.Limit,
	})
}

// MarkNotificationRead flags one of the resident's notifications as read.
func (h *ProfileHandler) MarkNotificationRead(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return writeServiceError(c, err)
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid notification id")
	}

	res := h.db.WithContext(c.UserContext()).Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("is_read", true)
	if res.Error != nil {
		return writeServiceError(c, res.Error)
	}
	if res.RowsAffected == 0 {
		return writeServiceError(c, &services.Error{Kind: services.KindNotFound, Message: "notification not found"})
	}

	return c.JSON(fiber.Map{"success": true})
}
