package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/newport/internal/config"
	"github.com/example/newport/internal/models"
	"github.com/example/newport/internal/services"
	"github.com/example/newport/internal/utils"
)

// AuthHandler bundles dependencies for authentication endpoints.
type AuthHandler struct {
	db  *gorm.DB
	cfg *config.Config
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(db *gorm.DB, cfg *config.Config) *AuthHandler {
	return &AuthHandler{db: db, cfg: cfg}
}

type registerRequest struct {
	FullName string          `json:"full_name"`
	Phone    string          `json:"phone"`
	Password string          `json:"password"`
	Role     models.UserRole `json:"role"`
}

var knownRoles = map[models.UserRole]bool{
	models.RoleOwner:      true,
	models.RoleRenter:     true,
	models.RoleFamilyFull: true,
	models.RoleGuest:      true,
}

// Register creates a resident profile and returns a session token.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	if req.Phone == "" || req.Password == "" || req.FullName == "" {
		return badRequest(c, "missing required fields")
	}
	if req.Role == "" {
		req.Role = models.RoleOwner
	}
	if !knownRoles[req.Role] {
		return badRequest(c, "unknown role")
	}

	var existing models.UserProfile
	err := h.db.WithContext(c.UserContext()).Where("phone = ?", req.Phone).First(&existing).Error
	if err == nil {
		return writeServiceError(c, &services.Error{Kind: services.KindFailedPrecondition, Message: "user already exists"})
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return writeServiceError(c, err)
	}

	passwordHash, err := utils.HashPassword(req.Password)
	if errors.Is(err, utils.ErrPasswordTooShort) {
		return badRequest(c, "password is too short")
	}
	if err != nil {
		return writeServiceError(c, err)
	}

	user := models.UserProfile{
		FullName:     req.FullName,
		Phone:        req.Phone,
		Role:         req.Role,
		PasswordHash: passwordHash,
	}
	if err := h.db.WithContext(c.UserContext()).Create(&user).Error; err != nil {
		return writeServiceError(c, err)
	}

	token, err := utils.GenerateToken(h.cfg.JWTSecret, user.ID, h.cfg.TokenExpires)
	if err != nil {
		return writeServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"user":    user,
		"token":   token,
	})
}

type loginRequest struct {
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

// Login authenticates an existing resident.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	invalid := &services.Error{Kind: services.KindUnauthorized, Message: "invalid credentials"}

	var user models.UserProfile
	if err := h.db.WithContext(c.UserContext()).Where("phone = ?", req.Phone).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return writeServiceError(c, invalid)
		}
		return writeServiceError(c, err)
	}

	if user.PasswordHash == "" || !utils.CheckPassword(user.PasswordHash, req.Password) {
		return writeServiceError(c, invalid)
	}

	token, err := utils.GenerateToken(h.cfg.JWTSecret, user.ID, h.cfg.TokenExpires)
	if err != nil {
		return writeServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"user":    user,
		"token":   token,
	})
}
