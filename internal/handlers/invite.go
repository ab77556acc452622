package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/example/newport/internal/services"
)

type InviteHandler struct {
	invites *services.InviteService
}

func NewInviteHandler(invites *services.InviteService) *InviteHandler {
	return &InviteHandler{invites: invites}
}

type createInviteRequest struct {
	ApartmentIDs []string `json:"apartmentIds"`
}

type consumeInviteRequest struct {
	Signature string `json:"signature"`
}

func (h *InviteHandler) Create(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return writeServiceError(c, err)
	}

	var req createInviteRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	res, err := h.invites.Create(c.UserContext(), userID, req.ApartmentIDs)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

// Verify is public so an invite link can be checked before sign-in.
func (h *InviteHandler) Verify(c *fiber.Ctx) error {
	res, err := h.invites.Verify(c.UserContext(), c.Params("id"), c.Query("sig"))
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(res)
}

func (h *InviteHandler) Consume(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return writeServiceError(c, err)
	}

	var req consumeInviteRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	res, err := h.invites.Consume(c.UserContext(), c.Params("id"), req.Signature, userID)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(res)
}

func (h *InviteHandler) Revoke(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return writeServiceError(c, err)
	}

	if err := h.invites.Revoke(c.UserContext(), c.Params("id"), userID); err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}
