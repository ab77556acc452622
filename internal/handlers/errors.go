package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/example/newport/internal/middleware"
	"github.com/example/newport/internal/services"
)

var kindStatus = map[services.ErrorKind]int{
	services.KindInvalidArgument:    fiber.StatusBadRequest,
	services.KindInvalidAmount:      fiber.StatusBadRequest,
	services.KindUnauthorized:       fiber.StatusUnauthorized,
	services.KindPermissionDenied:   fiber.StatusForbidden,
	services.KindNotFound:           fiber.StatusNotFound,
	services.KindFailedPrecondition: fiber.StatusConflict,
	services.KindInvalidState:       fiber.StatusConflict,
	services.KindAlreadyProcessed:   fiber.StatusConflict,
	services.KindInternal:           fiber.StatusInternalServerError,
}

// writeServiceError renders err as {success: false, error: {code, message}}.
// Untyped errors become internal errors and their details stay in the log.
func writeServiceError(c *fiber.Ctx, err error) error {
	var svcErr *services.Error
	if !errors.As(err, &svcErr) {
		svcErr = &services.Error{Kind: services.KindInternal, Message: "Internal error", Err: err}
	}
	if svcErr.Kind == services.KindInternal {
		log.WithError(err).WithField("path", c.Path()).Error("Request failed")
	}

	status, ok := kindStatus[svcErr.Kind]
	if !ok {
		status = fiber.StatusInternalServerError
	}

	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error": fiber.Map{
			"code":    svcErr.Kind,
			"message": svcErr.Message,
		},
	})
}

func badRequest(c *fiber.Ctx, message string) error {
	return writeServiceError(c, &services.Error{Kind: services.KindInvalidArgument, Message: message})
}

// currentUser returns the authenticated user or an unauthenticated error
// when the route was mounted without AuthMiddleware.
func currentUser(c *fiber.Ctx) (uuid.UUID, error) {
	id, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return uuid.Nil, &services.Error{Kind: services.KindUnauthorized, Message: "unauthenticated"}
	}
	return id, nil
}
