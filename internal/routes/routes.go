package routes

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/newport/internal/config"
	"github.com/example/newport/internal/directory"
	"github.com/example/newport/internal/handlers"
	"github.com/example/newport/internal/metrics"
	"github.com/example/newport/internal/middleware"
	"github.com/example/newport/internal/services"
)

// Register wires up all HTTP routes.
func Register(app *fiber.App, db *gorm.DB, cfg *config.Config, events services.Publisher, cache services.IdempotencyCache) {
	dir := directory.New(db)
	checkout := services.NewCheckoutBuilder(cfg.PaymeMerchantID, cfg.PaymeCheckoutURL)
	signer := services.NewInviteSigner(cfg.InviteSecret)

	paymeService := services.NewPaymeService(db, events, cache)
	paymentService := services.NewPaymentService(db, dir, checkout, cache, events)
	inviteService := services.NewInviteService(db, dir, signer, cfg.InviteBaseURL, cfg.InviteTTL)

	authHandler := handlers.NewAuthHandler(db, cfg)
	profileHandler := handlers.NewProfileHandler(db)
	paymeHandler := handlers.NewPaymeHandler(paymeService)
	paymentHandler := handlers.NewPaymentHandler(paymentService)
	inviteHandler := handlers.NewInviteHandler(inviteService)

	app.Get("/health", func(c *fiber.Ctx) error {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.UserContext())
		}
		if err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", metrics.Handler())

	api := app.Group("/api")

	// Auth routes
	auth := api.Group("/auth")
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)

	// Payme Merchant API webhook
	payme := api.Group("/payme")
	payme.Post("/pay", middleware.PaymeAuthMiddleware(cfg.PaymeLogin, cfg.PaymeMerchantKey), paymeHandler.Pay)
	payme.All("/pay", paymeHandler.MethodNotAllowed)

	api.Get("/invites/:id/verify", inviteHandler.Verify)

	// Protected routes
	protected := api.Group("", middleware.AuthMiddleware(cfg.JWTSecret))

	protected.Get("/profile", profileHandler.GetProfile)
	protected.Put("/profile", profileHandler.UpdateProfile)
	protected.Get("/notifications", profileHandler.ListNotifications)
	protected.Patch("/notifications/:id/read", profileHandler.MarkNotificationRead)

	protected.Post("/payments", paymentHandler.CreatePayment)
	protected.Get("/payments", paymentHandler.History)

	protected.Post("/invites", inviteHandler.Create)
	protected.Post("/invites/:id/consume", inviteHandler.Consume)
	protected.Post("/invites/:id/revoke", inviteHandler.Revoke)
}
