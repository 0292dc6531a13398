package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/roteira-app/roteira/app/controllers"
	"github.com/roteira-app/roteira/internal/pkg/middleware"
	gothfiber "github.com/shareed2k/goth_fiber"
)

func (h HttpRouter) registerPublicRoutes(app *fiber.App) {
	// Auth
	app.Post("/register", controllers.HandleAuthRegister)
	app.Get("/activate", controllers.HandleAuthActivate)
	app.Post("/login", controllers.HandleAuthLogin)
	app.Post("/logout", middleware.RequireAuth, controllers.HandleAuthLogout)

	// Social OAuth
	app.Get("/auth/:provider", gothfiber.BeginAuthHandler)
	app.Get("/auth/:provider/callback", controllers.HandleOAuthCallback)

	// Payment provider webhooks (no auth; authenticity is established by
	// fetching the payment back from the provider API)
	app.Post("/webhooks/mercadopago", controllers.HandleMercadoPagoWebhook)
}
