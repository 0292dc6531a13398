package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/roteira-app/roteira/app/controllers"
	"github.com/roteira-app/roteira/internal/pkg/middleware"
)

func (h HttpRouter) registerAdminRoutes(app *fiber.App) {
	adminGroup := app.Group("/admin/api", middleware.RequireAdmin)

	// CRM
	adminGroup.Get("/users", controllers.HandleAdminListUsers)
	adminGroup.Get("/leads", controllers.HandleAdminListLeads)
	adminGroup.Post("/leads/:id/status", controllers.HandleAdminUpdateLeadStatus)
	adminGroup.Delete("/leads/:id", controllers.HandleAdminDeleteLead)

	// Billing
	adminGroup.Get("/purchases", controllers.HandleAdminListPurchases)
	adminGroup.Post("/purchases/sweep", controllers.HandleAdminPendingSweep)

	// Dashboard
	adminGroup.Get("/stats", controllers.HandleAdminDashboardStats)
}
