package apiv1

import (
	"github.com/gofiber/fiber/v2"

	// Delegate to existing controllers to keep behavior consistent
	"github.com/roteira-app/roteira/app/controllers"
	"github.com/roteira-app/roteira/internal/pkg/middleware"
)

// APIServer groups the v1 handlers
type APIServer struct{}

// NewAPIServer creates a new API server instance
func NewAPIServer() *APIServer {
	return &APIServer{}
}

// Pong is the ping response body
type Pong struct {
	Ping string `json:"ping"`
}

// RegisterHandlers attaches the v1 routes to the given router group
func RegisterHandlers(v1 fiber.Router, s *APIServer) {
	v1.Get("/ping", s.GetPing)

	// Account
	v1.Get("/me", middleware.RequireAuth, s.GetUserAccount)
	v1.Patch("/me", middleware.RequireAuth, s.UpdateUserProfile)

	// Entitlement ledger
	v1.Get("/entitlements", middleware.RequireAuth, s.GetEntitlements)
	v1.Post("/entitlements/itinerary/consume", middleware.RequireAuth, s.ConsumeItinerary)
	v1.Post("/entitlements/chat/consume", middleware.RequireAuth, s.ConsumeChatMessage)

	// Billing
	v1.Get("/plans", s.ListPlans)
	v1.Post("/checkout", middleware.RequireAuth, s.StartCheckout)
	v1.Get("/purchases", middleware.RequireAuth, s.ListPurchases)

	// Lead funnel (public)
	v1.Post("/leads", s.CreateLead)
	v1.Post("/leads/:id/steps", s.RecordLeadQuizStep)
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	response := Pong{
		Ping: "pong",
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

func (s *APIServer) GetUserAccount(c *fiber.Ctx) error {
	return controllers.HandleGetUserAccount(c)
}

func (s *APIServer) UpdateUserProfile(c *fiber.Ctx) error {
	return controllers.HandleUpdateUserProfile(c)
}

func (s *APIServer) GetEntitlements(c *fiber.Ctx) error {
	return controllers.HandleGetEntitlements(c)
}

func (s *APIServer) ConsumeItinerary(c *fiber.Ctx) error {
	return controllers.HandleConsumeItinerary(c)
}

func (s *APIServer) ConsumeChatMessage(c *fiber.Ctx) error {
	return controllers.HandleConsumeChatMessage(c)
}

func (s *APIServer) ListPlans(c *fiber.Ctx) error {
	return controllers.HandleListPlans(c)
}

func (s *APIServer) StartCheckout(c *fiber.Ctx) error {
	return controllers.HandleCheckoutStart(c)
}

func (s *APIServer) ListPurchases(c *fiber.Ctx) error {
	return controllers.HandleListPurchases(c)
}

func (s *APIServer) CreateLead(c *fiber.Ctx) error {
	return controllers.HandleCreateLead(c)
}

func (s *APIServer) RecordLeadQuizStep(c *fiber.Ctx) error {
	return controllers.HandleLeadQuizStep(c)
}
