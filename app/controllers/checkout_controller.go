package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/roteira-app/roteira/internal/pkg/database"
	"github.com/roteira-app/roteira/internal/pkg/payments"
	"github.com/roteira-app/roteira/internal/pkg/usercontext"
)

type checkoutRequest struct {
	PlanType string `json:"plan_type"`
}

// HandleListPlans returns the purchasable catalog.
func HandleListPlans(c *fiber.Ctx) error {
	plans := payments.Plans()
	out := make([]fiber.Map, 0, len(plans))
	for _, p := range plans {
		entry := fiber.Map{
			"type":         p.Type,
			"title":        p.Title,
			"amount_cents": p.AmountCents,
		}
		if p.IsSubscription() {
			entry["subscription_type"] = p.SubscriptionType
			entry["duration_months"] = p.DurationMonths
		} else {
			entry["credits"] = p.Credits
		}
		out = append(out, entry)
	}
	return c.JSON(fiber.Map{"plans": out})
}

// HandleCheckoutStart creates a pending purchase intent and returns the
// provider checkout URL for the redirect flow.
func HandleCheckoutStart(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "login required")
	}

	var req checkoutRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_body", "Malformed JSON body")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	svc := payments.NewCheckoutServiceFromDB(database.GetDB())
	session, err := svc.Start(ctx, userCtx.UserID, req.PlanType)
	if err != nil {
		if _, ok := payments.PlanByType(req.PlanType); !ok {
			return jsonError(c, fiber.StatusBadRequest, "unknown_plan", "Unknown plan type")
		}
		return jsonError(c, fiber.StatusBadGateway, "checkout_failed", "Checkout session could not be created")
	}

	return c.Status(fiber.StatusCreated).JSON(session)
}

// HandleListPurchases returns the caller's purchase history, newest first.
func HandleListPurchases(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "login required")
	}

	repo := payments.NewRepository(database.GetDB())
	intents, err := repo.ListIntentsByUser(userCtx.UserID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load purchases")
	}

	return c.JSON(fiber.Map{"purchases": intents})
}
