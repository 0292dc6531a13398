package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/roteira-app/roteira/internal/pkg/database"
	"github.com/roteira-app/roteira/internal/pkg/entitlements"
	counter "github.com/roteira-app/roteira/internal/pkg/metrics/counter"
	"github.com/roteira-app/roteira/internal/pkg/usercontext"
)

// HandleGetEntitlements returns the caller's ledger snapshot.
func HandleGetEntitlements(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "login required")
	}

	svc := entitlements.NewServiceFromDB(database.GetDB())
	snapshot, err := svc.Snapshot(c.Context(), userCtx.UserID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load entitlements")
	}

	return c.JSON(snapshot)
}

// HandleConsumeItinerary spends one itinerary unit for the caller. The spend
// is validated and applied server side in a single conditional statement, so
// parallel requests cannot overspend.
func HandleConsumeItinerary(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "login required")
	}

	svc := entitlements.NewServiceFromDB(database.GetDB())
	allowed, err := svc.ConsumeItineraryCredit(c.Context(), userCtx.UserID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to consume itinerary credit")
	}
	if !allowed {
		return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{
			"error":   "quota_exhausted",
			"message": "No itinerary credits left; purchase credits or subscribe",
		})
	}

	snapshot, err := svc.Snapshot(c.Context(), userCtx.UserID)
	if err != nil {
		// The spend succeeded; report it even if the fresh snapshot failed.
		return c.JSON(fiber.Map{"consumed": true})
	}
	return c.JSON(fiber.Map{"consumed": true, "entitlements": snapshot})
}

// HandleConsumeChatMessage counts one chat message against the caller's quota.
func HandleConsumeChatMessage(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "login required")
	}

	svc := entitlements.NewServiceFromDB(database.GetDB())
	allowed, err := svc.ConsumeChatMessage(c.Context(), userCtx.UserID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to consume chat message")
	}
	if !allowed {
		return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{
			"error":   "quota_exhausted",
			"message": "Chat message quota exhausted for this window",
		})
	}

	// Lifetime analytics counter, buffered in Redis and flushed in background.
	_ = counter.AddChatMessage(userCtx.UserID)

	return c.JSON(fiber.Map{"consumed": true})
}
