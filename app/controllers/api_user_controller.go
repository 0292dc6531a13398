package controllers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/roteira-app/roteira/app/models"
	"github.com/roteira-app/roteira/app/repository"
	"github.com/roteira-app/roteira/internal/pkg/database"
	"github.com/roteira-app/roteira/internal/pkg/entitlements"
	"github.com/roteira-app/roteira/internal/pkg/usercontext"
)

// HandleGetUserAccount returns account information for the authenticated user.
func HandleGetUserAccount(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Missing or invalid authentication")
	}

	repo := repository.GetGlobalFactory().GetUserRepository()
	account, err := repo.GetByID(userCtx.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "User not found")
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load user")
	}

	svc := entitlements.NewServiceFromDB(database.GetDB())
	snapshot, err := svc.Snapshot(c.Context(), userCtx.UserID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load entitlements")
	}

	return c.JSON(fiber.Map{
		"id":              account.ID,
		"name":            account.Name,
		"email":           account.Email,
		"status":          account.Status,
		"whatsapp_number": account.WhatsAppNumber,
		"home_airport":    account.HomeAirport,
		"is_admin":        account.Role == models.ROLE_ADMIN,
		"created_at":      account.CreatedAt.UTC().Format(time.RFC3339),
		"last_login_at":   formatTimePtr(account.LastLoginAt),
		"entitlements":    snapshot,
	})
}

type updateProfileRequest struct {
	Name           string `json:"name"`
	WhatsAppNumber string `json:"whatsapp_number"`
	HomeAirport    string `json:"home_airport"`
}

// HandleUpdateUserProfile updates the caller's travel profile fields.
func HandleUpdateUserProfile(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Missing or invalid authentication")
	}

	var req updateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_body", "Malformed JSON body")
	}

	repo := repository.GetGlobalFactory().GetUserRepository()
	account, err := repo.GetByID(userCtx.UserID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load user")
	}

	if req.Name != "" {
		account.Name = req.Name
	}
	account.WhatsAppNumber = req.WhatsAppNumber
	account.HomeAirport = req.HomeAirport

	if err := account.Validate(); err != nil {
		return jsonError(c, fiber.StatusUnprocessableEntity, "validation_failed", err.Error())
	}
	if err := repo.Update(account); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to update profile")
	}

	return c.JSON(fiber.Map{"ok": true})
}
