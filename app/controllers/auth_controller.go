package controllers

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/roteira-app/roteira/app/models"
	"github.com/roteira-app/roteira/app/repository"
	"github.com/roteira-app/roteira/internal/pkg/database"
	"github.com/roteira-app/roteira/internal/pkg/env"
	"github.com/roteira-app/roteira/internal/pkg/hcaptcha"
	"github.com/roteira-app/roteira/internal/pkg/mail"
	"github.com/roteira-app/roteira/internal/pkg/session"
	"github.com/roteira-app/roteira/internal/pkg/statistics"
)

type registerRequest struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	Password      string `json:"password"`
	CaptchaToken  string `json:"h_captcha_response"`
	WhatsAppPhone string `json:"whatsapp_number"`
	HomeAirport   string `json:"home_airport"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleAuthRegister creates a new account and sends the activation mail.
func HandleAuthRegister(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_body", "Malformed JSON body")
	}

	valid, err := hcaptcha.Verify(req.CaptchaToken)
	if err != nil || !valid {
		msg := "Captcha validation failed. Please try again."
		if err != nil && env.IsDev() {
			msg = fmt.Sprintf("Captcha validation failed: %v", err)
		}
		return jsonError(c, fiber.StatusBadRequest, "captcha_failed", msg)
	}

	user, err := models.CreateUser(req.Name, req.Email, req.Password)
	if err != nil {
		return jsonError(c, fiber.StatusUnprocessableEntity, "validation_failed", err.Error())
	}
	user.WhatsAppNumber = req.WhatsAppPhone
	user.HomeAirport = req.HomeAirport
	if err := user.GenerateActivationToken(); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to prepare activation")
	}
	user.Status = models.STATUS_INACTIVE

	repo := repository.GetGlobalFactory().GetUserRepository()
	if err := repo.Create(user); err != nil {
		return jsonError(c, fiber.StatusConflict, "email_taken", "An account with this email already exists")
	}

	go sendActivationMail(user)
	statistics.ResetCacheUpdateTimer()

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":    user.ID,
		"email": user.Email,
	})
}

// HandleAuthActivate activates an account from the emailed token.
func HandleAuthActivate(c *fiber.Ctx) error {
	token := c.Query("token")
	if token == "" {
		return jsonError(c, fiber.StatusBadRequest, "missing_token", "Activation token is required")
	}

	repo := repository.GetGlobalFactory().GetUserRepository()
	user, err := repo.GetByActivationToken(token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusNotFound, "invalid_token", "Activation token is invalid")
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Activation failed")
	}

	user.Status = models.STATUS_ACTIVE
	user.ActivationToken = ""
	if err := repo.Update(user); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Activation failed")
	}

	return c.JSON(fiber.Map{"ok": true})
}

// HandleAuthLogin verifies credentials and opens a session.
func HandleAuthLogin(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_body", "Malformed JSON body")
	}

	// notice: do not inform the client which part of the credentials failed
	repo := repository.GetGlobalFactory().GetUserRepository()
	user, err := repo.GetByEmail(req.Email)
	if err != nil {
		return jsonError(c, fiber.StatusUnauthorized, "invalid_credentials", "Email or password is wrong")
	}
	if !user.CheckPassword(req.Password) {
		return jsonError(c, fiber.StatusUnauthorized, "invalid_credentials", "Email or password is wrong")
	}
	if !user.IsActive() {
		return jsonError(c, fiber.StatusForbidden, "account_inactive", "Account is not activated")
	}

	sess, err := session.GetSessionStore().Get(c)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Session could not be opened")
	}

	sess.Set(AUTH_KEY, true)
	sess.Set(USER_ID, user.ID)
	sess.Set(USER_NAME, user.Name)
	sess.Set(USER_IS_ADMIN, user.Role == models.ROLE_ADMIN)

	if err := sess.Save(); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Session could not be saved")
	}

	database.GetDB().Model(user).Update("last_login_at", time.Now())

	return c.JSON(fiber.Map{
		"id":       user.ID,
		"name":     user.Name,
		"email":    user.Email,
		"is_admin": user.Role == models.ROLE_ADMIN,
	})
}

// HandleAuthLogout destroys the current session.
func HandleAuthLogout(c *fiber.Ctx) error {
	sess, err := session.GetSessionStore().Get(c)
	if err != nil {
		return c.JSON(fiber.Map{"ok": true})
	}
	if err := sess.Destroy(); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Logout failed")
	}

	c.Locals(FROM_PROTECTED, false)

	return c.JSON(fiber.Map{"ok": true})
}

func sendActivationMail(user *models.User) {
	base := env.GetEnv("PUBLIC_DOMAIN", "http://localhost:4000")
	link := fmt.Sprintf("%s/activate?token=%s", base, user.ActivationToken)
	body := fmt.Sprintf(
		"<p>Olá %s,</p><p>Confirme sua conta na Roteira clicando no link abaixo:</p><p><a href=\"%s\">%s</a></p>",
		user.Name, link, link,
	)
	_ = mail.Send(mail.Message{To: user.Email, Subject: "Roteira - confirme sua conta", Body: body})
}
