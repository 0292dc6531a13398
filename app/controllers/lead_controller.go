package controllers

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/roteira-app/roteira/app/models"
	"github.com/roteira-app/roteira/app/repository"
	"github.com/roteira-app/roteira/internal/pkg/env"
	"github.com/roteira-app/roteira/internal/pkg/hcaptcha"
	counter "github.com/roteira-app/roteira/internal/pkg/metrics/counter"
	"github.com/roteira-app/roteira/internal/pkg/statistics"
)

type leadRequest struct {
	Name            string          `json:"name"`
	Email           string          `json:"email"`
	WhatsAppNumber  string          `json:"whatsapp_number"`
	Destination     string          `json:"destination"`
	TravelStart     string          `json:"travel_start"`
	TravelEnd       string          `json:"travel_end"`
	BudgetCents     int64           `json:"budget_cents"`
	TravelerProfile string          `json:"traveler_profile"`
	QuizAnswers     json.RawMessage `json:"quiz_answers"`
	CaptchaToken    string          `json:"h_captcha_response"`
}

// HandleCreateLead ingests a travel-quiz funnel submission.
func HandleCreateLead(c *fiber.Ctx) error {
	var req leadRequest
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

	lead := &models.Lead{
		Name:            req.Name,
		Email:           req.Email,
		WhatsAppNumber:  req.WhatsAppNumber,
		Destination:     req.Destination,
		BudgetCents:     req.BudgetCents,
		TravelerProfile: req.TravelerProfile,
		QuizAnswersJSON: string(req.QuizAnswers),
		Status:          models.LeadStatusNew,
	}
	if t, err := parseDate(req.TravelStart); err == nil {
		lead.TravelStart = t
	}
	if t, err := parseDate(req.TravelEnd); err == nil {
		lead.TravelEnd = t
	}

	if err := lead.Validate(); err != nil {
		return jsonError(c, fiber.StatusUnprocessableEntity, "validation_failed", err.Error())
	}

	repo := repository.GetGlobalFactory().GetLeadRepository()
	if err := repo.Create(lead); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to store lead")
	}

	statistics.ResetCacheUpdateTimer()

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": lead.ID})
}

// HandleLeadQuizStep records quiz progress for funnel analytics. Buffered in
// Redis; the background flush applies it to the lead row.
func HandleLeadQuizStep(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil || id == 0 {
		return jsonError(c, fiber.StatusBadRequest, "invalid_id", "Lead id must be numeric")
	}

	if err := counter.AddLeadQuizStep(uint(id)); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to record quiz step")
	}

	return c.JSON(fiber.Map{"ok": true})
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, fmt.Errorf("empty date")
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
