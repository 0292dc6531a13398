package controllers

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/roteira-app/roteira/app/models"
	"github.com/roteira-app/roteira/app/repository"
	"github.com/roteira-app/roteira/internal/pkg/database"
	"github.com/roteira-app/roteira/internal/pkg/jobqueue"
	"github.com/roteira-app/roteira/internal/pkg/payments"
	"github.com/roteira-app/roteira/internal/pkg/statistics"
)

// HandleAdminListUsers returns users with purchase and usage statistics.
func HandleAdminListUsers(c *fiber.Ctx) error {
	repo := repository.GetGlobalFactory().GetUserRepository()

	if query := strings.TrimSpace(c.Query("q")); query != "" {
		users, err := repo.SearchWithStats(query)
		if err != nil {
			return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "User search failed")
		}
		return c.JSON(fiber.Map{"users": users})
	}

	offset, limit := parsePagination(c)
	users, err := repo.GetWithStats(offset, limit)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load users")
	}
	total, err := repo.Count()
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to count users")
	}

	return c.JSON(fiber.Map{"users": users, "total": total})
}

// HandleAdminListLeads returns the quiz-funnel leads, optionally filtered by status.
func HandleAdminListLeads(c *fiber.Ctx) error {
	repo := repository.GetGlobalFactory().GetLeadRepository()

	if query := strings.TrimSpace(c.Query("q")); query != "" {
		leads, err := repo.Search(query)
		if err != nil {
			return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Lead search failed")
		}
		return c.JSON(fiber.Map{"leads": leads})
	}

	offset, limit := parsePagination(c)
	status := strings.TrimSpace(c.Query("status"))

	var (
		leads []models.Lead
		total int64
		err   error
	)
	if status != "" {
		leads, err = repo.ListByStatus(status, offset, limit)
		if err == nil {
			total, err = repo.CountByStatus(status)
		}
	} else {
		leads, err = repo.List(offset, limit)
		if err == nil {
			total, err = repo.Count()
		}
	}
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load leads")
	}

	return c.JSON(fiber.Map{"leads": leads, "total": total})
}

type leadStatusRequest struct {
	Status string `json:"status"`
}

// HandleAdminUpdateLeadStatus moves a lead through the funnel.
func HandleAdminUpdateLeadStatus(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil || id == 0 {
		return jsonError(c, fiber.StatusBadRequest, "invalid_id", "Lead id must be numeric")
	}

	var req leadStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_body", "Malformed JSON body")
	}
	switch req.Status {
	case models.LeadStatusNew, models.LeadStatusContacted, models.LeadStatusConverted, models.LeadStatusDiscarded:
	default:
		return jsonError(c, fiber.StatusBadRequest, "invalid_status", "Unknown lead status")
	}

	repo := repository.GetGlobalFactory().GetLeadRepository()
	if _, err := repo.GetByID(uint(id)); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "Lead not found")
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load lead")
	}
	if err := repo.UpdateStatus(uint(id), req.Status); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to update lead")
	}

	return c.JSON(fiber.Map{"ok": true})
}

// HandleAdminDeleteLead removes a lead from the CRM.
func HandleAdminDeleteLead(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil || id == 0 {
		return jsonError(c, fiber.StatusBadRequest, "invalid_id", "Lead id must be numeric")
	}

	repo := repository.GetGlobalFactory().GetLeadRepository()
	if err := repo.Delete(uint(id)); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to delete lead")
	}

	return c.JSON(fiber.Map{"ok": true})
}

// HandleAdminListPurchases returns the purchase intent ledger, newest first.
func HandleAdminListPurchases(c *fiber.Ctx) error {
	offset, limit := parsePagination(c)

	repo := payments.NewRepository(database.GetDB())
	intents, err := repo.ListIntents(offset, limit)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load purchases")
	}

	return c.JSON(fiber.Map{"purchases": intents})
}

// HandleAdminDashboardStats returns daily signup and lead counts for charts.
func HandleAdminDashboardStats(c *fiber.Ctx) error {
	days, _ := strconv.Atoi(c.Query("days", "30"))
	if days < 1 || days > 365 {
		days = 30
	}
	end := time.Now()
	start := end.AddDate(0, 0, -days)

	repos := repository.GetGlobalRepositories()
	userStats, err := repos.User.GetDailyStats(start, end)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load user stats")
	}
	leadStats, err := repos.Lead.GetDailyStats(start, end)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load lead stats")
	}

	totals := statistics.GetStatisticsData()

	return c.JSON(fiber.Map{
		"users": userStats,
		"leads": leadStats,
		"totals": fiber.Map{
			"users":           totals.TotalUsers,
			"leads":           totals.TotalLeads,
			"today_purchases": totals.TodayPurchases,
		},
	})
}

// HandleAdminPendingSweep triggers one pending-payment sweep immediately.
func HandleAdminPendingSweep(c *fiber.Ctx) error {
	if err := jobqueue.GetManager().RunPendingSweepOnce(); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Pending sweep failed")
	}
	return c.JSON(fiber.Map{"ok": true})
}
