package repository

import (
	"fmt"
	"strings"
	"time"

	"github.com/roteira-app/roteira/app/models"
	"gorm.io/gorm"
)

// leadRepository implements the LeadRepository interface
type leadRepository struct {
	db *gorm.DB
}

// NewLeadRepository creates a new lead repository instance
func NewLeadRepository(db *gorm.DB) LeadRepository {
	return &leadRepository{db: db}
}

// Create creates a new lead in the database
func (r *leadRepository) Create(lead *models.Lead) error {
	return r.db.Create(lead).Error
}

// GetByID retrieves a lead by its ID
func (r *leadRepository) GetByID(id uint) (*models.Lead, error) {
	var lead models.Lead
	err := r.db.First(&lead, id).Error
	if err != nil {
		return nil, err
	}
	return &lead, nil
}

// GetByEmail retrieves all leads submitted under an email address
func (r *leadRepository) GetByEmail(email string) ([]models.Lead, error) {
	var leads []models.Lead
	err := r.db.Where("email = ?", email).Order("created_at DESC").Find(&leads).Error
	return leads, err
}

// List retrieves a paginated list of leads, newest first
func (r *leadRepository) List(offset, limit int) ([]models.Lead, error) {
	var leads []models.Lead
	err := r.db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&leads).Error
	return leads, err
}

// ListByStatus retrieves a paginated list of leads in a funnel status
func (r *leadRepository) ListByStatus(status string, offset, limit int) ([]models.Lead, error) {
	var leads []models.Lead
	err := r.db.Where("status = ?", status).
		Order("created_at DESC").Offset(offset).Limit(limit).Find(&leads).Error
	return leads, err
}

// UpdateStatus moves a lead through the funnel (new, contacted, converted, discarded)
func (r *leadRepository) UpdateStatus(id uint, status string) error {
	return r.db.Model(&models.Lead{}).Where("id = ?", id).
		UpdateColumn("status", status).Error
}

// Delete soft deletes a lead by its ID
func (r *leadRepository) Delete(id uint) error {
	return r.db.Delete(&models.Lead{}, id).Error
}

// Count returns the total number of leads
func (r *leadRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.Lead{}).Count(&count).Error
	return count, err
}

// CountByStatus returns the number of leads in a funnel status
func (r *leadRepository) CountByStatus(status string) (int64, error) {
	var count int64
	err := r.db.Model(&models.Lead{}).Where("status = ?", status).Count(&count).Error
	return count, err
}

// Search searches for leads by name, email or destination
func (r *leadRepository) Search(query string) ([]models.Lead, error) {
	var leads []models.Lead
	searchPattern := "%" + strings.TrimSpace(query) + "%"
	err := r.db.Where("name LIKE ? OR email LIKE ? OR destination LIKE ?",
		searchPattern, searchPattern, searchPattern).Find(&leads).Error
	return leads, err
}

// GetDailyStats returns daily lead submission statistics for a date range
func (r *leadRepository) GetDailyStats(startDate, endDate time.Time) ([]models.DailyStats, error) {
	var results []struct {
		Date  string `json:"date"`
		Count int64  `json:"count"`
	}

	err := r.db.Model(&models.Lead{}).
		Select("DATE_FORMAT(created_at, '%Y-%m-%d') as date, COUNT(*) as count").
		Where("created_at BETWEEN ? AND ?", startDate, endDate).
		Group("DATE_FORMAT(created_at, '%Y-%m-%d')").
		Order("date").
		Find(&results).Error

	if err != nil {
		return nil, fmt.Errorf("failed to get daily lead stats: %w", err)
	}

	dailyStats := make([]models.DailyStats, len(results))
	for i, result := range results {
		dailyStats[i] = models.DailyStats{
			Date:  result.Date,
			Count: int(result.Count),
		}
	}

	return dailyStats, nil
}
