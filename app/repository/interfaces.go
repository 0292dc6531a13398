package repository

import (
	"time"

	"github.com/roteira-app/roteira/app/models"
	"gorm.io/gorm"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByActivationToken(token string) (*models.User, error)
	Update(user *models.User) error
	Delete(id uint) error
	List(offset, limit int) ([]models.User, error)
	Count() (int64, error)
	Search(query string) ([]models.User, error)
	GetWithStats(offset, limit int) ([]UserWithStats, error)
	SearchWithStats(query string) ([]UserWithStats, error)
	GetDailyStats(startDate, endDate time.Time) ([]models.DailyStats, error)
}

// LeadRepository defines the interface for quiz-funnel lead operations
type LeadRepository interface {
	Create(lead *models.Lead) error
	GetByID(id uint) (*models.Lead, error)
	GetByEmail(email string) ([]models.Lead, error)
	List(offset, limit int) ([]models.Lead, error)
	ListByStatus(status string, offset, limit int) ([]models.Lead, error)
	UpdateStatus(id uint, status string) error
	Delete(id uint) error
	Count() (int64, error)
	CountByStatus(status string) (int64, error)
	Search(query string) ([]models.Lead, error)
	GetDailyStats(startDate, endDate time.Time) ([]models.DailyStats, error)
}

// UserWithStats represents a user with purchase and usage statistics
type UserWithStats struct {
	User                models.User
	PaidCredits         int
	SubscriptionType    string
	LifetimeItineraries int64
	PurchaseCount       int64
}

// Repositories struct holds all repository instances
type Repositories struct {
	User UserRepository
	Lead LeadRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User: NewUserRepository(db),
		Lead: NewLeadRepository(db),
	}
}
