package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

const (
	LeadStatusNew       = "new"
	LeadStatusContacted = "contacted"
	LeadStatusConverted = "converted"
	LeadStatusDiscarded = "discarded"
)

// Lead is a travel-quiz funnel submission surfaced in the admin CRM.
type Lead struct {
	ID                 uint           `gorm:"primaryKey" json:"id"`
	Name               string         `gorm:"type:varchar(150);not null" json:"name" validate:"required,min=2,max=150"`
	Email              string         `gorm:"type:varchar(200);not null;index" json:"email" validate:"required,email,max=200"`
	WhatsAppNumber     string         `gorm:"type:varchar(32);default:null" json:"whatsapp_number" validate:"max=32"`
	Destination        string         `gorm:"type:varchar(150)" json:"destination" validate:"max=150"`
	TravelStart        *time.Time     `gorm:"type:date;default:null" json:"travel_start,omitempty"`
	TravelEnd          *time.Time     `gorm:"type:date;default:null" json:"travel_end,omitempty"`
	BudgetCents        int64          `gorm:"default:0" json:"budget_cents" validate:"gte=0"`
	TravelerProfile    string         `gorm:"type:varchar(50)" json:"traveler_profile" validate:"max=50"`
	QuizAnswersJSON    string         `gorm:"type:longtext" json:"quiz_answers_json"`
	QuizStepsCompleted int64          `gorm:"not null;default:0" json:"quiz_steps_completed"`
	Status             string         `gorm:"type:varchar(20);not null;default:'new';index" json:"status"`
	CreatedAt          time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt          time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"-"`
}

func (l *Lead) Validate() error {
	v := validator.New()

	return v.Struct(l)
}
