package models

import (
	"time"

	"gorm.io/gorm"
)

// ProviderAccount links an OAuth identity (Google) to a local user.
type ProviderAccount struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	UserID         uint           `gorm:"index;not null" json:"user_id"`
	Provider       string         `gorm:"type:varchar(50);not null;uniqueIndex:idx_provider_account" json:"provider"`
	ProviderUserID string         `gorm:"type:varchar(191);not null;uniqueIndex:idx_provider_account" json:"provider_user_id"`
	AccessToken    string         `gorm:"type:text" json:"-"`
	RefreshToken   string         `gorm:"type:text" json:"-"`
	ExpiresAt      *time.Time     `gorm:"type:timestamp;default:null" json:"-"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}
