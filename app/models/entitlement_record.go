package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	SubscriptionNone    = "none"
	SubscriptionMonthly = "monthly"
	SubscriptionAnnual  = "annual"
)

// EntitlementRecord tracks per-user itinerary/chat allowances. Exactly one row
// exists per user, created lazily on first access. Counters are only mutated
// through conditional updates in the entitlements repository.
type EntitlementRecord struct {
	ID                    uint       `gorm:"primaryKey" json:"id"`
	UserID                uint       `gorm:"uniqueIndex;not null" json:"user_id"`
	FreeItinerariesUsed   int        `gorm:"not null;default:0" json:"free_itineraries_used"`
	PaidCredits           int        `gorm:"not null;default:0" json:"paid_credits"`
	ChatMessagesUsed      int        `gorm:"not null;default:0" json:"chat_messages_used"`
	ChatMessagesResetAt   time.Time  `gorm:"type:timestamp;not null" json:"chat_messages_reset_at"`
	SubscriptionType      string     `gorm:"type:varchar(16);not null;default:'none'" json:"subscription_type"`
	SubscriptionExpiresAt *time.Time `gorm:"type:timestamp;default:null" json:"subscription_expires_at,omitempty"`
	LifetimeItineraries   int64      `gorm:"not null;default:0" json:"lifetime_itineraries"`
	LifetimeChatMessages  int64      `gorm:"not null;default:0" json:"lifetime_chat_messages"`
	CreatedAt             time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// SubscriptionActive reports whether a subscription entitles the user at the
// given instant. A set type with a past expiry is inactive, not an error.
func (r *EntitlementRecord) SubscriptionActive(now time.Time) bool {
	if r == nil {
		return false
	}
	if r.SubscriptionType != SubscriptionMonthly && r.SubscriptionType != SubscriptionAnnual {
		return false
	}
	return r.SubscriptionExpiresAt != nil && now.Before(*r.SubscriptionExpiresAt)
}

// GetOrCreateEntitlementRecord returns the existing record or creates the
// default one. First visit grants the free allowance implicitly by starting
// all counters at zero.
func GetOrCreateEntitlementRecord(db *gorm.DB, userID uint) (*EntitlementRecord, error) {
	var rec EntitlementRecord
	if err := db.Where("user_id = ?", userID).First(&rec).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			rec = EntitlementRecord{
				UserID:              userID,
				SubscriptionType:    SubscriptionNone,
				ChatMessagesResetAt: time.Now(),
			}
			if createErr := db.Create(&rec).Error; createErr != nil {
				// A concurrent first request may have created the row between
				// the lookup and the insert; the unique index makes the loser
				// fail, so re-read instead of surfacing the conflict.
				if err := db.Where("user_id = ?", userID).First(&rec).Error; err != nil {
					return nil, createErr
				}
			}
			return &rec, nil
		}
		return nil, err
	}
	return &rec, nil
}
