package entitlements

import (
	"time"

	"github.com/roteira-app/roteira/app/models"
	"gorm.io/gorm"
)

// Repository provides DB operations used by the ledger service. Every counter
// mutation is a single conditional UPDATE so that concurrent consumption by
// the same user (two tabs, double-submit) cannot double-spend: the losing
// statement matches zero rows and the caller sees a denial.
type Repository interface {
	GetByUserID(userID uint) (*models.EntitlementRecord, error)
	GetOrCreate(userID uint) (*models.EntitlementRecord, error)

	// ConsumeFreeItinerary increments free_itineraries_used while below limit.
	ConsumeFreeItinerary(userID uint, limit int) (bool, error)
	// ConsumePaidCredit decrements paid_credits while positive.
	ConsumePaidCredit(userID uint) (bool, error)
	// ConsumeChatMessage increments chat_messages_used while below limit.
	ConsumeChatMessage(userID uint, limit int) (bool, error)
	// ResetChatWindowIfElapsed zeroes the chat counter when the counting
	// window ended before cutoff. Guarded on the stored reset timestamp so
	// concurrent resets collapse into one.
	ResetChatWindowIfElapsed(userID uint, cutoff, windowStart time.Time) error

	// RecordItineraryGenerated bumps the lifetime counter shown in the CRM.
	RecordItineraryGenerated(userID uint, delta int64) error

	AddPaidCredits(userID uint, delta int) error
	SetSubscription(userID uint, subType string, expiresAt time.Time) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates an entitlements repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetByUserID(userID uint) (*models.EntitlementRecord, error) {
	var rec models.EntitlementRecord
	if err := r.db.Where("user_id = ?", userID).First(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *gormRepository) GetOrCreate(userID uint) (*models.EntitlementRecord, error) {
	return models.GetOrCreateEntitlementRecord(r.db, userID)
}

func (r *gormRepository) ConsumeFreeItinerary(userID uint, limit int) (bool, error) {
	tx := r.db.Model(&models.EntitlementRecord{}).
		Where("user_id = ? AND free_itineraries_used < ?", userID, limit).
		UpdateColumn("free_itineraries_used", gorm.Expr("free_itineraries_used + 1"))
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) ConsumePaidCredit(userID uint) (bool, error) {
	tx := r.db.Model(&models.EntitlementRecord{}).
		Where("user_id = ? AND paid_credits > 0", userID).
		UpdateColumn("paid_credits", gorm.Expr("paid_credits - 1"))
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) ConsumeChatMessage(userID uint, limit int) (bool, error) {
	tx := r.db.Model(&models.EntitlementRecord{}).
		Where("user_id = ? AND chat_messages_used < ?", userID, limit).
		UpdateColumn("chat_messages_used", gorm.Expr("chat_messages_used + 1"))
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) ResetChatWindowIfElapsed(userID uint, cutoff, windowStart time.Time) error {
	return r.db.Model(&models.EntitlementRecord{}).
		Where("user_id = ? AND chat_messages_reset_at <= ?", userID, cutoff).
		Updates(map[string]interface{}{
			"chat_messages_used":     0,
			"chat_messages_reset_at": windowStart,
		}).Error
}

func (r *gormRepository) RecordItineraryGenerated(userID uint, delta int64) error {
	return r.db.Model(&models.EntitlementRecord{}).
		Where("user_id = ?", userID).
		UpdateColumn("lifetime_itineraries", gorm.Expr("lifetime_itineraries + ?", delta)).Error
}

func (r *gormRepository) AddPaidCredits(userID uint, delta int) error {
	return r.db.Model(&models.EntitlementRecord{}).
		Where("user_id = ?", userID).
		UpdateColumn("paid_credits", gorm.Expr("paid_credits + ?", delta)).Error
}

func (r *gormRepository) SetSubscription(userID uint, subType string, expiresAt time.Time) error {
	return r.db.Model(&models.EntitlementRecord{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"subscription_type":       subType,
			"subscription_expires_at": expiresAt,
		}).Error
}
