package payments

import (
	"time"

	"github.com/roteira-app/roteira/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the checkout flow and the
// webhook reconciler. Status transitions are conditional single statements:
// the reconciler only grants when the transition it attempted actually
// happened, which is what makes replayed webhooks at-most-once.
type Repository interface {
	CreateIntent(intent *models.PurchaseIntent) error
	SetPreferenceID(intentID uint, preferenceID string) error
	GetIntentByPreferenceID(preferenceID string) (*models.PurchaseIntent, error)
	GetIntentByReference(externalReference string) (*models.PurchaseIntent, error)
	ListIntentsByUser(userID uint) ([]models.PurchaseIntent, error)
	ListIntents(offset, limit int) ([]models.PurchaseIntent, error)
	// ListStalePendingIntents returns pending intents that already carry a
	// provider payment id but have not settled since before the cutoff.
	ListStalePendingIntents(olderThan time.Time, limit int) ([]models.PurchaseIntent, error)

	// CompleteIntent moves pending→completed. Reports whether this call won
	// the transition.
	CompleteIntent(intentID uint, paymentID string) (bool, error)
	// FailIntent moves pending→failed.
	FailIntent(intentID uint, paymentID string) (bool, error)
	// RefundIntent moves pending|completed→refunded; completed is reachable
	// again only by chargeback.
	RefundIntent(intentID uint, paymentID string) (bool, error)
	// BackfillPaymentID records the provider payment id on a still-pending
	// intent without changing its status.
	BackfillPaymentID(intentID uint, paymentID string) error

	CreateWebhookEventIfNotExists(event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error)
	MarkWebhookProcessed(id uint, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a payments repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreateIntent(intent *models.PurchaseIntent) error {
	return r.db.Create(intent).Error
}

func (r *gormRepository) SetPreferenceID(intentID uint, preferenceID string) error {
	return r.db.Model(&models.PurchaseIntent{}).
		Where("id = ?", intentID).
		UpdateColumn("provider_preference_id", preferenceID).Error
}

func (r *gormRepository) GetIntentByPreferenceID(preferenceID string) (*models.PurchaseIntent, error) {
	var intent models.PurchaseIntent
	err := r.db.Where("provider_preference_id = ?", preferenceID).First(&intent).Error
	if err != nil {
		return nil, err
	}
	return &intent, nil
}

func (r *gormRepository) GetIntentByReference(externalReference string) (*models.PurchaseIntent, error) {
	var intent models.PurchaseIntent
	err := r.db.Where("external_reference = ?", externalReference).
		Order("id DESC").
		First(&intent).Error
	if err != nil {
		return nil, err
	}
	return &intent, nil
}

func (r *gormRepository) ListIntentsByUser(userID uint) ([]models.PurchaseIntent, error) {
	var intents []models.PurchaseIntent
	err := r.db.Where("user_id = ?", userID).Order("id DESC").Find(&intents).Error
	return intents, err
}

func (r *gormRepository) ListIntents(offset, limit int) ([]models.PurchaseIntent, error) {
	var intents []models.PurchaseIntent
	err := r.db.Order("id DESC").Offset(offset).Limit(limit).Find(&intents).Error
	return intents, err
}

func (r *gormRepository) ListStalePendingIntents(olderThan time.Time, limit int) ([]models.PurchaseIntent, error) {
	var intents []models.PurchaseIntent
	err := r.db.Where("status = ? AND provider_payment_id <> '' AND updated_at < ?",
		models.PurchaseStatusPending, olderThan).
		Order("id ASC").
		Limit(limit).
		Find(&intents).Error
	return intents, err
}

func (r *gormRepository) CompleteIntent(intentID uint, paymentID string) (bool, error) {
	return r.transition(intentID, paymentID, models.PurchaseStatusCompleted, []string{models.PurchaseStatusPending})
}

func (r *gormRepository) FailIntent(intentID uint, paymentID string) (bool, error) {
	return r.transition(intentID, paymentID, models.PurchaseStatusFailed, []string{models.PurchaseStatusPending})
}

func (r *gormRepository) RefundIntent(intentID uint, paymentID string) (bool, error) {
	return r.transition(intentID, paymentID, models.PurchaseStatusRefunded,
		[]string{models.PurchaseStatusPending, models.PurchaseStatusCompleted})
}

func (r *gormRepository) transition(intentID uint, paymentID, to string, from []string) (bool, error) {
	updates := map[string]interface{}{"status": to}
	if paymentID != "" {
		updates["provider_payment_id"] = paymentID
	}
	tx := r.db.Model(&models.PurchaseIntent{}).
		Where("id = ? AND status IN ?", intentID, from).
		Updates(updates)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) BackfillPaymentID(intentID uint, paymentID string) error {
	return r.db.Model(&models.PurchaseIntent{}).
		Where("id = ? AND status = ?", intentID, models.PurchaseStatusPending).
		UpdateColumn("provider_payment_id", paymentID).Error
}

func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.PaymentWebhookEvent
	if err := r.db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.Model(&models.PaymentWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}
