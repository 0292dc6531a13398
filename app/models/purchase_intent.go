package models

import "time"

const (
	PurchaseStatusPending   = "pending"
	PurchaseStatusCompleted = "completed"
	PurchaseStatusFailed    = "failed"
	PurchaseStatusRefunded  = "refunded"
)

// CreditsUnlimited is the CreditsGranted sentinel for subscription plans.
// Subscriptions do not add spendable credits; they set an expiry instead.
const CreditsUnlimited = -1

// PurchaseIntent records a checkout attempt from creation through terminal
// settlement. It is created pending by the checkout flow and thereafter
// mutated only by the webhook reconciler via conditional status transitions.
type PurchaseIntent struct {
	ID                   uint      `gorm:"primaryKey" json:"id"`
	UUID                 string    `gorm:"type:varchar(36);uniqueIndex;not null" json:"uuid"`
	UserID               uint      `gorm:"not null;index" json:"user_id"`
	PlanType             string    `gorm:"type:varchar(32);not null;index" json:"plan_type"`
	AmountCents          int64     `gorm:"not null" json:"amount_cents"`
	CreditsGranted       int       `gorm:"not null" json:"credits_granted"`
	ExternalReference    string    `gorm:"type:varchar(512);not null" json:"external_reference"`
	// Nil until the provider checkout session exists. Nullable so pending
	// intents created before (or without) a provider response never collide
	// on the unique index.
	ProviderPreferenceID *string   `gorm:"type:varchar(191);uniqueIndex" json:"provider_preference_id,omitempty"`
	ProviderPaymentID    string    `gorm:"type:varchar(64);index;not null;default:''" json:"provider_payment_id"`
	Status               string    `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	CreatedAt            time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsTerminal reports whether the intent has reached a settlement state.
// Refunded is reachable from completed on a later chargeback, every other
// terminal state is final.
func (p *PurchaseIntent) IsTerminal() bool {
	switch p.Status {
	case PurchaseStatusCompleted, PurchaseStatusFailed, PurchaseStatusRefunded:
		return true
	default:
		return false
	}
}
