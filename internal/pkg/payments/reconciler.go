package payments

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/roteira-app/roteira/app/models"
	"github.com/roteira-app/roteira/internal/pkg/entitlements"
	"gorm.io/gorm"
)

const ProviderMercadoPago = "mercadopago"

// PaymentFetcher fetches authoritative payment details from the provider.
type PaymentFetcher interface {
	GetPayment(ctx context.Context, paymentID string) (*Payment, error)
}

// Ledger is the entitlement mutation surface the reconciler grants through.
type Ledger interface {
	GrantCredits(ctx context.Context, userID uint, delta int) error
	GrantSubscription(ctx context.Context, userID uint, subType entitlements.SubscriptionType, durationMonths int) error
}

// Reconciler turns asynchronous, possibly-duplicated provider notifications
// into at-most-once entitlement grants. It never schedules retries of its
// own; a failed reconciliation stays reconcilable on the provider's next
// redelivery or via manual review of the stored webhook event.
type Reconciler struct {
	repo     Repository
	provider PaymentFetcher
	ledger   Ledger

	// Notify runs after a winning completion, outside the grant path.
	// Failures are logged, never propagated.
	Notify func(intent *models.PurchaseIntent, payment *Payment)
}

// NewReconciler creates a reconciler from injected collaborators.
func NewReconciler(repo Repository, provider PaymentFetcher, ledger Ledger) *Reconciler {
	return &Reconciler{repo: repo, provider: provider, ledger: ledger}
}

// NewReconcilerFromDB wires the reconciler against GORM and the env-configured
// Mercado Pago client.
func NewReconcilerFromDB(db *gorm.DB) *Reconciler {
	r := NewReconciler(NewRepository(db), NewMercadoPagoClientFromEnv(), entitlements.NewServiceFromDB(db))
	r.Notify = mailConfirmation(db)
	return r
}

// RecordEvent persists the raw delivery for dedup and audit. The event id is
// derived from the payment id and topic; shapeless deliveries fall back to a
// payload hash so replays of the same noise also dedupe.
func (r *Reconciler) RecordEvent(ctx context.Context, n Notification, payload []byte) (bool, *models.PaymentWebhookEvent, error) {
	_ = ctx
	eventID := strings.TrimSpace(n.PaymentID)
	if eventID != "" {
		eventID = n.Topic + ":" + eventID
	} else {
		sum := sha256.Sum256(payload)
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.PaymentWebhookEvent{
		Provider:        ProviderMercadoPago,
		ProviderEventID: eventID,
		Topic:           n.Topic,
		PayloadJSON:     string(payload),
	}
	return r.repo.CreateWebhookEventIfNotExists(event)
}

// MarkProcessed marks an event as processed and stores an optional error.
func (r *Reconciler) MarkProcessed(ctx context.Context, eventID uint, processingErr error) error {
	_ = ctx
	if eventID == 0 {
		return errors.New("webhook event id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return r.repo.MarkWebhookProcessed(eventID, errMsg)
}

// ProcessNotification reconciles one normalized notification. Safe to run
// multiple times for the same payment: the grant is keyed to winning the
// pending→completed transition, which happens at most once per intent.
func (r *Reconciler) ProcessNotification(ctx context.Context, n Notification) error {
	if n.Kind != NotificationPayment {
		return nil
	}

	payment, err := r.provider.GetPayment(ctx, n.PaymentID)
	if err != nil {
		return fmt.Errorf("fetch payment %s: %w", n.PaymentID, err)
	}

	intent, err := r.resolveIntent(payment)
	if err != nil {
		return err
	}

	paymentID := strconv.FormatInt(payment.ID, 10)
	switch MapPaymentStatus(payment.Status) {
	case models.PurchaseStatusCompleted:
		won, err := r.repo.CompleteIntent(intent.ID, paymentID)
		if err != nil {
			return fmt.Errorf("complete intent %d: %w", intent.ID, err)
		}
		if !won {
			// Redelivery of an already-settled payment; nothing to grant.
			return nil
		}
		if err := r.applyGrant(ctx, intent); err != nil {
			// The intent is completed but the grant failed; surface it so
			// the stored event keeps the error for manual reconciliation.
			return fmt.Errorf("grant for intent %d: %w", intent.ID, err)
		}
		if r.Notify != nil {
			r.Notify(intent, payment)
		}
		return nil

	case models.PurchaseStatusFailed:
		if _, err := r.repo.FailIntent(intent.ID, paymentID); err != nil {
			return fmt.Errorf("fail intent %d: %w", intent.ID, err)
		}
		return nil

	case models.PurchaseStatusRefunded:
		if _, err := r.repo.RefundIntent(intent.ID, paymentID); err != nil {
			return fmt.Errorf("refund intent %d: %w", intent.ID, err)
		}
		return nil

	default:
		// Still pending on the provider side; keep the payment id for later.
		if err := r.repo.BackfillPaymentID(intent.ID, paymentID); err != nil {
			return fmt.Errorf("backfill intent %d: %w", intent.ID, err)
		}
		return nil
	}
}

// SweepPending re-checks pending intents whose payment id is known but whose
// webhook may have been missed. Each intent is reconciled through the same
// conditional-transition path as a live notification.
func (r *Reconciler) SweepPending(ctx context.Context, olderThan time.Time, limit int) error {
	intents, err := r.repo.ListStalePendingIntents(olderThan, limit)
	if err != nil {
		return fmt.Errorf("list stale pending intents: %w", err)
	}
	for i := range intents {
		n := Notification{
			Kind:      NotificationPayment,
			PaymentID: intents[i].ProviderPaymentID,
			Topic:     "payment",
		}
		if err := r.ProcessNotification(ctx, n); err != nil {
			log.Printf("pending sweep: intent %d: %v", intents[i].ID, err)
		}
	}
	return nil
}

// resolveIntent matches a payment back to its purchase intent: primarily by
// the checkout-session (preference) id recorded at intent creation, falling
// back to the round-tripped external reference.
func (r *Reconciler) resolveIntent(payment *Payment) (*models.PurchaseIntent, error) {
	if prefID := strings.TrimSpace(payment.PreferenceID); prefID != "" {
		intent, err := r.repo.GetIntentByPreferenceID(prefID)
		if err == nil {
			return intent, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("lookup intent by preference %s: %w", prefID, err)
		}
	}

	ref := strings.TrimSpace(payment.ExternalReference)
	if ref == "" {
		return nil, fmt.Errorf("payment %d carries no preference id or external reference", payment.ID)
	}
	if _, err := DecodeReference(ref); err != nil {
		return nil, fmt.Errorf("payment %d reference undecodable: %w", payment.ID, err)
	}
	intent, err := r.repo.GetIntentByReference(ref)
	if err != nil {
		return nil, fmt.Errorf("lookup intent by reference: %w", err)
	}
	return intent, nil
}

func (r *Reconciler) applyGrant(ctx context.Context, intent *models.PurchaseIntent) error {
	plan, ok := PlanByType(intent.PlanType)
	if !ok {
		return fmt.Errorf("intent %d has unknown plan type %q", intent.ID, intent.PlanType)
	}
	if plan.IsSubscription() {
		return r.ledger.GrantSubscription(ctx, intent.UserID, plan.SubscriptionType, plan.DurationMonths)
	}
	if intent.CreditsGranted <= 0 {
		log.Printf("intent %d (plan %s) grants no credits, skipping", intent.ID, intent.PlanType)
		return nil
	}
	return r.ledger.GrantCredits(ctx, intent.UserID, intent.CreditsGranted)
}
