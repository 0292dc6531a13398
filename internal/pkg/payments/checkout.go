package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/roteira-app/roteira/app/models"
	"github.com/roteira-app/roteira/internal/pkg/env"
	"gorm.io/gorm"
)

// PreferenceCreator creates a provider checkout session.
type PreferenceCreator interface {
	CreatePreference(ctx context.Context, in PreferenceRequest) (*Preference, error)
}

// CheckoutService creates purchase intents and their provider checkout
// sessions. The intent is stored pending before the provider is called, so a
// provider failure leaves no half-granted state, only an abandoned intent.
type CheckoutService struct {
	repo     Repository
	provider PreferenceCreator
}

// CheckoutSession is returned to the client to start the redirect flow.
type CheckoutSession struct {
	IntentUUID  string `json:"intent_uuid"`
	CheckoutURL string `json:"checkout_url"`
}

// NewCheckoutService creates a checkout service from injected collaborators.
func NewCheckoutService(repo Repository, provider PreferenceCreator) *CheckoutService {
	return &CheckoutService{repo: repo, provider: provider}
}

// NewCheckoutServiceFromDB wires checkout against GORM and the env-configured
// Mercado Pago client.
func NewCheckoutServiceFromDB(db *gorm.DB) *CheckoutService {
	return NewCheckoutService(NewRepository(db), NewMercadoPagoClientFromEnv())
}

// Start creates a pending intent for the plan and opens a provider checkout
// session for it.
func (s *CheckoutService) Start(ctx context.Context, userID uint, planType string) (*CheckoutSession, error) {
	plan, ok := PlanByType(planType)
	if !ok {
		return nil, fmt.Errorf("unknown plan type %q", planType)
	}

	ref, err := EncodeReference(Reference{
		UserID:   userID,
		PlanType: plan.Type,
		Credits:  plan.Credits,
	})
	if err != nil {
		return nil, err
	}

	intent := &models.PurchaseIntent{
		UUID:              uuid.NewString(),
		UserID:            userID,
		PlanType:          string(plan.Type),
		AmountCents:       plan.AmountCents,
		CreditsGranted:    plan.Credits,
		ExternalReference: ref,
		Status:            models.PurchaseStatusPending,
	}
	if err := s.repo.CreateIntent(intent); err != nil {
		return nil, err
	}

	base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/")
	req := PreferenceRequest{
		Items: []PreferenceItem{{
			Title:      plan.Title,
			Quantity:   1,
			UnitPrice:  float64(plan.AmountCents) / 100,
			CurrencyID: "BRL",
		}},
		ExternalReference: ref,
	}
	if base != "" {
		req.NotificationURL = base + "/webhooks/mercadopago"
		req.BackURLs.Success = base + "/checkout/success"
		req.BackURLs.Pending = base + "/checkout/pending"
		req.BackURLs.Failure = base + "/checkout/failure"
		req.AutoReturn = "approved"
	}

	pref, err := s.provider.CreatePreference(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetPreferenceID(intent.ID, pref.ID); err != nil {
		return nil, err
	}

	url := pref.InitPoint
	if url == "" {
		url = pref.SandboxInitPoint
	}
	return &CheckoutSession{IntentUUID: intent.UUID, CheckoutURL: url}, nil
}
