package payments

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roteira-app/roteira/app/models"
	"github.com/roteira-app/roteira/internal/pkg/entitlements"
	"gorm.io/gorm"
)

// fakeIntentRepo keeps intents in memory with the same conditional-transition
// semantics the GORM repository gets from single UPDATE statements.
type fakeIntentRepo struct {
	mu      sync.Mutex
	intents map[uint]*models.PurchaseIntent
	events  map[string]*models.PaymentWebhookEvent
	nextID  uint
}

func newFakeIntentRepo() *fakeIntentRepo {
	return &fakeIntentRepo{
		intents: make(map[uint]*models.PurchaseIntent),
		events:  make(map[string]*models.PaymentWebhookEvent),
		nextID:  1,
	}
}

func (f *fakeIntentRepo) CreateIntent(intent *models.PurchaseIntent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if intent.ProviderPreferenceID != nil {
		if err := f.checkPreferenceUnique(0, *intent.ProviderPreferenceID); err != nil {
			return err
		}
	}
	intent.ID = f.nextID
	f.nextID++
	cp := *intent
	f.intents[intent.ID] = &cp
	return nil
}

func (f *fakeIntentRepo) SetPreferenceID(intentID uint, preferenceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkPreferenceUnique(intentID, preferenceID); err != nil {
		return err
	}
	if in, ok := f.intents[intentID]; ok {
		in.ProviderPreferenceID = &preferenceID
	}
	return nil
}

// checkPreferenceUnique mirrors the unique index on the preference id column:
// non-null values collide, null rows never do.
func (f *fakeIntentRepo) checkPreferenceUnique(selfID uint, preferenceID string) error {
	for _, in := range f.intents {
		if in.ID != selfID && in.ProviderPreferenceID != nil && *in.ProviderPreferenceID == preferenceID {
			return errors.New("duplicate provider_preference_id")
		}
	}
	return nil
}

func (f *fakeIntentRepo) GetIntentByPreferenceID(preferenceID string) (*models.PurchaseIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, in := range f.intents {
		if in.ProviderPreferenceID != nil && *in.ProviderPreferenceID == preferenceID {
			cp := *in
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeIntentRepo) GetIntentByReference(ref string) (*models.PurchaseIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best *models.PurchaseIntent
	for _, in := range f.intents {
		if in.ExternalReference == ref && (best == nil || in.ID > best.ID) {
			best = in
		}
	}
	if best == nil {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *best
	return &cp, nil
}

func (f *fakeIntentRepo) ListIntentsByUser(userID uint) ([]models.PurchaseIntent, error) {
	return nil, nil
}

func (f *fakeIntentRepo) ListIntents(offset, limit int) ([]models.PurchaseIntent, error) {
	return nil, nil
}

func (f *fakeIntentRepo) ListStalePendingIntents(olderThan time.Time, limit int) ([]models.PurchaseIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.PurchaseIntent
	for _, in := range f.intents {
		if in.Status == models.PurchaseStatusPending && in.ProviderPaymentID != "" {
			out = append(out, *in)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeIntentRepo) CompleteIntent(intentID uint, paymentID string) (bool, error) {
	return f.transition(intentID, paymentID, models.PurchaseStatusCompleted, models.PurchaseStatusPending)
}

func (f *fakeIntentRepo) FailIntent(intentID uint, paymentID string) (bool, error) {
	return f.transition(intentID, paymentID, models.PurchaseStatusFailed, models.PurchaseStatusPending)
}

func (f *fakeIntentRepo) RefundIntent(intentID uint, paymentID string) (bool, error) {
	return f.transition(intentID, paymentID, models.PurchaseStatusRefunded,
		models.PurchaseStatusPending, models.PurchaseStatusCompleted)
}

func (f *fakeIntentRepo) transition(intentID uint, paymentID, to string, from ...string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	in, ok := f.intents[intentID]
	if !ok {
		return false, nil
	}
	for _, s := range from {
		if in.Status == s {
			in.Status = to
			if paymentID != "" {
				in.ProviderPaymentID = paymentID
			}
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeIntentRepo) BackfillPaymentID(intentID uint, paymentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if in, ok := f.intents[intentID]; ok && in.Status == models.PurchaseStatusPending {
		in.ProviderPaymentID = paymentID
	}
	return nil
}

func (f *fakeIntentRepo) CreateWebhookEventIfNotExists(event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if stored, ok := f.events[event.ProviderEventID]; ok {
		cp := *stored
		return false, &cp, nil
	}
	event.ID = uint(len(f.events) + 1)
	cp := *event
	f.events[event.ProviderEventID] = &cp
	out := cp
	return true, &out, nil
}

func (f *fakeIntentRepo) MarkWebhookProcessed(id uint, processingError string) error {
	return nil
}

func (f *fakeIntentRepo) intent(id uint) *models.PurchaseIntent {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *f.intents[id]
	return &cp
}

// fakeProvider serves payment details keyed by id.
type fakeProvider struct {
	payments map[string]*Payment
	err      error
}

func (f *fakeProvider) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.payments[paymentID]
	if !ok {
		return nil, errors.New("payment not found")
	}
	cp := *p
	return &cp, nil
}

// fakeLedger records grants.
type fakeLedger struct {
	mu            sync.Mutex
	credits       map[uint]int
	subscriptions map[uint]entitlements.SubscriptionType
	subMonths     map[uint]int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		credits:       make(map[uint]int),
		subscriptions: make(map[uint]entitlements.SubscriptionType),
		subMonths:     make(map[uint]int),
	}
}

func (f *fakeLedger) GrantCredits(ctx context.Context, userID uint, delta int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.credits[userID] += delta
	return nil
}

func (f *fakeLedger) GrantSubscription(ctx context.Context, userID uint, subType entitlements.SubscriptionType, months int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscriptions[userID] = subType
	f.subMonths[userID] = months
	return nil
}

func seedIntent(t *testing.T, repo *fakeIntentRepo, userID uint, planType PlanType, prefID string) *models.PurchaseIntent {
	t.Helper()
	plan, ok := PlanByType(string(planType))
	require.True(t, ok)
	ref, err := EncodeReference(Reference{UserID: userID, PlanType: plan.Type, Credits: plan.Credits})
	require.NoError(t, err)
	intent := &models.PurchaseIntent{
		UUID:              "test-" + prefID,
		UserID:            userID,
		PlanType:          string(plan.Type),
		AmountCents:       plan.AmountCents,
		CreditsGranted:    plan.Credits,
		ExternalReference: ref,
		Status:            models.PurchaseStatusPending,
	}
	require.NoError(t, repo.CreateIntent(intent))
	require.NoError(t, repo.SetPreferenceID(intent.ID, prefID))
	return intent
}

func TestReconcileApprovedCreditPurchase(t *testing.T) {
	repo := newFakeIntentRepo()
	ledger := newFakeLedger()
	intent := seedIntent(t, repo, 10, PlanCreditSingle, "pref-1")
	provider := &fakeProvider{payments: map[string]*Payment{
		"501": {ID: 501, Status: "approved", PreferenceID: "pref-1", ExternalReference: intent.ExternalReference},
	}}
	rec := NewReconciler(repo, provider, ledger)

	n := Notification{Kind: NotificationPayment, PaymentID: "501", Topic: "payment"}
	require.NoError(t, rec.ProcessNotification(context.Background(), n))

	got := repo.intent(intent.ID)
	assert.Equal(t, models.PurchaseStatusCompleted, got.Status)
	assert.Equal(t, "501", got.ProviderPaymentID)
	assert.Equal(t, 1, ledger.credits[10])
}

func TestReconcileReplayGrantsOnce(t *testing.T) {
	repo := newFakeIntentRepo()
	ledger := newFakeLedger()
	intent := seedIntent(t, repo, 11, PlanCreditPack5, "pref-2")
	provider := &fakeProvider{payments: map[string]*Payment{
		"502": {ID: 502, Status: "approved", PreferenceID: "pref-2", ExternalReference: intent.ExternalReference},
	}}
	rec := NewReconciler(repo, provider, ledger)

	n := Notification{Kind: NotificationPayment, PaymentID: "502", Topic: "payment"}
	require.NoError(t, rec.ProcessNotification(context.Background(), n))
	require.NoError(t, rec.ProcessNotification(context.Background(), n))
	require.NoError(t, rec.ProcessNotification(context.Background(), n))

	assert.Equal(t, 5, ledger.credits[11], "replays must grant exactly once")
	assert.Equal(t, models.PurchaseStatusCompleted, repo.intent(intent.ID).Status)
}

func TestReconcileRejectedPayment(t *testing.T) {
	repo := newFakeIntentRepo()
	ledger := newFakeLedger()
	intent := seedIntent(t, repo, 12, PlanCreditSingle, "pref-3")
	provider := &fakeProvider{payments: map[string]*Payment{
		"503": {ID: 503, Status: "rejected", PreferenceID: "pref-3", ExternalReference: intent.ExternalReference},
	}}
	rec := NewReconciler(repo, provider, ledger)

	n := Notification{Kind: NotificationPayment, PaymentID: "503", Topic: "payment"}
	require.NoError(t, rec.ProcessNotification(context.Background(), n))

	assert.Equal(t, models.PurchaseStatusFailed, repo.intent(intent.ID).Status)
	assert.Zero(t, ledger.credits[12], "rejected payment must not grant")
}

func TestReconcileMonthlySubscription(t *testing.T) {
	repo := newFakeIntentRepo()
	ledger := newFakeLedger()
	intent := seedIntent(t, repo, 13, PlanSubMonthly, "pref-4")
	provider := &fakeProvider{payments: map[string]*Payment{
		"504": {ID: 504, Status: "approved", PreferenceID: "pref-4", ExternalReference: intent.ExternalReference},
	}}
	rec := NewReconciler(repo, provider, ledger)

	n := Notification{Kind: NotificationPayment, PaymentID: "504", Topic: "payment"}
	require.NoError(t, rec.ProcessNotification(context.Background(), n))

	assert.Equal(t, models.PurchaseStatusCompleted, repo.intent(intent.ID).Status)
	assert.Equal(t, entitlements.SubscriptionMonthly, ledger.subscriptions[13])
	assert.Equal(t, 1, ledger.subMonths[13])
	assert.Zero(t, ledger.credits[13], "subscription plans do not add credits")
}

func TestReconcileChargebackAfterCompletion(t *testing.T) {
	repo := newFakeIntentRepo()
	ledger := newFakeLedger()
	intent := seedIntent(t, repo, 14, PlanCreditSingle, "pref-5")
	payment := &Payment{ID: 505, Status: "approved", PreferenceID: "pref-5", ExternalReference: intent.ExternalReference}
	provider := &fakeProvider{payments: map[string]*Payment{"505": payment}}
	rec := NewReconciler(repo, provider, ledger)

	n := Notification{Kind: NotificationPayment, PaymentID: "505", Topic: "payment"}
	require.NoError(t, rec.ProcessNotification(context.Background(), n))
	require.Equal(t, models.PurchaseStatusCompleted, repo.intent(intent.ID).Status)

	payment.Status = "charged_back"
	require.NoError(t, rec.ProcessNotification(context.Background(), n))
	assert.Equal(t, models.PurchaseStatusRefunded, repo.intent(intent.ID).Status)
}

func TestReconcilePendingBackfillsPaymentID(t *testing.T) {
	repo := newFakeIntentRepo()
	ledger := newFakeLedger()
	intent := seedIntent(t, repo, 15, PlanCreditSingle, "pref-6")
	provider := &fakeProvider{payments: map[string]*Payment{
		"506": {ID: 506, Status: "in_process", PreferenceID: "pref-6", ExternalReference: intent.ExternalReference},
	}}
	rec := NewReconciler(repo, provider, ledger)

	n := Notification{Kind: NotificationPayment, PaymentID: "506", Topic: "payment"}
	require.NoError(t, rec.ProcessNotification(context.Background(), n))

	got := repo.intent(intent.ID)
	assert.Equal(t, models.PurchaseStatusPending, got.Status)
	assert.Equal(t, "506", got.ProviderPaymentID)
	assert.Zero(t, ledger.credits[15])
}

func TestSweepPendingSettlesMissedWebhook(t *testing.T) {
	repo := newFakeIntentRepo()
	ledger := newFakeLedger()
	intent := seedIntent(t, repo, 17, PlanCreditSingle, "pref-8")
	require.NoError(t, repo.BackfillPaymentID(intent.ID, "509"))

	// Provider settled the payment but the webhook never arrived.
	provider := &fakeProvider{payments: map[string]*Payment{
		"509": {ID: 509, Status: "approved", PreferenceID: "pref-8", ExternalReference: intent.ExternalReference},
	}}
	rec := NewReconciler(repo, provider, ledger)

	require.NoError(t, rec.SweepPending(context.Background(), time.Now(), 100))

	assert.Equal(t, models.PurchaseStatusCompleted, repo.intent(intent.ID).Status)
	assert.Equal(t, 1, ledger.credits[17])

	// A second sweep finds nothing pending and changes nothing.
	require.NoError(t, rec.SweepPending(context.Background(), time.Now(), 100))
	assert.Equal(t, 1, ledger.credits[17])
}

func TestReconcileMatchesByReferenceFallback(t *testing.T) {
	repo := newFakeIntentRepo()
	ledger := newFakeLedger()
	intent := seedIntent(t, repo, 16, PlanCreditSingle, "pref-7")
	// Payment detail carries no preference id, only the echoed reference.
	provider := &fakeProvider{payments: map[string]*Payment{
		"507": {ID: 507, Status: "approved", ExternalReference: intent.ExternalReference},
	}}
	rec := NewReconciler(repo, provider, ledger)

	n := Notification{Kind: NotificationPayment, PaymentID: "507", Topic: "payment"}
	require.NoError(t, rec.ProcessNotification(context.Background(), n))

	assert.Equal(t, models.PurchaseStatusCompleted, repo.intent(intent.ID).Status)
	assert.Equal(t, 1, ledger.credits[16])
}

func TestReconcileUndecodableReference(t *testing.T) {
	repo := newFakeIntentRepo()
	ledger := newFakeLedger()
	provider := &fakeProvider{payments: map[string]*Payment{
		"508": {ID: 508, Status: "approved", ExternalReference: "not-a-reference"},
	}}
	rec := NewReconciler(repo, provider, ledger)

	n := Notification{Kind: NotificationPayment, PaymentID: "508", Topic: "payment"}
	err := rec.ProcessNotification(context.Background(), n)
	require.Error(t, err, "undecodable reference is logged for manual review")
	assert.Empty(t, ledger.credits)
}

func TestReconcileIgnoresNonPayment(t *testing.T) {
	repo := newFakeIntentRepo()
	rec := NewReconciler(repo, &fakeProvider{err: errors.New("should not be called")}, newFakeLedger())

	n := Notification{Kind: NotificationIgnore, Topic: "merchant_order", PaymentID: "1"}
	require.NoError(t, rec.ProcessNotification(context.Background(), n))
}

func TestRecordEventDeduplicates(t *testing.T) {
	repo := newFakeIntentRepo()
	rec := NewReconciler(repo, &fakeProvider{}, newFakeLedger())
	ctx := context.Background()

	n := Notification{Kind: NotificationPayment, PaymentID: "901", Topic: "payment"}
	created, first, err := rec.RecordEvent(ctx, n, []byte(`{"data":{"id":"901"}}`))
	require.NoError(t, err)
	assert.True(t, created)
	require.NotNil(t, first)

	created, second, err := rec.RecordEvent(ctx, n, []byte(`{"data":{"id":"901"}}`))
	require.NoError(t, err)
	assert.False(t, created, "same payment id must dedupe")
	assert.Equal(t, first.ID, second.ID)

	// Shapeless deliveries dedupe by payload hash.
	noise := Notification{Kind: NotificationIgnore}
	created, _, err = rec.RecordEvent(ctx, noise, []byte(`junk`))
	require.NoError(t, err)
	assert.True(t, created)
	created, _, err = rec.RecordEvent(ctx, noise, []byte(`junk`))
	require.NoError(t, err)
	assert.False(t, created)
}

func TestCheckoutStartCreatesIntentAndPreference(t *testing.T) {
	repo := newFakeIntentRepo()
	provider := &capturePreferenceProvider{}
	svc := NewCheckoutService(repo, provider)

	session, err := svc.Start(context.Background(), 20, "credit_pack5")
	require.NoError(t, err)
	assert.NotEmpty(t, session.IntentUUID)
	assert.Equal(t, "https://mp.example/init", session.CheckoutURL)

	intent, err := repo.GetIntentByPreferenceID("pref-created")
	require.NoError(t, err)
	assert.Equal(t, uint(20), intent.UserID)
	assert.Equal(t, string(PlanCreditPack5), intent.PlanType)
	assert.Equal(t, 5, intent.CreditsGranted)
	assert.Equal(t, models.PurchaseStatusPending, intent.Status)

	ref, err := DecodeReference(provider.lastRequest.ExternalReference)
	require.NoError(t, err)
	assert.Equal(t, uint(20), ref.UserID)
	assert.Equal(t, PlanCreditPack5, ref.PlanType)
	assert.Equal(t, 1, provider.lastRequest.Items[0].Quantity)
	assert.InDelta(t, 39.90, provider.lastRequest.Items[0].UnitPrice, 0.001)
}

func TestCheckoutIntentsBeforePreferenceDoNotCollide(t *testing.T) {
	repo := newFakeIntentRepo()

	// Stored the way Start does it, before any provider response exists.
	first := &models.PurchaseIntent{UUID: "u-1", UserID: 30, PlanType: string(PlanCreditSingle), Status: models.PurchaseStatusPending}
	second := &models.PurchaseIntent{UUID: "u-2", UserID: 31, PlanType: string(PlanCreditSingle), Status: models.PurchaseStatusPending}
	require.NoError(t, repo.CreateIntent(first))
	require.NoError(t, repo.CreateIntent(second), "intents without a preference id must coexist")
	assert.Nil(t, repo.intent(first.ID).ProviderPreferenceID)
	assert.Nil(t, repo.intent(second.ID).ProviderPreferenceID)
}

func TestCheckoutRetriesAfterProviderFailure(t *testing.T) {
	repo := newFakeIntentRepo()
	provider := &flakyPreferenceProvider{failures: 1}
	svc := NewCheckoutService(repo, provider)

	_, err := svc.Start(context.Background(), 32, "credit_single")
	require.Error(t, err, "provider outage leaves an abandoned pending intent behind")

	session, err := svc.Start(context.Background(), 32, "credit_single")
	require.NoError(t, err, "the abandoned intent must not block later checkouts")
	assert.NotEmpty(t, session.CheckoutURL)
}

type flakyPreferenceProvider struct {
	failures int
	calls    int
}

func (p *flakyPreferenceProvider) CreatePreference(ctx context.Context, in PreferenceRequest) (*Preference, error) {
	p.calls++
	if p.calls <= p.failures {
		return nil, errors.New("provider unavailable")
	}
	return &Preference{ID: fmt.Sprintf("pref-%d", p.calls), InitPoint: "https://mp.example/init"}, nil
}

func TestCheckoutStartRejectsUnknownPlan(t *testing.T) {
	svc := NewCheckoutService(newFakeIntentRepo(), &capturePreferenceProvider{})
	_, err := svc.Start(context.Background(), 21, "gold_plan")
	require.Error(t, err)
}

type capturePreferenceProvider struct {
	lastRequest PreferenceRequest
}

func (c *capturePreferenceProvider) CreatePreference(ctx context.Context, in PreferenceRequest) (*Preference, error) {
	c.lastRequest = in
	return &Preference{ID: "pref-created", InitPoint: "https://mp.example/init"}, nil
}
