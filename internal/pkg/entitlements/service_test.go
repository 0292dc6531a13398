package entitlements

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roteira-app/roteira/app/models"
	"gorm.io/gorm"
)

// fakeRepository implements Repository over an in-memory map. Conditional
// operations take the mutex for the whole check-and-mutate step, matching the
// atomicity the real repository gets from single UPDATE statements.
type fakeRepository struct {
	mu      sync.Mutex
	records map[uint]*models.EntitlementRecord
	failAll bool
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{records: make(map[uint]*models.EntitlementRecord)}
}

var errStorage = errors.New("storage unavailable")

func (f *fakeRepository) GetByUserID(userID uint) (*models.EntitlementRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return nil, errStorage
	}
	rec, ok := f.records[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeRepository) GetOrCreate(userID uint) (*models.EntitlementRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return nil, errStorage
	}
	rec, ok := f.records[userID]
	if !ok {
		rec = &models.EntitlementRecord{
			UserID:              userID,
			SubscriptionType:    models.SubscriptionNone,
			ChatMessagesResetAt: time.Now(),
		}
		f.records[userID] = rec
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeRepository) ConsumeFreeItinerary(userID uint, limit int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return false, errStorage
	}
	rec, ok := f.records[userID]
	if !ok || rec.FreeItinerariesUsed >= limit {
		return false, nil
	}
	rec.FreeItinerariesUsed++
	return true, nil
}

func (f *fakeRepository) ConsumePaidCredit(userID uint) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return false, errStorage
	}
	rec, ok := f.records[userID]
	if !ok || rec.PaidCredits <= 0 {
		return false, nil
	}
	rec.PaidCredits--
	return true, nil
}

func (f *fakeRepository) ConsumeChatMessage(userID uint, limit int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return false, errStorage
	}
	rec, ok := f.records[userID]
	if !ok || rec.ChatMessagesUsed >= limit {
		return false, nil
	}
	rec.ChatMessagesUsed++
	return true, nil
}

func (f *fakeRepository) ResetChatWindowIfElapsed(userID uint, cutoff, windowStart time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return errStorage
	}
	rec, ok := f.records[userID]
	if ok && !rec.ChatMessagesResetAt.After(cutoff) {
		rec.ChatMessagesUsed = 0
		rec.ChatMessagesResetAt = windowStart
	}
	return nil
}

func (f *fakeRepository) RecordItineraryGenerated(userID uint, delta int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec, ok := f.records[userID]; ok {
		rec.LifetimeItineraries += delta
	}
	return nil
}

func (f *fakeRepository) AddPaidCredits(userID uint, delta int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return errStorage
	}
	if rec, ok := f.records[userID]; ok {
		rec.PaidCredits += delta
	}
	return nil
}

func (f *fakeRepository) SetSubscription(userID uint, subType string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return errStorage
	}
	if rec, ok := f.records[userID]; ok {
		rec.SubscriptionType = subType
		t := expiresAt
		rec.SubscriptionExpiresAt = &t
	}
	return nil
}

func (f *fakeRepository) record(userID uint) *models.EntitlementRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records[userID]
}

func newTestService(repo Repository) *Service {
	return NewService(repo)
}

func TestFirstVisitEligibility(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	ok, err := svc.CanGenerateItinerary(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok, "user with no record must be eligible")

	ok, err = svc.ConsumeItineraryCredit(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, repo.record(1).FreeItinerariesUsed)
	assert.Equal(t, 0, repo.record(1).PaidCredits)
}

func TestExhaustedFreeTierDenies(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := repo.GetOrCreate(2)
	require.NoError(t, err)
	repo.record(2).FreeItinerariesUsed = FreeItineraryLimit

	ok, err := svc.CanGenerateItinerary(ctx, 2)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.ConsumeItineraryCredit(ctx, 2)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, FreeItineraryLimit, repo.record(2).FreeItinerariesUsed, "denial must not mutate")
	assert.Equal(t, 0, repo.record(2).PaidCredits)
}

func TestSubscriptionTakesPriorityOverCredits(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := repo.GetOrCreate(3)
	require.NoError(t, err)
	expires := time.Now().Add(30 * 24 * time.Hour)
	rec := repo.record(3)
	rec.SubscriptionType = models.SubscriptionMonthly
	rec.SubscriptionExpiresAt = &expires
	rec.PaidCredits = 3
	rec.FreeItinerariesUsed = FreeItineraryLimit

	ok, err := svc.ConsumeItineraryCredit(ctx, 3)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, repo.record(3).PaidCredits, "subscription consumption must not touch stored credits")
}

func TestPaidCreditSpentAfterFreeTier(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := repo.GetOrCreate(4)
	require.NoError(t, err)
	rec := repo.record(4)
	rec.FreeItinerariesUsed = FreeItineraryLimit
	rec.PaidCredits = 2

	ok, err := svc.ConsumeItineraryCredit(ctx, 4)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, repo.record(4).PaidCredits)
}

func TestConcurrentConsumeSingleCredit(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := repo.GetOrCreate(5)
	require.NoError(t, err)
	rec := repo.record(5)
	rec.FreeItinerariesUsed = FreeItineraryLimit
	rec.PaidCredits = 1

	const callers = 2
	results := make(chan bool, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := svc.ConsumeItineraryCredit(ctx, 5)
			if err != nil {
				t.Error(err)
				return
			}
			results <- ok
		}()
	}
	wg.Wait()
	close(results)

	successes := 0
	for ok := range results {
		if ok {
			successes++
		}
	}
	assert.Equal(t, 1, successes, "exactly one concurrent consume may win")
	assert.Equal(t, 0, repo.record(5).PaidCredits, "credits must never go negative")
}

func TestChatQuotaMonthlyVsAnnual(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	expires := time.Now().Add(30 * 24 * time.Hour)

	_, err := repo.GetOrCreate(6)
	require.NoError(t, err)
	monthly := repo.record(6)
	monthly.SubscriptionType = models.SubscriptionMonthly
	monthly.SubscriptionExpiresAt = &expires
	monthly.ChatMessagesUsed = MonthlyChatLimit

	ok, err := svc.CanSendChatMessage(ctx, 6)
	require.NoError(t, err)
	assert.False(t, ok, "monthly subscriber at the cap is denied")

	_, err = repo.GetOrCreate(7)
	require.NoError(t, err)
	annual := repo.record(7)
	annual.SubscriptionType = models.SubscriptionAnnual
	annual.SubscriptionExpiresAt = &expires
	annual.ChatMessagesUsed = MonthlyChatLimit

	ok, err = svc.CanSendChatMessage(ctx, 7)
	require.NoError(t, err)
	assert.True(t, ok, "annual subscriber is unlimited")

	ok, err = svc.ConsumeChatMessage(ctx, 7)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, MonthlyChatLimit, repo.record(7).ChatMessagesUsed, "annual consumption bypasses counting")
}

func TestFreeChatLimitEnforced(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	for i := 0; i < FreeChatLimit; i++ {
		ok, err := svc.ConsumeChatMessage(ctx, 8)
		require.NoError(t, err)
		require.True(t, ok, "message %d within free cap", i+1)
	}
	ok, err := svc.ConsumeChatMessage(ctx, 8)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, FreeChatLimit, repo.record(8).ChatMessagesUsed)
}

func TestMonthlyChatWindowResets(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := repo.GetOrCreate(9)
	require.NoError(t, err)
	expires := time.Now().Add(300 * 24 * time.Hour)
	rec := repo.record(9)
	rec.SubscriptionType = models.SubscriptionMonthly
	rec.SubscriptionExpiresAt = &expires
	rec.ChatMessagesUsed = MonthlyChatLimit
	rec.ChatMessagesResetAt = time.Now().AddDate(0, -2, 0)

	ok, err := svc.CanSendChatMessage(ctx, 9)
	require.NoError(t, err)
	assert.True(t, ok, "elapsed window must reset the counter")
	assert.Equal(t, 0, repo.record(9).ChatMessagesUsed)
}

func TestConsumeFailsClosedOnStorageError(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	repo.failAll = true

	ok, err := svc.ConsumeItineraryCredit(ctx, 10)
	require.Error(t, err)
	assert.False(t, ok)

	ok, err = svc.ConsumeChatMessage(ctx, 10)
	require.Error(t, err)
	assert.False(t, ok)

	// Read path: a storage failure other than not-found propagates; only a
	// genuinely missing record is permissive.
	_, err = svc.CanGenerateItinerary(ctx, 10)
	require.Error(t, err)
}

func TestGrantCredits(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	require.Error(t, svc.GrantCredits(ctx, 11, 0))
	require.Error(t, svc.GrantCredits(ctx, 11, -5))

	require.NoError(t, svc.GrantCredits(ctx, 11, 5))
	assert.Equal(t, 5, repo.record(11).PaidCredits)

	// Additive on top of unused credits, never overwriting.
	require.NoError(t, svc.GrantCredits(ctx, 11, 1))
	assert.Equal(t, 6, repo.record(11).PaidCredits)
}

func TestGrantSubscription(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	require.Error(t, svc.GrantSubscription(ctx, 12, SubscriptionNone, 1))
	require.Error(t, svc.GrantSubscription(ctx, 12, SubscriptionMonthly, 0))

	before := time.Now()
	require.NoError(t, svc.GrantSubscription(ctx, 12, SubscriptionMonthly, MonthlyDurationMonths))
	rec := repo.record(12)
	require.NotNil(t, rec.SubscriptionExpiresAt)
	assert.Equal(t, models.SubscriptionMonthly, rec.SubscriptionType)
	assert.True(t, rec.SubscriptionExpiresAt.After(before.AddDate(0, 1, -1)))

	ok, err := svc.CanSendChatMessage(ctx, 12)
	require.NoError(t, err)
	assert.True(t, ok)
}
