package entitlements

import (
	"context"
	"errors"
	"time"

	"github.com/roteira-app/roteira/app/models"
	"gorm.io/gorm"
)

// Service is the entitlement ledger: it answers "may this user perform the
// action" and applies the effect of performing it. Paid entitlements take
// precedence over free ones and subscriptions over standalone credits.
//
// A denial is reported as (false, nil); errors are reserved for storage or
// configuration failures, on which consume operations fail closed.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a ledger service from an injected repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// NewServiceFromDB creates a ledger service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db))
}

// Snapshot is the read-only ledger view returned to clients. The derived
// booleans are advisory; consume endpoints re-validate server side.
type Snapshot struct {
	Record              *models.EntitlementRecord `json:"record"`
	SubscriptionActive  bool                      `json:"subscription_active"`
	CanGenerate         bool                      `json:"can_generate_itinerary"`
	CanChat             bool                      `json:"can_send_chat_message"`
	ChatMessagesAllowed int                       `json:"chat_messages_allowed"`
}

// Snapshot returns the user's current ledger state with derived allowances.
func (s *Service) Snapshot(ctx context.Context, userID uint) (*Snapshot, error) {
	_ = ctx
	rec, err := s.repo.GetOrCreate(userID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	rec = s.freshChatWindow(rec, now)

	active := rec.SubscriptionActive(now)
	limit := ChatMessageLimit(NormalizeSubscriptionType(rec.SubscriptionType), active)
	canChat := limit == ChatUnlimited || rec.ChatMessagesUsed < limit

	return &Snapshot{
		Record:              rec,
		SubscriptionActive:  active,
		CanGenerate:         active || rec.FreeItinerariesUsed < FreeItineraryLimit || rec.PaidCredits > 0,
		CanChat:             canChat,
		ChatMessagesAllowed: limit,
	}, nil
}

// CanGenerateItinerary reports itinerary eligibility without mutating state.
// A user with no record yet is eligible (the free unit is granted lazily).
func (s *Service) CanGenerateItinerary(ctx context.Context, userID uint) (bool, error) {
	_ = ctx
	rec, err := s.repo.GetByUserID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return true, nil
		}
		return false, err
	}
	if rec.SubscriptionActive(s.now()) {
		return true, nil
	}
	return rec.FreeItinerariesUsed < FreeItineraryLimit || rec.PaidCredits > 0, nil
}

// ConsumeItineraryCredit spends one itinerary unit. Priority order: active
// subscription (no mutation), free allowance, paid credit. Each mutating step
// is a conditional update, so two concurrent calls past the free boundary
// cannot both succeed.
func (s *Service) ConsumeItineraryCredit(ctx context.Context, userID uint) (bool, error) {
	_ = ctx
	rec, err := s.repo.GetOrCreate(userID)
	if err != nil {
		return false, err
	}

	allowed := false
	switch {
	case rec.SubscriptionActive(s.now()):
		allowed = true
	default:
		allowed, err = s.repo.ConsumeFreeItinerary(userID, FreeItineraryLimit)
		if err != nil {
			return false, err
		}
		if !allowed {
			allowed, err = s.repo.ConsumePaidCredit(userID)
			if err != nil {
				return false, err
			}
		}
	}
	if !allowed {
		return false, nil
	}

	// Lifetime stats are best effort; the spend already happened.
	_ = s.repo.RecordItineraryGenerated(userID, 1)
	return true, nil
}

// CanSendChatMessage reports chat eligibility without mutating the counter.
func (s *Service) CanSendChatMessage(ctx context.Context, userID uint) (bool, error) {
	_ = ctx
	rec, err := s.repo.GetByUserID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return FreeChatLimit > 0, nil
		}
		return false, err
	}
	now := s.now()
	rec = s.freshChatWindow(rec, now)

	limit := ChatMessageLimit(NormalizeSubscriptionType(rec.SubscriptionType), rec.SubscriptionActive(now))
	if limit == ChatUnlimited {
		return true, nil
	}
	return rec.ChatMessagesUsed < limit, nil
}

// ConsumeChatMessage counts one chat message against the applicable quota.
// Annual subscribers bypass counting entirely; everyone else goes through a
// single guarded increment, never check-then-increment.
func (s *Service) ConsumeChatMessage(ctx context.Context, userID uint) (bool, error) {
	_ = ctx
	rec, err := s.repo.GetOrCreate(userID)
	if err != nil {
		return false, err
	}
	now := s.now()
	rec = s.freshChatWindow(rec, now)

	active := rec.SubscriptionActive(now)
	limit := ChatMessageLimit(NormalizeSubscriptionType(rec.SubscriptionType), active)
	if limit == ChatUnlimited {
		return true, nil
	}
	return s.repo.ConsumeChatMessage(userID, limit)
}

// GrantCredits adds purchased credits. Reconciler-only caller; always
// additive so unused credits are never overwritten.
func (s *Service) GrantCredits(ctx context.Context, userID uint, delta int) error {
	_ = ctx
	if delta <= 0 {
		return errors.New("credit delta must be positive")
	}
	if _, err := s.repo.GetOrCreate(userID); err != nil {
		return err
	}
	return s.repo.AddPaidCredits(userID, delta)
}

// GrantSubscription records a subscription as an absolute expiry computed
// from now plus duration. Renewing early resets from the payment moment
// rather than extending the prior expiry.
func (s *Service) GrantSubscription(ctx context.Context, userID uint, subType SubscriptionType, durationMonths int) error {
	_ = ctx
	if subType != SubscriptionMonthly && subType != SubscriptionAnnual {
		return errors.New("invalid subscription type")
	}
	if durationMonths <= 0 {
		return errors.New("subscription duration must be positive")
	}
	if _, err := s.repo.GetOrCreate(userID); err != nil {
		return err
	}
	expiresAt := s.now().AddDate(0, durationMonths, 0)
	return s.repo.SetSubscription(userID, string(subType), expiresAt)
}

// freshChatWindow rolls the monthly chat counting window forward when it has
// elapsed. Reset failures degrade to the stale counter, which only ever
// under-grants, so they are not surfaced.
func (s *Service) freshChatWindow(rec *models.EntitlementRecord, now time.Time) *models.EntitlementRecord {
	if rec == nil {
		return rec
	}
	cutoff := now.AddDate(0, -1, 0)
	if rec.ChatMessagesResetAt.After(cutoff) {
		return rec
	}
	if err := s.repo.ResetChatWindowIfElapsed(rec.UserID, cutoff, now); err != nil {
		return rec
	}
	if fresh, err := s.repo.GetByUserID(rec.UserID); err == nil {
		return fresh
	}
	return rec
}
