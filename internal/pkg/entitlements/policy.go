package entitlements

import (
	"strings"

	"github.com/roteira-app/roteira/app/models"
)

type SubscriptionType string

const (
	SubscriptionNone    SubscriptionType = models.SubscriptionNone
	SubscriptionMonthly SubscriptionType = models.SubscriptionMonthly
	SubscriptionAnnual  SubscriptionType = models.SubscriptionAnnual
)

// Fixed policy table. Limits are not runtime-configurable; pricing experiments
// happen on the plan catalog, not here.
const (
	FreeItineraryLimit = 1
	FreeChatLimit      = 5
	MonthlyChatLimit   = 50

	MonthlyDurationMonths = 1
	AnnualDurationMonths  = 12
)

// ChatUnlimited marks plans without a chat message cap. Kept as a distinct
// sentinel so limit comparisons never run against a fake large integer.
const ChatUnlimited = -1

func NormalizeSubscriptionType(s string) SubscriptionType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(SubscriptionMonthly):
		return SubscriptionMonthly
	case string(SubscriptionAnnual):
		return SubscriptionAnnual
	default:
		return SubscriptionNone
	}
}

// ChatMessageLimit returns the applicable chat cap for a subscription state.
// An inactive subscription falls back to the free limit regardless of type.
func ChatMessageLimit(subType SubscriptionType, subscriptionActive bool) int {
	if !subscriptionActive {
		return FreeChatLimit
	}
	switch subType {
	case SubscriptionAnnual:
		return ChatUnlimited
	case SubscriptionMonthly:
		return MonthlyChatLimit
	default:
		return FreeChatLimit
	}
}

// SubscriptionDurationMonths maps a subscription type to its granted duration.
func SubscriptionDurationMonths(subType SubscriptionType) int {
	switch subType {
	case SubscriptionAnnual:
		return AnnualDurationMonths
	case SubscriptionMonthly:
		return MonthlyDurationMonths
	default:
		return 0
	}
}
