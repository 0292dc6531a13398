package payments

import (
	"strings"

	"github.com/roteira-app/roteira/app/models"
	"github.com/roteira-app/roteira/internal/pkg/entitlements"
)

type PlanType string

const (
	PlanCreditSingle PlanType = "credit_single"
	PlanCreditPack5  PlanType = "credit_pack5"
	PlanSubMonthly   PlanType = "sub_monthly"
	PlanSubAnnual    PlanType = "sub_annual"
)

// Plan describes a purchasable offer. Credit plans grant spendable credits;
// subscription plans grant a time-bounded entitlement and use the
// CreditsUnlimited sentinel.
type Plan struct {
	Type             PlanType
	Title            string
	AmountCents      int64
	Credits          int
	SubscriptionType entitlements.SubscriptionType
	DurationMonths   int
}

var planCatalog = map[PlanType]Plan{
	PlanCreditSingle: {
		Type:        PlanCreditSingle,
		Title:       "Roteiro avulso",
		AmountCents: 990,
		Credits:     1,
	},
	PlanCreditPack5: {
		Type:        PlanCreditPack5,
		Title:       "Pacote 5 roteiros",
		AmountCents: 3990,
		Credits:     5,
	},
	PlanSubMonthly: {
		Type:             PlanSubMonthly,
		Title:            "Assinatura mensal",
		AmountCents:      2990,
		Credits:          models.CreditsUnlimited,
		SubscriptionType: entitlements.SubscriptionMonthly,
		DurationMonths:   entitlements.MonthlyDurationMonths,
	},
	PlanSubAnnual: {
		Type:             PlanSubAnnual,
		Title:            "Assinatura anual",
		AmountCents:      19900,
		Credits:          models.CreditsUnlimited,
		SubscriptionType: entitlements.SubscriptionAnnual,
		DurationMonths:   entitlements.AnnualDurationMonths,
	},
}

// Plans returns the purchasable catalog in display order.
func Plans() []Plan {
	order := []PlanType{PlanCreditSingle, PlanCreditPack5, PlanSubMonthly, PlanSubAnnual}
	out := make([]Plan, 0, len(order))
	for _, t := range order {
		out = append(out, planCatalog[t])
	}
	return out
}

// PlanByType resolves a plan type string to its catalog entry.
func PlanByType(t string) (Plan, bool) {
	plan, ok := planCatalog[PlanType(strings.ToLower(strings.TrimSpace(t)))]
	return plan, ok
}

// IsSubscription reports whether the plan grants a subscription rather than
// standalone credits.
func (p Plan) IsSubscription() bool {
	return p.SubscriptionType == entitlements.SubscriptionMonthly ||
		p.SubscriptionType == entitlements.SubscriptionAnnual
}
