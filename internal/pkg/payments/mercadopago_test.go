package payments

import (
	"testing"

	"github.com/roteira-app/roteira/app/models"
)

func TestMapPaymentStatus(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "approved", want: models.PurchaseStatusCompleted},
		{in: "APPROVED", want: models.PurchaseStatusCompleted},
		{in: "pending", want: models.PurchaseStatusPending},
		{in: "authorized", want: models.PurchaseStatusPending},
		{in: "in_process", want: models.PurchaseStatusPending},
		{in: "in_mediation", want: models.PurchaseStatusPending},
		{in: "rejected", want: models.PurchaseStatusFailed},
		{in: "cancelled", want: models.PurchaseStatusFailed},
		{in: "refunded", want: models.PurchaseStatusRefunded},
		{in: "charged_back", want: models.PurchaseStatusRefunded},
		// Unknown statuses stay pending so a redelivery can settle them.
		{in: "something_new", want: models.PurchaseStatusPending},
		{in: "", want: models.PurchaseStatusPending},
	}

	for _, tt := range tests {
		if got := MapPaymentStatus(tt.in); got != tt.want {
			t.Fatalf("MapPaymentStatus(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPlanCatalog(t *testing.T) {
	single, ok := PlanByType("credit_single")
	if !ok || single.Credits != 1 || single.IsSubscription() {
		t.Fatalf("unexpected credit_single plan: %+v ok=%v", single, ok)
	}

	pack, ok := PlanByType("credit_pack5")
	if !ok || pack.Credits != 5 || pack.IsSubscription() {
		t.Fatalf("unexpected credit_pack5 plan: %+v ok=%v", pack, ok)
	}

	monthly, ok := PlanByType("sub_monthly")
	if !ok || !monthly.IsSubscription() || monthly.DurationMonths != 1 || monthly.Credits != models.CreditsUnlimited {
		t.Fatalf("unexpected sub_monthly plan: %+v ok=%v", monthly, ok)
	}

	annual, ok := PlanByType("sub_annual")
	if !ok || !annual.IsSubscription() || annual.DurationMonths != 12 {
		t.Fatalf("unexpected sub_annual plan: %+v ok=%v", annual, ok)
	}

	if _, ok := PlanByType("free_lunch"); ok {
		t.Fatalf("expected unknown plan type to miss")
	}

	// Case and whitespace tolerant lookup.
	if _, ok := PlanByType("  SUB_ANNUAL "); !ok {
		t.Fatalf("expected normalized lookup to hit")
	}
}
