package entitlements

import "testing"

func TestNormalizeSubscriptionType(t *testing.T) {
	tests := []struct {
		in   string
		want SubscriptionType
	}{
		{in: "monthly", want: SubscriptionMonthly},
		{in: "annual", want: SubscriptionAnnual},
		{in: "MONTHLY", want: SubscriptionMonthly},
		{in: " annual ", want: SubscriptionAnnual},
		{in: "none", want: SubscriptionNone},
		{in: "", want: SubscriptionNone},
		{in: "weekly", want: SubscriptionNone},
	}

	for _, tt := range tests {
		if got := NormalizeSubscriptionType(tt.in); got != tt.want {
			t.Fatalf("NormalizeSubscriptionType(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestChatMessageLimit(t *testing.T) {
	tests := []struct {
		subType SubscriptionType
		active  bool
		want    int
	}{
		{subType: SubscriptionAnnual, active: true, want: ChatUnlimited},
		{subType: SubscriptionMonthly, active: true, want: MonthlyChatLimit},
		{subType: SubscriptionNone, active: false, want: FreeChatLimit},
		// An expired subscription falls back to the free cap.
		{subType: SubscriptionAnnual, active: false, want: FreeChatLimit},
		{subType: SubscriptionMonthly, active: false, want: FreeChatLimit},
	}

	for _, tt := range tests {
		if got := ChatMessageLimit(tt.subType, tt.active); got != tt.want {
			t.Fatalf("ChatMessageLimit(%q, %v) = %d, want %d", tt.subType, tt.active, got, tt.want)
		}
	}
}

func TestSubscriptionDurationMonths(t *testing.T) {
	if got := SubscriptionDurationMonths(SubscriptionMonthly); got != 1 {
		t.Fatalf("monthly duration = %d, want 1", got)
	}
	if got := SubscriptionDurationMonths(SubscriptionAnnual); got != 12 {
		t.Fatalf("annual duration = %d, want 12", got)
	}
	if got := SubscriptionDurationMonths(SubscriptionNone); got != 0 {
		t.Fatalf("none duration = %d, want 0", got)
	}
}
