package payments

import (
	"encoding/base64"
	"testing"
)

func TestReferenceRoundTrip(t *testing.T) {
	in := Reference{UserID: 42, PlanType: PlanCreditPack5, Credits: 5}

	encoded, err := EncodeReference(in)
	if err != nil {
		t.Fatalf("EncodeReference failed: %v", err)
	}

	out, err := DecodeReference(encoded)
	if err != nil {
		t.Fatalf("DecodeReference failed: %v", err)
	}
	if out != in {
		t.Fatalf("round trip mismatch: got %+v, want %+v", out, in)
	}
}

func TestEncodeReferenceRejectsInvalid(t *testing.T) {
	if _, err := EncodeReference(Reference{PlanType: PlanCreditSingle, Credits: 1}); err == nil {
		t.Fatalf("expected missing user id to fail")
	}
	if _, err := EncodeReference(Reference{UserID: 1, PlanType: "gold_plan"}); err == nil {
		t.Fatalf("expected unknown plan type to fail")
	}
}

func TestDecodeReferenceRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{name: "empty", in: ""},
		{name: "not base64", in: "%%%"},
		{name: "not json", in: base64.RawURLEncoding.EncodeToString([]byte("hello"))},
		{name: "missing user", in: base64.RawURLEncoding.EncodeToString([]byte(`{"plan_type":"credit_single","credits":1}`))},
		{name: "unknown plan", in: base64.RawURLEncoding.EncodeToString([]byte(`{"user_id":1,"plan_type":"gold"}`))},
	}

	for _, tt := range tests {
		if _, err := DecodeReference(tt.in); err == nil {
			t.Fatalf("%s: expected decode to fail", tt.name)
		}
	}
}

func TestDecodeReferenceAcceptsStdPadding(t *testing.T) {
	raw := []byte(`{"user_id":7,"plan_type":"credit_single","credits":1}`)
	padded := base64.StdEncoding.EncodeToString(raw)

	ref, err := DecodeReference(padded)
	if err != nil {
		t.Fatalf("DecodeReference(std padding) failed: %v", err)
	}
	if ref.UserID != 7 || ref.PlanType != PlanCreditSingle {
		t.Fatalf("unexpected decode result: %+v", ref)
	}
}
