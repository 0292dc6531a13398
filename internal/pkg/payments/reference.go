package payments

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// Reference is the opaque payload round-tripped through the payment provider
// as the checkout's external reference. It is the only link back from a
// settled payment to the purchasing user when the preference lookup fails.
type Reference struct {
	UserID   uint     `json:"user_id"`
	PlanType PlanType `json:"plan_type"`
	Credits  int      `json:"credits"`
}

// EncodeReference serializes a reference as base64url JSON.
func EncodeReference(r Reference) (string, error) {
	if r.UserID == 0 {
		return "", errors.New("reference requires a user id")
	}
	if _, ok := PlanByType(string(r.PlanType)); !ok {
		return "", fmt.Errorf("reference has unknown plan type %q", r.PlanType)
	}
	raw, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// DecodeReference parses a provider-echoed external reference. Any missing
// required field is an error; callers log and acknowledge rather than crash.
func DecodeReference(s string) (Reference, error) {
	var ref Reference
	if s == "" {
		return ref, errors.New("external reference is empty")
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		// Older checkouts used standard base64 padding.
		raw, err = base64.StdEncoding.DecodeString(s)
		if err != nil {
			return ref, fmt.Errorf("external reference is not base64: %w", err)
		}
	}
	if err := json.Unmarshal(raw, &ref); err != nil {
		return ref, fmt.Errorf("external reference is not valid JSON: %w", err)
	}
	if ref.UserID == 0 {
		return Reference{}, errors.New("external reference missing user id")
	}
	if _, ok := PlanByType(string(ref.PlanType)); !ok {
		return Reference{}, fmt.Errorf("external reference has unknown plan type %q", ref.PlanType)
	}
	return ref, nil
}
