package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/roteira-app/roteira/app/models"
	"github.com/roteira-app/roteira/internal/pkg/env"
)

const defaultMercadoPagoAPIBaseURL = "https://api.mercadopago.com"

// MercadoPagoClient talks to the Mercado Pago REST API: preference creation
// at checkout time and the authoritative payment-details fetch during
// webhook reconciliation.
type MercadoPagoClient struct {
	AccessToken string
	APIBaseURL  string

	HTTPClient *http.Client
}

func NewMercadoPagoClientFromEnv() *MercadoPagoClient {
	return &MercadoPagoClient{
		AccessToken: strings.TrimSpace(env.GetEnv("MP_ACCESS_TOKEN", "")),
		APIBaseURL:  strings.TrimRight(env.GetEnv("MP_API_BASE_URL", defaultMercadoPagoAPIBaseURL), "/"),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// PreferenceItem is a single line item on a checkout preference.
type PreferenceItem struct {
	Title      string  `json:"title"`
	Quantity   int     `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	CurrencyID string  `json:"currency_id"`
}

// PreferenceRequest is the checkout-session creation payload.
type PreferenceRequest struct {
	Items             []PreferenceItem `json:"items"`
	ExternalReference string           `json:"external_reference"`
	NotificationURL   string           `json:"notification_url,omitempty"`
	BackURLs          struct {
		Success string `json:"success,omitempty"`
		Pending string `json:"pending,omitempty"`
		Failure string `json:"failure,omitempty"`
	} `json:"back_urls"`
	AutoReturn string `json:"auto_return,omitempty"`
}

// Preference is the created checkout session.
type Preference struct {
	ID               string `json:"id"`
	InitPoint        string `json:"init_point"`
	SandboxInitPoint string `json:"sandbox_init_point"`
}

// Payment is the authoritative payment detail fetched by id. The webhook
// notification itself is never trusted for status or amount.
type Payment struct {
	ID                int64   `json:"id"`
	Status            string  `json:"status"`
	StatusDetail      string  `json:"status_detail"`
	ExternalReference string  `json:"external_reference"`
	PreferenceID      string  `json:"preference_id"`
	TransactionAmount float64 `json:"transaction_amount"`
	CurrencyID        string  `json:"currency_id"`
	PayerEmail        string  `json:"-"`
}

func (c *MercadoPagoClient) configured() error {
	if strings.TrimSpace(c.AccessToken) == "" {
		return errors.New("MP_ACCESS_TOKEN is not configured")
	}
	return nil
}

// CreatePreference creates a checkout session and returns the redirect target.
func (c *MercadoPagoClient) CreatePreference(ctx context.Context, in PreferenceRequest) (*Preference, error) {
	if err := c.configured(); err != nil {
		return nil, err
	}
	if len(in.Items) == 0 {
		return nil, errors.New("preference requires at least one item")
	}

	payload, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIBaseURL+"/checkout/preferences", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.AccessToken)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("mercadopago preference creation failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	var out Preference
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.ID) == "" {
		return nil, errors.New("mercadopago preference response missing id")
	}
	return &out, nil
}

// GetPayment fetches payment details by id.
func (c *MercadoPagoClient) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	if err := c.configured(); err != nil {
		return nil, err
	}
	id := strings.TrimSpace(paymentID)
	if id == "" {
		return nil, errors.New("payment id is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.APIBaseURL+"/v1/payments/"+id, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.AccessToken)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("mercadopago payment fetch failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	var raw struct {
		Payment
		Payer struct {
			Email string `json:"email"`
		} `json:"payer"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	if raw.Payment.ID == 0 {
		return nil, errors.New("mercadopago payment response missing id")
	}
	out := raw.Payment
	out.PayerEmail = strings.TrimSpace(raw.Payer.Email)
	return &out, nil
}

// MapPaymentStatus translates a provider payment status to the internal
// purchase status via a fixed table. Unknown statuses map to pending so a
// later redelivery can still settle them.
func MapPaymentStatus(providerStatus string) string {
	switch strings.ToLower(strings.TrimSpace(providerStatus)) {
	case "approved":
		return models.PurchaseStatusCompleted
	case "pending", "authorized", "in_process", "in_mediation":
		return models.PurchaseStatusPending
	case "rejected", "cancelled":
		return models.PurchaseStatusFailed
	case "refunded", "charged_back":
		return models.PurchaseStatusRefunded
	default:
		return models.PurchaseStatusPending
	}
}
