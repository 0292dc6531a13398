package payments

import (
	"encoding/json"
	"strings"
)

type NotificationKind int

const (
	// NotificationIgnore covers non-payment topics and unrecognized shapes.
	// The webhook handler acknowledges these without processing so provider
	// retries are never triggered by noise.
	NotificationIgnore NotificationKind = iota
	NotificationPayment
)

// Notification is the normalized form of a provider webhook delivery.
// All accepted wire shapes collapse into this value before any business
// logic runs.
type Notification struct {
	Kind      NotificationKind
	PaymentID string
	Topic     string
}

// ParseNotification normalizes the query-string and JSON-body encodings
// Mercado Pago uses for webhook deliveries:
//
//	?id=123&topic=payment
//	?data.id=123&type=payment
//	{"data":{"id":"123"},"type":"payment"}
//	{"resource":"123","topic":"payment"}
//
// Anything else decodes to the ignore variant.
func ParseNotification(query func(key string) string, body []byte) Notification {
	if n, ok := parseQueryNotification(query); ok {
		return n
	}
	if n, ok := parseBodyNotification(body); ok {
		return n
	}
	return Notification{Kind: NotificationIgnore}
}

func parseQueryNotification(query func(key string) string) (Notification, bool) {
	if query == nil {
		return Notification{}, false
	}

	topic := strings.TrimSpace(query("topic"))
	if topic == "" {
		topic = strings.TrimSpace(query("type"))
	}
	id := strings.TrimSpace(query("id"))
	if id == "" {
		id = strings.TrimSpace(query("data.id"))
	}
	if topic == "" && id == "" {
		return Notification{}, false
	}
	return classify(topic, id), true
}

func parseBodyNotification(body []byte) (Notification, bool) {
	if len(body) == 0 {
		return Notification{}, false
	}

	var raw struct {
		Type     string `json:"type"`
		Topic    string `json:"topic"`
		Action   string `json:"action"`
		Resource string `json:"resource"`
		Data     struct {
			ID flexibleID `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return Notification{}, false
	}

	topic := strings.TrimSpace(raw.Type)
	if topic == "" {
		topic = strings.TrimSpace(raw.Topic)
	}
	if topic == "" && raw.Action != "" {
		// Actions look like "payment.updated"; the topic is the prefix.
		topic = strings.SplitN(raw.Action, ".", 2)[0]
	}

	id := strings.TrimSpace(string(raw.Data.ID))
	if id == "" {
		// Legacy IPN bodies carry a resource URL ending in the payment id.
		res := strings.TrimRight(strings.TrimSpace(raw.Resource), "/")
		if idx := strings.LastIndex(res, "/"); idx >= 0 {
			res = res[idx+1:]
		}
		id = res
	}
	if topic == "" && id == "" {
		return Notification{}, false
	}
	return classify(topic, id), true
}

// flexibleID accepts both string and numeric JSON encodings; the provider
// uses either depending on notification version.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexibleID(n.String())
		return nil
	}
	// Unrecognized id shapes degrade to empty, which classifies as ignore.
	*f = ""
	return nil
}

func classify(topic, id string) Notification {
	n := Notification{Topic: strings.ToLower(topic), PaymentID: id}
	if n.Topic != "payment" || n.PaymentID == "" {
		n.Kind = NotificationIgnore
		return n
	}
	n.Kind = NotificationPayment
	return n
}
