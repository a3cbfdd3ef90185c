package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SubscriptionKeys holds the client-side encryption material of a push subscription.
type SubscriptionKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// Subscription is one opted-in browser. Endpoint is the unique identity; Raw
// keeps the full object the browser sent so unknown fields survive a round trip.
type Subscription struct {
	Endpoint  string
	Raw       json.RawMessage
	CreatedAt time.Time
}

type subscriptionEnvelope struct {
	Endpoint string           `json:"endpoint"`
	Keys     SubscriptionKeys `json:"keys"`
}

// ParseSubscription decodes a browser PushSubscription JSON object.
func ParseSubscription(raw []byte) (Subscription, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Subscription{}, fmt.Errorf("%w: subscription must be a JSON object", ErrValidation)
	}

	var envelope subscriptionEnvelope
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return Subscription{}, fmt.Errorf("%w: invalid subscription: %v", ErrValidation, err)
	}

	endpoint := strings.TrimSpace(envelope.Endpoint)
	if endpoint == "" {
		return Subscription{}, fmt.Errorf("%w: endpoint is required", ErrValidation)
	}

	return Subscription{
		Endpoint: endpoint,
		Raw:      append(json.RawMessage(nil), trimmed...),
	}, nil
}

// Keys returns the encryption keys embedded in the raw subscription.
func (s Subscription) Keys() (SubscriptionKeys, error) {
	var envelope subscriptionEnvelope
	if len(s.Raw) == 0 {
		return SubscriptionKeys{}, fmt.Errorf("%w: subscription %q has no payload", ErrValidation, s.Endpoint)
	}
	if err := json.Unmarshal(s.Raw, &envelope); err != nil {
		return SubscriptionKeys{}, fmt.Errorf("%w: subscription %q: %v", ErrValidation, s.Endpoint, err)
	}
	if strings.TrimSpace(envelope.Keys.P256dh) == "" || strings.TrimSpace(envelope.Keys.Auth) == "" {
		return SubscriptionKeys{}, fmt.Errorf("%w: subscription %q is missing encryption keys", ErrValidation, s.Endpoint)
	}
	return envelope.Keys, nil
}

func (s Subscription) MarshalJSON() ([]byte, error) {
	if len(s.Raw) == 0 {
		return json.Marshal(subscriptionEnvelope{Endpoint: s.Endpoint})
	}
	return s.Raw, nil
}

func (s *Subscription) UnmarshalJSON(data []byte) error {
	parsed, err := ParseSubscription(data)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
