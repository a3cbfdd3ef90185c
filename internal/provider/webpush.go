package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/kursadbilgin/storybird/internal/domain"
)

const (
	defaultPushTTL   = 24 * 60 * 60
	maxResponseBytes = 4096
)

// VAPIDCredentials identify this server to the browser push services.
type VAPIDCredentials struct {
	PublicKey  string
	PrivateKey string
	Subscriber string
	TTL        int
}

// WebPushProvider delivers encrypted payloads with the Web Push protocol.
type WebPushProvider struct {
	client webpush.HTTPClient
	creds  VAPIDCredentials
}

func NewWebPushProvider(creds VAPIDCredentials) (*WebPushProvider, error) {
	return NewWebPushProviderWithClient(creds, &http.Client{})
}

func NewWebPushProviderWithClient(creds VAPIDCredentials, client webpush.HTTPClient) (*WebPushProvider, error) {
	creds.PublicKey = strings.TrimSpace(creds.PublicKey)
	creds.PrivateKey = strings.TrimSpace(creds.PrivateKey)
	creds.Subscriber = strings.TrimSpace(creds.Subscriber)

	if creds.PublicKey == "" || creds.PrivateKey == "" {
		return nil, fmt.Errorf("%w: vapid key pair is required", domain.ErrNotConfigured)
	}
	if client == nil {
		return nil, fmt.Errorf("http client is required")
	}
	if creds.TTL <= 0 {
		creds.TTL = defaultPushTTL
	}

	return &WebPushProvider{
		client: client,
		creds:  creds,
	}, nil
}

func (p *WebPushProvider) Push(ctx context.Context, subscription domain.Subscription, message []byte) (*ProviderResponse, error) {
	if p == nil || p.client == nil {
		return nil, fmt.Errorf("provider is not initialized")
	}

	keys, err := subscription.Keys()
	if err != nil {
		return nil, &ProviderError{
			Message: "invalid subscription",
			Cause:   err,
		}
	}

	response, err := webpush.SendNotificationWithContext(ctx, message, &webpush.Subscription{
		Endpoint: subscription.Endpoint,
		Keys: webpush.Keys{
			Auth:   keys.Auth,
			P256dh: keys.P256dh,
		},
	}, &webpush.Options{
		HTTPClient:      p.client,
		Subscriber:      p.creds.Subscriber,
		VAPIDPublicKey:  p.creds.PublicKey,
		VAPIDPrivateKey: p.creds.PrivateKey,
		TTL:             p.creds.TTL,
		Urgency:         webpush.UrgencyNormal,
	})
	if err != nil {
		message := "push request failed"
		if errors.Is(err, context.DeadlineExceeded) {
			message = "push request timed out"
		}
		return nil, &ProviderError{
			Message: message,
			Cause:   err,
		}
	}
	defer response.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(response.Body, maxResponseBytes))
	responseBody := strings.TrimSpace(string(body))
	statusCode := response.StatusCode

	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return &ProviderResponse{
			StatusCode: statusCode,
			Body:       responseBody,
			MessageID:  strings.TrimSpace(response.Header.Get("Location")),
		}, nil
	}

	return nil, &ProviderError{
		StatusCode: statusCode,
		Message:    providerErrorMessage(statusCode, responseBody),
		Gone:       isGoneStatus(statusCode),
	}
}

// GenerateVAPIDKeys creates a new key pair for VAPID_PUBLIC_KEY and VAPID_PRIVATE_KEY.
func GenerateVAPIDKeys() (publicKey string, privateKey string, err error) {
	privateKey, publicKey, err = webpush.GenerateVAPIDKeys()
	if err != nil {
		return "", "", fmt.Errorf("failed to generate vapid keys: %w", err)
	}
	return publicKey, privateKey, nil
}

func providerErrorMessage(statusCode int, body string) string {
	base := fmt.Sprintf("push service returned status %d", statusCode)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, body)
}
