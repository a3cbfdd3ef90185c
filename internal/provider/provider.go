package provider

import (
	"context"

	"github.com/kursadbilgin/storybird/internal/domain"
)

// Pusher is the outbound push delivery port.
type Pusher interface {
	Push(ctx context.Context, subscription domain.Subscription, message []byte) (*ProviderResponse, error)
}

// ProviderResponse stores push service call metadata.
type ProviderResponse struct {
	StatusCode int
	Body       string
	MessageID  string
}
