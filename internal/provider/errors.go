package provider

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/kursadbilgin/storybird/internal/domain"
)

// ProviderError describes a failed delivery to a push service.
type ProviderError struct {
	StatusCode int
	Message    string
	Gone       bool
	Cause      error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 4)
	parts = append(parts, "provider error")

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// IsGone reports whether the push service says the subscription no longer exists.
func IsGone(err error) bool {
	if err == nil {
		return false
	}

	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Gone
	}
	return false
}

// Classify maps a Push result to a delivery status. Only "gone" and "not
// found" answers are permanent; timeouts, network errors and every other
// status are transient and never prune a subscription.
func Classify(err error) domain.DeliveryStatus {
	switch {
	case err == nil:
		return domain.DeliveryDelivered
	case IsGone(err):
		return domain.DeliveryPermanentFailure
	default:
		return domain.DeliveryTransientFailure
	}
}

// StatusCode extracts the push service status code from err, or 0.
func StatusCode(err error) int {
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.StatusCode
	}
	return 0
}

func isGoneStatus(statusCode int) bool {
	return statusCode == http.StatusGone || statusCode == http.StatusNotFound
}
