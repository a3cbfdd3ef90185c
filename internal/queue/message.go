package queue

import (
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/storybird/internal/domain"
)

// DispatchMessage is the broker payload for one dispatch cycle.
type DispatchMessage struct {
	ID            string                     `json:"id"`
	CorrelationID string                     `json:"correlationId,omitempty"`
	Trigger       string                     `json:"trigger"`
	Payload       domain.NotificationPayload `json:"payload"`
	EnqueuedAt    time.Time                  `json:"enqueuedAt"`
}

func (m DispatchMessage) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return fmt.Errorf("id is required")
	}
	if strings.TrimSpace(m.Trigger) == "" {
		return fmt.Errorf("trigger is required")
	}
	if err := m.Payload.Validate(); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}
