package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// VideoEvent is a validated "new video uploaded" event from the media host.
type VideoEvent struct {
	PublicID string
	VideoURL string
}

func (e VideoEvent) Validate() error {
	if strings.TrimSpace(e.PublicID) == "" {
		return fmt.Errorf("%w: public_id is required", ErrInvalidEvent)
	}
	return nil
}

// PayloadData is the opaque data block delivered with a notification.
type PayloadData struct {
	URL      string `json:"url"`
	VideoURL string `json:"videoUrl,omitempty"`
}

// NotificationPayload is broadcast identically to every subscriber.
type NotificationPayload struct {
	Title string      `json:"title"`
	Body  string      `json:"body"`
	Icon  string      `json:"icon,omitempty"`
	Badge string      `json:"badge,omitempty"`
	Data  PayloadData `json:"data"`
}

func (p NotificationPayload) Validate() error {
	if strings.TrimSpace(p.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if strings.TrimSpace(p.Data.URL) == "" {
		return fmt.Errorf("%w: data.url is required", ErrValidation)
	}
	return nil
}

// Marshal serializes the payload once for the whole dispatch cycle.
func (p NotificationPayload) Marshal() ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(p)
}
