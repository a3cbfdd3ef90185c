package service

import (
	"strings"

	"github.com/kursadbilgin/storybird/internal/domain"
)

const defaultOpenURL = "/"

// ComposerConfig holds the static parts of every notification.
type ComposerConfig struct {
	Title     string
	Body      string
	Icon      string
	Badge     string
	OpenURL   string
	TestTitle string
	TestBody  string
}

// Composer turns a validated video event into the broadcast payload.
type Composer struct {
	cfg ComposerConfig
}

func NewComposer(cfg ComposerConfig) *Composer {
	if strings.TrimSpace(cfg.OpenURL) == "" {
		cfg.OpenURL = defaultOpenURL
	}
	if cfg.TestTitle == "" {
		cfg.TestTitle = "🐦 Test Storybird"
	}
	if cfg.TestBody == "" {
		cfg.TestBody = "Les notifications fonctionnent !"
	}
	return &Composer{cfg: cfg}
}

func (c *Composer) Compose(event domain.VideoEvent) (domain.NotificationPayload, error) {
	if err := event.Validate(); err != nil {
		return domain.NotificationPayload{}, err
	}

	payload := c.base(c.cfg.Title, c.cfg.Body)
	payload.Data.VideoURL = strings.TrimSpace(event.VideoURL)

	if err := payload.Validate(); err != nil {
		return domain.NotificationPayload{}, err
	}
	return payload, nil
}

// TestPayload is the fixed payload sent by the push test route.
func (c *Composer) TestPayload() domain.NotificationPayload {
	return c.base(c.cfg.TestTitle, c.cfg.TestBody)
}

func (c *Composer) base(title, body string) domain.NotificationPayload {
	return domain.NotificationPayload{
		Title: title,
		Body:  body,
		Icon:  c.cfg.Icon,
		Badge: c.cfg.Badge,
		Data: domain.PayloadData{
			URL: c.cfg.OpenURL,
		},
	}
}
