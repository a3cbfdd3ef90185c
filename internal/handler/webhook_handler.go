package handler

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/storybird/internal/domain"
	"github.com/kursadbilgin/storybird/internal/observability"
	"github.com/kursadbilgin/storybird/internal/service"
	"github.com/kursadbilgin/storybird/internal/webhook"
	"go.uber.org/zap"
)

type EventValidator interface {
	Validate(raw []byte, signature, timestamp string) (domain.VideoEvent, error)
}

type VideoNotifier interface {
	NotifyNewVideo(ctx context.Context, event domain.VideoEvent) (service.NotifyResult, error)
}

type WebhookHandler struct {
	validator EventValidator
	notifier  VideoNotifier
	metrics   *observability.Metrics
	logger    *zap.Logger
}

func NewWebhookHandler(
	validator EventValidator,
	notifier VideoNotifier,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*WebhookHandler, error) {
	if validator == nil {
		return nil, fmt.Errorf("event validator is required")
	}
	if notifier == nil {
		return nil, fmt.Errorf("video notifier is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{validator: validator, notifier: notifier, metrics: metrics, logger: logger}, nil
}

func RegisterWebhookRoutes(router fiber.Router, h *WebhookHandler) {
	router.Post("/webhook/cloudinary", h.Cloudinary)
}

type webhookResponse struct {
	Success   bool                    `json:"success"`
	Ignored   bool                    `json:"ignored,omitempty"`
	Queued    bool                    `json:"queued,omitempty"`
	MessageID string                  `json:"messageId,omitempty"`
	Report    *dispatchReportResponse `json:"report,omitempty"`
}

// Cloudinary acknowledges every authenticated upload notification with 200,
// including those that are ignored, so the media host does not retry them.
func (h *WebhookHandler) Cloudinary(c *fiber.Ctx) error {
	ctx := observability.RequestContext(c)
	logger := observability.WithContextLogger(h.logger, ctx)

	event, err := h.validator.Validate(
		c.Body(),
		c.Get(webhook.SignatureHeader),
		c.Get(webhook.TimestampHeader),
	)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrUnauthorized):
		h.metrics.IncWebhookEvent("unauthorized")
		logger.Warn("webhook rejected", zap.Error(err))
		return fiber.NewError(fiber.StatusUnauthorized, "invalid signature")
	case errors.Is(err, domain.ErrIgnored):
		h.metrics.IncWebhookEvent("ignored")
		logger.Debug("webhook ignored", zap.Error(err))
		return c.JSON(webhookResponse{Success: true, Ignored: true})
	case errors.Is(err, domain.ErrInvalidEvent):
		h.metrics.IncWebhookEvent("invalid")
		logger.Warn("webhook body invalid", zap.Error(err))
		return c.JSON(webhookResponse{Success: true, Ignored: true})
	default:
		h.metrics.IncWebhookEvent("error")
		return err
	}

	result, err := h.notifier.NotifyNewVideo(ctx, event)
	if err != nil {
		h.metrics.IncWebhookEvent("error")
		return toHTTPError(err)
	}

	h.metrics.IncWebhookEvent("dispatched")
	response := webhookResponse{
		Success:   true,
		Queued:    result.Queued,
		MessageID: result.MessageID,
	}
	if result.Report != nil {
		report := toReportResponse(*result.Report)
		response.Report = &report
	}
	return c.JSON(response)
}
