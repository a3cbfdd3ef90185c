package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/storybird/internal/agent"
	"github.com/kursadbilgin/storybird/internal/domain"
	"github.com/kursadbilgin/storybird/internal/observability"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

type SubscriptionService interface {
	PublicKey() (string, error)
	Subscribe(ctx context.Context, raw []byte) (domain.Subscription, error)
	Unsubscribe(ctx context.Context, endpoint string) error
}

type TestSender interface {
	SendTest(ctx context.Context) (domain.NotificationPayload, domain.DispatchReport)
}

// CycleHistory lists recorded dispatch cycles. It may be nil when no
// recorder is configured.
type CycleHistory interface {
	ListRecent(ctx context.Context, limit int) ([]domain.DispatchCycle, error)
}

type PushHandler struct {
	subscriptions SubscriptionService
	sender        TestSender
	history       CycleHistory
}

func NewPushHandler(subscriptions SubscriptionService, sender TestSender, history CycleHistory) (*PushHandler, error) {
	if subscriptions == nil {
		return nil, fmt.Errorf("subscription service is required")
	}
	if sender == nil {
		return nil, fmt.Errorf("test sender is required")
	}
	return &PushHandler{subscriptions: subscriptions, sender: sender, history: history}, nil
}

// RegisterPushRoutes mounts the subscription and push routes. guard protects
// the test and history routes.
// RegisterPushRoutes mounts the push routes. The broadcast test route is
// only mounted when testRoute is set.
func RegisterPushRoutes(router fiber.Router, h *PushHandler, guard fiber.Handler, testRoute bool) {
	push := router.Group("/push")
	push.Get("/vapid-public-key", h.VAPIDPublicKey)
	push.Post("/subscribe", h.Subscribe)
	push.Post("/unsubscribe", h.Unsubscribe)
	if testRoute {
		push.Post("/test", guard, h.SendTest)
	}
	push.Get("/dispatches", guard, h.ListDispatches)
}

type unsubscribeRequest struct {
	Endpoint string `json:"endpoint"`
}

type outcomeResponse struct {
	Endpoint   string `json:"endpoint"`
	Status     string `json:"status"`
	StatusCode int    `json:"statusCode,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"durationMs"`
}

type dispatchReportResponse struct {
	ID           string            `json:"id,omitempty"`
	Attempted    int               `json:"attempted"`
	Delivered    int               `json:"delivered"`
	Transient    int               `json:"transient"`
	Permanent    int               `json:"permanent"`
	Pruned       []string          `json:"pruned"`
	Outcomes     []outcomeResponse `json:"outcomes"`
	StorageError string            `json:"storageError,omitempty"`
	PruneError   string            `json:"pruneError,omitempty"`
	DurationMs   int64             `json:"durationMs"`
}

type testResponse struct {
	Success     bool                   `json:"success"`
	Subscribers int                    `json:"subscribers"`
	Report      dispatchReportResponse `json:"report"`
	Preview     agent.Presentation     `json:"preview"`
}

type dispatchCycleResponse struct {
	ID        string    `json:"id"`
	Trigger   string    `json:"trigger"`
	Attempted int       `json:"attempted"`
	Delivered int       `json:"delivered"`
	Transient int       `json:"transient"`
	Permanent int       `json:"permanent"`
	Pruned    int       `json:"pruned"`
	Status    string    `json:"status"`
	Error     *string   `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func (h *PushHandler) VAPIDPublicKey(c *fiber.Ctx) error {
	key, err := h.subscriptions.PublicKey()
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(fiber.Map{"publicKey": key})
}

func (h *PushHandler) Subscribe(c *fiber.Ctx) error {
	if _, err := h.subscriptions.Subscribe(observability.RequestContext(c), c.Body()); err != nil {
		return toHTTPError(err)
	}
	return c.JSON(successResponse())
}

func (h *PushHandler) Unsubscribe(c *fiber.Ctx) error {
	var req unsubscribeRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if err := h.subscriptions.Unsubscribe(observability.RequestContext(c), req.Endpoint); err != nil {
		return toHTTPError(err)
	}
	return c.JSON(successResponse())
}

func (h *PushHandler) SendTest(c *fiber.Ctx) error {
	payload, report := h.sender.SendTest(observability.RequestContext(c))

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	return c.JSON(testResponse{
		Success:     report.StorageError == nil,
		Subscribers: report.Attempted,
		Report:      toReportResponse(report),
		Preview:     agent.Present(raw),
	})
}

func (h *PushHandler) ListDispatches(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultHistoryLimit)
	if limit < 1 || limit > maxHistoryLimit {
		return toHTTPError(fmt.Errorf("%w: limit must be between 1 and %d", domain.ErrValidation, maxHistoryLimit))
	}

	if h.history == nil {
		return c.JSON([]dispatchCycleResponse{})
	}

	cycles, err := h.history.ListRecent(observability.RequestContext(c), limit)
	if err != nil {
		return toHTTPError(err)
	}

	responses := make([]dispatchCycleResponse, 0, len(cycles))
	for _, cycle := range cycles {
		responses = append(responses, dispatchCycleResponse{
			ID:        cycle.ID,
			Trigger:   cycle.Trigger,
			Attempted: cycle.Attempted,
			Delivered: cycle.Delivered,
			Transient: cycle.Transient,
			Permanent: cycle.Permanent,
			Pruned:    cycle.Pruned,
			Status:    cycle.Status.String(),
			Error:     cycle.Error,
			CreatedAt: cycle.CreatedAt,
		})
	}
	return c.JSON(responses)
}

func toReportResponse(report domain.DispatchReport) dispatchReportResponse {
	response := dispatchReportResponse{
		ID:         report.ID,
		Attempted:  report.Attempted,
		Delivered:  report.Delivered,
		Transient:  report.Transient,
		Permanent:  report.Permanent,
		Pruned:     append([]string{}, report.Pruned...),
		Outcomes:   make([]outcomeResponse, 0, len(report.Outcomes)),
		DurationMs: report.Duration.Milliseconds(),
	}
	if report.StorageError != nil {
		response.StorageError = report.StorageError.Error()
	}
	if report.PruneError != nil {
		response.PruneError = report.PruneError.Error()
	}

	for _, outcome := range report.Outcomes {
		response.Outcomes = append(response.Outcomes, outcomeResponse{
			Endpoint:   outcome.Endpoint,
			Status:     outcome.Status.String(),
			StatusCode: outcome.StatusCode,
			Error:      strings.TrimSpace(outcome.Error),
			DurationMs: outcome.Duration.Milliseconds(),
		})
	}
	return response
}
