package handler

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/storybird/internal/livestream"
	"github.com/kursadbilgin/storybird/internal/observability"
)

type LiveRelay interface {
	PiConfig() livestream.PiConfig
	Start(ctx context.Context) (livestream.StartResult, error)
	Stop(ctx context.Context) error
}

type LiveHandler struct {
	relay LiveRelay
}

func NewLiveHandler(relay LiveRelay) (*LiveHandler, error) {
	if relay == nil {
		return nil, fmt.Errorf("live relay is required")
	}
	return &LiveHandler{relay: relay}, nil
}

func RegisterLiveRoutes(router fiber.Router, h *LiveHandler) {
	router.Get("/pi-config", h.PiConfig)
	router.Post("/live/start", h.Start)
	router.Post("/live/stop", h.Stop)
}

func (h *LiveHandler) PiConfig(c *fiber.Ctx) error {
	return c.JSON(h.relay.PiConfig())
}

func (h *LiveHandler) Start(c *fiber.Ctx) error {
	result, err := h.relay.Start(observability.RequestContext(c))
	if err != nil {
		mapped := toHTTPError(err)
		if mapped == err {
			return fiber.NewError(fiber.StatusBadGateway, err.Error())
		}
		return mapped
	}
	return c.JSON(result)
}

func (h *LiveHandler) Stop(c *fiber.Ctx) error {
	if err := h.relay.Stop(observability.RequestContext(c)); err != nil {
		return toHTTPError(err)
	}
	return c.JSON(successResponse())
}
