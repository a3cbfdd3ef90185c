package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/storybird/internal/domain"
	"github.com/kursadbilgin/storybird/internal/observability"
)

type VideoService interface {
	List(ctx context.Context) ([]domain.Video, error)
	SetFavorite(ctx context.Context, publicID string, favorite bool) error
	UpdateDetails(ctx context.Context, publicID, title, description string) error
	MoveToTrash(ctx context.Context, publicID string) (string, error)
}

type VideoHandler struct {
	service VideoService
}

func NewVideoHandler(service VideoService) (*VideoHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("video service is required")
	}
	return &VideoHandler{service: service}, nil
}

// RegisterVideoRoutes mounts the library routes. guard protects mutations.
func RegisterVideoRoutes(router fiber.Router, h *VideoHandler, guard fiber.Handler) {
	videos := router.Group("/videos")
	videos.Get("/", h.ListVideos)
	videos.Post("/:publicId/favorite", guard, h.AddFavorite)
	videos.Delete("/:publicId/favorite", guard, h.RemoveFavorite)
	videos.Put("/:publicId", guard, h.UpdateVideo)
	videos.Delete("/:publicId", guard, h.TrashVideo)
}

type videoResponse struct {
	URL         string    `json:"url"`
	CreatedAt   time.Time `json:"created_at"`
	PublicID    string    `json:"public_id"`
	IsFavorite  bool      `json:"is_favorite"`
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
}

type updateVideoRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

func (h *VideoHandler) ListVideos(c *fiber.Ctx) error {
	videos, err := h.service.List(observability.RequestContext(c))
	if err != nil {
		return toHTTPError(err)
	}

	responses := make([]videoResponse, 0, len(videos))
	for _, video := range videos {
		responses = append(responses, videoResponse{
			URL:         video.URL,
			CreatedAt:   video.CreatedAt,
			PublicID:    video.PublicID,
			IsFavorite:  video.IsFavorite,
			Title:       video.Title,
			Description: video.Description,
		})
	}
	return c.JSON(responses)
}

func (h *VideoHandler) AddFavorite(c *fiber.Ctx) error {
	return h.setFavorite(c, true)
}

func (h *VideoHandler) RemoveFavorite(c *fiber.Ctx) error {
	return h.setFavorite(c, false)
}

func (h *VideoHandler) setFavorite(c *fiber.Ctx, favorite bool) error {
	publicID, err := publicIDParam(c)
	if err != nil {
		return toHTTPError(err)
	}

	if err := h.service.SetFavorite(observability.RequestContext(c), publicID, favorite); err != nil {
		return toHTTPError(err)
	}
	return c.JSON(successResponse())
}

func (h *VideoHandler) UpdateVideo(c *fiber.Ctx) error {
	publicID, err := publicIDParam(c)
	if err != nil {
		return toHTTPError(err)
	}

	var req updateVideoRequest
	if len(c.Body()) > 0 {
		if err := json.Unmarshal(c.Body(), &req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
	}

	title, description := "", ""
	if req.Title != nil {
		title = *req.Title
	}
	if req.Description != nil {
		description = *req.Description
	}

	if err := h.service.UpdateDetails(observability.RequestContext(c), publicID, title, description); err != nil {
		return toHTTPError(err)
	}
	return c.JSON(successResponse())
}

func (h *VideoHandler) TrashVideo(c *fiber.Ctx) error {
	publicID, err := publicIDParam(c)
	if err != nil {
		return toHTTPError(err)
	}

	target, err := h.service.MoveToTrash(observability.RequestContext(c), publicID)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(fiber.Map{"success": true, "publicId": target})
}

// publicIDParam decodes the percent-encoded public id, which contains the
// folder separator.
func publicIDParam(c *fiber.Ctx) (string, error) {
	raw := c.Params("publicId")
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return "", fmt.Errorf("%w: invalid public id", domain.ErrValidation)
	}

	decoded = strings.TrimSpace(decoded)
	if decoded == "" {
		return "", fmt.Errorf("%w: public id is required", domain.ErrValidation)
	}
	return decoded, nil
}
