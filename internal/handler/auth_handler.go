package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/storybird/internal/auth"
	"github.com/kursadbilgin/storybird/internal/observability"
)

type Authenticator interface {
	Enabled() bool
	TTL() time.Duration
	Login(ctx context.Context, password, clientKey string) (auth.Session, error)
	Logout(ctx context.Context, sessionID string) error
	Authenticated(ctx context.Context, sessionID string) (bool, error)
}

type AuthHandler struct {
	auth         Authenticator
	secureCookie bool
}

func NewAuthHandler(authenticator Authenticator, secureCookie bool) (*AuthHandler, error) {
	if authenticator == nil {
		return nil, fmt.Errorf("authenticator is required")
	}
	return &AuthHandler{auth: authenticator, secureCookie: secureCookie}, nil
}

func RegisterAuthRoutes(router fiber.Router, h *AuthHandler) {
	router.Post("/login", h.Login)
	router.Post("/logout", h.Logout)
	router.Get("/session", h.Session)
}

type loginRequest struct {
	Password string `json:"password"`
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	session, err := h.auth.Login(observability.RequestContext(c), req.Password, c.IP())
	if err != nil {
		return toHTTPError(err)
	}

	c.Cookie(&fiber.Cookie{
		Name:     auth.CookieName,
		Value:    session.ID,
		Path:     "/",
		Expires:  session.ExpiresAt,
		MaxAge:   int(h.auth.TTL().Seconds()),
		HTTPOnly: true,
		Secure:   h.secureCookie,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return c.JSON(successResponse())
}

func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	if err := h.auth.Logout(observability.RequestContext(c), c.Cookies(auth.CookieName)); err != nil {
		return toHTTPError(err)
	}

	c.ClearCookie(auth.CookieName)
	return c.JSON(successResponse())
}

func (h *AuthHandler) Session(c *fiber.Ctx) error {
	ok, err := h.auth.Authenticated(observability.RequestContext(c), c.Cookies(auth.CookieName))
	if err != nil {
		return toHTTPError(err)
	}

	return c.JSON(fiber.Map{
		"authenticated": ok,
		"authRequired":  h.auth.Enabled(),
	})
}
