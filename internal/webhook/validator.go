package webhook

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kursadbilgin/storybird/internal/domain"
)

const (
	SignatureHeader = "X-Cld-Signature"
	TimestampHeader = "X-Cld-Timestamp"
)

// Config configures inbound event verification.
type Config struct {
	Secret        string
	Namespace     domain.Namespace
	AllowUnsigned bool
	MaxAge        time.Duration
}

// uploadNotification is the subset of the media host's upload notification we act on.
type uploadNotification struct {
	NotificationType string `json:"notification_type" validate:"eq=upload"`
	ResourceType     string `json:"resource_type" validate:"eq=video"`
	PublicID         string `json:"public_id" validate:"required"`
	SecureURL        string `json:"secure_url" validate:"omitempty,url"`
}

// Validator authenticates and filters upload notifications.
type Validator struct {
	cfg      Config
	validate *validator.Validate
	now      func() time.Time
}

func NewValidator(cfg Config) (*Validator, error) {
	if cfg.Namespace.Prefix() == "" {
		return nil, fmt.Errorf("%w: namespace is required", domain.ErrValidation)
	}
	if strings.TrimSpace(cfg.Secret) == "" && !cfg.AllowUnsigned {
		return nil, fmt.Errorf("%w: webhook secret is required unless unsigned events are allowed", domain.ErrValidation)
	}
	if cfg.MaxAge < 0 {
		cfg.MaxAge = 0
	}

	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	return &Validator{
		cfg:      cfg,
		validate: v,
		now:      time.Now,
	}, nil
}

// Validate checks the signature, then the shape of the event. It returns
// ErrUnauthorized for authentication failures, ErrInvalidEvent for a body that
// is not a usable event and ErrIgnored for events that are valid but not ours.
func (v *Validator) Validate(raw []byte, signature, timestamp string) (domain.VideoEvent, error) {
	if err := v.authenticate(raw, strings.TrimSpace(signature), strings.TrimSpace(timestamp)); err != nil {
		return domain.VideoEvent{}, err
	}

	var notification uploadNotification
	if err := json.Unmarshal(raw, &notification); err != nil {
		return domain.VideoEvent{}, fmt.Errorf("%w: malformed body: %v", domain.ErrInvalidEvent, err)
	}

	if err := v.validate.Struct(notification); err != nil {
		return domain.VideoEvent{}, classifyShapeError(err)
	}

	publicID := strings.TrimSpace(notification.PublicID)
	if !v.cfg.Namespace.Owns(publicID) {
		return domain.VideoEvent{}, fmt.Errorf("%w: %q is outside %s", domain.ErrIgnored, publicID, v.cfg.Namespace.Prefix())
	}

	event := domain.VideoEvent{
		PublicID: publicID,
		VideoURL: strings.TrimSpace(notification.SecureURL),
	}
	if err := event.Validate(); err != nil {
		return domain.VideoEvent{}, err
	}
	return event, nil
}

func (v *Validator) authenticate(raw []byte, signature, timestamp string) error {
	if signature == "" || timestamp == "" {
		if v.cfg.AllowUnsigned {
			return nil
		}
		return fmt.Errorf("%w: missing signature headers", domain.ErrUnauthorized)
	}
	if v.cfg.Secret == "" {
		return fmt.Errorf("%w: no secret to verify signature", domain.ErrUnauthorized)
	}

	if v.cfg.MaxAge > 0 {
		seconds, err := strconv.ParseInt(timestamp, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: invalid timestamp", domain.ErrUnauthorized)
		}
		age := v.now().Sub(time.Unix(seconds, 0))
		if age > v.cfg.MaxAge || age < -v.cfg.MaxAge {
			return fmt.Errorf("%w: stale timestamp", domain.ErrUnauthorized)
		}
	}

	expected := Sign(raw, timestamp, v.cfg.Secret)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(signature))) != 1 {
		return fmt.Errorf("%w: signature mismatch", domain.ErrUnauthorized)
	}
	return nil
}

// Sign computes hex(sha256(body || timestamp || secret)).
func Sign(raw []byte, timestamp, secret string) string {
	h := sha256.New()
	h.Write(raw)
	h.Write([]byte(timestamp))
	h.Write([]byte(secret))
	return hex.EncodeToString(h.Sum(nil))
}

func classifyShapeError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return fmt.Errorf("%w: %v", domain.ErrInvalidEvent, err)
	}

	for _, fieldErr := range validationErrs {
		switch fieldErr.Field() {
		case "notification_type", "resource_type":
			return fmt.Errorf("%w: %s is %q", domain.ErrIgnored, fieldErr.Field(), fieldErr.Value())
		}
	}
	return fmt.Errorf("%w: %s failed %s", domain.ErrInvalidEvent, validationErrs[0].Field(), validationErrs[0].Tag())
}
