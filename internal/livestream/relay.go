package livestream

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/storybird/internal/domain"
	"github.com/kursadbilgin/storybird/internal/observability"
	"go.uber.org/zap"
)

const (
	DefaultStreamPath   = "/birdcam/"
	DefaultPollInterval = 500 * time.Millisecond
	DefaultReadyTimeout = 10 * time.Second

	requestTimeout = 5 * time.Second
)

// Config points the relay at the camera host.
type Config struct {
	PiURL        string
	StreamPath   string
	PollInterval time.Duration
	ReadyTimeout time.Duration
}

// PiConfig is what browsers need to embed the stream.
type PiConfig struct {
	PiURL      string `json:"piUrl"`
	Configured bool   `json:"configured"`
	StreamPath string `json:"streamPath"`
}

// StartResult reports whether streaming started and the stream answered.
type StartResult struct {
	Success   bool   `json:"success"`
	Ready     bool   `json:"ready"`
	StreamURL string `json:"streamUrl"`
}

type streamingResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// Relay drives the camera streaming service on the Raspberry Pi.
type Relay struct {
	client *resty.Client
	cfg    Config
	logger *zap.Logger
}

// NewRelay returns a relay. An empty PiURL yields a relay that reports
// itself as not configured.
func NewRelay(cfg Config, logger *zap.Logger) (*Relay, error) {
	client := resty.New()
	client.SetTimeout(requestTimeout)
	client.SetRetryCount(0)

	return NewRelayWithResty(cfg, client, logger)
}

func NewRelayWithResty(cfg Config, client *resty.Client, logger *zap.Logger) (*Relay, error) {
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg.PiURL = strings.TrimRight(strings.TrimSpace(cfg.PiURL), "/")
	if cfg.PiURL != "" {
		if _, err := url.ParseRequestURI(cfg.PiURL); err != nil {
			return nil, fmt.Errorf("invalid PI_URL: %w", err)
		}
		client.SetBaseURL(cfg.PiURL)
	}
	if cfg.StreamPath == "" {
		cfg.StreamPath = DefaultStreamPath
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = DefaultReadyTimeout
	}

	return &Relay{client: client, cfg: cfg, logger: logger}, nil
}

func (r *Relay) Configured() bool {
	return r != nil && r.cfg.PiURL != ""
}

func (r *Relay) PiConfig() PiConfig {
	if !r.Configured() {
		return PiConfig{StreamPath: DefaultStreamPath}
	}
	return PiConfig{
		PiURL:      r.cfg.PiURL,
		Configured: true,
		StreamPath: r.cfg.StreamPath,
	}
}

// Start asks the Pi to start streaming, then waits for the stream endpoint to
// answer. A stream that never becomes ready is not an error: Ready is false.
func (r *Relay) Start(ctx context.Context) (StartResult, error) {
	if !r.Configured() {
		return StartResult{}, fmt.Errorf("%w: live stream is not configured", domain.ErrNotConfigured)
	}

	var body streamingResponse
	response, err := r.client.R().
		SetContext(ctx).
		SetResult(&body).
		SetError(&body).
		Post("/api/streaming/start")
	if err != nil {
		return StartResult{}, fmt.Errorf("failed to reach camera: %w", err)
	}
	if response.IsError() || !body.Success {
		message := strings.TrimSpace(body.Error)
		if message == "" {
			message = fmt.Sprintf("camera returned status %d", response.StatusCode())
		}
		return StartResult{}, fmt.Errorf("failed to start stream: %s", message)
	}

	result := StartResult{
		Success:   true,
		StreamURL: r.cfg.PiURL + r.cfg.StreamPath,
	}
	result.Ready = r.waitReady(ctx)
	if !result.Ready {
		observability.WithContextLogger(r.logger, ctx).Warn("live stream not ready before timeout",
			zap.Duration("timeout", r.cfg.ReadyTimeout),
		)
	}
	return result, nil
}

func (r *Relay) waitReady(ctx context.Context) bool {
	waitCtx, cancel := context.WithTimeout(ctx, r.cfg.ReadyTimeout)
	defer cancel()

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if r.probe(waitCtx) {
			return true
		}
		select {
		case <-waitCtx.Done():
			return false
		case <-ticker.C:
		}
	}
}

func (r *Relay) probe(ctx context.Context) bool {
	response, err := r.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(r.cfg.StreamPath)
	if err != nil {
		return false
	}
	if raw := response.RawBody(); raw != nil {
		_ = raw.Close()
	}
	return response.IsSuccess()
}

// Stop asks the Pi to stop streaming. Failures are logged and swallowed.
func (r *Relay) Stop(ctx context.Context) error {
	if !r.Configured() {
		return fmt.Errorf("%w: live stream is not configured", domain.ErrNotConfigured)
	}

	response, err := r.client.R().
		SetContext(ctx).
		Post("/api/streaming/stop")
	if err == nil && response.IsError() {
		err = errors.New(response.Status())
	}
	if err != nil {
		observability.WithContextLogger(r.logger, ctx).Warn("failed to stop live stream",
			zap.Error(err),
		)
	}
	return nil
}
