package livestream

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/jarcoal/httpmock"
	"github.com/kursadbilgin/storybird/internal/domain"
)

const testPiURL = "http://pi.local:8080"

func newTestRelay(t *testing.T, cfg Config) (*Relay, *httpmock.MockTransport) {
	t.Helper()

	transport := httpmock.NewMockTransport()
	client := resty.New()
	client.SetTransport(transport)

	if cfg.PiURL == "" {
		cfg.PiURL = testPiURL
	}
	relay, err := NewRelayWithResty(cfg, client, nil)
	if err != nil {
		t.Fatalf("NewRelayWithResty() error = %v", err)
	}
	return relay, transport
}

func TestStartWaitsForStream(t *testing.T) {
	t.Parallel()

	relay, transport := newTestRelay(t, Config{PollInterval: time.Millisecond, ReadyTimeout: time.Second})
	transport.RegisterResponder(http.MethodPost, testPiURL+"/api/streaming/start",
		httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]any{"success": true}))

	probes := 0
	transport.RegisterResponder(http.MethodGet, testPiURL+"/birdcam/",
		func(*http.Request) (*http.Response, error) {
			probes++
			if probes < 3 {
				return httpmock.NewStringResponse(http.StatusNotFound, ""), nil
			}
			return httpmock.NewStringResponse(http.StatusOK, "<html></html>"), nil
		})

	result, err := relay.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !result.Success || !result.Ready {
		t.Fatalf("result = %+v, want success and ready", result)
	}
	if result.StreamURL != testPiURL+"/birdcam/" {
		t.Fatalf("StreamURL = %q", result.StreamURL)
	}
	if probes != 3 {
		t.Fatalf("probes = %d, want 3", probes)
	}
}

func TestStartReadyTimeout(t *testing.T) {
	t.Parallel()

	relay, transport := newTestRelay(t, Config{PollInterval: 5 * time.Millisecond, ReadyTimeout: 30 * time.Millisecond})
	transport.RegisterResponder(http.MethodPost, testPiURL+"/api/streaming/start",
		httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]any{"success": true}))
	transport.RegisterResponder(http.MethodGet, testPiURL+"/birdcam/",
		httpmock.NewStringResponder(http.StatusServiceUnavailable, ""))

	result, err := relay.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !result.Success || result.Ready {
		t.Fatalf("result = %+v, want success without ready", result)
	}
}

func TestStartFailure(t *testing.T) {
	t.Parallel()

	relay, transport := newTestRelay(t, Config{})
	transport.RegisterResponder(http.MethodPost, testPiURL+"/api/streaming/start",
		httpmock.NewJsonResponderOrPanic(http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   "camera busy",
		}))

	_, err := relay.Start(context.Background())
	if err == nil {
		t.Fatal("Start() error = nil, want error")
	}
	if got := err.Error(); got != "failed to start stream: camera busy" {
		t.Fatalf("Start() error = %q", got)
	}
}

func TestStopSwallowsErrors(t *testing.T) {
	t.Parallel()

	relay, transport := newTestRelay(t, Config{})
	transport.RegisterResponder(http.MethodPost, testPiURL+"/api/streaming/stop",
		httpmock.NewErrorResponder(errors.New("connection refused")))

	if err := relay.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if got := transport.GetTotalCallCount(); got != 1 {
		t.Fatalf("calls = %d, want 1", got)
	}
}

func TestNotConfigured(t *testing.T) {
	t.Parallel()

	relay, err := NewRelay(Config{}, nil)
	if err != nil {
		t.Fatalf("NewRelay() error = %v", err)
	}

	if relay.Configured() {
		t.Fatal("Configured() = true, want false")
	}
	cfg := relay.PiConfig()
	if cfg.Configured || cfg.StreamPath != DefaultStreamPath || cfg.PiURL != "" {
		t.Fatalf("PiConfig() = %+v", cfg)
	}
	if _, err := relay.Start(context.Background()); !errors.Is(err, domain.ErrNotConfigured) {
		t.Fatalf("Start() error = %v, want ErrNotConfigured", err)
	}
	if err := relay.Stop(context.Background()); !errors.Is(err, domain.ErrNotConfigured) {
		t.Fatalf("Stop() error = %v, want ErrNotConfigured", err)
	}
}
