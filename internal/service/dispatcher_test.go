package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kursadbilgin/storybird/internal/domain"
	"github.com/kursadbilgin/storybird/internal/observability"
	"github.com/kursadbilgin/storybird/internal/provider"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("github.com/patrickmn/go-cache.(*janitor).Run"),
	)
}

var testPayload = domain.NotificationPayload{
	Title: "🐦 Nouvelle vidéo !",
	Body:  "Un oiseau a été détecté sur la mangeoire",
	Icon:  "/images/logo3.png",
	Badge: "/images/logo3.png",
	Data:  domain.PayloadData{URL: "/", VideoURL: "https://res.test/v.mp4"},
}

func newTestDispatcher(t *testing.T, store *memoryStore, pusher *fakePusher, settings DispatchSettings) *Dispatcher {
	t.Helper()

	d, err := NewDispatcher(store, pusher, settings, zap.NewNop())
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}
	return d
}

func TestDispatcherMixedOutcomes(t *testing.T) {
	t.Parallel()

	const (
		endpointA = "https://push.test/a"
		endpointB = "https://push.test/b"
		endpointC = "https://push.test/c"
	)

	store := newMemoryStore(endpointA, endpointB, endpointC)
	pusher := &fakePusher{
		pushFn: func(ctx context.Context, sub domain.Subscription, message []byte) (*provider.ProviderResponse, error) {
			switch sub.Endpoint {
			case endpointA:
				return &provider.ProviderResponse{StatusCode: 201}, nil
			case endpointB:
				return nil, &provider.ProviderError{StatusCode: 410, Gone: true, Message: "gone"}
			default:
				<-ctx.Done()
				return nil, &provider.ProviderError{Message: "push request timed out", Cause: ctx.Err()}
			}
		},
	}
	recorder := &fakeRecorder{}
	metrics := observability.NewMetrics()

	d := newTestDispatcher(t, store, pusher, DispatchSettings{Enabled: true, Timeout: 50 * time.Millisecond})
	d.SetRecorder(recorder)
	d.SetMetrics(metrics)

	report := d.Dispatch(context.Background(), TriggerWebhook, testPayload)

	if report.Attempted != 3 || report.Delivered != 1 || report.Transient != 1 || report.Permanent != 1 {
		t.Fatalf("report counts = %+v, want attempted=3 delivered=1 transient=1 permanent=1", report)
	}
	if !reflect.DeepEqual(report.Pruned, []string{endpointB}) {
		t.Fatalf("pruned = %v, want [%s]", report.Pruned, endpointB)
	}
	if got := store.endpoints(); !reflect.DeepEqual(got, []string{endpointA, endpointC}) {
		t.Fatalf("remaining endpoints = %v, want [%s %s]", got, endpointA, endpointC)
	}
	if report.StorageError != nil || report.PruneError != nil {
		t.Fatalf("unexpected errors: storage=%v prune=%v", report.StorageError, report.PruneError)
	}

	byEndpoint := make(map[string]domain.DeliveryOutcome)
	for _, outcome := range report.Outcomes {
		byEndpoint[outcome.Endpoint] = outcome
	}
	if byEndpoint[endpointB].StatusCode != 410 {
		t.Fatalf("status code for B = %d, want 410", byEndpoint[endpointB].StatusCode)
	}
	if byEndpoint[endpointC].Status != domain.DeliveryTransientFailure || byEndpoint[endpointC].Error == "" {
		t.Fatalf("outcome for C = %+v, want transient with error", byEndpoint[endpointC])
	}

	if len(recorder.cycles) != 1 {
		t.Fatalf("recorded cycles = %d, want 1", len(recorder.cycles))
	}
	cycle := recorder.cycles[0]
	if cycle.Status != domain.CycleStatusPartialFailure || cycle.Pruned != 1 || cycle.Trigger != TriggerWebhook {
		t.Fatalf("recorded cycle = %+v", cycle)
	}
	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if body := rec.Body.String(); !strings.Contains(body, "storybird_push_subscriptions_pruned_total 1") {
		t.Fatalf("metrics output missing pruned counter:\n%s", body)
	}
}

func TestDispatcherHungSubscribersDoNotBlockOthers(t *testing.T) {
	t.Parallel()

	const (
		hung    = 40
		timeout = 100 * time.Millisecond
	)

	endpoints := []string{"https://push.test/ok", "https://push.test/gone"}
	for i := 0; i < hung; i++ {
		endpoints = append(endpoints, fmt.Sprintf("https://push.test/hung-%02d", i))
	}
	store := newMemoryStore(endpoints...)
	pusher := &fakePusher{
		pushFn: func(ctx context.Context, sub domain.Subscription, message []byte) (*provider.ProviderResponse, error) {
			switch sub.Endpoint {
			case "https://push.test/ok":
				return &provider.ProviderResponse{StatusCode: 201}, nil
			case "https://push.test/gone":
				return nil, &provider.ProviderError{StatusCode: 410, Gone: true, Message: "gone"}
			default:
				<-ctx.Done()
				return nil, &provider.ProviderError{Message: "push request timed out", Cause: ctx.Err()}
			}
		},
	}

	d := newTestDispatcher(t, store, pusher, DispatchSettings{Enabled: true, Timeout: timeout})

	start := time.Now()
	report := d.Dispatch(context.Background(), TriggerWebhook, testPayload)
	elapsed := time.Since(start)

	if elapsed >= 5*timeout {
		t.Fatalf("dispatch took %s, want close to the %s timeout", elapsed, timeout)
	}
	if report.Attempted != hung+2 || report.Delivered != 1 || report.Transient != hung || report.Permanent != 1 {
		t.Fatalf("report counts = %+v", report)
	}
	if !reflect.DeepEqual(report.Pruned, []string{"https://push.test/gone"}) {
		t.Fatalf("pruned = %v", report.Pruned)
	}
	if got := len(store.endpoints()); got != hung+1 {
		t.Fatalf("remaining endpoints = %d, want %d", got, hung+1)
	}
}

func TestDispatcherAllDelivered(t *testing.T) {
	t.Parallel()

	store := newMemoryStore("https://push.test/1", "https://push.test/2")
	var messages sync.Map
	pusher := &fakePusher{
		pushFn: func(ctx context.Context, sub domain.Subscription, message []byte) (*provider.ProviderResponse, error) {
			messages.Store(sub.Endpoint, string(message))
			return &provider.ProviderResponse{StatusCode: 201}, nil
		},
	}

	d := newTestDispatcher(t, store, pusher, DispatchSettings{Enabled: true})
	report := d.Dispatch(context.Background(), TriggerTest, testPayload)

	if report.Attempted != 2 || report.Delivered != 2 {
		t.Fatalf("report = %+v, want 2 delivered", report)
	}
	if len(report.Pruned) != 0 {
		t.Fatalf("pruned = %v, want none", report.Pruned)
	}

	want, _ := testPayload.Marshal()
	messages.Range(func(key, value any) bool {
		if value.(string) != string(want) {
			t.Errorf("message for %v = %s, want %s", key, value, want)
		}
		return true
	})
}

func TestDispatcherDisabledSkipsStore(t *testing.T) {
	t.Parallel()

	store := newMemoryStore("https://push.test/a")
	recorder := &fakeRecorder{}

	d, err := NewDispatcher(store, nil, DispatchSettings{Enabled: false}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}
	d.SetRecorder(recorder)

	report := d.Dispatch(context.Background(), TriggerWebhook, testPayload)
	if report.Attempted != 0 {
		t.Fatalf("attempted = %d, want 0", report.Attempted)
	}
	if store.listCalls != 0 {
		t.Fatalf("list calls = %d, want 0", store.listCalls)
	}
	if len(recorder.cycles) != 0 {
		t.Fatalf("recorded cycles = %d, want 0", len(recorder.cycles))
	}
}

func TestDispatcherListFailure(t *testing.T) {
	t.Parallel()

	storeErr := fmt.Errorf("%w: connection refused", domain.ErrStorage)
	store := newMemoryStore("https://push.test/a")
	store.listFn = func(ctx context.Context) error { return storeErr }

	var pushes atomic.Int32
	pusher := &fakePusher{
		pushFn: func(ctx context.Context, sub domain.Subscription, message []byte) (*provider.ProviderResponse, error) {
			pushes.Add(1)
			return &provider.ProviderResponse{StatusCode: 201}, nil
		},
	}
	recorder := &fakeRecorder{}

	d := newTestDispatcher(t, store, pusher, DispatchSettings{Enabled: true})
	d.SetRecorder(recorder)

	report := d.Dispatch(context.Background(), TriggerWebhook, testPayload)
	if !errors.Is(report.StorageError, domain.ErrStorage) {
		t.Fatalf("storage error = %v, want ErrStorage", report.StorageError)
	}
	if report.Attempted != 0 || pushes.Load() != 0 {
		t.Fatalf("attempted = %d pushes = %d, want 0", report.Attempted, pushes.Load())
	}
	if len(recorder.cycles) != 1 || recorder.cycles[0].Status != domain.CycleStatusSkipped {
		t.Fatalf("recorded cycles = %+v, want one SKIPPED", recorder.cycles)
	}
}

func TestDispatcherPruneFailure(t *testing.T) {
	t.Parallel()

	store := newMemoryStore("https://push.test/gone")
	store.removeManyFn = func(ctx context.Context, endpoints []string) error {
		return fmt.Errorf("%w: disk full", domain.ErrStorage)
	}
	pusher := &fakePusher{
		pushFn: func(ctx context.Context, sub domain.Subscription, message []byte) (*provider.ProviderResponse, error) {
			return nil, &provider.ProviderError{StatusCode: 404, Gone: true}
		},
	}

	d := newTestDispatcher(t, store, pusher, DispatchSettings{Enabled: true})
	report := d.Dispatch(context.Background(), TriggerWebhook, testPayload)

	if report.Permanent != 1 {
		t.Fatalf("permanent = %d, want 1", report.Permanent)
	}
	if report.PruneError == nil {
		t.Fatal("prune error should be reported")
	}
	if len(report.Pruned) != 0 {
		t.Fatalf("pruned = %v, want none", report.Pruned)
	}
	if got := store.endpoints(); len(got) != 1 {
		t.Fatalf("endpoints = %v, want the subscription kept", got)
	}
}

func TestDispatcherIgnoresCallerCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	store := newMemoryStore("https://push.test/a", "https://push.test/b")
	store.listFn = func(context.Context) error {
		cancel()
		return nil
	}

	pusher := &fakePusher{
		pushFn: func(ctx context.Context, sub domain.Subscription, message []byte) (*provider.ProviderResponse, error) {
			if err := ctx.Err(); err != nil {
				return nil, &provider.ProviderError{Message: "cancelled", Cause: err}
			}
			return &provider.ProviderResponse{StatusCode: 201}, nil
		},
	}

	d := newTestDispatcher(t, store, pusher, DispatchSettings{Enabled: true, Timeout: time.Second})
	report := d.Dispatch(ctx, TriggerWebhook, testPayload)

	if report.Delivered != 2 {
		t.Fatalf("delivered = %d, want 2 after caller cancellation", report.Delivered)
	}
}

func TestDispatcherRespectsMaxParallel(t *testing.T) {
	t.Parallel()

	endpoints := make([]string, 0, 8)
	for i := 0; i < 8; i++ {
		endpoints = append(endpoints, fmt.Sprintf("https://push.test/%d", i))
	}
	store := newMemoryStore(endpoints...)

	var inFlight, peak atomic.Int32
	pusher := &fakePusher{
		pushFn: func(ctx context.Context, sub domain.Subscription, message []byte) (*provider.ProviderResponse, error) {
			current := inFlight.Add(1)
			defer inFlight.Add(-1)
			for {
				old := peak.Load()
				if current <= old || peak.CompareAndSwap(old, current) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			return &provider.ProviderResponse{StatusCode: 201}, nil
		},
	}

	d := newTestDispatcher(t, store, pusher, DispatchSettings{Enabled: true, MaxParallel: 2})
	report := d.Dispatch(context.Background(), TriggerWebhook, testPayload)

	if report.Delivered != len(endpoints) {
		t.Fatalf("delivered = %d, want %d", report.Delivered, len(endpoints))
	}
	if peak.Load() > 2 {
		t.Fatalf("peak concurrency = %d, want <= 2", peak.Load())
	}
}

func TestDispatcherOutcomeIndependentOfCompletionOrder(t *testing.T) {
	t.Parallel()

	store := newMemoryStore("https://push.test/slow-gone", "https://push.test/fast-ok", "https://push.test/mid-fail")
	pusher := &fakePusher{
		pushFn: func(ctx context.Context, sub domain.Subscription, message []byte) (*provider.ProviderResponse, error) {
			switch sub.Endpoint {
			case "https://push.test/slow-gone":
				time.Sleep(20 * time.Millisecond)
				return nil, &provider.ProviderError{StatusCode: 410, Gone: true}
			case "https://push.test/mid-fail":
				time.Sleep(10 * time.Millisecond)
				return nil, &provider.ProviderError{StatusCode: 503}
			default:
				return &provider.ProviderResponse{StatusCode: 201}, nil
			}
		},
	}

	d := newTestDispatcher(t, store, pusher, DispatchSettings{Enabled: true})
	report := d.Dispatch(context.Background(), TriggerWebhook, testPayload)

	statuses := make([]string, 0, len(report.Outcomes))
	for _, outcome := range report.Outcomes {
		statuses = append(statuses, outcome.Endpoint+"="+outcome.Status.String())
	}
	sort.Strings(statuses)

	want := []string{
		"https://push.test/fast-ok=DELIVERED",
		"https://push.test/mid-fail=TRANSIENT_FAILURE",
		"https://push.test/slow-gone=PERMANENT_FAILURE",
	}
	if !reflect.DeepEqual(statuses, want) {
		t.Fatalf("outcomes = %v, want %v", statuses, want)
	}
}

func TestDispatcherRecoversPusherPanic(t *testing.T) {
	t.Parallel()

	store := newMemoryStore("https://push.test/boom")
	pusher := &fakePusher{
		pushFn: func(ctx context.Context, sub domain.Subscription, message []byte) (*provider.ProviderResponse, error) {
			panic("boom")
		},
	}

	d := newTestDispatcher(t, store, pusher, DispatchSettings{Enabled: true})
	report := d.Dispatch(context.Background(), TriggerWebhook, testPayload)

	if report.Transient != 1 {
		t.Fatalf("transient = %d, want 1", report.Transient)
	}
	if got := store.endpoints(); len(got) != 1 {
		t.Fatalf("endpoints = %v, want subscription kept", got)
	}
}

func TestDispatcherEmptyStore(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t, newMemoryStore(), &fakePusher{}, DispatchSettings{Enabled: true})
	report := d.Dispatch(context.Background(), TriggerWebhook, testPayload)

	if report.Attempted != 0 || report.StorageError != nil {
		t.Fatalf("report = %+v, want empty successful cycle", report)
	}
	if report.ID == "" {
		t.Fatal("report id should be set")
	}
}

func TestNewDispatcherValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewDispatcher(nil, &fakePusher{}, DispatchSettings{Enabled: true}, nil); err == nil {
		t.Fatal("NewDispatcher() without store should fail")
	}
	if _, err := NewDispatcher(newMemoryStore(), nil, DispatchSettings{Enabled: true}, nil); err == nil {
		t.Fatal("NewDispatcher() enabled without pusher should fail")
	}
}
