package service

import (
	"context"
	"errors"
	"testing"

	"github.com/kursadbilgin/storybird/internal/domain"
	"github.com/kursadbilgin/storybird/internal/observability"
	"github.com/kursadbilgin/storybird/internal/queue"
)

func TestNotificationServiceInlineDispatch(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{report: domain.DispatchReport{Attempted: 2, Delivered: 2}}
	svc, err := NewNotificationService(newTestComposer(), runner, nil, nil)
	if err != nil {
		t.Fatalf("NewNotificationService() error = %v", err)
	}

	result, err := svc.NotifyNewVideo(context.Background(), domain.VideoEvent{
		PublicID: "storybird1/clip",
		VideoURL: "https://res.test/clip.mp4",
	})
	if err != nil {
		t.Fatalf("NotifyNewVideo() error = %v", err)
	}
	if result.Queued || result.Report == nil || result.Report.Delivered != 2 {
		t.Fatalf("result = %+v, want inline report", result)
	}
	if len(runner.calls) != 1 || runner.calls[0] != TriggerWebhook {
		t.Fatalf("runner calls = %v, want [webhook]", runner.calls)
	}
	if runner.payloads[0].Data.VideoURL != "https://res.test/clip.mp4" {
		t.Fatalf("payload video url = %q", runner.payloads[0].Data.VideoURL)
	}
}

func TestNotificationServiceQueuedDispatch(t *testing.T) {
	t.Parallel()

	var published queue.DispatchMessage
	var queueName string
	publisher := &fakePublisher{
		publishFn: func(ctx context.Context, name string, msg queue.DispatchMessage) error {
			queueName = name
			published = msg
			return nil
		},
	}
	runner := &fakeRunner{}

	svc, err := NewNotificationService(newTestComposer(), runner, publisher, nil)
	if err != nil {
		t.Fatalf("NewNotificationService() error = %v", err)
	}

	ctx := observability.WithCorrelationID(context.Background(), "req-7")
	result, err := svc.NotifyNewVideo(ctx, domain.VideoEvent{PublicID: "storybird1/clip"})
	if err != nil {
		t.Fatalf("NotifyNewVideo() error = %v", err)
	}

	if !result.Queued || result.MessageID == "" || result.MessageID != published.ID {
		t.Fatalf("result = %+v, published = %+v", result, published)
	}
	if queueName != queue.DispatchQueue {
		t.Fatalf("queue = %q, want %q", queueName, queue.DispatchQueue)
	}
	if published.CorrelationID != "req-7" || published.Trigger != TriggerWebhook {
		t.Fatalf("published = %+v", published)
	}
	if err := published.Validate(); err != nil {
		t.Fatalf("published message invalid: %v", err)
	}
	if len(runner.calls) != 0 {
		t.Fatalf("runner calls = %v, want none", runner.calls)
	}
}

func TestNotificationServicePublishFailureFallsBackInline(t *testing.T) {
	t.Parallel()

	publisher := &fakePublisher{
		publishFn: func(ctx context.Context, name string, msg queue.DispatchMessage) error {
			return errors.New("broker down")
		},
	}
	runner := &fakeRunner{report: domain.DispatchReport{Attempted: 1, Delivered: 1}}

	svc, _ := NewNotificationService(newTestComposer(), runner, publisher, nil)
	result, err := svc.NotifyNewVideo(context.Background(), domain.VideoEvent{PublicID: "storybird1/clip"})
	if err != nil {
		t.Fatalf("NotifyNewVideo() error = %v", err)
	}
	if result.Queued || result.Report == nil {
		t.Fatalf("result = %+v, want inline fallback", result)
	}
	if len(runner.calls) != 1 {
		t.Fatalf("runner calls = %d, want 1", len(runner.calls))
	}
}

func TestNotificationServiceInvalidEvent(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	svc, _ := NewNotificationService(newTestComposer(), runner, nil, nil)

	_, err := svc.NotifyNewVideo(context.Background(), domain.VideoEvent{})
	if !errors.Is(err, domain.ErrInvalidEvent) {
		t.Fatalf("NotifyNewVideo() error = %v, want ErrInvalidEvent", err)
	}
	if len(runner.calls) != 0 {
		t.Fatal("invalid events must not dispatch")
	}
}

func TestNotificationServiceSendTest(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{report: domain.DispatchReport{Attempted: 1, Delivered: 1}}
	svc, _ := NewNotificationService(newTestComposer(), runner, nil, nil)

	payload, report := svc.SendTest(context.Background())
	if payload.Title == "" || report.Delivered != 1 {
		t.Fatalf("payload=%+v report=%+v", payload, report)
	}
	if runner.calls[0] != TriggerTest {
		t.Fatalf("trigger = %q, want test", runner.calls[0])
	}
}
