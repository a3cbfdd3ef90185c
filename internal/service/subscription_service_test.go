package service

import (
	"context"
	"errors"
	"testing"

	"github.com/kursadbilgin/storybird/internal/domain"
	"go.uber.org/zap"
)

func TestSubscriptionServiceSubscribe(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	svc, err := NewSubscriptionService(store, true, "BPublic", zap.NewNop())
	if err != nil {
		t.Fatalf("NewSubscriptionService() error = %v", err)
	}

	raw := []byte(`{"endpoint":"https://push.test/a","keys":{"p256dh":"p","auth":"a"}}`)
	if _, err := svc.Subscribe(context.Background(), raw); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if _, err := svc.Subscribe(context.Background(), raw); err != nil {
		t.Fatalf("second Subscribe() error = %v", err)
	}

	count, err := svc.Count(context.Background())
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
}

func TestSubscriptionServiceSubscribeErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		enabled bool
		raw     string
		wantErr error
	}{
		{name: "disabled", enabled: false, raw: `{"endpoint":"https://push.test/a"}`, wantErr: domain.ErrNotConfigured},
		{name: "missing endpoint", enabled: true, raw: `{"keys":{}}`, wantErr: domain.ErrValidation},
		{name: "not json", enabled: true, raw: `nope`, wantErr: domain.ErrValidation},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := newMemoryStore()
			svc, err := NewSubscriptionService(store, tt.enabled, "BPublic", nil)
			if err != nil {
				t.Fatalf("NewSubscriptionService() error = %v", err)
			}

			_, err = svc.Subscribe(context.Background(), []byte(tt.raw))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Subscribe() error = %v, want %v", err, tt.wantErr)
			}
			if len(store.endpoints()) != 0 {
				t.Fatal("store should stay empty")
			}
		})
	}
}

func TestSubscriptionServiceUnsubscribe(t *testing.T) {
	t.Parallel()

	store := newMemoryStore("https://push.test/a", "https://push.test/b")
	svc, err := NewSubscriptionService(store, true, "BPublic", nil)
	if err != nil {
		t.Fatalf("NewSubscriptionService() error = %v", err)
	}

	if err := svc.Unsubscribe(context.Background(), "https://push.test/a"); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if err := svc.Unsubscribe(context.Background(), "https://push.test/unknown"); err != nil {
		t.Fatalf("Unsubscribe() unknown endpoint error = %v", err)
	}
	if err := svc.Unsubscribe(context.Background(), "  "); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Unsubscribe() blank error = %v, want ErrValidation", err)
	}

	if got := store.endpoints(); len(got) != 1 || got[0] != "https://push.test/b" {
		t.Fatalf("endpoints = %v, want [https://push.test/b]", got)
	}
}

func TestSubscriptionServicePublicKey(t *testing.T) {
	t.Parallel()

	enabled, _ := NewSubscriptionService(newMemoryStore(), true, " BPublic ", nil)
	key, err := enabled.PublicKey()
	if err != nil || key != "BPublic" {
		t.Fatalf("PublicKey() = %q, %v; want BPublic", key, err)
	}

	disabled, _ := NewSubscriptionService(newMemoryStore(), false, "", nil)
	if _, err := disabled.PublicKey(); !errors.Is(err, domain.ErrNotConfigured) {
		t.Fatalf("PublicKey() error = %v, want ErrNotConfigured", err)
	}
}
