package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/kursadbilgin/storybird/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

func TestSessionStoreLifecycle(t *testing.T) {
	t.Parallel()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store, err := NewSessionStore(rdb)
	if err != nil {
		t.Fatalf("NewSessionStore() error = %v", err)
	}
	ctx := context.Background()

	if err := store.Save(ctx, "abc", time.Hour); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	ok, err := store.Exists(ctx, "abc")
	if err != nil || !ok {
		t.Fatalf("Exists() = %v, %v; want true", ok, err)
	}

	mr.FastForward(2 * time.Hour)
	ok, err = store.Exists(ctx, "abc")
	if err != nil || ok {
		t.Fatalf("Exists() after expiry = %v, %v; want false", ok, err)
	}

	if err := store.Save(ctx, "def", time.Hour); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := store.Delete(ctx, "def"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	ok, _ = store.Exists(ctx, "def")
	if ok {
		t.Fatal("deleted session still exists")
	}

	if err := store.Save(ctx, "", time.Hour); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Save(blank) error = %v, want ErrValidation", err)
	}
}

func TestSessionStoreUnavailable(t *testing.T) {
	t.Parallel()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	addr := mr.Addr()
	mr.Close()

	rdb := goredis.NewClient(&goredis.Options{Addr: addr, MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	store, _ := NewSessionStore(rdb)
	if _, err := store.Exists(context.Background(), "abc"); !errors.Is(err, domain.ErrStorage) {
		t.Fatalf("Exists() error = %v, want ErrStorage", err)
	}
}
