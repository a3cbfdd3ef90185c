package config

import (
	"fmt"
	"strings"
	"time"
)

// StoreBackend selects where push subscriptions are persisted.
type StoreBackend string

const (
	StoreFile     StoreBackend = "file"
	StorePostgres StoreBackend = "postgres"
	StoreRedis    StoreBackend = "redis"
)

// SessionBackend selects where login sessions live.
type SessionBackend string

const (
	SessionMemory SessionBackend = "memory"
	SessionRedis  SessionBackend = "redis"
)

// PushCapability is resolved once at startup and injected where push is used.
type PushCapability struct {
	Enabled     bool
	PublicKey   string
	PrivateKey  string
	Subscriber  string
	TTL         int
	Timeout     time.Duration
	MaxParallel int
}

// LiveStreamCapability describes the home camera relay.
type LiveStreamCapability struct {
	Enabled      bool
	PiURL        string
	StreamPath   string
	PollInterval time.Duration
	ReadyTimeout time.Duration
}

// Capabilities lists the optional features of a deployment.
type Capabilities struct {
	Push           PushCapability
	LiveStream     LiveStreamCapability
	Queue          bool
	Auth           bool
	StoreBackend   StoreBackend
	SessionBackend SessionBackend
}

func resolveCapabilities(cfg *Config) (Capabilities, error) {
	caps := Capabilities{
		Push: PushCapability{
			PublicKey:   strings.TrimSpace(cfg.VAPIDPublicKey),
			PrivateKey:  strings.TrimSpace(cfg.VAPIDPrivateKey),
			Subscriber:  cfg.VAPIDEmail,
			TTL:         cfg.PushTTL,
			Timeout:     cfg.PushSendTimeout,
			MaxParallel: cfg.PushMaxParallel,
		},
		LiveStream: LiveStreamCapability{
			PiURL:        strings.TrimSuffix(strings.TrimSpace(cfg.PiURL), "/"),
			StreamPath:   "/birdcam/",
			PollInterval: cfg.LivePollInterval,
			ReadyTimeout: cfg.LiveReadyTimeout,
		},
		Queue: strings.TrimSpace(cfg.RabbitMQURL) != "",
		Auth:  strings.TrimSpace(cfg.AuthPasswordHash) != "",
	}
	caps.Push.Enabled = caps.Push.PublicKey != "" && caps.Push.PrivateKey != ""
	caps.LiveStream.Enabled = caps.LiveStream.PiURL != ""

	switch backend := StoreBackend(strings.ToLower(strings.TrimSpace(cfg.StoreBackend))); backend {
	case StoreFile:
		if strings.TrimSpace(cfg.SubscriptionFile) == "" {
			return Capabilities{}, fmt.Errorf("SUBSCRIPTION_FILE is required for the file store")
		}
		caps.StoreBackend = backend
	case StorePostgres:
		if strings.TrimSpace(cfg.DatabaseDSN) == "" {
			return Capabilities{}, fmt.Errorf("DATABASE_DSN is required for the postgres store")
		}
		caps.StoreBackend = backend
	case StoreRedis:
		if strings.TrimSpace(cfg.RedisURL) == "" {
			return Capabilities{}, fmt.Errorf("REDIS_URL is required for the redis store")
		}
		caps.StoreBackend = backend
	default:
		return Capabilities{}, fmt.Errorf("invalid STORE_BACKEND %q", cfg.StoreBackend)
	}

	switch backend := SessionBackend(strings.ToLower(strings.TrimSpace(cfg.SessionBackend))); backend {
	case SessionMemory:
		caps.SessionBackend = backend
	case SessionRedis:
		if strings.TrimSpace(cfg.RedisURL) == "" {
			return Capabilities{}, fmt.Errorf("REDIS_URL is required for redis sessions")
		}
		caps.SessionBackend = backend
	default:
		return Capabilities{}, fmt.Errorf("invalid SESSION_BACKEND %q", cfg.SessionBackend)
	}

	return caps, nil
}
