package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/kursadbilgin/storybird/internal/auth"
	"github.com/kursadbilgin/storybird/internal/config"
	"github.com/kursadbilgin/storybird/internal/domain"
	"github.com/kursadbilgin/storybird/internal/handler"
	"github.com/kursadbilgin/storybird/internal/infra/postgresql"
	"github.com/kursadbilgin/storybird/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/storybird/internal/infra/redis"
	"github.com/kursadbilgin/storybird/internal/livestream"
	"github.com/kursadbilgin/storybird/internal/media"
	"github.com/kursadbilgin/storybird/internal/observability"
	"github.com/kursadbilgin/storybird/internal/provider"
	"github.com/kursadbilgin/storybird/internal/queue"
	"github.com/kursadbilgin/storybird/internal/ratelimit"
	"github.com/kursadbilgin/storybird/internal/repository"
	"github.com/kursadbilgin/storybird/internal/service"
	"github.com/kursadbilgin/storybird/internal/transport"
	"github.com/kursadbilgin/storybird/internal/webhook"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const loginRateWindow = time.Minute

// server holds everything serve needs to run and tear down.
type server struct {
	app     *fiber.App
	worker  *service.WorkerService
	closers []func() error
}

func (s *server) close(logger *zap.Logger) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			logger.Warn("failed to release resource", zap.Error(err))
		}
	}
}

func buildServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (srv *server, err error) {
	srv = &server{}
	defer func() {
		if err != nil {
			srv.close(logger)
			srv = nil
		}
	}()

	caps := cfg.Capabilities
	metrics := observability.NewMetrics()

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = infraredis.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		srv.closers = append(srv.closers, rdb.Close)
	}

	var (
		store  repository.SubscriptionStore
		cycles repository.CycleRepository
		sqlDB  *sql.DB
	)
	switch caps.StoreBackend {
	case config.StorePostgres:
		db, err := postgresql.NewPostgres(ctx, cfg.DatabaseDSN, postgresql.PoolOptions{})
		if err != nil {
			return nil, err
		}
		if sqlDB, err = db.DB(); err != nil {
			return nil, fmt.Errorf("postgres underlying db init failed: %w", err)
		}
		srv.closers = append(srv.closers, sqlDB.Close)

		if err := migrations.Migrate(db); err != nil {
			return nil, fmt.Errorf("database migrations failed: %w", err)
		}
		store = repository.NewGormSubscriptionRepo(db)
		cycles = repository.NewGormCycleRepo(db)
	case config.StoreRedis:
		store = repository.NewRedisSubscriptionRepo(rdb, repository.DefaultSubscriptionsKey)
	default:
		fileStore, err := repository.NewFileSubscriptionStore(cfg.SubscriptionFile)
		if err != nil {
			return nil, err
		}
		store = fileStore
	}

	var pusher provider.Pusher
	if caps.Push.Enabled {
		webPush, err := provider.NewWebPushProvider(provider.VAPIDCredentials{
			PublicKey:  caps.Push.PublicKey,
			PrivateKey: caps.Push.PrivateKey,
			Subscriber: caps.Push.Subscriber,
			TTL:        caps.Push.TTL,
		})
		if err != nil {
			return nil, err
		}
		pusher = webPush
	} else {
		logger.Warn("push notifications disabled: VAPID keys are not configured")
	}

	dispatcher, err := service.NewDispatcher(store, pusher, service.DispatchSettings{
		Enabled:     caps.Push.Enabled,
		Timeout:     caps.Push.Timeout,
		MaxParallel: caps.Push.MaxParallel,
	}, logger)
	if err != nil {
		return nil, err
	}
	dispatcher.SetMetrics(metrics)
	if cycles != nil {
		dispatcher.SetRecorder(cycles)
	}

	var publisher queue.Publisher
	if caps.Queue {
		rmq, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
		if err != nil {
			return nil, err
		}
		srv.closers = append(srv.closers, rmq.Close)

		rmqPublisher := queue.NewRabbitMQPublisher(rmq)
		publisher = rmqPublisher

		consumer := queue.NewRabbitMQConsumer(rmq, cfg.QueuePrefetch, logger)
		srv.worker, err = service.NewWorkerService(consumer, dispatcher, cfg.QueueWorkers, logger)
		if err != nil {
			return nil, err
		}
	}

	namespace, err := domain.NewNamespace(cfg.CloudinaryPrefix)
	if err != nil {
		return nil, err
	}

	composer := service.NewComposer(service.ComposerConfig{
		Title:   cfg.PushTitle,
		Body:    cfg.PushBody,
		Icon:    cfg.PushIcon,
		Badge:   cfg.PushBadge,
		OpenURL: cfg.PushOpenURL,
	})
	notifications, err := service.NewNotificationService(composer, dispatcher, publisher, logger)
	if err != nil {
		return nil, err
	}

	subscriptions, err := service.NewSubscriptionService(store, caps.Push.Enabled, caps.Push.PublicKey, logger)
	if err != nil {
		return nil, err
	}
	subscriptions.SetMetrics(metrics)

	mediaClient, err := media.NewClient(cfg.CloudinaryAPIBase, media.Credentials{
		CloudName: cfg.Cloudinary.CloudName,
		APIKey:    cfg.Cloudinary.APIKey,
		APISecret: cfg.Cloudinary.APISecret,
	})
	if err != nil {
		return nil, err
	}
	videos, err := service.NewVideoService(mediaClient, namespace, cfg.VideoCacheTTL, logger)
	if err != nil {
		return nil, err
	}

	validator, err := webhook.NewValidator(webhook.Config{
		Secret:        cfg.Cloudinary.APISecret,
		Namespace:     namespace,
		AllowUnsigned: cfg.WebhookAllowUnsigned,
		MaxAge:        cfg.WebhookMaxAge,
	})
	if err != nil {
		return nil, err
	}

	authService, err := buildAuth(cfg, rdb, logger)
	if err != nil {
		return nil, err
	}

	relay, err := livestream.NewRelay(livestream.Config{
		PiURL:        caps.LiveStream.PiURL,
		StreamPath:   caps.LiveStream.StreamPath,
		PollInterval: caps.LiveStream.PollInterval,
		ReadyTimeout: caps.LiveStream.ReadyTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	app := fiber.New(fiber.Config{
		AppName:               "storybird",
		ErrorHandler:          transport.ErrorHandler(logger),
		DisableStartupMessage: true,
		ReadTimeout:           15 * time.Second,
		WriteTimeout:          30 * time.Second,
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(observability.AccessLog(logger))
	app.Use(metrics.HTTPMiddleware())
	app.Use(corsMiddleware(cfg.AllowedOrigin))

	handler.RegisterHealthRoutes(app, sqlDB, rdb)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	api := app.Group("/api")
	guard := auth.Middleware(authService, logger)

	var history handler.CycleHistory
	if cycles != nil {
		history = cycles
	}
	pushHandler, err := handler.NewPushHandler(subscriptions, notifications, history)
	if err != nil {
		return nil, err
	}
	testRoute := pushTestRouteEnabled(cfg, authService)
	if !testRoute {
		logger.Warn("push test route disabled: production without AUTH_PASSWORD_HASH")
	}
	handler.RegisterPushRoutes(api, pushHandler, guard, testRoute)

	webhookHandler, err := handler.NewWebhookHandler(validator, notifications, metrics, logger)
	if err != nil {
		return nil, err
	}
	handler.RegisterWebhookRoutes(api, webhookHandler)

	videoHandler, err := handler.NewVideoHandler(videos)
	if err != nil {
		return nil, err
	}
	handler.RegisterVideoRoutes(api, videoHandler, guard)

	authHandler, err := handler.NewAuthHandler(authService, cfg.CookieSecure || cfg.IsProduction())
	if err != nil {
		return nil, err
	}
	handler.RegisterAuthRoutes(api, authHandler)

	liveHandler, err := handler.NewLiveHandler(relay)
	if err != nil {
		return nil, err
	}
	handler.RegisterLiveRoutes(api, liveHandler)

	app.Static("/", cfg.StaticDir)

	srv.app = app
	return srv, nil
}

func buildAuth(cfg *config.Config, rdb *redis.Client, logger *zap.Logger) (*auth.Service, error) {
	var sessions auth.SessionStore = auth.NewMemorySessionStore()
	if cfg.Capabilities.SessionBackend == config.SessionRedis {
		redisSessions, err := infraredis.NewSessionStore(rdb)
		if err != nil {
			return nil, err
		}
		sessions = redisSessions
	}

	var limiter ratelimit.Limiter
	if cfg.LoginRateLimitPerMin > 0 {
		if rdb != nil {
			redisLimiter, err := infraredis.NewRedisRateLimiter(rdb, "login", cfg.LoginRateLimitPerMin, loginRateWindow)
			if err != nil {
				return nil, err
			}
			limiter = redisLimiter
		} else {
			memoryLimiter, err := ratelimit.NewMemoryLimiter(cfg.LoginRateLimitPerMin, loginRateWindow)
			if err != nil {
				return nil, err
			}
			limiter = memoryLimiter
		}
	}

	authService, err := auth.NewService(cfg.AuthPasswordHash, cfg.SessionTTL, sessions, limiter, logger)
	if err != nil {
		return nil, err
	}
	if !authService.Enabled() {
		logger.Warn("authentication disabled: AUTH_PASSWORD_HASH is not set")
	}
	return authService, nil
}

// pushTestRouteEnabled keeps the broadcast test route off in an
// unauthenticated production deployment.
func pushTestRouteEnabled(cfg *config.Config, authService *auth.Service) bool {
	return !cfg.IsProduction() || authService.Enabled()
}

// corsMiddleware allows credentials only for an explicit origin.
func corsMiddleware(allowedOrigin string) fiber.Handler {
	if allowedOrigin == "" {
		return cors.New()
	}
	return cors.New(cors.Config{
		AllowOrigins:     allowedOrigin,
		AllowCredentials: true,
	})
}
