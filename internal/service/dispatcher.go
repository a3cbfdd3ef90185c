package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/storybird/internal/domain"
	"github.com/kursadbilgin/storybird/internal/observability"
	"github.com/kursadbilgin/storybird/internal/provider"
	"github.com/kursadbilgin/storybird/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultSendTimeout = 10 * time.Second

	TriggerWebhook = "webhook"
	TriggerTest    = "test"
)

// DispatchSettings configures one dispatcher.
type DispatchSettings struct {
	Enabled     bool
	Timeout     time.Duration
	MaxParallel int
}

// Dispatcher fans a payload out to every stored subscription and prunes the
// subscriptions the push services report as gone.
type Dispatcher struct {
	store    repository.SubscriptionStore
	pusher   provider.Pusher
	settings DispatchSettings
	recorder repository.CycleRecorder
	metrics  *observability.Metrics
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string
}

func NewDispatcher(
	store repository.SubscriptionStore,
	pusher provider.Pusher,
	settings DispatchSettings,
	logger *zap.Logger,
) (*Dispatcher, error) {
	if store == nil {
		return nil, fmt.Errorf("subscription store is required")
	}
	if settings.Enabled && pusher == nil {
		return nil, fmt.Errorf("pusher is required when push is enabled")
	}
	if settings.Timeout <= 0 {
		settings.Timeout = defaultSendTimeout
	}
	if settings.MaxParallel < 0 {
		settings.MaxParallel = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Dispatcher{
		store:    store,
		pusher:   pusher,
		settings: settings,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}, nil
}

func (d *Dispatcher) SetMetrics(metrics *observability.Metrics) {
	if d == nil {
		return
	}
	d.metrics = metrics
}

func (d *Dispatcher) SetRecorder(recorder repository.CycleRecorder) {
	if d == nil {
		return
	}
	d.recorder = recorder
}

// Enabled reports whether push delivery is configured.
func (d *Dispatcher) Enabled() bool {
	return d != nil && d.settings.Enabled
}

// Dispatch runs one full cycle. It never returns an error: every failure is
// reported in the returned report. Once subscribers are listed, cancelling
// ctx does not abort in-flight attempts; each one is bounded by its own timeout.
func (d *Dispatcher) Dispatch(ctx context.Context, trigger string, payload domain.NotificationPayload) domain.DispatchReport {
	if ctx == nil {
		ctx = context.Background()
	}

	start := d.now()
	report := domain.DispatchReport{
		ID:       d.newID(),
		Pruned:   []string{},
		Outcomes: []domain.DeliveryOutcome{},
	}
	logger := observability.WithContextLogger(d.logger, ctx).With(
		zap.String("dispatchId", report.ID),
		zap.String("trigger", trigger),
	)

	if !d.settings.Enabled {
		logger.Debug("push disabled, dispatch skipped")
		return report
	}

	message, err := payload.Marshal()
	if err != nil {
		logger.Error("invalid notification payload, dispatch skipped", zap.Error(err))
		return report
	}

	detached := context.WithoutCancel(ctx)

	subscriptions, err := d.store.List(ctx)
	if err != nil {
		report.StorageError = err
		logger.Error("failed to list subscriptions", zap.Error(err))
		d.finish(detached, logger, trigger, start, &report)
		return report
	}

	outcomes := make([]domain.DeliveryOutcome, len(subscriptions))

	var g errgroup.Group
	if d.settings.MaxParallel > 0 {
		g.SetLimit(d.settings.MaxParallel)
	}
	for i, sub := range subscriptions {
		g.Go(func() error {
			outcomes[i] = d.deliver(detached, logger, sub, message)
			return nil
		})
	}
	_ = g.Wait()

	report.Outcomes = outcomes
	report.Tally()

	if gone := report.PermanentEndpoints(); len(gone) > 0 {
		if err := d.store.RemoveMany(detached, gone); err != nil {
			report.PruneError = err
			logger.Error("failed to prune expired subscriptions",
				zap.Int("count", len(gone)),
				zap.Error(err),
			)
		} else {
			report.Pruned = gone
		}
	}

	d.finish(detached, logger, trigger, start, &report)
	return report
}

func (d *Dispatcher) deliver(ctx context.Context, logger *zap.Logger, sub domain.Subscription, message []byte) (outcome domain.DeliveryOutcome) {
	attemptCtx, cancel := context.WithTimeout(ctx, d.settings.Timeout)
	defer cancel()

	start := d.now()
	outcome.Endpoint = sub.Endpoint

	defer func() {
		if r := recover(); r != nil {
			outcome.Status = domain.DeliveryTransientFailure
			outcome.Error = fmt.Sprintf("push panicked: %v", r)
			logger.Error("push attempt panicked",
				zap.String("endpoint", sub.Endpoint),
				zap.Any("panic", r),
			)
		}
		outcome.Duration = d.now().Sub(start)
		d.metrics.ObserveDelivery(outcome.Status.String(), outcome.Duration)
	}()

	response, err := d.pusher.Push(attemptCtx, sub, message)
	outcome.Status = provider.Classify(err)
	if response != nil {
		outcome.StatusCode = response.StatusCode
	} else {
		outcome.StatusCode = provider.StatusCode(err)
	}

	if err != nil {
		outcome.Error = err.Error()
		logger.Warn("push delivery failed",
			zap.String("endpoint", sub.Endpoint),
			zap.String("outcome", outcome.Status.String()),
			zap.Int("statusCode", outcome.StatusCode),
			zap.Error(err),
		)
	}

	return outcome
}

func (d *Dispatcher) finish(ctx context.Context, logger *zap.Logger, trigger string, start time.Time, report *domain.DispatchReport) {
	report.Duration = d.now().Sub(start)

	d.metrics.IncDispatchCycle(trigger)
	d.metrics.AddPruned(len(report.Pruned))
	d.metrics.ObserveDispatchDuration(report.Duration)

	logger.Info("dispatch cycle finished",
		zap.Int("attempted", report.Attempted),
		zap.Int("delivered", report.Delivered),
		zap.Int("transient", report.Transient),
		zap.Int("permanent", report.Permanent),
		zap.Int("pruned", len(report.Pruned)),
		zap.Duration("duration", report.Duration),
	)

	if d.recorder == nil {
		return
	}

	cycle := domain.CycleFromReport(trigger, *report)
	cycle.CreatedAt = start.UTC()
	if err := d.recorder.Record(ctx, &cycle); err != nil {
		logger.Warn("failed to record dispatch cycle", zap.Error(err))
	}
}
