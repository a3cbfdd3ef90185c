package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/storybird/internal/domain"
	"github.com/kursadbilgin/storybird/internal/observability"
	"github.com/kursadbilgin/storybird/internal/queue"
	"go.uber.org/zap"
)

// CycleRunner runs dispatch cycles. *Dispatcher implements it.
type CycleRunner interface {
	Dispatch(ctx context.Context, trigger string, payload domain.NotificationPayload) domain.DispatchReport
}

// NotifyResult tells the caller how a video event was handled.
type NotifyResult struct {
	Queued    bool
	MessageID string
	Report    *domain.DispatchReport
}

// NotificationService turns accepted video events into dispatch cycles,
// either inline or through the dispatch queue.
type NotificationService struct {
	composer   *Composer
	dispatcher CycleRunner
	publisher  queue.Publisher
	logger     *zap.Logger
	now        func() time.Time
}

func NewNotificationService(
	composer *Composer,
	dispatcher CycleRunner,
	publisher queue.Publisher,
	logger *zap.Logger,
) (*NotificationService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &NotificationService{
		composer:   composer,
		dispatcher: dispatcher,
		publisher:  publisher,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// NotifyNewVideo composes the new-video notification and dispatches it. When
// a publisher is configured the cycle runs on the queue consumer; a failed
// publish falls back to an inline cycle so the event is not lost.
func (s *NotificationService) NotifyNewVideo(ctx context.Context, event domain.VideoEvent) (NotifyResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	payload, err := s.composer.Compose(event)
	if err != nil {
		return NotifyResult{}, err
	}

	logger := observability.WithContextLogger(s.logger, ctx).With(zap.String("publicId", event.PublicID))

	if s.publisher != nil {
		correlationID, _ := observability.CorrelationIDFromContext(ctx)
		msg := queue.DispatchMessage{
			ID:            uuid.NewString(),
			CorrelationID: correlationID,
			Trigger:       TriggerWebhook,
			Payload:       payload,
			EnqueuedAt:    s.now().UTC(),
		}

		err := s.publisher.Publish(ctx, queue.DispatchQueue, msg)
		if err == nil {
			logger.Info("dispatch queued", zap.String("messageId", msg.ID))
			return NotifyResult{Queued: true, MessageID: msg.ID}, nil
		}
		logger.Error("failed to publish dispatch message, dispatching inline", zap.Error(err))
	}

	report := s.dispatcher.Dispatch(ctx, TriggerWebhook, payload)
	return NotifyResult{Report: &report}, nil
}

// SendTest dispatches the fixed test payload inline and returns it with the report.
func (s *NotificationService) SendTest(ctx context.Context) (domain.NotificationPayload, domain.DispatchReport) {
	payload := s.composer.TestPayload()
	return payload, s.dispatcher.Dispatch(ctx, TriggerTest, payload)
}
