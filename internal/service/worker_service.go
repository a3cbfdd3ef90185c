package service

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/storybird/internal/observability"
	"github.com/kursadbilgin/storybird/internal/queue"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const minWorkerConcurrency = 1

// WorkerService consumes the dispatch queue and runs one cycle per message.
type WorkerService struct {
	consumer    queue.Consumer
	dispatcher  CycleRunner
	logger      *zap.Logger
	concurrency int
	now         func() time.Time
}

func NewWorkerService(
	consumer queue.Consumer,
	dispatcher CycleRunner,
	concurrency int,
	logger *zap.Logger,
) (*WorkerService, error) {
	if consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if concurrency < minWorkerConcurrency {
		concurrency = minWorkerConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WorkerService{
		consumer:    consumer,
		dispatcher:  dispatcher,
		logger:      logger,
		concurrency: concurrency,
		now:         time.Now,
	}, nil
}

// Start consumes the dispatch queue until context cancellation.
func (s *WorkerService) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < s.concurrency; i++ {
		workerID := i + 1

		g.Go(func() error {
			s.logger.Info("worker started",
				zap.Int("workerId", workerID),
				zap.String("queue", queue.DispatchQueue),
			)

			err := s.consumer.Consume(groupCtx, queue.DispatchQueue, s.processMessage)
			if err != nil {
				s.logger.Error("worker stopped with error",
					zap.Int("workerId", workerID),
					zap.String("queue", queue.DispatchQueue),
					zap.Error(err),
				)
				return err
			}

			s.logger.Info("worker stopped",
				zap.Int("workerId", workerID),
				zap.String("queue", queue.DispatchQueue),
			)
			return nil
		})
	}

	return g.Wait()
}

func (s *WorkerService) processMessage(ctx context.Context, msg queue.DispatchMessage) error {
	if msg.CorrelationID != "" {
		ctx = observability.WithCorrelationID(ctx, msg.CorrelationID)
	}

	if !msg.EnqueuedAt.IsZero() {
		s.logger.Debug("dispatch message picked up",
			zap.String("messageId", msg.ID),
			zap.Duration("queueDelay", s.now().Sub(msg.EnqueuedAt)),
		)
	}

	// The cycle keeps the trigger of the event that enqueued it.
	report := s.dispatcher.Dispatch(ctx, msg.Trigger, msg.Payload)
	if report.StorageError != nil {
		observability.WithContextLogger(s.logger, ctx).Warn("dispatch ran without subscribers",
			zap.String("messageId", msg.ID),
			zap.Error(report.StorageError),
		)
	}
	return nil
}
