package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/verbalink/verbalink-api/internal/clients/notifier"
	"github.com/verbalink/verbalink-api/pkg/jobs"
)

type notifierClient interface {
	Send(ctx context.Context, msg notifier.Message) error
}

// NotificationService pushes templated notices through the outbound notifier
// on a background queue. Delivery is best-effort with bounded retries; a
// failed send never fails the request that triggered it.
type NotificationService struct {
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewNotificationService wires the notifier client behind a worker queue.
func NewNotificationService(client notifierClient, workers, retries int, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &NotificationService{logger: logger}
	s.queue = jobs.NewQueue("notifications", func(ctx context.Context, job jobs.Job) error {
		msg, ok := job.Payload.(notifier.Message)
		if !ok {
			return fmt.Errorf("unexpected payload type %T", job.Payload)
		}
		return client.Send(ctx, msg)
	}, jobs.QueueConfig{
		Workers:    workers,
		MaxRetries: retries,
		Logger:     logger,
	})
	return s
}

// Start launches the queue workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the queue.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// Notify enqueues one templated send addressed by user id; the notifier
// resolves the delivery channel.
func (s *NotificationService) Notify(templateID, to string, params map[string]string) {
	err := s.queue.Enqueue(jobs.Job{
		Type: templateID,
		Payload: notifier.Message{
			TemplateID: templateID,
			To:         to,
			Params:     params,
		},
	})
	if err != nil {
		s.logger.Warn("notification dropped",
			zap.String("template", templateID), zap.Error(err))
	}
}
