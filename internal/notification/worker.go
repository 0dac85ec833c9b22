package notification

import (
	"context"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"

	"equipment-queue-backend/internal/logger"
	"equipment-queue-backend/internal/model"
	"equipment-queue-backend/internal/store"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

type pushJob struct {
	userID  int64
	payload []byte
}

// WorkerPool delivers push notifications to users with no live event stream.
type WorkerPool struct {
	size    int
	jobs    chan pushJob
	store   store.Store
	webpush *webpush.Options
	sender  NotificationSender
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, s store.Store, webpushOptions *webpush.Options) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan pushJob, size*16),
		store:   s,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	logger.Debug().Int("worker", id).Msg("push worker started")
	for {
		select {
		case job := <-wp.jobs:
			wp.sendNotificationsForUser(ctx, job)
		case <-ctx.Done():
			logger.Debug().Int("worker", id).Msg("push worker shutting down")
			return
		}
	}
}

// Dispatch queues a payload for a user. It never blocks: when the queue is
// full the notification is dropped and false is returned.
func (wp *WorkerPool) Dispatch(userID int64, payload []byte) bool {
	select {
	case wp.jobs <- pushJob{userID: userID, payload: payload}:
		return true
	default:
		logger.Warn().Int64("user_id", userID).Msg("push queue full, dropping notification")
		return false
	}
}

func (wp *WorkerPool) sendNotificationsForUser(ctx context.Context, job pushJob) {
	if wp.webpush == nil || wp.webpush.VAPIDPrivateKey == "" {
		return
	}

	subscriptions, err := wp.store.SubscriptionsForUser(ctx, job.userID)
	if err != nil {
		logger.Warn().Err(err).Int64("user_id", job.userID).Msg("failed to load push subscriptions")
		return
	}

	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, job.payload)
	}
}

func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		logger.Warn().Err(err).Str("endpoint", sub.Endpoint).Msg("failed to send push notification")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		logger.Info().Str("endpoint", sub.Endpoint).Msg("push subscription expired, deleting")
		if err := wp.store.DeleteSubscription(ctx, sub.UserID, sub.Endpoint); err != nil {
			logger.Warn().Err(err).Str("endpoint", sub.Endpoint).Msg("failed to delete expired subscription")
		}
	}
}
