package services

import (
	"context"
	"sync"
	"time"

	"waterFastAPI/internal/logger"
	"waterFastAPI/internal/notification"
)

type PushNotificationProvider interface {
	SendPush(ctx context.Context, tokens []notification.DeviceToken, title, body string, data map[string]any) error
}

// DeviceTokenSource looks up where a user's pushes go.
type DeviceTokenSource interface {
	DeviceTokens(ctx context.Context, userID string) ([]notification.DeviceToken, error)
}

// NotificationDispatcher delivers pushes from a bounded queue with a fixed
// pool of workers.
type NotificationDispatcher struct {
	tokens       DeviceTokenSource
	mu           sync.RWMutex
	pushProvider PushNotificationProvider
	workers      int
	queueTimeout time.Duration
	jobQueue     chan *DispatchJob
	stopChan     chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup
}

type DispatchJob struct {
	Push *notification.Push
}

func NewNotificationDispatcher(tokens DeviceTokenSource, provider PushNotificationProvider) *NotificationDispatcher {
	dispatcher := &NotificationDispatcher{
		tokens:       tokens,
		pushProvider: provider,
		workers:      5,
		queueTimeout: 5 * time.Second,
		jobQueue:     make(chan *DispatchJob, 100),
		stopChan:     make(chan struct{}),
	}

	dispatcher.startWorkers()

	return dispatcher
}

// SetPushProvider swaps the provider, e.g. once FCM is configured.
func (d *NotificationDispatcher) SetPushProvider(provider PushNotificationProvider) {
	d.mu.Lock()
	d.pushProvider = provider
	d.mu.Unlock()
}

func (d *NotificationDispatcher) provider() PushNotificationProvider {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.pushProvider
}

func (d *NotificationDispatcher) startWorkers() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
}

func (d *NotificationDispatcher) worker(id int) {
	defer d.wg.Done()
	for {
		select {
		case job := <-d.jobQueue:
			d.processJob(job)
		case <-d.stopChan:
			return
		}
	}
}

func (d *NotificationDispatcher) processJob(job *DispatchJob) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	push := job.Push
	provider := d.provider()
	if provider == nil {
		logger.Debug("skipping push: no provider", "user", push.UserID, "type", push.Type)
		return
	}

	tokens, err := d.tokens.DeviceTokens(ctx, push.UserID)
	if err != nil {
		logger.Warn("failed to load device tokens", "user", push.UserID, "err", err)
		return
	}
	if len(tokens) == 0 {
		logger.Debug("skipping push: no devices", "user", push.UserID, "type", push.Type)
		return
	}

	data := map[string]any{"type": string(push.Type)}
	for k, v := range push.Data {
		data[k] = v
	}

	if err := provider.SendPush(ctx, tokens, push.Title, push.Body, data); err != nil {
		logger.Warn("push failed", "user", push.UserID, "type", push.Type, "err", err)
	}
}

// Dispatch queues push, waiting up to the queue timeout for space.
func (d *NotificationDispatcher) Dispatch(ctx context.Context, push *notification.Push) bool {
	job := &DispatchJob{Push: push}

	timer := time.NewTimer(d.queueTimeout)
	defer timer.Stop()

	select {
	case d.jobQueue <- job:
		return true
	case <-timer.C:
		pushesDropped.Inc()
		logger.Warn("failed to queue push: queue full", "user", push.UserID, "type", push.Type)
	case <-ctx.Done():
	case <-d.stopChan:
	}
	return false
}

// Stop the dispatcher gracefully
func (d *NotificationDispatcher) Stop() {
	d.stopOnce.Do(func() {
		logger.Info("stopping notification dispatcher")
		close(d.stopChan)
		d.wg.Wait()
		logger.Info("notification dispatcher stopped")
	})
}

// LogPushProvider only logs pushes. It stands in for FCM when no Firebase
// credentials are configured.
type LogPushProvider struct{}

func (LogPushProvider) SendPush(ctx context.Context, tokens []notification.DeviceToken, title, body string, data map[string]any) error {
	logger.Info("push (not sent)", "devices", len(tokens), "title", title, "body", body)
	return nil
}
