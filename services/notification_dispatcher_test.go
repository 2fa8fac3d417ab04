package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"waterFastAPI/internal/notification"
)

type sentPush struct {
	Tokens []notification.DeviceToken
	Title  string
	Body   string
	Data   map[string]any
}

type fakePushProvider struct {
	mu   sync.Mutex
	sent []sentPush
	err  error
}

func (f *fakePushProvider) SendPush(ctx context.Context, tokens []notification.DeviceToken, title, body string, data map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentPush{Tokens: tokens, Title: title, Body: body, Data: data})
	return f.err
}

func (f *fakePushProvider) Sent() []sentPush {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentPush(nil), f.sent...)
}

type staticTokens map[string][]notification.DeviceToken

func (s staticTokens) DeviceTokens(ctx context.Context, userID string) ([]notification.DeviceToken, error) {
	return s[userID], nil
}

func TestDispatcher_SendsToUserDevices(t *testing.T) {
	provider := &fakePushProvider{}
	tokens := staticTokens{"u1": {{Token: "a", Platform: notification.PlatformIOS}}}
	d := NewNotificationDispatcher(tokens, provider)
	defer d.Stop()

	ok := d.Dispatch(context.Background(), &notification.Push{
		UserID: "u1",
		Type:   notification.TypeMilestone,
		Title:  "12h: Ketosis start",
		Body:   "body",
		Data:   map[string]any{"threshold_hours": 12},
	})
	require.True(t, ok)

	require.Eventually(t, func() bool { return len(provider.Sent()) == 1 }, time.Second, 10*time.Millisecond)
	got := provider.Sent()[0]
	assert.Equal(t, "12h: Ketosis start", got.Title)
	assert.Equal(t, "fast_milestone", got.Data["type"])
	assert.Equal(t, 12, got.Data["threshold_hours"])
	assert.Len(t, got.Tokens, 1)
}

func TestDispatcher_SkipsUsersWithoutDevices(t *testing.T) {
	provider := &fakePushProvider{}
	d := NewNotificationDispatcher(staticTokens{}, provider)

	d.Dispatch(context.Background(), &notification.Push{UserID: "nobody", Type: notification.TypeGoalReached})
	d.Stop()

	assert.Empty(t, provider.Sent())
}

func TestDispatcher_ProviderErrorDoesNotStopWorkers(t *testing.T) {
	provider := &fakePushProvider{err: errors.New("boom")}
	tokens := staticTokens{"u1": {{Token: "a", Platform: notification.PlatformAndroid}}}
	d := NewNotificationDispatcher(tokens, provider)
	defer d.Stop()

	for i := 0; i < 3; i++ {
		d.Dispatch(context.Background(), &notification.Push{UserID: "u1", Type: notification.TypeMilestone})
	}
	require.Eventually(t, func() bool { return len(provider.Sent()) == 3 }, time.Second, 10*time.Millisecond)
}

func TestDispatcher_QueueFullDrops(t *testing.T) {
	d := &NotificationDispatcher{
		tokens:       staticTokens{},
		queueTimeout: 10 * time.Millisecond,
		jobQueue:     make(chan *DispatchJob, 1),
		stopChan:     make(chan struct{}),
	}

	assert.True(t, d.Dispatch(context.Background(), &notification.Push{UserID: "u1"}))
	assert.False(t, d.Dispatch(context.Background(), &notification.Push{UserID: "u1"}))
}
