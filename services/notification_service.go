package services

import (
	"context"
	"fmt"
	"strings"

	"waterFastAPI/internal/clock"
	"waterFastAPI/internal/notification"
	"waterFastAPI/internal/store"
)

type NotificationService struct {
	store store.Store
	clock clock.Clock
}

func NewNotificationService(st store.Store, c clock.Clock) *NotificationService {
	return &NotificationService{store: st, clock: c}
}

// RegisterDevice adds or refreshes a push token for the user.
func (s *NotificationService) RegisterDevice(ctx context.Context, userID string, req notification.RegisterDeviceRequest) (*notification.DeviceToken, error) {
	token := strings.TrimSpace(req.Token)
	if token == "" || strings.Contains(token, "/") {
		return nil, fmt.Errorf("%w: token is required", ErrInvalidRequest)
	}
	if !req.Platform.Valid() {
		return nil, fmt.Errorf("%w: platform must be ios, android or web", ErrInvalidRequest)
	}

	now := s.clock.Now()
	dt := notification.DeviceToken{
		Token:    token,
		Platform: req.Platform,
		AddedAt:  now,
		LastUsed: now,
	}
	if err := s.store.RegisterDevice(ctx, userID, dt); err != nil {
		return nil, err
	}
	return &dt, nil
}
