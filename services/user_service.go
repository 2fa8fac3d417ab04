package services

import (
	"context"
	"fmt"

	"waterFastAPI/internal/logger"
	"waterFastAPI/internal/store"
)

// UserService handles account level events from the identity provider.
type UserService struct {
	store store.Store
}

func NewUserService(st store.Store) *UserService {
	return &UserService{store: st}
}

// DeleteUserData removes every fast and device token of a deleted account.
func (s *UserService) DeleteUserData(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidRequest)
	}
	if err := s.store.DeleteUser(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete user data: %w", err)
	}
	logger.Info("deleted user data", "user", userID)
	return nil
}
