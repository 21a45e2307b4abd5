package repository

import (
	"context"

	"syncway/internal/domain"
)

// UserRepository defines the persistence operations for users.
type UserRepository interface {
	// Create adds a new user.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id string) (*domain.User, error)

	// GetByPhone retrieves a user by normalized phone number.
	GetByPhone(ctx context.Context, phone string) (*domain.User, error)

	// GetAll retrieves all active users.
	GetAll(ctx context.Context) ([]*domain.User, error)

	// Update overwrites the mutable fields of an existing user.
	Update(ctx context.Context, user *domain.User) error

	// SetEmailNotifications toggles the email preference and returns the user.
	SetEmailNotifications(ctx context.Context, id string, enabled bool) (*domain.User, error)

	// Deactivate soft-deletes a user.
	Deactivate(ctx context.Context, id string) error

	// ListNotifiableDrivers returns, among ids, the active drivers that accept email.
	ListNotifiableDrivers(ctx context.Context, ids []string) ([]*domain.User, error)
}
