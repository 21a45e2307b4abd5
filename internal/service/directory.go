package service

import (
	"context"
	"fmt"

	"syncway/internal/domain"
	"syncway/internal/redis"
	"syncway/internal/repository"
)

// PresenceDirectory joins the shared presence set with the user table.
type PresenceDirectory struct {
	presence redis.PresenceStoreInterface
	users    repository.UserRepository
}

// NewPresenceDirectory creates a new PresenceDirectory.
func NewPresenceDirectory(presence redis.PresenceStoreInterface, users repository.UserRepository) *PresenceDirectory {
	return &PresenceDirectory{presence: presence, users: users}
}

var _ Directory = (*PresenceDirectory)(nil)

// ListOnlineNotifiableDrivers implements Directory.
func (d *PresenceDirectory) ListOnlineNotifiableDrivers(ctx context.Context) ([]*domain.User, error) {
	ids, err := d.presence.OnlineUserIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("read presence: %w", err)
	}
	if len(ids) == 0 {
		return []*domain.User{}, nil
	}

	drivers, err := d.users.ListNotifiableDrivers(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load drivers: %w", err)
	}
	return drivers, nil
}

// OnlineCount returns the number of users currently online.
func (d *PresenceDirectory) OnlineCount(ctx context.Context) (int64, error) {
	return d.presence.Count(ctx)
}
