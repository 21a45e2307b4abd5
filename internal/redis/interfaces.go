package redis

import (
	"context"
	"time"

	"syncway/internal/domain"
)

// PresenceStoreInterface defines the user-level view of online tracking.
// Connections are registered by the realtime hub.
type PresenceStoreInterface interface {
	MarkOffline(ctx context.Context, userID string) error
	OnlineUserIDs(ctx context.Context) ([]string, error)
	Count(ctx context.Context) (int64, error)
}

// RideCacheInterface defines the interface for the available-rides cache.
type RideCacheInterface interface {
	GetAvailableRides(ctx context.Context) ([]*domain.Ride, error)
	AvailableRidesVersion(ctx context.Context) (int64, error)
	SetAvailableRides(ctx context.Context, version int64, rides []*domain.Ride) (bool, error)
	InvalidateAvailableRides(ctx context.Context) error
}

// LockStoreInterface defines the interface for distributed locking.
type LockStoreInterface interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// Ensure concrete types implement interfaces.
var (
	_ PresenceStoreInterface = (*PresenceStore)(nil)
	_ RideCacheInterface     = (*CacheStore)(nil)
	_ LockStoreInterface     = (*LockStore)(nil)
)
