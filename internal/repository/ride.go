package repository

import (
	"context"

	"syncway/internal/domain"
)

// Precondition is the state a ride must be in for CompareAndUpdate to apply.
type Precondition struct {
	Status domain.RideStatus

	// DriverID, when set, must equal the stored claimant.
	DriverID string
}

// Mutation is the status change applied by CompareAndUpdate. A nil Claim
// clears every claim field.
type Mutation struct {
	Status domain.RideStatus
	Claim  *domain.Claim
}

// RideRepository defines the persistence operations for rides.
type RideRepository interface {
	// Create persists a new ride.
	Create(ctx context.Context, ride *domain.Ride) error

	// GetByID retrieves a ride by ID.
	GetByID(ctx context.Context, id string) (*domain.Ride, error)

	// CompareAndUpdate atomically applies m if the stored ride satisfies pre,
	// and returns the updated ride. It returns ErrNotFound for an unknown id
	// and ErrPreconditionFailed when the comparison fails.
	CompareAndUpdate(ctx context.Context, id string, pre Precondition, m Mutation) (*domain.Ride, error)

	// ListByStatus retrieves rides in the given status, newest first.
	ListByStatus(ctx context.Context, status domain.RideStatus) ([]*domain.Ride, error)

	// ListByRequester retrieves rides created by a user, newest first.
	ListByRequester(ctx context.Context, requesterID string) ([]*domain.Ride, error)

	// ListByDriver retrieves rides claimed by a driver, newest first.
	ListByDriver(ctx context.Context, driverID string) ([]*domain.Ride, error)
}
