package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"syncway/internal/domain"
	"syncway/internal/repository"
)

const rideColumns = `id, requester_id, requester_name, requester_phone, requester_email,
		start_location, end_location, distance_miles, fare, ride_type, passengers, ride_date, ride_time,
		claimed_by, claimed_driver_name, claimed_driver_phone, claimed_driver_email,
		status, created_at, updated_at`

// RideRepository is a PostgreSQL implementation of repository.RideRepository.
type RideRepository struct {
	q Querier
}

// NewRideRepository creates a new PostgreSQL ride repository.
func NewRideRepository(db *sql.DB) *RideRepository {
	return &RideRepository{q: db}
}

var _ repository.RideRepository = (*RideRepository)(nil)

// Create persists a new ride.
func (r *RideRepository) Create(ctx context.Context, ride *domain.Ride) error {
	query := `
		INSERT INTO rides (` + rideColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`

	claim := claimColumns(ride.Claim)

	_, err := r.q.ExecContext(ctx, query,
		ride.ID,
		ride.Requester.ID,
		ride.Requester.Name,
		ride.Requester.Phone,
		nullString(ride.Requester.Email),
		ride.StartLocation,
		ride.EndLocation,
		ride.DistanceMiles,
		ride.Fare,
		nullString(ride.RideType),
		ride.Passengers,
		ride.RideDate,
		ride.RideTime,
		claim.driverID,
		claim.name,
		claim.phone,
		claim.email,
		ride.Status,
		ride.CreatedAt,
		ride.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert ride: %w", err)
	}
	return nil
}

// GetByID retrieves a ride by ID.
func (r *RideRepository) GetByID(ctx context.Context, id string) (*domain.Ride, error) {
	query := `SELECT ` + rideColumns + ` FROM rides WHERE id = $1`

	ride, err := scanRide(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return ride, nil
}

// CompareAndUpdate applies m in a single conditional UPDATE so that the status
// check and the write cannot interleave with a concurrent claim.
func (r *RideRepository) CompareAndUpdate(ctx context.Context, id string, pre repository.Precondition, m repository.Mutation) (*domain.Ride, error) {
	query := `
		UPDATE rides
		SET status = $3, claimed_by = $4, claimed_driver_name = $5, claimed_driver_phone = $6, claimed_driver_email = $7, updated_at = NOW()
		WHERE id = $1 AND status = $2 AND ($8 = '' OR claimed_by = $8)
		RETURNING ` + rideColumns

	claim := claimColumns(m.Claim)

	ride, err := scanRide(r.q.QueryRowContext(ctx, query,
		id,
		pre.Status,
		m.Status,
		claim.driverID,
		claim.name,
		claim.phone,
		claim.email,
		pre.DriverID,
	))
	if err == nil {
		return ride, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("compare and update ride: %w", err)
	}

	// Nothing matched: tell a missing ride apart from a lost race.
	var exists bool
	if err := r.q.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM rides WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check ride exists: %w", err)
	}
	if !exists {
		return nil, repository.ErrNotFound
	}
	return nil, repository.ErrPreconditionFailed
}

// ListByStatus retrieves rides in the given status, newest first.
func (r *RideRepository) ListByStatus(ctx context.Context, status domain.RideStatus) ([]*domain.Ride, error) {
	query := `SELECT ` + rideColumns + ` FROM rides WHERE status = $1 ORDER BY created_at DESC`
	return r.list(ctx, query, status)
}

// ListByRequester retrieves rides created by a user, newest first.
func (r *RideRepository) ListByRequester(ctx context.Context, requesterID string) ([]*domain.Ride, error) {
	query := `SELECT ` + rideColumns + ` FROM rides WHERE requester_id = $1 ORDER BY created_at DESC`
	return r.list(ctx, query, requesterID)
}

// ListByDriver retrieves rides claimed by a driver, newest first.
func (r *RideRepository) ListByDriver(ctx context.Context, driverID string) ([]*domain.Ride, error) {
	query := `SELECT ` + rideColumns + ` FROM rides WHERE claimed_by = $1 ORDER BY created_at DESC`
	return r.list(ctx, query, driverID)
}

func (r *RideRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Ride, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rides := make([]*domain.Ride, 0)
	for rows.Next() {
		ride, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		rides = append(rides, ride)
	}
	return rides, rows.Err()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRide(row rowScanner) (*domain.Ride, error) {
	var ride domain.Ride
	var requesterEmail, rideType sql.NullString
	var claimedBy, driverName, driverPhone, driverEmail sql.NullString

	err := row.Scan(
		&ride.ID,
		&ride.Requester.ID,
		&ride.Requester.Name,
		&ride.Requester.Phone,
		&requesterEmail,
		&ride.StartLocation,
		&ride.EndLocation,
		&ride.DistanceMiles,
		&ride.Fare,
		&rideType,
		&ride.Passengers,
		&ride.RideDate,
		&ride.RideTime,
		&claimedBy,
		&driverName,
		&driverPhone,
		&driverEmail,
		&ride.Status,
		&ride.CreatedAt,
		&ride.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if !ride.Status.Valid() {
		return nil, fmt.Errorf("ride %s: unknown status %q", ride.ID, ride.Status)
	}

	ride.Requester.Email = requesterEmail.String
	ride.RideType = rideType.String
	if claimedBy.Valid {
		ride.Claim = &domain.Claim{
			DriverID:    claimedBy.String,
			DriverName:  driverName.String,
			DriverPhone: driverPhone.String,
			DriverEmail: driverEmail.String,
		}
	}
	return &ride, nil
}

type claimRow struct {
	driverID, name, phone, email sql.NullString
}

func claimColumns(c *domain.Claim) claimRow {
	if c == nil {
		return claimRow{}
	}
	return claimRow{
		driverID: sql.NullString{String: c.DriverID, Valid: true},
		name:     sql.NullString{String: c.DriverName, Valid: true},
		phone:    sql.NullString{String: c.DriverPhone, Valid: true},
		email:    nullString(c.DriverEmail),
	}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
