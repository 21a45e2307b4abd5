package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"syncway/internal/domain"
	"syncway/internal/metrics"
	"syncway/internal/redis"
	"syncway/internal/repository"
)

// Directory answers who should hear about new rides.
type Directory interface {
	// ListOnlineNotifiableDrivers returns online drivers with an active
	// account and email notifications enabled.
	ListOnlineNotifiableDrivers(ctx context.Context) ([]*domain.User, error)
}

// ActorRole says in which capacity a user acts on a ride.
type ActorRole string

const (
	ActorRequester ActorRole = "requester"
	ActorDriver    ActorRole = "driver"
)

// Result is a committed ride snapshot plus the side effects it produced.
// Events are executed by a Dispatcher after the caller has the result.
type Result struct {
	Ride   *domain.Ride
	Events []domain.Event
}

// RideServiceConfig holds the policy switches of the lifecycle.
type RideServiceConfig struct {
	// RequireRequesterToCancel restricts CancelRide to the ride's requester.
	RequireRequesterToCancel bool
}

// RideService owns the ride lifecycle: pending, claimed, cancelled.
type RideService struct {
	rideRepo  repository.RideRepository
	directory Directory
	cache     redis.RideCacheInterface
	logger    logrus.FieldLogger
	cfg       RideServiceConfig
	now       func() time.Time
}

// NewRideService creates a new RideService. cache may be nil.
func NewRideService(
	rideRepo repository.RideRepository,
	directory Directory,
	cache redis.RideCacheInterface,
	logger logrus.FieldLogger,
	cfg RideServiceConfig,
) *RideService {
	return &RideService{
		rideRepo:  rideRepo,
		directory: directory,
		cache:     cache,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// CreateRideRequest contains the parameters for creating a ride.
type CreateRideRequest struct {
	RequesterID    string
	RequesterName  string
	RequesterPhone string
	RequesterEmail string
	StartLocation  string
	EndLocation    string
	DistanceMiles  float64
	Fare           float64
	RideType       string
	Passengers     int
	RideDate       string
	RideTime       string
}

// CreateRide stores a new pending ride and announces it to online drivers.
func (s *RideService) CreateRide(ctx context.Context, req CreateRideRequest) (res *Result, err error) {
	defer func() { observe("create", err) }()

	req.StartLocation = strings.TrimSpace(req.StartLocation)
	req.EndLocation = strings.TrimSpace(req.EndLocation)
	if err := validateCreateRequest(req); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	ride := &domain.Ride{
		ID: uuid.New().String(),
		Requester: domain.Requester{
			ID:    req.RequesterID,
			Name:  req.RequesterName,
			Phone: req.RequesterPhone,
			Email: req.RequesterEmail,
		},
		StartLocation: req.StartLocation,
		EndLocation:   req.EndLocation,
		DistanceMiles: req.DistanceMiles,
		Fare:          req.Fare,
		RideType:      req.RideType,
		Passengers:    req.Passengers,
		RideDate:      req.RideDate,
		RideTime:      req.RideTime,
		Status:        domain.RideStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.rideRepo.Create(ctx, ride); err != nil {
		return nil, fmt.Errorf("create ride: %w", err)
	}
	s.invalidateAvailable(ctx)

	events := []domain.Event{
		domain.BroadcastEvent(domain.EventNewRideAvailable, ride.View()),
	}

	// A directory failure only skips the driver emails.
	drivers, err := s.directory.ListOnlineNotifiableDrivers(ctx)
	if err != nil {
		s.logger.WithError(err).WithField("ride_id", ride.ID).Warn("list online drivers failed, skipping new ride emails")
		drivers = nil
	}
	for _, d := range drivers {
		if d.Email == "" {
			continue
		}
		events = append(events, domain.EmailEventFor(domain.EmailEvent{
			Template:    domain.EmailNewRide,
			To:          d.Email,
			RecipientID: d.ID,
			Ride:        ride.Clone(),
		}))
	}

	return &Result{Ride: ride, Events: events}, nil
}

// ListAvailable returns pending rides, newest first.
func (s *RideService) ListAvailable(ctx context.Context) ([]*domain.Ride, error) {
	if s.cache != nil {
		rides, err := s.cache.GetAvailableRides(ctx)
		if err != nil {
			s.logger.WithError(err).Warn("read available rides cache failed")
		} else if rides != nil {
			return rides, nil
		}
	}

	// The version is read before the query. A write committed in between bumps
	// it, and the fill below is then dropped.
	var version int64
	fill := s.cache != nil
	if fill {
		v, err := s.cache.AvailableRidesVersion(ctx)
		if err != nil {
			s.logger.WithError(err).Warn("read available rides version failed")
			fill = false
		}
		version = v
	}

	rides, err := s.rideRepo.ListByStatus(ctx, domain.RideStatusPending)
	if err != nil {
		return nil, fmt.Errorf("list available rides: %w", err)
	}

	if fill {
		stored, err := s.cache.SetAvailableRides(ctx, version, rides)
		if err != nil {
			s.logger.WithError(err).Warn("write available rides cache failed")
		} else if !stored {
			s.logger.Debug("available rides changed during read, cache fill skipped")
		}
	}
	return rides, nil
}

// GetRide retrieves one ride.
func (s *RideService) GetRide(ctx context.Context, rideID string) (*domain.Ride, error) {
	if rideID == "" {
		return nil, ErrInvalidRideID
	}

	ride, err := s.rideRepo.GetByID(ctx, rideID)
	if err != nil {
		return nil, translateRideError(err)
	}
	return ride, nil
}

// ListByRequester returns the rides a user asked for, newest first.
func (s *RideService) ListByRequester(ctx context.Context, userID string) ([]*domain.Ride, error) {
	if userID == "" {
		return nil, ErrInvalidUserID
	}
	rides, err := s.rideRepo.ListByRequester(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ride storage: %w", err)
	}
	return rides, nil
}

// ListByDriver returns the rides a driver currently holds, newest first.
func (s *RideService) ListByDriver(ctx context.Context, driverID string) ([]*domain.Ride, error) {
	if driverID == "" {
		return nil, ErrInvalidDriverID
	}
	rides, err := s.rideRepo.ListByDriver(ctx, driverID)
	if err != nil {
		return nil, fmt.Errorf("ride storage: %w", err)
	}
	return rides, nil
}

// ClaimRideRequest contains the parameters for claiming a ride.
type ClaimRideRequest struct {
	RideID      string
	DriverID    string
	DriverName  string
	DriverPhone string
	DriverEmail string
}

// ClaimRide assigns a pending ride to a driver. Of several concurrent claims
// exactly one succeeds; the others get ErrRideAlreadyClaimed or ErrRideStateChanged.
func (s *RideService) ClaimRide(ctx context.Context, req ClaimRideRequest) (res *Result, err error) {
	defer func() { observe("claim", err) }()

	if req.RideID == "" {
		return nil, ErrInvalidRideID
	}
	if req.DriverID == "" {
		return nil, ErrInvalidDriverID
	}
	if strings.TrimSpace(req.DriverName) == "" {
		return nil, ErrInvalidDriverName
	}

	current, err := s.rideRepo.GetByID(ctx, req.RideID)
	if err != nil {
		return nil, translateRideError(err)
	}

	if err := checkTransition(current.Status, domain.RideStatusClaimed); err != nil {
		return nil, err
	}

	claim := &domain.Claim{
		DriverID:    req.DriverID,
		DriverName:  req.DriverName,
		DriverPhone: req.DriverPhone,
		DriverEmail: req.DriverEmail,
	}

	ride, err := s.rideRepo.CompareAndUpdate(ctx, req.RideID,
		repository.Precondition{Status: domain.RideStatusPending},
		repository.Mutation{Status: domain.RideStatusClaimed, Claim: claim},
	)
	if err != nil {
		return nil, translateRideError(err)
	}
	s.invalidateAvailable(ctx)

	events := []domain.Event{
		domain.NotifyEvent(ride.Requester.ID, domain.EventRideClaimed, ride.View()),
	}
	if ride.Requester.Email != "" {
		events = append(events, domain.EmailEventFor(domain.EmailEvent{
			Template:    domain.EmailRideClaimedRequester,
			To:          ride.Requester.Email,
			RecipientID: ride.Requester.ID,
			Ride:        ride.Clone(),
			Driver:      claimSnapshot(claim),
		}))
	}
	if claim.DriverEmail != "" {
		events = append(events, domain.EmailEventFor(domain.EmailEvent{
			Template:    domain.EmailRideClaimedDriver,
			To:          claim.DriverEmail,
			RecipientID: claim.DriverID,
			Ride:        ride.Clone(),
			Driver:      claimSnapshot(claim),
		}))
	}
	events = append(events, domain.BroadcastEvent(domain.EventRideRemovedFromAvailable, ride.ID))

	s.logger.WithFields(logrus.Fields{"ride_id": ride.ID, "driver_id": claim.DriverID}).Info("ride claimed")
	return &Result{Ride: ride, Events: events}, nil
}

// UnclaimRideRequest contains the parameters for releasing a claim.
type UnclaimRideRequest struct {
	RideID    string
	ActorID   string
	ActorRole ActorRole
}

// UnclaimRide returns a claimed ride to pending. The requester or the claiming
// driver may do this.
func (s *RideService) UnclaimRide(ctx context.Context, req UnclaimRideRequest) (res *Result, err error) {
	defer func() { observe("unclaim", err) }()

	if req.RideID == "" {
		return nil, ErrInvalidRideID
	}
	if req.ActorID == "" {
		return nil, ErrInvalidActorID
	}
	if req.ActorRole != ActorRequester && req.ActorRole != ActorDriver {
		return nil, ErrInvalidActorRole
	}

	current, err := s.rideRepo.GetByID(ctx, req.RideID)
	if err != nil {
		return nil, translateRideError(err)
	}

	if err := checkTransition(current.Status, domain.RideStatusPending); err != nil {
		return nil, err
	}
	if current.Claim == nil {
		return nil, ErrRideNotClaimed
	}

	if req.ActorRole == ActorRequester && req.ActorID != current.Requester.ID {
		return nil, ErrNotRideRequester
	}
	if req.ActorRole == ActorDriver && req.ActorID != current.ClaimedBy() {
		return nil, ErrNotClaimingDriver
	}

	former := claimSnapshot(current.Claim)

	ride, err := s.rideRepo.CompareAndUpdate(ctx, req.RideID,
		repository.Precondition{Status: domain.RideStatusClaimed, DriverID: former.DriverID},
		repository.Mutation{Status: domain.RideStatusPending},
	)
	if err != nil {
		return nil, translateRideError(err)
	}
	s.invalidateAvailable(ctx)

	var events []domain.Event
	if ride.Requester.Email != "" {
		events = append(events, domain.EmailEventFor(domain.EmailEvent{
			Template:    domain.EmailRideUnclaimedRequester,
			To:          ride.Requester.Email,
			RecipientID: ride.Requester.ID,
			Ride:        ride.Clone(),
			Driver:      former,
		}))
	}
	if former.DriverEmail != "" {
		events = append(events, domain.EmailEventFor(domain.EmailEvent{
			Template:    domain.EmailRideUnclaimedDriver,
			To:          former.DriverEmail,
			RecipientID: former.DriverID,
			Ride:        ride.Clone(),
			Driver:      former,
		}))
	}
	events = append(events,
		domain.BroadcastEvent(domain.EventNewRideAvailable, ride.View()),
		domain.NotifyEvent(ride.Requester.ID, domain.EventRideUnclaimed, ride.View()),
	)

	s.logger.WithFields(logrus.Fields{
		"ride_id":   ride.ID,
		"driver_id": former.DriverID,
		"actor_id":  req.ActorID,
		"role":      req.ActorRole,
	}).Info("ride unclaimed")
	return &Result{Ride: ride, Events: events}, nil
}

// CancelRideRequest contains the parameters for cancelling a ride.
type CancelRideRequest struct {
	RideID  string
	ActorID string
}

// CancelRide moves a pending or claimed ride to the terminal cancelled state.
func (s *RideService) CancelRide(ctx context.Context, req CancelRideRequest) (res *Result, err error) {
	defer func() { observe("cancel", err) }()

	if req.RideID == "" {
		return nil, ErrInvalidRideID
	}
	if s.cfg.RequireRequesterToCancel && req.ActorID == "" {
		return nil, ErrInvalidActorID
	}

	current, err := s.rideRepo.GetByID(ctx, req.RideID)
	if err != nil {
		return nil, translateRideError(err)
	}

	if err := checkTransition(current.Status, domain.RideStatusCancelled); err != nil {
		return nil, err
	}
	if s.cfg.RequireRequesterToCancel && req.ActorID != current.Requester.ID {
		return nil, ErrNotRideRequester
	}

	former := claimSnapshot(current.Claim)

	ride, err := s.rideRepo.CompareAndUpdate(ctx, req.RideID,
		repository.Precondition{Status: current.Status, DriverID: current.ClaimedBy()},
		repository.Mutation{Status: domain.RideStatusCancelled},
	)
	if err != nil {
		return nil, translateRideError(err)
	}
	s.invalidateAvailable(ctx)

	var events []domain.Event
	if ride.Requester.Email != "" {
		events = append(events, domain.EmailEventFor(domain.EmailEvent{
			Template:    domain.EmailRideCancelledRequester,
			To:          ride.Requester.Email,
			RecipientID: ride.Requester.ID,
			Ride:        ride.Clone(),
			Driver:      former,
		}))
	}
	if former != nil && former.DriverEmail != "" {
		events = append(events, domain.EmailEventFor(domain.EmailEvent{
			Template:    domain.EmailRideCancelledDriver,
			To:          former.DriverEmail,
			RecipientID: former.DriverID,
			Ride:        ride.Clone(),
			Driver:      former,
		}))
	}
	events = append(events, domain.BroadcastEvent(domain.EventRideRemovedFromAvailable, ride.ID))
	if former != nil {
		events = append(events, domain.NotifyEvent(former.DriverID, domain.EventRideCancelled, ride.View()))
	}

	s.logger.WithFields(logrus.Fields{"ride_id": ride.ID, "actor_id": req.ActorID}).Info("ride cancelled")
	return &Result{Ride: ride, Events: events}, nil
}

// checkTransition maps a move the lifecycle forbids to the error the caller sees.
func checkTransition(from, to domain.RideStatus) error {
	if from.CanTransitionTo(to) {
		return nil
	}
	switch {
	case from == domain.RideStatusCancelled:
		return ErrRideAlreadyCancelled
	case from == domain.RideStatusClaimed && to == domain.RideStatusClaimed:
		return ErrRideAlreadyClaimed
	case from == domain.RideStatusPending && to == domain.RideStatusPending:
		return ErrRideNotClaimed
	}
	return fmt.Errorf("%w: ride cannot move from %s to %s", ErrConflict, from, to)
}

func (s *RideService) invalidateAvailable(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateAvailableRides(ctx); err != nil {
		s.logger.WithError(err).Warn("invalidate available rides cache failed")
	}
}

func validateCreateRequest(req CreateRideRequest) error {
	if req.RequesterID == "" {
		return ErrInvalidRequesterID
	}
	if req.StartLocation == "" {
		return ErrMissingStartLocation
	}
	if req.EndLocation == "" {
		return ErrMissingEndLocation
	}
	if req.Passengers < 1 {
		return ErrInvalidPassengerCount
	}
	if !isValidRideDate(req.RideDate) {
		return ErrInvalidRideDate
	}
	if !isValidRideTime(req.RideTime) {
		return ErrInvalidRideTime
	}
	if req.DistanceMiles < 0 {
		return ErrInvalidDistance
	}
	if req.Fare < 0 {
		return ErrInvalidFare
	}
	return nil
}

func isValidRideDate(d string) bool {
	if len(d) != len("2006-01-02") {
		return false
	}
	_, err := time.Parse("2006-01-02", d)
	return err == nil
}

func isValidRideTime(t string) bool {
	if len(t) != len("15:04") {
		return false
	}
	_, err := time.Parse("15:04", t)
	return err == nil
}

// translateRideError maps storage errors onto service error categories.
func translateRideError(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return ErrRideNotFound
	case errors.Is(err, repository.ErrPreconditionFailed):
		return ErrRideStateChanged
	default:
		return fmt.Errorf("ride storage: %w", err)
	}
}

func claimSnapshot(c *domain.Claim) *domain.Claim {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

func observe(operation string, err error) {
	outcome := metrics.OutcomeOK
	switch {
	case err == nil:
	case errors.Is(err, ErrValidation), errors.Is(err, ErrNotFound),
		errors.Is(err, ErrConflict), errors.Is(err, ErrForbidden):
		outcome = metrics.OutcomeRejected
	default:
		outcome = metrics.OutcomeError
	}
	metrics.RideTransitions.WithLabelValues(operation, outcome).Inc()
}
