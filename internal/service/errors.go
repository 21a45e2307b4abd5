package service

import (
	"errors"
	"fmt"
)

// Error categories. Every error returned by the services wraps exactly one of
// these, so callers can branch with errors.Is(err, ErrConflict).
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")
)

var (
	// ErrInvalidRideID is returned when ride ID is empty.
	ErrInvalidRideID = fmt.Errorf("%w: invalid ride id", ErrValidation)

	// ErrInvalidRequesterID is returned when the requester ID is empty.
	ErrInvalidRequesterID = fmt.Errorf("%w: invalid requester id", ErrValidation)

	ErrMissingStartLocation = fmt.Errorf("%w: start location is required", ErrValidation)
	ErrMissingEndLocation   = fmt.Errorf("%w: end location is required", ErrValidation)

	// ErrInvalidPassengerCount is returned when fewer than one passenger is requested.
	ErrInvalidPassengerCount = fmt.Errorf("%w: passengers must be at least 1", ErrValidation)

	ErrInvalidRideDate = fmt.Errorf("%w: ride date must be YYYY-MM-DD", ErrValidation)
	ErrInvalidRideTime = fmt.Errorf("%w: ride time must be HH:MM", ErrValidation)
	ErrInvalidDistance = fmt.Errorf("%w: distance must not be negative", ErrValidation)
	ErrInvalidFare     = fmt.Errorf("%w: fare must not be negative", ErrValidation)

	// ErrInvalidDriverID is returned when driver ID is empty.
	ErrInvalidDriverID = fmt.Errorf("%w: invalid driver id", ErrValidation)

	// ErrInvalidDriverName is returned when a claim has no driver name.
	ErrInvalidDriverName = fmt.Errorf("%w: driver name is required", ErrValidation)

	// ErrInvalidActorID is returned when the acting user is not identified.
	ErrInvalidActorID = fmt.Errorf("%w: invalid actor id", ErrValidation)

	// ErrInvalidActorRole is returned when an unclaim names neither requester nor driver.
	ErrInvalidActorRole = fmt.Errorf("%w: role must be requester or driver", ErrValidation)

	ErrInvalidUserID   = fmt.Errorf("%w: invalid user id", ErrValidation)
	ErrInvalidUserName = fmt.Errorf("%w: name is required", ErrValidation)
	ErrInvalidPhone    = fmt.Errorf("%w: phone is required", ErrValidation)
	ErrInvalidUserRole = fmt.Errorf("%w: role must be user or driver", ErrValidation)
)

var (
	// ErrRideNotFound is returned when no ride has the given ID.
	ErrRideNotFound = fmt.Errorf("%w: ride not found", ErrNotFound)

	// ErrUserNotFound is returned when no user has the given ID.
	ErrUserNotFound = fmt.Errorf("%w: user not found", ErrNotFound)
)

var (
	// ErrRideAlreadyClaimed is returned when claiming a ride another driver holds.
	ErrRideAlreadyClaimed = fmt.Errorf("%w: ride already claimed", ErrConflict)

	// ErrRideNotClaimed is returned when unclaiming a ride nobody holds.
	ErrRideNotClaimed = fmt.Errorf("%w: ride not claimed", ErrConflict)

	// ErrRideAlreadyCancelled is returned for any transition out of cancelled.
	ErrRideAlreadyCancelled = fmt.Errorf("%w: ride already cancelled", ErrConflict)

	// ErrRideStateChanged is returned when a concurrent write won the compare-and-update.
	ErrRideStateChanged = fmt.Errorf("%w: ride changed concurrently", ErrConflict)

	// ErrPhoneAlreadyRegistered is returned when an active account owns the phone.
	ErrPhoneAlreadyRegistered = fmt.Errorf("%w: phone number already registered", ErrConflict)
)

var (
	// ErrNotRideRequester is returned when someone other than the requester acts as one.
	ErrNotRideRequester = fmt.Errorf("%w: only the requester may do this", ErrForbidden)

	// ErrNotClaimingDriver is returned when a driver acts on a ride claimed by someone else.
	ErrNotClaimingDriver = fmt.Errorf("%w: only the claiming driver may do this", ErrForbidden)
)
