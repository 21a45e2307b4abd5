package domain

import "time"

// RideStatus represents the current status of a ride.
type RideStatus string

const (
	RideStatusPending   RideStatus = "pending"
	RideStatusClaimed   RideStatus = "claimed"
	RideStatusCancelled RideStatus = "cancelled"
)

// Valid reports whether s is a known ride status.
func (s RideStatus) Valid() bool {
	switch s {
	case RideStatusPending, RideStatusClaimed, RideStatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether the lifecycle allows moving from s to next.
//
//	pending --claim--> claimed --unclaim--> pending
//	pending --cancel--> cancelled
//	claimed --cancel--> cancelled
func (s RideStatus) CanTransitionTo(next RideStatus) bool {
	switch s {
	case RideStatusPending:
		return next == RideStatusClaimed || next == RideStatusCancelled
	case RideStatusClaimed:
		return next == RideStatusPending || next == RideStatusCancelled
	default:
		return false
	}
}

// Requester identifies the user who asked for the ride.
type Requester struct {
	ID    string
	Name  string
	Phone string
	Email string
}

// Claim holds the contact details of the driver currently holding a ride.
// A ride either has a complete Claim or none at all.
type Claim struct {
	DriverID    string
	DriverName  string
	DriverPhone string
	DriverEmail string
}

// Ride represents one requested trip.
type Ride struct {
	ID            string
	Requester     Requester
	StartLocation string
	EndLocation   string
	DistanceMiles float64
	Fare          float64
	RideType      string
	Passengers    int
	RideDate      string // YYYY-MM-DD
	RideTime      string // HH:MM
	Claim         *Claim
	Status        RideStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Claimed is the denormalized claimed flag. It is derived from the claim so it
// cannot drift from the claim fields.
func (r *Ride) Claimed() bool {
	return r.Claim != nil
}

// Consistent reports whether status and claim agree.
func (r *Ride) Consistent() bool {
	return (r.Status == RideStatusClaimed) == (r.Claim != nil)
}

// ClaimedBy returns the claiming driver's id, or "" when unclaimed.
func (r *Ride) ClaimedBy() string {
	if r.Claim == nil {
		return ""
	}
	return r.Claim.DriverID
}

// Clone returns a deep copy of the ride.
func (r *Ride) Clone() *Ride {
	if r == nil {
		return nil
	}
	c := *r
	if r.Claim != nil {
		claim := *r.Claim
		c.Claim = &claim
	}
	return &c
}
