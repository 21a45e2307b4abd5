package tests

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"syncway/internal/domain"
	"syncway/internal/service"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type fixture struct {
	rides     *MockRideRepository
	directory *MockDirectory
	cache     *MockRideCache
	service   *service.RideService
}

func newFixture(t *testing.T, cfg service.RideServiceConfig, drivers ...*domain.User) *fixture {
	t.Helper()
	f := &fixture{
		rides:     NewMockRideRepository(),
		directory: NewMockDirectory(drivers...),
		cache:     NewMockRideCache(),
	}
	f.service = service.NewRideService(f.rides, f.directory, f.cache, quietLogger(), cfg)
	return f
}

func validCreateRequest() service.CreateRideRequest {
	return service.CreateRideRequest{
		RequesterID:    "user-1",
		RequesterName:  "Rita",
		RequesterPhone: "555-0100",
		RequesterEmail: "rita@example.com",
		StartLocation:  "A",
		EndLocation:    "B",
		DistanceMiles:  12.3,
		Fare:           30,
		RideType:       "standard",
		Passengers:     2,
		RideDate:       "2024-06-01",
		RideTime:       "09:00",
	}
}

func claimRequest(rideID, driverID string) service.ClaimRideRequest {
	return service.ClaimRideRequest{
		RideID:      rideID,
		DriverID:    driverID,
		DriverName:  "Driver " + driverID,
		DriverPhone: "555-" + driverID,
		DriverEmail: driverID + "@example.com",
	}
}

func mustCreate(t *testing.T, f *fixture) *domain.Ride {
	t.Helper()
	res, err := f.service.CreateRide(context.Background(), validCreateRequest())
	if err != nil {
		t.Fatalf("create ride: %v", err)
	}
	return res.Ride
}

func driver(id string) *domain.User {
	return &domain.User{
		ID:                 id,
		Name:               "Driver " + id,
		Phone:              "555-" + id,
		Email:              id + "@example.com",
		Role:               domain.UserRoleDriver,
		EmailNotifications: true,
		AccountActive:      true,
		CreatedAt:          time.Now(),
	}
}

func assertConsistent(t *testing.T, ride *domain.Ride) {
	t.Helper()
	if !ride.Consistent() {
		t.Fatalf("ride %s inconsistent: status=%s claim=%+v", ride.ID, ride.Status, ride.Claim)
	}
	if ride.Claimed() != (ride.Status == domain.RideStatusClaimed) {
		t.Fatalf("claimed flag %v disagrees with status %s", ride.Claimed(), ride.Status)
	}
}

func emailEvents(events []domain.Event) []*domain.EmailEvent {
	var out []*domain.EmailEvent
	for _, ev := range events {
		if ev.Kind == domain.EventKindEmail {
			out = append(out, ev.Email)
		}
	}
	return out
}

func findEmail(events []domain.Event, tmpl domain.EmailTemplate) *domain.EmailEvent {
	for _, e := range emailEvents(events) {
		if e.Template == tmpl {
			return e
		}
	}
	return nil
}

func findRealtime(events []domain.Event, name string) *domain.Event {
	for i := range events {
		if events[i].Kind != domain.EventKindEmail && events[i].Name == name {
			return &events[i]
		}
	}
	return nil
}
