// Package mongo stores rides as documents. FindOneAndUpdate with a status
// filter gives the same single-round-trip compare-and-update as the SQL store.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"syncway/internal/domain"
	"syncway/internal/repository"
)

const ridesCollection = "rides"

type claimDocument struct {
	DriverID    string `bson:"driver_id"`
	DriverName  string `bson:"driver_name"`
	DriverPhone string `bson:"driver_phone"`
	DriverEmail string `bson:"driver_email,omitempty"`
}

type rideDocument struct {
	ID             string         `bson:"_id"`
	RequesterID    string         `bson:"requester_id"`
	RequesterName  string         `bson:"requester_name"`
	RequesterPhone string         `bson:"requester_phone"`
	RequesterEmail string         `bson:"requester_email,omitempty"`
	StartLocation  string         `bson:"start_location"`
	EndLocation    string         `bson:"end_location"`
	DistanceMiles  float64        `bson:"distance_miles"`
	Fare           float64        `bson:"fare"`
	RideType       string         `bson:"ride_type,omitempty"`
	Passengers     int            `bson:"passengers"`
	RideDate       string         `bson:"ride_date"`
	RideTime       string         `bson:"ride_time"`
	Claimed        bool           `bson:"claimed"`
	Claim          *claimDocument `bson:"claim"`
	Status         string         `bson:"status"`
	CreatedAt      time.Time      `bson:"created_at"`
	UpdatedAt      time.Time      `bson:"updated_at"`
}

// RideRepository is a MongoDB implementation of repository.RideRepository.
type RideRepository struct {
	coll *mongo.Collection
}

// NewRideRepository creates a ride repository backed by the rides collection of db.
func NewRideRepository(db *mongo.Database) *RideRepository {
	return &RideRepository{coll: db.Collection(ridesCollection)}
}

var _ repository.RideRepository = (*RideRepository)(nil)

// EnsureIndexes creates the indexes used by the list queries.
func (r *RideRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "requester_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "claim.driver_id", Value: 1}, {Key: "created_at", Value: -1}}},
	})
	return err
}

// Create persists a new ride.
func (r *RideRepository) Create(ctx context.Context, ride *domain.Ride) error {
	if _, err := r.coll.InsertOne(ctx, toDocument(ride)); err != nil {
		return fmt.Errorf("insert ride: %w", err)
	}
	return nil
}

// GetByID retrieves a ride by ID.
func (r *RideRepository) GetByID(ctx context.Context, id string) (*domain.Ride, error) {
	var doc rideDocument
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc.toDomain()
}

// CompareAndUpdate applies m only if the stored document matches pre.
func (r *RideRepository) CompareAndUpdate(ctx context.Context, id string, pre repository.Precondition, m repository.Mutation) (*domain.Ride, error) {
	update := mutationUpdate(m, time.Now().UTC())
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc rideDocument
	err := r.coll.FindOneAndUpdate(ctx, preconditionFilter(id, pre), update, opts).Decode(&doc)
	if err == nil {
		return doc.toDomain()
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("compare and update ride: %w", err)
	}

	count, err := r.coll.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return nil, fmt.Errorf("check ride exists: %w", err)
	}
	if count == 0 {
		return nil, repository.ErrNotFound
	}
	return nil, repository.ErrPreconditionFailed
}

// mutationUpdate sets claim to null and claimed to false when m clears the claim.
func mutationUpdate(m repository.Mutation, now time.Time) bson.M {
	return bson.M{"$set": bson.M{
		"status":     string(m.Status),
		"claimed":    m.Claim != nil,
		"claim":      toClaimDocument(m.Claim),
		"updated_at": now,
	}}
}

// ListByStatus retrieves rides in the given status, newest first.
func (r *RideRepository) ListByStatus(ctx context.Context, status domain.RideStatus) ([]*domain.Ride, error) {
	return r.find(ctx, bson.M{"status": string(status)})
}

// ListByRequester retrieves rides created by a user, newest first.
func (r *RideRepository) ListByRequester(ctx context.Context, requesterID string) ([]*domain.Ride, error) {
	return r.find(ctx, bson.M{"requester_id": requesterID})
}

// ListByDriver retrieves rides claimed by a driver, newest first.
func (r *RideRepository) ListByDriver(ctx context.Context, driverID string) ([]*domain.Ride, error) {
	return r.find(ctx, bson.M{"claim.driver_id": driverID})
}

func (r *RideRepository) find(ctx context.Context, filter bson.M) ([]*domain.Ride, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	rides := make([]*domain.Ride, 0)
	for cursor.Next(ctx) {
		var doc rideDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		ride, err := doc.toDomain()
		if err != nil {
			return nil, err
		}
		rides = append(rides, ride)
	}
	return rides, cursor.Err()
}

func preconditionFilter(id string, pre repository.Precondition) bson.M {
	filter := bson.M{"_id": id, "status": string(pre.Status)}
	if pre.DriverID != "" {
		filter["claim.driver_id"] = pre.DriverID
	}
	return filter
}

func toClaimDocument(c *domain.Claim) *claimDocument {
	if c == nil {
		return nil
	}
	return &claimDocument{
		DriverID:    c.DriverID,
		DriverName:  c.DriverName,
		DriverPhone: c.DriverPhone,
		DriverEmail: c.DriverEmail,
	}
}

func toDocument(ride *domain.Ride) rideDocument {
	return rideDocument{
		ID:             ride.ID,
		RequesterID:    ride.Requester.ID,
		RequesterName:  ride.Requester.Name,
		RequesterPhone: ride.Requester.Phone,
		RequesterEmail: ride.Requester.Email,
		StartLocation:  ride.StartLocation,
		EndLocation:    ride.EndLocation,
		DistanceMiles:  ride.DistanceMiles,
		Fare:           ride.Fare,
		RideType:       ride.RideType,
		Passengers:     ride.Passengers,
		RideDate:       ride.RideDate,
		RideTime:       ride.RideTime,
		Claimed:        ride.Claimed(),
		Claim:          toClaimDocument(ride.Claim),
		Status:         string(ride.Status),
		CreatedAt:      ride.CreatedAt,
		UpdatedAt:      ride.UpdatedAt,
	}
}

func (d *rideDocument) toDomain() (*domain.Ride, error) {
	if !domain.RideStatus(d.Status).Valid() {
		return nil, fmt.Errorf("ride %s: unknown status %q", d.ID, d.Status)
	}

	ride := &domain.Ride{
		ID: d.ID,
		Requester: domain.Requester{
			ID:    d.RequesterID,
			Name:  d.RequesterName,
			Phone: d.RequesterPhone,
			Email: d.RequesterEmail,
		},
		StartLocation: d.StartLocation,
		EndLocation:   d.EndLocation,
		DistanceMiles: d.DistanceMiles,
		Fare:          d.Fare,
		RideType:      d.RideType,
		Passengers:    d.Passengers,
		RideDate:      d.RideDate,
		RideTime:      d.RideTime,
		Status:        domain.RideStatus(d.Status),
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
	if d.Claim != nil {
		ride.Claim = &domain.Claim{
			DriverID:    d.Claim.DriverID,
			DriverName:  d.Claim.DriverName,
			DriverPhone: d.Claim.DriverPhone,
			DriverEmail: d.Claim.DriverEmail,
		}
	}
	return ride, nil
}
