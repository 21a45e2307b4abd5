package mongo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"syncway/internal/domain"
	"syncway/internal/repository"
)

func TestPreconditionFilter(t *testing.T) {
	t.Run("status only", func(t *testing.T) {
		filter := preconditionFilter("ride-1", repository.Precondition{Status: domain.RideStatusPending})
		assert.Equal(t, bson.M{"_id": "ride-1", "status": "pending"}, filter)
	})

	t.Run("status and claimant", func(t *testing.T) {
		filter := preconditionFilter("ride-1", repository.Precondition{Status: domain.RideStatusClaimed, DriverID: "d1"})
		assert.Equal(t, bson.M{"_id": "ride-1", "status": "claimed", "claim.driver_id": "d1"}, filter)
	})
}

func TestDocumentRoundTrip_KeepsClaimConsistent(t *testing.T) {
	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	ride := &domain.Ride{
		ID:            "ride-1",
		Requester:     domain.Requester{ID: "req-1", Name: "Rita", Phone: "5550100"},
		StartLocation: "A",
		EndLocation:   "B",
		Passengers:    2,
		RideDate:      "2024-06-01",
		RideTime:      "09:00",
		Claim:         &domain.Claim{DriverID: "d1", DriverName: "Dan", DriverPhone: "5550111"},
		Status:        domain.RideStatusClaimed,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	doc := toDocument(ride)
	assert.True(t, doc.Claimed)

	raw, err := bson.Marshal(doc)
	assert.NoError(t, err)

	var decoded rideDocument
	assert.NoError(t, bson.Unmarshal(raw, &decoded))

	got, err := decoded.toDomain()
	require.NoError(t, err)
	assert.Equal(t, ride.Claim, got.Claim)
	assert.True(t, got.Consistent())
	assert.True(t, ride.CreatedAt.Equal(got.CreatedAt))
}

func TestDocument_UnknownStatusRejected(t *testing.T) {
	doc := rideDocument{ID: "ride-1", Status: "archived"}
	_, err := doc.toDomain()
	assert.ErrorContains(t, err, `unknown status "archived"`)
}

func TestMutationUpdate(t *testing.T) {
	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

	t.Run("claim sets claimed", func(t *testing.T) {
		claim := &domain.Claim{DriverID: "d1", DriverName: "Dan", DriverPhone: "5550111"}
		set := mutationUpdate(repository.Mutation{Status: domain.RideStatusClaimed, Claim: claim}, now)["$set"].(bson.M)
		assert.Equal(t, "claimed", set["status"])
		assert.Equal(t, true, set["claimed"])
		assert.Equal(t, &claimDocument{DriverID: "d1", DriverName: "Dan", DriverPhone: "5550111"}, set["claim"])
		assert.Equal(t, now, set["updated_at"])
	})

	t.Run("clearing writes null claim", func(t *testing.T) {
		set := mutationUpdate(repository.Mutation{Status: domain.RideStatusPending}, now)["$set"].(bson.M)
		assert.Equal(t, "pending", set["status"])
		assert.Equal(t, false, set["claimed"])
		assert.Nil(t, set["claim"])

		raw, err := bson.Marshal(set)
		require.NoError(t, err)
		assert.Equal(t, bson.TypeNull, bson.Raw(raw).Lookup("claim").Type)
	})
}

func storedRide(status domain.RideStatus, claim *domain.Claim) bson.D {
	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	raw, err := bson.Marshal(toDocument(&domain.Ride{
		ID:            "ride-1",
		Requester:     domain.Requester{ID: "req-1", Name: "Rita", Phone: "5550100"},
		StartLocation: "A",
		EndLocation:   "B",
		Passengers:    1,
		RideDate:      "2024-06-01",
		RideTime:      "09:00",
		Claim:         claim,
		Status:        status,
		CreatedAt:     now,
		UpdatedAt:     now,
	}))
	if err != nil {
		panic(err)
	}
	var doc bson.D
	if err := bson.Unmarshal(raw, &doc); err != nil {
		panic(err)
	}
	return doc
}

func TestRideRepository_CompareAndUpdate(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()
	claim := &domain.Claim{DriverID: "d1", DriverName: "Dan", DriverPhone: "5550111"}

	mt.Run("success", func(mt *mtest.T) {
		repo := &RideRepository{coll: mt.Coll}
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "value", Value: storedRide(domain.RideStatusClaimed, claim)},
		))

		ride, err := repo.CompareAndUpdate(ctx, "ride-1",
			repository.Precondition{Status: domain.RideStatusPending},
			repository.Mutation{Status: domain.RideStatusClaimed, Claim: claim},
		)
		require.NoError(mt, err)
		assert.Equal(mt, domain.RideStatusClaimed, ride.Status)
		assert.Equal(mt, claim, ride.Claim)
		assert.True(mt, ride.Consistent())
	})

	mt.Run("lost race", func(mt *mtest.T) {
		repo := &RideRepository{coll: mt.Coll}
		ns := mt.DB.Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "value", Value: nil}),
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{{Key: "n", Value: int64(1)}}),
		)

		_, err := repo.CompareAndUpdate(ctx, "ride-1",
			repository.Precondition{Status: domain.RideStatusPending},
			repository.Mutation{Status: domain.RideStatusClaimed, Claim: claim},
		)
		assert.ErrorIs(mt, err, repository.ErrPreconditionFailed)
	})

	mt.Run("unknown id", func(mt *mtest.T) {
		repo := &RideRepository{coll: mt.Coll}
		ns := mt.DB.Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "value", Value: nil}),
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch),
		)

		_, err := repo.CompareAndUpdate(ctx, "missing",
			repository.Precondition{Status: domain.RideStatusPending},
			repository.Mutation{Status: domain.RideStatusClaimed, Claim: claim},
		)
		assert.ErrorIs(mt, err, repository.ErrNotFound)
	})

	mt.Run("clears claim", func(mt *mtest.T) {
		repo := &RideRepository{coll: mt.Coll}
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "value", Value: storedRide(domain.RideStatusPending, nil)},
		))

		ride, err := repo.CompareAndUpdate(ctx, "ride-1",
			repository.Precondition{Status: domain.RideStatusClaimed, DriverID: "d1"},
			repository.Mutation{Status: domain.RideStatusPending},
		)
		require.NoError(mt, err)
		assert.Equal(mt, domain.RideStatusPending, ride.Status)
		assert.Nil(mt, ride.Claim)
		assert.True(mt, ride.Consistent())
	})

	mt.Run("server error", func(mt *mtest.T) {
		repo := &RideRepository{coll: mt.Coll}
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    2,
			Name:    "BadValue",
			Message: "bad update",
		}))

		_, err := repo.CompareAndUpdate(ctx, "ride-1",
			repository.Precondition{Status: domain.RideStatusPending},
			repository.Mutation{Status: domain.RideStatusClaimed, Claim: claim},
		)
		require.Error(mt, err)
		assert.NotErrorIs(mt, err, repository.ErrNotFound)
		assert.NotErrorIs(mt, err, repository.ErrPreconditionFailed)
	})
}
