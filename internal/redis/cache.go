package redis

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"syncway/internal/domain"
)

// CacheStore handles entity caching in Redis.
type CacheStore struct {
	client *redis.Client
}

// NewCacheStore creates a new CacheStore.
func NewCacheStore(client *redis.Client) *CacheStore {
	return &CacheStore{client: client}
}

// AvailableRidesTTL bounds how stale the pending list may get if an
// invalidation is lost.
const AvailableRidesTTL = 10 * time.Second

const (
	availableRidesKey        = "cache:rides:available"
	availableRidesVersionKey = "cache:rides:available:version"
)

// fillIfUnchanged stores the list only while the version still matches the
// one the caller read before querying the database.
var fillIfUnchanged = redis.NewScript(`
local current = redis.call('GET', KEYS[2]) or '0'
if current ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// CachedClaim represents a cached claim.
type CachedClaim struct {
	DriverID    string `json:"driver_id"`
	DriverName  string `json:"driver_name"`
	DriverPhone string `json:"driver_phone"`
	DriverEmail string `json:"driver_email,omitempty"`
}

// CachedRide represents a cached ride entity.
type CachedRide struct {
	ID             string       `json:"id"`
	RequesterID    string       `json:"requester_id"`
	RequesterName  string       `json:"requester_name"`
	RequesterPhone string       `json:"requester_phone"`
	RequesterEmail string       `json:"requester_email,omitempty"`
	StartLocation  string       `json:"start_location"`
	EndLocation    string       `json:"end_location"`
	DistanceMiles  float64      `json:"distance_miles"`
	Fare           float64      `json:"fare"`
	RideType       string       `json:"ride_type,omitempty"`
	Passengers     int          `json:"passengers"`
	RideDate       string       `json:"ride_date"`
	RideTime       string       `json:"ride_time"`
	Claim          *CachedClaim `json:"claim,omitempty"`
	Status         string       `json:"status"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// GetAvailableRides retrieves the cached pending list. A miss returns nil, nil.
func (s *CacheStore) GetAvailableRides(ctx context.Context) ([]*domain.Ride, error) {
	data, err := s.client.Get(ctx, availableRidesKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // Cache miss
		}
		return nil, err
	}

	var cached []CachedRide
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, err
	}

	rides := make([]*domain.Ride, 0, len(cached))
	for i := range cached {
		rides = append(rides, cached[i].toDomain())
	}
	return rides, nil
}

// AvailableRidesVersion returns the current invalidation counter. Read it
// before loading the list that will be passed to SetAvailableRides.
func (s *CacheStore) AvailableRidesVersion(ctx context.Context) (int64, error) {
	v, err := s.client.Get(ctx, availableRidesVersionKey).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return v, err
}

// SetAvailableRides stores the pending list if no invalidation happened since
// version was read. It reports whether the list was stored.
func (s *CacheStore) SetAvailableRides(ctx context.Context, version int64, rides []*domain.Ride) (bool, error) {
	cached := make([]CachedRide, 0, len(rides))
	for _, r := range rides {
		cached = append(cached, fromDomain(r))
	}
	data, err := json.Marshal(cached)
	if err != nil {
		return false, err
	}

	stored, err := fillIfUnchanged.Run(ctx, s.client,
		[]string{availableRidesKey, availableRidesVersionKey},
		strconv.FormatInt(version, 10), data, AvailableRidesTTL.Milliseconds(),
	).Int()
	if err != nil {
		return false, err
	}
	return stored == 1, nil
}

// InvalidateAvailableRides bumps the version and removes the pending list, so
// fills started before the write are rejected.
func (s *CacheStore) InvalidateAvailableRides(ctx context.Context) error {
	pipe := s.client.TxPipeline()
	pipe.Incr(ctx, availableRidesVersionKey)
	pipe.Del(ctx, availableRidesKey)
	_, err := pipe.Exec(ctx)
	return err
}

func fromDomain(r *domain.Ride) CachedRide {
	c := CachedRide{
		ID:             r.ID,
		RequesterID:    r.Requester.ID,
		RequesterName:  r.Requester.Name,
		RequesterPhone: r.Requester.Phone,
		RequesterEmail: r.Requester.Email,
		StartLocation:  r.StartLocation,
		EndLocation:    r.EndLocation,
		DistanceMiles:  r.DistanceMiles,
		Fare:           r.Fare,
		RideType:       r.RideType,
		Passengers:     r.Passengers,
		RideDate:       r.RideDate,
		RideTime:       r.RideTime,
		Status:         string(r.Status),
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
	if r.Claim != nil {
		c.Claim = &CachedClaim{
			DriverID:    r.Claim.DriverID,
			DriverName:  r.Claim.DriverName,
			DriverPhone: r.Claim.DriverPhone,
			DriverEmail: r.Claim.DriverEmail,
		}
	}
	return c
}

func (c *CachedRide) toDomain() *domain.Ride {
	r := &domain.Ride{
		ID: c.ID,
		Requester: domain.Requester{
			ID:    c.RequesterID,
			Name:  c.RequesterName,
			Phone: c.RequesterPhone,
			Email: c.RequesterEmail,
		},
		StartLocation: c.StartLocation,
		EndLocation:   c.EndLocation,
		DistanceMiles: c.DistanceMiles,
		Fare:          c.Fare,
		RideType:      c.RideType,
		Passengers:    c.Passengers,
		RideDate:      c.RideDate,
		RideTime:      c.RideTime,
		Status:        domain.RideStatus(c.Status),
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
	if c.Claim != nil {
		r.Claim = &domain.Claim{
			DriverID:    c.Claim.DriverID,
			DriverName:  c.Claim.DriverName,
			DriverPhone: c.Claim.DriverPhone,
			DriverEmail: c.Claim.DriverEmail,
		}
	}
	return r
}
