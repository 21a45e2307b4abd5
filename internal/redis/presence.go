package redis

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const presenceKey = "presence:online"

// DefaultPresenceTTL is how long a connection stays online without a heartbeat.
const DefaultPresenceTTL = 90 * time.Second

// PresenceStore tracks open connections in a sorted set scored by expiry time,
// so every replica reads the same view and crashed connections age out.
// Members are "userID|connID"; a user is online while any of their
// connections is, on any replica.
type PresenceStore struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewPresenceStore creates a new PresenceStore. A non-positive ttl uses DefaultPresenceTTL.
func NewPresenceStore(client *redis.Client, ttl time.Duration) *PresenceStore {
	if ttl <= 0 {
		ttl = DefaultPresenceTTL
	}
	return &PresenceStore{client: client, ttl: ttl, now: time.Now}
}

func connMember(userID, connID string) string {
	return userID + "|" + connID
}

func memberUser(member string) string {
	if i := strings.LastIndexByte(member, '|'); i >= 0 {
		return member[:i]
	}
	return member
}

// Connect records one connection of userID as online until now+TTL.
func (s *PresenceStore) Connect(ctx context.Context, userID, connID string) error {
	return s.client.ZAdd(ctx, presenceKey, redis.Z{
		Score:  float64(s.now().Add(s.ttl).UnixMilli()),
		Member: connMember(userID, connID),
	}).Err()
}

// Heartbeat extends a connection's online window.
func (s *PresenceStore) Heartbeat(ctx context.Context, userID, connID string) error {
	return s.Connect(ctx, userID, connID)
}

// Disconnect removes one connection. The user stays online while others remain.
func (s *PresenceStore) Disconnect(ctx context.Context, userID, connID string) error {
	return s.client.ZRem(ctx, presenceKey, connMember(userID, connID)).Err()
}

// MarkOffline removes every connection of userID.
func (s *PresenceStore) MarkOffline(ctx context.Context, userID string) error {
	members, err := s.client.ZRange(ctx, presenceKey, 0, -1).Result()
	if err != nil {
		return err
	}
	var mine []any
	for _, m := range members {
		if memberUser(m) == userID {
			mine = append(mine, m)
		}
	}
	if len(mine) == 0 {
		return nil
	}
	return s.client.ZRem(ctx, presenceKey, mine...).Err()
}

// OnlineUserIDs prunes expired entries and returns the users still online,
// each once.
func (s *PresenceStore) OnlineUserIDs(ctx context.Context) ([]string, error) {
	now := strconv.FormatInt(s.now().UnixMilli(), 10)

	pipe := s.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, presenceKey, "-inf", "("+now)
	members := pipe.ZRangeByScore(ctx, presenceKey, &redis.ZRangeBy{Min: now, Max: "+inf"})
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(members.Val()))
	ids := make([]string, 0, len(members.Val()))
	for _, m := range members.Val() {
		id := memberUser(m)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

// IsOnline reports whether userID has an unexpired connection.
func (s *PresenceStore) IsOnline(ctx context.Context, userID string) (bool, error) {
	now := strconv.FormatInt(s.now().UnixMilli(), 10)
	members, err := s.client.ZRangeByScore(ctx, presenceKey, &redis.ZRangeBy{Min: now, Max: "+inf"}).Result()
	if err != nil {
		return false, err
	}
	for _, m := range members {
		if memberUser(m) == userID {
			return true, nil
		}
	}
	return false, nil
}

// Count returns the number of distinct users currently online.
func (s *PresenceStore) Count(ctx context.Context) (int64, error) {
	ids, err := s.OnlineUserIDs(ctx)
	if err != nil {
		return 0, err
	}
	return int64(len(ids)), nil
}
