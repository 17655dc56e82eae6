package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mossy-p/meeting-signaling/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RoomKeyPrefix namespaces room membership hashes.
const RoomKeyPrefix = "meeting-room::"

// ErrStoreUnavailable wraps every failure to reach Redis, including timeouts.
var ErrStoreUnavailable = errors.New("membership store unavailable")

// RoomKey returns the hash key holding the members of roomID.
func RoomKey(roomID string) string {
	return RoomKeyPrefix + roomID
}

// MembershipStore keeps room membership in one Redis hash per room:
// field = participant id, value = JSON participant record.
type MembershipStore struct {
	client  redis.UniversalClient
	timeout time.Duration
	ttl     time.Duration
}

// NewMembershipStore bounds every call by timeout. A positive ttl is
// refreshed on the room hash at each join.
func NewMembershipStore(client redis.UniversalClient, timeout, ttl time.Duration) *MembershipStore {
	return &MembershipStore{client: client, timeout: timeout, ttl: ttl}
}

// Join writes (or overwrites) the record of p under its room.
func (s *MembershipStore) Join(ctx context.Context, p models.Participant) error {
	value, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode participant %s: %w", p.UserID, err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	key := RoomKey(p.RoomID)
	if s.ttl <= 0 {
		if err := s.client.HSet(ctx, key, p.UserID, value).Err(); err != nil {
			return unavailable("hset", key, err)
		}
		return nil
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, p.UserID, value)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return unavailable("hset+expire", key, err)
	}
	return nil
}

// Leave removes userID from roomID. It reports whether a field was removed,
// so a repeated leave is a harmless no-op.
func (s *MembershipStore) Leave(ctx context.Context, roomID, userID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	key := RoomKey(roomID)
	n, err := s.client.HDel(ctx, key, userID).Result()
	if err != nil {
		return false, unavailable("hdel", key, err)
	}
	return n > 0, nil
}

// Members returns every record stored under roomID. Order is whatever the
// hash yields and is not stable. Fields that fail to decode are skipped.
func (s *MembershipStore) Members(ctx context.Context, roomID string) ([]models.Participant, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	key := RoomKey(roomID)
	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, unavailable("hgetall", key, err)
	}

	members := make([]models.Participant, 0, len(fields))
	for userID, raw := range fields {
		var p models.Participant
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			log.Warn().Err(err).Str("module", "redis.membership").
				Str("room", roomID).Str("user", userID).Msg("skipping undecodable member record")
			continue
		}
		members = append(members, p)
	}
	return members, nil
}

// MemberIDs returns the participant ids stored under roomID.
func (s *MembershipStore) MemberIDs(ctx context.Context, roomID string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	key := RoomKey(roomID)
	ids, err := s.client.HKeys(ctx, key).Result()
	if err != nil {
		return nil, unavailable("hkeys", key, err)
	}
	return ids, nil
}

// Ping checks that Redis answers within the store timeout.
func (s *MembershipStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.client.Ping(ctx).Err(); err != nil {
		return unavailable("ping", "", err)
	}
	return nil
}

func unavailable(op, key string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", ErrStoreUnavailable, op, key, err)
}
