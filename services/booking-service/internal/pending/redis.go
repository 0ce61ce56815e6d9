package pending

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/lunalash/studio/services/booking-service/internal/booking"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps pending deposit bookings as JSON with a TTL:
//
//	<prefix>:<id>            pending booking
//	<prefix>:session:<sid>   id of the session's latest pending booking
//	<prefix>:index           zset of ids scored by creation time, for reconciliation
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisStore(rdb redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "pending"
	}
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &RedisStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(id string) string         { return s.prefix + ":" + id }
func (s *RedisStore) sessionKey(sid string) string { return s.prefix + ":session:" + sid }
func (s *RedisStore) indexKey() string             { return s.prefix + ":index" }

func (s *RedisStore) Save(ctx context.Context, p booking.PendingBooking) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(p.ID), data, s.ttl)
		if p.SessionID != "" {
			pipe.Set(ctx, s.sessionKey(p.SessionID), p.ID, s.ttl)
		}
		pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(p.CreatedAt.Unix()), Member: p.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save pending %s: %w", p.ID, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (booking.PendingBooking, error) {
	data, err := s.rdb.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		_ = s.rdb.ZRem(ctx, s.indexKey(), id).Err()
		return booking.PendingBooking{}, booking.ErrPendingNotFound
	}
	if err != nil {
		return booking.PendingBooking{}, fmt.Errorf("redis get pending %s: %w", id, err)
	}
	var p booking.PendingBooking
	if err := json.Unmarshal(data, &p); err != nil {
		return booking.PendingBooking{}, fmt.Errorf("decode pending %s: %w", id, err)
	}
	return p, nil
}

func (s *RedisStore) BySession(ctx context.Context, sessionID string) (booking.PendingBooking, error) {
	if sessionID == "" {
		return booking.PendingBooking{}, booking.ErrPendingNotFound
	}
	id, err := s.rdb.Get(ctx, s.sessionKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return booking.PendingBooking{}, booking.ErrPendingNotFound
	}
	if err != nil {
		return booking.PendingBooking{}, fmt.Errorf("redis get session %s: %w", sessionID, err)
	}
	return s.Get(ctx, id)
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	p, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(id))
		pipe.ZRem(ctx, s.indexKey(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete pending %s: %w", id, err)
	}
	if p.SessionID != "" {
		// Only drop the session pointer if a newer booking has not replaced it.
		if cur, err := s.rdb.Get(ctx, s.sessionKey(p.SessionID)).Result(); err == nil && cur == id {
			_ = s.rdb.Del(ctx, s.sessionKey(p.SessionID)).Err()
		}
	}
	return nil
}

func (s *RedisStore) OlderThan(ctx context.Context, cutoff time.Time, limit int) ([]booking.PendingBooking, error) {
	if limit <= 0 {
		limit = 50
	}
	ids, err := s.rdb.ZRangeByScore(ctx, s.indexKey(), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(cutoff.Unix(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list pending: %w", err)
	}
	out := make([]booking.PendingBooking, 0, len(ids))
	for _, id := range ids {
		p, err := s.Get(ctx, id)
		if errors.Is(err, booking.ErrPendingNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// ReadyCheck pings Redis.
func ReadyCheck(rdb redis.UniversalClient) func(context.Context) error {
	return func(ctx context.Context) error {
		if rdb == nil {
			return errors.New("redis not configured")
		}
		return rdb.Ping(ctx).Err()
	}
}
