package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/obslog"
)

const (
	ttlSession = 24 * time.Hour
	// createRounds bounds the WATCH retries of one CreateWaiting call.
	createRounds = 16
)

// Redis keeps sessions as JSON values and guards every write with
// WATCH/MULTI on the document key.
type Redis struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedis(rdb *redis.Client) *Redis { return &Redis{rdb: rdb, ttl: ttlSession} }

func sessionKey(id string) string     { return "arena:game:" + strings.TrimSpace(id) }
func waitingKey(bucket string) string { return "arena:waiting:" + bucket }
func eventsChannel(id string) string  { return "arena:events:" + strings.TrimSpace(id) }

func (r *Redis) Get(ctx context.Context, id string) (*domain.Session, error) {
	return r.load(ctx, r.rdb, id)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (r *Redis) load(ctx context.Context, c getter, id string) (*domain.Session, error) {
	raw, err := c.Get(ctx, sessionKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var s domain.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &s, nil
}

func (r *Redis) Update(ctx context.Context, next *domain.Session, expected int64) (*domain.Session, error) {
	if err := checkPayload(next); err != nil {
		return nil, err
	}
	key := sessionKey(next.ID)
	var stored *domain.Session
	err := r.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := r.load(ctx, tx, next.ID)
		if err != nil {
			return err
		}
		if cur.Revision != expected {
			return fmt.Errorf("%w: %s at %d, expected %d", ErrConflict, next.ID, cur.Revision, expected)
		}
		if err := checkWrite(cur, next); err != nil {
			return err
		}
		stored = next.Clone()
		stored.Revision = expected + 1
		raw, err := json.Marshal(stored)
		if err != nil {
			return err
		}
		pipe := tx.TxPipeline()
		pipe.Set(ctx, key, raw, r.ttl)
		if leavesWaiting(cur, stored) {
			pipe.SRem(ctx, waitingKey(cur.BucketKey()), cur.ID)
		}
		pipe.Publish(ctx, eventsChannel(stored.ID), raw)
		_, err = pipe.Exec(ctx)
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return nil, fmt.Errorf("%w: %s changed during write", ErrConflict, next.ID)
	}
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (r *Redis) FindWaiting(ctx context.Context, q Query) ([]*domain.Session, error) {
	return r.waiting(ctx, r.rdb, q.BucketKey())
}

type waitingReader interface {
	getter
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
}

// waiting loads the live members of a bucket's waiting set. Members whose
// document expired are dropped from the set.
func (r *Redis) waiting(ctx context.Context, c waitingReader, bucket string) ([]*domain.Session, error) {
	ids, err := c.SMembers(ctx, waitingKey(bucket)).Result()
	if err != nil {
		return nil, err
	}
	var out []*domain.Session
	for _, id := range ids {
		s, err := r.load(ctx, c, id)
		if errors.Is(err, ErrNotFound) {
			_ = r.rdb.SRem(ctx, waitingKey(bucket), id).Err()
			continue
		}
		if err != nil {
			return nil, err
		}
		if s.Status != domain.StatusWaiting {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// CreateWaiting watches the waiting set so an exclusive create commits only
// against the emptiness it observed. A watch abort re-reads the set instead
// of failing; ErrBucketChanged is returned only when a waiting game is seen.
func (r *Redis) CreateWaiting(ctx context.Context, s *domain.Session, exclusive bool) (*domain.Session, error) {
	if err := checkCreate(s); err != nil {
		return nil, err
	}
	bucket := s.BucketKey()
	key, setKey := sessionKey(s.ID), waitingKey(bucket)
	watched := []string{key}
	if exclusive {
		watched = append(watched, setKey)
	}
	var stored *domain.Session
	txn := func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrExists
		}
		if exclusive {
			live, err := r.waiting(ctx, tx, bucket)
			if err != nil {
				return err
			}
			if len(live) > 0 {
				return ErrBucketChanged
			}
		}
		stored = s.Clone()
		stored.Revision = 1
		raw, err := json.Marshal(stored)
		if err != nil {
			return err
		}
		pipe := tx.TxPipeline()
		pipe.Set(ctx, key, raw, r.ttl)
		pipe.SAdd(ctx, setKey, stored.ID)
		pipe.Expire(ctx, setKey, r.ttl)
		pipe.Publish(ctx, eventsChannel(stored.ID), raw)
		_, err = pipe.Exec(ctx)
		return err
	}
	for round := 0; round < createRounds; round++ {
		err := r.rdb.Watch(ctx, txn, watched...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return stored, nil
	}
	return nil, fmt.Errorf("%w: %s kept changing", ErrBucketChanged, bucket)
}

// Subscribe returns once the subscription is confirmed by the server, so no
// write after the call can be missed.
func (r *Redis) Subscribe(ctx context.Context, id string) (<-chan *domain.Session, error) {
	ps := r.rdb.Subscribe(ctx, eventsChannel(id))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", id, err)
	}
	out := make(chan *domain.Session, subscriberBuffer)
	go func() {
		defer close(out)
		defer ps.Close()
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var s domain.Session
				if err := json.Unmarshal([]byte(msg.Payload), &s); err != nil {
					obslog.L().Warn("session_event_decode_failed", zap.String("game_id", id), zap.Error(err))
					continue
				}
				select {
				case out <- &s:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
