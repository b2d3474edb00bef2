package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix is the key namespace for active sessions.
const DefaultKeyPrefix = "attendance:session:"

const redisMaxTxRetries = 16

// RedisStore is a SessionStore backed by Redis.
//
// Each session is one string key <prefix><classId> holding the JSON Session.
// Create uses SET NX; Update and Delete use WATCH/MULTI and retry on contention.
//
// Ownership model: the client is owned by the caller; Close is a no-op.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// RedisOption configures RedisStore.
type RedisOption func(*RedisStore) error

// WithKeyPrefix sets the key namespace (default DefaultKeyPrefix).
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) error {
		prefix = strings.TrimSpace(prefix)
		if prefix == "" {
			return errors.New("attendance: empty key prefix")
		}
		s.prefix = prefix
		return nil
	}
}

// WithRedisTTL expires sessions ttl after creation. Zero disables expiry.
func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) error {
		if ttl < 0 {
			return errors.New("attendance: negative ttl")
		}
		s.ttl = ttl
		return nil
	}
}

// NewRedisStore constructs a RedisStore.
func NewRedisStore(rdb redis.UniversalClient, opts ...RedisOption) (*RedisStore, error) {
	st := &RedisStore{rdb: rdb, prefix: DefaultKeyPrefix}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.rdb == nil {
		return nil, errors.New("attendance: nil redis client")
	}
	return st, nil
}

// Close is a no-op because the client is owned by the caller.
func (s *RedisStore) Close() error { return nil }

func (s *RedisStore) key(classID string) string { return s.prefix + classID }

func (s *RedisStore) Create(ctx context.Context, sess Session) error {
	if sess.ClassID == "" {
		return errors.New("attendance: session without class id")
	}
	raw, err := encodeSession(sess)
	if err != nil {
		return err
	}
	ok, err := s.rdb.SetNX(ctx, s.key(sess.ClassID), raw, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("attendance: redis setnx: %w", err)
	}
	if !ok {
		return errSessionActive("attendance.store.Create", sess.ClassID)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, classID string) (Session, error) {
	raw, err := s.rdb.Get(ctx, s.key(classID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, errNoSession("attendance.store.Get", classID)
	}
	if err != nil {
		return Session{}, fmt.Errorf("attendance: redis get: %w", err)
	}
	return decodeSession(raw)
}

func (s *RedisStore) Update(ctx context.Context, classID string, fn func(*Session) error) (Session, error) {
	key := s.key(classID)

	var out Session
	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return errNoSession("attendance.store.Update", classID)
		}
		if err != nil {
			return fmt.Errorf("attendance: redis get: %w", err)
		}
		sess, err := decodeSession(raw)
		if err != nil {
			return err
		}
		if err := fn(&sess); err != nil {
			return err
		}
		next, err := encodeSession(sess)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, next, redis.KeepTTL)
			return nil
		})
		if err != nil {
			return err
		}
		out = sess
		return nil
	}

	for i := 0; i < redisMaxTxRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return Session{}, err
		}
		return out, nil
	}
	return Session{}, fmt.Errorf("attendance: update %s: too much contention", classID)
}

func (s *RedisStore) Delete(ctx context.Context, classID, sessionID string) error {
	key := s.key(classID)
	if sessionID == "" {
		if err := s.rdb.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("attendance: redis del: %w", err)
		}
		return nil
	}

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("attendance: redis get: %w", err)
		}
		sess, err := decodeSession(raw)
		if err != nil {
			return err
		}
		if sess.SessionID != sessionID {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Del(ctx, key)
			return nil
		})
		return err
	}

	for i := 0; i < redisMaxTxRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("attendance: delete %s: too much contention", classID)
}

func (s *RedisStore) Exists(ctx context.Context, classID string) (bool, error) {
	n, err := s.rdb.Exists(ctx, s.key(classID)).Result()
	if err != nil {
		return false, fmt.Errorf("attendance: redis exists: %w", err)
	}
	return n > 0, nil
}

// List scans the key namespace and returns sessions ordered by class id.
// Keys removed between SCAN and GET are skipped.
func (s *RedisStore) List(ctx context.Context) ([]Session, error) {
	var out []Session
	iter := s.rdb.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		raw, err := s.rdb.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("attendance: redis get: %w", err)
		}
		sess, err := decodeSession(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("attendance: redis scan: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClassID < out[j].ClassID })
	return out, nil
}

func encodeSession(s Session) ([]byte, error) {
	if s.Attendance == nil {
		s.Attendance = map[string]Status{}
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("attendance: encode session: %w", err)
	}
	return b, nil
}

func decodeSession(raw []byte) (Session, error) {
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return Session{}, fmt.Errorf("attendance: decode session: %w", err)
	}
	if s.Attendance == nil {
		s.Attendance = map[string]Status{}
	}
	return s, nil
}

var _ SessionStore = (*RedisStore)(nil)
