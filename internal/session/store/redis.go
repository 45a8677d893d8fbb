package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"facegate/internal/session"
	id "facegate/pkg/domain"
	"facegate/pkg/platform/sentinel"
)

const (
	sessionKeyPrefix            = "facegate:session:"
	fingerprintKeyPrefix        = "facegate:fingerprint:"
	defaultSessionTTL           = 24 * time.Hour
	defaultFingerprintRetention = 90 * 24 * time.Hour
	maxUpdateAttempts           = 5
)

// RedisStore keeps sessions as JSON values with a TTL. Updates use
// WATCH/MULTI so concurrent writers to the same session retry instead of
// overwriting each other.
//
// Fingerprint hashes are indexed in per-hash Redis hashes mapping session ID
// to subject ID. The index has its own retention, longer than the session
// TTL, so duplicate scans still see sessions whose records have expired.
type RedisStore struct {
	client    *redis.Client
	ttl       time.Duration
	retention time.Duration
}

type RedisOption func(*RedisStore)

func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithFingerprintRetention sets how long a fingerprint index entry outlives
// its last write. It is never shorter than the session TTL.
func WithFingerprintRetention(d time.Duration) RedisOption {
	return func(s *RedisStore) {
		if d > 0 {
			s.retention = d
		}
	}
}

func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, ttl: defaultSessionTTL, retention: defaultFingerprintRetention}
	for _, opt := range opts {
		opt(s)
	}
	s.retention = max(s.retention, s.ttl)
	return s
}

func sessionKey(sessionID id.SessionID) string { return sessionKeyPrefix + sessionID.String() }
func fingerprintKey(hash string) string        { return fingerprintKeyPrefix + hash }

func (s *RedisStore) Create(ctx context.Context, sess *session.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	ok, err := s.client.SetNX(ctx, sessionKey(sess.ID), data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	if !ok {
		return sentinel.ErrConflict
	}
	if sess.FingerprintHash == "" {
		return nil
	}
	pipe := s.client.TxPipeline()
	s.indexFingerprint(ctx, pipe, sess, "")
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("index fingerprint: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, sessionID id.SessionID) (*session.Session, error) {
	return s.load(ctx, s.client, sessionID)
}

func (s *RedisStore) load(ctx context.Context, c redis.Cmdable, sessionID id.SessionID) (*session.Session, error) {
	raw, err := c.Get(ctx, sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	var sess session.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &sess, nil
}

func (s *RedisStore) Update(ctx context.Context, sessionID id.SessionID, fn func(*session.Session) error) (*session.Session, error) {
	key := sessionKey(sessionID)
	var updated *session.Session

	txf := func(tx *redis.Tx) error {
		sess, err := s.load(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		previousHash := sess.FingerprintHash
		if err := fn(sess); err != nil {
			return err
		}
		data, err := json.Marshal(sess)
		if err != nil {
			return fmt.Errorf("marshal session: %w", err)
		}
		ttl := tx.TTL(ctx, key).Val()
		if ttl <= 0 {
			ttl = s.ttl
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, ttl)
			s.indexFingerprint(ctx, pipe, sess, previousHash)
			return nil
		})
		updated = sess
		return err
	}

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}
	return nil, fmt.Errorf("update session %s: too much contention", sessionID)
}

// FindByFingerprintHash returns every session indexed under hash. Sessions
// that expired are returned from the index with only ID, subject and hash
// set. Entries whose session now carries a different hash are skipped.
func (s *RedisStore) FindByFingerprintHash(ctx context.Context, hash string) ([]*session.Session, error) {
	if hash == "" {
		return nil, nil
	}
	entries, err := s.client.HGetAll(ctx, fingerprintKey(hash)).Result()
	if err != nil {
		return nil, fmt.Errorf("list fingerprint sessions: %w", err)
	}
	out := make([]*session.Session, 0, len(entries))
	for field, subject := range entries {
		sessionID, err := id.ParseSessionID(field)
		if err != nil {
			continue
		}
		sess, err := s.load(ctx, s.client, sessionID)
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			expired := &session.Session{ID: sessionID, FingerprintHash: hash}
			if subject != "" {
				if subjectID, err := id.ParseSubjectID(subject); err == nil {
					expired.SubjectID = subjectID
				}
			}
			out = append(out, expired)
		case err != nil:
			return nil, err
		case sess.FingerprintHash == hash:
			out = append(out, sess)
		}
	}
	return out, nil
}

// indexFingerprint moves the session's entry from previousHash to its
// current hash and refreshes the current hash's retention.
func (s *RedisStore) indexFingerprint(ctx context.Context, pipe redis.Pipeliner, sess *session.Session, previousHash string) {
	if previousHash != "" && previousHash != sess.FingerprintHash {
		pipe.HDel(ctx, fingerprintKey(previousHash), sess.ID.String())
	}
	if sess.FingerprintHash == "" {
		return
	}
	subject := ""
	if !sess.SubjectID.IsNil() {
		subject = sess.SubjectID.String()
	}
	key := fingerprintKey(sess.FingerprintHash)
	pipe.HSet(ctx, key, sess.ID.String(), subject)
	pipe.Expire(ctx, key, s.retention)
}
