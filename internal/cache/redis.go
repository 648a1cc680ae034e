package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisStore is the shared Store backend. Entries live under
// tokengallery:entry:<fingerprint>; a per-subject hash
// tokengallery:subject:<id> maps fingerprint -> filter hash so scoped
// invalidation stays O(subject), not O(keyspace).
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore wraps an existing client. ttl of zero means entries never
// expire implicitly; invalidation is explicit either way.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func entryKey(fpKey string) string {
	return "tokengallery:entry:" + fpKey
}

func subjectKey(subjectID string) string {
	return "tokengallery:subject:" + subjectID
}

func (s *RedisStore) Lookup(ctx context.Context, fp Fingerprint) (*Entry, bool, error) {
	raw, err := s.client.Get(ctx, entryKey(fp.Key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "cache lookup")
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, false, errors.Wrap(err, "cache entry decode")
	}
	return &entry, true, nil
}

func (s *RedisStore) Write(ctx context.Context, fp Fingerprint, entry *Entry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "cache entry encode")
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, entryKey(fp.Key), raw, s.ttl)
	pipe.HSet(ctx, subjectKey(fp.SubjectID), fp.Key, fp.FilterHash)
	if s.ttl > 0 {
		pipe.Expire(ctx, subjectKey(fp.SubjectID), s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "cache write")
	}
	return nil
}

func (s *RedisStore) Invalidate(ctx context.Context, subjectID, filterHash string) error {
	index, err := s.client.HGetAll(ctx, subjectKey(subjectID)).Result()
	if err != nil {
		return errors.Wrap(err, "cache subject index read")
	}

	var keys []string
	var fields []string
	for fpKey, hash := range index {
		if hash == filterHash {
			keys = append(keys, entryKey(fpKey))
			fields = append(fields, fpKey)
		}
	}
	if len(keys) == 0 {
		return nil
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, keys...)
	pipe.HDel(ctx, subjectKey(subjectID), fields...)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrapf(err, "cache invalidate subject %s", subjectID)
	}
	return nil
}

func (s *RedisStore) InvalidateAll(ctx context.Context, subjectID string) error {
	index, err := s.client.HGetAll(ctx, subjectKey(subjectID)).Result()
	if err != nil {
		return errors.Wrap(err, "cache subject index read")
	}

	pipe := s.client.TxPipeline()
	for fpKey := range index {
		pipe.Del(ctx, entryKey(fpKey))
	}
	pipe.Del(ctx, subjectKey(subjectID))
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrapf(err, "cache invalidate-all subject %s", subjectID)
	}
	return nil
}

// Ping verifies connectivity; used by the health endpoint.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}
