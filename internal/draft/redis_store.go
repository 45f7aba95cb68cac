package draft

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/whitelist-backend/internal/model"
)

// RedisStore keeps drafts as JSON strings with a sliding TTL.
type RedisStore struct {
	rdb redis.Cmdable
	ttl time.Duration
	log zerolog.Logger
}

// NewRedisStore creates a RedisStore. A zero ttl keeps drafts forever.
func NewRedisStore(rdb redis.Cmdable, ttl time.Duration, log zerolog.Logger) *RedisStore {
	return &RedisStore{
		rdb: rdb,
		ttl: ttl,
		log: log.With().Str("component", "draft_store").Logger(),
	}
}

func (s *RedisStore) Save(ctx context.Context, key string, d model.Draft) {
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(d)
	if err != nil {
		s.log.Error().Err(err).Str("key", key).Msg("Draft marshal failed")
		return
	}

	if err := s.rdb.Set(ctx, key, data, s.ttl).Err(); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Draft save failed, session keeps in-memory state")
	}
}

func (s *RedisStore) Load(ctx context.Context, key string) (*model.Draft, bool) {
	raw, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn().Err(err).Str("key", key).Msg("Draft load failed, starting fresh")
		}
		return nil, false
	}

	d, ok := decode(raw)
	if !ok {
		s.log.Warn().Str("key", key).Msg("Discarding corrupt draft")
	}
	return d, ok
}

func (s *RedisStore) Clear(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

func decode(raw []byte) (*model.Draft, bool) {
	var d model.Draft
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, false
	}
	if d.CurrentQuestionIndex < 0 || len(d.Answers) != d.CurrentQuestionIndex {
		return nil, false
	}
	return &d, true
}
