package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/soulra/clinical-router/internal/agent/model"
	errx "github.com/soulra/clinical-router/internal/core/error"
	logx "github.com/soulra/clinical-router/pkg/logger"
)

// RedisStore keeps each scope's messages and prescriptions in sorted sets
// scored by creation time in microseconds.
type RedisStore struct {
	rdb redis.Cmdable
	ttl time.Duration
	now func() time.Time
}

func NewRedisStore(rdb redis.Cmdable, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl, now: time.Now}
}

// WithClock replaces the clock used to stamp new records.
func (r *RedisStore) WithClock(now func() time.Time) *RedisStore {
	r.now = now
	return r
}

func (r *RedisStore) messagesKey(scope model.Scope) string {
	return fmt.Sprintf("conversation:%s:messages", scope.Key())
}

func (r *RedisStore) prescriptionsKey(scope model.Scope) string {
	return fmt.Sprintf("conversation:%s:prescriptions", scope.Key())
}

func score(t time.Time) float64 {
	return float64(t.UnixMicro())
}

func (r *RedisStore) LoadHistory(ctx context.Context, scope model.Scope, window model.Window) ([]model.Message, error) {
	if err := scope.Validate(); err != nil {
		logx.Debug().Err(err).Msg("history lookup with invalid scope")
		return []model.Message{}, nil
	}
	key := r.messagesKey(scope)

	minScore := "-inf"
	if since := window.Since(r.now()); !since.IsZero() {
		minScore = strconv.FormatInt(since.UnixMicro(), 10)
	}
	rows, err := r.rdb.ZRevRangeByScore(ctx, key, &redis.ZRangeBy{
		Min:   minScore,
		Max:   "+inf",
		Count: int64(max(window.MaxMessages, 0)),
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []model.Message{}, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to load conversation history from redis")
		return nil, errx.NewContextLoadError("load_history", scope.Key(), errx.WrapRedis(err))
	}

	msgs := make([]model.Message, 0, len(rows))
	for i, s := range rows {
		var m model.Message
		if err := json.Unmarshal([]byte(s), &m); err != nil {
			logx.Error().Err(err).Str("key", key).Int("index", i).Msg("failed to unmarshal message")
			return nil, errx.NewContextLoadError("load_history", scope.Key(),
				fmt.Errorf("unmarshal message at index %d: %w", i, err))
		}
		msgs = append(msgs, m)
	}
	// ZREVRANGEBYSCORE returns newest first
	slices.Reverse(msgs)
	return msgs, nil
}

func (r *RedisStore) LoadLatestPrescription(ctx context.Context, scope model.Scope) (*model.Prescription, error) {
	if err := scope.Validate(); err != nil {
		return nil, nil
	}
	key := r.prescriptionsKey(scope)

	rows, err := r.rdb.ZRevRange(ctx, key, 0, 0).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to load prescription from redis")
		return nil, errx.NewContextLoadError("load_prescription", scope.Key(), errx.WrapRedis(err))
	}
	if len(rows) == 0 {
		return nil, nil
	}

	var p model.Prescription
	if err := json.Unmarshal([]byte(rows[0]), &p); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to unmarshal prescription")
		return nil, errx.NewContextLoadError("load_prescription", scope.Key(), fmt.Errorf("unmarshal prescription: %w", err))
	}
	return &p, nil
}

func (r *RedisStore) AppendMessage(ctx context.Context, scope model.Scope, sender model.Sender, text string) (*model.Message, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, errx.ErrEmptyMessage
	}
	m := model.Message{
		ID:        uuid.NewString(),
		Sender:    sender,
		Text:      text,
		Timestamp: r.now().UTC(),
	}
	if err := r.add(ctx, r.messagesKey(scope), m, m.Timestamp); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *RedisStore) SavePrescription(ctx context.Context, scope model.Scope, content string) (*model.Prescription, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		return nil, errx.ErrEmptyPrescription
	}
	p := model.Prescription{
		ID:        uuid.NewString(),
		Content:   content,
		Timestamp: r.now().UTC(),
	}
	if err := r.add(ctx, r.prescriptionsKey(scope), p, p.Timestamp); err != nil {
		return nil, err
	}
	return &p, nil
}

// add writes one record and extends the key TTL on touch.
func (r *RedisStore) add(ctx context.Context, key string, record any, ts time.Time) error {
	b, err := json.Marshal(record)
	if err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to marshal record")
		return fmt.Errorf("marshal record: %w", err)
	}

	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{Score: score(ts), Member: b})
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to write record to redis")
		return errx.WrapRedis(err)
	}
	return nil
}

var _ model.ContextStore = (*RedisStore)(nil)
