package store

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vigil-sec/vigil/internal/logger"
	"github.com/vigil-sec/vigil/internal/models"
)

// RedisStore backs mitigation state with Redis so multiple instances share
// enforcement. Values are action names; legacy severity numerals written by
// older deployments are still readable through models.ParseLevel.
type RedisStore struct {
	Client *redis.Client
}

// NewRedisStore creates a RedisStore against the given address.
func NewRedisStore(addr, password string, db int) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisStore{Client: client}
}

func (s *RedisStore) Get(ctx context.Context, et models.EntityType, entity string) (models.Action, bool, error) {
	val, err := s.Client.Get(ctx, Key(et, entity)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	if lvl := models.ParseLevel(val); lvl == models.LevelNone {
		// Corrupt or unknown value; treat as no mitigation.
		logger.WithFields(map[string]interface{}{"key": Key(et, entity), "value": val}).
			Warn("ignoring unparseable mitigation value")
		return "", false, nil
	} else if !models.Action(val).Valid() {
		// Legacy numeral: map back to the action at that level.
		switch lvl {
		case models.LevelDelay:
			return models.ActionDelay, true, nil
		case models.LevelCaptcha:
			return models.ActionCaptcha, true, nil
		case models.LevelTempBlock:
			return models.ActionTempBlock, true, nil
		default:
			return models.ActionBan, true, nil
		}
	}

	return models.Action(val), true, nil
}

func (s *RedisStore) Set(ctx context.Context, et models.EntityType, entity string, action models.Action, details models.EnforcementDetails, ttl time.Duration) error {
	if err := s.Client.Set(ctx, Key(et, entity), string(action), ttl).Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(details)
	if err != nil {
		return err
	}
	return s.Client.Set(ctx, DetailsKey(et, entity), payload, ttl).Err()
}

func (s *RedisStore) Details(ctx context.Context, et models.EntityType, entity string) (*models.EnforcementDetails, error) {
	raw, err := s.Client.Get(ctx, DetailsKey(et, entity)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var details models.EnforcementDetails
	if err := json.Unmarshal([]byte(raw), &details); err != nil {
		return nil, err
	}
	return &details, nil
}

func (s *RedisStore) Active(ctx context.Context) (map[string]models.Action, error) {
	keys, err := s.Client.Keys(ctx, "mitigation:*").Result()
	if err != nil {
		return nil, err
	}

	active := make(map[string]models.Action)
	for _, k := range keys {
		if strings.HasSuffix(k, ":details") {
			continue
		}
		val, err := s.Client.Get(ctx, k).Result()
		if err != nil {
			continue
		}
		if a := models.Action(val); a.Valid() {
			active[strings.TrimPrefix(k, "mitigation:")] = a
		}
	}
	return active, nil
}

func (s *RedisStore) Delete(ctx context.Context, et models.EntityType, entity string) error {
	return s.Client.Del(ctx, Key(et, entity), DetailsKey(et, entity)).Err()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.Client.Ping(ctx).Err()
}
