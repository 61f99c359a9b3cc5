package session

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-food-admin/types"
	"github.com/saiset-co/sai-food-admin/utils"
)

type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
	Prefix   string `json:"prefix" yaml:"prefix"`
	TTL      string `json:"ttl" yaml:"ttl"`
}

// RedisBackend stores each session as a hash under prefix+id.
type RedisBackend struct {
	lifecycle
	client *redis.Client
	config *RedisConfig
	ttl    time.Duration
	logger types.Logger
}

func NewRedisBackend(config interface{}, logger types.Logger) (*RedisBackend, error) {
	cfg := &RedisConfig{}
	if config != nil {
		if err := utils.UnmarshalConfig(config, cfg); err != nil {
			return nil, types.WrapError(err, "failed to parse redis session config")
		}
	}

	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "food_admin:session:"
	}

	var ttl time.Duration
	if cfg.TTL != "" {
		parsed, err := time.ParseDuration(cfg.TTL)
		if err != nil {
			return nil, types.Errorf(types.ErrConfigValidateFailed, "session ttl %q: %v", cfg.TTL, err)
		}
		ttl = parsed
	}

	b := &RedisBackend{
		config: cfg,
		ttl:    ttl,
		logger: logger,
	}
	b.init()
	return b, nil
}

func (r *RedisBackend) Start() error {
	return r.start(func() error {
		r.client = redis.NewClient(&redis.Options{
			Addr:     r.config.Addr,
			Password: r.config.Password,
			DB:       r.config.DB,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := r.client.Ping(ctx).Err(); err != nil {
			_ = r.client.Close()
			return types.WrapError(err, "failed to connect to redis")
		}

		r.logger.Info("Redis session backend started", zap.String("addr", r.config.Addr))
		return nil
	})
}

func (r *RedisBackend) Stop() error {
	return r.stop(func() error {
		return r.client.Close()
	})
}

func (r *RedisBackend) Load(ctx context.Context, id string) (*types.Session, error) {
	if !r.IsRunning() {
		return nil, types.ErrSessionStoreStopped
	}

	result := r.client.HGetAll(ctx, r.key(id))
	values, err := result.Result()
	if err != nil {
		return nil, types.Errorf(types.ErrSessionStoreFailed, "hgetall: %v", err)
	}
	if len(values) == 0 {
		return nil, types.ErrSessionNotFound
	}

	var record Record
	if err = result.Scan(&record); err != nil {
		return nil, types.Errorf(types.ErrSessionStoreFailed, "scan session: %v", err)
	}

	return record.Session(), nil
}

func (r *RedisBackend) Save(ctx context.Context, id string, session *types.Session) error {
	if !r.IsRunning() {
		return types.ErrSessionStoreStopped
	}

	key := r.key(id)
	record := NewRecord(id, session)

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"token", record.Token,
			"user_id", record.UserID,
			"active_user", record.ActiveUser,
			"updated_at", record.UpdatedAt,
		)
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		return types.Errorf(types.ErrSessionStoreFailed, "save session: %v", err)
	}
	return nil
}

func (r *RedisBackend) Delete(ctx context.Context, id string) error {
	if !r.IsRunning() {
		return types.ErrSessionStoreStopped
	}

	if err := r.client.Del(ctx, r.key(id)).Err(); err != nil {
		return types.Errorf(types.ErrSessionStoreFailed, "delete session: %v", err)
	}
	return nil
}

func (r *RedisBackend) Ping(ctx context.Context) error {
	if !r.IsRunning() {
		return types.ErrSessionStoreStopped
	}
	return r.client.Ping(ctx).Err()
}

func (r *RedisBackend) key(id string) string {
	return r.config.Prefix + id
}
