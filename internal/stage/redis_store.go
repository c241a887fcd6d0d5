package stage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	xerrors "OxVenta-Custody/internal/errors"
)

const redisKeyPrefix = "oxventa:stage:"

// RedisStore 以 Redis 实现 Store，供多实例部署共享暂存状态。
// 覆盖写依赖 SET，取走即删除依赖 GETDEL，两者均为单命令原子操作。
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// RedisConfig Redis 暂存层配置。
type RedisConfig struct {
	Addr     string        `json:"addr"`
	Password string        `json:"password"`
	DB       int           `json:"db"`
	TTL      time.Duration `json:"-"`
}

// NewRedisStore 建立 Redis 连接并验证可达性。ttl 为零时暂存记录不过期。
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "连接 Redis 失败")
	}
	return &RedisStore{client: client, ttl: cfg.TTL}, nil
}

// Stage 实现 Store 接口。
func (s *RedisStore) Stage(ctx context.Context, action *StagedAction) error {
	if action == nil || action.Topic == "" || action.UserUUID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "staged action 缺少 topic 或 user_uuid")
	}
	data, err := json.Marshal(action)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化暂存记录失败")
	}
	if err := s.client.Set(ctx, redisKeyPrefix+action.Key(), data, s.ttl).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入暂存记录失败", xerrors.WithRetryable(true))
	}
	return nil
}

// Peek 实现 Store 接口。
func (s *RedisStore) Peek(ctx context.Context, topic, userID string) (*StagedAction, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+Key(topic, userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrStageExpired
	}
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取暂存记录失败", xerrors.WithRetryable(true))
	}
	return decodeAction(data)
}

// Take 实现 Store 接口。
func (s *RedisStore) Take(ctx context.Context, topic, userID string) (*StagedAction, error) {
	data, err := s.client.GetDel(ctx, redisKeyPrefix+Key(topic, userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrStageExpired
	}
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "取走暂存记录失败", xerrors.WithRetryable(true))
	}
	return decodeAction(data)
}

// Clear 实现 Store 接口。
func (s *RedisStore) Clear(ctx context.Context, topic, userID string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+Key(topic, userID)).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "删除暂存记录失败", xerrors.WithRetryable(true))
	}
	return nil
}

// Close 关闭 Redis 连接。
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func decodeAction(data []byte) (*StagedAction, error) {
	var action StagedAction
	if err := json.Unmarshal(data, &action); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "反序列化暂存记录失败")
	}
	return &action, nil
}

var _ Store = (*RedisStore)(nil)
