package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	xerrors "OxVenta-Custody/internal/errors"
	"OxVenta-Custody/internal/stage"
)

// StageStore 将待确认操作持久化到 staged_actions 表。
// 覆盖写依赖 INSERT ... ON DUPLICATE KEY UPDATE，取走即删除依赖
// 带 WHERE uuid 条件的 DELETE 与 RowsAffected 判定，两者都不需要显式锁。
type StageStore struct {
	db *sql.DB
}

// NewStageStore 建立连接并执行迁移。
func NewStageStore(ctx context.Context, cfg Config) (*StageStore, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "执行数据库迁移失败")
	}
	return &StageStore{db: db}, nil
}

// NewStageStoreWithDB 复用已有连接。
func NewStageStoreWithDB(db *sql.DB) *StageStore {
	return &StageStore{db: db}
}

// Stage 实现 stage.Store 接口。
func (s *StageStore) Stage(ctx context.Context, action *stage.StagedAction) error {
	if action == nil || action.Topic == "" || action.UserUUID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "staged action 缺少 topic 或 user_uuid")
	}
	payload, err := json.Marshal(action.Payload)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化暂存参数失败")
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO staged_actions
        (stage_key, uuid, topic, user_uuid, network, payload, summary, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        ON DUPLICATE KEY UPDATE
        uuid = VALUES(uuid), network = VALUES(network), payload = VALUES(payload),
        summary = VALUES(summary), created_at = VALUES(created_at)`,
		action.Key(),
		action.UUID,
		action.Topic,
		action.UserUUID,
		action.Network,
		payload,
		action.Summary,
		action.CreatedAt,
	)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入暂存记录失败", xerrors.WithRetryable(true))
	}
	return nil
}

// Peek 实现 stage.Store 接口。
func (s *StageStore) Peek(ctx context.Context, topic, userID string) (*stage.StagedAction, error) {
	return s.find(ctx, stage.Key(topic, userID))
}

// Take 实现 stage.Store 接口。先读后删，删除条件带上读到的 uuid：
// 若其间记录被覆盖或被并发确认取走，RowsAffected 为零，重试一次。
func (s *StageStore) Take(ctx context.Context, topic, userID string) (*stage.StagedAction, error) {
	key := stage.Key(topic, userID)
	for attempt := 0; attempt < 3; attempt++ {
		action, err := s.find(ctx, key)
		if err != nil {
			return nil, err
		}
		result, err := s.db.ExecContext(ctx,
			`DELETE FROM staged_actions WHERE stage_key = ? AND uuid = ?`,
			key, action.UUID,
		)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "取走暂存记录失败", xerrors.WithRetryable(true))
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "取走暂存记录失败")
		}
		if affected == 1 {
			return action, nil
		}
	}
	return nil, stage.ErrStageExpired
}

// Clear 实现 stage.Store 接口。
func (s *StageStore) Clear(ctx context.Context, topic, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM staged_actions WHERE stage_key = ?`, stage.Key(topic, userID))
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "删除暂存记录失败", xerrors.WithRetryable(true))
	}
	return nil
}

// Close 关闭数据库连接。
func (s *StageStore) Close() error {
	return s.db.Close()
}

func (s *StageStore) find(ctx context.Context, key string) (*stage.StagedAction, error) {
	row := s.db.QueryRowContext(ctx, `SELECT uuid, topic, user_uuid, network, payload, summary, created_at
        FROM staged_actions WHERE stage_key = ?`, key)

	var action stage.StagedAction
	var payload []byte
	err := row.Scan(
		&action.UUID,
		&action.Topic,
		&action.UserUUID,
		&action.Network,
		&payload,
		&action.Summary,
		&action.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, stage.ErrStageExpired
	}
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询暂存记录失败", xerrors.WithRetryable(true))
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &action.Payload); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "反序列化暂存参数失败")
		}
	}
	return &action, nil
}

var _ stage.Store = (*StageStore)(nil)
