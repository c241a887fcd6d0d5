package stage

import (
	"context"
	"sync"

	xerrors "OxVenta-Custody/internal/errors"
)

// MemoryStore 以内存方式实现 Store，用于测试与单机部署。
type MemoryStore struct {
	mu      sync.Mutex
	actions map[string]*StagedAction
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{actions: make(map[string]*StagedAction)}
}

// Stage 实现 Store 接口。
func (m *MemoryStore) Stage(_ context.Context, action *StagedAction) error {
	if action == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "staged action 不能为空")
	}
	if action.Topic == "" || action.UserUUID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "staged action 缺少 topic 或 user_uuid")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := cloneAction(action)
	m.actions[action.Key()] = clone
	return nil
}

// Peek 实现 Store 接口。
func (m *MemoryStore) Peek(_ context.Context, topic, userID string) (*StagedAction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	action, ok := m.actions[Key(topic, userID)]
	if !ok {
		return nil, ErrStageExpired
	}
	return cloneAction(action), nil
}

// Take 实现 Store 接口。
func (m *MemoryStore) Take(_ context.Context, topic, userID string) (*StagedAction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := Key(topic, userID)
	action, ok := m.actions[key]
	if !ok {
		return nil, ErrStageExpired
	}
	delete(m.actions, key)
	return action, nil
}

// Clear 实现 Store 接口。
func (m *MemoryStore) Clear(_ context.Context, topic, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.actions, Key(topic, userID))
	return nil
}

// Close 对内存存储无需操作。
func (m *MemoryStore) Close() error {
	return nil
}

func cloneAction(action *StagedAction) *StagedAction {
	clone := *action
	if action.Payload != nil {
		clone.Payload = make(map[string]string, len(action.Payload))
		for k, v := range action.Payload {
			clone.Payload[k] = v
		}
	}
	return &clone
}

var _ Store = (*MemoryStore)(nil)
