package wallet

import (
	"context"
	"sync"

	xerrors "OxVenta-Custody/internal/errors"
)

// MemoryStore 以内存方式保存钱包记录，主要用于测试。
type MemoryStore struct {
	mu      sync.RWMutex
	wallets map[string]*Wallet
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{wallets: make(map[string]*Wallet)}
}

func memoryKey(userID string, family NetworkFamily) string {
	return userID + ":" + string(family)
}

// Insert 实现 Store 接口。
func (m *MemoryStore) Insert(_ context.Context, record *Wallet) error {
	if record == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "wallet 不能为空")
	}
	if record.UserUUID == "" || record.Address == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "钱包记录缺少必要字段")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := memoryKey(record.UserUUID, record.NetworkFamily)
	if _, ok := m.wallets[key]; ok {
		return ErrWalletExists
	}
	clone := *record
	m.wallets[key] = &clone
	return nil
}

// Find 返回钱包记录。
func (m *MemoryStore) Find(_ context.Context, userID string, family NetworkFamily) (*Wallet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.wallets[memoryKey(userID, family)]
	if !ok {
		return nil, ErrWalletNotFound
	}
	clone := *record
	return &clone, nil
}

// Close 对内存存储无需操作。
func (m *MemoryStore) Close() error {
	return nil
}

var _ Store = (*MemoryStore)(nil)
