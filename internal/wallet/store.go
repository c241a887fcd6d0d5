package wallet

import "context"

// Store 抽象钱包记录的持久化接口。实现必须在存储层保证
// (user_uuid, network_family) 的唯一性，而不能只依赖应用层查重。
type Store interface {
	// Insert 写入一条新钱包记录。若该用户在该链家族下已有钱包，
	// 返回 ErrWalletExists。
	Insert(ctx context.Context, record *Wallet) error
	// Find 返回用户在指定链家族下的钱包，不存在时返回 ErrWalletNotFound。
	Find(ctx context.Context, userID string, family NetworkFamily) (*Wallet, error)
	Close() error
}
