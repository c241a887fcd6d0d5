package mysql

import (
	"context"
	"database/sql"
	"errors"

	mysqldrv "github.com/go-sql-driver/mysql"

	xerrors "OxVenta-Custody/internal/errors"
	"OxVenta-Custody/internal/wallet"
)

// 唯一键冲突的 MySQL 错误号。
const errDuplicateEntry = 1062

// WalletStore 将钱包记录持久化到 wallets 表。每用户每链家族一个钱包
// 由 UNIQUE KEY (user_uuid, network_family) 在存储层强制。
type WalletStore struct {
	db *sql.DB
}

// NewWalletStore 建立连接并执行迁移。
func NewWalletStore(ctx context.Context, cfg Config) (*WalletStore, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "执行数据库迁移失败")
	}
	return &WalletStore{db: db}, nil
}

// NewWalletStoreWithDB 复用已有连接（与 StageStore 共享连接池时使用）。
func NewWalletStoreWithDB(db *sql.DB) *WalletStore {
	return &WalletStore{db: db}
}

// Insert 实现 wallet.Store 接口。
func (s *WalletStore) Insert(ctx context.Context, record *wallet.Wallet) error {
	if record == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "wallet 不能为空")
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO wallets
        (uuid, user_uuid, network_family, address, encrypted_key_material, name, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.UUID,
		record.UserUUID,
		string(record.NetworkFamily),
		record.Address,
		record.EncryptedKey,
		record.Name,
		record.CreatedAt,
	)
	if err != nil {
		var mysqlErr *mysqldrv.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == errDuplicateEntry {
			return wallet.ErrWalletExists
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入钱包记录失败", xerrors.WithRetryable(true))
	}
	return nil
}

// Find 实现 wallet.Store 接口。
func (s *WalletStore) Find(ctx context.Context, userID string, family wallet.NetworkFamily) (*wallet.Wallet, error) {
	row := s.db.QueryRowContext(ctx, `SELECT uuid, user_uuid, network_family, address,
        encrypted_key_material, name, created_at
        FROM wallets WHERE user_uuid = ? AND network_family = ?`,
		userID, string(family),
	)

	var record wallet.Wallet
	var networkFamily string
	err := row.Scan(
		&record.UUID,
		&record.UserUUID,
		&networkFamily,
		&record.Address,
		&record.EncryptedKey,
		&record.Name,
		&record.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, wallet.ErrWalletNotFound
	}
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询钱包记录失败", xerrors.WithRetryable(true))
	}
	record.NetworkFamily = wallet.NetworkFamily(networkFamily)
	return &record, nil
}

// Close 关闭数据库连接。
func (s *WalletStore) Close() error {
	return s.db.Close()
}

// DB 暴露底层连接供同库的其他仓库复用。
func (s *WalletStore) DB() *sql.DB {
	return s.db
}

var _ wallet.Store = (*WalletStore)(nil)
