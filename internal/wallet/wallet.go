package wallet

import (
	xerrors "OxVenta-Custody/internal/errors"
)

// NetworkFamily 表示钱包所属的链家族，决定密钥格式与签名算法。
type NetworkFamily string

const (
	// FamilyEVM 表示以太坊兼容链，使用 secp256k1 密钥。
	FamilyEVM NetworkFamily = "evm"
	// FamilySolana 表示 Solana 链，使用 ed25519 密钥。
	FamilySolana NetworkFamily = "solana"
)

// ParseFamily 校验并返回链家族枚举值。
func ParseFamily(value string) (NetworkFamily, error) {
	switch NetworkFamily(value) {
	case FamilyEVM:
		return FamilyEVM, nil
	case FamilySolana:
		return FamilySolana, nil
	default:
		return "", xerrors.New(xerrors.CodeInvalidArgument, "不支持的链家族: "+value)
	}
}

// Wallet 描述一条托管钱包记录。Address 与密文在创建后不可变更，
// 记录在正常运营中永不物理删除（托管资金必须保持可恢复）。
type Wallet struct {
	UUID          string        `json:"uuid"`
	UserUUID      string        `json:"user_uuid"`
	NetworkFamily NetworkFamily `json:"network_family"`
	Address       string        `json:"address"`
	EncryptedKey  string        `json:"encrypted_key_material"`
	Name          string        `json:"name,omitempty"`
	CreatedAt     int64         `json:"created_at"`
}

var (
	// ErrWalletNotFound 表示指定用户在该链家族下没有钱包。
	ErrWalletNotFound = xerrors.New(CodeWalletNotFound, "wallet not found")
	// ErrWalletExists 表示该用户在该链家族下已存在钱包。
	ErrWalletExists = xerrors.New(CodeWalletExists, "wallet already exists", xerrors.WithSeverity(xerrors.SeverityInfo))
)

const (
	CodeWalletNotFound xerrors.Code = "WALLET_NOT_FOUND"
	CodeWalletExists   xerrors.Code = "WALLET_EXISTS"
)

func init() {
	xerrors.Register(CodeWalletNotFound, xerrors.Attributes{
		Message:   "wallet not found",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeWalletExists, xerrors.Attributes{
		Message:   "wallet already exists",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
}
