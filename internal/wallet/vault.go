// Package wallet 实现托管钱包库：为每个用户在每个链家族下生成并保管
// 一个钱包，私钥经对称加密后落库，明文只在创建时返回一次。
package wallet

import (
	"context"
	"encoding/hex"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"

	xerrors "OxVenta-Custody/internal/errors"
	"OxVenta-Custody/internal/keycipher"
	"OxVenta-Custody/pkg/logger"
)

// Vault 组合存储与密钥加密器，对外提供创建、取地址与取签名器三个操作。
type Vault struct {
	store  Store
	cipher *keycipher.Cipher
}

// NewVault 创建 Vault。
func NewVault(store Store, cipher *keycipher.Cipher) *Vault {
	return &Vault{store: store, cipher: cipher}
}

// Created 是创建钱包的返回值。PlaintextKey 仅在此处出现一次，
// 调用方展示给用户后必须立即丢弃。
type Created struct {
	Wallet       *Wallet
	PlaintextKey string
}

// Create 为用户在指定链家族下生成新钱包。同一用户同一链家族重复创建
// 返回 ErrWalletExists，且不会生成新密钥覆盖旧记录。
func (v *Vault) Create(ctx context.Context, userID string, family NetworkFamily, name string) (*Created, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "user_uuid 不能为空")
	}

	var address, plaintext string
	var err error
	switch family {
	case FamilyEVM:
		address, plaintext, err = generateEVMKey()
	case FamilySolana:
		address, plaintext, err = generateSolanaKey()
	default:
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "不支持的链家族: "+string(family))
	}
	if err != nil {
		return nil, err
	}

	encrypted, err := v.cipher.Encrypt(plaintext)
	if err != nil {
		return nil, err
	}

	record := &Wallet{
		UUID:          uuid.NewString(),
		UserUUID:      userID,
		NetworkFamily: family,
		Address:       address,
		EncryptedKey:  encrypted,
		Name:          name,
		CreatedAt:     time.Now().Unix(),
	}
	if err := v.store.Insert(ctx, record); err != nil {
		return nil, err
	}

	logger.Audit().Info("wallet created",
		"wallet_uuid", record.UUID,
		"user_uuid", record.UserUUID,
		"network_family", string(record.NetworkFamily),
		"address", record.Address,
	)
	return &Created{Wallet: record, PlaintextKey: plaintext}, nil
}

// Address 返回用户钱包地址，不接触密钥密文。
func (v *Vault) Address(ctx context.Context, userID string, family NetworkFamily) (string, error) {
	record, err := v.store.Find(ctx, userID, family)
	if err != nil {
		return "", err
	}
	return record.Address, nil
}

// Signer 解密用户钱包的密钥并返回签名器。解密产物会与落库地址比对，
// 任何不一致（密钥被换、密文被改）都按解密失败处理。
func (v *Vault) Signer(ctx context.Context, userID string, family NetworkFamily) (Signer, error) {
	record, err := v.store.Find(ctx, userID, family)
	if err != nil {
		return nil, err
	}
	plaintext, err := v.cipher.Decrypt(record.EncryptedKey)
	if err != nil {
		return nil, err
	}

	switch record.NetworkFamily {
	case FamilyEVM:
		key, err := crypto.HexToECDSA(strings.TrimPrefix(plaintext, "0x"))
		if err != nil {
			return nil, xerrors.Wrap(keycipher.CodeDecryption, err, "解密产物不是合法的 secp256k1 私钥")
		}
		signer := NewEVMSigner(key)
		if !strings.EqualFold(signer.Address(), record.Address) {
			return nil, xerrors.New(keycipher.CodeDecryption, "解密出的私钥与钱包地址不匹配")
		}
		return signer, nil
	case FamilySolana:
		key, err := solana.PrivateKeyFromBase58(plaintext)
		if err != nil {
			return nil, xerrors.Wrap(keycipher.CodeDecryption, err, "解密产物不是合法的 ed25519 私钥")
		}
		signer := NewSolanaSigner(key)
		if signer.Address() != record.Address {
			return nil, xerrors.New(keycipher.CodeDecryption, "解密出的私钥与钱包地址不匹配")
		}
		return signer, nil
	default:
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "不支持的链家族: "+string(record.NetworkFamily))
	}
}

func generateEVMKey() (address, plaintext string, err error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return "", "", xerrors.Wrap(xerrors.CodeInitializationFailure, err, "生成 secp256k1 密钥失败")
	}
	address = crypto.PubkeyToAddress(key.PublicKey).Hex()
	plaintext = hex.EncodeToString(crypto.FromECDSA(key))
	return address, plaintext, nil
}

func generateSolanaKey() (address, plaintext string, err error) {
	account := solana.NewWallet()
	return account.PublicKey().String(), account.PrivateKey.String(), nil
}
