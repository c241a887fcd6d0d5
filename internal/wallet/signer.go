package wallet

import (
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gagliardetto/solana-go"

	xerrors "OxVenta-Custody/internal/errors"
)

// Signer 是解密后得到的签名句柄。调用方按链家族断言具体实现：
// evm 对应 *EVMSigner，solana 对应 *SolanaSigner。
type Signer interface {
	// Address 返回签名者的链上地址（canonical 字符串形式）。
	Address() string
	// Family 返回签名者所属的链家族。
	Family() NetworkFamily
}

// EVMSigner 持有解密后的 secp256k1 私钥，可对以太坊交易签名。
// 该对象只应在单次操作内存活，禁止缓存或落盘。
type EVMSigner struct {
	key *ecdsa.PrivateKey
}

// NewEVMSigner 包装一个已解密的私钥。
func NewEVMSigner(key *ecdsa.PrivateKey) *EVMSigner {
	return &EVMSigner{key: key}
}

// Address 实现 Signer 接口。
func (s *EVMSigner) Address() string {
	return s.From().Hex()
}

// Family 实现 Signer 接口。
func (s *EVMSigner) Family() NetworkFamily {
	return FamilyEVM
}

// From 返回发送方地址。
func (s *EVMSigner) From() common.Address {
	return crypto.PubkeyToAddress(s.key.PublicKey)
}

// SignTx 以 EIP-155 规则对交易签名。
func (s *EVMSigner) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeChainFailure, err, "交易签名失败")
	}
	return signed, nil
}

// SolanaSigner 持有解密后的 ed25519 私钥。
type SolanaSigner struct {
	key solana.PrivateKey
}

// NewSolanaSigner 包装一个已解密的 Solana 私钥。
func NewSolanaSigner(key solana.PrivateKey) *SolanaSigner {
	return &SolanaSigner{key: key}
}

// Address 实现 Signer 接口。
func (s *SolanaSigner) Address() string {
	return s.key.PublicKey().String()
}

// Family 实现 Signer 接口。
func (s *SolanaSigner) Family() NetworkFamily {
	return FamilySolana
}

// Sign 对任意消息做 ed25519 签名。
func (s *SolanaSigner) Sign(message []byte) (solana.Signature, error) {
	sig, err := s.key.Sign(message)
	if err != nil {
		return solana.Signature{}, xerrors.Wrap(xerrors.CodeChainFailure, err, "消息签名失败")
	}
	return sig, nil
}

var (
	_ Signer = (*EVMSigner)(nil)
	_ Signer = (*SolanaSigner)(nil)
)
