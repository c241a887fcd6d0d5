package evm

import (
	"encoding/hex"
	"encoding/json"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	xerrors "OxVenta-Custody/internal/errors"
)

// UniswapV2 兼容的 factory 与 router 接口片段，只保留执行器用到的方法。
const (
	factoryABIJSON = `[
  {"constant":true,"inputs":[{"name":"tokenA","type":"address"},{"name":"tokenB","type":"address"}],"name":"getPair","outputs":[{"name":"pair","type":"address"}],"stateMutability":"view","type":"function"},
  {"constant":false,"inputs":[{"name":"tokenA","type":"address"},{"name":"tokenB","type":"address"}],"name":"createPair","outputs":[{"name":"pair","type":"address"}],"stateMutability":"nonpayable","type":"function"}
]`
	routerABIJSON = `[
  {"constant":false,"inputs":[{"name":"token","type":"address"},{"name":"amountTokenDesired","type":"uint256"},{"name":"amountTokenMin","type":"uint256"},{"name":"amountETHMin","type":"uint256"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"name":"addLiquidityETH","outputs":[{"name":"amountToken","type":"uint256"},{"name":"amountETH","type":"uint256"},{"name":"liquidity","type":"uint256"}],"stateMutability":"payable","type":"function"}
]`
)

var (
	factoryABI = mustABI(factoryABIJSON)
	routerABI  = mustABI(routerABIJSON)
)

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// PackGetPair encodes factory.getPair(tokenA, tokenB).
func PackGetPair(token, wrapped string) ([]byte, error) {
	data, err := factoryABI.Pack("getPair", common.HexToAddress(token), common.HexToAddress(wrapped))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码 getPair 调用失败")
	}
	return data, nil
}

// PackCreatePair encodes factory.createPair(tokenA, tokenB).
func PackCreatePair(token, wrapped string) ([]byte, error) {
	data, err := factoryABI.Pack("createPair", common.HexToAddress(token), common.HexToAddress(wrapped))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码 createPair 调用失败")
	}
	return data, nil
}

// PackAddLiquidityETH encodes router.addLiquidityETH(...). The native-currency
// amount travels as the transaction value, not as calldata.
func PackAddLiquidityETH(token string, amountTokenDesired, amountTokenMin, amountETHMin *big.Int, to string, deadline *big.Int) ([]byte, error) {
	data, err := routerABI.Pack("addLiquidityETH",
		common.HexToAddress(token),
		amountTokenDesired,
		amountTokenMin,
		amountETHMin,
		common.HexToAddress(to),
		deadline,
	)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码 addLiquidityETH 调用失败")
	}
	return data, nil
}

// UnpackAddress decodes a single address return value. A zero address decodes
// to the empty string.
func UnpackAddress(output []byte) (string, error) {
	if len(output) < 32 {
		return "", xerrors.New(xerrors.CodeChainFailure, "合约返回值长度不足")
	}
	address := common.BytesToAddress(output[len(output)-20:])
	if address == (common.Address{}) {
		return "", nil
	}
	return address.Hex(), nil
}

// TokenArtifact 是编译产物文件的结构（hardhat/foundry 风格）。
type TokenArtifact struct {
	ABI      json.RawMessage `json:"abi"`
	Bytecode string          `json:"bytecode"`

	parsed abi.ABI
	code   []byte
}

// LoadTokenArtifact reads and validates a compiled ERC-20 artifact whose
// constructor takes (name string, symbol string, initialSupply uint256).
func LoadTokenArtifact(path string) (*TokenArtifact, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "读取代币合约产物失败")
	}
	var artifact TokenArtifact
	if err := json.Unmarshal(content, &artifact); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "解析代币合约产物失败")
	}

	artifact.parsed, err = abi.JSON(strings.NewReader(string(artifact.ABI)))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "解析代币合约 ABI 失败")
	}
	artifact.code, err = hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(artifact.Bytecode), "0x"))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "解析代币合约字节码失败")
	}
	if len(artifact.code) == 0 {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "代币合约字节码不能为空")
	}
	return &artifact, nil
}

// DeployData returns creation calldata: bytecode followed by the encoded
// constructor arguments.
func (a *TokenArtifact) DeployData(name, symbol string, initialSupply *big.Int) ([]byte, error) {
	args, err := a.parsed.Pack("", name, symbol, initialSupply)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码代币构造参数失败")
	}
	return append(append([]byte{}, a.code...), args...), nil
}
