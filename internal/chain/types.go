// Package chain defines the client interface every supported network family
// must provide, so the executor can interact with different chains uniformly.
package chain

import (
	"context"
	"math/big"
	"time"

	xerrors "OxVenta-Custody/internal/errors"
	"OxVenta-Custody/internal/wallet"
)

// Call describes an intended transaction or read-only contract call.
// An empty To means contract creation.
type Call struct {
	From     string
	To       string
	Data     []byte
	Value    *big.Int
	GasLimit uint64
	GasPrice *big.Int
}

// TxResult captures the outcome of a mined transaction.
type TxResult struct {
	Hash            string
	BlockNumber     uint64
	GasUsed         uint64
	ContractAddress string
}

// LinkKind selects the explorer path for ExplorerLink.
type LinkKind string

const (
	LinkTx      LinkKind = "tx"
	LinkAddress LinkKind = "address"
	LinkToken   LinkKind = "token"
)

// Client is the per-network handle the executor talks to. Implementations
// never transmit private key material; signing happens in-process via the
// wallet signer passed to SignAndBroadcast.
type Client interface {
	// Name returns the configured network name.
	Name() string
	// Definition returns the static network metadata this client was built from.
	Definition() Definition
	// BalanceAt returns the native-currency balance in base units.
	BalanceAt(ctx context.Context, address string) (*big.Int, error)
	// PendingNonce returns the next usable nonce for the address.
	PendingNonce(ctx context.Context, address string) (uint64, error)
	// SuggestGasPrice returns the node's current gas price suggestion.
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	// EstimateGas estimates the gas limit for the call, failing with an
	// ESTIMATION_FAILED error if the call would revert.
	EstimateGas(ctx context.Context, call Call) (uint64, error)
	// ReadContract executes a read-only call and returns the raw return data.
	ReadContract(ctx context.Context, call Call) ([]byte, error)
	// SignAndBroadcast fills in nonce, gas price, gas limit and chain id,
	// signs with the provided signer, sends the raw transaction, and returns
	// its hash.
	SignAndBroadcast(ctx context.Context, signer wallet.Signer, call Call) (string, error)
	// AwaitReceipt polls for the receipt until the timeout. A timeout does
	// not mean the transaction failed, only that its outcome is unknown.
	AwaitReceipt(ctx context.Context, txHash string, timeout time.Duration) (*TxResult, error)
	// ExplorerLink renders a block-explorer URL for a hash, address or token.
	ExplorerLink(kind LinkKind, value string) string
	Close()
}

const (
	// CodeUnsupportedNetwork 请求了未配置的网络名。
	CodeUnsupportedNetwork xerrors.Code = "UNSUPPORTED_NETWORK"
	// CodeEstimationFailed 预估 gas 失败，通常意味着调用会 revert。
	CodeEstimationFailed xerrors.Code = "ESTIMATION_FAILED"
	// CodeBroadcastFailed 节点拒绝了已签名交易。
	CodeBroadcastFailed xerrors.Code = "BROADCAST_FAILED"
	// CodeReceiptTimeout 超时未观察到回执，交易结果未知。
	CodeReceiptTimeout xerrors.Code = "RECEIPT_TIMEOUT"
	// CodeReverted 交易已上链但执行失败。
	CodeReverted xerrors.Code = "EXECUTION_REVERTED"
)

// ErrUnsupportedNetwork 由注册表在网络名未配置时返回。调用方必须把它
// 转成"网络不支持"的用户提示，绝不能回退到默认网络继续执行。
var ErrUnsupportedNetwork = xerrors.New(CodeUnsupportedNetwork, "network not supported")

func init() {
	xerrors.Register(CodeUnsupportedNetwork, xerrors.Attributes{
		Message:   "network not supported",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeEstimationFailed, xerrors.Attributes{
		Message:   "gas estimation failed",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeBroadcastFailed, xerrors.Attributes{
		Message:   "broadcast rejected by node",
		Severity:  xerrors.SeverityCritical,
		Retryable: false,
		Alert:     true,
	})
	// 超时不可自动重试：交易可能已经上链，重发会造成重复操作。
	xerrors.Register(CodeReceiptTimeout, xerrors.Attributes{
		Message:   "transaction outcome unknown",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     true,
	})
	xerrors.Register(CodeReverted, xerrors.Attributes{
		Message:   "transaction reverted on chain",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     false,
	})
}
