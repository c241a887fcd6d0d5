// Package evm implements the chain.Client interface for EVM compatible
// networks on top of go-ethereum's RPC client.
package evm

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"time"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"OxVenta-Custody/internal/chain"
	xerrors "OxVenta-Custody/internal/errors"
	"OxVenta-Custody/internal/wallet"
)

const defaultPollInterval = 2 * time.Second

// nodeBackend mirrors the subset of node methods the client needs, so tests
// can substitute a stub for a live RPC endpoint.
type nodeBackend interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg gethcore.CallMsg) (uint64, error)
	CallContract(ctx context.Context, msg gethcore.CallMsg, blockNumber *big.Int) ([]byte, error)
	SendTransaction(ctx context.Context, tx *coretypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*coretypes.Receipt, error)
}

// Client implements chain.Client for EVM compatible chains.
type Client struct {
	name      string
	def       chain.Definition
	rpcClient *gethrpc.Client
	node      nodeBackend
	chainID   *big.Int
	poll      time.Duration
}

// NewClient dials the configured RPC endpoint and returns a ready-to-use
// client. The chain id is taken from the definition when present, otherwise
// queried from the node once at startup.
func NewClient(ctx context.Context, name string, def chain.Definition) (*Client, error) {
	rpcURL := strings.TrimSpace(def.RPCURL)
	if rpcURL == "" {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置链 "+name+" 的 RPC 地址")
	}

	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "连接链 "+name+" 节点失败")
	}
	eth := ethclient.NewClient(rpcClient)

	chainID := big.NewInt(def.ChainID)
	if def.ChainID <= 0 {
		chainID, err = eth.ChainID(ctx)
		if err != nil {
			rpcClient.Close()
			return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "获取链 "+name+" 的 chain id 失败")
		}
	}

	return &Client{
		name:      name,
		def:       def,
		rpcClient: rpcClient,
		node:      eth,
		chainID:   chainID,
		poll:      defaultPollInterval,
	}, nil
}

// NewClientWithBackend wraps an in-memory node backend for testing purposes.
func NewClientWithBackend(name string, def chain.Definition, chainID *big.Int, node nodeBackend) *Client {
	return &Client{
		name:    name,
		def:     def,
		node:    node,
		chainID: new(big.Int).Set(chainID),
		poll:    5 * time.Millisecond,
	}
}

// Name implements chain.Client.
func (c *Client) Name() string {
	return c.name
}

// Definition implements chain.Client.
func (c *Client) Definition() chain.Definition {
	return c.def
}

// ChainID returns the chain id this client signs for.
func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// BalanceAt implements chain.Client.
func (c *Client) BalanceAt(ctx context.Context, address string) (*big.Int, error) {
	balance, err := c.node.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeChainFailure, err, "查询余额失败", xerrors.WithRetryable(true))
	}
	return balance, nil
}

// PendingNonce implements chain.Client.
func (c *Client) PendingNonce(ctx context.Context, address string) (uint64, error) {
	nonce, err := c.node.PendingNonceAt(ctx, common.HexToAddress(address))
	if err != nil {
		return 0, xerrors.Wrap(xerrors.CodeChainFailure, err, "查询 nonce 失败", xerrors.WithRetryable(true))
	}
	return nonce, nil
}

// SuggestGasPrice implements chain.Client.
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	price, err := c.node.SuggestGasPrice(ctx)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeChainFailure, err, "查询 gas price 失败", xerrors.WithRetryable(true))
	}
	return price, nil
}

// EstimateGas implements chain.Client.
func (c *Client) EstimateGas(ctx context.Context, call chain.Call) (uint64, error) {
	gas, err := c.node.EstimateGas(ctx, callMsg(call))
	if err != nil {
		return 0, xerrors.Wrap(chain.CodeEstimationFailed, err, "预估 gas 失败")
	}
	return gas, nil
}

// ReadContract implements chain.Client.
func (c *Client) ReadContract(ctx context.Context, call chain.Call) ([]byte, error) {
	output, err := c.node.CallContract(ctx, callMsg(call), nil)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeChainFailure, err, "合约只读调用失败", xerrors.WithRetryable(true))
	}
	return output, nil
}

// SignAndBroadcast implements chain.Client. Nonce, gas price and gas limit
// are filled in from the node when the call leaves them unset.
func (c *Client) SignAndBroadcast(ctx context.Context, signer wallet.Signer, call chain.Call) (string, error) {
	evmSigner, ok := signer.(*wallet.EVMSigner)
	if !ok {
		return "", xerrors.New(xerrors.CodeInvalidArgument, "签名器与链家族不匹配")
	}
	from := evmSigner.From()

	nonce, err := c.PendingNonce(ctx, from.Hex())
	if err != nil {
		return "", err
	}

	gasPrice := call.GasPrice
	if gasPrice == nil {
		gasPrice, err = c.SuggestGasPrice(ctx)
		if err != nil {
			return "", err
		}
	}

	gasLimit := call.GasLimit
	if gasLimit == 0 {
		withFrom := call
		withFrom.From = from.Hex()
		gasLimit, err = c.EstimateGas(ctx, withFrom)
		if err != nil {
			return "", err
		}
	}

	value := call.Value
	if value == nil {
		value = new(big.Int)
	}

	txData := &coretypes.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gasLimit,
		Value:    value,
		Data:     call.Data,
	}
	if call.To != "" {
		to := common.HexToAddress(call.To)
		txData.To = &to
	}

	signed, err := evmSigner.SignTx(coretypes.NewTx(txData), c.chainID)
	if err != nil {
		return "", err
	}

	if err := c.node.SendTransaction(ctx, signed); err != nil {
		return "", xerrors.Wrap(chain.CodeBroadcastFailed, err, "广播交易失败",
			xerrors.WithMetadata("tx_hash", signed.Hash().Hex()))
	}
	return signed.Hash().Hex(), nil
}

// AwaitReceipt implements chain.Client. A timeout yields a RECEIPT_TIMEOUT
// error carrying the explorer link; the transaction may still be mined later,
// so callers must never resend automatically.
func (c *Client) AwaitReceipt(ctx context.Context, txHash string, timeout time.Duration) (*chain.TxResult, error) {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	hash := common.HexToHash(txHash)
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

	for {
		receipt, err := c.node.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			return c.receiptResult(txHash, receipt)
		case errors.Is(err, gethcore.NotFound):
			// 交易尚未上链，继续轮询。
		case ctx.Err() != nil:
			return nil, c.timeoutError(txHash)
		default:
			return nil, xerrors.Wrap(xerrors.CodeChainFailure, err, "查询交易回执失败", xerrors.WithRetryable(true))
		}

		select {
		case <-ctx.Done():
			return nil, c.timeoutError(txHash)
		case <-ticker.C:
		}
	}
}

func (c *Client) receiptResult(txHash string, receipt *coretypes.Receipt) (*chain.TxResult, error) {
	if receipt.Status == coretypes.ReceiptStatusFailed {
		return nil, xerrors.New(chain.CodeReverted, "交易执行失败",
			xerrors.WithMetadata("tx_hash", txHash),
			xerrors.WithMetadata("explorer", c.ExplorerLink(chain.LinkTx, txHash)))
	}

	result := &chain.TxResult{
		Hash:    txHash,
		GasUsed: receipt.GasUsed,
	}
	if receipt.BlockNumber != nil {
		result.BlockNumber = receipt.BlockNumber.Uint64()
	}
	if receipt.ContractAddress != (common.Address{}) {
		result.ContractAddress = receipt.ContractAddress.Hex()
	}
	return result, nil
}

func (c *Client) timeoutError(txHash string) error {
	return xerrors.New(chain.CodeReceiptTimeout, "超时未观察到交易回执",
		xerrors.WithMetadata("tx_hash", txHash),
		xerrors.WithMetadata("explorer", c.ExplorerLink(chain.LinkTx, txHash)))
}

// ExplorerLink implements chain.Client.
func (c *Client) ExplorerLink(kind chain.LinkKind, value string) string {
	base := strings.TrimRight(strings.TrimSpace(c.def.ExplorerURL), "/")
	if base == "" || value == "" {
		return ""
	}
	switch kind {
	case chain.LinkAddress:
		return base + "/address/" + value
	case chain.LinkToken:
		return base + "/token/" + value
	default:
		return base + "/tx/" + value
	}
}

// Close releases the RPC connection held by the client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
		c.rpcClient = nil
	}
}

func callMsg(call chain.Call) gethcore.CallMsg {
	msg := gethcore.CallMsg{
		Data:     call.Data,
		Value:    call.Value,
		Gas:      call.GasLimit,
		GasPrice: call.GasPrice,
	}
	if call.From != "" {
		msg.From = common.HexToAddress(call.From)
	}
	if call.To != "" {
		to := common.HexToAddress(call.To)
		msg.To = &to
	}
	return msg
}

var _ chain.Client = (*Client)(nil)
