package action

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"OxVenta-Custody/internal/chain"
	chainreg "OxVenta-Custody/internal/chain/registry"
	"OxVenta-Custody/internal/stage"
	"OxVenta-Custody/internal/wallet"
	"OxVenta-Custody/pkg/logger"
)

const defaultReceiptTimeout = 2 * time.Minute

// Reporter 逐条接收执行过程中的用户可见消息（提交、等待、最终结果）。
type Reporter interface {
	Progress(message string)
}

// ReporterFunc 让函数直接充当 Reporter。
type ReporterFunc func(message string)

// Progress 实现 Reporter 接口。
func (f ReporterFunc) Progress(message string) {
	f(message)
}

// Outcome 是一次确认执行的最终结果。
type Outcome struct {
	Action *stage.StagedAction `json:"action"`
	Result *chain.TxResult     `json:"result"`
	Detail string              `json:"detail"`
}

// Config 执行器配置。
type Config struct {
	// ReceiptTimeout 等待交易回执的上限，零值取默认两分钟。
	ReceiptTimeout time.Duration
}

// Executor 组合钱包库、暂存层、链注册表与 topic 处理器。
type Executor struct {
	vault          *wallet.Vault
	stages         stage.Store
	chains         *chainreg.Registry
	registry       *Registry
	receiptTimeout time.Duration
}

// NewExecutor 创建执行器。
func NewExecutor(vault *wallet.Vault, stages stage.Store, chains *chainreg.Registry, handlers *Registry, cfg Config) *Executor {
	timeout := cfg.ReceiptTimeout
	if timeout <= 0 {
		timeout = defaultReceiptTimeout
	}
	return &Executor{
		vault:          vault,
		stages:         stages,
		chains:         chains,
		registry:       handlers,
		receiptTimeout: timeout,
	}
}

// Confirm 执行已暂存的操作。第一步就原子地取走暂存记录：并发的重复
// 确认至多一方继续，且无论后续成败暂存都已清除，不会留下可重放的
// 残留意图。回执超时表示结果未知，调用方不得自动重发。
func (e *Executor) Confirm(ctx context.Context, topic, userID string, report Reporter) (*Outcome, error) {
	handler, err := e.registry.Handler(topic)
	if err != nil {
		return nil, err
	}

	act, err := e.stages.Take(ctx, topic, userID)
	if err != nil {
		return nil, err
	}

	client, err := e.chains.Resolve(act.Network)
	if err != nil {
		return nil, err
	}
	family, err := clientFamily(client)
	if err != nil {
		return nil, err
	}
	signer, err := e.vault.Signer(ctx, userID, family)
	if err != nil {
		return nil, err
	}
	env := &Env{Client: client, Signer: signer}

	if err := handler.Precondition(ctx, env, act); err != nil {
		return nil, err
	}

	call, err := handler.BuildCall(ctx, env, act)
	if err != nil {
		return nil, err
	}
	call.From = signer.Address()

	// 余额闸门：gas 预估与余额比较都发生在签名之前。
	if call.GasLimit == 0 {
		call.GasLimit, err = client.EstimateGas(ctx, call)
		if err != nil {
			return nil, err
		}
	}
	if call.GasPrice == nil {
		call.GasPrice, err = client.SuggestGasPrice(ctx)
		if err != nil {
			return nil, err
		}
	}
	required := new(big.Int).Mul(new(big.Int).SetUint64(call.GasLimit), call.GasPrice)
	if call.Value != nil {
		required.Add(required, call.Value)
	}
	available, err := client.BalanceAt(ctx, signer.Address())
	if err != nil {
		return nil, err
	}
	if available.Cmp(required) < 0 {
		return nil, insufficientBalance(required, available)
	}

	hash, err := client.SignAndBroadcast(ctx, signer, call)
	if err != nil {
		return nil, err
	}
	report.Progress("Transaction submitted: " + hash)
	if link := client.ExplorerLink(chain.LinkTx, hash); link != "" {
		report.Progress("Pending confirmation: " + link)
	} else {
		report.Progress("Pending confirmation...")
	}

	logger.Audit().Info("transaction broadcast",
		"topic", topic,
		"user_uuid", userID,
		"network", act.Network,
		"tx_hash", hash,
	)

	result, err := client.AwaitReceipt(ctx, hash, e.receiptTimeout)
	if err != nil {
		return nil, err
	}

	detail := handler.Result(ctx, env, act, result)
	report.Progress(detail)

	logger.Audit().Info("transaction confirmed",
		"topic", topic,
		"user_uuid", userID,
		"network", act.Network,
		"tx_hash", result.Hash,
		"block_number", result.BlockNumber,
		"gas_used", result.GasUsed,
	)
	return &Outcome{Action: act, Result: result, Detail: detail}, nil
}

// Cancel 清除暂存操作，不接触链。暂存本就不存在也视为成功。
func (e *Executor) Cancel(ctx context.Context, topic, userID string) error {
	if _, err := e.registry.Handler(topic); err != nil {
		return err
	}
	if err := e.stages.Clear(ctx, topic, userID); err != nil {
		return err
	}
	logger.L().Info("action cancelled", "topic", topic, "user_uuid", userID)
	return nil
}

// Peek 返回用户当前暂存的操作，供展示确认摘要。
func (e *Executor) Peek(ctx context.Context, topic, userID string) (*stage.StagedAction, error) {
	if _, err := e.registry.Handler(topic); err != nil {
		return nil, err
	}
	return e.stages.Peek(ctx, topic, userID)
}

// Topics 返回执行器支持的操作集合。
func (e *Executor) Topics() []string {
	return e.registry.Topics()
}

func clientFamily(client chain.Client) (wallet.NetworkFamily, error) {
	typ := strings.ToLower(strings.TrimSpace(client.Definition().Type))
	if typ == "" {
		typ = string(wallet.FamilyEVM)
	}
	return wallet.ParseFamily(typ)
}

func formatTxDetail(env *Env, res *chain.TxResult) string {
	link := env.Client.ExplorerLink(chain.LinkTx, res.Hash)
	if link == "" {
		link = res.Hash
	}
	return fmt.Sprintf("tx %s, block %d, gas used %d", link, res.BlockNumber, res.GasUsed)
}
