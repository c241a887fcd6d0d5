// Package action 实现两段式交易执行器：propose 阶段校验参数并暂存，
// confirm 阶段重查链上前置条件、过余额闸门、签名广播并等待回执。
// 每个 topic 的处理器在启动时注册到类型化的注册表里。
package action

import (
	"context"
	"fmt"
	"math/big"

	"OxVenta-Custody/internal/chain"
	xerrors "OxVenta-Custody/internal/errors"
	"OxVenta-Custody/internal/stage"
	"OxVenta-Custody/internal/wallet"
)

// 支持的操作 topic。
const (
	TopicCreateToken     = "create_token"
	TopicCreatePair      = "create_pair"
	TopicAddLiquidityETH = "add_liquidity_eth"
)

const (
	// CodeInsufficientBalance 余额不足以覆盖 gas 与转账金额。
	CodeInsufficientBalance xerrors.Code = "INSUFFICIENT_BALANCE"
	// CodePairExists 工厂合约中该交易对已存在。
	CodePairExists xerrors.Code = "PAIR_EXISTS"
)

func init() {
	xerrors.Register(CodeInsufficientBalance, xerrors.Attributes{
		Message:   "insufficient balance",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodePairExists, xerrors.Attributes{
		Message:   "pair already exists",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
}

// Env 打包单次执行用到的链上下文，传给处理器的各个阶段。
type Env struct {
	Client chain.Client
	Signer wallet.Signer
}

// Handler 是单个 topic 的处理器。除 Validate 在 propose 阶段执行外,
// 其余阶段都在 confirm 阶段按序调用。
type Handler interface {
	// Topic 返回处理器负责的操作名。
	Topic() string
	// Validate 校验并规范化用户参数，返回给用户看的确认摘要。
	// 任何校验失败都发生在暂存之前，不触碰链。
	Validate(payload map[string]string) (normalized map[string]string, summary string, err error)
	// Precondition 在花费任何 gas 之前检查链上前置条件。
	Precondition(ctx context.Context, env *Env, act *stage.StagedAction) error
	// BuildCall 构造待签名的交易调用。
	BuildCall(ctx context.Context, env *Env, act *stage.StagedAction) (chain.Call, error)
	// Result 渲染最终成功详情（gas、区块、哈希、合约地址等）。
	Result(ctx context.Context, env *Env, act *stage.StagedAction, res *chain.TxResult) string
}

// Registry 是 topic 到处理器的类型化映射，启动时显式注册。
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry 注册处理器集合。重复 topic 视为编程错误。
func NewRegistry(handlers ...Handler) (*Registry, error) {
	registry := &Registry{handlers: make(map[string]Handler, len(handlers))}
	for _, handler := range handlers {
		topic := handler.Topic()
		if _, ok := registry.handlers[topic]; ok {
			return nil, xerrors.New(xerrors.CodeInitializationFailure, "重复注册的 topic: "+topic)
		}
		registry.handlers[topic] = handler
	}
	return registry, nil
}

// Handler 按 topic 查找处理器。
func (r *Registry) Handler(topic string) (Handler, error) {
	handler, ok := r.handlers[topic]
	if !ok {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "未知的操作 topic: "+topic)
	}
	return handler, nil
}

// Topics 返回全部已注册 topic。
func (r *Registry) Topics() []string {
	topics := make([]string, 0, len(r.handlers))
	for topic := range r.handlers {
		topics = append(topics, topic)
	}
	return topics
}

func insufficientBalance(required, available *big.Int) error {
	return xerrors.New(CodeInsufficientBalance,
		fmt.Sprintf("余额不足: 需要 %s, 当前 %s", required, available),
		xerrors.WithMetadata("required", required.String()),
		xerrors.WithMetadata("available", available.String()))
}

func pairExists(pairAddress string) error {
	return xerrors.New(CodePairExists, "交易对已存在: "+pairAddress,
		xerrors.WithMetadata("pair_address", pairAddress))
}
