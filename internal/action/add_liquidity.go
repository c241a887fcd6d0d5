package action

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"OxVenta-Custody/internal/amount"
	"OxVenta-Custody/internal/chain"
	"OxVenta-Custody/internal/chain/evm"
	xerrors "OxVenta-Custody/internal/errors"
	"OxVenta-Custody/internal/stage"
)

// 路由合约拒绝过期交易的时间窗口。
const liquidityDeadline = 20 * time.Minute

// AddLiquidityETH 通过 UniswapV2 兼容路由为 (token, native) 注入
// 初始流动性，原生币金额随交易 value 发送。
type AddLiquidityETH struct{}

// NewAddLiquidityETH 创建处理器。
func NewAddLiquidityETH() *AddLiquidityETH {
	return &AddLiquidityETH{}
}

// Topic 实现 Handler 接口。
func (h *AddLiquidityETH) Topic() string {
	return TopicAddLiquidityETH
}

// Validate 实现 Handler 接口。金额在这里就转换一次以确保可解析，
// 暂存记录里保留用户输入的十进制形式。
func (h *AddLiquidityETH) Validate(payload map[string]string) (map[string]string, string, error) {
	token := strings.TrimSpace(payload["token"])
	if !common.IsHexAddress(token) {
		return nil, "", xerrors.New(xerrors.CodeInvalidArgument, "token 不是合法的合约地址")
	}
	token = common.HexToAddress(token).Hex()

	tokenAmount := strings.TrimSpace(payload["token_amount"])
	if _, err := amount.ToBaseUnits(tokenAmount, amount.NativeDecimals); err != nil {
		return nil, "", err
	}
	ethAmount := strings.TrimSpace(payload["eth_amount"])
	if _, err := amount.ToBaseUnits(ethAmount, amount.NativeDecimals); err != nil {
		return nil, "", err
	}

	normalized := map[string]string{
		"token":        token,
		"token_amount": tokenAmount,
		"eth_amount":   ethAmount,
	}
	summary := fmt.Sprintf("Add liquidity for %s: %s tokens and %s native currency", token, tokenAmount, ethAmount)
	return normalized, summary, nil
}

// Precondition 实现 Handler 接口。金额校验已在暂存时完成，这里没有
// 余额之外的前置条件。
func (h *AddLiquidityETH) Precondition(context.Context, *Env, *stage.StagedAction) error {
	return nil
}

// BuildCall 实现 Handler 接口。
func (h *AddLiquidityETH) BuildCall(_ context.Context, env *Env, act *stage.StagedAction) (chain.Call, error) {
	router := strings.TrimSpace(env.Client.Definition().RouterAddress)
	if router == "" {
		return chain.Call{}, xerrors.New(xerrors.CodeInitializationFailure,
			"网络 "+env.Client.Name()+" 未配置 router 地址")
	}

	tokenAmount, err := amount.ToBaseUnits(act.Payload["token_amount"], amount.NativeDecimals)
	if err != nil {
		return chain.Call{}, err
	}
	ethAmount, err := amount.ToBaseUnits(act.Payload["eth_amount"], amount.NativeDecimals)
	if err != nil {
		return chain.Call{}, err
	}

	deadline := big.NewInt(time.Now().Add(liquidityDeadline).Unix())
	data, err := evm.PackAddLiquidityETH(
		act.Payload["token"],
		tokenAmount,
		tokenAmount,
		ethAmount,
		env.Signer.Address(),
		deadline,
	)
	if err != nil {
		return chain.Call{}, err
	}
	return chain.Call{To: router, Data: data, Value: ethAmount}, nil
}

// Result 实现 Handler 接口。
func (h *AddLiquidityETH) Result(_ context.Context, env *Env, act *stage.StagedAction, res *chain.TxResult) string {
	return fmt.Sprintf("Liquidity added for %s (%s tokens, %s native). %s",
		act.Payload["token"],
		act.Payload["token_amount"],
		act.Payload["eth_amount"],
		formatTxDetail(env, res),
	)
}

var _ Handler = (*AddLiquidityETH)(nil)
