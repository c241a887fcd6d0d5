package action

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"OxVenta-Custody/internal/chain"
	"OxVenta-Custody/internal/chain/evm"
	xerrors "OxVenta-Custody/internal/errors"
	"OxVenta-Custody/internal/stage"
)

// CreatePair 在 UniswapV2 兼容工厂上为 (token, wrapped-native) 创建
// 交易对。工厂已有同款交易对时在花费 gas 之前失败。
type CreatePair struct{}

// NewCreatePair 创建处理器。
func NewCreatePair() *CreatePair {
	return &CreatePair{}
}

// Topic 实现 Handler 接口。
func (h *CreatePair) Topic() string {
	return TopicCreatePair
}

// Validate 实现 Handler 接口。
func (h *CreatePair) Validate(payload map[string]string) (map[string]string, string, error) {
	token := strings.TrimSpace(payload["token"])
	if !common.IsHexAddress(token) {
		return nil, "", xerrors.New(xerrors.CodeInvalidArgument, "token 不是合法的合约地址")
	}
	token = common.HexToAddress(token).Hex()

	normalized := map[string]string{"token": token}
	summary := "Create a trading pair for token " + token + " against the wrapped native token"
	return normalized, summary, nil
}

// Precondition 实现 Handler 接口。读取工厂合约当前的 pair 地址，
// 已存在（非零地址）时直接失败，不做 gas 预估也不广播。
func (h *CreatePair) Precondition(ctx context.Context, env *Env, act *stage.StagedAction) error {
	factory, wrapped, err := pairContracts(env)
	if err != nil {
		return err
	}
	data, err := evm.PackGetPair(act.Payload["token"], wrapped)
	if err != nil {
		return err
	}
	output, err := env.Client.ReadContract(ctx, chain.Call{To: factory, Data: data})
	if err != nil {
		return err
	}
	pair, err := evm.UnpackAddress(output)
	if err != nil {
		return err
	}
	if pair != "" {
		return pairExists(pair)
	}
	return nil
}

// BuildCall 实现 Handler 接口。
func (h *CreatePair) BuildCall(_ context.Context, env *Env, act *stage.StagedAction) (chain.Call, error) {
	factory, wrapped, err := pairContracts(env)
	if err != nil {
		return chain.Call{}, err
	}
	data, err := evm.PackCreatePair(act.Payload["token"], wrapped)
	if err != nil {
		return chain.Call{}, err
	}
	return chain.Call{To: factory, Data: data}, nil
}

// Result 实现 Handler 接口。回执本身不带 pair 地址，这里再读一次工厂。
func (h *CreatePair) Result(ctx context.Context, env *Env, act *stage.StagedAction, res *chain.TxResult) string {
	detail := "Trading pair created for " + act.Payload["token"]
	if pair := h.readPair(ctx, env, act); pair != "" {
		if link := env.Client.ExplorerLink(chain.LinkAddress, pair); link != "" {
			detail += " at " + link
		} else {
			detail += " at " + pair
		}
	}
	return detail + ". " + formatTxDetail(env, res)
}

func (h *CreatePair) readPair(ctx context.Context, env *Env, act *stage.StagedAction) string {
	factory, wrapped, err := pairContracts(env)
	if err != nil {
		return ""
	}
	data, err := evm.PackGetPair(act.Payload["token"], wrapped)
	if err != nil {
		return ""
	}
	output, err := env.Client.ReadContract(ctx, chain.Call{To: factory, Data: data})
	if err != nil {
		return ""
	}
	pair, err := evm.UnpackAddress(output)
	if err != nil {
		return ""
	}
	return pair
}

func pairContracts(env *Env) (factory, wrapped string, err error) {
	def := env.Client.Definition()
	factory = strings.TrimSpace(def.FactoryAddress)
	wrapped = strings.TrimSpace(def.WrappedNativeAddress)
	if factory == "" || wrapped == "" {
		return "", "", xerrors.New(xerrors.CodeInitializationFailure,
			"网络 "+env.Client.Name()+" 未配置 factory 或 wrapped native 地址")
	}
	return factory, wrapped, nil
}

var _ Handler = (*CreatePair)(nil)
