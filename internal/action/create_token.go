package action

import (
	"context"
	"fmt"
	"strings"

	"OxVenta-Custody/internal/amount"
	"OxVenta-Custody/internal/chain"
	"OxVenta-Custody/internal/chain/evm"
	xerrors "OxVenta-Custody/internal/errors"
	"OxVenta-Custody/internal/stage"
)

const maxTokenNameLen = 64

// CreateToken 部署一个固定总量的 ERC-20 代币，总量全部铸给钱包地址。
type CreateToken struct{}

// NewCreateToken 创建处理器。
func NewCreateToken() *CreateToken {
	return &CreateToken{}
}

// Topic 实现 Handler 接口。
func (h *CreateToken) Topic() string {
	return TopicCreateToken
}

// Validate 实现 Handler 接口。supply 接受 1k/1m/1b 简写。
func (h *CreateToken) Validate(payload map[string]string) (map[string]string, string, error) {
	name := strings.TrimSpace(payload["name"])
	if name == "" || len(name) > maxTokenNameLen {
		return nil, "", xerrors.New(xerrors.CodeInvalidArgument, "代币名称不能为空且不超过 64 字符")
	}
	symbol := strings.ToUpper(strings.TrimSpace(payload["symbol"]))
	if symbol == "" || len(symbol) > 12 {
		return nil, "", xerrors.New(xerrors.CodeInvalidArgument, "代币符号不能为空且不超过 12 字符")
	}
	supply, err := amount.ParseSupply(payload["supply"])
	if err != nil {
		return nil, "", err
	}

	normalized := map[string]string{
		"name":   name,
		"symbol": symbol,
		"supply": supply.String(),
	}
	summary := fmt.Sprintf("Create token %s (%s) with a total supply of %s", name, symbol, supply)
	return normalized, summary, nil
}

// Precondition 实现 Handler 接口。部署合约没有余额之外的前置条件。
func (h *CreateToken) Precondition(context.Context, *Env, *stage.StagedAction) error {
	return nil
}

// BuildCall 实现 Handler 接口。
func (h *CreateToken) BuildCall(_ context.Context, env *Env, act *stage.StagedAction) (chain.Call, error) {
	artifactPath := env.Client.Definition().TokenArtifact
	if strings.TrimSpace(artifactPath) == "" {
		return chain.Call{}, xerrors.New(xerrors.CodeInitializationFailure,
			"网络 "+env.Client.Name()+" 未配置代币合约产物")
	}
	artifact, err := evm.LoadTokenArtifact(artifactPath)
	if err != nil {
		return chain.Call{}, err
	}

	supply, err := amount.ToBaseUnits(act.Payload["supply"], amount.NativeDecimals)
	if err != nil {
		return chain.Call{}, err
	}
	data, err := artifact.DeployData(act.Payload["name"], act.Payload["symbol"], supply)
	if err != nil {
		return chain.Call{}, err
	}
	return chain.Call{Data: data}, nil
}

// Result 实现 Handler 接口。
func (h *CreateToken) Result(_ context.Context, env *Env, act *stage.StagedAction, res *chain.TxResult) string {
	detail := fmt.Sprintf("Token %s (%s) deployed", act.Payload["name"], act.Payload["symbol"])
	if res.ContractAddress != "" {
		if link := env.Client.ExplorerLink(chain.LinkToken, res.ContractAddress); link != "" {
			detail += " at " + link
		} else {
			detail += " at " + res.ContractAddress
		}
	}
	return detail + ". " + formatTxDetail(env, res)
}

var _ Handler = (*CreateToken)(nil)
