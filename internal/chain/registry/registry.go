// Package registry 维护网络名到链客户端的映射，进程启动时按配置一次性
// 建立，之后只读。
package registry

import (
	"context"
	"sort"
	"strings"

	"OxVenta-Custody/internal/chain"
	"OxVenta-Custody/internal/chain/evm"
	xerrors "OxVenta-Custody/internal/errors"
)

// Registry 按名字解析链客户端。
type Registry struct {
	clients map[string]chain.Client
}

// New 加载链配置并为每个网络实例化客户端。
func New(ctx context.Context, configPath string) (*Registry, error) {
	defs, err := chain.LoadDefinitions(configPath)
	if err != nil {
		return nil, err
	}

	clients := make(map[string]chain.Client)
	for name, def := range defs.Chains {
		chainType := strings.ToLower(strings.TrimSpace(def.Type))
		if chainType == "" {
			chainType = "evm"
		}
		switch chainType {
		case "evm":
			client, err := evm.NewClient(ctx, name, def)
			if err != nil {
				closeAll(clients)
				return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "初始化链 "+name+" 失败")
			}
			clients[name] = client
		default:
			closeAll(clients)
			return nil, xerrors.New(xerrors.CodeInitializationFailure, "链 "+name+" 使用了不支持的类型 "+def.Type)
		}
	}
	if len(clients) == 0 {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置任何链的 RPC 端点")
	}
	return &Registry{clients: clients}, nil
}

// NewStatic 用现成的客户端集合构建注册表，供测试与嵌入场景使用。
func NewStatic(clients map[string]chain.Client) *Registry {
	copied := make(map[string]chain.Client, len(clients))
	for name, client := range clients {
		copied[name] = client
	}
	return &Registry{clients: copied}
}

// Resolve 返回指定网络的客户端。未知网络名返回 UNSUPPORTED_NETWORK，
// 调用方不得回退到默认网络。
func (r *Registry) Resolve(name string) (chain.Client, error) {
	client, ok := r.clients[name]
	if !ok {
		return nil, xerrors.Wrap(chain.CodeUnsupportedNetwork, chain.ErrUnsupportedNetwork,
			"未配置的网络: "+name, xerrors.WithMetadata("network", name))
	}
	return client, nil
}

// Chains 返回已注册的网络名列表。
func (r *Registry) Chains() []string {
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close 释放全部客户端持有的连接。
func (r *Registry) Close() {
	closeAll(r.clients)
}

func closeAll(clients map[string]chain.Client) {
	for name, client := range clients {
		if client != nil {
			client.Close()
		}
		delete(clients, name)
	}
}
