package chain

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	xerrors "OxVenta-Custody/internal/errors"
)

// Definitions models the structure of configs/chains.yaml.
type Definitions struct {
	Chains map[string]Definition `yaml:"chains"`
}

// Definition describes a single network: its endpoint, explorer, and the
// protocol contract addresses the executor needs. Immutable for the process
// lifetime; loaded once by the registry.
type Definition struct {
	Type                 string `yaml:"type"`
	RPCURL               string `yaml:"rpc_url"`
	ExplorerURL          string `yaml:"explorer_url"`
	ChainID              int64  `yaml:"chain_id"`
	FactoryAddress       string `yaml:"factory_address"`
	RouterAddress        string `yaml:"router_address"`
	WrappedNativeAddress string `yaml:"wrapped_native_address"`
	TokenArtifact        string `yaml:"token_artifact"`
	Description          string `yaml:"description"`
}

// LoadDefinitions parses the YAML file containing network metadata.
func LoadDefinitions(path string) (Definitions, error) {
	if strings.TrimSpace(path) == "" {
		return Definitions{Chains: map[string]Definition{}}, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return Definitions{}, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "读取链配置失败")
	}

	var defs Definitions
	if err := yaml.Unmarshal(content, &defs); err != nil {
		return Definitions{}, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "解析链配置失败")
	}
	if defs.Chains == nil {
		defs.Chains = map[string]Definition{}
	}
	return defs, nil
}
