package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/IlliaDrahun/multichain/pkg/config"
	"github.com/IlliaDrahun/multichain/pkg/logger"
)

// Registry 启动时构建的 chainId -> Gateway 映射，之后只读
type Registry struct {
	gateways map[string]Gateway
	ids      []string
}

func NewRegistry(gateways ...Gateway) *Registry {
	r := &Registry{gateways: make(map[string]Gateway, len(gateways))}
	for _, g := range gateways {
		r.gateways[NormalizeChainID(g.ChainID())] = g
	}
	for id := range r.gateways {
		r.ids = append(r.ids, id)
	}
	sort.Strings(r.ids)
	return r
}

// DialRegistry 为每条配置的链建立连接，单条链失败只记录日志
func DialRegistry(ctx context.Context, chains []config.ChainConfig, key *ecdsa.PrivateKey) *Registry {
	gateways := make([]Gateway, 0, len(chains))
	for _, c := range chains {
		if c.RpcUrl == "" {
			logger.Warn("No RPC url configured, chain unavailable",
				zap.String("chain", c.Name), zap.String("chain_id", c.HexChainID))
			continue
		}
		g, err := DialEthGateway(ctx, c, key)
		if err != nil {
			logger.Error("Failed to init chain gateway",
				zap.String("chain", c.Name), zap.String("chain_id", c.HexChainID), zap.Error(err))
			continue
		}
		logger.Info("Chain gateway ready",
			zap.String("chain", c.Name), zap.String("chain_id", g.ChainID()), zap.String("signer", g.SignerAddress()))
		gateways = append(gateways, g)
	}
	return NewRegistry(gateways...)
}

func (r *Registry) Get(chainID string) (Gateway, error) {
	g, ok := r.gateways[NormalizeChainID(chainID)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoGateway, chainID)
	}
	return g, nil
}

// ChainIDs 按字典序返回，保证扫描顺序稳定
func (r *Registry) ChainIDs() []string {
	return append([]string(nil), r.ids...)
}

// Close 关闭持有底层连接的网关
func (r *Registry) Close() {
	for _, g := range r.gateways {
		if c, ok := g.(interface{ Close() }); ok {
			c.Close()
		}
	}
}

// NormalizeChainID hex chain id 统一为小写
func NormalizeChainID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// SupportedChainIDs 配置中声明的所有链，intake 用来校验 chainId
func SupportedChainIDs(chains []config.ChainConfig) map[string]string {
	out := make(map[string]string, len(chains))
	for _, c := range chains {
		out[NormalizeChainID(c.HexChainID)] = c.Name
	}
	return out
}
