// Package chain 每条 EVM 链的 RPC 与签名封装
package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/IlliaDrahun/multichain/pkg/config"
)

var (
	ErrNoGateway     = errors.New("no gateway configured for chain")
	ErrBlockNotFound = errors.New("block not found")
)

// CallRequest 要执行的合约调用
type CallRequest struct {
	To     string
	Method string
	Args   []string
}

// SendResult 广播成功后的结果
type SendResult struct {
	TxHash string
	Nonce  uint64
	From   string
}

// Receipt 交易回执的精简视图
type Receipt struct {
	TxHash        string
	Status        uint64 // 1 成功，其它为 revert
	BlockNumber   uint64
	Confirmations uint64 // latest - block + 1
}

// Gateway 单条链的 RPC/签名门面
type Gateway interface {
	ChainID() string
	SignerAddress() string
	EstimateGas(ctx context.Context, call CallRequest) (uint64, error)
	Send(ctx context.Context, call CallRequest, gasLimit uint64) (*SendResult, error)
	// Receipt 交易尚未上链时返回 nil, nil
	Receipt(ctx context.Context, txHash string) (*Receipt, error)
	IsBlockFinalized(ctx context.Context, blockNumber uint64) (bool, error)
	BlockTransactionHashes(ctx context.Context, blockNumber uint64) ([]string, error)
	// NonceAt 账户在 latest 区块的 nonce
	NonceAt(ctx context.Context, account string) (uint64, error)
}

// EthGateway 基于 go-ethereum ethclient 的实现
type EthGateway struct {
	hexChainID string
	chainID    *big.Int
	rpc        *rpc.Client
	client     *ethclient.Client
	key        *ecdsa.PrivateKey
	from       common.Address
}

// DialEthGateway 连接 RPC 并校验节点返回的 chain id 与配置一致
func DialEthGateway(ctx context.Context, cfg config.ChainConfig, key *ecdsa.PrivateKey) (*EthGateway, error) {
	if cfg.RpcUrl == "" {
		return nil, fmt.Errorf("rpc url is required for %s", cfg.HexChainID)
	}

	rc, err := rpc.DialContext(ctx, cfg.RpcUrl)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	client := ethclient.NewClient(rc)

	remoteID, err := client.ChainID(ctx)
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("fetch chain id: %w", err)
	}
	if cfg.ChainID != 0 && remoteID.Int64() != cfg.ChainID {
		rc.Close()
		return nil, fmt.Errorf("chain id mismatch: configured %d, node reports %s", cfg.ChainID, remoteID)
	}

	hexID := cfg.HexChainID
	if hexID == "" {
		hexID = hexutil.EncodeBig(remoteID)
	}

	g := &EthGateway{
		hexChainID: NormalizeChainID(hexID),
		chainID:    remoteID,
		rpc:        rc,
		client:     client,
		key:        key,
	}
	if key != nil {
		g.from = crypto.PubkeyToAddress(key.PublicKey)
	}
	return g, nil
}

func (g *EthGateway) ChainID() string { return g.hexChainID }

func (g *EthGateway) SignerAddress() string { return g.from.Hex() }

func (g *EthGateway) Close() { g.rpc.Close() }

func (g *EthGateway) EstimateGas(ctx context.Context, call CallRequest) (uint64, error) {
	msg, err := g.callMsg(call)
	if err != nil {
		return 0, err
	}
	gas, err := g.client.EstimateGas(ctx, msg)
	if err != nil {
		return 0, fmt.Errorf("estimate gas: %w", err)
	}
	return gas, nil
}

func (g *EthGateway) Send(ctx context.Context, call CallRequest, gasLimit uint64) (*SendResult, error) {
	if g.key == nil {
		return nil, errors.New("gateway has no signing key")
	}
	data, err := EncodeCall(call.Method, call.Args)
	if err != nil {
		return nil, err
	}
	to, err := parseAddress(call.To)
	if err != nil {
		return nil, err
	}

	// 1. nonce 取 pending，保证同一签名地址连续发送不冲突
	nonce, err := g.client.PendingNonceAt(ctx, g.from)
	if err != nil {
		return nil, fmt.Errorf("pending nonce: %w", err)
	}

	// 2. gas price 直接使用节点建议值
	gasPrice, err := g.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas price: %w", err)
	}

	// 3. 签名并广播
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    big.NewInt(0),
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(g.chainID), g.key)
	if err != nil {
		return nil, fmt.Errorf("sign tx: %w", err)
	}
	if err := g.client.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("send tx: %w", err)
	}

	return &SendResult{
		TxHash: signed.Hash().Hex(),
		Nonce:  nonce,
		From:   g.from.Hex(),
	}, nil
}

func (g *EthGateway) Receipt(ctx context.Context, txHash string) (*Receipt, error) {
	r, err := g.client.TransactionReceipt(ctx, common.HexToHash(txHash))
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("receipt %s: %w", txHash, err)
	}

	latest, err := g.client.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("block number: %w", err)
	}

	block := r.BlockNumber.Uint64()
	var confirmations uint64
	if latest >= block {
		confirmations = latest - block + 1
	}
	return &Receipt{
		TxHash:        r.TxHash.Hex(),
		Status:        r.Status,
		BlockNumber:   block,
		Confirmations: confirmations,
	}, nil
}

// IsBlockFinalized 不支持 finalized 标签的节点退回到 latest
// 网络等其它错误直接返回，不能当作已最终确认
func (g *EthGateway) IsBlockFinalized(ctx context.Context, blockNumber uint64) (bool, error) {
	head, err := g.client.HeaderByNumber(ctx, big.NewInt(int64(rpc.FinalizedBlockNumber)))
	if err != nil {
		if !finalizedTagUnsupported(err) {
			return false, fmt.Errorf("fetch finalized block: %w", err)
		}
		head, err = g.client.HeaderByNumber(ctx, nil)
		if err != nil {
			return false, fmt.Errorf("fetch latest block: %w", err)
		}
	}
	return head.Number.Uint64() >= blockNumber, nil
}

// finalizedTagUnsupported 节点正常应答但拒绝 finalized 标签 (JSON-RPC 错误或空结果)
func finalizedTagUnsupported(err error) bool {
	if errors.Is(err, ethereum.NotFound) {
		return true
	}
	var rpcErr rpc.Error
	return errors.As(err, &rpcErr)
}

// BlockTransactionHashes 只取交易哈希，不解码完整交易
// 部分链 (BSC/Polygon) 的系统交易类型 go-ethereum 无法解码
func (g *EthGateway) BlockTransactionHashes(ctx context.Context, blockNumber uint64) ([]string, error) {
	var block *struct {
		Transactions []common.Hash `json:"transactions"`
	}
	err := g.rpc.CallContext(ctx, &block, "eth_getBlockByNumber", hexutil.EncodeUint64(blockNumber), false)
	if err != nil {
		return nil, fmt.Errorf("get block %d: %w", blockNumber, err)
	}
	if block == nil {
		return nil, fmt.Errorf("%w: %d", ErrBlockNotFound, blockNumber)
	}

	hashes := make([]string, 0, len(block.Transactions))
	for _, h := range block.Transactions {
		hashes = append(hashes, h.Hex())
	}
	return hashes, nil
}

func (g *EthGateway) NonceAt(ctx context.Context, account string) (uint64, error) {
	addr, err := parseAddress(account)
	if err != nil {
		return 0, err
	}
	nonce, err := g.client.NonceAt(ctx, addr, nil)
	if err != nil {
		return 0, fmt.Errorf("nonce of %s: %w", account, err)
	}
	return nonce, nil
}

func (g *EthGateway) callMsg(call CallRequest) (ethereum.CallMsg, error) {
	data, err := EncodeCall(call.Method, call.Args)
	if err != nil {
		return ethereum.CallMsg{}, err
	}
	to, err := parseAddress(call.To)
	if err != nil {
		return ethereum.CallMsg{}, err
	}
	return ethereum.CallMsg{From: g.from, To: &to, Data: data}, nil
}

// ContainsHash 大小写不敏感地比较交易哈希
func ContainsHash(hashes []string, txHash string) bool {
	for _, h := range hashes {
		if strings.EqualFold(h, txHash) {
			return true
		}
	}
	return false
}
