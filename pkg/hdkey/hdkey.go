// Package hdkey 从 BIP-39 助记词按 BIP-32/44 路径派生签名私钥。
package hdkey

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/tyler-smith/go-bip39"
)

// DefaultPath 以太坊第一个外部账户
const DefaultPath = "m/44'/60'/0'/0/0"

var (
	ErrInvalidMnemonic = errors.New("无效的助记词")
	ErrInvalidSeed     = errors.New("无效的种子")
	ErrInvalidPath     = errors.New("无效的派生路径")
)

// ParsePath 解析派生路径为索引序列
// 支持格式: m/44'/60'/0'/0/0 或 m/44h/60h/0h/0/0
func ParsePath(path string) ([]uint32, error) {
	path = strings.TrimSpace(path)
	if path == "" || path == "m" {
		return nil, nil
	}
	if !strings.HasPrefix(path, "m/") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}

	segments := strings.Split(path[2:], "/")
	indexes := make([]uint32, 0, len(segments))
	for _, segment := range segments {
		hardened := false
		if strings.HasSuffix(segment, "'") || strings.HasSuffix(segment, "h") {
			hardened = true
			segment = segment[:len(segment)-1]
		}

		val, err := strconv.ParseUint(segment, 10, 31)
		if err != nil {
			return nil, fmt.Errorf("%w: segment %q", ErrInvalidPath, segment)
		}
		index := uint32(val)
		if hardened {
			index += hdkeychain.HardenedKeyStart
		}
		indexes = append(indexes, index)
	}
	return indexes, nil
}

// DeriveFromSeed 从种子派生 path 对应的私钥
func DeriveFromSeed(seed []byte, path string) (*ecdsa.PrivateKey, error) {
	if len(seed) < hdkeychain.MinSeedBytes || len(seed) > hdkeychain.MaxSeedBytes {
		return nil, ErrInvalidSeed
	}

	indexes, err := ParsePath(path)
	if err != nil {
		return nil, err
	}

	// 网络参数只影响 xprv 序列化前缀，与以太坊私钥无关
	key, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("生成主密钥失败: %w", err)
	}

	for _, index := range indexes {
		key, err = key.Derive(index)
		if err != nil {
			return nil, fmt.Errorf("派生子密钥失败: %w", err)
		}
	}

	var priv *btcec.PrivateKey
	priv, err = key.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("获取私钥失败: %w", err)
	}
	return priv.ToECDSA(), nil
}

// DeriveFromMnemonic 校验助记词并派生私钥，passphrase 可为空
func DeriveFromMnemonic(mnemonic, passphrase, path string) (*ecdsa.PrivateKey, error) {
	mnemonic = strings.Join(strings.Fields(mnemonic), " ")
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	return DeriveFromSeed(bip39.NewSeed(mnemonic, passphrase), path)
}
