package chain

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/IlliaDrahun/multichain/pkg/config"
	"github.com/IlliaDrahun/multichain/pkg/hdkey"
)

var ErrNoSigningKey = errors.New("no signing key configured (signer.private_key, signer.keystore_path or signer.mnemonic)")

// LoadSigningKey 按 private_key > keystore_path > mnemonic 的顺序加载签名私钥
func LoadSigningKey(cfg config.SignerConfig) (*ecdsa.PrivateKey, error) {
	switch {
	case cfg.PrivateKey != "":
		key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(cfg.PrivateKey), "0x"))
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		return key, nil

	case cfg.KeystorePath != "":
		raw, err := os.ReadFile(cfg.KeystorePath)
		if err != nil {
			return nil, fmt.Errorf("read keystore: %w", err)
		}
		k, err := keystore.DecryptKey(raw, cfg.Password)
		if err != nil {
			return nil, fmt.Errorf("decrypt keystore: %w", err)
		}
		return k.PrivateKey, nil

	case cfg.Mnemonic != "":
		path := cfg.DerivationPath
		if path == "" {
			path = hdkey.DefaultPath
		}
		key, err := hdkey.DeriveFromMnemonic(cfg.Mnemonic, "", path)
		if err != nil {
			return nil, fmt.Errorf("derive key from mnemonic: %w", err)
		}
		return key, nil
	}
	return nil, ErrNoSigningKey
}

// AddressOf 私钥对应的 checksum 地址
func AddressOf(key *ecdsa.PrivateKey) string {
	return crypto.PubkeyToAddress(key.PublicKey).Hex()
}
