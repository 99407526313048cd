package chain

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IlliaDrahun/multichain/pkg/config"
)

const (
	testPrivateKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	testKeyAddress = "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23"
	testMnemonic   = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
)

func TestLoadSigningKeyPrivateKey(t *testing.T) {
	key, err := LoadSigningKey(config.SignerConfig{PrivateKey: "0x" + testPrivateKey})
	require.NoError(t, err)
	assert.Equal(t, testKeyAddress, AddressOf(key))
}

func TestLoadSigningKeyKeystore(t *testing.T) {
	priv, err := crypto.HexToECDSA(testPrivateKey)
	require.NoError(t, err)

	k := &keystore.Key{
		Id:         uuid.New(),
		Address:    crypto.PubkeyToAddress(priv.PublicKey),
		PrivateKey: priv,
	}
	raw, err := keystore.EncryptKey(k, "secret", keystore.LightScryptN, keystore.LightScryptP)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "signer.json")
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	key, err := LoadSigningKey(config.SignerConfig{KeystorePath: path, Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, testKeyAddress, AddressOf(key))

	_, err = LoadSigningKey(config.SignerConfig{KeystorePath: path, Password: "wrong"})
	assert.Error(t, err)
}

func TestLoadSigningKeyMnemonic(t *testing.T) {
	key, err := LoadSigningKey(config.SignerConfig{Mnemonic: testMnemonic})
	require.NoError(t, err)
	assert.Equal(t, "0x9858EfFD232B4033E47d90003D41EC34EcaEda94", AddressOf(key))
}

func TestLoadSigningKeyPriority(t *testing.T) {
	// private_key 优先于 mnemonic
	key, err := LoadSigningKey(config.SignerConfig{PrivateKey: testPrivateKey, Mnemonic: testMnemonic})
	require.NoError(t, err)
	assert.Equal(t, testKeyAddress, AddressOf(key))
}

func TestLoadSigningKeyMissing(t *testing.T) {
	_, err := LoadSigningKey(config.SignerConfig{})
	assert.ErrorIs(t, err, ErrNoSigningKey)

	_, err = LoadSigningKey(config.SignerConfig{PrivateKey: "zz"})
	assert.Error(t, err)
}
