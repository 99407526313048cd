package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/term"

	"github.com/IlliaDrahun/multichain/internal/chain"
	"github.com/IlliaDrahun/multichain/pkg/config"
	"github.com/IlliaDrahun/multichain/pkg/hdkey"
)

// signerCmd 代表 signer 命令组
var signerCmd = &cobra.Command{
	Use:   "signer",
	Short: "签名私钥相关命令",
}

// signerAddressCmd 按 tx-sender 的加载顺序解析私钥并打印地址
var signerAddressCmd = &cobra.Command{
	Use:   "address",
	Short: "显示当前配置的签名地址",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Global.Signer
		if cfg.PrivateKey == "" && cfg.KeystorePath != "" && cfg.Password == "" {
			password, err := readPassword("Keystore 密码: ")
			if err != nil {
				return err
			}
			cfg.Password = password
		}

		key, err := chain.LoadSigningKey(cfg)
		if err != nil {
			return err
		}
		fmt.Println(chain.AddressOf(key))
		return nil
	},
}

var newMnemonicBits int

// signerNewCmd 生成新的助记词以及默认路径的地址
var signerNewCmd = &cobra.Command{
	Use:   "new",
	Short: "生成新的 BIP-39 助记词",
	RunE: func(cmd *cobra.Command, args []string) error {
		entropy, err := bip39.NewEntropy(newMnemonicBits)
		if err != nil {
			return err
		}
		mnemonic, err := bip39.NewMnemonic(entropy)
		if err != nil {
			return err
		}

		path := config.Global.Signer.DerivationPath
		if path == "" {
			path = hdkey.DefaultPath
		}
		key, err := hdkey.DeriveFromMnemonic(mnemonic, "", path)
		if err != nil {
			return err
		}

		fmt.Println("---------------------------------------------------")
		fmt.Printf("助记词 (Mnemonic): \n%s\n", mnemonic)
		fmt.Println("---------------------------------------------------")
		fmt.Printf("地址 [%s]: %s\n", path, chain.AddressOf(key))
		return nil
	},
}

// readPassword 从终端读取密码，不回显
func readPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("keystore password required: set SIGNER_PASSWORD or run in a terminal")
	}
	fmt.Fprint(os.Stderr, prompt)
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(raw), nil
}

func init() {
	rootCmd.AddCommand(signerCmd)
	signerCmd.AddCommand(signerAddressCmd)
	signerCmd.AddCommand(signerNewCmd)

	signerNewCmd.Flags().IntVar(&newMnemonicBits, "bits", 256, "熵长度: 128 (12 词) 或 256 (24 词)")
}
