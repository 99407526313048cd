package cmd

import (
	"github.com/spf13/cobra"

	"github.com/IlliaDrahun/multichain/internal/service/transaction"
)

var submitReq transaction.CreateRequest

// submitCmd 代表 submit 命令
var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "受理一笔合约调用并放入待签名队列",
	Example: `  txctl submit --chain 0x61 --contract 0xC1... --method transfer \
    --args 0xR...,1000 --user 0xU...`,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, cleanup, err := openService(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		tx, err := svc.Create(cmd.Context(), submitReq)
		if err != nil {
			return err
		}
		return printJSON(tx)
	},
}

func init() {
	rootCmd.AddCommand(submitCmd)

	submitCmd.Flags().StringVar(&submitReq.ChainID, "chain", "", "十六进制链 ID，例如 0x61")
	submitCmd.Flags().StringVar(&submitReq.ContractAddress, "contract", "", "合约地址")
	submitCmd.Flags().StringVar(&submitReq.Method, "method", "transfer", "方法名或完整签名，例如 approve(address,uint256)")
	submitCmd.Flags().StringSliceVar(&submitReq.Args, "args", nil, "调用参数，逗号分隔")
	submitCmd.Flags().StringVar(&submitReq.UserAddress, "user", "", "发起用户地址")
	_ = submitCmd.MarkFlagRequired("chain")
	_ = submitCmd.MarkFlagRequired("contract")
	_ = submitCmd.MarkFlagRequired("user")
}
