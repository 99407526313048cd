package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var listUser string

// listCmd 代表 list 命令
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "列出用户的全部交易 (最新的在前)",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, cleanup, err := openService(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		txs, err := svc.FindByUserAddress(cmd.Context(), listUser)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCHAIN\tMETHOD\tSTATUS\tTX HASH\tUPDATED")
		for _, tx := range txs {
			hash := "-"
			if tx.TxHash != nil {
				hash = *tx.TxHash
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				tx.ID, tx.ChainID, tx.Method, tx.Status, hash, tx.UpdatedAt.Format(time.RFC3339))
		}
		return w.Flush()
	},
}

// showCmd 代表 show 命令
var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "查看单笔交易",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, cleanup, err := openService(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		tx, err := svc.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(tx)
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)

	listCmd.Flags().StringVar(&listUser, "user", "", "用户地址")
	_ = listCmd.MarkFlagRequired("user")
}
