package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/walletsync/internal/core/domain"
)

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Connect the wallet and show its current snapshot",
	Run:   runStatus,
}

func init() {
	statusCmd.Flags().IntVar(&statusLimit, "limit", 10, "number of transactions to show")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	app := connectApp(ctx)
	defer cleanup()

	snap := app.Wallet.Current()
	if snap == nil {
		fail("No wallet data", domain.ErrNotConnected)
	}
	printSnapshot(snap, app.Networks.CurrencySymbol(), statusLimit)
}

func printSnapshot(snap *domain.WalletSnapshot, symbol string, limit int) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintf(w, "ADDRESS\t%s\n", snap.Address)
	_, _ = fmt.Fprintf(w, "NETWORK\t%s (%d)\n", snap.Network, snap.ChainID)
	_, _ = fmt.Fprintf(w, "BALANCE\t%.6f %s\n", snap.BalanceEth, symbol)
	_, _ = fmt.Fprintf(w, "TOKENS\t%g\n", snap.TokenBalance)
	_, _ = fmt.Fprintf(w, "NFTS\t%d\n", snap.NFTCount)
	_, _ = fmt.Fprintf(w, "TRANSACTIONS\t%d\n", snap.TransactionCount)
	if len(snap.Partial) > 0 {
		_, _ = fmt.Fprintf(w, "UNAVAILABLE\t%v\n", snap.Partial)
	}
	_ = w.Flush()

	if len(snap.Transactions) == 0 {
		return
	}
	fmt.Println()
	w = tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "HASH\tTYPE\tAMOUNT\tSTATUS\tTIME")
	for i, tx := range snap.Transactions {
		if limit > 0 && i >= limit {
			break
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			domain.ShortAddress(tx.Hash), tx.Direction, tx.AmountDisplay, tx.Status, tx.Timestamp.Format("2006-01-02 15:04"))
	}
	_ = w.Flush()
}
