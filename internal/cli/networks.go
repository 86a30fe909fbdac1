package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var testnetsOnly bool

var networksCmd = &cobra.Command{
	Use:   "networks",
	Short: "List known networks and mark the provider's current one",
	Run:   runNetworks,
}

var switchCmd = &cobra.Command{
	Use:   "switch [network-id]",
	Short: "Ask the provider to switch to another network",
	Args:  cobra.ExactArgs(1),
	Run:   runSwitch,
}

func init() {
	networksCmd.Flags().BoolVar(&testnetsOnly, "testnets", false, "only list test networks")
	networksCmd.AddCommand(switchCmd)
	rootCmd.AddCommand(networksCmd)
}

func runNetworks(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	app := openApp(ctx)
	defer cleanup()

	current, err := app.Networks.ResolveCurrent(ctx)
	if err != nil {
		fail("Failed to resolve current network", err)
	}

	list := app.Networks.List()
	if testnetsOnly {
		list = app.Networks.ListTestnets()
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, "\tID\tNAME\tCHAIN\tSYMBOL\tTESTNET")
	for _, n := range list {
		mark := ""
		if n.ChainID == current.ChainID {
			mark = "*"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%t\n", mark, n.ID, n.Name, n.ChainID, n.CurrencySymbol, n.IsTestnet)
	}
	_ = w.Flush()
}

func runSwitch(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	app := openApp(ctx)
	defer cleanup()

	if _, err := app.Networks.Switch(ctx, args[0]); err != nil {
		fail("Network switch failed", err)
	}
	current := app.Networks.Current()
	fmt.Printf("Switched to %s (%d)\n", current.Name, current.ChainID)
}
