package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/walletsync/internal/control"
	"github.com/vietddude/walletsync/internal/core/domain"
)

var revokeApproval bool

var contractCmd = &cobra.Command{
	Use:   "contract",
	Short: "Inspect and administer the wallet contract",
	Run:   runContractInfo,
}

var contractSetCmd = &cobra.Command{
	Use:   "set [address]",
	Short: "Save the wallet contract address (empty string clears it)",
	Args:  cobra.ExactArgs(1),
	Run:   runContractSet,
}

var contractListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the known wallet contracts",
	Run:   runContractList,
}

var contractAddCmd = &cobra.Command{
	Use:   "add [address]",
	Short: "Remember a wallet contract without switching to it",
	Args:  cobra.ExactArgs(1),
	Run:   runContractAdd,
}

var contractUseCmd = &cobra.Command{
	Use:   "use [address|number]",
	Short: "Switch to a wallet contract, by address or by its number in the list",
	Args:  cobra.ExactArgs(1),
	Run:   runContractUse,
}

var contractLimitCmd = &cobra.Command{
	Use:   "limit [amount]",
	Short: "Set the contract's daily spending limit in ether",
	Args:  cobra.ExactArgs(1),
	Run:   runContractLimit,
}

var contractApproveCmd = &cobra.Command{
	Use:   "approve [address]",
	Short: "Approve (or with --revoke, revoke) a recipient on the contract",
	Args:  cobra.ExactArgs(1),
	Run:   runContractApprove,
}

var contractHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the transfers recorded by the contract",
	Run:   runContractHistory,
}

func init() {
	contractApproveCmd.Flags().BoolVar(&revokeApproval, "revoke", false, "revoke instead of approve")
	contractCmd.AddCommand(contractSetCmd, contractListCmd, contractAddCmd, contractUseCmd,
		contractLimitCmd, contractApproveCmd, contractHistoryCmd)
	rootCmd.AddCommand(contractCmd)
}

func runContractInfo(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	app := openApp(ctx)
	defer cleanup()

	address := app.Contracts.ContractAddress()
	if address == "" {
		fail("No wallet contract configured", domain.ErrNoContract)
	}
	balance, err := app.Contracts.ContractBalance(ctx, address)
	if err != nil {
		fail("Failed to read contract balance", err)
	}
	limit, err := app.Contracts.DailyLimit(ctx, address)
	if err != nil {
		fail("Failed to read daily limit", err)
	}
	spent, err := app.Contracts.DailySpent(ctx, address)
	if err != nil {
		fail("Failed to read daily spent", err)
	}

	symbol := app.Networks.CurrencySymbol()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintf(w, "CONTRACT\t%s\n", address)
	_, _ = fmt.Fprintf(w, "BALANCE\t%.6f %s\n", balance, symbol)
	_, _ = fmt.Fprintf(w, "DAILY LIMIT\t%.6f %s\n", limit, symbol)
	_, _ = fmt.Fprintf(w, "SPENT TODAY\t%.6f %s\n", spent, symbol)
	_ = w.Flush()
}

func runContractSet(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	app := openApp(ctx)
	defer cleanup()

	if err := app.SetContractAddress(ctx, args[0]); err != nil {
		fail("Failed to save contract address", err)
	}
}

func runContractList(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	p, _ := openPrefs(ctx)
	defer cleanup()

	list, err := p.KnownContracts(ctx)
	if err != nil {
		fail("Failed to read known contracts", err)
	}
	active, _ := p.ContractAddress(ctx)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, "#\tADDRESS\tACTIVE")
	for i, addr := range list {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%t\n", i+1, addr, strings.EqualFold(addr, active))
	}
	_ = w.Flush()
}

func runContractAdd(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	p, _ := openPrefs(ctx)
	defer cleanup()

	added, err := p.AddKnownContract(ctx, args[0])
	if err != nil {
		fail("Failed to add contract", err)
	}
	if !added {
		fmt.Println("Contract already known")
	}
}

func runContractUse(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	app := openApp(ctx)
	defer cleanup()

	known, err := app.Prefs.KnownContracts(ctx)
	if err != nil {
		fail("Failed to read known contracts", err)
	}
	address, err := pickContract(known, args[0])
	if err != nil {
		fail("Unknown contract", err)
	}
	if err := app.SetContractAddress(ctx, address); err != nil {
		fail("Failed to switch contract", err)
	}
	fmt.Println(address)
}

// pickContract resolves a 1-based list number to an address; anything else
// is taken as an address.
func pickContract(known []string, arg string) (string, error) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return arg, nil
	}
	if n < 1 || n > len(known) {
		return "", fmt.Errorf("no contract number %d, %d known", n, len(known))
	}
	return known[n-1], nil
}

func runContractLimit(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	app := connectApp(ctx)
	defer cleanup()

	limit, err := domain.ParseEther(args[0])
	if err != nil {
		fail("Invalid limit", err)
	}
	owner := sessionAddress(app)
	hash, err := app.Contracts.SetDailyLimit(ctx, owner, "", limit)
	if err != nil {
		fail("Failed to set daily limit", err)
	}
	fmt.Println(hash)
}

func runContractApprove(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	app := connectApp(ctx)
	defer cleanup()

	owner := sessionAddress(app)
	hash, err := app.Contracts.ApproveAddress(ctx, owner, "", args[0], !revokeApproval)
	if err != nil {
		fail("Failed to update approval", err)
	}
	fmt.Println(hash)
}

func runContractHistory(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	app := openApp(ctx)
	defer cleanup()

	history, err := app.Contracts.TransactionHistory(ctx, "")
	if err != nil {
		fail("Failed to read contract history", err)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, "TO\tAMOUNT\tEXECUTED\tTIME\tDESCRIPTION")
	for _, t := range history {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%s\n",
			t.To, t.Amount, t.Executed, t.Timestamp.Format("2006-01-02 15:04"), t.Description)
	}
	_ = w.Flush()
}

func sessionAddress(app *control.App) string {
	sess, ok := app.Wallet.Session()
	if !ok {
		fail("Wallet not connected", domain.ErrNotConnected)
	}
	return sess.Address
}
