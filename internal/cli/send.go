package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vietddude/walletsync/internal/core/domain"
	"github.com/vietddude/walletsync/internal/transfer"
)

var (
	sendDescription string
	sendViaContract bool
	sendToken       string
)

var sendCmd = &cobra.Command{
	Use:   "send [recipient] [amount]",
	Short: "Send ether (or ERC-20 tokens with --token) to an address or contact name",
	Args:  cobra.ExactArgs(2),
	Run:   runSend,
}

func init() {
	sendCmd.Flags().StringVar(&sendDescription, "description", "", "description stored by the wallet contract")
	sendCmd.Flags().BoolVar(&sendViaContract, "contract", false, "send through the configured wallet contract")
	sendCmd.Flags().StringVar(&sendToken, "token", "", "ERC-20 token contract to transfer instead of ether")
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	app := connectApp(ctx)
	defer cleanup()

	to := resolveRecipient(app.Contacts.List(), args[0])

	if sendToken != "" {
		hash, err := app.Transfers.SendTokens(ctx, sendToken, to, args[1])
		if err != nil {
			reportSendError(err)
			return
		}
		fmt.Println(hash)
		return
	}

	res, err := app.Transfers.Send(ctx, transfer.Request{
		To:          to,
		Amount:      args[1],
		Description: sendDescription,
		UseContract: sendViaContract,
	})
	if err != nil {
		reportSendError(err)
		return
	}
	if res.Downgraded {
		fmt.Printf("%s (sent as plain transfer)\n", res.Hash)
	} else {
		fmt.Println(res.Hash)
	}
	fmt.Println(app.Networks.ExplorerTxURL(res.Hash))
}

func reportSendError(err error) {
	var verr *transfer.ValidationError
	if errors.As(err, &verr) {
		for field, ferr := range verr.Fields {
			fmt.Printf("%s: %v\n", field, ferr)
		}
	}
	fail("Transfer failed", err)
}

// resolveRecipient maps a contact name to its address. Anything that is not a
// known contact name is returned unchanged for validation.
func resolveRecipient(book []domain.ContactRecord, arg string) string {
	if domain.IsValidAddress(arg) {
		return arg
	}
	for _, c := range book {
		if strings.EqualFold(c.Name, arg) {
			return c.WalletAddress
		}
	}
	return arg
}
