package cli

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/vietddude/walletsync/internal/control"
	"github.com/vietddude/walletsync/internal/infra/storage"
	"github.com/vietddude/walletsync/internal/prefs"
)

var languageCmd = &cobra.Command{
	Use:   "language [code]",
	Short: "Show or set the preferred language",
	Args:  cobra.MaximumNArgs(1),
	Run:   runLanguage,
}

var resetCmd = &cobra.Command{
	Use:   "reset [key...]",
	Short: "Delete stored preferences (all wallet keys when none are given)",
	Run:   runReset,
}

func init() {
	rootCmd.AddCommand(languageCmd, resetCmd)
}

func openPrefs(ctx context.Context) (*prefs.Preferences, storage.KVStore) {
	cfg := loadConfig()
	store, _, err := control.OpenStore(ctx, cfg.Storage)
	if err != nil {
		fail("Failed to open storage", err)
	}
	atExit(func() { _ = store.Close() })
	return prefs.New(store), store
}

func runLanguage(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	p, _ := openPrefs(ctx)
	defer cleanup()

	if len(args) == 0 {
		fmt.Println(p.Language(ctx))
		return
	}
	if err := p.SetLanguage(ctx, args[0]); err != nil {
		fail("Failed to save language", err)
	}
}

func runReset(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	_, store := openPrefs(ctx)
	defer cleanup()

	keys := args
	if len(keys) == 0 {
		keys = storage.AllKeys
	}
	for _, k := range keys {
		if !slices.Contains(storage.AllKeys, k) {
			fail("Refusing to delete unknown key", fmt.Errorf("%q is not a wallet key", k))
		}
	}

	for _, k := range keys {
		if err := store.Delete(ctx, k); err != nil {
			fail("Failed to delete key", err)
		}
		slog.Info("Deleted key", "key", k)
	}
	fmt.Printf("Successfully reset %d keys\n", len(keys))
}
