package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/walletsync/internal/contacts"
	"github.com/vietddude/walletsync/internal/control"
	"github.com/vietddude/walletsync/internal/core/domain"
)

var (
	contactDescription string
	contactColor       string
	exportPath         string
)

var contactsCmd = &cobra.Command{
	Use:   "contacts",
	Short: "Manage the address book",
	Run:   runContactsList,
}

var contactsAddCmd = &cobra.Command{
	Use:   "add [name] [address]",
	Short: "Add a contact",
	Args:  cobra.ExactArgs(2),
	Run:   runContactsAdd,
}

var contactsUpdateCmd = &cobra.Command{
	Use:   "update [id] [name] [address]",
	Short: "Replace a contact's name, address and description",
	Args:  cobra.ExactArgs(3),
	Run:   runContactsUpdate,
}

var contactsDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a contact",
	Args:  cobra.ExactArgs(1),
	Run:   runContactsDelete,
}

var contactsSearchCmd = &cobra.Command{
	Use:   "search [term]",
	Short: "Search contacts by name or address",
	Args:  cobra.ExactArgs(1),
	Run:   runContactsSearch,
}

var contactsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export contacts as JSON",
	Run:   runContactsExport,
}

var contactsImportCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Import contacts from a JSON export",
	Args:  cobra.ExactArgs(1),
	Run:   runContactsImport,
}

func init() {
	for _, c := range []*cobra.Command{contactsAddCmd, contactsUpdateCmd} {
		c.Flags().StringVar(&contactDescription, "description", "", "contact description")
		c.Flags().StringVar(&contactColor, "color", "", "label color")
	}
	contactsExportCmd.Flags().StringVarP(&exportPath, "output", "o", "", "output file (default contacts-<date>.json)")

	contactsCmd.AddCommand(contactsAddCmd, contactsUpdateCmd, contactsDeleteCmd,
		contactsSearchCmd, contactsExportCmd, contactsImportCmd)
	rootCmd.AddCommand(contactsCmd)
}

// openBook loads the address book without touching the provider.
func openBook(ctx context.Context) *contacts.Registry {
	cfg := loadConfig()
	store, _, err := control.OpenStore(ctx, cfg.Storage)
	if err != nil {
		fail("Failed to open storage", err)
	}
	atExit(func() { _ = store.Close() })
	book := contacts.NewRegistry(store)
	if err := book.Load(ctx); err != nil {
		slog.Warn("Contacts could not be loaded, starting empty", "error", err)
	}
	return book
}

func printContacts(list []domain.ContactRecord) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tADDRESS\tDESCRIPTION")
	for _, c := range list {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", c.ID, c.Name, c.WalletAddress, c.Description)
	}
	_ = w.Flush()
}

func parseContactID(arg string) int64 {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		fail("Invalid contact id", err)
	}
	return id
}

func runContactsList(cmd *cobra.Command, args []string) {
	book := openBook(context.Background())
	defer cleanup()
	printContacts(book.List())
}

func runContactsAdd(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	book := openBook(ctx)
	defer cleanup()

	c, err := book.Add(ctx, domain.ContactRecord{
		Name:          args[0],
		WalletAddress: args[1],
		Description:   contactDescription,
		Color:         contactColor,
	})
	if err != nil {
		fail("Failed to add contact", err)
	}
	fmt.Printf("Added contact %d\n", c.ID)
}

func runContactsUpdate(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	book := openBook(ctx)
	defer cleanup()

	c, err := book.Update(ctx, parseContactID(args[0]), domain.ContactRecord{
		Name:          args[1],
		WalletAddress: args[2],
		Description:   contactDescription,
		Color:         contactColor,
	})
	if err != nil {
		fail("Failed to update contact", err)
	}
	fmt.Printf("Updated contact %d\n", c.ID)
}

func runContactsDelete(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	book := openBook(ctx)
	defer cleanup()

	if err := book.Delete(ctx, parseContactID(args[0])); err != nil {
		fail("Failed to delete contact", err)
	}
}

func runContactsSearch(cmd *cobra.Command, args []string) {
	book := openBook(context.Background())
	defer cleanup()
	printContacts(book.Search(args[0]))
}

func runContactsExport(cmd *cobra.Command, args []string) {
	book := openBook(context.Background())
	defer cleanup()

	path := exportPath
	if path == "" {
		path = contacts.ExportFileName(time.Now())
	}
	f, err := os.Create(path)
	if err != nil {
		fail("Failed to create export file", err)
	}
	defer f.Close()

	if err := book.Export(f); err != nil {
		fail("Failed to export contacts", err)
	}
	fmt.Println(path)
}

func runContactsImport(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	book := openBook(ctx)
	defer cleanup()

	f, err := os.Open(args[0])
	if err != nil {
		fail("Failed to open import file", err)
	}
	defer f.Close()

	n, err := book.Import(ctx, f)
	if err != nil {
		fail("Failed to import contacts", err)
	}
	fmt.Printf("Imported %d contacts\n", n)
}
