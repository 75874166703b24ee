package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/elabsync/elabsync/internal/migrate"
)

var migrateCmd = &cobra.Command{
	Use:         "migrate",
	Short:       "Pull records out of other lab notebooks",
	Annotations: map[string]string{localOnly: "true"},
}

var (
	labfolderEmail string
	labfolderURL   string
	labfolderOut   string
)

var migrateLabfolderCmd = &cobra.Command{
	Use:   "labfolder",
	Short: "Write labfolder entries as an import table",
	Long: `Logs into labfolder, walks every project and entry the account can
see, and writes them to a CSV table ready for "elabsync import
experiments". Entry text, tags, project name and creation date all
travel along. labfolder is only read, never changed.

The password is taken from LABFOLDER_PASSWORD; it is never accepted as
a flag, so it cannot leak through the process list.`,
	Args:        cobra.NoArgs,
	Annotations: map[string]string{localOnly: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		email := labfolderEmail
		if email == "" {
			email = os.Getenv("LABFOLDER_EMAIL")
		}
		password := os.Getenv("LABFOLDER_PASSWORD")
		if email == "" || password == "" {
			return errors.New("labfolder credentials required: --email (or LABFOLDER_EMAIL) and LABFOLDER_PASSWORD")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		client := migrate.NewClient(labfolderURL)
		result, err := migrate.NewMigrator(client, slog.Default()).Run(ctx, email, password, labfolderOut)
		if err != nil {
			return err
		}

		fmt.Printf("migrated %d entries from %d projects to %s\n", result.Entries, result.Projects, result.Path)
		fmt.Printf("import with: elabsync import experiments %q\n", result.Path)
		return nil
	},
}

func init() {
	migrateLabfolderCmd.Flags().StringVar(&labfolderEmail, "email", "", "labfolder account email")
	migrateLabfolderCmd.Flags().StringVar(&labfolderURL, "url", migrate.DefaultBaseURL, "labfolder API base URL")
	migrateLabfolderCmd.Flags().StringVar(&labfolderOut, "out", "", "output CSV path (dated name when empty)")
	migrateCmd.AddCommand(migrateLabfolderCmd)
	rootCmd.AddCommand(migrateCmd)
}
