package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/elabsync/elabsync/internal/config"
	_ "github.com/elabsync/elabsync/internal/core/profiles" // register record profiles
	"github.com/elabsync/elabsync/internal/logging"
)

// version is stamped by the release build.
var version = "dev"

var cfg *config.Config

// localOnly marks commands that never call the eLabFTW API, so API
// credentials are not required to run them.
const localOnly = "local-only"

var rootCmd = &cobra.Command{
	Use:   "elabsync",
	Short: "Bulk import, update and export for eLabFTW",
	Long: `elabsync moves CSV and XLSX tables in and out of an eLabFTW instance:
create records in bulk, update existing ones by id, export categories and
experiments back to tables, and serve a local form for all of it.

Connection settings come from the environment (or a .env file):
ELAB_API_URL and ELAB_API_TOKEN at minimum.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Overload overwrites existing env vars, matching the
		// expectation that the .env beside the tool wins.
		if err := godotenv.Overload(); err != nil {
			slog.Debug("no .env file found, using environment variables")
		}

		var (
			c   *config.Config
			err error
		)
		if cmd.Annotations[localOnly] == "true" {
			c, err = config.LoadLocal()
		} else {
			c, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
