package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/elabsync/elabsync/internal/updater"
)

var (
	updateDownload bool
	updateDir      string
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Check GitHub for a newer release",
	Long: `Checks the latest published release against this build. With
--download the matching platform asset is saved to --dir; nothing is
ever installed automatically. Set GITHUB_TOKEN to lift the anonymous
API rate limit.`,
	Args:        cobra.NoArgs,
	Annotations: map[string]string{localOnly: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := []updater.Option{updater.WithTimeout(cfg.Update.Timeout)}
		if token := os.Getenv("GITHUB_TOKEN"); token != "" {
			opts = append(opts, updater.WithToken(token))
		}
		checker, err := updater.New(cfg.Update.Repo, opts...)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		checkCtx, cancel := context.WithTimeout(ctx, cfg.Update.Timeout)
		info, err := checker.Check(checkCtx, version, "")
		cancel()
		if errors.Is(err, updater.ErrNoReleases) {
			fmt.Printf("%s has no published releases yet\n", cfg.Update.Repo)
			return nil
		}
		if err != nil {
			return err
		}

		if !info.UpdateAvailable {
			fmt.Printf("already up to date (current %s, latest %s)\n", info.CurrentVersion, info.LatestVersion)
			return nil
		}

		fmt.Printf("update available: %s -> %s\n", info.CurrentVersion, info.LatestVersion)
		if !info.PublishedAt.IsZero() {
			fmt.Printf("published: %s\n", info.PublishedAt.Format("2006-01-02"))
		}
		if info.HTMLURL != "" {
			fmt.Printf("release page: %s\n", info.HTMLURL)
		}
		if info.AssetName == "" {
			fmt.Println("the release carries no downloadable asset")
			return nil
		}
		if !updateDownload {
			fmt.Printf("run again with --download to fetch %s\n", info.AssetName)
			return nil
		}

		dest := filepath.Join(updateDir, info.AssetName)
		if err := checker.Download(ctx, info.DownloadURL, dest); err != nil {
			return err
		}
		fmt.Printf("downloaded %s\n", dest)
		return nil
	},
}

func init() {
	updateCmd.Flags().BoolVar(&updateDownload, "download", false, "download the release asset")
	updateCmd.Flags().StringVar(&updateDir, "dir", ".", "directory to download into")
	rootCmd.AddCommand(updateCmd)
}
