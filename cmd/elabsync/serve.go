package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/elabsync/elabsync/internal/web"
)

var (
	servePort      int
	serveNoBrowser bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the local sync form",
	Long: `Starts a local web form for importing, updating and exporting without
the command line. The server binds to loopback and exits when the page's
quit button is pressed or the process receives an interrupt.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if servePort != 0 {
			cfg.Server.Port = servePort
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		service := newService()
		server := web.NewServer(service, cfg)

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start()
		}()

		url := "http://" + browserHost() + ":" + fmt.Sprint(cfg.Server.Port)
		slog.Info("form server listening", "url", url)

		if cfg.Server.OpenBrowser && !serveNoBrowser {
			// Give the listener a moment before pointing a browser at it.
			time.AfterFunc(time.Second, func() {
				if err := openBrowser(url); err != nil {
					slog.Warn("could not open browser", "error", err, "url", url)
				}
			})
		}

		select {
		case err := <-errCh:
			// The listener died before anyone asked it to.
			return fmt.Errorf("server: %w", err)
		case <-ctx.Done():
			slog.Info("interrupt received, shutting down")
		case <-server.ShutdownRequested():
			slog.Info("shutdown requested from the page")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Let in-flight runs finish before the listener goes away; their
		// progress streams live on server connections.
		if err := service.Drain(shutdownCtx); err != nil {
			slog.Warn("active runs did not finish in time", "error", err)
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (default from config)")
	serveCmd.Flags().BoolVar(&serveNoBrowser, "no-browser", false, "do not open the form in a browser")
	rootCmd.AddCommand(serveCmd)
}

// browserHost is the host a local browser should use; binding to all
// interfaces still means browsing via loopback.
func browserHost() string {
	host := cfg.Server.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		return "127.0.0.1"
	}
	return host
}

// openBrowser opens url in the platform's default browser.
func openBrowser(url string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		return exec.Command("xdg-open", url).Start()
	}
}
