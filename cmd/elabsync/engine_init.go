package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/elabsync/elabsync/internal/core"
	"github.com/elabsync/elabsync/internal/elabftw"
)

// newEngine wires the API client and sync engine from the loaded
// config.
func newEngine() *core.Engine {
	opts := []elabftw.Option{
		elabftw.WithTimeout(cfg.API.Timeout),
		elabftw.WithRateLimit(cfg.API.RequestsPerSecond, cfg.API.Burst),
		elabftw.WithPageLimits(cfg.API.PageLimit, cfg.API.ExperimentPageLimit, cfg.API.MinPageLimit),
		elabftw.WithMaxRetries(cfg.API.MaxRetries),
	}
	if !cfg.API.VerifyTLS {
		opts = append(opts, elabftw.WithInsecureTLS())
	}
	client := elabftw.NewClient(cfg.API.BaseURL, cfg.API.Token, opts...)

	engine := core.NewEngine(client, slog.Default())
	engine.SetMaxFileSize(cfg.Sync.MaxFileSize)
	engine.SetFailedRowsReport(cfg.Sync.FailedRowsReport)
	return engine
}

// newService wraps an engine with tracked-run bookkeeping for the form
// server.
func newService() *core.Service {
	limiter := core.NewRunLimiter(cfg.Sync.MaxConcurrentRuns, cfg.Sync.MaxWaitTime)
	svc := core.NewService(newEngine(), limiter, slog.Default())
	svc.SetTimeout(cfg.Sync.RunTimeout)
	return svc
}

// lookupProfile resolves a record type by key, with a helpful listing
// when the key is wrong.
func lookupProfile(key string) (core.Profile, error) {
	profile, ok := core.GetProfile(key)
	if ok {
		return profile, nil
	}
	keys := make([]string, 0)
	for _, p := range core.Profiles() {
		keys = append(keys, p.Info.Key)
	}
	return core.Profile{}, fmt.Errorf("unknown record type %q (available: %s)", key, strings.Join(keys, ", "))
}

// userError renders an error through the user-message catalog so CLI
// output matches what the form page would show.
func userError(err error) error {
	msg := core.MapError(err)
	return fmt.Errorf("%s (%s). %s", msg.Message, msg.Code, msg.Action)
}
