package core

// service.go tracks sync runs for callers that cannot block on one,
// like the form server. A run started here executes in a background
// goroutine; the caller gets a run id back immediately and follows the
// run through a subscription channel or by polling. Finished runs stay
// queryable for a few minutes, then drop out of tracking.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/elabsync/elabsync/internal/elabftw"
	"github.com/elabsync/elabsync/internal/logging"
)

// DefaultRunTimeout caps the wall clock of one tracked run.
const DefaultRunTimeout = 30 * time.Minute

// runRetention is how long a finished run stays queryable.
const runRetention = 5 * time.Minute

// Service wraps an Engine with run tracking and concurrency control.
type Service struct {
	engine  *Engine
	limiter *RunLimiter
	log     *slog.Logger
	timeout time.Duration

	mu   sync.RWMutex
	runs map[string]*activeRun
}

// activeRun is the tracked state of one background run.
type activeRun struct {
	ID         string
	Cancel     context.CancelFunc
	Done       chan struct{}
	Result     *RunResult
	ListenerMu sync.Mutex
	Progress   RunProgress
	Listeners  []chan RunProgress
}

// NewService creates a service around an engine. A nil limiter or
// logger falls back to defaults.
func NewService(engine *Engine, limiter *RunLimiter, log *slog.Logger) *Service {
	if limiter == nil {
		limiter = NewRunLimiter(0, 0)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		engine:  engine,
		limiter: limiter,
		log:     log,
		timeout: DefaultRunTimeout,
		runs:    make(map[string]*activeRun),
	}
}

// SetTimeout overrides the per-run wall clock limit.
func (s *Service) SetTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

// ListProfiles returns the registered profiles for selection forms.
func (s *Service) ListProfiles() []ProfileInfo {
	profiles := Profiles()
	infos := make([]ProfileInfo, len(profiles))
	for i, p := range profiles {
		infos[i] = p.Info
	}
	return infos
}

// Categories lists the server's resource categories for selection.
func (s *Service) Categories(ctx context.Context) ([]elabftw.Category, error) {
	return s.engine.Categories(ctx)
}

// LimiterStatus reports run slot usage for the health endpoint.
func (s *Service) LimiterStatus() RunLimiterStatus {
	return s.limiter.Status()
}

// StartRun begins a tracked sync run and returns its id immediately.
// Use SubscribeProgress for updates and GetRunResult for the outcome.
// ErrTooManyRuns comes back when no run slot frees up in time.
func (s *Service) StartRun(ctx context.Context, profileKey string, mode Mode, filePath, fileName string, categoryID int) (string, error) {
	profile, ok := GetProfile(profileKey)
	if !ok {
		return "", fmt.Errorf("unknown profile: %s", profileKey)
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return "", err
	}

	runID := uuid.New().String()

	// The run outlives the request that started it, so it gets its own
	// context bounded by the service timeout.
	runCtx, cancel := context.WithTimeout(context.Background(), s.timeout)
	runCtx = logging.ContextWithRunID(runCtx, runID)

	run := &activeRun{
		ID:     runID,
		Cancel: cancel,
		Done:   make(chan struct{}),
		Progress: RunProgress{
			RunID:      runID,
			ProfileKey: profileKey,
			Mode:       mode,
			Phase:      PhaseStarting,
			FileName:   fileName,
		},
		Listeners: make([]chan RunProgress, 0),
	}

	s.mu.Lock()
	s.runs[runID] = run
	s.mu.Unlock()

	req := RunRequest{
		RunID:      runID,
		Profile:    profile,
		Mode:       mode,
		FilePath:   filePath,
		FileName:   fileName,
		CategoryID: categoryID,
		Progress:   run.observe,
	}

	go func() {
		defer s.limiter.Release()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("panic in run",
					"run_id", runID,
					"profile", profileKey,
					"panic", r,
				)
				run.setPhase(PhaseFailed, fmt.Sprintf("internal error: %v", r))
				run.closeListeners()
				close(run.Done)
				s.cleanup(runID, runRetention)
			}
		}()
		s.execute(runCtx, run, req)
	}()

	return runID, nil
}

// execute drives one tracked run to completion and records its result.
func (s *Service) execute(ctx context.Context, run *activeRun, req RunRequest) {
	defer run.Cancel()
	defer func() {
		run.closeListeners()
		close(run.Done)
		s.cleanup(run.ID, runRetention)
	}()

	result, err := s.engine.Run(ctx, req)
	switch {
	case err == nil:
		// The engine already announced PhaseComplete.
	case errors.Is(err, context.Canceled):
		run.setPhase(PhaseCancelled, "run cancelled")
	case errors.Is(err, context.DeadlineExceeded):
		run.setPhase(PhaseFailed, "run timed out")
	default:
		run.setPhase(PhaseFailed, err.Error())
	}

	if result == nil {
		result = &RunResult{
			RunID:      req.RunID,
			ProfileKey: req.Profile.Info.Key,
			Mode:       req.Mode,
			FileName:   req.FileName,
		}
	}
	if err != nil && result.Error == "" {
		result.Error = err.Error()
	}
	run.Result = result
}

// SubscribeProgress returns a channel receiving progress updates. The
// current state is delivered right away and the channel closes when the
// run finishes.
func (s *Service) SubscribeProgress(runID string) (<-chan RunProgress, error) {
	s.mu.RLock()
	run, ok := s.runs[runID]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("run not found: %s", runID)
	}

	ch := make(chan RunProgress, 10)

	run.ListenerMu.Lock()
	run.Listeners = append(run.Listeners, ch)
	select {
	case ch <- run.Progress:
	default:
	}
	run.ListenerMu.Unlock()

	return ch, nil
}

// CancelRun cancels an in-progress run.
func (s *Service) CancelRun(runID string) error {
	s.mu.RLock()
	run, ok := s.runs[runID]
	s.mu.RUnlock()

	if !ok {
		return fmt.Errorf("run not found: %s", runID)
	}

	run.Cancel()
	return nil
}

// GetRunResult returns a run's outcome, blocking until it finishes.
func (s *Service) GetRunResult(runID string) (*RunResult, error) {
	s.mu.RLock()
	run, ok := s.runs[runID]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("run not found: %s", runID)
	}

	<-run.Done

	return run.Result, nil
}

// GetRunProgress returns the current progress without blocking.
func (s *Service) GetRunProgress(runID string) (RunProgress, error) {
	s.mu.RLock()
	run, ok := s.runs[runID]
	s.mu.RUnlock()

	if !ok {
		return RunProgress{}, fmt.Errorf("run not found: %s", runID)
	}

	return run.snapshot(), nil
}

// Export runs an export synchronously. Exports read and write but never
// modify the server, so they bypass run tracking.
func (s *Service) Export(ctx context.Context, req ExportRequest) (*ExportResult, error) {
	return s.engine.Export(ctx, req)
}

// Drain waits for every active run to finish, for shutdown.
func (s *Service) Drain(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// observe is the engine's progress callback for a tracked run.
func (run *activeRun) observe(p RunProgress) {
	run.ListenerMu.Lock()
	run.Progress = p
	for _, ch := range run.Listeners {
		select {
		case ch <- p:
		default:
			// Listener is slow, skip this update
		}
	}
	run.ListenerMu.Unlock()
}

// setPhase moves the run's visible state to a terminal phase and tells
// the listeners.
func (run *activeRun) setPhase(phase RunPhase, errMsg string) {
	run.ListenerMu.Lock()
	run.Progress.Phase = phase
	run.Progress.Error = errMsg
	p := run.Progress
	for _, ch := range run.Listeners {
		select {
		case ch <- p:
		default:
		}
	}
	run.ListenerMu.Unlock()
}

// snapshot reads the run's progress under its lock.
func (run *activeRun) snapshot() RunProgress {
	run.ListenerMu.Lock()
	defer run.ListenerMu.Unlock()
	return run.Progress
}

// closeListeners closes all listener channels.
func (run *activeRun) closeListeners() {
	run.ListenerMu.Lock()
	defer run.ListenerMu.Unlock()

	for _, ch := range run.Listeners {
		close(ch)
	}
	run.Listeners = nil
}

// cleanup removes the run from tracking after a delay.
func (s *Service) cleanup(runID string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.runs, runID)
		s.mu.Unlock()
	})
}
