package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tile-leaderboard/internal/config"
	"github.com/tile-leaderboard/internal/domain"
)

// Refresher recomputes and caches the leaderboard view
type Refresher interface {
	Refresh(ctx context.Context) (*domain.LeaderboardView, error)
}

// StandingsBroadcaster pushes refreshed standings to live clients
type StandingsBroadcaster interface {
	BroadcastStandings(view *domain.LeaderboardView)
}

// RefreshWorker periodically rebuilds the leaderboard view so the cache stays
// warm and connected clients see standings change
type RefreshWorker struct {
	refresher   Refresher
	broadcaster StandingsBroadcaster
	config      *config.RefreshConfig
	logger      *slog.Logger
	stopCh      chan struct{}
	doneCh      chan struct{}
	mu          sync.Mutex
	running     bool
}

// NewRefreshWorker creates a new refresh worker; broadcaster may be nil
func NewRefreshWorker(
	refresher Refresher,
	broadcaster StandingsBroadcaster,
	cfg *config.RefreshConfig,
	logger *slog.Logger,
) *RefreshWorker {
	return &RefreshWorker{
		refresher:   refresher,
		broadcaster: broadcaster,
		config:      cfg,
		logger:      logger,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// Start begins the background refresh loop
func (w *RefreshWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("refresh worker started", "interval", w.config.Interval)

	go w.run(ctx)
	return nil
}

// Stop stops the refresh loop and waits for it to exit
func (w *RefreshWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.logger.Info("refresh worker stopped")
	return nil
}

// run is the main worker loop
func (w *RefreshWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.RefreshNow(ctx)
		}
	}
}

// RefreshNow runs a single refresh cycle
func (w *RefreshWorker) RefreshNow(ctx context.Context) {
	startTime := time.Now()

	view, err := w.refresher.Refresh(ctx)
	if err != nil {
		w.logger.Error("failed to refresh leaderboard", "error", err)
		return
	}

	if w.broadcaster != nil {
		w.broadcaster.BroadcastStandings(view)
	}

	w.logger.Debug("leaderboard refreshed",
		"teams", len(view.TeamStandings),
		"duration", time.Since(startTime),
	)
}
