package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/tile-leaderboard/internal/config"
	"github.com/tile-leaderboard/internal/domain"
	"github.com/tile-leaderboard/internal/metrics"
)

// Completion sources, used as metric labels
const (
	SourceAPI   = "api"
	SourceKafka = "kafka"
	SourceCLI   = "cli"
)

// SearchLimit caps the competitor search results
const SearchLimit = 10

// Store is the persistence the service reads and writes
type Store interface {
	Ping(ctx context.Context) error
	Stats(ctx context.Context) (domain.Stats, error)
	TeamStandings(ctx context.Context) ([]domain.TeamStanding, error)
	IndividualStandings(ctx context.Context, limit int) ([]domain.IndividualStanding, error)
	RecentCompletions(ctx context.Context, limit int) ([]domain.RecentCompletion, error)
	TileSummaries(ctx context.Context) ([]domain.TileSummary, error)
	TeamRosters(ctx context.Context) ([]domain.TeamRoster, error)
	CompetitorDetail(ctx context.Context, rsn string) (*domain.CompetitorDetail, error)
	CompetitorByRSN(ctx context.Context, rsn string) (*domain.Competitor, error)
	SearchCompetitors(ctx context.Context, prefix string, limit int) ([]domain.Competitor, error)
	TileByID(ctx context.Context, id int64) (*domain.Tile, error)
	AddCompletion(ctx context.Context, competitorID, tileID int64, completedAt time.Time) (int64, error)
	AdminByUsername(ctx context.Context, username string) (*domain.AdminUser, error)
}

// ViewCache holds a computed leaderboard view between requests
type ViewCache interface {
	GetLeaderboard(ctx context.Context) (*domain.LeaderboardView, bool, error)
	SetLeaderboard(ctx context.Context, view *domain.LeaderboardView) error
	Invalidate(ctx context.Context) error
}

// Broadcaster pushes completion events to live clients
type Broadcaster interface {
	BroadcastCompletion(event domain.CompletionEvent)
}

// LeaderboardService provides the aggregation views and completion recording
type LeaderboardService struct {
	store       Store
	cache       ViewCache
	broadcaster Broadcaster
	metrics     *metrics.Metrics
	config      *config.LeaderboardConfig
	demoMode    bool
	logger      *slog.Logger
	now         func() time.Time

	// generation counts invalidations; a refresh that overlaps one does not
	// write its view back
	cacheMu    sync.Mutex
	generation uint64
}

// Option configures a LeaderboardService
type Option func(*LeaderboardService)

// WithCache sets the view cache; the default caches nothing
func WithCache(cache ViewCache) Option {
	return func(s *LeaderboardService) {
		if cache != nil {
			s.cache = cache
		}
	}
}

// WithBroadcaster sets where recorded completions are announced
func WithBroadcaster(b Broadcaster) Option {
	return func(s *LeaderboardService) { s.broadcaster = b }
}

// WithMetrics records completions and cache lookups
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *LeaderboardService) { s.metrics = m }
}

// WithDemoMode reports demo mode in stats
func WithDemoMode(enabled bool) Option {
	return func(s *LeaderboardService) { s.demoMode = enabled }
}

// WithClock sets the time source for completions without a timestamp
func WithClock(now func() time.Time) Option {
	return func(s *LeaderboardService) { s.now = now }
}

// NewLeaderboardService creates a new leaderboard service
func NewLeaderboardService(st Store, cfg *config.LeaderboardConfig, logger *slog.Logger, opts ...Option) *LeaderboardService {
	s := &LeaderboardService{
		store:  st,
		cache:  NoopCache{},
		config: cfg,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Leaderboard returns the leaderboard page, served from cache when possible
func (s *LeaderboardService) Leaderboard(ctx context.Context) (*domain.LeaderboardView, error) {
	view, ok, err := s.cache.GetLeaderboard(ctx)
	if err != nil {
		s.logger.Warn("leaderboard cache read failed", "error", err)
	}
	s.metrics.RecordCacheLookup(ok)
	if ok {
		return view, nil
	}
	return s.Refresh(ctx)
}

// Refresh recomputes the leaderboard view and replaces the cached copy
func (s *LeaderboardService) Refresh(ctx context.Context) (*domain.LeaderboardView, error) {
	start := time.Now()
	s.cacheMu.Lock()
	generation := s.generation
	s.cacheMu.Unlock()
	view := &domain.LeaderboardView{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		standings, err := s.store.TeamStandings(gctx)
		view.TeamStandings = standings
		return err
	})
	g.Go(func() error {
		standings, err := s.store.IndividualStandings(gctx, s.config.IndividualLimit)
		view.IndividualStandings = standings
		return err
	})
	g.Go(func() error {
		recent, err := s.store.RecentCompletions(gctx, s.config.RecentLimit)
		view.RecentCompletions = recent
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("building leaderboard: %w", err)
	}
	view.GeneratedAt = s.now().UTC()
	s.metrics.ObserveRefresh(time.Since(start))

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.generation != generation {
		s.logger.Debug("leaderboard changed during refresh, not caching")
		return view, nil
	}
	if err := s.cache.SetLeaderboard(ctx, view); err != nil {
		s.logger.Warn("leaderboard cache write failed", "error", err)
	}
	return view, nil
}

// Invalidate drops the cached leaderboard and keeps in-flight refreshes from
// caching what they read before the change
func (s *LeaderboardService) Invalidate(ctx context.Context) error {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.generation++
	if err := s.cache.Invalidate(ctx); err != nil {
		return fmt.Errorf("invalidating leaderboard cache: %w", err)
	}
	return nil
}

// Tiles returns every tile with its completion count and completers
func (s *LeaderboardService) Tiles(ctx context.Context) ([]domain.TileSummary, error) {
	tiles, err := s.store.TileSummaries(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting tiles: %w", err)
	}
	return tiles, nil
}

// TilesByDifficulty returns the tiles of one tier
func (s *LeaderboardService) TilesByDifficulty(ctx context.Context, d domain.Difficulty) ([]domain.TileSummary, error) {
	tiles, err := s.Tiles(ctx)
	if err != nil {
		return nil, err
	}
	filtered := []domain.TileSummary{}
	for _, tile := range tiles {
		if tile.Difficulty == d {
			filtered = append(filtered, tile)
		}
	}
	return filtered, nil
}

// Teams returns the team rosters ordered by points
func (s *LeaderboardService) Teams(ctx context.Context) ([]domain.TeamRoster, error) {
	teams, err := s.store.TeamRosters(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting teams: %w", err)
	}
	return teams, nil
}

// Team returns one team's roster; unknown ids yield domain.ErrTeamNotFound
func (s *LeaderboardService) Team(ctx context.Context, id int64) (*domain.TeamRoster, error) {
	teams, err := s.Teams(ctx)
	if err != nil {
		return nil, err
	}
	for i := range teams {
		if teams[i].TeamID == id {
			return &teams[i], nil
		}
	}
	return nil, domain.ErrTeamNotFound
}

// SearchCompetitors returns competitors whose rsn starts with query, for
// autocomplete. A blank query matches nothing.
func (s *LeaderboardService) SearchCompetitors(ctx context.Context, query string) ([]domain.Competitor, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []domain.Competitor{}, nil
	}
	matches, err := s.store.SearchCompetitors(ctx, query, SearchLimit)
	if err != nil {
		return nil, fmt.Errorf("searching competitors: %w", err)
	}
	return matches, nil
}

// Competitor returns a competitor's detail page; unknown names yield
// domain.ErrCompetitorNotFound
func (s *LeaderboardService) Competitor(ctx context.Context, rsn string) (*domain.CompetitorDetail, error) {
	detail, err := s.store.CompetitorDetail(ctx, rsn)
	if err != nil {
		if errors.Is(err, domain.ErrCompetitorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("getting competitor: %w", err)
	}
	return detail, nil
}

// Stats returns the row counts and the demo mode flag
func (s *LeaderboardService) Stats(ctx context.Context) (domain.Stats, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("getting stats: %w", err)
	}
	stats.DemoMode = s.demoMode
	return stats, nil
}

// DemoMode reports whether the app runs on seeded demo data
func (s *LeaderboardService) DemoMode() bool {
	return s.demoMode
}

// Ready checks the store is reachable
func (s *LeaderboardService) Ready(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// RecordCompletion stores a completion, drops the cached views and
// announces the event. source labels the metric.
func (s *LeaderboardService) RecordCompletion(ctx context.Context, source string, sub domain.CompletionSubmission) (*domain.CompletionEvent, error) {
	if err := sub.Validate(); err != nil {
		s.metrics.RecordCompletion(source, "invalid")
		return nil, err
	}

	competitor, err := s.store.CompetitorByRSN(ctx, sub.RSN)
	if err != nil {
		s.metrics.RecordCompletion(source, outcome(err))
		return nil, err
	}
	tile, err := s.store.TileByID(ctx, sub.TileID)
	if err != nil {
		s.metrics.RecordCompletion(source, outcome(err))
		return nil, err
	}

	completedAt := s.now()
	if sub.CompletedAt != nil {
		completedAt = *sub.CompletedAt
	}
	completedAt = completedAt.UTC().Truncate(time.Second)

	if _, err := s.store.AddCompletion(ctx, competitor.ID, tile.ID, completedAt); err != nil {
		s.metrics.RecordCompletion(source, outcome(err))
		return nil, err
	}
	s.metrics.RecordCompletion(source, "recorded")

	if err := s.Invalidate(ctx); err != nil {
		s.logger.Warn("leaderboard cache invalidation failed", "error", err)
	}

	event := domain.CompletionEvent{
		RSN:         competitor.RSN,
		TeamName:    competitor.TeamName,
		TileID:      tile.ID,
		TileName:    tile.Name,
		Difficulty:  tile.Difficulty,
		Points:      tile.Points,
		CompletedAt: completedAt,
	}
	if s.broadcaster != nil {
		s.broadcaster.BroadcastCompletion(event)
	}

	s.logger.Info("completion recorded",
		"source", source,
		"rsn", event.RSN,
		"tile_id", event.TileID,
		"points", event.Points,
	)
	return &event, nil
}

// Authenticate checks an admin credential
func (s *LeaderboardService) Authenticate(ctx context.Context, username, password string) (*domain.AdminUser, error) {
	admin, err := s.store.AdminByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrAdminNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("authenticating admin: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)); err != nil {
		return nil, domain.ErrInvalidCredentials
	}
	return admin, nil
}

func outcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrAlreadyCompleted):
		return "duplicate"
	case domain.IsNotFoundError(err):
		return "not_found"
	default:
		return "error"
	}
}
