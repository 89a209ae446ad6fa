package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/tile-leaderboard/internal/config"
	"github.com/tile-leaderboard/internal/domain"
	"github.com/tile-leaderboard/internal/metrics"
	"github.com/tile-leaderboard/internal/seed"
	"github.com/tile-leaderboard/internal/store"
)

type memoryCache struct {
	mu          sync.Mutex
	view        *domain.LeaderboardView
	sets        int
	invalidated int
}

func (c *memoryCache) GetLeaderboard(context.Context) (*domain.LeaderboardView, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view, c.view != nil, nil
}

func (c *memoryCache) SetLeaderboard(_ context.Context, view *domain.LeaderboardView) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.view = view
	c.sets++
	return nil
}

func (c *memoryCache) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.view = nil
	c.invalidated++
	return nil
}

type recordingBroadcaster struct {
	events []domain.CompletionEvent
}

func (b *recordingBroadcaster) BroadcastCompletion(event domain.CompletionEvent) {
	b.events = append(b.events, event)
}

var testNow = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func seededStore(t *testing.T) *store.Store {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "svc.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	demo := config.DemoConfig{AdminUsername: "demo", AdminPassword: "demo123"}
	seeder := seed.NewSeeder(st, &demo, logger,
		seed.WithRand(rand.New(rand.NewPCG(7, 7))),
		seed.WithClock(func() time.Time { return testNow }),
		seed.WithHashCost(bcrypt.MinCost),
	)
	_, err = seeder.Seed(context.Background())
	require.NoError(t, err)
	return st
}

func newTestService(t *testing.T, st Store, opts ...Option) *LeaderboardService {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.LeaderboardConfig{IndividualLimit: 15, RecentLimit: 10}
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	return NewLeaderboardService(st, cfg, logger, opts...)
}

// freshTile finds a tile the competitor has not completed yet
func freshTile(t *testing.T, svc *LeaderboardService, rsn string) domain.TileSummary {
	t.Helper()
	tiles, err := svc.Tiles(context.Background())
	require.NoError(t, err)
	for _, tile := range tiles {
		done := false
		for _, who := range tile.CompletedBy {
			if who == rsn {
				done = true
				break
			}
		}
		if !done {
			return tile
		}
	}
	t.Fatalf("%s has completed every tile", rsn)
	return domain.TileSummary{}
}

func TestLeaderboardView(t *testing.T) {
	svc := newTestService(t, seededStore(t))

	view, err := svc.Leaderboard(context.Background())
	require.NoError(t, err)

	assert.Len(t, view.TeamStandings, 6)
	assert.Len(t, view.IndividualStandings, 15)
	assert.Len(t, view.RecentCompletions, 10)
	assert.Equal(t, testNow, view.GeneratedAt)

	for i := 1; i < len(view.RecentCompletions); i++ {
		assert.False(t, view.RecentCompletions[i].CompletedAt.After(view.RecentCompletions[i-1].CompletedAt))
	}
}

func TestTeamPointsMatchCompetitors(t *testing.T) {
	st := seededStore(t)
	svc := newTestService(t, st)
	ctx := context.Background()

	teams, err := svc.Teams(ctx)
	require.NoError(t, err)

	for _, team := range teams {
		var sum int64
		for _, rsn := range team.Members {
			detail, err := svc.Competitor(ctx, rsn)
			require.NoError(t, err)
			sum += detail.Summary.TotalPoints
		}
		assert.Equal(t, team.TotalPoints, sum, team.TeamName)
		assert.Equal(t, int64(len(team.Members)), team.MemberCount)
	}
}

func TestLeaderboardUsesCache(t *testing.T) {
	cache := &memoryCache{}
	m := metrics.New()
	svc := newTestService(t, seededStore(t), WithCache(cache), WithMetrics(m))
	ctx := context.Background()

	first, err := svc.Leaderboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.sets)

	second, err := svc.Leaderboard(ctx)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, cache.sets)
}

func TestRecordCompletion(t *testing.T) {
	cache := &memoryCache{}
	broadcaster := &recordingBroadcaster{}
	svc := newTestService(t, seededStore(t), WithCache(cache), WithBroadcaster(broadcaster))
	ctx := context.Background()

	before, err := svc.Competitor(ctx, "Zezima")
	require.NoError(t, err)
	tile := freshTile(t, svc, "Zezima")

	_, err = svc.Leaderboard(ctx)
	require.NoError(t, err)

	event, err := svc.RecordCompletion(ctx, SourceAPI, domain.CompletionSubmission{RSN: "Zezima", TileID: tile.ID})
	require.NoError(t, err)
	assert.Equal(t, tile.Points, event.Points)
	assert.Equal(t, testNow, event.CompletedAt)
	require.NotNil(t, event.TeamName)
	assert.Equal(t, "Iron Warriors", *event.TeamName)

	assert.Equal(t, 1, cache.invalidated)
	require.Len(t, broadcaster.events, 1)
	assert.Equal(t, "Zezima", broadcaster.events[0].RSN)

	after, err := svc.Competitor(ctx, "Zezima")
	require.NoError(t, err)
	assert.Equal(t, before.Summary.TotalPoints+tile.Points, after.Summary.TotalPoints)
	assert.Equal(t, tile.Name, after.Completions[0].TileName)

	_, err = svc.RecordCompletion(ctx, SourceAPI, domain.CompletionSubmission{RSN: "Zezima", TileID: tile.ID})
	assert.ErrorIs(t, err, domain.ErrAlreadyCompleted)
	assert.Len(t, broadcaster.events, 1)
}

func TestRecordCompletionRejects(t *testing.T) {
	svc := newTestService(t, seededStore(t))
	ctx := context.Background()

	tests := []struct {
		name string
		sub  domain.CompletionSubmission
		want error
	}{
		{"missing rsn", domain.CompletionSubmission{TileID: 1}, domain.ErrInvalidRequest},
		{"missing tile", domain.CompletionSubmission{RSN: "Woox"}, domain.ErrInvalidRequest},
		{"unknown competitor", domain.CompletionSubmission{RSN: "nobody", TileID: 1}, domain.ErrCompetitorNotFound},
		{"unknown tile", domain.CompletionSubmission{RSN: "Woox", TileID: 999}, domain.ErrTileNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RecordCompletion(ctx, SourceCLI, tt.sub)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestStatsCarriesDemoMode(t *testing.T) {
	st := seededStore(t)

	stats, err := newTestService(t, st, WithDemoMode(true)).Stats(context.Background())
	require.NoError(t, err)
	assert.True(t, stats.DemoMode)
	assert.Equal(t, int64(6), stats.TotalTeams)
	assert.Equal(t, int64(18), stats.TotalCompetitors)
	assert.Equal(t, int64(20), stats.TotalTiles)

	stats, err = newTestService(t, st).Stats(context.Background())
	require.NoError(t, err)
	assert.False(t, stats.DemoMode)
}

func TestCompetitorNotFound(t *testing.T) {
	svc := newTestService(t, seededStore(t))
	_, err := svc.Competitor(context.Background(), "unknown_name")
	assert.ErrorIs(t, err, domain.ErrCompetitorNotFound)
}

func TestAuthenticate(t *testing.T) {
	svc := newTestService(t, seededStore(t))
	ctx := context.Background()

	admin, err := svc.Authenticate(ctx, "demo", "demo123")
	require.NoError(t, err)
	assert.Equal(t, "demo", admin.Username)

	_, err = svc.Authenticate(ctx, "demo", "wrong")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, "root", "demo123")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

type failingStore struct {
	Store
	err error
}

func (f failingStore) TeamStandings(context.Context) ([]domain.TeamStanding, error) {
	return nil, f.err
}

func TestLeaderboardPropagatesQueryErrors(t *testing.T) {
	boom := errors.New("disk on fire")
	svc := newTestService(t, failingStore{Store: seededStore(t), err: boom})

	_, err := svc.Leaderboard(context.Background())
	assert.ErrorIs(t, err, boom)
}

// gatedStore holds TeamStandings until release is closed
type gatedStore struct {
	Store
	entered chan struct{}
	release chan struct{}
}

func (g gatedStore) TeamStandings(ctx context.Context) ([]domain.TeamStanding, error) {
	close(g.entered)
	<-g.release
	return g.Store.TeamStandings(ctx)
}

func TestRefreshSkipsCacheAfterInvalidate(t *testing.T) {
	cache := &memoryCache{}
	gated := gatedStore{Store: seededStore(t), entered: make(chan struct{}), release: make(chan struct{})}
	svc := newTestService(t, gated, WithCache(cache))
	ctx := context.Background()

	type result struct {
		view *domain.LeaderboardView
		err  error
	}
	done := make(chan result, 1)
	go func() {
		view, err := svc.Refresh(ctx)
		done <- result{view, err}
	}()

	<-gated.entered
	require.NoError(t, svc.Invalidate(ctx))
	close(gated.release)

	res := <-done
	require.NoError(t, res.err)
	assert.NotNil(t, res.view)
	assert.Zero(t, cache.sets)
	assert.Equal(t, 1, cache.invalidated)

	// the next refresh starts after the invalidation and is cached
	gated2 := gatedStore{Store: gated.Store, entered: make(chan struct{}), release: make(chan struct{})}
	close(gated2.release)
	svc.store = gated2
	_, err := svc.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.sets)
}

func TestSearchCompetitors(t *testing.T) {
	svc := newTestService(t, seededStore(t))
	ctx := context.Background()

	matches, err := svc.SearchCompetitors(ctx, "  zez ")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "Zezima", matches[0].RSN)
	assert.NotNil(t, matches[0].TeamName)

	matches, err = svc.SearchCompetitors(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, matches)
	assert.NotNil(t, matches)
}

func TestTeamAndTileFilters(t *testing.T) {
	svc := newTestService(t, seededStore(t))
	ctx := context.Background()

	teams, err := svc.Teams(ctx)
	require.NoError(t, err)
	team, err := svc.Team(ctx, teams[0].TeamID)
	require.NoError(t, err)
	assert.Equal(t, teams[0].TeamName, team.TeamName)

	_, err = svc.Team(ctx, -1)
	assert.ErrorIs(t, err, domain.ErrTeamNotFound)

	hard, err := svc.TilesByDifficulty(ctx, domain.DifficultyHard)
	require.NoError(t, err)
	require.NotEmpty(t, hard)
	for _, tile := range hard {
		assert.Equal(t, domain.DifficultyHard, tile.Difficulty)
	}
}
