package store

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tile-leaderboard/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "test.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.ResetSchema(context.Background()))
	return s
}

type fixture struct {
	teams       map[string]int64
	competitors map[string]int64
	tiles       map[string]int64
}

// populate builds a small competition:
//
//	Alpha: ann (easy+hard = 12), bob (medium = 5)
//	Beta:  cat (extreme = 20)
//	Gamma: no members
//	dan has no team and completes easy
func populate(t *testing.T, s *Store) fixture {
	t.Helper()
	ctx := context.Background()
	f := fixture{
		teams:       map[string]int64{},
		competitors: map[string]int64{},
		tiles:       map[string]int64{},
	}

	for _, name := range []string{"Alpha", "Beta", "Gamma"} {
		id, err := s.InsertTeam(ctx, name)
		require.NoError(t, err)
		f.teams[name] = id
	}

	members := []struct {
		rsn  string
		team string
	}{
		{"ann", "Alpha"},
		{"bob", "Alpha"},
		{"cat", "Beta"},
		{"dan", ""},
	}
	for _, m := range members {
		var teamID *int64
		if m.team != "" {
			id := f.teams[m.team]
			teamID = &id
		}
		id, err := s.InsertCompetitor(ctx, m.rsn, teamID)
		require.NoError(t, err)
		f.competitors[m.rsn] = id
	}

	tiles := []domain.Tile{
		{Name: "easy", Description: "an easy one", Difficulty: domain.DifficultyEasy, Points: 2},
		{Name: "medium", Difficulty: domain.DifficultyMedium, Points: 5},
		{Name: "hard", Difficulty: domain.DifficultyHard, Points: 10},
		{Name: "extreme", Difficulty: domain.DifficultyExtreme, Points: 20},
	}
	for _, tile := range tiles {
		id, err := s.InsertTile(ctx, tile)
		require.NoError(t, err)
		f.tiles[tile.Name] = id
	}

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	completions := []struct {
		rsn  string
		tile string
		ago  time.Duration
	}{
		{"ann", "easy", 5 * time.Hour},
		{"ann", "hard", 1 * time.Hour},
		{"bob", "medium", 3 * time.Hour},
		{"cat", "extreme", 2 * time.Hour},
		{"dan", "easy", 0},
	}
	for _, c := range completions {
		_, err := s.AddCompletion(ctx, f.competitors[c.rsn], f.tiles[c.tile], base.Add(-c.ago))
		require.NoError(t, err)
	}
	return f
}

func TestInitialized(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "nested", "init.db"), logger)
	require.NoError(t, err)
	defer s.Close()

	ok, err := s.Initialized(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.ResetSchema(context.Background()))

	ok, err = s.Initialized(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	for _, table := range dropOrder {
		exists, err := s.TableExists(context.Background(), table)
		require.NoError(t, err)
		assert.True(t, exists, table)
	}
}

func TestResetSchemaClearsRows(t *testing.T) {
	s := newTestStore(t)
	populate(t, s)

	require.NoError(t, s.ResetSchema(context.Background()))

	stats, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.Stats{}, stats)
}

func TestTeamStandings(t *testing.T) {
	s := newTestStore(t)
	populate(t, s)

	standings, err := s.TeamStandings(context.Background())
	require.NoError(t, err)
	require.Len(t, standings, 3)

	assert.Equal(t, "Beta", standings[0].TeamName)
	assert.Equal(t, int64(20), standings[0].TotalPoints)
	assert.Equal(t, int64(1), standings[0].MemberCount)

	assert.Equal(t, "Alpha", standings[1].TeamName)
	assert.Equal(t, int64(17), standings[1].TotalPoints)
	assert.Equal(t, int64(3), standings[1].TotalCompletions)
	assert.Equal(t, int64(2), standings[1].MemberCount)

	assert.Equal(t, "Gamma", standings[2].TeamName)
	assert.Zero(t, standings[2].TotalPoints)
	assert.Zero(t, standings[2].TotalCompletions)
	assert.Zero(t, standings[2].MemberCount)
}

func TestTeamStandingsTieBreak(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Equal points: more completions first, then name.
	for _, name := range []string{"Zed", "Yak", "Xen"} {
		_, err := s.InsertTeam(ctx, name)
		require.NoError(t, err)
	}
	teams, err := s.ListTeams(ctx)
	require.NoError(t, err)
	ids := map[string]int64{}
	for _, team := range teams {
		ids[team.Name] = team.ID
	}

	four, err := s.InsertTile(ctx, domain.Tile{Name: "four", Difficulty: domain.DifficultyHard, Points: 4})
	require.NoError(t, err)
	two, err := s.InsertTile(ctx, domain.Tile{Name: "two", Difficulty: domain.DifficultyEasy, Points: 2})
	require.NoError(t, err)
	twoB, err := s.InsertTile(ctx, domain.Tile{Name: "two-b", Difficulty: domain.DifficultyEasy, Points: 2})
	require.NoError(t, err)

	zedID := ids["Zed"]
	zed, err := s.InsertCompetitor(ctx, "z", &zedID)
	require.NoError(t, err)
	yakID := ids["Yak"]
	yak, err := s.InsertCompetitor(ctx, "y", &yakID)
	require.NoError(t, err)

	now := time.Now()
	_, err = s.AddCompletion(ctx, zed, four, now)
	require.NoError(t, err)
	_, err = s.AddCompletion(ctx, yak, two, now)
	require.NoError(t, err)
	_, err = s.AddCompletion(ctx, yak, twoB, now)
	require.NoError(t, err)

	standings, err := s.TeamStandings(ctx)
	require.NoError(t, err)
	require.Len(t, standings, 3)
	assert.Equal(t, []string{"Yak", "Zed", "Xen"}, []string{
		standings[0].TeamName, standings[1].TeamName, standings[2].TeamName,
	})
}

func TestIndividualStandings(t *testing.T) {
	s := newTestStore(t)
	populate(t, s)

	standings, err := s.IndividualStandings(context.Background(), 15)
	require.NoError(t, err)
	require.Len(t, standings, 4)

	assert.Equal(t, "cat", standings[0].RSN)
	assert.Equal(t, "ann", standings[1].RSN)
	assert.Equal(t, int64(12), standings[1].TotalPoints)
	assert.Equal(t, int64(2), standings[1].CompletionsCount)

	for i := 1; i < len(standings); i++ {
		prev, cur := standings[i-1], standings[i]
		assert.True(t, prev.TotalPoints > cur.TotalPoints ||
			(prev.TotalPoints == cur.TotalPoints && prev.CompletionsCount >= cur.CompletionsCount))
	}

	last := standings[3]
	assert.Equal(t, "dan", last.RSN)
	assert.Nil(t, last.TeamName)

	limited, err := s.IndividualStandings(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestRecentCompletionsExcludeTeamless(t *testing.T) {
	s := newTestStore(t)
	populate(t, s)

	recent, err := s.RecentCompletions(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recent, 4)

	assert.Equal(t, "ann", recent[0].RSN)
	assert.Equal(t, "hard", recent[0].TileName)
	for i := 1; i < len(recent); i++ {
		assert.False(t, recent[i].CompletedAt.After(recent[i-1].CompletedAt))
	}
	for _, r := range recent {
		assert.NotEqual(t, "dan", r.RSN)
	}

	limited, err := s.RecentCompletions(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestAddCompletionRejectsDuplicate(t *testing.T) {
	s := newTestStore(t)
	f := populate(t, s)

	_, err := s.AddCompletion(context.Background(), f.competitors["ann"], f.tiles["easy"], time.Now())
	assert.ErrorIs(t, err, domain.ErrAlreadyCompleted)

	stats, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), stats.TotalCompletions)
}

func TestCompetitorDetail(t *testing.T) {
	s := newTestStore(t)
	populate(t, s)

	detail, err := s.CompetitorDetail(context.Background(), "ann")
	require.NoError(t, err)

	require.NotNil(t, detail.Competitor.TeamName)
	assert.Equal(t, "Alpha", *detail.Competitor.TeamName)
	require.Len(t, detail.Completions, 2)
	assert.Equal(t, "hard", detail.Completions[0].TileName)
	assert.Equal(t, "an easy one", detail.Completions[1].Description)
	assert.True(t, detail.Completions[0].Verified)

	assert.Equal(t, int64(2), detail.Summary.TotalCompletions)
	assert.Equal(t, int64(12), detail.Summary.TotalPoints)
	assert.Equal(t, int64(1), detail.Summary.EasyCount)
	assert.Equal(t, int64(1), detail.Summary.HardCount)
	assert.Equal(t, detail.Summary.TotalCompletions, detail.Summary.BucketTotal())
}

func TestCompetitorDetailNotFound(t *testing.T) {
	s := newTestStore(t)
	populate(t, s)

	_, err := s.CompetitorDetail(context.Background(), "nobody")
	assert.ErrorIs(t, err, domain.ErrCompetitorNotFound)
}

func TestCompetitorWithoutCompletions(t *testing.T) {
	s := newTestStore(t)
	_, err := s.InsertCompetitor(context.Background(), "fresh", nil)
	require.NoError(t, err)

	detail, err := s.CompetitorDetail(context.Background(), "fresh")
	require.NoError(t, err)
	assert.Nil(t, detail.Competitor.TeamName)
	assert.Empty(t, detail.Completions)
	assert.Equal(t, domain.CompetitorSummary{}, detail.Summary)
}

func TestTileSummaries(t *testing.T) {
	s := newTestStore(t)
	populate(t, s)

	summaries, err := s.TileSummaries(context.Background())
	require.NoError(t, err)
	require.Len(t, summaries, 4)

	names := make([]string, len(summaries))
	for i, summary := range summaries {
		names[i] = summary.Name
	}
	assert.Equal(t, []string{"easy", "medium", "hard", "extreme"}, names)

	assert.Equal(t, int64(2), summaries[0].CompletionCount)
	assert.Equal(t, []string{"ann", "dan"}, summaries[0].CompletedBy)
	assert.Equal(t, "an easy one", summaries[0].Description)
}

func TestTeamRosters(t *testing.T) {
	s := newTestStore(t)
	populate(t, s)

	rosters, err := s.TeamRosters(context.Background())
	require.NoError(t, err)
	require.Len(t, rosters, 3)

	alpha := rosters[1]
	assert.Equal(t, "Alpha", alpha.TeamName)
	// ann has two completions but appears once.
	assert.Equal(t, []string{"ann", "bob"}, alpha.Members)
	assert.Empty(t, rosters[2].Members)
}

func TestLookups(t *testing.T) {
	s := newTestStore(t)
	f := populate(t, s)
	ctx := context.Background()

	tile, err := s.TileByID(ctx, f.tiles["hard"])
	require.NoError(t, err)
	assert.Equal(t, domain.DifficultyHard, tile.Difficulty)

	_, err = s.TileByID(ctx, 9999)
	assert.ErrorIs(t, err, domain.ErrTileNotFound)

	_, err = s.InsertAdmin(ctx, "demo", "hash")
	require.NoError(t, err)
	admin, err := s.AdminByUsername(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, "hash", admin.PasswordHash)

	_, err = s.AdminByUsername(ctx, "root")
	assert.ErrorIs(t, err, domain.ErrAdminNotFound)
}

func TestInsertTileRejectsUnknownDifficulty(t *testing.T) {
	s := newTestStore(t)
	_, err := s.InsertTile(context.Background(), domain.Tile{Name: "odd", Difficulty: "Legendary", Points: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidDifficulty)
}

func TestWithTxRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx *Tx) error {
		if _, err := tx.InsertTeam(ctx, "Ghost"); err != nil {
			return err
		}
		return domain.ErrInternalError
	})
	assert.ErrorIs(t, err, domain.ErrInternalError)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalTeams)
}

func TestSearchCompetitors(t *testing.T) {
	s := newTestStore(t)
	f := populate(t, s)
	ctx := context.Background()

	_, err := s.InsertCompetitor(ctx, "Annie_B", nil)
	require.NoError(t, err)
	_, err = s.InsertCompetitor(ctx, "an%x", nil)
	require.NoError(t, err)

	matches, err := s.SearchCompetitors(ctx, "AN", 10)
	require.NoError(t, err)
	var names []string
	for _, m := range matches {
		names = append(names, m.RSN)
	}
	assert.Equal(t, []string{"an%x", "ann", "Annie_B"}, names)

	require.NotNil(t, matches[1].TeamName)
	assert.Equal(t, "Alpha", *matches[1].TeamName)
	assert.Equal(t, f.teams["Alpha"], *matches[1].TeamID)
	assert.Nil(t, matches[2].TeamName)

	// wildcards in the query match literally
	matches, err = s.SearchCompetitors(ctx, "an%", 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "an%x", matches[0].RSN)

	matches, err = s.SearchCompetitors(ctx, "annie_", 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)

	matches, err = s.SearchCompetitors(ctx, "a", 2)
	require.NoError(t, err)
	assert.Len(t, matches, 2)

	matches, err = s.SearchCompetitors(ctx, "zz", 10)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestLikePrefix(t *testing.T) {
	assert.Equal(t, `a\%b\_c%`, likePrefix(`a%b_c`))
	assert.Equal(t, `x\\%`, likePrefix(`x\`))
	assert.Equal(t, "LIKE", sqliteDialect.caseFoldLike)
	assert.Equal(t, "ILIKE", postgresDialect.caseFoldLike)
}

func TestRebind(t *testing.T) {
	query := "SELECT * FROM t WHERE a = ? AND b = ?"
	assert.Equal(t, query, sqliteDialect.rebind(query))
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", postgresDialect.rebind(query))
}

func TestGroupConcat(t *testing.T) {
	assert.Equal(t, "GROUP_CONCAT(DISTINCT c.rsn)", sqliteDialect.groupConcat("c.rsn", true))
	assert.Equal(t, "STRING_AGG(c.rsn, ',')", postgresDialect.groupConcat("c.rsn", false))
}

func TestTimestampScan(t *testing.T) {
	var ts timestamp
	require.NoError(t, ts.Scan("2024-05-01 12:30:00"))
	assert.Equal(t, time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC), ts.Time)

	require.NoError(t, ts.Scan(nil))
	assert.True(t, ts.Time.IsZero())

	assert.Error(t, ts.Scan("yesterday"))
}
