package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tile-leaderboard/internal/config"
	"github.com/tile-leaderboard/internal/domain"
)

func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	return runWith(t, dir, filepath.Join(dir, "missing.yaml"), "", args...)
}

// runWith executes the CLI against configPath, with Redis at redisAddr when set
func runWith(t *testing.T, dir, configPath, redisAddr string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("REDIS_ADDR", redisAddr)
	t.Setenv("KAFKA_BROKERS", "")

	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--config", configPath, "--database-dir", dir}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSeedStatsComplete(t *testing.T) {
	dir := t.TempDir()

	out, err := run(t, dir, "seed")
	require.NoError(t, err)
	assert.Contains(t, out, "seeded demo data")

	out, err = run(t, dir, "seed")
	require.NoError(t, err)
	assert.Contains(t, out, "already seeded")

	out, err = run(t, dir, "stats", "--json")
	require.NoError(t, err)
	var before domain.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &before))
	assert.Equal(t, int64(6), before.TotalTeams)
	assert.Equal(t, int64(18), before.TotalCompetitors)
	assert.Equal(t, int64(20), before.TotalTiles)

	// Some tile is still open for Faux since nobody completes more than 12
	var recorded bool
	for tile := 1; tile <= 20 && !recorded; tile++ {
		out, err = run(t, dir, "complete", "Faux", strconv.Itoa(tile))
		if err == nil {
			recorded = true
			assert.Contains(t, out, "Faux completed")
			continue
		}
		require.ErrorIs(t, err, domain.ErrAlreadyCompleted)
	}
	require.True(t, recorded)

	out, err = run(t, dir, "stats", "--json")
	require.NoError(t, err)
	var after domain.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &after))
	assert.Equal(t, before.TotalCompletions+1, after.TotalCompletions)
}

func TestSeedForce(t *testing.T) {
	dir := t.TempDir()

	_, err := run(t, dir, "seed")
	require.NoError(t, err)

	out, err := run(t, dir, "seed", "--force")
	require.NoError(t, err)
	assert.Contains(t, out, "seeded 6 teams, 18 competitors, 20 tiles")
}

func TestSeedForceDropsCachedView(t *testing.T) {
	dir := t.TempDir()
	mr := miniredis.RunT(t)

	_, err := runWith(t, dir, filepath.Join(dir, "missing.yaml"), mr.Addr(), "seed")
	require.NoError(t, err)

	require.NoError(t, mr.Set("tiles:view:leaderboard", `{"team_standings":[]}`))
	out, err := runWith(t, dir, filepath.Join(dir, "missing.yaml"), mr.Addr(), "seed", "--force")
	require.NoError(t, err)
	assert.Contains(t, out, "seeded 6 teams")

	assert.False(t, mr.Exists("tiles:view:leaderboard"))
	assert.False(t, mr.Exists("tiles:lock:seed"))
}

func TestInvalidConfigIsAnError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  driver: mysql\n"), 0o600))

	_, err := runWith(t, dir, path, "", "stats")
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	require.NoError(t, os.WriteFile(path, []byte("storage: [\n"), 0o600))
	_, err = runWith(t, dir, path, "", "stats")
	assert.Error(t, err)
}

func TestTeams(t *testing.T) {
	dir := t.TempDir()
	_, err := run(t, dir, "seed")
	require.NoError(t, err)

	out, err := run(t, dir, "teams")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 6)
	assert.Contains(t, out, "Iron Warriors")
}

func TestCompleteRejectsBadInput(t *testing.T) {
	dir := t.TempDir()
	_, err := run(t, dir, "seed")
	require.NoError(t, err)

	_, err = run(t, dir, "complete", "Faux", "abc")
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = run(t, dir, "complete", "nobody", "1")
	assert.ErrorIs(t, err, domain.ErrCompetitorNotFound)

	_, err = run(t, dir, "complete", "Faux")
	assert.Error(t, err)
}
