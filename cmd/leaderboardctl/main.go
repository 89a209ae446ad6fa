package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/tile-leaderboard/internal/config"
	"github.com/tile-leaderboard/internal/domain"
	"github.com/tile-leaderboard/internal/redis"
	"github.com/tile-leaderboard/internal/seed"
	"github.com/tile-leaderboard/internal/service"
	"github.com/tile-leaderboard/internal/store"
)

// cli carries the flags shared by every subcommand
type cli struct {
	configPath  string
	databaseDir string
	verbose     bool
}

// app is the set of opened dependencies a subcommand works with
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *store.Store
	redis   *goredis.Client
	service *service.LeaderboardService
}

func (a *app) Close() {
	if a.redis != nil {
		a.redis.Close()
	}
	a.store.Close()
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "leaderboardctl",
		Short: "Operate the tile leaderboard store",
		Long: `Administrative commands for the tile leaderboard.

Available subcommands:
  seed     - Populate the demo data set
  stats    - Print row counts
  teams    - List teams
  complete - Record a tile completion`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "config.yaml", "Path to configuration file")
	root.PersistentFlags().StringVar(&c.databaseDir, "database-dir", "", "Directory of the SQLite file (overrides config)")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Log at debug level")

	root.AddCommand(c.seedCmd(), c.statsCmd(), c.teamsCmd(), c.completeCmd())
	return root
}

// open loads configuration and connects to the store and, when enabled, Redis.
// A missing config file means defaults; any other load error is returned.
func (c *cli) open(ctx context.Context, stderr io.Writer) (*app, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		cfg = config.DefaultConfig()
	}
	if c.databaseDir != "" {
		cfg.Storage.Dir = c.databaseDir
	}

	level := cfg.Log.SlogLevel()
	if c.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	st, err := store.Open(ctx, &cfg.Storage, logger)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, store: st}
	opts := []service.Option{service.WithDemoMode(cfg.Demo.Enabled)}
	if cfg.Redis.Enabled {
		client, err := redis.NewClient(ctx, &cfg.Redis)
		if err != nil {
			st.Close()
			return nil, err
		}
		a.redis = client
		opts = append(opts, service.WithCache(redis.NewViewCache(client, cfg.Redis.CacheTTL, logger)))
	}
	a.service = service.NewLeaderboardService(st, &cfg.Leaderboard, logger, opts...)
	return a, nil
}

func (c *cli) seedCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Populate the demo data set",
		Long: `Create the schema and demo data when the store is empty.

With --force the existing tables are dropped and the data regenerated under
the seed lock, and the cached leaderboard is dropped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := c.open(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			var opts []seed.Option
			if a.redis != nil {
				opts = append(opts, seed.WithLocker(redis.NewSeedLock(a.redis, a.cfg.Redis.LockTTL, a.logger)))
			}
			seeder := seed.NewSeeder(a.store, &a.cfg.Demo, a.logger, opts...)

			out := cmd.OutOrStdout()
			if !force {
				seeded, err := seeder.EnsureSeeded(ctx)
				if err != nil {
					return err
				}
				if !seeded {
					fmt.Fprintln(out, "store already seeded; use --force to regenerate")
					return nil
				}
				fmt.Fprintln(out, "seeded demo data")
				return nil
			}

			res, err := seeder.Reseed(ctx)
			if err != nil {
				return err
			}
			if err := a.service.Invalidate(ctx); err != nil {
				return err
			}
			fmt.Fprintf(out, "seeded %d teams, %d competitors, %d tiles, %d completions\n",
				res.Teams, res.Competitors, res.Tiles, res.Completions)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Drop existing data and reseed")
	return cmd
}

func (c *cli) statsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print row counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.open(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.service.Stats(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(stats)
			}
			fmt.Fprintf(out, "teams:       %d\n", stats.TotalTeams)
			fmt.Fprintf(out, "competitors: %d\n", stats.TotalCompetitors)
			fmt.Fprintf(out, "tiles:       %d\n", stats.TotalTiles)
			fmt.Fprintf(out, "completions: %d\n", stats.TotalCompletions)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func (c *cli) teamsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "teams",
		Short: "List teams",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.open(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			teams, err := a.store.ListTeams(cmd.Context())
			if err != nil {
				return err
			}
			for _, team := range teams {
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", team.ID, team.Name)
			}
			return nil
		},
	}
}

func (c *cli) completeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "complete <rsn> <tile-id>",
		Short: "Record a tile completion",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tileID, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("%w: tile id %q is not a number", domain.ErrInvalidRequest, args[1])
			}

			a, err := c.open(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			event, err := a.service.RecordCompletion(cmd.Context(), service.SourceCLI, domain.CompletionSubmission{
				RSN:    args[0],
				TileID: tileID,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s completed %q for %d points\n", event.RSN, event.TileName, event.Points)
			return nil
		},
	}
}
