// Package seed populates an empty store with the demo competition.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/tile-leaderboard/internal/config"
	"github.com/tile-leaderboard/internal/metrics"
	"github.com/tile-leaderboard/internal/store"
)

// Store is the persistence the seeder needs
type Store interface {
	Initialized(ctx context.Context) (bool, error)
	WithTx(ctx context.Context, fn func(tx *store.Tx) error) error
}

// Result summarizes a completed seed run
type Result struct {
	Teams       int
	Competitors int
	Tiles       int
	Completions int
}

// Seeder rebuilds the schema and inserts the demo data
type Seeder struct {
	store    Store
	locker   Locker
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
	hashCost int

	adminUsername string
	adminPassword string

	mu  sync.Mutex
	rng *rand.Rand
}

// Option configures a Seeder
type Option func(*Seeder)

// WithRand sets the random source used for completions
func WithRand(rng *rand.Rand) Option {
	return func(s *Seeder) { s.rng = rng }
}

// WithClock sets the reference time completions are drawn back from
func WithClock(now func() time.Time) Option {
	return func(s *Seeder) { s.now = now }
}

// WithLocker replaces the in-process seed lock
func WithLocker(l Locker) Option {
	return func(s *Seeder) { s.locker = l }
}

// WithMetrics records seed runs
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Seeder) { s.metrics = m }
}

// WithHashCost sets the bcrypt cost for the admin password
func WithHashCost(cost int) Option {
	return func(s *Seeder) { s.hashCost = cost }
}

// NewSeeder creates a seeder writing to st
func NewSeeder(st Store, demo *config.DemoConfig, logger *slog.Logger, opts ...Option) *Seeder {
	s := &Seeder{
		store:         st,
		locker:        NewLocalLock(),
		logger:        logger,
		now:           time.Now,
		hashCost:      bcrypt.DefaultCost,
		adminUsername: demo.AdminUsername,
		adminPassword: demo.AdminPassword,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		seed := uint64(s.now().UnixNano())
		s.rng = rand.New(rand.NewPCG(seed, seed>>1))
	}
	return s
}

// EnsureSeeded seeds the store only if the schema is missing. It reports
// whether this call did the seeding.
func (s *Seeder) EnsureSeeded(ctx context.Context) (bool, error) {
	ok, err := s.store.Initialized(ctx)
	if err != nil {
		return false, err
	}
	if ok {
		return false, nil
	}

	release, err := s.locker.Acquire(ctx)
	if err != nil {
		return false, err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("failed to release seed lock", "error", err)
		}
	}()

	// Another holder may have seeded while we waited.
	ok, err = s.store.Initialized(ctx)
	if err != nil {
		return false, err
	}
	if ok {
		s.logger.Info("store already seeded by another instance")
		return false, nil
	}

	if _, err := s.Seed(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Reseed regenerates the data under the seed lock so it cannot interleave
// with another instance's EnsureSeeded
func (s *Seeder) Reseed(ctx context.Context) (Result, error) {
	release, err := s.locker.Acquire(ctx)
	if err != nil {
		return Result{}, err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("failed to release seed lock", "error", err)
		}
	}()
	return s.Seed(ctx)
}

// Seed drops all data and inserts a fresh demo competition in one transaction
func (s *Seeder) Seed(ctx context.Context) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	hash, err := bcrypt.GenerateFromPassword([]byte(s.adminPassword), s.hashCost)
	if err != nil {
		s.metrics.RecordSeed("failure")
		return Result{}, fmt.Errorf("hashing admin password: %w", err)
	}

	var result Result
	err = s.store.WithTx(ctx, func(tx *store.Tx) error {
		result = Result{}
		if err := tx.ResetSchema(ctx); err != nil {
			return err
		}

		teamIDs := make(map[string]int64, len(TeamNames))
		for _, name := range TeamNames {
			id, err := tx.InsertTeam(ctx, name)
			if err != nil {
				return err
			}
			teamIDs[name] = id
			result.Teams++
		}

		competitorIDs := make([]int64, 0, len(Members))
		for _, m := range Members {
			teamID, ok := teamIDs[m.Team]
			if !ok {
				return fmt.Errorf("seeding competitor %q: unknown team %q", m.RSN, m.Team)
			}
			id, err := tx.InsertCompetitor(ctx, m.RSN, &teamID)
			if err != nil {
				return err
			}
			competitorIDs = append(competitorIDs, id)
			result.Competitors++
		}

		tileIDs := make([]int64, 0, len(Tiles))
		for _, tile := range Tiles {
			id, err := tx.InsertTile(ctx, tile)
			if err != nil {
				return err
			}
			tileIDs = append(tileIDs, id)
			result.Tiles++
		}

		now := s.now().UTC()
		for _, competitorID := range competitorIDs {
			n := minCompletions + s.rng.IntN(maxCompletions-minCompletions+1)
			for _, idx := range s.rng.Perm(len(tileIDs))[:n] {
				ago := time.Duration(s.rng.IntN(maxDaysAgo+1))*24*time.Hour +
					time.Duration(s.rng.IntN(maxHoursAgo+1))*time.Hour
				at := now.Add(-ago).Truncate(time.Second)
				if _, err := tx.AddCompletion(ctx, competitorID, tileIDs[idx], at); err != nil {
					return err
				}
				result.Completions++
			}
		}

		if _, err := tx.InsertAdmin(ctx, s.adminUsername, string(hash)); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		s.metrics.RecordSeed("failure")
		return Result{}, fmt.Errorf("seeding demo data: %w", err)
	}

	s.metrics.RecordSeed("success")
	s.logger.Info("seeded demo data",
		"teams", result.Teams,
		"competitors", result.Competitors,
		"tiles", result.Tiles,
		"completions", result.Completions,
		"duration", time.Since(start),
	)
	return result, nil
}
