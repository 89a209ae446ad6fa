package service

import (
	"context"

	"github.com/tile-leaderboard/internal/domain"
)

// NoopCache is the ViewCache used when Redis is disabled. Every lookup misses.
type NoopCache struct{}

// GetLeaderboard always misses
func (NoopCache) GetLeaderboard(context.Context) (*domain.LeaderboardView, bool, error) {
	return nil, false, nil
}

// SetLeaderboard discards the view
func (NoopCache) SetLeaderboard(context.Context, *domain.LeaderboardView) error {
	return nil
}

// Invalidate does nothing
func (NoopCache) Invalidate(context.Context) error {
	return nil
}
