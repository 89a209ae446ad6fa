package store

import (
	"context"
	"fmt"
)

// Table names, in creation order
const (
	TableTeams       = "teams"
	TableCompetitors = "competitors"
	TableTiles       = "tiles"
	TableCompletions = "completions"
	TableAdminUsers  = "admin_users"
)

// dropOrder lists tables children first so foreign keys never dangle
var dropOrder = []string{
	TableCompletions,
	TableAdminUsers,
	TableCompetitors,
	TableTiles,
	TableTeams,
}

func (d *dialect) schema() []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE teams (
			id %[1]s,
			name TEXT NOT NULL UNIQUE,
			created_at %[2]s DEFAULT CURRENT_TIMESTAMP
		)`, d.idColumn, d.timestampType),
		fmt.Sprintf(`CREATE TABLE competitors (
			id %[1]s,
			rsn TEXT NOT NULL UNIQUE,
			team_id BIGINT REFERENCES teams (id),
			created_at %[2]s DEFAULT CURRENT_TIMESTAMP
		)`, d.idColumn, d.timestampType),
		fmt.Sprintf(`CREATE TABLE tiles (
			id %[1]s,
			name TEXT NOT NULL,
			description TEXT,
			difficulty TEXT DEFAULT 'Medium',
			points INTEGER DEFAULT 1 CHECK (points > 0),
			created_at %[2]s DEFAULT CURRENT_TIMESTAMP
		)`, d.idColumn, d.timestampType),
		fmt.Sprintf(`CREATE TABLE completions (
			id %[1]s,
			competitor_id BIGINT NOT NULL REFERENCES competitors (id),
			tile_id BIGINT NOT NULL REFERENCES tiles (id),
			completed_at %[2]s DEFAULT CURRENT_TIMESTAMP,
			verified BOOLEAN DEFAULT %[3]s,
			UNIQUE (competitor_id, tile_id)
		)`, d.idColumn, d.timestampType, d.trueLiteral),
		fmt.Sprintf(`CREATE TABLE admin_users (
			id %[1]s,
			username TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			created_at %[2]s DEFAULT CURRENT_TIMESTAMP
		)`, d.idColumn, d.timestampType),
		`CREATE INDEX idx_competitors_team ON competitors (team_id)`,
		`CREATE INDEX idx_completions_tile ON completions (tile_id)`,
		`CREATE INDEX idx_completions_completed_at ON completions (completed_at DESC)`,
	}
}

// ResetSchema drops every table and recreates the empty schema
func (c *conn) ResetSchema(ctx context.Context) error {
	for _, table := range dropOrder {
		if _, err := c.exec(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
			return fmt.Errorf("dropping table %s: %w", table, err)
		}
	}
	for _, stmt := range c.d.schema() {
		if _, err := c.exec(ctx, stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Initialized reports whether the schema is present
func (c *conn) Initialized(ctx context.Context) (bool, error) {
	return c.TableExists(ctx, TableTeams)
}

// TableExists checks the schema catalog for a table
func (c *conn) TableExists(ctx context.Context, name string) (bool, error) {
	var count int64
	if err := c.queryRow(ctx, c.d.tableExistsQuery, name).Scan(&count); err != nil {
		return false, fmt.Errorf("checking table existence: %w", err)
	}
	return count > 0, nil
}
