package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tile-leaderboard/internal/domain"
)

// InsertTeam creates a team and returns its id
func (c *conn) InsertTeam(ctx context.Context, name string) (int64, error) {
	var id int64
	err := c.queryRow(ctx, `INSERT INTO teams (name) VALUES (?) RETURNING id`, name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting team %q: %w", name, err)
	}
	return id, nil
}

// InsertCompetitor creates a competitor; teamID may be nil for unassigned competitors
func (c *conn) InsertCompetitor(ctx context.Context, rsn string, teamID *int64) (int64, error) {
	var team sql.NullInt64
	if teamID != nil {
		team = sql.NullInt64{Int64: *teamID, Valid: true}
	}

	var id int64
	err := c.queryRow(ctx, `INSERT INTO competitors (rsn, team_id) VALUES (?, ?) RETURNING id`, rsn, team).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting competitor %q: %w", rsn, err)
	}
	return id, nil
}

// InsertTile creates a tile and returns its id
func (c *conn) InsertTile(ctx context.Context, tile domain.Tile) (int64, error) {
	if !tile.Difficulty.Valid() {
		return 0, fmt.Errorf("inserting tile %q: %w", tile.Name, domain.ErrInvalidDifficulty)
	}

	var id int64
	err := c.queryRow(ctx, `
		INSERT INTO tiles (name, description, difficulty, points)
		VALUES (?, ?, ?, ?)
		RETURNING id
	`, tile.Name, tile.Description, string(tile.Difficulty), tile.Points).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting tile %q: %w", tile.Name, err)
	}
	return id, nil
}

// AddCompletion records a completion; a repeated (competitor, tile) pair
// returns domain.ErrAlreadyCompleted
func (c *conn) AddCompletion(ctx context.Context, competitorID, tileID int64, completedAt time.Time) (int64, error) {
	var id int64
	err := c.queryRow(ctx, `
		INSERT INTO completions (competitor_id, tile_id, completed_at)
		VALUES (?, ?, ?)
		RETURNING id
	`, competitorID, tileID, c.d.timeArg(completedAt)).Scan(&id)
	if err != nil {
		if c.d.isUniqueViolation(err) {
			return 0, domain.ErrAlreadyCompleted
		}
		return 0, fmt.Errorf("inserting completion: %w", err)
	}
	return id, nil
}

// InsertAdmin stores an admin credential; the hash must already be computed
func (c *conn) InsertAdmin(ctx context.Context, username, passwordHash string) (int64, error) {
	var id int64
	err := c.queryRow(ctx, `
		INSERT INTO admin_users (username, password_hash)
		VALUES (?, ?)
		RETURNING id
	`, username, passwordHash).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting admin user: %w", err)
	}
	return id, nil
}

// CompetitorByRSN looks up a competitor with their team name
func (c *conn) CompetitorByRSN(ctx context.Context, rsn string) (*domain.Competitor, error) {
	var (
		competitor domain.Competitor
		teamID     sql.NullInt64
		teamName   sql.NullString
		createdAt  timestamp
	)
	err := c.queryRow(ctx, `
		SELECT c.id, c.rsn, c.team_id, t.name, c.created_at
		FROM competitors c
		LEFT JOIN teams t ON c.team_id = t.id
		WHERE c.rsn = ?
	`, rsn).Scan(&competitor.ID, &competitor.RSN, &teamID, &teamName, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrCompetitorNotFound
		}
		return nil, fmt.Errorf("getting competitor: %w", err)
	}

	if teamID.Valid {
		competitor.TeamID = &teamID.Int64
	}
	if teamName.Valid {
		competitor.TeamName = &teamName.String
	}
	competitor.CreatedAt = createdAt.Time
	return &competitor, nil
}

// SearchCompetitors returns up to limit competitors whose rsn starts with
// prefix, ignoring letter case, ordered by rsn
func (c *conn) SearchCompetitors(ctx context.Context, prefix string, limit int) ([]domain.Competitor, error) {
	rows, err := c.query(ctx, `
		SELECT c.id, c.rsn, c.team_id, t.name, c.created_at
		FROM competitors c
		LEFT JOIN teams t ON c.team_id = t.id
		WHERE c.rsn `+c.d.caseFoldLike+` ? ESCAPE '\'
		ORDER BY LOWER(c.rsn), c.rsn
		LIMIT ?
	`, likePrefix(prefix), limit)
	if err != nil {
		return nil, fmt.Errorf("searching competitors: %w", err)
	}
	defer rows.Close()

	matches := []domain.Competitor{}
	for rows.Next() {
		var (
			competitor domain.Competitor
			teamID     sql.NullInt64
			teamName   sql.NullString
			createdAt  timestamp
		)
		if err := rows.Scan(&competitor.ID, &competitor.RSN, &teamID, &teamName, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning competitor: %w", err)
		}
		if teamID.Valid {
			competitor.TeamID = &teamID.Int64
		}
		if teamName.Valid {
			competitor.TeamName = &teamName.String
		}
		competitor.CreatedAt = createdAt.Time
		matches = append(matches, competitor)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating competitors: %w", err)
	}
	return matches, nil
}

// TileByID looks up a single tile
func (c *conn) TileByID(ctx context.Context, id int64) (*domain.Tile, error) {
	var (
		tile      domain.Tile
		createdAt timestamp
	)
	err := c.queryRow(ctx, `
		SELECT id, name, COALESCE(description, ''), difficulty, points, created_at
		FROM tiles
		WHERE id = ?
	`, id).Scan(&tile.ID, &tile.Name, &tile.Description, &tile.Difficulty, &tile.Points, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTileNotFound
		}
		return nil, fmt.Errorf("getting tile: %w", err)
	}
	tile.CreatedAt = createdAt.Time
	return &tile, nil
}

// AdminByUsername looks up an admin credential
func (c *conn) AdminByUsername(ctx context.Context, username string) (*domain.AdminUser, error) {
	var (
		admin     domain.AdminUser
		createdAt timestamp
	)
	err := c.queryRow(ctx, `
		SELECT id, username, password_hash, created_at
		FROM admin_users
		WHERE username = ?
	`, username).Scan(&admin.ID, &admin.Username, &admin.PasswordHash, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrAdminNotFound
		}
		return nil, fmt.Errorf("getting admin user: %w", err)
	}
	admin.CreatedAt = createdAt.Time
	return &admin, nil
}

// ListTeams returns every team ordered by name
func (c *conn) ListTeams(ctx context.Context) ([]domain.Team, error) {
	rows, err := c.query(ctx, `SELECT id, name, created_at FROM teams ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing teams: %w", err)
	}
	defer rows.Close()

	teams := []domain.Team{}
	for rows.Next() {
		var (
			team      domain.Team
			createdAt timestamp
		)
		if err := rows.Scan(&team.ID, &team.Name, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning team: %w", err)
		}
		team.CreatedAt = createdAt.Time
		teams = append(teams, team)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating teams: %w", err)
	}
	return teams, nil
}
