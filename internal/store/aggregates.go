package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/tile-leaderboard/internal/domain"
)

// difficultyOrder ranks tiles Easy first and unknown tiers last
func difficultyOrder(column string) string {
	var b strings.Builder
	b.WriteString("CASE " + column)
	for i, d := range domain.Difficulties {
		fmt.Fprintf(&b, " WHEN '%s' THEN %d", d, i)
	}
	fmt.Fprintf(&b, " ELSE %d END", len(domain.Difficulties))
	return b.String()
}

// splitNames turns a concatenated name list into a sorted slice
func splitNames(list sql.NullString) []string {
	if !list.Valid || list.String == "" {
		return []string{}
	}
	names := strings.Split(list.String, ",")
	sort.Strings(names)
	return names
}

// TeamStandings ranks every team, including teams with no members
func (c *conn) TeamStandings(ctx context.Context) ([]domain.TeamStanding, error) {
	rows, err := c.query(ctx, `
		SELECT t.id, t.name,
			COUNT(DISTINCT c.id) AS member_count,
			COALESCE(SUM(tl.points), 0) AS total_points,
			COUNT(DISTINCT comp.id) AS total_completions
		FROM teams t
		LEFT JOIN competitors c ON t.id = c.team_id
		LEFT JOIN completions comp ON c.id = comp.competitor_id
		LEFT JOIN tiles tl ON comp.tile_id = tl.id
		GROUP BY t.id, t.name
		ORDER BY total_points DESC, total_completions DESC, t.name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying team standings: %w", err)
	}
	defer rows.Close()

	standings := []domain.TeamStanding{}
	for rows.Next() {
		var s domain.TeamStanding
		if err := rows.Scan(&s.TeamID, &s.TeamName, &s.MemberCount, &s.TotalPoints, &s.TotalCompletions); err != nil {
			return nil, fmt.Errorf("scanning team standing: %w", err)
		}
		standings = append(standings, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating team standings: %w", err)
	}
	return standings, nil
}

// IndividualStandings ranks competitors, returning at most limit rows
func (c *conn) IndividualStandings(ctx context.Context, limit int) ([]domain.IndividualStanding, error) {
	rows, err := c.query(ctx, `
		SELECT c.rsn, t.name,
			COALESCE(SUM(tl.points), 0) AS total_points,
			COUNT(comp.id) AS completions_count
		FROM competitors c
		LEFT JOIN teams t ON c.team_id = t.id
		LEFT JOIN completions comp ON c.id = comp.competitor_id
		LEFT JOIN tiles tl ON comp.tile_id = tl.id
		GROUP BY c.id, c.rsn, t.name
		ORDER BY total_points DESC, completions_count DESC, c.rsn ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying individual standings: %w", err)
	}
	defer rows.Close()

	standings := []domain.IndividualStanding{}
	for rows.Next() {
		var (
			s        domain.IndividualStanding
			teamName sql.NullString
		)
		if err := rows.Scan(&s.RSN, &teamName, &s.TotalPoints, &s.CompletionsCount); err != nil {
			return nil, fmt.Errorf("scanning individual standing: %w", err)
		}
		if teamName.Valid {
			s.TeamName = &teamName.String
		}
		standings = append(standings, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating individual standings: %w", err)
	}
	return standings, nil
}

// RecentCompletions returns the newest completions by competitors on a team
func (c *conn) RecentCompletions(ctx context.Context, limit int) ([]domain.RecentCompletion, error) {
	rows, err := c.query(ctx, `
		SELECT c.rsn, t.name, tl.name, tl.points, comp.completed_at
		FROM completions comp
		JOIN competitors c ON comp.competitor_id = c.id
		JOIN teams t ON c.team_id = t.id
		JOIN tiles tl ON comp.tile_id = tl.id
		ORDER BY comp.completed_at DESC, comp.id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent completions: %w", err)
	}
	defer rows.Close()

	recent := []domain.RecentCompletion{}
	for rows.Next() {
		var (
			r  domain.RecentCompletion
			at timestamp
		)
		if err := rows.Scan(&r.RSN, &r.TeamName, &r.TileName, &r.Points, &at); err != nil {
			return nil, fmt.Errorf("scanning recent completion: %w", err)
		}
		r.CompletedAt = at.Time
		recent = append(recent, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating recent completions: %w", err)
	}
	return recent, nil
}

// CompetitorHistory lists a competitor's completions, newest first
func (c *conn) CompetitorHistory(ctx context.Context, competitorID int64) ([]domain.CompletionRecord, error) {
	rows, err := c.query(ctx, `
		SELECT tl.name, COALESCE(tl.description, ''), tl.difficulty, tl.points, comp.completed_at, comp.verified
		FROM completions comp
		JOIN tiles tl ON comp.tile_id = tl.id
		WHERE comp.competitor_id = ?
		ORDER BY comp.completed_at DESC, comp.id DESC
	`, competitorID)
	if err != nil {
		return nil, fmt.Errorf("querying competitor history: %w", err)
	}
	defer rows.Close()

	history := []domain.CompletionRecord{}
	for rows.Next() {
		var (
			r        domain.CompletionRecord
			at       timestamp
			verified sql.NullBool
		)
		if err := rows.Scan(&r.TileName, &r.Description, &r.Difficulty, &r.Points, &at, &verified); err != nil {
			return nil, fmt.Errorf("scanning completion record: %w", err)
		}
		r.CompletedAt = at.Time
		r.Verified = verified.Bool
		history = append(history, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating competitor history: %w", err)
	}
	return history, nil
}

// CompetitorSummary totals a competitor's completions by difficulty
func (c *conn) CompetitorSummary(ctx context.Context, competitorID int64) (domain.CompetitorSummary, error) {
	var s domain.CompetitorSummary
	err := c.queryRow(ctx, `
		SELECT COUNT(comp.id),
			COALESCE(SUM(tl.points), 0),
			COUNT(CASE WHEN tl.difficulty = ? THEN 1 END),
			COUNT(CASE WHEN tl.difficulty = ? THEN 1 END),
			COUNT(CASE WHEN tl.difficulty = ? THEN 1 END),
			COUNT(CASE WHEN tl.difficulty = ? THEN 1 END)
		FROM completions comp
		JOIN tiles tl ON comp.tile_id = tl.id
		WHERE comp.competitor_id = ?
	`,
		string(domain.DifficultyEasy),
		string(domain.DifficultyMedium),
		string(domain.DifficultyHard),
		string(domain.DifficultyExtreme),
		competitorID,
	).Scan(&s.TotalCompletions, &s.TotalPoints, &s.EasyCount, &s.MediumCount, &s.HardCount, &s.ExtremeCount)
	if err != nil {
		return domain.CompetitorSummary{}, fmt.Errorf("querying competitor summary: %w", err)
	}
	return s, nil
}

// CompetitorDetail assembles the full competitor page for rsn
func (c *conn) CompetitorDetail(ctx context.Context, rsn string) (*domain.CompetitorDetail, error) {
	competitor, err := c.CompetitorByRSN(ctx, rsn)
	if err != nil {
		return nil, err
	}

	history, err := c.CompetitorHistory(ctx, competitor.ID)
	if err != nil {
		return nil, err
	}

	summary, err := c.CompetitorSummary(ctx, competitor.ID)
	if err != nil {
		return nil, err
	}

	return &domain.CompetitorDetail{
		Competitor:  *competitor,
		Completions: history,
		Summary:     summary,
	}, nil
}

// TileSummaries lists every tile with its completers, easiest first
func (c *conn) TileSummaries(ctx context.Context) ([]domain.TileSummary, error) {
	rows, err := c.query(ctx, `
		SELECT tl.id, tl.name, COALESCE(tl.description, ''), tl.difficulty, tl.points, tl.created_at,
			COUNT(comp.id) AS completion_count,
			`+c.d.groupConcat("c.rsn", false)+` AS completed_by
		FROM tiles tl
		LEFT JOIN completions comp ON tl.id = comp.tile_id
		LEFT JOIN competitors c ON comp.competitor_id = c.id
		GROUP BY tl.id, tl.name, tl.description, tl.difficulty, tl.points, tl.created_at
		ORDER BY `+difficultyOrder("tl.difficulty")+`, tl.points DESC, tl.id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying tile summaries: %w", err)
	}
	defer rows.Close()

	summaries := []domain.TileSummary{}
	for rows.Next() {
		var (
			s         domain.TileSummary
			createdAt timestamp
			completed sql.NullString
		)
		if err := rows.Scan(&s.ID, &s.Name, &s.Description, &s.Difficulty, &s.Points, &createdAt,
			&s.CompletionCount, &completed); err != nil {
			return nil, fmt.Errorf("scanning tile summary: %w", err)
		}
		s.CreatedAt = createdAt.Time
		s.CompletedBy = splitNames(completed)
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tile summaries: %w", err)
	}
	return summaries, nil
}

// TeamRosters returns team standings together with the member names
func (c *conn) TeamRosters(ctx context.Context) ([]domain.TeamRoster, error) {
	rows, err := c.query(ctx, `
		SELECT t.id, t.name,
			COUNT(DISTINCT c.id) AS member_count,
			COALESCE(SUM(tl.points), 0) AS total_points,
			COUNT(DISTINCT comp.id) AS total_completions,
			`+c.d.groupConcat("c.rsn", true)+` AS members
		FROM teams t
		LEFT JOIN competitors c ON t.id = c.team_id
		LEFT JOIN completions comp ON c.id = comp.competitor_id
		LEFT JOIN tiles tl ON comp.tile_id = tl.id
		GROUP BY t.id, t.name
		ORDER BY total_points DESC, total_completions DESC, t.name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying team rosters: %w", err)
	}
	defer rows.Close()

	rosters := []domain.TeamRoster{}
	for rows.Next() {
		var (
			r       domain.TeamRoster
			members sql.NullString
		)
		if err := rows.Scan(&r.TeamID, &r.TeamName, &r.MemberCount, &r.TotalPoints, &r.TotalCompletions, &members); err != nil {
			return nil, fmt.Errorf("scanning team roster: %w", err)
		}
		r.Members = splitNames(members)
		rosters = append(rosters, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating team rosters: %w", err)
	}
	return rosters, nil
}

// Stats counts the rows of every entity table; DemoMode is left to the caller
func (c *conn) Stats(ctx context.Context) (domain.Stats, error) {
	var s domain.Stats
	err := c.queryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM teams),
			(SELECT COUNT(*) FROM competitors),
			(SELECT COUNT(*) FROM tiles),
			(SELECT COUNT(*) FROM completions)
	`).Scan(&s.TotalTeams, &s.TotalCompetitors, &s.TotalTiles, &s.TotalCompletions)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("querying stats: %w", err)
	}
	return s, nil
}
