package domain

import "time"

// TeamStanding is a team's aggregate across all of its competitors
type TeamStanding struct {
	TeamID           int64  `json:"team_id"`
	TeamName         string `json:"team_name"`
	MemberCount      int64  `json:"member_count"`
	TotalPoints      int64  `json:"total_points"`
	TotalCompletions int64  `json:"total_completions"`
}

// TeamRoster is a team standing with the member names
type TeamRoster struct {
	TeamStanding
	Members []string `json:"members"`
}

// IndividualStanding is one competitor's aggregate
type IndividualStanding struct {
	RSN              string  `json:"rsn"`
	TeamName         *string `json:"team_name"`
	TotalPoints      int64   `json:"total_points"`
	CompletionsCount int64   `json:"completions_count"`
}

// RecentCompletion is a completion annotated for the activity feed
type RecentCompletion struct {
	RSN         string    `json:"rsn"`
	TeamName    string    `json:"team_name"`
	TileName    string    `json:"tile_name"`
	Points      int64     `json:"points"`
	CompletedAt time.Time `json:"completed_at"`
}

// CompletionRecord is one entry in a competitor's history
type CompletionRecord struct {
	TileName    string     `json:"name"`
	Description string     `json:"description"`
	Difficulty  Difficulty `json:"difficulty"`
	Points      int64      `json:"points"`
	CompletedAt time.Time  `json:"completed_at"`
	Verified    bool       `json:"verified"`
}

// CompetitorSummary totals a competitor's completions by difficulty
type CompetitorSummary struct {
	TotalCompletions int64 `json:"total_completions"`
	TotalPoints      int64 `json:"total_points"`
	EasyCount        int64 `json:"easy_count"`
	MediumCount      int64 `json:"medium_count"`
	HardCount        int64 `json:"hard_count"`
	ExtremeCount     int64 `json:"extreme_count"`
}

// BucketTotal is the sum of the per-difficulty counts
func (s CompetitorSummary) BucketTotal() int64 {
	return s.EasyCount + s.MediumCount + s.HardCount + s.ExtremeCount
}

// CompetitorDetail is everything shown on a competitor's page
type CompetitorDetail struct {
	Competitor  Competitor         `json:"competitor"`
	Completions []CompletionRecord `json:"completions"`
	Summary     CompetitorSummary  `json:"stats"`
}

// TileSummary is a tile with who has completed it
type TileSummary struct {
	Tile
	CompletionCount int64    `json:"completion_count"`
	CompletedBy     []string `json:"completed_by"`
}

// LeaderboardView is the combined content of the leaderboard page
type LeaderboardView struct {
	TeamStandings       []TeamStanding       `json:"team_standings"`
	IndividualStandings []IndividualStanding `json:"individual_standings"`
	RecentCompletions   []RecentCompletion   `json:"recent_completions"`
	GeneratedAt         time.Time            `json:"generated_at"`
}

// Stats holds row counts across the competition
type Stats struct {
	TotalTeams       int64 `json:"total_teams"`
	TotalCompetitors int64 `json:"total_competitors"`
	TotalTiles       int64 `json:"total_tiles"`
	TotalCompletions int64 `json:"total_completions"`
	DemoMode         bool  `json:"demo_mode"`
}

// CompletionEvent is published when a completion is recorded
type CompletionEvent struct {
	RSN         string     `json:"rsn"`
	TeamName    *string    `json:"team_name,omitempty"`
	TileID      int64      `json:"tile_id"`
	TileName    string     `json:"tile_name"`
	Difficulty  Difficulty `json:"difficulty"`
	Points      int64      `json:"points"`
	CompletedAt time.Time  `json:"completed_at"`
}
