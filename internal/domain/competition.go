package domain

import (
	"fmt"
	"strings"
	"time"
)

// Difficulty is the challenge tier of a tile
type Difficulty string

const (
	DifficultyEasy    Difficulty = "Easy"
	DifficultyMedium  Difficulty = "Medium"
	DifficultyHard    Difficulty = "Hard"
	DifficultyExtreme Difficulty = "Extreme"
)

// Difficulties lists every tier from least to most challenging
var Difficulties = []Difficulty{
	DifficultyEasy,
	DifficultyMedium,
	DifficultyHard,
	DifficultyExtreme,
}

// Rank orders difficulties by increasing challenge; unknown values sort last.
func (d Difficulty) Rank() int {
	for i, known := range Difficulties {
		if d == known {
			return i
		}
	}
	return len(Difficulties)
}

// Valid reports whether d is one of the known tiers
func (d Difficulty) Valid() bool {
	return d.Rank() < len(Difficulties)
}

// ParseDifficulty accepts a tier name in any letter case
func ParseDifficulty(s string) (Difficulty, error) {
	for _, d := range Difficulties {
		if strings.EqualFold(strings.TrimSpace(s), string(d)) {
			return d, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidDifficulty, s)
}

// Team groups competitors
type Team struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Competitor is a participant identified by their rsn
type Competitor struct {
	ID        int64     `json:"id"`
	RSN       string    `json:"rsn"`
	TeamID    *int64    `json:"team_id,omitempty"`
	TeamName  *string   `json:"team_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Tile is a challenge worth a fixed number of points
type Tile struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Difficulty  Difficulty `json:"difficulty"`
	Points      int64      `json:"points"`
	CreatedAt   time.Time  `json:"created_at"`
}

// AdminUser is an administrator credential
type AdminUser struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// CompletionSubmission is a request to record a completion
type CompletionSubmission struct {
	RSN         string     `json:"rsn"`
	TileID      int64      `json:"tile_id"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Validate checks the submission has both identifiers
func (s CompletionSubmission) Validate() error {
	if strings.TrimSpace(s.RSN) == "" || s.TileID <= 0 {
		return ErrInvalidRequest
	}
	return nil
}
