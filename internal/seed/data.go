package seed

import "github.com/tile-leaderboard/internal/domain"

// TeamNames are the demo teams, in insertion order
var TeamNames = []string{
	"Iron Warriors",
	"Dragon Slayers",
	"Void Knights",
	"Barrows Brothers",
	"Godwars Legends",
	"Skill Masters",
}

// Member assigns a competitor to one of TeamNames
type Member struct {
	RSN  string
	Team string
}

// Members is the demo roster
var Members = []Member{
	{"Zezima", "Iron Warriors"},
	{"Woox", "Iron Warriors"},
	{"B0aty", "Dragon Slayers"},
	{"Framed", "Dragon Slayers"},
	{"Settled", "Void Knights"},
	{"J1mmy", "Void Knights"},
	{"Torvesta", "Barrows Brothers"},
	{"Mammal", "Barrows Brothers"},
	{"Sick_Nerd", "Godwars Legends"},
	{"Faux", "Godwars Legends"},
	{"Alfie", "Skill Masters"},
	{"Rargh", "Skill Masters"},
	{"Iron_Hyger", "Iron Warriors"},
	{"UIM_Verf", "Dragon Slayers"},
	{"Swampletics", "Void Knights"},
	{"Rendi", "Barrows Brothers"},
	{"Xzact", "Godwars Legends"},
	{"25_Buttholes", "Skill Masters"},
}

// Tiles is the demo board
var Tiles = []domain.Tile{
	{Name: "Complete Dragon Slayer", Description: "Defeat Elvarg and become a true dragon slayer", Difficulty: domain.DifficultyEasy, Points: 2},
	{Name: "Achieve 99 Woodcutting", Description: "Reach level 99 in Woodcutting skill", Difficulty: domain.DifficultyMedium, Points: 5},
	{Name: "Complete Monkey Madness II", Description: "Finish the challenging Monkey Madness II quest", Difficulty: domain.DifficultyHard, Points: 8},
	{Name: "Obtain Fire Cape", Description: "Defeat TzTok-Jad and earn the Fire Cape", Difficulty: domain.DifficultyHard, Points: 10},
	{Name: "Complete Theatre of Blood", Description: "Successfully complete a Theatre of Blood raid", Difficulty: domain.DifficultyExtreme, Points: 15},
	{Name: "Achieve Base 70 Stats", Description: "Get all combat stats to level 70+", Difficulty: domain.DifficultyMedium, Points: 6},
	{Name: "Complete Recipe for Disaster", Description: "Finish the Recipe for Disaster quest series", Difficulty: domain.DifficultyMedium, Points: 7},
	{Name: "Obtain Barrows Gloves", Description: "Unlock and obtain Barrows Gloves", Difficulty: domain.DifficultyMedium, Points: 5},
	{Name: "Complete Chambers of Xeric", Description: "Successfully complete a Chambers of Xeric raid", Difficulty: domain.DifficultyHard, Points: 12},
	{Name: "Achieve 99 Slayer", Description: "Reach level 99 in Slayer skill", Difficulty: domain.DifficultyHard, Points: 8},
	{Name: "Complete Inferno", Description: "Defeat TzKal-Zuk and earn the Infernal Cape", Difficulty: domain.DifficultyExtreme, Points: 25},
	{Name: "Obtain Quest Cape", Description: "Complete all available quests", Difficulty: domain.DifficultyHard, Points: 10},
	{Name: "Achieve 2000 Total Level", Description: "Reach 2000+ total skill level", Difficulty: domain.DifficultyHard, Points: 8},
	{Name: "Complete Desert Treasure", Description: "Finish Desert Treasure and unlock Ancient Magicks", Difficulty: domain.DifficultyMedium, Points: 4},
	{Name: "Obtain Void Set", Description: "Complete Pest Control for full Void equipment", Difficulty: domain.DifficultyMedium, Points: 3},
	{Name: "Complete Barbarian Training", Description: "Finish all Barbarian Training activities", Difficulty: domain.DifficultyEasy, Points: 2},
	{Name: "Achieve 99 Fishing", Description: "Reach level 99 in Fishing skill", Difficulty: domain.DifficultyMedium, Points: 4},
	{Name: "Complete Lunar Diplomacy", Description: "Finish Lunar Diplomacy and unlock Lunar spells", Difficulty: domain.DifficultyMedium, Points: 4},
	{Name: "Obtain Fighter Torso", Description: "Complete Barbarian Assault for Fighter Torso", Difficulty: domain.DifficultyMedium, Points: 3},
	{Name: "Complete Monkey Madness", Description: "Finish the original Monkey Madness quest", Difficulty: domain.DifficultyEasy, Points: 3},
}

// Completion draw bounds
const (
	minCompletions = 3
	maxCompletions = 12
	maxDaysAgo     = 30
	maxHoursAgo    = 23
)
