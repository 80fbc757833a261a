package models

import "time"

// GameRecord is the persisted summary of one ended game.
type GameRecord struct {
	ID         int       `json:"id"`
	Mode       string    `json:"mode"`
	MapName    string    `json:"map_name"`
	HostID     int       `json:"host_id"`
	Title      string    `json:"title"`
	Validity   string    `json:"validity"`
	LaunchedAt time.Time `json:"launched_at"`
	EndedAt    time.Time `json:"ended_at"`
}

// GamePlayerStat is one player's line in a game's results, including the rating
// before and after the game.
type GamePlayerStat struct {
	GameID   int    `json:"game_id"`
	PlayerID int    `json:"player_id"`
	Team     int    `json:"team"`
	Army     int    `json:"army"`
	Faction  int    `json:"faction"`
	Color    int    `json:"color"`
	Outcome  string `json:"outcome"`
	Score    int    `json:"score"`

	MeanBefore      float64 `json:"mean_before"`
	DeviationBefore float64 `json:"deviation_before"`
	MeanAfter       float64 `json:"mean_after"`
	DeviationAfter  float64 `json:"deviation_after"`
}
