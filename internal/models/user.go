package models

// Account is a row of the login table joined with its rating and clan data.
type Account struct {
	ID       int    `json:"id"`
	Login    string `json:"login"`
	Email    string `json:"email"`
	Password string `json:"password,omitempty"`

	IsAdmin     bool `json:"is_admin"`
	IsModerator bool `json:"is_moderator"`

	Clan    string `json:"clan,omitempty"`
	Country string `json:"country,omitempty"`

	GlobalMean      float64 `json:"global_mean"`
	GlobalDeviation float64 `json:"global_deviation"`
	GlobalGames     int     `json:"global_games"`

	LadderMean      float64 `json:"ladder_mean"`
	LadderDeviation float64 `json:"ladder_deviation"`
	LadderGames     int     `json:"ladder_games"`
}
