package models

// Avatar is an avatar a player has been awarded.
type Avatar struct {
	URL      string `json:"url"`
	Tooltip  string `json:"tooltip"`
	Selected bool   `json:"-"`
}
