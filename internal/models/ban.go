// internal/models/ban.go
package models

import "time"

// Ban is a row in the ban table. A ban without ExpiresAt is permanent.
type Ban struct {
	ID        int64      `json:"id"`
	PlayerID  int        `json:"player_id"`
	AuthorID  int        `json:"author_id"`
	Reason    string     `json:"reason"`
	Level     string     `json:"level"` // 'GLOBAL', 'CHAT'
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
