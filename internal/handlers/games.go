// internal/handlers/games.go
package handlers

import (
	"net/http"

	"github.com/jason-s-yu/lobbyd/internal/game"
)

// ListGamesHandler returns the open public games and the number of players online.
func ListGamesHandler(players *game.PlayerService, games *game.GameService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var viewer *game.Player
		if token := requestToken(r); token != "" {
			if id, ok := authenticatedPlayerID(token); ok {
				viewer, _ = players.Get(id)
			}
		}

		var open []*game.Game
		if viewer != nil {
			open = games.VisibleOpenGames(viewer)
		} else {
			for _, g := range games.OpenGames() {
				if g.Visibility() == game.VisibilityPublic {
					open = append(open, g)
				}
			}
		}

		list := make([]map[string]interface{}, 0, len(open))
		for _, g := range open {
			list = append(list, g.ToMap())
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"games":          list,
			"players_online": players.Count(),
		})
	}
}
