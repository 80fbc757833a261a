// internal/lobby/broadcast.go
package lobby

import (
	"context"
	"time"

	"github.com/jason-s-yu/lobbyd/internal/game"
)

// BroadcastGameInfo pushes the current state of each changed game to every online player
// allowed to see it. Players already in a game always hear about it.
func BroadcastGameInfo(players *game.PlayerService, games []*game.Game) int {
	sent := 0
	for _, g := range games {
		info := g.ToMap()
		for _, p := range players.All() {
			lc := p.LobbyConnection()
			if lc == nil {
				continue
			}
			if p.Game() != g && !game.IsVisibleTo(g, p) {
				continue
			}
			lc.Send(info)
			sent++
		}
	}
	return sent
}

// Housekeeping announces changed games and prunes ended ones every interval until ctx ends.
func Housekeeping(ctx context.Context, svc *Services, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			housekeep(ctx, svc)
		}
	}
}

// housekeep broadcasts before pruning so ended games are announced once more.
func housekeep(ctx context.Context, svc *Services) {
	BroadcastGameInfo(svc.Players, svc.Games.DirtyGames())
	svc.Games.PruneEnded(ctx)
}
