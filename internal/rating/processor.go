package rating

import (
	"context"
	"fmt"
	"time"

	"github.com/jason-s-yu/lobbyd/internal/game"
	"github.com/jason-s-yu/lobbyd/internal/models"
	"github.com/sirupsen/logrus"
)

// StatsWriter persists the outcome of a rated game.
type StatsWriter interface {
	PersistGameStats(ctx context.Context, ratingType string, rec models.GameRecord, stats []models.GamePlayerStat) error
}

// Processor rates valid games and records their results.
type Processor struct {
	store  StatsWriter
	logger *logrus.Logger
	now    func() time.Time
}

func NewProcessor(store StatsWriter, logger *logrus.Logger) *Processor {
	return &Processor{store: store, logger: logger, now: time.Now}
}

// ProcessGameStats rates every player against the average of their opponents, persists
// the new ratings, and then updates the in-memory players.
func (p *Processor) ProcessGameStats(ctx context.Context, g *game.Game, results game.GameResults) error {
	if len(results.Players) < 2 {
		return fmt.Errorf("game %d: need at least two players to rate, got %d", results.GameID, len(results.Players))
	}

	before := make([]game.Rating, len(results.Players))
	for i, pr := range results.Players {
		before[i] = pr.Player.Rating(results.RatingType)
	}

	stats := make([]models.GamePlayerStat, len(results.Players))
	after := make([]game.Rating, len(results.Players))
	for i, pr := range results.Players {
		opp, ok := opponentRating(results.Players, before, i)
		if !ok {
			return fmt.Errorf("game %d: player %d has no opponents", results.GameID, pr.Player.ID)
		}
		after[i] = Update(before[i], opp, outcomeScore(pr.Outcome))
		stats[i] = models.GamePlayerStat{
			GameID:          results.GameID,
			PlayerID:        pr.Player.ID,
			Team:            pr.Team,
			Army:            pr.Army,
			Faction:         pr.Faction,
			Color:           pr.Color,
			Outcome:         string(pr.Outcome),
			Score:           pr.Score,
			MeanBefore:      before[i].Mean,
			DeviationBefore: before[i].Deviation,
			MeanAfter:       after[i].Mean,
			DeviationAfter:  after[i].Deviation,
		}
	}

	rec := models.GameRecord{
		ID:       results.GameID,
		Mode:     results.Mode,
		MapName:  g.MapName(),
		Title:    g.Name(),
		Validity: g.Validity().String(),
		EndedAt:  p.now(),
	}
	if h := g.Host(); h != nil {
		rec.HostID = h.ID
	}
	rec.LaunchedAt = g.LaunchedAt()

	if err := p.store.PersistGameStats(ctx, string(results.RatingType), rec, stats); err != nil {
		return err
	}

	for i, pr := range results.Players {
		pr.Player.SetRating(results.RatingType, after[i])
		pr.Player.IncrementGameCount(results.RatingType)
	}
	p.logger.WithFields(logrus.Fields{"game_id": results.GameID, "players": len(results.Players), "rating_type": results.RatingType}).Info("game rated")
	return nil
}

// opponentRating averages the ratings of everyone not on player i's team.
func opponentRating(players []game.PlayerResult, ratings []game.Rating, i int) (game.Rating, bool) {
	var sum game.Rating
	n := 0
	for j, other := range players {
		if j == i || sameTeam(players[i], other) {
			continue
		}
		sum.Mean += ratings[j].Mean
		sum.Deviation += ratings[j].Deviation
		n++
	}
	if n == 0 {
		return game.Rating{}, false
	}
	return game.Rating{Mean: sum.Mean / float64(n), Deviation: sum.Deviation / float64(n)}, true
}

// sameTeam treats every player on the free-for-all team as their own side.
func sameTeam(a, b game.PlayerResult) bool {
	if a.Team == game.FFATeam || b.Team == game.FFATeam {
		return false
	}
	return a.Team == b.Team
}

func outcomeScore(o game.Outcome) float64 {
	switch o {
	case game.OutcomeVictory:
		return 1
	case game.OutcomeDraw, game.OutcomeMutualDraw:
		return 0.5
	}
	return 0
}
