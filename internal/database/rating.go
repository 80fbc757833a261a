package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/lobbyd/internal/models"
)

// PersistGameStats stores the per-player results of a rated game and the players' new
// ratings in one transaction.
func PersistGameStats(ctx context.Context, ratingType string, rec models.GameRecord, stats []models.GamePlayerStat) error {
	err := pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, s := range stats {
			if _, err := tx.Exec(ctx, `
				INSERT INTO game_player_stats (
					game_id, player_id, team, army, faction, color, outcome, score,
					mean_before, deviation_before, mean_after, deviation_after
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
				ON CONFLICT (game_id, player_id) DO UPDATE
				SET outcome = $7, score = $8, mean_after = $11, deviation_after = $12
			`,
				rec.ID, s.PlayerID, s.Team, s.Army, s.Faction, s.Color, s.Outcome, s.Score,
				s.MeanBefore, s.DeviationBefore, s.MeanAfter, s.DeviationAfter,
			); err != nil {
				return err
			}

			if _, err := tx.Exec(ctx, `
				INSERT INTO player_ratings (player_id, rating_type, mean, deviation, num_games)
				VALUES ($1, $2, $3, $4, 1)
				ON CONFLICT (player_id, rating_type) DO UPDATE
				SET mean = $3, deviation = $4, num_games = player_ratings.num_games + 1
			`, s.PlayerID, ratingType, s.MeanAfter, s.DeviationAfter); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to persist stats for game %d: %w", rec.ID, err)
	}
	return nil
}

func (Store) PersistGameStats(ctx context.Context, ratingType string, rec models.GameRecord, stats []models.GamePlayerStat) error {
	return PersistGameStats(ctx, ratingType, rec, stats)
}
