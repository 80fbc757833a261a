// internal/database/game.go
package database

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// UpsertLiveGameTx creates the games row for a launched game, or refreshes it.
func UpsertLiveGameTx(ctx context.Context, tx pgx.Tx, gameID int, mode, mapName, title string, hostID int, launchedAt time.Time) error {
	q := `
		INSERT INTO games (id, mode, map_name, title, host_id, status, launched_at)
		VALUES ($1, $2, $3, $4, $5, 'live', $6)
		ON CONFLICT (id)
		DO UPDATE SET mode = $2, map_name = $3, title = $4, host_id = $5, launched_at = $6
	`
	_, err := tx.Exec(ctx, q, gameID, mode, mapName, title, hostID, launchedAt)
	return err
}

// MarkGameEndedTx finalizes the games row with its validity.
func MarkGameEndedTx(ctx context.Context, tx pgx.Tx, gameID int, validity string, endedAt time.Time) error {
	q := `
		INSERT INTO games (id, status, validity, ended_at)
		VALUES ($1, 'ended', $2, $3)
		ON CONFLICT (id)
		DO UPDATE SET status = 'ended', validity = $2, ended_at = $3
	`
	_, err := tx.Exec(ctx, q, gameID, validity, endedAt)
	return err
}

// InsertGameEventTx stores one raw lifecycle event. Replayed events are ignored.
func InsertGameEventTx(ctx context.Context, tx pgx.Tx, eventID uuid.UUID, gameID int, eventType string, payload map[string]interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	q := `
		INSERT INTO game_events (event_id, game_id, event_type, payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (event_id) DO NOTHING
	`
	_, err = tx.Exec(ctx, q, eventID, gameID, eventType, data)
	return err
}

// MarkGameAbandoned flags a game that is still live as abandoned.
func MarkGameAbandoned(ctx context.Context, gameID int) (bool, error) {
	var affected int64
	err := pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		ct, err := tx.Exec(ctx, `
			UPDATE games
			SET status = 'abandoned', ended_at = NOW()
			WHERE id = $1 AND status = 'live'
		`, gameID)
		affected = ct.RowsAffected()
		return err
	})
	return affected > 0, err
}
