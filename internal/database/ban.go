// internal/database/ban.go
package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jason-s-yu/lobbyd/internal/models"
)

const activeBanQuery = `
	SELECT id, player_id, author_id, reason, level, expires_at, create_time
	FROM ban
	WHERE player_id = $1 AND (expires_at IS NULL OR expires_at > NOW())
	ORDER BY create_time DESC
	LIMIT 1
`

// InsertBan writes a ban unless the player already has an active one. It reports whether a
// row was inserted. A ban against, or authored by, an unknown player returns ErrPlayerNotFound.
func InsertBan(ctx context.Context, b *models.Ban) (bool, error) {
	if b.Level == "" {
		b.Level = "GLOBAL"
	}
	inserted := false
	err := pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		// lock the target row so concurrent bans for the same player serialize
		var id int
		err := tx.QueryRow(ctx, `SELECT id FROM login WHERE id = $1 FOR UPDATE`, b.PlayerID).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrPlayerNotFound
		}
		if err != nil {
			return err
		}

		var existing int64
		err = tx.QueryRow(ctx, `SELECT id FROM (`+activeBanQuery+`) active`, b.PlayerID).Scan(&existing)
		if err == nil {
			b.ID = existing
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return err
		}

		q := `
			INSERT INTO ban (player_id, author_id, reason, level, expires_at)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, create_time
		`
		if err := tx.QueryRow(ctx, q, b.PlayerID, b.AuthorID, b.Reason, b.Level, b.ExpiresAt).Scan(&b.ID, &b.CreatedAt); err != nil {
			return err
		}
		inserted = true
		return nil
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return false, ErrPlayerNotFound
		}
		if errors.Is(err, ErrPlayerNotFound) {
			return false, err
		}
		return false, fmt.Errorf("failed to insert ban: %w", err)
	}
	return inserted, nil
}

// ActiveBan returns the player's current ban, or nil when there is none.
func ActiveBan(ctx context.Context, playerID int) (*models.Ban, error) {
	var b models.Ban
	err := DB.QueryRow(ctx, activeBanQuery, playerID).Scan(
		&b.ID, &b.PlayerID, &b.AuthorID, &b.Reason, &b.Level, &b.ExpiresAt, &b.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (Store) InsertBan(ctx context.Context, b *models.Ban) (bool, error) {
	return InsertBan(ctx, b)
}

func (Store) ActiveBan(ctx context.Context, playerID int) (*models.Ban, error) {
	return ActiveBan(ctx, playerID)
}
