// internal/database/avatar.go
package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/lobbyd/internal/models"
)

// ListAvatars returns the avatars awarded to playerID.
func (Store) ListAvatars(ctx context.Context, playerID int) ([]models.Avatar, error) {
	q := `
		SELECT l.url, l.tooltip, a.selected
		FROM avatars a
		JOIN avatars_list l ON l.id = a.avatar_id
		WHERE a.player_id = $1
		ORDER BY l.id
	`
	rows, err := DB.Query(ctx, q, playerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var avatars []models.Avatar
	for rows.Next() {
		var av models.Avatar
		if err := rows.Scan(&av.URL, &av.Tooltip, &av.Selected); err != nil {
			return nil, err
		}
		avatars = append(avatars, av)
	}
	return avatars, rows.Err()
}

// SelectAvatar marks the avatar with url as the player's selected one and clears the rest.
// An empty url clears the selection.
func (Store) SelectAvatar(ctx context.Context, playerID int, url string) error {
	return pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `UPDATE avatars SET selected = FALSE WHERE player_id = $1`, playerID); err != nil {
			return err
		}
		if url == "" {
			return nil
		}
		ct, err := tx.Exec(ctx, `
			UPDATE avatars SET selected = TRUE
			WHERE player_id = $1
			  AND avatar_id = (SELECT id FROM avatars_list WHERE url = $2)
		`, playerID, url)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			return fmt.Errorf("avatar %q not owned by player %d", url, playerID)
		}
		return nil
	})
}
