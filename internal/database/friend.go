// internal/database/friend.go

package database

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/lobbyd/internal/models"
)

// UpsertSocial stores userID's relation to subjectID, replacing a previous friend/foe status.
func UpsertSocial(ctx context.Context, userID, subjectID int, status string) error {
	q := `
		INSERT INTO friends_and_foes (user_id, subject_id, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, subject_id)
		DO UPDATE SET status = $3
	`
	return pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, userID, subjectID, status)
		return err
	})
}

// DeleteSocial removes userID's relation to subjectID. Removing a missing relation is not an error.
func DeleteSocial(ctx context.Context, userID, subjectID int) error {
	q := `DELETE FROM friends_and_foes WHERE user_id = $1 AND subject_id = $2`
	return pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, userID, subjectID)
		return err
	})
}

// ListSocial returns every friend and foe entry owned by userID.
func ListSocial(ctx context.Context, userID int) ([]models.SocialRelation, error) {
	q := `
		SELECT user_id, subject_id, status
		FROM friends_and_foes
		WHERE user_id = $1
		ORDER BY subject_id
	`
	rows, err := DB.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rel []models.SocialRelation
	for rows.Next() {
		var r models.SocialRelation
		if err := rows.Scan(&r.UserID, &r.SubjectID, &r.Status); err != nil {
			return nil, err
		}
		rel = append(rel, r)
	}
	return rel, rows.Err()
}

func (Store) AddSocial(ctx context.Context, userID, subjectID int, status string) error {
	return UpsertSocial(ctx, userID, subjectID, status)
}

func (Store) RemoveSocial(ctx context.Context, userID, subjectID int) error {
	return DeleteSocial(ctx, userID, subjectID)
}
