package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/lobbyd/internal/auth"
	"github.com/jason-s-yu/lobbyd/internal/models"
)

// ErrPlayerNotFound is returned when a player id has no login row.
var ErrPlayerNotFound = errors.New("player not found")

// Rating types stored in player_ratings.
const (
	RatingGlobal    = "global"
	RatingLadder1v1 = "ladder_1v1"
)

const accountSelect = `
	SELECT l.id, l.login, l.email, l.password, l.is_admin, l.is_moderator, l.clan, l.country,
	       COALESCE(g.mean, 1500), COALESCE(g.deviation, 500), COALESCE(g.num_games, 0),
	       COALESCE(r.mean, 1500), COALESCE(r.deviation, 500), COALESCE(r.num_games, 0)
	FROM login l
	LEFT JOIN player_ratings g ON g.player_id = l.id AND g.rating_type = 'global'
	LEFT JOIN player_ratings r ON r.player_id = l.id AND r.rating_type = 'ladder_1v1'
`

func scanAccount(row pgx.Row) (*models.Account, error) {
	var a models.Account
	err := row.Scan(
		&a.ID, &a.Login, &a.Email, &a.Password, &a.IsAdmin, &a.IsModerator, &a.Clan, &a.Country,
		&a.GlobalMean, &a.GlobalDeviation, &a.GlobalGames,
		&a.LadderMean, &a.LadderDeviation, &a.LadderGames,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPlayerNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateAccount hashes the password and inserts the login row, filling in a.ID.
func CreateAccount(ctx context.Context, a *models.Account) error {
	hash, err := auth.HashPassword(a.Password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	a.Password = hash

	q := `INSERT INTO login (login, email, password, is_admin, is_moderator, clan, country)
	      VALUES ($1, $2, $3, $4, $5, $6, $7)
	      RETURNING id`

	err = pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, q,
			a.Login, a.Email, a.Password, a.IsAdmin, a.IsModerator, a.Clan, a.Country,
		).Scan(&a.ID)
	})
	if err != nil {
		return fmt.Errorf("failed to insert account: %w", err)
	}
	return nil
}

func GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	return scanAccount(DB.QueryRow(ctx, accountSelect+` WHERE l.email = $1`, email))
}

func GetAccountByID(ctx context.Context, id int) (*models.Account, error) {
	return scanAccount(DB.QueryRow(ctx, accountSelect+` WHERE l.id = $1`, id))
}

// AuthenticateAccount checks the password and issues a session token.
func AuthenticateAccount(ctx context.Context, email, password string, session int64) (string, error) {
	a, err := GetAccountByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("user not found or db error: %w", err)
	}

	match, err := auth.CheckPassword(password, a.Password)
	if err != nil || !match {
		return "", fmt.Errorf("invalid credentials")
	}

	token, err := auth.CreateJWT(a.ID, session)
	if err != nil {
		return "", fmt.Errorf("failed to create jwt: %w", err)
	}

	return token, nil
}

// FetchAccount loads the account, ratings and social lists for a connecting player.
func (Store) FetchAccount(ctx context.Context, playerID int) (*models.Account, []models.SocialRelation, error) {
	a, err := GetAccountByID(ctx, playerID)
	if err != nil {
		return nil, nil, err
	}
	rel, err := ListSocial(ctx, playerID)
	if err != nil {
		return nil, nil, err
	}
	return a, rel, nil
}

// PlayerExists reports whether a login row exists for playerID.
func (Store) PlayerExists(ctx context.Context, playerID int) (bool, error) {
	var exists bool
	err := DB.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM login WHERE id = $1)`, playerID).Scan(&exists)
	return exists, err
}
