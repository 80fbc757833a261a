package database

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/lobbyd/internal/auth"
	"github.com/jason-s-yu/lobbyd/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

// setupTestDB starts a throwaway Postgres container, points DB at it and applies the schema.
func setupTestDB(t *testing.T) context.Context {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres container test in -short mode")
	}
	ctx := context.Background()

	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("lobby"),
		postgres.WithUsername("lobby"),
		postgres.WithPassword("lobby"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() {
		if DB != nil {
			DB.Close()
			DB = nil
		}
		_ = ctr.Terminate(context.Background())
	})

	connStr, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, ConnectURL(ctx, connStr))
	require.NoError(t, Migrate(ctx))
	return ctx
}

func createTestAccount(t *testing.T, ctx context.Context, login string) *models.Account {
	t.Helper()
	a := &models.Account{Login: login, Email: login + "@example.com", Password: "password"}
	require.NoError(t, CreateAccount(ctx, a))
	return a
}

func TestAccountAuthentication(t *testing.T) {
	ctx := setupTestDB(t)
	auth.Init()

	a := createTestAccount(t, ctx, "Dostya")

	token, err := AuthenticateAccount(ctx, "Dostya@example.com", "password", 9)
	require.NoError(t, err)
	claims, err := auth.AuthenticateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, a.ID, claims.PlayerID)

	_, err = AuthenticateAccount(ctx, "Dostya@example.com", "wrong", 9)
	assert.Error(t, err)
}

func TestInsertBanIsIdempotent(t *testing.T) {
	ctx := setupTestDB(t)
	admin := createTestAccount(t, ctx, "Sheeo")
	target := createTestAccount(t, ctx, "Tuna")

	expires := time.Now().Add(48 * time.Hour)
	first := &models.Ban{PlayerID: target.ID, AuthorID: admin.ID, Reason: "Unit test", ExpiresAt: &expires}
	inserted, err := InsertBan(ctx, first)
	require.NoError(t, err)
	assert.True(t, inserted)

	second := &models.Ban{PlayerID: target.ID, AuthorID: admin.ID, Reason: "Unit test - already banned"}
	inserted, err = InsertBan(ctx, second)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, first.ID, second.ID)

	var count int
	require.NoError(t, DB.QueryRow(ctx, `SELECT COUNT(*) FROM ban WHERE player_id = $1`, target.ID).Scan(&count))
	assert.Equal(t, 1, count)

	active, err := ActiveBan(ctx, target.ID)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "Unit test", active.Reason)
}

func TestInsertBanUnknownPlayer(t *testing.T) {
	ctx := setupTestDB(t)

	_, err := InsertBan(ctx, &models.Ban{PlayerID: 4242, AuthorID: 4242, Reason: "Auto-banned"})
	assert.ErrorIs(t, err, ErrPlayerNotFound)
}

func TestSocialRelations(t *testing.T) {
	ctx := setupTestDB(t)
	a := createTestAccount(t, ctx, "Rhiza")
	b := createTestAccount(t, ctx, "Dostya")
	var store Store

	require.NoError(t, store.AddSocial(ctx, a.ID, b.ID, models.RelationFriend))
	_, rel, err := store.FetchAccount(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, rel, 1)
	assert.Equal(t, models.RelationFriend, rel[0].Status)

	require.NoError(t, store.AddSocial(ctx, a.ID, b.ID, models.RelationFoe))
	rel, err = ListSocial(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, rel, 1)
	assert.Equal(t, models.RelationFoe, rel[0].Status)

	require.NoError(t, store.RemoveSocial(ctx, a.ID, b.ID))
	rel, err = ListSocial(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, rel)
}

func TestSelectAvatar(t *testing.T) {
	ctx := setupTestDB(t)
	a := createTestAccount(t, ctx, "Dostya")
	var store Store

	_, err := DB.Exec(ctx, `INSERT INTO avatars_list (url, tooltip) VALUES ('http://a/qai2.png', 'QAI'), ('http://a/UEF.png', 'UEF')`)
	require.NoError(t, err)
	_, err = DB.Exec(ctx, `INSERT INTO avatars (player_id, avatar_id) SELECT $1, id FROM avatars_list`, a.ID)
	require.NoError(t, err)

	require.NoError(t, store.SelectAvatar(ctx, a.ID, "http://a/qai2.png"))
	avatars, err := store.ListAvatars(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, avatars, 2)
	assert.True(t, avatars[0].Selected)
	assert.False(t, avatars[1].Selected)

	assert.Error(t, store.SelectAvatar(ctx, a.ID, "http://a/missing.png"))
}

func TestPersistGameStats(t *testing.T) {
	ctx := setupTestDB(t)
	a := createTestAccount(t, ctx, "Dostya")

	rec := models.GameRecord{ID: 7}
	stats := []models.GamePlayerStat{{PlayerID: a.ID, Team: 2, Army: 0, Outcome: "victory", Score: 10, MeanBefore: 1500, DeviationBefore: 500, MeanAfter: 1600, DeviationAfter: 420}}
	require.NoError(t, PersistGameStats(ctx, RatingGlobal, rec, stats))

	acc, err := GetAccountByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1600.0, acc.GlobalMean)
	assert.Equal(t, 1, acc.GlobalGames)
}

func TestGameLifecycleRows(t *testing.T) {
	ctx := setupTestDB(t)
	launched := time.Now().Add(-time.Hour).UTC().Truncate(time.Millisecond)
	eventID := uuid.New()

	err := pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if err := InsertGameEventTx(ctx, tx, eventID, 11, "game_launched", map[string]interface{}{"mode": "faf"}); err != nil {
			return err
		}
		// replays are ignored
		if err := InsertGameEventTx(ctx, tx, eventID, 11, "game_launched", nil); err != nil {
			return err
		}
		return UpsertLiveGameTx(ctx, tx, 11, "faf", "scmp_001", "Setons", 1, launched)
	})
	require.NoError(t, err)

	var events int
	require.NoError(t, DB.QueryRow(ctx, `SELECT COUNT(*) FROM game_events WHERE game_id = 11`).Scan(&events))
	assert.Equal(t, 1, events)

	changed, err := MarkGameAbandoned(ctx, 11)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = MarkGameAbandoned(ctx, 11)
	require.NoError(t, err)
	assert.False(t, changed, "only live games are abandoned")

	err = pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return MarkGameEndedTx(ctx, tx, 12, "TOO_SHORT", time.Now())
	})
	require.NoError(t, err)

	var status, validity string
	require.NoError(t, DB.QueryRow(ctx, `SELECT status, validity FROM games WHERE id = 12`).Scan(&status, &validity))
	assert.Equal(t, "ended", status)
	assert.Equal(t, "TOO_SHORT", validity)
}
