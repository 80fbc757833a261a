package lobby

import (
	"context"
	"testing"

	"github.com/jason-s-yu/lobbyd/internal/game"
	"github.com/jason-s-yu/lobbyd/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hostGame(t *testing.T, cl *client, extra map[string]interface{}) *game.Game {
	t.Helper()
	msg := map[string]interface{}{
		"command":    "game_host",
		"title":      "Test game",
		"mod":        "faf",
		"visibility": "public",
		"mapname":    "scmp_007",
	}
	for k, v := range extra {
		msg[k] = v
	}
	cl.send(msg)
	gc := cl.GameConnection()
	require.NotNil(t, gc)
	return gc.Game()
}

// openLobby walks the host's client through to an open lobby.
func openLobby(t *testing.T, cl *client, g *game.Game) {
	t.Helper()
	cl.send(map[string]interface{}{"command": "GameState", "target": "game", "args": []interface{}{"Idle"}})
	require.Equal(t, game.GameLobby, g.State())
	cl.drain()
}

func TestGameHostLaunchesGame(t *testing.T) {
	e := newTestEnv()
	cl := e.login(t, 1, "Paula_Bean")
	p, _ := e.svc.Players.Get(1)
	p.SetGameCount(game.RatingGlobal, 5)

	g := hostGame(t, cl, map[string]interface{}{"password": "secret"})

	assert.Equal(t, map[string]interface{}{
		"command": "game_launch",
		"mod":     "faf",
		"uid":     g.ID,
		"args":    []string{"/numgames 5"},
	}, cl.only(t))
	assert.Equal(t, "Test game", g.Name())
	assert.Equal(t, "scmp_007", g.MapName())
	assert.Same(t, p, g.Host())
	assert.True(t, g.HasPassword())
	assert.Equal(t, game.PlayerJoining, p.State())
	assert.Same(t, g, p.Game())
	assert.Same(t, cl.GameConnection(), p.GameConnection())
}

func TestGameHostRejectsNonAsciiTitle(t *testing.T) {
	e := newTestEnv()
	cl := e.login(t, 1, "test")
	cl.send(map[string]interface{}{"command": "game_host", "title": "ÇÒÖL GÃMÊ", "mod": "faf"})

	assert.Equal(t, notice("error", "Non-ascii characters in game name detected."), cl.only(t))
	assert.Equal(t, 0, e.svc.Games.Count())
	assert.Nil(t, cl.GameConnection())
}

func TestGameHostRejectsLadderMode(t *testing.T) {
	e := newTestEnv()
	cl := e.login(t, 1, "test")
	cl.send(map[string]interface{}{"command": "game_host", "title": "x", "mod": "ladder1v1"})
	assert.Equal(t, "error", cl.only(t)["style"])
	assert.Equal(t, 0, e.svc.Games.Count())
}

func TestLaunchAbortsPreviousGameConnection(t *testing.T) {
	e := newTestEnv()
	cl := e.login(t, 1, "test")
	hostGame(t, cl, nil)
	old := cl.GameConnection()

	hostGame(t, cl, nil)
	assert.Equal(t, game.ConnAborted, old.State())
	assert.NotSame(t, old, cl.GameConnection())
	p, _ := e.svc.Players.Get(1)
	assert.Same(t, cl.GameConnection(), p.GameConnection())
	assert.Equal(t, game.PlayerJoining, p.State())
}

func TestGameMessagesAreForwarded(t *testing.T) {
	e := newTestEnv()
	cl := e.login(t, 1, "test")
	g := hostGame(t, cl, nil)
	cl.drain()

	cl.send(map[string]interface{}{"command": "GameState", "target": "game", "args": []interface{}{"Idle"}})

	msg := cl.only(t)
	assert.Equal(t, "HostGame", msg["command"])
	assert.Equal(t, "game", msg["target"])
	assert.Equal(t, []interface{}{"scmp_007"}, msg["args"])
	assert.Equal(t, game.GameLobby, g.State())
}

func TestGameMessageWithoutGameIsIgnored(t *testing.T) {
	e := newTestEnv()
	cl := e.login(t, 1, "test")
	cl.send(map[string]interface{}{"command": "GameState", "target": "game", "args": []interface{}{"Idle"}})
	assert.Empty(t, cl.drain())
}

func TestGameJoin(t *testing.T) {
	e := newTestEnv()
	host := e.login(t, 1, "host")
	g := hostGame(t, host, nil)
	openLobby(t, host, g)

	joiner := e.login(t, 2, "joiner")
	p, _ := e.svc.Players.Get(2)
	p.SetGameCount(game.RatingGlobal, 3)
	joiner.send(map[string]interface{}{"command": "game_join", "uid": "1"})

	assert.Equal(t, map[string]interface{}{
		"command": "game_launch",
		"mod":     "faf",
		"uid":     1,
		"args":    []string{"/numgames 3"},
	}, joiner.only(t))
	assert.Same(t, g, p.Game())
	assert.Equal(t, game.PlayerJoining, p.State())
}

func TestGameJoinPassword(t *testing.T) {
	e := newTestEnv()
	host := e.login(t, 1, "host")
	g := hostGame(t, host, map[string]interface{}{"password": "Sh1t"})
	openLobby(t, host, g)
	joiner := e.login(t, 2, "joiner")

	joiner.send(map[string]interface{}{"command": "game_join", "uid": 1, "password": "sh1t"})
	assert.Equal(t, notice("info", "Bad password (it's case sensitive)"), joiner.only(t))

	joiner.send(map[string]interface{}{"command": "game_join", "uid": 1})
	assert.Equal(t, notice("info", "Bad password (it's case sensitive)"), joiner.only(t))
	assert.Nil(t, joiner.GameConnection())

	joiner.send(map[string]interface{}{"command": "game_join", "uid": 1, "password": "Sh1t"})
	assert.Equal(t, "game_launch", joiner.only(t)["command"])
}

func TestGameJoinMissingGame(t *testing.T) {
	e := newTestEnv()
	cl := e.login(t, 1, "test")
	cl.send(map[string]interface{}{"command": "game_join", "uid": 42})
	assert.Equal(t, notice("info", "The host has left the game"), cl.only(t))
}

func TestGameJoinBeforeLobbyOpens(t *testing.T) {
	e := newTestEnv()
	host := e.login(t, 1, "host")
	hostGame(t, host, nil)

	joiner := e.login(t, 2, "joiner")
	joiner.send(map[string]interface{}{"command": "game_join", "uid": 1})
	assert.Equal(t, "info", joiner.only(t)["style"])
	assert.Nil(t, joiner.GameConnection())
}

func TestGameList(t *testing.T) {
	e := newTestEnv()
	host := e.login(t, 1, "host")
	g := hostGame(t, host, nil)
	openLobby(t, host, g)

	cl := e.login(t, 2, "other")
	cl.send(map[string]interface{}{"command": "game_list"})

	msg := cl.only(t)
	assert.Equal(t, "game_info", msg["command"])
	games := msg["games"].([]map[string]interface{})
	require.Len(t, games, 1)
	assert.Equal(t, g.ToMap(), games[0])
}

func TestGameListHidesFriendsOnlyGames(t *testing.T) {
	e := newTestEnv()
	host := e.login(t, 1, "host")
	g := hostGame(t, host, map[string]interface{}{"visibility": "friends"})
	openLobby(t, host, g)

	stranger := e.login(t, 2, "stranger")
	stranger.send(map[string]interface{}{"command": "game_list"})
	assert.Empty(t, stranger.only(t)["games"])

	hp, _ := e.svc.Players.Get(1)
	hp.AddFriend(2)
	stranger.send(map[string]interface{}{"command": "game_list"})
	assert.Len(t, stranger.only(t)["games"], 1)
}

func TestRestoreGameSessionMissingGame(t *testing.T) {
	e := newTestEnv()
	cl := e.login(t, 1, "test")
	cl.send(map[string]interface{}{"command": "restore_game_session", "game_id": 123})
	assert.Equal(t, notice("info", "The game you were connected to does no longer exist"), cl.only(t))
}

func TestRestoreGameSessionUnavailable(t *testing.T) {
	ctx := context.Background()
	for name, setup := range map[string]func(g *game.Game){
		"initializing": func(*game.Game) {},
		"ended":        func(g *game.Game) { require.NoError(t, g.OnGameEnd(ctx)) },
	} {
		t.Run(name, func(t *testing.T) {
			e := newTestEnv()
			g := e.svc.Games.CreateGame(game.GameOptions{Name: "g"})
			setup(g)

			cl := e.login(t, 1, "test")
			cl.send(map[string]interface{}{"command": "restore_game_session", "game_id": g.ID})

			assert.Equal(t, notice("info", "The game you were connected to is no longer available"), cl.only(t))
			p, _ := e.svc.Players.Get(1)
			assert.Equal(t, game.PlayerIdle, p.State())
			assert.Nil(t, p.GameConnection())
		})
	}
}

func TestRestoreGameSession(t *testing.T) {
	e := newTestEnv()
	host := e.login(t, 1, "host")
	g := hostGame(t, host, nil)
	openLobby(t, host, g)

	cl := e.login(t, 2, "returning")
	cl.send(map[string]interface{}{"command": "restore_game_session", "game_id": g.ID})

	assert.Empty(t, cl.drain())
	p, _ := e.svc.Players.Get(2)
	assert.Equal(t, game.PlayerPlaying, p.State())
	require.NotNil(t, p.GameConnection())
	assert.Equal(t, game.ConnConnectedToHost, p.GameConnection().State())
	assert.Len(t, g.Connections(), 2)
}

func TestMatchmaking(t *testing.T) {
	e := newTestEnv()
	cl := e.login(t, 1, "test")
	p, _ := e.svc.Players.Get(1)

	cl.send(map[string]interface{}{"command": "game_matchmaking", "state": "start", "faction": "UEF"})
	assert.Equal(t, "uef", e.ladder.started[1])
	assert.Equal(t, game.PlayerSearchingLadder, p.State())

	cl.send(map[string]interface{}{"command": "game_matchmaking", "state": "stop"})
	assert.Equal(t, 1, e.ladder.canceled[1])
	assert.Equal(t, game.PlayerIdle, p.State())
	assert.Empty(t, cl.drain())
}

func TestAvatar(t *testing.T) {
	e := newTestEnv()
	e.store.avatars[1] = []models.Avatar{
		{URL: "http://avatars/qai.png", Tooltip: "QAI"},
		{URL: "http://avatars/uef.png", Tooltip: "UEF"},
	}
	cl := e.login(t, 1, "test")

	cl.send(map[string]interface{}{"command": "avatar", "action": "list_avatar"})
	assert.Equal(t, map[string]interface{}{
		"command": "avatar",
		"avatarlist": []map[string]interface{}{
			{"url": "http://avatars/qai.png", "tooltip": "QAI"},
			{"url": "http://avatars/uef.png", "tooltip": "UEF"},
		},
	}, cl.only(t))

	cl.send(map[string]interface{}{"command": "avatar", "action": "select", "avatar": "http://avatars/qai.png"})
	assert.Empty(t, cl.drain())
	assert.Equal(t, "http://avatars/qai.png", e.store.selected[1])
}

func TestSocialAddAndRemove(t *testing.T) {
	e := newTestEnv()
	cl := e.login(t, 1, "test")
	p, _ := e.svc.Players.Get(1)

	cl.send(map[string]interface{}{"command": "social_add", "friend": 2})
	cl.send(map[string]interface{}{"command": "social_add", "foe": 3})
	assert.True(t, p.IsFriend(2))
	assert.True(t, p.IsFoe(3))
	assert.Equal(t, []socialCall{{1, 2, models.RelationFriend}, {1, 3, models.RelationFoe}}, e.store.added)

	cl.send(map[string]interface{}{"command": "social_remove", "friend": 2})
	assert.False(t, p.IsFriend(2))
	assert.Equal(t, []socialCall{{user: 1, subject: 2}}, e.store.removed)
	assert.Empty(t, cl.drain())
}
