// internal/lobby/commands.go
package lobby

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jason-s-yu/lobbyd/internal/database"
	"github.com/jason-s-yu/lobbyd/internal/game"
	"github.com/jason-s-yu/lobbyd/internal/models"
)

type commandFunc func(c *LobbyConnection, ctx context.Context, msg map[string]interface{}) error

// commands is the closed set of lobby commands a client may send.
var commands = map[string]commandFunc{
	"hello":                (*LobbyConnection).commandHello,
	"ping":                 (*LobbyConnection).commandPing,
	"game_list":            (*LobbyConnection).commandGameList,
	"admin":                (*LobbyConnection).commandAdmin,
	"game_host":            (*LobbyConnection).commandGameHost,
	"game_join":            (*LobbyConnection).commandGameJoin,
	"game_matchmaking":     (*LobbyConnection).commandGameMatchmaking,
	"restore_game_session": (*LobbyConnection).commandRestoreGameSession,
	"avatar":               (*LobbyConnection).commandAvatar,
	"social_add":           (*LobbyConnection).commandSocialAdd,
	"social_remove":        (*LobbyConnection).commandSocialRemove,
}

// unauthenticated commands may be sent before hello.
var unauthenticated = map[string]bool{
	"hello": true,
	"ping":  true,
}

const signedInElsewhere = "You have been signed out because you signed in elsewhere."

// Dispatch routes one client message. Messages targeted at "game" go to the current game
// connection; everything else must name a known command.
func (c *LobbyConnection) Dispatch(ctx context.Context, msg map[string]interface{}) error {
	cmd, _ := msg["command"].(string)
	if cmd == "" {
		return clientErr("Message is missing a command")
	}

	if target, _ := msg["target"].(string); target == "game" {
		if !c.Authenticated() {
			return clientErr("You need to be logged in to do that")
		}
		return c.forwardToGame(ctx, cmd, msg)
	}

	handler, ok := commands[cmd]
	if !ok {
		return clientErr("Unknown command: %s", cmd)
	}
	if !unauthenticated[cmd] && !c.Authenticated() {
		return clientErr("You need to be logged in to do that")
	}
	return handler(c, ctx, msg)
}

func (c *LobbyConnection) forwardToGame(ctx context.Context, cmd string, msg map[string]interface{}) error {
	gc := c.GameConnection()
	if gc == nil {
		c.log().WithField("command", cmd).Debug("game message with no game connection")
		return nil
	}
	args, _ := msg["args"].([]interface{})
	if err := gc.HandleAction(ctx, cmd, args); err != nil {
		c.log().WithError(err).WithField("command", cmd).Warn("game action rejected")
	}
	return nil
}

func (c *LobbyConnection) commandPing(_ context.Context, _ map[string]interface{}) error {
	c.Write(map[string]interface{}{"command": "pong"})
	return nil
}

func (c *LobbyConnection) commandHello(ctx context.Context, msg map[string]interface{}) error {
	if c.Authenticated() {
		return clientErr("You are already logged in")
	}
	token, _ := msg["token"].(string)
	claims, err := c.authenticate(token)
	if err != nil {
		return &ClientError{Message: "Login failed: invalid or expired session token", Fatal: true}
	}

	ban, err := c.svc.Store.ActiveBan(ctx, claims.PlayerID)
	if err != nil {
		return fmt.Errorf("check ban for %d: %w", claims.PlayerID, err)
	}
	if ban != nil {
		return &ClientError{Message: banMessage(c.svc.Config.ServerName, ban), Fatal: true}
	}

	p := game.NewPlayer(claims.PlayerID, "")
	p.Session = claims.Session
	p.Address = c.Address
	if err := c.svc.Players.FetchPlayerData(ctx, p); err != nil {
		if errors.Is(err, database.ErrPlayerNotFound) {
			return &ClientError{Message: "Login failed", Fatal: true}
		}
		return err
	}

	if c.svc.Policy != nil {
		uid, _ := msg["unique_id"].(string)
		ok, err := c.CheckPolicyConformity(ctx, p.ID, uid, p.Session)
		if err != nil || !ok {
			return err
		}
	}

	if prev := c.svc.Players.Register(p); prev != nil {
		if old := prev.LobbyConnection(); old != nil {
			old.Kick(signedInElsewhere)
		}
	}
	p.SetLobbyConnection(c)

	c.mu.Lock()
	c.player = p
	c.authenticated = true
	c.mu.Unlock()

	c.log().WithField("login", p.Login).Info("player logged in")

	c.Write(map[string]interface{}{
		"command": "welcome",
		"id":      p.ID,
		"login":   p.Login,
		"me":      p.ToMap(),
	})

	online := c.svc.Players.All()
	infos := make([]map[string]interface{}, 0, len(online))
	for _, other := range online {
		infos = append(infos, other.ToMap())
	}
	c.Write(map[string]interface{}{"command": "player_info", "players": infos})
	c.Write(map[string]interface{}{
		"command": "social",
		"friends": p.Friends(),
		"foes":    p.Foes(),
	})

	announce := map[string]interface{}{"command": "player_info", "players": []map[string]interface{}{p.ToMap()}}
	for _, other := range online {
		if other.ID == p.ID {
			continue
		}
		if lc := other.LobbyConnection(); lc != nil {
			lc.Send(announce)
		}
	}

	for _, mod := range game.AllGameModes() {
		c.Write(mod)
	}
	c.sendGameList(p)
	return nil
}

func banMessage(server string, b *models.Ban) string {
	until := "forever"
	if b.ExpiresAt != nil {
		until = "until " + b.ExpiresAt.UTC().Format(time.RFC1123)
	}
	return fmt.Sprintf("You are banned from %s %s.\nReason:\n%s", server, until, b.Reason)
}

func (c *LobbyConnection) sendGameList(p *game.Player) {
	games := c.svc.Games.VisibleOpenGames(p)
	list := make([]map[string]interface{}, 0, len(games))
	for _, g := range games {
		list = append(list, g.ToMap())
	}
	c.Write(map[string]interface{}{"command": "game_info", "games": list})
}

func (c *LobbyConnection) commandGameList(_ context.Context, _ map[string]interface{}) error {
	c.sendGameList(c.Player())
	return nil
}

func (c *LobbyConnection) commandGameHost(ctx context.Context, msg map[string]interface{}) error {
	p := c.Player()
	title, _ := msg["title"].(string)
	title = strings.TrimSpace(title)
	if !game.ValidTitle(title) {
		return clientErr("Non-ascii characters in game name detected.")
	}

	mode, _ := msg["mod"].(string)
	if mode == "" {
		mode = game.ModeFAF
	}
	mode = strings.ToLower(mode)
	if mode == game.ModeLadder {
		return clientErr("Ladder games are started by the matchmaker")
	}

	vis, _ := msg["visibility"].(string)
	visibility, err := game.ParseVisibility(vis)
	if err != nil {
		return clientErr("Unknown visibility %q", vis)
	}
	password, _ := msg["password"].(string)
	mapName, _ := msg["mapname"].(string)
	if title == "" {
		title = p.Login + "'s game"
	}

	g := c.svc.Games.CreateGame(game.GameOptions{
		Mode:       mode,
		Name:       title,
		Host:       p,
		Visibility: visibility,
		Password:   password,
		MapName:    mapName,
	})
	c.log().WithField("game_id", g.ID).Info("hosting game")
	c.launchGame(ctx, p, g)
	return nil
}

func (c *LobbyConnection) commandGameJoin(ctx context.Context, msg map[string]interface{}) error {
	p := c.Player()
	uid, err := intArg(msg["uid"])
	if err != nil {
		return clientErr("Invalid game id")
	}

	g, err := c.svc.Games.GetGame(uid)
	if err != nil {
		c.SendNotice("info", "The host has left the game")
		return nil
	}
	if g.State() != game.GameLobby {
		c.SendNotice("info", "The game you are trying to join is not ready.")
		return nil
	}
	password, _ := msg["password"].(string)
	if !g.CheckPassword(password) {
		c.SendNotice("info", "Bad password (it's case sensitive)")
		return nil
	}

	c.launchGame(ctx, p, g)
	return nil
}

// launchGame binds the player to g and tells their client to start the game process.
func (c *LobbyConnection) launchGame(ctx context.Context, p *game.Player, g *game.Game) {
	c.abortCurrentGame(ctx, p, "Player launched a new game")

	gc := c.newGameConnection(g, p)
	c.setGameConnection(gc)
	p.SetGame(g)
	p.SetGameConnection(gc)
	p.SetState(game.PlayerJoining)

	c.Write(map[string]interface{}{
		"command": "game_launch",
		"mod":     g.Mode,
		"uid":     g.ID,
		"args":    []string{fmt.Sprintf("/numgames %d", p.GameCount(game.RatingGlobal))},
	})
}

func (c *LobbyConnection) commandRestoreGameSession(ctx context.Context, msg map[string]interface{}) error {
	p := c.Player()
	id, err := intArg(msg["game_id"])
	if err != nil {
		return clientErr("Invalid game id")
	}

	g, err := c.svc.Games.GetGame(id)
	if err != nil {
		c.SendNotice("info", "The game you were connected to does no longer exist")
		return nil
	}
	if st := g.State(); st != game.GameLobby && st != game.GameLive {
		c.SendNotice("info", "The game you were connected to is no longer available")
		return nil
	}

	c.abortCurrentGame(ctx, p, "restoring game session")
	gc := c.newGameConnection(g, p)
	if err := gc.Restore(); err != nil {
		c.SendNotice("info", "The game you were connected to is no longer available")
		return nil
	}
	c.setGameConnection(gc)
	p.SetGame(g)
	p.SetGameConnection(gc)
	p.SetState(game.PlayerPlaying)
	c.log().WithField("game_id", g.ID).Info("game session restored")
	return nil
}

func (c *LobbyConnection) commandGameMatchmaking(_ context.Context, msg map[string]interface{}) error {
	p := c.Player()
	state, _ := msg["state"].(string)
	switch state {
	case "start":
		if p.GameConnection() != nil {
			return clientErr("You can't search for a match while in a game")
		}
		faction := factionArg(msg["faction"])
		c.svc.Ladder.StartSearch(p, faction)
		p.SetState(game.PlayerSearchingLadder)
	case "stop":
		c.svc.Ladder.CancelSearch(p)
		if p.State() == game.PlayerSearchingLadder {
			p.SetState(game.PlayerIdle)
		}
	default:
		return clientErr("Unknown matchmaking state %q", state)
	}
	return nil
}

func factionArg(v interface{}) string {
	switch f := v.(type) {
	case string:
		return strings.ToLower(f)
	case float64:
		return strconv.Itoa(int(f))
	}
	return ""
}

func (c *LobbyConnection) commandAvatar(ctx context.Context, msg map[string]interface{}) error {
	p := c.Player()
	action, _ := msg["action"].(string)
	switch action {
	case "list_avatar":
		avatars, err := c.svc.Store.ListAvatars(ctx, p.ID)
		if err != nil {
			return err
		}
		list := make([]map[string]interface{}, 0, len(avatars))
		for _, a := range avatars {
			list = append(list, map[string]interface{}{"url": a.URL, "tooltip": a.Tooltip})
		}
		c.Write(map[string]interface{}{"command": "avatar", "avatarlist": list})
		return nil
	case "select":
		url, _ := msg["avatar"].(string)
		return c.svc.Store.SelectAvatar(ctx, p.ID, url)
	}
	return clientErr("Unknown avatar action %q", action)
}

func (c *LobbyConnection) commandSocialAdd(ctx context.Context, msg map[string]interface{}) error {
	p := c.Player()
	if v, ok := msg["friend"]; ok {
		id, err := intArg(v)
		if err != nil {
			return clientErr("Invalid player id")
		}
		if err := c.svc.Store.AddSocial(ctx, p.ID, id, models.RelationFriend); err != nil {
			return err
		}
		p.AddFriend(id)
		return nil
	}
	if v, ok := msg["foe"]; ok {
		id, err := intArg(v)
		if err != nil {
			return clientErr("Invalid player id")
		}
		if err := c.svc.Store.AddSocial(ctx, p.ID, id, models.RelationFoe); err != nil {
			return err
		}
		p.AddFoe(id)
		return nil
	}
	return clientErr("social_add needs a friend or a foe")
}

func (c *LobbyConnection) commandSocialRemove(ctx context.Context, msg map[string]interface{}) error {
	p := c.Player()
	v, ok := msg["friend"]
	if !ok {
		v, ok = msg["foe"]
	}
	if !ok {
		return clientErr("social_remove needs a friend or a foe")
	}
	id, err := intArg(v)
	if err != nil {
		return clientErr("Invalid player id")
	}
	if err := c.svc.Store.RemoveSocial(ctx, p.ID, id); err != nil {
		return err
	}
	p.RemoveFriend(id)
	p.RemoveFoe(id)
	return nil
}

// intArg accepts JSON numbers and numeric strings.
func intArg(v interface{}) (int, error) {
	switch n := v.(type) {
	case float64:
		return int(n), nil
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case string:
		return strconv.Atoi(strings.TrimSpace(n))
	}
	return 0, fmt.Errorf("not a number: %v", v)
}
