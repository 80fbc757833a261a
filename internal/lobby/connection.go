// internal/lobby/connection.go
package lobby

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jason-s-yu/lobbyd/internal/auth"
	"github.com/jason-s-yu/lobbyd/internal/config"
	"github.com/jason-s-yu/lobbyd/internal/game"
	"github.com/jason-s-yu/lobbyd/internal/models"
	"github.com/sirupsen/logrus"
)

// OutBufferSize is the number of queued outbound messages before Write starts dropping.
const OutBufferSize = 64

// LadderService is the part of the matchmaker the lobby talks to.
type LadderService interface {
	StartSearch(p *game.Player, faction string)
	CancelSearch(p *game.Player) bool
	OnConnectionLost(p *game.Player)
}

// PolicyClient asks the fraud-policy server for a verdict on a login.
type PolicyClient interface {
	Verify(ctx context.Context, playerID int, uidHash string, session int64) (string, error)
}

// Store is the persistence the lobby commands need.
type Store interface {
	PlayerExists(ctx context.Context, playerID int) (bool, error)
	InsertBan(ctx context.Context, b *models.Ban) (bool, error)
	ActiveBan(ctx context.Context, playerID int) (*models.Ban, error)
	AddSocial(ctx context.Context, userID, subjectID int, status string) error
	RemoveSocial(ctx context.Context, userID, subjectID int) error
	ListAvatars(ctx context.Context, playerID int) ([]models.Avatar, error)
	SelectAvatar(ctx context.Context, playerID int, url string) error
}

// Services bundles the collaborators shared by every lobby connection.
type Services struct {
	Players *game.PlayerService
	Games   *game.GameService
	Ladder  LadderService
	// Policy may be nil, which skips the conformity check at login.
	Policy PolicyClient
	Store  Store
	// Authenticate validates a session token. Defaults to auth.AuthenticateJWT.
	Authenticate func(token string) (auth.SessionClaims, error)
	Config       config.Config
	Logger       *logrus.Logger
}

// LobbyConnection is one client's session with the lobby server.
type LobbyConnection struct {
	svc     *Services
	Address string

	// OutChan is drained by the socket writer.
	OutChan chan map[string]interface{}
	// Cancel stops the socket pumps. Abort calls it exactly once.
	Cancel func()

	mu            sync.Mutex
	player        *game.Player
	authenticated bool
	gameConn      *game.GameConnection

	abortOnce sync.Once
	lostOnce  sync.Once
}

func NewLobbyConnection(svc *Services, address string, cancel func()) *LobbyConnection {
	return &LobbyConnection{
		svc:     svc,
		Address: address,
		OutChan: make(chan map[string]interface{}, OutBufferSize),
		Cancel:  cancel,
	}
}

func (c *LobbyConnection) authenticate(token string) (auth.SessionClaims, error) {
	if c.svc.Authenticate != nil {
		return c.svc.Authenticate(token)
	}
	return auth.AuthenticateJWT(token)
}

func (c *LobbyConnection) log() *logrus.Entry {
	e := c.svc.Logger.WithField("address", c.Address)
	if p := c.Player(); p != nil {
		e = e.WithField("player_id", p.ID)
	}
	return e
}

// Player returns the authenticated player, or nil before hello.
func (c *LobbyConnection) Player() *game.Player {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.player
}

func (c *LobbyConnection) Authenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticated
}

func (c *LobbyConnection) GameConnection() *game.GameConnection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gameConn
}

func (c *LobbyConnection) setGameConnection(gc *game.GameConnection) {
	c.mu.Lock()
	c.gameConn = gc
	c.mu.Unlock()
}

// clearGameConnection drops gc only if it is still the current one.
func (c *LobbyConnection) clearGameConnection(gc *game.GameConnection) {
	c.mu.Lock()
	if c.gameConn == gc {
		c.gameConn = nil
	}
	c.mu.Unlock()
}

// Write pushes a message onto OutChan without blocking. A full buffer drops the message.
func (c *LobbyConnection) Write(msg map[string]interface{}) {
	select {
	case c.OutChan <- msg:
	default:
		cmd, _ := msg["command"].(string)
		c.log().WithField("command", cmd).Warn("outbound buffer full, dropping message")
	}
}

// Send implements game.LobbySession.
func (c *LobbyConnection) Send(msg map[string]interface{}) {
	c.Write(msg)
}

func (c *LobbyConnection) SendNotice(style, text string) {
	c.Write(map[string]interface{}{
		"command": "notice",
		"style":   style,
		"text":    text,
	})
}

func (c *LobbyConnection) SendWarning(text string) {
	c.SendNotice("warning", text)
}

// Kick tells the client why it is being disconnected and then aborts.
func (c *LobbyConnection) Kick(message string) {
	if message == "" {
		message = "You have been kicked"
	}
	c.SendNotice("kick", message)
	c.Abort(message)
}

// Abort closes the connection. Only the first call has any effect.
func (c *LobbyConnection) Abort(reason string) {
	c.abortOnce.Do(func() {
		c.log().WithField("reason", reason).Info("aborting lobby connection")
		if c.Cancel != nil {
			c.Cancel()
		}
	})
}

// HandleMessage dispatches msg and turns any error into a notice for the client.
func (c *LobbyConnection) HandleMessage(ctx context.Context, msg map[string]interface{}) {
	err := c.Dispatch(ctx, msg)
	if err == nil {
		return
	}

	var ce *ClientError
	if errors.As(err, &ce) {
		c.SendNotice("error", ce.Message)
		if ce.Fatal {
			c.Abort(ce.Message)
		}
		return
	}

	cmd, _ := msg["command"].(string)
	c.log().WithError(err).WithField("command", cmd).Error("command failed")
	c.SendNotice("error", fmt.Sprintf("The server could not process %q. Please try again.", cmd))
}

// OnConnectionLost releases everything tied to this session. Only the first call has
// any effect.
func (c *LobbyConnection) OnConnectionLost(ctx context.Context) {
	c.lostOnce.Do(func() {
		p := c.Player()
		if p != nil && c.svc.Ladder != nil {
			c.svc.Ladder.OnConnectionLost(p)
		}
		if gc := c.GameConnection(); gc != nil {
			gc.Abort(ctx, "lobby connection lost")
		}
		if p != nil {
			c.svc.Players.Remove(p)
			p.ClearLobbyConnection(c)
			c.log().Info("player went offline")
		}
	})
}

// gameLink carries game traffic over the lobby socket.
type gameLink struct {
	lc *LobbyConnection
	gc *game.GameConnection
}

func (l *gameLink) Send(msg map[string]interface{}) { l.lc.Write(msg) }

// Close unhooks the game connection from the lobby session; the socket stays up.
func (l *gameLink) Close() { l.lc.clearGameConnection(l.gc) }

// newGameConnection builds a game connection for g whose traffic flows through c.
func (c *LobbyConnection) newGameConnection(g *game.Game, p *game.Player) *game.GameConnection {
	link := &gameLink{lc: c}
	gc := game.NewGameConnection(g, p, link, c.svc.Logger)
	link.gc = gc
	return gc
}

// abortCurrentGame drops any game connection the player still holds.
func (c *LobbyConnection) abortCurrentGame(ctx context.Context, p *game.Player, reason string) {
	if gc := c.GameConnection(); gc != nil {
		gc.Abort(ctx, reason)
	}
	if gc := p.GameConnection(); gc != nil {
		gc.Abort(ctx, reason)
	}
}
