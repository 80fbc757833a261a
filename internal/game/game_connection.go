// internal/game/game_connection.go
package game

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// ConnectionState tracks a peer's progress towards the host.
type ConnectionState int

const (
	ConnInitializing ConnectionState = iota
	ConnConnectingToHost
	ConnConnectedToHost
	ConnAborted
)

func (s ConnectionState) String() string {
	switch s {
	case ConnInitializing:
		return "initializing"
	case ConnConnectingToHost:
		return "connecting_to_host"
	case ConnConnectedToHost:
		return "connected_to_host"
	case ConnAborted:
		return "aborted"
	}
	return "unknown"
}

// Protocol is the channel used to talk to the player's game client.
type Protocol interface {
	Send(msg map[string]interface{})
	Close()
}

// GameConnection links one player's lobby session to a game they are in.
type GameConnection struct {
	player   *Player
	game     *Game
	protocol Protocol
	logger   *logrus.Logger

	mu          sync.Mutex
	state       ConnectionState
	finishedSim bool

	abortOnce sync.Once
}

func NewGameConnection(g *Game, p *Player, proto Protocol, logger *logrus.Logger) *GameConnection {
	return &GameConnection{
		player:   p,
		game:     g,
		protocol: proto,
		logger:   logger,
		state:    ConnInitializing,
	}
}

func (gc *GameConnection) Player() *Player { return gc.player }
func (gc *GameConnection) Game() *Game     { return gc.game }

func (gc *GameConnection) State() ConnectionState {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	return gc.state
}

func (gc *GameConnection) FinishedSim() bool {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	return gc.finishedSim
}

func (gc *GameConnection) isHost() bool {
	h := gc.game.Host()
	return h != nil && h.ID == gc.player.ID
}

func (gc *GameConnection) log() *logrus.Entry {
	return gc.logger.WithFields(logrus.Fields{"game_id": gc.game.ID, "player_id": gc.player.ID})
}

// setState moves to s unless the connection is already aborted.
func (gc *GameConnection) setState(s ConnectionState) bool {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	if gc.state == ConnAborted {
		return false
	}
	gc.state = s
	return true
}

func (gc *GameConnection) send(command string, args ...interface{}) {
	if args == nil {
		args = []interface{}{}
	}
	gc.protocol.Send(map[string]interface{}{
		"command": command,
		"target":  "game",
		"args":    args,
	})
}

// HandleAction processes one message from the game client. Unknown commands are ignored.
func (gc *GameConnection) HandleAction(ctx context.Context, command string, args []interface{}) error {
	state := gc.State()
	if state == ConnAborted {
		return ErrAborted
	}

	if command == "GameState" {
		if len(args) < 1 {
			return fmt.Errorf("GameState: missing state")
		}
		return gc.handleGameState(ctx, fmt.Sprint(args[0]))
	}

	switch command {
	case "PlayerOption", "GameOption", "AIOption", "ClearSlot",
		"GameResult", "Desync", "GameEnded", "JsonStats":
	default:
		gc.log().WithField("command", command).Debug("ignoring unknown game command")
		return nil
	}

	if state != ConnConnectedToHost {
		return fmt.Errorf("%s: %w", command, ErrNotConnected)
	}

	switch command {
	case "PlayerOption":
		if !gc.isHost() {
			return ErrNotHost
		}
		if len(args) < 3 {
			return fmt.Errorf("PlayerOption: expected 3 args, got %d", len(args))
		}
		pid, err := optionInt(args[0])
		if err != nil {
			return fmt.Errorf("PlayerOption: %w", err)
		}
		val, err := optionInt(args[2])
		if err != nil {
			return fmt.Errorf("PlayerOption: %w", err)
		}
		return gc.game.SetPlayerOption(pid, fmt.Sprint(args[1]), val)

	case "GameOption":
		if !gc.isHost() {
			return ErrNotHost
		}
		if len(args) < 2 {
			return fmt.Errorf("GameOption: expected 2 args, got %d", len(args))
		}
		return gc.game.SetGameOption(fmt.Sprint(args[0]), optionString(args[1]))

	case "AIOption":
		if !gc.isHost() {
			return ErrNotHost
		}
		if len(args) < 3 {
			return fmt.Errorf("AIOption: expected 3 args, got %d", len(args))
		}
		return gc.game.SetAIOption(fmt.Sprint(args[0]), fmt.Sprint(args[1]), optionString(args[2]))

	case "ClearSlot":
		if !gc.isHost() {
			return ErrNotHost
		}
		if len(args) < 1 {
			return fmt.Errorf("ClearSlot: missing slot")
		}
		slot, err := optionInt(args[0])
		if err != nil {
			return fmt.Errorf("ClearSlot: %w", err)
		}
		return gc.game.ClearSlot(slot)

	case "GameResult":
		if len(args) < 2 {
			return fmt.Errorf("GameResult: expected 2 args, got %d", len(args))
		}
		army, err := optionInt(args[0])
		if err != nil {
			return fmt.Errorf("GameResult: %w", err)
		}
		outcome, score, err := parseResult(fmt.Sprint(args[1]))
		if err != nil {
			return fmt.Errorf("GameResult: %w", err)
		}
		return gc.game.AddResult(gc.player.ID, army, outcome, score)

	case "Desync":
		gc.game.AddDesync()
		return nil

	case "GameEnded":
		gc.mu.Lock()
		gc.finishedSim = true
		gc.mu.Unlock()
		gc.game.CheckSimEnd(ctx)
		return nil

	case "JsonStats":
		if len(args) < 1 {
			return fmt.Errorf("JsonStats: missing payload")
		}
		gc.game.ReportArmyStats(fmt.Sprint(args[0]))
		return nil
	}
	return nil
}

func (gc *GameConnection) handleGameState(ctx context.Context, state string) error {
	switch state {
	case "Idle":
		if gc.isHost() {
			if err := gc.game.Open(); err != nil {
				return err
			}
			if !gc.setState(ConnConnectedToHost) {
				return ErrAborted
			}
			if err := gc.game.AddGameConnection(gc); err != nil {
				return err
			}
			gc.player.SetState(PlayerHosting)
			gc.send("HostGame", gc.game.MapName())
			return nil
		}
		if !gc.setState(ConnConnectingToHost) {
			return ErrAborted
		}
		return nil

	case "Lobby":
		if gc.isHost() {
			return nil
		}
		return gc.connectToHost()

	case "Launching":
		if !gc.isHost() {
			return nil
		}
		if gc.State() != ConnConnectedToHost {
			return fmt.Errorf("Launching: %w", ErrNotConnected)
		}
		return gc.game.Launch(ctx)

	case "Ended":
		gc.Abort(ctx, "game ended")
		return nil
	}
	gc.log().WithField("state", state).Debug("ignoring unknown game state")
	return nil
}

// connectToHost joins the lobby and tells every peer about each other.
func (gc *GameConnection) connectToHost() error {
	host := gc.game.Host()
	if host == nil {
		return fmt.Errorf("game %d has no host", gc.game.ID)
	}
	if err := gc.game.AddGameConnection(gc); err != nil {
		return err
	}
	if !gc.setState(ConnConnectedToHost) {
		return ErrAborted
	}

	gc.send("JoinGame", host.Login, host.ID)
	for _, peer := range gc.game.Connections() {
		if peer == gc || peer.player.ID == host.ID || peer.State() != ConnConnectedToHost {
			continue
		}
		peer.send("ConnectToPeer", gc.player.Login, gc.player.ID)
		gc.send("ConnectToPeer", peer.player.Login, peer.player.ID)
	}
	return nil
}

// Restore puts a reconnecting client straight back into the game it was playing.
func (gc *GameConnection) Restore() error {
	if !gc.setState(ConnConnectedToHost) {
		return ErrAborted
	}
	return gc.game.restoreGameConnection(gc)
}

// Abort tears the connection down. It is safe to call any number of times.
func (gc *GameConnection) Abort(ctx context.Context, reason string) {
	gc.abortOnce.Do(func() {
		gc.mu.Lock()
		gc.state = ConnAborted
		gc.mu.Unlock()

		gc.log().WithField("reason", reason).Info("aborting game connection")
		gc.protocol.Close()
		gc.player.detachGameConnection(gc)
		gc.game.RemoveGameConnection(ctx, gc)
	})
}

// parseResult reads "<outcome> <score>", e.g. "victory 10".
func parseResult(s string) (Outcome, int, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return OutcomeUnknown, 0, fmt.Errorf("empty result")
	}
	outcome := ParseOutcome(fields[0])
	switch outcome {
	case OutcomeVictory, OutcomeDefeat, OutcomeDraw, OutcomeMutualDraw:
	default:
		return OutcomeUnknown, 0, fmt.Errorf("unknown outcome %q", fields[0])
	}
	score := 0
	if len(fields) > 1 {
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			return OutcomeUnknown, 0, fmt.Errorf("bad score %q", fields[1])
		}
		score = n
	}
	return outcome, score, nil
}
