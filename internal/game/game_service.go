package game

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Featured mods the server knows about.
const (
	ModeFAF    = "faf"
	ModeLadder = "ladder1v1"
	ModeCoop   = "coop"
)

type modInfo struct {
	name        string
	fullname    string
	description string
	publish     bool
}

var featuredMods = []modInfo{
	{ModeFAF, "Forged Alliance Forever", "Standard multiplayer", true},
	{ModeLadder, "Ladder 1v1", "Ranked one versus one", false},
	{ModeCoop, "Coop", "Cooperative campaign missions", true},
	{"nomads", "Nomads", "A fifth faction", true},
	{"phantomx", "Phantom-X", "Hidden traitor game mode", true},
}

// GameService owns every game from creation until it is pruned after ending.
type GameService struct {
	mu     sync.Mutex
	games  map[int]*Game
	dirty  map[int]*Game
	nextID int

	settings Settings
	stats    StatsProcessor
	logger   *logrus.Logger
	now      func() time.Time
}

func NewGameService(settings Settings, startingID int, stats StatsProcessor, logger *logrus.Logger) *GameService {
	if startingID < 1 {
		startingID = 1
	}
	return &GameService{
		games:    make(map[int]*Game),
		dirty:    make(map[int]*Game),
		nextID:   startingID,
		settings: settings,
		stats:    stats,
		logger:   logger,
		now:      time.Now,
	}
}

// SetClock replaces the time source used by games created afterwards.
func (s *GameService) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// CreateGame registers a new game in the INITIALIZING state. The host opens it once their
// client reports it is idle.
func (s *GameService) CreateGame(opts GameOptions) *Game {
	if opts.Mode == "" {
		opts.Mode = ModeFAF
	}
	if opts.Mode == ModeLadder {
		opts.RatingType = RatingLadder1v1
		opts.EnforceRating = true
	}

	s.mu.Lock()
	opts.ID = s.nextID
	s.nextID++
	now := s.now
	s.mu.Unlock()

	g := newGame(opts, s.settings, s.stats, s.logger, now, s.MarkDirty)

	s.mu.Lock()
	s.games[g.ID] = g
	s.dirty[g.ID] = g
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{"game_id": g.ID, "mode": g.Mode, "host_id": g.hostID()}).Info("game created")
	return g
}

func (s *GameService) GetGame(id int) (*Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[id]
	if !ok {
		return nil, ErrGameNotFound
	}
	return g, nil
}

// Games returns every registered game ordered by id.
func (s *GameService) Games() []*Game {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Game, 0, len(s.games))
	for _, g := range s.games {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *GameService) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.games)
}

// OpenGames returns games still in the lobby.
func (s *GameService) OpenGames() []*Game {
	var out []*Game
	for _, g := range s.Games() {
		if g.State() == GameLobby {
			out = append(out, g)
		}
	}
	return out
}

// VisibleOpenGames filters OpenGames down to those p may see.
func (s *GameService) VisibleOpenGames(p *Player) []*Game {
	var out []*Game
	for _, g := range s.OpenGames() {
		if IsVisibleTo(g, p) {
			out = append(out, g)
		}
	}
	return out
}

// IsVisibleTo hides games hosted by a foe of p, and friends-only games from anyone the
// host has not befriended.
func IsVisibleTo(g *Game, p *Player) bool {
	host := g.Host()
	if host == nil || p == nil {
		return true
	}
	if host.ID == p.ID {
		return true
	}
	if p.IsFoe(host.ID) {
		return false
	}
	if g.Visibility() == VisibilityFriends {
		return host.IsFriend(p.ID)
	}
	return true
}

func (s *GameService) MarkDirty(g *Game) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty[g.ID] = g
}

// DirtyGames returns the games changed since the last call and resets the set.
func (s *GameService) DirtyGames() []*Game {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Game, 0, len(s.dirty))
	for _, g := range s.dirty {
		out = append(out, g)
	}
	s.dirty = make(map[int]*Game)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// PruneEnded drops ended games from the registry, aborting any peers still attached,
// and returns how many were removed.
func (s *GameService) PruneEnded(ctx context.Context) int {
	var ended []*Game
	s.mu.Lock()
	for id, g := range s.games {
		if g.State() == GameEnded {
			ended = append(ended, g)
			delete(s.games, id)
		}
	}
	s.mu.Unlock()

	for _, g := range ended {
		g.Close(ctx)
	}
	if len(ended) > 0 {
		s.logger.WithField("count", len(ended)).Debug("pruned ended games")
	}
	return len(ended)
}

// AllGameModes is the mod_info list sent to clients after login.
func AllGameModes() []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(featuredMods))
	for i, m := range featuredMods {
		out = append(out, map[string]interface{}{
			"command":  "mod_info",
			"name":     m.name,
			"fullname": m.fullname,
			"publish":  m.publish,
			"order":    i,
			"desc":     m.description,
		})
	}
	return out
}
