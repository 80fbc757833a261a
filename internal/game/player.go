// internal/game/player.go
package game

import (
	"sort"
	"sync"
)

// PlayerState is what a player is currently doing from the lobby's point of view.
type PlayerState int

const (
	PlayerIdle PlayerState = iota + 1
	PlayerPlaying
	PlayerHosting
	PlayerJoining
	PlayerSearchingLadder
)

func (s PlayerState) String() string {
	switch s {
	case PlayerIdle:
		return "idle"
	case PlayerPlaying:
		return "playing"
	case PlayerHosting:
		return "hosting"
	case PlayerJoining:
		return "joining"
	case PlayerSearchingLadder:
		return "searching_ladder"
	}
	return "unknown"
}

// RatingType names a rating track.
type RatingType string

const (
	RatingGlobal    RatingType = "global"
	RatingLadder1v1 RatingType = "ladder_1v1"
)

// Rating is a (mean, deviation) pair.
type Rating struct {
	Mean      float64 `json:"mean"`
	Deviation float64 `json:"deviation"`
}

// DefaultRating is what a player without history starts with.
var DefaultRating = Rating{Mean: 1500, Deviation: 500}

// LobbySession is the client connection currently representing a player.
type LobbySession interface {
	Send(msg map[string]interface{})
	SendWarning(text string)
	Kick(message string)
}

// Player is one authenticated user. The lobby connection, game and game connection it
// points at are observation links only: they can be cleared at any time and every
// reader must handle nil.
type Player struct {
	ID      int
	Login   string
	Session int64
	Address string

	mu        sync.Mutex
	clan      string
	country   string
	admin     bool
	moderator bool
	ratings   map[RatingType]Rating
	gameCount map[RatingType]int
	friends   map[int]struct{}
	foes      map[int]struct{}
	state     PlayerState

	lobbyConn LobbySession
	game      *Game
	gameConn  *GameConnection
}

func NewPlayer(id int, login string) *Player {
	return &Player{
		ID:        id,
		Login:     login,
		ratings:   make(map[RatingType]Rating),
		gameCount: make(map[RatingType]int),
		friends:   make(map[int]struct{}),
		foes:      make(map[int]struct{}),
		state:     PlayerIdle,
	}
}

func (p *Player) Rating(rt RatingType) Rating {
	p.mu.Lock()
	defer p.mu.Unlock()
	if r, ok := p.ratings[rt]; ok {
		return r
	}
	return DefaultRating
}

func (p *Player) SetRating(rt RatingType, r Rating) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ratings[rt] = r
}

func (p *Player) GameCount(rt RatingType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gameCount[rt]
}

func (p *Player) SetGameCount(rt RatingType, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gameCount[rt] = n
}

func (p *Player) IncrementGameCount(rt RatingType) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gameCount[rt]++
}

func (p *Player) SetProfile(clan, country string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clan = clan
	p.country = country
}

func (p *Player) Clan() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clan
}

func (p *Player) Country() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.country
}

func (p *Player) SetPermissions(admin, moderator bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.admin = admin
	p.moderator = moderator
}

func (p *Player) IsAdmin() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.admin
}

func (p *Player) IsModerator() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.moderator
}

// SetSocial replaces the friend and foe sets.
func (p *Player) SetSocial(friends, foes []int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.friends = make(map[int]struct{}, len(friends))
	for _, id := range friends {
		p.friends[id] = struct{}{}
	}
	p.foes = make(map[int]struct{}, len(foes))
	for _, id := range foes {
		p.foes[id] = struct{}{}
	}
}

// AddFriend records id as a friend; a player is never both friend and foe.
func (p *Player) AddFriend(id int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.foes, id)
	p.friends[id] = struct{}{}
}

func (p *Player) AddFoe(id int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.friends, id)
	p.foes[id] = struct{}{}
}

func (p *Player) RemoveFriend(id int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.friends, id)
}

func (p *Player) RemoveFoe(id int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.foes, id)
}

func (p *Player) IsFriend(id int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.friends[id]
	return ok
}

func (p *Player) IsFoe(id int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.foes[id]
	return ok
}

// Friends returns the friend ids in ascending order.
func (p *Player) Friends() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return sortedKeys(p.friends)
}

func (p *Player) Foes() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return sortedKeys(p.foes)
}

func (p *Player) State() PlayerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Player) SetState(s PlayerState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = s
}

func (p *Player) LobbyConnection() LobbySession {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lobbyConn
}

// SetLobbyConnection replaces the link. The previous session is not touched.
func (p *Player) SetLobbyConnection(ls LobbySession) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lobbyConn = ls
}

// ClearLobbyConnection drops the link only if it still points at ls.
func (p *Player) ClearLobbyConnection(ls LobbySession) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lobbyConn == ls {
		p.lobbyConn = nil
	}
}

func (p *Player) Game() *Game {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.game
}

func (p *Player) SetGame(g *Game) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.game = g
}

func (p *Player) GameConnection() *GameConnection {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gameConn
}

func (p *Player) SetGameConnection(gc *GameConnection) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gameConn = gc
}

// detachGameConnection clears the game links if gc is still the current connection, and
// reports whether it was.
func (p *Player) detachGameConnection(gc *GameConnection) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gameConn != gc {
		return false
	}
	p.gameConn = nil
	if p.game == gc.game {
		p.game = nil
	}
	p.state = PlayerIdle
	return true
}

// ToMap renders the player_info payload.
func (p *Player) ToMap() map[string]interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()

	ratings := make(map[string]interface{}, 2)
	for _, rt := range []RatingType{RatingGlobal, RatingLadder1v1} {
		r, ok := p.ratings[rt]
		if !ok {
			r = DefaultRating
		}
		ratings[string(rt)] = map[string]interface{}{
			"rating":          []float64{r.Mean, r.Deviation},
			"number_of_games": p.gameCount[rt],
		}
	}

	m := map[string]interface{}{
		"id":      p.ID,
		"login":   p.Login,
		"ratings": ratings,
	}
	if p.clan != "" {
		m["clan"] = p.clan
	}
	if p.country != "" {
		m["country"] = p.country
	}
	return m
}

func sortedKeys(m map[int]struct{}) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}
