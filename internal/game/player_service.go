package game

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/jason-s-yu/lobbyd/internal/models"
	"github.com/sirupsen/logrus"
)

// PlayerStore loads what the lobby needs to know about a connecting player.
type PlayerStore interface {
	FetchAccount(ctx context.Context, playerID int) (*models.Account, []models.SocialRelation, error)
}

// PlayerService is the registry of online players.
type PlayerService struct {
	mu      sync.Mutex
	players map[int]*Player

	store  PlayerStore
	logger *logrus.Logger
}

func NewPlayerService(store PlayerStore, logger *logrus.Logger) *PlayerService {
	return &PlayerService{
		players: make(map[int]*Player),
		store:   store,
		logger:  logger,
	}
}

// Register inserts p under its id and returns the player it displaced, if any.
func (s *PlayerService) Register(p *Player) *Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.players[p.ID]
	s.players[p.ID] = p
	if prev == p {
		return nil
	}
	return prev
}

func (s *PlayerService) Get(id int) (*Player, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[id]
	return p, ok
}

// Remove deletes p if it is still the registered player for its id. It reports whether
// anything was removed, so calling it again is harmless.
func (s *PlayerService) Remove(p *Player) bool {
	s.mu.Lock()
	cur, ok := s.players[p.ID]
	if !ok || cur != p {
		s.mu.Unlock()
		return false
	}
	delete(s.players, p.ID)
	s.mu.Unlock()

	// Clear the routing link so nothing keeps notifying a player that is gone.
	p.SetLobbyConnection(nil)
	s.logger.WithField("player_id", p.ID).Debug("player removed from registry")
	return true
}

// All returns the online players ordered by id.
func (s *PlayerService) All() []*Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Player, 0, len(s.players))
	for _, p := range s.players {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *PlayerService) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.players)
}

// FetchPlayerData fills in ratings, profile, permissions and social lists from storage.
func (s *PlayerService) FetchPlayerData(ctx context.Context, p *Player) error {
	acc, rel, err := s.store.FetchAccount(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("fetch player %d: %w", p.ID, err)
	}

	if acc.Login != "" {
		p.Login = acc.Login
	}
	p.SetProfile(acc.Clan, acc.Country)
	p.SetPermissions(acc.IsAdmin, acc.IsModerator)
	p.SetRating(RatingGlobal, Rating{Mean: acc.GlobalMean, Deviation: acc.GlobalDeviation})
	p.SetRating(RatingLadder1v1, Rating{Mean: acc.LadderMean, Deviation: acc.LadderDeviation})
	p.SetGameCount(RatingGlobal, acc.GlobalGames)
	p.SetGameCount(RatingLadder1v1, acc.LadderGames)

	var friends, foes []int
	for _, r := range rel {
		switch r.Status {
		case models.RelationFriend:
			friends = append(friends, r.SubjectID)
		case models.RelationFoe:
			foes = append(foes, r.SubjectID)
		}
	}
	p.SetSocial(friends, foes)
	return nil
}
