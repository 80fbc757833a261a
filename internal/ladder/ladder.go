// internal/ladder/ladder.go
package ladder

import (
	"sort"
	"sync"
	"time"

	"github.com/jason-s-yu/lobbyd/internal/game"
	"github.com/sirupsen/logrus"
)

const QueueName = "ladder1v1"

// Roster lists the players who should hear about queue changes.
type Roster interface {
	All() []*game.Player
}

// Search is one player waiting in the ladder queue.
type Search struct {
	Player    *game.Player
	Rating    game.Rating
	Faction   string
	StartedAt time.Time
}

// Service keeps the ladder queue. Pairing searches into games is done elsewhere; this
// type only tracks who is waiting and announces the queue size.
type Service struct {
	mu       sync.Mutex
	searches map[int]*Search

	roster Roster
	logger *logrus.Logger
	now    func() time.Time
}

func NewService(roster Roster, logger *logrus.Logger) *Service {
	return &Service{
		searches: make(map[int]*Search),
		roster:   roster,
		logger:   logger,
		now:      time.Now,
	}
}

// StartSearch queues p. A player already searching has their search replaced.
func (s *Service) StartSearch(p *game.Player, faction string) {
	s.mu.Lock()
	s.searches[p.ID] = &Search{
		Player:    p,
		Rating:    p.Rating(game.RatingLadder1v1),
		Faction:   faction,
		StartedAt: s.now(),
	}
	s.mu.Unlock()

	s.logger.WithField("player_id", p.ID).Info("ladder search started")
	s.broadcastInfo()
}

// CancelSearch removes p from the queue and reports whether they were in it. A search
// started by a newer session of the same account is left alone.
func (s *Service) CancelSearch(p *game.Player) bool {
	s.mu.Lock()
	sr, ok := s.searches[p.ID]
	ok = ok && sr.Player == p
	if ok {
		delete(s.searches, p.ID)
	}
	s.mu.Unlock()

	if !ok {
		return false
	}
	s.logger.WithField("player_id", p.ID).Info("ladder search cancelled")
	s.broadcastInfo()
	return true
}

// OnConnectionLost drops any search belonging to a player who disconnected.
func (s *Service) OnConnectionLost(p *game.Player) {
	s.CancelSearch(p)
}

func (s *Service) IsSearching(p *game.Player) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sr, ok := s.searches[p.ID]
	return ok && sr.Player == p
}

// Queue returns the waiting searches, oldest first.
func (s *Service) Queue() []Search {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Search, 0, len(s.searches))
	for _, sr := range s.searches {
		out = append(out, *sr)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].Player.ID < out[j].Player.ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// Info renders the matchmaker_info payload.
func (s *Service) Info() map[string]interface{} {
	queue := s.Queue()
	boundaries := make([][]float64, 0, len(queue))
	for _, sr := range queue {
		low := sr.Rating.Mean - 3*sr.Rating.Deviation
		boundaries = append(boundaries, []float64{low - 75, low + 75})
	}
	return map[string]interface{}{
		"command": "matchmaker_info",
		"queues": []map[string]interface{}{{
			"queue_name":   QueueName,
			"num_players":  len(queue),
			"boundary_75s": boundaries,
		}},
	}
}

func (s *Service) broadcastInfo() {
	if s.roster == nil {
		return
	}
	msg := s.Info()
	for _, p := range s.roster.All() {
		if lc := p.LobbyConnection(); lc != nil {
			lc.Send(msg)
		}
	}
}
