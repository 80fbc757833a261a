package lobby

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jason-s-yu/lobbyd/internal/auth"
	"github.com/jason-s-yu/lobbyd/internal/config"
	"github.com/jason-s-yu/lobbyd/internal/database"
	"github.com/jason-s-yu/lobbyd/internal/game"
	"github.com/jason-s-yu/lobbyd/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type socialCall struct {
	user, subject int
	status        string
}

// fakeStore keeps accounts, bans and social edits in memory.
type fakeStore struct {
	mu       sync.Mutex
	accounts map[int]*models.Account
	bans     []models.Ban
	added    []socialCall
	removed  []socialCall
	avatars  map[int][]models.Avatar
	selected map[int]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts: make(map[int]*models.Account),
		avatars:  make(map[int][]models.Avatar),
		selected: make(map[int]string),
	}
}

func (s *fakeStore) addAccount(id int, login string) *models.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := &models.Account{ID: id, Login: login, GlobalMean: 1500, GlobalDeviation: 500}
	s.accounts[id] = a
	return a
}

func (s *fakeStore) FetchAccount(_ context.Context, id int) (*models.Account, []models.SocialRelation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, nil, database.ErrPlayerNotFound
	}
	cp := *a
	return &cp, nil, nil
}

func (s *fakeStore) PlayerExists(_ context.Context, id int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.accounts[id]
	return ok, nil
}

func (s *fakeStore) activeBanLocked(id int) *models.Ban {
	now := time.Now()
	for i := range s.bans {
		b := s.bans[i]
		if b.PlayerID == id && (b.ExpiresAt == nil || b.ExpiresAt.After(now)) {
			return &b
		}
	}
	return nil
}

func (s *fakeStore) InsertBan(_ context.Context, b *models.Ban) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[b.PlayerID]; !ok {
		return false, database.ErrPlayerNotFound
	}
	if s.activeBanLocked(b.PlayerID) != nil {
		return false, nil
	}
	s.bans = append(s.bans, *b)
	return true, nil
}

func (s *fakeStore) ActiveBan(_ context.Context, id int) (*models.Ban, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeBanLocked(id), nil
}

func (s *fakeStore) banCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bans)
}

func (s *fakeStore) AddSocial(_ context.Context, user, subject int, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.added = append(s.added, socialCall{user, subject, status})
	return nil
}

func (s *fakeStore) RemoveSocial(_ context.Context, user, subject int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = append(s.removed, socialCall{user: user, subject: subject})
	return nil
}

func (s *fakeStore) ListAvatars(_ context.Context, id int) ([]models.Avatar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.avatars[id], nil
}

func (s *fakeStore) SelectAvatar(_ context.Context, id int, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected[id] = url
	return nil
}

// fakeLadder counts calls per player id.
type fakeLadder struct {
	mu       sync.Mutex
	started  map[int]string
	canceled map[int]int
	lost     map[int]int
}

func newFakeLadder() *fakeLadder {
	return &fakeLadder{started: map[int]string{}, canceled: map[int]int{}, lost: map[int]int{}}
}

func (l *fakeLadder) StartSearch(p *game.Player, faction string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.started[p.ID] = faction
}

func (l *fakeLadder) CancelSearch(p *game.Player) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.canceled[p.ID]++
	return true
}

func (l *fakeLadder) OnConnectionLost(p *game.Player) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lost[p.ID]++
}

// fakePolicy answers every request with a fixed verdict or error.
type fakePolicy struct {
	verdict string
	err     error
	calls   int32
}

func (f *fakePolicy) Verify(_ context.Context, _ int, _ string, _ int64) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.verdict, f.err
}

var errBadToken = errors.New("bad token")

// tokenFor builds a token the fake authenticator accepts.
func tokenFor(id int) string { return fmt.Sprintf("token-%d", id) }

func fakeAuth(token string) (auth.SessionClaims, error) {
	s, ok := strings.CutPrefix(token, "token-")
	if !ok {
		return auth.SessionClaims{}, errBadToken
	}
	id, err := strconv.Atoi(s)
	if err != nil {
		return auth.SessionClaims{}, errBadToken
	}
	return auth.SessionClaims{PlayerID: id, Session: 1000 + int64(id)}, nil
}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type testEnv struct {
	svc    *Services
	store  *fakeStore
	ladder *fakeLadder
}

func newTestEnv() *testEnv {
	log := testLogger()
	store := newFakeStore()
	ladder := newFakeLadder()
	settings := game.Settings{MinDurationPerPlayer: time.Minute, DesyncLimit: 20}
	svc := &Services{
		Players:      game.NewPlayerService(store, log),
		Games:        game.NewGameService(settings, 1, nil, log),
		Ladder:       ladder,
		Store:        store,
		Authenticate: fakeAuth,
		Config: config.Config{
			RuleLink:   "https://rules.example",
			ServerName: "FAF",
		},
		Logger: log,
	}
	return &testEnv{svc: svc, store: store, ladder: ladder}
}

// client wraps a LobbyConnection with a counter of transport closes.
type client struct {
	*LobbyConnection
	cancels int32
}

func (e *testEnv) connect() *client {
	cl := &client{}
	cl.LobbyConnection = NewLobbyConnection(e.svc, "127.0.0.1", func() { atomic.AddInt32(&cl.cancels, 1) })
	return cl
}

func (cl *client) cancelCount() int { return int(atomic.LoadInt32(&cl.cancels)) }

func (cl *client) send(msg map[string]interface{}) {
	cl.HandleMessage(context.Background(), msg)
}

// drain empties the outbound buffer.
func (cl *client) drain() []map[string]interface{} {
	var out []map[string]interface{}
	for {
		select {
		case m := <-cl.OutChan:
			out = append(out, m)
		default:
			return out
		}
	}
}

// only asserts exactly one message is pending and returns it.
func (cl *client) only(t *testing.T) map[string]interface{} {
	t.Helper()
	msgs := cl.drain()
	require.Len(t, msgs, 1, "messages: %v", msgs)
	return msgs[0]
}

func (e *testEnv) login(t *testing.T, id int, name string) *client {
	t.Helper()
	if _, ok, _ := e.store.accountExists(id); !ok {
		e.store.addAccount(id, name)
	}
	cl := e.connect()
	cl.send(map[string]interface{}{"command": "hello", "token": tokenFor(id), "unique_id": "uid"})
	require.True(t, cl.Authenticated())
	cl.drain()
	return cl
}

func (e *testEnv) loginAdmin(t *testing.T, id int, name string) *client {
	t.Helper()
	a := e.store.addAccount(id, name)
	a.IsAdmin = true
	return e.login(t, id, name)
}

func (s *fakeStore) accountExists(id int) (*models.Account, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	return a, ok, nil
}

func notice(style, text string) map[string]interface{} {
	return map[string]interface{}{"command": "notice", "style": style, "text": text}
}
