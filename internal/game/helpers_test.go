package game

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// mockProtocol records what a game connection sends to its client.
type mockProtocol struct {
	mu     sync.Mutex
	sent   []map[string]interface{}
	closed int
}

func (m *mockProtocol) Send(msg map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
}

func (m *mockProtocol) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
}

func (m *mockProtocol) commands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sent))
	for _, msg := range m.sent {
		out = append(out, msg["command"].(string))
	}
	return out
}

func (m *mockProtocol) closeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// fakeStats records every stats hand-off.
type fakeStats struct {
	mu    sync.Mutex
	calls []GameResults
	err   error
}

func (f *fakeStats) ProcessGameStats(_ context.Context, _ *Game, results GameResults) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, results)
	return f.err
}

func (f *fakeStats) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

var testSettings = Settings{
	MinDurationPerPlayer: 60 * time.Second,
	DesyncLimit:          20,
}

type testEnv struct {
	svc   *GameService
	stats *fakeStats
	clock *fakeClock
}

func newTestEnv() *testEnv {
	stats := &fakeStats{}
	clock := newFakeClock()
	svc := NewGameService(testSettings, 1, stats, testLogger())
	svc.SetClock(clock.Now)
	return &testEnv{svc: svc, stats: stats, clock: clock}
}

type peer struct {
	player *Player
	conn   *GameConnection
	proto  *mockProtocol
}

func (e *testEnv) attach(g *Game, p *Player) *peer {
	proto := &mockProtocol{}
	gc := NewGameConnection(g, p, proto, testLogger())
	p.SetGame(g)
	p.SetGameConnection(gc)
	p.SetState(PlayerJoining)
	return &peer{player: p, conn: gc, proto: proto}
}

// hostLobby creates a game and brings the host and n-1 joiners into its lobby.
func (e *testEnv) hostLobby(t *testing.T, opts GameOptions, n int) (*Game, []*peer) {
	t.Helper()
	ctx := context.Background()
	host := NewPlayer(1, "host")
	opts.Host = host
	g := e.svc.CreateGame(opts)

	peers := []*peer{e.attach(g, host)}
	require.NoError(t, peers[0].conn.HandleAction(ctx, "GameState", []interface{}{"Idle"}))
	for i := 1; i < n; i++ {
		p := e.attach(g, NewPlayer(i+1, "player"+string(rune('a'+i))))
		require.NoError(t, p.conn.HandleAction(ctx, "GameState", []interface{}{"Idle"}))
		require.NoError(t, p.conn.HandleAction(ctx, "GameState", []interface{}{"Lobby"}))
		peers = append(peers, p)
	}
	return g, peers
}

// seat gives each peer its own army and places them on the given teams.
func seat(t *testing.T, g *Game, peers []*peer, teams []int) {
	t.Helper()
	for i, p := range peers {
		require.NoError(t, g.SetPlayerOption(p.player.ID, "Army", i))
		require.NoError(t, g.SetPlayerOption(p.player.ID, "StartSpot", i+1))
		require.NoError(t, g.SetPlayerOption(p.player.ID, "Team", teams[i]))
	}
}

// launch1v1 returns a live two player game on opposing teams.
func (e *testEnv) launch1v1(t *testing.T, enforce bool) (*Game, []*peer) {
	t.Helper()
	g, peers := e.hostLobby(t, GameOptions{Mode: ModeFAF, Name: "1v1", EnforceRating: enforce}, 2)
	seat(t, g, peers, []int{2, 3})
	require.NoError(t, peers[0].conn.HandleAction(context.Background(), "GameState", []interface{}{"Launching"}))
	require.Equal(t, GameLive, g.State())
	return g, peers
}

// reportCleanResult has every peer agree that army 0 won.
func reportCleanResult(t *testing.T, peers []*peer) {
	t.Helper()
	ctx := context.Background()
	for _, p := range peers {
		require.NoError(t, p.conn.HandleAction(ctx, "GameResult", []interface{}{0, "victory 10"}))
		require.NoError(t, p.conn.HandleAction(ctx, "GameResult", []interface{}{1, "defeat -5"}))
	}
}
