// internal/game/game.go
package game

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/jason-s-yu/lobbyd/internal/cache"
	"github.com/sirupsen/logrus"
)

// StatsProcessor turns the results of a valid game into rating updates.
type StatsProcessor interface {
	ProcessGameStats(ctx context.Context, g *Game, results GameResults) error
}

// Settings are the tunables every game is created with.
type Settings struct {
	// MinDurationPerPlayer scales with the number of players; a game ending sooner is TOO_SHORT.
	MinDurationPerPlayer time.Duration
	DesyncLimit          int
	LobbyTimeout         time.Duration
}

// PlayerResult is one player's line in a finished game.
type PlayerResult struct {
	Player  *Player
	Army    int
	Team    int
	Faction int
	Color   int
	Outcome Outcome
	Score   int
}

// GameResults is what the stats processor receives for a valid game.
type GameResults struct {
	GameID     int
	Mode       string
	RatingType RatingType
	Duration   time.Duration
	Players    []PlayerResult
	ArmyStats  string
}

type resultReport struct {
	reporter int
	outcome  Outcome
	score    int
}

// Game is one hosted match, from the lobby through to its end.
type Game struct {
	ID            int
	Mode          string
	RatingType    RatingType
	EnforceRating bool

	host *Player

	mu            sync.Mutex
	name          string
	mapName       string
	password      string
	visibility    Visibility
	state         GameState
	gameOptions   map[string]string
	playerOptions map[int]*PlayerOptions
	aiOptions     map[string]map[string]string
	connections   map[int]*GameConnection
	players       []*Player
	results       map[int][]resultReport
	armyStats     string
	desyncs       int
	launchedAt    time.Time
	validity      Validity
	endCalled     bool
	timer         *time.Timer

	settings Settings
	stats    StatsProcessor
	logger   *logrus.Logger
	now      func() time.Time
	onDirty  func(*Game)
}

// GameOptions configures a new game.
type GameOptions struct {
	ID            int
	Mode          string
	Name          string
	Host          *Player
	Visibility    Visibility
	Password      string
	MapName       string
	RatingType    RatingType
	EnforceRating bool
}

func newGame(opts GameOptions, settings Settings, stats StatsProcessor, logger *logrus.Logger, now func() time.Time, onDirty func(*Game)) *Game {
	if now == nil {
		now = time.Now
	}
	if opts.RatingType == "" {
		opts.RatingType = RatingGlobal
	}
	g := &Game{
		ID:            opts.ID,
		Mode:          opts.Mode,
		RatingType:    opts.RatingType,
		EnforceRating: opts.EnforceRating,
		host:          opts.Host,
		name:          SanitizeName(opts.Name),
		mapName:       opts.MapName,
		password:      opts.Password,
		visibility:    opts.Visibility,
		state:         GameInitializing,
		gameOptions:   defaultGameOptions(),
		playerOptions: make(map[int]*PlayerOptions),
		aiOptions:     make(map[string]map[string]string),
		connections:   make(map[int]*GameConnection),
		results:       make(map[int][]resultReport),
		validity:      ValidityValid,
		settings:      settings,
		stats:         stats,
		logger:        logger,
		now:           now,
		onDirty:       onDirty,
	}
	if settings.LobbyTimeout > 0 {
		g.timer = time.AfterFunc(settings.LobbyTimeout, func() {
			g.Timeout(context.Background())
		})
	}
	return g
}

func (g *Game) Host() *Player { return g.host }

func (g *Game) log() *logrus.Entry {
	return g.logger.WithFields(logrus.Fields{"game_id": g.ID, "mode": g.Mode})
}

func (g *Game) State() GameState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *Game) Name() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.name
}

func (g *Game) MapName() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.mapName
}

func (g *Game) Visibility() Visibility {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.visibility
}

// CheckPassword compares case-sensitively. A game without a password accepts anything.
func (g *Game) CheckPassword(pw string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.password == "" || g.password == pw
}

func (g *Game) HasPassword() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.password != ""
}

func (g *Game) LaunchedAt() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.launchedAt
}

func (g *Game) Validity() Validity {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.validity
}

func (g *Game) Desyncs() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.desyncs
}

// Open moves a freshly created game into the lobby.
func (g *Game) Open() error {
	g.mu.Lock()
	if g.state != GameInitializing {
		g.mu.Unlock()
		return fmt.Errorf("%w: open from %s", ErrInvalidState, g.state)
	}
	g.state = GameLobby
	g.mu.Unlock()

	g.log().Info("game opened")
	g.markDirty()
	return nil
}

// SetPlayerOption changes one slot setting. A player not yet on the roster is added.
func (g *Game) SetPlayerOption(playerID int, key string, value int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != GameLobby {
		return fmt.Errorf("%w: player option in %s", ErrInvalidState, g.state)
	}
	opts, ok := g.playerOptions[playerID]
	if !ok {
		opts = newPlayerOptions()
	}
	if err := opts.set(key, value); err != nil {
		return err
	}
	g.playerOptions[playerID] = opts
	return nil
}

// PlayerOption returns a slot value, or NoOption if the player has none.
func (g *Game) PlayerOption(playerID int, key string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	opts, ok := g.playerOptions[playerID]
	if !ok {
		return NoOption
	}
	v, ok := opts.get(key)
	if !ok {
		return NoOption
	}
	return v
}

// PlayerOptions returns a copy of a player's slot, if they have one.
func (g *Game) PlayerOptions(playerID int) (PlayerOptions, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	opts, ok := g.playerOptions[playerID]
	if !ok {
		return PlayerOptions{}, false
	}
	return *opts, true
}

func (g *Game) SetGameOption(key, value string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != GameLobby {
		return fmt.Errorf("%w: game option in %s", ErrInvalidState, g.state)
	}
	g.gameOptions[key] = value
	switch key {
	case "ScenarioFile", "MapName":
		g.mapName = value
	case "Title":
		g.name = SanitizeName(value)
	}
	return nil
}

func (g *Game) GameOption(key string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gameOptions[key]
}

// SetAIOption records a setting for an AI slot, creating the slot if needed.
func (g *Game) SetAIOption(name, key, value string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != GameLobby {
		return fmt.Errorf("%w: ai option in %s", ErrInvalidState, g.state)
	}
	ai, ok := g.aiOptions[name]
	if !ok {
		ai = make(map[string]string)
		g.aiOptions[name] = ai
	}
	ai[key] = value
	return nil
}

// ClearSlot removes whichever player or AI sits in a start spot.
func (g *Game) ClearSlot(slot int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != GameLobby {
		return fmt.Errorf("%w: clear slot in %s", ErrInvalidState, g.state)
	}
	for id, opts := range g.playerOptions {
		if opts.StartSpot == slot {
			delete(g.playerOptions, id)
		}
	}
	for name, ai := range g.aiOptions {
		if ai["StartSpot"] == fmt.Sprint(slot) {
			delete(g.aiOptions, name)
		}
	}
	return nil
}

// AddGameConnection puts a connected peer on the roster. Only LOBBY accepts new peers.
func (g *Game) AddGameConnection(gc *GameConnection) error {
	g.mu.Lock()
	if g.state != GameLobby {
		g.mu.Unlock()
		return fmt.Errorf("%w: join in %s", ErrInvalidState, g.state)
	}
	g.connections[gc.player.ID] = gc
	g.mu.Unlock()

	g.markDirty()
	return nil
}

// restoreGameConnection re-adds a reconnecting peer. Unlike AddGameConnection it also
// accepts a live game.
func (g *Game) restoreGameConnection(gc *GameConnection) error {
	g.mu.Lock()
	if g.state != GameLobby && g.state != GameLive {
		g.mu.Unlock()
		return fmt.Errorf("%w: restore in %s", ErrInvalidState, g.state)
	}
	g.connections[gc.player.ID] = gc
	g.mu.Unlock()

	g.markDirty()
	return nil
}

// RemoveGameConnection takes a peer off the roster and ends the game when that leaves
// nothing worth keeping.
func (g *Game) RemoveGameConnection(ctx context.Context, gc *GameConnection) {
	g.mu.Lock()
	cur, ok := g.connections[gc.player.ID]
	if !ok || cur != gc {
		g.mu.Unlock()
		return
	}
	delete(g.connections, gc.player.ID)
	state := g.state
	if state == GameLobby {
		delete(g.playerOptions, gc.player.ID)
	}
	remaining := len(g.connections)
	hostLeft := g.host != nil && gc.player.ID == g.host.ID
	g.mu.Unlock()

	g.log().WithField("player_id", gc.player.ID).Debug("game connection removed")
	g.markDirty()

	switch {
	case remaining == 0:
		g.endAndLog(ctx)
	case state == GameLobby && hostLeft:
		g.endAndLog(ctx)
		g.Close(ctx)
	case state == GameLive:
		g.CheckSimEnd(ctx)
	}
}

// Connections returns the peers on the roster ordered by player id.
func (g *Game) Connections() []*GameConnection {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.connectionsLocked()
}

func (g *Game) connectionsLocked() []*GameConnection {
	out := make([]*GameConnection, 0, len(g.connections))
	for _, gc := range g.connections {
		out = append(out, gc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].player.ID < out[j].player.ID })
	return out
}

// Players is everyone connected while in the lobby, and the launch line-up afterwards.
func (g *Game) Players() []*Player {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.playersLocked()
}

func (g *Game) playersLocked() []*Player {
	if g.state == GameInitializing || g.state == GameLobby {
		out := make([]*Player, 0, len(g.connections))
		for _, gc := range g.connectionsLocked() {
			out = append(out, gc.player)
		}
		return out
	}
	return append([]*Player(nil), g.players...)
}

// Launch starts the match. Only a game in the lobby can launch.
func (g *Game) Launch(ctx context.Context) error {
	g.mu.Lock()
	if g.state != GameLobby {
		g.mu.Unlock()
		return fmt.Errorf("%w: launch from %s", ErrInvalidState, g.state)
	}
	g.state = GameLive
	g.launchedAt = g.now()

	g.players = g.players[:0]
	for _, gc := range g.connectionsLocked() {
		army := NoOption
		if opts, ok := g.playerOptions[gc.player.ID]; ok {
			army = opts.Army
		}
		if army >= 0 {
			g.players = append(g.players, gc.player)
		}
	}
	if v := checkSettings(g.Mode, g.gameOptions); v != ValidityValid {
		g.validity = v
	}
	players := append([]*Player(nil), g.players...)
	validity := g.validity
	g.mu.Unlock()

	g.stopTimer()
	for _, p := range players {
		p.SetState(PlayerPlaying)
	}

	g.log().WithFields(logrus.Fields{"players": len(players), "validity": validity}).Info("game launched")
	g.publish(cache.EventGameLaunched, map[string]interface{}{
		"mode":       g.Mode,
		"map":        g.MapName(),
		"title":      g.Name(),
		"host_id":    g.hostID(),
		"player_ids": playerIDs(players),
	})
	g.markDirty()
	return nil
}

// AddResult records one peer's report of an army's outcome. Reports accumulate; they are
// reconciled when the game ends.
func (g *Game) AddResult(reporterID, army int, outcome Outcome, score int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == GameEnded || g.state == GameInitializing {
		return fmt.Errorf("%w: result in %s", ErrInvalidState, g.state)
	}
	g.results[army] = append(g.results[army], resultReport{reporter: reporterID, outcome: outcome, score: score})
	return nil
}

// ReportArmyStats keeps the raw stats blob a peer sends at the end of a match.
func (g *Game) ReportArmyStats(stats string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.armyStats = stats
}

func (g *Game) AddDesync() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.desyncs++
}

// CheckSimEnd ends a live game once every remaining peer says its simulation finished.
func (g *Game) CheckSimEnd(ctx context.Context) {
	g.mu.Lock()
	if g.state != GameLive {
		g.mu.Unlock()
		return
	}
	conns := g.connectionsLocked()
	g.mu.Unlock()

	for _, gc := range conns {
		if !gc.FinishedSim() {
			return
		}
	}
	g.endAndLog(ctx)
}

// Timeout ends a game that never got out of the lobby.
func (g *Game) Timeout(ctx context.Context) {
	g.mu.Lock()
	state := g.state
	g.mu.Unlock()
	if state != GameInitializing && state != GameLobby {
		return
	}
	g.log().Info("lobby timed out")
	g.endAndLog(ctx)
	g.Close(ctx)
}

// Close aborts every peer still attached.
func (g *Game) Close(ctx context.Context) {
	for _, gc := range g.Connections() {
		gc.Abort(ctx, "game closed")
	}
}

func (g *Game) endAndLog(ctx context.Context) {
	if err := g.OnGameEnd(ctx); err != nil {
		g.log().WithError(err).Error("game end processing failed")
	}
}

// OnGameEnd finalizes the game. Only the first call does anything.
func (g *Game) OnGameEnd(ctx context.Context) error {
	g.mu.Lock()
	if g.endCalled {
		g.mu.Unlock()
		return nil
	}
	g.endCalled = true
	wasLive := g.state == GameLive
	var elapsed time.Duration
	var results GameResults
	if wasLive {
		elapsed = g.now().Sub(g.launchedAt)
		g.validity = g.computeValidityLocked(elapsed)
		if g.validity == ValidityValid {
			results = g.resultsLocked(elapsed)
		}
	}
	validity := g.validity
	g.mu.Unlock()

	g.stopTimer()

	var statsErr error
	if wasLive && validity == ValidityValid && g.stats != nil {
		if err := g.stats.ProcessGameStats(ctx, g, results); err != nil {
			statsErr = fmt.Errorf("process stats for game %d: %w", g.ID, err)
		}
	}

	g.mu.Lock()
	g.state = GameEnded
	g.mu.Unlock()

	g.log().WithFields(logrus.Fields{"validity": validity, "elapsed": elapsed, "was_live": wasLive}).Info("game ended")
	g.publish(cache.EventGameEnded, map[string]interface{}{
		"validity": validity.String(),
		"was_live": wasLive,
		"duration": elapsed.Seconds(),
	})
	g.markDirty()
	return statsErr
}

func (g *Game) computeValidityLocked(elapsed time.Duration) Validity {
	if g.validity != ValidityValid {
		return g.validity
	}
	if !g.EnforceRating {
		threshold := g.settings.MinDurationPerPlayer * time.Duration(len(g.players))
		if threshold < g.settings.MinDurationPerPlayer {
			threshold = g.settings.MinDurationPerPlayer
		}
		if elapsed < threshold {
			return ValidityTooShort
		}
	}
	if g.settings.DesyncLimit > 0 && g.desyncs > g.settings.DesyncLimit {
		return ValidityTooManyDesyncs
	}
	if v := checkSettings(g.Mode, g.gameOptions); v != ValidityValid {
		return v
	}
	if v := g.checkTeamsLocked(); v != ValidityValid {
		return v
	}
	return g.checkResultsLocked()
}

func (g *Game) checkTeamsLocked() Validity {
	if len(g.players) < 2 {
		return ValiditySinglePlayer
	}
	teams := make(map[int]int)
	ffa := 0
	for _, p := range g.players {
		team := NoOption
		if opts, ok := g.playerOptions[p.ID]; ok {
			team = opts.Team
		}
		if team == FFATeam {
			ffa++
			continue
		}
		teams[team]++
	}
	if ffa == len(g.players) && ffa > 2 {
		return ValidityFFANotRanked
	}
	sizes := make([]int, 0, len(teams)+ffa)
	for _, n := range teams {
		sizes = append(sizes, n)
	}
	for i := 0; i < ffa; i++ {
		sizes = append(sizes, 1)
	}
	if len(sizes) > 2 {
		return ValidityMultiTeam
	}
	if len(g.aiOptions) > 0 {
		return ValidityHasAIPlayers
	}
	if len(sizes) < 2 || sizes[0] != sizes[1] {
		return ValidityUnevenTeams
	}
	return ValidityValid
}

// checkResultsLocked needs at least one army with a result. Armies nobody reported on
// count as defeated; they do not disqualify the game.
func (g *Game) checkResultsLocked() Validity {
	reported := 0
	allDraw := true
	for _, army := range g.armiesLocked() {
		reports := g.results[army]
		if len(reports) == 0 {
			continue
		}
		reported++
		outcome, tied := resolveOutcome(reports)
		if tied {
			return ValidityConflictingResults
		}
		if outcome != OutcomeMutualDraw {
			allDraw = false
		}
	}
	if reported == 0 {
		return ValidityUnknownResult
	}
	if allDraw {
		return ValidityMutualDraw
	}
	return ValidityValid
}

// armiesLocked lists the armies of the launch line-up.
func (g *Game) armiesLocked() []int {
	seen := make(map[int]struct{})
	var out []int
	for _, p := range g.players {
		opts, ok := g.playerOptions[p.ID]
		if !ok || opts.Army < 0 {
			continue
		}
		if _, dup := seen[opts.Army]; dup {
			continue
		}
		seen[opts.Army] = struct{}{}
		out = append(out, opts.Army)
	}
	sort.Ints(out)
	return out
}

func (g *Game) resultsLocked(elapsed time.Duration) GameResults {
	res := GameResults{
		GameID:     g.ID,
		Mode:       g.Mode,
		RatingType: g.RatingType,
		Duration:   elapsed,
		ArmyStats:  g.armyStats,
	}
	for _, p := range g.players {
		opts := g.playerOptions[p.ID]
		if opts == nil {
			continue
		}
		outcome, _ := resolveOutcome(g.results[opts.Army])
		res.Players = append(res.Players, PlayerResult{
			Player:  p,
			Army:    opts.Army,
			Team:    opts.Team,
			Faction: opts.Faction,
			Color:   opts.Color,
			Outcome: outcome,
			Score:   resolveScore(g.results[opts.Army]),
		})
	}
	return res
}

// ArmyOutcome is the reconciled outcome for an army so far.
func (g *Game) ArmyOutcome(army int) Outcome {
	g.mu.Lock()
	defer g.mu.Unlock()
	o, _ := resolveOutcome(g.results[army])
	return o
}

// resolveOutcome picks the most reported outcome. A tie for first resolves to unknown and
// reports the conflict.
func resolveOutcome(reports []resultReport) (Outcome, bool) {
	if len(reports) == 0 {
		return OutcomeUnknown, false
	}
	counts := make(map[Outcome]int)
	for _, r := range reports {
		counts[r.outcome]++
	}
	best, bestN, tied := OutcomeUnknown, 0, false
	for o, n := range counts {
		switch {
		case n > bestN:
			best, bestN, tied = o, n, false
		case n == bestN:
			tied = true
		}
	}
	if tied {
		return OutcomeUnknown, true
	}
	return best, false
}

// resolveScore picks the most reported score, preferring the higher one on a tie.
func resolveScore(reports []resultReport) int {
	counts := make(map[int]int)
	for _, r := range reports {
		counts[r.score]++
	}
	best, bestN := 0, 0
	for s, n := range counts {
		if n > bestN || (n == bestN && s > best) {
			best, bestN = s, n
		}
	}
	return best
}

var nonLatin1 = regexp.MustCompile(`[^\x{20}-\x{FF}]+`)

// SanitizeName replaces every run of characters outside printable Latin-1 with "_".
func SanitizeName(name string) string {
	return nonLatin1.ReplaceAllString(name, "_")
}

// ValidTitle reports whether a title uses printable ASCII only.
func ValidTitle(title string) bool {
	for _, r := range title {
		if r < 0x20 || r > 0x7e {
			return false
		}
	}
	return true
}

// ToMap renders the game_info payload.
func (g *Game) ToMap() map[string]interface{} {
	g.mu.Lock()
	defer g.mu.Unlock()

	teams := make(map[string][]string)
	for _, p := range g.playersLocked() {
		team := NoOption
		if opts, ok := g.playerOptions[p.ID]; ok {
			team = opts.Team
		}
		key := fmt.Sprint(team)
		teams[key] = append(teams[key], p.Login)
	}

	m := map[string]interface{}{
		"command":            "game_info",
		"uid":                g.ID,
		"title":              g.name,
		"state":              g.state.clientState(),
		"featured_mod":       g.Mode,
		"mapname":            g.mapName,
		"host":               "",
		"visibility":         g.visibility.String(),
		"password_protected": g.password != "",
		"num_players":        len(g.playersLocked()),
		"max_players":        g.gameOptions["Slots"],
		"launched_at":        nil,
		"teams":              teams,
	}
	if g.host != nil {
		m["host"] = g.host.Login
	}
	if !g.launchedAt.IsZero() {
		m["launched_at"] = float64(g.launchedAt.UnixMilli()) / 1000
	}
	return m
}

func (g *Game) hostID() int {
	if g.host == nil {
		return 0
	}
	return g.host.ID
}

func (g *Game) stopTimer() {
	g.mu.Lock()
	t := g.timer
	g.mu.Unlock()
	if t != nil {
		t.Stop()
	}
}

func (g *Game) markDirty() {
	if g.onDirty != nil {
		g.onDirty(g)
	}
}

// publish pushes a lifecycle event to the historian queue without blocking the caller.
func (g *Game) publish(eventType string, payload map[string]interface{}) {
	rec := cache.NewGameEvent(g.ID, eventType, payload)
	go func(rec cache.GameEventRecord) {
		if cache.Rdb == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := cache.PublishGameEvent(ctx, rec); err != nil {
			g.log().WithError(err).Warnf("failed to publish %s", rec.EventType)
		}
	}(rec)
}

func playerIDs(players []*Player) []int {
	ids := make([]int, 0, len(players))
	for _, p := range players {
		ids = append(ids, p.ID)
	}
	return ids
}
