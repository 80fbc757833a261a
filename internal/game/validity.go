package game

import (
	"fmt"
	"strings"
)

// GameState is the lifecycle of a hosted game.
type GameState int

const (
	GameInitializing GameState = iota
	GameLobby
	GameLive
	GameEnded
)

func (s GameState) String() string {
	switch s {
	case GameInitializing:
		return "initializing"
	case GameLobby:
		return "lobby"
	case GameLive:
		return "live"
	case GameEnded:
		return "ended"
	}
	return "unknown"
}

// clientState is the state string clients see in game_info.
func (s GameState) clientState() string {
	switch s {
	case GameLobby:
		return "open"
	case GameLive:
		return "playing"
	case GameEnded:
		return "closed"
	}
	return "unknown"
}

type Visibility int

const (
	VisibilityPublic Visibility = iota
	VisibilityFriends
)

func ParseVisibility(s string) (Visibility, error) {
	switch strings.ToLower(s) {
	case "", "public":
		return VisibilityPublic, nil
	case "friends":
		return VisibilityFriends, nil
	}
	return VisibilityPublic, fmt.Errorf("unknown visibility %q", s)
}

func (v Visibility) String() string {
	if v == VisibilityFriends {
		return "friends"
	}
	return "public"
}

// Validity says whether an ended game counts toward rating, and if not, why.
type Validity int

const (
	ValidityValid Validity = iota
	ValidityTooShort
	ValidityTooManyDesyncs
	ValidityWrongVictoryCondition
	ValidityNoFogOfWar
	ValidityCheatsEnabled
	ValidityPrebuiltEnabled
	ValidityNorushEnabled
	ValidityBadUnitRestrictions
	ValidityUnlockedTeams
	ValiditySinglePlayer
	ValidityFFANotRanked
	ValidityMultiTeam
	ValidityHasAIPlayers
	ValidityUnevenTeams
	ValidityUnknownResult
	ValidityMutualDraw
	ValidityConflictingResults
)

var validityNames = map[Validity]string{
	ValidityValid:                 "VALID",
	ValidityTooShort:              "TOO_SHORT",
	ValidityTooManyDesyncs:        "TOO_MANY_DESYNCS",
	ValidityWrongVictoryCondition: "WRONG_VICTORY_CONDITION",
	ValidityNoFogOfWar:            "NO_FOG_OF_WAR",
	ValidityCheatsEnabled:         "CHEATS_ENABLED",
	ValidityPrebuiltEnabled:       "PREBUILT_ENABLED",
	ValidityNorushEnabled:         "NORUSH_ENABLED",
	ValidityBadUnitRestrictions:   "BAD_UNIT_RESTRICTIONS",
	ValidityUnlockedTeams:         "UNLOCKED_TEAMS",
	ValiditySinglePlayer:          "SINGLE_PLAYER",
	ValidityFFANotRanked:          "FFA_NOT_RANKED",
	ValidityMultiTeam:             "MULTI_TEAM",
	ValidityHasAIPlayers:          "HAS_AI_PLAYERS",
	ValidityUnevenTeams:           "UNEVEN_TEAMS_NOT_RANKED",
	ValidityUnknownResult:         "UNKNOWN_RESULT",
	ValidityMutualDraw:            "MUTUAL_DRAW",
	ValidityConflictingResults:    "CONFLICTING_RESULTS",
}

func (v Validity) String() string {
	if s, ok := validityNames[v]; ok {
		return s
	}
	return "UNKNOWN"
}

// Outcome is what a peer reported for an army.
type Outcome string

const (
	OutcomeUnknown    Outcome = ""
	OutcomeVictory    Outcome = "victory"
	OutcomeDefeat     Outcome = "defeat"
	OutcomeDraw       Outcome = "draw"
	OutcomeMutualDraw Outcome = "mutual_draw"
)

// ParseOutcome normalizes a reported outcome; reports are case-insensitive.
func ParseOutcome(s string) Outcome {
	return Outcome(strings.ToLower(strings.TrimSpace(s)))
}
