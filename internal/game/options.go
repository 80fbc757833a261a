package game

import (
	"fmt"
	"strconv"
	"strings"
)

// NoOption marks an unset slot value. An Army of NoOption means observer.
const NoOption = -1

// FFATeam is the team number players pick for "no team"; each of them fights alone.
const FFATeam = 1

// PlayerOptions are the per-player lobby slot settings.
type PlayerOptions struct {
	Army      int `json:"army"`
	StartSpot int `json:"start_spot"`
	Team      int `json:"team"`
	Faction   int `json:"faction"`
	Color     int `json:"color"`
}

func newPlayerOptions() *PlayerOptions {
	return &PlayerOptions{Army: NoOption, StartSpot: NoOption, Team: NoOption, Faction: 0, Color: 0}
}

// set applies one option by its wire key.
func (o *PlayerOptions) set(key string, value int) error {
	switch key {
	case "Army":
		o.Army = value
	case "StartSpot":
		o.StartSpot = value
	case "Team":
		o.Team = value
	case "Faction":
		o.Faction = value
	case "Color":
		o.Color = value
	default:
		return fmt.Errorf("%w: %q", ErrUnknownOption, key)
	}
	return nil
}

func (o *PlayerOptions) get(key string) (int, bool) {
	switch key {
	case "Army":
		return o.Army, true
	case "StartSpot":
		return o.StartSpot, true
	case "Team":
		return o.Team, true
	case "Faction":
		return o.Faction, true
	case "Color":
		return o.Color, true
	}
	return 0, false
}

// defaultGameOptions are the ranked settings a fresh game starts with.
func defaultGameOptions() map[string]string {
	return map[string]string{
		"Victory":              "demoralization",
		"FogOfWar":             "explored",
		"CheatsEnabled":        "false",
		"PrebuiltUnits":        "Off",
		"NoRushOption":         "Off",
		"RestrictedCategories": "0",
		"TeamLock":             "locked",
		"Slots":                "12",
	}
}

// rankedSetting pairs a game option with the value it must have for the game to be rated.
type rankedSetting struct {
	key      string
	want     string
	validity Validity
}

var rankedSettings = []rankedSetting{
	{"Victory", "demoralization", ValidityWrongVictoryCondition},
	{"FogOfWar", "explored", ValidityNoFogOfWar},
	{"CheatsEnabled", "false", ValidityCheatsEnabled},
	{"PrebuiltUnits", "Off", ValidityPrebuiltEnabled},
	{"NoRushOption", "Off", ValidityNorushEnabled},
	{"RestrictedCategories", "0", ValidityBadUnitRestrictions},
	{"TeamLock", "locked", ValidityUnlockedTeams},
}

// checkSettings returns the first unranked setting, or ValidityValid.
func checkSettings(mode string, opts map[string]string) Validity {
	for _, rs := range rankedSettings {
		if rs.key == "Victory" && mode == ModeCoop {
			continue
		}
		if !strings.EqualFold(opts[rs.key], rs.want) {
			return rs.validity
		}
	}
	return ValidityValid
}

// optionString renders a game option value the way peers send them.
func optionString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}

// optionInt accepts numbers and numeric strings.
func optionInt(v interface{}) (int, error) {
	switch t := v.(type) {
	case float64:
		return int(t), nil
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", t)
		}
		return n, nil
	}
	return 0, fmt.Errorf("not a number: %v", v)
}
