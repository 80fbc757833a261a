// internal/config/config.go
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the server settings read from the environment.
type Config struct {
	Port     string
	LogLevel string

	// AllowedOrigins feeds the CORS middleware of the HTTP API.
	AllowedOrigins []string

	// PolicyServerBaseURL is the fraud-policy endpoint. Empty disables the policy gate.
	PolicyServerBaseURL string
	PolicyTimeout       time.Duration

	RuleLink   string
	ServerName string

	// MinDurationPerPlayer multiplied by the player count is the shortest a custom game
	// may run and still be rated.
	MinDurationPerPlayer time.Duration
	DesyncLimit          int
	LobbyTimeout         time.Duration
	CleanupInterval      time.Duration
	StartingGameID       int
}

// Load reads the Config from environment variables, falling back to defaults.
func Load() Config {
	return Config{
		Port:                 getEnv("PORT", "8080"),
		LogLevel:             getEnv("LOG_LEVEL", "debug"),
		AllowedOrigins:       getEnvList("ALLOWED_ORIGINS", []string{"https://*", "http://*"}),
		PolicyServerBaseURL:  getEnv("POLICY_SERVER_BASE_URL", ""),
		PolicyTimeout:        getEnvDuration("POLICY_TIMEOUT", 5*time.Second),
		RuleLink:             getEnv("RULE_LINK", "https://www.faforever.com/rules"),
		ServerName:           getEnv("SERVER_NAME", "FAF"),
		MinDurationPerPlayer: getEnvDuration("GAME_MIN_DURATION_PER_PLAYER", 60*time.Second),
		DesyncLimit:          getEnvInt("GAME_DESYNC_LIMIT", 20),
		LobbyTimeout:         getEnvDuration("GAME_LOBBY_TIMEOUT", time.Hour),
		CleanupInterval:      getEnvDuration("GAME_CLEANUP_INTERVAL", time.Minute),
		StartingGameID:       getEnvInt("STARTING_GAME_ID", 1),
	}
}

// HistorianConfig tunes the game-event historian.
type HistorianConfig struct {
	BatchSize  int
	FlushDelay time.Duration
	// Inactivity is how long a live game may go without events before it is marked abandoned.
	Inactivity time.Duration
}

// LoadHistorian reads the HistorianConfig from the environment.
func LoadHistorian() HistorianConfig {
	return HistorianConfig{
		BatchSize:  getEnvInt("HISTORIAN_BATCH_SIZE", 20),
		FlushDelay: getEnvDuration("HISTORIAN_FLUSH_DELAY", 500*time.Millisecond),
		Inactivity: getEnvDuration("GAME_INACTIVITY_TIMEOUT", 6*time.Hour),
	}
}

// getEnv is a helper to read an environment variable or return a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt is a helper to parse an environment variable as integer, else a default value.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

// getEnvList splits a comma separated variable, dropping blanks.
func getEnvList(key string, def []string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

// getEnvDuration accepts either a Go duration string ("90s") or a bare number of seconds.
func getEnvDuration(key string, def time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}
