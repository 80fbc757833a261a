// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Rdb is the global Redis client. Connect it once at application startup.
var Rdb *redis.Client

// DefaultQueueName is the Redis list (queue) name for game lifecycle events.
var DefaultQueueName = "lobby_game_events"

// Game event types pushed by the lobby server.
const (
	EventGameLaunched = "game_launched"
	EventGameEnded    = "game_ended"
)

// GameEventRecord holds the minimal info needed by the historian to track a game.
type GameEventRecord struct {
	EventID   uuid.UUID              `json:"event_id"`
	GameID    int                    `json:"game_id"`
	EventType string                 `json:"event_type"`
	Payload   map[string]interface{} `json:"payload"`
	Timestamp int64                  `json:"timestamp"`
}

// NewGameEvent stamps a record with a fresh id and the current time.
func NewGameEvent(gameID int, eventType string, payload map[string]interface{}) GameEventRecord {
	if payload == nil {
		payload = make(map[string]interface{})
	}
	return GameEventRecord{
		EventID:   uuid.New(),
		GameID:    gameID,
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
	}
}

// ConnectRedis initializes the global Redis client with environment variables:
//   - REDIS_ADDR (default "localhost:6379")
//   - REDIS_DB (optional, default 0)
func ConnectRedis() error {
	addr := getEnv("REDIS_ADDR", "localhost:6379")
	dbIdx := getEnvInt("REDIS_DB", 0)

	Rdb = redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   dbIdx,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := Rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return nil
}

// QueueName is the list both the server and the historian use.
func QueueName() string {
	return getEnv("GAME_EVENT_QUEUE_NAME", DefaultQueueName)
}

// PublishGameEvent serializes the record to JSON and pushes it onto the Redis queue.
func PublishGameEvent(ctx context.Context, record GameEventRecord) error {
	if Rdb == nil {
		return fmt.Errorf("redis client not connected")
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal GameEventRecord: %w", err)
	}

	queueName := QueueName()
	if err := Rdb.RPush(ctx, queueName, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", queueName, err)
	}
	return nil
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
