// Package historian pops game lifecycle events off the Redis queue and persists them to
// PostgreSQL in batches. Games that stop producing events are eventually marked abandoned.
package historian

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/lobbyd/internal/cache"
	"github.com/jason-s-yu/lobbyd/internal/config"
	"github.com/jason-s-yu/lobbyd/internal/database"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const popTimeout = 3 * time.Second

// PersistFunc writes one batch of events. The default runs the whole batch in a single
// database transaction.
type PersistFunc func(ctx context.Context, batch []cache.GameEventRecord) error

// AbandonFunc flags a live game as abandoned and reports whether a row changed.
type AbandonFunc func(ctx context.Context, gameID int) (bool, error)

// Service encapsulates the Redis + DB logic for capturing game events.
type Service struct {
	rdb    *redis.Client
	queue  string
	cfg    config.HistorianConfig
	logger *logrus.Logger

	persist PersistFunc
	abandon AbandonFunc

	lastActivity sync.Map // map[int]time.Time keyed by game id

	batchMu sync.Mutex
	batch   []cache.GameEventRecord
}

// New builds a Service reading from queue on rdb.
func New(rdb *redis.Client, queue string, cfg config.HistorianConfig, logger *logrus.Logger) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	if cfg.FlushDelay <= 0 {
		cfg.FlushDelay = 500 * time.Millisecond
	}
	return &Service{
		rdb:     rdb,
		queue:   queue,
		cfg:     cfg,
		logger:  logger,
		persist: persistBatch,
		abandon: database.MarkGameAbandoned,
		batch:   make([]cache.GameEventRecord, 0, cfg.BatchSize),
	}
}

// Run starts the queue reader and the inactivity sweeper and blocks until ctx is done.
// Whatever is still batched is flushed before returning.
func (s *Service) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.readLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		s.inactivityLoop(ctx)
	}()

	s.logger.Infof("historian started on queue %q", s.queue)
	<-ctx.Done()
	wg.Wait()

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Flush(flushCtx)
	s.logger.Info("historian shutting down")
}

func (s *Service) readLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.FlushDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Flush(ctx)
		default:
			if _, err := s.Poll(ctx, popTimeout); err != nil && ctx.Err() == nil {
				s.logger.WithError(err).Error("historian: BLPop failed")
				time.Sleep(time.Second)
			}
		}
	}
}

// Poll waits up to timeout for one event and appends it to the batch. It reports whether an
// event was taken off the queue; malformed payloads are dropped and logged.
func (s *Service) Poll(ctx context.Context, timeout time.Duration) (bool, error) {
	res, err := s.rdb.BLPop(ctx, timeout, s.queue).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(res) < 2 {
		return false, nil
	}

	// res[0] is the queue name and res[1] the payload.
	var rec cache.GameEventRecord
	if err := json.Unmarshal([]byte(res[1]), &rec); err != nil {
		s.logger.Warnf("historian: invalid event record: %v", err)
		return true, nil
	}

	if rec.EventType == cache.EventGameEnded {
		s.lastActivity.Delete(rec.GameID)
	} else {
		s.lastActivity.Store(rec.GameID, time.Now())
	}
	s.append(ctx, rec)
	return true, nil
}

func (s *Service) append(ctx context.Context, rec cache.GameEventRecord) {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()

	s.batch = append(s.batch, rec)
	if len(s.batch) >= s.cfg.BatchSize {
		s.flushLocked(ctx)
	}
}

// Flush writes the pending batch. A failed batch is logged and dropped.
func (s *Service) Flush(ctx context.Context) {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	s.flushLocked(ctx)
}

func (s *Service) flushLocked(ctx context.Context) {
	if len(s.batch) == 0 {
		return
	}
	pending := make([]cache.GameEventRecord, len(s.batch))
	copy(pending, s.batch)
	s.batch = s.batch[:0]

	if err := s.persist(ctx, pending); err != nil {
		s.logger.WithError(err).Errorf("historian: failed to persist %d events", len(pending))
		return
	}
	s.logger.Debugf("historian: flushed %d events", len(pending))
}

func (s *Service) inactivityLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.sweep(ctx, now)
		}
	}
}

// sweep marks every game idle for longer than the inactivity limit as abandoned.
func (s *Service) sweep(ctx context.Context, now time.Time) int {
	marked := 0
	s.lastActivity.Range(func(key, val interface{}) bool {
		gameID, ok1 := key.(int)
		last, ok2 := val.(time.Time)
		if !ok1 || !ok2 || now.Sub(last) <= s.cfg.Inactivity {
			return true
		}
		changed, err := s.abandon(ctx, gameID)
		if err != nil {
			s.logger.WithError(err).Errorf("historian: failed to mark game %d abandoned", gameID)
			return true
		}
		s.lastActivity.Delete(gameID)
		if changed {
			marked++
			s.logger.Infof("historian: marked game %d abandoned after inactivity", gameID)
		}
		return true
	})
	return marked
}

func persistBatch(ctx context.Context, batch []cache.GameEventRecord) error {
	return pgx.BeginTxFunc(ctx, database.DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, rec := range batch {
			if err := applyEventTx(ctx, tx, rec); err != nil {
				return fmt.Errorf("event %s for game %d: %w", rec.EventID, rec.GameID, err)
			}
		}
		return nil
	})
}

// applyEventTx stores the raw event and folds it into the games row.
func applyEventTx(ctx context.Context, tx pgx.Tx, rec cache.GameEventRecord) error {
	if err := database.InsertGameEventTx(ctx, tx, rec.EventID, rec.GameID, rec.EventType, rec.Payload); err != nil {
		return err
	}
	at := time.UnixMilli(rec.Timestamp)

	switch rec.EventType {
	case cache.EventGameLaunched:
		return database.UpsertLiveGameTx(ctx, tx, rec.GameID,
			payloadString(rec.Payload, "mode"),
			payloadString(rec.Payload, "map"),
			payloadString(rec.Payload, "title"),
			payloadInt(rec.Payload, "host_id"),
			at,
		)
	case cache.EventGameEnded:
		return database.MarkGameEndedTx(ctx, tx, rec.GameID, payloadString(rec.Payload, "validity"), at)
	}
	return nil
}

func payloadString(p map[string]interface{}, key string) string {
	s, _ := p[key].(string)
	return s
}

// payloadInt reads a JSON number, which decodes as float64.
func payloadInt(p map[string]interface{}, key string) int {
	switch v := p[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}
