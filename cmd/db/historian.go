// cmd/db/historian.go is an asynchronous historian service that pops event
// batches from a Redis queue and persists them to a PostgreSQL database.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/junglefunkyman/loveletter/internal/cache"
	"github.com/junglefunkyman/loveletter/internal/database"
)

// HistorianService drains the event queue, batches inserts, and marks
// matches abandoned after a period of inactivity.
type HistorianService struct {
	redisClient  *redis.Client
	batchSize    int
	flushDelay   time.Duration
	inactivity   time.Duration
	lastActivity sync.Map // map[string]time.Time keyed by game id

	batchMu  sync.Mutex
	batch    []cache.EventBatchRecord
	ctx      context.Context
	cancelFn context.CancelFunc
}

// NewHistorianService constructs a HistorianService from environment
// variables or defaults.
func NewHistorianService() *HistorianService {
	batchSize := getEnvInt("HISTORIAN_BATCH_SIZE", 20)
	flushMs := getEnvInt("HISTORIAN_FLUSH_MS", 500)
	inactivitySec := getEnvInt("GAME_INACTIVITY_TIMEOUT_SEC", 600)

	rdb := redis.NewClient(&redis.Options{
		Addr: getEnv("REDIS_ADDR", "localhost:6379"),
	})

	ctx, cancel := context.WithCancel(context.Background())
	return &HistorianService{
		redisClient: rdb,
		batchSize:   batchSize,
		flushDelay:  time.Duration(flushMs) * time.Millisecond,
		inactivity:  time.Duration(inactivitySec) * time.Second,
		batch:       make([]cache.EventBatchRecord, 0, batchSize),
		ctx:         ctx,
		cancelFn:    cancel,
	}
}

// Run connects the database and starts the drain and inactivity loops.
func (hs *HistorianService) Run() {
	if err := database.ConnectDB(); err != nil {
		logrus.Fatalf("historian database connection failed: %v", err)
	}

	go hs.readRedisLoop()
	go hs.inactivityLoop()

	logrus.Info("historian service started")
	<-hs.ctx.Done()
	logrus.Info("historian shutting down")
}

// readRedisLoop continuously uses BLPop to retrieve event batches from the
// Redis queue, flushing to the database on a timer or when the batch fills.
func (hs *HistorianService) readRedisLoop() {
	ticker := time.NewTicker(hs.flushDelay)
	defer ticker.Stop()

	queueName := getEnv("HISTORIAN_QUEUE_NAME", cache.DefaultQueueName)

	for {
		select {
		case <-hs.ctx.Done():
			return

		case <-ticker.C:
			hs.flushBatchToDB()

		default:
			res, err := hs.redisClient.BLPop(hs.ctx, 3*time.Second, queueName).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				logrus.Errorf("BLPop: %v", err)
				continue
			}
			if len(res) < 2 {
				continue
			}

			var record cache.EventBatchRecord
			if err := json.Unmarshal([]byte(res[1]), &record); err != nil {
				logrus.Warnf("invalid event batch record: %v", err)
				continue
			}

			hs.lastActivity.Store(record.GameID, time.Now())
			hs.appendToBatch(record)
		}
	}
}

func (hs *HistorianService) appendToBatch(record cache.EventBatchRecord) {
	hs.batchMu.Lock()
	defer hs.batchMu.Unlock()

	hs.batch = append(hs.batch, record)
	if len(hs.batch) >= hs.batchSize {
		hs.flushBatchToDBLocked()
	}
}

func (hs *HistorianService) flushBatchToDB() {
	hs.batchMu.Lock()
	defer hs.batchMu.Unlock()
	hs.flushBatchToDBLocked()
}

// flushBatchToDBLocked writes the pending records in one transaction.
// Assumes batchMu is held.
func (hs *HistorianService) flushBatchToDBLocked() {
	if len(hs.batch) == 0 {
		return
	}
	batchCopy := make([]cache.EventBatchRecord, len(hs.batch))
	copy(batchCopy, hs.batch)
	hs.batch = hs.batch[:0]

	ctx := context.Background()
	err := pgx.BeginTxFunc(ctx, database.DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, rec := range batchCopy {
			if err := insertEventBatchTx(ctx, tx, rec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		logrus.Errorf("flushBatchToDB: %v", err)
	} else {
		logrus.Debugf("flushed %d event batches to db", len(batchCopy))
	}
}

// inactivityLoop marks matches abandoned once they have been silent longer
// than the configured threshold.
func (hs *HistorianService) inactivityLoop() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-hs.ctx.Done():
			return

		case <-ticker.C:
			now := time.Now()
			hs.lastActivity.Range(func(key, val interface{}) bool {
				gameID, ok1 := key.(string)
				last, ok2 := val.(time.Time)
				if ok1 && ok2 && now.Sub(last) > hs.inactivity {
					hs.markGameAbandoned(gameID)
					hs.lastActivity.Delete(gameID)
				}
				return true
			})
		}
	}
}

func (hs *HistorianService) markGameAbandoned(gameID string) {
	ctx := context.Background()
	err := pgx.BeginTxFunc(ctx, database.DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		q := `
			UPDATE matches
			SET status = 'abandoned'
			WHERE game_id = $1 AND status = 'in_progress'
		`
		_, e := tx.Exec(ctx, q, gameID)
		return e
	})
	if err != nil {
		logrus.Warnf("failed to mark game %s abandoned: %v", gameID, err)
	} else {
		logrus.Infof("marked game %s abandoned due to inactivity", gameID)
	}
}

// insertEventBatchTx upserts the match row and appends one game_events row
// per batch, keyed by (game_id, sequence) so redelivery is idempotent.
func insertEventBatchTx(ctx context.Context, tx pgx.Tx, rec cache.EventBatchRecord) error {
	upsertMatch := `
		INSERT INTO matches (game_id, status)
		VALUES ($1, 'in_progress')
		ON CONFLICT (game_id) DO NOTHING
	`
	if _, err := tx.Exec(ctx, upsertMatch, rec.GameID); err != nil {
		return err
	}

	payload, err := json.Marshal(rec.Events)
	if err != nil {
		return err
	}
	insertEvents := `
		INSERT INTO game_events (game_id, sequence, events, recorded_at)
		VALUES ($1, $2, $3, to_timestamp($4 / 1000.0))
		ON CONFLICT (game_id, sequence) DO NOTHING
	`
	_, err = tx.Exec(ctx, insertEvents, rec.GameID, rec.Sequence, payload, rec.Timestamp)
	return err
}

// Stop gracefully stops the historian service.
func (hs *HistorianService) Stop() {
	hs.cancelFn()
}

func main() {
	hs := NewHistorianService()
	go hs.Run()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	hs.Stop()
	logrus.Info("historian shutdown complete")
}

func getEnv(key, defVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defVal
}

func getEnvInt(key string, defVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defVal
	}
	return i
}
