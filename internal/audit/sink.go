package audit

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"jeux/internal/config"
	"jeux/internal/session"
)

const (
	defaultBatchSize     = 20
	defaultFlushInterval = 5 * time.Second
	queueCapacity        = 256
)

// Sink batches finished-match records and writes them to Postgres. It
// implements session.MatchRecorder. A full queue drops the incoming record
// (logged at Warn) rather than blocking the dispatcher that just finished a
// game.
type Sink struct {
	db    *DB
	cfg   config.AuditConfig
	log   *zap.Logger
	queue chan session.MatchResult
	wg    sync.WaitGroup
}

// NewSink connects to the audit database, applies pending migrations, and
// starts the background batching loop. Callers should Close the returned
// Sink during shutdown, after the last match has been recorded.
func NewSink(ctx context.Context, cfg config.AuditConfig, log *zap.Logger) (*Sink, error) {
	db, err := OpenDB(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	if err := runMigrations(ctx, db.Pool); err != nil {
		db.Close()
		return nil, err
	}

	s := &Sink{
		db:    db,
		cfg:   cfg,
		log:   log,
		queue: make(chan session.MatchResult, queueCapacity),
	}
	s.wg.Add(1)
	go s.run()
	return s, nil
}

// RecordMatch implements session.MatchRecorder.
func (s *Sink) RecordMatch(rec session.MatchResult) {
	select {
	case s.queue <- rec:
	default:
		s.log.Warn("audit queue full, dropping match record", zap.Uint64("match_id", rec.MatchID))
	}
}

// Close stops accepting new records, flushes whatever is buffered, and
// closes the database connection. Callers must not call RecordMatch after
// Close returns.
func (s *Sink) Close() {
	close(s.queue)
	s.wg.Wait()
	s.db.Close()
}

func (s *Sink) run() {
	defer s.wg.Done()

	batchSize := s.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	interval := s.cfg.FlushInterval
	if interval <= 0 {
		interval = defaultFlushInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var batch []session.MatchResult
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := s.write(context.Background(), batch); err != nil {
			s.log.Warn("audit batch write failed", zap.Error(err), zap.Int("size", len(batch)))
		}
		batch = batch[:0]
	}

	for {
		select {
		case rec, ok := <-s.queue:
			if !ok {
				flush()
				return
			}
			batch = append(batch, rec)
			if len(batch) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// write inserts one round of match_history rows plus a blake2b-256
// checksum over their serialized contents, all in a single pgx batch.
func (s *Sink) write(ctx context.Context, batch []session.MatchResult) error {
	var buf bytes.Buffer
	b := &pgx.Batch{}
	for _, rec := range batch {
		fmt.Fprintf(&buf, "%d|%s|%s|%d|%d|%d\n",
			rec.MatchID, rec.FirstName, rec.SecondName, rec.Winner, rec.FirstRating, rec.SecondRating)
		b.Queue(
			`INSERT INTO match_history (match_id, first_name, second_name, winner_role, first_rating, second_rating)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			rec.MatchID, rec.FirstName, rec.SecondName, int16(rec.Winner), rec.FirstRating, rec.SecondRating,
		)
	}
	sum := blake2b.Sum256(buf.Bytes())
	b.Queue(`INSERT INTO match_batch_checksums (batch_size, checksum) VALUES ($1, $2)`, len(batch), sum[:])

	br := s.db.Pool.SendBatch(ctx, b)
	defer br.Close()

	for range batch {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert match_history row: %w", err)
		}
	}
	if _, err := br.Exec(); err != nil {
		return fmt.Errorf("insert checksum row: %w", err)
	}
	return nil
}

var _ session.MatchRecorder = (*Sink)(nil)
