package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/minerctl/internal/events"
	"github.com/xkilldash9x/minerctl/internal/miner"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// DB is the subset of pgxpool.Pool the store uses, so tests can mock it.
type DB interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const (
	sqlCreateUpdates = `
        CREATE TABLE IF NOT EXISTS miner_updates (
            id BIGSERIAL PRIMARY KEY,
            controller_id TEXT NOT NULL,
            hashes_per_second DOUBLE PRECISION NOT NULL,
            total_hashes BIGINT NOT NULL,
            accepted_hashes BIGINT NOT NULL,
            threads INTEGER NOT NULL,
            auto_threads BOOLEAN NOT NULL,
            running BOOLEAN NOT NULL,
            interval_ms BIGINT NOT NULL,
            recorded_at TIMESTAMPTZ NOT NULL
        );
    `
	sqlCreateEvents = `
        CREATE TABLE IF NOT EXISTS miner_events (
            id TEXT PRIMARY KEY,
            controller_id TEXT NOT NULL,
            name TEXT NOT NULL,
            args JSONB NOT NULL,
            observed_at TIMESTAMPTZ NOT NULL
        );
    `
	sqlInsertUpdate = `
        INSERT INTO miner_updates (controller_id, hashes_per_second, total_hashes, accepted_hashes, threads, auto_threads, running, interval_ms, recorded_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
    `
	sqlInsertEvent = `
        INSERT INTO miner_events (id, controller_id, name, args, observed_at)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (id) DO NOTHING;
    `
)

// Store persists miner samples to PostgreSQL.
type Store struct {
	db  DB
	log *zap.Logger
	now func() time.Time
}

// New creates a store on db and verifies the connection.
func New(ctx context.Context, db DB, logger *zap.Logger) (*Store, error) {
	if err := db.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{db: db, log: logger.Named("store"), now: time.Now}, nil
}

// Open connects a pool to url and wraps it in a Store. The returned func
// closes the pool.
func Open(ctx context.Context, url string, logger *zap.Logger) (*Store, func(), error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	s, err := New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return s, pool.Close, nil
}

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range []string{sqlCreateUpdates, sqlCreateEvents} {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// RecordUpdate inserts one update sample for the controller.
func (s *Store) RecordUpdate(ctx context.Context, controllerID string, u miner.Update) error {
	d := u.Data
	_, err := s.db.Exec(ctx, sqlInsertUpdate,
		controllerID, d.HashesPerSecond, d.TotalHashes, d.AcceptedHashes,
		d.Threads, d.AutoThreads, d.Running, u.Interval.Milliseconds(),
		s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert update: %w", err)
	}
	return nil
}

// RecordEvent inserts a named page event with its raw arguments.
func (s *Store) RecordEvent(ctx context.Context, controllerID string, ev events.Event) error {
	args := ev.Args
	if args == nil {
		args = []json.RawMessage{}
	}
	encoded, err := jsonAPI.Marshal(args)
	if err != nil {
		return fmt.Errorf("failed to encode event args: %w", err)
	}

	_, err = s.db.Exec(ctx, sqlInsertEvent, ev.ID, controllerID, ev.Name, string(encoded), ev.Time.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert event %s: %w", ev.Name, err)
	}
	return nil
}
