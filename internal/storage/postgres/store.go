package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"hookGuard/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS swap_outcomes (
	request_id   TEXT        NOT NULL,
	router       TEXT        NOT NULL,
	pool         TEXT        NOT NULL,
	pool_id      TEXT        NOT NULL,
	party        TEXT        NOT NULL,
	status       TEXT        NOT NULL,
	amount0      NUMERIC     NOT NULL,
	amount1      NUMERIC     NOT NULL,
	stage        TEXT,
	error        TEXT,
	processed_at TIMESTAMPTZ NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (request_id, router)
);
CREATE TABLE IF NOT EXISTS pool_stats (
	pool_id         TEXT        PRIMARY KEY,
	pool            TEXT        NOT NULL,
	currency0       TEXT        NOT NULL,
	currency1       TEXT        NOT NULL,
	swap_count      BIGINT      NOT NULL,
	rejected_count  BIGINT      NOT NULL,
	overreach_count BIGINT      NOT NULL,
	volume0         NUMERIC     NOT NULL,
	volume1         NUMERIC     NOT NULL,
	reserve0        NUMERIC     NOT NULL,
	reserve1        NUMERIC     NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL
);`

// Store provides Postgres persistence for replay results.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// InsertOutcomes upserts swap outcomes keyed by request and router.
func (s *Store) InsertOutcomes(ctx context.Context, outcomes []model.SwapOutcome) error {
	if len(outcomes) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, o := range outcomes {
		batch.Queue(`
			INSERT INTO swap_outcomes (
				request_id, router, pool, pool_id, party, status, amount0, amount1, stage, error, processed_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
			ON CONFLICT (request_id, router)
			DO UPDATE SET
				status = EXCLUDED.status,
				amount0 = EXCLUDED.amount0,
				amount1 = EXCLUDED.amount1,
				stage = EXCLUDED.stage,
				error = EXCLUDED.error,
				processed_at = EXCLUDED.processed_at
		`,
			o.RequestID,
			o.Router,
			o.Pool,
			o.PoolID,
			o.Party,
			o.Status,
			numeric(o.Amount0),
			numeric(o.Amount1),
			nullable(o.Stage),
			nullable(o.Error),
			parseTime(o.ProcessedAt),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range outcomes {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// UpsertPoolStats inserts or replaces per-pool replay stats.
func (s *Store) UpsertPoolStats(ctx context.Context, stats []model.PoolStats) error {
	if len(stats) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, st := range stats {
		batch.Queue(`
			INSERT INTO pool_stats (
				pool_id, pool, currency0, currency1, swap_count, rejected_count, overreach_count,
				volume0, volume1, reserve0, reserve1, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
			ON CONFLICT (pool_id)
			DO UPDATE SET
				swap_count = EXCLUDED.swap_count,
				rejected_count = EXCLUDED.rejected_count,
				overreach_count = EXCLUDED.overreach_count,
				volume0 = EXCLUDED.volume0,
				volume1 = EXCLUDED.volume1,
				reserve0 = EXCLUDED.reserve0,
				reserve1 = EXCLUDED.reserve1,
				updated_at = EXCLUDED.updated_at
		`,
			st.PoolID,
			st.Pool,
			st.Currency0,
			st.Currency1,
			int64(st.SwapCount),
			int64(st.RejectedCount),
			int64(st.OverreachCount),
			numeric(st.Volume0),
			numeric(st.Volume1),
			numeric(st.Reserve0),
			numeric(st.Reserve1),
			parseTime(st.UpdatedAt),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range stats {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// Sink adapts the store to the storage interface with a fixed context.
type Sink struct {
	ctx   context.Context
	store *Store
}

func NewSink(ctx context.Context, store *Store) *Sink {
	return &Sink{ctx: ctx, store: store}
}

func (s *Sink) PutOutcomes(outcomes []model.SwapOutcome) error {
	return s.store.InsertOutcomes(s.ctx, outcomes)
}

func (s *Sink) PutPoolStats(stats []model.PoolStats) error {
	return s.store.UpsertPoolStats(s.ctx, stats)
}

func numeric(v string) string {
	if v == "" {
		return "0"
	}
	return v
}

func nullable(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func parseTime(v string) time.Time {
	if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return ts
	}
	return time.Now().UTC()
}
