package persistence

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arbitgo/triarb/internal/domain"
)

// PostgresColdStore mirrors attempts and fills into Postgres for cross-venue
// analytics. It is never on the attempt's critical path: writes reach it
// through AsyncWriter's bounded channel and are dropped, not retried, if the
// channel is full. SQLiteStore remains the durable source of truth.
type PostgresColdStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewPostgresColdStore(ctx context.Context, dsn string, poolSize int, logger *slog.Logger) (*PostgresColdStore, error) {
	if dsn == "" {
		logger.Warn("no PostgreSQL DSN configured, cold store disabled")
		return nil, nil
	}

	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pg config: %w", err)
	}
	config.MaxConns = int32(poolSize)

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &PostgresColdStore{pool: pool, logger: logger}
	return store, nil
}

func (s *PostgresColdStore) RunMigrations(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return nil
	}

	migrations := []string{
		`CREATE TABLE IF NOT EXISTS triangle_attempts (
			id UUID PRIMARY KEY,
			venue VARCHAR(32) NOT NULL,
			leg_ab VARCHAR(32) NOT NULL,
			leg_bc VARCHAR(32) NOT NULL,
			leg_ac VARCHAR(32) NOT NULL,
			ts TIMESTAMPTZ NOT NULL,
			ok BOOLEAN NOT NULL,
			net_est DOUBLE PRECISION NOT NULL,
			realized_usdt NUMERIC(20, 8),
			threshold_bps INTEGER NOT NULL,
			notional_usd NUMERIC(20, 8) NOT NULL,
			slippage_bps INTEGER NOT NULL,
			dry_run BOOLEAN NOT NULL,
			latency_ms BIGINT NOT NULL,
			skip_reasons TEXT[]
		)`,
		`CREATE TABLE IF NOT EXISTS fills (
			id UUID PRIMARY KEY,
			attempt_id UUID REFERENCES triangle_attempts(id),
			venue VARCHAR(32) NOT NULL,
			symbol VARCHAR(32) NOT NULL,
			side VARCHAR(4) NOT NULL,
			leg VARCHAR(4) NOT NULL,
			price NUMERIC(20, 8) NOT NULL,
			qty NUMERIC(20, 8) NOT NULL,
			fee NUMERIC(20, 8) NOT NULL,
			dry_run BOOLEAN NOT NULL,
			ts TIMESTAMPTZ NOT NULL
		)`,
	}

	for _, m := range migrations {
		if _, err := s.pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	s.logger.Info("PostgreSQL cold-store migrations completed")
	return nil
}

// MirrorAttempt writes one attempt and its fills. It is only ever called
// from AsyncWriter's background goroutine, never from the evaluate/execute
// path directly.
func (s *PostgresColdStore) MirrorAttempt(ctx context.Context, attempt domain.TriangleAttempt, fills []domain.Fill) error {
	if s == nil || s.pool == nil {
		return nil
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO triangle_attempts
			(id, venue, leg_ab, leg_bc, leg_ac, ts, ok, net_est, realized_usdt,
			 threshold_bps, notional_usd, slippage_bps, dry_run, latency_ms, skip_reasons)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		 ON CONFLICT (id) DO NOTHING`,
		attempt.ID, attempt.Venue, attempt.AB, attempt.BC, attempt.AC, attempt.Timestamp,
		attempt.OK, attempt.NetEst, attempt.RealizedUSDT, attempt.ThresholdBps,
		attempt.NotionalUSD, attempt.SlippageBps, attempt.DryRun, attempt.LatencyMs,
		skipReasonStrings(attempt.SkipReasons),
	)
	if err != nil {
		return fmt.Errorf("mirror attempt: %w", err)
	}

	for _, f := range fills {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO fills (id, attempt_id, venue, symbol, side, leg, price, qty, fee, dry_run, ts)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
			 ON CONFLICT (id) DO NOTHING`,
			f.ID, f.AttemptID, f.Venue, f.Symbol, string(f.Side), string(f.Leg),
			f.Price, f.Qty, f.Fee, f.DryRun, f.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("mirror fill %s: %w", f.Leg, err)
		}
	}
	return nil
}

func skipReasonStrings(reasons []domain.SkipReason) []string {
	out := make([]string, len(reasons))
	for i, r := range reasons {
		out[i] = string(r)
	}
	return out
}

func (s *PostgresColdStore) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}
