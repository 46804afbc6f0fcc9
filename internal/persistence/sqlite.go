package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/arbitgo/triarb/internal/domain"
	"github.com/arbitgo/triarb/internal/triangle"
)

// SQLiteStore is the primary append-only store, one database file per venue
// per spec's "Persisted state layout". It uses the pure-Go modernc.org/sqlite
// driver so the binary needs no cgo toolchain at build time.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := newSQLiteStoreFromDB(db, logger)
	if err := store.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return store, nil
}

// newSQLiteStoreFromDB wraps an already-open *sql.DB, letting tests swap in a
// sqlmock connection without opening a real database file.
func newSQLiteStoreFromDB(db *sql.DB, logger *slog.Logger) *SQLiteStore {
	return &SQLiteStore{db: db, logger: logger}
}

var baseSchema = []string{
	`CREATE TABLE IF NOT EXISTS triangles (
		id TEXT PRIMARY KEY,
		leg_ab TEXT NOT NULL,
		leg_bc TEXT NOT NULL,
		leg_ac TEXT NOT NULL,
		UNIQUE (leg_ab, leg_bc, leg_ac)
	)`,
	`CREATE TABLE IF NOT EXISTS triangle_attempts (
		id TEXT PRIMARY KEY,
		triangle_id TEXT NOT NULL REFERENCES triangles(id),
		venue TEXT NOT NULL,
		ts TIMESTAMP NOT NULL,
		ok INTEGER NOT NULL,
		net_est REAL NOT NULL,
		realized_usdt TEXT,
		threshold_bps INTEGER NOT NULL,
		notional_usd TEXT NOT NULL,
		slippage_bps INTEGER NOT NULL,
		dry_run INTEGER NOT NULL,
		latency_ms INTEGER NOT NULL,
		skip_reasons TEXT,
		qty_base REAL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS fills (
		id TEXT PRIMARY KEY,
		attempt_id TEXT REFERENCES triangle_attempts(id),
		venue TEXT NOT NULL,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		leg TEXT NOT NULL,
		price TEXT NOT NULL,
		qty TEXT NOT NULL,
		fee TEXT NOT NULL,
		fee_rate TEXT NOT NULL,
		notional TEXT NOT NULL,
		tif TEXT NOT NULL,
		order_type TEXT NOT NULL,
		dry_run INTEGER NOT NULL,
		ts TIMESTAMP NOT NULL
	)`,
}

// fillsColumns is the forward-compatible column set for fills: on startup any
// column named here but missing from an existing database is added via
// ALTER TABLE, so older database files pick up new fields without a
// destructive rebuild.
var fillsColumns = map[string]string{
	"id":         "TEXT",
	"attempt_id": "TEXT",
	"venue":      "TEXT",
	"symbol":     "TEXT",
	"side":       "TEXT",
	"leg":        "TEXT",
	"price":      "TEXT",
	"qty":        "TEXT",
	"fee":        "TEXT",
	"fee_rate":   "TEXT",
	"notional":   "TEXT",
	"tif":        "TEXT",
	"order_type": "TEXT",
	"dry_run":    "INTEGER",
	"ts":         "TIMESTAMP",
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	for _, stmt := range baseSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	if err := s.addMissingColumns(ctx, "fills", fillsColumns); err != nil {
		return fmt.Errorf("migrate fills columns: %w", err)
	}
	return nil
}

func (s *SQLiteStore) addMissingColumns(ctx context.Context, table string, columns map[string]string) error {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return err
	}
	existing := make(map[string]bool)
	for rows.Next() {
		var cid int
		var name, colType string
		var notNull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			rows.Close()
			return err
		}
		existing[strings.ToLower(name)] = true
	}
	rows.Close()

	for name, colType := range columns {
		if existing[strings.ToLower(name)] {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, name, colType)
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("add column %s.%s: %w", table, name, err)
		}
		s.logger.Info("added forward-compatible column", "table", table, "column", name)
	}
	return nil
}

func (s *SQLiteStore) InsertTriangle(ctx context.Context, tri triangle.Triangle) (uuid.UUID, error) {
	var existing string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM triangles WHERE leg_ab = ? AND leg_bc = ? AND leg_ac = ?`,
		tri.AB, tri.BC, tri.AC,
	).Scan(&existing)
	if err == nil {
		return uuid.Parse(existing)
	}
	if err != sql.ErrNoRows {
		return uuid.Nil, fmt.Errorf("lookup triangle: %w", err)
	}

	id := uuid.Must(uuid.NewV7())
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO triangles (id, leg_ab, leg_bc, leg_ac) VALUES (?, ?, ?, ?)`,
		id.String(), tri.AB, tri.BC, tri.AC,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert triangle: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) InsertAttempt(ctx context.Context, triangleID uuid.UUID, attempt domain.TriangleAttempt, fills []domain.Fill) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var realized interface{}
	if attempt.RealizedUSDT != nil {
		realized = attempt.RealizedUSDT.String()
	}
	var qtyBase interface{}
	if attempt.QtyBase != nil {
		qtyBase = *attempt.QtyBase
	}

	reasons := make([]string, len(attempt.SkipReasons))
	for i, r := range attempt.SkipReasons {
		reasons[i] = string(r)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO triangle_attempts
			(id, triangle_id, venue, ts, ok, net_est, realized_usdt, threshold_bps,
			 notional_usd, slippage_bps, dry_run, latency_ms, skip_reasons, qty_base)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		attempt.ID.String(), triangleID.String(), attempt.Venue, attempt.Timestamp,
		boolToInt(attempt.OK), attempt.NetEst, realized, attempt.ThresholdBps,
		attempt.NotionalUSD.String(), attempt.SlippageBps, boolToInt(attempt.DryRun),
		attempt.LatencyMs, strings.Join(reasons, ","), qtyBase,
	)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}

	for _, f := range fills {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO fills
				(id, attempt_id, venue, symbol, side, leg, price, qty, fee, fee_rate,
				 notional, tif, order_type, dry_run, ts)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			f.ID.String(), f.AttemptID.String(), f.Venue, f.Symbol, string(f.Side),
			string(f.Leg), f.Price.String(), f.Qty.String(), f.Fee.String(), f.FeeRate.String(),
			f.Notional.String(), string(f.TIF), string(f.Type), boolToInt(f.DryRun), f.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("insert fill %s: %w", f.Leg, err)
		}
	}

	return tx.Commit()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
