package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/arjunm/nse_option_engine/internal/domain"
)

// SQLiteStore persists positions and the per-evaluation audit trail.
// Closed positions are archived in place; nothing is ever deleted.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS positions (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			kind TEXT NOT NULL,
			strike REAL NOT NULL DEFAULT 0,
			opt_right TEXT NOT NULL DEFAULT '',
			expiry_hint TEXT NOT NULL DEFAULT '',
			resolved_expiry DATETIME,
			lot_size INTEGER NOT NULL DEFAULT 1,
			identifier TEXT NOT NULL DEFAULT '',
			entry_price REAL NOT NULL,
			entry_time DATETIME NOT NULL,
			quantity INTEGER NOT NULL,
			stop_loss REAL NOT NULL DEFAULT 0,
			target REAL NOT NULL DEFAULT 0,
			highest_price REAL NOT NULL DEFAULT 0,
			trailing TEXT NOT NULL DEFAULT 'disabled',
			trailing_distance REAL NOT NULL DEFAULT 0,
			max_holding_days INTEGER NOT NULL DEFAULT 0,
			sl_order_id TEXT,
			sl_updates INTEGER NOT NULL DEFAULT 0,
			last_sl_update DATETIME,
			status TEXT NOT NULL,
			exit_price REAL NOT NULL DEFAULT 0,
			exit_time DATETIME,
			exit_reason TEXT NOT NULL DEFAULT '',
			gross_pnl REAL NOT NULL DEFAULT 0,
			cost REAL NOT NULL DEFAULT 0,
			net_pnl REAL NOT NULL DEFAULT 0,
			pct_return REAL NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_positions_status ON positions(status);`,
		`CREATE INDEX IF NOT EXISTS idx_positions_symbol ON positions(symbol);`,
		`CREATE TABLE IF NOT EXISTS position_checks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			checked_at DATETIME NOT NULL,
			position_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			status TEXT NOT NULL,
			entry_price REAL NOT NULL,
			current_price REAL NOT NULL,
			high REAL NOT NULL,
			low REAL NOT NULL,
			stop_loss REAL NOT NULL,
			target REAL NOT NULL,
			days_held INTEGER NOT NULL,
			pnl_pct REAL NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_checks_position ON position_checks(position_id);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}

	// Migration: columns added after the first release. Errors mean the
	// column already exists.
	_, _ = s.db.Exec(`ALTER TABLE positions ADD COLUMN identifier TEXT NOT NULL DEFAULT ''`)
	_, _ = s.db.Exec(`ALTER TABLE positions ADD COLUMN sl_order_id TEXT`)
	_, _ = s.db.Exec(`ALTER TABLE positions ADD COLUMN sl_updates INTEGER NOT NULL DEFAULT 0`)
	_, _ = s.db.Exec(`ALTER TABLE positions ADD COLUMN last_sl_update DATETIME`)

	return nil
}

func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}

func nullString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

// Save upserts a position. On conflict only the fields the engine mutates
// are written back: resolved expiry, lot size, stop-loss, running high,
// trailing counters and the status/close block. Immutable entry fields are
// left alone so a concurrent manual edit cannot be clobbered.
func (s *SQLiteStore) Save(ctx context.Context, p *domain.Position) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}

	query := `INSERT INTO positions (
		id, symbol, kind, strike, opt_right, expiry_hint, resolved_expiry, lot_size, identifier,
		entry_price, entry_time, quantity, stop_loss, target, highest_price,
		trailing, trailing_distance, max_holding_days,
		sl_order_id, sl_updates, last_sl_update,
		status, exit_price, exit_time, exit_reason, gross_pnl, cost, net_pnl, pct_return,
		created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		resolved_expiry = excluded.resolved_expiry,
		lot_size = excluded.lot_size,
		identifier = excluded.identifier,
		stop_loss = excluded.stop_loss,
		highest_price = excluded.highest_price,
		sl_order_id = excluded.sl_order_id,
		sl_updates = excluded.sl_updates,
		last_sl_update = excluded.last_sl_update,
		status = excluded.status,
		exit_price = excluded.exit_price,
		exit_time = excluded.exit_time,
		exit_reason = excluded.exit_reason,
		gross_pnl = excluded.gross_pnl,
		cost = excluded.cost,
		net_pnl = excluded.net_pnl,
		pct_return = excluded.pct_return`

	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.Symbol, string(p.Kind), p.Strike, string(p.Right), p.ExpiryHint,
		nullTime(p.ResolvedExpiry), p.LotSize, p.Identifier,
		p.EntryPrice, p.EntryTime, p.Quantity, p.StopLoss, p.Target, p.HighestPrice,
		string(p.Trailing), p.TrailingDistance, p.MaxHoldingDays,
		nullString(p.SLOrderID), p.SLUpdates, nullTime(p.LastSLUpdate),
		string(p.Status), p.ExitPrice, nullTime(p.ExitTime), string(p.ExitReason),
		p.GrossPnL, p.Cost, p.NetPnL, p.PctReturn,
		p.CreatedAt)
	return err
}

const positionColumns = `id, symbol, kind, strike, opt_right, expiry_hint, resolved_expiry, lot_size, identifier,
	entry_price, entry_time, quantity, stop_loss, target, highest_price,
	trailing, trailing_distance, max_holding_days,
	sl_order_id, sl_updates, last_sl_update,
	status, exit_price, exit_time, exit_reason, gross_pnl, cost, net_pnl, pct_return,
	created_at`

func scanPosition(row interface{ Scan(...interface{}) error }) (*domain.Position, error) {
	var (
		p                        domain.Position
		kind, right, trailing    string
		status, exitReason       string
		resolvedExpiry, exitTime sql.NullTime
		lastSLUpdate             sql.NullTime
		slOrderID                sql.NullString
	)
	err := row.Scan(
		&p.ID, &p.Symbol, &kind, &p.Strike, &right, &p.ExpiryHint, &resolvedExpiry, &p.LotSize, &p.Identifier,
		&p.EntryPrice, &p.EntryTime, &p.Quantity, &p.StopLoss, &p.Target, &p.HighestPrice,
		&trailing, &p.TrailingDistance, &p.MaxHoldingDays,
		&slOrderID, &p.SLUpdates, &lastSLUpdate,
		&status, &p.ExitPrice, &exitTime, &exitReason,
		&p.GrossPnL, &p.Cost, &p.NetPnL, &p.PctReturn,
		&p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.Kind = domain.InstrumentKind(kind)
	p.Right = domain.OptionRight(right)
	p.Trailing = domain.TrailingMode(trailing)
	p.Status = domain.Status(status)
	p.ExitReason = domain.ExitReason(exitReason)
	if resolvedExpiry.Valid {
		p.ResolvedExpiry = resolvedExpiry.Time
	}
	if exitTime.Valid {
		p.ExitTime = exitTime.Time
	}
	if lastSLUpdate.Valid {
		p.LastSLUpdate = lastSLUpdate.Time
	}
	if slOrderID.Valid {
		id := slOrderID.String
		p.SLOrderID = &id
	}
	return &p, nil
}

func (s *SQLiteStore) LoadOpenPositions(ctx context.Context) ([]*domain.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE status = ? ORDER BY entry_time`
	rows, err := s.db.QueryContext(ctx, query, string(domain.StatusOpen))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []*domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

func (s *SQLiteStore) GetPosition(ctx context.Context, id string) (*domain.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE id = ?`
	return scanPosition(s.db.QueryRowContext(ctx, query, id))
}

// ListClosedPositions returns the most recently closed positions, the
// archive a review UI or report would read.
func (s *SQLiteStore) ListClosedPositions(ctx context.Context, limit int) ([]*domain.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE status = ? ORDER BY exit_time DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, string(domain.StatusClosed), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []*domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

func (s *SQLiteStore) RecordCheck(ctx context.Context, rec *domain.CheckRecord) error {
	query := `INSERT INTO position_checks (
		checked_at, position_id, symbol, status, entry_price, current_price,
		high, low, stop_loss, target, days_held, pnl_pct
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		rec.Time, rec.PositionID, rec.Symbol, rec.Status, rec.EntryPrice, rec.CurrentPrice,
		rec.High, rec.Low, rec.StopLoss, rec.Target, rec.DaysHeld, rec.PnLPct)
	return err
}

// ListChecks returns the evaluation history for one position, newest first.
func (s *SQLiteStore) ListChecks(ctx context.Context, positionID string, limit int) ([]*domain.CheckRecord, error) {
	query := `SELECT checked_at, position_id, symbol, status, entry_price, current_price,
		high, low, stop_loss, target, days_held, pnl_pct
		FROM position_checks WHERE position_id = ? ORDER BY checked_at DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, positionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*domain.CheckRecord
	for rows.Next() {
		var r domain.CheckRecord
		if err := rows.Scan(&r.Time, &r.PositionID, &r.Symbol, &r.Status, &r.EntryPrice,
			&r.CurrentPrice, &r.High, &r.Low, &r.StopLoss, &r.Target, &r.DaysHeld, &r.PnLPct); err != nil {
			return nil, err
		}
		recs = append(recs, &r)
	}
	return recs, rows.Err()
}
