package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"plotos/internal/domain"
)

// Compile-time interface check.
var _ StockStore = (*SQLiteStore)(nil)

// migrations is the additive schema ladder; PRAGMA user_version tracks the
// last applied step. New optional columns are appended as new steps so an
// old database upgrades in place without touching existing rows.
var migrations = [][]string{
	{
		`CREATE TABLE IF NOT EXISTS acoes_info (
			symbol TEXT PRIMARY KEY,
			info TEXT NOT NULL
		)`,
	},
	{
		`ALTER TABLE acoes_info ADD COLUMN recommendations TEXT`,
		`ALTER TABLE acoes_info ADD COLUMN dividends TEXT`,
		`ALTER TABLE acoes_info ADD COLUMN splits TEXT`,
		`ALTER TABLE acoes_info ADD COLUMN balance_sheet TEXT`,
	},
}

// SQLiteStore implements StockStore backed by a SQLite database. The file
// may be opened by multiple independent processes; writes hitting lock
// contention are retried internally before surfacing ErrUnavailable.
type SQLiteStore struct {
	db   *sql.DB
	path string

	busyAttempts int
	busyDelay    time.Duration
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies any
// pending schema migrations, and returns a ready-to-use store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// Serialize access through one connection; cross-process contention is
	// handled by the busy-retry discipline.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{
		db:           db,
		path:         dbPath,
		busyAttempts: 5,
		busyDelay:    2 * time.Second,
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating %s: %w", dbPath, err)
	}
	return s, nil
}

// SetBusyRetry overrides the lock-contention retry policy.
func (s *SQLiteStore) SetBusyRetry(attempts int, delay time.Duration) {
	s.busyAttempts = attempts
	s.busyDelay = delay
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// migrate applies schema steps beyond the recorded user_version.
func (s *SQLiteStore) migrate() error {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return err
	}

	for i := version; i < len(migrations); i++ {
		for _, stmt := range migrations[i] {
			if _, err := s.db.Exec(stmt); err != nil {
				return fmt.Errorf("migration %d: %w", i+1, err)
			}
		}
		if _, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			return err
		}
	}
	return nil
}

// Exists reports whether a row is cached for the symbol. Lock contention is
// retried internally like a write; the skip-if-cached path depends on this
// answer being reliable.
func (s *SQLiteStore) Exists(ctx context.Context, symbol string) (bool, error) {
	var found bool
	err := s.withBusyRetry(ctx, func() error {
		var one int
		err := s.db.QueryRowContext(ctx,
			"SELECT 1 FROM acoes_info WHERE symbol = ?", symbol).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			found = false
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			return false, err
		}
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return found, nil
}

// Upsert inserts a new row for symbol or fully replaces all value columns of
// the existing one.
func (s *SQLiteStore) Upsert(ctx context.Context, symbol string, bundle *domain.StockBundle) error {
	const q = `INSERT INTO acoes_info
		(symbol, info, recommendations, dividends, splits, balance_sheet)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			info = excluded.info,
			recommendations = excluded.recommendations,
			dividends = excluded.dividends,
			splits = excluded.splits,
			balance_sheet = excluded.balance_sheet`

	return s.withBusyRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, q,
			symbol,
			string(bundle.Info),
			nullable(bundle.Recommendations),
			nullable(bundle.Dividends),
			nullable(bundle.Splits),
			nullable(bundle.BalanceSheet),
		)
		return err
	})
}

// Get returns the cached bundle for symbol, or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, symbol string) (*domain.StockBundle, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT info, recommendations, dividends, splits, balance_sheet
		 FROM acoes_info WHERE symbol = ?`, symbol)

	bundle, err := scanBundle(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return bundle, nil
}

// ListAll returns every cached entry ordered by symbol.
func (s *SQLiteStore) ListAll(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT symbol, info, recommendations, dividends, splits, balance_sheet
		 FROM acoes_info ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var symbol string
		bundle, err := scanBundle(func(dest ...any) error {
			return rows.Scan(append([]any{&symbol}, dest...)...)
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		entries = append(entries, Entry{Symbol: symbol, Bundle: *bundle})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return entries, nil
}

// Snapshot writes a consistent byte-level copy of the database to dst,
// suitable for download as a raw file.
func (s *SQLiteStore) Snapshot(ctx context.Context, dst string) error {
	return s.withBusyRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, "VACUUM INTO ?", dst)
		return err
	})
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// withBusyRetry runs fn, retrying lock-contention failures with a fixed
// delay up to the configured attempt ceiling, then wraps the last error in
// ErrUnavailable. Non-busy errors surface immediately.
func (s *SQLiteStore) withBusyRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < s.busyAttempts; attempt++ {
		err = fn()
		if err == nil || !isBusy(err) {
			return err
		}
		if attempt < s.busyAttempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.busyDelay):
			}
		}
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// isBusy reports whether err is SQLite lock contention (SQLITE_BUSY or
// SQLITE_LOCKED).
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "busy") ||
		strings.Contains(msg, "locked")
}

// nullable maps an absent sub-document onto SQL NULL.
func nullable(m json.RawMessage) any {
	if m == nil {
		return nil
	}
	return string(m)
}

// scanBundle reads the five value columns via scan into a StockBundle.
func scanBundle(scan func(dest ...any) error) (*domain.StockBundle, error) {
	var info string
	var recommendations, dividends, splits, balanceSheet sql.NullString

	if err := scan(&info, &recommendations, &dividends, &splits, &balanceSheet); err != nil {
		return nil, err
	}

	bundle := &domain.StockBundle{Info: json.RawMessage(info)}
	if recommendations.Valid {
		bundle.Recommendations = json.RawMessage(recommendations.String)
	}
	if dividends.Valid {
		bundle.Dividends = json.RawMessage(dividends.String)
	}
	if splits.Valid {
		bundle.Splits = json.RawMessage(splits.String)
	}
	if balanceSheet.Valid {
		bundle.BalanceSheet = json.RawMessage(balanceSheet.String)
	}
	return bundle, nil
}
