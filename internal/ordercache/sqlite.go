// Package ordercache is a SQLite-backed cache of fetched order lines.
// Order history is immutable, so recomputing recommendations should not
// refetch every order's line page from the remote API. The cache is strictly
// best-effort: callers treat any error as a miss.
package ordercache

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps the SQLite database holding cached order lines.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the cache database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (used by
// tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "ordercache.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't
// been run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// PutLines stores an order's lines, replacing any previous entry. An order
// with zero lines is still marked as cached so it is not refetched.
func (s *Store) PutLines(orderID string, lines []Line) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning cache write: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.Exec(`
		INSERT INTO cached_orders (order_id, fetched_at) VALUES (?, ?)
		ON CONFLICT(order_id) DO UPDATE SET fetched_at = excluded.fetched_at`,
		orderID, now,
	); err != nil {
		return fmt.Errorf("marking order cached: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM order_lines WHERE order_id = ?`, orderID); err != nil {
		return fmt.Errorf("clearing stale lines: %w", err)
	}

	for i, line := range lines {
		if _, err := tx.Exec(`
			INSERT INTO order_lines (order_id, seq, product_id, product_name, ordered_quantity)
			VALUES (?, ?, ?, ?, ?)`,
			orderID, i, line.ProductID, line.ProductName, line.OrderedQuantity,
		); err != nil {
			return fmt.Errorf("inserting line %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// GetLines returns an order's cached lines in their stored order.
// ErrNotFound means the order has never been cached; an empty slice with a
// nil error means it was cached with no lines.
func (s *Store) GetLines(orderID string) ([]Line, error) {
	var fetchedAt string
	err := s.db.QueryRow(`SELECT fetched_at FROM cached_orders WHERE order_id = ?`, orderID).Scan(&fetchedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`
		SELECT product_id, product_name, ordered_quantity
		FROM order_lines WHERE order_id = ? ORDER BY seq ASC`, orderID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := []Line{}
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ProductID, &l.ProductName, &l.OrderedQuantity); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// CachedOrders returns the ids of all cached orders.
func (s *Store) CachedOrders() ([]Entry, error) {
	rows, err := s.db.Query(`SELECT order_id, fetched_at FROM cached_orders ORDER BY fetched_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var fetchedAt string
		if err := rows.Scan(&e.OrderID, &fetchedAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, fetchedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing fetched_at: %w", err)
		}
		e.FetchedAt = t
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
