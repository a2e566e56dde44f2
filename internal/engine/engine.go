// Package engine is the façade in front of the embedded storage engine:
// DbConnection, DbSession, and DbCursor from spec.md §3. The on-disk
// format, query grammar, and indexing structure are explicitly out of
// scope (spec.md §1 Non-goals) and owned by whatever real engine library
// sits behind this interface; here the façade is backed by
// modernc.org/sqlite, the teacher's own pure-Go embedded database driver
// (internal/database/db.go in the teacher repo), repurposed from DNS
// config storage to time-series sample storage.
package engine

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migsqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Connection is the process-wide façade over the embedded engine: opaque,
// shared, long-lived. Invariant: at most one Connection is open per
// database path per process (enforced by openPaths below).
type Connection struct {
	path   string
	db     *sql.DB
	mu     sync.RWMutex
	closed atomic.Bool
}

var (
	openMu    sync.Mutex
	openPaths = map[string]struct{}{}
)

// Open opens the database at path. It refuses to open if the path is
// already open in this process (spec.md §3 DbConnection invariant) or if
// the manifest produced by Create is missing (spec.md §6 "refuses to
// start if the manifest is absent").
func Open(path string) (*Connection, error) {
	if err := claimPath(path); err != nil {
		return nil, err
	}

	if !ManifestExists(path) {
		releasePath(path)
		return nil, fmt.Errorf("engine: no manifest at %s, run --create first", path)
	}

	db, err := openSQLite(path)
	if err != nil {
		releasePath(path)
		return nil, err
	}

	conn := &Connection{path: path, db: db}
	if err := conn.migrate(); err != nil {
		db.Close()
		releasePath(path)
		return nil, fmt.Errorf("engine: migrate: %w", err)
	}
	return conn, nil
}

func claimPath(path string) error {
	openMu.Lock()
	defer openMu.Unlock()
	if _, ok := openPaths[path]; ok {
		return ErrAlreadyOpen
	}
	openPaths[path] = struct{}{}
	return nil
}

func releasePath(path string) {
	openMu.Lock()
	defer openMu.Unlock()
	delete(openPaths, path)
}

func openSQLite(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dataFile(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("engine: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(time.Hour)
	return db, nil
}

func (c *Connection) migrate() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	dbDriver, err := migsqlite.WithInstance(c.db, &migsqlite.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", dbDriver)
	if err != nil {
		return fmt.Errorf("migrator: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

// Close destroys the connection. Safe to call once at clean shutdown.
func (c *Connection) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	releasePath(c.path)
	return c.db.Close()
}

// Closed reports whether Close has already run. QueryProcessor uses this
// to emulate the weak-reference upgrade-or-fail contract from spec.md §9:
// idiomatic Go has no usable weak pointer for this (runtime/weak exists
// but nothing in the teacher's stack reaches for it), so a checked atomic
// flag substitutes for the weak back-reference.
func (c *Connection) Closed() bool {
	return c.closed.Load()
}

// NewSession creates a DbSession owned by a single ingestion worker or a
// single query for its lifetime. Sessions are not safe for concurrent use
// by multiple workers; multiple sessions against one Connection may run
// in parallel.
func (c *Connection) NewSession() (*Session, error) {
	if c.Closed() {
		return nil, ErrConnectionClosed
	}
	return &Session{conn: c}, nil
}

// Health checks database connectivity, mirroring the teacher's
// DB.Health().
func (c *Connection) Health() error {
	if c.Closed() {
		return ErrConnectionClosed
	}
	return c.db.PingContext(context.Background())
}

// StatsText returns a textual statistics blob for the HTTP stats surface
// and --debug-dump.
func (c *Connection) StatsText() (string, error) {
	if c.Closed() {
		return "", ErrConnectionClosed
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	var sampleCount, seriesCount int64
	if err := c.db.QueryRow("SELECT count(*) FROM samples").Scan(&sampleCount); err != nil {
		return "", err
	}
	if err := c.db.QueryRow("SELECT count(*) FROM series").Scan(&seriesCount); err != nil {
		return "", err
	}
	return fmt.Sprintf("samples %d\nseries %d\n", sampleCount, seriesCount), nil
}

// ResourceText returns an engine-exposed textual resource by name, e.g.
// the series list or function catalog (spec.md §4.4).
func (c *Connection) ResourceText(name string) (string, error) {
	if c.Closed() {
		return "", ErrConnectionClosed
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch name {
	case "series", "names":
		rows, err := c.db.Query("SELECT name FROM series ORDER BY name")
		if err != nil {
			return "", err
		}
		defer rows.Close()
		out := ""
		for rows.Next() {
			var n string
			if err := rows.Scan(&n); err != nil {
				return "", err
			}
			out += n + "\n"
		}
		return out, rows.Err()
	case "functions":
		return "count\nmean\nmin\nmax\nsum\n", nil
	default:
		return "", fmt.Errorf("engine: unknown resource %q", name)
	}
}

func dataFile(path string) string {
	return path + "/data.db"
}

// seriesID resolves (and assigns on first sight) a numeric ParamID for a
// series name, grounded on spec.md's glossary entry for Series/ParamId.
func seriesID(tx *sql.Tx, name string) (uint64, error) {
	var id uint64
	err := tx.QueryRow("SELECT param_id FROM series WHERE name = ?", name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, err
	}
	res, err := tx.Exec("INSERT INTO series(name, param_id) VALUES (?, (SELECT COALESCE(MAX(param_id), 0) + 1 FROM series))", name)
	if err != nil {
		return 0, err
	}
	lastID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return seriesIDFromRowID(tx, lastID)
}

func seriesIDFromRowID(tx *sql.Tx, rowID int64) (uint64, error) {
	var id uint64
	if err := tx.QueryRow("SELECT param_id FROM series WHERE rowid = ?", rowID).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}
