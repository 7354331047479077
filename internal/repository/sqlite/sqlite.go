// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY SQLITE?
// SQLite is an embedded database; it lives inside the Go binary as a single file.
// It is the default credential store: no separate server to run in development,
// and tests use ":memory:" for a fresh database per test. Deployments that already
// run a document store use the mongo package instead; both satisfy
// repository.UserRepository.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// modernc.org/sqlite is a pure Go translation of the SQLite C code, so it needs no C compiler
// and cross-compilation just works.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	// Importing the driver registers "sqlite" with database/sql. We also
	// need its Error type to recognise constraint violations.
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// DB wraps a sql.DB connection pool and provides repository methods.
type DB struct {
	conn *sql.DB
}

// New creates a new SQLite database connection and runs migrations.
//
// dbPath examples:
//   - "data/storefront.db"  → file-based database (persistent)
//   - ":memory:"            → in-memory database (tests; lost on close)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every connection to ":memory:" is a separate, empty database.
	// Pin the pool to one connection so all queries see the same tables.
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers proceed while a write is in progress.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Foreign keys are OFF by default in SQLite. wishlist_items relies on
	// ON DELETE CASCADE, so they must be on.
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema. CREATE ... IF NOT EXISTS makes it safe to run on
// every start-up.
//
// SPARSE UNIQUENESS FOR google_id:
// SQLite treats NULLs as distinct in a UNIQUE index, so local accounts store
// NULL (not '') and any number of them can coexist, while two rows can never
// share the same Google identity.
//
// reset_token_expiry is stored as unix milliseconds so the expiry check in
// GetByResetTokenHash is a plain integer comparison.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id                 TEXT PRIMARY KEY,
			name               TEXT NOT NULL,
			email              TEXT NOT NULL UNIQUE,
			password_hash      TEXT NOT NULL DEFAULT '',
			google_id          TEXT UNIQUE,
			avatar             TEXT NOT NULL DEFAULT '',
			role               TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('user', 'admin')),
			is_active          INTEGER NOT NULL DEFAULT 1,
			reset_token_hash   TEXT,
			reset_token_expiry INTEGER,
			created_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_users_created_at ON users(created_at);
		CREATE INDEX IF NOT EXISTS idx_users_reset_token_hash ON users(reset_token_hash);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS wishlist_items (
			user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			product_id TEXT NOT NULL,
			position   INTEGER NOT NULL,
			PRIMARY KEY (user_id, product_id)
		);
	`)
	if err != nil {
		return fmt.Errorf("creating wishlist_items table: %w", err)
	}

	return nil
}

// constraintCode extracts the extended SQLite result code from a driver error,
// or 0 if err did not come from SQLite.
func constraintCode(err error) int {
	var se *msqlite.Error
	if errors.As(err, &se) {
		return se.Code()
	}
	return 0
}

// The message checks cover drivers built without extended result codes.
func isUniqueViolation(err error) bool {
	code := constraintCode(err)
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
		code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY ||
		strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyViolation(err error) bool {
	return constraintCode(err) == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY ||
		strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
