package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Supported drivers
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Options configures Connect
type Options struct {
	Driver       string
	DSN          string // file path for sqlite3, connection URL for postgres
	MaxOpenConns int
}

// DB is a database connection that knows its SQL dialect
type DB struct {
	*sqlx.DB
	sb squirrel.StatementBuilderType
}

// Connect opens the database, configures the pool and creates the schema
func Connect(ctx context.Context, opts Options) (*DB, error) {
	var (
		conn *sqlx.DB
		err  error
	)

	switch opts.Driver {
	case DriverSQLite, "":
		conn, err = connectSQLite(ctx, opts.DSN)
	case DriverPostgres:
		conn, err = sqlx.ConnectContext(ctx, DriverPostgres, opts.DSN)
		if err == nil && opts.MaxOpenConns > 0 {
			conn.SetMaxOpenConns(opts.MaxOpenConns)
		}
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := wrap(conn)
	if err := db.initializeSchema(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

func wrap(conn *sqlx.DB) *DB {
	var format squirrel.PlaceholderFormat = squirrel.Question
	if conn.DriverName() == DriverPostgres {
		format = squirrel.Dollar
	}
	return &DB{
		DB: conn,
		sb: squirrel.StatementBuilder.PlaceholderFormat(format),
	}
}

func connectSQLite(ctx context.Context, path string) (*sqlx.DB, error) {
	if path == "" {
		path = filepath.Join("data", "cardbot.db")
	}
	if !strings.HasPrefix(path, ":memory:") && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"
	}

	conn, err := sqlx.ConnectContext(ctx, DriverSQLite, dsn)
	if err != nil {
		return nil, err
	}

	// SQLite doesn't support multiple writers
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	return conn, nil
}

// IsPostgres reports whether the connection speaks the postgres dialect
func (db *DB) IsPostgres() bool {
	return db.DriverName() == DriverPostgres
}

// initializeSchema creates the tables if they don't exist
func (db *DB) initializeSchema(ctx context.Context) error {
	statements := sqliteSchema
	if db.IsPostgres() {
		statements = postgresSchema
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS card_sets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY,
		username TEXT NOT NULL DEFAULT '',
		first_name TEXT NOT NULL DEFAULT '',
		is_admin BOOLEAN NOT NULL DEFAULT 0,
		score INTEGER NOT NULL DEFAULT 0,
		timezone_offset REAL NOT NULL DEFAULT 0,
		current_mode TEXT NOT NULL DEFAULT '',
		current_set_id INTEGER REFERENCES card_sets(id) ON DELETE SET NULL,
		notifications_enabled BOOLEAN NOT NULL DEFAULT 1,
		last_reminded_at INTEGER,
		created_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS flashcards (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		set_id INTEGER NOT NULL REFERENCES card_sets(id) ON DELETE CASCADE,
		front TEXT NOT NULL,
		back TEXT NOT NULL,
		example TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		UNIQUE(set_id, front)
	)`,
	`CREATE TABLE IF NOT EXISTS card_progress (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		flashcard_id INTEGER NOT NULL REFERENCES flashcards(id) ON DELETE CASCADE,
		review_count INTEGER NOT NULL DEFAULT 0,
		correct_streak INTEGER NOT NULL DEFAULT 0,
		correct_count INTEGER NOT NULL DEFAULT 0,
		incorrect_count INTEGER NOT NULL DEFAULT 0,
		lapse_count INTEGER NOT NULL DEFAULT 0,
		due_time INTEGER NOT NULL DEFAULT 0,
		learned_date INTEGER,
		last_reviewed INTEGER,
		is_skipped BOOLEAN NOT NULL DEFAULT 0,
		UNIQUE(user_id, flashcard_id)
	)`,
	`CREATE TABLE IF NOT EXISTS review_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		flashcard_id INTEGER NOT NULL REFERENCES flashcards(id) ON DELETE CASCADE,
		set_id INTEGER NOT NULL,
		timestamp INTEGER NOT NULL,
		response INTEGER NOT NULL,
		score_change INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_card_progress_user_due ON card_progress(user_id, due_time)`,
	`CREATE INDEX IF NOT EXISTS idx_review_log_user_ts ON review_log(user_id, timestamp)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS card_sets (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		created_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id BIGINT PRIMARY KEY,
		username TEXT NOT NULL DEFAULT '',
		first_name TEXT NOT NULL DEFAULT '',
		is_admin BOOLEAN NOT NULL DEFAULT FALSE,
		score BIGINT NOT NULL DEFAULT 0,
		timezone_offset DOUBLE PRECISION NOT NULL DEFAULT 0,
		current_mode TEXT NOT NULL DEFAULT '',
		current_set_id BIGINT REFERENCES card_sets(id) ON DELETE SET NULL,
		notifications_enabled BOOLEAN NOT NULL DEFAULT TRUE,
		last_reminded_at BIGINT,
		created_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS flashcards (
		id BIGSERIAL PRIMARY KEY,
		set_id BIGINT NOT NULL REFERENCES card_sets(id) ON DELETE CASCADE,
		front TEXT NOT NULL,
		back TEXT NOT NULL,
		example TEXT NOT NULL DEFAULT '',
		created_at BIGINT NOT NULL,
		UNIQUE(set_id, front)
	)`,
	`CREATE TABLE IF NOT EXISTS card_progress (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		flashcard_id BIGINT NOT NULL REFERENCES flashcards(id) ON DELETE CASCADE,
		review_count INTEGER NOT NULL DEFAULT 0,
		correct_streak INTEGER NOT NULL DEFAULT 0,
		correct_count INTEGER NOT NULL DEFAULT 0,
		incorrect_count INTEGER NOT NULL DEFAULT 0,
		lapse_count INTEGER NOT NULL DEFAULT 0,
		due_time BIGINT NOT NULL DEFAULT 0,
		learned_date BIGINT,
		last_reviewed BIGINT,
		is_skipped BOOLEAN NOT NULL DEFAULT FALSE,
		UNIQUE(user_id, flashcard_id)
	)`,
	`CREATE TABLE IF NOT EXISTS review_log (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		flashcard_id BIGINT NOT NULL REFERENCES flashcards(id) ON DELETE CASCADE,
		set_id BIGINT NOT NULL,
		timestamp BIGINT NOT NULL,
		response INTEGER NOT NULL,
		score_change INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_card_progress_user_due ON card_progress(user_id, due_time)`,
	`CREATE INDEX IF NOT EXISTS idx_review_log_user_ts ON review_log(user_id, timestamp)`,
}
