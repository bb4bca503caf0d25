package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	_ "modernc.org/sqlite" // Pure Go SQLite driver - no CGO required
)

// NewSQLiteStore opens (or creates) the database file at path and applies
// migrations. SQLite allows a single writer, so the pool is pinned to one
// connection and every atomic unit is serialized.
func NewSQLiteStore(ctx context.Context, path string, log *zap.Logger) (*SQLStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// sqlx only needs the name to pick the bind style.
	store, err := newSQLStore(ctx, db, "sqlite3", sqliteDialect)
	if err != nil {
		db.Close()
		return nil, err
	}

	log.Info("store initialized", zap.String("component", "SQLiteStore"), zap.String("path", path))
	return store, nil
}
