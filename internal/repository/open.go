package repository

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Open connects to the configured backend. driver is one of sqlite,
// postgres or mysql; for sqlite dsn is a file path.
func Open(ctx context.Context, driver, dsn string, log *zap.Logger) (*SQLStore, error) {
	switch driver {
	case "", "sqlite":
		return NewSQLiteStore(ctx, dsn, log)
	case "postgres":
		return NewPostgresStore(ctx, dsn, log)
	case "mysql":
		return NewMySQLStore(ctx, dsn, log)
	default:
		return nil, fmt.Errorf("unsupported database driver: %q", driver)
	}
}
