package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	_ "github.com/go-sql-driver/mysql"
)

// NewMySQLStore connects to MySQL and applies migrations.
// dsn format: "user:password@tcp(host:port)/dbname"
func NewMySQLStore(ctx context.Context, dsn string, log *zap.Logger) (*SQLStore, error) {
	db, err := sql.Open("mysql", mysqlDSN(dsn))
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	store, err := newSQLStore(ctx, db, "mysql", mysqlDialect)
	if err != nil {
		db.Close()
		return nil, err
	}

	log.Info("store initialized", zap.String("component", "MySQLStore"))
	return store, nil
}

// mysqlDSN adds the parameters the store relies on: DATETIME columns scan
// into time.Time, and UPDATE reports matched rather than changed rows.
func mysqlDSN(dsn string) string {
	for _, param := range []string{"parseTime=true", "clientFoundRows=true"} {
		key := param[:strings.IndexByte(param, '=')+1]
		if strings.Contains(dsn, key) {
			continue
		}
		if strings.Contains(dsn, "?") {
			dsn += "&" + param
		} else {
			dsn += "?" + param
		}
	}
	return dsn
}
