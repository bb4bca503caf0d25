package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// SQLStore implements Store on top of database/sql through sqlx. The same
// query set serves sqlite, postgres and mysql; dialect differences are kept
// in the dialect value.
type SQLStore struct {
	*queries
	db *sqlx.DB
}

// newSQLStore wraps an open handle and applies migrations.
func newSQLStore(ctx context.Context, db *sql.DB, driverName string, d dialect) (*SQLStore, error) {
	if _, err := migrate(ctx, db, d); err != nil {
		return nil, err
	}

	xdb := sqlx.NewDb(db, driverName)
	return &SQLStore{
		queries: &queries{ext: xdb, d: d},
		db:      xdb,
	}, nil
}

// WithinTx runs fn inside a database transaction.
func (s *SQLStore) WithinTx(ctx context.Context, fn func(q Queries) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if fnErr := fn(&queries{ext: tx, d: s.d}); fnErr != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return &TxError{Stage: "rollback", Cause: fnErr, Err: rbErr}
		}
		return fnErr
	}

	if err := tx.Commit(); err != nil {
		return &TxError{Stage: "commit", Err: err}
	}
	return nil
}

// Ping checks connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Driver returns the backend name.
func (s *SQLStore) Driver() string {
	return s.d.name
}

// Stats returns row counts and connection pool statistics.
func (s *SQLStore) Stats(ctx context.Context) (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	for _, table := range []string{"warehouses", "items", "transactions", "inventory_audits", "audit_details", "users"} {
		var count int64
		if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM "+table); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		stats["total_"+table] = count
	}

	if s.d.name == sqliteDialect.name {
		size, err := s.sqliteSize(ctx)
		if err != nil {
			return nil, err
		}
		stats["db_size_bytes"] = size
	}

	dbStats := s.db.Stats()
	stats["connections"] = map[string]interface{}{
		"open":     dbStats.OpenConnections,
		"in_use":   dbStats.InUse,
		"idle":     dbStats.Idle,
		"max_open": dbStats.MaxOpenConnections,
	}
	stats["driver"] = s.d.name

	return stats, nil
}

// Close closes the database connection pool.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// queries implements Queries against either the pool or an open transaction.
type queries struct {
	ext sqlx.ExtContext
	d   dialect
}

// insert runs an INSERT and returns the generated id.
func (q *queries) insert(ctx context.Context, query string, args ...interface{}) (int64, error) {
	query = q.ext.Rebind(query)
	if q.d.returning {
		var id int64
		if err := q.ext.QueryRowxContext(ctx, query+" RETURNING id", args...).Scan(&id); err != nil {
			return 0, err
		}
		return id, nil
	}

	res, err := q.ext.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// execOne runs a statement that must affect exactly one row.
func (q *queries) execOne(ctx context.Context, query string, args ...interface{}) error {
	res, err := q.ext.ExecContext(ctx, q.ext.Rebind(query), args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// get scans a single row into dest, mapping no rows to ErrNotFound.
func (q *queries) get(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	err := sqlx.GetContext(ctx, q.ext, dest, q.ext.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// sel scans all rows into dest.
func (q *queries) sel(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return sqlx.SelectContext(ctx, q.ext, dest, q.ext.Rebind(query), args...)
}

// where accumulates AND-ed conditions with their arguments.
type where struct {
	conds []string
	args  []interface{}
}

func (w *where) add(cond string, args ...interface{}) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// paginate appends LIMIT/OFFSET when a limit is set.
func paginate(query string, args []interface{}, limit, offset int) (string, []interface{}) {
	if limit <= 0 {
		return query, args
	}
	if offset < 0 {
		offset = 0
	}
	return query + " LIMIT ? OFFSET ?", append(args, limit, offset)
}

// sqliteSize returns the database file size from its page count and size.
func (s *SQLStore) sqliteSize(ctx context.Context) (int64, error) {
	var pageCount, pageSize int64
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err != nil {
		return 0, fmt.Errorf("failed to read page count: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err != nil {
		return 0, fmt.Errorf("failed to read page size: %w", err)
	}
	return pageCount * pageSize, nil
}

var _ Store = (*SQLStore)(nil)
