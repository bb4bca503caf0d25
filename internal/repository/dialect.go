package repository

import (
	"github.com/pressly/goose/v3"
)

// dialect captures the SQL differences between the supported backends.
type dialect struct {
	name      string // migrations directory and Driver() value
	greatest  string // two-argument max function
	returning bool   // supports INSERT/UPDATE ... RETURNING
	forUpdate string // row lock suffix for SELECT
	goose     goose.Dialect
}

var (
	sqliteDialect = dialect{
		name:      "sqlite",
		greatest:  "MAX",
		returning: true,
		goose:     goose.DialectSQLite3,
	}
	postgresDialect = dialect{
		name:      "postgres",
		greatest:  "GREATEST",
		returning: true,
		forUpdate: " FOR UPDATE",
		goose:     goose.DialectPostgres,
	}
	mysqlDialect = dialect{
		name:      "mysql",
		greatest:  "GREATEST",
		forUpdate: " FOR UPDATE",
		goose:     goose.DialectMySQL,
	}
)
