package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("CACHE_TYPE", "memory")
	t.Setenv("APP_ENV", "development")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, int64(10), cfg.Ledger.LowStockThreshold)
	assert.Equal(t, 8*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, "./data/ledger.db", cfg.Database.DSN())
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Address())
}

func TestDSN(t *testing.T) {
	pg := DatabaseConfig{Driver: "postgres", User: "u", Password: "p", Host: "db", Name: "ledger", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@db:5432/ledger?sslmode=disable", pg.DSN())

	my := DatabaseConfig{Driver: "mysql", User: "u", Password: "p", Host: "db", Port: 3307, Name: "ledger"}
	assert.Equal(t, "u:p@tcp(db:3307)/ledger?parseTime=true", my.DSN())
}

func TestValidate(t *testing.T) {
	cfg := Config{
		Database: DatabaseConfig{Driver: "oracle"},
		Cache:    CacheConfig{Type: "memory"},
	}
	assert.Error(t, cfg.Validate())

	cfg.Database.Driver = "postgres"
	assert.NoError(t, cfg.Validate())

	cfg.App.Environment = "production"
	assert.Error(t, cfg.Validate(), "production needs a signing key")

	cfg.Auth.TokenKey = "secret"
	assert.NoError(t, cfg.Validate())
}
