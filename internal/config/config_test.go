package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  host: 0.0.0.0
  port: 8080
database:
  host: localhost
  port: 5432
  dbname: ledger
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "3.00", cfg.Ledger.BreakevenThreshold)
	assert.Equal(t, 5000, cfg.Ledger.MaxImportRows)
	assert.Equal(t, 24*time.Hour, cfg.Ledger.ImportResultTTL)
	assert.Equal(t, "info", cfg.Log.Level)

	th, err := cfg.Ledger.Threshold()
	require.NoError(t, err)
	assert.True(t, th.Equal(decimal.RequireFromString("3")))
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
ledger:
  breakeven_threshold: "5.00"
  max_import_rows: 100
  import_result_ttl: 2h
`)
	t.Setenv("LEDGER_BREAKEVEN_THRESHOLD", "1.25")
	t.Setenv("DB_HOST", "db.internal")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "1.25", cfg.Ledger.BreakevenThreshold)
	assert.Equal(t, 100, cfg.Ledger.MaxImportRows)
	assert.Equal(t, 2*time.Hour, cfg.Ledger.ImportResultTTL)
	assert.Equal(t, "db.internal", cfg.Database.Host)
}

func TestLoad_RejectsInvalidThreshold(t *testing.T) {
	path := writeConfig(t, `
ledger:
  breakeven_threshold: "-1"
`)

	_, err := Load(path)
	assert.Error(t, err)

	path = writeConfig(t, `
ledger:
  breakeven_threshold: "abc"
`)
	_, err = Load(path)
	assert.Error(t, err)
}

func TestValidate_ArchiveNeedsBucket(t *testing.T) {
	cfg := Default()
	cfg.Archive.Enabled = true
	assert.Error(t, cfg.Validate())

	cfg.Archive.Bucket = "ledger-imports"
	assert.NoError(t, cfg.Validate())
}

func TestDSN(t *testing.T) {
	db := DatabaseConfig{Host: "h", Port: 5432, User: "u", Password: "p", DBName: "d", SSLMode: "disable"}
	assert.Equal(t, "host=h port=5432 user=u password=p dbname=d sslmode=disable", db.DSN())
}
