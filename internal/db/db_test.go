package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_MigratesAndReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.db")
	conn, err := Open(path)
	require.NoError(t, err)

	var mode string
	require.NoError(t, conn.QueryRow(`PRAGMA journal_mode`).Scan(&mode))
	assert.Equal(t, "wal", mode)

	_, err = conn.Exec(`INSERT INTO negative_rules(list_name, keyword, match_type) VALUES('default','free','BROAD')`)
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	conn, err = Open(path)
	require.NoError(t, err)
	defer conn.Close()
	var applied int
	require.NoError(t, conn.QueryRow(`SELECT applied_count FROM negative_rules WHERE keyword='free'`).Scan(&applied))
	assert.Zero(t, applied)
}

func TestEnsureColumn_Idempotent(t *testing.T) {
	conn, err := Open(filepath.Join(t.TempDir(), "rules.db"))
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, ensureColumn(conn, "filter_runs", "note", "TEXT NOT NULL DEFAULT ''"))
	require.NoError(t, ensureColumn(conn, "filter_runs", "note", "TEXT NOT NULL DEFAULT ''"))
}
