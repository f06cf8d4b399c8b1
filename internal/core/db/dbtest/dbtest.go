// Package dbtest provides a migrated sqlite database for package tests.
package dbtest

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/careloop/surveyengine/internal/core/db"
)

// New opens a fresh sqlite database in a temp directory, runs all
// migrations, and returns loaded queries. The connection is closed and the
// file removed when the test finishes.
func New(t *testing.T) *db.Queries {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	conn, err := db.Open("sqlite://" + path + "?_busy_timeout=5000")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, db.MigrateUp(conn))

	q, err := db.LoadQueries(conn)
	require.NoError(t, err)
	return q
}
