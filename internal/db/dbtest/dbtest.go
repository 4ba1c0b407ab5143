// Package dbtest opens a migrated in-memory SQLite database for tests.
package dbtest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Skotchmaster/authsvc/internal/db"
	"github.com/Skotchmaster/authsvc/internal/migrations"
)

func New(t *testing.T) *gorm.DB {
	t.Helper()

	ctx := context.Background()
	gdb, err := db.Open(ctx, "sqlite", ":memory:")
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	require.NoError(t, migrations.Up(ctx, sqlDB, "sqlite"))

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return gdb
}
