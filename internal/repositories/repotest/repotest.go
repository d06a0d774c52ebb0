// Package repotest opens throwaway SQLite databases for tests.
package repotest

import (
	"fmt"
	"sync/atomic"
	"testing"

	"cardpay/internal/repositories"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var seq atomic.Int64

// NewDB returns a migrated in-memory database private to the test. A
// single connection serializes access the way row locks would.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:cardpay_%d?mode=memory&cache=shared&_busy_timeout=5000", seq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), repositories.GormConfig(zerolog.Nop()))
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, repositories.Migrate(db))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// NewStore is NewDB wrapped in a repositories.Store.
func NewStore(t *testing.T) *repositories.Store {
	return repositories.NewStore(NewDB(t))
}
