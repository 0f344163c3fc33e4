package repository

import (
	"path/filepath"
	"testing"

	"sigecof/internal/crypto"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newSQLiteTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := NewSQLiteDB(filepath.Join(t.TempDir(), "test.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, MigrateDB(db, zap.NewNop()))
	return db
}

func fastHasher() crypto.Hasher {
	return crypto.NewPasswordHasher(crypto.Argon2Params{Time: 1, MemoryKiB: 8 * 1024, Parallelism: 1, SaltLen: 16, KeyLen: 32})
}
