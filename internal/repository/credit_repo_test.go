package repository

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/writepro/writepro/internal/apperrors"
	"github.com/writepro/writepro/internal/models"
	"github.com/writepro/writepro/pkg/database"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()

	logger := zap.NewNop()
	db, err := database.New(database.Config{
		Path:            filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Minute,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	migrator := database.NewMigrator(db, logger)
	require.NoError(t, migrator.RunMigrations("../../migrations"))

	return db
}

func TestCreditLedger(t *testing.T) {
	db := newTestDB(t)
	repo := NewCreditRepository(db.DB, zap.NewNop())

	require.NoError(t, repo.CreateUser(nil, &models.User{
		ID: "alice", Email: "alice@example.com", Name: "alice", Credits: 100,
	}))

	balance, err := repo.Balance("alice")
	require.NoError(t, err)
	assert.Equal(t, 100, balance)

	// Debit beyond the balance is rejected and changes nothing
	err = repo.Debit(nil, "alice", 150)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientCredits)

	balance, err = repo.Balance("alice")
	require.NoError(t, err)
	assert.Equal(t, 100, balance)

	require.NoError(t, repo.Debit(nil, "alice", 60))
	require.NoError(t, repo.Credit(nil, "alice", 10))

	balance, err = repo.Balance("alice")
	require.NoError(t, err)
	assert.Equal(t, 50, balance)

	// Draining to exactly zero is allowed
	require.NoError(t, repo.Debit(nil, "alice", 50))
	balance, err = repo.Balance("alice")
	require.NoError(t, err)
	assert.Equal(t, 0, balance)
}

func TestCreditLedger_MissingUser(t *testing.T) {
	db := newTestDB(t)
	repo := NewCreditRepository(db.DB, zap.NewNop())

	_, err := repo.Balance("nobody")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	assert.ErrorIs(t, repo.Debit(nil, "nobody", 10), apperrors.ErrNotFound)
	assert.ErrorIs(t, repo.Credit(nil, "nobody", 10), apperrors.ErrNotFound)
}

func TestCreditLedger_NegativeAmountsRejected(t *testing.T) {
	db := newTestDB(t)
	repo := NewCreditRepository(db.DB, zap.NewNop())

	require.NoError(t, repo.CreateUser(nil, &models.User{
		ID: "alice", Email: "alice@example.com", Name: "alice", Credits: 100,
	}))

	assert.ErrorIs(t, repo.Debit(nil, "alice", -1), apperrors.ErrValidation)
	assert.ErrorIs(t, repo.Credit(nil, "alice", -1), apperrors.ErrValidation)
}

func TestCreditLedger_RollbackWithTransaction(t *testing.T) {
	db := newTestDB(t)
	repo := NewCreditRepository(db.DB, zap.NewNop())

	require.NoError(t, repo.CreateUser(nil, &models.User{
		ID: "alice", Email: "alice@example.com", Name: "alice", Credits: 100,
	}))

	// A debit inside a failing transaction must not stick
	err := db.WithTransaction(func(tx *sql.Tx) error {
		if err := repo.Debit(tx, "alice", 40); err != nil {
			return err
		}
		return assert.AnError
	})
	require.Error(t, err)

	balance, err := repo.Balance("alice")
	require.NoError(t, err)
	assert.Equal(t, 100, balance)
}
