package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/writepro/writepro/internal/apperrors"
	"github.com/writepro/writepro/internal/models"
	"go.uber.org/zap"
)

// CreditRepository is the per-user credit ledger. Mutations are plain
// conditional UPDATEs so that, inside a transaction, the balance change and
// the triggering order/payment transition commit or roll back together.
type CreditRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewCreditRepository creates a new credit repository
func NewCreditRepository(db *sql.DB, logger *zap.Logger) *CreditRepository {
	return &CreditRepository{
		db:     db,
		logger: logger,
	}
}

// Balance returns the current credit balance of a user
func (r *CreditRepository) Balance(userID string) (int, error) {
	var credits int
	err := r.db.QueryRow(`SELECT credits FROM users WHERE id = ?`, userID).Scan(&credits)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("%w: user %s", apperrors.ErrNotFound, userID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read credit balance: %w", err)
	}
	return credits, nil
}

// Credit adds credits to a user's balance
func (r *CreditRepository) Credit(tx *sql.Tx, userID string, amount int) error {
	if amount < 0 {
		return fmt.Errorf("%w: credit amount must be non-negative", apperrors.ErrValidation)
	}

	result, err := pick(r.db, tx).Exec(
		`UPDATE users SET credits = credits + ?, updated_at = ? WHERE id = ?`,
		amount, time.Now().UTC(), userID)
	if err != nil {
		r.logger.Error("Failed to credit user", zap.String("user_id", userID), zap.Error(err))
		return fmt.Errorf("failed to credit user: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: user %s", apperrors.ErrNotFound, userID)
	}
	return nil
}

// Debit removes credits from a user's balance. The WHERE guard rejects any
// debit that would drive the balance negative, without a read-then-write race.
func (r *CreditRepository) Debit(tx *sql.Tx, userID string, amount int) error {
	if amount < 0 {
		return fmt.Errorf("%w: debit amount must be non-negative", apperrors.ErrValidation)
	}

	result, err := pick(r.db, tx).Exec(
		`UPDATE users SET credits = credits - ?, updated_at = ? WHERE id = ? AND credits >= ?`,
		amount, time.Now().UTC(), userID, amount)
	if err != nil {
		r.logger.Error("Failed to debit user", zap.String("user_id", userID), zap.Error(err))
		return fmt.Errorf("failed to debit user: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		// Either the user is missing or the balance is too low; disambiguate
		var exists int
		if scanErr := r.db.QueryRow(`SELECT 1 FROM users WHERE id = ?`, userID).Scan(&exists); scanErr == sql.ErrNoRows {
			return fmt.Errorf("%w: user %s", apperrors.ErrNotFound, userID)
		}
		return fmt.Errorf("%w: need %d credits", apperrors.ErrInsufficientCredits, amount)
	}
	return nil
}

// GetUser retrieves a user record; returns nil when not found
func (r *CreditRepository) GetUser(userID string) (*models.User, error) {
	var user models.User
	err := r.db.QueryRow(
		`SELECT id, email, name, credits, created_at, updated_at FROM users WHERE id = ?`,
		userID,
	).Scan(&user.ID, &user.Email, &user.Name, &user.Credits, &user.CreatedAt, &user.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// CreateUser inserts a user row; used by tests and bootstrap tooling
func (r *CreditRepository) CreateUser(tx *sql.Tx, user *models.User) error {
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := pick(r.db, tx).Exec(
		`INSERT INTO users (id, email, name, credits, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.Name, user.Credits, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}
