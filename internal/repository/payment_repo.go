package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/writepro/writepro/internal/models"
	"go.uber.org/zap"
)

// PaymentRepository handles recharge packages, payments, payment logs and
// recharge records
type PaymentRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPaymentRepository creates a new payment repository
func NewPaymentRepository(db *sql.DB, logger *zap.Logger) *PaymentRepository {
	return &PaymentRepository{
		db:     db,
		logger: logger,
	}
}

// GetActivePackage retrieves an active recharge package; returns nil when
// the package is missing or inactive
func (r *PaymentRepository) GetActivePackage(id int64) (*models.RechargePackage, error) {
	query := `
		SELECT id, name, amount, credits, bonus_credits, is_popular, sort_order, is_active, created_at
		FROM recharge_packages WHERE id = ? AND is_active = 1
	`

	pkg, err := r.scanPackage(r.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return pkg, err
}

// ListActivePackages retrieves all active packages ordered by sort order then price
func (r *PaymentRepository) ListActivePackages() ([]*models.RechargePackage, error) {
	query := `
		SELECT id, name, amount, credits, bonus_credits, is_popular, sort_order, is_active, created_at
		FROM recharge_packages WHERE is_active = 1
		ORDER BY sort_order, amount
	`

	rows, err := r.db.Query(query)
	if err != nil {
		r.logger.Error("Failed to list recharge packages", zap.Error(err))
		return nil, fmt.Errorf("failed to list recharge packages: %w", err)
	}
	defer rows.Close()

	var packages []*models.RechargePackage
	for rows.Next() {
		pkg, err := r.scanPackage(rows)
		if err != nil {
			return nil, err
		}
		packages = append(packages, pkg)
	}
	return packages, rows.Err()
}

const paymentColumns = `
	id, user_id, package_id, payment_method, amount, status, transaction_id,
	external_transaction_id, credits_earned, bonus_credits_earned,
	created_at, updated_at, paid_at
`

// CreatePayment inserts a new payment record
func (r *PaymentRepository) CreatePayment(tx *sql.Tx, payment *models.Payment) error {
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	if payment.TransactionID == "" {
		payment.TransactionID = models.GenerateTransactionID()
	}
	now := time.Now().UTC()
	payment.CreatedAt = now
	payment.UpdatedAt = now
	if payment.Status == "" {
		payment.Status = models.PaymentStatusPending
	}

	query := `
		INSERT INTO payments (
			id, user_id, package_id, payment_method, amount, status, transaction_id,
			external_transaction_id, credits_earned, bonus_credits_earned, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var externalID any
	if payment.ExternalTransactionID != "" {
		externalID = payment.ExternalTransactionID
	}

	_, err := pick(r.db, tx).Exec(query,
		payment.ID,
		payment.UserID,
		payment.PackageID,
		payment.PaymentMethod,
		payment.Amount.StringFixed(2),
		payment.Status,
		payment.TransactionID,
		externalID,
		payment.CreditsEarned,
		payment.BonusCreditsEarned,
		payment.CreatedAt,
		payment.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create payment", zap.Error(err))
		return fmt.Errorf("failed to create payment: %w", err)
	}

	return nil
}

// GetPayment retrieves a payment owned by the given user; returns nil when not found
func (r *PaymentRepository) GetPayment(id, userID string) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = ? AND user_id = ?`
	return r.scanPaymentOne(r.db.QueryRow(query, id, userID))
}

// TransitionPaymentStatus performs a compare-and-swap status update. The
// paid_at timestamp is stamped when moving into completed. The guarded
// update is what makes mock settlement idempotent: a second confirm sees
// zero affected rows.
func (r *PaymentRepository) TransitionPaymentStatus(tx *sql.Tx, id, fromStatus, toStatus string) (bool, error) {
	now := time.Now().UTC()

	var (
		result sql.Result
		err    error
	)
	if toStatus == models.PaymentStatusCompleted {
		result, err = pick(r.db, tx).Exec(
			`UPDATE payments SET status = ?, paid_at = ?, updated_at = ? WHERE id = ? AND status = ?`,
			toStatus, now, now, id, fromStatus)
	} else {
		result, err = pick(r.db, tx).Exec(
			`UPDATE payments SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
			toStatus, now, id, fromStatus)
	}
	if err != nil {
		r.logger.Error("Failed to transition payment status",
			zap.String("payment_id", id),
			zap.String("from", fromStatus),
			zap.String("to", toStatus),
			zap.Error(err))
		return false, fmt.Errorf("failed to transition payment status: %w", err)
	}

	affected, err := result.RowsAffected()
	return affected == 1, err
}

// AppendLog writes an append-only payment log entry
func (r *PaymentRepository) AppendLog(tx *sql.Tx, entry *models.PaymentLog) error {
	query := `
		INSERT INTO payment_logs (payment_id, action, status, message, details)
		VALUES (?, ?, ?, ?, ?)
	`

	var details any
	if entry.Details != "" {
		details = entry.Details
	}

	result, err := pick(r.db, tx).Exec(query,
		entry.PaymentID,
		entry.Action,
		entry.Status,
		entry.Message,
		details,
	)
	if err != nil {
		r.logger.Error("Failed to append payment log", zap.String("payment_id", entry.PaymentID), zap.Error(err))
		return fmt.Errorf("failed to append payment log: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	entry.ID = id
	return nil
}

// ListLogs retrieves the logs for a payment, newest first
func (r *PaymentRepository) ListLogs(paymentID string) ([]*models.PaymentLog, error) {
	query := `
		SELECT id, payment_id, action, status, message, details, created_at
		FROM payment_logs WHERE payment_id = ?
		ORDER BY created_at DESC, id DESC
	`

	rows, err := r.db.Query(query, paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.PaymentLog
	for rows.Next() {
		var entry models.PaymentLog
		var details sql.NullString
		if err := rows.Scan(&entry.ID, &entry.PaymentID, &entry.Action, &entry.Status,
			&entry.Message, &details, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment log: %w", err)
		}
		entry.Details = details.String
		logs = append(logs, &entry)
	}
	return logs, rows.Err()
}

// CreateRechargeRecord inserts the one-and-only receipt for a settled payment.
// The unique constraint on payment_id backs the one-to-one invariant.
func (r *PaymentRepository) CreateRechargeRecord(tx *sql.Tx, record *models.RechargeRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	record.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO recharge_records (id, user_id, payment_id, amount, credits_received, bonus_credits, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := pick(r.db, tx).Exec(query,
		record.ID,
		record.UserID,
		record.PaymentID,
		record.Amount.StringFixed(2),
		record.CreditsReceived,
		record.BonusCredits,
		record.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create recharge record", zap.String("payment_id", record.PaymentID), zap.Error(err))
		return fmt.Errorf("failed to create recharge record: %w", err)
	}

	return nil
}

// ListRechargeRecords retrieves recharge receipts for a user, newest first
func (r *PaymentRepository) ListRechargeRecords(userID string, limit int) ([]*models.RechargeRecord, error) {
	query := `
		SELECT id, user_id, payment_id, amount, credits_received, bonus_credits, created_at
		FROM recharge_records WHERE user_id = ?
		ORDER BY created_at DESC LIMIT ?
	`

	rows, err := r.db.Query(query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recharge records: %w", err)
	}
	defer rows.Close()

	var records []*models.RechargeRecord
	for rows.Next() {
		var record models.RechargeRecord
		var amount string
		if err := rows.Scan(&record.ID, &record.UserID, &record.PaymentID,
			&amount, &record.CreditsReceived, &record.BonusCredits, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan recharge record: %w", err)
		}
		if record.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("invalid recharge amount %q: %w", amount, err)
		}
		records = append(records, &record)
	}
	return records, rows.Err()
}

func (r *PaymentRepository) scanPackage(s rowScanner) (*models.RechargePackage, error) {
	var pkg models.RechargePackage
	var amount string

	err := s.Scan(&pkg.ID, &pkg.Name, &amount, &pkg.Credits, &pkg.BonusCredits,
		&pkg.IsPopular, &pkg.SortOrder, &pkg.IsActive, &pkg.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		r.logger.Error("Failed to scan recharge package", zap.Error(err))
		return nil, fmt.Errorf("failed to scan recharge package: %w", err)
	}

	if pkg.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("invalid package amount %q: %w", amount, err)
	}
	return &pkg, nil
}

func (r *PaymentRepository) scanPaymentOne(row *sql.Row) (*models.Payment, error) {
	payment, err := r.scanPayment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return payment, err
}

func (r *PaymentRepository) scanPayment(s rowScanner) (*models.Payment, error) {
	var payment models.Payment
	var amount string
	var externalID sql.NullString
	var paidAt sql.NullTime

	err := s.Scan(
		&payment.ID,
		&payment.UserID,
		&payment.PackageID,
		&payment.PaymentMethod,
		&amount,
		&payment.Status,
		&payment.TransactionID,
		&externalID,
		&payment.CreditsEarned,
		&payment.BonusCreditsEarned,
		&payment.CreatedAt,
		&payment.UpdatedAt,
		&paidAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		r.logger.Error("Failed to scan payment", zap.Error(err))
		return nil, fmt.Errorf("failed to scan payment: %w", err)
	}

	if payment.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("invalid payment amount %q: %w", amount, err)
	}
	payment.ExternalTransactionID = externalID.String
	if paidAt.Valid {
		payment.PaidAt = &paidAt.Time
	}

	return &payment, nil
}
