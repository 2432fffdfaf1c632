package service

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/writepro/writepro/internal/apperrors"
	"github.com/writepro/writepro/internal/lifecycle"
	"github.com/writepro/writepro/internal/models"
	"github.com/writepro/writepro/internal/repository"
	"github.com/writepro/writepro/pkg/database"
	"go.uber.org/zap"
)

// PaymentService handles credit top-ups: recharge order creation, mock
// settlement and cancellation, all against the shared credit ledger
type PaymentService struct {
	db         *database.DB
	payRepo    *repository.PaymentRepository
	creditRepo *repository.CreditRepository
	logger     *zap.Logger
}

// NewPaymentService creates a new payment service
func NewPaymentService(
	db *database.DB,
	payRepo *repository.PaymentRepository,
	creditRepo *repository.CreditRepository,
	logger *zap.Logger,
) *PaymentService {
	return &PaymentService{
		db:         db,
		payRepo:    payRepo,
		creditRepo: creditRepo,
		logger:     logger,
	}
}

// ListPackages retrieves the active recharge catalog
func (s *PaymentService) ListPackages() ([]*models.RechargePackage, error) {
	return s.payRepo.ListActivePackages()
}

// CreateRechargeOrder opens a pending payment against a recharge package.
// Credit amounts are snapshotted so later catalog edits leave in-flight
// payments untouched.
func (s *PaymentService) CreateRechargeOrder(userID string, packageID int64, method string) (*models.Payment, error) {
	user, err := s.creditRepo.GetUser(userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("%w: user %s", apperrors.ErrNotFound, userID)
	}

	pkg, err := s.payRepo.GetActivePackage(packageID)
	if err != nil {
		return nil, err
	}
	if pkg == nil {
		return nil, fmt.Errorf("%w: recharge package %d", apperrors.ErrNotFound, packageID)
	}

	if method == "" {
		method = models.PaymentMethodMock
	}

	payment := &models.Payment{
		UserID:             userID,
		PackageID:          pkg.ID,
		PaymentMethod:      method,
		Amount:             pkg.Amount,
		Status:             models.PaymentStatusPending,
		CreditsEarned:      pkg.Credits,
		BonusCreditsEarned: pkg.BonusCredits,
	}

	err = s.db.WithTransaction(func(tx *sql.Tx) error {
		if err := s.payRepo.CreatePayment(tx, payment); err != nil {
			return err
		}
		return s.payRepo.AppendLog(tx, &models.PaymentLog{
			PaymentID: payment.ID,
			Action:    models.PaymentActionCreateOrder,
			Status:    models.PaymentStatusPending,
			Message: fmt.Sprintf("recharge order created for package %q, %d credits on settlement",
				pkg.Name, pkg.TotalCredits()),
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Recharge order created",
		zap.String("payment_id", payment.ID),
		zap.String("transaction_id", payment.TransactionID),
		zap.Int64("package_id", pkg.ID),
		zap.String("amount", pkg.Amount.StringFixed(2)))

	return payment, nil
}

// ConfirmSuccess settles a pending payment: credits the ledger with the
// snapshotted amounts and writes the one-and-only recharge receipt, all in
// one transaction. A second confirm fails on the status guard without
// crediting again.
func (s *PaymentService) ConfirmSuccess(userID, paymentID string) (*models.Payment, error) {
	payment, err := s.getOwned(paymentID, userID)
	if err != nil {
		return nil, err
	}

	totalCredits := payment.CreditsEarned + payment.BonusCreditsEarned

	err = s.db.WithTransaction(func(tx *sql.Tx) error {
		moved, err := s.payRepo.TransitionPaymentStatus(tx, payment.ID,
			models.PaymentStatusPending, models.PaymentStatusCompleted)
		if err != nil {
			return err
		}
		if !moved {
			return fmt.Errorf("%w: payment is not pending", apperrors.ErrInvalidState)
		}

		if err := s.creditRepo.Credit(tx, userID, totalCredits); err != nil {
			return err
		}

		if err := s.payRepo.CreateRechargeRecord(tx, &models.RechargeRecord{
			UserID:          userID,
			PaymentID:       payment.ID,
			Amount:          payment.Amount,
			CreditsReceived: payment.CreditsEarned,
			BonusCredits:    payment.BonusCreditsEarned,
		}); err != nil {
			return err
		}

		details, err := json.Marshal(map[string]any{
			"credits_earned":       payment.CreditsEarned,
			"bonus_credits_earned": payment.BonusCreditsEarned,
			"total_credits":        totalCredits,
			"amount":               payment.Amount.StringFixed(2),
		})
		if err != nil {
			return fmt.Errorf("failed to encode payment details: %w", err)
		}

		return s.payRepo.AppendLog(tx, &models.PaymentLog{
			PaymentID: payment.ID,
			Action:    models.PaymentActionSuccess,
			Status:    models.PaymentStatusCompleted,
			Message:   fmt.Sprintf("payment settled, %d credits granted", totalCredits),
			Details:   string(details),
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Payment settled",
		zap.String("payment_id", payment.ID),
		zap.String("user_id", userID),
		zap.Int("credits_granted", totalCredits))

	return s.payRepo.GetPayment(payment.ID, userID)
}

// Cancel cancels a payment from pending or processing
func (s *PaymentService) Cancel(userID, paymentID string) (*models.Payment, error) {
	payment, err := s.getOwned(paymentID, userID)
	if err != nil {
		return nil, err
	}

	machine, err := lifecycle.PaymentFlow().Build(lifecycle.State(payment.Status))
	if err != nil {
		return nil, err
	}
	if !machine.CanFire(lifecycle.TriggerCancel) {
		return nil, fmt.Errorf("%w: cannot cancel payment in status %s",
			apperrors.ErrInvalidState, payment.Status)
	}

	err = s.db.WithTransaction(func(tx *sql.Tx) error {
		moved, err := s.payRepo.TransitionPaymentStatus(tx, payment.ID,
			payment.Status, models.PaymentStatusCancelled)
		if err != nil {
			return err
		}
		if !moved {
			return fmt.Errorf("%w: payment is no longer %s", apperrors.ErrInvalidState, payment.Status)
		}

		return s.payRepo.AppendLog(tx, &models.PaymentLog{
			PaymentID: payment.ID,
			Action:    models.PaymentActionCancel,
			Status:    models.PaymentStatusCancelled,
			Message:   "payment cancelled by user",
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Payment cancelled", zap.String("payment_id", payment.ID))

	return s.payRepo.GetPayment(payment.ID, userID)
}

// RechargeHistory retrieves a user's recharge receipts, newest first
func (s *PaymentService) RechargeHistory(userID string, limit int) ([]*models.RechargeRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.payRepo.ListRechargeRecords(userID, limit)
}

// Credits returns the user's current credit balance
func (s *PaymentService) Credits(userID string) (int, error) {
	return s.creditRepo.Balance(userID)
}

func (s *PaymentService) getOwned(paymentID, userID string) (*models.Payment, error) {
	payment, err := s.payRepo.GetPayment(paymentID, userID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, fmt.Errorf("%w: payment %s", apperrors.ErrNotFound, paymentID)
	}
	return payment, nil
}
