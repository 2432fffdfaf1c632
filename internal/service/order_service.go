package service

import (
	"database/sql"
	"fmt"

	"github.com/writepro/writepro/internal/apperrors"
	"github.com/writepro/writepro/internal/lifecycle"
	"github.com/writepro/writepro/internal/models"
	"github.com/writepro/writepro/internal/repository"
	"github.com/writepro/writepro/internal/storage"
	"github.com/writepro/writepro/pkg/database"
	"go.uber.org/zap"
)

// Dispatcher hands a paid document over for asynchronous processing
type Dispatcher interface {
	Submit(documentID string) error
}

// OrderService drives the order lifecycle: creation against a document,
// mock payment backed by the credit ledger, cancellation with refund, and
// result retrieval
type OrderService struct {
	db         *database.DB
	orderRepo  *repository.OrderRepository
	docRepo    *repository.DocumentRepository
	creditRepo *repository.CreditRepository
	store      storage.ArtifactStore
	dispatcher Dispatcher
	logger     *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(
	db *database.DB,
	orderRepo *repository.OrderRepository,
	docRepo *repository.DocumentRepository,
	creditRepo *repository.CreditRepository,
	store storage.ArtifactStore,
	dispatcher Dispatcher,
	logger *zap.Logger,
) *OrderService {
	return &OrderService{
		db:         db,
		orderRepo:  orderRepo,
		docRepo:    docRepo,
		creditRepo: creditRepo,
		store:      store,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// CreateInput carries the parameters for a new order
type CreateInput struct {
	DocumentID     string
	ServiceType    string
	ReductionLevel string
	Urgency        string
	CreditsUsed    int
}

// Create prices and records a new order for a document. A document may have
// at most one order in flight; creating a second fails with a conflict.
func (s *OrderService) Create(userID string, in CreateInput) (*models.Order, error) {
	if in.CreditsUsed < 0 {
		return nil, fmt.Errorf("%w: credits_used must be non-negative", apperrors.ErrValidation)
	}

	doc, err := s.docRepo.GetByIDForUser(in.DocumentID, userID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: document %s", apperrors.ErrNotFound, in.DocumentID)
	}

	active, err := s.orderRepo.GetActiveByDocument(nil, in.DocumentID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, fmt.Errorf("%w: document already has order %s in flight",
			apperrors.ErrConflict, active.OrderNumber)
	}

	serviceType := in.ServiceType
	if serviceType == "" {
		serviceType = "standard"
	}
	urgency := in.Urgency
	if urgency == "" {
		urgency = "standard"
	}
	reductionLevel := in.ReductionLevel
	if reductionLevel == "" {
		reductionLevel = "standard"
	}

	total := CalculatePrice(doc.WordCount, serviceType, urgency)

	order := &models.Order{
		UserID:         userID,
		DocumentID:     in.DocumentID,
		Status:         models.OrderStatusPending,
		TotalAmount:    total,
		CreditsUsed:    in.CreditsUsed,
		ServiceType:    serviceType,
		ReductionLevel: reductionLevel,
		Urgency:        urgency,
	}

	err = s.db.WithTransaction(func(tx *sql.Tx) error {
		if err := s.orderRepo.Create(tx, order); err != nil {
			return err
		}
		if err := s.orderRepo.CreateItem(tx, &models.OrderItem{
			OrderID: order.ID,
			Name:    "document rewrite",
			Description: fmt.Sprintf("service_type=%s reduction_level=%s urgency=%s word_count=%d",
				serviceType, reductionLevel, urgency, doc.WordCount),
			Quantity:   1,
			UnitPrice:  total,
			TotalPrice: total,
		}); err != nil {
			return err
		}
		return s.orderRepo.AppendHistory(tx, &models.OrderStatusHistory{
			OrderID:  order.ID,
			ToStatus: models.OrderStatusPending,
			Reason:   "order created",
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Order created",
		zap.String("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.String("document_id", in.DocumentID),
		zap.String("total_amount", total.StringFixed(2)))

	return order, nil
}

// Pay settles a pending order with credits and dispatches the linked
// document for processing. The debit and both status transitions commit as
// one unit; the pipeline is only invoked after the commit, with a
// compensating refund if dispatch itself fails.
func (s *OrderService) Pay(userID, orderID string) (*models.Order, error) {
	order, err := s.getOwned(orderID, userID)
	if err != nil {
		return nil, err
	}

	machine, err := lifecycle.OrderFlow().Build(lifecycle.State(order.Status))
	if err != nil {
		return nil, err
	}
	if !machine.CanFire(lifecycle.TriggerPay) {
		return nil, fmt.Errorf("%w: cannot pay order in status %s",
			apperrors.ErrInvalidState, order.Status)
	}

	err = s.db.WithTransaction(func(tx *sql.Tx) error {
		if order.CreditsUsed > 0 {
			if err := s.creditRepo.Debit(tx, userID, order.CreditsUsed); err != nil {
				return err
			}
		}

		moved, err := s.orderRepo.TransitionStatus(tx, order.ID,
			models.OrderStatusPending, models.OrderStatusPaid)
		if err != nil {
			return err
		}
		if !moved {
			// A concurrent pay or cancel won the race
			return fmt.Errorf("%w: order is no longer pending", apperrors.ErrInvalidState)
		}
		if err := s.orderRepo.AppendHistory(tx, &models.OrderStatusHistory{
			OrderID:    order.ID,
			FromStatus: models.OrderStatusPending,
			ToStatus:   models.OrderStatusPaid,
			Reason:     "payment confirmed",
		}); err != nil {
			return err
		}

		if _, err := s.orderRepo.TransitionStatus(tx, order.ID,
			models.OrderStatusPaid, models.OrderStatusProcessing); err != nil {
			return err
		}
		return s.orderRepo.AppendHistory(tx, &models.OrderStatusHistory{
			OrderID:    order.ID,
			FromStatus: models.OrderStatusPaid,
			ToStatus:   models.OrderStatusProcessing,
			Reason:     "processing dispatched",
		})
	})
	if err != nil {
		return nil, err
	}

	if err := s.dispatcher.Submit(order.DocumentID); err != nil {
		s.logger.Error("Processing dispatch failed, compensating",
			zap.String("order_id", order.ID),
			zap.String("document_id", order.DocumentID),
			zap.Error(err))
		if compErr := s.compensateDispatchFailure(order, userID, err); compErr != nil {
			s.logger.Error("Compensation failed",
				zap.String("order_id", order.ID), zap.Error(compErr))
		}
		return nil, fmt.Errorf("failed to dispatch processing: %w", err)
	}

	s.logger.Info("Order paid",
		zap.String("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.Int("credits_used", order.CreditsUsed))

	return s.orderRepo.GetByID(order.ID)
}

// compensateDispatchFailure returns the debited credits and cancels the
// order after the pipeline refused the document
func (s *OrderService) compensateDispatchFailure(order *models.Order, userID string, cause error) error {
	return s.db.WithTransaction(func(tx *sql.Tx) error {
		moved, err := s.orderRepo.TransitionStatus(tx, order.ID,
			models.OrderStatusProcessing, models.OrderStatusCancelled)
		if err != nil {
			return err
		}
		if !moved {
			return nil
		}
		if order.CreditsUsed > 0 {
			if err := s.creditRepo.Credit(tx, userID, order.CreditsUsed); err != nil {
				return err
			}
		}
		return s.orderRepo.AppendHistory(tx, &models.OrderStatusHistory{
			OrderID:    order.ID,
			FromStatus: models.OrderStatusProcessing,
			ToStatus:   models.OrderStatusCancelled,
			Reason:     fmt.Sprintf("processing dispatch failed: %v", cause),
			Operator:   "system",
		})
	})
}

// Cancel cancels an order from pending or paid. Credits already spent on a
// paid order are refunded in the same transaction.
func (s *OrderService) Cancel(userID, orderID string) (*models.Order, error) {
	order, err := s.getOwned(orderID, userID)
	if err != nil {
		return nil, err
	}

	machine, err := lifecycle.OrderFlow().Build(lifecycle.State(order.Status))
	if err != nil {
		return nil, err
	}
	if !machine.CanFire(lifecycle.TriggerCancel) {
		return nil, fmt.Errorf("%w: cannot cancel order in status %s",
			apperrors.ErrInvalidState, order.Status)
	}

	err = s.db.WithTransaction(func(tx *sql.Tx) error {
		moved, err := s.orderRepo.TransitionStatus(tx, order.ID,
			order.Status, models.OrderStatusCancelled)
		if err != nil {
			return err
		}
		if !moved {
			return fmt.Errorf("%w: order is no longer %s", apperrors.ErrInvalidState, order.Status)
		}

		if order.Status == models.OrderStatusPaid && order.CreditsUsed > 0 {
			if err := s.creditRepo.Credit(tx, userID, order.CreditsUsed); err != nil {
				return err
			}
		}

		return s.orderRepo.AppendHistory(tx, &models.OrderStatusHistory{
			OrderID:    order.ID,
			FromStatus: order.Status,
			ToStatus:   models.OrderStatusCancelled,
			Reason:     "order cancelled by user",
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Order cancelled",
		zap.String("order_id", order.ID),
		zap.String("from_status", order.Status))

	return s.orderRepo.GetByID(order.ID)
}

// DownloadResult returns the processed artifact of a completed order
func (s *OrderService) DownloadResult(userID, orderID string) ([]byte, string, error) {
	order, err := s.getOwned(orderID, userID)
	if err != nil {
		return nil, "", err
	}
	if order.Status != models.OrderStatusCompleted {
		return nil, "", fmt.Errorf("%w: order is not completed", apperrors.ErrInvalidState)
	}

	doc, err := s.docRepo.GetByID(order.DocumentID)
	if err != nil {
		return nil, "", err
	}
	if doc == nil || doc.ProcessedFile == "" {
		return nil, "", fmt.Errorf("%w: processed artifact missing", apperrors.ErrNotFound)
	}

	content, err := s.store.Read(doc.ProcessedFile)
	if err != nil {
		return nil, "", err
	}
	return content, doc.Title + "_processed.txt", nil
}

// Get retrieves one order with its line items and status history
func (s *OrderService) Get(userID, orderID string) (*models.Order, []*models.OrderItem, []*models.OrderStatusHistory, error) {
	order, err := s.getOwned(orderID, userID)
	if err != nil {
		return nil, nil, nil, err
	}

	items, err := s.orderRepo.ListItems(order.ID)
	if err != nil {
		return nil, nil, nil, err
	}
	history, err := s.orderRepo.ListHistory(order.ID)
	if err != nil {
		return nil, nil, nil, err
	}
	return order, items, history, nil
}

// List retrieves all orders of a user, newest first
func (s *OrderService) List(userID string) ([]*models.Order, error) {
	return s.orderRepo.ListByUser(userID)
}

// getOwned resolves an order by id or by its human-readable order number,
// scoped to the requesting user
func (s *OrderService) getOwned(orderRef, userID string) (*models.Order, error) {
	order, err := s.orderRepo.GetByID(orderRef)
	if err != nil {
		return nil, err
	}
	if order == nil {
		order, err = s.orderRepo.GetByOrderNumber(orderRef, userID)
		if err != nil {
			return nil, err
		}
	}
	if order == nil || order.UserID != userID {
		return nil, fmt.Errorf("%w: order %s", apperrors.ErrNotFound, orderRef)
	}
	return order, nil
}
