package repository

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/writepro/writepro/internal/models"
	"go.uber.org/zap"
)

// OrderRepository handles order, order-item and status-history database operations
type OrderRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewOrderRepository creates a new order repository
func NewOrderRepository(db *sql.DB, logger *zap.Logger) *OrderRepository {
	return &OrderRepository{
		db:     db,
		logger: logger,
	}
}

const orderColumns = `
	id, order_number, user_id, document_id, status, total_amount, credits_used,
	service_type, reduction_level, urgency, created_at, updated_at, paid_at, completed_at
`

// Create inserts a new order record
func (r *OrderRepository) Create(tx *sql.Tx, order *models.Order) error {
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if order.OrderNumber == "" {
		order.OrderNumber = models.GenerateOrderNumber()
	}
	now := time.Now().UTC()
	order.CreatedAt = now
	order.UpdatedAt = now
	if order.Status == "" {
		order.Status = models.OrderStatusPending
	}

	query := `
		INSERT INTO orders (
			id, order_number, user_id, document_id, status, total_amount,
			credits_used, service_type, reduction_level, urgency, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := pick(r.db, tx).Exec(query,
		order.ID,
		order.OrderNumber,
		order.UserID,
		order.DocumentID,
		order.Status,
		order.TotalAmount.StringFixed(2),
		order.CreditsUsed,
		order.ServiceType,
		order.ReductionLevel,
		order.Urgency,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create order", zap.Error(err))
		return fmt.Errorf("failed to create order: %w", err)
	}

	return nil
}

// GetByID retrieves an order by id; returns nil when not found
func (r *OrderRepository) GetByID(id string) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = ?`
	return r.scanOne(r.db.QueryRow(query, id))
}

// GetByOrderNumber retrieves an order by its order number for one user
func (r *OrderRepository) GetByOrderNumber(orderNumber, userID string) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE order_number = ? AND user_id = ?`
	return r.scanOne(r.db.QueryRow(query, orderNumber, userID))
}

// GetActiveByDocument retrieves the in-flight order for a document, if any.
// An order is in flight while it holds one of ActiveOrderStatuses.
func (r *OrderRepository) GetActiveByDocument(tx *sql.Tx, documentID string) (*models.Order, error) {
	placeholders := strings.TrimPrefix(strings.Repeat(", ?", len(models.ActiveOrderStatuses)), ", ")
	query := `SELECT ` + orderColumns + ` FROM orders
		WHERE document_id = ? AND status IN (` + placeholders + `)`

	args := make([]any, 0, len(models.ActiveOrderStatuses)+1)
	args = append(args, documentID)
	for _, status := range models.ActiveOrderStatuses {
		args = append(args, status)
	}
	return r.scanOne(pick(r.db, tx).QueryRow(query, args...))
}

// ListByUser retrieves all orders for a user, newest first
func (r *OrderRepository) ListByUser(userID string) ([]*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = ? ORDER BY created_at DESC`

	rows, err := r.db.Query(query, userID)
	if err != nil {
		r.logger.Error("Failed to list orders", zap.String("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

// TransitionStatus performs a compare-and-swap status update and reports
// whether the row moved
func (r *OrderRepository) TransitionStatus(tx *sql.Tx, id, fromStatus, toStatus string) (bool, error) {
	now := time.Now().UTC()

	var query string
	switch toStatus {
	case models.OrderStatusPaid:
		query = `UPDATE orders SET status = ?, paid_at = ?, updated_at = ? WHERE id = ? AND status = ?`
	case models.OrderStatusCompleted:
		query = `UPDATE orders SET status = ?, completed_at = ?, updated_at = ? WHERE id = ? AND status = ?`
	default:
		result, err := pick(r.db, tx).Exec(
			`UPDATE orders SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
			toStatus, now, id, fromStatus)
		if err != nil {
			return false, fmt.Errorf("failed to transition order status: %w", err)
		}
		affected, err := result.RowsAffected()
		return affected == 1, err
	}

	result, err := pick(r.db, tx).Exec(query, toStatus, now, now, id, fromStatus)
	if err != nil {
		r.logger.Error("Failed to transition order status",
			zap.String("order_id", id),
			zap.String("from", fromStatus),
			zap.String("to", toStatus),
			zap.Error(err))
		return false, fmt.Errorf("failed to transition order status: %w", err)
	}

	affected, err := result.RowsAffected()
	return affected == 1, err
}

// AppendHistory writes an append-only status history entry
func (r *OrderRepository) AppendHistory(tx *sql.Tx, entry *models.OrderStatusHistory) error {
	query := `
		INSERT INTO order_status_history (order_id, from_status, to_status, reason, operator)
		VALUES (?, ?, ?, ?, ?)
	`

	result, err := pick(r.db, tx).Exec(query,
		entry.OrderID,
		entry.FromStatus,
		entry.ToStatus,
		entry.Reason,
		entry.Operator,
	)
	if err != nil {
		r.logger.Error("Failed to append order history", zap.String("order_id", entry.OrderID), zap.Error(err))
		return fmt.Errorf("failed to append order history: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	entry.ID = id
	return nil
}

// ListHistory retrieves the status history of an order, oldest first
func (r *OrderRepository) ListHistory(orderID string) ([]*models.OrderStatusHistory, error) {
	query := `
		SELECT id, order_id, from_status, to_status, reason, operator, created_at
		FROM order_status_history
		WHERE order_id = ?
		ORDER BY created_at, id
	`

	rows, err := r.db.Query(query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list order history: %w", err)
	}
	defer rows.Close()

	var entries []*models.OrderStatusHistory
	for rows.Next() {
		var entry models.OrderStatusHistory
		var reason, operator sql.NullString
		if err := rows.Scan(&entry.ID, &entry.OrderID, &entry.FromStatus, &entry.ToStatus,
			&reason, &operator, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan order history: %w", err)
		}
		entry.Reason = reason.String
		entry.Operator = operator.String
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

// CreateItem inserts a price-breakdown line entry
func (r *OrderRepository) CreateItem(tx *sql.Tx, item *models.OrderItem) error {
	query := `
		INSERT INTO order_items (order_id, name, description, quantity, unit_price, total_price)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := pick(r.db, tx).Exec(query,
		item.OrderID,
		item.Name,
		item.Description,
		item.Quantity,
		item.UnitPrice.StringFixed(2),
		item.TotalPrice.StringFixed(2),
	)
	if err != nil {
		r.logger.Error("Failed to create order item", zap.String("order_id", item.OrderID), zap.Error(err))
		return fmt.Errorf("failed to create order item: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	item.ID = id
	return nil
}

// ListItems retrieves the line entries of an order
func (r *OrderRepository) ListItems(orderID string) ([]*models.OrderItem, error) {
	query := `
		SELECT id, order_id, name, description, quantity, unit_price, total_price
		FROM order_items WHERE order_id = ? ORDER BY id
	`

	rows, err := r.db.Query(query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list order items: %w", err)
	}
	defer rows.Close()

	var items []*models.OrderItem
	for rows.Next() {
		var item models.OrderItem
		var description sql.NullString
		var unitPrice, totalPrice string
		if err := rows.Scan(&item.ID, &item.OrderID, &item.Name, &description,
			&item.Quantity, &unitPrice, &totalPrice); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		item.Description = description.String
		if item.UnitPrice, err = decimal.NewFromString(unitPrice); err != nil {
			return nil, fmt.Errorf("invalid unit price %q: %w", unitPrice, err)
		}
		if item.TotalPrice, err = decimal.NewFromString(totalPrice); err != nil {
			return nil, fmt.Errorf("invalid total price %q: %w", totalPrice, err)
		}
		items = append(items, &item)
	}
	return items, rows.Err()
}

func (r *OrderRepository) scanOne(row *sql.Row) (*models.Order, error) {
	order, err := r.scanRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return order, err
}

func (r *OrderRepository) scanRow(s rowScanner) (*models.Order, error) {
	var order models.Order
	var totalAmount string
	var paidAt, completedAt sql.NullTime

	err := s.Scan(
		&order.ID,
		&order.OrderNumber,
		&order.UserID,
		&order.DocumentID,
		&order.Status,
		&totalAmount,
		&order.CreditsUsed,
		&order.ServiceType,
		&order.ReductionLevel,
		&order.Urgency,
		&order.CreatedAt,
		&order.UpdatedAt,
		&paidAt,
		&completedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		r.logger.Error("Failed to scan order", zap.Error(err))
		return nil, fmt.Errorf("failed to scan order: %w", err)
	}

	if order.TotalAmount, err = decimal.NewFromString(totalAmount); err != nil {
		return nil, fmt.Errorf("invalid total amount %q: %w", totalAmount, err)
	}
	if paidAt.Valid {
		order.PaidAt = &paidAt.Time
	}
	if completedAt.Valid {
		order.CompletedAt = &completedAt.Time
	}

	return &order, nil
}
