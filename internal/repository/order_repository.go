package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/coursedesk/payment-service/internal/interfaces"
	"github.com/coursedesk/payment-service/internal/models"
)

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) InitDB() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS orders (
			order_no VARCHAR(64) PRIMARY KEY,
			email VARCHAR(255) NOT NULL,
			name VARCHAR(255) NOT NULL,
			expected_amount NUMERIC(12,2) NOT NULL,
			payment_status VARCHAR(20) NOT NULL DEFAULT 'pending',
			gateway_trade_id VARCHAR(64),
			paid_at TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_payment_status ON orders(payment_status)`,
	}

	for _, query := range queries {
		if _, err := r.db.Exec(query); err != nil {
			return err
		}
	}

	return nil
}

func (r *OrderRepository) Create(ctx context.Context, order *models.Order) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO orders (order_no, email, name, expected_amount, payment_status)
		VALUES ($1, $2, $3, $4, $5)
	`, order.OrderNo, order.Email, order.Name, order.ExpectedAmount, models.StatusPending)
	return err
}

func (r *OrderRepository) GetByOrderNo(ctx context.Context, orderNo string) (*models.Order, error) {
	var (
		order   models.Order
		tradeID sql.NullString
		paidAt  sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT order_no, email, name, expected_amount, payment_status, gateway_trade_id, paid_at, created_at
		FROM orders WHERE order_no = $1
	`, orderNo).Scan(&order.OrderNo, &order.Email, &order.Name, &order.ExpectedAmount,
		&order.PaymentStatus, &tradeID, &paidAt, &order.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	order.GatewayTradeID = tradeID.String
	if paidAt.Valid {
		order.PaidAt = &paidAt.Time
	}
	return &order, nil
}

// MarkPaid applies the pending -> paid transition as a single conditional
// update so concurrent duplicate callbacks race safely: exactly one caller
// observes already=false, every other observes already=true.
func (r *OrderRepository) MarkPaid(ctx context.Context, orderNo, gatewayTradeID string, paidAt time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET payment_status = $1, gateway_trade_id = $2, paid_at = $3
		WHERE order_no = $4 AND payment_status = $5
	`, models.StatusPaid, gatewayTradeID, paidAt, orderNo, models.StatusPending)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if rows == 1 {
		return false, nil
	}

	// No transition happened: the row is either gone or already terminal.
	var status models.PaymentStatus
	err = r.db.QueryRowContext(ctx,
		`SELECT payment_status FROM orders WHERE order_no = $1`, orderNo).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return false, interfaces.ErrNotFound
	}
	if err != nil {
		return false, err
	}
	if status == models.StatusPending {
		return false, fmt.Errorf("order %s: conditional update affected no rows while pending", orderNo)
	}
	return true, nil
}

// MarkFailed applies pending -> failed. A no-op when the order is already
// terminal: paid is monotonic and failed callbacks are retried by nobody.
func (r *OrderRepository) MarkFailed(ctx context.Context, orderNo string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE orders SET payment_status = $1
		WHERE order_no = $2 AND payment_status = $3
	`, models.StatusFailed, orderNo, models.StatusPending)
	return err
}
