package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/coursedesk/payment-service/internal/models"
)

// ErrNotFound is returned when no row backs the given order reference.
var ErrNotFound = errors.New("repository: not found")

// OrderRepository defines the contract for general event order data access.
// MarkPaid must be an atomic conditional transition: it applies
// pending -> paid and reports whether the row was already in a terminal state
// before the call, so that concurrent duplicate callbacks race safely.
type OrderRepository interface {
	GetByOrderNo(ctx context.Context, orderNo string) (*models.Order, error)
	MarkPaid(ctx context.Context, orderNo, gatewayTradeID string, paidAt time.Time) (already bool, err error)
	MarkFailed(ctx context.Context, orderNo string) error
	Create(ctx context.Context, order *models.Order) error
}

// RegistrationRepository defines the same contract for course registrations,
// which are keyed by a numeric id embedded in the wire order number.
type RegistrationRepository interface {
	GetByID(ctx context.Context, id int64) (*models.CourseRegistration, error)
	MarkPaid(ctx context.Context, id int64, gatewayTradeID string, paidAt time.Time) (already bool, err error)
	MarkFailed(ctx context.Context, id int64) error
	Create(ctx context.Context, reg *models.CourseRegistration) error
}
