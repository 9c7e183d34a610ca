package memory

import (
	"context"
	"sync"
	"time"

	"github.com/coursedesk/payment-service/internal/interfaces"
	"github.com/coursedesk/payment-service/internal/models"
)

// OrderRepository is a mutex-guarded in-memory implementation of
// interfaces.OrderRepository with the same conditional-transition semantics
// as the Postgres repository. Used for local runs and tests.
type OrderRepository struct {
	mu     sync.Mutex
	orders map[string]*models.Order
}

func NewOrderRepository() *OrderRepository {
	return &OrderRepository{orders: make(map[string]*models.Order)}
}

func (r *OrderRepository) Create(ctx context.Context, order *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *order
	if cp.PaymentStatus == "" {
		cp.PaymentStatus = models.StatusPending
	}
	r.orders[cp.OrderNo] = &cp
	return nil
}

func (r *OrderRepository) GetByOrderNo(ctx context.Context, orderNo string) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderNo]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	cp := *order
	return &cp, nil
}

func (r *OrderRepository) MarkPaid(ctx context.Context, orderNo, gatewayTradeID string, paidAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderNo]
	if !ok {
		return false, interfaces.ErrNotFound
	}
	if order.PaymentStatus != models.StatusPending {
		return true, nil
	}
	order.PaymentStatus = models.StatusPaid
	order.GatewayTradeID = gatewayTradeID
	order.PaidAt = &paidAt
	return false, nil
}

func (r *OrderRepository) MarkFailed(ctx context.Context, orderNo string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderNo]
	if !ok {
		return interfaces.ErrNotFound
	}
	if order.PaymentStatus == models.StatusPending {
		order.PaymentStatus = models.StatusFailed
	}
	return nil
}

// RegistrationRepository is the in-memory counterpart for course registrations.
type RegistrationRepository struct {
	mu     sync.Mutex
	nextID int64
	regs   map[int64]*models.CourseRegistration
}

func NewRegistrationRepository() *RegistrationRepository {
	return &RegistrationRepository{regs: make(map[int64]*models.CourseRegistration)}
}

func (r *RegistrationRepository) Create(ctx context.Context, reg *models.CourseRegistration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	reg.ID = r.nextID
	cp := *reg
	if cp.PaymentStatus == "" {
		cp.PaymentStatus = models.StatusPending
	}
	cp.Attendees = append([]models.Attendee(nil), reg.Attendees...)
	r.regs[cp.ID] = &cp
	return nil
}

func (r *RegistrationRepository) GetByID(ctx context.Context, id int64) (*models.CourseRegistration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.regs[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	cp := *reg
	cp.Attendees = append([]models.Attendee(nil), reg.Attendees...)
	return &cp, nil
}

func (r *RegistrationRepository) MarkPaid(ctx context.Context, id int64, gatewayTradeID string, paidAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.regs[id]
	if !ok {
		return false, interfaces.ErrNotFound
	}
	if reg.PaymentStatus != models.StatusPending {
		return true, nil
	}
	reg.PaymentStatus = models.StatusPaid
	reg.GatewayTradeID = gatewayTradeID
	reg.PaidAt = &paidAt
	return false, nil
}

func (r *RegistrationRepository) MarkFailed(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.regs[id]
	if !ok {
		return interfaces.ErrNotFound
	}
	if reg.PaymentStatus == models.StatusPending {
		reg.PaymentStatus = models.StatusFailed
	}
	return nil
}

var (
	_ interfaces.OrderRepository        = (*OrderRepository)(nil)
	_ interfaces.RegistrationRepository = (*RegistrationRepository)(nil)
)
