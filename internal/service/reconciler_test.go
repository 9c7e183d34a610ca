package service

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coursedesk/payment-service/internal/interfaces"
	"github.com/coursedesk/payment-service/internal/models"
	"github.com/coursedesk/payment-service/internal/repository/memory"
)

type failingOrderRepo struct {
	interfaces.OrderRepository
	getErr  error
	markErr error
}

func (f *failingOrderRepo) GetByOrderNo(ctx context.Context, orderNo string) (*models.Order, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.OrderRepository.GetByOrderNo(ctx, orderNo)
}

func (f *failingOrderRepo) MarkPaid(ctx context.Context, orderNo, gatewayTradeID string, paidAt time.Time) (bool, error) {
	if f.markErr != nil {
		return false, f.markErr
	}
	return f.OrderRepository.MarkPaid(ctx, orderNo, gatewayTradeID, paidAt)
}

func successTrade(orderNo string, amount float64) models.VerifiedTrade {
	return models.VerifiedTrade{
		Status:          models.TradeStatusSuccess,
		MerchantOrderNo: orderNo,
		Amount:          amount,
		GatewayTradeID:  "TN-1",
	}
}

func seedOrder(t *testing.T, orders *memory.OrderRepository, orderNo string, amount float64) {
	t.Helper()
	err := orders.Create(context.Background(), &models.Order{
		OrderNo:        orderNo,
		Email:          "buyer@example.com",
		Name:           "Buyer",
		ExpectedAmount: amount,
	})
	require.NoError(t, err)
}

func seedRegistration(t *testing.T, regs *memory.RegistrationRepository, amount float64, newsletter bool, attendees ...models.Attendee) int64 {
	t.Helper()
	reg := &models.CourseRegistration{
		Attendees:      attendees,
		Newsletter:     newsletter,
		ExpectedAmount: amount,
	}
	require.NoError(t, regs.Create(context.Background(), reg))
	return reg.ID
}

func TestReconcile_MissingOrderReference(t *testing.T) {
	r := NewReconciler(memory.NewOrderRepository(), memory.NewRegistrationRepository(), nil)

	outcome := r.Reconcile(context.Background(), successTrade("", 699))
	require.Equal(t, models.RejectedPermanent, outcome.Kind)
	require.Equal(t, "missing order reference", outcome.Reason)
}

func TestReconcile_OrderNotFound(t *testing.T) {
	r := NewReconciler(memory.NewOrderRepository(), memory.NewRegistrationRepository(), nil)

	for _, orderNo := range []string{"ORD9999", "C26_99"} {
		outcome := r.Reconcile(context.Background(), successTrade(orderNo, 699))
		require.Equal(t, models.RejectedPermanent, outcome.Kind)
		require.Equal(t, "order not found", outcome.Reason)
	}
}

func TestReconcile_SuccessThenDuplicate(t *testing.T) {
	orders := memory.NewOrderRepository()
	seedOrder(t, orders, "ORD17001", 699)
	r := NewReconciler(orders, memory.NewRegistrationRepository(), nil)

	first := r.Reconcile(context.Background(), successTrade("ORD17001", 699))
	require.Equal(t, models.AcceptedNew, first.Kind)
	require.NotEmpty(t, first.SideEffects)

	second := r.Reconcile(context.Background(), successTrade("ORD17001", 699))
	require.Equal(t, models.AcceptedDuplicate, second.Kind)
	require.Empty(t, second.SideEffects, "duplicates must not re-run side effects")

	order, err := orders.GetByOrderNo(context.Background(), "ORD17001")
	require.NoError(t, err)
	require.Equal(t, models.StatusPaid, order.PaymentStatus)
	require.Equal(t, "TN-1", order.GatewayTradeID)
	require.NotNil(t, order.PaidAt)
}

func TestReconcile_ConcurrentDuplicates(t *testing.T) {
	orders := memory.NewOrderRepository()
	seedOrder(t, orders, "ORD17001", 699)
	r := NewReconciler(orders, memory.NewRegistrationRepository(), nil)

	const n = 16
	outcomes := make([]models.ReconciliationOutcome, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i] = r.Reconcile(context.Background(), successTrade("ORD17001", 699))
		}(i)
	}
	wg.Wait()

	var accepted, duplicates, emails int
	for _, outcome := range outcomes {
		switch outcome.Kind {
		case models.AcceptedNew:
			accepted++
			for _, effect := range outcome.SideEffects {
				if effect.Type == models.SideEffectConfirmationEmail {
					emails++
				}
			}
		case models.AcceptedDuplicate:
			duplicates++
		default:
			t.Fatalf("unexpected outcome %s (%s)", outcome.Kind, outcome.Reason)
		}
	}
	require.Equal(t, 1, accepted, "exactly one callback wins the transition")
	require.Equal(t, n-1, duplicates)
	require.Equal(t, 1, emails, "exactly one confirmation email is queued")
}

func TestReconcile_AmountTolerance(t *testing.T) {
	tests := []struct {
		name     string
		notified float64
		want     models.OutcomeKind
	}{
		{name: "exact", notified: 699, want: models.AcceptedNew},
		{name: "within tolerance", notified: 699.4, want: models.AcceptedNew},
		{name: "at tolerance boundary", notified: 700, want: models.AcceptedNew},
		{name: "above tolerance", notified: 701, want: models.RejectedPermanent},
		{name: "below tolerance", notified: 697, want: models.RejectedPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orders := memory.NewOrderRepository()
			seedOrder(t, orders, "ORD17001", 699)
			r := NewReconciler(orders, memory.NewRegistrationRepository(), nil)

			outcome := r.Reconcile(context.Background(), successTrade("ORD17001", tt.notified))
			require.Equal(t, tt.want, outcome.Kind)
			if tt.want == models.RejectedPermanent {
				require.Equal(t, "amount mismatch", outcome.Reason)
			}
		})
	}
}

func TestReconcile_InvalidAmount(t *testing.T) {
	orders := memory.NewOrderRepository()
	seedOrder(t, orders, "ORD17001", 699)
	r := NewReconciler(orders, memory.NewRegistrationRepository(), nil)

	outcome := r.Reconcile(context.Background(), successTrade("ORD17001", math.NaN()))
	require.Equal(t, models.RejectedPermanent, outcome.Kind)
	require.Equal(t, "invalid amount", outcome.Reason)

	order, err := orders.GetByOrderNo(context.Background(), "ORD17001")
	require.NoError(t, err)
	require.Equal(t, models.StatusPending, order.PaymentStatus)
}

func TestReconcile_FailureStatus(t *testing.T) {
	orders := memory.NewOrderRepository()
	seedOrder(t, orders, "ORD17001", 699)
	r := NewReconciler(orders, memory.NewRegistrationRepository(), nil)

	trade := successTrade("ORD17001", 699)
	trade.Status = models.TradeStatusFailure
	trade.RawMessage = "card declined"

	outcome := r.Reconcile(context.Background(), trade)
	require.Equal(t, models.AcceptedNew, outcome.Kind)
	require.Empty(t, outcome.SideEffects)

	order, err := orders.GetByOrderNo(context.Background(), "ORD17001")
	require.NoError(t, err)
	require.Equal(t, models.StatusFailed, order.PaymentStatus)
}

func TestReconcile_FailureNeverUnpaysPaidOrder(t *testing.T) {
	orders := memory.NewOrderRepository()
	seedOrder(t, orders, "ORD17001", 699)
	r := NewReconciler(orders, memory.NewRegistrationRepository(), nil)

	require.Equal(t, models.AcceptedNew, r.Reconcile(context.Background(), successTrade("ORD17001", 699)).Kind)

	failed := successTrade("ORD17001", 699)
	failed.Status = models.TradeStatusFailure
	outcome := r.Reconcile(context.Background(), failed)
	require.Equal(t, models.AcceptedNew, outcome.Kind)

	order, err := orders.GetByOrderNo(context.Background(), "ORD17001")
	require.NoError(t, err)
	require.Equal(t, models.StatusPaid, order.PaymentStatus, "paid is monotonic")
}

func TestReconcile_StorageErrors(t *testing.T) {
	boom := errors.New("connection refused")

	t.Run("lookup failure", func(t *testing.T) {
		orders := memory.NewOrderRepository()
		seedOrder(t, orders, "ORD17001", 699)
		r := NewReconciler(&failingOrderRepo{OrderRepository: orders, getErr: boom}, memory.NewRegistrationRepository(), nil)

		outcome := r.Reconcile(context.Background(), successTrade("ORD17001", 699))
		require.Equal(t, models.RejectedTransient, outcome.Kind)
		require.Equal(t, "storage error", outcome.Reason)
	})

	t.Run("transition failure", func(t *testing.T) {
		orders := memory.NewOrderRepository()
		seedOrder(t, orders, "ORD17001", 699)
		r := NewReconciler(&failingOrderRepo{OrderRepository: orders, markErr: boom}, memory.NewRegistrationRepository(), nil)

		outcome := r.Reconcile(context.Background(), successTrade("ORD17001", 699))
		require.Equal(t, models.RejectedTransient, outcome.Kind)
		require.Equal(t, "storage error", outcome.Reason)
	})
}

func TestReconcile_RegistrationSideEffects(t *testing.T) {
	t.Run("newsletter opt-in queues one signup per attendee", func(t *testing.T) {
		regs := memory.NewRegistrationRepository()
		id := seedRegistration(t, regs, 3500, true,
			models.Attendee{Name: "Alice", Email: "alice@example.com"},
			models.Attendee{Name: "Bob", Email: "bob@example.com"},
		)
		r := NewReconciler(memory.NewOrderRepository(), regs, nil)

		outcome := r.Reconcile(context.Background(), successTrade(models.CourseOrderNo(id), 3500))
		require.Equal(t, models.AcceptedNew, outcome.Kind)

		byType := map[models.SideEffectType]int{}
		for _, effect := range outcome.SideEffects {
			byType[effect.Type]++
		}
		require.Equal(t, 1, byType[models.SideEffectConfirmationEmail])
		require.Equal(t, 2, byType[models.SideEffectNewsletterSignup])
		require.Equal(t, 1, byType[models.SideEffectAccountingWebhook])
		require.Equal(t, 1, byType[models.SideEffectSettledEvent])
	})

	t.Run("no opt-in, no signup", func(t *testing.T) {
		regs := memory.NewRegistrationRepository()
		id := seedRegistration(t, regs, 3500, false,
			models.Attendee{Name: "Alice", Email: "alice@example.com"},
		)
		r := NewReconciler(memory.NewOrderRepository(), regs, nil)

		outcome := r.Reconcile(context.Background(), successTrade(models.CourseOrderNo(id), 3500))
		require.Equal(t, models.AcceptedNew, outcome.Kind)
		for _, effect := range outcome.SideEffects {
			require.NotEqual(t, models.SideEffectNewsletterSignup, effect.Type)
		}
	})

	t.Run("legacy prefix resolves the same registration", func(t *testing.T) {
		regs := memory.NewRegistrationRepository()
		id := seedRegistration(t, regs, 3500, false,
			models.Attendee{Name: "Alice", Email: "alice@example.com"},
		)
		r := NewReconciler(memory.NewOrderRepository(), regs, nil)

		outcome := r.Reconcile(context.Background(), successTrade(models.CourseOrderPrefixLegacy+"1", 3500))
		require.Equal(t, models.AcceptedNew, outcome.Kind)

		reg, err := regs.GetByID(context.Background(), id)
		require.NoError(t, err)
		require.Equal(t, models.StatusPaid, reg.PaymentStatus)
	})
}
