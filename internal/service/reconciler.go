package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/coursedesk/payment-service/internal/interfaces"
	"github.com/coursedesk/payment-service/internal/models"
	"github.com/coursedesk/payment-service/internal/telemetry"
)

// amountTolerance absorbs gateway rounding: a difference of up to one whole
// currency unit between the expected and the notified amount is accepted.
const amountTolerance = 1.0

// storageTimeout bounds the conditional write so a slow store surfaces as a
// transient rejection instead of hanging the handler into the gateway's
// retry window.
const storageTimeout = 5 * time.Second

// Reconciler applies a verified gateway callback to the backing store exactly
// once and classifies the outcome. It is the sole writer of payment fields.
type Reconciler struct {
	orders        interfaces.OrderRepository
	registrations interfaces.RegistrationRepository
	redisClient   *redis.Client
}

// NewReconciler creates a reconciler. redisClient may be nil; the advisory
// lock is an optimization on top of the store's conditional update, not a
// correctness requirement.
func NewReconciler(
	orders interfaces.OrderRepository,
	registrations interfaces.RegistrationRepository,
	redisClient *redis.Client,
) *Reconciler {
	return &Reconciler{
		orders:        orders,
		registrations: registrations,
		redisClient:   redisClient,
	}
}

// Reconcile runs the reconciliation state machine for one verified trade.
// Every path terminates in one of the four outcome kinds; validation failures
// are permanent, storage failures are transient.
func (r *Reconciler) Reconcile(ctx context.Context, trade models.VerifiedTrade) models.ReconciliationOutcome {
	if trade.MerchantOrderNo == "" {
		return rejectPermanent(trade.MerchantOrderNo, "missing order reference")
	}

	if regID, ok := models.CourseRegistrationID(trade.MerchantOrderNo); ok {
		return r.reconcileRegistration(ctx, trade, regID)
	}
	return r.reconcileOrder(ctx, trade)
}

func (r *Reconciler) reconcileOrder(ctx context.Context, trade models.VerifiedTrade) models.ReconciliationOutcome {
	order, err := r.orders.GetByOrderNo(ctx, trade.MerchantOrderNo)
	if errors.Is(err, interfaces.ErrNotFound) {
		return rejectPermanent(trade.MerchantOrderNo, "order not found")
	}
	if err != nil {
		return rejectTransient(trade.MerchantOrderNo, err)
	}

	if trade.Status != models.TradeStatusSuccess {
		// A non-success notification is terminal and never retried. The
		// transition is idempotent: paid and failed rows are left alone.
		if err := r.markOrderFailed(ctx, trade.MerchantOrderNo); err != nil {
			return rejectTransient(trade.MerchantOrderNo, err)
		}
		telemetry.Logger.Info("Order payment failed",
			zap.String("order_no", trade.MerchantOrderNo),
			zap.String("gateway_message", trade.RawMessage),
		)
		return models.ReconciliationOutcome{Kind: models.AcceptedNew, OrderNo: trade.MerchantOrderNo, Reason: "payment failed"}
	}

	if outcome, ok := r.checkAmount(trade, order.ExpectedAmount); !ok {
		return outcome
	}

	already, err := r.markOrderPaid(ctx, trade)
	if errors.Is(err, interfaces.ErrNotFound) {
		return rejectPermanent(trade.MerchantOrderNo, "order not found")
	}
	if err != nil {
		return rejectTransient(trade.MerchantOrderNo, err)
	}
	if already {
		return models.ReconciliationOutcome{Kind: models.AcceptedDuplicate, OrderNo: trade.MerchantOrderNo, Reason: "already paid"}
	}

	return models.ReconciliationOutcome{
		Kind:        models.AcceptedNew,
		OrderNo:     trade.MerchantOrderNo,
		SideEffects: orderSideEffects(order, trade),
	}
}

func (r *Reconciler) reconcileRegistration(ctx context.Context, trade models.VerifiedTrade, regID int64) models.ReconciliationOutcome {
	reg, err := r.registrations.GetByID(ctx, regID)
	if errors.Is(err, interfaces.ErrNotFound) {
		return rejectPermanent(trade.MerchantOrderNo, "order not found")
	}
	if err != nil {
		return rejectTransient(trade.MerchantOrderNo, err)
	}

	if trade.Status != models.TradeStatusSuccess {
		if err := r.markRegistrationFailed(ctx, regID); err != nil {
			return rejectTransient(trade.MerchantOrderNo, err)
		}
		telemetry.Logger.Info("Course registration payment failed",
			zap.Int64("registration_id", regID),
			zap.String("gateway_message", trade.RawMessage),
		)
		return models.ReconciliationOutcome{Kind: models.AcceptedNew, OrderNo: trade.MerchantOrderNo, Reason: "payment failed"}
	}

	if outcome, ok := r.checkAmount(trade, reg.ExpectedAmount); !ok {
		return outcome
	}

	already, err := r.markRegistrationPaid(ctx, trade, regID)
	if errors.Is(err, interfaces.ErrNotFound) {
		return rejectPermanent(trade.MerchantOrderNo, "order not found")
	}
	if err != nil {
		return rejectTransient(trade.MerchantOrderNo, err)
	}
	if already {
		return models.ReconciliationOutcome{Kind: models.AcceptedDuplicate, OrderNo: trade.MerchantOrderNo, Reason: "already paid"}
	}

	return models.ReconciliationOutcome{
		Kind:        models.AcceptedNew,
		OrderNo:     trade.MerchantOrderNo,
		SideEffects: registrationSideEffects(reg, trade),
	}
}

// checkAmount validates amount integrity. A mismatch is acknowledged so the
// gateway stops retrying, but logged loudly: it is a fraud or bug signal.
func (r *Reconciler) checkAmount(trade models.VerifiedTrade, expected float64) (models.ReconciliationOutcome, bool) {
	if math.IsNaN(trade.Amount) {
		telemetry.Logger.Warn("Callback carried a non-numeric amount",
			zap.String("order_no", trade.MerchantOrderNo),
			zap.String("amount_raw", trade.AmountRaw),
		)
		return rejectPermanent(trade.MerchantOrderNo, "invalid amount"), false
	}
	if math.Abs(expected-trade.Amount) > amountTolerance {
		telemetry.Logger.Warn("Callback amount does not match order",
			zap.String("order_no", trade.MerchantOrderNo),
			zap.Float64("expected", expected),
			zap.Float64("notified", trade.Amount),
		)
		return rejectPermanent(trade.MerchantOrderNo, "amount mismatch"), false
	}
	return models.ReconciliationOutcome{}, true
}

func (r *Reconciler) markOrderPaid(ctx context.Context, trade models.VerifiedTrade) (bool, error) {
	unlock := r.lockOrder(ctx, trade.MerchantOrderNo)
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, storageTimeout)
	defer cancel()
	return r.orders.MarkPaid(ctx, trade.MerchantOrderNo, trade.GatewayTradeID, time.Now())
}

func (r *Reconciler) markRegistrationPaid(ctx context.Context, trade models.VerifiedTrade, regID int64) (bool, error) {
	unlock := r.lockOrder(ctx, trade.MerchantOrderNo)
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, storageTimeout)
	defer cancel()
	return r.registrations.MarkPaid(ctx, regID, trade.GatewayTradeID, time.Now())
}

func (r *Reconciler) markOrderFailed(ctx context.Context, orderNo string) error {
	ctx, cancel := context.WithTimeout(ctx, storageTimeout)
	defer cancel()
	return r.orders.MarkFailed(ctx, orderNo)
}

func (r *Reconciler) markRegistrationFailed(ctx context.Context, regID int64) error {
	ctx, cancel := context.WithTimeout(ctx, storageTimeout)
	defer cancel()
	return r.registrations.MarkFailed(ctx, regID)
}

// lockOrder takes a short advisory Redis lock around the paid transition.
// The conditional update is authoritative; a Redis outage or lock miss only
// means concurrent duplicates are resolved by the store instead of up front.
func (r *Reconciler) lockOrder(ctx context.Context, orderNo string) func() {
	if r.redisClient == nil {
		return func() {}
	}
	lockKey := fmt.Sprintf("payment_lock:%s", orderNo)
	ok, err := r.redisClient.SetNX(ctx, lockKey, "1", 30*time.Second).Result()
	if err != nil || !ok {
		return func() {}
	}
	return func() { r.redisClient.Del(context.Background(), lockKey) }
}

func orderSideEffects(order *models.Order, trade models.VerifiedTrade) []models.SideEffect {
	return []models.SideEffect{
		{
			ID:      uuid.NewString(),
			Type:    models.SideEffectConfirmationEmail,
			OrderNo: order.OrderNo,
			Email:   order.Email,
			Name:    order.Name,
			Amount:  trade.Amount,
		},
		{
			ID:      uuid.NewString(),
			Type:    models.SideEffectAccountingWebhook,
			OrderNo: order.OrderNo,
			Amount:  trade.Amount,
		},
		{
			ID:      uuid.NewString(),
			Type:    models.SideEffectSettledEvent,
			OrderNo: order.OrderNo,
			Amount:  trade.Amount,
		},
	}
}

func registrationSideEffects(reg *models.CourseRegistration, trade models.VerifiedTrade) []models.SideEffect {
	effects := []models.SideEffect{
		{
			ID:      uuid.NewString(),
			Type:    models.SideEffectConfirmationEmail,
			OrderNo: trade.MerchantOrderNo,
			Email:   reg.Attendees[0].Email,
			Name:    reg.Attendees[0].Name,
			Amount:  trade.Amount,
		},
	}
	if reg.Newsletter {
		for _, attendee := range reg.Attendees {
			effects = append(effects, models.SideEffect{
				ID:      uuid.NewString(),
				Type:    models.SideEffectNewsletterSignup,
				OrderNo: trade.MerchantOrderNo,
				Email:   attendee.Email,
				Name:    attendee.Name,
			})
		}
	}
	effects = append(effects,
		models.SideEffect{
			ID:      uuid.NewString(),
			Type:    models.SideEffectAccountingWebhook,
			OrderNo: trade.MerchantOrderNo,
			Amount:  trade.Amount,
		},
		models.SideEffect{
			ID:      uuid.NewString(),
			Type:    models.SideEffectSettledEvent,
			OrderNo: trade.MerchantOrderNo,
			Amount:  trade.Amount,
		},
	)
	return effects
}

func rejectPermanent(orderNo, reason string) models.ReconciliationOutcome {
	return models.ReconciliationOutcome{Kind: models.RejectedPermanent, OrderNo: orderNo, Reason: reason}
}

func rejectTransient(orderNo string, err error) models.ReconciliationOutcome {
	telemetry.Logger.Error("Storage failure during reconciliation",
		zap.String("order_no", orderNo),
		zap.Error(err),
	)
	return models.ReconciliationOutcome{Kind: models.RejectedTransient, OrderNo: orderNo, Reason: "storage error"}
}
