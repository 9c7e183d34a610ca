package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/coursedesk/payment-service/internal/gateway"
	"github.com/coursedesk/payment-service/internal/models"
	"github.com/coursedesk/payment-service/internal/service"
	"github.com/coursedesk/payment-service/internal/telemetry"
)

type NotifyHandler struct {
	codec      *gateway.Codec
	reconciler *service.Reconciler
	dispatcher *service.Dispatcher
}

func NewNotifyHandler(codec *gateway.Codec, reconciler *service.Reconciler, dispatcher *service.Dispatcher) *NotifyHandler {
	return &NotifyHandler{
		codec:      codec,
		reconciler: reconciler,
		dispatcher: dispatcher,
	}
}

// HandleNotify processes the server-to-server notify callback. The gateway
// retries until it sees a 200, so every permanent failure is acknowledged
// with "OK"; only transient storage failures answer 5xx to invite a retry.
// Side effects are enqueued strictly after the acknowledgement is written.
func (h *NotifyHandler) HandleNotify(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		telemetry.Logger.Error("Failed to read notify body", zap.Error(err))
		c.String(http.StatusInternalServerError, "server error")
		return
	}

	env, err := gateway.ParseEnvelope(string(body))
	if err != nil {
		h.ackPermanent(c, "", err)
		return
	}

	trade, err := gateway.DecodeCallback(h.codec, env)
	if err != nil {
		h.ackPermanent(c, "", err)
		return
	}

	outcome := h.reconciler.Reconcile(c.Request.Context(), trade)
	telemetry.CallbackOutcomes.WithLabelValues(string(outcome.Kind)).Inc()
	telemetry.Logger.Info("Payment callback reconciled",
		zap.String("order_no", outcome.OrderNo),
		zap.String("outcome", string(outcome.Kind)),
		zap.String("reason", outcome.Reason),
	)

	status, respBody := service.Acknowledge(outcome.Kind)
	c.String(status, respBody)

	if outcome.Kind == models.AcceptedNew && len(outcome.SideEffects) > 0 {
		h.dispatcher.Enqueue(outcome.SideEffects)
	}
}

// ackPermanent acknowledges a callback that can never succeed on retry.
func (h *NotifyHandler) ackPermanent(c *gin.Context, orderNo string, err error) {
	telemetry.CallbackOutcomes.WithLabelValues(string(models.RejectedPermanent)).Inc()
	telemetry.Logger.Warn("Rejecting unprocessable payment callback",
		zap.String("order_no", orderNo),
		zap.Error(err),
	)
	c.String(http.StatusOK, "OK")
}
