package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/coursedesk/payment-service/internal/gateway"
	"github.com/coursedesk/payment-service/internal/interfaces"
	"github.com/coursedesk/payment-service/internal/models"
	"github.com/coursedesk/payment-service/internal/service"
	"github.com/coursedesk/payment-service/internal/telemetry"
)

type ReturnHandler struct {
	codec         *gateway.Codec
	orders        interfaces.OrderRepository
	registrations interfaces.RegistrationRepository
}

func NewReturnHandler(codec *gateway.Codec, orders interfaces.OrderRepository, registrations interfaces.RegistrationRepository) *ReturnHandler {
	return &ReturnHandler{
		codec:         codec,
		orders:        orders,
		registrations: registrations,
	}
}

// HandleReturn processes the browser-redirect callback. It runs the same
// verify pipeline as the notify path but never mutates state: reconciliation
// belongs to the notify endpoint. Every failure resolves to a redirect with
// an error code; a browser session has no retry concept, so 5xx is never
// returned here.
func (h *ReturnHandler) HandleReturn(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.redirectFailure(c, "", service.RedirectErrMissingData, err)
		return
	}

	env, err := gateway.ParseEnvelope(string(body))
	if err != nil {
		h.redirectFailure(c, "", service.RedirectErrMissingData, err)
		return
	}

	if !h.codec.VerifySignature(env.TradeSha, env.TradeInfo) {
		h.redirectFailure(c, "", service.RedirectErrInvalidSignature, nil)
		return
	}

	plaintext, err := h.codec.Decrypt(env.TradeInfo)
	if err != nil {
		h.redirectFailure(c, "", service.RedirectErrDecryptFailed, err)
		return
	}

	trade, err := gateway.NormalizeDecrypted(plaintext)
	if err != nil {
		h.redirectFailure(c, "", service.RedirectErrUnknown, err)
		return
	}
	if trade.MerchantOrderNo == "" {
		h.redirectFailure(c, "", service.RedirectErrMissingOrderNo, nil)
		return
	}

	if trade.Status != models.TradeStatusSuccess {
		h.redirectFailure(c, trade.MerchantOrderNo, service.RedirectErrUnknown, nil)
		return
	}

	if err := h.lookup(c, trade.MerchantOrderNo); err != nil {
		h.redirectFailure(c, trade.MerchantOrderNo, service.RedirectErrUnknown, err)
		return
	}

	c.Redirect(http.StatusFound, service.SuccessRedirect(trade.MerchantOrderNo))
}

// lookup confirms a backing row exists for the order reference. Read-only.
func (h *ReturnHandler) lookup(c *gin.Context, orderNo string) error {
	ctx := c.Request.Context()
	if regID, ok := models.CourseRegistrationID(orderNo); ok {
		_, err := h.registrations.GetByID(ctx, regID)
		return err
	}
	_, err := h.orders.GetByOrderNo(ctx, orderNo)
	return err
}

func (h *ReturnHandler) redirectFailure(c *gin.Context, orderNo, code string, err error) {
	if err != nil && !errors.Is(err, interfaces.ErrNotFound) {
		telemetry.Logger.Warn("Return callback failed",
			zap.String("order_no", orderNo),
			zap.String("code", code),
			zap.Error(err),
		)
	}
	c.Redirect(http.StatusFound, service.FailureRedirect(orderNo, code))
}
