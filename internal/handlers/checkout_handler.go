package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/coursedesk/payment-service/internal/gateway"
	"github.com/coursedesk/payment-service/internal/interfaces"
	"github.com/coursedesk/payment-service/internal/models"
	"github.com/coursedesk/payment-service/internal/telemetry"
)

// CheckoutHandler creates pending orders and builds the encrypted gateway
// trade request the storefront posts to open checkout.
type CheckoutHandler struct {
	codec         *gateway.Codec
	orders        interfaces.OrderRepository
	registrations interfaces.RegistrationRepository
	merchantID    string
	gatewayURL    string
	siteBaseURL   string
}

func NewCheckoutHandler(
	codec *gateway.Codec,
	orders interfaces.OrderRepository,
	registrations interfaces.RegistrationRepository,
	merchantID, gatewayURL, siteBaseURL string,
) *CheckoutHandler {
	return &CheckoutHandler{
		codec:         codec,
		orders:        orders,
		registrations: registrations,
		merchantID:    merchantID,
		gatewayURL:    gatewayURL,
		siteBaseURL:   siteBaseURL,
	}
}

type createOrderRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Name     string `json:"name" binding:"required"`
	Amount   int64  `json:"amount" binding:"required,gt=0"`
	ItemDesc string `json:"item_desc"`
}

type attendeeRequest struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email" binding:"required,email"`
}

type createRegistrationRequest struct {
	Attendees  []attendeeRequest `json:"attendees" binding:"required,min=1,max=2,dive"`
	Newsletter bool              `json:"newsletter"`
	Amount     int64             `json:"amount" binding:"required,gt=0"`
	ItemDesc   string            `json:"item_desc"`
}

// CreateOrder registers a pending event order and returns the gateway form.
func (h *CheckoutHandler) CreateOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	order := &models.Order{
		OrderNo:        newOrderNo(),
		Email:          req.Email,
		Name:           req.Name,
		ExpectedAmount: float64(req.Amount),
		PaymentStatus:  models.StatusPending,
	}
	if err := h.orders.Create(c.Request.Context(), order); err != nil {
		telemetry.Logger.Error("Failed to create order", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create order"})
		return
	}

	h.respondTradeRequest(c, order.OrderNo, req.Amount, req.ItemDesc, req.Email)
}

// CreateRegistration registers a pending course registration and returns the
// gateway form. The wire order number embeds the registration id.
func (h *CheckoutHandler) CreateRegistration(c *gin.Context) {
	var req createRegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	reg := &models.CourseRegistration{
		Newsletter:     req.Newsletter,
		ExpectedAmount: float64(req.Amount),
		PaymentStatus:  models.StatusPending,
	}
	for _, a := range req.Attendees {
		reg.Attendees = append(reg.Attendees, models.Attendee{Name: a.Name, Email: a.Email})
	}
	if err := h.registrations.Create(c.Request.Context(), reg); err != nil {
		telemetry.Logger.Error("Failed to create course registration", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create registration"})
		return
	}

	h.respondTradeRequest(c, models.CourseOrderNo(reg.ID), req.Amount, req.ItemDesc, req.Attendees[0].Email)
}

func (h *CheckoutHandler) respondTradeRequest(c *gin.Context, orderNo string, amount int64, itemDesc, email string) {
	tradeReq, err := gateway.BuildTradeRequest(h.codec, h.merchantID, h.gatewayURL, gateway.CheckoutOrder{
		OrderNo:   orderNo,
		Amount:    amount,
		ItemDesc:  itemDesc,
		Email:     email,
		ReturnURL: h.siteBaseURL + "/api/payments/return",
		NotifyURL: h.siteBaseURL + "/api/payments/notify",
	})
	if err != nil {
		telemetry.Logger.Error("Failed to build trade request",
			zap.String("order_no", orderNo),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build trade request"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order_no":    orderNo,
		"merchant_id": tradeReq.MerchantID,
		"trade_info":  tradeReq.TradeInfo,
		"trade_sha":   tradeReq.TradeSha,
		"version":     tradeReq.Version,
		"pay_gateway": tradeReq.PayGateWay,
	})
}

func newOrderNo() string {
	return fmt.Sprintf("ORD%d", time.Now().UnixNano())
}
