package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/coursedesk/payment-service/internal/handlers"
	"github.com/coursedesk/payment-service/internal/telemetry"
)

func NewRouter(
	notify *handlers.NotifyHandler,
	ret *handlers.ReturnHandler,
	checkout *handlers.CheckoutHandler,
) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(telemetry.TracingMiddleware())

	// Prometheus metrics
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "payment-service"})
	})

	// Gateway callbacks
	r.POST("/api/payments/notify", notify.HandleNotify)
	r.POST("/api/payments/return", ret.HandleReturn)

	// Checkout
	r.POST("/api/orders", checkout.CreateOrder)
	r.POST("/api/course-registrations", checkout.CreateRegistration)

	return r
}
