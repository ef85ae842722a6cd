package router

import (
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"otc-backend/internal/config"
	"otc-backend/internal/handlers"
	"otc-backend/internal/metrics"
	"otc-backend/internal/middleware"
)

// corsMiddleware applies CORS headers.
// Priority: Environment Variable > YAML Config > Default (*)
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		var allowedOrigins []string
		allowCredentials := true
		maxAge := 3600

		if envOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); envOrigins != "" {
			for _, o := range strings.Split(envOrigins, ",") {
				if trimmed := strings.TrimSpace(o); trimmed != "" {
					allowedOrigins = append(allowedOrigins, trimmed)
				}
			}
		} else if config.AppConfig != nil && len(config.AppConfig.CORS.AllowedOrigins) > 0 {
			allowedOrigins = config.AppConfig.CORS.AllowedOrigins
			allowCredentials = config.AppConfig.CORS.AllowCredentials
			if config.AppConfig.CORS.MaxAge > 0 {
				maxAge = config.AppConfig.CORS.MaxAge
			}
		} else {
			allowedOrigins = []string{"*"}
		}

		if len(allowedOrigins) == 1 && allowedOrigins[0] == "*" {
			c.Header("Access-Control-Allow-Origin", "*")
		} else if origin != "" {
			for _, allowed := range allowedOrigins {
				if strings.TrimSpace(allowed) == origin {
					c.Header("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}

		if allowCredentials {
			c.Header("Access-Control-Allow-Credentials", "true")
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Max-Age", strconv.Itoa(maxAge))

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// metricsMiddleware records request durations per route and status.
func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.HTTPRequestDuration.
			WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

// Handlers bundles everything the router mounts.
type Handlers struct {
	Quote     *handlers.QuoteHandler
	Offer     *handlers.OfferHandler
	AdminDesk *handlers.AdminDeskHandler
	AdminAuth *handlers.AdminAuthHandler
	Health    *handlers.HealthHandler
}

// SetupRouter builds the gin engine with all routes mounted.
func SetupRouter(h *Handlers, logger *logrus.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())
	r.Use(metricsMiddleware())

	r.GET("/health", h.Health.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		quotes := api.Group("/quotes")
		{
			quotes.POST("", h.Quote.CreateQuote)
			quotes.GET("", h.Quote.ListQuotes)
			quotes.GET("/:id", h.Quote.GetQuote)
			quotes.GET("/:id/payment", h.Quote.RequiredPayment)
			quotes.POST("/:id/approve", h.Quote.ApproveQuote)
			quotes.POST("/:id/fulfill", h.Quote.FulfillQuote)
			quotes.POST("/:id/claim", h.Quote.ClaimQuote)
			quotes.POST("/:id/cancel", h.Quote.CancelQuote)
			quotes.POST("/:id/refund", h.Quote.RefundQuote)
		}

		offers := api.Group("/offers")
		{
			offers.GET("/open", h.Offer.OpenOffers)
			offers.GET("/:id", h.Offer.GetOffer)
			offers.POST("/auto-claim", h.Offer.AutoClaim)
		}

		api.GET("/treasury", h.Offer.Treasury)
		api.GET("/reconcile/health", h.Health.ReconcileHealth)

		admin := api.Group("/admin")
		{
			admin.POST("/login", h.AdminAuth.AdminLoginHandler)
			admin.POST("/totp/generate", h.AdminAuth.GenerateTOTPSecretHandler)

			adminAuth := middleware.NewAdminAuthMiddleware(logger)
			protected := admin.Group("")
			protected.Use(adminAuth.RequireAdminAuth())
			{
				protected.POST("/desk/approvers", h.AdminDesk.SetApprover)
				protected.POST("/desk/limits", h.AdminDesk.SetLimits)
				protected.POST("/desk/caps", h.AdminDesk.SetCaps)
				protected.POST("/desk/pause", h.AdminDesk.SetPaused)
				protected.POST("/desk/emergency-refund", h.AdminDesk.SetEmergencyRefund)
				protected.POST("/desk/treasury/deposit", h.AdminDesk.DepositTokens)
				protected.POST("/desk/treasury/withdraw", h.AdminDesk.WithdrawTokens)
				protected.POST("/desk/treasury/withdraw-payments", h.AdminDesk.WithdrawPayments)
				protected.POST("/reconcile/sweep", h.Health.TriggerSweep)
			}
		}
	}
	return r
}
