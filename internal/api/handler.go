package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"course-service/internal/auth"
	"course-service/internal/chat"
	"course-service/internal/service"
	"course-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Checker is a dependency probed by the readiness endpoint
type Checker interface {
	Ping(ctx context.Context) error
}

// Services groups the business services served over HTTP
type Services struct {
	Payments      *service.PaymentService
	Enrollments   *service.EnrollmentService
	Notifications *service.NotificationService
	Chat          *service.ChatService
	Courses       *service.CourseService
}

// Options configures transport-level behaviour
type Options struct {
	// WebhookSecret enables gateway signature checks when set
	WebhookSecret string
	// AllowedOrigins restricts websocket upgrades; empty allows any origin
	AllowedOrigins []string
	Checks         map[string]Checker
}

// Handler contains HTTP handlers
type Handler struct {
	payments      *service.PaymentService
	enrollments   *service.EnrollmentService
	notifications *service.NotificationService
	chatService   *service.ChatService
	courses       *service.CourseService
	hub           *chat.Hub
	validator     *auth.Validator
	upgrader      websocket.Upgrader
	webhookSecret string
	checks        map[string]Checker
	logger        *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(svc Services, hub *chat.Hub, validator *auth.Validator, opts Options) *Handler {
	return &Handler{
		payments:      svc.Payments,
		enrollments:   svc.Enrollments,
		notifications: svc.Notifications,
		chatService:   svc.Chat,
		courses:       svc.Courses,
		hub:           hub,
		validator:     validator,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(opts.AllowedOrigins),
		},
		webhookSecret: opts.WebhookSecret,
		checks:        opts.Checks,
		logger:        util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	// the gateway authenticates with a signature, not a user token
	api.POST("/payments/webhook", h.paymentWebhook)

	authed := api.Group("")
	authed.Use(auth.Middleware(h.validator))
	{
		authed.POST("/payments/create", h.createPaymentLink)
		authed.POST("/payments/verify-enrollment", h.verifyEnrollment)
		authed.GET("/payments/user", h.listUserPayments)
		authed.GET("/payments/invoices", h.listUserInvoices)
		authed.GET("/payments/:id", h.getPayment)

		authed.POST("/enrollment", h.enroll)
		authed.GET("/enrollment/student", h.listStudentEnrollments)
		authed.GET("/enrollment/course/:courseId", h.listCourseEnrollments)

		authed.GET("/notifications", h.listNotifications)
		authed.PUT("/notifications/read-all", h.markAllNotificationsRead)
		authed.PUT("/notifications/:id/read", h.markNotificationRead)
		authed.GET("/notifications/unread-count", h.unreadNotificationCount)

		authed.GET("/chat/:courseId", h.chatHistory)

		authed.POST("/courses", h.createCourse)
		authed.GET("/courses/:courseId", h.getCourse)
		authed.POST("/courses/:courseId/videos", h.uploadVideo)
	}

	router.GET("/ws", auth.Middleware(h.validator), h.serveWebsocket)
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every registered dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "not ready",
			"failures": failed,
			"time":     time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      "ready",
		"connections": h.hub.ClientCount(),
		"time":        time.Now().Unix(),
	})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}

// courseRequest is the body shared by payment and enrollment endpoints
type courseRequest struct {
	CourseID string `json:"courseId" binding:"required"`
}
