package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"careerpath-api/internal/auth"
	"careerpath-api/internal/config"
	"careerpath-api/internal/domain"
	"careerpath-api/internal/metrics"
	"careerpath-api/internal/service"
	"careerpath-api/internal/storage"
)

const defaultAvatarMaxBytes = 2 << 20

type Options struct {
	Accounts   service.AccountService
	Issuer     *auth.Issuer
	Authorizer *auth.Authorizer
	// Storage is nil when no avatar bucket is configured.
	Storage  storage.Service
	Metrics  *metrics.Metrics
	Registry prometheus.Gatherer
	Logger   *logrus.Logger

	ClientURL       string
	TokenDelivery   string
	AvatarKeyPrefix string
	AvatarMaxBytes  int64
	AvatarURLTTL    time.Duration
}

// Handler wires HTTP routes to domain services.
type Handler struct {
	opts     Options
	accounts service.AccountService
	issuer   *auth.Issuer
	authz    *auth.Authorizer
	storage  storage.Service
	logger   *logrus.Logger
}

func NewHandler(opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.TokenDelivery == "" {
		opts.TokenDelivery = config.DeliveryBody
	}
	if opts.AvatarMaxBytes <= 0 {
		opts.AvatarMaxBytes = defaultAvatarMaxBytes
	}
	if opts.AvatarURLTTL <= 0 {
		opts.AvatarURLTTL = time.Hour
	}
	return &Handler{
		opts:     opts,
		accounts: opts.Accounts,
		issuer:   opts.Issuer,
		authz:    opts.Authorizer,
		storage:  opts.Storage,
		logger:   opts.Logger,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(requestLogger(h.logger))
	if h.opts.Metrics != nil {
		router.Use(h.opts.Metrics.Middleware())
	}
	router.Use(corsMiddleware(h.opts.ClientURL))

	if h.opts.Registry != nil {
		router.GET("/metrics", gin.WrapH(metrics.HandlerFor(h.opts.Registry)))
	}

	protect := h.authz.Protect()

	api := router.Group("/api")
	{
		api.GET("/health", func(ctx *gin.Context) {
			ctx.JSON(http.StatusOK, gin.H{"ok": "ok"})
		})

		authGroup := api.Group("/auth")
		authGroup.POST("/signup", h.signup)
		authGroup.POST("/login", h.login)
		authGroup.POST("/logout", h.logout)
		authGroup.POST("/forgot-password", h.forgotPassword)
		authGroup.PATCH("/reset-password/:token", h.resetPassword)
		authGroup.GET("/verify-email/:token", h.verifyEmail)
		authGroup.POST("/verify-email", protect, h.requestEmailVerification)
		authGroup.PATCH("/update-password", protect, h.updatePassword)

		users := api.Group("/users")
		users.GET("/me", protect, h.getMe)
		users.PATCH("/me", protect, h.updateMe)
		users.DELETE("/me", protect, h.deleteMe)
		users.POST("/me/skills", protect, h.addSkill)
		users.DELETE("/me/skills/:name", protect, h.removeSkill)
		users.PUT("/me/roadmaps/:id", protect, h.upsertRoadmap)
		users.POST("/me/assessments", protect, h.recordAssessment)
		users.PUT("/me/avatar", protect, h.uploadAvatar)
		users.GET("/:id", h.authz.Optional(), h.getUser)

		admin := api.Group("/admin", protect, h.authz.RestrictTo(domain.RoleAdmin))
		admin.PATCH("/users/:id/role", h.setRole)
	}
}

func corsMiddleware(allowedOrigin string) gin.HandlerFunc {
	if allowedOrigin == "" {
		allowedOrigin = "*"
	}
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
		if allowedOrigin != "*" {
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Add("Vary", "Origin")
		}
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// requestLogger writes one entry per request once the handler chain is done.
// It logs the route template rather than the raw path, which can carry
// one-time tokens.
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		entry := logger.WithFields(logrus.Fields{
			"method":    c.Request.Method,
			"route":     route,
			"status":    c.Writer.Status(),
			"latency":   time.Since(start).String(),
			"client_ip": c.ClientIP(),
		})
		if account, ok := auth.AccountFromGin(c); ok {
			entry = entry.WithField("account_id", account.ID)
		}
		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			entry.Error("request failed")
		case status >= http.StatusBadRequest:
			entry.Info("request rejected")
		default:
			entry.Debug("request served")
		}
	}
}
