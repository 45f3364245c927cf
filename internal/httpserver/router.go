package httpserver

import (
	"context"
	"net/http"
	"time"

	"orderflow/internal/handler"
	"orderflow/pkg/otel"
	"orderflow/pkg/rbac"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// ReadinessCheck 返回 nil 表示依赖可用
type ReadinessCheck func(ctx context.Context) error

type Router struct {
	Engine *gin.Engine
}

func NewRouter(
	orderHandler *handler.OrderHandler,
	authHandler *handler.AuthHandler,
	jwtSecret string,
	ready ReadinessCheck,
	logger *zap.Logger,
) *Router {
	r := gin.New()
	r.Use(gin.Recovery(), otel.GinMiddleware(), TraceMiddleware(), AccessLogMiddleware(logger))

	// Health endpoints
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 1*time.Second)
		defer cancel()

		if ready != nil {
			if err := ready(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Public
	r.POST("/login", authHandler.Login)

	// Protected
	api := r.Group("/api")
	api.Use(AuthMiddleware(jwtSecret))
	{
		read := RequirePermission(rbac.PermissionReadOrder)

		api.POST("/orders", RequirePermission(rbac.PermissionCreateOrder), orderHandler.CreateOrder)
		api.GET("/orders", read, orderHandler.ListOrders)
		api.GET("/orders/:id", read, orderHandler.GetOrder)
		api.GET("/orders/:id/flow", read, orderHandler.GetFlowStatus)
		api.GET("/orders/:id/completion", read, orderHandler.CheckCompletion)
		api.GET("/orders/:id/meetings", read, orderHandler.PlanMeetings)

		api.POST("/orders/:id/milestones", RequirePermission(rbac.PermissionManageMilestones), orderHandler.CreateMilestones)
		api.POST("/orders/:id/status", RequirePermission(rbac.PermissionUpdateStatus), orderHandler.UpdateStatus)
		api.POST("/orders/:id/phases", RequirePermission(rbac.PermissionTrackPhase), orderHandler.StartPhase)
		api.POST("/orders/:id/phases/complete", RequirePermission(rbac.PermissionTrackPhase), orderHandler.CompletePhase)
		api.POST("/orders/:id/quality-checks", RequirePermission(rbac.PermissionQualityCheck), orderHandler.PerformQualityCheck)
		api.POST("/quality-checks/:id/complete", RequirePermission(rbac.PermissionQualityCheck), orderHandler.CompleteQualityCheck)
	}

	return &Router{Engine: r}
}

func (r *Router) Run(addr string) error {
	return r.Engine.Run(addr)
}
