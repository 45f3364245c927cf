package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"orderflow/internal/model"
	"orderflow/internal/orderflow"
	"orderflow/internal/schedule"
	"orderflow/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type OrderHandler struct {
	svc    *orderflow.Service
	logger *zap.Logger
	now    func() time.Time
}

func NewOrderHandler(svc *orderflow.Service, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{svc: svc, logger: logger, now: time.Now}
}

func (h *OrderHandler) log(c *gin.Context) *zap.Logger {
	return logger.WithTrace(c.Request.Context(), h.logger)
}

func pathID(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req orderflow.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	order, err := h.svc.CreateOrder(c.Request.Context(), req)
	if err != nil {
		writeError(c, h.log(c), "CreateOrder", err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (h *OrderHandler) ListOrders(c *gin.Context) {
	filter := orderflow.OrderFilter{Status: model.OrderStatus(c.Query("status"))}
	if raw := c.Query("client_id"); raw != "" {
		clientID, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid client_id"})
			return
		}
		filter.ClientID = clientID
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		filter.Limit = limit
	}

	orders, err := h.svc.ListOrders(c.Request.Context(), filter)
	if err != nil {
		writeError(c, h.log(c), "ListOrders", err)
		return
	}
	if orders == nil {
		orders = []model.Order{}
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	order, err := h.svc.GetOrder(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.log(c), "GetOrder", err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) CreateMilestones(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	milestones, err := h.svc.CreateMilestones(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.log(c), "CreateMilestones", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"milestones": milestones})
}

func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var change orderflow.StatusChange
	if err := c.ShouldBindJSON(&change); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	order, err := h.svc.UpdateStatus(c.Request.Context(), id, change)
	if err != nil {
		writeError(c, h.log(c), "UpdateStatus", err)
		return
	}
	h.log(c).Info("UpdateStatus: success",
		zap.Int("order_id", id),
		zap.String("status", string(order.Status)),
		zap.Int("user_id", c.GetInt("user_id")),
	)
	c.JSON(http.StatusOK, order)
}

type startPhaseRequest struct {
	Phase model.OrderPhase `json:"phase"`
}

func (h *OrderHandler) StartPhase(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req startPhaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	record, err := h.svc.StartPhase(c.Request.Context(), id, req.Phase)
	if err != nil {
		writeError(c, h.log(c), "StartPhase", err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *OrderHandler) CompletePhase(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	record, err := h.svc.CompletePhase(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.log(c), "CompletePhase", err)
		return
	}
	c.JSON(http.StatusOK, record)
}

type qualityCheckRequest struct {
	CheckType model.QualityCheckType `json:"check_type"`
	Automated bool                   `json:"automated"`
}

func (h *OrderHandler) PerformQualityCheck(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req qualityCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	check, err := h.svc.PerformQualityCheck(c.Request.Context(), id, req.CheckType, req.Automated)
	if errors.Is(err, orderflow.ErrEvaluationFailed) && check != nil {
		// 记录已创建，保持 IN_PROGRESS，可稍后人工完成
		h.log(c).Warn("PerformQualityCheck: evaluation deferred", zap.Int("check_id", check.ID), zap.Error(err))
		c.JSON(http.StatusAccepted, gin.H{"check": check, "error": err.Error()})
		return
	}
	if err != nil {
		writeError(c, h.log(c), "PerformQualityCheck", err)
		return
	}
	c.JSON(http.StatusCreated, check)
}

func (h *OrderHandler) CompleteQualityCheck(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var result orderflow.EvaluationResult
	if err := c.ShouldBindJSON(&result); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	check, err := h.svc.CompleteQualityCheck(c.Request.Context(), id, result)
	if err != nil {
		writeError(c, h.log(c), "CompleteQualityCheck", err)
		return
	}
	c.JSON(http.StatusOK, check)
}

func (h *OrderHandler) GetFlowStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	status, err := h.svc.GetFlowStatus(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.log(c), "GetFlowStatus", err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *OrderHandler) CheckCompletion(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	done, err := h.svc.CheckOrderCompletionCriteria(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.log(c), "CheckCompletion", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order_id": id, "complete": done})
}

// PlanMeetings GET /api/orders/:id/meetings?pattern=weekly+friday&count=4
func (h *OrderHandler) PlanMeetings(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	count := 0
	if raw := c.Query("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid count"})
			return
		}
		count = n
	}

	order, err := h.svc.GetOrder(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.log(c), "PlanMeetings", err)
		return
	}
	meetings, err := schedule.PlanMeetings(order.ID, order.Title+" review", c.DefaultQuery("pattern", "weekly friday"), h.now(), count)
	if err != nil {
		writeError(c, h.log(c), "PlanMeetings", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"meetings": meetings})
}
