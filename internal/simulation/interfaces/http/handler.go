// Package http exposes the simulation service over REST.
package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/marketsim/internal/simulation/application"
)

type Handler struct {
	sim      *application.SimulationApplicationService
	backtest *application.BacktestApplicationService
}

func NewHandler(sim *application.SimulationApplicationService, backtest *application.BacktestApplicationService) *Handler {
	return &Handler{sim: sim, backtest: backtest}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	sim := r.Group("/v1/simulation")
	{
		sim.POST("/sessions", h.CreateSession)
		sim.POST("/sessions/:id/orders", h.SubmitOrder)
		sim.DELETE("/sessions/:id/orders/:order_id", h.CancelOrder)
		sim.POST("/sessions/:id/bars", h.FeedBar)
		sim.GET("/sessions/:id/account", h.GetAccount)
		sim.GET("/sessions/:id/positions/:symbol", h.GetPosition)
		sim.GET("/sessions/:id/orders", h.GetOpenOrders)
		sim.POST("/sessions/:id/close", h.CloseSession)
		sim.GET("/executions", h.ListExecutions)
	}
	bt := r.Group("/v1/backtest")
	{
		bt.POST("", h.RunBacktest)
		bt.GET("/:task_id", h.GetBacktestTask)
		bt.GET("/:task_id/report", h.GetBacktestReport)
	}
}

func (h *Handler) CreateSession(c *gin.Context) {
	var cmd application.CreateSessionCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	dto, err := h.sim.CreateSession(c.Request.Context(), cmd)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, dto)
}

func (h *Handler) SubmitOrder(c *gin.Context) {
	var cmd application.SubmitOrderCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	dto, err := h.sim.SubmitOrder(c.Request.Context(), c.Param("id"), cmd)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, dto)
}

func (h *Handler) CancelOrder(c *gin.Context) {
	var uri struct {
		OrderID int64 `uri:"order_id" binding:"required"`
	}
	if err := c.ShouldBindUri(&uri); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.sim.CancelOrder(c.Request.Context(), c.Param("id"), uri.OrderID); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancel requested"})
}

func (h *Handler) FeedBar(c *gin.Context) {
	var cmd application.FeedBarCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.sim.FeedBar(c.Request.Context(), c.Param("id"), cmd); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "processed"})
}

func (h *Handler) GetAccount(c *gin.Context) {
	dto, err := h.sim.GetAccount(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto)
}

func (h *Handler) GetPosition(c *gin.Context) {
	dto, err := h.sim.GetPosition(c.Request.Context(), c.Param("id"), c.Param("symbol"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	if dto == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no open position"})
		return
	}
	c.JSON(http.StatusOK, dto)
}

func (h *Handler) GetOpenOrders(c *gin.Context) {
	dtos, err := h.sim.GetOpenOrders(c.Request.Context(), c.Param("id"), c.Query("symbol"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, dtos)
}

func (h *Handler) CloseSession(c *gin.Context) {
	dto, err := h.sim.CloseSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto)
}

func (h *Handler) ListExecutions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	dtos, err := h.sim.ListExecutions(c.Request.Context(), c.Query("symbol"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, dtos)
}

func (h *Handler) RunBacktest(c *gin.Context) {
	var cmd application.RunBacktestCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	taskID, err := h.backtest.RunBacktest(c.Request.Context(), cmd)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"task_id": taskID})
}

func (h *Handler) GetBacktestTask(c *gin.Context) {
	task, err := h.backtest.GetTask(c.Request.Context(), c.Param("task_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if task == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"task_id": task.TaskID, "status": task.Status})
}

func (h *Handler) GetBacktestReport(c *gin.Context) {
	dto, err := h.backtest.GetReport(c.Request.Context(), c.Param("task_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if dto == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "report not available"})
		return
	}
	c.JSON(http.StatusOK, dto)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, application.ErrSessionNotFound),
		errors.Is(err, application.ErrOrderNotFound):
		return http.StatusNotFound
	default:
		return http.StatusBadRequest
	}
}
