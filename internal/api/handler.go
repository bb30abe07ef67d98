package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	alertdomain "github.com/serkee5559/coin-portal/internal/domain/alert"
	"github.com/serkee5559/coin-portal/internal/domain/market"
	"github.com/serkee5559/coin-portal/internal/usecase/broadcast"
	"github.com/serkee5559/coin-portal/pkg/errors"
	"github.com/serkee5559/coin-portal/pkg/logger"
)

const (
	_intervalQuery  = "interval"
	_countQuery     = "count"
	_limitQuery     = "limit"
	_defaultCandles = 50
)

// Handler serves the REST and websocket surface over the in-memory pipeline.
type Handler struct {
	store       market.StateStore
	indicators  market.IndicatorReader
	alerts      alertdomain.Usecase
	broadcaster *broadcast.Broadcaster

	logger logger.Interface
}

// NewHandler creates the API handler.
func NewHandler(
	store market.StateStore,
	indicators market.IndicatorReader,
	alerts alertdomain.Usecase,
	broadcaster *broadcast.Broadcaster,
	logger logger.Interface,
) *Handler {
	return &Handler{
		store:       store,
		indicators:  indicators,
		alerts:      alerts,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// InitRoutes builds the router.
func (h *Handler) InitRoutes() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws/market", h.MarketStream)

	api := r.Group("/api/v1")
	{
		api.GET("/market-summary", h.MarketSummary)
		api.GET("/market-summary/:symbol", h.MarketDetail)
		api.GET("/indicators/:symbol", h.Indicators)
		api.GET("/candles/:symbol", h.Candles)

		api.GET("/alerts", h.ListAlerts)
		api.POST("/alerts", h.CreateAlert)
		api.DELETE("/alerts/:id", h.DeleteAlert)
		api.PATCH("/alerts/:id/toggle", h.ToggleAlert)
		api.GET("/alerts/history", h.AlertHistory)
	}

	return r
}

// Health reports liveness and feed attachment.
func (h *Handler) Health(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"feed_connected": h.store.Connected(),
		"instruments":    len(h.store.GetAll()),
	})
}

// MarketSummary returns the latest state of every instrument.
func (h *Handler) MarketSummary(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"feed_connected": h.store.Connected(),
		"data":           h.store.GetAll(),
	})
}

// MarketDetail returns one instrument.
func (h *Handler) MarketDetail(ctx *gin.Context) {
	inst, err := h.store.GetOne(ctx.Param("symbol"))
	if err != nil {
		h.abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, inst)
}

// Indicators returns the indicator snapshot for one symbol and interval.
func (h *Handler) Indicators(ctx *gin.Context) {
	snapshot, err := h.indicators.Snapshot(ctx.Param("symbol"), ctx.DefaultQuery(_intervalQuery, "1m"))
	if err != nil {
		h.abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, snapshot)
}

// Candles returns recent candles for one symbol and interval.
func (h *Handler) Candles(ctx *gin.Context) {
	count, err := strconv.Atoi(ctx.DefaultQuery(_countQuery, strconv.Itoa(_defaultCandles)))
	if err != nil || count <= 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "count must be a positive integer"})
		return
	}

	symbol := ctx.Param("symbol")
	intervalName := ctx.DefaultQuery(_intervalQuery, "1m")
	candles, err := h.indicators.Candles(symbol, intervalName, count)
	if err != nil {
		h.abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"symbol":   symbol,
		"interval": intervalName,
		"data":     candles,
	})
}

// ListAlerts returns every alert rule.
func (h *Handler) ListAlerts(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"data": h.alerts.ListRules(ctx.Request.Context())})
}

// CreateAlert registers a new alert rule.
func (h *Handler) CreateAlert(ctx *gin.Context) {
	var input alertdomain.RuleInput
	if err := ctx.ShouldBindJSON(&input); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rule, err := h.alerts.CreateRule(ctx.Request.Context(), input)
	if err != nil {
		h.abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, rule)
}

// DeleteAlert removes an alert rule.
func (h *Handler) DeleteAlert(ctx *gin.Context) {
	if err := h.alerts.DeleteRule(ctx.Request.Context(), ctx.Param("id")); err != nil {
		h.abortWithError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

// ToggleAlert flips a rule's active flag.
func (h *Handler) ToggleAlert(ctx *gin.Context) {
	rule, err := h.alerts.ToggleRule(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		h.abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, rule)
}

// AlertHistory returns recent alert events, newest first.
func (h *Handler) AlertHistory(ctx *gin.Context) {
	limit, err := strconv.Atoi(ctx.DefaultQuery(_limitQuery, "50"))
	if err != nil || limit <= 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}

	events, err := h.alerts.ListHistory(ctx.Request.Context(), limit)
	if err != nil {
		h.abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"data": events})
}

// abortWithError maps domain error codes to HTTP statuses.
func (h *Handler) abortWithError(ctx *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.ErrorCodeEquals(err, string(errors.ErrUnknownInstrument)),
		errors.ErrorCodeEquals(err, string(errors.ErrUnknownRule)),
		errors.ErrorCodeEquals(err, string(errors.GeneralNotFoundError)):
		status = http.StatusNotFound
	case errors.ErrorCodeEquals(err, string(errors.ErrInvalidRule)),
		errors.ErrorCodeEquals(err, string(errors.ErrUnknownInterval)),
		errors.ErrorCodeEquals(err, string(errors.GeneralBadRequestError)):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		h.logger.ErrorContext(ctx.Request.Context(), err, logger.Field{
			Key:   "action",
			Value: "abortWithError",
		}, logger.Field{
			Key:   "path",
			Value: ctx.FullPath(),
		})
	}
	ctx.JSON(status, gin.H{"error": err.Error()})
}
