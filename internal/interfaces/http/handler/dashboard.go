package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/crmdash/backend/internal/application/dashboard"
	"github.com/crmdash/backend/internal/infrastructure/logger"
	"github.com/crmdash/backend/internal/interfaces/http/dto"
)

// DashboardService is the application-layer surface the handler needs.
type DashboardService interface {
	GetDashboardMetrics(ctx context.Context, days int, forceRefresh bool) dashboard.DashboardMetrics
	GetDashboardMetricsRange(ctx context.Context, startMs, endMs int64, forceRefresh bool) dashboard.DashboardMetrics
	GetTrendData(ctx context.Context, days int) []dashboard.TrendPoint
	GetOpenDealsForecastByMonth(ctx context.Context) ([]dashboard.ForecastMonth, error)
	GetTodayActivitySummary(ctx context.Context) dashboard.ActivitySummary
	GetTopWonDeals(ctx context.Context, limit int) ([]dashboard.TopDeal, error)
	GetTopNewDeals(ctx context.Context, limit int) ([]dashboard.TopDeal, error)
	GetTopPaidDeals(ctx context.Context, limit int) ([]dashboard.TopDeal, error)
}

var _ DashboardService = (*dashboard.Service)(nil)

// DashboardHandler exposes the dashboard builders over HTTP. Handlers
// only parse and clamp query parameters; degradation and caching
// policy live in the application layer.
type DashboardHandler struct {
	BaseHandler
	service DashboardService
	logger  *zap.Logger
}

// NewDashboardHandler creates a new DashboardHandler
func NewDashboardHandler(service DashboardService, logger *zap.Logger) *DashboardHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardHandler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers the dashboard routes on the given group
func (h *DashboardHandler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/dashboard")
	{
		g.GET("/metrics", h.GetMetrics)
		g.GET("/trends", h.GetTrends)
		g.GET("/forecast", h.GetForecast)
		g.GET("/activity", h.GetActivity)

		deals := g.Group("/deals")
		{
			deals.GET("/top-won", h.GetTopWonDeals)
			deals.GET("/top-new", h.GetTopNewDeals)
			deals.GET("/top-paid", h.GetTopPaidDeals)
		}
	}
}

// GetMetrics returns the current/previous period metric pair.
// days=0 (or absent) means all time; start/end (epoch ms) select an
// explicit window instead; force_refresh bypasses the cache.
func (h *DashboardHandler) GetMetrics(c *gin.Context) {
	var req dto.PeriodRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BadRequest(c, "invalid query parameters: "+err.Error())
		return
	}

	if req.HasExplicitRange() {
		h.Success(c, h.service.GetDashboardMetricsRange(c.Request.Context(), req.Start, req.End, req.ForceRefresh))
		return
	}

	metrics := h.service.GetDashboardMetrics(c.Request.Context(), req.Days, req.ForceRefresh)
	h.Success(c, metrics)
}

// GetTrends returns the daily trend series for the requested window
func (h *DashboardHandler) GetTrends(c *gin.Context) {
	var req dto.PeriodRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BadRequest(c, "invalid query parameters: "+err.Error())
		return
	}

	points := h.service.GetTrendData(c.Request.Context(), req.Days)
	h.Success(c, points)
}

// GetForecast returns open-deal value grouped by close month
func (h *DashboardHandler) GetForecast(c *gin.Context) {
	months, err := h.service.GetOpenDealsForecastByMonth(c.Request.Context())
	if err != nil {
		logger.WithLogger(c.Request.Context(), h.logger).Error("forecast build failed", zap.Error(err))
		h.UpstreamError(c)
		return
	}

	h.Success(c, months)
}

// GetActivity returns today's activity summary
func (h *DashboardHandler) GetActivity(c *gin.Context) {
	summary := h.service.GetTodayActivitySummary(c.Request.Context())
	h.Success(c, summary)
}

// GetTopWonDeals returns the highest-value closed-won deals
func (h *DashboardHandler) GetTopWonDeals(c *gin.Context) {
	h.topDeals(c, "top won deals", h.service.GetTopWonDeals)
}

// GetTopNewDeals returns the most recently created deals
func (h *DashboardHandler) GetTopNewDeals(c *gin.Context) {
	h.topDeals(c, "top new deals", h.service.GetTopNewDeals)
}

// GetTopPaidDeals returns the highest-value deals across all stages
func (h *DashboardHandler) GetTopPaidDeals(c *gin.Context) {
	h.topDeals(c, "top paid deals", h.service.GetTopPaidDeals)
}

func (h *DashboardHandler) topDeals(c *gin.Context, name string, fetch func(context.Context, int) ([]dashboard.TopDeal, error)) {
	var req dto.LimitRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BadRequest(c, "invalid query parameters: "+err.Error())
		return
	}

	deals, err := fetch(c.Request.Context(), req.Limit)
	if err != nil {
		logger.WithLogger(c.Request.Context(), h.logger).Error("deal list build failed",
			zap.String("list", name),
			zap.Error(err))
		h.UpstreamError(c)
		return
	}

	h.Success(c, deals)
}
