package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/trade-ledger/internal/instrument"
	"github.com/trade-ledger/internal/middleware"
	"github.com/trade-ledger/internal/service"
	"github.com/trade-ledger/pkg/response"
)

// StatsHandler serves statistics, user settings and the instrument table
type StatsHandler struct {
	stats    *service.StatsService
	settings *service.SettingsService
}

// NewStatsHandler creates a new StatsHandler
func NewStatsHandler(stats *service.StatsService, settings *service.SettingsService) *StatsHandler {
	return &StatsHandler{stats: stats, settings: settings}
}

// GetStats returns the statistics snapshot of the user's closed trades
// GET /api/v1/stats
func (h *StatsHandler) GetStats(c *gin.Context) {
	var q service.StatsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	snap, err := h.stats.Snapshot(c.Request.Context(), middleware.GetUserID(c), q)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, snap)
}

// GetSettings returns the user's ledger settings
// GET /api/v1/settings
func (h *StatsHandler) GetSettings(c *gin.Context) {
	settings, err := h.settings.GetSettings(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, settings)
}

// UpdateSettings saves the user's ledger settings
// PUT /api/v1/settings
func (h *StatsHandler) UpdateSettings(c *gin.Context) {
	var req service.UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	settings, err := h.settings.UpdateSettings(c.Request.Context(), middleware.GetUserID(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, settings)
}

// GetInstruments lists the contract specifications P&L is computed with
// GET /api/v1/instruments
func (h *StatsHandler) GetInstruments(c *gin.Context) {
	response.Success(c, instrument.List())
}

// RegisterRoutes registers stats, settings and instrument routes
func (h *StatsHandler) RegisterRoutes(rg *gin.RouterGroup, authMiddleware gin.HandlerFunc) {
	rg.GET("/stats", authMiddleware, h.GetStats)
	rg.GET("/settings", authMiddleware, h.GetSettings)
	rg.PUT("/settings", authMiddleware, h.UpdateSettings)
	rg.GET("/instruments", h.GetInstruments)
}
