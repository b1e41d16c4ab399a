package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/trade-ledger/internal/middleware"
	"github.com/trade-ledger/internal/service"
	"github.com/trade-ledger/pkg/response"
)

// TradeHandler handles trade ledger API requests
type TradeHandler struct {
	ledger *service.LedgerService
}

// NewTradeHandler creates a new TradeHandler
func NewTradeHandler(ledger *service.LedgerService) *TradeHandler {
	return &TradeHandler{ledger: ledger}
}

// CreateTrade handles manual trade entry
// POST /api/v1/trades
func (h *TradeHandler) CreateTrade(c *gin.Context) {
	var req service.CreateTradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	trade, err := h.ledger.Create(c.Request.Context(), middleware.GetUserID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Created(c, service.NewTradeView(trade))
}

// ListTrades handles listing trades; deleted=true lists the trash
// GET /api/v1/trades
func (h *TradeHandler) ListTrades(c *gin.Context) {
	var q service.ListTradesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	page, err := h.ledger.List(c.Request.Context(), middleware.GetUserID(c), q)
	if err != nil {
		respondError(c, err)
		return
	}

	response.SuccessPaginated(c, page.Trades, page.Total, page.Page, page.PageSize)
}

// GetTrade handles getting a single trade
// GET /api/v1/trades/:id
func (h *TradeHandler) GetTrade(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	includeDeleted := c.Query("include_deleted") == "true"
	trade, err := h.ledger.Get(c.Request.Context(), middleware.GetUserID(c), id, includeDeleted)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, service.NewTradeView(trade))
}

// UpdateTrade handles partial edits
// PATCH /api/v1/trades/:id
func (h *TradeHandler) UpdateTrade(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req service.UpdateTradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	trade, err := h.ledger.Update(c.Request.Context(), middleware.GetUserID(c), id, req)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, service.NewTradeView(trade))
}

// CloseTrade handles recording the exit of an open trade
// POST /api/v1/trades/:id/close
func (h *TradeHandler) CloseTrade(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req service.CloseTradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	trade, err := h.ledger.Close(c.Request.Context(), middleware.GetUserID(c), id, req)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, service.NewTradeView(trade))
}

// DeleteTrade moves a trade to the trash
// DELETE /api/v1/trades/:id
func (h *TradeHandler) DeleteTrade(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	if err := h.ledger.SoftDelete(c.Request.Context(), middleware.GetUserID(c), id); err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, gin.H{"id": id, "state": "deleted"})
}

// RestoreTrade brings a trade back from the trash
// POST /api/v1/trades/:id/restore
func (h *TradeHandler) RestoreTrade(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	trade, err := h.ledger.Restore(c.Request.Context(), middleware.GetUserID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, service.NewTradeView(trade))
}

// PurgeTrade permanently removes a trashed trade
// DELETE /api/v1/trades/:id/purge
func (h *TradeHandler) PurgeTrade(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	if err := h.ledger.Purge(c.Request.Context(), middleware.GetUserID(c), id); err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, gin.H{"id": id, "state": "purged"})
}

// RecomputeTrades re-derives the stored P&L of the user's closed trades
// POST /api/v1/trades/recompute
func (h *TradeHandler) RecomputeTrades(c *gin.Context) {
	res, err := h.ledger.Recompute(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, res)
}

// RegisterRoutes registers trade routes
func (h *TradeHandler) RegisterRoutes(rg *gin.RouterGroup, authMiddleware gin.HandlerFunc) {
	trades := rg.Group("/trades")
	trades.Use(authMiddleware)
	{
		trades.POST("", h.CreateTrade)
		trades.GET("", h.ListTrades)
		trades.POST("/recompute", h.RecomputeTrades)
		trades.GET("/:id", h.GetTrade)
		trades.PATCH("/:id", h.UpdateTrade)
		trades.DELETE("/:id", h.DeleteTrade)
		trades.POST("/:id/close", h.CloseTrade)
		trades.POST("/:id/restore", h.RestoreTrade)
		trades.DELETE("/:id/purge", h.PurgeTrade)
	}
}
