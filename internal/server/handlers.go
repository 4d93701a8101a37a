package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"solana-copy-trader/internal/storage"
	"solana-copy-trader/internal/strategy"
)

// Handlers contains all dependencies for API endpoint handlers
type Handlers struct {
	Orchestrator *strategy.Orchestrator // Owns the strategy table and watch set
	Store        storage.StrategyStore  // Recent execution history (optional)
	WalletAddr   string                 // Operator wallet address, reported on /health
	DevMode      bool                   // Enable detailed error responses in development
	Logger       *logrus.Logger         // Structured logger
}

// err returns a standardized JSON error response
// In dev mode, includes additional error details for debugging
func (h *Handlers) err(c echo.Context, code int, msg string, details any) error {
	resp := ErrorResponse{Error: msg, Code: code}
	if h.DevMode && details != nil {
		resp.Details = details
	}
	return c.JSON(code, resp)
}

func (h *Handlers) withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 10 * time.Second
	}
	return context.WithTimeout(ctx, d)
}

// Health reports liveness, the operator wallet, and the active watch set
func (h *Handlers) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		OK:      true,
		Wallet:  h.WalletAddr,
		Targets: h.Orchestrator.Targets(),
	})
}

// StrategiesList returns the full strategy table
func (h *Handlers) StrategiesList(c echo.Context) error {
	return c.JSON(http.StatusOK, StrategiesResponse{Targets: h.Orchestrator.Snapshot()})
}

// BuyAdd registers a buy strategy for the target account
// Returns 409 when the (target, name) key already exists
func (h *Handlers) BuyAdd(c echo.Context) error {
	target := strings.TrimSpace(c.Param("target"))

	var req strategy.BuyStrategy
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}

	applied, err := h.Orchestrator.AddBuyStrategy(target, req)
	if err != nil {
		return h.err(c, http.StatusBadRequest, "invalid strategy", map[string]any{"reason": err.Error()})
	}
	if !applied {
		return h.err(c, http.StatusConflict, "strategy already exists", nil)
	}
	return c.JSON(http.StatusCreated, MutationResponse{Applied: true, Targets: h.Orchestrator.Targets()})
}

// SellAdd registers a sell strategy for the target account
func (h *Handlers) SellAdd(c echo.Context) error {
	target := strings.TrimSpace(c.Param("target"))

	var req strategy.SellStrategy
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}

	applied, err := h.Orchestrator.AddSellStrategy(target, req)
	if err != nil {
		return h.err(c, http.StatusBadRequest, "invalid strategy", map[string]any{"reason": err.Error()})
	}
	if !applied {
		return h.err(c, http.StatusConflict, "strategy already exists", nil)
	}
	return c.JSON(http.StatusCreated, MutationResponse{Applied: true, Targets: h.Orchestrator.Targets()})
}

// BuyRemove deletes a buy strategy; 404 when the key is absent
func (h *Handlers) BuyRemove(c echo.Context) error {
	target := strings.TrimSpace(c.Param("target"))
	name := strings.TrimSpace(c.Param("name"))

	if !h.Orchestrator.RemoveBuyStrategy(target, name) {
		return h.err(c, http.StatusNotFound, "strategy not found", nil)
	}
	return c.JSON(http.StatusOK, MutationResponse{Applied: true, Targets: h.Orchestrator.Targets()})
}

// SellRemove deletes a sell strategy; 404 when the key is absent
func (h *Handlers) SellRemove(c echo.Context) error {
	target := strings.TrimSpace(c.Param("target"))
	name := strings.TrimSpace(c.Param("name"))

	if !h.Orchestrator.RemoveSellStrategy(target, name) {
		return h.err(c, http.StatusNotFound, "strategy not found", nil)
	}
	return c.JSON(http.StatusOK, MutationResponse{Applied: true, Targets: h.Orchestrator.Targets()})
}

// RecentExecutions returns the most recent execution results with optional limit parameter
// Accepts limit query parameter (default: 100, range: 1-100)
func (h *Handlers) RecentExecutions(c echo.Context) error {
	if h.Store == nil {
		return h.err(c, http.StatusServiceUnavailable, "history not configured", nil)
	}

	limitStr := c.QueryParam("limit")
	limit := 100
	if limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil {
			return h.err(c, http.StatusBadRequest, "invalid limit", map[string]any{"limit": "must be an integer"})
		}
		limit = n
	}
	if limit < 1 || limit > 100 {
		return h.err(c, http.StatusBadRequest, "invalid limit", map[string]any{"limit": "min 1 max 100"})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	items, err := h.Store.RecentExecutions(ctx, int64(limit))
	if err != nil {
		h.Logger.WithError(err).Error("failed to read recent executions")
		return h.err(c, http.StatusInternalServerError, "failed to get executions", nil)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

// RecentSwaps returns the most recent swaps derived from watched targets
// Accepts limit query parameter (default: 100, range: 1-100)
func (h *Handlers) RecentSwaps(c echo.Context) error {
	if h.Store == nil {
		return h.err(c, http.StatusServiceUnavailable, "history not configured", nil)
	}

	limitStr := c.QueryParam("limit")
	limit := 100
	if limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil {
			return h.err(c, http.StatusBadRequest, "invalid limit", map[string]any{"limit": "must be an integer"})
		}
		limit = n
	}
	if limit < 1 || limit > 100 {
		return h.err(c, http.StatusBadRequest, "invalid limit", map[string]any{"limit": "min 1 max 100"})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	items, err := h.Store.RecentSwaps(ctx, int64(limit))
	if err != nil {
		h.Logger.WithError(err).Error("failed to read recent swaps")
		return h.err(c, http.StatusInternalServerError, "failed to get swaps", nil)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}
