package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// RegisterRoutes configures all API routes, middleware, and error handlers
func RegisterRoutes(e *echo.Echo, h *Handlers, cfg ServerConfig) {
	// Set custom error handler for consistent JSON responses
	e.HTTPErrorHandler = NotFoundJSON()

	e.Use(SetJSONContentType)
	e.Use(SetNoCacheHeaders)

	// Optional API key authentication
	if cfg.APIKey != "" {
		e.Use(middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
			KeyLookup: "header:X-API-Key",
			Validator: func(key string, c echo.Context) (bool, error) {
				return key == cfg.APIKey, nil
			},
		}))
	}

	v1 := e.Group("/v1")
	v1.GET("/health", h.Health)
	v1.GET("/executions/recent", h.RecentExecutions)
	v1.GET("/swaps/recent", h.RecentSwaps)

	// Strategy CRUD with rate limiting: mutations reconcile the live watch
	// set, so a runaway client must not be able to thrash the connection.
	strategies := v1.Group("/strategies")
	strategies.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(5),
		Burst:     10,
		ExpiresIn: 2 * time.Minute,
	})))
	strategies.GET("", h.StrategiesList)
	strategies.POST("/:target/buys", h.BuyAdd)
	strategies.POST("/:target/sells", h.SellAdd)
	strategies.DELETE("/:target/buys/:name", h.BuyRemove)
	strategies.DELETE("/:target/sells/:name", h.SellRemove)

	// Catch-all route for 404 responses
	e.RouteNotFound("/*", func(c echo.Context) error {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found", Code: http.StatusNotFound})
	})
}
