package server

import "solana-copy-trader/internal/strategy"

// ErrorResponse represents a standardized error response format
type ErrorResponse struct {
	Error   string `json:"error"`             // Human-readable error message
	Code    int    `json:"code"`              // HTTP status code
	Details any    `json:"details,omitempty"` // Additional error details (dev mode only)
}

// HealthResponse represents the health check response
type HealthResponse struct {
	OK      bool     `json:"ok"`      // Service health status
	Wallet  string   `json:"wallet"`  // Operator wallet address
	Targets []string `json:"targets"` // Currently watched target accounts
}

// StrategiesResponse is the full strategy table keyed by target account
type StrategiesResponse struct {
	Targets strategy.TableState `json:"targets"`
}

// MutationResponse reports the outcome of a strategy add/remove
type MutationResponse struct {
	Applied bool     `json:"applied"` // Whether the mutation changed the table
	Targets []string `json:"targets"` // Watch set after the mutation
}
