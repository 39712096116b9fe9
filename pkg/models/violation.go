package models

import (
	"time"

	"github.com/google/uuid"
)

// Limit types reported on a denied check.
const (
	LimitRequestsPerMinute = "requests_per_minute"
	LimitRequestsPerHour   = "requests_per_hour"
	LimitRequestsPerDay    = "requests_per_day"
	LimitTokensPerRequest  = "max_tokens_per_request"
	LimitTokensPerDay      = "max_tokens_per_day"
	LimitCreditsExhausted  = "credits_exhausted"
)

// RequestContext carries the per-request inputs the evaluator needs beyond
// the principal itself.
type RequestContext struct {
	Endpoint        string `json:"endpoint"`
	ClientIP        string `json:"client_ip"`
	EstimatedTokens int    `json:"estimated_tokens"`
}

// Decision is the outcome of a rate-limit check. A denial is a normal result,
// never an error. For denials the limit metadata describes the tightest cap
// that was hit and when it resets.
type Decision struct {
	Allowed    bool      `json:"allowed"`
	Tier       string    `json:"tier"`
	LimitType  string    `json:"limit_type,omitempty"`
	LimitValue int       `json:"limit_value,omitempty"`
	Current    int       `json:"current_value,omitempty"`
	ResetsAt   time.Time `json:"resets_at,omitempty"`
}

// ViolationEvent is an immutable record of one rejected request, kept for
// audit and analytics off the hot path.
type ViolationEvent struct {
	ID         uuid.UUID `json:"id" db:"id"`
	Principal  string    `json:"principal" db:"principal"`
	Tier       string    `json:"tier" db:"tier"`
	LimitType  string    `json:"limit_type" db:"limit_type"`
	LimitValue int       `json:"limit_value" db:"limit_value"`
	Current    int       `json:"current_value" db:"current_value"`
	Endpoint   string    `json:"endpoint" db:"endpoint"`
	ClientIP   string    `json:"client_ip" db:"client_ip"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// RateLimitInfo backs the X-RateLimit-* response headers.
type RateLimitInfo struct {
	Limit     int   `json:"limit"`
	Remaining int   `json:"remaining"`
	ResetTime int64 `json:"reset_time"`
}
