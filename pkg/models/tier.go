package models

import (
	"strconv"
	"time"
)

// Tier names known to the platform. Every principal resolves to exactly one
// of these before a rate-limit check runs.
const (
	TierCommunity  = "community"
	TierSubscriber = "subscriber"
	TierPremium    = "premium"
	TierLifetime   = "lifetime"
	TierBYOK       = "byok"
	TierAdmin      = "admin"
	TierDemo       = "demo"
)

// IsValidTier checks if a tier name is one of the known tiers.
func IsValidTier(tier string) bool {
	switch tier {
	case TierCommunity, TierSubscriber, TierPremium, TierLifetime, TierBYOK, TierAdmin, TierDemo:
		return true
	default:
		return false
	}
}

// TierLimits holds the consumption caps for a single tier. A nil cap means
// unlimited; callers must go through UnderCap rather than comparing against
// a numeric sentinel.
type TierLimits struct {
	Tier                string    `json:"tier" db:"tier"`
	RequestsPerMinute   *int      `json:"requests_per_minute" db:"requests_per_minute"`
	RequestsPerHour     *int      `json:"requests_per_hour" db:"requests_per_hour"`
	RequestsPerDay      *int      `json:"requests_per_day" db:"requests_per_day"`
	MaxTokensPerRequest *int      `json:"max_tokens_per_request" db:"max_tokens_per_request"`
	MaxTokensPerDay     *int      `json:"max_tokens_per_day" db:"max_tokens_per_day"`
	MaxDocuments        *int      `json:"max_documents" db:"max_documents"`
	MaxStorageMB        *int      `json:"max_storage_mb" db:"max_storage_mb"`
	MaxConcurrent       *int      `json:"max_concurrent_requests" db:"max_concurrent_requests"`
	MaxAgents           *int      `json:"max_agents" db:"max_agents"`
	MemoryEnabled       bool      `json:"memory_enabled" db:"memory_enabled"`
	UpdatedAt           time.Time `json:"updated_at" db:"updated_at"`
}

// Unlimited reports whether every window cap on the tier is absent, meaning
// window counters never need to be consulted or written for it.
func (l *TierLimits) Unlimited() bool {
	return l.RequestsPerMinute == nil && l.RequestsPerHour == nil && l.RequestsPerDay == nil &&
		l.MaxTokensPerRequest == nil && l.MaxTokensPerDay == nil
}

// RequestCap returns the request cap for a window granularity.
func (l *TierLimits) RequestCap(w WindowType) *int {
	switch w {
	case WindowMinute:
		return l.RequestsPerMinute
	case WindowHour:
		return l.RequestsPerHour
	case WindowDay:
		return l.RequestsPerDay
	default:
		return nil
	}
}

// Cap wraps an integer literal as a finite cap. Mostly used by seeds and tests.
func Cap(n int) *int {
	return &n
}

// UnderCap reports whether current consumption is still below cap. A nil cap
// is unlimited and never denies. This is the single place the nil-means-infinity
// convention is interpreted.
func UnderCap(current int, cap *int) bool {
	if cap == nil {
		return true
	}
	return current < *cap
}

// CapString renders a cap for logs and responses.
func CapString(cap *int) string {
	if cap == nil {
		return "unlimited"
	}
	return strconv.Itoa(*cap)
}
