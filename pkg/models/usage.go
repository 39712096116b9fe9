package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// WindowType is a fixed counting granularity. Window starts are always
// truncated to the start of the granularity in UTC.
type WindowType string

const (
	WindowMinute WindowType = "minute"
	WindowHour   WindowType = "hour"
	WindowDay    WindowType = "day"
)

// WindowTypes lists the granularities in ascending order. Checks run in this
// order so the tightest window is reported as the cause of a denial.
var WindowTypes = []WindowType{WindowMinute, WindowHour, WindowDay}

// Duration returns the length of one window of this granularity.
func (w WindowType) Duration() time.Duration {
	switch w {
	case WindowMinute:
		return time.Minute
	case WindowHour:
		return time.Hour
	case WindowDay:
		return 24 * time.Hour
	default:
		return 0
	}
}

// Truncate floors t to the start of the window containing it, in UTC.
func (w WindowType) Truncate(t time.Time) time.Time {
	return t.UTC().Truncate(w.Duration())
}

// End returns the instant the window containing t rolls over.
func (w WindowType) End(t time.Time) time.Time {
	return w.Truncate(t).Add(w.Duration())
}

// LimitType names the cap that caused a denial.
func (w WindowType) LimitType() string {
	switch w {
	case WindowMinute:
		return LimitRequestsPerMinute
	case WindowHour:
		return LimitRequestsPerHour
	case WindowDay:
		return LimitRequestsPerDay
	default:
		return ""
	}
}

// PrincipalKind discriminates the two identity kinds a check can run for.
type PrincipalKind string

const (
	PrincipalUser PrincipalKind = "user"
	PrincipalDemo PrincipalKind = "demo"
)

// Principal is the entity being rate limited: an authenticated user or an
// anonymous demo session.
type Principal struct {
	Kind PrincipalKind `json:"kind"`
	ID   string        `json:"id"` // user id or demo session token
}

func UserPrincipal(userID uuid.UUID) Principal {
	return Principal{Kind: PrincipalUser, ID: userID.String()}
}

func DemoPrincipal(sessionToken string) Principal {
	return Principal{Kind: PrincipalDemo, ID: sessionToken}
}

// Key is the storage key for counter rows, unique across both kinds.
func (p Principal) Key() string {
	return fmt.Sprintf("%s:%s", p.Kind, p.ID)
}

// UsageWindow is one counter row: unique per (principal, window_start,
// window_type), created lazily and mutated only through the atomic increment.
type UsageWindow struct {
	Principal    string     `json:"principal" db:"principal"`
	WindowStart  time.Time  `json:"window_start" db:"window_start"`
	WindowType   WindowType `json:"window_type" db:"window_type"`
	RequestCount int        `json:"request_count" db:"request_count"`
	TokenCount   int        `json:"token_count" db:"token_count"`
}

// UsageReport is the caller-facing snapshot of current consumption.
type UsageReport struct {
	Tier             string    `json:"tier"`
	RequestsThisMin  int       `json:"requests_this_minute"`
	RequestsThisHour int       `json:"requests_this_hour"`
	RequestsToday    int       `json:"requests_today"`
	TokensToday      int       `json:"tokens_today"`
	LimitPerMinute   *int      `json:"limit_per_minute"`
	LimitPerHour     *int      `json:"limit_per_hour"`
	LimitPerDay      *int      `json:"limit_per_day"`
	TokenLimitPerDay *int      `json:"token_limit_per_day"`
	ResetMinute      time.Time `json:"reset_minute"`
	ResetHour        time.Time `json:"reset_hour"`
	ResetDay         time.Time `json:"reset_day"`
}
