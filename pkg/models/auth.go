package models

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type JWTClaims struct {
	UserID  uuid.UUID `json:"user_id"`
	IsAdmin bool      `json:"is_admin,omitempty"`
	Tier    string    `json:"tier"` // stored subscription tier, not the effective one
	jwt.RegisteredClaims
}

// Identity is everything the tier resolver needs about an authenticated user,
// loaded explicitly so resolution stays a pure function of its inputs.
type Identity struct {
	UserID           uuid.UUID `json:"user_id" db:"id"`
	IsAdmin          bool      `json:"is_admin" db:"is_admin"`
	SubscriptionTier string    `json:"subscription_tier" db:"subscription_tier"` // "" = unset
	ActiveBYOKKeys   int       `json:"active_byok_keys" db:"active_byok_keys"`
}
