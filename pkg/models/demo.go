package models

import (
	"time"

	"github.com/google/uuid"
)

// DemoSession is an ephemeral anonymous principal keyed by an opaque session
// token. Sessions past ExpiresAt are treated as not found by all ledger
// operations and are physically deleted by the retention sweeper.
type DemoSession struct {
	ID                    uuid.UUID `json:"id" db:"id"`
	SessionToken          string    `json:"session_token" db:"session_token"`
	CreditsRemaining      int       `json:"credits_remaining" db:"credits_remaining"`
	CreditsUsed           int       `json:"credits_used" db:"credits_used"`
	ReferralCode          *string   `json:"referral_code,omitempty" db:"referral_code"`
	ReferredByCode        *string   `json:"referred_by_code,omitempty" db:"referred_by_code"`
	ReferralCreditsEarned int       `json:"referral_credits_earned" db:"referral_credits_earned"`
	CreatedAt             time.Time `json:"created_at" db:"created_at"`
	LastActivityAt        time.Time `json:"last_activity_at" db:"last_activity_at"`
	ExpiresAt             time.Time `json:"expires_at" db:"expires_at"`
}

// Expired reports whether the session is past its TTL at the given instant.
func (s *DemoSession) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// DemoReferral records one clicked referral. The conversion fields are set
// exactly once when a signup is attributed to the click.
type DemoReferral struct {
	ID                uuid.UUID  `json:"id" db:"id"`
	ReferralCode      string     `json:"referral_code" db:"referral_code"`
	ReferrerSessionID uuid.UUID  `json:"referrer_session_id" db:"referrer_session_id"`
	ClickedAt         time.Time  `json:"clicked_at" db:"clicked_at"`
	ConvertedUserID   *uuid.UUID `json:"converted_user_id,omitempty" db:"converted_user_id"`
	ConvertedAt       *time.Time `json:"converted_at,omitempty" db:"converted_at"`
}

// Converted reports whether the referral has been attributed to a signup.
func (r *DemoReferral) Converted() bool {
	return r.ConvertedAt != nil
}
