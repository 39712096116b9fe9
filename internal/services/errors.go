package services

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrTierNotFound means the resolved tier has no catalog row. In a
	// correctly seeded system this is a configuration error, not a user error.
	ErrTierNotFound = errors.New("tier not found")

	// ErrSessionNotFound covers both unknown and expired demo sessions;
	// expiry is lazy, so an expired row reads as absent.
	ErrSessionNotFound = errors.New("demo session not found")

	// ErrInsufficientCredits is returned when a demo credit debit would go
	// below zero.
	ErrInsufficientCredits = errors.New("insufficient demo credits")

	// ErrReferralCodeNotFound means no live session owns the referral code.
	ErrReferralCodeNotFound = errors.New("referral code not found")

	// ErrReferralRetriesExhausted is returned when referral code generation
	// keeps colliding. Practically unreachable given the code space.
	ErrReferralRetriesExhausted = errors.New("referral code generation retries exhausted")

	// ErrStoreUnavailable wraps transient store failures so the gateway can
	// apply its fail-open/fail-closed policy. The evaluator never turns a
	// store error into a silent Allowed.
	ErrStoreUnavailable = errors.New("rate limit store unavailable")
)

func storeError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}

// isUniqueViolation checks for a PostgreSQL unique constraint violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
