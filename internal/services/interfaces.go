package services

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/agencyos/rategate/pkg/models"
)

// DatabaseQuerier is the slice of pgxpool.Pool the services use. pgxmock
// pools satisfy it, which is how the PostgreSQL-backed services are tested.
type DatabaseQuerier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// TierResolver maps a principal to the tier in effect for it right now.
type TierResolver interface {
	Resolve(ctx context.Context, principal models.Principal) (string, error)
}

// TierCatalog is the single source of truth for per-tier caps.
type TierCatalog interface {
	GetLimits(ctx context.Context, tier string) (*models.TierLimits, error)
}

// UsageCounter maintains the fixed-window counters per principal.
type UsageCounter interface {
	Increment(ctx context.Context, principal string, now time.Time, tokens int) error
	Counts(ctx context.Context, principal string, now time.Time) (map[models.WindowType]models.UsageWindow, error)
	AddTokens(ctx context.Context, principal string, now time.Time, delta int) error
}

// ViolationRecorder appends rejected-request records for analytics.
type ViolationRecorder interface {
	Record(ctx context.Context, event *models.ViolationEvent) error
}

// CreditLedger is the slice of the demo session ledger the evaluator needs:
// the credits precondition and the per-request debit.
type CreditLedger interface {
	Credits(ctx context.Context, sessionToken string) (int, error)
	ConsumeCredit(ctx context.Context, sessionToken string, amount int) error
}
