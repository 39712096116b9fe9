package database

import (
	"context"
	"fmt"
)

const schemaRateLimits = `
CREATE TABLE IF NOT EXISTS rate_limits (
    tier TEXT PRIMARY KEY,
    requests_per_minute INTEGER,
    requests_per_hour INTEGER,
    requests_per_day INTEGER,
    max_tokens_per_request INTEGER,
    max_tokens_per_day INTEGER,
    max_documents INTEGER,
    max_storage_mb INTEGER,
    max_concurrent_requests INTEGER,
    max_agents INTEGER,
    memory_enabled BOOLEAN NOT NULL DEFAULT false,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

const schemaUsageWindows = `
CREATE TABLE IF NOT EXISTS usage_windows (
    principal TEXT NOT NULL,
    window_start TIMESTAMPTZ NOT NULL,
    window_type TEXT NOT NULL CHECK (window_type IN ('minute', 'hour', 'day')),
    request_count INTEGER NOT NULL DEFAULT 0,
    token_count INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (principal, window_start, window_type)
);
CREATE INDEX IF NOT EXISTS idx_usage_windows_start ON usage_windows(window_start);
`

const schemaRateLimitEvents = `
CREATE TABLE IF NOT EXISTS rate_limit_events (
    id UUID PRIMARY KEY,
    principal TEXT NOT NULL,
    tier TEXT NOT NULL,
    limit_type TEXT NOT NULL,
    limit_value INTEGER NOT NULL DEFAULT 0,
    current_value INTEGER NOT NULL DEFAULT 0,
    endpoint TEXT NOT NULL DEFAULT '',
    client_ip TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_rate_limit_events_created ON rate_limit_events(created_at);
CREATE INDEX IF NOT EXISTS idx_rate_limit_events_principal ON rate_limit_events(principal, created_at);
`

const schemaDemoSessions = `
CREATE TABLE IF NOT EXISTS demo_sessions (
    id UUID PRIMARY KEY,
    session_token TEXT NOT NULL UNIQUE,
    credits_remaining INTEGER NOT NULL DEFAULT 0 CHECK (credits_remaining >= 0),
    credits_used INTEGER NOT NULL DEFAULT 0,
    referral_code TEXT UNIQUE,
    referred_by_code TEXT,
    referral_credits_earned INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    last_activity_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    expires_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_demo_sessions_expires ON demo_sessions(expires_at);
`

const schemaDemoReferrals = `
CREATE TABLE IF NOT EXISTS demo_referrals (
    id UUID PRIMARY KEY,
    referral_code TEXT NOT NULL,
    referrer_session_id UUID NOT NULL REFERENCES demo_sessions(id) ON DELETE CASCADE,
    clicked_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    converted_user_id UUID,
    converted_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_demo_referrals_code ON demo_referrals(referral_code);
`

// allSchemas is the ordered DDL for the tables this service owns. The users
// and byok_credentials tables belong to the account service and are only read
// here, so they are not part of this list.
var allSchemas = []string{
	schemaRateLimits,
	schemaUsageWindows,
	schemaRateLimitEvents,
	schemaDemoSessions,
	schemaDemoReferrals,
}

// Migrate applies the schema idempotently. Safe to run on every startup.
func (d *Database) Migrate(ctx context.Context) error {
	for _, ddl := range allSchemas {
		if _, err := d.PG.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	d.logger.Debug("Database schema up to date")
	return nil
}
