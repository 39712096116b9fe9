package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestWindowType_Truncate(t *testing.T) {
	instant := time.Date(2026, 3, 15, 14, 37, 42, 123456789, time.UTC)

	assert.Equal(t, time.Date(2026, 3, 15, 14, 37, 0, 0, time.UTC), WindowMinute.Truncate(instant))
	assert.Equal(t, time.Date(2026, 3, 15, 14, 0, 0, 0, time.UTC), WindowHour.Truncate(instant))
	assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), WindowDay.Truncate(instant))
}

func TestWindowType_TruncateNormalizesToUTC(t *testing.T) {
	// 23:30 in UTC+5 is 18:30 UTC; the day window must be the UTC day.
	loc := time.FixedZone("UTC+5", 5*3600)
	instant := time.Date(2026, 3, 15, 23, 30, 0, 0, loc)

	day := WindowDay.Truncate(instant)
	assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), day)
	assert.Equal(t, time.UTC, day.Location())
}

func TestWindowType_End(t *testing.T) {
	instant := time.Date(2026, 3, 15, 14, 37, 42, 0, time.UTC)

	assert.Equal(t, time.Date(2026, 3, 15, 14, 38, 0, 0, time.UTC), WindowMinute.End(instant))
	assert.Equal(t, time.Date(2026, 3, 15, 15, 0, 0, 0, time.UTC), WindowHour.End(instant))
	assert.Equal(t, time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC), WindowDay.End(instant))
}

func TestWindowType_LimitType(t *testing.T) {
	assert.Equal(t, LimitRequestsPerMinute, WindowMinute.LimitType())
	assert.Equal(t, LimitRequestsPerHour, WindowHour.LimitType())
	assert.Equal(t, LimitRequestsPerDay, WindowDay.LimitType())
}

func TestWindowTypes_Order(t *testing.T) {
	// Checks run tightest window first.
	assert.Equal(t, []WindowType{WindowMinute, WindowHour, WindowDay}, WindowTypes)
}

func TestPrincipal_Key(t *testing.T) {
	userID := uuid.MustParse("a1b2c3d4-0000-0000-0000-000000000001")

	assert.Equal(t, "user:a1b2c3d4-0000-0000-0000-000000000001", UserPrincipal(userID).Key())
	assert.Equal(t, "demo:tok_abc123", DemoPrincipal("tok_abc123").Key())

	// Keys from different kinds never collide even with equal ids.
	assert.NotEqual(t, Principal{Kind: PrincipalUser, ID: "x"}.Key(), Principal{Kind: PrincipalDemo, ID: "x"}.Key())
}

func TestDemoSession_Expired(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	session := &DemoSession{ExpiresAt: now}

	assert.True(t, session.Expired(now), "expiry instant itself is expired")
	assert.True(t, session.Expired(now.Add(time.Second)))
	assert.False(t, session.Expired(now.Add(-time.Second)))
}
