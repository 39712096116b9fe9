package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidTier(t *testing.T) {
	for _, tier := range []string{TierCommunity, TierSubscriber, TierPremium, TierLifetime, TierBYOK, TierAdmin, TierDemo} {
		assert.True(t, IsValidTier(tier), tier)
	}

	assert.False(t, IsValidTier(""))
	assert.False(t, IsValidTier("enterprise"))
	assert.False(t, IsValidTier("Admin"))
}

func TestUnderCap(t *testing.T) {
	tests := []struct {
		name    string
		current int
		cap     *int
		want    bool
	}{
		{"nil cap never denies", 1000000, nil, true},
		{"below cap", 4, Cap(5), true},
		{"at cap", 5, Cap(5), false},
		{"above cap", 6, Cap(5), false},
		{"zero cap denies everything", 0, Cap(0), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UnderCap(tt.current, tt.cap))
		})
	}
}

func TestCapString(t *testing.T) {
	assert.Equal(t, "unlimited", CapString(nil))
	assert.Equal(t, "60", CapString(Cap(60)))
	assert.Equal(t, "0", CapString(Cap(0)))
}

func TestTierLimits_Unlimited(t *testing.T) {
	// Non-window caps do not count against unlimited.
	limits := &TierLimits{
		Tier:         TierAdmin,
		MaxDocuments: Cap(100),
	}
	assert.True(t, limits.Unlimited())

	limits.RequestsPerHour = Cap(500)
	assert.False(t, limits.Unlimited())

	limits.RequestsPerHour = nil
	limits.MaxTokensPerDay = Cap(100000)
	assert.False(t, limits.Unlimited())
}

func TestTierLimits_RequestCap(t *testing.T) {
	limits := &TierLimits{
		RequestsPerMinute: Cap(10),
		RequestsPerDay:    Cap(500),
	}

	assert.Equal(t, 10, *limits.RequestCap(WindowMinute))
	assert.Nil(t, limits.RequestCap(WindowHour))
	assert.Equal(t, 500, *limits.RequestCap(WindowDay))
	assert.Nil(t, limits.RequestCap(WindowType("week")))
}
