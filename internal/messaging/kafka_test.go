package messaging

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agencyos/rategate/internal/config"
	"github.com/agencyos/rategate/pkg/models"
)

func TestViolationMessage_Serialization(t *testing.T) {
	event := &models.ViolationEvent{
		ID:         uuid.New(),
		Principal:  "demo:tok_x",
		Tier:       models.TierDemo,
		LimitType:  models.LimitRequestsPerMinute,
		LimitValue: 3,
		Current:    3,
		Endpoint:   "/api/v1/authorize",
		ClientIP:   "203.0.113.9",
		CreatedAt:  time.Now().UTC(),
	}

	msg := ViolationMessage{Event: event, Timestamp: time.Now().UTC()}

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded ViolationMessage
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, event.ID, decoded.Event.ID)
	assert.Equal(t, event.Principal, decoded.Event.Principal)
	assert.Equal(t, event.LimitType, decoded.Event.LimitType)
	assert.Equal(t, event.LimitValue, decoded.Event.LimitValue)
}

func TestMessageBus_Disabled(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	cfg := &config.Config{}
	cfg.Kafka.Enabled = false

	bus, err := NewMessageBus(cfg, logger)
	require.NoError(t, err)

	// A disabled bus drops publishes instead of erroring.
	err = bus.PublishViolation(context.Background(), &models.ViolationEvent{Principal: "user:u1"})
	assert.NoError(t, err)

	bus.Close()
}

func TestMessageBus_EnabledWithoutBrokers(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	cfg := &config.Config{}
	cfg.Kafka.Enabled = true

	_, err := NewMessageBus(cfg, logger)
	assert.Error(t, err)
}
