package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agencyos/rategate/pkg/models"
)

func TestViolationLogService_Record(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	service := NewViolationLogService(mockDB, nil, logger)

	t.Run("fills id and timestamp", func(t *testing.T) {
		event := &models.ViolationEvent{
			Principal: "demo:tok_x",
			Tier:      models.TierDemo,
			LimitType: models.LimitRequestsPerMinute,
		}

		mockDB.ExpectExec("INSERT INTO rate_limit_events").
			WithArgs(pgxmock.AnyArg(), "demo:tok_x", models.TierDemo, models.LimitRequestsPerMinute,
				0, 0, "", "", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, service.Record(context.Background(), event))
		assert.NotEqual(t, uuid.Nil, event.ID)
		assert.False(t, event.CreatedAt.IsZero())
		require.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("store failure wraps ErrStoreUnavailable", func(t *testing.T) {
		mockDB.ExpectExec("INSERT INTO rate_limit_events").
			WithArgs(pgxmock.AnyArg(), "", "", "", 0, 0, "", "", pgxmock.AnyArg()).
			WillReturnError(assert.AnError)

		err := service.Record(context.Background(), &models.ViolationEvent{})
		assert.ErrorIs(t, err, ErrStoreUnavailable)
	})
}

func TestViolationLogService_Recent(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	service := NewViolationLogService(mockDB, nil, logger)
	columns := []string{"id", "principal", "tier", "limit_type", "limit_value",
		"current_value", "endpoint", "client_ip", "created_at"}

	t.Run("returns newest events", func(t *testing.T) {
		id := uuid.New()
		created := time.Now().UTC()

		rows := pgxmock.NewRows(columns).
			AddRow(id, "user:u1", "community", models.LimitRequestsPerMinute, 10, 10, "/api/v1/authorize", "203.0.113.9", created)

		mockDB.ExpectQuery("SELECT (.+) FROM rate_limit_events").
			WithArgs(25).
			WillReturnRows(rows)

		events, err := service.Recent(context.Background(), 25)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, id, events[0].ID)
		assert.Equal(t, 10, events[0].LimitValue)
	})

	t.Run("non-positive limit falls back to the default", func(t *testing.T) {
		mockDB.ExpectQuery("SELECT (.+) FROM rate_limit_events").
			WithArgs(50).
			WillReturnRows(pgxmock.NewRows(columns))

		events, err := service.Recent(context.Background(), 0)
		require.NoError(t, err)
		assert.Empty(t, events)
	})
}
