package services

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agencyos/rategate/internal/config"
)

func TestRetentionSweeper_Sweep(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	cfg := config.RetentionConfig{
		SweepInterval:   time.Hour,
		UsageWindows:    168 * time.Hour,
		ViolationEvents: 720 * time.Hour,
	}

	counter := NewUsageCounterService(mockDB, logger)
	violations := NewViolationLogService(mockDB, nil, logger)
	demos := NewDemoSessionService(mockDB, config.DemoConfig{}, logger)

	now := time.Date(2026, 3, 15, 3, 0, 0, 0, time.UTC)
	demos.now = func() time.Time { return now }

	sweeper := NewRetentionSweeper(cfg, counter, violations, demos, nil, logger)
	sweeper.now = func() time.Time { return now }

	t.Run("purges all three tables with retention cutoffs", func(t *testing.T) {
		mockDB.ExpectExec("DELETE FROM usage_windows").
			WithArgs(now.Add(-cfg.UsageWindows)).
			WillReturnResult(pgxmock.NewResult("DELETE", 100))
		mockDB.ExpectExec("DELETE FROM rate_limit_events").
			WithArgs(now.Add(-cfg.ViolationEvents)).
			WillReturnResult(pgxmock.NewResult("DELETE", 20))
		mockDB.ExpectExec("DELETE FROM demo_sessions").
			WithArgs(now).
			WillReturnResult(pgxmock.NewResult("DELETE", 3))

		sweeper.Sweep(context.Background())
		require.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("one failed purge does not stop the others", func(t *testing.T) {
		mockDB.ExpectExec("DELETE FROM usage_windows").
			WithArgs(now.Add(-cfg.UsageWindows)).
			WillReturnError(assert.AnError)
		mockDB.ExpectExec("DELETE FROM rate_limit_events").
			WithArgs(now.Add(-cfg.ViolationEvents)).
			WillReturnResult(pgxmock.NewResult("DELETE", 0))
		mockDB.ExpectExec("DELETE FROM demo_sessions").
			WithArgs(now).
			WillReturnResult(pgxmock.NewResult("DELETE", 0))

		sweeper.Sweep(context.Background())
		require.NoError(t, mockDB.ExpectationsWereMet())
	})
}
