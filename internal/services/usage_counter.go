package services

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/agencyos/rategate/pkg/models"
)

// UsageCounterService maintains the per-principal fixed-window counters.
// Rows are created lazily and mutated only through the atomic upsert in
// Increment; nothing else writes to them.
type UsageCounterService struct {
	db     DatabaseQuerier
	logger *logrus.Logger
}

func NewUsageCounterService(db DatabaseQuerier, logger *logrus.Logger) *UsageCounterService {
	return &UsageCounterService{
		db:     db,
		logger: logger,
	}
}

// Increment bumps the request counter and adds tokens for all three window
// granularities in one statement. The upsert keeps concurrent increments for
// the same principal and window from losing updates.
func (s *UsageCounterService) Increment(ctx context.Context, principal string, now time.Time, tokens int) error {
	query := `
		INSERT INTO usage_windows (principal, window_start, window_type, request_count, token_count)
		VALUES ($1, $2, 'minute', 1, $5),
			($1, $3, 'hour', 1, $5),
			($1, $4, 'day', 1, $5)
		ON CONFLICT (principal, window_start, window_type) DO UPDATE SET
			request_count = usage_windows.request_count + 1,
			token_count = usage_windows.token_count + EXCLUDED.token_count`

	_, err := s.db.Exec(ctx, query,
		principal,
		models.WindowMinute.Truncate(now),
		models.WindowHour.Truncate(now),
		models.WindowDay.Truncate(now),
		tokens,
	)
	if err != nil {
		return storeError("increment usage", err)
	}
	return nil
}

// Counts reads the current window rows for a principal. Granularities with no
// traffic yet are returned with zero counts.
func (s *UsageCounterService) Counts(ctx context.Context, principal string, now time.Time) (map[models.WindowType]models.UsageWindow, error) {
	query := `
		SELECT window_type, request_count, token_count
		FROM usage_windows
		WHERE principal = $1
			AND ((window_type = 'minute' AND window_start = $2)
				OR (window_type = 'hour' AND window_start = $3)
				OR (window_type = 'day' AND window_start = $4))`

	rows, err := s.db.Query(ctx, query,
		principal,
		models.WindowMinute.Truncate(now),
		models.WindowHour.Truncate(now),
		models.WindowDay.Truncate(now),
	)
	if err != nil {
		return nil, storeError("read usage counts", err)
	}
	defer rows.Close()

	counts := make(map[models.WindowType]models.UsageWindow, len(models.WindowTypes))
	for _, w := range models.WindowTypes {
		counts[w] = models.UsageWindow{
			Principal:   principal,
			WindowStart: w.Truncate(now),
			WindowType:  w,
		}
	}

	for rows.Next() {
		var (
			windowType   string
			requestCount int
			tokenCount   int
		)
		if err := rows.Scan(&windowType, &requestCount, &tokenCount); err != nil {
			return nil, storeError("scan usage row", err)
		}
		w := models.WindowType(windowType)
		window := counts[w]
		window.RequestCount = requestCount
		window.TokenCount = tokenCount
		counts[w] = window
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("read usage counts", err)
	}

	return counts, nil
}

// CurrentCount returns the request and token counts for one granularity.
func (s *UsageCounterService) CurrentCount(ctx context.Context, principal string, windowType models.WindowType, now time.Time) (requests, tokens int, err error) {
	query := `
		SELECT request_count, token_count
		FROM usage_windows
		WHERE principal = $1 AND window_type = $2 AND window_start = $3`

	err = s.db.QueryRow(ctx, query, principal, windowType, windowType.Truncate(now)).Scan(&requests, &tokens)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, nil
		}
		return 0, 0, storeError("read usage count", err)
	}
	return requests, tokens, nil
}

// AddTokens applies a post-hoc token correction to the current windows.
// The delta may be negative when actual usage came in under the estimate
// consumed at check time.
func (s *UsageCounterService) AddTokens(ctx context.Context, principal string, now time.Time, delta int) error {
	if delta == 0 {
		return nil
	}

	query := `
		INSERT INTO usage_windows (principal, window_start, window_type, request_count, token_count)
		VALUES ($1, $2, 'minute', 0, GREATEST($5, 0)),
			($1, $3, 'hour', 0, GREATEST($5, 0)),
			($1, $4, 'day', 0, GREATEST($5, 0))
		ON CONFLICT (principal, window_start, window_type) DO UPDATE SET
			token_count = GREATEST(usage_windows.token_count + EXCLUDED.token_count, 0)`

	_, err := s.db.Exec(ctx, query,
		principal,
		models.WindowMinute.Truncate(now),
		models.WindowHour.Truncate(now),
		models.WindowDay.Truncate(now),
		delta,
	)
	if err != nil {
		return storeError("adjust token usage", err)
	}
	return nil
}

// PurgeOlderThan deletes windows that started before the cutoff. Runs from
// the retention sweeper, never from the check path.
func (s *UsageCounterService) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM usage_windows WHERE window_start < $1`, cutoff)
	if err != nil {
		return 0, storeError("purge usage windows", err)
	}
	return tag.RowsAffected(), nil
}
