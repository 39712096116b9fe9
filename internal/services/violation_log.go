package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/agencyos/rategate/internal/messaging"
	"github.com/agencyos/rategate/pkg/models"
)

// ViolationLogService keeps the append-only record of rejected requests and
// mirrors each event onto the analytics topic when a message bus is wired.
type ViolationLogService struct {
	db     DatabaseQuerier
	bus    *messaging.MessageBus
	logger *logrus.Logger
}

func NewViolationLogService(db DatabaseQuerier, bus *messaging.MessageBus, logger *logrus.Logger) *ViolationLogService {
	return &ViolationLogService{
		db:     db,
		bus:    bus,
		logger: logger,
	}
}

// Record appends one violation. Publishing to the bus is best effort and
// never fails the write.
func (s *ViolationLogService) Record(ctx context.Context, event *models.ViolationEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO rate_limit_events (id, principal, tier, limit_type, limit_value,
			current_value, endpoint, client_ip, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.db.Exec(ctx, query,
		event.ID, event.Principal, event.Tier, event.LimitType, event.LimitValue,
		event.Current, event.Endpoint, event.ClientIP, event.CreatedAt,
	)
	if err != nil {
		return storeError("record violation", err)
	}

	if s.bus != nil {
		if err := s.bus.PublishViolation(ctx, event); err != nil {
			s.logger.WithError(err).Warn("Failed to publish violation event")
		}
	}

	return nil
}

// Recent returns the newest events, for the admin surface.
func (s *ViolationLogService) Recent(ctx context.Context, limit int) ([]models.ViolationEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, principal, tier, limit_type, limit_value, current_value,
			endpoint, client_ip, created_at
		FROM rate_limit_events
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, storeError("list violations", err)
	}
	defer rows.Close()

	var events []models.ViolationEvent
	for rows.Next() {
		var event models.ViolationEvent
		if err := rows.Scan(
			&event.ID, &event.Principal, &event.Tier, &event.LimitType, &event.LimitValue,
			&event.Current, &event.Endpoint, &event.ClientIP, &event.CreatedAt,
		); err != nil {
			return nil, storeError("scan violation row", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("list violations", err)
	}

	return events, nil
}

// PurgeOlderThan deletes events past their retention. Sweeper only.
func (s *ViolationLogService) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM rate_limit_events WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, storeError("purge violations", err)
	}
	return tag.RowsAffected(), nil
}
