package services

import (
	"context"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"github.com/agencyos/rategate/internal/config"
	"github.com/agencyos/rategate/internal/database"
)

type HealthService struct {
	config *config.Config
	logger *logrus.Logger
	db     *database.Database

	healthCheckStatus *prometheus.GaugeVec
	systemMetrics     *prometheus.GaugeVec
}

type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
	Critical  []string          `json:"critical_failures,omitempty"`
	Latency   time.Duration     `json:"latency,omitempty"`
}

func NewHealthService(cfg *config.Config, logger *logrus.Logger, db *database.Database) *HealthService {
	hs := &HealthService{
		config: cfg,
		logger: logger,
		db:     db,
	}

	hs.healthCheckStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rategate_health_check_status",
		Help: "Health check status (1 = healthy, 0 = unhealthy)",
	}, []string{"service"})

	hs.systemMetrics = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rategate_system_info",
		Help: "System information metrics",
	}, []string{"metric_type"})

	return hs
}

// CheckHealth probes the backing stores. PostgreSQL is critical: the limiter
// cannot decide anything without it. Redis only degrades (caches miss).
func (s *HealthService) CheckHealth() *HealthStatus {
	start := time.Now()
	status := &HealthStatus{
		Status:    "healthy",
		Timestamp: start,
		Services:  make(map[string]string),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.db.PG.Ping(ctx); err != nil {
		status.Services["postgresql"] = "unhealthy"
		status.Critical = append(status.Critical, "postgresql")
		status.Status = "unhealthy"
		s.healthCheckStatus.WithLabelValues("postgresql").Set(0)
		s.logger.WithError(err).Error("PostgreSQL health check failed")
	} else {
		status.Services["postgresql"] = "healthy"
		s.healthCheckStatus.WithLabelValues("postgresql").Set(1)
	}

	if err := s.db.Redis.Ping(ctx).Err(); err != nil {
		status.Services["redis"] = "unhealthy"
		if status.Status == "healthy" {
			status.Status = "degraded"
		}
		s.healthCheckStatus.WithLabelValues("redis").Set(0)
		s.logger.WithError(err).Warn("Redis health check failed")
	} else {
		status.Services["redis"] = "healthy"
		s.healthCheckStatus.WithLabelValues("redis").Set(1)
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	s.systemMetrics.WithLabelValues("goroutines").Set(float64(runtime.NumGoroutine()))
	s.systemMetrics.WithLabelValues("heap_alloc_bytes").Set(float64(memStats.HeapAlloc))

	status.Latency = time.Since(start)
	return status
}
