package services

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/agencyos/rategate/internal/config"
	"github.com/agencyos/rategate/pkg/models"
)

// RateLimitService is the evaluator: it resolves the tier in effect, compares
// the window counters against the catalog caps, and consumes on success.
// Denials are normal Decision values; only store failures are errors.
type RateLimitService struct {
	resolver   TierResolver
	catalog    TierCatalog
	counter    UsageCounter
	violations ViolationRecorder
	credits    CreditLedger
	metrics    *Metrics
	logger     *logrus.Logger

	checkTimeout time.Duration
	now          func() time.Time
}

func NewRateLimitService(
	cfg *config.LimitsConfig,
	resolver TierResolver,
	catalog TierCatalog,
	counter UsageCounter,
	violations ViolationRecorder,
	credits CreditLedger,
	metrics *Metrics,
	logger *logrus.Logger,
) *RateLimitService {
	return &RateLimitService{
		resolver:     resolver,
		catalog:      catalog,
		counter:      counter,
		violations:   violations,
		credits:      credits,
		metrics:      metrics,
		logger:       logger,
		checkTimeout: cfg.CheckTimeout,
		now:          time.Now,
	}
}

// CheckAndConsume decides whether the request may proceed and, if so,
// consumes one request plus the estimated token cost from every window.
// Check order: unlimited short-circuit, per-request token cap, demo credits,
// then minute, hour, day so the tightest window is reported on a denial.
func (s *RateLimitService) CheckAndConsume(ctx context.Context, principal models.Principal, reqCtx *models.RequestContext) (*models.Decision, error) {
	if s.checkTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.checkTimeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.CheckDuration.Observe(time.Since(start).Seconds())
		}
	}()

	now := s.now()

	tier, err := s.resolver.Resolve(ctx, principal)
	if err != nil {
		return nil, err
	}

	limits, err := s.catalog.GetLimits(ctx, tier)
	if err != nil {
		if errors.Is(err, ErrTierNotFound) {
			s.logger.WithField("tier", tier).Error("Resolved tier has no catalog entry")
		}
		return nil, err
	}

	// Unlimited tiers never touch the counters, in either direction.
	if limits.Unlimited() {
		return s.allow(tier), nil
	}

	// A single call bigger than the per-request token cap can never succeed,
	// so it is denied before any window state is consulted.
	if c := limits.MaxTokensPerRequest; c != nil && reqCtx.EstimatedTokens > *c {
		return s.deny(ctx, principal, reqCtx, tier, models.LimitTokensPerRequest, *c, reqCtx.EstimatedTokens, time.Time{}), nil
	}

	// Demo sessions carry a credit balance on top of the window caps.
	if principal.Kind == models.PrincipalDemo {
		balance, err := s.credits.Credits(ctx, principal.ID)
		if err != nil {
			if errors.Is(err, ErrSessionNotFound) {
				return s.deny(ctx, principal, reqCtx, tier, models.LimitCreditsExhausted, 0, 0, time.Time{}), nil
			}
			return nil, err
		}
		if balance <= 0 {
			return s.deny(ctx, principal, reqCtx, tier, models.LimitCreditsExhausted, 0, balance, time.Time{}), nil
		}
	}

	counts, err := s.counter.Counts(ctx, principal.Key(), now)
	if err != nil {
		return nil, err
	}

	for _, w := range models.WindowTypes {
		cap := limits.RequestCap(w)
		if cap == nil {
			continue
		}
		current := counts[w].RequestCount
		if !models.UnderCap(current, cap) {
			return s.deny(ctx, principal, reqCtx, tier, w.LimitType(), *cap, current, w.End(now)), nil
		}
	}

	if c := limits.MaxTokensPerDay; c != nil {
		tokens := counts[models.WindowDay].TokenCount
		if !models.UnderCap(tokens, c) {
			return s.deny(ctx, principal, reqCtx, tier, models.LimitTokensPerDay, *c, tokens, models.WindowDay.End(now)), nil
		}
	}

	// A cancelled check must not consume.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if principal.Kind == models.PrincipalDemo {
		if err := s.credits.ConsumeCredit(ctx, principal.ID, 1); err != nil {
			if errors.Is(err, ErrInsufficientCredits) || errors.Is(err, ErrSessionNotFound) {
				// Lost the race against a concurrent debit.
				return s.deny(ctx, principal, reqCtx, tier, models.LimitCreditsExhausted, 0, 0, time.Time{}), nil
			}
			return nil, err
		}
	}

	if err := s.counter.Increment(ctx, principal.Key(), now, reqCtx.EstimatedTokens); err != nil {
		return nil, err
	}

	decision := s.allow(tier)
	s.fillHeadroom(decision, limits, counts, now)
	return decision, nil
}

// fillHeadroom stamps the allowed decision with the window closest to its cap
// so clients see the binding limit in the rate-limit headers. Counts were read
// before the consume, so the request just admitted is added back in. LimitType
// stays empty: no limit was violated.
func (s *RateLimitService) fillHeadroom(decision *models.Decision, limits *models.TierLimits, counts map[models.WindowType]models.UsageWindow, now time.Time) {
	remaining := -1
	for _, w := range models.WindowTypes {
		cap := limits.RequestCap(w)
		if cap == nil {
			continue
		}
		current := counts[w].RequestCount + 1
		headroom := *cap - current
		if headroom < 0 {
			headroom = 0
		}
		if remaining == -1 || headroom < remaining {
			remaining = headroom
			decision.LimitValue = *cap
			decision.Current = current
			decision.ResetsAt = w.End(now)
		}
	}
}

// ReportUsage reconciles the token windows once the downstream call finished
// and the real cost is known. The estimate was consumed at check time, so
// only the difference is applied.
func (s *RateLimitService) ReportUsage(ctx context.Context, principal models.Principal, estimatedTokens, actualTokens int) error {
	delta := actualTokens - estimatedTokens
	if delta == 0 {
		return nil
	}
	return s.counter.AddTokens(ctx, principal.Key(), s.now(), delta)
}

// Usage reports current consumption against the caps in effect, for clients
// that want to back off before hitting a limit.
func (s *RateLimitService) Usage(ctx context.Context, principal models.Principal) (*models.UsageReport, error) {
	now := s.now()

	tier, err := s.resolver.Resolve(ctx, principal)
	if err != nil {
		return nil, err
	}

	limits, err := s.catalog.GetLimits(ctx, tier)
	if err != nil {
		return nil, err
	}

	counts, err := s.counter.Counts(ctx, principal.Key(), now)
	if err != nil {
		return nil, err
	}

	return &models.UsageReport{
		Tier:             tier,
		RequestsThisMin:  counts[models.WindowMinute].RequestCount,
		RequestsThisHour: counts[models.WindowHour].RequestCount,
		RequestsToday:    counts[models.WindowDay].RequestCount,
		TokensToday:      counts[models.WindowDay].TokenCount,
		LimitPerMinute:   limits.RequestsPerMinute,
		LimitPerHour:     limits.RequestsPerHour,
		LimitPerDay:      limits.RequestsPerDay,
		TokenLimitPerDay: limits.MaxTokensPerDay,
		ResetMinute:      models.WindowMinute.End(now),
		ResetHour:        models.WindowHour.End(now),
		ResetDay:         models.WindowDay.End(now),
	}, nil
}

func (s *RateLimitService) allow(tier string) *models.Decision {
	if s.metrics != nil {
		s.metrics.ChecksTotal.WithLabelValues(tier, "allowed").Inc()
	}
	return &models.Decision{Allowed: true, Tier: tier}
}

func (s *RateLimitService) deny(ctx context.Context, principal models.Principal, reqCtx *models.RequestContext, tier, limitType string, limitValue, current int, resetsAt time.Time) *models.Decision {
	decision := &models.Decision{
		Tier:       tier,
		LimitType:  limitType,
		LimitValue: limitValue,
		Current:    current,
		ResetsAt:   resetsAt,
	}

	if s.metrics != nil {
		s.metrics.ChecksTotal.WithLabelValues(tier, "denied").Inc()
		s.metrics.ViolationsTotal.WithLabelValues(tier, limitType).Inc()
	}

	event := &models.ViolationEvent{
		Principal:  principal.Key(),
		Tier:       tier,
		LimitType:  limitType,
		LimitValue: limitValue,
		Current:    current,
		Endpoint:   reqCtx.Endpoint,
		ClientIP:   reqCtx.ClientIP,
		CreatedAt:  s.now(),
	}
	if err := s.violations.Record(ctx, event); err != nil {
		// Accounting only; the denial stands either way.
		s.logger.WithError(err).Warn("Failed to record rate limit violation")
	}

	return decision
}
