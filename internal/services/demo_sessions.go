package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/agencyos/rategate/internal/config"
	"github.com/agencyos/rategate/pkg/models"
)

// Referral codes avoid ambiguous characters so they survive being read aloud.
const referralCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const demoSessionColumns = `id, session_token, credits_remaining, credits_used, referral_code,
		referred_by_code, referral_credits_earned, created_at, last_activity_at, expires_at`

// DemoSessionService is the ledger for anonymous trial principals: credit
// balance, referral codes, and referral-driven credit awards. Expiry is lazy;
// an expired row behaves as absent everywhere and is physically removed by
// the retention sweeper.
type DemoSessionService struct {
	db     DatabaseQuerier
	logger *logrus.Logger
	cfg    config.DemoConfig
	now    func() time.Time
}

func NewDemoSessionService(db DatabaseQuerier, cfg config.DemoConfig, logger *logrus.Logger) *DemoSessionService {
	return &DemoSessionService{
		db:     db,
		logger: logger,
		cfg:    cfg,
		now:    time.Now,
	}
}

// EnsureSession returns the live session for the token, creating one with the
// default credit balance if the token is unseen or its previous session has
// expired. A non-empty referredByCode on creation awards credits to the
// referring session and records the click.
func (s *DemoSessionService) EnsureSession(ctx context.Context, sessionToken, referredByCode string) (*models.DemoSession, error) {
	now := s.now().UTC()

	session, err := s.getByToken(ctx, sessionToken)
	if err != nil && !errors.Is(err, ErrSessionNotFound) {
		return nil, err
	}

	if session != nil {
		if !session.Expired(now) {
			s.touch(ctx, sessionToken, now)
			return session, nil
		}
		// Stale state is never resurrected; drop it and start fresh.
		if _, err := s.db.Exec(ctx, `DELETE FROM demo_sessions WHERE session_token = $1`, sessionToken); err != nil {
			return nil, storeError("delete expired session", err)
		}
	}

	session = &models.DemoSession{
		ID:               uuid.New(),
		SessionToken:     sessionToken,
		CreditsRemaining: s.cfg.DefaultCredits,
		CreatedAt:        now,
		LastActivityAt:   now,
		ExpiresAt:        now.Add(s.cfg.SessionTTL),
	}
	if referredByCode != "" {
		session.ReferredByCode = &referredByCode
	}

	query := `
		INSERT INTO demo_sessions (id, session_token, credits_remaining, credits_used,
			referred_by_code, referral_credits_earned, created_at, last_activity_at, expires_at)
		VALUES ($1, $2, $3, 0, $4, 0, $5, $5, $6)`

	_, err = s.db.Exec(ctx, query,
		session.ID, session.SessionToken, session.CreditsRemaining,
		session.ReferredByCode, session.CreatedAt, session.ExpiresAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			// Concurrent EnsureSession for the same token; use the winner.
			return s.getByToken(ctx, sessionToken)
		}
		return nil, storeError("create demo session", err)
	}

	if referredByCode != "" {
		if err := s.attributeReferral(ctx, referredByCode); err != nil {
			// The new session stands even when the code turns out to be dead.
			s.logger.WithError(err).WithField("code", referredByCode).Info("Referral attribution skipped")
		}
	}

	s.logger.WithFields(logrus.Fields{
		"session_id": session.ID,
		"referred":   referredByCode != "",
	}).Info("Created demo session")

	return session, nil
}

// Credits returns the remaining balance for a live session.
func (s *DemoSessionService) Credits(ctx context.Context, sessionToken string) (int, error) {
	session, err := s.liveByToken(ctx, sessionToken)
	if err != nil {
		return 0, err
	}
	return session.CreditsRemaining, nil
}

// ConsumeCredit debits the balance atomically; the guard in the UPDATE keeps
// concurrent debits from driving it below zero.
func (s *DemoSessionService) ConsumeCredit(ctx context.Context, sessionToken string, amount int) error {
	if amount <= 0 {
		return fmt.Errorf("invalid credit amount: %d", amount)
	}
	now := s.now().UTC()

	query := `
		UPDATE demo_sessions
		SET credits_remaining = credits_remaining - $2,
			credits_used = credits_used + $2,
			last_activity_at = $3
		WHERE session_token = $1 AND credits_remaining >= $2 AND expires_at > $3`

	tag, err := s.db.Exec(ctx, query, sessionToken, amount, now)
	if err != nil {
		return storeError("consume demo credit", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing/expired session from an empty balance.
		if _, err := s.liveByToken(ctx, sessionToken); err != nil {
			return err
		}
		return ErrInsufficientCredits
	}
	return nil
}

// GenerateReferralCode returns the session's referral code, minting one on
// first use. Calling it again returns the same code.
func (s *DemoSessionService) GenerateReferralCode(ctx context.Context, sessionToken string) (string, error) {
	session, err := s.liveByToken(ctx, sessionToken)
	if err != nil {
		return "", err
	}
	if session.ReferralCode != nil {
		return *session.ReferralCode, nil
	}

	retries := s.cfg.ReferralCodeRetries
	if retries <= 0 {
		retries = 5
	}

	for attempt := 0; attempt < retries; attempt++ {
		code, err := randomReferralCode(s.cfg.ReferralCodeLength)
		if err != nil {
			return "", fmt.Errorf("failed to generate referral code: %w", err)
		}

		query := `
			UPDATE demo_sessions
			SET referral_code = $2
			WHERE session_token = $1 AND referral_code IS NULL`

		tag, err := s.db.Exec(ctx, query, sessionToken, code)
		if err != nil {
			if isUniqueViolation(err) {
				continue
			}
			return "", storeError("set referral code", err)
		}
		if tag.RowsAffected() == 0 {
			// A concurrent call already minted one; return it.
			session, err := s.liveByToken(ctx, sessionToken)
			if err != nil {
				return "", err
			}
			if session.ReferralCode != nil {
				return *session.ReferralCode, nil
			}
			continue
		}
		return code, nil
	}

	return "", ErrReferralRetriesExhausted
}

// AwardReferralCredits adds credits to the session owning the code, bumping
// both the spendable balance and the lifetime earned counter in one statement.
func (s *DemoSessionService) AwardReferralCredits(ctx context.Context, code string, amount int) error {
	if amount <= 0 {
		return fmt.Errorf("invalid credit amount: %d", amount)
	}

	query := `
		UPDATE demo_sessions
		SET credits_remaining = credits_remaining + $2,
			referral_credits_earned = referral_credits_earned + $2
		WHERE referral_code = $1 AND expires_at > $3`

	tag, err := s.db.Exec(ctx, query, code, amount, s.now().UTC())
	if err != nil {
		return storeError("award referral credits", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrReferralCodeNotFound
	}
	return nil
}

// RecordReferralClick logs one click on a referral code.
func (s *DemoSessionService) RecordReferralClick(ctx context.Context, code string) (*models.DemoReferral, error) {
	var referrerID uuid.UUID
	err := s.db.QueryRow(ctx,
		`SELECT id FROM demo_sessions WHERE referral_code = $1 AND expires_at > $2`,
		code, s.now().UTC(),
	).Scan(&referrerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReferralCodeNotFound
		}
		return nil, storeError("find referrer session", err)
	}

	referral := &models.DemoReferral{
		ID:                uuid.New(),
		ReferralCode:      code,
		ReferrerSessionID: referrerID,
		ClickedAt:         s.now().UTC(),
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO demo_referrals (id, referral_code, referrer_session_id, clicked_at)
		VALUES ($1, $2, $3, $4)`,
		referral.ID, referral.ReferralCode, referral.ReferrerSessionID, referral.ClickedAt,
	)
	if err != nil {
		return nil, storeError("record referral click", err)
	}

	return referral, nil
}

// AttributeConversion marks a referral as converted to a signup. The guard
// makes the conversion fields settable exactly once.
func (s *DemoSessionService) AttributeConversion(ctx context.Context, referralID, userID uuid.UUID) error {
	query := `
		UPDATE demo_referrals
		SET converted_user_id = $2, converted_at = $3
		WHERE id = $1 AND converted_at IS NULL`

	tag, err := s.db.Exec(ctx, query, referralID, userID, s.now().UTC())
	if err != nil {
		return storeError("attribute conversion", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("referral %s not found or already converted", referralID)
	}
	return nil
}

// PurgeExpired deletes sessions past their TTL. Referral rows cascade with
// the session; window counters age out separately.
func (s *DemoSessionService) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM demo_sessions WHERE expires_at < $1`, s.now().UTC())
	if err != nil {
		return 0, storeError("purge expired sessions", err)
	}
	return tag.RowsAffected(), nil
}

// attributeReferral rewards the owner of the code and records the click when
// a referred session is created.
func (s *DemoSessionService) attributeReferral(ctx context.Context, code string) error {
	if err := s.AwardReferralCredits(ctx, code, s.cfg.ReferralAward); err != nil {
		return err
	}
	if _, err := s.RecordReferralClick(ctx, code); err != nil {
		return err
	}
	return nil
}

func (s *DemoSessionService) getByToken(ctx context.Context, sessionToken string) (*models.DemoSession, error) {
	query := `SELECT ` + demoSessionColumns + ` FROM demo_sessions WHERE session_token = $1`

	var session models.DemoSession
	err := s.db.QueryRow(ctx, query, sessionToken).Scan(
		&session.ID, &session.SessionToken, &session.CreditsRemaining, &session.CreditsUsed,
		&session.ReferralCode, &session.ReferredByCode, &session.ReferralCreditsEarned,
		&session.CreatedAt, &session.LastActivityAt, &session.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, storeError("get demo session", err)
	}
	return &session, nil
}

// liveByToken is getByToken plus the lazy-expiry rule.
func (s *DemoSessionService) liveByToken(ctx context.Context, sessionToken string) (*models.DemoSession, error) {
	session, err := s.getByToken(ctx, sessionToken)
	if err != nil {
		return nil, err
	}
	if session.Expired(s.now().UTC()) {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

func (s *DemoSessionService) touch(ctx context.Context, sessionToken string, now time.Time) {
	if _, err := s.db.Exec(ctx,
		`UPDATE demo_sessions SET last_activity_at = $2 WHERE session_token = $1`,
		sessionToken, now,
	); err != nil {
		s.logger.WithError(err).Debug("Failed to touch demo session")
	}
}

func randomReferralCode(length int) (string, error) {
	if length <= 0 {
		length = 8
	}

	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = referralCodeAlphabet[int(b)%len(referralCodeAlphabet)]
	}
	return string(buf), nil
}
