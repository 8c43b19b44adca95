package verification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uniconnect-lb/uniconnect/internal/allowlist"
	"github.com/uniconnect-lb/uniconnect/internal/email"
	"go.uber.org/zap"
)

// Config holds the engine's tunables. Zero values fall back to the defaults.
type Config struct {
	CodeLength  int           // digits per code (default 6)
	TTL         time.Duration // code lifetime (default 15m)
	Cooldown    time.Duration // minimum gap between sends (default 60s)
	DailyLimit  int           // sends per rolling 24h (default 5)
	MaxAttempts int           // wrong submissions before lockout (default 5)
	Lockout     time.Duration // lockout length after MaxAttempts (default 30m)
}

func (c Config) withDefaults() Config {
	if c.CodeLength <= 0 {
		c.CodeLength = DefaultCodeLength
	}
	if c.TTL <= 0 {
		c.TTL = 15 * time.Minute
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 60 * time.Second
	}
	if c.DailyLimit <= 0 {
		c.DailyLimit = 5
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.Lockout <= 0 {
		c.Lockout = 30 * time.Minute
	}
	return c
}

// DomainResolver resolves an email domain against the institution allow-list.
// *allowlist.Cache satisfies this interface.
type DomainResolver interface {
	Resolve(ctx context.Context, domain string) (*allowlist.Domain, error)
}

// AccountPromoter turns a verified subject into a persisted account. The
// engine guarantees at-most-once invocation per confirmation via the record
// consumption invariant. *accounts.Promoter satisfies this interface.
type AccountPromoter interface {
	Promote(ctx context.Context, sub Subject, verifiedAt time.Time) (*AccountSummary, error)
}

// dispatchTimeout bounds the outbound email send; a timed-out dispatch is
// treated the same as a failed one and the issued record is reverted.
const dispatchTimeout = 10 * time.Second

// Engine orchestrates code issuance, dispatch, confirmation, lockout, and
// account promotion. Per subject it walks
// NoActiveCode → CodeIssued → {Confirmed | Expired | Locked}; a fresh code
// can only be issued after the prior record left the active window.
type Engine struct {
	store    Store
	domains  DomainResolver
	codes    *CodeGenerator
	limiter  *RateLimiter
	mailer   email.Sender
	promoter AccountPromoter
	cfg      Config
	now      func() time.Time
	logger   *zap.Logger
}

// NewEngine creates an Engine.
func NewEngine(
	store Store,
	domains DomainResolver,
	mailer email.Sender,
	promoter AccountPromoter,
	cfg Config,
	logger *zap.Logger,
) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		store:    store,
		domains:  domains,
		codes:    NewCodeGenerator(cfg.CodeLength),
		limiter:  NewRateLimiter(store, cfg.Cooldown, cfg.DailyLimit),
		mailer:   mailer,
		promoter: promoter,
		cfg:      cfg,
		now:      time.Now,
		logger:   logger,
	}
}

// SetClock overrides the engine's time source. Intended for tests.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Config returns the engine's effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// IssueResult is returned by RequestVerification for client display.
type IssueResult struct {
	CooldownSeconds int       `json:"cooldown_seconds"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// RequestVerification issues a fresh code for the subject and emails it.
// Any previously active code for the same address is invalidated first, so
// at most one code is confirmable at a time. A failed or timed-out dispatch
// reverts the new record and surfaces ErrIssuanceFailed — an issued code the
// user can never receive must not stay active.
func (e *Engine) RequestVerification(ctx context.Context, sub Subject) (*IssueResult, error) {
	addr := NormalizeEmail(sub.Email)
	domainPart := EmailDomain(addr)
	if domainPart == "" || strings.LastIndex(addr, "@") < 1 {
		return nil, ErrInvalidEmail
	}

	matched, err := e.domains.Resolve(ctx, domainPart)
	if err != nil && !errors.Is(err, allowlist.ErrNoMatch) {
		e.logger.Error("allow-list resolve failed", zap.String("email", addr), zap.Error(err))
		return nil, ErrIssuanceFailed
	}
	if matched == nil && sub.DomainGated {
		e.logger.Info("verification rejected: domain not allow-listed",
			zap.String("email", addr),
			zap.String("domain", domainPart),
		)
		return nil, ErrDomainNotAllowed
	}

	now := e.now()
	if err := e.limiter.CheckCanIssue(ctx, addr, now); err != nil {
		if ce, ok := AsCooldown(err); ok {
			e.logger.Info("verification rejected: cooldown active",
				zap.String("email", addr),
				zap.Int("remaining_seconds", ce.Remaining),
			)
			return nil, err
		}
		if errors.Is(err, ErrDailyLimitExceeded) {
			e.logger.Info("verification rejected: daily limit", zap.String("email", addr))
			return nil, ErrDailyLimitExceeded
		}
		e.logger.Error("rate limit check failed", zap.String("email", addr), zap.Error(err))
		return nil, ErrIssuanceFailed
	}

	if err := e.store.InvalidateActive(ctx, addr, now); err != nil {
		e.logger.Error("invalidate active records failed", zap.String("email", addr), zap.Error(err))
		return nil, ErrIssuanceFailed
	}

	code, hash, err := e.codes.Generate()
	if err != nil {
		e.logger.Error("code generation failed", zap.Error(err))
		return nil, ErrIssuanceFailed
	}

	rec := &Record{
		Email:     addr,
		OwnerID:   sub.OwnerID,
		CodeHash:  hash,
		CreatedAt: now,
		ExpiresAt: now.Add(e.cfg.TTL),
		CreatedIP: sub.ClientIP,
	}
	if err := e.store.Create(ctx, rec); err != nil {
		e.logger.Error("persist verification record failed", zap.String("email", addr), zap.Error(err))
		return nil, ErrIssuanceFailed
	}

	if err := e.dispatch(ctx, sub, matched, addr, code); err != nil {
		e.logger.Error("verification email dispatch failed",
			zap.String("email", addr),
			zap.Error(err),
		)
		if delErr := e.store.Delete(ctx, rec.ID); delErr != nil {
			e.logger.Error("revert undelivered record failed",
				zap.String("record_id", rec.ID.String()),
				zap.Error(delErr),
			)
		}
		return nil, ErrIssuanceFailed
	}

	e.logger.Info("verification code issued",
		zap.String("email", addr),
		zap.Time("expires_at", rec.ExpiresAt),
	)
	return &IssueResult{
		CooldownSeconds: int(e.cfg.Cooldown / time.Second),
		ExpiresAt:       rec.ExpiresAt,
	}, nil
}

// ConfirmVerification validates a submitted code for the subject. On success
// the record is consumed and the subject promoted to a verified account; of
// two racing confirms with the correct code exactly one wins, the loser sees
// ErrInvalidOrExpired. Wrong-code and expired-code failures are deliberately
// indistinguishable to the caller; the specific cause is only logged.
func (e *Engine) ConfirmVerification(ctx context.Context, sub Subject, code string) (*AccountSummary, error) {
	addr := NormalizeEmail(sub.Email)
	if strings.LastIndex(addr, "@") < 1 {
		return nil, ErrInvalidEmail
	}
	if code == "" {
		return nil, ErrInvalidOrExpired
	}

	now := e.now()
	rec, err := e.store.LatestActive(ctx, addr, now)
	if err != nil {
		if errors.Is(err, ErrNoRecord) {
			e.logger.Info("confirm rejected: no active code", zap.String("email", addr))
			return nil, ErrInvalidOrExpired
		}
		e.logger.Error("lookup active record failed", zap.String("email", addr), zap.Error(err))
		return nil, ErrServiceUnavailable
	}

	if rec.LockedUntil != nil && rec.LockedUntil.After(now) {
		e.logger.Info("confirm rejected: record locked",
			zap.String("email", addr),
			zap.Time("locked_until", *rec.LockedUntil),
		)
		return nil, ErrTooManyAttempts
	}

	if !MatchesHash(rec.CodeHash, code) {
		updated, failErr := e.store.RecordFailure(ctx, rec.ID, e.cfg.MaxAttempts, e.cfg.Lockout, now)
		if failErr != nil {
			e.logger.Error("record failed attempt failed", zap.String("email", addr), zap.Error(failErr))
			return nil, ErrServiceUnavailable
		}
		if updated.LockedUntil != nil && updated.LockedUntil.After(now) {
			e.logger.Info("confirm rejected: lockout triggered",
				zap.String("email", addr),
				zap.Int("failed_attempts", updated.FailedAttempts),
			)
			return nil, ErrTooManyAttempts
		}
		e.logger.Info("confirm rejected: wrong code",
			zap.String("email", addr),
			zap.Int("failed_attempts", updated.FailedAttempts),
		)
		return nil, ErrInvalidOrExpired
	}

	// Correct code, but the record may have expired between lookup and now.
	if !rec.ExpiresAt.After(e.now()) {
		e.logger.Info("confirm rejected: expired at match time", zap.String("email", addr))
		return nil, ErrInvalidOrExpired
	}

	won, err := e.store.Consume(ctx, rec.ID, now)
	if err != nil {
		e.logger.Error("consume record failed", zap.String("email", addr), zap.Error(err))
		return nil, ErrServiceUnavailable
	}
	if !won {
		e.logger.Info("confirm rejected: already consumed", zap.String("email", addr))
		return nil, ErrInvalidOrExpired
	}

	summary, err := e.promoter.Promote(ctx, sub, now)
	if err != nil {
		e.logger.Error("account promotion failed", zap.String("email", addr), zap.Error(err))
		return nil, ErrServiceUnavailable
	}

	e.logger.Info("email verified",
		zap.String("email", addr),
		zap.String("user_id", summary.UserID.String()),
	)
	return summary, nil
}

// dispatch builds and sends the verification email.
func (e *Engine) dispatch(ctx context.Context, sub Subject, matched *allowlist.Domain, addr, code string) error {
	ctx, cancel := context.WithTimeout(ctx, dispatchTimeout)
	defer cancel()

	name := addr[:strings.LastIndex(addr, "@")]
	if sub.Pending != nil && sub.Pending.FullName != "" {
		name = sub.Pending.FullName
	}
	university := EmailDomain(addr)
	if matched != nil && matched.University != "" {
		university = matched.University
	}
	minutes := int(e.cfg.TTL / time.Minute)

	subject := "Verify your UniConnect student email"
	textBody := fmt.Sprintf(
		"Hello %s,\n\nYour UniConnect verification code is:\n\n  %s\n\nIt expires in %d minutes. Enter it in the app to confirm your %s email.\n\nIf you did not request this, ignore this email.\n",
		name, code, minutes, university,
	)
	htmlBody := fmt.Sprintf(
		"<p>Hello %s,</p><p>Your UniConnect verification code is:</p><h2>%s</h2><p>It expires in %d minutes. Enter it in the app to confirm your %s email.</p><p>If you did not request this, ignore this email.</p>",
		name, code, minutes, university,
	)

	return e.mailer.Send(ctx, addr, subject, textBody, htmlBody)
}
