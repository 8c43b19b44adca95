package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/uniconnect-lb/uniconnect/internal/accounts"
	"github.com/uniconnect-lb/uniconnect/internal/allowlist"
	"github.com/uniconnect-lb/uniconnect/internal/verification"
	"go.uber.org/zap"
)

// verifyEngine is the interface expected by VerifyHandler, satisfied by
// *verification.Engine.
type verifyEngine interface {
	RequestVerification(ctx context.Context, sub verification.Subject) (*verification.IssueResult, error)
	ConfirmVerification(ctx context.Context, sub verification.Subject, code string) (*verification.AccountSummary, error)
}

// accountStager is satisfied by *accounts.Service.
type accountStager interface {
	StageRegistration(ctx context.Context, in accounts.RegistrationInput) (*accounts.PendingRegistration, error)
	ResolveSubject(ctx context.Context, email string) (verification.Subject, error)
}

// domainResolver is satisfied by *allowlist.Cache.
type domainResolver interface {
	Resolve(ctx context.Context, domain string) (*allowlist.Domain, error)
}

// VerifyHandler exposes registration and email-verification routes.
type VerifyHandler struct {
	engine   verifyEngine
	accounts accountStager
	domains  domainResolver
	logger   *zap.Logger
}

// NewVerifyHandler creates a VerifyHandler.
func NewVerifyHandler(engine verifyEngine, accounts accountStager, domains domainResolver, logger *zap.Logger) *VerifyHandler {
	return &VerifyHandler{engine: engine, accounts: accounts, domains: domains, logger: logger}
}

// Register mounts all verification routes on the provided router group.
func (h *VerifyHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/auth/register", h.RegisterAccount)
	verify := rg.Group("/verify")
	{
		verify.POST("/request", h.RequestCode)
		verify.POST("/confirm", h.ConfirmCode)
	}
}

// ─── Request / Response types ────────────────────────────────────────────────

type registerRequest struct {
	FullName string `json:"full_name"`
	Phone    string `json:"phone"    binding:"required"`
	Email    string `json:"email"    binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Role     string `json:"role"     binding:"required,oneof=SEEKER OWNER"`
}

type requestCodeRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type confirmCodeRequest struct {
	Email string `json:"email" binding:"required,email"`
	Code  string `json:"code"  binding:"required"`
}

// ─── Handlers ────────────────────────────────────────────────────────────────

// RegisterAccount handles POST /auth/register — stages a pending registration
// and issues the first verification code. No user row is created yet.
func (h *VerifyHandler) RegisterAccount(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	email := verification.NormalizeEmail(req.Email)
	role := accounts.Role(req.Role)

	matched, err := h.domains.Resolve(ctx, verification.EmailDomain(email))
	if err != nil && !errors.Is(err, allowlist.ErrNoMatch) {
		h.logger.Error("allow-list resolve", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed", "code": "issuance_failed"})
		return
	}
	if matched == nil && role == accounts.RoleSeeker {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": "a valid university email is required",
			"code":  "domain_not_allowed",
		})
		return
	}

	in := accounts.RegistrationInput{
		FullName:  req.FullName,
		Phone:     req.Phone,
		Email:     email,
		Password:  req.Password,
		Role:      role,
		ClientIP:  c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
	if matched != nil {
		in.University = matched.Domain
	}

	pending, err := h.accounts.StageRegistration(ctx, in)
	if err != nil {
		switch {
		case errors.Is(err, accounts.ErrDuplicateEmail):
			c.JSON(http.StatusConflict, gin.H{"error": "email already registered", "code": "duplicate_email"})
		case errors.Is(err, accounts.ErrDuplicatePhone):
			c.JSON(http.StatusConflict, gin.H{"error": "phone number already in use", "code": "duplicate_phone"})
		default:
			h.logger.Error("stage registration", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed", "code": "issuance_failed"})
		}
		return
	}

	sub := verification.Subject{
		Email: pending.Email,
		Pending: &verification.PendingIdentity{
			Email:      pending.Email,
			FullName:   pending.FullName,
			Phone:      pending.Phone,
			Role:       string(pending.Role),
			University: pending.UniversityDomain,
		},
		DomainGated: pending.Role == accounts.RoleSeeker,
		ClientIP:    c.ClientIP(),
	}
	res, err := h.engine.RequestVerification(ctx, sub)
	if err != nil {
		h.writeIssueError(c, err)
		return
	}

	RecordVerification("issued")
	c.JSON(http.StatusCreated, gin.H{
		"ok":               true,
		"cooldown_seconds": res.CooldownSeconds,
		"expires_at":       res.ExpiresAt,
		"message":          "A verification code has been sent to your email.",
	})
}

// RequestCode handles POST /verify/request — re-issues a code for a staged
// registration or an existing unverified account. Whether the address is
// known is never revealed to the caller.
func (h *VerifyHandler) RequestCode(c *gin.Context) {
	var req requestCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	sub, err := h.accounts.ResolveSubject(ctx, req.Email)
	if err != nil {
		if errors.Is(err, accounts.ErrNotFound) || errors.Is(err, accounts.ErrAlreadyVerified) {
			// Silent — do not reveal whether the address is registered.
			h.logger.Info("verification request for unknown or verified email",
				zap.String("email", verification.NormalizeEmail(req.Email)))
			c.JSON(http.StatusOK, gin.H{"ok": true})
			return
		}
		h.logger.Error("resolve subject", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "request failed", "code": "issuance_failed"})
		return
	}
	sub.ClientIP = c.ClientIP()

	res, err := h.engine.RequestVerification(ctx, sub)
	if err != nil {
		h.writeIssueError(c, err)
		return
	}

	RecordVerification("issued")
	c.JSON(http.StatusOK, gin.H{
		"ok":               true,
		"cooldown_seconds": res.CooldownSeconds,
		"expires_at":       res.ExpiresAt,
	})
}

// ConfirmCode handles POST /verify/confirm — validates the code and promotes
// the subject into a verified account.
func (h *VerifyHandler) ConfirmCode(c *gin.Context) {
	var req confirmCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	sub, err := h.accounts.ResolveSubject(ctx, req.Email)
	if err != nil {
		if errors.Is(err, accounts.ErrNotFound) || errors.Is(err, accounts.ErrAlreadyVerified) {
			RecordVerification("rejected")
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "invalid or expired verification code",
				"code":  "invalid_or_expired",
			})
			return
		}
		h.logger.Error("resolve subject", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "confirmation failed", "code": "service_unavailable"})
		return
	}

	summary, err := h.engine.ConfirmVerification(ctx, sub, req.Code)
	if err != nil {
		h.writeConfirmError(c, err)
		return
	}

	RecordVerification("confirmed")
	c.JSON(http.StatusOK, gin.H{"ok": true, "account": summary})
}

// ─── Error mapping ───────────────────────────────────────────────────────────

func (h *VerifyHandler) writeIssueError(c *gin.Context, err error) {
	if ce, ok := verification.AsCooldown(err); ok {
		RecordVerification("rejected")
		c.Header("Retry-After", strconv.Itoa(ce.Remaining))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":             "please wait before requesting a new verification code",
			"code":              "cooldown_active",
			"remaining_seconds": ce.Remaining,
		})
		return
	}
	switch {
	case errors.Is(err, verification.ErrDomainNotAllowed):
		RecordVerification("rejected")
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": "a valid university email is required",
			"code":  "domain_not_allowed",
		})
	case errors.Is(err, verification.ErrDailyLimitExceeded):
		RecordVerification("rejected")
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error": "maximum verification attempts reached, please try again later",
			"code":  "daily_limit_exceeded",
		})
	case errors.Is(err, verification.ErrInvalidEmail):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid email address", "code": "invalid_email"})
	default:
		RecordVerification("failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "verification code could not be sent",
			"code":  "issuance_failed",
		})
	}
}

func (h *VerifyHandler) writeConfirmError(c *gin.Context, err error) {
	// The two rejection kinds share one user-facing message so attempt counts
	// and code existence cannot be probed; codes differ for client handling.
	switch {
	case errors.Is(err, verification.ErrTooManyAttempts):
		RecordVerification("locked")
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error": "invalid or expired verification code",
			"code":  "too_many_attempts",
		})
	case errors.Is(err, verification.ErrInvalidOrExpired), errors.Is(err, verification.ErrInvalidEmail):
		RecordVerification("rejected")
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid or expired verification code",
			"code":  "invalid_or_expired",
		})
	default:
		RecordVerification("failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "confirmation failed",
			"code":  "service_unavailable",
		})
	}
}
