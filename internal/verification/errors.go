package verification

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the engine's outcome taxonomy. Storage and mailer
// failures are always translated into one of these before returning, so
// callers never interpret transport-specific errors.
var (
	// ErrInvalidEmail rejects malformed input before any storage access.
	ErrInvalidEmail = errors.New("invalid email address")

	// ErrDomainNotAllowed is returned when issuance is domain-gated and the
	// email's domain is not covered by the allow-list.
	ErrDomainNotAllowed = errors.New("email domain not allow-listed")

	// ErrDailyLimitExceeded is returned when the rolling 24h send quota is used up.
	ErrDailyLimitExceeded = errors.New("daily verification limit exceeded")

	// ErrInvalidOrExpired covers every confirmation failure that must stay
	// indistinguishable to the caller: wrong code, no active code, expired
	// code, already-consumed code.
	ErrInvalidOrExpired = errors.New("invalid or expired verification code")

	// ErrTooManyAttempts is returned while a record is locked out.
	ErrTooManyAttempts = errors.New("too many failed attempts")

	// ErrIssuanceFailed is returned when a code could not be issued and
	// delivered; the caller may retry the whole request.
	ErrIssuanceFailed = errors.New("verification code could not be issued")

	// ErrServiceUnavailable is returned for infrastructure failures during
	// confirmation; the flow is retryable from requestVerification.
	ErrServiceUnavailable = errors.New("verification service unavailable")
)

// CooldownError is returned when a new code is requested before the resend
// cooldown has elapsed. Remaining is rounded up to whole seconds, minimum 1.
type CooldownError struct {
	Remaining int
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("please wait %ds before requesting a new code", e.Remaining)
}

// AsCooldown unwraps err into a *CooldownError if it is one.
func AsCooldown(err error) (*CooldownError, bool) {
	var ce *CooldownError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
