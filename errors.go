package identity

import (
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// Text codes surfaced to API clients alongside the error category.
const (
	TextCodeInvalidCreds       = "INVALID_CREDENTIALS"
	TextCodeAccountNotVerified = "ACCOUNT_NOT_VERIFIED"
	TextCodeAccountInactive    = "ACCOUNT_INACTIVE"
	TextCodeDuplicateEmail     = "DUPLICATE_EMAIL"
	TextCodeIdentityNotFound   = "IDENTITY_NOT_FOUND"
	TextCodeTokenMissing       = "TOKEN_MISSING"
	TextCodeTokenExpired       = "TOKEN_EXPIRED"
	TextCodeTokenMalformed     = "TOKEN_MALFORMED"
	TextCodeTokenInvalid       = "TOKEN_INVALID"
	TextCodeTokenNotFound      = "TOKEN_NOT_FOUND"
	TextCodeRefreshMismatch    = "REFRESH_TOKEN_MISMATCH"
	TextCodeTooManyAttempts    = "TOO_MANY_LOGIN_ATTEMPTS"
	TextCodeStoreUnavailable   = "STORE_UNAVAILABLE"
	TextCodeEmailDispatch      = "EMAIL_DISPATCH_FAILED"
)

// ErrIdentityNotFound is returned when no record matches the given identifier.
var ErrIdentityNotFound = goerrors.New("identity not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeIdentityNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrMismatchedHashAndPassword merges unknown-email and wrong-password so
// callers cannot probe which accounts exist.
var ErrMismatchedHashAndPassword = goerrors.New("the credentials provided are invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds).
	WithCode(goerrors.CodeUnauthorized)

// ErrNoEmptyString is returned when hashing an empty password.
var ErrNoEmptyString = goerrors.New("password must not be empty", goerrors.CategoryValidation).
	WithTextCode("EMPTY_PASSWORD").
	WithCode(goerrors.CodeBadRequest)

// ErrDuplicateEmail is returned when registering an email that already exists.
var ErrDuplicateEmail = goerrors.New("an account with this email already exists", goerrors.CategoryConflict).
	WithTextCode(TextCodeDuplicateEmail).
	WithCode(goerrors.CodeConflict)

// ErrAccountNotVerified is returned on login when the password checks out but
// the email was never verified. Only raised after the password comparison so
// verification status is not leaked to unauthenticated callers.
var ErrAccountNotVerified = goerrors.New("account email has not been verified", goerrors.CategoryAuth).
	WithTextCode(TextCodeAccountNotVerified).
	WithCode(goerrors.CodeForbidden)

// ErrAccountInactive is returned on login for deactivated accounts.
var ErrAccountInactive = goerrors.New("account is not active", goerrors.CategoryAuth).
	WithTextCode(TextCodeAccountInactive).
	WithCode(goerrors.CodeForbidden)

// ErrTooManyLoginAttempts is returned while the cool down window is active.
var ErrTooManyLoginAttempts = goerrors.New("too many login attempts", goerrors.CategoryRateLimit).
	WithTextCode(TextCodeTooManyAttempts).
	WithCode(goerrors.CodeTooManyRequests)

// ErrTokenMissing is returned when an operation requires a token and none was given.
var ErrTokenMissing = goerrors.New("token is required", goerrors.CategoryBadInput).
	WithTextCode(TextCodeTokenMissing).
	WithCode(goerrors.CodeBadRequest)

// ErrTokenExpired is returned for tokens that parsed and verified but are past
// their expiry. Callers treat this differently from ErrTokenInvalid: an
// expired access token triggers a refresh, anything else forces re-login.
var ErrTokenExpired = goerrors.New("token is expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenMalformed is returned for structural parse failures.
var ErrTokenMalformed = goerrors.New("token is malformed", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenInvalid is returned for well-formed tokens with a bad signature.
var ErrTokenInvalid = goerrors.New("token is invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenInvalid).
	WithCode(goerrors.CodeUnauthorized)

// ErrVerificationTokenNotFound is returned when no pending registration
// matches the presented verification token. A token that was already redeemed
// lands here too, since the record clears it on success.
var ErrVerificationTokenNotFound = goerrors.New("verification token not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeTokenNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrVerificationTokenExpired is returned when the token exists but its
// expiry window has passed.
var ErrVerificationTokenExpired = goerrors.New("verification token is expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrRefreshTokenMismatch is returned when a validly signed refresh token no
// longer matches the stored one, i.e. it was superseded by a later login,
// renewal, or logout.
var ErrRefreshTokenMismatch = goerrors.New("refresh token has been superseded", goerrors.CategoryAuth).
	WithTextCode(TextCodeRefreshMismatch).
	WithCode(goerrors.CodeUnauthorized)

// ErrStoreUnavailable flags transient record store failures; callers may retry.
var ErrStoreUnavailable = goerrors.New("user record store unavailable", goerrors.CategoryOperation).
	WithTextCode(TextCodeStoreUnavailable).
	WithCode(goerrors.CodeInternal)

// ErrEmailDispatchFailed is logged (never fatal) when the verification email
// cannot be delivered.
var ErrEmailDispatchFailed = goerrors.New("failed to dispatch email", goerrors.CategoryOperation).
	WithTextCode(TextCodeEmailDispatch).
	WithCode(goerrors.CodeInternal)

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.TextCode == TextCodeTokenExpired {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.TextCode == TextCodeTokenMalformed {
		return true
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}

// wrapStoreErr keeps transient store failures distinguishable from domain
// outcomes. Not-found passes through untouched so callers can branch on it.
func wrapStoreErr(err error, msg string) error {
	if err == nil {
		return nil
	}
	if goerrors.IsNotFound(err) {
		return err
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr
	}
	return goerrors.Wrap(err, ErrStoreUnavailable.Category, msg).
		WithTextCode(ErrStoreUnavailable.TextCode)
}
