package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// MaxLoginAttempts is the maximun number of attempts a user gets
// in a period
var MaxLoginAttempts = 5

// CoolDownPeriod is the period in which we enforce a cool down
var CoolDownPeriod = "24h"

// LoginCooldownExpired reports whether the last failed login attempt falls
// outside the cool down window, at which point the attempt counter resets.
func LoginCooldownExpired(lastAttempt time.Time, window string) (bool, error) {
	duration, err := time.ParseDuration(window)
	if err != nil {
		return false, err
	}

	return !lastAttempt.After(time.Now().Add(-duration)), nil
}

// SessionManager orchestrates login, refresh token rotation, and logout.
// It enforces the single session model: at most one live refresh token per
// user, overwritten on each login or renewal.
type SessionManager struct {
	store    UserStore
	tokens   TokenService
	hasher   PasswordAuthenticator
	logger   Logger
	activity ActivitySink
}

// NewSessionManager creates a SessionManager backed by the given store and
// token service.
func NewSessionManager(store UserStore, tokens TokenService) *SessionManager {
	return &SessionManager{
		store:    store,
		tokens:   tokens,
		hasher:   BcryptAuthenticator{},
		logger:   defLogger{},
		activity: noopActivitySink{},
	}
}

func (s *SessionManager) WithLogger(logger Logger) *SessionManager {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithActivitySink attaches an audit sink for session events.
func (s *SessionManager) WithActivitySink(sink ActivitySink) *SessionManager {
	s.activity = normalizeActivitySink(sink)
	return s
}

// WithPasswordAuthenticator overrides the password hasher.
func (s *SessionManager) WithPasswordAuthenticator(hasher PasswordAuthenticator) *SessionManager {
	if hasher != nil {
		s.hasher = hasher
	}
	return s
}

// Login verifies credentials and issues a fresh token pair. Unknown email
// and wrong password fail identically so callers cannot enumerate accounts.
// Verification and active status are checked only after the password
// comparison succeeds.
func (s *SessionManager) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	user, err := s.store.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if goerrors.IsNotFound(err) {
			return nil, ErrMismatchedHashAndPassword
		}
		return nil, wrapStoreErr(err, "failed to retrieve user during login")
	}

	if user.LoginAttemptAt != nil {
		expired, err := LoginCooldownExpired(*user.LoginAttemptAt, CoolDownPeriod)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to calculate login attempt cooldown")
		}

		if expired {
			user.LoginAttempts = 0
		}
	}

	// if we have too many attempts in the given window, cool off!
	if user.LoginAttempts > MaxLoginAttempts {
		return nil, ErrTooManyLoginAttempts
	}

	if err := s.hasher.ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		if err2 := s.store.TrackAttemptedLogin(ctx, user); err2 != nil {
			s.logger.Error("failed to track login attempt", "error", err2)
		}

		recordActivity(ctx, s.activity, s.logger, ActivityEvent{
			EventType: ActivityEventLoginFailure,
			UserID:    user.ID,
			Email:     user.Email,
			Metadata:  map[string]any{"attempts": user.LoginAttempts + 1},
		})

		return nil, ErrMismatchedHashAndPassword
	}

	if !user.IsActive {
		return nil, ErrAccountInactive
	}

	if !user.IsVerified {
		return nil, ErrAccountNotVerified
	}

	pair, err := s.tokens.IssuePair(IdentityFromUser(user))
	if err != nil {
		return nil, err
	}

	// a new login supersedes whatever session existed before
	user.RefreshToken = pair.RefreshToken
	if err := s.store.Save(ctx, user); err != nil {
		return nil, wrapStoreErr(err, "failed to persist session")
	}

	// tracking runs after the full save so the reset columns stick
	if err := s.store.TrackSucccessfulLogin(ctx, user); err != nil {
		s.logger.Error("failed to track successful login", "error", err)
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		UserID:    user.ID,
		Email:     user.Email,
	})

	return pair, nil
}

// Renew exchanges a refresh token for a new pair, rotating the stored token
// in the same step. A token that was already used, or cleared by logout,
// fails with ErrRefreshTokenMismatch even though its signature still checks
// out: rotation bounds the damage of a leaked refresh token to one use.
func (s *SessionManager) Renew(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.tokens.Validate(refreshToken, TokenKindRefresh)
	if err != nil {
		return nil, err
	}

	userID, err := uuid.Parse(claims.UserID())
	if err != nil {
		return nil, ErrTokenInvalid
	}

	user, err := s.store.FindByID(ctx, userID)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return nil, ErrRefreshTokenMismatch
		}
		return nil, wrapStoreErr(err, "failed to retrieve user during renewal")
	}

	// a deactivated account cannot keep its session alive through renewal
	if !user.IsActive {
		return nil, ErrAccountInactive
	}

	// the role comes from the record, not the stale claims, so a demoted
	// account cannot renew into its old privileges
	pair, err := s.tokens.IssuePair(IdentityFromUser(user))
	if err != nil {
		return nil, err
	}

	if err := s.store.RotateRefreshToken(ctx, user.ID, refreshToken, pair.RefreshToken); err != nil {
		return nil, err
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEvent{
		EventType: ActivityEventSessionRenewed,
		UserID:    user.ID,
		Email:     user.Email,
	})

	return pair, nil
}

// Logout clears the stored refresh token. The caller owns clearing any
// client-held token artifacts.
func (s *SessionManager) Logout(ctx context.Context, userID uuid.UUID) error {
	user, err := s.store.FindByID(ctx, userID)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return ErrIdentityNotFound
		}
		return wrapStoreErr(err, "failed to retrieve user during logout")
	}

	user.RefreshToken = ""
	if err := s.store.Save(ctx, user); err != nil {
		return wrapStoreErr(err, "failed to clear session")
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEvent{
		EventType: ActivityEventLogout,
		UserID:    user.ID,
		Email:     user.Email,
	})

	return nil
}
