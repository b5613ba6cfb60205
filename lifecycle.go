package identity

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
)

// RegisterUserMessage carries the registration input.
type RegisterUserMessage struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (m RegisterUserMessage) Type() string { return "user.register" }

// Validate will run validation rules
func (m RegisterUserMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&m.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&m.Password, validation.Required, validation.Length(8, 100)),
		validation.Field(&m.Role, validation.In(RoleUser, RoleAdmin)),
	)
}

// AccountLifecycle orchestrates the registration to verified transitions of a
// user record. Verification is terminal: a verified account never reverts.
type AccountLifecycle struct {
	store    UserStore
	hasher   PasswordAuthenticator
	mailer   Mailer
	renderer EmailRenderer
	baseURL  string
	logger   Logger
	activity ActivitySink
	now      func() time.Time
}

// NewAccountLifecycle wires the lifecycle against the record store and the
// outbound mail collaborators.
func NewAccountLifecycle(store UserStore, mailer Mailer, cfg Config) *AccountLifecycle {
	return &AccountLifecycle{
		store:    store,
		hasher:   BcryptAuthenticator{},
		mailer:   mailer,
		renderer: defaultEmailRenderer{},
		baseURL:  cfg.GetBaseURL(),
		logger:   defLogger{},
		activity: noopActivitySink{},
		now:      time.Now,
	}
}

func (l *AccountLifecycle) WithLogger(logger Logger) *AccountLifecycle {
	if logger != nil {
		l.logger = logger
	}
	return l
}

// WithEmailRenderer overrides the template engine used for verification mail.
func (l *AccountLifecycle) WithEmailRenderer(renderer EmailRenderer) *AccountLifecycle {
	if renderer != nil {
		l.renderer = renderer
	}
	return l
}

// WithPasswordAuthenticator overrides the password hasher.
func (l *AccountLifecycle) WithPasswordAuthenticator(hasher PasswordAuthenticator) *AccountLifecycle {
	if hasher != nil {
		l.hasher = hasher
	}
	return l
}

// WithActivitySink attaches an audit sink for lifecycle events.
func (l *AccountLifecycle) WithActivitySink(sink ActivitySink) *AccountLifecycle {
	l.activity = normalizeActivitySink(sink)
	return l
}

// WithClock injects a custom clock (useful for tests).
func (l *AccountLifecycle) WithClock(clock func() time.Time) *AccountLifecycle {
	if clock != nil {
		l.now = clock
	}
	return l
}

// Register creates an unverified user record and dispatches the verification
// email. The record commit and the token issuance are the atomic unit, the
// email is a best effort side effect: dispatch failure never rolls back the
// registration, callers recover through ResendVerification.
func (l *AccountLifecycle) Register(ctx context.Context, msg RegisterUserMessage) (*User, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during user registration")
	default:
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if err := msg.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid registration payload").
			WithCode(goerrors.CodeBadRequest)
	}

	email := NormalizeEmail(msg.Email)

	if existing, err := l.store.FindByEmail(ctx, email); err != nil {
		if !goerrors.IsNotFound(err) {
			return nil, wrapStoreErr(err, "failed to check for existing user")
		}
	} else if existing != nil {
		return nil, ErrDuplicateEmail
	}

	hash, err := l.hasher.HashPassword(msg.Password)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid password provided")
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	user := &User{
		ID:           userID(email),
		Email:        email,
		Name:         msg.Name,
		Role:         ParseRole(msg.Role),
		PasswordHash: hash,
		IsActive:     true,
	}

	token, expiry, err := NewVerificationToken()
	if err != nil {
		return nil, err
	}
	user.SetVerificationToken(token, expiry)

	user, err = l.store.Register(ctx, user)
	if err != nil {
		// a conflict from a concurrent registration passes through as is,
		// anything else reads as a storage fault
		return nil, wrapStoreErr(err, "could not create user")
	}

	if err := l.sendVerification(ctx, user); err != nil {
		l.logger.Error("verification email dispatch failed, registration kept",
			"email", user.Email, "error", err)
	}

	recordActivity(ctx, l.activity, l.logger, ActivityEvent{
		EventType: ActivityEventRegistered,
		UserID:    user.ID,
		Email:     user.Email,
	})

	return user, nil
}

// Verify redeems a verification token. Redemption clears the token, so a
// second attempt with the same token fails with not found rather than
// silently succeeding.
func (l *AccountLifecycle) Verify(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, ErrTokenMissing
	}

	user, err := l.store.FindByVerificationToken(ctx, token)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return nil, ErrVerificationTokenNotFound
		}
		return nil, wrapStoreErr(err, "failed to look up verification token")
	}

	if user.VerificationTokenExpiry == nil || l.now().After(*user.VerificationTokenExpiry) {
		return nil, ErrVerificationTokenExpired
	}

	user.IsVerified = true
	user.ClearVerificationToken()

	if err := l.store.Save(ctx, user); err != nil {
		return nil, wrapStoreErr(err, "failed to persist verification")
	}

	recordActivity(ctx, l.activity, l.logger, ActivityEvent{
		EventType: ActivityEventVerified,
		UserID:    user.ID,
		Email:     user.Email,
	})

	return user, nil
}

// ResendVerification issues a fresh token, superseding any outstanding one,
// and re-sends the verification email. Unlike registration, a dispatch
// failure here is surfaced so the caller can retry.
func (l *AccountLifecycle) ResendVerification(ctx context.Context, email string) error {
	user, err := l.store.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if goerrors.IsNotFound(err) {
			return ErrIdentityNotFound
		}
		return wrapStoreErr(err, "failed to look up user for resend")
	}

	if user.IsVerified {
		l.logger.Debug("resend requested for already verified account", "email", user.Email)
		return nil
	}

	token, expiry, err := NewVerificationToken()
	if err != nil {
		return err
	}
	user.SetVerificationToken(token, expiry)

	if err := l.store.Save(ctx, user); err != nil {
		return wrapStoreErr(err, "failed to persist verification token")
	}

	if err := l.sendVerification(ctx, user); err != nil {
		return goerrors.Wrap(err, ErrEmailDispatchFailed.Category, ErrEmailDispatchFailed.Message).
			WithTextCode(ErrEmailDispatchFailed.TextCode)
	}

	return nil
}

func (l *AccountLifecycle) sendVerification(ctx context.Context, user *User) error {
	link := VerificationLink(l.baseURL, user.VerificationToken)

	body, err := l.renderer.RenderVerification(VerificationEmailData{
		Name: user.Name,
		Link: link,
	})
	if err != nil {
		return err
	}

	return l.mailer.Send(ctx, user.Email, verificationEmailSubject, body)
}

// userID derives a stable uuid from the normalized email, falling back to a
// random one if the derivation fails.
func userID(email string) uuid.UUID {
	if id, err := hashid.NewUUID(email); err == nil {
		return id
	}
	return uuid.New()
}
