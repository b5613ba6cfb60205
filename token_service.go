package identity

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
)

// TokenKind selects which signing secret a token is bound to.
type TokenKind string

const (
	// TokenKindAccess tokens are short lived and prove identity per request.
	TokenKindAccess TokenKind = "access"
	// TokenKindRefresh tokens are long lived and exchanged for new pairs.
	TokenKindRefresh TokenKind = "refresh"
)

// VerificationTokenTTL is how long an email verification token stays
// redeemable after issuance.
const VerificationTokenTTL = 10 * time.Minute

// verificationTokenBytes of entropy go into every verification token.
const verificationTokenBytes = 32

// TokenService issues and validates the signed tokens of the session
// protocol. Validity is determined purely by signature and expiry, no store
// lookup is required.
type TokenService interface {
	IssueAccessToken(identity Identity) (string, error)
	IssueRefreshToken(identity Identity) (string, error)
	IssuePair(identity Identity) (*TokenPair, error)
	Validate(tokenString string, kind TokenKind) (AuthClaims, error)
}

// TokenServiceImpl implements the TokenService interface
type TokenServiceImpl struct {
	accessKey  []byte
	refreshKey []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	issuer     string
	audience   jwt.ClaimStrings
	logger     Logger
}

// NewTokenService creates a new TokenService instance. The access and
// refresh secrets are independent: a refresh token never verifies against
// the access key and vice versa.
func NewTokenService(cfg Config, logger Logger) *TokenServiceImpl {
	if logger == nil {
		logger = defLogger{}
	}
	return &TokenServiceImpl{
		accessKey:  []byte(cfg.GetAccessSigningKey()),
		refreshKey: []byte(cfg.GetRefreshSigningKey()),
		accessTTL:  cfg.GetAccessTokenExpiration(),
		refreshTTL: cfg.GetRefreshTokenExpiration(),
		issuer:     cfg.GetIssuer(),
		audience:   cfg.GetAudience(),
		logger:     logger,
	}
}

// IssueAccessToken creates a short lived JWT for the given identity
func (ts *TokenServiceImpl) IssueAccessToken(identity Identity) (string, error) {
	return ts.issue(identity, TokenKindAccess)
}

// IssueRefreshToken creates a long lived JWT for the given identity
func (ts *TokenServiceImpl) IssueRefreshToken(identity Identity) (string, error) {
	return ts.issue(identity, TokenKindRefresh)
}

// IssuePair creates an access and refresh token for the given identity
func (ts *TokenServiceImpl) IssuePair(identity Identity) (*TokenPair, error) {
	access, err := ts.IssueAccessToken(identity)
	if err != nil {
		return nil, err
	}

	refresh, err := ts.IssueRefreshToken(identity)
	if err != nil {
		return nil, err
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (ts *TokenServiceImpl) issue(identity Identity, kind TokenKind) (string, error) {
	if identity == nil {
		return "", errors.New("identity must not be nil", errors.CategoryInternal)
	}

	key, ttl := ts.keyFor(kind)
	now := time.Now()

	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   identity.ID(),
			Audience:  ts.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UID:      identity.ID(),
		UserRole: identity.Role(),
	}

	ensureTokenID(&claims.RegisteredClaims)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedString, err := token.SignedString(key)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign JWT")
	}

	return signedString, nil
}

// Validate parses and validates a token string, returning structured claims.
// Failures are reported as distinct kinds: ErrTokenExpired for expiry,
// ErrTokenMalformed for structural parse failures, ErrTokenInvalid for bad
// signatures (including tokens signed with the other secret).
func (ts *TokenServiceImpl) Validate(tokenString string, kind TokenKind) (AuthClaims, error) {
	if tokenString == "" {
		return nil, ErrTokenMissing
	}

	key, _ := ts.keyFor(kind)

	parserOptions := make([]jwt.ParserOption, 0, 2)
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(ts.audience...))
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("TokenService validate encountered unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return key, nil
	}, parserOptions...)

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrTokenMalformed
		default:
			return nil, ErrTokenInvalid
		}
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		return claims, nil
	}

	ts.logger.Error("TokenService validate could not decode or validate claims")
	return nil, ErrTokenInvalid
}

func (ts *TokenServiceImpl) keyFor(kind TokenKind) ([]byte, time.Duration) {
	if kind == TokenKindRefresh {
		return ts.refreshKey, ts.refreshTTL
	}
	return ts.accessKey, ts.accessTTL
}

// NewVerificationToken generates a single use, time limited token proving
// control of an email address. The token is opaque, collision resistance
// comes from the CSPRNG.
func NewVerificationToken() (string, time.Time, error) {
	buf := make([]byte, verificationTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", time.Time{}, errors.Wrap(err, errors.CategoryInternal, "failed to generate verification token")
	}

	return hex.EncodeToString(buf), time.Now().Add(VerificationTokenTTL), nil
}
