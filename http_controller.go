package identity

import (
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

const (
	accessTokenCookie  = "accessToken"
	refreshTokenCookie = "refreshToken"
	sessionLocalsKey   = "session"
)

// AuthController exposes the account and session operations over HTTP. The
// core components never depend on it; it is the request layer collaborator.
type AuthController struct {
	Debug     bool
	Logger    Logger
	Lifecycle *AccountLifecycle
	Sessions  *SessionManager
	Tokens    TokenService

	accessCookieTTL  time.Duration
	refreshCookieTTL time.Duration
}

type AuthControllerOption func(*AuthController) *AuthController

func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func WithControllerDebug(debug bool) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Debug = debug
		return c
	}
}

// NewAuthController wires the HTTP layer against the core components.
func NewAuthController(lifecycle *AccountLifecycle, sessions *SessionManager, tokens TokenService, cfg Config, opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger:           defLogger{},
		Lifecycle:        lifecycle,
		Sessions:         sessions,
		Tokens:           tokens,
		accessCookieTTL:  cfg.GetAccessTokenExpiration(),
		refreshCookieTTL: cfg.GetRefreshTokenExpiration(),
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Lifecycle == nil {
		panic("Missing AccountLifecycle in auth controller...")
	}

	if c.Sessions == nil {
		panic("Missing SessionManager in auth controller...")
	}

	return c
}

// RegisterRoutes mounts the auth endpoints on the given router.
func (a *AuthController) RegisterRoutes(app fiber.Router) {
	app.Post("/register", a.RegisterPost)
	app.Get("/verify", a.VerifyGet)
	app.Post("/resend-verification", a.ResendVerificationPost)
	app.Post("/login", a.LoginPost)
	app.Post("/refresh", a.RefreshPost)
	app.Post("/logout", a.Protected(), a.LogoutPost)
	app.Get("/me", a.Protected(), a.MeGet)
}

func (a *AuthController) RegisterPost(c *fiber.Ctx) error {
	payload := RegisterUserMessage{}
	if err := c.BodyParser(&payload); err != nil {
		return a.errorResponse(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "could not parse registration payload").
			WithCode(goerrors.CodeBadRequest))
	}

	if a.Debug {
		a.Logger.Debug("registration payload %s", print.MaybePrettyJSON(payload))
	}

	user, err := a.Lifecycle.Register(c.UserContext(), payload)
	if err != nil {
		return a.errorResponse(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"data":    user,
		"message": "User registered successfully! Check your inbox for the verification link.",
	})
}

func (a *AuthController) VerifyGet(c *fiber.Ctx) error {
	user, err := a.Lifecycle.Verify(c.UserContext(), c.Query("token"))
	if err != nil {
		return a.errorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"data":    user,
		"message": "Email verified successfully!",
	})
}

// ResendVerificationRequest payload
type ResendVerificationRequest struct {
	Email string `form:"email" json:"email"`
}

// Validate will run validation rules
func (r ResendVerificationRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

func (a *AuthController) ResendVerificationPost(c *fiber.Ctx) error {
	payload := ResendVerificationRequest{}
	if err := c.BodyParser(&payload); err != nil {
		return a.errorResponse(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "could not parse payload").
			WithCode(goerrors.CodeBadRequest))
	}

	if err := payload.Validate(); err != nil {
		return a.errorResponse(c, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid payload").
			WithCode(goerrors.CodeBadRequest))
	}

	if err := a.Lifecycle.ResendVerification(c.UserContext(), payload.Email); err != nil {
		return a.errorResponse(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message": "Verification email sent.",
	})
}

// LoginRequest payload
type LoginRequest struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

func (a *AuthController) LoginPost(c *fiber.Ctx) error {
	payload := LoginRequest{}
	if err := c.BodyParser(&payload); err != nil {
		return a.errorResponse(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "could not parse login payload").
			WithCode(goerrors.CodeBadRequest))
	}

	if err := payload.Validate(); err != nil {
		return a.errorResponse(c, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid login payload").
			WithCode(goerrors.CodeBadRequest))
	}

	pair, err := a.Sessions.Login(c.UserContext(), payload.Email, payload.Password)
	if err != nil {
		a.Logger.Error("Login error: %s", err)
		return a.errorResponse(c, err)
	}

	a.setTokenCookies(c, pair)

	return c.JSON(fiber.Map{
		"data":    pair,
		"message": "Logged in successfully!",
	})
}

// RefreshRequest payload, used when the token does not travel in a cookie.
type RefreshRequest struct {
	RefreshToken string `form:"refresh_token" json:"refresh_token"`
}

func (a *AuthController) RefreshPost(c *fiber.Ctx) error {
	token := c.Cookies(refreshTokenCookie)
	if token == "" {
		payload := RefreshRequest{}
		if err := c.BodyParser(&payload); err == nil {
			token = payload.RefreshToken
		}
	}

	pair, err := a.Sessions.Renew(c.UserContext(), token)
	if err != nil {
		a.clearTokenCookies(c)
		return a.errorResponse(c, err)
	}

	a.setTokenCookies(c, pair)

	return c.JSON(fiber.Map{
		"data":    pair,
		"message": "Session renewed.",
	})
}

func (a *AuthController) LogoutPost(c *fiber.Ctx) error {
	session, ok := c.Locals(sessionLocalsKey).(*SessionObject)
	if !ok || session == nil {
		return a.errorResponse(c, ErrTokenMissing)
	}

	userID, err := session.GetUserUUID()
	if err != nil {
		return a.errorResponse(c, ErrTokenInvalid)
	}

	if err := a.Sessions.Logout(c.UserContext(), userID); err != nil {
		return a.errorResponse(c, err)
	}

	a.clearTokenCookies(c)

	return c.JSON(fiber.Map{
		"message": "Logged out.",
	})
}

func (a *AuthController) MeGet(c *fiber.Ctx) error {
	session, ok := c.Locals(sessionLocalsKey).(*SessionObject)
	if !ok || session == nil {
		return a.errorResponse(c, ErrTokenMissing)
	}

	return c.JSON(fiber.Map{
		"data": session,
	})
}

// Protected validates the access token from the Authorization header or the
// access cookie and stashes the session for downstream handlers. An expired
// access token is reported as such so clients know to hit the refresh
// endpoint instead of re-authenticating.
func (a *AuthController) Protected() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerToken(c.Get(fiber.HeaderAuthorization))
		if token == "" {
			token = c.Cookies(accessTokenCookie)
		}

		if token == "" {
			return a.errorResponse(c, ErrTokenMissing)
		}

		claims, err := a.Tokens.Validate(token, TokenKindAccess)
		if err != nil {
			return a.errorResponse(c, err)
		}

		c.Locals(sessionLocalsKey, SessionFromClaims(claims))
		c.SetUserContext(WithClaimsContext(c.UserContext(), claims))

		return c.Next()
	}
}

func bearerToken(header string) string {
	const scheme = "Bearer "
	if len(header) > len(scheme) && strings.EqualFold(header[:len(scheme)], scheme) {
		return header[len(scheme):]
	}
	return ""
}

func (a *AuthController) setTokenCookies(c *fiber.Ctx, pair *TokenPair) {
	a.setCookie(c, accessTokenCookie, pair.AccessToken, a.accessCookieTTL)
	a.setCookie(c, refreshTokenCookie, pair.RefreshToken, a.refreshCookieTTL)
}

func (a *AuthController) clearTokenCookies(c *fiber.Ctx) {
	a.cookieDel(c, accessTokenCookie)
	a.cookieDel(c, refreshTokenCookie)
}

func (a *AuthController) setCookie(c *fiber.Ctx, name, val string, duration time.Duration) {
	c.Cookie(&fiber.Cookie{
		Name:     name,
		Value:    val,
		Expires:  time.Now().Add(duration),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (a *AuthController) cookieDel(c *fiber.Ctx, name string) {
	c.Cookie(&fiber.Cookie{
		Name:     name,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (a *AuthController) errorResponse(c *fiber.Ctx, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "An unexpected server error occurred").
			WithCode(goerrors.CodeInternal)
	}

	if a.Debug {
		a.Logger.Debug("request error %s", print.MaybePrettyJSON(richErr))
	}

	status := richErr.Code
	if status == 0 {
		status = fiber.StatusInternalServerError
	}

	return c.Status(status).JSON(fiber.Map{
		"error": fiber.Map{
			"message":   richErr.Message,
			"category":  richErr.Category,
			"text_code": richErr.TextCode,
		},
	})
}
