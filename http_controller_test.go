package identity_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	identity "github.com/goliatone/go-identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type controllerFixture struct {
	app   *fiber.App
	store *memoryStore
}

func newControllerFixture(t *testing.T) *controllerFixture {
	t.Helper()

	store := newMemoryStore()
	cfg := newTestConfig()
	tokens := identity.NewTokenService(cfg, nopLogger{})

	lifecycle := identity.NewAccountLifecycle(store, &stubMailer{}, cfg).
		WithLogger(nopLogger{})
	sessions := identity.NewSessionManager(store, tokens).
		WithLogger(nopLogger{})

	controller := identity.NewAuthController(lifecycle, sessions, tokens, cfg,
		identity.WithControllerLogger(nopLogger{}))

	app := fiber.New()
	controller.RegisterRoutes(app.Group("/auth"))

	return &controllerFixture{app: app, store: store}
}

func (f *controllerFixture) request(t *testing.T, method, path string, body string, mutate ...func(*http.Request)) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	for _, m := range mutate {
		m(req)
	}

	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()

	defer resp.Body.Close()
	out := map[string]any{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func responseCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// registerAndVerify drives the account through the HTTP surface until it can
// log in.
func (f *controllerFixture) registerAndVerify(t *testing.T) {
	t.Helper()

	resp := f.request(t, fiber.MethodPost, "/auth/register",
		`{"email":"ann@x.com","name":"Ann","password":"pw123456"}`)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	user, err := f.store.FindByEmail(context.Background(), "ann@x.com")
	require.NoError(t, err)

	resp = f.request(t, fiber.MethodGet, "/auth/verify?token="+user.VerificationToken, "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func (f *controllerFixture) login(t *testing.T) (*http.Response, map[string]any) {
	t.Helper()

	resp := f.request(t, fiber.MethodPost, "/auth/login",
		`{"email":"ann@x.com","password":"pw123456"}`)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	return resp, decodeBody(t, resp)
}

func TestHTTPRegisterFlow(t *testing.T) {
	f := newControllerFixture(t)

	resp := f.request(t, fiber.MethodPost, "/auth/register",
		`{"email":"ann@x.com","name":"Ann","password":"pw123456"}`)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	body := decodeBody(t, resp)
	data, ok := body["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ann@x.com", data["email"])
	assert.NotContains(t, data, "password_hash")
	assert.NotContains(t, data, "verification_token")

	t.Run("duplicate email conflicts", func(t *testing.T) {
		resp := f.request(t, fiber.MethodPost, "/auth/register",
			`{"email":"ann@x.com","name":"Ann","password":"pw123456"}`)
		assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

		body := decodeBody(t, resp)
		errBody, ok := body["error"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "DUPLICATE_EMAIL", errBody["text_code"])
	})

	t.Run("bad payload", func(t *testing.T) {
		resp := f.request(t, fiber.MethodPost, "/auth/register",
			`{"email":"nope","name":"","password":"short"}`)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unknown verification token", func(t *testing.T) {
		resp := f.request(t, fiber.MethodGet, "/auth/verify?token=deadbeef", "")
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	})

	t.Run("resend verification", func(t *testing.T) {
		resp := f.request(t, fiber.MethodPost, "/auth/resend-verification",
			`{"email":"ann@x.com"}`)
		assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)
	})
}

func TestHTTPLoginFlow(t *testing.T) {
	f := newControllerFixture(t)
	f.registerAndVerify(t)

	resp, body := f.login(t)

	data, ok := body["data"].(map[string]any)
	require.True(t, ok)
	assert.NotEmpty(t, data["access_token"])
	assert.NotEmpty(t, data["refresh_token"])

	access := responseCookie(resp, "accessToken")
	require.NotNil(t, access)
	assert.True(t, access.HttpOnly)
	assert.Equal(t, data["access_token"], access.Value)

	refresh := responseCookie(resp, "refreshToken")
	require.NotNil(t, refresh)
	assert.Equal(t, data["refresh_token"], refresh.Value)

	t.Run("wrong password", func(t *testing.T) {
		resp := f.request(t, fiber.MethodPost, "/auth/login",
			`{"email":"ann@x.com","password":"not-the-password"}`)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

		body := decodeBody(t, resp)
		errBody, ok := body["error"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "INVALID_CREDENTIALS", errBody["text_code"])
	})

	t.Run("unknown email reports the same error", func(t *testing.T) {
		resp := f.request(t, fiber.MethodPost, "/auth/login",
			`{"email":"ghost@x.com","password":"pw123456"}`)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

		body := decodeBody(t, resp)
		errBody, ok := body["error"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "INVALID_CREDENTIALS", errBody["text_code"])
	})
}

func TestHTTPProtectedRoutes(t *testing.T) {
	f := newControllerFixture(t)
	f.registerAndVerify(t)
	_, body := f.login(t)

	data := body["data"].(map[string]any)
	accessToken, _ := data["access_token"].(string)
	require.NotEmpty(t, accessToken)

	t.Run("me with bearer token", func(t *testing.T) {
		resp := f.request(t, fiber.MethodGet, "/auth/me", "", func(r *http.Request) {
			r.Header.Set(fiber.HeaderAuthorization, "Bearer "+accessToken)
		})
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)

		body := decodeBody(t, resp)
		session, ok := body["data"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "user", session["role"])
	})

	t.Run("me with access cookie", func(t *testing.T) {
		resp := f.request(t, fiber.MethodGet, "/auth/me", "", func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: "accessToken", Value: accessToken})
		})
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	})

	t.Run("me without token", func(t *testing.T) {
		resp := f.request(t, fiber.MethodGet, "/auth/me", "")
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})

	t.Run("me with garbage token", func(t *testing.T) {
		resp := f.request(t, fiber.MethodGet, "/auth/me", "", func(r *http.Request) {
			r.Header.Set(fiber.HeaderAuthorization, "Bearer not.a.jwt")
		})
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})
}

func TestHTTPRefreshAndLogout(t *testing.T) {
	f := newControllerFixture(t)
	f.registerAndVerify(t)
	resp, body := f.login(t)

	data := body["data"].(map[string]any)
	accessToken, _ := data["access_token"].(string)
	refreshCookie := responseCookie(resp, "refreshToken")
	require.NotNil(t, refreshCookie)

	t.Run("refresh rotates via cookie", func(t *testing.T) {
		resp := f.request(t, fiber.MethodPost, "/auth/refresh", "", func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: "refreshToken", Value: refreshCookie.Value})
		})
		require.Equal(t, fiber.StatusOK, resp.StatusCode)

		body := decodeBody(t, resp)
		data := body["data"].(map[string]any)
		assert.NotEqual(t, refreshCookie.Value, data["refresh_token"])

		rotated := responseCookie(resp, "refreshToken")
		require.NotNil(t, rotated)
		assert.Equal(t, data["refresh_token"], rotated.Value)

		// the spent token is rejected and the cookies cleared
		resp = f.request(t, fiber.MethodPost, "/auth/refresh", "", func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: "refreshToken", Value: refreshCookie.Value})
		})
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

		cleared := responseCookie(resp, "refreshToken")
		require.NotNil(t, cleared)
		assert.Empty(t, cleared.Value)
	})

	t.Run("refresh accepts a body token", func(t *testing.T) {
		// a fresh login issues a token we can rotate through the JSON body
		loginResp, _ := f.login(t)
		rotated := responseCookie(loginResp, "refreshToken")
		require.NotNil(t, rotated)

		refreshResp := f.request(t, fiber.MethodPost, "/auth/refresh",
			`{"refresh_token":"`+rotated.Value+`"}`)
		assert.Equal(t, fiber.StatusOK, refreshResp.StatusCode)
	})

	t.Run("logout invalidates the session", func(t *testing.T) {
		loginResp, loginBody := f.login(t)
		data := loginBody["data"].(map[string]any)
		accessToken = data["access_token"].(string)
		refreshCookie := responseCookie(loginResp, "refreshToken")
		require.NotNil(t, refreshCookie)

		resp := f.request(t, fiber.MethodPost, "/auth/logout", "", func(r *http.Request) {
			r.Header.Set(fiber.HeaderAuthorization, "Bearer "+accessToken)
		})
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)

		cleared := responseCookie(resp, "accessToken")
		require.NotNil(t, cleared)
		assert.Empty(t, cleared.Value)

		// the refresh token stored before logout no longer renews
		resp = f.request(t, fiber.MethodPost, "/auth/refresh", "", func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: "refreshToken", Value: refreshCookie.Value})
		})
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})
}
