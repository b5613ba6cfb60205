package identity_test

import (
	"context"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	identity "github.com/goliatone/go-identity"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

func notFoundErr() error {
	return goerrors.New("record not found", goerrors.CategoryNotFound)
}

// memoryStore is an in-memory UserStore with the same atomicity guarantees
// the bun store provides: RotateRefreshToken is a compare-and-swap.
type memoryStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]*identity.User

	// when set, every call fails with this error
	failWith error
	// when set, only Register fails, lookups keep working
	failRegisterWith error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{users: map[uuid.UUID]*identity.User{}}
}

func cloneUser(u *identity.User) *identity.User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

func (s *memoryStore) FindByEmail(ctx context.Context, email string) (*identity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWith != nil {
		return nil, s.failWith
	}

	for _, u := range s.users {
		if u.Email == identity.NormalizeEmail(email) {
			return cloneUser(u), nil
		}
	}
	return nil, notFoundErr()
}

func (s *memoryStore) FindByID(ctx context.Context, id uuid.UUID) (*identity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWith != nil {
		return nil, s.failWith
	}

	if u, ok := s.users[id]; ok {
		return cloneUser(u), nil
	}
	return nil, notFoundErr()
}

func (s *memoryStore) FindByVerificationToken(ctx context.Context, token string) (*identity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWith != nil {
		return nil, s.failWith
	}

	for _, u := range s.users {
		if token != "" && u.VerificationToken == token {
			return cloneUser(u), nil
		}
	}
	return nil, notFoundErr()
}

func (s *memoryStore) Register(ctx context.Context, user *identity.User) (*identity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWith != nil {
		return nil, s.failWith
	}
	if s.failRegisterWith != nil {
		return nil, s.failRegisterWith
	}

	for _, u := range s.users {
		if u.Email == user.Email {
			return nil, goerrors.New("duplicate email", goerrors.CategoryConflict)
		}
	}

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}

	s.users[user.ID] = cloneUser(user)
	return cloneUser(user), nil
}

func (s *memoryStore) Save(ctx context.Context, user *identity.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWith != nil {
		return s.failWith
	}

	if _, ok := s.users[user.ID]; !ok {
		return notFoundErr()
	}

	s.users[user.ID] = cloneUser(user)
	return nil
}

func (s *memoryStore) RotateRefreshToken(ctx context.Context, id uuid.UUID, current, next string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWith != nil {
		return s.failWith
	}

	u, ok := s.users[id]
	if !ok || u.RefreshToken != current {
		return identity.ErrRefreshTokenMismatch
	}

	u.RefreshToken = next
	return nil
}

func (s *memoryStore) TrackAttemptedLogin(ctx context.Context, user *identity.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u, ok := s.users[user.ID]; ok {
		u.LoginAttempts++
		now := time.Now()
		u.LoginAttemptAt = &now
	}
	return nil
}

func (s *memoryStore) TrackSucccessfulLogin(ctx context.Context, user *identity.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u, ok := s.users[user.ID]; ok {
		u.LoginAttempts = 0
		u.LoginAttemptAt = nil
		now := time.Now()
		u.LoggedInAt = &now
	}
	return nil
}

// remove drops the record, simulating a hard deleted account.
func (s *memoryStore) remove(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
}

// get returns the stored record, bypassing the UserStore interface.
func (s *memoryStore) get(id uuid.UUID) *identity.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneUser(s.users[id])
}

type sentMail struct {
	To      string
	Subject string
	Body    string
}

// stubMailer records outbound mail and optionally fails every send.
type stubMailer struct {
	mu       sync.Mutex
	sent     []sentMail
	failWith error
}

func (m *stubMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failWith != nil {
		return m.failWith
	}

	m.sent = append(m.sent, sentMail{To: to, Subject: subject, Body: htmlBody})
	return nil
}

func (m *stubMailer) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func (m *stubMailer) lastSent() (sentMail, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sent) == 0 {
		return sentMail{}, false
	}
	return m.sent[len(m.sent)-1], true
}

// MockLogger implements identity.Logger for testing
type MockLogger struct {
	mock.Mock
}

func (m *MockLogger) Debug(format string, args ...any) {
	m.Called(format, args)
}

func (m *MockLogger) Info(format string, args ...any) {
	m.Called(format, args)
}

func (m *MockLogger) Error(format string, args ...any) {
	m.Called(format, args)
}

// nopLogger swallows everything, keeps test output quiet.
type nopLogger struct{}

func (nopLogger) Debug(format string, args ...any) {}
func (nopLogger) Info(format string, args ...any)  {}
func (nopLogger) Error(format string, args ...any) {}

type testConfig struct {
	accessKey  string
	refreshKey string
	accessTTL  time.Duration
	refreshTTL time.Duration
	issuer     string
	audience   []string
	baseURL    string
}

func newTestConfig() *testConfig {
	return &testConfig{
		accessKey:  "test-access-secret",
		refreshKey: "test-refresh-secret",
		accessTTL:  15 * time.Minute,
		refreshTTL: 7 * 24 * time.Hour,
		issuer:     "test-issuer",
		audience:   []string{"test-audience"},
		baseURL:    "http://localhost:3000",
	}
}

func (c *testConfig) GetAccessSigningKey() string  { return c.accessKey }
func (c *testConfig) GetRefreshSigningKey() string { return c.refreshKey }

func (c *testConfig) GetAccessTokenExpiration() time.Duration  { return c.accessTTL }
func (c *testConfig) GetRefreshTokenExpiration() time.Duration { return c.refreshTTL }

func (c *testConfig) GetIssuer() string     { return c.issuer }
func (c *testConfig) GetAudience() []string { return c.audience }
func (c *testConfig) GetBaseURL() string    { return c.baseURL }
