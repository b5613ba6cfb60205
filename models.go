package identity

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserRole is the user's role
type UserRole = string

const (
	// RoleUser is the default role assigned at registration
	RoleUser UserRole = "user"
	// RoleAdmin is an administrative role
	RoleAdmin UserRole = "admin"
)

// IsValidRole checks if the role is one of the predefined valid roles
func IsValidRole(role UserRole) bool {
	switch role {
	case RoleUser, RoleAdmin:
		return true
	default:
		return false
	}
}

// ParseRole safely parses a string into a UserRole, falling back to RoleUser
func ParseRole(roleStr string) UserRole {
	if IsValidRole(roleStr) {
		return roleStr
	}
	return RoleUser
}

// User is the user model
type User struct {
	bun.BaseModel           `bun:"table:users,alias:usr"`
	ID                      uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email                   string     `bun:"email,notnull,unique" json:"email,omitempty"`
	Name                    string     `bun:"name,notnull" json:"name,omitempty"`
	Role                    UserRole   `bun:"user_role,notnull" json:"user_role,omitempty"`
	PasswordHash            string     `bun:"password_hash" json:"-"`
	IsVerified              bool       `bun:"is_verified" json:"is_verified"`
	IsActive                bool       `bun:"is_active" json:"is_active"`
	VerificationToken       string     `bun:"verification_token,nullzero" json:"-"`
	VerificationTokenExpiry *time.Time `bun:"verification_token_expiry,nullzero" json:"-"`
	RefreshToken            string     `bun:"refresh_token,nullzero" json:"-"`
	LoginAttempts           int        `bun:"login_attempts" json:"login_attempts,omitempty"`
	LoginAttemptAt          *time.Time `bun:"login_attempt_at" json:"login_attempt_at,omitempty"`
	LoggedInAt              *time.Time `bun:"loggedin_at" json:"loggedin_at,omitempty"`
	CreatedAt               *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt               *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt               *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// HasPendingVerification reports whether a verification request is outstanding.
func (u *User) HasPendingVerification() bool {
	return u.VerificationToken != "" && u.VerificationTokenExpiry != nil
}

// ClearVerificationToken retires the outstanding verification request.
// A redeemed token must never validate twice.
func (u *User) ClearVerificationToken() {
	u.VerificationToken = ""
	u.VerificationTokenExpiry = nil
}

// SetVerificationToken stores a freshly issued token, superseding any
// outstanding one.
func (u *User) SetVerificationToken(token string, expiry time.Time) {
	u.VerificationToken = token
	u.VerificationTokenExpiry = &expiry
}

// NormalizeEmail lowercases and trims an email for lookups and storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var _ Identity = (*userIdentity)(nil)

// userIdentity adapts a User record to the Identity interface without
// exposing the record itself to token issuance.
type userIdentity struct {
	id       string
	email    string
	username string
	role     string
}

func (i userIdentity) ID() string       { return i.id }
func (i userIdentity) Email() string    { return i.email }
func (i userIdentity) Username() string { return i.username }
func (i userIdentity) Role() string     { return i.role }

// IdentityFromUser builds the Identity used for token issuance.
func IdentityFromUser(user *User) Identity {
	if user == nil {
		return nil
	}
	return userIdentity{
		id:       user.ID.String(),
		email:    user.Email,
		username: user.Name,
		role:     user.Role,
	}
}
