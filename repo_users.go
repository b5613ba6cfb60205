package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RotateRefreshTokenSQL swaps the stored refresh token only when the caller
// still holds the current one. The conditional write is what guarantees that
// two concurrent renewals with the same token produce exactly one winner.
var RotateRefreshTokenSQL = `UPDATE "users" AS "usr"
SET
	"refresh_token" = ?,
	"updated_at" = ?
WHERE
	"usr"."deleted_at" IS NULL
AND (
	"usr"."id" = ?
)
AND (
	"usr"."refresh_token" = ?
) RETURNING *;`

// Users is the bun backed store interface, a superset of UserStore.
type Users interface {
	UserStore
	repository.Repository[*User]
}

type users struct {
	repository.Repository[*User]
	db *bun.DB
}

var (
	_ Users                        = (*users)(nil)
	_ UserStore                    = (*users)(nil)
	_ repository.Repository[*User] = (*users)(nil)
)

// NewUsersRepository creates the bun backed UserStore.
func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &users{
		Repository: repo,
		db:         db,
	}
}

func (a *users) FindByEmail(ctx context.Context, email string) (*User, error) {
	return a.findOne(ctx, "email", NormalizeEmail(email))
}

func (a *users) FindByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return a.findOne(ctx, "id", id.String())
}

func (a *users) FindByVerificationToken(ctx context.Context, token string) (*User, error) {
	return a.findOne(ctx, "verification_token", token)
}

func (a *users) findOne(ctx context.Context, column, value string) (*User, error) {
	record := &User{}
	err := a.db.NewSelect().
		Model(record).
		Where("?TableAlias."+column+" = ?", value).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			// Classified under CategoryNotFound so callers can branch with
			// goerrors.IsNotFound. The repository's own not found error sits
			// in a database specific category that the helper does not match.
			return nil, goerrors.New("record not found", goerrors.CategoryNotFound).
				WithTextCode("RECORD_NOT_FOUND").
				WithCode(goerrors.CodeNotFound).
				WithMetadata(map[string]any{
					column: value,
				})
		}
		return nil, err
	}

	return record, nil
}

func (a *users) Register(ctx context.Context, record *User) (*User, error) {
	return a.Create(ctx, record)
}

func (a *users) Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	if record.Role == "" {
		record.Role = RoleUser
	}
	record.Email = NormalizeEmail(record.Email)
	return a.Repository.Create(ctx, record, criteria...)
}

// Save writes the full record. A plain repository update skips zero values,
// which would keep cleared token columns around, so this goes through bun
// directly.
func (a *users) Save(ctx context.Context, record *User) error {
	now := time.Now()
	record.UpdatedAt = &now

	_, err := a.db.NewUpdate().
		Model(record).
		WherePK().
		Exec(ctx)
	return err
}

// RotateRefreshToken performs the compare-and-swap described on UserStore.
func (a *users) RotateRefreshToken(ctx context.Context, id uuid.UUID, current, next string) error {
	res, err := a.Repository.Raw(ctx, RotateRefreshTokenSQL, next, time.Now(), id.String(), current)
	if err != nil {
		return err
	}

	if len(res) == 0 {
		return ErrRefreshTokenMismatch
	}

	return nil
}

func (a *users) TrackSucccessfulLogin(ctx context.Context, user *User) error {
	// NOTE: Updating using the ORM fails due to a bug, it wont reset
	// login_attempt_at, login_attempts fields.
	loggedInAt := time.Now()
	_, err := a.db.NewRaw(`
		UPDATE "users" AS "usr"
		SET
			"loggedin_at" = ?,
			"login_attempt_at" = NULL,
			"login_attempts" = 0
		WHERE
			("usr".id = ?)
			AND "usr"."deleted_at" IS NULL;
	`, loggedInAt, user.ID).Exec(ctx)

	return err
}

func (a *users) TrackAttemptedLogin(ctx context.Context, user *User) error {
	criteria := []repository.UpdateCriteria{
		repository.UpdateByID(user.ID.String()),
	}

	record := &User{}
	record.ID = user.ID
	record.LoginAttempts = user.LoginAttempts + 1
	now := time.Now()
	record.LoginAttemptAt = &now

	_, err := a.Repository.Update(ctx, record, criteria...)

	return err
}

// EnsureSchema creates the users table when it does not exist yet. Intended
// for tests and development bootstrap; production schemas are migrated
// externally.
func EnsureSchema(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().
		Model((*User)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}
