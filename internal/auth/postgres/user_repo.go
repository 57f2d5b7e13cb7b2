// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

// Package postgres implements the auth repositories on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/authgate/authgate/internal/auth"
)

// Unique constraint names from the users migration.
const (
	constraintEmail    = "users_email_key"
	constraintNickname = "users_nickname_key"
)

const userColumns = `id, email, nickname, display_name, password_hash, provider,
	provider_id, account_status, verified_by_provider, created_at, updated_at`

// poolIface is the subset of *pgxpool.Pool used by the repositories.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UserRepository implements auth.UserRepository using PostgreSQL.
type UserRepository struct {
	pool poolIface
	now  func() time.Time
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool poolIface) *UserRepository {
	return &UserRepository{pool: pool, now: time.Now}
}

// Create stores a new user. Unique violations on email or nickname are
// reported as *auth.UniqueViolationError.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	now := r.now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = now
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		user.ID.String(),
		user.Email,
		user.Nickname,
		user.DisplayName,
		user.PasswordHash,
		string(user.Provider),
		user.ProviderID,
		string(user.AccountStatus),
		user.VerifiedByProvider,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if field, ok := uniqueViolationField(err); ok {
			return oops.Code("USER_DUPLICATE").
				With("field", string(field)).
				Wrap(&auth.UniqueViolationError{Field: field})
		}
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("email", user.Email).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id.String())
	return r.get(row, "id", id.String())
}

// GetByEmail retrieves a user by email (case-insensitive).
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email)
	return r.get(row, "email", email)
}

// GetByProviderID retrieves the user linked to a federated identity.
func (r *UserRepository) GetByProviderID(ctx context.Context, provider auth.Provider, providerID string) (*auth.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE provider = $1 AND provider_id = $2`,
		string(provider), providerID)
	return r.get(row, "provider_id", providerID)
}

// Update applies the non-nil fields of patch and returns the stored user.
func (r *UserRepository) Update(ctx context.Context, id ulid.ULID, patch auth.UserPatch) (*auth.User, error) {
	var status *string
	if patch.AccountStatus != nil {
		s := string(*patch.AccountStatus)
		status = &s
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE users SET
			account_status = COALESCE($2, account_status),
			display_name = COALESCE($3, display_name),
			password_hash = COALESCE($4, password_hash),
			provider_id = COALESCE($5, provider_id),
			verified_by_provider = COALESCE($6, verified_by_provider),
			updated_at = $7
		WHERE id = $1
		RETURNING `+userColumns,
		id.String(),
		status,
		patch.DisplayName,
		patch.PasswordHash,
		patch.ProviderID,
		patch.VerifiedByProvider,
		r.now().UTC(),
	)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_UPDATE_FAILED").
			With("operation", "update user").
			With("id", id.String()).
			Wrap(err)
	}
	return user, nil
}

func (r *UserRepository) get(row pgx.Row, key, value string) (*auth.User, error) {
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With(key, value).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_FAILED").
			With("operation", "get user by "+key).
			With(key, value).
			Wrap(err)
	}
	return user, nil
}

func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		user     auth.User
		idStr    string
		provider string
		status   string
	)
	err := row.Scan(
		&idStr,
		&user.Email,
		&user.Nickname,
		&user.DisplayName,
		&user.PasswordHash,
		&provider,
		&user.ProviderID,
		&status,
		&user.VerifiedByProvider,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with lookup context
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("USER_CORRUPT_ID").With("id", idStr).Wrap(err)
	}
	user.ID = id
	user.Provider = auth.Provider(provider)
	user.AccountStatus = auth.AccountStatus(status)
	return &user, nil
}

// uniqueViolationField maps a unique_violation on a users constraint to the
// offending field.
func uniqueViolationField(err error) (auth.UserField, bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgerrcode.UniqueViolation {
		return "", false
	}
	switch pgErr.ConstraintName {
	case constraintEmail:
		return auth.FieldEmail, true
	case constraintNickname:
		return auth.FieldNickname, true
	}
	return "", false
}
