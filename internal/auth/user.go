// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package auth

import (
	"context"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Provider identifies the source of a user's identity.
type Provider string

// Known identity providers.
const (
	ProviderLocal  Provider = "local"
	ProviderGoogle Provider = "google"
)

// AccountStatus is the confirmation state of an account.
type AccountStatus string

// Account statuses. Transitions only go from unverified to verified.
const (
	AccountUnverified AccountStatus = "unverified"
	AccountVerified   AccountStatus = "verified"
)

// Input validation constraints.
const (
	MinNicknameLength    = 3
	MaxNicknameLength    = 30
	MinPasswordLength    = 8
	MaxPasswordLength    = 128
	MaxDisplayNameLength = 64
)

// nicknameRegex matches nicknames that start with a letter and contain only
// letters, numbers, and underscores.
var nicknameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// User is an account record owned by the user store.
type User struct {
	ID                 ulid.ULID     `json:"id"`
	Email              string        `json:"email"`
	Nickname           string        `json:"nickName"`
	DisplayName        string        `json:"displayName"`
	PasswordHash       *string       `json:"-"`
	Provider           Provider      `json:"provider"`
	ProviderID         *string       `json:"-"`
	AccountStatus      AccountStatus `json:"accountStatus"`
	VerifiedByProvider bool          `json:"verifiedByProvider"`
	CreatedAt          time.Time     `json:"createdAt"`
	UpdatedAt          time.Time     `json:"updatedAt"`
}

// IsVerified reports whether the account has been confirmed.
func (u *User) IsVerified() bool {
	return u.AccountStatus == AccountVerified
}

// UserPatch holds the optional fields applied by UserRepository.Update.
// Nil fields are left unchanged.
type UserPatch struct {
	AccountStatus      *AccountStatus
	DisplayName        *string
	PasswordHash       *string
	ProviderID         *string
	VerifiedByProvider *bool
}

// Credentials are the email and plaintext password presented at login.
// They are never persisted.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Registration is the input for creating a local account.
type Registration struct {
	Email       string `json:"email"`
	Nickname    string `json:"nickName"`
	DisplayName string `json:"displayName"`
	Password    string `json:"password"`
}

// UserField names a uniquely constrained user column.
type UserField string

// Unique user fields.
const (
	FieldEmail    UserField = "email"
	FieldNickname UserField = "nickname"
)

// UniqueViolationError is returned by UserRepository.Create when a unique
// constraint rejects the insert. A single insert reports one field.
type UniqueViolationError struct {
	Field UserField
}

func (e *UniqueViolationError) Error() string {
	return fmt.Sprintf("unique violation on %s", e.Field)
}

// UserRepository manages user persistence.
type UserRepository interface {
	// Create stores a new user. Returns a *UniqueViolationError (possibly
	// wrapped) when the email or nickname is already taken.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByEmail retrieves a user by email (case-insensitive).
	// Returns ErrNotFound if no user has the given email.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// GetByProviderID retrieves a user linked to the given federated identity.
	GetByProviderID(ctx context.Context, provider Provider, providerID string) (*User, error)

	// Update applies patch to the user and returns the stored record.
	Update(ctx context.Context, id ulid.ULID, patch UserPatch) (*User, error)
}

// NewLocalUser creates an unverified local account from a validated
// registration and a password hash.
func NewLocalUser(reg Registration, passwordHash string) (*User, error) {
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, oops.Code(CodeInvalidInput).Errorf("password hash cannot be empty")
	}

	displayName := strings.TrimSpace(reg.DisplayName)
	if displayName == "" {
		displayName = reg.Nickname
	}

	now := time.Now().UTC()
	return &User{
		ID:            ulid.Make(),
		Email:         NormalizeEmail(reg.Email),
		Nickname:      reg.Nickname,
		DisplayName:   displayName,
		PasswordHash:  &passwordHash,
		Provider:      ProviderLocal,
		AccountStatus: AccountUnverified,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// NewFederatedUser creates a passwordless account linked to a provider identity.
// The account is verified when the provider vouches for the email address.
func NewFederatedUser(identity Identity, nickname string) (*User, error) {
	if err := ValidateNickname(nickname); err != nil {
		return nil, err
	}
	if identity.ProviderID == "" {
		return nil, oops.Code(CodeInvalidInput).Errorf("provider id cannot be empty")
	}

	status := AccountUnverified
	if identity.Verified {
		status = AccountVerified
	}
	displayName := strings.TrimSpace(identity.DisplayName)
	if displayName == "" {
		displayName = nickname
	}
	providerID := identity.ProviderID

	now := time.Now().UTC()
	return &User{
		ID:                 ulid.Make(),
		Email:              NormalizeEmail(identity.Email),
		Nickname:           nickname,
		DisplayName:        displayName,
		Provider:           identity.Provider,
		ProviderID:         &providerID,
		AccountStatus:      status,
		VerifiedByProvider: identity.Verified,
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

// Validate checks a registration against the account rules.
func (r Registration) Validate() error {
	if err := ValidateEmail(r.Email); err != nil {
		return err
	}
	if err := ValidateNickname(r.Nickname); err != nil {
		return err
	}
	if len(strings.TrimSpace(r.DisplayName)) > MaxDisplayNameLength {
		return oops.Code(CodeInvalidInput).
			With("max", MaxDisplayNameLength).
			Errorf("display name must be at most %d characters", MaxDisplayNameLength)
	}
	return ValidatePassword(r.Password)
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks that email is a bare address.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return oops.Code(CodeInvalidInput).Errorf("email cannot be empty")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return oops.Code(CodeInvalidInput).Errorf("email must be a valid address")
	}
	return nil
}

// ValidateNickname validates a nickname.
// Nickname requirements:
// - Length: MinNicknameLength to MaxNicknameLength characters
// - Must start with a letter
// - Can contain only letters, numbers, and underscores
func ValidateNickname(nickname string) error {
	if nickname == "" {
		return oops.Code(CodeInvalidInput).Errorf("nickname cannot be empty")
	}
	if len(nickname) < MinNicknameLength {
		return oops.Code(CodeInvalidInput).
			With("min", MinNicknameLength).
			Errorf("nickname must be at least %d characters", MinNicknameLength)
	}
	if len(nickname) > MaxNicknameLength {
		return oops.Code(CodeInvalidInput).
			With("max", MaxNicknameLength).
			Errorf("nickname must be at most %d characters", MaxNicknameLength)
	}
	if !nicknameRegex.MatchString(nickname) {
		return oops.Code(CodeInvalidInput).
			Errorf("nickname must start with a letter and contain only letters, numbers, and underscores")
	}
	return nil
}

// ValidatePassword checks the password length bounds.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return oops.Code(CodeInvalidInput).
			With("min", MinPasswordLength).
			Errorf("password must be at least %d characters", MinPasswordLength)
	}
	if len(password) > MaxPasswordLength {
		return oops.Code(CodeInvalidInput).
			With("max", MaxPasswordLength).
			Errorf("password must be at most %d characters", MaxPasswordLength)
	}
	return nil
}
