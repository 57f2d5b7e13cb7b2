// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package auth

import (
	"context"
	"errors"

	"github.com/samber/oops"
)

// dummyPasswordHash is verified when no user matches the email so that the
// response time does not reveal whether the account exists.
//
//nolint:gosec // G101: intentionally fake hash, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// CredentialVerifier checks a presented password against a stored user.
type CredentialVerifier struct {
	users  UserRepository
	hasher PasswordHasher
}

// NewCredentialVerifier creates a CredentialVerifier.
func NewCredentialVerifier(users UserRepository, hasher PasswordHasher) (*CredentialVerifier, error) {
	if users == nil {
		return nil, oops.Errorf("users repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	return &CredentialVerifier{users: users, hasher: hasher}, nil
}

// Verify reports whether password matches storedHash. A malformed hash is
// treated as a mismatch.
func (v *CredentialVerifier) Verify(storedHash, password string) bool {
	ok, err := v.hasher.Verify(password, storedHash)
	return err == nil && ok
}

// Authenticate returns the local user identified by email if password matches.
//
// Fails with AUTH_INVALID_CREDENTIALS when the user is absent or the password
// does not match, and with AUTH_PROVIDER_MISMATCH when the account belongs to
// a federated provider.
func (v *CredentialVerifier) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := v.users.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			v.Verify(dummyPasswordHash, password)
			return nil, errInvalidCredentials()
		}
		return nil, errInternal("get user by email", err)
	}

	if user.Provider != ProviderLocal {
		return nil, oops.Code(CodeProviderMismatch).
			With("provider", string(user.Provider)).
			Errorf("This account uses %s sign-in", user.Provider)
	}

	if user.PasswordHash == nil || !v.Verify(*user.PasswordHash, password) {
		return nil, errInvalidCredentials()
	}

	return user, nil
}
