// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package auth_test

import (
	"context"
	"errors"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/internal/auth/mocks"
	"github.com/authgate/authgate/pkg/errutil"
)

const storedHash = "$argon2id$v=19$m=65536,t=1,p=4$c2FsdHNhbHQ$aGFzaGhhc2g"

func localUser() *auth.User {
	hash := storedHash
	return &auth.User{
		ID:            ulid.Make(),
		Email:         "ada@example.com",
		Nickname:      "ada",
		DisplayName:   "Ada",
		PasswordHash:  &hash,
		Provider:      auth.ProviderLocal,
		AccountStatus: auth.AccountUnverified,
	}
}

func TestNewCredentialVerifier_NilDependencies(t *testing.T) {
	_, err := auth.NewCredentialVerifier(nil, mocks.NewMockPasswordHasher(t))
	assert.ErrorContains(t, err, "users repository is required")

	_, err = auth.NewCredentialVerifier(mocks.NewMockUserRepository(t), nil)
	assert.ErrorContains(t, err, "password hasher is required")
}

func TestCredentialVerifier_Authenticate(t *testing.T) {
	ctx := context.Background()

	t.Run("correct password", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		v, err := auth.NewCredentialVerifier(users, hasher)
		require.NoError(t, err)

		user := localUser()
		users.On("GetByEmail", ctx, "ada@example.com").Return(user, nil)
		hasher.On("Verify", "password123", storedHash).Return(true, nil)

		got, err := v.Authenticate(ctx, "  Ada@Example.com ", "password123")
		require.NoError(t, err)
		assert.Equal(t, user, got)
	})

	t.Run("wrong password", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		v, err := auth.NewCredentialVerifier(users, hasher)
		require.NoError(t, err)

		users.On("GetByEmail", ctx, "ada@example.com").Return(localUser(), nil)
		hasher.On("Verify", "wrong", storedHash).Return(false, nil)

		_, err = v.Authenticate(ctx, "ada@example.com", "wrong")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeInvalidCredentials)
		assert.Equal(t, "Invalid credentials", auth.PublicMessage(err))
	})

	t.Run("unknown email still verifies a dummy hash", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		v, err := auth.NewCredentialVerifier(users, hasher)
		require.NoError(t, err)

		users.On("GetByEmail", ctx, "nobody@example.com").Return(nil, auth.ErrNotFound)
		hasher.On("Verify", "password123", auth.DummyPasswordHash).Return(false, nil)

		_, err = v.Authenticate(ctx, "nobody@example.com", "password123")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeInvalidCredentials)
	})

	t.Run("federated account is a provider mismatch", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		v, err := auth.NewCredentialVerifier(users, hasher)
		require.NoError(t, err)

		user := localUser()
		user.Provider = auth.ProviderGoogle
		user.PasswordHash = nil
		users.On("GetByEmail", ctx, "ada@example.com").Return(user, nil)

		_, err = v.Authenticate(ctx, "ada@example.com", "password123")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeProviderMismatch)
		assert.Equal(t, auth.KindProviderMismatch, auth.KindOf(err))
		assert.Contains(t, auth.PublicMessage(err), "google")
	})

	t.Run("local account without hash", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		v, err := auth.NewCredentialVerifier(users, hasher)
		require.NoError(t, err)

		user := localUser()
		user.PasswordHash = nil
		users.On("GetByEmail", ctx, "ada@example.com").Return(user, nil)

		_, err = v.Authenticate(ctx, "ada@example.com", "password123")
		errutil.AssertErrorCode(t, err, auth.CodeInvalidCredentials)
	})

	t.Run("corrupt stored hash is a mismatch", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		v, err := auth.NewCredentialVerifier(users, hasher)
		require.NoError(t, err)

		users.On("GetByEmail", ctx, "ada@example.com").Return(localUser(), nil)
		hasher.On("Verify", "password123", storedHash).Return(false, errors.New("invalid hash format"))

		_, err = v.Authenticate(ctx, "ada@example.com", "password123")
		errutil.AssertErrorCode(t, err, auth.CodeInvalidCredentials)
	})

	t.Run("store failure is internal", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		v, err := auth.NewCredentialVerifier(users, hasher)
		require.NoError(t, err)

		users.On("GetByEmail", ctx, "ada@example.com").Return(nil, errors.New("connection refused"))

		_, err = v.Authenticate(ctx, "ada@example.com", "password123")
		require.Error(t, err)
		assert.Equal(t, auth.KindInternal, auth.KindOf(err))
		assert.Equal(t, "Internal server error", auth.PublicMessage(err))
	})
}

func TestCredentialVerifier_VerifyWithRealHasher(t *testing.T) {
	hasher := auth.NewArgon2idHasherWithParams(cheapParams)
	v, err := auth.NewCredentialVerifier(mocks.NewMockUserRepository(t), hasher)
	require.NoError(t, err)

	hash, err := hasher.Hash("password123")
	require.NoError(t, err)

	assert.True(t, v.Verify(hash, "password123"))
	assert.False(t, v.Verify(hash, "password124"))
	assert.False(t, v.Verify("garbage", "password123"))
	assert.False(t, v.Verify(auth.DummyPasswordHash, "password123"))
}
