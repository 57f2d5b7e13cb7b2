// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/internal/auth/postgres"
)

func createLocalUser(ctx context.Context, t *testing.T, repo *postgres.UserRepository, email, nickname string) *auth.User {
	t.Helper()
	user, err := auth.NewLocalUser(auth.Registration{
		Email:       email,
		Nickname:    nickname,
		DisplayName: nickname,
		Password:    "correct horse battery",
	}, "$argon2id$v=19$m=65536,t=1,p=4$c2FsdHNhbHQ$aGFzaGhhc2g")
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, user))

	t.Cleanup(func() {
		_, _ = testPool.Exec(ctx, `DELETE FROM users WHERE id = $1`, user.ID.String())
	})
	return user
}

func TestUserRepository_Integration_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewUserRepository(testPool)
	user := createLocalUser(ctx, t, repo, "create@example.com", "create_user")

	byID, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.Email, byID.Email)
	assert.Equal(t, auth.AccountUnverified, byID.AccountStatus)
	require.NotNil(t, byID.PasswordHash)

	byEmail, err := repo.GetByEmail(ctx, "CREATE@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.ID)

	_, err = repo.GetByID(ctx, ulid.Make())
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestUserRepository_Integration_UniqueViolations(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewUserRepository(testPool)
	createLocalUser(ctx, t, repo, "taken@example.com", "taken_nick")

	tests := []struct {
		name      string
		email     string
		nickname  string
		wantField auth.UserField
	}{
		{"email taken", "taken@example.com", "fresh_nick", auth.FieldEmail},
		{"nickname taken", "fresh@example.com", "taken_nick", auth.FieldNickname},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, err := auth.NewLocalUser(auth.Registration{
				Email:    tt.email,
				Nickname: tt.nickname,
				Password: "correct horse battery",
			}, "hash")
			require.NoError(t, err)

			err = repo.Create(ctx, user)
			var violation *auth.UniqueViolationError
			require.True(t, errors.As(err, &violation), "expected unique violation, got %v", err)
			assert.Equal(t, tt.wantField, violation.Field)
		})
	}
}

func TestUserRepository_Integration_UpdateAndProviderLookup(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewUserRepository(testPool)
	user := createLocalUser(ctx, t, repo, "link@example.com", "link_user")

	verified := auth.AccountVerified
	updated, err := repo.Update(ctx, user.ID, auth.UserPatch{AccountStatus: &verified})
	require.NoError(t, err)
	assert.True(t, updated.IsVerified())
	assert.Equal(t, user.Nickname, updated.Nickname, "unpatched fields are kept")

	_, err = repo.GetByProviderID(ctx, auth.ProviderGoogle, "sub-1")
	assert.ErrorIs(t, err, auth.ErrNotFound)

	_, err = repo.Update(ctx, ulid.Make(), auth.UserPatch{AccountStatus: &verified})
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestUserRepository_Integration_FederatedUser(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewUserRepository(testPool)

	user, err := auth.NewFederatedUser(auth.Identity{
		Provider:    auth.ProviderGoogle,
		ProviderID:  "google-sub-42",
		Email:       "fed@example.com",
		DisplayName: "Fed",
		Verified:    true,
	}, "fed_user")
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, user))
	t.Cleanup(func() {
		_, _ = testPool.Exec(ctx, `DELETE FROM users WHERE id = $1`, user.ID.String())
	})

	got, err := repo.GetByProviderID(ctx, auth.ProviderGoogle, "google-sub-42")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.Nil(t, got.PasswordHash)
	assert.True(t, got.VerifiedByProvider)
}
