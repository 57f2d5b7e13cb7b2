// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package auth_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/authgate/authgate/internal/auth"
)

const origin = "https://app.example.com"

func newLinkingService(t *testing.T) (*auth.AccountLinkingService, sessionDeps) {
	t.Helper()
	sessions, deps := newSessionManager(t)
	svc, err := auth.NewAccountLinkingService(deps.users, sessions, origin+"/", nil)
	require.NoError(t, err)
	return svc, deps
}

func googleIdentity() auth.Identity {
	return auth.Identity{
		Provider:    auth.ProviderGoogle,
		ProviderID:  "google-sub-1",
		Email:       "Grace@Example.com",
		DisplayName: "Grace Hopper",
		Verified:    true,
	}
}

func errorMessage(t *testing.T, redirect string) string {
	t.Helper()
	u, err := url.Parse(redirect)
	require.NoError(t, err)
	assert.Equal(t, "/login/error", u.Path)
	return u.Query().Get("message")
}

func TestNewAccountLinkingService_NilDependencies(t *testing.T) {
	sessions, deps := newSessionManager(t)
	_, err := auth.NewAccountLinkingService(nil, sessions, origin, nil)
	assert.ErrorContains(t, err, "users repository is required")
	_, err = auth.NewAccountLinkingService(deps.users, nil, origin, nil)
	assert.ErrorContains(t, err, "session manager is required")
}

func TestAccountLinkingService_ContinueWithProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("returning federated user signs in", func(t *testing.T) {
		svc, deps := newLinkingService(t)
		rec := httptest.NewRecorder()
		providerID := "google-sub-1"
		existing := &auth.User{
			ID:            ulid.Make(),
			Email:         "grace@example.com",
			Provider:      auth.ProviderGoogle,
			ProviderID:    &providerID,
			AccountStatus: auth.AccountVerified,
		}
		deps.users.On("GetByProviderID", ctx, auth.ProviderGoogle, "google-sub-1").Return(existing, nil)

		res := svc.ContinueWithProvider(ctx, rec, googleIdentity())
		require.True(t, res.OK(), res.Message)
		assert.Equal(t, existing, res.Session.User)
		assert.Equal(t, origin+"/me", res.RedirectTo)
		assert.Len(t, rec.Result().Cookies(), 2)
	})

	t.Run("first sign-in creates verified account", func(t *testing.T) {
		svc, deps := newLinkingService(t)
		deps.users.On("GetByProviderID", ctx, auth.ProviderGoogle, "google-sub-1").Return(nil, auth.ErrNotFound)
		deps.users.On("GetByEmail", ctx, "grace@example.com").Return(nil, auth.ErrNotFound)
		deps.users.On("Create", ctx, mock.MatchedBy(func(u *auth.User) bool {
			return u.Email == "grace@example.com" &&
				u.Nickname == "Grace_Hopper" &&
				u.PasswordHash == nil &&
				u.IsVerified() && u.VerifiedByProvider
		})).Return(nil)

		res := svc.ContinueWithProvider(ctx, httptest.NewRecorder(), googleIdentity())
		require.True(t, res.OK(), res.Message)
		assert.Equal(t, auth.ProviderGoogle, res.Session.User.Provider)
	})

	t.Run("nickname collision retries with suffix", func(t *testing.T) {
		svc, deps := newLinkingService(t)
		deps.users.On("GetByProviderID", ctx, auth.ProviderGoogle, "google-sub-1").Return(nil, auth.ErrNotFound)
		deps.users.On("GetByEmail", ctx, "grace@example.com").Return(nil, auth.ErrNotFound)
		deps.users.On("Create", ctx, mock.MatchedBy(func(u *auth.User) bool {
			return u.Nickname == "Grace_Hopper"
		})).Return(&auth.UniqueViolationError{Field: auth.FieldNickname}).Once()
		deps.users.On("Create", ctx, mock.MatchedBy(func(u *auth.User) bool {
			return strings.HasPrefix(u.Nickname, "Grace_Hopper_")
		})).Return(nil).Once()

		res := svc.ContinueWithProvider(ctx, httptest.NewRecorder(), googleIdentity())
		require.True(t, res.OK(), res.Message)
		assert.Regexp(t, `^Grace_Hopper_\d{4}$`, res.Session.User.Nickname)
	})

	t.Run("existing google account without provider id is linked", func(t *testing.T) {
		svc, deps := newLinkingService(t)
		existing := &auth.User{ID: ulid.Make(), Email: "grace@example.com", Provider: auth.ProviderGoogle}
		linkedID := "google-sub-1"
		linked := *existing
		linked.ProviderID = &linkedID
		linked.VerifiedByProvider = true
		linked.AccountStatus = auth.AccountVerified

		deps.users.On("GetByProviderID", ctx, auth.ProviderGoogle, "google-sub-1").Return(nil, auth.ErrNotFound)
		deps.users.On("GetByEmail", ctx, "grace@example.com").Return(existing, nil)
		deps.users.On("Update", ctx, existing.ID, mock.MatchedBy(func(p auth.UserPatch) bool {
			return p.ProviderID != nil && *p.ProviderID == "google-sub-1" &&
				p.VerifiedByProvider != nil && *p.VerifiedByProvider &&
				p.AccountStatus != nil && *p.AccountStatus == auth.AccountVerified
		})).Return(&linked, nil)

		res := svc.ContinueWithProvider(ctx, httptest.NewRecorder(), googleIdentity())
		require.True(t, res.OK(), res.Message)
		assert.Equal(t, &linked, res.Session.User)
		assert.True(t, res.Session.User.IsVerified())
	})

	t.Run("linking an already verified account leaves status alone", func(t *testing.T) {
		svc, deps := newLinkingService(t)
		existing := &auth.User{ID: ulid.Make(), Email: "grace@example.com", Provider: auth.ProviderGoogle, AccountStatus: auth.AccountVerified}
		linked := *existing

		deps.users.On("GetByProviderID", ctx, auth.ProviderGoogle, "google-sub-1").Return(nil, auth.ErrNotFound)
		deps.users.On("GetByEmail", ctx, "grace@example.com").Return(existing, nil)
		deps.users.On("Update", ctx, existing.ID, mock.MatchedBy(func(p auth.UserPatch) bool {
			return p.ProviderID != nil && p.AccountStatus == nil
		})).Return(&linked, nil)

		res := svc.ContinueWithProvider(ctx, httptest.NewRecorder(), googleIdentity())
		require.True(t, res.OK(), res.Message)
	})

	t.Run("email owned by local account is a provider mismatch", func(t *testing.T) {
		svc, deps := newLinkingService(t)
		rec := httptest.NewRecorder()
		existing := localUser()
		existing.Email = "grace@example.com"

		deps.users.On("GetByProviderID", ctx, auth.ProviderGoogle, "google-sub-1").Return(nil, auth.ErrNotFound)
		deps.users.On("GetByEmail", ctx, "grace@example.com").Return(existing, nil)

		res := svc.ContinueWithProvider(ctx, rec, googleIdentity())
		assert.False(t, res.OK())
		assert.Equal(t, auth.KindProviderMismatch, res.Kind)
		assert.Nil(t, res.Session)
		assert.Contains(t, errorMessage(t, res.RedirectTo), "local")
		assert.Empty(t, rec.Result().Cookies())
		deps.users.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("email linked to another google account", func(t *testing.T) {
		svc, deps := newLinkingService(t)
		otherID := "google-sub-other"
		existing := &auth.User{ID: ulid.Make(), Email: "grace@example.com", Provider: auth.ProviderGoogle, ProviderID: &otherID}

		deps.users.On("GetByProviderID", ctx, auth.ProviderGoogle, "google-sub-1").Return(nil, auth.ErrNotFound)
		deps.users.On("GetByEmail", ctx, "grace@example.com").Return(existing, nil)

		res := svc.ContinueWithProvider(ctx, httptest.NewRecorder(), googleIdentity())
		assert.Equal(t, auth.KindProviderMismatch, res.Kind)
	})

	t.Run("unverified google identity is rejected before lookup", func(t *testing.T) {
		svc, _ := newLinkingService(t)
		identity := googleIdentity()
		identity.Verified = false

		res := svc.ContinueWithProvider(ctx, httptest.NewRecorder(), identity)
		assert.Equal(t, auth.KindUnverifiedProviderAccount, res.Kind)
		assert.Equal(t, "This Google account is not verified", errorMessage(t, res.RedirectTo))
	})

	t.Run("local provider is not a federated identity", func(t *testing.T) {
		svc, _ := newLinkingService(t)
		identity := googleIdentity()
		identity.Provider = auth.ProviderLocal

		res := svc.ContinueWithProvider(ctx, httptest.NewRecorder(), identity)
		assert.Equal(t, auth.KindInvalidInput, res.Kind)
	})

	t.Run("store failure redirects with opaque message", func(t *testing.T) {
		svc, deps := newLinkingService(t)
		deps.users.On("GetByProviderID", ctx, auth.ProviderGoogle, "google-sub-1").
			Return(nil, errors.New("pq: password authentication failed"))

		res := svc.ContinueWithProvider(ctx, httptest.NewRecorder(), googleIdentity())
		assert.Equal(t, auth.KindInternal, res.Kind)
		assert.Equal(t, "Internal server error", errorMessage(t, res.RedirectTo))
		assert.Error(t, res.Err)
	})

	t.Run("email race on create maps to duplicate email", func(t *testing.T) {
		svc, deps := newLinkingService(t)
		deps.users.On("GetByProviderID", ctx, auth.ProviderGoogle, "google-sub-1").Return(nil, auth.ErrNotFound)
		deps.users.On("GetByEmail", ctx, "grace@example.com").Return(nil, auth.ErrNotFound)
		deps.users.On("Create", ctx, mock.Anything).Return(&auth.UniqueViolationError{Field: auth.FieldEmail})

		res := svc.ContinueWithProvider(ctx, httptest.NewRecorder(), googleIdentity())
		assert.Equal(t, auth.KindDuplicateEmail, res.Kind)
	})
}

func TestNicknameBase(t *testing.T) {
	tests := []struct {
		name     string
		identity auth.Identity
		want     string
	}{
		{"display name", auth.Identity{DisplayName: "Grace Hopper"}, "Grace_Hopper"},
		{"email fallback", auth.Identity{Email: "ada.l@example.com"}, "ada_l"},
		{"leading digit", auth.Identity{DisplayName: "42 Wallaby"}, "user42_Wallaby"},
		{"only symbols", auth.Identity{DisplayName: "!!!"}, "user"},
		{"short", auth.Identity{DisplayName: "Al"}, "Al_"},
		{"long", auth.Identity{DisplayName: strings.Repeat("a", 40)}, strings.Repeat("a", 25)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := auth.NicknameBase(tt.identity)
			assert.Equal(t, tt.want, got)
			assert.NoError(t, auth.ValidateNickname(got))
		})
	}
}

func TestAccountLinkingService_Fail(t *testing.T) {
	svc, _ := newLinkingService(t)

	res := svc.Fail(context.Background(), errors.New("token endpoint unreachable"))
	assert.False(t, res.OK())
	assert.Equal(t, auth.KindInternal, res.Kind)
	assert.Equal(t, "Internal server error", errorMessage(t, res.RedirectTo))
	assert.True(t, strings.HasPrefix(res.RedirectTo, origin+"/login/error?"))
}
