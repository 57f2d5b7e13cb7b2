// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"

	"github.com/samber/oops"

	"github.com/authgate/authgate/pkg/errutil"
)

// maxNicknameAttempts bounds nickname generation for new federated accounts.
const maxNicknameAttempts = 5

// Identity is a verified identity produced by a federated provider adapter.
type Identity struct {
	Provider    Provider
	ProviderID  string
	Email       string
	DisplayName string
	Verified    bool
}

// AccountLinkingService reconciles federated identities with local accounts.
type AccountLinkingService struct {
	users    UserRepository
	sessions *SessionManager
	origin   string
	logger   *slog.Logger
}

// NewAccountLinkingService creates an AccountLinkingService. origin is the
// frontend base URL that success and error redirects point at.
func NewAccountLinkingService(users UserRepository, sessions *SessionManager, origin string, logger *slog.Logger) (*AccountLinkingService, error) {
	if users == nil {
		return nil, oops.Errorf("users repository is required")
	}
	if sessions == nil {
		return nil, oops.Errorf("session manager is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountLinkingService{
		users:    users,
		sessions: sessions,
		origin:   strings.TrimRight(origin, "/"),
		logger:   logger,
	}, nil
}

// ContinueWithProvider finds or creates the account for identity and signs it
// in. Failures never surface as errors: the result carries a redirect to the
// login error page with the failure message.
func (s *AccountLinkingService) ContinueWithProvider(ctx context.Context, w http.ResponseWriter, identity Identity) Result {
	session, err := s.continueWithProvider(ctx, w, identity)
	if err != nil {
		return s.Fail(ctx, err)
	}
	recordOperation(OpFederated, nil)
	return OKResult(session, s.origin+"/me")
}

// Fail renders a federated sign-in failure that happened before or during
// linking as a redirect to the login error page.
func (s *AccountLinkingService) Fail(ctx context.Context, err error) Result {
	recordOperation(OpFederated, err)
	if KindOf(err) == KindInternal {
		errutil.LogErrorContext(ctx, s.logger, "federated sign-in failed", err)
	}
	return ErrorResult(err, s.errorRedirect(PublicMessage(err)))
}

func (s *AccountLinkingService) continueWithProvider(ctx context.Context, w http.ResponseWriter, identity Identity) (*Session, error) {
	if identity.Provider == "" || identity.Provider == ProviderLocal {
		return nil, oops.Code(CodeInvalidInput).Errorf("unsupported identity provider")
	}
	if identity.Provider == ProviderGoogle && !identity.Verified {
		return nil, oops.Code(CodeUnverifiedProviderAccount).
			With("provider", string(identity.Provider)).
			Errorf("This Google account is not verified")
	}
	if identity.ProviderID == "" {
		return nil, oops.Code(CodeInvalidInput).Errorf("provider id cannot be empty")
	}
	if err := ValidateEmail(identity.Email); err != nil {
		return nil, err
	}

	user, err := s.link(ctx, identity)
	if err != nil {
		return nil, err
	}
	return s.sessions.Establish(w, user)
}

// link returns the account for identity, creating it on first sign-in.
// An email already owned by a different provider is never taken over.
func (s *AccountLinkingService) link(ctx context.Context, identity Identity) (*User, error) {
	user, err := s.users.GetByProviderID(ctx, identity.Provider, identity.ProviderID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, errInternal("get user by provider id", err)
	}

	user, err = s.users.GetByEmail(ctx, NormalizeEmail(identity.Email))
	switch {
	case err == nil:
		return s.attach(ctx, user, identity)
	case errors.Is(err, ErrNotFound):
		return s.create(ctx, identity)
	default:
		return nil, errInternal("get user by email", err)
	}
}

func (s *AccountLinkingService) attach(ctx context.Context, user *User, identity Identity) (*User, error) {
	if user.Provider != identity.Provider {
		return nil, oops.Code(CodeProviderMismatch).
			With("provider", string(user.Provider)).
			Errorf("This email is registered with %s sign-in", user.Provider)
	}
	if user.ProviderID != nil {
		if *user.ProviderID != identity.ProviderID {
			return nil, oops.Code(CodeProviderMismatch).
				With("provider", string(user.Provider)).
				Errorf("This email is linked to another %s account", user.Provider)
		}
		return user, nil
	}

	providerID := identity.ProviderID
	verified := identity.Verified
	patch := UserPatch{
		ProviderID:         &providerID,
		VerifiedByProvider: &verified,
	}
	// Same promotion NewFederatedUser applies to a fresh account.
	if identity.Verified && !user.IsVerified() {
		status := AccountVerified
		patch.AccountStatus = &status
	}
	updated, err := s.users.Update(ctx, user.ID, patch)
	if err != nil {
		return nil, errInternal("link provider id", err)
	}
	return updated, nil
}

func (s *AccountLinkingService) create(ctx context.Context, identity Identity) (*User, error) {
	base := nicknameBase(identity)
	for attempt := 0; attempt < maxNicknameAttempts; attempt++ {
		nickname := base
		if attempt > 0 {
			nickname = fmt.Sprintf("%s_%04d", base, rand.IntN(10000))
		}

		user, err := NewFederatedUser(identity, nickname)
		if err != nil {
			return nil, errInternal("build federated user", err)
		}

		err = s.users.Create(ctx, user)
		if err == nil {
			return user, nil
		}
		var violation *UniqueViolationError
		if errors.As(err, &violation) && violation.Field == FieldNickname {
			continue
		}
		return nil, mapCreateError(err)
	}
	return nil, errInternal("create federated user",
		oops.With("base", base).Errorf("no free nickname after %d attempts", maxNicknameAttempts))
}

func (s *AccountLinkingService) errorRedirect(message string) string {
	return s.origin + "/login/error?message=" + url.QueryEscape(message)
}

// nicknameBase derives a valid nickname stem from the identity's display
// name or the local part of its email.
func nicknameBase(identity Identity) string {
	source := identity.DisplayName
	if source == "" {
		source, _, _ = strings.Cut(identity.Email, "@")
	}

	var b strings.Builder
	for _, r := range source {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case r == ' ' || r == '.' || r == '-':
			b.WriteRune('_')
		}
	}
	nickname := b.String()

	if nickname == "" || !isASCIILetter(nickname[0]) {
		nickname = "user" + nickname
	}
	// Leave room for the "_NNNN" suffix.
	if limit := MaxNicknameLength - 5; len(nickname) > limit {
		nickname = nickname[:limit]
	}
	for len(nickname) < MinNicknameLength {
		nickname += "_"
	}
	return nickname
}

func isASCIILetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
