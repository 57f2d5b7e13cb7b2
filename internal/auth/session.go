// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Session cookie names.
const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
)

const tracerName = "github.com/authgate/authgate/internal/auth"

// Session is the result of a successful sign-in.
type Session struct {
	User             *User     `json:"user"`
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"-"`
	AccessExpiresAt  time.Time `json:"-"`
	RefreshExpiresAt time.Time `json:"-"`
}

// CookiePolicy controls attributes shared by both session cookies.
type CookiePolicy struct {
	Secure bool
	Domain string
	Path   string
}

// SessionManager orchestrates registration, login, and logout, and writes
// session cookies to the response.
type SessionManager struct {
	users        UserRepository
	hasher       PasswordHasher
	verifier     *CredentialVerifier
	issuer       *TokenIssuer
	confirmation *ConfirmationWorkflow
	cookies      CookiePolicy
	logger       *slog.Logger
	tracer       trace.Tracer
}

// SessionOption configures a SessionManager.
type SessionOption func(*SessionManager)

// WithSessionLogger sets the logger.
func WithSessionLogger(logger *slog.Logger) SessionOption {
	return func(m *SessionManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithCookiePolicy sets the cookie attributes.
func WithCookiePolicy(policy CookiePolicy) SessionOption {
	return func(m *SessionManager) {
		m.cookies = policy
	}
}

// NewSessionManager creates a SessionManager.
func NewSessionManager(
	users UserRepository,
	hasher PasswordHasher,
	issuer *TokenIssuer,
	confirmation *ConfirmationWorkflow,
	opts ...SessionOption,
) (*SessionManager, error) {
	if issuer == nil {
		return nil, oops.Errorf("token issuer is required")
	}
	if confirmation == nil {
		return nil, oops.Errorf("confirmation workflow is required")
	}
	verifier, err := NewCredentialVerifier(users, hasher)
	if err != nil {
		return nil, err
	}

	m := &SessionManager{
		users:        users,
		hasher:       hasher,
		verifier:     verifier,
		issuer:       issuer,
		confirmation: confirmation,
		cookies:      CookiePolicy{Path: "/"},
		logger:       slog.Default(),
		tracer:       otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.cookies.Path == "" {
		m.cookies.Path = "/"
	}
	return m, nil
}

// Register creates a local account, issues a confirmation token, and signs
// the user in.
//
// The steps run in order and a failure aborts the rest, except the
// confirmation email, which is queued best-effort.
func (m *SessionManager) Register(ctx context.Context, w http.ResponseWriter, reg Registration) (session *Session, err error) {
	ctx, span := m.tracer.Start(ctx, "auth.Register")
	defer func() { endSpan(span, err) }()
	defer func() { recordOperation(OpRegister, err) }()

	if err := reg.Validate(); err != nil {
		return nil, err
	}

	hash, err := m.hasher.Hash(reg.Password)
	if err != nil {
		return nil, errInternal("hash password", err)
	}

	user, err := NewLocalUser(reg, hash)
	if err != nil {
		return nil, err
	}

	if err := m.users.Create(ctx, user); err != nil {
		return nil, mapCreateError(err)
	}

	if _, err := m.confirmation.SendConfirmationToken(ctx, user); err != nil {
		return nil, err
	}

	return m.Establish(w, user)
}

// Login authenticates local credentials and signs the user in. Verifier
// failures are returned unchanged.
func (m *SessionManager) Login(ctx context.Context, w http.ResponseWriter, creds Credentials) (session *Session, err error) {
	ctx, span := m.tracer.Start(ctx, "auth.Login")
	defer func() { endSpan(span, err) }()
	defer func() { recordOperation(OpLogin, err) }()

	user, err := m.verifier.Authenticate(ctx, creds.Email, creds.Password)
	if err != nil {
		return nil, err
	}

	m.upgradeHash(ctx, user, creds.Password)

	return m.Establish(w, user)
}

// Logout clears both session cookies. It is safe to call without a session.
func (m *SessionManager) Logout(w http.ResponseWriter) {
	for _, name := range []string{AccessTokenCookie, RefreshTokenCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     m.cookies.Path,
			Domain:   m.cookies.Domain,
			Expires:  time.Unix(0, 0),
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   m.cookies.Secure,
			SameSite: sameSiteFor(name),
		})
	}
	recordOperation(OpLogout, nil)
}

// CurrentUser resolves the user behind an access token.
func (m *SessionManager) CurrentUser(ctx context.Context, accessToken string) (*User, error) {
	claims, err := m.issuer.ParseAccessToken(accessToken)
	if err != nil {
		return nil, err
	}

	id, err := ulid.Parse(claims.UserID)
	if err != nil {
		return nil, oops.Code(CodeUnauthenticated).Errorf("Unauthorized")
	}

	user, err := m.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeUnauthenticated).Errorf("Unauthorized")
		}
		return nil, errInternal("get user by id", err)
	}
	return user, nil
}

// Establish issues a token pair for user and writes the session cookies.
func (m *SessionManager) Establish(w http.ResponseWriter, user *User) (*Session, error) {
	accessToken, accessExp, err := m.issuer.IssueAccessToken(user)
	if err != nil {
		return nil, errInternal("issue access token", err)
	}
	refreshToken, refreshExp, err := m.issuer.IssueRefreshToken()
	if err != nil {
		return nil, errInternal("issue refresh token", err)
	}

	session := &Session{
		User:             user,
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}
	m.WriteArtifacts(w, session)
	return session, nil
}

// WriteArtifacts sets the access and refresh cookies. Each cookie expires
// with its token.
func (m *SessionManager) WriteArtifacts(w http.ResponseWriter, session *Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     AccessTokenCookie,
		Value:    session.AccessToken,
		Path:     m.cookies.Path,
		Domain:   m.cookies.Domain,
		Expires:  session.AccessExpiresAt,
		HttpOnly: true,
		Secure:   m.cookies.Secure,
		SameSite: sameSiteFor(AccessTokenCookie),
	})
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshTokenCookie,
		Value:    session.RefreshToken,
		Path:     m.cookies.Path,
		Domain:   m.cookies.Domain,
		Expires:  session.RefreshExpiresAt,
		HttpOnly: true,
		Secure:   m.cookies.Secure,
		SameSite: sameSiteFor(RefreshTokenCookie),
	})
}

// upgradeHash rehashes the password when the stored hash uses weaker
// parameters. Failures are logged; login succeeds regardless.
func (m *SessionManager) upgradeHash(ctx context.Context, user *User, password string) {
	if user.PasswordHash == nil || !m.hasher.NeedsUpgrade(*user.PasswordHash) {
		return
	}
	newHash, err := m.hasher.Hash(password)
	if err != nil {
		m.logger.WarnContext(ctx, "password rehash failed", "user_id", user.ID.String(), "error", err)
		return
	}
	if _, err := m.users.Update(ctx, user.ID, UserPatch{PasswordHash: &newHash}); err != nil {
		m.logger.WarnContext(ctx, "password hash upgrade not persisted", "user_id", user.ID.String(), "error", err)
	}
}

func mapCreateError(err error) error {
	var violation *UniqueViolationError
	if errors.As(err, &violation) {
		switch violation.Field {
		case FieldEmail:
			return oops.Code(CodeDuplicateEmail).With("field", string(FieldEmail)).Errorf("Email already in use")
		case FieldNickname:
			return oops.Code(CodeDuplicateNickname).With("field", string(FieldNickname)).Errorf("Nickname already in use")
		}
	}
	return errInternal("create user", err)
}

func sameSiteFor(cookie string) http.SameSite {
	if cookie == RefreshTokenCookie {
		return http.SameSiteStrictMode
	}
	return http.SameSiteLaxMode
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, KindOf(err).String())
	}
	span.End()
}
