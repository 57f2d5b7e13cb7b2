// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"
)

// Token defaults.
const (
	DefaultIssuer          = "authgate"
	DefaultAccessTokenTTL  = 30 * time.Minute
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour
	MinSigningSecretLength = 32
)

// TokenConfig configures a TokenIssuer. The secret is process-wide and is
// supplied once at construction.
type TokenConfig struct {
	Secret     []byte
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// AccessClaims are the claims carried by an access token.
type AccessClaims struct {
	jwt.RegisteredClaims
	UserID      string `json:"id"`
	DisplayName string `json:"displayName"`
}

// TokenIssuer mints signed, stateless access and refresh tokens.
type TokenIssuer struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenIssuer creates a TokenIssuer. Zero TTLs and an empty issuer fall
// back to the package defaults.
func NewTokenIssuer(cfg TokenConfig) (*TokenIssuer, error) {
	if len(cfg.Secret) < MinSigningSecretLength {
		return nil, oops.Code("TOKEN_INVALID_CONFIG").
			With("min", MinSigningSecretLength).
			Errorf("signing secret must be at least %d bytes", MinSigningSecretLength)
	}
	if cfg.AccessTTL < 0 || cfg.RefreshTTL < 0 {
		return nil, oops.Code("TOKEN_INVALID_CONFIG").Errorf("token TTLs cannot be negative")
	}

	issuer := &TokenIssuer{
		secret:     cfg.Secret,
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        time.Now,
	}
	if issuer.issuer == "" {
		issuer.issuer = DefaultIssuer
	}
	if issuer.accessTTL == 0 {
		issuer.accessTTL = DefaultAccessTokenTTL
	}
	if issuer.refreshTTL == 0 {
		issuer.refreshTTL = DefaultRefreshTokenTTL
	}
	return issuer, nil
}

// AccessTTL returns the lifetime of access tokens.
func (t *TokenIssuer) AccessTTL() time.Duration { return t.accessTTL }

// RefreshTTL returns the lifetime of refresh tokens.
func (t *TokenIssuer) RefreshTTL() time.Duration { return t.refreshTTL }

// IssueAccessToken signs an access token for user and returns it with its expiry.
func (t *TokenIssuer) IssueAccessToken(user *User) (string, time.Time, error) {
	now := t.now()
	expiresAt := now.Add(t.accessTTL)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UserID:      user.ID.String(),
		DisplayName: user.DisplayName,
	})

	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, oops.Code("TOKEN_SIGN_FAILED").With("kind", "access").Wrap(err)
	}
	return signed, expiresAt, nil
}

// IssueRefreshToken signs a refresh token. It carries no user claims.
func (t *TokenIssuer) IssueRefreshToken() (string, time.Time, error) {
	now := t.now()
	expiresAt := now.Add(t.refreshTTL)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    t.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	})

	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, oops.Code("TOKEN_SIGN_FAILED").With("kind", "refresh").Wrap(err)
	}
	return signed, expiresAt, nil
}

// ParseAccessToken verifies signature, issuer, and expiry of an access token.
func (t *TokenIssuer) ParseAccessToken(tokenString string) (*AccessClaims, error) {
	if tokenString == "" {
		return nil, oops.Code(CodeUnauthenticated).Errorf("Unauthorized")
	}

	claims := &AccessClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, oops.Code(CodeUnauthenticated).
			With("reason", err.Error()).
			Errorf("Unauthorized")
	}
	if claims.UserID == "" {
		return nil, oops.Code(CodeUnauthenticated).Errorf("Unauthorized")
	}
	return claims, nil
}
