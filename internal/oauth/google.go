// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package oauth

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/samber/oops"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/authgate/authgate/internal/auth"
)

// GoogleUserInfoURL is the OpenID Connect userinfo endpoint.
const GoogleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

// maxUserInfoBytes bounds the userinfo response body.
const maxUserInfoBytes = 1 << 20

// GoogleConfig configures a GoogleProvider. Endpoint and UserInfoURL default
// to Google's production endpoints.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Endpoint     *oauth2.Endpoint
	UserInfoURL  string
}

// GoogleProvider signs users in with Google.
type GoogleProvider struct {
	config      *oauth2.Config
	userInfoURL string
}

// NewGoogleProvider creates a GoogleProvider.
func NewGoogleProvider(cfg GoogleConfig) (*GoogleProvider, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, oops.Code("OAUTH_INVALID_CONFIG").Errorf("google client id and secret are required")
	}
	if cfg.RedirectURL == "" {
		return nil, oops.Code("OAUTH_INVALID_CONFIG").Errorf("google redirect url is required")
	}

	endpoint := google.Endpoint
	if cfg.Endpoint != nil {
		endpoint = *cfg.Endpoint
	}
	userInfoURL := cfg.UserInfoURL
	if userInfoURL == "" {
		userInfoURL = GoogleUserInfoURL
	}

	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
		},
		userInfoURL: userInfoURL,
	}, nil
}

// Name returns auth.ProviderGoogle.
func (p *GoogleProvider) Name() auth.Provider { return auth.ProviderGoogle }

// AuthCodeURL returns the Google consent page URL.
func (p *GoogleProvider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

type googleUserInfo struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

// Identity exchanges code for a token and reads the user's profile.
func (p *GoogleProvider) Identity(ctx context.Context, code string) (auth.Identity, error) {
	if code == "" {
		return auth.Identity{}, oops.Code("OAUTH_MISSING_CODE").Errorf("authorization code is required")
	}

	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return auth.Identity{}, oops.Code("OAUTH_EXCHANGE_FAILED").With("provider", "google").Wrap(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return auth.Identity{}, oops.Code("OAUTH_USERINFO_FAILED").Wrap(err)
	}
	resp, err := p.config.Client(ctx, token).Do(req)
	if err != nil {
		return auth.Identity{}, oops.Code("OAUTH_USERINFO_FAILED").With("provider", "google").Wrap(err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	if resp.StatusCode != http.StatusOK {
		return auth.Identity{}, oops.Code("OAUTH_USERINFO_FAILED").
			With("provider", "google").
			With("status", resp.StatusCode).
			Errorf("userinfo returned %s", resp.Status)
	}

	var info googleUserInfo
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxUserInfoBytes)).Decode(&info); err != nil {
		return auth.Identity{}, oops.Code("OAUTH_USERINFO_INVALID").With("provider", "google").Wrap(err)
	}
	if info.Sub == "" || info.Email == "" {
		return auth.Identity{}, oops.Code("OAUTH_USERINFO_INVALID").
			With("provider", "google").
			Errorf("userinfo is missing sub or email")
	}

	return auth.Identity{
		Provider:    auth.ProviderGoogle,
		ProviderID:  info.Sub,
		Email:       info.Email,
		DisplayName: info.Name,
		Verified:    info.EmailVerified,
	}, nil
}
