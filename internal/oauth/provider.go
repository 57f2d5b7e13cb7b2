// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

// Package oauth adapts external identity providers to auth.Identity.
package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"

	"github.com/samber/oops"

	"github.com/authgate/authgate/internal/auth"
)

// stateBytes is the entropy of the CSRF state parameter.
const stateBytes = 32

// Provider runs the authorization-code flow for one identity provider.
type Provider interface {
	// Name is the provider identifier used in routes and stored on users.
	Name() auth.Provider

	// AuthCodeURL returns the consent page URL carrying state.
	AuthCodeURL(state string) string

	// Identity exchanges an authorization code for the user's identity.
	Identity(ctx context.Context, code string) (auth.Identity, error)
}

// Registry looks up providers by name.
type Registry map[auth.Provider]Provider

// NewRegistry indexes providers by Name.
func NewRegistry(providers ...Provider) Registry {
	r := make(Registry, len(providers))
	for _, p := range providers {
		r[p.Name()] = p
	}
	return r
}

// Get returns the named provider.
func (r Registry) Get(name auth.Provider) (Provider, bool) {
	p, ok := r[name]
	return p, ok
}

// GenerateState returns a random URL-safe state value.
func GenerateState() (string, error) {
	b := make([]byte, stateBytes)
	if _, err := rand.Read(b); err != nil {
		return "", oops.Code("OAUTH_STATE_FAILED").Wrap(err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
