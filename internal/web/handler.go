// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

// Package web exposes the auth engine over HTTP.
//
// Local flows answer with JSON. Federated flows answer with redirects to the
// frontend, carrying failures in the login error page's query string.
package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/internal/oauth"
	"github.com/authgate/authgate/pkg/errutil"
)

// APIPrefix is the path prefix of every auth route.
const APIPrefix = "/api/v1/auth"

// OAuth state cookie.
const (
	StateCookie   = "oauth_state"
	stateLifetime = 10 * time.Minute
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// Config holds the Handler's collaborators.
type Config struct {
	Sessions     *auth.SessionManager
	Confirmation *auth.ConfirmationWorkflow
	Linking      *auth.AccountLinkingService
	Providers    oauth.Registry
	SecureCookie bool
	Logger       *slog.Logger
}

// Handler routes auth requests.
type Handler struct {
	sessions     *auth.SessionManager
	confirmation *auth.ConfirmationWorkflow
	linking      *auth.AccountLinkingService
	providers    oauth.Registry
	secureCookie bool
	logger       *slog.Logger
	mux          *http.ServeMux
}

// NewHandler creates a Handler and registers its routes.
func NewHandler(cfg Config) (*Handler, error) {
	if cfg.Sessions == nil {
		return nil, oops.Errorf("session manager is required")
	}
	if cfg.Confirmation == nil {
		return nil, oops.Errorf("confirmation workflow is required")
	}
	if cfg.Linking == nil && len(cfg.Providers) > 0 {
		return nil, oops.Errorf("account linking service is required when providers are configured")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		sessions:     cfg.Sessions,
		confirmation: cfg.Confirmation,
		linking:      cfg.Linking,
		providers:    cfg.Providers,
		secureCookie: cfg.SecureCookie,
		logger:       logger.With("component", "web"),
		mux:          http.NewServeMux(),
	}
	h.routes()
	return h, nil
}

func (h *Handler) routes() {
	h.mux.HandleFunc("POST "+APIPrefix+"/local/register", h.handleRegister)
	h.mux.HandleFunc("POST "+APIPrefix+"/local/login", h.handleLogin)
	h.mux.HandleFunc("DELETE "+APIPrefix+"/logout", h.handleLogout)
	h.mux.Handle("GET "+APIPrefix+"/me", h.requireUser(h.handleMe))
	h.mux.Handle("GET "+APIPrefix+"/confirm/{token}", h.requireUser(h.handleConfirm))

	for name, provider := range h.providers {
		h.mux.HandleFunc("GET "+APIPrefix+"/"+string(name), h.handleBeginFederated(provider))
		h.mux.HandleFunc("GET "+APIPrefix+"/"+string(name)+"/redirect", h.handleCompleteFederated(provider))
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var reg auth.Registration
	if err := decodeJSON(w, r, &reg); err != nil {
		h.writeError(w, r, err)
		return
	}
	session, err := h.sessions.Register(r.Context(), w, reg)
	h.writeResult(w, r, http.StatusCreated, auth.ResultOf(session, err))
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds auth.Credentials
	if err := decodeJSON(w, r, &creds); err != nil {
		h.writeError(w, r, err)
		return
	}
	session, err := h.sessions.Login(r.Context(), w, creds)
	h.writeResult(w, r, http.StatusOK, auth.ResultOf(session, err))
}

// handleLogout clears both cookies whether or not the access token is still
// valid, so an expired session can still drop its refresh cookie.
func (h *Handler) handleLogout(w http.ResponseWriter, _ *http.Request) {
	h.sessions.Logout(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, _ *http.Request, user *auth.User) {
	writeJSON(w, http.StatusOK, user)
}

func (h *Handler) handleConfirm(w http.ResponseWriter, r *http.Request, user *auth.User) {
	result, err := h.confirmation.ConfirmAccount(r.Context(), user, r.PathValue("token"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleBeginFederated(provider oauth.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state, err := oauth.GenerateState()
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		http.SetCookie(w, &http.Cookie{
			Name:     StateCookie,
			Value:    state,
			Path:     APIPrefix,
			MaxAge:   int(stateLifetime.Seconds()),
			HttpOnly: true,
			Secure:   h.secureCookie,
			SameSite: http.SameSiteLaxMode,
		})
		http.Redirect(w, r, provider.AuthCodeURL(state), http.StatusFound)
	}
}

func (h *Handler) handleCompleteFederated(provider oauth.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		h.clearState(w)

		identity, err := h.federatedIdentity(ctx, r, provider)
		if err != nil {
			result := h.linking.Fail(ctx, err)
			http.Redirect(w, r, result.RedirectTo, http.StatusFound)
			return
		}

		result := h.linking.ContinueWithProvider(ctx, w, identity)
		http.Redirect(w, r, result.RedirectTo, http.StatusFound)
	}
}

// federatedIdentity checks the state round trip and exchanges the code.
func (h *Handler) federatedIdentity(ctx context.Context, r *http.Request, provider oauth.Provider) (auth.Identity, error) {
	query := r.URL.Query()
	if reason := query.Get("error"); reason != "" {
		return auth.Identity{}, oops.Code(auth.CodeInvalidInput).
			With("provider", string(provider.Name())).
			With("reason", reason).
			Errorf("Sign-in was cancelled")
	}

	cookie, err := r.Cookie(StateCookie)
	state := query.Get("state")
	if err != nil || state == "" || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(state)) != 1 {
		return auth.Identity{}, oops.Code(auth.CodeInvalidInput).
			With("provider", string(provider.Name())).
			Errorf("Invalid sign-in state")
	}

	return provider.Identity(ctx, query.Get("code"))
}

func (h *Handler) clearState(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     StateCookie,
		Value:    "",
		Path:     APIPrefix,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// errorBody is the JSON shape of every failed local request.
type errorBody struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
}

func (h *Handler) writeResult(w http.ResponseWriter, r *http.Request, status int, result auth.Result) {
	if !result.OK() {
		h.writeError(w, r, result.Err)
		return
	}
	writeJSON(w, status, result.Session)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := auth.KindOf(err)
	if kind == auth.KindInternal {
		errutil.LogErrorContext(r.Context(), h.logger, "request failed", err)
	}
	writeJSON(w, kind.Status(), errorBody{StatusCode: kind.Status(), Message: auth.PublicMessage(err)})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		return oops.Code(auth.CodeInvalidInput).With("content_type", ct).Errorf("Content-Type must be application/json")
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return oops.Code(auth.CodeInvalidInput).Errorf("Request body too large")
		}
		return oops.Code(auth.CodeInvalidInput).Errorf("Invalid request body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
