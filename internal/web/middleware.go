// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package web

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"

	"github.com/authgate/authgate/internal/auth"
)

// RequestsTotal counts API requests by method and status code.
// Use RegisterMetrics to register this with a Prometheus registry.
var RequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "authgate_http_requests_total",
		Help: "Total number of API requests by method and status code",
	},
	[]string{"method", "status"},
)

// RegisterMetrics registers web package metrics with the given Prometheus registry.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(RequestsTotal)
}

// userHandler handles a request made by an authenticated user.
type userHandler func(w http.ResponseWriter, r *http.Request, user *auth.User)

// requireUser resolves the access token from the session cookie, or from a
// bearer Authorization header, and rejects the request when it is missing
// or invalid.
func (h *Handler) requireUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := accessToken(r)
		if token == "" {
			h.writeError(w, r, oops.Code(auth.CodeUnauthenticated).Errorf("Unauthorized"))
			return
		}
		user, err := h.sessions.CurrentUser(r.Context(), token)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		next(w, r, user)
	})
}

func accessToken(r *http.Request) string {
	if cookie, err := r.Cookie(auth.AccessTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return ""
}

// statusRecorder captures the response status for access logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// AccessLog counts each request and logs it at debug level, or warn for 5xx.
func (h *Handler) AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		RequestsTotal.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()

		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		}
		if rec.status >= http.StatusInternalServerError {
			h.logger.WarnContext(r.Context(), "request", attrs...)
			return
		}
		h.logger.DebugContext(r.Context(), "request", attrs...)
	})
}
