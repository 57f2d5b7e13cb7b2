// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/authgate/authgate/internal/mail"
)

// Confirmation token configuration.
const (
	ConfirmationTokenBytes = 24 // 192 bits, 32 URL-safe chars
	ConfirmationTokenTTL   = time.Hour
	ConfirmationKeyPrefix  = "confirm-account:"
	ConfirmationTemplate   = "confirm-email"
	ConfirmationSubject    = "Confirm your email"
)

// Confirmation outcome messages.
const (
	MsgAccountVerified        = "Account verified successfully"
	MsgAccountAlreadyVerified = "Account already verified"
	MsgConfirmationExpired    = "Confirmation token expired"
)

// ConfirmationStore is an ephemeral key-value store with per-key expiry.
// Get returns ErrNotFound for absent or expired keys. Del of a missing key
// is not an error.
type ConfirmationStore interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, key string) error
}

// Mailer hands messages to the mail collaborator without waiting for delivery.
type Mailer interface {
	Dispatch(ctx context.Context, msg mail.Message) error
}

// ConfirmationResult is the outcome of a confirmation attempt.
type ConfirmationResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ConfirmationKey returns the store key for a confirmation token.
func ConfirmationKey(token string) string {
	return ConfirmationKeyPrefix + token
}

// GenerateConfirmationToken returns a random URL-safe token.
func GenerateConfirmationToken() (string, error) {
	b := make([]byte, ConfirmationTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", oops.Code("CONFIRMATION_TOKEN_GENERATE_FAILED").
			With("requested_bytes", ConfirmationTokenBytes).
			Wrap(err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// ConfirmationWorkflow issues and redeems single-use email confirmation tokens.
type ConfirmationWorkflow struct {
	users    UserRepository
	store    ConfirmationStore
	mailer   Mailer
	ttl      time.Duration
	linkBase string
	logger   *slog.Logger
	tracer   trace.Tracer
}

// ConfirmationOption configures a ConfirmationWorkflow.
type ConfirmationOption func(*ConfirmationWorkflow)

// WithConfirmationTTL overrides ConfirmationTokenTTL.
func WithConfirmationTTL(ttl time.Duration) ConfirmationOption {
	return func(w *ConfirmationWorkflow) {
		if ttl > 0 {
			w.ttl = ttl
		}
	}
}

// WithConfirmationLinkBase sets the origin used to build the link in the email.
func WithConfirmationLinkBase(origin string) ConfirmationOption {
	return func(w *ConfirmationWorkflow) {
		w.linkBase = strings.TrimRight(origin, "/")
	}
}

// WithConfirmationLogger sets the logger for best-effort failures.
func WithConfirmationLogger(logger *slog.Logger) ConfirmationOption {
	return func(w *ConfirmationWorkflow) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewConfirmationWorkflow creates a ConfirmationWorkflow.
func NewConfirmationWorkflow(users UserRepository, store ConfirmationStore, mailer Mailer, opts ...ConfirmationOption) (*ConfirmationWorkflow, error) {
	if users == nil {
		return nil, oops.Errorf("users repository is required")
	}
	if store == nil {
		return nil, oops.Errorf("confirmation store is required")
	}
	if mailer == nil {
		return nil, oops.Errorf("mailer is required")
	}

	w := &ConfirmationWorkflow{
		users:  users,
		store:  store,
		mailer: mailer,
		ttl:    ConfirmationTokenTTL,
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// SendConfirmationToken stores a fresh token for user and queues the
// confirmation email. A failure to queue the email is logged and does not
// fail the call; a failure to store the token does.
func (w *ConfirmationWorkflow) SendConfirmationToken(ctx context.Context, user *User) (string, error) {
	token, err := GenerateConfirmationToken()
	if err != nil {
		return "", errInternal("generate confirmation token", err)
	}

	if err := w.store.Set(ctx, ConfirmationKey(token), user.ID.String(), w.ttl); err != nil {
		return "", errInternal("store confirmation token", err)
	}

	msg := mail.Message{
		To:       user.Email,
		Subject:  ConfirmationSubject,
		Template: ConfirmationTemplate,
		Data: map[string]any{
			"token":       token,
			"link":        w.confirmationLink(token),
			"displayName": user.DisplayName,
		},
	}
	if err := w.mailer.Dispatch(ctx, msg); err != nil {
		confirmationMailFailures.Inc()
		w.logger.WarnContext(ctx, "confirmation email not queued",
			"user_id", user.ID.String(),
			"error", err)
	}

	return token, nil
}

// ConfirmAccount redeems token on behalf of user.
//
// An absent token succeeds only if the account is already verified. A token
// that maps to a different user fails with AUTH_TOKEN_OWNERSHIP_MISMATCH and
// is left in place for its owner.
func (w *ConfirmationWorkflow) ConfirmAccount(ctx context.Context, user *User, token string) (result ConfirmationResult, err error) {
	ctx, span := w.tracer.Start(ctx, "auth.ConfirmAccount")
	defer func() { endSpan(span, err) }()
	defer func() { recordOperation(OpConfirmation, err) }()

	key := ConfirmationKey(token)

	ownerID, err := w.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return ConfirmationResult{}, errInternal("get confirmation token", err)
		}
		if user.IsVerified() {
			return ConfirmationResult{Success: true, Message: MsgAccountAlreadyVerified}, nil
		}
		return ConfirmationResult{Success: false, Message: MsgConfirmationExpired}, nil
	}

	if ownerID != user.ID.String() {
		return ConfirmationResult{}, oops.Code(CodeTokenOwnershipMismatch).
			With("user_id", user.ID.String()).
			Errorf("Confirmation token does not belong to this account")
	}

	if !user.IsVerified() {
		verified := AccountVerified
		updated, err := w.users.Update(ctx, user.ID, UserPatch{AccountStatus: &verified})
		if err != nil {
			return ConfirmationResult{}, errInternal("mark account verified", err)
		}
		*user = *updated
	}

	if err := w.store.Del(ctx, key); err != nil {
		w.logger.WarnContext(ctx, "confirmation token not deleted, it will expire",
			"user_id", user.ID.String(),
			"error", err)
	}

	return ConfirmationResult{Success: true, Message: MsgAccountVerified}, nil
}

func (w *ConfirmationWorkflow) confirmationLink(token string) string {
	if w.linkBase == "" {
		return ""
	}
	return w.linkBase + "/confirm/" + url.PathEscape(token)
}
