// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package auth

import (
	"errors"
	"net/http"

	"github.com/samber/oops"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// Error codes attached to oops errors returned by this package.
const (
	CodeDuplicateEmail            = "AUTH_DUPLICATE_EMAIL"
	CodeDuplicateNickname         = "AUTH_DUPLICATE_NICKNAME"
	CodeInvalidCredentials        = "AUTH_INVALID_CREDENTIALS"
	CodeProviderMismatch          = "AUTH_PROVIDER_MISMATCH"
	CodeUnverifiedProviderAccount = "AUTH_UNVERIFIED_PROVIDER_ACCOUNT"
	CodeTokenOwnershipMismatch    = "AUTH_TOKEN_OWNERSHIP_MISMATCH"
	CodeInvalidInput              = "AUTH_INVALID_INPUT"
	CodeUnauthenticated           = "AUTH_UNAUTHENTICATED"
	CodeInternal                  = "AUTH_INTERNAL"
)

// Kind classifies an error into the externally visible failure taxonomy.
type Kind int

// Failure kinds. KindNone marks success.
const (
	KindNone Kind = iota
	KindDuplicateEmail
	KindDuplicateNickname
	KindInvalidCredentials
	KindProviderMismatch
	KindUnverifiedProviderAccount
	KindTokenOwnershipMismatch
	KindInvalidInput
	KindUnauthenticated
	KindInternal
)

var kindByCode = map[string]Kind{
	CodeDuplicateEmail:            KindDuplicateEmail,
	CodeDuplicateNickname:         KindDuplicateNickname,
	CodeInvalidCredentials:        KindInvalidCredentials,
	CodeProviderMismatch:          KindProviderMismatch,
	CodeUnverifiedProviderAccount: KindUnverifiedProviderAccount,
	CodeTokenOwnershipMismatch:    KindTokenOwnershipMismatch,
	CodeInvalidInput:              KindInvalidInput,
	CodeUnauthenticated:           KindUnauthenticated,
}

// KindOf returns the failure kind of err. Errors that do not carry one of the
// package's public codes are internal.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return KindInternal
	}
	code, _ := oopsErr.Code().(string)
	if kind, found := kindByCode[code]; found {
		return kind
	}
	return KindInternal
}

// String returns the kind name used in metrics labels.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "ok"
	case KindDuplicateEmail:
		return "duplicate_email"
	case KindDuplicateNickname:
		return "duplicate_nickname"
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindProviderMismatch:
		return "provider_mismatch"
	case KindUnverifiedProviderAccount:
		return "unverified_provider_account"
	case KindTokenOwnershipMismatch:
		return "token_ownership_mismatch"
	case KindInvalidInput:
		return "invalid_input"
	case KindUnauthenticated:
		return "unauthenticated"
	default:
		return "internal"
	}
}

// Status returns the HTTP status code for the kind.
func (k Kind) Status() int {
	switch k {
	case KindNone:
		return http.StatusOK
	case KindDuplicateEmail, KindDuplicateNickname:
		return http.StatusConflict
	case KindInvalidCredentials, KindUnauthenticated:
		return http.StatusUnauthorized
	case KindProviderMismatch, KindUnverifiedProviderAccount, KindInvalidInput:
		return http.StatusBadRequest
	case KindTokenOwnershipMismatch:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns a message that is safe to show to the caller.
// Internal failures never expose the underlying error text.
func PublicMessage(err error) string {
	if KindOf(err) == KindInternal {
		return "Internal server error"
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return "Internal server error"
	}
	return oopsErr.Error()
}

func errInternal(operation string, err error) error {
	return oops.Code(CodeInternal).With("operation", operation).Wrap(err)
}

func errInvalidCredentials() error {
	return oops.Code(CodeInvalidCredentials).Errorf("Invalid credentials")
}
