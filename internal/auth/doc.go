// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

// Package auth is the authentication and session-lifecycle engine.
//
// # Domain Types
//
// Accounts should be created using their constructors:
//   - NewLocalUser - an unverified local account with a password hash
//   - NewFederatedUser - a passwordless account linked to a provider identity
//
// Direct struct initialization bypasses validation and may create invalid state.
//
// # Services
//
//   - CredentialVerifier - password checks for local accounts
//   - TokenIssuer - signed access and refresh tokens
//   - ConfirmationWorkflow - single-use email confirmation tokens
//   - SessionManager - register, login, logout, session cookies
//   - AccountLinkingService - federated sign-in and account linking
//
// Local flows report failures as errors carrying one of the Code* values;
// KindOf maps them to a Kind. Federated sign-in reports failures through a
// Result whose RedirectTo points at the login error page.
package auth
