// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package auth

// Result is the outcome of a sign-in flow. Local flows render it as a
// structured response; federated flows render it as a redirect to RedirectTo.
type Result struct {
	Session    *Session
	Kind       Kind
	Message    string
	RedirectTo string
	Err        error
}

// OK reports whether the flow succeeded.
func (r Result) OK() bool {
	return r.Kind == KindNone
}

// Status returns the HTTP status for a structured rendering of the result.
func (r Result) Status() int {
	return r.Kind.Status()
}

// OKResult wraps a successful session.
func OKResult(session *Session, redirectTo string) Result {
	return Result{Session: session, Kind: KindNone, RedirectTo: redirectTo}
}

// ErrorResult classifies err. The message is safe to show to the caller.
func ErrorResult(err error, redirectTo string) Result {
	return Result{
		Kind:       KindOf(err),
		Message:    PublicMessage(err),
		RedirectTo: redirectTo,
		Err:        err,
	}
}

// ResultOf builds a Result from a session operation's return values.
func ResultOf(session *Session, err error) Result {
	if err != nil {
		return ErrorResult(err, "")
	}
	return OKResult(session, "")
}
