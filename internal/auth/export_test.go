// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package auth

import "time"

// SetClock replaces the issuer's time source.
func (t *TokenIssuer) SetClock(now func() time.Time) {
	t.now = now
}

// DummyPasswordHash exposes the hash verified for unknown emails.
const DummyPasswordHash = dummyPasswordHash

// NicknameBase exposes nickname derivation for federated accounts.
var NicknameBase = nicknameBase
