// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package auth_test

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/authgate/authgate/internal/auth"
)

func TestRegisterMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	assert.NotPanics(t, func() { auth.RegisterMetrics(reg) })
	assert.Panics(t, func() { auth.RegisterMetrics(reg) }, "double registration panics")
}

func TestLogoutIsCounted(t *testing.T) {
	m, _ := newSessionManager(t)
	counter := auth.OperationsTotal.WithLabelValues(auth.OpLogout, "ok")
	before := testutil.ToFloat64(counter)

	m.Logout(httptest.NewRecorder())

	assert.InDelta(t, before+1, testutil.ToFloat64(counter), 0)
}

func TestConfirmAccountIsCounted(t *testing.T) {
	key := auth.ConfirmationKey("tok")

	t.Run("success", func(t *testing.T) {
		w, deps := newConfirmationWorkflow(t)
		user := localUser()
		user.AccountStatus = auth.AccountVerified
		deps.store.On("Get", mock.Anything, key).Return(user.ID.String(), nil)
		deps.store.On("Del", mock.Anything, key).Return(nil)

		counter := auth.OperationsTotal.WithLabelValues(auth.OpConfirmation, "ok")
		before := testutil.ToFloat64(counter)

		_, err := w.ConfirmAccount(context.Background(), user, "tok")
		require.NoError(t, err)
		assert.InDelta(t, before+1, testutil.ToFloat64(counter), 0)
	})

	t.Run("ownership mismatch", func(t *testing.T) {
		w, deps := newConfirmationWorkflow(t)
		deps.store.On("Get", mock.Anything, key).Return(localUser().ID.String(), nil)

		counter := auth.OperationsTotal.WithLabelValues(auth.OpConfirmation, "token_ownership_mismatch")
		before := testutil.ToFloat64(counter)

		_, err := w.ConfirmAccount(context.Background(), localUser(), "tok")
		require.Error(t, err)
		assert.InDelta(t, before+1, testutil.ToFloat64(counter), 0)
	})
}
