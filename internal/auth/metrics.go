// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package auth

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Operation labels for OperationsTotal.
const (
	OpRegister     = "register"
	OpLogin        = "login"
	OpLogout       = "logout"
	OpFederated    = "federated"
	OpConfirmation = "confirm"
)

// OperationsTotal counts session operations by outcome kind.
// Use RegisterMetrics to register this with a Prometheus registry.
var OperationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "authgate_auth_operations_total",
		Help: "Total number of authentication operations by operation and result",
	},
	[]string{"operation", "result"},
)

var confirmationMailFailures = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "authgate_confirmation_mail_enqueue_failures_total",
		Help: "Total number of confirmation emails that could not be queued",
	},
)

// RegisterMetrics registers auth package metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(OperationsTotal)
	reg.MustRegister(confirmationMailFailures)
}

func recordOperation(operation string, err error) {
	OperationsTotal.WithLabelValues(operation, KindOf(err).String()).Inc()
}
