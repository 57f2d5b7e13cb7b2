// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

// Package mail renders and delivers transactional email.
//
// Callers hand a Message to a Dispatcher, which queues it and returns
// immediately. Workers render the template and deliver it through a Sender,
// retrying with exponential backoff. Delivery failures are logged and counted,
// never returned to the caller.
package mail
