// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package main

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for the authgate CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "authgate",
		Short: "Authgate - authentication and session service",
		Long: `Authgate signs users in with email and password or a federated
provider, issues session cookies, and confirms account email addresses.`,
		SilenceUsage: true,
	}

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())

	return cmd
}
