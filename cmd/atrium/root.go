// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Atrium Contributors

package main

import (
	"strings"

	atriumerr "github.com/atrium-host/atrium/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// NewRootCmd builds the atrium command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "atrium",
		Short:         "Atrium multi-tenant plugin host",
		Long:          "Atrium hosts first- and third-party application plugins under least-privilege capability grants.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initViper(cmd)
		},
	}

	root.PersistentFlags().StringP("config", "c", "", "config file path")
	root.PersistentFlags().BoolP("verbose", "v", false, "verbose logging")

	root.AddCommand(
		newStartCmd(),
		newStatusCmd(),
		newPluginsCmd(),
		newVersionCmd(),
	)

	return root
}

// initViper wires the override layers into the global Viper so the
// standard precedence (flag > env > file > defaults) holds. The config
// file itself is read by config.Load in the commands that need one;
// the global instance only carries flag and env overrides.
func initViper(cmd *cobra.Command) error {
	v := viper.GetViper()
	v.SetEnvPrefix("ATRIUM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	err := v.BindPFlag("verbose", cmd.Root().PersistentFlags().Lookup("verbose"))
	return atriumerr.Wrapf(err, atriumerr.CodeCLISetupFailure, "binding verbose flag")
}
