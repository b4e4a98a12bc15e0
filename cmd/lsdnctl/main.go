/*
Copyright 2019 The Kubernetes Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// lsdnctl drives the lsdn library end to end against its in-memory fabric,
// standing in for a real agent that would otherwise read a config file and
// program the kernel: it is a debugging and demonstration aid, not a
// production control-plane binary.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/virtnet/lsdn/pkg/lsdn"
	"github.com/virtnet/lsdn/pkg/nettype"
	"github.com/virtnet/lsdn/pkg/testsupport"
)

var nettypeFlag string

var rootCmd = &cobra.Command{
	Use:           "lsdnctl",
	Short:         "Drive the lsdn virtual-network model against an in-memory fabric",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return validateNettypeFlag(cmd.Flags())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&nettypeFlag, "nettype", "", fmt.Sprintf(
		"nettype to use (%v); defaults to $%s", testsupport.Nettypes(), testsupport.EnvVar))
	rootCmd.AddCommand(demoCmd, validateCmd, versionCmd)
}

// validateNettypeFlag rejects a --nettype value outside testsupport's known
// set as soon as flags are parsed, rather than waiting for SettingsFor to
// fail inside a subcommand. Mirrors the flagparser package's own
// flags.Changed-guarded validation of fixed-choice string flags.
func validateNettypeFlag(flags *pflag.FlagSet) error {
	if !flags.Changed("nettype") {
		return nil
	}
	for _, nt := range testsupport.Nettypes() {
		if nt == nettypeFlag {
			return nil
		}
	}
	return fmt.Errorf("invalid --nettype %q, must be one of %v", nettypeFlag, testsupport.Nettypes())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "lsdnctl:", err)
		os.Exit(1)
	}
}

// settingsForRun resolves --nettype, falling back to LSCTL_NETTYPE, the way
// every subcommand needs to build its Settings object. It also returns the
// Fabric the driver was built with, so callers can inspect it after a
// commit.
func settingsForRun(ctx *lsdn.Context) (*lsdn.Settings, nettype.Fabric, error) {
	if nettypeFlag != "" {
		return testsupport.SettingsFor(ctx, nettypeFlag)
	}
	return testsupport.SettingsFromEnv(ctx)
}
