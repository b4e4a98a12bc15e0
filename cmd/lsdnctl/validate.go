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

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/virtnet/lsdn/pkg/lsdn"
	"github.com/virtnet/lsdn/pkg/problem"
)

var broken bool

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Build a network and run the validator without committing it",
	RunE:  runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&broken, "broken", false,
		"leave the virt's phys un-attached, so the validator reports PhysNotAttached")
}

func runValidate(cmd *cobra.Command, args []string) error {
	ctx := lsdn.NewContext("lsdnctl")
	settings, _, err := settingsForRun(ctx)
	if err != nil {
		return err
	}
	settings.SetName("main")

	net1 := settings.NewNet(7)
	net1.SetName("demo-net")

	host := ctx.NewPhys()
	host.SetName("host-a")
	host.SetIface("eth0")
	host.ClaimLocal()
	if !broken {
		host.Attach(net1)
	}

	v := net1.NewVirt()
	v.SetName("vm-1")
	if err := v.ConnectTo(host, "veth-vm1"); err != nil {
		return err
	}

	count := 0
	err = ctx.Validate(func(p problem.Problem) {
		count++
		fmt.Fprintln(cmd.OutOrStdout(), p.Format())
	})
	if err != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "validation failed: %d problem(s)\n", count)
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), "validation ok")
	return nil
}
