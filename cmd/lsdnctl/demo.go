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
	"net"

	"github.com/spf13/cobra"

	"github.com/virtnet/lsdn/pkg/lsdn"
	"github.com/virtnet/lsdn/pkg/problem"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Build a two-host network, commit it, and print what the driver materialized",
	RunE:  runDemo,
}

func runDemo(cmd *cobra.Command, args []string) error {
	ctx := lsdn.NewContext("lsdnctl")
	settings, fabric, err := settingsForRun(ctx)
	if err != nil {
		return err
	}
	settings.SetName("main")

	net1 := settings.NewNet(42)
	net1.SetName("demo-net")

	local := ctx.NewPhys()
	local.SetName("host-a")
	local.SetIface("eth0")
	local.SetIP(net.ParseIP("10.0.0.1"))
	local.ClaimLocal()

	remote := ctx.NewPhys()
	remote.SetName("host-b")
	remote.SetIP(net.ParseIP("10.0.0.2"))

	local.Attach(net1)
	remote.Attach(net1)

	v1 := net1.NewVirt()
	v1.SetName("vm-1")
	v1.SetMAC(mustParseMAC("02:00:00:00:00:01"))
	if err := v1.ConnectTo(local, "veth-vm1"); err != nil {
		return err
	}

	v2 := net1.NewVirt()
	v2.SetName("vm-2")
	v2.SetMAC(mustParseMAC("02:00:00:00:00:02"))
	if err := v2.ConnectTo(remote, "veth-vm2"); err != nil {
		return err
	}

	problemCount := 0
	cb := func(p problem.Problem) {
		problemCount++
		fmt.Fprintln(cmd.OutOrStdout(), "problem:", p.Format())
	}

	if err := ctx.Commit(cb); err != nil {
		return fmt.Errorf("commit failed with %d problems: %w", problemCount, err)
	}

	locals, _ := fabric.ListLocalIfcs()
	for _, ifc := range locals {
		fmt.Fprintf(cmd.OutOrStdout(), "local ifc: name=%s segment=%d\n", ifc.Name, ifc.SegmentID)
	}
	remotes, _ := fabric.ListRemoteIfcs()
	for _, ifc := range remotes {
		fmt.Fprintf(cmd.OutOrStdout(), "remote ifc: segment=%d host=%s guest_mac=%s\n", ifc.SegmentID, ifc.HostIP, ifc.GuestMAC)
	}
	return nil
}

func mustParseMAC(s string) net.HardwareAddr {
	mac, err := net.ParseMAC(s)
	if err != nil {
		panic(err)
	}
	return mac
}
