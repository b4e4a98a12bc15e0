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

package lsdn

import (
	"net"

	"github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/virtnet/lsdn/pkg/nettype"
	"github.com/virtnet/lsdn/pkg/problem"
)

// recordingOps is a nettype.Ops whose every hook appends a trace string, so
// tests can assert on exactly the sequence of driver calls a commit
// produces, the way spec §8's scenarios describe ("drivers observe
// create_pa(pa); add_virt(v)").
func recordingOps(trace *[]string) nettype.Ops {
	return nettype.Ops{
		CreatePA: func(pa nettype.PA) {
			*trace = append(*trace, "create_pa("+pa.Phys().Name()+")")
		},
		DestroyPA: func(pa nettype.PA) {
			*trace = append(*trace, "destroy_pa("+pa.Phys().Name()+")")
		},
		AddVirt: func(v nettype.Virt) {
			*trace = append(*trace, "add_virt("+v.Name()+")")
		},
		RemoveVirt: func(v nettype.Virt) {
			*trace = append(*trace, "remove_virt("+v.Name()+")")
		},
		AddRemotePA: func(rpa nettype.RemotePA) {
			*trace = append(*trace, "add_remote_pa("+rpa.Remote().Phys().Name()+")")
		},
		RemoveRemotePA: func(rpa nettype.RemotePA) {
			*trace = append(*trace, "remove_remote_pa("+rpa.Remote().Phys().Name()+")")
		},
		AddRemoteVirt: func(rv nettype.RemoteVirt) {
			*trace = append(*trace, "add_remote_virt("+rv.Virt().Name()+")")
		},
		RemoveRemoteVirt: func(rv nettype.RemoteVirt) {
			*trace = append(*trace, "remove_remote_virt("+rv.Virt().Name()+")")
		},
	}
}

var _ = ginkgo.Describe("Commit", func() {
	var (
		ctx   *Context
		trace []string
		host  *Phys
		n     *Net
	)

	ginkgo.BeforeEach(func() {
		trace = nil
		ctx = NewContext("test")
		settings := ctx.NewSettings(NetDirect, SwitchLearning, recordingOps(&trace))
		n = settings.NewNet(1)
		n.SetName("net0")
		host = ctx.NewPhys()
		host.SetName("host0")
		host.SetIface("eth0")
		host.ClaimLocal()
		host.Attach(n)
	})

	ginkgo.It("dispatches create_pa then add_virt for a new local virt", func() {
		v := n.NewVirt()
		v.SetName("v0")
		Expect(v.ConnectTo(host, "veth0")).To(Succeed())

		Expect(ctx.Commit(nil)).To(Succeed())
		Expect(trace).To(Equal([]string{"create_pa(host0)", "add_virt(v0)"}))
		Expect(v.CommittedIf()).To(Equal("veth0"))
	})

	ginkgo.It("does not redispatch create_pa or add_virt on a no-op commit", func() {
		v := n.NewVirt()
		v.SetName("v0")
		Expect(v.ConnectTo(host, "veth0")).To(Succeed())
		Expect(ctx.Commit(nil)).To(Succeed())

		trace = nil
		Expect(ctx.Commit(nil)).To(Succeed())
		Expect(trace).To(BeEmpty())
	})

	ginkgo.It("dispatches remove_virt when a virt disconnects", func() {
		v := n.NewVirt()
		v.SetName("v0")
		Expect(v.ConnectTo(host, "veth0")).To(Succeed())
		Expect(ctx.Commit(nil)).To(Succeed())

		v.Disconnect()
		trace = nil
		Expect(ctx.Commit(nil)).To(Succeed())
		Expect(trace).To(Equal([]string{"remove_virt(v0)"}))
	})

	ginkgo.It("dispatches destroy_pa when Close tears the context down", func() {
		v := n.NewVirt()
		v.SetName("v0")
		Expect(v.ConnectTo(host, "veth0")).To(Succeed())
		Expect(ctx.Commit(nil)).To(Succeed())

		trace = nil
		ctx.Close()
		Expect(trace).To(ContainElement("remove_virt(v0)"))
		Expect(trace).To(ContainElement("destroy_pa(host0)"))
	})

	ginkgo.It("reconciles remote attachments between two local physes", func() {
		settings := ctx.NewSettings(NetVXLAN, SwitchLearningE2E, recordingOps(&trace))
		netE2E := settings.NewNet(9)
		netE2E.SetName("e2e-net")

		hostB := ctx.NewPhys()
		hostB.SetName("host1")
		hostB.SetIface("eth1")
		hostB.ClaimLocal()
		hostB.Attach(netE2E)
		host.Attach(netE2E)

		Expect(ctx.Commit(nil)).To(Succeed())
		Expect(trace).To(ContainElement("add_remote_pa(host1)"))
		Expect(trace).To(ContainElement("add_remote_pa(host0)"))
	})
})

var _ = ginkgo.Describe("Validate", func() {
	var ctx *Context

	ginkgo.BeforeEach(func() {
		ctx = NewContext("test")
	})

	ginkgo.It("reports PhysNotAttached for a virt connected through an unattached phys", func() {
		settings := ctx.NewSettings(NetDirect, SwitchLearning, nettype.Ops{})
		n := settings.NewNet(1)
		host := ctx.NewPhys()
		host.SetIface("eth0")
		host.ClaimLocal()
		v := n.NewVirt()
		Expect(v.ConnectTo(host, "veth0")).To(Succeed())

		var problems []problem.Problem
		err := ctx.Validate(func(p problem.Problem) { problems = append(problems, p) })
		Expect(err).To(HaveOccurred())
		Expect(problems).To(HaveLen(1))
		Expect(problems[0].Code).To(Equal(problem.PhysNotAttached))
	})

	ginkgo.It("reports VirtDupAttr for two virts in the same net sharing a MAC", func() {
		settings := ctx.NewSettings(NetDirect, SwitchLearning, nettype.Ops{})
		n := settings.NewNet(1)
		host := ctx.NewPhys()
		host.SetIface("eth0")
		host.ClaimLocal()
		host.Attach(n)

		mac, _ := net.ParseMAC("02:00:00:00:00:01")
		v1 := n.NewVirt()
		v1.SetMAC(mac)
		Expect(v1.ConnectTo(host, "veth1")).To(Succeed())
		v2 := n.NewVirt()
		v2.SetMAC(mac)
		Expect(v2.ConnectTo(host, "veth2")).To(Succeed())

		err := ctx.Validate(nil)
		Expect(err).To(HaveOccurred())
		verr, ok := err.(*ValidateError)
		Expect(ok).To(BeTrue())
		Expect(codesOf(verr.Problems)).To(ContainElement(problem.VirtDupAttr))
	})

	ginkgo.It("reports NetDupID for two nets of the same nettype sharing a vnet_id", func() {
		settings := ctx.NewSettings(NetDirect, SwitchLearning, nettype.Ops{})
		n1 := settings.NewNet(5)
		n2 := settings.NewNet(5)
		_ = n1
		_ = n2

		err := ctx.Validate(nil)
		Expect(err).To(HaveOccurred())
		verr := err.(*ValidateError)
		Expect(codesOf(verr.Problems)).To(ContainElement(problem.NetDupID))
	})

	ginkgo.It("reports PhysDupAttr for two physes sharing an IP", func() {
		ip := net.ParseIP("10.0.0.1")
		p1 := ctx.NewPhys()
		p1.SetIP(ip)
		p2 := ctx.NewPhys()
		p2.SetIP(ip)

		err := ctx.Validate(nil)
		Expect(err).To(HaveOccurred())
		verr := err.(*ValidateError)
		Expect(codesOf(verr.Problems)).To(ContainElement(problem.PhysDupAttr))
	})

	ginkgo.It("reports no problems for a well-formed topology", func() {
		settings := ctx.NewSettings(NetDirect, SwitchLearning, nettype.Ops{})
		n := settings.NewNet(1)
		host := ctx.NewPhys()
		host.SetIface("eth0")
		host.ClaimLocal()
		host.Attach(n)
		v := n.NewVirt()
		Expect(v.ConnectTo(host, "veth0")).To(Succeed())

		Expect(ctx.Validate(nil)).To(Succeed())
	})
})

func codesOf(problems []problem.Problem) []problem.Code {
	codes := make([]problem.Code, len(problems))
	for i, p := range problems {
		codes[i] = p.Code
	}
	return codes
}
