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

package drivers

import (
	"fmt"
	"net"

	"github.com/virtnet/lsdn/pkg/nettype"
	"github.com/virtnet/lsdn/pkg/ruleset"
)

// Discipline names the three VXLAN switching disciplines spec §3 lists
// settings constructors for. Mirrors enum lsdn_switch restricted to the
// VXLAN-compatible values (SwitchLearning is mcast-only; direct/vlan use
// the bridge drivers in this package instead of this one).
type Discipline int

const (
	// Mcast floods to a multicast group; remote peers are discovered by
	// the tunnel's own multicast membership, so no add_remote_pa/
	// add_remote_virt hooks are needed — grounded on LSDN_LEARNING.
	Mcast Discipline = iota
	// E2E tunnels point-to-point to every other PA on the net,
	// needing add_remote_pa but not per-virt granularity — grounded on
	// LSDN_LEARNING_E2E.
	E2E
	// Static routes by destination MAC to a specific remote virt's host,
	// needing both add_remote_pa and add_remote_virt — grounded on
	// LSDN_STATIC_E2E.
	Static
)

// VXLAN implements nettype.Ops for all three VXLAN switching disciplines.
// Port and, for Mcast, McastIP come from Settings (spec §3's vxlan_mcast
// union fields); VNI comes from each Net's VnetID.
type VXLAN struct {
	Fabric     nettype.Fabric
	Discipline Discipline
	Port       uint16
	McastIP    net.IP
}

// NewVXLANMcast builds a Mcast-discipline VXLAN driver's Ops, grounded on
// lsdn_net_new_vxlan_mcast.
func NewVXLANMcast(fabric nettype.Fabric, port uint16, mcastIP net.IP) nettype.Ops {
	v := &VXLAN{Fabric: fabric, Discipline: Mcast, Port: port, McastIP: mcastIP}
	return mergeOps(nettype.Ops{
		CreatePA:   v.createPA,
		DestroyPA:  v.destroyPA,
		AddVirt:    v.addVirt,
		RemoveVirt: v.removeVirt,
	})
}

// NewVXLANE2E builds a LearningE2E-discipline VXLAN driver's Ops, grounded
// on lsdn_net_new_vxlan_e2e.
func NewVXLANE2E(fabric nettype.Fabric, port uint16) nettype.Ops {
	v := &VXLAN{Fabric: fabric, Discipline: E2E, Port: port}
	return mergeOps(nettype.Ops{
		CreatePA:     v.createPA,
		DestroyPA:    v.destroyPA,
		AddVirt:      v.addVirt,
		RemoveVirt:   v.removeVirt,
		AddRemotePA:  v.addRemotePA,
		RemoveRemotePA: v.removeRemotePA,
	})
}

// NewVXLANStatic builds a StaticE2E-discipline VXLAN driver's Ops, grounded
// on lsdn_net_new_vxlan_static.
func NewVXLANStatic(fabric nettype.Fabric, port uint16) nettype.Ops {
	v := &VXLAN{Fabric: fabric, Discipline: Static, Port: port}
	return mergeOps(nettype.Ops{
		CreatePA:         v.createPA,
		DestroyPA:        v.destroyPA,
		AddVirt:          v.addVirt,
		RemoveVirt:       v.removeVirt,
		AddRemotePA:      v.addRemotePA,
		RemoveRemotePA:   v.removeRemotePA,
		AddRemoteVirt:    v.addRemoteVirt,
		RemoveRemoteVirt: v.removeRemoteVirt,
	})
}

func (v *VXLAN) tunnelName(pa nettype.PA) string {
	return fmt.Sprintf("vxlan%d-%s", pa.Net().VnetID(), pa.Phys().Name())
}

func (v *VXLAN) createPA(pa nettype.PA) {
	ifc := nettype.LocalNetIfc{Name: v.tunnelName(pa), SegmentID: pa.Net().VnetID()}
	if err := v.Fabric.CreateLocalIfc(ifc); err != nil {
		panic(err)
	}
	pa.SetHandle(&bridgeHandle{
		localIfc: ifc,
		created:  true,
		rules:    ruleset.New(ifc.Name, 0, 0, 0, 16),
	})
}

func (v *VXLAN) destroyPA(pa nettype.PA) {
	h, ok := pa.Handle().(*bridgeHandle)
	if !ok || !h.created {
		return
	}
	if err := v.Fabric.DeleteLocalIfc(h.localIfc); err != nil {
		panic(err)
	}
}

func (v *VXLAN) addVirt(virt nettype.Virt) {
	h, ok := virt.Attachment().Handle().(*bridgeHandle)
	if !ok {
		panic("drivers: vxlan add_virt called before create_pa")
	}
	prio, err := h.rules.DefinePrio(0)
	if err != nil {
		panic(err)
	}
	vr, err := ruleset.NewVirtRule(prio, macMatch(virt.MAC()), virt.Name())
	if err != nil {
		panic(err)
	}
	virt.SetHandle(&virtHandle{rule: vr})
}

func (v *VXLAN) removeVirt(virt nettype.Virt) {
	h, ok := virt.Handle().(*virtHandle)
	if !ok || h.rule == nil {
		return
	}
	h.rule.Remove()
}

// addRemotePA programs routing toward a peer PA's host by registering a
// remote interface on the fabric keyed on the peer's phys IP, mirroring
// what a real LEARNING_E2E/STATIC_E2E driver would add as a point-to-point
// VXLAN FDB entry.
func (v *VXLAN) addRemotePA(rpa nettype.RemotePA) {
	remote := rpa.Remote()
	ifc := nettype.RemoteNetIfc{
		SegmentID: remote.Net().VnetID(),
		HostIP:    remote.Phys().IP(),
	}
	if err := v.Fabric.CreateRemoteIfc(ifc); err != nil {
		panic(err)
	}
}

func (v *VXLAN) removeRemotePA(rpa nettype.RemotePA) {
	remote := rpa.Remote()
	ifc := nettype.RemoteNetIfc{
		SegmentID: remote.Net().VnetID(),
		HostIP:    remote.Phys().IP(),
	}
	if err := v.Fabric.DeleteRemoteIfc(ifc); err != nil {
		panic(err)
	}
}

// addRemoteVirt refines the remote PA's routing to a single guest
// MAC/IP pair, only called under Static.
func (v *VXLAN) addRemoteVirt(rv nettype.RemoteVirt) {
	virt := rv.Virt()
	remote := rv.PA().Remote()
	ifc := nettype.RemoteNetIfc{
		SegmentID: remote.Net().VnetID(),
		GuestMAC:  virt.MAC(),
		HostIP:    remote.Phys().IP(),
	}
	if err := v.Fabric.CreateRemoteIfc(ifc); err != nil {
		panic(err)
	}
}

func (v *VXLAN) removeRemoteVirt(rv nettype.RemoteVirt) {
	virt := rv.Virt()
	remote := rv.PA().Remote()
	ifc := nettype.RemoteNetIfc{
		SegmentID: remote.Net().VnetID(),
		GuestMAC:  virt.MAC(),
		HostIP:    remote.Phys().IP(),
	}
	if err := v.Fabric.DeleteRemoteIfc(ifc); err != nil {
		panic(err)
	}
}
