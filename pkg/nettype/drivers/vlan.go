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

	"github.com/virtnet/lsdn/pkg/nettype"
	"github.com/virtnet/lsdn/pkg/ruleset"
)

// VLAN implements nettype.Ops for 802.1Q-tagged networks: like Direct, it
// switches locally through a bridge, with the net's VnetID serving as the
// VLAN tag in the bridge's name and segment id. Each attachment gets its
// own ruleset, and virt rules match on dst_mac alone; Net.VlanID is not
// read by this driver.
type VLAN struct {
	Fabric nettype.Fabric
}

// NewVLAN builds the VLAN driver's Ops bound to fabric.
func NewVLAN(fabric nettype.Fabric) nettype.Ops {
	v := &VLAN{Fabric: fabric}
	return mergeOps(nettype.Ops{
		CreatePA:   v.createPA,
		DestroyPA:  v.destroyPA,
		AddVirt:    v.addVirt,
		RemoveVirt: v.removeVirt,
	})
}

func (v *VLAN) createPA(pa nettype.PA) {
	name := fmt.Sprintf("vlan%d-%s", pa.Net().VnetID(), pa.Phys().Name())
	ifc := nettype.LocalNetIfc{Name: name, SegmentID: pa.Net().VnetID()}
	if err := v.Fabric.CreateLocalIfc(ifc); err != nil {
		panic(err)
	}
	pa.SetHandle(&bridgeHandle{
		localIfc: ifc,
		created:  true,
		rules:    ruleset.New(name, 0, 0, 0, 16),
	})
}

func (v *VLAN) destroyPA(pa nettype.PA) {
	h, ok := pa.Handle().(*bridgeHandle)
	if !ok || !h.created {
		return
	}
	if err := v.Fabric.DeleteLocalIfc(h.localIfc); err != nil {
		panic(err)
	}
}

func (v *VLAN) addVirt(virt nettype.Virt) {
	h, ok := virt.Attachment().Handle().(*bridgeHandle)
	if !ok {
		panic("drivers: vlan add_virt called before create_pa")
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

func (v *VLAN) removeVirt(virt nettype.Virt) {
	h, ok := virt.Handle().(*virtHandle)
	if !ok || h.rule == nil {
		return
	}
	h.rule.Remove()
}
