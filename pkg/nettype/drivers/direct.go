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

// directPrioStart/directPrioCount bound the single priority slot the direct
// driver uses for its dst-mac switching rule, an arbitrary but fixed
// coordinate since this driver never shares a ruleset with another.
const (
	directPrioStart = 0
	directPrioCount = 16
	directSwitchPrio = 0
)

// Direct implements nettype.Ops for the tunnel-free "direct" network type:
// every local phys attaches directly to a shared Linux bridge and switching
// is a plain learning bridge, grounded on net_direct.c's
// lsdn_net_direct_ops (create_pa/add_virt/remove_virt/destroy_pa, with
// add_remote_pa/add_remote_virt/validate_pa/validate_virt left unset, same
// as the C table).
type Direct struct {
	Fabric nettype.Fabric
}

// NewDirect builds the direct driver's Ops bound to fabric.
func NewDirect(fabric nettype.Fabric) nettype.Ops {
	d := &Direct{Fabric: fabric}
	return mergeOps(nettype.Ops{
		CreatePA:   d.createPA,
		DestroyPA:  d.destroyPA,
		AddVirt:    d.addVirt,
		RemoveVirt: d.removeVirt,
	})
}

func (d *Direct) createPA(pa nettype.PA) {
	name := fmt.Sprintf("br-%s-%s", pa.Net().Name(), pa.Phys().Name())
	ifc := nettype.LocalNetIfc{Name: name, SegmentID: pa.Net().VnetID()}
	if err := d.Fabric.CreateLocalIfc(ifc); err != nil {
		panic(err)
	}
	h := &bridgeHandle{
		localIfc: ifc,
		created:  true,
		rules:    ruleset.New(name, 0, 0, directPrioStart, directPrioCount),
	}
	pa.SetHandle(h)
}

func (d *Direct) destroyPA(pa nettype.PA) {
	h, ok := pa.Handle().(*bridgeHandle)
	if !ok || !h.created {
		return
	}
	if err := d.Fabric.DeleteLocalIfc(h.localIfc); err != nil {
		panic(err)
	}
}

// addVirt installs a dst-mac switching rule for v into its PA's shared
// bridge ruleset (set up by createPA), mirroring lsdn_lbridge_add_virt's
// lsdn_prepare_rulesets call.
func (d *Direct) addVirt(v nettype.Virt) {
	h, ok := v.Attachment().Handle().(*bridgeHandle)
	if !ok {
		panic("drivers: direct add_virt called before create_pa")
	}
	prio, err := h.rules.DefinePrio(directSwitchPrio)
	if err != nil {
		panic(err)
	}
	vr, err := ruleset.NewVirtRule(prio, macMatch(v.MAC()), v.Name())
	if err != nil {
		panic(err)
	}
	v.SetHandle(&virtHandle{rule: vr})
}

func (d *Direct) removeVirt(v nettype.Virt) {
	h, ok := v.Handle().(*virtHandle)
	if !ok || h.rule == nil {
		return
	}
	h.rule.Remove()
}
