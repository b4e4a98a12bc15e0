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

package ruleset

// VirtRule is a per-virt template rule, instantiated into a Ruleset when
// the virt connects and torn down when it disconnects. It is the ruleset
// abstraction's representation of the virtual-rule firewall compiler this
// library's Non-goals exclude beyond this type: a driver's AddVirt/
// RemoveVirt hook builds one of these to install/remove the virt's match
// in whatever PrioSlot the driver uses for switching (e.g. "forward to this
// virt's tunnel if dst_mac == virt's mac"). Mirrors struct lsdn_vr from
// private/rules.h, collapsed to what a driver needs to hold between
// AddVirt and RemoveVirt: the slot it was added to and the underlying Rule.
type VirtRule struct {
	Slot *PrioSlot
	Rule *Rule
}

// VirtSubprio is the fixed subpriority every virt rule uses, mirroring
// LSDN_VR_SUBPRIO: virt rules never share a masked key with another virt
// rule in the same slot, so no further disambiguation is needed.
const VirtSubprio = 0

// NewVirtRule installs a rule matching keys in slot on behalf of a virt,
// fixed at VirtSubprio, and returns the VirtRule the caller should keep
// around (typically in the virt's driver handle) to remove it again later.
func NewVirtRule(slot *PrioSlot, keys []MatchKey, user interface{}) (*VirtRule, error) {
	r := &Rule{Keys: keys, Subprio: VirtSubprio, User: user}
	if err := slot.Add(r); err != nil {
		return nil, err
	}
	return &VirtRule{Slot: slot, Rule: r}, nil
}

// Remove tears the virt rule down, freeing its handle back to the slot's
// allocator.
func (vr *VirtRule) Remove() {
	vr.Slot.Remove(vr.Rule)
}
