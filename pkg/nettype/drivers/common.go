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

// Package drivers implements the concrete nettype.Ops vtables for every
// network type spec.md names: "direct" (a tunnel-free Linux-bridge learning
// switch, grounded on net_direct.c + lbridge.c), "vlan" (a bridge switch
// using a VLAN tag as its segment id instead of a tunnel), and the three
// VXLAN switching disciplines (mcast/e2e/static). None of these drivers
// emit real netlink/TC commands, per the library's Non-goals; each instead
// drives a nettype.Fabric, recording exactly the sequence of local/remote
// interface lifecycle calls a real implementation would issue.
package drivers

import (
	"fmt"
	"net"

	"github.com/imdario/mergo"

	"github.com/virtnet/lsdn/pkg/nettype"
	"github.com/virtnet/lsdn/pkg/ruleset"
)

// baseOps is the shared skeleton every driver in this package starts from:
// every hook defaults to nil (a no-op, per nettype.Ops's contract), and a
// constructor calls mergo.Merge to layer its own hooks on top, the same
// "start from a base value, override only what you need" pattern
// SPEC_FULL.md documents for this library's driver authors.
var baseOps = nettype.Ops{}

// mergeOps layers override on top of a copy of baseOps, panicking only on
// a mergo internal error (a struct-of-funcs merge cannot itself fail on
// valid input, so this mirrors the library's treatment of allocation
// failure as fatal rather than threading another error return through
// every driver constructor).
func mergeOps(override nettype.Ops) nettype.Ops {
	out := baseOps
	if err := mergo.Merge(&out, override, mergo.WithOverride); err != nil {
		panic(fmt.Sprintf("drivers: merging ops: %v", err))
	}
	return out
}

// bridgeHandle is the per-attachment driver state every bridge-backed
// driver (direct, vlan) stores via PA.SetHandle: the fabric-side local
// interface standing in for the tunnel+Linux-bridge pair
// direct_create_pa/lsdn_lbridge_init build in the original, plus the
// ruleset the attachment's virts install their switching rules into.
type bridgeHandle struct {
	localIfc  nettype.LocalNetIfc
	created   bool
	rules     *ruleset.Ruleset
}

// virtHandle is the per-virt driver state stored via Virt.SetHandle: the
// firewall rule installed for this virt's switching, mirroring lbridge.c's
// lsdn_prepare_rulesets/lsdn_ruleset_free pairing around add_virt/remove_virt.
type virtHandle struct {
	rule *ruleset.VirtRule
}

func macMatch(mac net.HardwareAddr) []ruleset.MatchKey {
	full := make([]byte, len(mac))
	for i := range full {
		full[i] = 0xff
	}
	return []ruleset.MatchKey{{
		Target: ruleset.TargetDstMAC,
		Value:  []byte(mac),
		Mask:   full,
	}}
}
