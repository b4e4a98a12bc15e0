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

	"github.com/virtnet/lsdn/pkg/nettype"
	"github.com/virtnet/lsdn/pkg/nettype/drivers"
)

// This file collapses the lsdn_settings_new_* constructor family (§6) into
// one convenience constructor per nettype, each wiring up the matching
// driver Ops from pkg/nettype/drivers on top of the generic NewSettings
// (§4.8's "vtable each network driver implements"). Callers who bring their
// own driver implementation should call ctx.NewSettings directly instead.

// NewDirectSettings creates a Settings using the tunnel-free Linux-bridge
// driver. Mirrors lsdn_settings_new_direct.
func (ctx *Context) NewDirectSettings(fabric nettype.Fabric) *Settings {
	if fabric == nil {
		fabric = nettype.NewMemFabric(ctx.name)
	}
	return ctx.NewSettings(NetDirect, SwitchLearning, drivers.NewDirect(fabric))
}

// NewVLANSettings creates a Settings using the 802.1Q-tagged bridge driver.
// Mirrors lsdn_settings_new_vlan.
func (ctx *Context) NewVLANSettings(fabric nettype.Fabric) *Settings {
	if fabric == nil {
		fabric = nettype.NewMemFabric(ctx.name)
	}
	return ctx.NewSettings(NetVLAN, SwitchLearning, drivers.NewVLAN(fabric))
}

// NewVXLANMcastSettings creates a Settings using the multicast-flooding
// VXLAN driver sharing mcastIP and port across every Net built from it.
// Mirrors lsdn_settings_new_vxlan_mcast (the id parameter in spec §6's
// signature is the multicast group id, folded into mcastIP here since Go
// has no equivalent of the C union's separate id/ip/port trio).
func (ctx *Context) NewVXLANMcastSettings(mcastIP net.IP, port uint16) *Settings {
	s := ctx.NewSettings(NetVXLAN, SwitchLearning, drivers.NewVXLANMcast(nettype.NewMemFabric(ctx.name), port, mcastIP))
	s.VXLANPort = port
	s.McastIP = mcastIP
	return s
}

// NewVXLANE2ESettings creates a Settings using the end-to-end learning
// VXLAN driver. Mirrors lsdn_settings_new_vxlan_e2e.
func (ctx *Context) NewVXLANE2ESettings(port uint16) *Settings {
	s := ctx.NewSettings(NetVXLAN, SwitchLearningE2E, drivers.NewVXLANE2E(nettype.NewMemFabric(ctx.name), port))
	s.VXLANPort = port
	return s
}

// NewVXLANStaticSettings creates a Settings using the static, per-virt VXLAN
// driver. Mirrors lsdn_settings_new_vxlan_static.
func (ctx *Context) NewVXLANStaticSettings(port uint16) *Settings {
	s := ctx.NewSettings(NetVXLAN, SwitchStaticE2E, drivers.NewVXLANStatic(nettype.NewMemFabric(ctx.name), port))
	s.VXLANPort = port
	return s
}
