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

// Package nettype defines the pluggable driver contract the commit engine
// dispatches into for each network's tunneling/switching implementation
// (vlan, vxlan in its three switching disciplines, and a tunnel-free
// direct/bridged mode). It is grounded on netmodel/private/net.h's
// lsdn_net_ops vtable and on the teacher's networkfabric.Interface, which
// plays the same "local/remote interface lifecycle" role for VXLAN-backed
// guest networking.
//
// The interfaces here are defined by the consumer (this package), not by
// pkg/lsdn, specifically so pkg/lsdn can implement them on its concrete
// types without pkg/nettype importing pkg/lsdn — avoiding an import cycle
// between the core model and its drivers.
package nettype

import "net"

// NetInfo is the read-only view of a network a driver needs.
type NetInfo interface {
	Name() string
	VnetID() uint32
}

// PhysInfo is the read-only view of a physical host a driver needs.
type PhysInfo interface {
	Name() string
	Iface() string
	IP() net.IP
}

// Virt is the read-only view of a connected virtual interface a driver
// needs, plus the handle slot drivers use to cache per-virt state (e.g. a
// materialized ruleset.VirtRule).
type Virt interface {
	Name() string
	MAC() net.HardwareAddr
	Iface() string
	Handle() interface{}
	SetHandle(interface{})
	// Attachment returns the PA this virt is currently connected through,
	// mirroring struct lsdn_virt's connected_through pointer — drivers use
	// it to reach the bridge/tunnel state CreatePA stored on the PA.
	Attachment() PA
}

// PA is the read-only view of a physical attachment (the junction of a net
// and a phys) a driver needs, plus a handle slot for driver-private
// per-attachment state — the Go analogue of the union embedded in
// struct lsdn_phys_attachment (e.g. a learning switch's bridge/tunnel
// interface pair).
type PA interface {
	Net() NetInfo
	Phys() PhysInfo
	Handle() interface{}
	SetHandle(interface{})
}

// RemotePA is a local PA's view of a peer PA on the same net, handed to
// AddRemotePA/RemoveRemotePA under SwitchLearningE2E and SwitchStaticE2E.
type RemotePA interface {
	Local() PA
	Remote() PA
}

// RemoteVirt is a RemotePA's view of one virt connected through its remote
// PA, handed to AddRemoteVirt/RemoveRemoteVirt whenever a driver sets those
// hooks; of the drivers in this module only the SwitchStaticE2E one does.
type RemoteVirt interface {
	PA() RemotePA
	Virt() Virt
}

// Ops is the nettype driver vtable. Every field is optional; a nil field is
// a no-op hook, mirroring struct lsdn_net_ops's optional function pointers
// (e.g. net_direct.c's lsdn_net_direct_ops leaves add_remote_pa,
// add_remote_virt, validate_pa and validate_virt unset). The commit engine
// never calls a nil field.
type Ops struct {
	// CreatePA is called once, the first time a local PA is committed.
	CreatePA func(pa PA)
	// DestroyPA is called when a PA that was committed while its phys was
	// local is decommitted.
	DestroyPA func(pa PA)
	// AddVirt is called when a new virt finishes connecting through an
	// already-committed (or concurrently committing) local PA.
	AddVirt func(v Virt)
	// RemoveVirt is called when a committed virt is decommitted.
	RemoveVirt func(v Virt)
	// AddRemotePA is called when a new peer PA on the same net is
	// discovered during commit (SwitchLearningE2E, SwitchStaticE2E).
	AddRemotePA func(rpa RemotePA)
	// RemoveRemotePA is called when a remote PA view is decommitted.
	RemoveRemotePA func(rpa RemotePA)
	// AddRemoteVirt is called when a new virt appears behind an already
	// known remote PA (SwitchStaticE2E only).
	AddRemoteVirt func(rv RemoteVirt)
	// RemoveRemoteVirt is called when a remote virt view is decommitted.
	RemoveRemoteVirt func(rv RemoteVirt)
	// ValidatePA lets a driver add its own problems during validation of
	// an explicitly attached PA.
	ValidatePA func(pa PA) []string
	// ValidateVirt lets a driver add its own problems during validation
	// of a virt connected through a local, explicitly attached PA.
	ValidateVirt func(v Virt) []string
}
