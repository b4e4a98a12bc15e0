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

package nettype

import (
	"fmt"
	"net"
	"sync"
)

// Fabric is the contract a nettype driver uses to materialize the local and
// remote network interfaces its Ops hooks are told about. It is grounded on
// the teacher's networkfabric.Interface: the same local/remote distinction
// and the same "list back what you created" reconciliation contract, scoped
// down to what this library's Non-goals leave in bounds (no concrete
// netlink/TC emission — Fabric is an in-memory bookkeeping surface the
// drivers and their tests observe, not a real kernel-programming backend).
type Fabric interface {
	// Name returns the fabric's name, used to label log lines and test
	// failures when more than one fabric exists in a process.
	Name() string
	CreateLocalIfc(ifc LocalNetIfc) error
	DeleteLocalIfc(ifc LocalNetIfc) error
	CreateRemoteIfc(ifc RemoteNetIfc) error
	DeleteRemoteIfc(ifc RemoteNetIfc) error
	ListLocalIfcs() ([]LocalNetIfc, error)
	ListRemoteIfcs() ([]RemoteNetIfc, error)
}

// LocalNetIfc describes a local network interface a driver has asked the
// fabric to create. Mirrors networkfabric.LocalNetIfc, generalized from
// VXLAN-only VNI tagging to the opaque SegmentID every nettype driver in
// this library uses (the net's vnet_id: a VNI, a VLAN tag, or a direct net's
// opaque id).
type LocalNetIfc struct {
	Name      string
	SegmentID uint32
	GuestMAC  net.HardwareAddr
	GuestIP   net.IP
}

// RemoteNetIfc describes a remote network interface a driver has asked the
// fabric to configure routing/tunneling toward. Mirrors
// networkfabric.RemoteNetIfc.
type RemoteNetIfc struct {
	SegmentID uint32
	GuestMAC  net.HardwareAddr
	GuestIP   net.IP
	HostIP    net.IP
}

// MemFabric is an in-memory Fabric: it never touches netlink or TC, instead
// recording every create/delete so tests and callers such as lsdnctl can
// inspect exactly which interfaces a
// driver materialized, the same way the teacher's ovs fabric is expected to
// list back whatever it was told to create.
type MemFabric struct {
	mu     sync.Mutex
	name   string
	locals map[string]LocalNetIfc
	// remotes is keyed by (SegmentID, GuestIP) per the uniqueness
	// guarantee networkfabric.Interface documents for (VNI, guest IP)
	// pairs.
	remotes map[remoteKey]RemoteNetIfc
}

type remoteKey struct {
	segmentID uint32
	guestIP   string
}

// NewMemFabric creates an empty in-memory fabric named name.
func NewMemFabric(name string) *MemFabric {
	return &MemFabric{
		name:    name,
		locals:  make(map[string]LocalNetIfc),
		remotes: make(map[remoteKey]RemoteNetIfc),
	}
}

func (f *MemFabric) Name() string { return f.name }

func (f *MemFabric) CreateLocalIfc(ifc LocalNetIfc) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.locals[ifc.Name]; exists {
		return fmt.Errorf("nettype: local interface %q already exists on fabric %s", ifc.Name, f.name)
	}
	f.locals[ifc.Name] = ifc
	return nil
}

func (f *MemFabric) DeleteLocalIfc(ifc LocalNetIfc) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.locals, ifc.Name)
	return nil
}

func (f *MemFabric) CreateRemoteIfc(ifc RemoteNetIfc) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := remoteKey{ifc.SegmentID, ifc.GuestIP.String()}
	if _, exists := f.remotes[key]; exists {
		return fmt.Errorf("nettype: remote interface %v already exists on fabric %s", key, f.name)
	}
	f.remotes[key] = ifc
	return nil
}

func (f *MemFabric) DeleteRemoteIfc(ifc RemoteNetIfc) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.remotes, remoteKey{ifc.SegmentID, ifc.GuestIP.String()})
	return nil
}

func (f *MemFabric) ListLocalIfcs() ([]LocalNetIfc, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]LocalNetIfc, 0, len(f.locals))
	for _, ifc := range f.locals {
		out = append(out, ifc)
	}
	return out, nil
}

func (f *MemFabric) ListRemoteIfcs() ([]RemoteNetIfc, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]RemoteNetIfc, 0, len(f.remotes))
	for _, ifc := range f.remotes {
		out = append(out, ifc)
	}
	return out, nil
}
