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

// Package lsdn is a control-plane library for software-defined virtual
// networks that span physical hosts: it models networks, physical hosts,
// their attachments and the virtual interfaces connected through them, and
// drives a pluggable nettype driver through a commit lifecycle that
// reconciles in-memory topology into materialized state.
package lsdn

import (
	"net"
	"sync"

	"github.com/pborman/uuid"
	"k8s.io/klog"

	"github.com/virtnet/lsdn/pkg/metrics"
	"github.com/virtnet/lsdn/pkg/nettype"
	"github.com/virtnet/lsdn/pkg/problem"
)

// Nettype selects the tunneling technique a Settings object uses to carry a
// virtual network over physical topology. Mirrors enum lsdn_nettype.
type Nettype int

const (
	NetVXLAN Nettype = iota
	NetVLAN
	NetDirect
)

func (t Nettype) String() string {
	switch t {
	case NetVXLAN:
		return "vxlan"
	case NetVLAN:
		return "vlan"
	case NetDirect:
		return "direct"
	default:
		return "unknown"
	}
}

// Switch selects the switching discipline used within a Settings' nettype.
// Mirrors enum lsdn_switch.
type Switch int

const (
	// SwitchLearning: a learning switch sharing a single tunnel per phys.
	SwitchLearning Switch = iota
	// SwitchLearningE2E: a learning switch with one tunnel per remote
	// attachment endpoint.
	SwitchLearningE2E
	// SwitchStaticE2E: static switching with one tunnel per remote virt,
	// the only discipline that uses AddRemoteVirt/RemoveRemoteVirt.
	SwitchStaticE2E
)

func (t Switch) String() string {
	switch t {
	case SwitchLearning:
		return "learning"
	case SwitchLearningE2E:
		return "learning-e2e"
	case SwitchStaticE2E:
		return "static-e2e"
	default:
		return "unknown"
	}
}

// PanicHandler receives a panic recovered by Context.recoverInto, standing
// in for the C library's configurable out-of-memory callback
// (lsdn_context_set_nomem_callback). No entry point of this package defers
// recoverInto, so a panic inside a mutation or commit reaches the caller
// without passing through the handler. The default, installed by
// NewContext, re-panics.
type PanicHandler func(ctx *Context, recovered interface{})

// Context is the root object owning every Settings, Net, Phys and their
// descendants, plus the name tables that enforce uniqueness within it.
// Mirrors struct lsdn_context.
type Context struct {
	mu sync.Mutex

	name string
	id   string

	panicHandler     PanicHandler
	disableDecommit  bool
	decommissioning  bool

	settingsNames *names
	netNames      *names
	physNames     *names

	settingsList []*Settings
	networksList []*Net
	physList     []*Phys

	problems          *problem.Reporter
	collectedProblems []problem.Problem
	metrics           *metrics.Recorder
}

// NewContext creates a new root Context named name, grounded on
// lsdn_context_new. The name also names the in-memory fabric the
// convenience settings constructors create, and id disambiguates it in logs across process
// restarts using a generated UUID, the way the C library's ifcount counter
// disambiguates generated interface names within one process lifetime.
func NewContext(name string) *Context {
	ctx := &Context{
		name:          name,
		id:            uuid.New(),
		settingsNames: newNames(),
		netNames:      newNames(),
		physNames:     newNames(),
		problems:      &problem.Reporter{},
		metrics:       metrics.NewRecorder(),
	}
	ctx.panicHandler = func(c *Context, r interface{}) { panic(r) }
	klog.V(2).Infof("lsdn: context %s (%s) created", ctx.name, ctx.id)
	return ctx
}

// SetPanicHandler installs h in place of the default re-panicking handler.
// Mirrors lsdn_context_set_nomem_callback.
func (ctx *Context) SetPanicHandler(h PanicHandler) {
	ctx.panicHandler = h
}

// Name returns the context's name.
func (ctx *Context) Name() string { return ctx.name }

// Decommissioning reports whether the context is being torn down through
// Close rather than Cleanup. Drivers may consult this to skip work that
// would otherwise be wasted on a context that is going away immediately
// (see SPEC_FULL.md §4's disable_decommit supplement, grounded on
// ctx->disable_decommit in lsdn.c).
func (ctx *Context) Decommissioning() bool { return ctx.decommissioning }

func (ctx *Context) recoverInto(err *error) {
	if r := recover(); r != nil {
		klog.Errorf("lsdn: recovered panic in context %s: %v", ctx.name, r)
		ctx.panicHandler(ctx, r)
	}
}

// Settings groups the nettype, switching discipline and driver Ops shared
// by every Net constructed from it. Mirrors struct lsdn_settings (of the
// net union fields, the per-network ones such as vnet_id and the VLAN tag
// live on Net, while the VXLAN port and multicast group live here).
type Settings struct {
	ctx     *Context
	name    string
	state   State
	Nettype Nettype
	Switch  Switch
	Ops     nettype.Ops

	// VXLAN-only parameters shared by all nets built from these settings
	// when the nettype is NetVXLAN, mirroring the port field of
	// lsdn_net's vxlan_mcast union member.
	VXLANPort uint16
	McastIP   net.IP

	UserHooks *UserHooks

	users []*Net
}

// UserHooks lets a caller observe commit lifecycle events, mirroring
// struct lsdn_user_hooks's lsdn_startup_hook.
type UserHooks struct {
	// Startup is called once per local phys attached under these
	// settings at the start of each commit, before validation. Mirrors
	// trigger_startup_hooks iterating local physes' attachments.
	Startup func(net *Net, phys *Phys)
}

// NewSettings registers a new Settings object under ctx. Mirrors the
// lsdn_settings_new_* family of constructors collapsed into one
// constructor plus field assignment, since Go has no equivalent of the C
// union-based per-nettype constructor split.
func (ctx *Context) NewSettings(nettype Nettype, sw Switch, ops nettype.Ops) *Settings {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	s := &Settings{
		ctx:     ctx,
		state:   StateNew,
		Nettype: nettype,
		Switch:  sw,
		Ops:     ops,
	}
	ctx.settingsList = append(ctx.settingsList, s)
	return s
}

// SetName assigns a unique name to s within its context. Mirrors
// lsdn_settings_set_name.
func (s *Settings) SetName(name string) error {
	if err := s.ctx.settingsNames.set(name, s); err != nil {
		return err
	}
	if s.name != "" {
		s.ctx.settingsNames.remove(s.name)
	}
	s.name = name
	return nil
}

// Name returns the settings' assigned name, or "" if unnamed.
func (s *Settings) Name() string { return s.name }

// SettingsByName looks up a Settings object by name. Mirrors
// lsdn_settings_by_name.
func (ctx *Context) SettingsByName(name string) (*Settings, bool) {
	v, ok := ctx.settingsNames.search(name)
	if !ok {
		return nil, false
	}
	return v.(*Settings), true
}

// Net is a virtual network that virts connect to through phys attachments.
// Mirrors struct lsdn_net.
type Net struct {
	ctx      *Context
	name     string
	state    State
	Settings *Settings
	VnetID   uint32
	// VlanID is used when Settings.Nettype == NetVLAN.
	VlanID uint32

	virtNames *names
	attached  []*Attachment
	virts     []*Virt
}

// NewNet creates a Net using s, identified by vnetID (the VXLAN VNI, VLAN
// tag, or an opaque identifier for direct nets). Mirrors lsdn_net_new (the
// nettype-specific lsdn_net_new_vlan/lsdn_net_new_vxlan_mcast constructors
// collapse into this one plus field assignment, as with NewSettings).
func (s *Settings) NewNet(vnetID uint32) *Net {
	n := &Net{
		ctx:       s.ctx,
		state:     StateNew,
		Settings:  s,
		VnetID:    vnetID,
		VlanID:    vnetID,
		virtNames: newNames(),
	}
	s.users = append(s.users, n)
	s.ctx.networksList = append(s.ctx.networksList, n)
	return n
}

// SetName assigns a unique name to n within its context. Mirrors
// lsdn_net_set_name.
func (n *Net) SetName(name string) error {
	if err := n.ctx.netNames.set(name, n); err != nil {
		return err
	}
	if n.name != "" {
		n.ctx.netNames.remove(n.name)
	}
	n.name = name
	return nil
}

// Name returns the net's assigned name, or "" if unnamed.
func (n *Net) Name() string { return n.name }

// NetByName looks up a Net by name. Mirrors lsdn_net_by_name.
func (ctx *Context) NetByName(name string) (*Net, bool) {
	v, ok := ctx.netNames.search(name)
	if !ok {
		return nil, false
	}
	return v.(*Net), true
}

// Phys represents a physical host connection, e.g. eth0 on some machine.
// Mirrors struct lsdn_phys.
type Phys struct {
	ctx   *Context
	name  string
	state State

	isLocal        bool
	commitedAsLocal bool

	attrIface string
	attrIP    net.IP

	attachedTo []*Attachment
}

// NewPhys registers a new Phys under ctx. Mirrors lsdn_phys_new.
func (ctx *Context) NewPhys() *Phys {
	p := &Phys{ctx: ctx, state: StateNew}
	ctx.physList = append(ctx.physList, p)
	return p
}

// SetName assigns a unique name to p within its context. Mirrors
// lsdn_phys_set_name.
func (p *Phys) SetName(name string) error {
	if err := p.ctx.physNames.set(name, p); err != nil {
		return err
	}
	if p.name != "" {
		p.ctx.physNames.remove(p.name)
	}
	p.name = name
	return nil
}

// Name returns the phys' assigned name, or "" if unnamed.
func (p *Phys) Name() string { return p.name }

// PhysByName looks up a Phys by name. Mirrors lsdn_phys_by_name.
func (ctx *Context) PhysByName(name string) (*Phys, bool) {
	v, ok := ctx.physNames.search(name)
	if !ok {
		return nil, false
	}
	return v.(*Phys), true
}

// SetIface records the Linux network device name backing this phys when
// local. Mirrors lsdn_phys_set_iface.
func (p *Phys) SetIface(iface string) { p.attrIface = iface }

// ClearIface removes the recorded interface name. Mirrors
// lsdn_phys_clear_iface.
func (p *Phys) ClearIface() { p.attrIface = "" }

// Iface returns the recorded interface name, or "" if unset.
func (p *Phys) Iface() string { return p.attrIface }

// SetIP records the phys' IP address, used by the validator's duplicate-IP
// cross-check. Mirrors lsdn_phys_set_ip.
func (p *Phys) SetIP(ip net.IP) { p.attrIP = ip }

// IP returns the recorded IP address, or nil if unset.
func (p *Phys) IP() net.IP { return p.attrIP }

// IsLocal reports whether this phys represents the host the process is
// running on.
func (p *Phys) IsLocal() bool { return p.isLocal }

// ClaimLocal marks p as the local host. Mirrors lsdn_phys_claim_local: a
// no-op if already local, otherwise renews every attachment dependent on p
// through the next validate's propagation pass.
func (p *Phys) ClaimLocal() {
	if !p.isLocal {
		renew(&p.state)
		p.isLocal = true
	}
}

// UnclaimLocal undoes ClaimLocal. Mirrors lsdn_phys_unclaim_local.
func (p *Phys) UnclaimLocal() {
	if p.isLocal {
		renew(&p.state)
		p.isLocal = false
	}
}

// Attach explicitly attaches p to net, creating the Attachment if it does
// not already exist via an implicit virt connection. Mirrors
// lsdn_phys_attach / find_or_create_attachement.
func (p *Phys) Attach(net *Net) *Attachment {
	a := p.findOrCreateAttachment(net)
	a.explicitlyAttached = true
	return a
}

// Detach undoes an explicit Attach. The Attachment object itself survives
// until every virt connected through it disconnects, exactly mirroring
// lsdn_phys_detach / phys_detach_by_pa / free_pa_if_possible.
func (p *Phys) Detach(net *Net) {
	for _, a := range p.attachedTo {
		if a.Net == net {
			a.explicitlyAttached = false
			a.freeIfPossible()
			return
		}
	}
}

func (p *Phys) findOrCreateAttachment(net *Net) *Attachment {
	for _, a := range p.attachedTo {
		if a.Net == net {
			return a
		}
	}
	a := &Attachment{
		Phys:  p,
		Net:   net,
		state: StateNew,
	}
	net.attached = append(net.attached, a)
	p.attachedTo = append(p.attachedTo, a)
	return a
}

// Attachment is the junction of a Net and a Phys: "only a single attachment
// may exist for a pair of a physical connection and network." Mirrors
// struct lsdn_phys_attachment.
type Attachment struct {
	Net  *Net
	Phys *Phys

	state State

	// explicitlyAttached records whether this Attachment was created by
	// Phys.Attach, as opposed to implicitly by Virt.ConnectTo just for
	// bookkeeping. Mirrors lsdn_phys_attachment.explicitely_attached.
	explicitlyAttached bool

	connectedVirts []*Virt
	remotePAs      []*remotePA
	paViews        []*remotePA

	// handle is driver-private per-attachment state, mirroring the union
	// inside struct lsdn_phys_attachment (e.g. the learning switch's
	// bridge_if/tunnel_if pair).
	handle interface{}
}

// Handle returns the driver-private state previously stored with
// SetHandle, or nil.
func (a *Attachment) Handle() interface{} { return a.handle }

// SetHandle stores driver-private per-attachment state. Called by nettype
// drivers from CreatePA.
func (a *Attachment) SetHandle(h interface{}) { a.handle = h }

// ExplicitlyAttached reports whether this Attachment was created via
// Phys.Attach rather than implicitly via Virt.ConnectTo.
func (a *Attachment) ExplicitlyAttached() bool { return a.explicitlyAttached }

func (a *Attachment) freeIfPossible() {
	// Mirrors free_pa_if_possible: if virts are still connected, wait for
	// the user to remove them, or for commit's decommit sweep to remove
	// them; validation will flag a virt connected through a PA that is not
	// explicitly attached (PHYS_NOT_ATTACHED).
	if len(a.connectedVirts) == 0 && !a.explicitlyAttached {
		if a.state == StateNew {
			a.removeFromParents()
			return
		}
		markDeleted(&a.state)
	}
}

func (a *Attachment) removeFromParents() {
	a.Net.attached = removeAttachment(a.Net.attached, a)
	a.Phys.attachedTo = removeAttachment(a.Phys.attachedTo, a)
}

func removeAttachment(list []*Attachment, target *Attachment) []*Attachment {
	out := list[:0]
	for _, a := range list {
		if a != target {
			out = append(out, a)
		}
	}
	return out
}

// remotePA is the view a local Attachment holds of a peer Attachment on the
// same Net, created during commit for every other attachment of the net,
// whether or not the peer's phys is local. Mirrors struct lsdn_remote_pa.
type remotePA struct {
	local  *Attachment
	remote *Attachment

	remoteVirts []*remoteVirt
}

// remoteVirt is the view a remotePA holds of one virt connected through its
// remote Attachment. Built under every switch discipline; AddRemoteVirt is
// only dispatched when the settings' Ops sets it. Mirrors struct
// lsdn_remote_virt.
type remoteVirt struct {
	pa   *remotePA
	virt *Virt
}

// Virt is a virtual interface (typically a VM or container NIC) belonging
// to exactly one Net and optionally connected through a Phys. Mirrors
// struct lsdn_virt.
type Virt struct {
	net   *Net
	name  string
	state State

	attrMAC net.HardwareAddr

	connectedThrough *Attachment
	connectedIf      string

	committedTo *Attachment
	committedIf string

	views []*remoteVirt

	// handle is driver-private per-virt state, mirroring the handle slot
	// on Attachment.
	handle interface{}
}

// NewVirt creates a new Virt belonging to net. Mirrors lsdn_virt_new.
func (n *Net) NewVirt() *Virt {
	v := &Virt{net: n, state: StateNew}
	n.virts = append(n.virts, v)
	return v
}

// Net returns the network this virt belongs to.
func (v *Virt) Net() *Net { return v.net }

// SetName assigns a unique name to v within its net. Mirrors
// lsdn_virt_set_name.
func (v *Virt) SetName(name string) error {
	if err := v.net.virtNames.set(name, v); err != nil {
		return err
	}
	if v.name != "" {
		v.net.virtNames.remove(v.name)
	}
	v.name = name
	return nil
}

// Name returns the virt's assigned name, or "" if unnamed.
func (v *Virt) Name() string { return v.name }

// VirtByName looks up a Virt by name within net. Mirrors lsdn_virt_by_name.
func (n *Net) VirtByName(name string) (*Virt, bool) {
	v, ok := n.virtNames.search(name)
	if !ok {
		return nil, false
	}
	return v.(*Virt), true
}

// SetMAC records v's MAC address, used by the validator's duplicate-MAC
// cross-check. Mirrors lsdn_virt_set_mac.
func (v *Virt) SetMAC(mac net.HardwareAddr) { v.attrMAC = mac }

// MAC returns v's recorded MAC address, or nil if unset.
func (v *Virt) MAC() net.HardwareAddr { return v.attrMAC }

// ConnectTo connects v through phys using the named local interface,
// creating phys's attachment to v's net if it does not already exist.
// Mirrors lsdn_virt_connect.
func (v *Virt) ConnectTo(phys *Phys, iface string) error {
	if iface == "" {
		return ErrNoIf
	}
	a := phys.findOrCreateAttachment(v.net)
	v.Disconnect()
	v.connectedIf = iface
	v.connectedThrough = a
	renew(&v.state)
	a.connectedVirts = append(a.connectedVirts, v)
	return nil
}

// Disconnect removes v's connection to whatever attachment it was
// connected through, if any. Mirrors lsdn_virt_disconnect.
func (v *Virt) Disconnect() {
	if v.connectedThrough == nil {
		return
	}
	a := v.connectedThrough
	a.connectedVirts = removeVirt(a.connectedVirts, v)
	v.connectedThrough = nil
	renew(&v.state)
}

func removeVirt(list []*Virt, target *Virt) []*Virt {
	out := list[:0]
	for _, v := range list {
		if v != target {
			out = append(out, v)
		}
	}
	return out
}

// ConnectedThrough returns the attachment v is currently connected
// through, or nil.
func (v *Virt) ConnectedThrough() *Attachment { return v.connectedThrough }

// ConnectedIf returns the local interface name v was last connected with.
func (v *Virt) ConnectedIf() string { return v.connectedIf }

// CommittedIf returns the interface name that was in effect as of the last
// successful commit.
func (v *Virt) CommittedIf() string { return v.committedIf }
