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

// This file implements the free/delete side of the object lifecycle: the
// free_helper macro from lsdn.c (an object in NEW state is removed from
// memory immediately, since it was never committed; any other state is only
// marked DELETE, and the next commit's decommit pass actually tears it
// down), plus the cascades lsdn_settings_free/lsdn_net_free/lsdn_phys_free/
// lsdn_virt_free perform over their owned children before applying it.

// Free marks s for removal, first freeing every Net still using it. Mirrors
// lsdn_settings_free.
func (s *Settings) Free() {
	for _, n := range append([]*Net(nil), s.users...) {
		n.Free()
	}
	freeHelper(&s.state, s.doFree)
}

func (s *Settings) doFree() {
	s.ctx.settingsList = removeSettings(s.ctx.settingsList, s)
	if s.name != "" {
		s.ctx.settingsNames.remove(s.name)
	}
}

func removeSettings(list []*Settings, target *Settings) []*Settings {
	out := list[:0]
	for _, s := range list {
		if s != target {
			out = append(out, s)
		}
	}
	return out
}

// Free marks n for removal, first freeing every Virt it owns and detaching
// every Attachment on it. Mirrors lsdn_net_free.
func (n *Net) Free() {
	for _, v := range append([]*Virt(nil), n.virts...) {
		v.Free()
	}
	for _, a := range append([]*Attachment(nil), n.attached...) {
		a.Phys.Detach(n)
	}
	freeHelper(&n.state, n.doFree)
}

func (n *Net) doFree() {
	n.s().removeUser(n)
	n.ctx.networksList = removeNet(n.ctx.networksList, n)
	if n.name != "" {
		n.ctx.netNames.remove(n.name)
	}
}

func (n *Net) s() *Settings { return n.Settings }

func (s *Settings) removeUser(n *Net) {
	out := s.users[:0]
	for _, u := range s.users {
		if u != n {
			out = append(out, u)
		}
	}
	s.users = out
}

func removeNet(list []*Net, target *Net) []*Net {
	out := list[:0]
	for _, n := range list {
		if n != target {
			out = append(out, n)
		}
	}
	return out
}

// Free marks p for removal. Every virt connected through one of p's
// attachments is disconnected first, then every attachment is detached, so
// the usual Attachment/Virt invariants hold throughout. Mirrors
// lsdn_phys_free.
func (p *Phys) Free() {
	for _, a := range append([]*Attachment(nil), p.attachedTo...) {
		for _, v := range append([]*Virt(nil), a.connectedVirts...) {
			v.Disconnect()
		}
		a.explicitlyAttached = false
		a.freeIfPossible()
	}
	freeHelper(&p.state, p.doFree)
}

func (p *Phys) doFree() {
	p.ctx.physList = removePhys(p.ctx.physList, p)
	if p.name != "" {
		p.ctx.physNames.remove(p.name)
	}
}

func removePhys(list []*Phys, target *Phys) []*Phys {
	out := list[:0]
	for _, p := range list {
		if p != target {
			out = append(out, p)
		}
	}
	return out
}

// Free marks v for removal, disconnecting it first so its attachment can be
// garbage-collected if it was only implicitly attached. Mirrors
// lsdn_virt_free.
func (v *Virt) Free() {
	if v.connectedThrough != nil {
		a := v.connectedThrough
		a.connectedVirts = removeVirt(a.connectedVirts, v)
		v.connectedThrough = nil
		a.freeIfPossible()
	}
	freeHelper(&v.state, v.doFree)
}

func (v *Virt) doFree() {
	v.net.virts = removeVirt(v.net.virts, v)
	if v.name != "" {
		v.net.virtNames.remove(v.name)
	}
}

// freeHelper is the Go shape of lsdn.c's free_helper macro: a NEW object was
// never committed, so it is unlinked immediately via doFree; anything else
// is left in place and marked DELETE for the next commit's decommit pass.
func freeHelper(state *State, doFree func()) {
	if *state == StateNew {
		doFree()
		return
	}
	markDeleted(state)
}
