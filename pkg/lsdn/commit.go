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
	"time"

	"k8s.io/klog"

	"github.com/virtnet/lsdn/pkg/problem"
)

// Commit orchestrates one reconciliation pass: startup hooks, validate,
// decommit, recommit, ack, exactly mirroring lsdn_commit's phase order
// (§4.7, §5). Returns a *ValidateError if validation failed (the data plane
// is untouched in that case) or a *CommitError if problems were reported
// during the decommit/recommit passes themselves.
func (ctx *Context) Commit(cb problem.Callback) error {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return ctx.commitLocked(cb)
}

func (ctx *Context) commitLocked(cb problem.Callback) error {
	start := time.Now()
	defer func() {
		ctx.metrics.CommitDuration.Observe(time.Since(start).Seconds())
	}()
	ctx.metrics.Commits.Inc()

	ctx.triggerStartupHooks()

	if err := ctx.validateLocked(cb); err != nil {
		ctx.metrics.CommitFailures.Inc()
		return err
	}

	ctx.decommitPass()
	ctx.recommitPass()
	ctx.ackPass()

	if !ctx.problems.Clean() {
		ctx.metrics.CommitFailures.Inc()
		return &CommitError{Problems: ctx.collectedProblems}
	}
	return nil
}

// triggerStartupHooks invokes each local phys's net's registered startup
// hook once per attachment, before validation runs. Mirrors
// trigger_startup_hooks; the C comment "only do for new PAs" was never
// implemented there either, so every local attachment's hook fires on
// every commit and the hook itself is expected to be idempotent.
func (ctx *Context) triggerStartupHooks() {
	for _, p := range ctx.physList {
		if !p.isLocal {
			continue
		}
		for _, a := range p.attachedTo {
			hooks := a.Net.Settings.UserHooks
			if hooks != nil && hooks.Startup != nil {
				hooks.Startup(a.Net, p)
			}
		}
	}
}

// decommitPass walks nets -> virts -> attachments -> nets, then physes, then
// settings, tearing down anything in RENEW or DELETE state. Order matches
// lsdn_commit's decommit loop exactly: a net's virts and attachments are
// processed before the net itself is allowed to go away, since a net
// can't be freed while they still exist.
func (ctx *Context) decommitPass() {
	for _, n := range append([]*Net(nil), ctx.networksList...) {
		for _, v := range append([]*Virt(nil), n.virts...) {
			if ackUncommit(&v.state) {
				ctx.decommitVirt(v)
				if v.state == StateDelete {
					v.doFree()
				}
			}
		}
		for _, a := range append([]*Attachment(nil), n.attached...) {
			if ackUncommit(&a.state) {
				ctx.decommitPA(a)
				if a.state == StateDelete {
					a.removeFromParents()
				}
			}
		}
		if ackUncommit(&n.state) && n.state == StateDelete {
			n.doFree()
		}
	}

	for _, p := range append([]*Phys(nil), ctx.physList...) {
		if ackUncommit(&p.state) && p.state == StateDelete {
			p.doFree()
		}
	}

	for _, s := range append([]*Settings(nil), ctx.settingsList...) {
		if ackUncommit(&s.state) && s.state == StateDelete {
			s.doFree()
		}
	}
}

// decommitVirt tears down a virt's committed data-plane state: its own
// committed_to anchor first, then every remote_virt view other attachments
// hold of it. Mirrors decommit_virt.
func (ctx *Context) decommitVirt(v *Virt) {
	ops := v.net.Settings.Ops
	if pa := v.committedTo; pa != nil {
		if ops.RemoveVirt != nil {
			klog.V(2).Infof("lsdn: remove_virt(net=%s phys=%s virt=%s)", pa.Net.name, pa.Phys.name, v.name)
			ctx.metrics.RecordDriverCall("remove_virt")
			ops.RemoveVirt(virtAdapter{v})
		}
		v.committedTo = nil
		v.committedIf = ""
	}

	for _, rv := range v.views {
		if ops.RemoveRemoteVirt != nil {
			klog.V(2).Infof("lsdn: remove_remote_virt(virt=%s)", v.name)
			ctx.metrics.RecordDriverCall("remove_remote_virt")
			ops.RemoveRemoteVirt(remoteVirtAdapter{rv})
		}
		rv.pa.remoteVirts = removeRemoteVirt(rv.pa.remoteVirts, rv)
	}
	v.views = nil
}

// decommitPA tears down an attachment's remote views (both the ones it
// materialized toward peers and the ones peers materialized of it), then,
// only if its phys was committed as local, invokes destroy_pa. Mirrors
// decommit_pa.
func (ctx *Context) decommitPA(a *Attachment) {
	ops := a.Net.Settings.Ops

	for _, rpa := range append([]*remotePA(nil), a.paViews...) {
		ctx.decommitRemotePA(rpa)
	}
	for _, rpa := range append([]*remotePA(nil), a.remotePAs...) {
		ctx.decommitRemotePA(rpa)
	}

	if a.Phys.commitedAsLocal {
		if ops.DestroyPA != nil {
			klog.V(2).Infof("lsdn: destroy_pa(net=%s phys=%s)", a.Net.name, a.Phys.name)
			ctx.metrics.RecordDriverCall("destroy_pa")
			ops.DestroyPA(paAdapter{a})
		}
	}
}

func (ctx *Context) decommitRemotePA(rpa *remotePA) {
	local, remote := rpa.local, rpa.remote
	ops := local.Net.Settings.Ops
	if ops.RemoveRemotePA != nil {
		klog.V(2).Infof("lsdn: remove_remote_pa(net=%s local=%s remote=%s)", local.Net.name, local.Phys.name, remote.Phys.name)
		ctx.metrics.RecordDriverCall("remove_remote_pa")
		ops.RemoveRemotePA(remotePAAdapter{rpa})
	}
	remote.paViews = removeRemotePA(remote.paViews, rpa)
	local.remotePAs = removeRemotePA(local.remotePAs, rpa)
}

func removeRemotePA(list []*remotePA, target *remotePA) []*remotePA {
	out := list[:0]
	for _, rpa := range list {
		if rpa != target {
			out = append(out, rpa)
		}
	}
	return out
}

func removeRemoteVirt(list []*remoteVirt, target *remoteVirt) []*remoteVirt {
	out := list[:0]
	for _, rv := range list {
		if rv != target {
			out = append(out, rv)
		}
	}
	return out
}

// recommitPass creates local physical attachments for every local phys and
// populates them with virts, remote PAs and remote virts. Mirrors the
// "(Re)commit phase" loop in lsdn_commit: only local physes are walked,
// since a PA never needs local data-plane artifacts on a host it isn't
// attached to locally.
func (ctx *Context) recommitPass() {
	for _, p := range ctx.physList {
		if !p.isLocal {
			continue
		}
		p.commitedAsLocal = p.isLocal
		for _, a := range p.attachedTo {
			ctx.commitPA(a)
		}
	}
}

// commitPA mirrors commit_pa: create the PA if new, add every newly
// connected virt, materialize a remote_pa view toward every other
// attachment on the same net that is itself new, and materialize
// remote_virt views for every new virt connected through the peers this
// attachment holds views of.
func (ctx *Context) commitPA(a *Attachment) {
	ops := a.Net.Settings.Ops

	if a.state == StateNew {
		if ops.CreatePA != nil {
			klog.V(2).Infof("lsdn: create_pa(net=%s phys=%s)", a.Net.name, a.Phys.name)
			ctx.metrics.RecordDriverCall("create_pa")
			ops.CreatePA(paAdapter{a})
		}
	}

	for _, v := range a.connectedVirts {
		if v.state != StateNew {
			continue
		}
		v.committedTo = a
		v.committedIf = v.connectedIf
		if ops.AddVirt != nil {
			klog.V(2).Infof("lsdn: add_virt(net=%s phys=%s virt=%s)", a.Net.name, a.Phys.name, v.name)
			ctx.metrics.RecordDriverCall("add_virt")
			ops.AddVirt(virtAdapter{v})
		}
	}

	for _, remote := range a.Net.attached {
		if remote == a || remote.state != StateNew {
			continue
		}
		rpa := &remotePA{local: a, remote: remote}
		remote.paViews = append(remote.paViews, rpa)
		a.remotePAs = append(a.remotePAs, rpa)
		if ops.AddRemotePA != nil {
			klog.V(2).Infof("lsdn: add_remote_pa(net=%s local=%s remote=%s)", a.Net.name, a.Phys.name, remote.Phys.name)
			ctx.metrics.RecordDriverCall("add_remote_pa")
			ops.AddRemotePA(remotePAAdapter{rpa})
		}
	}

	for _, remote := range a.remotePAs {
		for _, v := range remote.remote.connectedVirts {
			if v.state != StateNew {
				continue
			}
			rv := &remoteVirt{pa: remote, virt: v}
			v.views = append(v.views, rv)
			remote.remoteVirts = append(remote.remoteVirts, rv)
			if ops.AddRemoteVirt != nil {
				klog.V(2).Infof("lsdn: add_remote_virt(net=%s local=%s remote=%s virt=%s)", a.Net.name, a.Phys.name, remote.remote.Phys.name, v.name)
				ctx.metrics.RecordDriverCall("add_remote_virt")
				ops.AddRemoteVirt(remoteVirtAdapter{rv})
			}
		}
	}
}

// ackPass lifts every surviving NEW/RENEW object to OK. Mirrors the "Ack
// phase" loop in lsdn_commit.
func (ctx *Context) ackPass() {
	for _, s := range ctx.settingsList {
		ackState(&s.state)
	}
	for _, p := range ctx.physList {
		ackState(&p.state)
	}
	for _, n := range ctx.networksList {
		ackState(&n.state)
		for _, a := range n.attached {
			ackState(&a.state)
		}
		for _, v := range n.virts {
			ackState(&v.state)
		}
	}
}

// Cleanup tears the context down to empty, invoking every driver's decommit
// hooks as it goes, and reports problems through cb rather than aborting.
// Mirrors lsdn_context_cleanup: free every phys and settings object (which
// cascades to nets, attachments and virts exactly like the public Free
// methods do), then run one last commit to actually drive the decommit
// sweep over everything just marked for deletion.
func (ctx *Context) Cleanup(cb problem.Callback) error {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()

	for _, p := range append([]*Phys(nil), ctx.physList...) {
		p.Free()
	}
	for _, s := range append([]*Settings(nil), ctx.settingsList...) {
		s.Free()
	}
	return ctx.commitLocked(cb)
}

// Close tears the context down immediately without attempting to report
// validation problems cleanly: any problem found while decommitting is
// fatal, matching lsdn_context_free's abort_handler. Decommissioning is set
// first so drivers observing Context.Decommissioning can skip work that
// would otherwise be wasted (SPEC_FULL.md §4's disable_decommit supplement).
func (ctx *Context) Close() {
	ctx.mu.Lock()
	ctx.decommissioning = true
	ctx.disableDecommit = true
	ctx.mu.Unlock()

	err := ctx.Cleanup(problem.StderrCallback)
	if err != nil {
		klog.Errorf("lsdn: encountered an error while freeing context %s: %v", ctx.name, err)
		panic(err)
	}
}
