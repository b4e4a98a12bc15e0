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
	"strconv"

	"k8s.io/klog"

	"github.com/virtnet/lsdn/pkg/problem"
)

// Validate propagates pending RENEW state through the dependency graph and
// checks every NEW or RENEW object against the library's structural
// invariants, without committing anything. Mirrors lsdn_validate.
func (ctx *Context) Validate(cb problem.Callback) error {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return ctx.validateLocked(cb)
}

func (ctx *Context) validateLocked(cb problem.Callback) error {
	ctx.problems.Reset(cb)
	ctx.metrics.Validations.Inc()

	ctx.propagateStates()
	ctx.runValidation()

	if ctx.problems.Clean() {
		return nil
	}
	ctx.metrics.ProblemsFound.Add(float64(ctx.problems.Count()))
	return &ValidateError{Problems: ctx.collectedProblems}
}

// propagateStates pushes pending RENEW transitions down the dependency
// graph: phys -> its attachments, net -> its attachments, and a virt's
// attachment -> the virt itself. Order matches lsdn_validate's three
// propagation loops exactly.
func (ctx *Context) propagateStates() {
	for _, p := range ctx.physList {
		for _, a := range p.attachedTo {
			propagate(p.state, &a.state)
		}
	}
	for _, n := range ctx.networksList {
		for _, a := range n.attached {
			propagate(n.state, &a.state)
		}
	}
	for _, n := range ctx.networksList {
		for _, v := range n.virts {
			// Either connected_through or committed_to works here: if
			// either changed, the virt must be renewed anyway.
			if v.connectedThrough != nil {
				propagate(v.connectedThrough.state, &v.state)
			}
		}
	}
}

func (ctx *Context) runValidation() {
	ctx.collectedProblems = nil
	report := func(code problem.Code, refs ...problem.Ref) {
		ctx.problems.Report(code, refs...)
		ctx.collectedProblems = append(ctx.collectedProblems, problem.Problem{Code: code, Refs: refs})
		klog.V(1).Infof("lsdn: validation problem: %s", problem.Problem{Code: code, Refs: refs}.Format())
	}

	for _, net1 := range ctx.networksList {
		if willBeDeleted(net1.state) {
			continue
		}
		ctx.validateVirtsNet(net1, report)
		for _, net2 := range ctx.networksList {
			if net1 != net2 && !willBeDeleted(net2.state) {
				ctx.crossValidateNetworks(net1, net2, report)
			}
		}
	}

	for _, p := range ctx.physList {
		if willBeDeleted(p.state) {
			continue
		}
		for _, a := range p.attachedTo {
			if !a.explicitlyAttached {
				ctx.reportVirts(a, report)
				continue
			}
			if p.isLocal && p.attrIface == "" {
				report(problem.PhysNoAttr,
					problem.Ref{Type: problem.RefAttr, Label: "iface"},
					problem.Ref{Type: problem.RefPhys, Label: p.name, Subject: p},
					problem.Ref{Type: problem.RefNet, Label: a.Net.name, Subject: a.Net})
			}
			if shouldBeValidated(a.state) && a.Net.Settings.Ops.ValidatePA != nil {
				for _, msg := range a.Net.Settings.Ops.ValidatePA(paAdapter{a}) {
					report(problem.PhysNoAttr, problem.Ref{Type: problem.RefAttr, Label: msg})
				}
			}
			ctx.validateVirtsPA(a, report)
		}
		for _, other := range ctx.physList {
			if p == other || willBeDeleted(other.state) {
				continue
			}
			if p.attrIP != nil && other.attrIP != nil && p.attrIP.Equal(other.attrIP) {
				report(problem.PhysDupAttr,
					problem.Ref{Type: problem.RefAttr, Label: "ip"},
					problem.Ref{Type: problem.RefPhys, Label: p.name, Subject: p},
					problem.Ref{Type: problem.RefPhys, Label: other.name, Subject: other})
			}
		}
	}
}

func (ctx *Context) reportVirts(a *Attachment, report func(problem.Code, ...problem.Ref)) {
	for _, v := range a.connectedVirts {
		if !shouldBeValidated(v.state) {
			continue
		}
		report(problem.PhysNotAttached,
			problem.Ref{Type: problem.RefVirt, Label: v.name, Subject: v},
			problem.Ref{Type: problem.RefNet, Label: a.Net.name, Subject: a.Net},
			problem.Ref{Type: problem.RefPhys, Label: a.Phys.name, Subject: a.Phys})
	}
}

func (ctx *Context) validateVirtsPA(a *Attachment, report func(problem.Code, ...problem.Ref)) {
	for _, v := range a.connectedVirts {
		if !shouldBeValidated(v.state) {
			continue
		}
		if a.explicitlyAttached && a.Phys.isLocal {
			if v.connectedIf == "" {
				report(problem.VirtNoIf,
					problem.Ref{Type: problem.RefIf, Label: v.connectedIf},
					problem.Ref{Type: problem.RefVirt, Label: v.name, Subject: v})
			}
			if a.Net.Settings.Ops.ValidateVirt != nil {
				for _, msg := range a.Net.Settings.Ops.ValidateVirt(virtAdapter{v}) {
					report(problem.VirtNoIf, problem.Ref{Type: problem.RefIf, Label: msg})
				}
			}
		}
	}
}

func (ctx *Context) validateVirtsNet(n *Net, report func(problem.Code, ...problem.Ref)) {
	for _, v1 := range n.virts {
		if !shouldBeValidated(v1.state) || v1.attrMAC == nil {
			continue
		}
		for _, v2 := range n.virts {
			if v1 == v2 || !shouldBeValidated(v2.state) || v2.attrMAC == nil {
				continue
			}
			if v1.attrMAC.String() == v2.attrMAC.String() {
				report(problem.VirtDupAttr,
					problem.Ref{Type: problem.RefAttr, Label: "mac"},
					problem.Ref{Type: problem.RefVirt, Label: v1.name, Subject: v1},
					problem.Ref{Type: problem.RefVirt, Label: v2.name, Subject: v2},
					problem.Ref{Type: problem.RefNet, Label: n.name, Subject: n})
			}
		}
	}
}

func (ctx *Context) crossValidateNetworks(net1, net2 *Net, report func(problem.Code, ...problem.Ref)) {
	s1, s2 := net1.Settings, net2.Settings

	if s1.Nettype == s2.Nettype && net1.VnetID == net2.VnetID {
		report(problem.NetDupID,
			problem.Ref{Type: problem.RefNet, Label: net1.name, Subject: net1},
			problem.Ref{Type: problem.RefNet, Label: net2.name, Subject: net2},
			problem.Ref{Type: problem.RefNetID, Label: strconv.FormatUint(uint64(net1.VnetID), 10)})
	}

	checkNettypes := false
	for _, pa1 := range net1.attached {
		if !pa1.Phys.isLocal {
			continue
		}
		for _, pa2 := range net2.attached {
			if pa2.Phys.isLocal {
				checkNettypes = true
			}
		}
	}

	if checkNettypes && s1.Nettype == NetVXLAN && s2.Nettype == NetVXLAN {
		if s1.Switch == SwitchStaticE2E && s2.Switch != SwitchStaticE2E && s1.VXLANPort == s2.VXLANPort {
			report(problem.NetBadNettype,
				problem.Ref{Type: problem.RefNet, Label: net1.name, Subject: net1},
				problem.Ref{Type: problem.RefNet, Label: net2.name, Subject: net2})
		}
	}
}
