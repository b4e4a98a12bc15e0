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

// Package problem implements the structured validation diagnostics used by
// the lsdn model: a fixed set of problem codes, each with a printf-style
// format template, and typed references to the objects involved. It is
// grounded on netmodel/errors.c (lsdn_problem_report / lsdn_problem_format)
// from the original lsdn C library and on the field.ErrorList style of
// k8s.io/apimachinery/pkg/util/validation/field used by the teacher repo's
// registry strategies.
package problem

import (
	"bytes"
	"fmt"
	"os"

	"github.com/golang/glog"
	"k8s.io/apimachinery/pkg/util/validation/field"
)

// RefType classifies a Ref. It mirrors the lsdn_problem_ref_type enum
// (LSDNS_IF, LSDNS_NET, LSDNS_VIRT, LSDNS_PHYS, LSDNS_ATTR, LSDNS_NETID).
type RefType int

const (
	RefIf RefType = iota
	RefNet
	RefVirt
	RefPhys
	RefAttr
	RefNetID
)

func (t RefType) String() string {
	switch t {
	case RefIf:
		return "if"
	case RefNet:
		return "net"
	case RefVirt:
		return "virt"
	case RefPhys:
		return "phys"
	case RefAttr:
		return "attr"
	case RefNetID:
		return "netid"
	default:
		return "unknown"
	}
}

// Ref is a typed reference to the object a problem concerns. Root package
// types never need to be imported here: callers pass a human-readable Label
// (the object's name, or "" if unnamed) and keep the live object in Subject
// for programmatic inspection by tests and callers.
type Ref struct {
	Type    RefType
	Label   string
	Subject interface{}
}

func (r Ref) String() string {
	if r.Label != "" {
		return r.Label
	}
	return fmt.Sprintf("0x%p", r.Subject)
}

// FieldPath renders r as a *field.Path, the way the teacher's registry
// strategies build field paths for apimachinery's field.ErrorList, so a
// caller that wants structured (not just printf-style) diagnostics has a
// navigable path to the object a problem concerns.
func (r Ref) FieldPath() *field.Path {
	return field.NewPath(r.Type.String(), r.Label)
}

// Code enumerates the validation problems the model can report. Names and
// order mirror the LSDNP_* constants implied by lsdn.c's calls to
// lsdn_problem_report.
type Code int

const (
	// PhysNotAttached: virt connected through a phys whose attachment to
	// the virt's net is implicit only (never lsdn_phys_attach-ed).
	PhysNotAttached Code = iota
	// VirtNoIf: a local virt's connected interface name does not resolve
	// to an existing Linux network device.
	VirtNoIf
	// VirtDupAttr: two virts in the same net share an identical MAC.
	VirtDupAttr
	// NetDupID: two nets of the same nettype share a vnet_id.
	NetDupID
	// NetBadNettype: a STATIC_E2E VXLAN net and a non-static VXLAN net
	// share a port, with at least one local attachment on each.
	NetBadNettype
	// PhysNoAttr: a local, explicitly-attached phys is missing "iface".
	PhysNoAttr
	// PhysDupAttr: two physes share an IP address.
	PhysDupAttr
)

var formats = map[Code]string{
	PhysNotAttached: "virt %o in net %o is connected through phys %o, but the phys was never explicitly attached to that net",
	VirtNoIf:        "interface %o of virt %o does not resolve to a local network device",
	VirtDupAttr:     "duplicate %o for virts %o and %o in net %o",
	NetDupID:        "nets %o and %o share vnet_id %o",
	NetBadNettype:   "nets %o and %o share a vxlan port but have incompatible switch disciplines",
	PhysNoAttr:      "attribute %o is missing on local phys %o, required for its attachment to net %o",
	PhysDupAttr:     "duplicate %o for physes %o and %o",
}

// Problem is one validation finding: a code plus the ordered list of object
// references the format string interpolates with %o placeholders.
type Problem struct {
	Code Code
	Refs []Ref
}

// Format renders the problem the way lsdn_problem_format does: walk the
// template for Code, substituting each %o with the next Ref in order.
func (p Problem) Format() string {
	format, ok := formats[p.Code]
	if !ok {
		return fmt.Sprintf("unknown problem code %d", p.Code)
	}
	var buf bytes.Buffer
	i := 0
	for j := 0; j < len(format); j++ {
		if format[j] == '%' && j+1 < len(format) && format[j+1] == 'o' {
			if i < len(p.Refs) {
				buf.WriteString(p.Refs[i].String())
				i++
			}
			j++
			continue
		}
		buf.WriteByte(format[j])
	}
	return buf.String()
}

// ErrorList renders p as an apimachinery field.ErrorList, one field.Invalid
// entry per Ref, for callers that feed validation output into a
// field.ErrorList-shaped aggregator instead of printing Format() directly.
func (p Problem) ErrorList() field.ErrorList {
	msg := p.Format()
	var list field.ErrorList
	for _, r := range p.Refs {
		list = append(list, field.Invalid(r.FieldPath(), r.String(), msg))
	}
	return list
}

// Callback receives every problem as it is reported, the way lsdn_problem_cb
// does in the C library.
type Callback func(Problem)

// Reporter accumulates problems during a single validate/commit pass. It is
// not safe for concurrent use, matching the single-threaded, synchronous
// scheduling model of the library (spec §5).
type Reporter struct {
	cb    Callback
	count int
}

// Reset installs cb (which may be nil) as the callback for the next pass and
// clears the problem count. Mirrors ctx->problem_cb/problem_cb_user/problem_count
// being (re)initialized at the top of lsdn_validate.
func (r *Reporter) Reset(cb Callback) {
	r.cb = cb
	r.count = 0
}

// Report records one problem and, if a callback is installed, delivers it.
func (r *Reporter) Report(code Code, refs ...Ref) {
	r.count++
	p := Problem{Code: code, Refs: refs}
	glog.V(2).Info("lsdn: validation problem: ", p.Format())
	if r.cb != nil {
		r.cb(p)
	}
}

// Count returns the number of problems reported since the last Reset.
func (r *Reporter) Count() int {
	return r.count
}

// Clean reports whether no problems were recorded since the last Reset.
func (r *Reporter) Clean() bool {
	return r.count == 0
}

// If mirrors a common C library idiom: report iff and only if an already
// computed condition is true, avoiding callers repeating the "if bad { report }"
// shape everywhere.
func (r *Reporter) If(cond bool, code Code, refs ...Ref) {
	if cond {
		r.Report(code, refs...)
	}
}

// StderrCallback is the default handler used by Context.Close, mirroring
// lsdn_problem_stderr_handler: print and let the caller decide whether to
// abort.
func StderrCallback(p Problem) {
	fmt.Fprintln(os.Stderr, "lsdn: "+p.Format())
}
