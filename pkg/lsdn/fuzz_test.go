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
	"fmt"
	"testing"

	fuzz "github.com/google/gofuzz"

	"github.com/virtnet/lsdn/pkg/nettype"
)

// op is one mutation a fuzzed trace can apply to the two-phys, three-virt
// fixture built by runFuzzedTrace. Keeping the alphabet small and closed
// lets gofuzz explore sequencing rather than wasting entropy on payloads.
type op uint8

const (
	opAttach op = iota
	opDetach
	opConnect
	opDisconnect
	opRename
	opCommit
	opCount
)

// runFuzzedTrace replays ops against a fixed topology (two physes, three
// virts, one direct net) and returns the context plus the live handles so
// the caller can assert invariants on whatever state the trace reached.
func runFuzzedTrace(ops []op) (ctx *Context, phys [2]*Phys, virts [3]*Virt) {
	ctx = NewContext("fuzz")
	settings := ctx.NewSettings(NetDirect, SwitchLearning, nettype.Ops{})
	n := settings.NewNet(1)

	for i := range phys {
		phys[i] = ctx.NewPhys()
		phys[i].SetIface(fmt.Sprintf("eth%d", i))
		phys[i].ClaimLocal()
	}
	for i := range virts {
		virts[i] = n.NewVirt()
	}

	for i, o := range ops {
		p := phys[i%len(phys)]
		v := virts[i%len(virts)]
		switch o % opCount {
		case opAttach:
			p.Attach(n)
		case opDetach:
			p.Detach(n)
		case opConnect:
			v.ConnectTo(p, fmt.Sprintf("tap%d", i))
		case opDisconnect:
			v.Disconnect()
		case opRename:
			v.SetName(fmt.Sprintf("v%d", i))
		case opCommit:
			ctx.Commit(nil)
		}
	}
	return ctx, phys, virts
}

// TestCommitLeavesLiveObjectsOK is invariant 1 from the commit engine
// scenarios: after any sequence of mutations followed by a successful
// commit, every live (non-deleted) object is in state OK.
func TestCommitLeavesLiveObjectsOK(t *testing.T) {
	f := fuzz.New().NilChance(0).NumElements(0, 40)
	for i := 0; i < 200; i++ {
		var raw []byte
		f.Fuzz(&raw)
		ops := make([]op, len(raw))
		for j, b := range raw {
			ops[j] = op(b)
		}

		ctx, phys, virts := runFuzzedTrace(ops)
		if err := ctx.Commit(nil); err != nil {
			// a dangling validation problem (e.g. an unattached connect) is
			// expected from some random traces; invariant 1 only binds
			// after a commit that actually succeeds.
			continue
		}
		for _, p := range phys {
			if p.state != StateOK {
				t.Fatalf("trace %v: phys %s left in state %s after successful commit", ops, p.name, p.state)
			}
			for _, a := range p.attachedTo {
				if a.state != StateOK {
					t.Fatalf("trace %v: attachment on %s left in state %s after successful commit", ops, p.name, a.state)
				}
			}
		}
		for _, v := range virts {
			if v.state != StateOK {
				t.Fatalf("trace %v: virt %s left in state %s after successful commit", ops, v.name, v.state)
			}
		}
	}
}

// TestConnectedVirtsAppearExactlyOnce is invariant 2: every virt connected
// through an attachment appears exactly once in that attachment's
// connected-virt bookkeeping.
func TestConnectedVirtsAppearExactlyOnce(t *testing.T) {
	f := fuzz.New().NilChance(0).NumElements(0, 40)
	for i := 0; i < 200; i++ {
		var raw []byte
		f.Fuzz(&raw)
		ops := make([]op, len(raw))
		for j, b := range raw {
			ops[j] = op(b)
		}

		_, phys, _ := runFuzzedTrace(ops)
		for _, p := range phys {
			for _, a := range p.attachedTo {
				seen := make(map[*Virt]int)
				for _, v := range a.connectedVirts {
					seen[v]++
					if v.connectedThrough != a {
						t.Fatalf("trace %v: virt %s listed under an attachment it does not point back to", ops, v.name)
					}
				}
				for v, count := range seen {
					if count != 1 {
						t.Fatalf("trace %v: virt %s appears %d times in one attachment's connected-virt list", ops, v.name, count)
					}
				}
			}
		}
	}
}

// TestCommitIsIdempotent is invariant 6: a commit immediately following
// another successful commit performs no driver calls and returns no error.
func TestCommitIsIdempotent(t *testing.T) {
	f := fuzz.New().NilChance(0).NumElements(0, 40)
	for i := 0; i < 200; i++ {
		var raw []byte
		f.Fuzz(&raw)
		ops := make([]op, len(raw))
		for j, b := range raw {
			ops[j] = op(b)
		}

		ctx, _, _ := runFuzzedTrace(ops)
		if err := ctx.Commit(nil); err != nil {
			continue
		}

		var trace []string
		for _, s := range ctx.settingsList {
			s.Ops = nettype.Ops{
				CreatePA:   func(nettype.PA) { trace = append(trace, "create_pa") },
				AddVirt:    func(nettype.Virt) { trace = append(trace, "add_virt") },
				DestroyPA:  func(nettype.PA) { trace = append(trace, "destroy_pa") },
				RemoveVirt: func(nettype.Virt) { trace = append(trace, "remove_virt") },
			}
		}
		if err := ctx.Commit(nil); err != nil {
			t.Fatalf("trace %v: second commit returned %v, want nil", ops, err)
		}
		if len(trace) != 0 {
			t.Fatalf("trace %v: idempotent commit dispatched %v, want none", ops, trace)
		}
	}
}

// TestNoTwoNamesCollideWithinAContext is invariant 3: no two settings, nets
// or physes share a name within the same context, enforced at SetName time
// rather than left for the validator to catch.
func TestNoTwoNamesCollideWithinAContext(t *testing.T) {
	ctx := NewContext("fuzz-names")
	p1 := ctx.NewPhys()
	if err := p1.SetName("dup"); err != nil {
		t.Fatalf("SetName on a fresh phys: %v", err)
	}
	p2 := ctx.NewPhys()
	if err := p2.SetName("dup"); err == nil {
		t.Fatal("SetName with a name already taken in this context should fail")
	}
}

// TestDetachWithoutVirtsFreesTheAttachment is invariant 4: detaching a phys
// from a net whose attachment has no connected virts frees the attachment
// immediately rather than waiting for a commit.
func TestDetachWithoutVirtsFreesTheAttachment(t *testing.T) {
	ctx := NewContext("fuzz-detach")
	settings := ctx.NewSettings(NetDirect, SwitchLearning, nettype.Ops{})
	n := settings.NewNet(1)
	p := ctx.NewPhys()
	p.Attach(n)

	p.Detach(n)
	if len(p.attachedTo) != 0 {
		t.Fatalf("attachment with no connected virts survived Detach: %v", p.attachedTo)
	}
}

// TestDetachWithVirtsKeepsAttachmentUntilVirtsLeave is invariant 5:
// detaching a phys whose attachment still has connected virts leaves the
// attachment in place, no longer explicitly attached, until those virts
// disconnect.
func TestDetachWithVirtsKeepsAttachmentUntilVirtsLeave(t *testing.T) {
	ctx := NewContext("fuzz-detach-busy")
	settings := ctx.NewSettings(NetDirect, SwitchLearning, nettype.Ops{})
	n := settings.NewNet(1)
	p := ctx.NewPhys()
	p.Attach(n)
	v := n.NewVirt()
	if err := v.ConnectTo(p, "tap0"); err != nil {
		t.Fatalf("ConnectTo: %v", err)
	}

	p.Detach(n)
	if len(p.attachedTo) != 1 {
		t.Fatalf("attachment with a connected virt was dropped by Detach: %v", p.attachedTo)
	}
	if p.attachedTo[0].ExplicitlyAttached() {
		t.Fatal("attachment should no longer be explicitly attached after Detach")
	}

	v.Disconnect()
	p.attachedTo[0].freeIfPossible()
	if len(p.attachedTo) != 0 {
		t.Fatalf("attachment should free itself once its last virt disconnects, got %v", p.attachedTo)
	}
}
