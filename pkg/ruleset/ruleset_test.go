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

package ruleset

import (
	"errors"
	"testing"
)

func macKey(mac byte) []MatchKey {
	return []MatchKey{{Target: TargetDstMAC, Value: []byte{0, 0, 0, 0, 0, mac}, Mask: []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}}}
}

func TestPrioSlotAddAssignsDistinctHandles(t *testing.T) {
	rs := New("eth0", 0, 0, 0, 16)
	slot, err := rs.DefinePrio(0)
	if err != nil {
		t.Fatalf("DefinePrio: %v", err)
	}

	r1 := &Rule{Keys: macKey(1)}
	r2 := &Rule{Keys: macKey(2)}
	if err := slot.Add(r1); err != nil {
		t.Fatalf("Add(r1): %v", err)
	}
	if err := slot.Add(r2); err != nil {
		t.Fatalf("Add(r2): %v", err)
	}
	if r1.Handle() == r2.Handle() {
		t.Errorf("expected distinct handles, got %d and %d", r1.Handle(), r2.Handle())
	}
	if got := slot.RuleCount(); got != 2 {
		t.Errorf("RuleCount() = %d, want 2", got)
	}
}

func TestPrioSlotRejectsDuplicateKey(t *testing.T) {
	rs := New("eth0", 0, 0, 0, 16)
	slot, _ := rs.DefinePrio(0)

	if err := slot.Add(&Rule{Keys: macKey(1)}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := slot.Add(&Rule{Keys: macKey(1)}); !errors.Is(err, ErrDuplicate) {
		t.Errorf("Add(duplicate) = %v, want ErrDuplicate", err)
	}
}

func TestPrioSlotAllowsSameKeyDifferentSubprio(t *testing.T) {
	rs := New("eth0", 0, 0, 0, 16)
	slot, _ := rs.DefinePrio(0)

	if err := slot.Add(&Rule{Keys: macKey(1), Subprio: 0}); err != nil {
		t.Fatalf("Add subprio 0: %v", err)
	}
	if err := slot.Add(&Rule{Keys: macKey(1), Subprio: 1}); err != nil {
		t.Errorf("Add subprio 1: %v, want nil", err)
	}
}

func TestPrioSlotRejectsShapeMismatch(t *testing.T) {
	rs := New("eth0", 0, 0, 0, 16)
	slot, _ := rs.DefinePrio(0)

	if err := slot.Add(&Rule{Keys: macKey(1)}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	mismatched := &Rule{Keys: []MatchKey{{Target: TargetSrcIP, Value: []byte{10, 0, 0, 1}}}}
	if err := slot.Add(mismatched); !errors.Is(err, ErrTargetMismatch) {
		t.Errorf("Add(mismatched shape) = %v, want ErrTargetMismatch", err)
	}
}

func TestPrioSlotRemoveFreesHandleForReuse(t *testing.T) {
	rs := New("eth0", 0, 0, 0, 16)
	slot, _ := rs.DefinePrio(0)

	r1 := &Rule{Keys: macKey(1)}
	if err := slot.Add(r1); err != nil {
		t.Fatalf("Add: %v", err)
	}
	h1 := r1.Handle()
	slot.Remove(r1)
	if got := slot.RuleCount(); got != 0 {
		t.Errorf("RuleCount() after remove = %d, want 0", got)
	}

	r2 := &Rule{Keys: macKey(1)}
	if err := slot.Add(r2); err != nil {
		t.Fatalf("Add after remove: %v", err)
	}
	if r2.Handle() != h1 {
		t.Errorf("expected freed handle %d to be reused, got %d", h1, r2.Handle())
	}
}

func TestRulesetSlotsAreOrderedByPriority(t *testing.T) {
	rs := New("eth0", 0, 0, 0, 16)
	rs.DefinePrio(5)
	rs.DefinePrio(1)
	rs.DefinePrio(3)

	slots := rs.Slots()
	if len(slots) != 3 {
		t.Fatalf("Slots() returned %d entries, want 3", len(slots))
	}
	for i := 1; i < len(slots); i++ {
		if slots[i-1].Prio >= slots[i].Prio {
			t.Errorf("Slots() not ascending: %v", slots)
		}
	}
}

func TestDefinePrioIsIdempotent(t *testing.T) {
	rs := New("eth0", 0, 0, 0, 16)
	s1, _ := rs.DefinePrio(2)
	s2, _ := rs.DefinePrio(2)
	if s1 != s2 {
		t.Error("DefinePrio(same prio) returned two different slots")
	}
}

func TestDefinePrioRejectsOutOfRange(t *testing.T) {
	rs := New("eth0", 0, 0, 10, 4)
	if _, err := rs.DefinePrio(20); err == nil {
		t.Error("DefinePrio(out of range) = nil error, want error")
	}
}

func TestRemovePrioDropsSlot(t *testing.T) {
	rs := New("eth0", 0, 0, 0, 16)
	slot, _ := rs.DefinePrio(4)
	rs.RemovePrio(slot)
	if _, ok := rs.GetPrio(4); ok {
		t.Error("GetPrio found a removed slot")
	}
}

func TestVirtRuleAddAndRemove(t *testing.T) {
	rs := New("eth0", 0, 0, 0, 16)
	slot, _ := rs.DefinePrio(0)

	vr, err := NewVirtRule(slot, macKey(9), "virt-a")
	if err != nil {
		t.Fatalf("NewVirtRule: %v", err)
	}
	if got := slot.RuleCount(); got != 1 {
		t.Fatalf("RuleCount() = %d, want 1", got)
	}
	vr.Remove()
	if got := slot.RuleCount(); got != 0 {
		t.Errorf("RuleCount() after Remove = %d, want 0", got)
	}
}
