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

package broadcast

import "testing"

func TestAddFillsFirstFilterBeforeAllocatingANewOne(t *testing.T) {
	b := New("eth0", 0)

	var actions []*Action
	for i := 0; i < MaxActionsPerFilter; i++ {
		actions = append(actions, b.Add(ActionDesc{}))
	}
	if got := b.FilterCount(); got != 1 {
		t.Fatalf("FilterCount() = %d, want 1 after filling one filter", got)
	}

	b.Add(ActionDesc{})
	if got := b.FilterCount(); got != 2 {
		t.Fatalf("FilterCount() = %d, want 2 once the first filter is full", got)
	}
}

func TestAddInvokesFnWithFilterPrioAndOrder(t *testing.T) {
	b := New("eth0", 0)

	var gotPrio, gotOrder int
	called := false
	b.Add(ActionDesc{Fn: func(prio, order int) {
		called = true
		gotPrio, gotOrder = prio, order
	}})
	if !called {
		t.Fatal("Add did not invoke Fn")
	}
	if gotPrio != 0 {
		t.Errorf("Fn prio = %d, want 0 for the first filter", gotPrio)
	}
	if gotOrder != 0 {
		t.Errorf("Fn order = %d, want 0 for the first action", gotOrder)
	}
}

func TestRemoveReclaimsFilterWhenEmptied(t *testing.T) {
	b := New("eth0", 0)

	a := b.Add(ActionDesc{})
	if got := b.FilterCount(); got != 1 {
		t.Fatalf("FilterCount() = %d, want 1", got)
	}

	b.Remove(a)
	if got := b.FilterCount(); got != 0 {
		t.Errorf("FilterCount() = %d, want 0 after removing the only action", got)
	}
}

func TestRemoveReopensAFullFilterForReuse(t *testing.T) {
	b := New("eth0", 0)

	var actions []*Action
	for i := 0; i < MaxActionsPerFilter; i++ {
		actions = append(actions, b.Add(ActionDesc{}))
	}
	// the filter is now full; freeing one slot should make it the
	// lowest-priority filter with room again instead of spawning a new one
	b.Remove(actions[0])

	b.Add(ActionDesc{})
	if got := b.FilterCount(); got != 1 {
		t.Errorf("FilterCount() = %d, want 1, Add should have reused the reopened filter", got)
	}
}

func TestAddPrefersLowestPriorityFilterWithRoom(t *testing.T) {
	b := New("eth0", 0)

	// fill filter 0 completely, then open a second filter
	var first []*Action
	for i := 0; i < MaxActionsPerFilter; i++ {
		first = append(first, b.Add(ActionDesc{}))
	}
	second := b.Add(ActionDesc{})
	if second.filter.prio != 1 {
		t.Fatalf("second filter prio = %d, want 1", second.filter.prio)
	}

	// freeing room in filter 0 means the next Add should land back there,
	// not in filter 1, even though filter 1 was allocated more recently
	b.Remove(first[0])
	var gotPrio int
	b.Add(ActionDesc{Fn: func(prio, order int) { gotPrio = prio }})
	if gotPrio != 0 {
		t.Errorf("Add landed in filter %d, want the reopened lowest-priority filter 0", gotPrio)
	}
}

func TestFilterCountStartsAtZero(t *testing.T) {
	b := New("eth0", 0)
	if got := b.FilterCount(); got != 0 {
		t.Errorf("FilterCount() = %d, want 0 for a fresh Broadcast", got)
	}
}
