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

// Package broadcast implements the action-list fan-out structure flooding
// and multicast-like nettype drivers use to mirror a packet to every peer,
// grounded on netmodel/private/rules.h's lsdn_broadcast/lsdn_broadcast_filter
// pair. The kernel limits any one TC filter to a fixed number of actions
// (the last slot of which is reserved for a continue-to-next-filter
// action), so an arbitrary-length action list has to be split across a
// chain of filters; this package tracks which filter in the chain has free
// room so a new action can be added to the lowest-priority one that still
// fits, instead of always appending a new filter.
package broadcast

import (
	"fmt"

	"github.com/wangjia184/sortedset"
)

// MaxActionsPerFilter mirrors LSDN_MAX_ACT_PRIO - 1: the kernel's
// TCA_ACT_MAX_PRIO (32) minus the one slot every broadcast filter reserves
// for its continue action.
const MaxActionsPerFilter = 31

// ActionDesc describes one action to add to a filter, built lazily by Fn
// because the underlying TC library needs to emit the action directly onto
// the filter being constructed. Mirrors struct lsdn_action_desc.
type ActionDesc struct {
	Fn   func(filterPrio int, order int)
	User interface{}
}

// Action is a handle to one action installed in a Broadcast's filter chain,
// returned by Add and passed back to Remove. Mirrors struct
// lsdn_broadcast_action.
type Action struct {
	filter *filter
	index  int
	desc   ActionDesc
}

type filter struct {
	prio        int
	freeActions int
	actions     [MaxActionsPerFilter]*Action
}

// Broadcast is one chain of TC filters realizing an arbitrary-length action
// list on iface at chain. Mirrors struct lsdn_broadcast.
//
// roomy holds exactly the filters that currently have at least one free
// action slot, keyed by priority (lower score = lower TC priority), so that
// "the lowest-priority filter with free slots" is always PeekMin. A filter
// is removed from roomy the instant it fills up and reinserted the instant
// an action is freed from it, so the set never needs to be scanned or
// filtered at lookup time.
type Broadcast struct {
	Iface    string
	Chain    uint32
	freePrio int

	filters map[int]*filter
	roomy   *sortedset.SortedSet
}

// New creates an empty Broadcast on iface starting its filter chain at
// chain. Mirrors lsdn_broadcast_init.
func New(iface string, chain uint32) *Broadcast {
	return &Broadcast{
		Iface:   iface,
		Chain:   chain,
		filters: make(map[int]*filter),
		roomy:   sortedset.New(),
	}
}

func filterKey(prio int) string { return fmt.Sprintf("%d", prio) }

// Add installs desc as a new action, choosing the lowest-priority filter
// with free room, or allocating a new filter at the next free priority if
// none has room. Mirrors lsdn_broadcast_add.
func (b *Broadcast) Add(desc ActionDesc) *Action {
	f := b.lowestWithRoom()
	if f == nil {
		f = &filter{prio: b.freePrio, freeActions: MaxActionsPerFilter}
		b.freePrio++
		b.filters[f.prio] = f
		b.roomy.AddOrUpdate(filterKey(f.prio), sortedset.SCORE(f.prio), f)
	}

	idx := -1
	for i, a := range f.actions {
		if a == nil {
			idx = i
			break
		}
	}
	action := &Action{filter: f, index: idx, desc: desc}
	f.actions[idx] = action
	f.freeActions--
	if f.freeActions == 0 {
		b.roomy.Remove(filterKey(f.prio))
	}

	if desc.Fn != nil {
		desc.Fn(f.prio, idx)
	}
	return action
}

// lowestWithRoom returns the lowest-priority filter with at least one free
// action slot, or nil if every filter is full.
func (b *Broadcast) lowestWithRoom() *filter {
	node := b.roomy.PeekMin()
	if node == nil {
		return nil
	}
	return node.Value.(*filter)
}

// Remove frees action's slot, reclaiming the filter entirely once it is
// left empty. Mirrors lsdn_broadcast_remove.
func (b *Broadcast) Remove(action *Action) {
	f := action.filter
	wasFull := f.freeActions == 0
	f.actions[action.index] = nil
	f.freeActions++

	if f.freeActions == MaxActionsPerFilter {
		b.roomy.Remove(filterKey(f.prio))
		delete(b.filters, f.prio)
		return
	}
	if wasFull {
		b.roomy.AddOrUpdate(filterKey(f.prio), sortedset.SCORE(f.prio), f)
	}
}

// FilterCount returns the number of filters currently materialized in the
// chain.
func (b *Broadcast) FilterCount() int {
	return len(b.filters)
}
