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

// Package ruleset implements the priority-slot classifier chain abstraction
// the nettype drivers compile their match rules into, grounded on
// netmodel/private/rules.h's lsdn_ruleset/lsdn_ruleset_prio/lsdn_rule triple
// from the original lsdn C library. A Ruleset occupies one contiguous range
// of TC priorities on one (parent handle, chain) coordinate; within that
// range a caller allocates PrioSlots, each of which is meant to materialize
// as a single TC flower filter so that rules sharing match targets and a
// mask are installed together instead of one filter per rule.
package ruleset

import (
	"fmt"

	"github.com/google/btree"
)

// Target names the packet field a MatchKey matches against. Mirrors enum
// lsdn_rule_target, generalized to a small symbolic set since this package
// never emits a real TC match (the concrete field widths live in
// nettypes.h, out of this library's Non-goals).
type Target int

const (
	TargetSrcMAC Target = iota
	TargetDstMAC
	TargetSrcIP
	TargetDstIP
	TargetVLAN
	TargetTunnelID
)

func (t Target) String() string {
	switch t {
	case TargetSrcMAC:
		return "src_mac"
	case TargetDstMAC:
		return "dst_mac"
	case TargetSrcIP:
		return "src_ip"
	case TargetDstIP:
		return "dst_ip"
	case TargetVLAN:
		return "vlan"
	case TargetTunnelID:
		return "tunnel_id"
	default:
		return "unknown"
	}
}

// maxMatches mirrors LSDN_MAX_MATCHES: a rule's match is the logical
// conjunction of at most two (target, value) pairs.
const maxMatches = 2

// MatchKey is one (target, value) pair of a rule's match conjunction. Value
// is matched after Mask is applied, mirroring lsdn_rule_apply_mask.
type MatchKey struct {
	Target Target
	Value  []byte
	Mask   []byte
}

func (k MatchKey) masked() string {
	out := make([]byte, len(k.Value))
	for i := range out {
		m := byte(0xff)
		if i < len(k.Mask) {
			m = k.Mask[i]
		}
		v := byte(0)
		if i < len(k.Value) {
			v = k.Value[i]
		}
		out[i] = v & m
	}
	return fmt.Sprintf("%d:%x", k.Target, out)
}

// Rule is one classifier rule added to a PrioSlot, disambiguated from its
// siblings by (masked key, Subprio). Mirrors struct lsdn_rule.
type Rule struct {
	Keys    []MatchKey
	Subprio uint32
	User    interface{}

	handle uint32
	slot   *PrioSlot
}

// Handle returns the unique 32-bit id allocated to r when it was added.
func (r *Rule) Handle() uint32 { return r.handle }

func (r *Rule) maskedKey() string {
	parts := make([]string, len(r.Keys))
	for i, k := range r.Keys {
		parts[i] = k.masked()
	}
	return fmt.Sprintf("%v", parts)
}

// flowerAggregate is the set of rules sharing one masked key within a
// PrioSlot, distinguished only by Subprio; all of them are installed as one
// flower filter entry, mirroring struct lsdn_flower_rule.
type flowerAggregate struct {
	maskedKey string
	rules     map[uint32]*Rule // keyed by Subprio
}

// PrioSlot is one TC priority within a Ruleset's range. Every rule in a slot
// shares the same match Targets and Masks (established by the first rule
// added); adding a rule with a different target/mask set is rejected.
// Mirrors struct lsdn_ruleset_prio.
type PrioSlot struct {
	Prio    uint16
	targets []Target
	masks   [][]byte

	ruleset    *Ruleset
	aggregates map[string]*flowerAggregate
	ids        *idAlloc
}

// Less implements btree.Item, ordering PrioSlots by Prio so a Ruleset's
// slots iterate in ascending TC priority order — the order filters must be
// installed in for deterministic reconciliation.
func (p *PrioSlot) Less(than btree.Item) bool {
	return p.Prio < than.(*PrioSlot).Prio
}

// ErrTargetMismatch is returned by Add when a rule's match targets/masks
// differ from the ones already established on the slot.
var ErrTargetMismatch = fmt.Errorf("ruleset: rule targets/masks differ from the slot's established match")

// ErrDuplicate is returned by Add when a rule with an identical masked key
// and Subprio already exists in the slot.
var ErrDuplicate = fmt.Errorf("ruleset: duplicate rule in priority slot")

// Add installs r into the slot, checking for a target/mask mismatch or a
// duplicate (masked key, Subprio) pair, and allocating r a unique handle.
// Keys are compared after applying their masks; r.Keys itself is left
// unmodified. Mirrors lsdn_ruleset_add.
func (p *PrioSlot) Add(r *Rule) error {
	if len(r.Keys) == 0 || len(r.Keys) > maxMatches {
		return fmt.Errorf("ruleset: rule must have 1-%d match keys, got %d", maxMatches, len(r.Keys))
	}
	if p.targets == nil {
		p.targets = make([]Target, len(r.Keys))
		p.masks = make([][]byte, len(r.Keys))
		for i, k := range r.Keys {
			p.targets[i] = k.Target
			p.masks[i] = k.Mask
		}
	} else if !p.matchesShape(r) {
		return ErrTargetMismatch
	}

	key := r.maskedKey()
	agg, ok := p.aggregates[key]
	if !ok {
		agg = &flowerAggregate{maskedKey: key, rules: make(map[uint32]*Rule)}
		p.aggregates[key] = agg
	} else if _, exists := agg.rules[r.Subprio]; exists {
		return ErrDuplicate
	}

	r.handle = p.ids.alloc()
	r.slot = p
	agg.rules[r.Subprio] = r
	return nil
}

func (p *PrioSlot) matchesShape(r *Rule) bool {
	if len(r.Keys) != len(p.targets) {
		return false
	}
	for i, k := range r.Keys {
		if k.Target != p.targets[i] {
			return false
		}
		if string(k.Mask) != string(p.masks[i]) {
			return false
		}
	}
	return true
}

// Remove frees r's handle and drops it from its aggregate, removing the
// aggregate entirely once it holds no more rules. Mirrors
// lsdn_ruleset_remove.
func (p *PrioSlot) Remove(r *Rule) {
	agg, ok := p.aggregates[r.maskedKey()]
	if !ok {
		return
	}
	delete(agg.rules, r.Subprio)
	if len(agg.rules) == 0 {
		delete(p.aggregates, agg.maskedKey)
	}
	p.ids.release(r.handle)
	r.slot = nil
}

// RuleCount returns the number of rules currently installed in the slot,
// across all its flower aggregates.
func (p *PrioSlot) RuleCount() int {
	n := 0
	for _, agg := range p.aggregates {
		n += len(agg.rules)
	}
	return n
}

// Ruleset is a TC classifier chain attached to one interface at one
// (parent handle, chain) coordinate, occupying priorities
// [PrioStart, PrioStart+PrioCount). Mirrors struct lsdn_ruleset.
type Ruleset struct {
	Iface        string
	ParentHandle uint32
	Chain        uint32
	PrioStart    int
	PrioCount    int

	slots *btree.BTree
	byNum map[uint16]*PrioSlot
}

// New creates a Ruleset attached to iface at (parentHandle, chain),
// spanning [prioStart, prioStart+prioCount). Mirrors lsdn_ruleset_init.
func New(iface string, parentHandle, chain uint32, prioStart, prioCount int) *Ruleset {
	return &Ruleset{
		Iface:        iface,
		ParentHandle: parentHandle,
		Chain:        chain,
		PrioStart:    prioStart,
		PrioCount:    prioCount,
		slots:        btree.New(8),
		byNum:        make(map[uint16]*PrioSlot),
	}
}

// DefinePrio creates (or returns the existing) PrioSlot at prio. Mirrors
// lsdn_ruleset_define_prio.
func (rs *Ruleset) DefinePrio(prio uint16) (*PrioSlot, error) {
	if slot, ok := rs.byNum[prio]; ok {
		return slot, nil
	}
	if int(prio) < rs.PrioStart || int(prio) >= rs.PrioStart+rs.PrioCount {
		return nil, fmt.Errorf("ruleset: priority %d outside range [%d, %d)", prio, rs.PrioStart, rs.PrioStart+rs.PrioCount)
	}
	slot := &PrioSlot{
		Prio:       prio,
		ruleset:    rs,
		aggregates: make(map[string]*flowerAggregate),
		ids:        newIDAlloc(),
	}
	rs.byNum[prio] = slot
	rs.slots.ReplaceOrInsert(slot)
	return slot, nil
}

// GetPrio returns the PrioSlot at prio, if one has been defined. Mirrors
// lsdn_ruleset_get_prio.
func (rs *Ruleset) GetPrio(prio uint16) (*PrioSlot, bool) {
	slot, ok := rs.byNum[prio]
	return slot, ok
}

// RemovePrio drops slot from the ruleset. Mirrors lsdn_ruleset_remove_prio.
func (rs *Ruleset) RemovePrio(slot *PrioSlot) {
	delete(rs.byNum, slot.Prio)
	rs.slots.Delete(slot)
}

// Slots returns every defined PrioSlot in ascending priority order, the
// order filters should be installed in for deterministic reconciliation.
func (rs *Ruleset) Slots() []*PrioSlot {
	out := make([]*PrioSlot, 0, rs.slots.Len())
	rs.slots.Ascend(func(it btree.Item) bool {
		out = append(out, it.(*PrioSlot))
		return true
	})
	return out
}

// idAlloc hands out small, reusable unsigned handles, grounded on
// idalloc.h's free-list allocator (referenced by private/rules.h but not
// itself part of the retrieved sources): a monotonic counter backed by a
// free-list of reclaimed ids so long-lived rulesets don't grow handles
// without bound under add/remove churn.
type idAlloc struct {
	next uint32
	free []uint32
}

func newIDAlloc() *idAlloc {
	return &idAlloc{next: 1}
}

func (a *idAlloc) alloc() uint32 {
	if n := len(a.free); n > 0 {
		id := a.free[n-1]
		a.free = a.free[:n-1]
		return id
	}
	id := a.next
	a.next++
	return id
}

func (a *idAlloc) release(id uint32) {
	a.free = append(a.free, id)
}
