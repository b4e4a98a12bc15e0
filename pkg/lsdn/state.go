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

// State is the lifecycle state of a Net, Phys, Attachment or Virt. It
// mirrors enum lsdn_state and the renew/propagate/ack_state/ack_uncommit
// helpers in netmodel/lsdn.c.
type State int

const (
	// StateNew: object was just created and has never been committed.
	StateNew State = iota
	// StateOK: object was committed and nothing about it has changed since.
	StateOK
	// StateRenew: object (or something it depends on) changed since the
	// last commit and needs to be recommitted.
	StateRenew
	// StateDelete: object is marked for removal on the next commit.
	StateDelete
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateOK:
		return "ok"
	case StateRenew:
		return "renew"
	case StateDelete:
		return "delete"
	default:
		return "invalid"
	}
}

// renew moves s to StateRenew if and only if it is StateOK, leaving NEW,
// RENEW and DELETE untouched. Must never be called on a DELETE object.
// Mirrors lsdn.c's renew().
func renew(s *State) {
	if *s == StateDelete {
		panic("lsdn: renew called on a deleted object")
	}
	if *s == StateOK {
		*s = StateRenew
	}
}

// propagate renews `to` when `from` is itself slated for renewal and `to`
// is currently OK. Mirrors lsdn.c's propagate(), used to push phys/net/virt
// state onto the attachments and virts that depend on them (§5's
// propagation order: phys->attachments, net->attachments,
// virt(via its attachment)->virt).
func propagate(from State, to *State) {
	if from == StateRenew && *to == StateOK {
		*to = StateRenew
	}
}

// markDeleted transitions s to StateDelete unconditionally. A StateNew
// object was never committed and has nothing to tear down, so callers check
// for StateNew first and free such an object outright instead of calling
// this. Mirrors lsdn.c's delete_helper doc comment.
func markDeleted(s *State) {
	*s = StateDelete
}

// ackState advances a NEW or RENEW object to OK once it has been
// successfully (re)committed. DELETE and OK are left untouched (an object
// in DELETE state is freed by ackUncommit's caller instead, never acked).
// Mirrors lsdn.c's ack_state().
func ackState(s *State) {
	if *s == StateNew || *s == StateRenew {
		*s = StateOK
	}
}

// ackUncommit is called on every object during the decommit sweep. It
// reports whether the caller must run the object's decommit hook and
// then free or reset it: true for DELETE (decommit then free) and RENEW
// (decommit, reset to NEW, then the recommit pass below creates it fresh);
// false for NEW (nothing was ever committed) and OK (nothing changed).
// A RENEW object is rewound to NEW as a side effect. Mirrors lsdn.c's
// ack_uncommit().
func ackUncommit(s *State) bool {
	switch *s {
	case StateDelete:
		return true
	case StateRenew:
		*s = StateNew
		return true
	default:
		return false
	}
}

// willBeDeleted reports whether s is StateDelete.
func willBeDeleted(s State) bool {
	return s == StateDelete
}

// shouldBeValidated reports whether an object in state s is new or changed
// and therefore must be (re)checked by the validator. OK objects were
// already validated on a prior commit; DELETE objects are on their way out.
// Mirrors lsdn.c's should_be_validated().
func shouldBeValidated(s State) bool {
	return s == StateNew || s == StateRenew
}
