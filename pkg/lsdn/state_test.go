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

import "testing"

func TestRenew(t *testing.T) {
	cases := []struct {
		in   State
		want State
	}{
		{StateNew, StateNew},
		{StateOK, StateRenew},
		{StateRenew, StateRenew},
	}
	for _, c := range cases {
		s := c.in
		renew(&s)
		if s != c.want {
			t.Errorf("renew(%s) = %s, want %s", c.in, s, c.want)
		}
	}
}

func TestRenewPanicsOnDelete(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("renew on a deleted object should panic")
		}
	}()
	s := StateDelete
	renew(&s)
}

func TestPropagate(t *testing.T) {
	cases := []struct {
		from State
		to   State
		want State
	}{
		{StateRenew, StateOK, StateRenew},
		{StateRenew, StateNew, StateNew},
		{StateRenew, StateRenew, StateRenew},
		{StateRenew, StateDelete, StateDelete},
		{StateOK, StateOK, StateOK},
		{StateNew, StateOK, StateOK},
	}
	for _, c := range cases {
		to := c.to
		propagate(c.from, &to)
		if to != c.want {
			t.Errorf("propagate(%s, %s) = %s, want %s", c.from, c.to, to, c.want)
		}
	}
}

func TestAckState(t *testing.T) {
	cases := []struct {
		in   State
		want State
	}{
		{StateNew, StateOK},
		{StateRenew, StateOK},
		{StateOK, StateOK},
		{StateDelete, StateDelete},
	}
	for _, c := range cases {
		s := c.in
		ackState(&s)
		if s != c.want {
			t.Errorf("ackState(%s) = %s, want %s", c.in, s, c.want)
		}
	}
}

func TestAckUncommit(t *testing.T) {
	cases := []struct {
		in       State
		wantBool bool
		wantState State
	}{
		{StateNew, false, StateNew},
		{StateOK, false, StateOK},
		{StateRenew, true, StateNew},
		{StateDelete, true, StateDelete},
	}
	for _, c := range cases {
		s := c.in
		got := ackUncommit(&s)
		if got != c.wantBool || s != c.wantState {
			t.Errorf("ackUncommit(%s) = (%v, %s), want (%v, %s)", c.in, got, s, c.wantBool, c.wantState)
		}
	}
}

func TestShouldBeValidated(t *testing.T) {
	cases := []struct {
		in   State
		want bool
	}{
		{StateNew, true},
		{StateRenew, true},
		{StateOK, false},
		{StateDelete, false},
	}
	for _, c := range cases {
		if got := shouldBeValidated(c.in); got != c.want {
			t.Errorf("shouldBeValidated(%s) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestWillBeDeleted(t *testing.T) {
	if !willBeDeleted(StateDelete) {
		t.Error("willBeDeleted(StateDelete) = false, want true")
	}
	for _, s := range []State{StateNew, StateOK, StateRenew} {
		if willBeDeleted(s) {
			t.Errorf("willBeDeleted(%s) = true, want false", s)
		}
	}
}
