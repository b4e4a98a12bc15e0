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
	"errors"
	"fmt"

	"github.com/virtnet/lsdn/pkg/problem"
)

// Sentinel errors returned by the mutation and commit API. Callers should
// use errors.Is against these rather than comparing strings, matching the
// lsdn_err_t code set (LSDNE_OK/NOMEM/DUPLICATE/NOIF/VALIDATE/COMMIT).
var (
	ErrDuplicate = errors.New("lsdn: name already in use")
	ErrNoIf      = errors.New("lsdn: interface name required")
	ErrNetlink   = errors.New("lsdn: netlink operation failed")
	ErrValidate  = errors.New("lsdn: validation failed")
	ErrCommit    = errors.New("lsdn: commit failed")
)

// ValidateError wraps the problems recorded during a failed Validate or
// Commit call (Commit returns it when its validation step fails), mirroring
// LSDNE_VALIDATE plus the reported problem list the C API delivers via the
// problem callback.
type ValidateError struct {
	Problems []problem.Problem
}

func (e *ValidateError) Error() string {
	if len(e.Problems) == 1 {
		return fmt.Sprintf("lsdn: validation failed: %s", e.Problems[0].Format())
	}
	return fmt.Sprintf("lsdn: validation failed with %d problems", len(e.Problems))
}

func (e *ValidateError) Unwrap() error {
	return ErrValidate
}

// CommitError is the commit-phase analogue of ValidateError: it wraps the
// same accumulated problems but unwraps to ErrCommit instead of ErrValidate,
// since lsdn_commit returns LSDNE_COMMIT rather than LSDNE_VALIDATE when
// problems are reported after validation has already passed.
type CommitError struct {
	Problems []problem.Problem
}

func (e *CommitError) Error() string {
	if len(e.Problems) == 1 {
		return fmt.Sprintf("lsdn: commit failed: %s", e.Problems[0].Format())
	}
	return fmt.Sprintf("lsdn: commit failed with %d problems", len(e.Problems))
}

func (e *CommitError) Unwrap() error {
	return ErrCommit
}
