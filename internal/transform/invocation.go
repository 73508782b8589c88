// Copyright 2023 Upbound Inc
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package transform

import (
	"context"
	"fmt"
	"sync"

	"github.com/upbound/xform/internal/execution"
)

const errFmtExecutionFailed = "Execution failed for %s."

// An Error is a user-visible transform failure. It wraps the underlying
// cause with the failing unit's display name.
type Error struct {
	// Unit is the display name of the failed unit of work.
	Unit string

	cause error
}

// NewError wraps cause as a transform failure of the named unit.
func NewError(unit string, cause error) *Error {
	return &Error{Unit: unit, cause: cause}
}

// Error returns the failure message.
func (e *Error) Error() string {
	msg := fmt.Sprintf(errFmtExecutionFailed, e.Unit)
	if e.cause == nil {
		return msg
	}
	return msg + ": " + e.cause.Error()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.cause
}

// An Invocation is a two-state handle on a transform invocation: a result
// already recovered from cache, or a deferred execution. Callers distinguish
// the states without forcing execution.
type Invocation struct {
	cached *execution.Result

	once sync.Once
	run  func(ctx context.Context) (execution.Result, error)
	out  execution.Result
	err  error
}

// CachedInvocation wraps an already-available result.
func CachedInvocation(r execution.Result) *Invocation {
	return &Invocation{cached: &r}
}

// DeferredInvocation wraps an execution that has yet to run.
func DeferredInvocation(run func(ctx context.Context) (execution.Result, error)) *Invocation {
	return &Invocation{run: run}
}

// Cached returns the recovered result, if this invocation hit the cache.
func (i *Invocation) Cached() (execution.Result, bool) {
	if i.cached == nil {
		return execution.Result{}, false
	}
	return *i.cached, true
}

// Invoke returns the invocation's result, executing at most once if it was
// not cached.
func (i *Invocation) Invoke(ctx context.Context) (execution.Result, error) {
	if i.cached != nil {
		return *i.cached, nil
	}
	i.once.Do(func() {
		i.out, i.err = i.run(ctx)
	})
	return i.out, i.err
}
