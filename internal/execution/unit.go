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

package execution

import (
	"context"
	"time"

	v1 "github.com/google/go-containerregistry/pkg/v1"

	"github.com/upbound/xform/internal/snapshot"
)

// CategoryNotCacheable is the disabled-caching category reported for units
// whose transformer opted out of caching.
const CategoryNotCacheable = "not-cacheable"

// A CachingDisabledReason explains why a unit of work must not be cached
// across builds.
type CachingDisabledReason struct {
	Category string
	Message  string
}

// ChangeTracking is a unit of work's input change tracking strategy.
type ChangeTracking string

// Supported change tracking strategies.
const (
	// TrackIncrementalParameters reports individual input changes to the
	// unit of work.
	TrackIncrementalParameters ChangeTracking = "incremental-parameters"
	// TrackNone re-executes from scratch on any change.
	TrackNone ChangeTracking = "none"
)

// An Identity determines cache equivalence between unit-of-work invocations.
// Identities compare structurally; distinct identities never share a
// workspace.
type Identity interface {
	// UniqueID returns a stable hex digest over the identity's fields.
	UniqueID() string
}

// InputChanges carries incremental change information into a unit of work.
type InputChanges struct {
	// Incremental is true when the changes below are exhaustive. When false
	// the unit must process all of its inputs.
	Incremental bool

	// Modified lists the changed input files, when Incremental.
	Modified []string
}

// A Request carries the engine-allocated workspace into Execute.
type Request struct {
	// Workspace is the directory assigned to this invocation's identity.
	Workspace string

	// Changes carries incremental change info, or nil when absent.
	Changes *InputChanges
}

// A Result is the recorded outcome of a unit of work.
type Result struct {
	// Workspace is the directory the outcome is recorded in.
	Workspace string

	// Outputs lists the produced files, in the order the unit reported them.
	Outputs []string
}

// A UnitOfWork is a deduplicated, workspace-backed piece of execution. The
// engine fingerprints its declared inputs, computes its identity, and either
// restores a prior outcome or executes it in a fresh workspace.
type UnitOfWork interface {
	// DisplayName names the unit for diagnostics and failure messages.
	DisplayName() string

	// VisitIdentityInputs declares the inputs that participate in identity.
	VisitIdentityInputs(v InputVisitor)

	// VisitRegularInputs declares inputs that do not affect identity. The
	// Engine in this package does not visit them.
	VisitRegularInputs(v InputVisitor)

	// VisitOutputs declares the unit's outputs within the supplied
	// workspace.
	VisitOutputs(workspace string, v OutputVisitor)

	// Identify assembles the unit's identity from the fingerprinted
	// identity inputs.
	Identify(values map[string]snapshot.Snapshot, files map[string]v1.Hash) (Identity, error)

	// Execute runs the unit in the supplied workspace.
	Execute(ctx context.Context, req Request) (Result, error)

	// LoadRestoredOutput decodes a previously recorded outcome from the
	// supplied workspace.
	LoadRestoredOutput(workspace string) (Result, error)

	// ShouldDisableCaching returns a reason when the unit must not be
	// reused across builds, or nil when caching is permitted.
	ShouldDisableCaching() *CachingDisabledReason

	// ChangeTracking advertises the unit's input change tracking strategy.
	ChangeTracking() ChangeTracking

	// Timeout returns the unit's execution timeout, if it has one.
	Timeout() (time.Duration, bool)
}

// A Workspace is a directory allocation that must be committed or discarded.
type Workspace interface {
	// Dir is the directory the unit executes in.
	Dir() string

	// Commit finalizes the allocation and returns the directory the
	// recorded outcome lives in from now on.
	Commit() (string, error)

	// Discard abandons the allocation.
	Discard() error
}

// A WorkspaceProvider locates and allocates identity-scoped workspaces.
type WorkspaceProvider interface {
	// Locate returns the workspace holding a completed outcome for the
	// supplied identity, if one is reusable.
	Locate(id string) (dir string, ok bool, err error)

	// Allocate returns a workspace for the supplied identity to execute in.
	Allocate(id string) (Workspace, error)
}
