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
	"github.com/spf13/afero"

	v1 "github.com/google/go-containerregistry/pkg/v1"

	"github.com/upbound/xform/internal/execution"
	"github.com/upbound/xform/internal/operations"
	"github.com/upbound/xform/internal/snapshot"
)

// MutableExecution is the unit of work for input artifacts produced by a
// local project. The producer can rewrite the artifact during a build, so
// identity is the artifact's absolute path rather than its content. The
// engine does not fingerprint regular inputs: within one engine, a rewritten
// artifact at the same path resolves to the outcome already recorded for it.
type MutableExecution struct {
	baseExecution
}

// NewMutableExecution constructs a MutableExecution.
func NewMutableExecution(t Transformer, input string, deps Dependencies, subject Subject, fs afero.Fs, snap *snapshot.Snapshotter, ops *operations.Runner) *MutableExecution {
	return &MutableExecution{
		baseExecution: newBaseExecution(t, input, deps, subject, fs, snap, ops),
	}
}

// VisitIdentityInputs declares the base identity inputs unchanged.
func (e *MutableExecution) VisitIdentityInputs(v execution.InputVisitor) {
	e.visitBaseIdentityInputs(v)
}

// Identify assembles a MutableIdentity from the artifact's absolute path and
// the fingerprinted identity inputs.
func (e *MutableExecution) Identify(values map[string]snapshot.Snapshot, files map[string]v1.Hash) (execution.Identity, error) {
	secondary, err := secondarySnapshot(values)
	if err != nil {
		return nil, err
	}
	deps, err := dependenciesHash(files)
	if err != nil {
		return nil, err
	}
	return MutableIdentity{
		InputPath:        e.input,
		Secondary:        secondary,
		DependenciesHash: deps,
	}, nil
}
