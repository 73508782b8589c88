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

	"github.com/crossplane/crossplane-runtime/pkg/errors"

	"github.com/upbound/xform/internal/execution"
	"github.com/upbound/xform/internal/operations"
	"github.com/upbound/xform/internal/snapshot"
)

// ImmutableExecution is the unit of work for input artifacts from external,
// content-addressed sources. Identity is built from the artifact's
// normalized path and root content hash rather than a full fingerprint: an
// external artifact is immutable at a given content address, so the cheap
// snapshot identifies it.
type ImmutableExecution struct {
	baseExecution
}

// NewImmutableExecution constructs an ImmutableExecution.
func NewImmutableExecution(t Transformer, input string, deps Dependencies, subject Subject, fs afero.Fs, snap *snapshot.Snapshotter, ops *operations.Runner) *ImmutableExecution {
	return &ImmutableExecution{
		baseExecution: newBaseExecution(t, input, deps, subject, fs, snap, ops),
	}
}

// VisitIdentityInputs declares the base identity inputs plus the input
// artifact's normalized path and content snapshot.
func (e *ImmutableExecution) VisitIdentityInputs(v execution.InputVisitor) {
	e.visitBaseIdentityInputs(v)
	v.InputProperty(PropInputArtifactPath, func() (snapshot.Snapshot, error) {
		snap, err := e.snap.Snapshot(e.input)
		if err != nil {
			return nil, err
		}
		fp := e.snap.Fingerprinter(e.transformer.InputArtifactNormalizer(), e.transformer.InputArtifactDirectorySensitivity())
		return snapshot.StringSnapshot(fp.NormalizedPath(snap)), nil
	})
	v.InputProperty(PropInputArtifactSnapshot, func() (snapshot.Snapshot, error) {
		snap, err := e.snap.Snapshot(e.input)
		if err != nil {
			return nil, err
		}
		return snapshot.HashSnapshot(snap.Hash), nil
	})
}

// Identify assembles an ImmutableIdentity from the fingerprinted identity
// inputs.
func (e *ImmutableExecution) Identify(values map[string]snapshot.Snapshot, files map[string]v1.Hash) (execution.Identity, error) {
	path, ok := values[PropInputArtifactPath].(snapshot.StringSnapshot)
	if !ok {
		return nil, errors.Errorf(errFmtMissingProperty, PropInputArtifactPath)
	}
	content, ok := values[PropInputArtifactSnapshot].(snapshot.HashSnapshot)
	if !ok {
		return nil, errors.Errorf(errFmtMissingProperty, PropInputArtifactSnapshot)
	}
	secondary, err := secondarySnapshot(values)
	if err != nil {
		return nil, err
	}
	deps, err := dependenciesHash(files)
	if err != nil {
		return nil, err
	}
	return ImmutableIdentity{
		InputPath:        path,
		InputHash:        content,
		Secondary:        secondary,
		DependenciesHash: deps,
	}, nil
}
